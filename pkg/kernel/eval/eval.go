// Package eval evaluates step quality checks against the host's design
// state. Conditions are expr-lang expressions; strings containing {{ }}
// are rendered as Go templates instead.
package eval

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"text/template"

	"github.com/expr-lang/expr"

	"github.com/ormasoftchile/overlay/pkg/kernel/schema"
)

// DesignState is what the host reports about the open design.
type DesignState struct {
	Workspace    string   `json:"workspace,omitempty"`
	Environment  string   `json:"environment,omitempty"`
	SketchCount  int      `json:"sketchCount"`
	BodyCount    int      `json:"bodyCount"`
	FeatureCount int      `json:"featureCount"`
	InSketch     bool     `json:"inSketch"`
	Bodies       []string `json:"bodies,omitempty"`
	Features     []string `json:"features,omitempty"`
	Sketches     []string `json:"sketches,omitempty"`
}

// Env returns the variable scope expressions are evaluated in.
func (d DesignState) Env() map[string]any {
	return map[string]any{
		"workspace":    d.Workspace,
		"environment":  d.Environment,
		"sketchCount":  d.SketchCount,
		"bodyCount":    d.BodyCount,
		"featureCount": d.FeatureCount,
		"inSketch":     d.InSketch,
		"bodies":       orEmpty(d.Bodies),
		"features":     orEmpty(d.Features),
		"sketches":     orEmpty(d.Sketches),
	}
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// Result is the outcome of one quality check.
type Result struct {
	Text   string `json:"text"`
	Expr   string `json:"expr"`
	Passed bool   `json:"passed"`
	Error  string `json:"error,omitempty"`
}

// CheckAll runs every check in order. A check that fails to compile is
// reported as not passed with its error.
func CheckAll(checks []schema.QCCheck, state DesignState) []Result {
	out := make([]Result, 0, len(checks))
	env := state.Env()
	for _, c := range checks {
		out = append(out, check(c, env))
	}
	return out
}

// Passed reports whether every result passed.
func Passed(results []Result) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}

func check(c schema.QCCheck, env map[string]any) Result {
	src, err := Expression(c)
	r := Result{Text: c.Text, Expr: src}
	if r.Text == "" {
		r.Text = src
	}
	if err != nil {
		r.Error = err.Error()
		return r
	}
	ok, err := EvalCondition(src, env)
	if err != nil {
		r.Error = err.Error()
		return r
	}
	r.Passed = ok
	return r
}

// Expression returns the condition a check evaluates. Named check types
// are translated to expressions over the DesignState scope.
func Expression(c schema.QCCheck) (string, error) {
	if c.Expr != "" {
		return c.Expr, nil
	}
	switch c.Type {
	case "sketch_exists":
		return "sketchCount >= 1", nil
	case "body_exists":
		return "bodyCount >= 1", nil
	case "in_sketch":
		return "inSketch", nil
	case "not_in_sketch":
		return "!inSketch", nil
	case "feature_count_gte":
		n, err := expectedInt(c)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("featureCount >= %d", n), nil
	case "body_count_gte":
		n, err := expectedInt(c)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("bodyCount >= %d", n), nil
	case "feature_exists":
		return fmt.Sprintf("%q in features", fmt.Sprint(c.Expected)), nil
	case "body_exists_named":
		return fmt.Sprintf("%q in bodies", fmt.Sprint(c.Expected)), nil
	case "":
		return "", fmt.Errorf("check has neither type nor expr")
	default:
		return "", fmt.Errorf("unknown check type %q", c.Type)
	}
}

func expectedInt(c schema.QCCheck) (int, error) {
	switch v := c.Expected.(type) {
	case int:
		return v, nil
	case float64:
		return int(v), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, fmt.Errorf("%s: expected must be an integer: %w", c.Type, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%s: expected must be an integer, got %T", c.Type, c.Expected)
	}
}

// Compile checks that a QC check's condition compiles against the
// DesignState scope without running it.
func Compile(c schema.QCCheck) error {
	src, err := Expression(c)
	if err != nil {
		return err
	}
	if strings.Contains(src, "{{") {
		return nil
	}
	if _, err := expr.Compile(src, expr.Env(DesignState{}.Env()), expr.AsBool()); err != nil {
		return fmt.Errorf("compile condition %q: %w", src, err)
	}
	return nil
}

// EvalCondition evaluates a boolean expression against env. Empty
// conditions are true. Conditions containing {{ }} are rendered as
// templates and compared against the usual falsy strings.
func EvalCondition(src string, env map[string]any) (bool, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return true, nil
	}

	if strings.Contains(src, "{{") {
		val, err := Render(src, env)
		if err != nil {
			return false, err
		}
		val = strings.TrimSpace(val)
		return val != "" && val != "false" && val != "0" && val != "<no value>", nil
	}

	program, err := expr.Compile(src, expr.Env(env), expr.AsBool())
	if err != nil {
		return false, fmt.Errorf("compile condition %q: %w", src, err)
	}
	output, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("eval condition %q: %w", src, err)
	}
	result, ok := output.(bool)
	if !ok {
		return false, fmt.Errorf("condition %q did not return bool (got %T: %v)", src, output, output)
	}
	return result, nil
}

// Render executes a Go template against vars. Strings without {{ are
// returned unchanged.
func Render(tmpl string, vars map[string]any) (string, error) {
	if !strings.Contains(tmpl, "{{") {
		return tmpl, nil
	}
	t, err := template.New("").Funcs(template.FuncMap{
		"contains":  strings.Contains,
		"hasPrefix": strings.HasPrefix,
		"lower":     strings.ToLower,
	}).Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("template parse: %w", err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("template eval: %w", err)
	}
	return buf.String(), nil
}
