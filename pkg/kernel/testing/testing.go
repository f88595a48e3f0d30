// Package testing implements the scenario-based tutorial test harness.
// It replays scripted host input against a tutorial and evaluates
// assertions on the final machine state, the steps visited and the
// targets resolved along the way.
package testing

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// TestSpec declares what to assert about a scenario replay result.
// All fields are optional; omitted fields produce no assertions.
type TestSpec struct {
	Description       string   `yaml:"description,omitempty" json:"description,omitempty"`
	ExpectedIndex     *int     `yaml:"expected_index,omitempty" json:"expected_index,omitempty"`
	ExpectedMode      string   `yaml:"expected_mode,omitempty" json:"expected_mode,omitempty"`           // normal, redirecting
	ExpectedStep      string   `yaml:"expected_step,omitempty" json:"expected_step,omitempty"`           // step ID, /regex/ allowed
	ExpectedChecklist []string `yaml:"expected_checklist,omitempty" json:"expected_checklist,omitempty"` // item states in order
	ExpectedComplete  *bool    `yaml:"expected_complete,omitempty" json:"expected_complete,omitempty"`
	MustVisit         []string `yaml:"must_visit,omitempty" json:"must_visit,omitempty"`         // step IDs that must be loaded
	MustNotVisit      []string `yaml:"must_not_visit,omitempty" json:"must_not_visit,omitempty"` // step IDs that must NOT be loaded
	MustResolve       []string `yaml:"must_resolve,omitempty" json:"must_resolve,omitempty"`     // target paths that must resolve
	Tags              []string `yaml:"tags,omitempty" json:"tags,omitempty"`
}

// LoadTestSpec loads a test spec from a YAML file.
func LoadTestSpec(path string) (*TestSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read test spec: %w", err)
	}
	return ParseTestSpec(data)
}

// ParseTestSpec parses test spec YAML.
func ParseTestSpec(data []byte) (*TestSpec, error) {
	var s TestSpec
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse test spec: %w", err)
	}
	return &s, nil
}

// RunResult captures the observed session for assertion evaluation.
type RunResult struct {
	Index     int
	Mode      string
	StepID    string
	Checklist []string // item states in order
	Complete  bool
	Visited   []string // step IDs in load order, redirects excluded
	Resolved  []string // target paths that resolved
	Error     error
}

// AssertionResult is the result of a single assertion.
type AssertionResult struct {
	Type     string `json:"type"` // expected_index, must_visit, etc.
	Key      string `json:"key,omitempty"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
	Passed   bool   `json:"passed"`
	Message  string `json:"message,omitempty"`
}

// Evaluate runs all assertions from a TestSpec against a RunResult.
func Evaluate(spec *TestSpec, run *RunResult) []AssertionResult {
	var results []AssertionResult

	if spec.ExpectedIndex != nil {
		want, got := strconv.Itoa(*spec.ExpectedIndex), strconv.Itoa(run.Index)
		results = append(results, AssertionResult{
			Type:     "expected_index",
			Expected: want,
			Actual:   got,
			Passed:   want == got,
			Message:  fmt.Sprintf("index: expected %s, got %s", want, got),
		})
	}

	if spec.ExpectedMode != "" {
		results = append(results, AssertionResult{
			Type:     "expected_mode",
			Expected: spec.ExpectedMode,
			Actual:   run.Mode,
			Passed:   strings.EqualFold(spec.ExpectedMode, run.Mode),
			Message:  fmt.Sprintf("mode: expected %q, got %q", spec.ExpectedMode, run.Mode),
		})
	}

	if spec.ExpectedStep != "" {
		results = append(results, AssertionResult{
			Type:     "expected_step",
			Expected: spec.ExpectedStep,
			Actual:   run.StepID,
			Passed:   compareValue(spec.ExpectedStep, run.StepID),
			Message:  fmt.Sprintf("step: expected %q, got %q", spec.ExpectedStep, run.StepID),
		})
	}

	if spec.ExpectedChecklist != nil {
		want, got := strings.Join(spec.ExpectedChecklist, ","), strings.Join(run.Checklist, ",")
		results = append(results, AssertionResult{
			Type:     "expected_checklist",
			Expected: want,
			Actual:   got,
			Passed:   want == got,
			Message:  fmt.Sprintf("checklist: expected [%s], got [%s]", want, got),
		})
	}

	if spec.ExpectedComplete != nil {
		want, got := strconv.FormatBool(*spec.ExpectedComplete), strconv.FormatBool(run.Complete)
		results = append(results, AssertionResult{
			Type:     "expected_complete",
			Expected: want,
			Actual:   got,
			Passed:   want == got,
			Message:  fmt.Sprintf("complete: expected %s, got %s", want, got),
		})
	}

	visited := toSet(run.Visited)
	for _, stepID := range spec.MustVisit {
		passed := visited[stepID]
		results = append(results, AssertionResult{
			Type:     "must_visit",
			Key:      stepID,
			Expected: "visited",
			Actual:   boolToVisited(passed),
			Passed:   passed,
			Message:  fmt.Sprintf("must_visit %q: %s", stepID, boolToVisited(passed)),
		})
	}

	for _, stepID := range spec.MustNotVisit {
		seen := visited[stepID]
		results = append(results, AssertionResult{
			Type:     "must_not_visit",
			Key:      stepID,
			Expected: "not visited",
			Actual:   boolToVisited(seen),
			Passed:   !seen,
			Message:  fmt.Sprintf("must_not_visit %q: %s", stepID, boolToVisited(seen)),
		})
	}

	resolved := toSet(run.Resolved)
	for _, path := range spec.MustResolve {
		passed := resolved[path]
		actual := "unresolved"
		if passed {
			actual = "resolved"
		}
		results = append(results, AssertionResult{
			Type:     "must_resolve",
			Key:      path,
			Expected: "resolved",
			Actual:   actual,
			Passed:   passed,
			Message:  fmt.Sprintf("must_resolve %q: %s", path, actual),
		})
	}

	return results
}

// HasFailures returns true if any assertion failed.
func HasFailures(results []AssertionResult) bool {
	for _, r := range results {
		if !r.Passed {
			return true
		}
	}
	return false
}

// compareValue supports two match modes:
//   - /pattern/ → regex match
//   - exact string equality (default)
func compareValue(expected, actual string) bool {
	if strings.HasPrefix(expected, "/") && strings.HasSuffix(expected, "/") && len(expected) > 2 {
		re, err := regexp.Compile(expected[1 : len(expected)-1])
		if err != nil {
			return false
		}
		return re.MatchString(actual)
	}
	return expected == actual
}

func toSet(list []string) map[string]bool {
	set := make(map[string]bool, len(list))
	for _, s := range list {
		set[s] = true
	}
	return set
}

func boolToVisited(b bool) string {
	if b {
		return "visited"
	}
	return "not visited"
}
