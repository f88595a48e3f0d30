package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ormasoftchile/overlay/pkg/kernel/registry"
	"github.com/ormasoftchile/overlay/pkg/kernel/resolve"
	kschema "github.com/ormasoftchile/overlay/pkg/kernel/schema"
	ktesting "github.com/ormasoftchile/overlay/pkg/kernel/testing"
	kvalidate "github.com/ormasoftchile/overlay/pkg/kernel/validate"
)

// Handlers implements the overlay MCP tools.
type Handlers struct {
	Registry *registry.Registry
}

// HandleValidate implements the overlay/validate tool.
func (h *Handlers) HandleValidate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	path, _ := args["path"].(string)
	if path == "" {
		return errorResult("path argument is required"), nil
	}
	kind, _ := args["kind"].(string)

	switch kind {
	case "", "tutorial":
		t, errs := kvalidate.ValidateFile(path, kvalidate.Options{Registry: h.Registry})
		if kvalidate.HasErrors(errs) {
			return errorResult(formatErrors(errs)), nil
		}
		return textResult(fmt.Sprintf("✓ %s is valid (%d steps)%s", t.TutorialID, len(t.Steps), formatWarnings(errs))), nil
	case "registry":
		doc, errs := kvalidate.ValidateRegistryFile(path)
		if kvalidate.HasErrors(errs) {
			return errorResult(formatErrors(errs)), nil
		}
		return textResult(fmt.Sprintf("✓ registry is valid (%d environments)%s", len(doc.Environments), formatWarnings(errs))), nil
	default:
		return errorResult(fmt.Sprintf("unknown kind %q, use 'tutorial' or 'registry'", kind)), nil
	}
}

// HandleResolve implements the overlay/resolve tool.
func (h *Handlers) HandleResolve(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if h.Registry == nil {
		return errorResult("no registry loaded"), nil
	}
	args := req.GetArguments()
	path, _ := args["path"].(string)
	if path == "" {
		return errorResult("path argument is required"), nil
	}
	res := resolve.New(h.Registry)
	if env, _ := args["environment"].(string); env != "" {
		if !h.Registry.HasEnvironment(env) {
			return errorResult(fmt.Sprintf("unknown environment %q", env)), nil
		}
		res.SetActive(env)
	}

	t, ok := res.Resolve(path)
	if !ok {
		return errorResult(fmt.Sprintf("%s: no component in %s", path, res.Active())), nil
	}
	data, _ := json.MarshalIndent(t, "", "  ")
	return textResult(string(data)), nil
}

// HandleSchema implements the overlay/schema tool.
func (h *Handlers) HandleSchema(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	schemaType, _ := args["type"].(string)

	var data []byte
	var err error
	switch schemaType {
	case "tutorial":
		data, err = kschema.GenerateTutorialJSONSchema()
	case "registry":
		data, err = kschema.GenerateRegistryJSONSchema()
	default:
		return errorResult(fmt.Sprintf("unknown schema type %q, use 'tutorial' or 'registry'", schemaType)), nil
	}
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return textResult(string(data)), nil
}

// HandleTest implements the overlay/test tool.
func (h *Handlers) HandleTest(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	path, _ := args["path"].(string)
	if path == "" {
		return errorResult("path argument is required"), nil
	}
	scenarioName, _ := args["scenario"].(string)

	runner := &ktesting.Runner{
		Registry: h.Registry,
		Timeout:  30 * time.Second,
	}

	var output *ktesting.TestOutput
	if scenarioName != "" {
		result, err := runner.RunScenario(path, scenarioName)
		if err != nil {
			return errorResult(fmt.Sprintf("run scenario: %s", err)), nil
		}
		output = &ktesting.TestOutput{
			Tutorial:  result.TutorialID,
			Scenarios: []ktesting.TestResult{*result},
			Summary:   ktesting.TestSummary{Total: 1},
		}
		switch result.Status {
		case "passed":
			output.Summary.Passed = 1
		case "failed":
			output.Summary.Failed = 1
		case "skipped":
			output.Summary.Skipped = 1
		default:
			output.Summary.Errors = 1
		}
	} else {
		var err error
		output, err = runner.RunAll(path)
		if err != nil {
			return errorResult(fmt.Sprintf("run tests: %s", err)), nil
		}
		if output.Tutorial == "" {
			output.Tutorial = filepath.Base(path)
		}
	}

	data, _ := json.MarshalIndent(output, "", "  ")
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(string(data))},
		IsError: output.Summary.Failed > 0 || output.Summary.Errors > 0,
	}, nil
}

func formatErrors(all []*kvalidate.ValidationError) string {
	errs, _ := kvalidate.Split(all)
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

func formatWarnings(all []*kvalidate.ValidationError) string {
	_, warnings := kvalidate.Split(all)
	if len(warnings) == 0 {
		return ""
	}
	var b strings.Builder
	for _, w := range warnings {
		b.WriteString("\n⚠ ")
		b.WriteString(w.Error())
	}
	return b.String()
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(msg),
		},
		IsError: true,
	}
}
