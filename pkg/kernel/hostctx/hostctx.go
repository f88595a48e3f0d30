// Package hostctx compares the host application's current context with a
// step's requirements and builds the redirect steps that guide the user
// from one to the other.
package hostctx

import (
	"fmt"
	"strings"

	"github.com/ormasoftchile/overlay/pkg/kernel/schema"
)

// Workspaces known to the host.
var Workspaces = []string{"Design", "Render", "Animation", "Simulation", "Manufacture", "Drawing", "Generative"}

// Environments known to the host's Design workspace.
var Environments = []string{"Solid", "Surface", "Sheet Metal", "Plastic", "Mesh", "Sketch", "Form"}

// Unknown is reported when the host cannot determine a value.
const Unknown = "Unknown"

// Context is a snapshot of the host UI state.
type Context struct {
	Workspace         string `json:"workspace"          yaml:"workspace"`
	Environment       string `json:"environment"        yaml:"environment"`
	HasActiveDocument bool   `json:"hasActiveDocument"  yaml:"hasActiveDocument"`
	HasActiveSketch   bool   `json:"hasActiveSketch"    yaml:"hasActiveSketch"`
	DocumentName      string `json:"documentName,omitempty" yaml:"documentName,omitempty"`
}

// UnknownContext is the context before the host has reported anything.
func UnknownContext() Context {
	return Context{Workspace: Unknown, Environment: Unknown}
}

// MismatchType names the requirement that is not met.
type MismatchType string

const (
	MismatchWorkspace   MismatchType = "workspace"
	MismatchEnvironment MismatchType = "environment"
	MismatchDocument    MismatchType = "document"
	MismatchSketch      MismatchType = "sketch"
)

// Mismatch describes one unmet requirement.
type Mismatch struct {
	Type     MismatchType `json:"type"`
	Current  string       `json:"current"`
	Required string       `json:"required"`
	Message  string       `json:"message"`
}

// Matches reports whether ctx satisfies req. Names compare case-insensitively.
func Matches(ctx Context, req *schema.Requirements) bool {
	return len(Mismatches(ctx, req)) == 0
}

// Mismatches lists every requirement ctx does not satisfy, in the order
// workspace, environment, document, sketch.
func Mismatches(ctx Context, req *schema.Requirements) []Mismatch {
	if req.IsZero() {
		return nil
	}
	var out []Mismatch
	if req.Workspace != "" && !strings.EqualFold(ctx.Workspace, req.Workspace) {
		out = append(out, Mismatch{
			Type:     MismatchWorkspace,
			Current:  ctx.Workspace,
			Required: req.Workspace,
			Message:  fmt.Sprintf("Switch from %s to %s workspace", ctx.Workspace, req.Workspace),
		})
	}
	if req.Environment != "" && !strings.EqualFold(ctx.Environment, req.Environment) {
		out = append(out, Mismatch{
			Type:     MismatchEnvironment,
			Current:  ctx.Environment,
			Required: req.Environment,
			Message:  fmt.Sprintf("Switch from %s to %s environment", ctx.Environment, req.Environment),
		})
	}
	if req.HasActiveDocument && !ctx.HasActiveDocument {
		out = append(out, Mismatch{
			Type: MismatchDocument, Current: "false", Required: "true",
			Message: "Open a document to continue",
		})
	}
	if req.HasActiveSketch && !ctx.HasActiveSketch {
		out = append(out, Mismatch{
			Type: MismatchSketch, Current: "false", Required: "true",
			Message: "Enter sketch edit mode to continue",
		})
	}
	return out
}

// Reason returns the requirement's reason or a generic one.
func Reason(req *schema.Requirements) string {
	if req != nil && req.Reason != "" {
		return req.Reason
	}
	return "This step requires a specific context"
}

// IsKnownWorkspace reports whether name is a known workspace.
func IsKnownWorkspace(name string) bool { return containsFold(Workspaces, name) }

// IsKnownEnvironment reports whether name is a known environment.
func IsKnownEnvironment(name string) bool { return containsFold(Environments, name) }

func containsFold(list []string, s string) bool {
	for _, x := range list {
		if strings.EqualFold(x, s) {
			return true
		}
	}
	return false
}

// Guidance is the user's consent for automatic context redirects.
type Guidance string

const (
	// GuidanceOn enters a redirect automatically.
	GuidanceOn Guidance = "ON"
	// GuidanceAsk asks before redirecting.
	GuidanceAsk Guidance = "ASK"
	// GuidanceOff navigates anyway and shows a warning.
	GuidanceOff Guidance = "OFF"
)

// ParseGuidance parses ON, ASK or OFF in any case.
func ParseGuidance(s string) (Guidance, error) {
	switch g := Guidance(strings.ToUpper(strings.TrimSpace(s))); g {
	case GuidanceOn, GuidanceAsk, GuidanceOff:
		return g, nil
	}
	return "", fmt.Errorf("unknown guidance mode %q (want ON, ASK or OFF)", s)
}
