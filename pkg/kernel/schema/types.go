// Package schema defines the tutorial and UI registry document types.
package schema

// API version constants.
const (
	APIVersionTutorial = "overlay/v0"
	APIVersionRegistry = "registry/v0"
)

// ---------------------------------------------------------------------------
// Geometry
// ---------------------------------------------------------------------------

// Point is a position in percent of the reference image (0..100).
type Point struct {
	X float64 `yaml:"x" json:"x"`
	Y float64 `yaml:"y" json:"y"`
}

// Rect is a percentage-based rectangle on a reference image.
type Rect struct {
	X      float64 `yaml:"x"      json:"x"`
	Y      float64 `yaml:"y"      json:"y"`
	Width  float64 `yaml:"width"  json:"width"`
	Height float64 `yaml:"height" json:"height"`
}

// Center returns the midpoint of the rectangle.
func (r Rect) Center() Point {
	return Point{X: r.X + r.Width/2, Y: r.Y + r.Height/2}
}

// ---------------------------------------------------------------------------
// Tutorial
// ---------------------------------------------------------------------------

// Tutorial is the top-level tutorial document.
type Tutorial struct {
	APIVersion  string         `yaml:"apiVersion,omitempty"  json:"apiVersion,omitempty"`
	TutorialID  string         `yaml:"tutorialId"            json:"tutorialId"`
	Title       string         `yaml:"title"                 json:"title"`
	Description string         `yaml:"description,omitempty" json:"description,omitempty"`
	Version     string         `yaml:"version,omitempty"     json:"version,omitempty"`
	Steps       []Step         `yaml:"steps"                 json:"steps"`
	Metadata    map[string]any `yaml:"metadata,omitempty"    json:"metadata,omitempty"`
}

// Step is one guided step. Everything except Checklist, Animations and
// Requires is display content the engine passes through untouched.
type Step struct {
	StepID          string          `yaml:"stepId,omitempty"          json:"stepId,omitempty"`
	StepNumber      int             `yaml:"stepNumber,omitempty"      json:"stepNumber,omitempty"`
	Title           string          `yaml:"title"                     json:"title"`
	Instruction     string          `yaml:"instruction"               json:"instruction"`
	DetailedText    string          `yaml:"detailedText,omitempty"    json:"detailedText,omitempty"`
	Checklist       []ChecklistItem `yaml:"checklist,omitempty"       json:"checklist"`
	Animations      []Directive     `yaml:"uiAnimations,omitempty"    json:"uiAnimations"`
	Requires        *Requirements   `yaml:"requires,omitempty"        json:"requires,omitempty"`
	QCChecks        []QCCheck       `yaml:"qcChecks,omitempty"        json:"qcChecks,omitempty"`
	Warnings        []string        `yaml:"warnings,omitempty"        json:"warnings,omitempty"`
	VisualStep      *VisualStep     `yaml:"visualStep,omitempty"      json:"visualStep,omitempty"`
	HostActions     []HostAction    `yaml:"hostActions,omitempty"     json:"hostActions,omitempty"`
	ExpandedContent string          `yaml:"expandedContent,omitempty" json:"expandedContent,omitempty"`

	// Redirect marks steps generated for the redirect sub-mode.
	Redirect bool `yaml:"-" json:"isRedirect,omitempty"`
}

// ChecklistItem is one required user action. The runtime state lives in
// the completion package; this is the immutable declaration.
type ChecklistItem struct {
	Text              string `yaml:"text"                        json:"text"`
	RequiredCommandID string `yaml:"requiredCommandId,omitempty" json:"requiredCommandId,omitempty"`
}

// Requirements declare the host context a step needs.
type Requirements struct {
	Workspace         string `yaml:"workspace,omitempty"         json:"workspace,omitempty"`
	Environment       string `yaml:"environment,omitempty"       json:"environment,omitempty"`
	HasActiveDocument bool   `yaml:"hasActiveDocument,omitempty" json:"hasActiveDocument,omitempty"`
	HasActiveSketch   bool   `yaml:"hasActiveSketch,omitempty"   json:"hasActiveSketch,omitempty"`
	Reason            string `yaml:"reason,omitempty"            json:"reason,omitempty"`
}

// IsZero reports whether no requirement is set.
func (r *Requirements) IsZero() bool {
	return r == nil || (r.Workspace == "" && r.Environment == "" && !r.HasActiveDocument && !r.HasActiveSketch)
}

// QCCheck is a quality check run against the host's design state. Either
// Type (a named check) or Expr (an expression) is set.
type QCCheck struct {
	Type            string `yaml:"type,omitempty"            json:"type,omitempty"`
	Expected        any    `yaml:"expected,omitempty"        json:"expected,omitempty"`
	Expr            string `yaml:"expr,omitempty"            json:"expr,omitempty"`
	Text            string `yaml:"text,omitempty"            json:"text,omitempty"`
	ExpectedCommand string `yaml:"expectedCommand,omitempty" json:"expectedCommand,omitempty"`
}

// VisualStep selects the reference image shown when the step loads.
type VisualStep struct {
	ReferenceImage string `yaml:"referenceImage,omitempty" json:"referenceImage,omitempty"`
	Environment    string `yaml:"environment,omitempty"    json:"environment,omitempty"`
	ImageIndex     int    `yaml:"imageIndex,omitempty"     json:"imageIndex,omitempty"`
}

// HostAction is an action the host performs on step load (camera framing,
// selection prompts). The engine forwards these without interpreting them.
type HostAction struct {
	Type   string         `yaml:"type"             json:"type"`
	Params map[string]any `yaml:"params,omitempty" json:"params,omitempty"`
}

// ---------------------------------------------------------------------------
// Directives
// ---------------------------------------------------------------------------

// DirectiveType enumerates the animation directive kinds.
type DirectiveType string

const (
	DirectiveMove      DirectiveType = "move"
	DirectiveClick     DirectiveType = "click"
	DirectiveDrag      DirectiveType = "drag"
	DirectivePause     DirectiveType = "pause"
	DirectiveHighlight DirectiveType = "highlight"
	DirectiveTooltip   DirectiveType = "tooltip"
	DirectiveArrow     DirectiveType = "arrow"
)

// DirectiveTypes lists every directive kind in declaration order.
var DirectiveTypes = []DirectiveType{
	DirectiveMove, DirectiveClick, DirectiveDrag, DirectivePause,
	DirectiveHighlight, DirectiveTooltip, DirectiveArrow,
}

// Directive is the wire form of an animation directive. Fields are
// populated based on Type; the animate package decodes it into a typed
// action.
type Directive struct {
	Type     DirectiveType `yaml:"type"               json:"type" jsonschema:"enum=move,enum=click,enum=drag,enum=pause,enum=highlight,enum=tooltip,enum=arrow"`
	From     *Point        `yaml:"from,omitempty"     json:"from,omitempty"`
	To       *Point        `yaml:"to,omitempty"       json:"to,omitempty"`
	At       *Point        `yaml:"at,omitempty"       json:"at,omitempty"`
	Duration int           `yaml:"duration,omitempty" json:"duration,omitempty"` // milliseconds
	Target   string        `yaml:"target,omitempty"   json:"target,omitempty"`
	Text     string        `yaml:"text,omitempty"     json:"text,omitempty"`
	Style    string        `yaml:"style,omitempty"    json:"style,omitempty"`
}

// ---------------------------------------------------------------------------
// UI registry
// ---------------------------------------------------------------------------

// RegistryDocument describes the component map of every environment.
type RegistryDocument struct {
	APIVersion   string           `yaml:"apiVersion,omitempty" json:"apiVersion,omitempty"`
	Environments []EnvironmentDef `yaml:"environments"         json:"environments"`
}

// EnvironmentDef is one UI variant: its reference images and component
// groups. Group and component keys are joined with "." to form local keys.
type EnvironmentDef struct {
	Name   string                             `yaml:"name"             json:"name"`
	Images []string                           `yaml:"images,omitempty" json:"images,omitempty"`
	Groups map[string]map[string]ComponentDef `yaml:"groups"           json:"groups"`
}

// ComponentDef is one positioned UI affordance.
type ComponentDef struct {
	Position   Rect   `yaml:"position"             json:"position"`
	Label      string `yaml:"label,omitempty"      json:"label,omitempty"`
	ImageIndex int    `yaml:"imageIndex,omitempty" json:"imageIndex,omitempty"`
}
