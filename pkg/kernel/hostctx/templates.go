package hostctx

import (
	"fmt"
	"strings"

	"github.com/ormasoftchile/overlay/pkg/kernel/schema"
)

// RedirectKind groups redirect templates.
type RedirectKind string

const (
	RedirectSwitchEnvironment RedirectKind = "switchEnvironment"
	RedirectSwitchWorkspace   RedirectKind = "switchWorkspace"
	RedirectOpenDocument      RedirectKind = "openDocument"
	RedirectExitSketch        RedirectKind = "exitSketch"
)

// Template is canned redirect guidance.
type Template struct {
	Title          string
	Instruction    string
	ReferenceImage string
	Animations     []schema.Directive
}

// Redirect is the guidance shown while the user changes context.
type Redirect struct {
	Step            schema.Step          `json:"step"`
	Kind            RedirectKind         `json:"kind,omitempty"`
	Mismatch        Mismatch             `json:"mismatch"`
	PendingIndex    int                  `json:"pendingIndex"`
	Reason          string               `json:"reason"`
	FromTemplate    bool                 `json:"fromTemplate"`
	RequiredContext *schema.Requirements `json:"requiredContext,omitempty"`
}

func p(x, y float64) *schema.Point { return &schema.Point{X: x, Y: y} }

func tabClick(x, y float64) []schema.Directive {
	return []schema.Directive{
		{Type: schema.DirectiveMove, From: p(50, 50), To: p(x, y), Duration: 500},
		{Type: schema.DirectiveClick, At: p(x, y)},
		{Type: schema.DirectivePause, Duration: 300},
	}
}

func menuPick(y float64) []schema.Directive {
	return []schema.Directive{
		{Type: schema.DirectiveMove, From: p(50, 50), To: p(10, 5), Duration: 500},
		{Type: schema.DirectiveClick, At: p(10, 5)},
		{Type: schema.DirectivePause, Duration: 400},
		{Type: schema.DirectiveMove, From: p(10, 5), To: p(10, y), Duration: 300},
		{Type: schema.DirectiveClick, At: p(10, y)},
	}
}

func switchWorkspace(name string, y float64) Template {
	return Template{
		Title:          fmt.Sprintf("Switch to %s Workspace", name),
		Instruction:    fmt.Sprintf("Click the workspace dropdown at the top-left and select '%s'.", name),
		ReferenceImage: "workspace_selector.png",
		Animations:     menuPick(y),
	}
}

// Templates is the built-in redirect library, keyed by kind then by the
// lower-cased target ("default" for kinds without a target).
var Templates = map[RedirectKind]map[string]Template{
	RedirectSwitchEnvironment: {
		"solid": {
			Title:          "Switch to Solid Environment",
			Instruction:    "Click the SOLID tab in the Design toolbar to access solid modeling tools.",
			ReferenceImage: "design_tabs.png",
			Animations:     tabClick(20, 10),
		},
		"surface": {
			Title:          "Switch to Surface Environment",
			Instruction:    "Click the SURFACE tab in the Design toolbar to access surface modeling tools.",
			ReferenceImage: "design_tabs.png",
			Animations:     tabClick(35, 10),
		},
		"sheet metal": {
			Title:          "Switch to Sheet Metal Environment",
			Instruction:    "Click the SHEET METAL tab in the Design toolbar to access sheet metal tools.",
			ReferenceImage: "design_tabs.png",
			Animations:     tabClick(50, 10),
		},
		"mesh": {
			Title:          "Switch to Mesh Environment",
			Instruction:    "Click the MESH tab in the Design toolbar to access mesh editing tools.",
			ReferenceImage: "design_tabs.png",
			Animations:     tabClick(65, 10),
		},
		"sketch": {
			Title:          "Enter Sketch Mode",
			Instruction:    "Double-click a sketch in the timeline or browser, or click Create Sketch to start a new one.",
			ReferenceImage: "sketch_mode.png",
			Animations: []schema.Directive{
				{Type: schema.DirectiveMove, From: p(50, 50), To: p(30, 80), Duration: 500},
				{Type: schema.DirectiveClick, At: p(30, 80)},
				{Type: schema.DirectiveClick, At: p(30, 80)},
				{Type: schema.DirectivePause, Duration: 300},
			},
		},
		"form": {
			Title:          "Switch to Form (T-Spline) Environment",
			Instruction:    "Click Create Form in the toolbar, or double-click an existing Form feature.",
			ReferenceImage: "form_mode.png",
			Animations:     tabClick(80, 10),
		},
	},
	RedirectSwitchWorkspace: {
		"design":      switchWorkspace("Design", 20),
		"render":      switchWorkspace("Render", 30),
		"manufacture": switchWorkspace("Manufacture", 40),
		"simulation":  switchWorkspace("Simulation", 50),
		"drawing":     switchWorkspace("Drawing", 60),
	},
	RedirectOpenDocument: {
		"default": {
			Title:          "Open a Document",
			Instruction:    "Open an existing design or create a new one from File > New Design.",
			ReferenceImage: "new_design.png",
			Animations:     tabClick(5, 5),
		},
	},
	RedirectExitSketch: {
		"default": {
			Title:          "Exit Sketch Mode",
			Instruction:    "Click 'Finish Sketch' in the toolbar or press Escape to exit sketch editing.",
			ReferenceImage: "finish_sketch.png",
			Animations:     tabClick(90, 10),
		},
	},
}

// LookupTemplate returns the template for kind/target.
func LookupTemplate(kind RedirectKind, target string) (Template, bool) {
	t, ok := Templates[kind][strings.ToLower(target)]
	return t, ok
}

// BuildRedirect returns redirect guidance for the first unmet requirement
// of req, or false when ctx already satisfies it. Mismatches without a
// template get a generic step with no animations.
func BuildRedirect(ctx Context, req *schema.Requirements, pendingIndex int) (Redirect, bool) {
	mm := Mismatches(ctx, req)
	if len(mm) == 0 {
		return Redirect{}, false
	}
	m := mm[0]

	var kind RedirectKind
	var tmpl Template
	var ok bool
	switch m.Type {
	case MismatchWorkspace:
		kind = RedirectSwitchWorkspace
		tmpl, ok = LookupTemplate(kind, m.Required)
	case MismatchEnvironment:
		// Leaving a sketch for a non-sketch environment is an exit, not a tab switch.
		if strings.EqualFold(m.Current, "Sketch") && !strings.EqualFold(m.Required, "Sketch") {
			if t, found := LookupTemplate(RedirectExitSketch, "default"); found {
				kind, tmpl, ok = RedirectExitSketch, t, true
				break
			}
		}
		kind = RedirectSwitchEnvironment
		tmpl, ok = LookupTemplate(kind, m.Required)
	case MismatchDocument:
		kind = RedirectOpenDocument
		tmpl, ok = LookupTemplate(kind, "default")
	case MismatchSketch:
		kind = RedirectSwitchEnvironment
		tmpl, ok = LookupTemplate(kind, "sketch")
	}

	r := Redirect{
		Kind:            kind,
		Mismatch:        m,
		PendingIndex:    pendingIndex,
		Reason:          Reason(req),
		FromTemplate:    ok,
		RequiredContext: req,
	}
	if !ok {
		r.Step = schema.Step{
			Title:       fmt.Sprintf("Navigate to %s", m.Required),
			Instruction: m.Message,
		}
	} else {
		anims := make([]schema.Directive, len(tmpl.Animations))
		copy(anims, tmpl.Animations)
		r.Step = schema.Step{
			Title:       tmpl.Title,
			Instruction: tmpl.Instruction,
			Animations:  anims,
			VisualStep:  &schema.VisualStep{ReferenceImage: tmpl.ReferenceImage},
		}
	}
	r.Step.Redirect = true
	r.Step.DetailedText = r.Reason
	schema.NormalizeStep(&r.Step)
	return r, true
}
