// Package animate plays cursor and highlight directives against a Surface.
package animate

import (
	"fmt"
	"time"

	"github.com/ormasoftchile/overlay/pkg/kernel/schema"
)

// Default durations per directive kind.
const (
	DefaultMoveDuration      = 500 * time.Millisecond
	DefaultClickDuration     = 300 * time.Millisecond
	DefaultDragDuration      = 800 * time.Millisecond
	DefaultPauseDuration     = 500 * time.Millisecond
	DefaultHighlightDuration = 2 * time.Second
	DefaultArrowDuration     = 2 * time.Second
	DefaultTooltipDuration   = 3 * time.Second

	// glideDuration is how long the cursor takes to reach a highlighted target.
	glideDuration = 400 * time.Millisecond
)

// Action is one decoded directive. The set of implementations is closed:
// Move, Click, Drag, Pause, Highlight, Tooltip, Arrow.
type Action interface {
	Kind() schema.DirectiveType
	action()
}

// Move glides the cursor between two points.
type Move struct {
	From, To schema.Point
	Duration time.Duration
}

// Click shows a ripple at a point.
type Click struct {
	At       schema.Point
	Duration time.Duration
}

// Drag is click, pressed move, click.
type Drag struct {
	From, To schema.Point
	Duration time.Duration
}

// Pause waits.
type Pause struct {
	Duration time.Duration
}

// Highlight outlines a resolved target.
type Highlight struct {
	Target   string
	Text     string
	Style    string
	Duration time.Duration
}

// Tooltip shows text next to a resolved target.
type Tooltip struct {
	Target   string
	Text     string
	Duration time.Duration
}

// Arrow points at a resolved target.
type Arrow struct {
	Target   string
	Text     string
	Style    string
	Duration time.Duration
}

func (Move) Kind() schema.DirectiveType      { return schema.DirectiveMove }
func (Click) Kind() schema.DirectiveType     { return schema.DirectiveClick }
func (Drag) Kind() schema.DirectiveType      { return schema.DirectiveDrag }
func (Pause) Kind() schema.DirectiveType     { return schema.DirectivePause }
func (Highlight) Kind() schema.DirectiveType { return schema.DirectiveHighlight }
func (Tooltip) Kind() schema.DirectiveType   { return schema.DirectiveTooltip }
func (Arrow) Kind() schema.DirectiveType     { return schema.DirectiveArrow }

func (Move) action()      {}
func (Click) action()     {}
func (Drag) action()      {}
func (Pause) action()     {}
func (Highlight) action() {}
func (Tooltip) action()   {}
func (Arrow) action()     {}

var center = schema.Point{X: 50, Y: 50}

// Decode converts a wire directive into an Action, filling defaults.
func Decode(d schema.Directive) (Action, error) {
	dur := time.Duration(d.Duration) * time.Millisecond
	if d.Duration < 0 {
		return nil, fmt.Errorf("%s: negative duration %d", d.Type, d.Duration)
	}
	orDefault := func(def time.Duration) time.Duration {
		if dur == 0 {
			return def
		}
		return dur
	}

	switch d.Type {
	case schema.DirectiveMove:
		if d.To == nil {
			return nil, fmt.Errorf("move: 'to' is required")
		}
		from := center
		if d.From != nil {
			from = *d.From
		}
		return Move{From: from, To: *d.To, Duration: orDefault(DefaultMoveDuration)}, nil
	case schema.DirectiveClick:
		at := d.At
		if at == nil {
			at = d.To
		}
		if at == nil {
			return nil, fmt.Errorf("click: 'at' is required")
		}
		return Click{At: *at, Duration: orDefault(DefaultClickDuration)}, nil
	case schema.DirectiveDrag:
		if d.From == nil || d.To == nil {
			return nil, fmt.Errorf("drag: 'from' and 'to' are required")
		}
		return Drag{From: *d.From, To: *d.To, Duration: orDefault(DefaultDragDuration)}, nil
	case schema.DirectivePause:
		return Pause{Duration: orDefault(DefaultPauseDuration)}, nil
	case schema.DirectiveHighlight:
		if d.Target == "" {
			return nil, fmt.Errorf("highlight: 'target' is required")
		}
		return Highlight{Target: d.Target, Text: d.Text, Style: d.Style, Duration: orDefault(DefaultHighlightDuration)}, nil
	case schema.DirectiveTooltip:
		if d.Target == "" {
			return nil, fmt.Errorf("tooltip: 'target' is required")
		}
		return Tooltip{Target: d.Target, Text: d.Text, Duration: orDefault(DefaultTooltipDuration)}, nil
	case schema.DirectiveArrow:
		if d.Target == "" {
			return nil, fmt.Errorf("arrow: 'target' is required")
		}
		return Arrow{Target: d.Target, Text: d.Text, Style: d.Style, Duration: orDefault(DefaultArrowDuration)}, nil
	default:
		return nil, fmt.Errorf("unknown directive type %q", d.Type)
	}
}

// DecodeAll decodes a directive list. Invalid directives are dropped and
// reported with their index; the rest keep their order.
func DecodeAll(ds []schema.Directive) ([]Action, []error) {
	actions := make([]Action, 0, len(ds))
	var errs []error
	for i, d := range ds {
		a, err := Decode(d)
		if err != nil {
			errs = append(errs, fmt.Errorf("uiAnimations[%d]: %w", i, err))
			continue
		}
		actions = append(actions, a)
	}
	return actions, errs
}

// Duration returns the nominal running time of a sequence.
func Duration(actions []Action) time.Duration {
	var total time.Duration
	for _, a := range actions {
		switch a := a.(type) {
		case Move:
			total += a.Duration
		case Click:
			total += a.Duration
		case Drag:
			total += 2*DefaultClickDuration + a.Duration
		case Pause:
			total += a.Duration
		case Highlight:
			total += a.Duration
		case Tooltip:
			total += a.Duration
		case Arrow:
			total += a.Duration
		}
	}
	return total
}
