// Package completion correlates host completion events with the checklist
// of the loaded step.
package completion

import (
	"strings"

	"github.com/ormasoftchile/overlay/pkg/kernel/schema"
)

// State is the progress of one checklist item.
type State string

const (
	StatePending   State = "pending"
	StateChecking  State = "checking"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// EventType is the semantic type of a host completion event.
type EventType string

const (
	EventSketchCreated         EventType = "sketch_created"
	EventSketchFinished        EventType = "sketch_finished"
	EventFeatureCreated        EventType = "feature_created"
	EventExtrudeCreated        EventType = "extrude_created"
	EventFilletCreated         EventType = "fillet_created"
	EventChamferCreated        EventType = "chamfer_created"
	EventRevolveCreated        EventType = "revolve_created"
	EventSweepCreated          EventType = "sweep_created"
	EventShellCreated          EventType = "shell_created"
	EventBodyCreated           EventType = "body_created"
	EventComponentCreated      EventType = "component_created"
	EventSelectionChanged      EventType = "selection_changed"
	EventActiveDocumentChanged EventType = "active_document_changed"
	EventCommandStarted        EventType = "command_started"
	EventCommandTerminated     EventType = "command_terminated"
	EventCommandCancelled      EventType = "command_cancelled"
)

// Class groups event types by the transition they drive.
type Class int

const (
	ClassNone       Class = iota
	ClassStarted          // pending → checking, first match only
	ClassTerminated       // → completed, at most one match
	ClassStructural       // → completed, every match
	ClassCancelled        // checking → failed, first match only
)

func (c Class) String() string {
	switch c {
	case ClassStarted:
		return "started"
	case ClassTerminated:
		return "terminated"
	case ClassStructural:
		return "structural"
	case ClassCancelled:
		return "cancelled"
	default:
		return "none"
	}
}

// Event is a completion notification from the host.
type Event struct {
	SemanticType EventType `json:"semanticType" yaml:"semanticType"`
	CommandID    string    `json:"commandId,omitempty" yaml:"commandId,omitempty"`
}

// Class returns the transition class of the event.
func (e Event) Class() Class {
	switch e.SemanticType {
	case EventCommandStarted:
		return ClassStarted
	case EventCommandTerminated:
		return ClassTerminated
	case EventCommandCancelled:
		return ClassCancelled
	case EventSketchFinished:
		return ClassStructural
	}
	if strings.HasSuffix(string(e.SemanticType), "_created") {
		return ClassStructural
	}
	return ClassNone
}

// Item is a checklist item together with its runtime state.
type Item struct {
	schema.ChecklistItem
	State State `json:"state"`
}

// NewChecklist returns runtime items for a step's checklist, all pending.
func NewChecklist(decl []schema.ChecklistItem) []Item {
	items := make([]Item, len(decl))
	for i, d := range decl {
		items[i] = Item{ChecklistItem: d, State: StatePending}
	}
	return items
}

// Reset puts every item back to pending.
func Reset(items []Item) {
	for i := range items {
		items[i].State = StatePending
	}
}

// Done reports whether every item is completed.
func Done(items []Item) bool {
	for _, it := range items {
		if it.State != StateCompleted {
			return false
		}
	}
	return true
}

// Transition records one item state change.
type Transition struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
	From  State  `json:"from"`
	To    State  `json:"to"`
	Rule  Rule   `json:"rule"`
}

// Rule names the precedence tier that matched an item.
type Rule string

const (
	RuleExplicit  Rule = "explicit"
	RuleMapping   Rule = "mapping"
	RuleHeuristic Rule = "heuristic"
)
