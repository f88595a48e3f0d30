package engine

import (
	"sync"

	"github.com/ormasoftchile/overlay/pkg/kernel/completion"
	"github.com/ormasoftchile/overlay/pkg/kernel/hostctx"
	"github.com/ormasoftchile/overlay/pkg/kernel/schema"
)

// NoticeKind names an outbound notification. The values double as the
// JSON-RPC notification methods of the host bridge.
type NoticeKind string

const (
	NoticeStepLoaded       NoticeKind = "step/loaded"
	NoticeStepRequest      NoticeKind = "step/request"
	NoticeChecklistChanged NoticeKind = "checklist/changed"
	NoticeNavState         NoticeKind = "nav/state"
	NoticeRedirectStarted  NoticeKind = "redirect/started"
	NoticeRedirectResolved NoticeKind = "redirect/resolved"
	NoticeRedirectAsk      NoticeKind = "redirect/ask"
	NoticeContextWarning   NoticeKind = "context/warning"
	NoticeContextCleared   NoticeKind = "context/cleared"
)

// Notice is one outbound notification. Data holds one of the payload
// types below.
type Notice struct {
	Kind NoticeKind
	Data any
}

// StepLoaded is the payload of step/loaded.
type StepLoaded struct {
	Index        int         `json:"index"`
	Total        int         `json:"total"`
	Step         schema.Step `json:"step"`
	Redirect     bool        `json:"redirect,omitempty"`
	PendingIndex int         `json:"pendingIndex,omitempty"`
}

// StepRequest is the payload of step/request.
type StepRequest struct {
	Index int `json:"index"`
}

// ChecklistChanged is the payload of checklist/changed.
type ChecklistChanged struct {
	Index       int                     `json:"index"`
	Items       []completion.Item       `json:"items"`
	Transitions []completion.Transition `json:"transitions,omitempty"`
	Complete    bool                    `json:"complete"`
}

// NavState is the payload of nav/state.
type NavState struct {
	Index    int  `json:"index"`
	Total    int  `json:"total"`
	Mode     Mode `json:"mode"`
	CanPrev  bool `json:"canPrev"`
	CanNext  bool `json:"canNext"`
	Complete bool `json:"complete"`
}

// RedirectStarted is the payload of redirect/started.
type RedirectStarted struct {
	PendingIndex int         `json:"pendingIndex"`
	Step         schema.Step `json:"step"`
}

// RedirectResolved is the payload of redirect/resolved.
type RedirectResolved struct {
	PendingIndex int  `json:"pendingIndex"`
	Resolved     bool `json:"resolved"`
}

// ContextIssue is the payload of redirect/ask and context/warning.
type ContextIssue struct {
	TargetIndex int                  `json:"targetIndex"`
	Reason      string               `json:"reason"`
	Mismatches  []hostctx.Mismatch   `json:"mismatches"`
	Required    *schema.Requirements `json:"required,omitempty"`
}

// Sink receives notifications. Notify is called with the machine lock
// held and must not call back into the machine.
type Sink interface {
	Notify(n Notice)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Notice)

// Notify calls f(n).
func (f SinkFunc) Notify(n Notice) { f(n) }

type nopSink struct{}

func (nopSink) Notify(Notice) {}

// RecordingSink keeps every notice in memory.
type RecordingSink struct {
	mu      sync.Mutex
	notices []Notice
}

// Notify appends n.
func (r *RecordingSink) Notify(n Notice) {
	r.mu.Lock()
	r.notices = append(r.notices, n)
	r.mu.Unlock()
}

// Notices returns a copy of the recorded notices.
func (r *RecordingSink) Notices() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notice, len(r.notices))
	copy(out, r.notices)
	return out
}

// Kinds returns the recorded kinds in order, optionally filtered.
func (r *RecordingSink) Kinds(only ...NoticeKind) []NoticeKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []NoticeKind
	for _, n := range r.notices {
		if len(only) == 0 || hasKind(only, n.Kind) {
			out = append(out, n.Kind)
		}
	}
	return out
}

// Last returns the most recent notice of kind.
func (r *RecordingSink) Last(kind NoticeKind) (Notice, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.notices) - 1; i >= 0; i-- {
		if r.notices[i].Kind == kind {
			return r.notices[i], true
		}
	}
	return Notice{}, false
}

// Reset forgets all notices.
func (r *RecordingSink) Reset() {
	r.mu.Lock()
	r.notices = nil
	r.mu.Unlock()
}

func hasKind(set []NoticeKind, k NoticeKind) bool {
	for _, x := range set {
		if x == k {
			return true
		}
	}
	return false
}
