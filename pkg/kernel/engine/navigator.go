package engine

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/ormasoftchile/overlay/pkg/kernel/completion"
	"github.com/ormasoftchile/overlay/pkg/kernel/hostctx"
	"github.com/ormasoftchile/overlay/pkg/kernel/schema"
	"github.com/ormasoftchile/overlay/pkg/kernel/trace"
)

// ErrNothingPending is returned by Accept when no redirect is awaiting
// the user's answer.
var ErrNothingPending = errors.New("no redirect awaiting confirmation")

// Navigator guards navigation with the host context. Before a step loads,
// its requirements are compared with the last reported context and the
// guidance mode decides whether to redirect, ask or warn.
type Navigator struct {
	m      *Machine
	sink   Sink
	trace  *trace.Writer
	logger *zap.Logger

	mu           sync.Mutex
	guidance     hostctx.Guidance
	showWarnings bool
	ctx          hostctx.Context
	known        bool
	asking       *ContextIssue
	warning      *ContextIssue
	required     *schema.Requirements
}

// NavigatorOption configures a Navigator.
type NavigatorOption func(*Navigator)

// WithGuidance sets the initial guidance mode.
func WithGuidance(g hostctx.Guidance) NavigatorOption {
	return func(n *Navigator) { n.guidance = g }
}

// WithWarnings toggles context warnings in OFF mode.
func WithWarnings(show bool) NavigatorOption {
	return func(n *Navigator) { n.showWarnings = show }
}

// NewNavigator wraps m. It shares the machine's sink, trace and logger.
func NewNavigator(m *Machine, opts ...NavigatorOption) *Navigator {
	n := &Navigator{
		m:            m,
		sink:         m.sink,
		trace:        m.trace,
		logger:       m.logger.Named("nav"),
		guidance:     hostctx.GuidanceAsk,
		showWarnings: true,
		ctx:          hostctx.UnknownContext(),
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

// Machine returns the wrapped machine.
func (n *Navigator) Machine() *Machine { return n.m }

// Guidance returns the current guidance mode.
func (n *Navigator) Guidance() hostctx.Guidance {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.guidance
}

// SetGuidance changes the guidance mode.
func (n *Navigator) SetGuidance(g hostctx.Guidance) {
	n.mu.Lock()
	n.guidance = g
	n.mu.Unlock()
}

// SetWarnings toggles context warnings.
func (n *Navigator) SetWarnings(show bool) {
	n.mu.Lock()
	n.showWarnings = show
	n.mu.Unlock()
}

// Context returns the last reported host context.
func (n *Navigator) Context() hostctx.Context {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ctx
}

// Start opens the session and loads the first step, subject to its
// requirements.
func (n *Navigator) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.m.Open(); err != nil {
		return err
	}
	return n.navigateLocked(0)
}

// Next navigates to the following step.
func (n *Navigator) Next() error {
	if n.m.Mode() == ModeRedirecting {
		return n.m.Next()
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.navigateLocked(n.m.Index() + 1)
}

// Prev navigates to the preceding step.
func (n *Navigator) Prev() error {
	if n.m.Mode() == ModeRedirecting {
		return n.m.Prev()
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.navigateLocked(n.m.Index() - 1)
}

// GoTo navigates to step i.
func (n *Navigator) GoTo(i int) error {
	if n.m.Mode() == ModeRedirecting {
		return n.m.GoToStep(i)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.navigateLocked(i)
}

// Replay restarts the active sequence.
func (n *Navigator) Replay() { n.m.Replay() }

// Completion applies a host completion event.
func (n *Navigator) Completion(ev completion.Event) []completion.Transition {
	return n.m.ApplyCompletion(ev)
}

// Accept answers an outstanding redirect question with yes.
func (n *Navigator) Accept() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.asking == nil {
		return ErrNothingPending
	}
	issue := n.asking
	n.asking = nil
	return n.redirectLocked(issue.TargetIndex, issue.Required)
}

// Skip declines an outstanding question or abandons the active redirect.
// The target step loads either way; if the context still does not match,
// a warning is raised.
func (n *Navigator) Skip() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	target := -1
	if pending, ok := n.m.Skip(); ok {
		target = pending
	} else if n.asking != nil {
		target = n.asking.TargetIndex
	}
	n.asking = nil
	n.required = nil
	if target < 0 {
		return ErrNothingPending
	}
	return n.loadWithWarningLocked(target)
}

// UpdateContext records a host context notification. A context that
// satisfies the active redirect resolves it; one that satisfies an
// outstanding warning or question clears it.
func (n *Navigator) UpdateContext(c hostctx.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ctx = c
	n.known = true
	if env := strings.ToLower(c.Environment); n.m.resolver.Registry().HasEnvironment(env) {
		n.m.resolver.SetActive(env)
	}
	n.trace.Emit(trace.EventContextChanged, map[string]any{
		"workspace":   c.Workspace,
		"environment": c.Environment,
		"document":    c.HasActiveDocument,
		"sketch":      c.HasActiveSketch,
	})

	if n.m.Mode() == ModeRedirecting && n.required != nil && hostctx.Matches(c, n.required) {
		n.required = nil
		n.m.ContextResolved()
	}
	if n.warning != nil && hostctx.Matches(c, n.warning.Required) {
		n.logger.Debug("context warning cleared", zap.Int("index", n.warning.TargetIndex))
		n.warning = nil
		n.notify(NoticeContextCleared, nil)
	}
	if n.asking != nil && hostctx.Matches(c, n.asking.Required) {
		target := n.asking.TargetIndex
		n.asking = nil
		return n.m.GoToStep(target)
	}
	return nil
}

// Pending returns the outstanding redirect question, if any.
func (n *Navigator) Pending() (ContextIssue, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.asking == nil {
		return ContextIssue{}, false
	}
	return *n.asking, true
}

// Warning returns the outstanding context warning, if any.
func (n *Navigator) Warning() (ContextIssue, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.warning == nil {
		return ContextIssue{}, false
	}
	return *n.warning, true
}

func (n *Navigator) navigateLocked(i int) error {
	step, err := n.peek(i)
	if err != nil {
		return err
	}
	n.asking = nil
	issue, mismatched := n.checkLocked(i, step.Requires)
	if !mismatched {
		n.clearWarningLocked()
		return n.m.GoToStep(i)
	}

	switch n.guidance {
	case hostctx.GuidanceOn:
		return n.redirectLocked(i, step.Requires)
	case hostctx.GuidanceAsk:
		n.asking = &issue
		n.logger.Info("asking before redirect", zap.Int("index", i), zap.String("reason", issue.Reason))
		n.notify(NoticeRedirectAsk, issue)
		return nil
	default:
		return n.loadWithWarningLocked(i)
	}
}

func (n *Navigator) redirectLocked(i int, req *schema.Requirements) error {
	r, ok := hostctx.BuildRedirect(n.ctx, req, i)
	if !ok {
		return n.m.GoToStep(i)
	}
	n.clearWarningLocked()
	n.required = req
	n.m.EnterRedirect(r.Step, i)
	return nil
}

func (n *Navigator) loadWithWarningLocked(i int) error {
	step, err := n.peek(i)
	if err != nil {
		return err
	}
	if err := n.m.GoToStep(i); err != nil {
		return err
	}
	issue, mismatched := n.checkLocked(i, step.Requires)
	if !mismatched {
		n.clearWarningLocked()
		return nil
	}
	n.warning = &issue
	if n.showWarnings {
		n.notify(NoticeContextWarning, issue)
	}
	return nil
}

func (n *Navigator) checkLocked(i int, req *schema.Requirements) (ContextIssue, bool) {
	if !n.known || req.IsZero() {
		return ContextIssue{}, false
	}
	mm := hostctx.Mismatches(n.ctx, req)
	if len(mm) == 0 {
		return ContextIssue{}, false
	}
	return ContextIssue{
		TargetIndex: i,
		Reason:      hostctx.Reason(req),
		Mismatches:  mm,
		Required:    req,
	}, true
}

func (n *Navigator) clearWarningLocked() {
	if n.warning == nil {
		return
	}
	n.warning = nil
	n.notify(NoticeContextCleared, nil)
}

func (n *Navigator) peek(i int) (schema.Step, error) {
	n.m.mu.Lock()
	src := n.m.src
	n.m.mu.Unlock()
	if src == nil || src.Len() == 0 {
		return schema.Step{}, ErrNoTutorial
	}
	if i < 0 || i >= src.Len() {
		return schema.Step{}, fmt.Errorf("step %d of %d: %w", i, src.Len(), ErrOutOfRange)
	}
	return src.Step(i)
}

func (n *Navigator) notify(kind NoticeKind, data any) {
	n.sink.Notify(Notice{Kind: kind, Data: data})
}
