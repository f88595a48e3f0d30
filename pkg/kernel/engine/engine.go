// Package engine implements the step state machine that drives a guided
// overlay session: navigation, step loading, the redirect sub-mode and
// checklist progress.
package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ormasoftchile/overlay/pkg/kernel/animate"
	"github.com/ormasoftchile/overlay/pkg/kernel/completion"
	"github.com/ormasoftchile/overlay/pkg/kernel/resolve"
	"github.com/ormasoftchile/overlay/pkg/kernel/schema"
	"github.com/ormasoftchile/overlay/pkg/kernel/trace"
)

// Mode is the machine's top-level state.
type Mode string

const (
	ModeNormal      Mode = "normal"
	ModeRedirecting Mode = "redirecting"
)

// DefaultResolveDelay is how long the success indication stays up after
// a redirect resolves.
const DefaultResolveDelay = 1200 * time.Millisecond

// redirectSession exists only while Redirecting.
type redirectSession struct {
	id           uint64
	pendingIndex int
	resolved     bool

	// step and items the redirect displaced; Skip puts them back.
	prevStep  schema.Step
	prevItems []completion.Item
}

// Option configures a Machine.
type Option func(*Machine)

// WithSink sets the notification sink.
func WithSink(s Sink) Option {
	return func(m *Machine) {
		if s != nil {
			m.sink = s
		}
	}
}

// WithTrace sets the audit trace writer.
func WithTrace(tw *trace.Writer) Option {
	return func(m *Machine) { m.trace = tw }
}

// WithLogger sets the machine logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Machine) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithMatcher replaces the default completion matcher.
func WithMatcher(cm *completion.Matcher) Option {
	return func(m *Machine) {
		if cm != nil {
			m.matcher = cm
		}
	}
}

// WithSleeper sets the clock used by animations and the resolve delay.
func WithSleeper(sl animate.Sleeper) Option {
	return func(m *Machine) {
		if sl != nil {
			m.sleeper = sl
		}
	}
}

// WithSpeed scales animation timing.
func WithSpeed(factor float64) Option {
	return func(m *Machine) { m.speed = factor }
}

// WithResolveDelay overrides DefaultResolveDelay.
func WithResolveDelay(d time.Duration) Option {
	return func(m *Machine) { m.delay = d }
}

// State is a point-in-time view of the machine.
type State struct {
	Mode         Mode              `json:"mode"`
	Index        int               `json:"index"`
	Total        int               `json:"total"`
	Step         schema.Step       `json:"step"`
	Checklist    []completion.Item `json:"checklist"`
	PendingIndex int               `json:"pendingIndex"`
	Resolved     bool              `json:"resolved"`
	Animating    bool              `json:"animating"`
}

// Machine is the step state machine. All methods are safe for concurrent
// use; host events are applied as soon as they arrive, between the
// scheduler's frame and hold waits.
type Machine struct {
	src      StepSource
	resolver *resolve.Resolver
	sched    *animate.Scheduler
	matcher  *completion.Matcher
	sink     Sink
	trace    *trace.Writer
	logger   *zap.Logger
	sleeper  animate.Sleeper
	speed    float64
	delay    time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	mode     Mode
	index    int
	step     schema.Step
	items    []completion.Item
	redirect *redirectSession
	sessions uint64
}

// New creates a machine over src that animates on surface using res.
func New(src StepSource, res *resolve.Resolver, surface animate.Surface, opts ...Option) *Machine {
	m := &Machine{
		src:      src,
		resolver: res,
		matcher:  completion.NewMatcher(),
		sink:     nopSink{},
		logger:   zap.NewNop(),
		sleeper:  animate.RealSleeper{},
		speed:    1,
		delay:    DefaultResolveDelay,
		mode:     ModeNormal,
		index:    -1,
	}
	for _, o := range opts {
		o(m)
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.sched = animate.NewScheduler(res, surface,
		animate.WithSleeper(m.sleeper),
		animate.WithSpeed(m.speed),
		animate.WithObserver(m.observe),
		animate.WithLogger(m.logger.Named("animate")),
	)
	return m
}

// Scheduler returns the machine's animation scheduler.
func (m *Machine) Scheduler() *animate.Scheduler { return m.sched }

// Resolver returns the machine's target resolver.
func (m *Machine) Resolver() *resolve.Resolver { return m.resolver }

// Start opens the session and loads the first step.
func (m *Machine) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.openLocked(); err != nil {
		return err
	}
	return m.requestLocked(0)
}

// Open announces a session without loading a step.
func (m *Machine) Open() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.openLocked()
}

func (m *Machine) openLocked() error {
	if m.src == nil || m.src.Len() == 0 {
		return ErrNoTutorial
	}
	id := ""
	if t, ok := m.src.(TutorialSource); ok && t.Tutorial != nil {
		id = t.Tutorial.TutorialID
	}
	m.trace.EmitSessionStart(id, m.src.Len(), m.resolver.Registry().EnvironmentNames())
	return nil
}

// Next requests the following step. It is a no-op while Redirecting.
func (m *Machine) Next() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.blockedLocked("next") {
		return nil
	}
	return m.requestLocked(m.index + 1)
}

// Prev requests the preceding step. It is a no-op while Redirecting.
func (m *Machine) Prev() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.blockedLocked("prev") {
		return nil
	}
	return m.requestLocked(m.index - 1)
}

// GoToStep requests step i. It is a no-op while Redirecting.
func (m *Machine) GoToStep(i int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.blockedLocked("goto") {
		return nil
	}
	return m.requestLocked(i)
}

// Reload swaps the step source and reloads the current step, clamped to
// the new length. A redirect in progress is abandoned.
func (m *Machine) Reload(src StepSource) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.src = src
	if m.mode == ModeRedirecting {
		m.exitRedirectLocked()
	}
	if src == nil || src.Len() == 0 {
		m.sched.Clear()
		return ErrNoTutorial
	}
	i := m.index
	if i < 0 {
		i = 0
	}
	if i >= src.Len() {
		i = src.Len() - 1
	}
	return m.requestLocked(i)
}

// EnterRedirect shows step as a redirect and remembers pendingIndex as
// the step to resume. Entering while already Redirecting replaces the
// current session.
func (m *Machine) EnterRedirect(step schema.Step, pendingIndex int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions++
	rs := &redirectSession{id: m.sessions, pendingIndex: pendingIndex, prevStep: m.step, prevItems: m.items}
	if m.redirect != nil {
		rs.prevStep, rs.prevItems = m.redirect.prevStep, m.redirect.prevItems
	}
	m.redirect = rs
	m.mode = ModeRedirecting
	step.Redirect = true

	m.sched.Clear()
	m.step = step
	m.items = completion.NewChecklist(step.Checklist)
	m.showVisualLocked(step)

	m.trace.EmitRedirect(trace.EventRedirectEnter, pendingIndex, step.Title)
	m.trace.EmitStepLoaded(m.index, step.StepID, step.Title, true)
	m.logger.Info("redirect entered",
		zap.Int("pendingIndex", pendingIndex),
		zap.String("title", step.Title))

	m.notify(NoticeRedirectStarted, RedirectStarted{PendingIndex: pendingIndex, Step: step})
	m.notify(NoticeStepLoaded, StepLoaded{
		Index:        m.index,
		Total:        m.total(),
		Step:         step,
		Redirect:     true,
		PendingIndex: pendingIndex,
	})
	m.notify(NoticeChecklistChanged, m.checklistLocked(nil))
	m.notify(NoticeNavState, m.navLocked())
	m.sched.Start(m.decode(step))
}

// ContextResolved reports that the host now satisfies the redirect. The
// machine announces success, waits for the resolve delay and then returns
// to Normal with the pending step. It returns false when not Redirecting
// or when the session already resolved.
func (m *Machine) ContextResolved() bool {
	m.mu.Lock()
	if m.mode != ModeRedirecting || m.redirect == nil || m.redirect.resolved {
		m.mu.Unlock()
		return false
	}
	r := m.redirect
	r.resolved = true
	m.trace.EmitRedirect(trace.EventRedirectResolved, r.pendingIndex, "")
	m.logger.Info("redirect resolved", zap.Int("pendingIndex", r.pendingIndex))
	m.notify(NoticeRedirectResolved, RedirectResolved{PendingIndex: r.pendingIndex, Resolved: true})
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		if err := m.sleeper.Sleep(m.ctx, m.delay); err != nil {
			return
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		// A skip or a newer redirect owns the machine now.
		if m.redirect == nil || m.redirect.id != r.id {
			return
		}
		m.exitRedirectLocked()
		if err := m.requestLocked(r.pendingIndex); err != nil {
			m.logger.Warn("resume after redirect failed",
				zap.Int("pendingIndex", r.pendingIndex), zap.Error(err))
		}
	}()
	return true
}

// Skip abandons the redirect unresolved and returns the pending step
// index for the caller to navigate to. The step shown before the redirect
// is restored, so Normal never reports a redirect step. It returns false
// when not Redirecting.
func (m *Machine) Skip() (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mode != ModeRedirecting || m.redirect == nil {
		return -1, false
	}
	pending := m.redirect.pendingIndex
	prev, items := m.redirect.prevStep, m.redirect.prevItems
	m.exitRedirectLocked()
	m.sched.Clear()
	if prev.StepID == "" && prev.Title == "" && m.src != nil {
		if st, err := m.src.Step(m.index); err == nil {
			prev, items = st, completion.NewChecklist(st.Checklist)
		}
	}
	m.step, m.items = prev, items
	m.trace.EmitRedirect(trace.EventRedirectSkipped, pending, "")
	m.logger.Info("redirect skipped", zap.Int("pendingIndex", pending))
	m.notify(NoticeRedirectResolved, RedirectResolved{PendingIndex: pending})
	m.notify(NoticeNavState, m.navLocked())
	return pending, true
}

// Replay restarts the active directive sequence from the beginning. While
// Redirecting this is the redirect sequence.
func (m *Machine) Replay() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logger.Debug("replay", zap.Int("index", m.index), zap.String("mode", string(m.mode)))
	m.sched.Replay()
}

// ApplyCompletion feeds a host completion event to the checklist of the
// loaded step and returns the transitions it caused.
func (m *Machine) ApplyCompletion(ev completion.Event) []completion.Transition {
	m.mu.Lock()
	defer m.mu.Unlock()
	ts := m.matcher.Apply(m.items, ev)
	if len(ts) == 0 {
		return nil
	}
	for _, t := range ts {
		m.trace.EmitChecklistTransition(t.Index, t.Text, string(t.From), string(t.To), string(t.Rule))
	}
	m.notify(NoticeChecklistChanged, m.checklistLocked(ts))
	m.notify(NoticeNavState, m.navLocked())
	return ts
}

// Mode returns the current mode.
func (m *Machine) Mode() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// Index returns the loaded step index, or -1 before Start.
func (m *Machine) Index() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.index
}

// Total returns the number of steps in the source.
func (m *Machine) Total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total()
}

// Snapshot returns the current state.
func (m *Machine) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := State{
		Mode:         m.mode,
		Index:        m.index,
		Total:        m.total(),
		Step:         m.step,
		Checklist:    m.copyItems(),
		PendingIndex: -1,
		Animating:    m.sched.Running(),
	}
	if m.redirect != nil {
		s.PendingIndex = m.redirect.pendingIndex
		s.Resolved = m.redirect.resolved
	}
	return s
}

// Settle blocks until pending deferred transitions and the current
// animation sequence have finished.
func (m *Machine) Settle() {
	m.wg.Wait()
	m.sched.Wait()
}

// Close stops deferred transitions and the running animation.
func (m *Machine) Close() {
	m.cancel()
	m.wg.Wait()
	m.sched.Abort()
}

func (m *Machine) blockedLocked(action string) bool {
	if m.mode != ModeRedirecting {
		return false
	}
	pending := -1
	if m.redirect != nil {
		pending = m.redirect.pendingIndex
	}
	m.trace.EmitNavBlocked(action, pending)
	m.logger.Debug("navigation blocked while redirecting", zap.String("action", action))
	return true
}

func (m *Machine) requestLocked(i int) error {
	if m.src == nil || m.src.Len() == 0 {
		return ErrNoTutorial
	}
	if i < 0 || i >= m.src.Len() {
		return fmt.Errorf("step %d of %d: %w", i, m.src.Len(), ErrOutOfRange)
	}
	m.notify(NoticeStepRequest, StepRequest{Index: i})
	step, err := m.src.Step(i)
	if err != nil {
		return fmt.Errorf("request step %d: %w", i, err)
	}
	m.loadLocked(i, step)
	return nil
}

// loadLocked aborts the running sequence, clears overlays and resets the
// checklist before the new sequence starts.
func (m *Machine) loadLocked(i int, step schema.Step) {
	m.sched.Clear()
	m.index = i
	m.step = step
	m.items = completion.NewChecklist(step.Checklist)
	m.showVisualLocked(step)

	m.trace.EmitStepLoaded(i, step.StepID, step.Title, false)
	m.logger.Info("step loaded",
		zap.Int("index", i),
		zap.String("stepId", step.StepID),
		zap.String("title", step.Title))

	m.notify(NoticeStepLoaded, StepLoaded{Index: i, Total: m.total(), Step: step})
	m.notify(NoticeChecklistChanged, m.checklistLocked(nil))
	m.notify(NoticeNavState, m.navLocked())
	m.sched.Start(m.decode(step))
}

func (m *Machine) exitRedirectLocked() {
	m.mode = ModeNormal
	m.redirect = nil
}

func (m *Machine) showVisualLocked(step schema.Step) {
	v := step.VisualStep
	if v == nil || v.Environment == "" {
		return
	}
	env := strings.ToLower(v.Environment)
	if !m.resolver.Registry().HasEnvironment(env) {
		return
	}
	m.resolver.SetActive(env)
	m.sched.ShowImage(env, v.ImageIndex)
}

func (m *Machine) decode(step schema.Step) []animate.Action {
	actions, errs := animate.DecodeAll(step.Animations)
	for _, err := range errs {
		m.logger.Warn("directive dropped", zap.String("title", step.Title), zap.Error(err))
	}
	return actions
}

func (m *Machine) total() int {
	if m.src == nil {
		return 0
	}
	return m.src.Len()
}

func (m *Machine) copyItems() []completion.Item {
	out := make([]completion.Item, len(m.items))
	copy(out, m.items)
	return out
}

func (m *Machine) checklistLocked(ts []completion.Transition) ChecklistChanged {
	return ChecklistChanged{
		Index:       m.index,
		Items:       m.copyItems(),
		Transitions: ts,
		Complete:    completion.Done(m.items),
	}
}

func (m *Machine) navLocked() NavState {
	total := m.total()
	normal := m.mode == ModeNormal
	return NavState{
		Index:    m.index,
		Total:    total,
		Mode:     m.mode,
		CanPrev:  normal && m.index > 0,
		CanNext:  normal && m.index+1 < total,
		Complete: completion.Done(m.items),
	}
}

func (m *Machine) notify(kind NoticeKind, data any) {
	m.sink.Notify(Notice{Kind: kind, Data: data})
}

// observe runs on the scheduler goroutine and must not take m.mu.
func (m *Machine) observe(e animate.Event) {
	switch e.Kind {
	case animate.EventDirectiveStart:
		m.trace.Emit(trace.EventDirectiveStart, map[string]any{
			"index": e.Index,
			"type":  string(e.Action.Kind()),
		})
	case animate.EventTargetResolved:
		m.trace.EmitTarget(targetPath(e.Action), true, e.Target.Key, string(e.Target.Strategy))
	case animate.EventTargetUnresolved:
		path := targetPath(e.Action)
		m.trace.EmitTarget(path, false, "", "")
		m.logger.Debug("target unresolved", zap.String("path", path))
	case animate.EventSequenceAborted:
		m.trace.Emit(trace.EventSequenceAborted, map[string]any{"index": e.Index})
	}
}

func targetPath(a animate.Action) string {
	switch a := a.(type) {
	case animate.Highlight:
		return a.Target
	case animate.Tooltip:
		return a.Target
	case animate.Arrow:
		return a.Target
	}
	return ""
}
