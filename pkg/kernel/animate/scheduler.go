package animate

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ormasoftchile/overlay/pkg/kernel/resolve"
	"github.com/ormasoftchile/overlay/pkg/kernel/schema"
)

// ErrAborted is returned by Play when the sequence was aborted.
var ErrAborted = errors.New("animation aborted")

// frameInterval is the cursor interpolation step.
const frameInterval = 16 * time.Millisecond

// Resolver resolves symbolic targets.
type Resolver interface {
	Resolve(path string) (resolve.Target, bool)
}

// EventKind names a scheduler observation.
type EventKind string

const (
	EventDirectiveStart   EventKind = "directive_start"
	EventTargetResolved   EventKind = "target_resolved"
	EventTargetUnresolved EventKind = "target_unresolved"
	EventSequenceDone     EventKind = "sequence_done"
	EventSequenceAborted  EventKind = "sequence_aborted"
)

// Event is reported to the Observer as the sequence advances.
type Event struct {
	Kind   EventKind
	Index  int
	Action Action
	Target *resolve.Target
}

// Observer receives scheduler events on the scheduler goroutine.
type Observer func(Event)

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithSleeper replaces the wall-clock sleeper.
func WithSleeper(sl Sleeper) Option {
	return func(s *Scheduler) { s.sleeper = sl }
}

// WithSpeed scales every duration by 1/factor. Values <= 0 are ignored.
func WithSpeed(factor float64) Option {
	return func(s *Scheduler) {
		if factor > 0 {
			s.speed = factor
		}
	}
}

// WithObserver registers an observer.
func WithObserver(o Observer) Option {
	return func(s *Scheduler) { s.observer = o }
}

// WithLogger sets the scheduler logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// run is one playing sequence.
type run struct {
	cancel  context.CancelFunc
	aborted atomic.Bool
	done    chan struct{}
}

// Scheduler plays one directive sequence at a time against a Surface.
type Scheduler struct {
	resolver Resolver
	surface  Surface
	sleeper  Sleeper
	speed    float64
	observer Observer
	logger   *zap.Logger

	ctl sync.Mutex // serializes Start/Play/Abort/Replay

	mu       sync.Mutex
	cur      *run
	actions  []Action
	cursor   schema.Point
	shownEnv string
	shownIdx int
	shown    bool
}

// NewScheduler creates a scheduler drawing on surface.
func NewScheduler(res Resolver, surface Surface, opts ...Option) *Scheduler {
	s := &Scheduler{
		resolver: res,
		surface:  surface,
		sleeper:  RealSleeper{},
		speed:    1,
		logger:   zap.NewNop(),
		cursor:   center,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Play runs actions in order on the calling goroutine, aborting any
// sequence already running. It returns nil when every directive ran and
// ErrAborted if Abort was called or ctx ended first.
func (s *Scheduler) Play(ctx context.Context, actions []Action) error {
	s.ctl.Lock()
	s.abortLocked()
	ctx, r := s.begin(ctx, actions)
	s.ctl.Unlock()

	defer close(r.done)
	defer r.cancel()
	return s.play(ctx, r, actions)
}

// Start plays actions in the background, aborting any running sequence.
func (s *Scheduler) Start(actions []Action) {
	s.ctl.Lock()
	defer s.ctl.Unlock()
	s.startLocked(actions)
}

func (s *Scheduler) startLocked(actions []Action) {
	s.abortLocked()
	ctx, r := s.begin(context.Background(), actions)
	go func() {
		defer close(r.done)
		defer r.cancel()
		if err := s.play(ctx, r, actions); err != nil && !errors.Is(err, ErrAborted) {
			s.logger.Warn("animation sequence failed", zap.Error(err))
		}
	}()
}

func (s *Scheduler) begin(parent context.Context, actions []Action) (context.Context, *run) {
	ctx, cancel := context.WithCancel(parent)
	r := &run{cancel: cancel, done: make(chan struct{})}
	s.mu.Lock()
	s.cur = r
	s.actions = actions
	s.mu.Unlock()
	return ctx, r
}

// Abort stops the running sequence and waits for it to return. Overlays
// drawn by an aborted sequence are cleared before Abort returns.
func (s *Scheduler) Abort() {
	s.ctl.Lock()
	defer s.ctl.Unlock()
	s.abortLocked()
}

func (s *Scheduler) abortLocked() {
	s.mu.Lock()
	r := s.cur
	s.mu.Unlock()
	if r == nil {
		return
	}
	r.aborted.Store(true)
	r.cancel()
	<-r.done
}

// Clear aborts the running sequence and removes every overlay.
func (s *Scheduler) Clear() {
	s.ctl.Lock()
	defer s.ctl.Unlock()
	s.abortLocked()
	s.surface.ClearOverlays()
}

// Replay clears overlays and restarts the last sequence from the first
// directive.
func (s *Scheduler) Replay() {
	s.ctl.Lock()
	defer s.ctl.Unlock()
	s.abortLocked()
	s.surface.ClearOverlays()
	s.mu.Lock()
	actions := s.actions
	s.mu.Unlock()
	s.startLocked(actions)
}

// Wait blocks until the current sequence returns.
func (s *Scheduler) Wait() {
	s.mu.Lock()
	r := s.cur
	s.mu.Unlock()
	if r != nil {
		<-r.done
	}
}

// Running reports whether a sequence is playing.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	r := s.cur
	s.mu.Unlock()
	if r == nil {
		return false
	}
	select {
	case <-r.done:
		return false
	default:
		return true
	}
}

// Actions returns the last started sequence.
func (s *Scheduler) Actions() []Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.actions
}

// ShowImage displays env/index unless it is already shown.
func (s *Scheduler) ShowImage(env string, index int) {
	s.mu.Lock()
	same := s.shown && s.shownEnv == env && s.shownIdx == index
	if !same {
		s.shown, s.shownEnv, s.shownIdx = true, env, index
	}
	s.mu.Unlock()
	if !same {
		s.surface.ShowImage(env, index)
	}
}

// ShownImage returns the environment and index on screen.
func (s *Scheduler) ShownImage() (string, int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shownEnv, s.shownIdx, s.shown
}

func (s *Scheduler) play(ctx context.Context, r *run, actions []Action) error {
	for i, a := range actions {
		if r.aborted.Load() || ctx.Err() != nil {
			return s.aborted(i, a)
		}
		s.observe(Event{Kind: EventDirectiveStart, Index: i, Action: a})
		if err := s.exec(ctx, i, a); err != nil {
			if ctx.Err() != nil {
				return s.aborted(i, a)
			}
			return err
		}
	}
	s.observe(Event{Kind: EventSequenceDone, Index: len(actions)})
	return nil
}

func (s *Scheduler) aborted(i int, a Action) error {
	s.surface.ClearOverlays()
	s.observe(Event{Kind: EventSequenceAborted, Index: i, Action: a})
	return ErrAborted
}

func (s *Scheduler) exec(ctx context.Context, i int, a Action) error {
	switch a := a.(type) {
	case Move:
		return s.glide(ctx, a.From, a.To, a.Duration, false)
	case Click:
		return s.click(ctx, a.At, a.Duration)
	case Drag:
		if err := s.click(ctx, a.From, DefaultClickDuration); err != nil {
			return err
		}
		if err := s.glide(ctx, a.From, a.To, a.Duration, true); err != nil {
			return err
		}
		return s.click(ctx, a.To, DefaultClickDuration)
	case Pause:
		return s.sleep(ctx, a.Duration)
	case Highlight:
		return s.target(ctx, i, a, a.Target, Overlay{Kind: OverlayHighlight, Text: a.Text, Style: a.Style}, a.Duration)
	case Tooltip:
		return s.target(ctx, i, a, a.Target, Overlay{Kind: OverlayTooltip, Text: a.Text}, a.Duration)
	case Arrow:
		return s.target(ctx, i, a, a.Target, Overlay{Kind: OverlayArrow, Text: a.Text, Style: a.Style}, a.Duration)
	default:
		return errors.New("unsupported action")
	}
}

// target resolves path, swaps the reference image if needed, draws the
// overlay, glides the cursor to its center and holds. The glide is part of
// hold, so resolved and unresolved targets take the same time.
func (s *Scheduler) target(ctx context.Context, i int, a Action, path string, o Overlay, hold time.Duration) error {
	t, ok := s.resolver.Resolve(path)
	if !ok {
		s.observe(Event{Kind: EventTargetUnresolved, Index: i, Action: a})
		return s.sleep(ctx, hold)
	}
	s.observe(Event{Kind: EventTargetResolved, Index: i, Action: a, Target: &t})

	if !t.Agnostic {
		s.ShowImage(t.Environment, t.ImageIndex)
	}
	o.Key = t.Key
	o.Environment = t.Environment
	o.Rect = t.Rect
	o.Label = t.Label
	s.surface.ClearOverlays()
	s.surface.ShowOverlay(o)

	s.mu.Lock()
	from := s.cursor
	s.mu.Unlock()
	g := min(glideDuration, hold)
	if err := s.glide(ctx, from, t.Rect.Center(), g, false); err != nil {
		return err
	}
	return s.sleep(ctx, hold-g)
}

func (s *Scheduler) click(ctx context.Context, at schema.Point, d time.Duration) error {
	s.setCursor(at, true)
	s.surface.Ripple(at)
	if err := s.sleep(ctx, d); err != nil {
		return err
	}
	s.setCursor(at, false)
	return nil
}

// glide interpolates the cursor from a to b with ease-in-out timing.
func (s *Scheduler) glide(ctx context.Context, a, b schema.Point, d time.Duration, pressed bool) error {
	d = s.scale(d)
	frames := int(d / frameInterval)
	if frames < 1 {
		frames = 1
	}
	step := d / time.Duration(frames)
	for f := 1; f <= frames; f++ {
		k := ease(float64(f) / float64(frames))
		s.setCursor(schema.Point{X: a.X + (b.X-a.X)*k, Y: a.Y + (b.Y-a.Y)*k}, pressed)
		wait := step
		if f == frames {
			wait = d - step*time.Duration(frames-1)
		}
		if err := s.sleeper.Sleep(ctx, wait); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) setCursor(p schema.Point, pressed bool) {
	s.mu.Lock()
	s.cursor = p
	s.mu.Unlock()
	s.surface.SetCursor(p, pressed)
}

func (s *Scheduler) sleep(ctx context.Context, d time.Duration) error {
	return s.sleeper.Sleep(ctx, s.scale(d))
}

func (s *Scheduler) scale(d time.Duration) time.Duration {
	if s.speed == 1 {
		return d
	}
	return time.Duration(float64(d) / s.speed)
}

func (s *Scheduler) observe(e Event) {
	if s.observer != nil {
		s.observer(e)
	}
}

// ease is quadratic ease-in-out on [0,1].
func ease(t float64) float64 {
	if t < 0.5 {
		return 2 * t * t
	}
	return 1 - (-2*t+2)*(-2*t+2)/2
}
