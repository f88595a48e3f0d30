package tui

import (
	"sync"

	"github.com/ormasoftchile/overlay/pkg/kernel/animate"
	"github.com/ormasoftchile/overlay/pkg/kernel/schema"
)

// rippleFrames is how many ticks a click ripple stays visible.
const rippleFrames = 6

// Surface is an animate.Surface that keeps the latest visual state for
// the model to draw. The scheduler writes from its own goroutine; the
// model reads a Frame on every tick.
type Surface struct {
	mu       sync.Mutex
	env      string
	index    int
	shown    bool
	cursor   schema.Point
	pressed  bool
	ripples  []ripple
	overlays []animate.Overlay
}

type ripple struct {
	at  schema.Point
	ttl int
}

// Frame is a copy of the surface state.
type Frame struct {
	Environment string
	Image       int
	Shown       bool
	Cursor      schema.Point
	Pressed     bool
	Ripples     []schema.Point
	Overlays    []animate.Overlay
}

// NewSurface returns an empty surface with the cursor at the center.
func NewSurface() *Surface {
	return &Surface{cursor: schema.Point{X: 50, Y: 50}}
}

// ShowImage implements animate.Surface.
func (s *Surface) ShowImage(env string, index int) {
	s.mu.Lock()
	s.env, s.index, s.shown = env, index, true
	s.mu.Unlock()
}

// SetCursor implements animate.Surface.
func (s *Surface) SetCursor(p schema.Point, pressed bool) {
	s.mu.Lock()
	s.cursor, s.pressed = p, pressed
	s.mu.Unlock()
}

// Ripple implements animate.Surface.
func (s *Surface) Ripple(p schema.Point) {
	s.mu.Lock()
	s.ripples = append(s.ripples, ripple{at: p, ttl: rippleFrames})
	s.mu.Unlock()
}

// ShowOverlay implements animate.Surface.
func (s *Surface) ShowOverlay(o animate.Overlay) {
	s.mu.Lock()
	s.overlays = append(s.overlays, o)
	s.mu.Unlock()
}

// ClearOverlays implements animate.Surface.
func (s *Surface) ClearOverlays() {
	s.mu.Lock()
	s.overlays = nil
	s.mu.Unlock()
}

// Tick ages ripples by one frame and drops the expired ones.
func (s *Surface) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	live := s.ripples[:0]
	for _, r := range s.ripples {
		r.ttl--
		if r.ttl > 0 {
			live = append(live, r)
		}
	}
	s.ripples = live
}

// Frame returns the current state.
func (s *Surface) Frame() Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := Frame{
		Environment: s.env,
		Image:       s.index,
		Shown:       s.shown,
		Cursor:      s.cursor,
		Pressed:     s.pressed,
		Overlays:    append([]animate.Overlay(nil), s.overlays...),
	}
	for _, r := range s.ripples {
		f.Ripples = append(f.Ripples, r.at)
	}
	return f
}
