package animate

import (
	"sync"

	"github.com/ormasoftchile/overlay/pkg/kernel/schema"
)

// OverlayKind distinguishes the target overlays.
type OverlayKind string

const (
	OverlayHighlight OverlayKind = "highlight"
	OverlayTooltip   OverlayKind = "tooltip"
	OverlayArrow     OverlayKind = "arrow"
)

// Overlay is a labeled affordance drawn over the reference image.
type Overlay struct {
	Kind        OverlayKind `json:"kind"`
	Key         string      `json:"key"`
	Environment string      `json:"environment"`
	Rect        schema.Rect `json:"rect"`
	Label       string      `json:"label"`
	Text        string      `json:"text,omitempty"`
	Style       string      `json:"style,omitempty"`
}

// Surface renders what the scheduler plays. Implementations must be safe
// for use from the scheduler goroutine concurrently with their owner.
type Surface interface {
	ShowImage(env string, index int)
	SetCursor(p schema.Point, pressed bool)
	Ripple(p schema.Point)
	ShowOverlay(o Overlay)
	ClearOverlays()
}

// Call is one recorded Surface call.
type Call struct {
	Op      string
	Env     string
	Index   int
	Point   schema.Point
	Pressed bool
	Overlay Overlay
}

// Recorder is a Surface that records every call and tracks the resulting
// visual state. It is used by tests and the headless scenario runner.
type Recorder struct {
	mu       sync.Mutex
	calls    []Call
	env      string
	index    int
	cursor   schema.Point
	pressed  bool
	overlays []Overlay
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder { return &Recorder{index: -1} }

func (r *Recorder) record(c Call) {
	r.calls = append(r.calls, c)
}

func (r *Recorder) ShowImage(env string, index int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.env, r.index = env, index
	r.record(Call{Op: "image", Env: env, Index: index})
}

func (r *Recorder) SetCursor(p schema.Point, pressed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cursor, r.pressed = p, pressed
	r.record(Call{Op: "cursor", Point: p, Pressed: pressed})
}

func (r *Recorder) Ripple(p schema.Point) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record(Call{Op: "ripple", Point: p})
}

func (r *Recorder) ShowOverlay(o Overlay) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overlays = append(r.overlays, o)
	r.record(Call{Op: "overlay", Overlay: o})
}

func (r *Recorder) ClearOverlays() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overlays = nil
	r.record(Call{Op: "clear"})
}

// Calls returns a copy of the recorded calls.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// Ops returns the recorded operation names, optionally filtered.
func (r *Recorder) Ops(only ...string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keep := map[string]bool{}
	for _, o := range only {
		keep[o] = true
	}
	var out []string
	for _, c := range r.calls {
		if len(keep) == 0 || keep[c.Op] {
			out = append(out, c.Op)
		}
	}
	return out
}

// Overlays returns the overlays currently visible.
func (r *Recorder) Overlays() []Overlay {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Overlay, len(r.overlays))
	copy(out, r.overlays)
	return out
}

// Image returns the environment and index currently shown.
func (r *Recorder) Image() (string, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.env, r.index
}

// Cursor returns the current cursor position and pressed state.
func (r *Recorder) Cursor() (schema.Point, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cursor, r.pressed
}

// Reset forgets recorded calls but keeps the visual state.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}
