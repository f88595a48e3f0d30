// Package recorder captures host input sent to a tutorial session and
// writes it out as a replayable scenario, so a session driven by hand can
// become a regression test.
package recorder

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/ormasoftchile/overlay/pkg/kernel/completion"
	"github.com/ormasoftchile/overlay/pkg/kernel/engine"
	"github.com/ormasoftchile/overlay/pkg/kernel/hostctx"
	"github.com/ormasoftchile/overlay/pkg/kernel/replay"
	ktesting "github.com/ormasoftchile/overlay/pkg/kernel/testing"
)

// Host is the input side of a navigator.
type Host interface {
	Next() error
	Prev() error
	GoTo(i int) error
	Replay()
	Completion(ev completion.Event) []completion.Transition
	UpdateContext(c hostctx.Context) error
	Skip() error
	Accept() error
}

// Recorder wraps a Host and captures every input it accepts.
type Recorder struct {
	inner Host

	mu       sync.Mutex
	scenario replay.Scenario
}

// New creates a recorder over inner. guidance and initial describe the
// session as it was when recording began; an unknown initial context is
// left out of the scenario.
func New(inner Host, guidance hostctx.Guidance, initial hostctx.Context) *Recorder {
	r := &Recorder{inner: inner}
	r.scenario.Guidance = string(guidance)
	if initial.Workspace != "" && initial.Workspace != hostctx.Unknown {
		c := initial
		r.scenario.Context = &c
	}
	return r
}

// record appends a when the input was accepted. Inputs the player treats
// as no-ops are dropped too.
func (r *Recorder) record(a replay.Action, err error) error {
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.scenario.Actions = append(r.scenario.Actions, a)
	r.mu.Unlock()
	return nil
}

// Next implements Host.
func (r *Recorder) Next() error {
	return r.record(replay.Action{Do: replay.ActionNext}, r.inner.Next())
}

// Prev implements Host.
func (r *Recorder) Prev() error {
	return r.record(replay.Action{Do: replay.ActionPrev}, r.inner.Prev())
}

// GoTo implements Host.
func (r *Recorder) GoTo(i int) error {
	return r.record(replay.Action{Do: replay.ActionGoTo, Index: i}, r.inner.GoTo(i))
}

// Replay implements Host.
func (r *Recorder) Replay() {
	r.inner.Replay()
	r.record(replay.Action{Do: replay.ActionReplay}, nil)
}

// Completion implements Host. Every event is recorded, matched or not.
func (r *Recorder) Completion(ev completion.Event) []completion.Transition {
	ts := r.inner.Completion(ev)
	e := ev
	r.record(replay.Action{Do: replay.ActionEvent, Event: &e}, nil)
	return ts
}

// UpdateContext implements Host.
func (r *Recorder) UpdateContext(c hostctx.Context) error {
	cc := c
	return r.record(replay.Action{Do: replay.ActionContext, Context: &cc}, r.inner.UpdateContext(c))
}

// Skip implements Host.
func (r *Recorder) Skip() error {
	return r.record(replay.Action{Do: replay.ActionSkip}, r.inner.Skip())
}

// Accept implements Host.
func (r *Recorder) Accept() error {
	return r.record(replay.Action{Do: replay.ActionAccept}, r.inner.Accept())
}

// Len returns the number of recorded actions.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.scenario.Actions)
}

// Scenario returns a copy of what has been recorded so far.
func (r *Recorder) Scenario() *replay.Scenario {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.scenario
	s.Actions = append([]replay.Action(nil), r.scenario.Actions...)
	return &s
}

// Expectations builds a test spec asserting the session ends in st.
func Expectations(st engine.State) *ktesting.TestSpec {
	index := st.Index
	complete := completion.Done(st.Checklist)
	spec := &ktesting.TestSpec{
		Description:      "recorded session",
		ExpectedIndex:    &index,
		ExpectedMode:     string(st.Mode),
		ExpectedComplete: &complete,
	}
	if st.Mode == engine.ModeNormal {
		spec.ExpectedStep = st.Step.StepID
	}
	for _, it := range st.Checklist {
		spec.ExpectedChecklist = append(spec.ExpectedChecklist, string(it.State))
	}
	return spec
}

// Save writes scenario.yaml to dir, and test.yaml when spec is not nil.
func (r *Recorder) Save(dir, description string, spec *ktesting.TestSpec) error {
	s := r.Scenario()
	if len(s.Actions) == 0 {
		return errors.New("nothing recorded")
	}
	s.Description = description
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create scenario dir: %w", err)
	}
	if err := writeYAML(filepath.Join(dir, "scenario.yaml"), s); err != nil {
		return err
	}
	if spec == nil {
		return nil
	}
	return writeYAML(filepath.Join(dir, "test.yaml"), spec)
}

func writeYAML(path string, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}
