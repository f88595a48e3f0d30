package recorder

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/ormasoftchile/overlay/pkg/kernel/animate"
	"github.com/ormasoftchile/overlay/pkg/kernel/completion"
	"github.com/ormasoftchile/overlay/pkg/kernel/engine"
	"github.com/ormasoftchile/overlay/pkg/kernel/hostctx"
	"github.com/ormasoftchile/overlay/pkg/kernel/registry"
	"github.com/ormasoftchile/overlay/pkg/kernel/replay"
	"github.com/ormasoftchile/overlay/pkg/kernel/resolve"
	ktesting "github.com/ormasoftchile/overlay/pkg/kernel/testing"
	"github.com/ormasoftchile/overlay/pkg/kernel/validate"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	tutorialPath = "../../../testdata/vase.yaml"
	registryPath = "../../../testdata/registry.yaml"
)

var sketchCtx = hostctx.Context{Workspace: "Design", Environment: "Sketch", HasActiveDocument: true, HasActiveSketch: true}

func newNavigator(t *testing.T, reg *registry.Registry, path string) (*engine.Machine, *engine.Navigator) {
	t.Helper()
	tut, errs := validate.ValidateFile(path, validate.Options{Registry: reg})
	if validate.HasErrors(errs) {
		t.Fatalf("validate: %v", errs)
	}
	m := engine.New(engine.TutorialSource{Tutorial: tut},
		resolve.New(reg),
		animate.NewRecorder(),
		engine.WithSleeper(&animate.InstantSleeper{}),
		engine.WithLogger(zaptest.NewLogger(t)),
	)
	t.Cleanup(m.Close)
	return m, engine.NewNavigator(m, engine.WithGuidance(hostctx.GuidanceOn))
}

func copyTutorial(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(tutorialPath)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "vase.yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRecorder_RoundTrip(t *testing.T) {
	reg, err := registry.LoadFile(registryPath)
	if err != nil {
		t.Fatal(err)
	}
	path := copyTutorial(t)
	m, nav := newNavigator(t, reg, path)
	if err := nav.UpdateContext(sketchCtx); err != nil {
		t.Fatal(err)
	}
	if err := nav.Start(); err != nil {
		t.Fatal(err)
	}

	rec := New(nav, nav.Guidance(), sketchCtx)
	if err := rec.GoTo(1); err != nil {
		t.Fatal(err)
	}
	m.Settle()
	rec.Completion(completion.Event{SemanticType: completion.EventCommandStarted, CommandID: "SketchLine"})
	rec.Completion(completion.Event{SemanticType: completion.EventCommandTerminated, CommandID: "SketchLine"})
	m.Settle()
	if rec.Len() != 3 {
		t.Fatalf("recorded %d actions, want 3", rec.Len())
	}

	spec := Expectations(m.Snapshot())
	if *spec.ExpectedIndex != 1 || spec.ExpectedStep != "draw-profile" {
		t.Errorf("expectations = %+v", spec)
	}

	dir := filepath.Join(filepath.Dir(path), "scenarios", "vase", "recorded")
	if err := rec.Save(dir, "line drawn", spec); err != nil {
		t.Fatal(err)
	}

	s, err := replay.LoadScenarioDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if s.Description != "line drawn" || s.Context == nil || s.Context.Environment != "Sketch" {
		t.Errorf("scenario = %+v", s)
	}

	runner := &ktesting.Runner{Registry: reg, Logger: zaptest.NewLogger(t)}
	res, err := runner.RunScenario(path, "recorded")
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != "passed" {
		t.Errorf("replay status = %s: %+v %s", res.Status, res.Assertions, res.Error)
	}
}

func TestRecorder_RejectedInputNotRecorded(t *testing.T) {
	reg, err := registry.LoadFile(registryPath)
	if err != nil {
		t.Fatal(err)
	}
	_, nav := newNavigator(t, reg, tutorialPath)
	if err := nav.Start(); err != nil {
		t.Fatal(err)
	}

	rec := New(nav, nav.Guidance(), hostctx.UnknownContext())
	if err := rec.Prev(); err == nil {
		t.Fatal("expected error going back from the first step")
	}
	if err := rec.GoTo(99); err == nil {
		t.Fatal("expected error for out-of-range step")
	}
	if rec.Len() != 0 {
		t.Errorf("recorded %d rejected actions", rec.Len())
	}
	if rec.Scenario().Context != nil {
		t.Error("unknown context should not be recorded")
	}
	if err := rec.Save(t.TempDir(), "empty", nil); err == nil {
		t.Error("expected error saving an empty recording")
	}
}
