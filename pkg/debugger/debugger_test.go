package debugger

import (
	"bytes"
	"strings"
	"testing"

	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/ormasoftchile/overlay/pkg/kernel/animate"
	"github.com/ormasoftchile/overlay/pkg/kernel/engine"
	"github.com/ormasoftchile/overlay/pkg/kernel/hostctx"
	"github.com/ormasoftchile/overlay/pkg/kernel/registry"
	"github.com/ormasoftchile/overlay/pkg/kernel/resolve"
	"github.com/ormasoftchile/overlay/pkg/kernel/schema"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fixture struct {
	d       *Debugger
	m       *engine.Machine
	out     *bytes.Buffer
	notices *bytes.Buffer
}

func newFixture(t *testing.T, g hostctx.Guidance) *fixture {
	t.Helper()
	tut, err := schema.LoadFile("../../testdata/vase.yaml")
	if err != nil {
		t.Fatal(err)
	}
	reg, err := registry.LoadFile("../../testdata/registry.yaml")
	if err != nil {
		t.Fatal(err)
	}
	notices := &bytes.Buffer{}
	m := engine.New(engine.TutorialSource{Tutorial: tut}, resolve.New(reg), animate.NewRecorder(),
		engine.WithSink(NewPrinter(notices)),
		engine.WithSleeper(&animate.InstantSleeper{}),
		engine.WithLogger(zaptest.NewLogger(t)),
	)
	t.Cleanup(m.Close)
	nav := engine.NewNavigator(m, engine.WithGuidance(g))
	if err := nav.Start(); err != nil {
		t.Fatal(err)
	}
	out := &bytes.Buffer{}
	return &fixture{d: New(nav, WithOutput(out), WithTitle(tut.Title)), m: m, out: out, notices: notices}
}

func (f *fixture) exec(lines ...string) string {
	f.out.Reset()
	for _, l := range lines {
		f.d.Exec(l)
	}
	f.m.Settle()
	return f.out.String()
}

func TestDebugger_Help(t *testing.T) {
	f := newFixture(t, hostctx.GuidanceOff)
	out := f.exec("help")
	for _, cmd := range commands {
		if !strings.Contains(out, cmd) {
			t.Errorf("help output missing command %q", cmd)
		}
	}
}

func TestDebugger_PromptFormat(t *testing.T) {
	f := newFixture(t, hostctx.GuidanceOff)
	if p := f.d.buildPrompt(); p != "overlay[1/4 | start-sketch]> " {
		t.Errorf("prompt = %q", p)
	}
	f.exec("next")
	if p := f.d.buildPrompt(); !strings.Contains(p, "2/4 | draw-profile") {
		t.Errorf("prompt after next = %q", p)
	}
}

func TestDebugger_Navigation(t *testing.T) {
	f := newFixture(t, hostctx.GuidanceOff)
	tests := []struct {
		line      string
		wantIndex int
		wantOut   string
	}{
		{"n", 1, ""},
		{"goto 4", 3, ""},
		{"p", 2, ""},
		{"goto 9", 2, "Error:"},
		{"goto x", 2, "Invalid step number"},
		{"goto", 2, "Usage: goto"},
		{"r", 2, ""},
	}
	for _, tt := range tests {
		out := f.exec(tt.line)
		if got := f.m.Index(); got != tt.wantIndex {
			t.Errorf("%q: index = %d, want %d", tt.line, got, tt.wantIndex)
		}
		if tt.wantOut != "" && !strings.Contains(out, tt.wantOut) {
			t.Errorf("%q: output %q missing %q", tt.line, out, tt.wantOut)
		}
	}
}

func TestDebugger_GuidedRedirect(t *testing.T) {
	f := newFixture(t, hostctx.GuidanceOn)
	f.exec("ctx workspace=Design environment=Solid document=true", "next")
	if f.m.Mode() != engine.ModeRedirecting {
		t.Fatalf("mode = %s", f.m.Mode())
	}
	if p := f.d.buildPrompt(); p != "overlay[redirect → 2/4]> " {
		t.Errorf("prompt = %q", p)
	}
	if !strings.Contains(f.notices.String(), "redirecting before step 2") {
		t.Errorf("notices = %s", f.notices.String())
	}

	f.exec("ctx env=Sketch sketch=true")
	if f.m.Mode() != engine.ModeNormal || f.m.Index() != 1 {
		t.Errorf("state = %s/%d", f.m.Mode(), f.m.Index())
	}
}

func TestDebugger_AskSkip(t *testing.T) {
	f := newFixture(t, hostctx.GuidanceAsk)
	f.exec("ctx workspace=Design environment=Solid document=true", "next")
	if !strings.Contains(f.notices.String(), "redirect? (accept/skip)") {
		t.Fatalf("notices = %s", f.notices.String())
	}
	if out := f.exec("accept", "accept"); !strings.Contains(out, "Error:") {
		t.Errorf("second accept should fail: %q", out)
	}
	f.exec("skip")
	if f.m.Index() != 1 || f.m.Mode() != engine.ModeNormal {
		t.Errorf("state = %s/%d", f.m.Mode(), f.m.Index())
	}
}

func TestDebugger_ContextErrors(t *testing.T) {
	f := newFixture(t, hostctx.GuidanceOff)
	tests := []struct {
		line string
		want string
	}{
		{"ctx environment", "expected key=value"},
		{"ctx document=maybe", "Invalid bool"},
		{"ctx color=red", "Unknown context key"},
	}
	for _, tt := range tests {
		if out := f.exec(tt.line); !strings.Contains(out, tt.want) {
			t.Errorf("%q: output %q missing %q", tt.line, out, tt.want)
		}
	}
	f.exec("ctx ws=Design env=Solid")
	if out := f.exec("ctx"); !strings.Contains(out, "environment=Solid") {
		t.Errorf("ctx dump = %q", out)
	}
}

func TestDebugger_EventAndChecklist(t *testing.T) {
	f := newFixture(t, hostctx.GuidanceOff)
	if out := f.exec("event selection_changed"); !strings.Contains(out, "does not move") {
		t.Errorf("output = %q", out)
	}
	f.exec("event sketch_created SketchCreate")
	out := f.exec("checklist")
	if !strings.Contains(out, "✓ 1. Create a sketch") || !strings.Contains(out, "Step complete") {
		t.Errorf("checklist = %q", out)
	}
	if !strings.Contains(f.notices.String(), "pending→completed") {
		t.Errorf("notices = %s", f.notices.String())
	}
	if out := f.exec("event"); !strings.Contains(out, "Usage: event") {
		t.Errorf("output = %q", out)
	}
}

func TestDebugger_Resolve(t *testing.T) {
	f := newFixture(t, hostctx.GuidanceOff)
	if out := f.exec("resolve toolbar.revolve"); !strings.Contains(out, "Revolve") {
		t.Errorf("resolve = %q", out)
	}
	if out := f.exec("resolve viewport.body"); !strings.Contains(out, "unresolved") {
		t.Errorf("resolve = %q", out)
	}
}

func TestDebugger_StateAndQuit(t *testing.T) {
	f := newFixture(t, hostctx.GuidanceOff)
	if out := f.exec("state"); !strings.Contains(out, `"stepId": "start-sketch"`) {
		t.Errorf("state = %q", out)
	}
	if out := f.exec("bogus"); !strings.Contains(out, "Unknown command") {
		t.Errorf("output = %q", out)
	}
	if f.d.Exec("   ") {
		t.Error("blank line quit")
	}
	if !f.d.Exec("quit") {
		t.Error("quit did not quit")
	}
}

// countingHost counts the navigation inputs routed through it.
type countingHost struct {
	Host
	moves int
}

func (h *countingHost) Next() error {
	h.moves++
	return h.Host.Next()
}

func (h *countingHost) GoTo(i int) error {
	h.moves++
	return h.Host.GoTo(i)
}

func TestDebugger_WithHost(t *testing.T) {
	f := newFixture(t, hostctx.GuidanceOff)
	h := &countingHost{Host: f.d.nav}
	WithHost(h)(f.d)
	f.exec("next", "goto 4", "state")
	if h.moves != 2 {
		t.Errorf("host saw %d moves, want 2", h.moves)
	}
	if f.m.Index() != 3 {
		t.Errorf("index = %d, want 3", f.m.Index())
	}
}
