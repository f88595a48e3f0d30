package serve

import (
	"bytes"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/ormasoftchile/overlay/pkg/kernel/animate"
	"github.com/ormasoftchile/overlay/pkg/kernel/engine"
	"github.com/ormasoftchile/overlay/pkg/kernel/registry"
	"github.com/ormasoftchile/overlay/pkg/kernel/schema"
	"github.com/ormasoftchile/overlay/pkg/kernel/trace"
	"github.com/ormasoftchile/overlay/pkg/prefs"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	tutorialPath = "../../testdata/vase.yaml"
	registryPath = "../../testdata/registry.yaml"
)

var (
	inSolid  = map[string]any{"workspace": "Design", "environment": "Solid", "hasActiveDocument": true}
	inSketch = map[string]any{"workspace": "Design", "environment": "Sketch", "hasActiveDocument": true, "hasActiveSketch": true}
)

// lockedBuffer collects output written from several goroutines.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) messages(t *testing.T) []Message {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Message
	for _, line := range strings.Split(strings.TrimSpace(b.buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m Message
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("bad output line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

type harness struct {
	t   *testing.T
	s   *Server
	out *lockedBuffer
	id  int
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	if cfg.Registry == nil {
		reg, err := registry.LoadFile(registryPath)
		if err != nil {
			t.Fatal(err)
		}
		cfg.Registry = reg
	}
	if cfg.Sleeper == nil {
		cfg.Sleeper = &animate.InstantSleeper{}
	}
	out := &lockedBuffer{}
	s := New(WithIO(strings.NewReader(""), out), WithLogger(zaptest.NewLogger(t)), WithConfig(cfg))
	t.Cleanup(s.closeSession)
	return &harness{t: t, s: s, out: out}
}

// call dispatches one request and returns its response.
func (h *harness) call(method string, params any) Message {
	h.t.Helper()
	h.id++
	id := h.id
	msg := &Message{JSONRPC: "2.0", ID: &id, Method: method}
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			h.t.Fatal(err)
		}
		msg.Params = data
	}
	h.s.dispatch(msg)
	for _, m := range h.out.messages(h.t) {
		if m.ID != nil && *m.ID == id {
			return m
		}
	}
	h.t.Fatalf("no response to %s", method)
	return Message{}
}

func (h *harness) settle() {
	h.s.mu.Lock()
	ss := h.s.sess
	h.s.mu.Unlock()
	if ss != nil {
		ss.machine.Settle()
	}
}

func (h *harness) events(method string) []Message {
	var out []Message
	for _, m := range h.out.messages(h.t) {
		if m.ID == nil && m.Method == method {
			out = append(out, m)
		}
	}
	return out
}

func result[T any](t *testing.T, m Message) T {
	t.Helper()
	var v T
	if m.Error != nil {
		t.Fatalf("error response: %d %s", m.Error.Code, m.Error.Message)
	}
	if err := json.Unmarshal(m.Result, &v); err != nil {
		t.Fatalf("decode result %s: %v", m.Result, err)
	}
	return v
}

func errorCodeOf(m Message) int {
	if m.Error == nil {
		return 0
	}
	return m.Error.Code
}

func TestServer_Run(t *testing.T) {
	input := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"tutorial/load","params":{"path":"` + tutorialPath + `"}}`,
		`not json`,
		`{"jsonrpc":"2.0","id":2,"method":"nav/bogus"}`,
		`{"jsonrpc":"2.0","id":3,"method":"shutdown"}`,
		`{"jsonrpc":"2.0","id":4,"method":"nav/next"}`,
	}, "\n")
	reg, err := registry.LoadFile(registryPath)
	if err != nil {
		t.Fatal(err)
	}
	out := &lockedBuffer{}
	s := New(WithIO(strings.NewReader(input), out), WithConfig(Config{
		Registry: reg,
		Sleeper:  &animate.InstantSleeper{},
	}))
	if err := s.Run(); err != nil {
		t.Fatal(err)
	}

	byID := map[int]Message{}
	var parseErrors int
	for _, m := range out.messages(t) {
		switch {
		case m.ID != nil:
			byID[*m.ID] = m
		case m.Error != nil && m.Error.Code == CodeParseError:
			parseErrors++
		}
	}
	load := result[LoadResult](t, byID[1])
	if load.TutorialID != "vase" || load.Steps != 4 || load.SessionID == "" {
		t.Errorf("load = %+v", load)
	}
	if parseErrors != 1 {
		t.Errorf("parse errors = %d", parseErrors)
	}
	if errorCodeOf(byID[2]) != CodeMethodNotFound {
		t.Errorf("unknown method response = %+v", byID[2])
	}
	if byID[3].Result == nil {
		t.Error("no shutdown result")
	}
	if _, ok := byID[4]; ok {
		t.Error("request after shutdown was handled")
	}
}

func TestServer_NoSession(t *testing.T) {
	h := newHarness(t, Config{})
	for _, method := range []string{"nav/next", "host/context", "redirect/skip", "state/get"} {
		if code := errorCodeOf(h.call(method, nil)); code != CodeNoSession {
			t.Errorf("%s: code = %d", method, code)
		}
	}
}

func TestServer_LoadErrors(t *testing.T) {
	h := newHarness(t, Config{})
	tests := []struct {
		name   string
		params any
	}{
		{"no source", map[string]any{}},
		{"missing file", map[string]any{"path": "nowhere.yaml"}},
		{"invalid inline", map[string]any{"tutorial": map[string]any{"tutorialId": "x", "title": "x", "steps": []any{}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code := errorCodeOf(h.call("tutorial/load", tt.params)); code != CodeInvalidParams {
				t.Errorf("code = %d", code)
			}
		})
	}
}

func TestServer_InlineTutorial(t *testing.T) {
	h := newHarness(t, Config{})
	load := result[LoadResult](t, h.call("tutorial/load", map[string]any{
		"tutorial": map[string]any{
			"tutorialId": "inline",
			"title":      "Inline",
			"steps": []any{
				map[string]any{"stepId": "a", "title": "A", "instruction": "Do A.", "checklist": []any{}, "uiAnimations": []any{}},
			},
		},
	}))
	if load.TutorialID != "inline" || load.Steps != 1 {
		t.Errorf("load = %+v", load)
	}
	if len(h.events(string(engine.NoticeStepLoaded))) != 1 {
		t.Error("no step/loaded notification")
	}
}

func TestServer_GuidedRedirect(t *testing.T) {
	store, _ := prefs.Open("")
	if err := store.SetGuidance("ON"); err != nil {
		t.Fatal(err)
	}
	h := newHarness(t, Config{Prefs: store})
	result[LoadResult](t, h.call("tutorial/load", map[string]any{"path": tutorialPath}))
	result[map[string]any](t, h.call("host/context", inSolid))

	nav := result[NavResult](t, h.call("nav/next", nil))
	if nav.Mode != engine.ModeRedirecting || nav.PendingIndex != 1 {
		t.Fatalf("nav = %+v", nav)
	}
	if len(h.events(string(engine.NoticeRedirectStarted))) != 1 {
		t.Error("no redirect/started notification")
	}

	// Navigation is held.
	if nav := result[NavResult](t, h.call("nav/next", nil)); nav.Mode != engine.ModeRedirecting {
		t.Errorf("next escaped redirect: %+v", nav)
	}

	result[map[string]any](t, h.call("host/context", inSketch))
	h.settle()
	st := result[engine.State](t, h.call("state/get", nil))
	if st.Mode != engine.ModeNormal || st.Index != 1 || st.Step.StepID != "draw-profile" {
		t.Errorf("state = %s/%d/%s", st.Mode, st.Index, st.Step.StepID)
	}
	if len(h.events(string(engine.NoticeRedirectResolved))) == 0 {
		t.Error("no redirect/resolved notification")
	}
}

func TestServer_AskAccept(t *testing.T) {
	h := newHarness(t, Config{})
	result[LoadResult](t, h.call("tutorial/load", map[string]any{"path": tutorialPath}))
	result[map[string]any](t, h.call("host/context", inSolid))

	nav := result[NavResult](t, h.call("nav/next", nil))
	if nav.Mode != engine.ModeNormal || nav.Index != 0 {
		t.Fatalf("ASK navigated without an answer: %+v", nav)
	}
	if len(h.events(string(engine.NoticeRedirectAsk))) != 1 {
		t.Fatal("no redirect/ask notification")
	}

	nav = result[NavResult](t, h.call("redirect/accept", nil))
	if nav.Mode != engine.ModeRedirecting {
		t.Errorf("after accept: %+v", nav)
	}
	if code := errorCodeOf(h.call("redirect/accept", nil)); code != CodeNothingPending {
		t.Errorf("second accept code = %d", code)
	}

	nav = result[NavResult](t, h.call("redirect/skip", nil))
	if nav.Mode != engine.ModeNormal || nav.Index != 1 {
		t.Errorf("after skip: %+v", nav)
	}
	if len(h.events(string(engine.NoticeContextWarning))) == 0 {
		t.Error("skip into a mismatched context should warn")
	}
}

func TestServer_Consent(t *testing.T) {
	h := newHarness(t, Config{})
	p := result[prefs.Prefs](t, h.call("consent/get", nil))
	if p.Guidance != "ASK" || !p.FirstRun {
		t.Errorf("defaults = %+v", p)
	}

	p = result[prefs.Prefs](t, h.call("consent/set", map[string]any{"mode": "off", "showWarnings": false}))
	if p.Guidance != "OFF" || p.FirstRun || p.ShowWarnings {
		t.Errorf("after set = %+v", p)
	}
	if code := errorCodeOf(h.call("consent/set", map[string]any{"mode": "maybe"})); code != CodeInvalidParams {
		t.Errorf("bad mode code = %d", code)
	}

	// OFF with warnings hidden navigates silently.
	result[LoadResult](t, h.call("tutorial/load", map[string]any{"path": tutorialPath}))
	result[map[string]any](t, h.call("host/context", inSolid))
	if nav := result[NavResult](t, h.call("nav/next", nil)); nav.Index != 1 {
		t.Errorf("nav = %+v", nav)
	}
	if len(h.events(string(engine.NoticeContextWarning))) != 0 {
		t.Error("warning shown although disabled")
	}
}

func TestServer_NavErrors(t *testing.T) {
	h := newHarness(t, Config{})
	result[LoadResult](t, h.call("tutorial/load", map[string]any{"path": tutorialPath}))
	if code := errorCodeOf(h.call("nav/prev", nil)); code != CodeOutOfRange {
		t.Errorf("prev at start code = %d", code)
	}
	if code := errorCodeOf(h.call("nav/goTo", map[string]any{"index": 9})); code != CodeOutOfRange {
		t.Errorf("goTo 9 code = %d", code)
	}
	if code := errorCodeOf(h.call("nav/goTo", "three")); code != CodeInvalidParams {
		t.Errorf("bad params code = %d", code)
	}
}

func TestServer_CompletionAndRender(t *testing.T) {
	h := newHarness(t, Config{})
	result[LoadResult](t, h.call("tutorial/load", map[string]any{"path": tutorialPath}))
	h.settle()

	if len(h.events(MethodRenderOverlay)) == 0 {
		t.Error("no render/overlay for the highlight")
	}
	if len(h.events(MethodRenderRipple)) == 0 {
		t.Error("no render/ripple for the click")
	}

	res := result[map[string][]map[string]any](t, h.call("host/completion", map[string]any{
		"semanticType": "sketch_created",
		"commandId":    "SketchCreate",
	}))
	if len(res["transitions"]) != 1 || res["transitions"][0]["to"] != "completed" {
		t.Errorf("transitions = %v", res["transitions"])
	}
	if code := errorCodeOf(h.call("host/completion", map[string]any{})); code != CodeInvalidParams {
		t.Errorf("empty event code = %d", code)
	}

	// Step 1 shows the sketch reference image.
	result[map[string]any](t, h.call("host/context", inSketch))
	result[NavResult](t, h.call("nav/goTo", map[string]any{"index": 1}))
	h.settle()
	imgs := h.events(MethodRenderImage)
	if len(imgs) == 0 {
		t.Fatal("no render/image")
	}
	var img ImageParams
	if err := json.Unmarshal(imgs[len(imgs)-1].Params, &img); err != nil {
		t.Fatal(err)
	}
	if img.Environment != "sketch" || img.Image != "sketch_toolbar.png" {
		t.Errorf("image = %+v", img)
	}
}

func TestServer_ResolveAndQC(t *testing.T) {
	h := newHarness(t, Config{})

	res := result[map[string]any](t, h.call("target/resolve", map[string]any{"path": "toolbar.revolve", "environment": "solid"}))
	if res["resolved"] != true {
		t.Errorf("resolve = %v", res)
	}
	res = result[map[string]any](t, h.call("target/resolve", map[string]any{"path": "viewport.body"}))
	if res["resolved"] != false {
		t.Errorf("viewport resolved: %v", res)
	}

	qc := result[map[string]any](t, h.call("qc/check", map[string]any{
		"conditions": []any{map[string]any{"type": "body_exists"}, map[string]any{"expr": "sketchCount >= 2"}},
		"state":      map[string]any{"bodyCount": 1, "sketchCount": 1},
	}))
	if qc["passed"] != false {
		t.Errorf("qc = %v", qc)
	}

	// Without conditions the current step's checks run.
	result[LoadResult](t, h.call("tutorial/load", map[string]any{"path": tutorialPath}))
	result[map[string]any](t, h.call("consent/set", map[string]any{"mode": "OFF"}))
	result[NavResult](t, h.call("nav/goTo", map[string]any{"index": 2}))
	qc = result[map[string]any](t, h.call("qc/check", map[string]any{"state": map[string]any{"bodyCount": 1}}))
	if qc["passed"] != true {
		t.Errorf("step qc = %v", qc)
	}
}

func TestServer_ResumeProgress(t *testing.T) {
	dir := t.TempDir()
	store, _ := prefs.Open("")
	if err := store.SetGuidance("OFF"); err != nil {
		t.Fatal(err)
	}

	h := newHarness(t, Config{StateDir: dir, Prefs: store})
	result[LoadResult](t, h.call("tutorial/load", map[string]any{"path": tutorialPath}))
	result[NavResult](t, h.call("nav/goTo", map[string]any{"index": 2}))
	h.s.closeSession()

	h2 := newHarness(t, Config{StateDir: dir, Prefs: store})
	load := result[LoadResult](t, h2.call("tutorial/load", map[string]any{"path": tutorialPath, "resume": true}))
	if load.Index != 2 {
		t.Errorf("resumed at %d, want 2", load.Index)
	}
	fresh := result[LoadResult](t, h2.call("tutorial/load", map[string]any{"path": tutorialPath}))
	if fresh.Index != 0 {
		t.Errorf("fresh load at %d", fresh.Index)
	}
}

func TestServer_RegistryReload(t *testing.T) {
	h := newHarness(t, Config{Registry: registry.New()})
	load := result[LoadResult](t, h.call("tutorial/load", map[string]any{"path": tutorialPath}))
	if len(load.Warnings) == 0 {
		t.Error("expected unresolved target warnings without a registry")
	}

	res := result[map[string]any](t, h.call("registry/load", map[string]any{"path": registryPath}))
	if res["components"].(float64) == 0 {
		t.Errorf("registry = %v", res)
	}
	if code := errorCodeOf(h.call("registry/load", map[string]any{"path": "missing.yaml"})); code != CodeInvalidParams {
		t.Errorf("missing registry code = %d", code)
	}
	st := result[engine.State](t, h.call("state/get", nil))
	if st.Index != 0 || st.Step.StepID != "start-sketch" {
		t.Errorf("state after reload = %d/%s", st.Index, st.Step.StepID)
	}
}

func TestServer_FailedStartLeavesNoSession(t *testing.T) {
	dir := t.TempDir()
	h := newHarness(t, Config{TraceDir: dir})

	h.s.mu.Lock()
	err := h.s.startSessionLocked(&schema.Tutorial{TutorialID: "empty"}, "", 0)
	sess := h.s.sess
	h.s.mu.Unlock()

	if !errors.Is(err, engine.ErrNoTutorial) {
		t.Fatalf("err = %v, want ErrNoTutorial", err)
	}
	if sess != nil {
		t.Error("half-started session left installed")
	}
	files, err := filepath.Glob(filepath.Join(dir, "*.jsonl"))
	if err != nil || len(files) != 1 {
		t.Fatalf("trace files = %v, %v", files, err)
	}
	res, err := trace.VerifyFile(files[0])
	if err != nil {
		t.Fatal(err)
	}
	if !res.Valid || !res.Sealed {
		t.Errorf("trace not closed cleanly: %+v", res)
	}
}
