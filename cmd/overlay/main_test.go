package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ormasoftchile/overlay/pkg/kernel/animate"
	"github.com/ormasoftchile/overlay/pkg/kernel/engine"
	ktesting "github.com/ormasoftchile/overlay/pkg/kernel/testing"
	"github.com/ormasoftchile/overlay/pkg/kernel/trace"
)

const (
	tutorialPath = "../../testdata/vase.yaml"
	registryFile = "../../testdata/registry.yaml"
)

// execute runs the root command with args, resetting flag variables
// left over from earlier runs.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	registryPath, logLevel, logMode, prefsPath, traceDir, speed = "", "warn", "development", "", "", 1
	validateKind, resolveEnv = "tutorial", ""
	testScenario, testJSON, testFailFast, testTimeout = "", false, false, "30s"

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestValidateCmd(t *testing.T) {
	broken := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(broken, []byte("apiVersion: overlay/v0\nsteps: [\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		args    []string
		want    string
		wantErr bool
	}{
		{"tutorial", []string{"validate", "--registry", registryFile, tutorialPath}, "vase is valid (4 steps)", false},
		{"registry", []string{"validate", "--kind", "registry", registryFile}, "registry is valid", false},
		{"broken", []string{"validate", broken}, "", true},
		{"bad kind", []string{"validate", "--kind", "tool", tutorialPath}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, tt.args...)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v", err)
			}
			if !strings.Contains(out, tt.want) {
				t.Errorf("output = %q, want %q", out, tt.want)
			}
		})
	}
}

func TestResolveCmd(t *testing.T) {
	out, err := execute(t, "resolve", "--registry", registryFile, "--env", "solid", "toolbar.revolve")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "✓ toolbar.revolve") || !strings.Contains(out, "Revolve") {
		t.Errorf("output = %q", out)
	}

	out, err = execute(t, "resolve", "--registry", registryFile, "toolbar.revolve", "viewport.body")
	if err == nil || !strings.Contains(out, "✗ viewport.body") {
		t.Errorf("unresolved: err=%v output=%q", err, out)
	}

	if _, err := execute(t, "resolve", "toolbar.line"); err == nil {
		t.Error("expected error without --registry")
	}
	if _, err := execute(t, "resolve", "--registry", registryFile, "--env", "nowhere", "toolbar.line"); err == nil {
		t.Error("expected error for unknown environment")
	}
}

func TestSchemaCmd(t *testing.T) {
	for _, kind := range []string{"tutorial", "registry"} {
		out, err := execute(t, "schema", kind)
		if err != nil {
			t.Fatal(err)
		}
		if !json.Valid([]byte(out)) || !strings.Contains(out, kind+"-v0.json") {
			t.Errorf("%s schema output is not the %s schema", kind, kind)
		}
	}
	if _, err := execute(t, "schema", "runbook"); err == nil {
		t.Error("expected error for unknown schema")
	}
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil || !strings.HasPrefix(out, "overlay dev") {
		t.Errorf("version: %q %v", out, err)
	}
}

func TestTestCmd(t *testing.T) {
	out, err := execute(t, "test", "--registry", registryFile, tutorialPath)
	if err != nil {
		t.Fatalf("err = %v\n%s", err, out)
	}
	if !strings.Contains(out, "✓ guided-redirect") || !strings.Contains(out, "0 failed") {
		t.Errorf("output = %q", out)
	}

	out, err = execute(t, "test", "--json", "--scenario", "ask-skip", "--registry", registryFile, tutorialPath)
	if err != nil {
		t.Fatal(err)
	}
	var res ktesting.TestOutput
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatal(err)
	}
	if res.Tutorial != "vase" || res.Summary.Total != 1 || res.Summary.Passed != 1 {
		t.Errorf("summary = %+v", res.Summary)
	}

	_, err = execute(t, "test", filepath.Join(t.TempDir(), "missing.yaml"))
	var ee *exitError
	if !errors.As(err, &ee) || ee.code != 2 {
		t.Errorf("missing tutorial: err = %v", err)
	}

	if _, err := execute(t, "test", "--timeout", "soon", tutorialPath); err == nil {
		t.Error("expected error for bad timeout")
	}
}

func TestPrintTestOutput(t *testing.T) {
	var buf bytes.Buffer
	printTestOutput(&buf, &ktesting.TestOutput{
		Tutorial: "vase",
		Scenarios: []ktesting.TestResult{
			{ScenarioName: "ok", Status: "passed"},
			{ScenarioName: "bad", Status: "failed", Assertions: []ktesting.AssertionResult{
				{Type: "expected_index", Passed: false, Message: "index 1, want 2"},
			}},
			{ScenarioName: "todo", Status: "skipped"},
			{ScenarioName: "boom", Status: "error", Error: "load scenario"},
		},
		Summary: ktesting.TestSummary{Total: 4, Passed: 1, Failed: 1, Skipped: 1, Errors: 1},
	})
	out := buf.String()
	for _, want := range []string{"✓ ok", "✗ bad", "expected_index: index 1, want 2", "○ todo", "ERROR: load scenario", "1 errors"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
}

func TestTraceVerifyCmd(t *testing.T) {
	t.Setenv(trace.SigningKeyEnv, "")
	dir := t.TempDir()
	good := filepath.Join(dir, "good.jsonl")
	tw, err := trace.NewFileWriter(good, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	tw.EmitSessionStart("vase", 4, nil)
	tw.EmitSessionEnd(0)
	tw.Close()

	out, err := execute(t, "trace", "verify", good)
	if err != nil || !strings.Contains(out, "2 events, no breaks") {
		t.Errorf("good trace: %q %v", out, err)
	}

	data, _ := os.ReadFile(good)
	bad := filepath.Join(dir, "bad.jsonl")
	os.WriteFile(bad, bytes.Replace(data, []byte(`"vase"`), []byte(`"vace"`), 1), 0o644)
	out, err = execute(t, "trace", "verify", bad)
	if err == nil || !strings.Contains(out, "Chain broken at event 2") {
		t.Errorf("tampered trace: %q %v", out, err)
	}
}

// copyTutorial puts a writable copy of the vase tutorial in a temp dir.
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

func useSessionFlags(t *testing.T) {
	t.Helper()
	registryPath = registryFile
	prefsPath = filepath.Join(t.TempDir(), "prefs.yaml")
	traceDir = ""
	speed = 1000
}

func TestSession_ProgressAndResume(t *testing.T) {
	useSessionFlags(t)
	state := t.TempDir()
	path := copyTutorial(t)

	s, err := startSession(sessionConfig{path: path, surface: animate.NewRecorder(), guidance: "off"})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.nav.GoTo(2); err != nil {
		t.Fatal(err)
	}
	if err := s.saveProgress(state, path); err != nil {
		t.Fatal(err)
	}
	s.close()

	s, err = startSession(sessionConfig{path: path, surface: animate.NewRecorder(), guidance: "OFF", stateDir: state})
	if err != nil {
		t.Fatal(err)
	}
	defer s.close()
	if got := s.machine.Index(); got != 2 {
		t.Errorf("resumed at %d, want 2", got)
	}
}

func TestSession_BadGuidance(t *testing.T) {
	useSessionFlags(t)
	if _, err := startSession(sessionConfig{path: tutorialPath, surface: animate.NewRecorder(), guidance: "sometimes"}); err == nil {
		t.Error("expected error for bad guidance")
	}
}

func TestReloadTutorial(t *testing.T) {
	useSessionFlags(t)
	path := copyTutorial(t)
	s, err := startSession(sessionConfig{path: path, surface: animate.NewRecorder(), guidance: "OFF"})
	if err != nil {
		t.Fatal(err)
	}
	defer s.close()
	if err := s.nav.GoTo(3); err != nil {
		t.Fatal(err)
	}

	if msg := reloadTutorial(s, path); msg != "Reloaded vase.yaml (4 steps)." {
		t.Errorf("reload = %q", msg)
	}
	if s.machine.Index() != 3 || s.machine.Mode() != engine.ModeNormal {
		t.Errorf("after reload: %d/%s", s.machine.Index(), s.machine.Mode())
	}

	if err := os.WriteFile(path, []byte("steps: [\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if msg := reloadTutorial(s, path); !strings.Contains(msg, "keeping the previous version") {
		t.Errorf("broken reload = %q", msg)
	}
	if s.machine.Total() != 4 {
		t.Errorf("total = %d after rejected reload", s.machine.Total())
	}
}
