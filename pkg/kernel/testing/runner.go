package testing

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ormasoftchile/overlay/pkg/kernel/animate"
	"github.com/ormasoftchile/overlay/pkg/kernel/completion"
	"github.com/ormasoftchile/overlay/pkg/kernel/engine"
	"github.com/ormasoftchile/overlay/pkg/kernel/registry"
	"github.com/ormasoftchile/overlay/pkg/kernel/replay"
	"github.com/ormasoftchile/overlay/pkg/kernel/resolve"
	"github.com/ormasoftchile/overlay/pkg/kernel/schema"
	"github.com/ormasoftchile/overlay/pkg/kernel/trace"
	"github.com/ormasoftchile/overlay/pkg/kernel/validate"
)

// TestResult is the result of running one scenario.
type TestResult struct {
	TutorialID   string            `json:"tutorial_id"`
	ScenarioName string            `json:"scenario_name"`
	Status       string            `json:"status"` // passed, failed, skipped, error
	DurationMs   int64             `json:"duration_ms"`
	Assertions   []AssertionResult `json:"assertions,omitempty"`
	Error        string            `json:"error,omitempty"`
}

// TestSummary aggregates counts across scenarios.
type TestSummary struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
	Errors  int `json:"errors"`
}

// TestOutput is the top-level output of a test run.
type TestOutput struct {
	Tutorial  string       `json:"tutorial"`
	Scenarios []TestResult `json:"scenarios"`
	Summary   TestSummary  `json:"summary"`
}

// Runner executes scenario-based tests against a tutorial. Animations run
// with an instant sleeper against a recording surface, so a scenario
// takes as long as its state transitions.
type Runner struct {
	Registry *registry.Registry
	Logger   *zap.Logger
	Timeout  time.Duration
	FailFast bool
}

// ScenarioInfo describes a discovered scenario directory.
type ScenarioInfo struct {
	Name string
	Dir  string
}

// DiscoverScenarios finds scenario directories for a tutorial.
// Convention: scenarios are in a sibling `scenarios/<tutorial-name>/`
// directory, each subdirectory containing a `scenario.yaml`.
func DiscoverScenarios(tutorialPath string) ([]ScenarioInfo, error) {
	scenariosDir := scenariosDir(tutorialPath)
	entries, err := os.ReadDir(scenariosDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read scenarios dir: %w", err)
	}

	var scenarios []ScenarioInfo
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		scenarioFile := filepath.Join(scenariosDir, entry.Name(), "scenario.yaml")
		if _, err := os.Stat(scenarioFile); err == nil {
			scenarios = append(scenarios, ScenarioInfo{
				Name: entry.Name(),
				Dir:  filepath.Join(scenariosDir, entry.Name()),
			})
		}
	}
	return scenarios, nil
}

func scenariosDir(tutorialPath string) string {
	base := strings.TrimSuffix(filepath.Base(tutorialPath), filepath.Ext(tutorialPath))
	return filepath.Join(filepath.Dir(tutorialPath), "scenarios", base)
}

// RunAll discovers and runs all scenarios for a tutorial.
func (r *Runner) RunAll(tutorialPath string) (*TestOutput, error) {
	scenarios, err := DiscoverScenarios(tutorialPath)
	if err != nil {
		return nil, err
	}

	t, err := r.load(tutorialPath)
	if err != nil {
		return nil, err
	}

	output := &TestOutput{Tutorial: t.TutorialID}
	for _, si := range scenarios {
		result := r.runScenario(t, si)
		output.Scenarios = append(output.Scenarios, result)

		switch result.Status {
		case "passed":
			output.Summary.Passed++
		case "failed":
			output.Summary.Failed++
		case "skipped":
			output.Summary.Skipped++
		case "error":
			output.Summary.Errors++
		}
		output.Summary.Total++

		if r.FailFast && (result.Status == "failed" || result.Status == "error") {
			break
		}
	}
	return output, nil
}

// RunScenario runs a single named scenario.
func (r *Runner) RunScenario(tutorialPath, scenarioName string) (*TestResult, error) {
	t, err := r.load(tutorialPath)
	if err != nil {
		return nil, err
	}
	si := ScenarioInfo{Name: scenarioName, Dir: filepath.Join(scenariosDir(tutorialPath), scenarioName)}
	result := r.runScenario(t, si)
	return &result, nil
}

func (r *Runner) load(tutorialPath string) (*schema.Tutorial, error) {
	t, valErrs := validate.ValidateFile(tutorialPath, validate.Options{Registry: r.Registry})
	if validate.HasErrors(valErrs) {
		errs, _ := validate.Split(valErrs)
		return nil, fmt.Errorf("tutorial validation failed: %v", errs[0])
	}
	return t, nil
}

// runScenario executes a single scenario and evaluates its test spec.
func (r *Runner) runScenario(t *schema.Tutorial, si ScenarioInfo) TestResult {
	start := time.Now()
	fail := func(status, msg string) TestResult {
		return TestResult{
			TutorialID:   t.TutorialID,
			ScenarioName: si.Name,
			Status:       status,
			DurationMs:   time.Since(start).Milliseconds(),
			Error:        msg,
		}
	}

	scenario, err := replay.LoadScenarioDir(si.Dir)
	if err != nil {
		return fail("error", fmt.Sprintf("load scenario: %s", err))
	}

	// No test.yaml means nothing to assert.
	testSpecPath := filepath.Join(si.Dir, "test.yaml")
	if _, err := os.Stat(testSpecPath); err != nil {
		return fail("skipped", "")
	}
	spec, err := LoadTestSpec(testSpecPath)
	if err != nil {
		return fail("error", fmt.Sprintf("load test spec: %s", err))
	}

	var run *RunResult
	if r.Timeout > 0 {
		done := make(chan struct{})
		go func() {
			run = r.Run(t, scenario, si.Name)
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(r.Timeout):
			return fail("error", "timeout")
		}
	} else {
		run = r.Run(t, scenario, si.Name)
	}
	if run.Error != nil {
		return fail("error", run.Error.Error())
	}

	assertions := Evaluate(spec, run)
	status := "passed"
	if HasFailures(assertions) {
		status = "failed"
	}
	return TestResult{
		TutorialID:   t.TutorialID,
		ScenarioName: si.Name,
		Status:       status,
		DurationMs:   time.Since(start).Milliseconds(),
		Assertions:   assertions,
	}
}

// Run plays scenario s against tutorial t and collects the outcome.
func (r *Runner) Run(t *schema.Tutorial, s *replay.Scenario, name string) *RunResult {
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("scenario", name))
	reg := r.Registry
	if reg == nil {
		reg = registry.New()
	}

	var traceBuf bytes.Buffer
	sink := &engine.RecordingSink{}
	m := engine.New(engine.TutorialSource{Tutorial: t},
		resolve.New(reg, resolve.WithLogger(logger)),
		animate.NewRecorder(),
		engine.WithSink(sink),
		engine.WithTrace(trace.NewWriter(&traceBuf, "test-"+name)),
		engine.WithLogger(logger),
		engine.WithSleeper(&animate.InstantSleeper{}),
	)
	defer m.Close()

	nav := engine.NewNavigator(m, s.NavigatorOptions()...)
	if err := replay.NewPlayer(s, logger).Play(nav); err != nil {
		return &RunResult{Error: err}
	}
	m.Settle()

	st := m.Snapshot()
	run := &RunResult{
		Index:    st.Index,
		Mode:     string(st.Mode),
		StepID:   st.Step.StepID,
		Complete: completion.Done(st.Checklist),
		Visited:  visitedSteps(sink.Notices()),
	}
	for _, it := range st.Checklist {
		run.Checklist = append(run.Checklist, string(it.State))
	}
	events, err := trace.ReadEvents(&traceBuf)
	if err != nil {
		run.Error = err
		return run
	}
	run.Resolved = resolvedTargets(events)
	return run
}

func visitedSteps(notices []engine.Notice) []string {
	var out []string
	for _, n := range notices {
		if n.Kind != engine.NoticeStepLoaded {
			continue
		}
		if sl, ok := n.Data.(engine.StepLoaded); ok && !sl.Redirect {
			out = append(out, sl.Step.StepID)
		}
	}
	return out
}

func resolvedTargets(events []trace.Event) []string {
	var out []string
	for _, e := range events {
		if e.Type != trace.EventTargetResolved {
			continue
		}
		if p, ok := e.Data["path"].(string); ok {
			out = append(out, p)
		}
	}
	return out
}
