package main

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/ormasoftchile/overlay/pkg/kernel/animate"
	"github.com/ormasoftchile/overlay/pkg/kernel/engine"
	"github.com/ormasoftchile/overlay/pkg/kernel/hostctx"
	"github.com/ormasoftchile/overlay/pkg/kernel/registry"
	"github.com/ormasoftchile/overlay/pkg/kernel/resolve"
	"github.com/ormasoftchile/overlay/pkg/kernel/schema"
	"github.com/ormasoftchile/overlay/pkg/kernel/trace"
	kvalidate "github.com/ormasoftchile/overlay/pkg/kernel/validate"
	"github.com/ormasoftchile/overlay/pkg/prefs"
)

// session is a started tutorial for the interactive front-ends.
type session struct {
	runID    string
	tutorial *schema.Tutorial
	reg      *registry.Registry
	machine  *engine.Machine
	nav      *engine.Navigator
	trace    *trace.Writer
}

// sessionConfig collects what the run and console commands vary.
type sessionConfig struct {
	path     string
	surface  animate.Surface
	sink     engine.Sink
	guidance string // overrides the stored preference when set
	stateDir string // resume from and save progress to, when set
}

// loadTutorial validates path against reg and prints any warnings.
func loadTutorial(path string, reg *registry.Registry) (*schema.Tutorial, error) {
	t, errs := kvalidate.ValidateFile(path, kvalidate.Options{Registry: reg})
	if err := reportValidation(os.Stderr, errs); err != nil {
		return nil, fmt.Errorf("tutorial validation failed")
	}
	return t, nil
}

// openPrefs opens --prefs, falling back to the user config dir.
func openPrefs() (*prefs.Store, error) {
	path := prefsPath
	if path == "" {
		p, err := prefs.DefaultPath()
		if err != nil {
			logger.Warn("preferences not persisted", zap.Error(err))
			return prefs.Open("")
		}
		path = p
	}
	return prefs.Open(path)
}

func startSession(cfg sessionConfig) (*session, error) {
	reg, err := loadRegistry()
	if err != nil {
		return nil, err
	}
	t, err := loadTutorial(cfg.path, reg)
	if err != nil {
		return nil, err
	}
	store, err := openPrefs()
	if err != nil {
		return nil, err
	}
	p := store.Get()
	if cfg.guidance != "" {
		g, err := hostctx.ParseGuidance(cfg.guidance)
		if err != nil {
			return nil, err
		}
		p.Guidance = g
	}

	runID := trace.NewRunID()
	var tw *trace.Writer
	if traceDir != "" {
		if err := os.MkdirAll(traceDir, 0o755); err != nil {
			return nil, fmt.Errorf("create trace dir: %w", err)
		}
		tw, err = trace.NewFileWriter(filepath.Join(traceDir, runID+".jsonl"), runID)
		if err != nil {
			return nil, err
		}
	}

	l := logger.With(zap.String("run", runID))
	opts := []engine.Option{
		engine.WithTrace(tw),
		engine.WithLogger(l),
	}
	if speed > 0 {
		opts = append(opts, engine.WithSpeed(speed))
	}
	if cfg.sink != nil {
		opts = append(opts, engine.WithSink(cfg.sink))
	}
	m := engine.New(engine.TutorialSource{Tutorial: t}, resolve.New(reg, resolve.WithLogger(l)), cfg.surface, opts...)
	nav := engine.NewNavigator(m, engine.WithGuidance(p.Guidance), engine.WithWarnings(p.ShowWarnings))
	s := &session{runID: runID, tutorial: t, reg: reg, machine: m, nav: nav, trace: tw}

	if err := nav.Start(); err != nil {
		s.close()
		return nil, fmt.Errorf("start tutorial: %w", err)
	}
	if cfg.stateDir != "" {
		if prog, err := engine.LoadProgress(cfg.stateDir, t.TutorialID); err == nil && prog.StepIndex > 0 && prog.StepIndex < len(t.Steps) {
			if err := nav.GoTo(prog.StepIndex); err != nil {
				l.Warn("resume failed", zap.Int("index", prog.StepIndex), zap.Error(err))
			}
		}
	}
	l.Info("session started", zap.String("tutorial", t.TutorialID), zap.Int("steps", len(t.Steps)))
	return s, nil
}

// saveProgress records the step the learner is working on. A redirect
// records the step it will return to.
func (s *session) saveProgress(dir, path string) error {
	st := s.machine.Snapshot()
	index := st.Index
	if st.Mode == engine.ModeRedirecting && st.PendingIndex >= 0 {
		index = st.PendingIndex
	}
	return engine.SaveProgress(dir, &engine.Progress{
		RunID:        s.runID,
		TutorialID:   s.tutorial.TutorialID,
		TutorialPath: path,
		StepIndex:    index,
	})
}

func (s *session) close() {
	s.machine.Close()
	s.trace.EmitSessionEnd(s.machine.Index())
	if err := s.trace.Close(); err != nil {
		logger.Warn("trace close error", zap.Error(err))
	}
}
