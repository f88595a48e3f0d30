package main

import (
	"context"
	"fmt"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ormasoftchile/overlay/pkg/ecosystem/tui"
	"github.com/ormasoftchile/overlay/pkg/kernel/engine"
	"github.com/ormasoftchile/overlay/pkg/watch"
)

var (
	runWatchFile bool
	runResume    bool
	runStateDir  string
	runGuidance  string
)

var runCmd = &cobra.Command{
	Use:   "run [tutorial.yaml]",
	Short: "Play a tutorial in the terminal",
	Long: `Play a tutorial in a terminal surface: the reference image is drawn as a
schematic of its components, with the animated cursor, click ripples and
highlight overlays on top.

The host is simulated from the keyboard: 'e' cycles the environment and
'c' completes the command of the first open checklist item.

With --watch the tutorial file is reloaded whenever it changes on disk.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	path := args[0]
	surface := tui.NewSurface()
	cfg := sessionConfig{path: path, surface: surface, guidance: runGuidance}
	if runResume {
		cfg.stateDir = runStateDir
	}
	s, err := startSession(cfg)
	if err != nil {
		return err
	}
	defer s.close()

	p := tea.NewProgram(tui.NewModel(s.nav, surface, s.reg, s.tutorial.Title), tea.WithAltScreen())

	if runWatchFile {
		w, err := watch.New([]string{path}, func(string) {
			p.Send(tui.NoticeMsg(reloadTutorial(s, path)))
		}, watch.WithLogger(logger))
		if err != nil {
			return err
		}
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		w.Start(ctx)
		defer w.Stop()
	}

	_, runErr := p.Run()
	if err := s.saveProgress(runStateDir, path); err != nil {
		logger.Warn("progress not saved", zap.Error(err))
	}
	return runErr
}

// reloadTutorial re-validates path and swaps it into the running
// session. It returns a notice for the learner.
func reloadTutorial(s *session, path string) string {
	t, err := loadTutorial(path, s.reg)
	if err != nil {
		logger.Warn("reload rejected", zap.String("path", path), zap.Error(err))
		return fmt.Sprintf("%s has errors; keeping the previous version.", filepath.Base(path))
	}
	if err := s.machine.Reload(engine.TutorialSource{Tutorial: t}); err != nil {
		return fmt.Sprintf("Reload failed: %v", err)
	}
	logger.Info("tutorial reloaded", zap.String("path", path), zap.Int("steps", len(t.Steps)))
	return fmt.Sprintf("Reloaded %s (%d steps).", filepath.Base(path), len(t.Steps))
}

func init() {
	runCmd.Flags().BoolVar(&runWatchFile, "watch", false, "Reload the tutorial when the file changes")
	runCmd.Flags().BoolVar(&runResume, "resume", false, "Continue from the saved step")
	runCmd.Flags().StringVar(&runStateDir, "state", ".overlay", "Directory for saved progress")
	runCmd.Flags().StringVar(&runGuidance, "guidance", "", "Guidance mode for this run: ON, ASK or OFF (default: stored preference)")
	rootCmd.AddCommand(runCmd)
}
