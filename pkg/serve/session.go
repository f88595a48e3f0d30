package serve

import (
	"go.uber.org/zap"

	"github.com/ormasoftchile/overlay/pkg/kernel/engine"
	"github.com/ormasoftchile/overlay/pkg/kernel/schema"
)

// saveProgress records the session's step in StateDir so a later
// tutorial/load with resume can continue there. Redirect steps are not
// recorded; the pending step is what the learner is working towards.
func (s *Server) saveProgress(ss *session) {
	if s.cfg.StateDir == "" {
		return
	}
	st := ss.machine.Snapshot()
	index := st.Index
	if st.Mode == engine.ModeRedirecting && st.PendingIndex >= 0 {
		index = st.PendingIndex
	}
	p := &engine.Progress{
		RunID:        ss.id,
		TutorialID:   ss.tutorial.TutorialID,
		TutorialPath: ss.path,
		StepIndex:    index,
	}
	if err := engine.SaveProgress(s.cfg.StateDir, p); err != nil {
		s.logger.Warn("session save error", zap.Error(err))
	}
}

// resumeIndex returns the saved step for t, or 0 when nothing usable is
// saved.
func (s *Server) resumeIndex(t *schema.Tutorial) int {
	if s.cfg.StateDir == "" {
		return 0
	}
	p, err := engine.LoadProgress(s.cfg.StateDir, t.TutorialID)
	if err != nil {
		s.logger.Debug("no saved progress", zap.String("tutorial", t.TutorialID), zap.Error(err))
		return 0
	}
	if p.StepIndex < 0 || p.StepIndex >= len(t.Steps) {
		return 0
	}
	return p.StepIndex
}
