package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrBadTutorialID is returned for tutorial ids that cannot name a
// progress file inside the state directory.
var ErrBadTutorialID = errors.New("tutorial id is not a valid file name")

// Progress records where a learner left a tutorial so a later session can
// resume there.
type Progress struct {
	RunID        string    `json:"run_id"`
	TutorialID   string    `json:"tutorial_id"`
	TutorialPath string    `json:"tutorial_path,omitempty"`
	StepIndex    int       `json:"step_index"`
	SavedAt      time.Time `json:"saved_at"`
}

// ProgressPath returns the file that holds progress for tutorialID. The id
// must be a plain name: no separators, and not "." or "..".
func ProgressPath(dir, tutorialID string) (string, error) {
	if tutorialID == "" || tutorialID == "." || tutorialID == ".." ||
		strings.ContainsAny(tutorialID, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrBadTutorialID, tutorialID)
	}
	return filepath.Join(dir, tutorialID+".json"), nil
}

// SaveProgress persists p under dir.
func SaveProgress(dir string, p *Progress) error {
	path, err := ProgressPath(dir, p.TutorialID)
	if err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create progress dir: %w", err)
	}
	if p.SavedAt.IsZero() {
		p.SavedAt = time.Now().UTC()
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write progress: %w", err)
	}
	return nil
}

// LoadProgress reads saved progress for tutorialID.
func LoadProgress(dir, tutorialID string) (*Progress, error) {
	path, err := ProgressPath(dir, tutorialID)
	if err != nil {
		return nil, fmt.Errorf("load progress: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read progress: %w", err)
	}
	var p Progress
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("unmarshal progress: %w", err)
	}
	return &p, nil
}
