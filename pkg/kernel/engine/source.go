package engine

import (
	"errors"
	"fmt"

	"github.com/ormasoftchile/overlay/pkg/kernel/schema"
)

var (
	// ErrOutOfRange is returned for a step index outside the tutorial.
	ErrOutOfRange = errors.New("step index out of range")
	// ErrNoTutorial is returned when no steps are loaded.
	ErrNoTutorial = errors.New("no tutorial loaded")
)

// StepSource supplies step descriptors by index.
type StepSource interface {
	Len() int
	Step(index int) (schema.Step, error)
}

// TutorialSource serves the steps of a loaded tutorial.
type TutorialSource struct {
	Tutorial *schema.Tutorial
}

// Len returns the number of steps.
func (s TutorialSource) Len() int {
	if s.Tutorial == nil {
		return 0
	}
	return len(s.Tutorial.Steps)
}

// Step returns a copy of step index.
func (s TutorialSource) Step(index int) (schema.Step, error) {
	if s.Len() == 0 {
		return schema.Step{}, ErrNoTutorial
	}
	if index < 0 || index >= len(s.Tutorial.Steps) {
		return schema.Step{}, fmt.Errorf("step %d of %d: %w", index, len(s.Tutorial.Steps), ErrOutOfRange)
	}
	return s.Tutorial.Steps[index], nil
}
