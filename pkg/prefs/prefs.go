// Package prefs stores the user's guidance consent and display
// preferences.
package prefs

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/ormasoftchile/overlay/pkg/kernel/hostctx"
)

// Prefs holds user preferences.
type Prefs struct {
	Guidance     hostctx.Guidance `yaml:"guidance" json:"guidance"`
	FirstRun     bool             `yaml:"firstRun" json:"firstRun"`
	ShowWarnings bool             `yaml:"showWarnings" json:"showWarnings"`
}

// file mirrors Prefs with optional fields so missing keys keep defaults.
type file struct {
	Guidance     *string `yaml:"guidance,omitempty"`
	FirstRun     *bool   `yaml:"firstRun,omitempty"`
	ShowWarnings *bool   `yaml:"showWarnings,omitempty"`
}

// Defaults returns the preferences of a fresh install.
func Defaults() Prefs {
	return Prefs{
		Guidance:     hostctx.GuidanceAsk,
		FirstRun:     true,
		ShowWarnings: true,
	}
}

// DefaultPath returns prefs.yaml under the user config directory.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w", err)
	}
	return filepath.Join(dir, "overlay", "prefs.yaml"), nil
}

// Load reads preferences from path. A missing file yields Defaults.
func Load(path string) (Prefs, error) {
	p := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return p, nil
		}
		return p, fmt.Errorf("read prefs: %w", err)
	}

	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return p, fmt.Errorf("parse prefs: %w", err)
	}
	if f.Guidance != nil {
		g, err := hostctx.ParseGuidance(*f.Guidance)
		if err != nil {
			return p, fmt.Errorf("parse prefs: %w", err)
		}
		p.Guidance = g
	}
	if f.FirstRun != nil {
		p.FirstRun = *f.FirstRun
	}
	if f.ShowWarnings != nil {
		p.ShowWarnings = *f.ShowWarnings
	}
	return p, nil
}

// Save writes p to path, creating parent directories.
func Save(path string, p Prefs) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create prefs dir: %w", err)
	}
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal prefs: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write prefs: %w", err)
	}
	return nil
}

// Store is a file-backed preference set. An empty path keeps the
// preferences in memory only.
type Store struct {
	path string

	mu sync.Mutex
	p  Prefs
}

// Open loads the store at path.
func Open(path string) (*Store, error) {
	if path == "" {
		return &Store{p: Defaults()}, nil
	}
	p, err := Load(path)
	if err != nil {
		return nil, err
	}
	return &Store{path: path, p: p}, nil
}

// Get returns the current preferences.
func (s *Store) Get() Prefs {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.p
}

// SetGuidance records an explicit consent choice. Choosing a mode also
// ends the first run.
func (s *Store) SetGuidance(g hostctx.Guidance) error {
	return s.update(func(p *Prefs) {
		p.Guidance = g
		p.FirstRun = false
	})
}

// SetShowWarnings toggles context warnings.
func (s *Store) SetShowWarnings(show bool) error {
	return s.update(func(p *Prefs) { p.ShowWarnings = show })
}

func (s *Store) update(fn func(*Prefs)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.p
	fn(&next)
	if s.path != "" {
		if err := Save(s.path, next); err != nil {
			return err
		}
	}
	s.p = next
	return nil
}
