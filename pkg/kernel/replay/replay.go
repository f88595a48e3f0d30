// Package replay plays scripted host input against a navigator. A
// scenario lists what the host would send (navigation presses, completion
// events, context changes, redirect answers), enabling deterministic
// re-runs of a tutorial without a live host.
package replay

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ormasoftchile/overlay/pkg/kernel/completion"
	"github.com/ormasoftchile/overlay/pkg/kernel/engine"
	"github.com/ormasoftchile/overlay/pkg/kernel/hostctx"
)

// Action kinds.
const (
	ActionNext    = "next"
	ActionPrev    = "prev"
	ActionGoTo    = "goto"
	ActionEvent   = "event"
	ActionContext = "context"
	ActionSkip    = "skip"
	ActionAccept  = "accept"
	ActionReplay  = "replay"
)

// Scenario is the top-level replay scenario document.
type Scenario struct {
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Guidance is the context guard mode: ON, ASK or OFF. Empty means ASK.
	Guidance string `yaml:"guidance,omitempty" json:"guidance,omitempty"`

	// ShowWarnings toggles context warnings. Defaults to true.
	ShowWarnings *bool `yaml:"show_warnings,omitempty" json:"show_warnings,omitempty"`

	// Context is reported before the session starts. Without it the host
	// context stays unknown until a context action.
	Context *hostctx.Context `yaml:"context,omitempty" json:"context,omitempty"`

	Actions []Action `yaml:"actions" json:"actions"`
}

// Action is one scripted host input.
type Action struct {
	Do      string            `yaml:"do" json:"do"`
	Index   int               `yaml:"index,omitempty" json:"index,omitempty"`
	Event   *completion.Event `yaml:"event,omitempty" json:"event,omitempty"`
	Context *hostctx.Context  `yaml:"context,omitempty" json:"context,omitempty"`
}

// LoadScenario loads a scenario from a YAML file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML and checks every action is playable.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if s.Guidance != "" {
		if _, err := hostctx.ParseGuidance(s.Guidance); err != nil {
			return nil, fmt.Errorf("parse scenario: %w", err)
		}
	}
	for i, a := range s.Actions {
		if err := a.check(); err != nil {
			return nil, fmt.Errorf("parse scenario: actions[%d]: %w", i, err)
		}
	}
	return &s, nil
}

// LoadScenarioDir loads a scenario from a directory containing scenario.yaml.
func LoadScenarioDir(dir string) (*Scenario, error) {
	return LoadScenario(filepath.Join(dir, "scenario.yaml"))
}

func (a Action) check() error {
	switch a.Do {
	case ActionNext, ActionPrev, ActionGoTo, ActionSkip, ActionAccept, ActionReplay:
		return nil
	case ActionEvent:
		if a.Event == nil || a.Event.SemanticType == "" {
			return fmt.Errorf("event action needs event.semanticType")
		}
		return nil
	case ActionContext:
		if a.Context == nil {
			return fmt.Errorf("context action needs a context")
		}
		return nil
	case "":
		return fmt.Errorf("action has no 'do'")
	default:
		return fmt.Errorf("unknown action %q", a.Do)
	}
}

// NavigatorOptions returns the navigator options the scenario asks for.
func (s *Scenario) NavigatorOptions() []engine.NavigatorOption {
	var opts []engine.NavigatorOption
	if g, err := hostctx.ParseGuidance(s.Guidance); err == nil {
		opts = append(opts, engine.WithGuidance(g))
	}
	if s.ShowWarnings != nil {
		opts = append(opts, engine.WithWarnings(*s.ShowWarnings))
	}
	return opts
}

// Player applies a scenario's actions to a navigator in order, letting the
// machine settle after each so animations and deferred redirect exits
// finish before the next input.
type Player struct {
	scenario *Scenario
	logger   *zap.Logger
}

// NewPlayer creates a player for s.
func NewPlayer(s *Scenario, logger *zap.Logger) *Player {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Player{scenario: s, logger: logger}
}

// Play starts the session on n and applies every action. Navigation past
// either end and answers with nothing pending are no-ops, as they are for
// a user pressing the buttons.
func (p *Player) Play(n *engine.Navigator) error {
	m := n.Machine()
	if p.scenario.Context != nil {
		if err := n.UpdateContext(*p.scenario.Context); err != nil {
			return fmt.Errorf("initial context: %w", err)
		}
	}
	if err := n.Start(); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	m.Settle()

	for i, a := range p.scenario.Actions {
		err := p.apply(n, a)
		m.Settle()
		switch {
		case err == nil:
		case errors.Is(err, engine.ErrOutOfRange), errors.Is(err, engine.ErrNothingPending):
			p.logger.Debug("action ignored", zap.Int("action", i), zap.String("do", a.Do), zap.Error(err))
		default:
			return fmt.Errorf("actions[%d] %s: %w", i, a.Do, err)
		}
	}
	return nil
}

func (p *Player) apply(n *engine.Navigator, a Action) error {
	p.logger.Debug("apply", zap.String("do", a.Do), zap.Int("index", a.Index))
	switch a.Do {
	case ActionNext:
		return n.Next()
	case ActionPrev:
		return n.Prev()
	case ActionGoTo:
		return n.GoTo(a.Index)
	case ActionEvent:
		n.Completion(*a.Event)
		return nil
	case ActionContext:
		return n.UpdateContext(*a.Context)
	case ActionSkip:
		return n.Skip()
	case ActionAccept:
		return n.Accept()
	case ActionReplay:
		n.Replay()
		return nil
	}
	return a.check()
}
