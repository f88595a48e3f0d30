package completion

import (
	"strings"

	"go.uber.org/zap"

	"github.com/ormasoftchile/overlay/pkg/kernel/schema"
)

// Matcher applies completion events to a checklist.
type Matcher struct {
	rules    Rules
	commands map[EventType]map[string]bool
	logger   *zap.Logger
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithRules replaces the default correlation tables.
func WithRules(r Rules) Option {
	return func(m *Matcher) { m.rules = r }
}

// WithLogger sets the matcher logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Matcher) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewMatcher returns a matcher using DefaultRules unless overridden.
func NewMatcher(opts ...Option) *Matcher {
	m := &Matcher{rules: DefaultRules(), logger: zap.NewNop()}
	for _, o := range opts {
		o(m)
	}
	m.commands = make(map[EventType]map[string]bool, len(m.rules.EventCommands))
	for et, ids := range m.rules.EventCommands {
		set := make(map[string]bool, len(ids))
		for _, id := range ids {
			set[id] = true
		}
		m.commands[et] = set
	}
	return m
}

// Match reports whether ev applies to item and which tier matched.
// Tiers are tried in order: explicit command binding, event-class mapping,
// then the keyword heuristic for items without a command identifier.
func (m *Matcher) Match(item schema.ChecklistItem, ev Event) (Rule, bool) {
	if item.RequiredCommandID != "" {
		if ev.CommandID != "" && item.RequiredCommandID == ev.CommandID {
			return RuleExplicit, true
		}
		if m.commands[ev.SemanticType][item.RequiredCommandID] {
			return RuleMapping, true
		}
		return "", false
	}

	text := strings.ToLower(item.Text)
	if text == "" {
		return "", false
	}
	for _, kw := range m.rules.EventKeywords[ev.SemanticType] {
		if strings.Contains(text, kw) {
			return RuleHeuristic, true
		}
	}
	if ev.CommandID != "" {
		for _, kw := range m.rules.CommandKeywords[ev.CommandID] {
			if strings.Contains(text, kw) {
				return RuleHeuristic, true
			}
		}
	}
	return "", false
}

// Apply updates items in place and returns the transitions made. Completed
// items are never revisited.
func (m *Matcher) Apply(items []Item, ev Event) []Transition {
	var out []Transition
	switch ev.Class() {
	case ClassStarted:
		if i, rule, ok := m.first(items, ev, StatePending, StateFailed); ok {
			out = append(out, m.move(items, i, StateChecking, rule))
		}
	case ClassTerminated:
		// An item already in progress is the one the command was for.
		i, rule, ok := m.first(items, ev, StateChecking)
		if !ok {
			i, rule, ok = m.first(items, ev, StatePending, StateFailed)
		}
		if ok {
			out = append(out, m.move(items, i, StateCompleted, rule))
		}
	case ClassStructural:
		for i := range items {
			if items[i].State == StateCompleted {
				continue
			}
			if rule, ok := m.Match(items[i].ChecklistItem, ev); ok {
				out = append(out, m.move(items, i, StateCompleted, rule))
			}
		}
	case ClassCancelled:
		if i, rule, ok := m.first(items, ev, StateChecking); ok {
			out = append(out, m.move(items, i, StateFailed, rule))
		}
	}
	if len(out) == 0 {
		m.logger.Debug("completion event matched nothing",
			zap.String("semanticType", string(ev.SemanticType)),
			zap.String("commandId", ev.CommandID))
	}
	return out
}

func (m *Matcher) first(items []Item, ev Event, states ...State) (int, Rule, bool) {
	for i := range items {
		if !hasState(items[i].State, states) {
			continue
		}
		if rule, ok := m.Match(items[i].ChecklistItem, ev); ok {
			return i, rule, true
		}
	}
	return -1, "", false
}

func (m *Matcher) move(items []Item, i int, to State, rule Rule) Transition {
	t := Transition{Index: i, Text: items[i].Text, From: items[i].State, To: to, Rule: rule}
	items[i].State = to
	m.logger.Debug("checklist transition",
		zap.Int("index", i),
		zap.String("from", string(t.From)),
		zap.String("to", string(t.To)),
		zap.String("rule", string(rule)))
	return t
}

func hasState(s State, set []State) bool {
	for _, x := range set {
		if s == x {
			return true
		}
	}
	return false
}
