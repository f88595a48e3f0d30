// Package resolve maps symbolic dot-separated target paths to positioned
// components of the registry, trying a fixed cascade of strategies.
package resolve

import (
	"sort"
	"strings"
	"sync"
	"unicode"

	"go.uber.org/zap"

	"github.com/ormasoftchile/overlay/pkg/kernel/registry"
	"github.com/ormasoftchile/overlay/pkg/kernel/schema"
)

// Strategy names the cascade stage that produced a match.
type Strategy string

const (
	StrategyDirect     Strategy = "direct"
	StrategyStripped   Strategy = "stripped"
	StrategyShortened  Strategy = "shortened"
	StrategyWildcard   Strategy = "wildcard"
	StrategyHyphenated Strategy = "hyphenated"
	StrategySubstring  Strategy = "substring"
	StrategyBrowser    Strategy = "browser"
	StrategyBare       Strategy = "bare"
)

// rejectedRoots never resolve to fixed UI positions.
var rejectedRoots = map[string]bool{
	"viewport": true,
	"canvas":   true,
	"dialog":   true,
}

// structuralNoise are segments that qualify a path without naming a UI
// container. A leading environment name qualifies the lookup instead of
// being dropped.
var structuralNoise = map[string]bool{
	"root":          true,
	"rootcomponent": true,
	"ui":            true,
	"app":           true,
	"fusion":        true,
	"fusion360":     true,
	"design":        true,
	"workspace":     true,
	"mode":          true,
	"environment":   true,
}

// Target is a resolved component, positioned for the active environment.
type Target struct {
	Key         string      `json:"key"`
	Environment string      `json:"environment"`
	ImageIndex  int         `json:"imageIndex"`
	Rect        schema.Rect `json:"rect"`
	Label       string      `json:"label"`
	Agnostic    bool        `json:"agnostic,omitempty"`
	Strategy    Strategy    `json:"strategy"`
}

// Resolver resolves target paths against a registry. Results are a pure
// function of the registry and the active environment.
type Resolver struct {
	reg    *registry.Registry
	logger *zap.Logger

	mu     sync.RWMutex
	active string
	envs   map[string]bool
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger used for debug traces of each resolution.
func WithLogger(l *zap.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithActive sets the initial active environment.
func WithActive(env string) Option {
	return func(r *Resolver) { r.active = strings.ToLower(env) }
}

// New creates a resolver over reg. The first registered environment is
// active until SetActive is called.
func New(reg *registry.Registry, opts ...Option) *Resolver {
	r := &Resolver{
		reg:    reg,
		logger: zap.NewNop(),
		envs:   make(map[string]bool),
	}
	names := reg.EnvironmentNames()
	for _, n := range names {
		r.envs[n] = true
	}
	if len(names) > 0 {
		r.active = names[0]
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Registry returns the underlying registry.
func (r *Resolver) Registry() *registry.Registry { return r.reg }

// SetActive changes the active environment.
func (r *Resolver) SetActive(env string) {
	r.mu.Lock()
	r.active = strings.ToLower(strings.TrimSpace(env))
	r.mu.Unlock()
}

// Active returns the active environment.
func (r *Resolver) Active() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// Resolve maps path to a target. The second result is false when no
// strategy matched; callers treat that as "no visual affordance".
func (r *Resolver) Resolve(path string) (Target, bool) {
	active := r.Active()
	t, ok := r.resolve(path, active)
	if ok {
		r.logger.Debug("target resolved",
			zap.String("path", path),
			zap.String("key", t.Key),
			zap.String("strategy", string(t.Strategy)),
			zap.String("environment", t.Environment))
	} else {
		r.logger.Debug("target unresolved", zap.String("path", path), zap.String("active", active))
	}
	return t, ok
}

func (r *Resolver) resolve(path, active string) (Target, bool) {
	original := strings.Split(strings.TrimSpace(path), ".")
	lower := strings.ToLower(strings.TrimSpace(path))
	if lower == "" {
		return Target{}, false
	}
	segs := strings.Split(lower, ".")

	if rejectedRoots[segs[0]] {
		return Target{}, false
	}

	if c, ok := r.lookup(lower, active); ok {
		return r.target(c, active, StrategyDirect), true
	}

	env, cleaned := r.strip(segs)
	scope := active
	if env != "" {
		scope = env
	}
	if len(cleaned) > 0 && len(cleaned) < len(segs) {
		if c, ok := r.lookup(strings.Join(cleaned, "."), scope); ok {
			return r.target(c, active, StrategyStripped), true
		}
	}

	for n := len(cleaned) - 1; n >= 2; n-- {
		if c, ok := r.lookup(strings.Join(cleaned[:n], "."), scope); ok {
			return r.target(c, active, StrategyShortened), true
		}
	}

	last := segs[len(segs)-1]
	group := ""
	if len(cleaned) > 1 {
		group = cleaned[0]
	}

	if c, ok := r.wildcard(group, last, scope); ok {
		return r.target(c, active, StrategyWildcard), true
	}

	if hy := hyphenate(original[len(original)-1]); hy != last {
		if c, ok := r.wildcard(group, hy, scope); ok {
			return r.target(c, active, StrategyHyphenated), true
		}
	}

	if c, ok := r.substring(last, scope); ok {
		return r.target(c, active, StrategySubstring), true
	}

	if c, ok := r.lookup("browser."+last, scope); ok {
		return r.target(c, active, StrategyBrowser), true
	}

	if c, ok := r.lookup(last, scope); ok {
		return r.target(c, active, StrategyBare), true
	}

	return Target{}, false
}

// lookup tries the active-qualified key, then the key as given.
func (r *Resolver) lookup(key, active string) (registry.Component, bool) {
	if active != "" && !strings.Contains(key, ":") {
		if c, ok := r.reg.Lookup(registry.Qualify(active, key)); ok {
			return c, true
		}
	}
	return r.reg.Lookup(key)
}

// wildcard looks up "<group>.*.<tool>" for the path's own group first, then
// for every registered group in registration order.
func (r *Resolver) wildcard(group, tool, active string) (registry.Component, bool) {
	if tool == "" {
		return registry.Component{}, false
	}
	groups := r.reg.Groups()
	if group != "" {
		groups = append([]string{group}, groups...)
	}
	for _, g := range groups {
		key := g + ".*." + tool
		if active != "" {
			if c, ok := r.reg.LookupWildcard(registry.Qualify(active, key)); ok {
				return c, true
			}
		}
		if c, ok := r.reg.LookupWildcard(key); ok {
			return c, true
		}
	}
	return registry.Component{}, false
}

// substring returns the wildcard entry whose tool identifier contains
// needle. Ties prefer the active environment, then the shortest tool
// identifier, then the alphabetically first qualified key.
func (r *Resolver) substring(needle, active string) (registry.Component, bool) {
	if needle == "" {
		return registry.Component{}, false
	}
	var matches []registry.WildcardEntry
	for _, e := range r.reg.WildcardEntries() {
		if strings.Contains(e.Tool, needle) {
			matches = append(matches, e)
		}
	}
	if len(matches) == 0 {
		return registry.Component{}, false
	}
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		aActive, bActive := a.Component.Environment == active, b.Component.Environment == active
		if aActive != bActive {
			return aActive
		}
		if len(a.Tool) != len(b.Tool) {
			return len(a.Tool) < len(b.Tool)
		}
		return a.Component.QualifiedKey() < b.Component.QualifiedKey()
	})
	return *matches[0].Component, true
}

// strip drops structural noise segments other than the last one. A
// leading environment name is returned separately as the qualifier.
func (r *Resolver) strip(segs []string) (string, []string) {
	out := make([]string, 0, len(segs))
	for i, s := range segs {
		if structuralNoise[s] && i < len(segs)-1 {
			continue
		}
		out = append(out, s)
	}
	if len(out) > 1 && r.envs[out[0]] {
		return out[0], out[1:]
	}
	return "", out
}

func (r *Resolver) target(c registry.Component, active string, s Strategy) Target {
	t := Target{
		Key:         c.QualifiedKey(),
		Environment: c.Environment,
		ImageIndex:  c.ImageIndex,
		Rect:        c.Rect,
		Label:       c.Label,
		Strategy:    s,
	}
	if c.Agnostic() {
		t.Agnostic = true
		if active != "" {
			t.Environment = active
		}
	}
	if t.Label == "" {
		t.Label = c.Tool()
	}
	return t
}

// hyphenate converts "createSketch" to "create-sketch".
func hyphenate(s string) string {
	var b strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
