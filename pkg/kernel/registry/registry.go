// Package registry holds the environment/component map that target paths
// resolve against. A Registry is built once from a RegistryDocument and is
// read-only afterwards.
package registry

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ormasoftchile/overlay/pkg/kernel/schema"
)

// AgnosticGroups are component groups that look the same in every
// environment. Components in these groups report the active environment
// when resolved.
var AgnosticGroups = map[string]bool{
	"browser": true,
	"navbar":  true,
}

// Component is one positioned UI affordance within an environment.
type Component struct {
	Environment string
	Group       string
	Key         string // local key, e.g. "toolbar.create.revolve"
	Rect        schema.Rect
	Label       string
	ImageIndex  int
}

// QualifiedKey returns "env:local.key".
func (c Component) QualifiedKey() string {
	return Qualify(c.Environment, c.Key)
}

// Tool returns the last segment of the local key.
func (c Component) Tool() string {
	if i := strings.LastIndexByte(c.Key, '.'); i >= 0 {
		return c.Key[i+1:]
	}
	return c.Key
}

// Agnostic reports whether the component belongs to an environment-agnostic group.
func (c Component) Agnostic() bool {
	return AgnosticGroups[c.Group]
}

// Environment is a registered UI variant.
type Environment struct {
	Name   string
	Images []string
}

// WildcardEntry is one "group.*.tool" index entry, kept in registration order.
type WildcardEntry struct {
	Key       string // "toolbar.*.revolve"
	Tool      string // "revolve"
	Component *Component
}

// Registry maps local, qualified and wildcard keys to components.
type Registry struct {
	envs     []Environment
	envIndex map[string]int

	byKey     map[string]*Component // local (first env wins) and qualified keys
	wildcard  map[string]*Component // "group.*.tool" and "env:group.*.tool"
	wildEntry []WildcardEntry       // every qualified wildcard entry
	all       []*Component
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		envIndex: make(map[string]int),
		byKey:    make(map[string]*Component),
		wildcard: make(map[string]*Component),
	}
}

// FromDocument builds a registry from a decoded document. Environments are
// registered in document order; within an environment, groups and keys are
// registered in sorted order so wildcard collisions resolve the same way on
// every load.
func FromDocument(doc *schema.RegistryDocument) (*Registry, error) {
	r := New()
	for i, env := range doc.Environments {
		if err := r.AddEnvironment(env); err != nil {
			return nil, fmt.Errorf("environments[%d]: %w", i, err)
		}
	}
	return r, nil
}

// LoadFile reads a registry document and builds a registry from it.
func LoadFile(path string) (*Registry, error) {
	doc, err := schema.LoadRegistryFile(path)
	if err != nil {
		return nil, err
	}
	return FromDocument(doc)
}

// AddEnvironment registers an environment and all of its components.
func (r *Registry) AddEnvironment(def schema.EnvironmentDef) error {
	name := strings.ToLower(strings.TrimSpace(def.Name))
	if name == "" {
		return fmt.Errorf("environment name is required")
	}
	if strings.ContainsAny(name, ".:") {
		return fmt.Errorf("environment name %q must not contain '.' or ':'", def.Name)
	}
	if _, dup := r.envIndex[name]; dup {
		return fmt.Errorf("duplicate environment %q", name)
	}
	r.envIndex[name] = len(r.envs)
	r.envs = append(r.envs, Environment{Name: name, Images: def.Images})

	groups := make([]string, 0, len(def.Groups))
	for g := range def.Groups {
		groups = append(groups, g)
	}
	sort.Strings(groups)

	for _, g := range groups {
		keys := make([]string, 0, len(def.Groups[g]))
		for k := range def.Groups[g] {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			cd := def.Groups[g][k]
			if cd.ImageIndex < 0 || (len(def.Images) > 0 && cd.ImageIndex >= len(def.Images)) {
				return fmt.Errorf("component %s.%s: imageIndex %d out of range", g, k, cd.ImageIndex)
			}
			r.Register(Component{
				Environment: name,
				Group:       strings.ToLower(g),
				Key:         strings.ToLower(g + "." + k),
				Rect:        cd.Position,
				Label:       cd.Label,
				ImageIndex:  cd.ImageIndex,
			})
		}
	}
	return nil
}

// Register adds a single component. The qualified key always points at c;
// the local key only if no earlier environment claimed it. Keys of three or
// more segments also get a "group.*.tool" wildcard entry.
func (r *Registry) Register(c Component) {
	if _, ok := r.envIndex[c.Environment]; !ok {
		r.envIndex[c.Environment] = len(r.envs)
		r.envs = append(r.envs, Environment{Name: c.Environment})
	}
	comp := &c
	r.all = append(r.all, comp)

	r.byKey[comp.QualifiedKey()] = comp
	if _, taken := r.byKey[comp.Key]; !taken {
		r.byKey[comp.Key] = comp
	}

	segs := strings.Split(comp.Key, ".")
	if len(segs) < 3 {
		return
	}
	wk := segs[0] + ".*." + segs[len(segs)-1]
	qwk := Qualify(comp.Environment, wk)
	if _, taken := r.wildcard[qwk]; !taken {
		r.wildcard[qwk] = comp
		r.wildEntry = append(r.wildEntry, WildcardEntry{Key: wk, Tool: segs[len(segs)-1], Component: comp})
	}
	if _, taken := r.wildcard[wk]; !taken {
		r.wildcard[wk] = comp
	}
}

// Lookup returns the component registered under key (local or qualified).
func (r *Registry) Lookup(key string) (Component, bool) {
	c, ok := r.byKey[key]
	if !ok {
		return Component{}, false
	}
	return *c, true
}

// LookupWildcard returns the component registered under a "group.*.tool"
// key, optionally environment-qualified.
func (r *Registry) LookupWildcard(key string) (Component, bool) {
	c, ok := r.wildcard[key]
	if !ok {
		return Component{}, false
	}
	return *c, true
}

// WildcardEntries returns every qualified wildcard entry in registration order.
func (r *Registry) WildcardEntries() []WildcardEntry {
	out := make([]WildcardEntry, len(r.wildEntry))
	copy(out, r.wildEntry)
	return out
}

// Groups returns the distinct group names in registration order.
func (r *Registry) Groups() []string {
	seen := map[string]bool{}
	var out []string
	for _, c := range r.all {
		if !seen[c.Group] {
			seen[c.Group] = true
			out = append(out, c.Group)
		}
	}
	return out
}

// HasEnvironment reports whether name is registered.
func (r *Registry) HasEnvironment(name string) bool {
	_, ok := r.envIndex[strings.ToLower(name)]
	return ok
}

// Environments returns the registered environments in registration order.
func (r *Registry) Environments() []Environment {
	out := make([]Environment, len(r.envs))
	copy(out, r.envs)
	return out
}

// EnvironmentNames returns the registered environment names in order.
func (r *Registry) EnvironmentNames() []string {
	out := make([]string, len(r.envs))
	for i, e := range r.envs {
		out[i] = e.Name
	}
	return out
}

// Image returns the reference image name for env/index, or "" if unknown.
func (r *Registry) Image(env string, index int) string {
	i, ok := r.envIndex[strings.ToLower(env)]
	if !ok {
		return ""
	}
	imgs := r.envs[i].Images
	if index < 0 || index >= len(imgs) {
		return ""
	}
	return imgs[index]
}

// Components returns the components registered for env, in registration
// order. Agnostic components are included for every environment, once per
// local key.
func (r *Registry) Components(env string) []Component {
	env = strings.ToLower(env)
	var out []Component
	seen := map[string]bool{}
	for _, c := range r.all {
		if c.Environment != env && !c.Agnostic() {
			continue
		}
		if seen[c.Key] {
			continue
		}
		seen[c.Key] = true
		out = append(out, *c)
	}
	return out
}

// Len returns the number of registered components.
func (r *Registry) Len() int { return len(r.all) }

// Qualify joins an environment name and a local key.
func Qualify(env, key string) string {
	return env + ":" + key
}
