package registry

import (
	"strings"
	"testing"

	"github.com/ormasoftchile/overlay/pkg/kernel/schema"
)

const twoEnvs = `
environments:
  - name: Solid
    images: [solid.png, solid_modify.png]
    groups:
      toolbar:
        create.revolve:
          position: {x: 12, y: 8, width: 3, height: 4}
          label: Revolve
        modify.fillet:
          position: {x: 30, y: 8, width: 3, height: 4}
          label: Fillet
          imageIndex: 1
      browser:
        origin:
          position: {x: 1, y: 30, width: 15, height: 3}
          label: Origin
  - name: surface
    images: [surface.png]
    groups:
      toolbar:
        create.revolve:
          position: {x: 40, y: 8, width: 3, height: 4}
          label: Revolve (surface)
`

func mustLoad(t *testing.T, doc string) *Registry {
	t.Helper()
	d, err := schema.LoadRegistry(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	r, err := FromDocument(d)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return r
}

func TestRegistry_FirstEnvironmentWinsLocalKey(t *testing.T) {
	r := mustLoad(t, twoEnvs)

	c, ok := r.Lookup("toolbar.create.revolve")
	if !ok {
		t.Fatal("local key not registered")
	}
	if c.Environment != "solid" {
		t.Errorf("local key env = %q, want solid", c.Environment)
	}

	q, ok := r.Lookup("surface:toolbar.create.revolve")
	if !ok {
		t.Fatal("qualified key for second env missing")
	}
	if q.Rect.X != 40 {
		t.Errorf("surface revolve x = %v, want 40", q.Rect.X)
	}
}

func TestRegistry_WildcardIndex(t *testing.T) {
	r := mustLoad(t, twoEnvs)

	c, ok := r.LookupWildcard("toolbar.*.fillet")
	if !ok {
		t.Fatal("wildcard key missing")
	}
	if c.Key != "toolbar.modify.fillet" || c.ImageIndex != 1 {
		t.Errorf("wildcard = %+v", c)
	}
	if _, ok := r.LookupWildcard("surface:toolbar.*.revolve"); !ok {
		t.Error("qualified wildcard missing")
	}
	// two-segment keys get no wildcard entry
	if _, ok := r.LookupWildcard("browser.*.origin"); ok {
		t.Error("unexpected wildcard for two-segment key")
	}
	if n := len(r.WildcardEntries()); n != 3 {
		t.Errorf("wildcard entries = %d, want 3", n)
	}
}

func TestRegistry_Metadata(t *testing.T) {
	r := mustLoad(t, twoEnvs)

	if got := r.EnvironmentNames(); len(got) != 2 || got[0] != "solid" || got[1] != "surface" {
		t.Errorf("environments = %v", got)
	}
	if !r.HasEnvironment("SOLID") {
		t.Error("HasEnvironment should be case-insensitive")
	}
	if img := r.Image("solid", 1); img != "solid_modify.png" {
		t.Errorf("image = %q", img)
	}
	if img := r.Image("solid", 7); img != "" {
		t.Errorf("out of range image = %q", img)
	}
	comps := r.Components("surface")
	var sawBrowser bool
	for _, c := range comps {
		if c.Group == "browser" {
			sawBrowser = true
		}
	}
	if !sawBrowser {
		t.Error("agnostic browser component should be listed for every environment")
	}
	if r.Len() != 4 {
		t.Errorf("len = %d, want 4", r.Len())
	}
}

func TestRegistry_Errors(t *testing.T) {
	tests := []struct {
		name string
		def  schema.EnvironmentDef
	}{
		{"empty name", schema.EnvironmentDef{}},
		{"colon in name", schema.EnvironmentDef{Name: "a:b"}},
		{"image index out of range", schema.EnvironmentDef{
			Name:   "x",
			Images: []string{"x.png"},
			Groups: map[string]map[string]schema.ComponentDef{
				"toolbar": {"a": {ImageIndex: 3}},
			},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := New().AddEnvironment(tt.def); err == nil {
				t.Error("expected error")
			}
		})
	}

	r := New()
	if err := r.AddEnvironment(schema.EnvironmentDef{Name: "solid"}); err != nil {
		t.Fatal(err)
	}
	if err := r.AddEnvironment(schema.EnvironmentDef{Name: "Solid"}); err == nil {
		t.Error("expected duplicate environment error")
	}
}

func TestComponent_Helpers(t *testing.T) {
	c := Component{Environment: "sketch", Group: "navbar", Key: "navbar.home"}
	if c.QualifiedKey() != "sketch:navbar.home" {
		t.Errorf("qualified = %q", c.QualifiedKey())
	}
	if c.Tool() != "home" {
		t.Errorf("tool = %q", c.Tool())
	}
	if !c.Agnostic() {
		t.Error("navbar should be agnostic")
	}
}
