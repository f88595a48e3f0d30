package validate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ormasoftchile/overlay/pkg/kernel/registry"
	"github.com/ormasoftchile/overlay/pkg/kernel/schema"
)

const validTutorial = `
apiVersion: overlay/v0
tutorialId: vase
title: Revolve a vase
steps:
  - stepId: profile
    title: Draw the profile
    instruction: Draw the outer profile on the XZ plane.
    requires:
      workspace: Design
      environment: Sketch
      reason: Lines are drawn in a sketch
    visualStep:
      environment: sketch
    checklist:
      - text: Draw a line
        requiredCommandId: SketchLine
    uiAnimations:
      - type: highlight
        target: toolbar.create.line
      - type: move
        from: {x: 50, y: 50}
        to: {x: 10, y: 5}
    qcChecks:
      - type: sketch_exists
      - expr: "sketchCount >= 1 && inSketch"
  - stepId: revolve
    title: Revolve
    instruction: Revolve the profile around the axis.
    requires:
      environment: Solid
    checklist:
      - text: Revolve the profile
    uiAnimations:
      - type: tooltip
        target: toolbar.create.revolve
        text: Revolve
`

const testRegistry = `
environments:
  - name: solid
    images: [solid.png]
    groups:
      toolbar:
        create.revolve:
          position: {x: 20, y: 5, width: 4, height: 4}
          label: Revolve
  - name: sketch
    images: [sketch.png]
    groups:
      toolbar:
        create.line:
          position: {x: 10, y: 5, width: 4, height: 4}
          label: Line
`

func load(t *testing.T, doc string) *schema.Tutorial {
	t.Helper()
	tut, err := schema.Load(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return tut
}

func loadRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	doc, err := schema.LoadRegistry(strings.NewReader(testRegistry))
	if err != nil {
		t.Fatal(err)
	}
	reg, err := registry.FromDocument(doc)
	if err != nil {
		t.Fatal(err)
	}
	return reg
}

func findError(errs []*ValidationError, phase, pathPart, msgPart string) *ValidationError {
	for _, e := range errs {
		if e.Phase == phase && strings.Contains(e.Path, pathPart) && strings.Contains(e.Message, msgPart) {
			return e
		}
	}
	return nil
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tutorial.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestValidateFile_Valid(t *testing.T) {
	tut, errs := ValidateFile(writeFile(t, validTutorial), Options{Registry: loadRegistry(t)})
	if tut == nil {
		t.Fatal("tutorial not returned")
	}
	for _, e := range errs {
		t.Errorf("unexpected %s: %v", e.Severity, e)
	}
}

func TestValidateFile_Structural(t *testing.T) {
	_, errs := ValidateFile(writeFile(t, validTutorial+"unknownField: true\n"), Options{})
	if len(errs) != 1 || errs[0].Phase != PhaseStructural {
		t.Fatalf("errs = %v, want one structural error", errs)
	}
}

func TestValidateFile_Missing(t *testing.T) {
	_, errs := ValidateFile(filepath.Join(t.TempDir(), "absent.yaml"), Options{})
	if !HasErrors(errs) {
		t.Error("expected error for missing file")
	}
}

func TestValidateTutorial_SemanticUnknownDirective(t *testing.T) {
	tut := load(t, `
tutorialId: t
title: t
steps:
  - stepId: a
    title: A
    instruction: Do A.
    uiAnimations:
      - type: wiggle
`)
	errs := ValidateTutorial(tut, Options{})
	if e := findError(errs, PhaseSemantic, "uiAnimations/0/type", ""); e == nil {
		t.Fatalf("no semantic error on directive type: %v", errs)
	}
	if findError(errs, PhaseDomain, "", "") != nil {
		t.Error("domain phase ran despite semantic errors")
	}
}

func TestValidateTutorial_DomainRules(t *testing.T) {
	tests := []struct {
		name     string
		doc      string
		path     string
		msg      string
		severity string
	}{
		{
			name: "duplicate step ids",
			doc: `
tutorialId: t
title: t
steps:
  - {stepId: a, title: A, instruction: Do A.}
  - {stepId: a, title: B, instruction: Do B.}
`,
			path: "steps[1].stepId", msg: "duplicate step ID", severity: "error",
		},
		{
			name: "missing step id",
			doc: `
tutorialId: t
title: t
steps:
  - {title: A, instruction: Do A.}
`,
			path: "steps[0].stepId", msg: "no stepId", severity: "warning",
		},
		{
			name: "missing instruction",
			doc: `
tutorialId: t
title: t
steps:
  - {stepId: a, title: A}
`,
			path: "steps[0].instruction", msg: "instruction is required", severity: "error",
		},
		{
			name: "missing tutorial id",
			doc: `
title: t
steps:
  - {stepId: a, title: A, instruction: Do A.}
`,
			path: "tutorialId", msg: "required", severity: "error",
		},
		{
			name: "no steps",
			doc: `
tutorialId: t
title: t
`,
			path: "steps", msg: "at least one step", severity: "error",
		},
		{
			name: "wrong api version",
			doc: `
apiVersion: overlay/v9
tutorialId: t
title: t
steps:
  - {stepId: a, title: A, instruction: Do A.}
`,
			path: "apiVersion", msg: "overlay/v0", severity: "error",
		},
		{
			name: "unknown workspace",
			doc: `
tutorialId: t
title: t
steps:
  - stepId: a
    title: A
    instruction: Do A.
    requires: {workspace: Cooking}
`,
			path: "requires.workspace", msg: "unknown workspace", severity: "error",
		},
		{
			name: "unknown environment",
			doc: `
tutorialId: t
title: t
steps:
  - stepId: a
    title: A
    instruction: Do A.
    requires: {environment: Lava}
`,
			path: "requires.environment", msg: "unknown environment", severity: "error",
		},
		{
			name: "move without to",
			doc: `
tutorialId: t
title: t
steps:
  - stepId: a
    title: A
    instruction: Do A.
    uiAnimations:
      - {type: move, from: {x: 1, y: 1}}
`,
			path: "uiAnimations[0]", msg: "'to' is required", severity: "error",
		},
		{
			name: "highlight without target",
			doc: `
tutorialId: t
title: t
steps:
  - stepId: a
    title: A
    instruction: Do A.
    uiAnimations:
      - {type: highlight}
`,
			path: "uiAnimations[0]", msg: "'target' is required", severity: "error",
		},
		{
			name: "point off image",
			doc: `
tutorialId: t
title: t
steps:
  - stepId: a
    title: A
    instruction: Do A.
    uiAnimations:
      - {type: click, at: {x: 120, y: 5}}
`,
			path: "uiAnimations[0].at", msg: "outside", severity: "warning",
		},
		{
			name: "empty checklist text",
			doc: `
tutorialId: t
title: t
steps:
  - stepId: a
    title: A
    instruction: Do A.
    checklist:
      - {requiredCommandId: Extrude}
`,
			path: "checklist[0].text", msg: "required", severity: "error",
		},
		{
			name: "bad qc expression",
			doc: `
tutorialId: t
title: t
steps:
  - stepId: a
    title: A
    instruction: Do A.
    qcChecks:
      - expr: "holeCount > 2"
`,
			path: "qcChecks[0]", msg: "compile condition", severity: "error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := ValidateTutorial(load(t, tt.doc), Options{})
			e := findError(errs, PhaseDomain, tt.path, tt.msg)
			if e == nil {
				t.Fatalf("no %q at %q in %v", tt.msg, tt.path, errs)
			}
			if e.Severity != tt.severity {
				t.Errorf("severity = %s, want %s", e.Severity, tt.severity)
			}
		})
	}
}

func TestValidateTutorial_RegistryWarnings(t *testing.T) {
	tut := load(t, `
tutorialId: t
title: t
steps:
  - stepId: a
    title: A
    instruction: Do A.
    visualStep: {environment: mesh}
    uiAnimations:
      - {type: highlight, target: viewport.body}
      - {type: arrow, target: toolbar.create.revolve}
  - stepId: b
    title: B
    instruction: Do B.
    visualStep: {environment: sketch, imageIndex: 3}
`)
	errs := ValidateTutorial(tut, Options{Registry: loadRegistry(t)})
	if HasErrors(errs) {
		t.Fatalf("registry findings must be warnings: %v", errs)
	}
	if findError(errs, PhaseDomain, "steps[0].uiAnimations[0].target", "does not resolve") == nil {
		t.Errorf("missing unresolved target warning: %v", errs)
	}
	if findError(errs, PhaseDomain, "steps[0].uiAnimations[1]", "") != nil {
		t.Error("resolvable target reported")
	}
	if findError(errs, PhaseDomain, "steps[0].visualStep.environment", "not in the registry") == nil {
		t.Errorf("missing environment warning: %v", errs)
	}
	if findError(errs, PhaseDomain, "steps[1].visualStep.imageIndex", "no image 3") == nil {
		t.Errorf("missing image warning: %v", errs)
	}
}

func TestValidateRegistry(t *testing.T) {
	tests := []struct {
		name     string
		doc      string
		msg      string
		severity string
	}{
		{
			name: "duplicate environment",
			doc: `
environments:
  - {name: solid, images: [a.png], groups: {}}
  - {name: Solid, images: [b.png], groups: {}}
`,
			msg: "duplicate environment", severity: "error",
		},
		{
			name: "empty rectangle",
			doc: `
environments:
  - name: solid
    images: [a.png]
    groups:
      toolbar:
        line: {position: {x: 1, y: 1, width: 0, height: 2}}
`,
			msg: "empty rectangle", severity: "error",
		},
		{
			name: "image index out of range",
			doc: `
environments:
  - name: solid
    images: [a.png]
    groups:
      toolbar:
        line: {position: {x: 1, y: 1, width: 2, height: 2}, imageIndex: 4}
`,
			msg: "out of range", severity: "error",
		},
		{
			name: "rectangle past edge",
			doc: `
environments:
  - name: solid
    images: [a.png]
    groups:
      toolbar:
        line: {position: {x: 99, y: 1, width: 4, height: 2}}
`,
			msg: "extends past", severity: "warning",
		},
		{
			name: "no images",
			doc: `
environments:
  - name: solid
    groups: {}
`,
			msg: "no reference images", severity: "warning",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := schema.LoadRegistry(strings.NewReader(tt.doc))
			if err != nil {
				t.Fatal(err)
			}
			errs := ValidateRegistry(doc)
			e := findError(errs, PhaseDomain, "", tt.msg)
			if e == nil {
				t.Fatalf("no %q in %v", tt.msg, errs)
			}
			if e.Severity != tt.severity {
				t.Errorf("severity = %s, want %s", e.Severity, tt.severity)
			}
		})
	}
}

func TestSplit(t *testing.T) {
	all := []*ValidationError{
		errorf(PhaseDomain, "a", "bad"),
		warningf(PhaseDomain, "b", "meh"),
	}
	errs, warns := Split(all)
	if len(errs) != 1 || len(warns) != 1 {
		t.Errorf("split = %d errors, %d warnings", len(errs), len(warns))
	}
}

func TestValidationError_Error(t *testing.T) {
	e := errorf(PhaseDomain, "steps[0]", "broken %d", 1)
	if got := e.Error(); got != "[domain] broken 1 at steps[0]" {
		t.Errorf("Error() = %q", got)
	}
}
