package schema

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestLoad_ValidTutorial(t *testing.T) {
	yaml := `
apiVersion: overlay/v0
tutorialId: vase
title: Revolve a vase
steps:
  - stepId: s1
    title: Sketch the profile
    instruction: Draw the outer profile on the XZ plane.
    requires:
      workspace: Design
      environment: Sketch
    checklist:
      - text: Draw a line
        requiredCommandId: SketchLine
      - text: Finish the sketch
    uiAnimations:
      - type: highlight
        target: toolbar.create.line
        duration: 1500
      - type: move
        from: {x: 50, y: 50}
        to: {x: 10, y: 5}
  - stepId: s2
    title: Revolve
    instruction: Revolve the profile around the axis.
`
	tut, err := Load(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tut.TutorialID != "vase" {
		t.Errorf("tutorialId = %q, want vase", tut.TutorialID)
	}
	if len(tut.Steps) != 2 {
		t.Fatalf("steps = %d, want 2", len(tut.Steps))
	}
	s := tut.Steps[0]
	if s.Requires == nil || s.Requires.Environment != "Sketch" {
		t.Errorf("requires = %+v", s.Requires)
	}
	if len(s.Checklist) != 2 || s.Checklist[0].RequiredCommandID != "SketchLine" {
		t.Errorf("checklist = %+v", s.Checklist)
	}
	if len(s.Animations) != 2 || s.Animations[0].Type != DirectiveHighlight {
		t.Errorf("animations = %+v", s.Animations)
	}
	if s.Animations[1].To == nil || s.Animations[1].To.X != 10 {
		t.Errorf("move.to = %+v", s.Animations[1].To)
	}
}

func TestLoad_DefaultsEmptyLists(t *testing.T) {
	yaml := `
tutorialId: t
title: t
steps:
  - title: bare
    instruction: nothing else
`
	tut, err := Load(strings.NewReader(yaml))
	if err != nil {
		t.Fatal(err)
	}
	s := tut.Steps[0]
	if s.Checklist == nil || len(s.Checklist) != 0 {
		t.Errorf("checklist = %#v, want empty non-nil", s.Checklist)
	}
	if s.Animations == nil || len(s.Animations) != 0 {
		t.Errorf("animations = %#v, want empty non-nil", s.Animations)
	}
	if s.StepNumber != 1 {
		t.Errorf("stepNumber = %d, want 1", s.StepNumber)
	}
}

func TestLoad_UnknownField(t *testing.T) {
	yaml := `
tutorialId: t
title: t
bogus: true
steps: []
`
	if _, err := Load(strings.NewReader(yaml)); err == nil {
		t.Fatal("expected structural error for unknown field")
	}
}

func TestLoad_JSONInput(t *testing.T) {
	doc := `{"tutorialId":"j","title":"J","steps":[{"title":"a","instruction":"b","checklist":[{"text":"x"}]}]}`
	tut, err := Load(strings.NewReader(doc))
	if err != nil {
		t.Fatal(err)
	}
	if len(tut.Steps[0].Checklist) != 1 {
		t.Errorf("checklist = %+v", tut.Steps[0].Checklist)
	}
}

func TestLoadRegistry(t *testing.T) {
	yaml := `
environments:
  - name: solid
    images: [solid.png, solid_modify.png]
    groups:
      toolbar:
        create.revolve:
          position: {x: 12, y: 8, width: 3, height: 4}
          label: Revolve
  - name: sketch
    groups:
      toolbar:
        line:
          position: {x: 10, y: 5, width: 3, height: 4}
          label: Line
          imageIndex: 1
`
	doc, err := LoadRegistry(strings.NewReader(yaml))
	if err != nil {
		t.Fatal(err)
	}
	if len(doc.Environments) != 2 {
		t.Fatalf("environments = %d", len(doc.Environments))
	}
	line := doc.Environments[1].Groups["toolbar"]["line"]
	if line.Position.Width != 3 || line.ImageIndex != 1 {
		t.Errorf("line = %+v", line)
	}
}

func TestRect_Center(t *testing.T) {
	c := Rect{X: 10, Y: 5, Width: 4, Height: 2}.Center()
	if c.X != 12 || c.Y != 6 {
		t.Errorf("center = %+v, want {12 6}", c)
	}
}

func TestRequirements_IsZero(t *testing.T) {
	var nilReq *Requirements
	if !nilReq.IsZero() {
		t.Error("nil requirements should be zero")
	}
	if (&Requirements{Reason: "only a reason"}).IsZero() != true {
		t.Error("reason alone should be zero")
	}
	if (&Requirements{HasActiveSketch: true}).IsZero() {
		t.Error("hasActiveSketch should not be zero")
	}
}

func TestGenerateTutorialJSONSchema(t *testing.T) {
	data, err := GenerateTutorialJSONSchema()
	if err != nil {
		t.Fatal(err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("schema is not JSON: %v", err)
	}
	if !strings.Contains(string(data), "uiAnimations") {
		t.Error("schema should mention uiAnimations")
	}
	if !strings.Contains(string(data), `"highlight"`) {
		t.Error("schema should enumerate directive types")
	}
}

func TestGenerateRegistryJSONSchema(t *testing.T) {
	data, err := GenerateRegistryJSONSchema()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "imageIndex") {
		t.Error("schema should mention imageIndex")
	}
}
