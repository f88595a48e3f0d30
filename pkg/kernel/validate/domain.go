package validate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ormasoftchile/overlay/pkg/kernel/animate"
	"github.com/ormasoftchile/overlay/pkg/kernel/eval"
	"github.com/ormasoftchile/overlay/pkg/kernel/hostctx"
	"github.com/ormasoftchile/overlay/pkg/kernel/registry"
	"github.com/ormasoftchile/overlay/pkg/kernel/resolve"
	"github.com/ormasoftchile/overlay/pkg/kernel/schema"
)

// validateDomain runs the tutorial domain rules.
func validateDomain(t *schema.Tutorial, opts Options) []*ValidationError {
	var errs []*ValidationError

	// D1: apiVersion, when present, must be overlay/v0
	if t.APIVersion != "" && t.APIVersion != schema.APIVersionTutorial {
		errs = append(errs, errorf(PhaseDomain, "apiVersion", "expected %q, got %q", schema.APIVersionTutorial, t.APIVersion))
	}

	// D2: identity and at least one step
	if strings.TrimSpace(t.TutorialID) == "" {
		errs = append(errs, errorf(PhaseDomain, "tutorialId", "tutorialId is required"))
	}
	if strings.TrimSpace(t.Title) == "" {
		errs = append(errs, errorf(PhaseDomain, "title", "title is required"))
	}
	if len(t.Steps) == 0 {
		errs = append(errs, errorf(PhaseDomain, "steps", "at least one step is required"))
	}

	// D3: step ID uniqueness
	ids := map[string]string{} // id → path
	for i, s := range t.Steps {
		path := stepPath(i)
		if s.StepID == "" {
			errs = append(errs, warningf(PhaseDomain, path+".stepId", "step has no stepId; scenarios and traces will refer to it by index"))
			continue
		}
		if prev, ok := ids[s.StepID]; ok {
			errs = append(errs, errorf(PhaseDomain, path+".stepId", "duplicate step ID %q (first at %s)", s.StepID, prev))
		} else {
			ids[s.StepID] = path
		}
	}

	var res *resolve.Resolver
	if opts.Registry != nil {
		res = resolve.New(opts.Registry)
	}

	for i, s := range t.Steps {
		path := stepPath(i)
		errs = append(errs, validateStepFields(s, path)...)
		errs = append(errs, validateRequires(s.Requires, path+".requires")...)
		for j, item := range s.Checklist {
			if strings.TrimSpace(item.Text) == "" {
				errs = append(errs, errorf(PhaseDomain, fmt.Sprintf("%s.checklist[%d].text", path, j), "checklist item text is required"))
			}
		}
		for j, d := range s.Animations {
			errs = append(errs, validateDirective(d, fmt.Sprintf("%s.uiAnimations[%d]", path, j))...)
		}
		for j, c := range s.QCChecks {
			if err := eval.Compile(c); err != nil {
				errs = append(errs, errorf(PhaseDomain, fmt.Sprintf("%s.qcChecks[%d]", path, j), "%s", err))
			}
		}
		if opts.Registry != nil {
			errs = append(errs, validateVisual(s, opts.Registry, path)...)
			errs = append(errs, validateTargets(s, res, path)...)
		}
	}

	return errs
}

// D4: display fields every step needs.
func validateStepFields(s schema.Step, path string) []*ValidationError {
	var errs []*ValidationError
	if strings.TrimSpace(s.Title) == "" {
		errs = append(errs, errorf(PhaseDomain, path+".title", "step title is required"))
	}
	if strings.TrimSpace(s.Instruction) == "" {
		errs = append(errs, errorf(PhaseDomain, path+".instruction", "step instruction is required"))
	}
	if s.VisualStep != nil && s.VisualStep.ImageIndex < 0 {
		errs = append(errs, errorf(PhaseDomain, path+".visualStep.imageIndex", "imageIndex must not be negative"))
	}
	return errs
}

// D5: requirements must name known workspaces and environments.
func validateRequires(req *schema.Requirements, path string) []*ValidationError {
	if req == nil {
		return nil
	}
	var errs []*ValidationError
	if req.Workspace != "" && !hostctx.IsKnownWorkspace(req.Workspace) {
		errs = append(errs, errorf(PhaseDomain, path+".workspace", "unknown workspace %q (known: %s)",
			req.Workspace, strings.Join(hostctx.Workspaces, ", ")))
	}
	if req.Environment != "" && !hostctx.IsKnownEnvironment(req.Environment) {
		errs = append(errs, errorf(PhaseDomain, path+".environment", "unknown environment %q (known: %s)",
			req.Environment, strings.Join(hostctx.Environments, ", ")))
	}
	if req.IsZero() && req.Reason != "" {
		errs = append(errs, warningf(PhaseDomain, path+".reason", "reason given but no requirement is set"))
	}
	return errs
}

// D6: directives must decode, and points should lie on the image.
func validateDirective(d schema.Directive, path string) []*ValidationError {
	var errs []*ValidationError
	if _, err := animate.Decode(d); err != nil {
		errs = append(errs, errorf(PhaseDomain, path, "%s", err))
	}
	points := []struct {
		name string
		p    *schema.Point
	}{{"from", d.From}, {"to", d.To}, {"at", d.At}}
	for _, pt := range points {
		if p := pt.p; p != nil && (p.X < 0 || p.X > 100 || p.Y < 0 || p.Y > 100) {
			errs = append(errs, warningf(PhaseDomain, path+"."+pt.name, "point (%g, %g) is outside the 0..100 image range", p.X, p.Y))
		}
	}
	if d.Type == schema.DirectiveTooltip && d.Text == "" {
		errs = append(errs, warningf(PhaseDomain, path+".text", "tooltip has no text"))
	}
	return errs
}

// D7: the visual step must reference a registered environment image.
func validateVisual(s schema.Step, reg *registry.Registry, path string) []*ValidationError {
	v := s.VisualStep
	if v == nil || v.Environment == "" {
		return nil
	}
	if !reg.HasEnvironment(v.Environment) {
		return []*ValidationError{warningf(PhaseDomain, path+".visualStep.environment",
			"environment %q is not in the registry", v.Environment)}
	}
	if reg.Image(v.Environment, v.ImageIndex) == "" {
		return []*ValidationError{warningf(PhaseDomain, path+".visualStep.imageIndex",
			"environment %q has no image %d", v.Environment, v.ImageIndex)}
	}
	return nil
}

// D8: targets should resolve against the registry in the step's environment.
func validateTargets(s schema.Step, res *resolve.Resolver, path string) []*ValidationError {
	res.SetActive(stepEnvironment(s, res.Registry()))
	var errs []*ValidationError
	for j, d := range s.Animations {
		if d.Target == "" {
			continue
		}
		if _, ok := res.Resolve(d.Target); !ok {
			errs = append(errs, warningf(PhaseDomain, fmt.Sprintf("%s.uiAnimations[%d].target", path, j),
				"target %q does not resolve in environment %q", d.Target, res.Active()))
		}
	}
	return errs
}

// stepEnvironment picks the environment a step's targets are resolved in:
// the visual step's, then the required one, then the registry's first.
func stepEnvironment(s schema.Step, reg *registry.Registry) string {
	if s.VisualStep != nil && reg.HasEnvironment(s.VisualStep.Environment) {
		return s.VisualStep.Environment
	}
	if s.Requires != nil && reg.HasEnvironment(s.Requires.Environment) {
		return s.Requires.Environment
	}
	if names := reg.EnvironmentNames(); len(names) > 0 {
		return names[0]
	}
	return ""
}

// validateRegistryDomain checks registry rules that the schema cannot
// express.
func validateRegistryDomain(doc *schema.RegistryDocument) []*ValidationError {
	var errs []*ValidationError
	if doc.APIVersion != "" && doc.APIVersion != schema.APIVersionRegistry {
		errs = append(errs, errorf(PhaseDomain, "apiVersion", "expected %q, got %q", schema.APIVersionRegistry, doc.APIVersion))
	}
	if len(doc.Environments) == 0 {
		errs = append(errs, errorf(PhaseDomain, "environments", "at least one environment is required"))
	}
	for i, env := range doc.Environments {
		path := fmt.Sprintf("environments[%d]", i)
		if len(env.Images) == 0 {
			errs = append(errs, warningf(PhaseDomain, path+".images", "environment %q has no reference images", env.Name))
		}
		for _, group := range sortedKeys(env.Groups) {
			comps := env.Groups[group]
			for _, key := range sortedKeys(comps) {
				c := comps[key]
				cpath := fmt.Sprintf("%s.groups.%s.%s", path, group, key)
				r := c.Position
				if r.Width <= 0 || r.Height <= 0 {
					errs = append(errs, errorf(PhaseDomain, cpath+".position", "component has an empty rectangle"))
				}
				if r.X < 0 || r.Y < 0 || r.X+r.Width > 100 || r.Y+r.Height > 100 {
					errs = append(errs, warningf(PhaseDomain, cpath+".position", "rectangle extends past the image"))
				}
			}
		}
	}
	if HasErrors(errs) {
		return errs
	}

	// Registration enforces name and image index rules.
	if _, err := registry.FromDocument(doc); err != nil {
		errs = append(errs, errorf(PhaseDomain, "environments", "%s", err))
	}
	return errs
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func stepPath(i int) string {
	return fmt.Sprintf("steps[%d]", i)
}
