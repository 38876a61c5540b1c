package validate

import (
	"fmt"

	"github.com/davidlarrimore/curatore-v2-sub001/contracts"
	"github.com/davidlarrimore/curatore-v2-sub001/procedure"
)

// Validator performs static analysis of a Procedure Definition against a
// Tool Registry. The optional advisory tables back Phase W — per §9 "Non-
// determinism in validation", an implementation without those tables simply
// emits no such warnings, so a zero-value Validator{Registry: r} is fully
// usable.
type Validator struct {
	Registry *contracts.Registry

	// KnownFacets, if non-empty, is the set of facet names search_assets-
	// style tools recognize in their facet_filters param. Unknown facet
	// keys produce INVALID_FACET_FILTER warnings.
	KnownFacets []string

	// StepNameHints maps a keyword that may appear in a step's name to the
	// tool name the author probably meant, generalized from
	// original_source's STEP_NAME_FUNCTION_HINTS table. A step whose name
	// contains the keyword but whose function differs from the hint
	// produces a FUNCTION_MISMATCH_WARNING.
	StepNameHints map[string]string
}

// Validate runs all six phases against def, short-circuiting after Phase S
// if it finds any schema-level error (§4.3: "short-circuits on top-level
// schema failure, which makes deeper analysis meaningless").
func (v *Validator) Validate(def *procedure.Definition) Result {
	res := Result{Valid: true}

	if !v.phaseS(def, &res) {
		return res
	}

	declaredParams := make(map[string]bool, len(def.Parameters))
	for _, p := range def.Parameters {
		declaredParams[p.Name] = true
	}

	w := &walker{
		v:              v,
		res:            &res,
		declaredParams: declaredParams,
	}
	w.walkList(def.Steps, "steps", nil, 0)

	return res
}

// phaseS performs the schema phase (§4.3 Phase S) and returns false if any
// schema error was found, signaling the caller to short-circuit.
func (v *Validator) phaseS(def *procedure.Definition, res *Result) bool {
	ok := true

	if def.Name == "" {
		res.addError(Issue{Code: MissingRequiredField, Message: "procedure name is required", Path: "name"})
		ok = false
	}

	if def.Slug == "" {
		res.addError(Issue{Code: MissingRequiredField, Message: "procedure slug is required", Path: "slug"})
		ok = false
	} else if !procedure.SlugPattern.MatchString(def.Slug) {
		res.addError(Issue{
			Code:    InvalidSlugFormat,
			Message: fmt.Sprintf("slug %q does not match ^[a-z][a-z0-9_-]*$", def.Slug),
			Path:    "slug",
		})
		ok = false
	}

	if len(def.Steps) == 0 {
		res.addError(Issue{Code: EmptySteps, Message: "procedure must declare at least one step", Path: "steps"})
		ok = false
	}

	for i, s := range def.Steps {
		if s.Name == "" {
			res.addError(Issue{Code: MissingRequiredField, Message: "step name is required", Path: fmt.Sprintf("steps[%d].name", i)})
			ok = false
		}
		if s.Function == "" {
			res.addError(Issue{Code: MissingRequiredField, Message: "step function is required", Path: fmt.Sprintf("steps[%d].function", i)})
			ok = false
		}
	}

	if !def.OnError.Valid() {
		res.addError(Issue{
			Code:    InvalidOnErrorPolicy,
			Message: fmt.Sprintf("on_error %q is not one of fail, skip, continue", def.OnError),
			Path:    "on_error",
		})
		ok = false
	}

	seenParam := map[string]bool{}
	for i, p := range def.Parameters {
		if p.Name == "" {
			res.addError(Issue{Code: MissingParameterName, Message: "parameter name is required", Path: fmt.Sprintf("parameters[%d].name", i)})
			ok = false
			continue
		}
		if seenParam[p.Name] {
			res.addError(Issue{
				Code:    DuplicateParameterName,
				Message: fmt.Sprintf("duplicate parameter name %q", p.Name),
				Path:    fmt.Sprintf("parameters[%d].name", i),
				Details: map[string]any{"name": p.Name},
			})
			ok = false
		}
		seenParam[p.Name] = true
		if p.Required && p.HasDefault() {
			res.addError(Issue{
				Code:    ContradictoryParameter,
				Message: fmt.Sprintf("parameter %q is both required and has a default", p.Name),
				Path:    fmt.Sprintf("parameters[%d]", i),
				Details: map[string]any{"name": p.Name},
			})
			ok = false
		}
	}

	return ok
}
