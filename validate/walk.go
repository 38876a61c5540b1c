package validate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/davidlarrimore/curatore-v2-sub001/procedure"
	"github.com/davidlarrimore/curatore-v2-sub001/template"
)

// walker carries the mutable state threaded through the recursive Phase
// F/B/T/O/W walk over a procedure's step tree.
type walker struct {
	v              *Validator
	res            *Result
	declaredParams map[string]bool
}

// walkList applies phases F, B, T, O, and W to one step list (the top-level
// procedure.Steps or one flow branch), recursing into branches. visible maps
// every step name reachable at the start of this list (outer scopes already
// evaluated) to the name of the tool that produced it, used for Phase T
// reference checks and Phase O output-field lookups. Step-name uniqueness
// (I-2) is scoped to this list alone.
func (w *walker) walkList(steps []procedure.Step, basePath string, visible map[string]string, foreachDepth int) {
	localVisible := make(map[string]string, len(visible))
	for k, v := range visible {
		localVisible[k] = v
	}
	namesInList := map[string]bool{}

	for i, step := range steps {
		path := fmt.Sprintf("%s[%d]", basePath, i)

		if step.Name != "" {
			if namesInList[step.Name] {
				w.res.addError(Issue{
					Code:    DuplicateStepName,
					Message: fmt.Sprintf("duplicate step name %q in this step list", step.Name),
					Path:    path + ".name",
					Details: map[string]any{"name": step.Name},
				})
			}
			namesInList[step.Name] = true
		}

		var contract procedure.Contract
		var haveContract bool
		if step.Function != "" {
			c, _, ok := w.v.Registry.Get(step.Function)
			if !ok {
				w.res.addError(Issue{
					Code:    UnknownFunction,
					Message: fmt.Sprintf("unknown function %q", step.Function),
					Path:    path + ".function",
					Details: map[string]any{"function": step.Function, "known": w.v.Registry.Names()},
				})
			} else {
				contract = c
				haveContract = true
				w.checkParams(step, contract, path)
			}
		}

		if step.OnError != "" && !step.OnError.Valid() {
			w.res.addError(Issue{
				Code:    InvalidOnErrorPolicy,
				Message: fmt.Sprintf("on_error %q is not one of fail, skip, continue", step.OnError),
				Path:    path + ".on_error",
			})
		}

		if procedure.IsFlow(step.Function) {
			w.checkBranchStructure(step, path)
		}

		w.checkTemplates(step, path, localVisible, foreachDepth)
		w.checkAdvisories(step, path)

		if procedure.IsFlow(step.Function) {
			branchNames := make([]string, 0, len(step.Branches))
			for k := range step.Branches {
				branchNames = append(branchNames, k)
			}
			sort.Strings(branchNames)
			for _, key := range branchNames {
				depth := foreachDepth
				if step.Function == "foreach" && key == "each" {
					depth++
				}
				w.walkList(step.Branches[key], path+".branches."+key, localVisible, depth)
			}
		}

		if step.Name != "" {
			if haveContract {
				localVisible[step.Name] = step.Function
			} else {
				localVisible[step.Name] = ""
			}
		}
	}
}

// checkParams implements Phase F's parameter conformance checks.
// MissingRequiredParam is enforced directly against the declared Required
// list; type and enum conformance for whatever params are already concrete
// (not deferred to a template) is delegated to the registry's compiled
// jsonschema.Schema rather than hand-rolled, so Phase F validates through the
// same JSON-Schema subset the contract's input_schema is authored in.
func (w *walker) checkParams(step procedure.Step, contract procedure.Contract, path string) {
	for _, req := range contract.InputSchema.Required {
		if _, present := step.Params[req]; !present {
			w.res.addError(Issue{
				Code:    MissingRequiredParam,
				Message: fmt.Sprintf("missing required parameter %q for function %q", req, step.Function),
				Path:    path + ".params." + req,
				Details: map[string]any{"param": req, "function": step.Function},
			})
		}
	}

	concrete := map[string]any{}
	for key, val := range step.Params {
		if s, ok := val.(string); ok && strings.Contains(s, "{{") {
			continue // template-supplied value, not statically type-checkable
		}
		if val == nil {
			continue
		}
		if _, declared := contract.InputSchema.Properties[key]; !declared {
			// UNKNOWN_FUNCTION_PARAM is defined in the closed catalogue but
			// deliberately left dormant: tools accept flexible keyword
			// parameters the way original_source's FunctionMeta does, so an
			// undeclared key is not itself an error. See DESIGN.md.
			continue
		}
		concrete[key] = val
	}
	if len(concrete) == 0 {
		return
	}

	if err := w.v.Registry.ValidateParams(step.Function, concrete); err != nil {
		w.res.addError(Issue{
			Code:    InvalidParamType,
			Message: fmt.Sprintf("parameters for %q do not conform to the declared input schema: %s", step.Function, err),
			Path:    path + ".params",
			Details: map[string]any{"function": step.Function},
		})
	}
}

// checkBranchStructure implements Phase B's per-primitive branch schema
// (§4.3 branch requirements table).
func (w *walker) checkBranchStructure(step procedure.Step, path string) {
	switch step.Function {
	case "if_branch":
		w.requireBranch(step, path, "then", true)
		if elseSteps, ok := step.Branches["else"]; ok && len(elseSteps) == 0 {
			w.res.addError(Issue{Code: EmptyBranch, Message: "branch \"else\" must not be empty when present", Path: path + ".branches.else"})
		}
		w.rejectUnknownBranches(step, path, map[string]bool{"then": true, "else": true})

	case "switch_branch":
		caseCount := 0
		for key, sub := range step.Branches {
			if len(sub) == 0 {
				w.res.addError(Issue{Code: EmptyBranch, Message: fmt.Sprintf("branch %q must not be empty", key), Path: path + ".branches." + key})
			}
			if key != "default" {
				caseCount++
			}
		}
		if caseCount == 0 {
			w.res.addError(Issue{Code: MissingRequiredBranch, Message: "switch_branch requires at least one named case branch", Path: path + ".branches"})
		}

	case "parallel":
		if len(step.Branches) < 2 {
			w.res.addError(Issue{Code: InsufficientBranches, Message: "parallel requires at least 2 named branches", Path: path + ".branches"})
		}
		for key, sub := range step.Branches {
			if len(sub) == 0 {
				w.res.addError(Issue{Code: EmptyBranch, Message: fmt.Sprintf("branch %q must not be empty", key), Path: path + ".branches." + key})
			}
		}

	case "foreach":
		w.requireBranch(step, path, "each", true)
		w.rejectUnknownBranches(step, path, map[string]bool{"each": true})
	}
}

func (w *walker) requireBranch(step procedure.Step, path, name string, required bool) {
	sub, ok := step.Branches[name]
	if !ok {
		if required {
			w.res.addError(Issue{Code: MissingRequiredBranch, Message: fmt.Sprintf("branch %q is required", name), Path: path + ".branches." + name})
		}
		return
	}
	if len(sub) == 0 {
		w.res.addError(Issue{Code: EmptyBranch, Message: fmt.Sprintf("branch %q must not be empty", name), Path: path + ".branches." + name})
	}
}

func (w *walker) rejectUnknownBranches(step procedure.Step, path string, allowed map[string]bool) {
	for key := range step.Branches {
		if !allowed[key] {
			w.res.addError(Issue{
				Code:    InvalidBranchStructure,
				Message: fmt.Sprintf("function %q does not accept a branch named %q", step.Function, key),
				Path:    path + ".branches." + key,
			})
		}
	}
}

// checkTemplates implements Phase T (template well-formedness and
// step/param reference checks) and Phase O (output-field reference
// checking), which both operate on the same walk over every string in
// params/condition/foreach.
func (w *walker) checkTemplates(step procedure.Step, path string, visible map[string]string, foreachDepth int) {
	walkStrings(step.Params, path+".params", func(s, subpath string) {
		w.checkTemplateString(s, subpath, step.Name, visible, foreachDepth)
	})
	if step.Condition != "" {
		w.checkTemplateString(step.Condition, path+".condition", step.Name, visible, foreachDepth)
	}
	if step.Foreach != "" {
		w.checkTemplateString(step.Foreach, path+".foreach", step.Name, visible, foreachDepth)
	}
}

func (w *walker) checkTemplateString(s, path, stepName string, visible map[string]string, foreachDepth int) {
	for _, markerText := range template.ExtractMarkers(s) {
		expr, err := template.Parse(markerText)
		if err != nil {
			w.res.addError(Issue{
				Code:    InvalidTemplateSyntax,
				Message: err.Error(),
				Path:    path,
				Details: map[string]any{"expression": markerText},
			})
			continue
		}
		refs := template.CollectRefs(expr)
		for _, ref := range refs {
			switch ref.Namespace {
			case "steps":
				if ref.Name == stepName {
					w.res.addError(Issue{
						Code:    CircularDependency,
						Message: fmt.Sprintf("step %q references itself", stepName),
						Path:    path,
						Details: map[string]any{"step": ref.Name},
					})
					continue
				}
				fn, ok := visible[ref.Name]
				if !ok {
					w.res.addError(Issue{
						Code:    InvalidStepReference,
						Message: fmt.Sprintf("reference to step %q which is not visible at this point", ref.Name),
						Path:    path,
						Details: map[string]any{"step": ref.Name},
					})
					continue
				}
				if ref.HasField && fn != "" {
					w.checkOutputFieldReference(fn, ref, path)
				}
			case "params":
				if !w.declaredParams[ref.Name] {
					w.res.addError(Issue{
						Code:    InvalidParamReference,
						Message: fmt.Sprintf("reference to undeclared parameter %q", ref.Name),
						Path:    path,
						Details: map[string]any{"param": ref.Name},
					})
				}
			case "loop":
				// item/item_index outside a foreach branch render to nil
				// rather than failing validation — see DESIGN.md.
				_ = foreachDepth
			}
		}
	}
}

// checkOutputFieldReference implements Phase O.
func (w *walker) checkOutputFieldReference(function string, ref template.Ref, path string) {
	contract, _, ok := w.v.Registry.Get(function)
	if !ok {
		return
	}
	schema := contract.OutputSchema
	switch schema.Type {
	case "string":
		w.res.addError(Issue{
			Code:    InvalidOutputFieldReference,
			Message: fmt.Sprintf("field access %q on step output is invalid: output type is string", ref.Field),
			Path:    path,
			Details: map[string]any{
				"output_type": "string",
				"field":       ref.Field,
				"guidance":    fmt.Sprintf("use {{ steps.%s }} directly", ref.Name),
			},
		})

	case "array":
		details := map[string]any{
			"output_type": "array",
			"field":       ref.Field,
			"guidance":    fmt.Sprintf("iterate with foreach and reference item.%s", ref.Field),
		}
		if schema.Items != nil && schema.Items.Type == "object" && len(schema.Items.Properties) > 0 {
			details["available_fields"] = sortedKeys(schema.Items.Properties)
		}
		w.res.addWarning(Issue{Code: InvalidOutputFieldReference, Message: "iterate array output with foreach instead of indexing a field directly", Path: path, Details: details})

	case "object":
		if len(schema.Properties) == 0 {
			return
		}
		if _, ok := schema.Properties[ref.Field]; ok {
			return
		}
		w.res.addWarning(Issue{
			Code:    InvalidOutputFieldReference,
			Message: fmt.Sprintf("field %q is not among the declared output fields", ref.Field),
			Path:    path,
			Details: map[string]any{"output_type": "object", "field": ref.Field, "available_fields": sortedKeys(schema.Properties)},
		})

	default:
		// Generic/opaque schema: cannot validate, skip (§4.3 Phase O).
	}
}

func sortedKeys(m map[string]procedure.Schema) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// checkAdvisories implements Phase W.
func (w *walker) checkAdvisories(step procedure.Step, path string) {
	if len(w.v.KnownFacets) > 0 {
		if facets, ok := step.Params["facet_filters"].(map[string]any); ok {
			for key := range facets {
				if !containsStr(w.v.KnownFacets, key) {
					w.res.addWarning(Issue{
						Code:    InvalidFacetFilter,
						Message: fmt.Sprintf("unknown facet %q", key),
						Path:    path + ".params.facet_filters." + key,
						Details: map[string]any{"facet": key, "known": w.v.KnownFacets},
					})
				}
			}
		}
	}

	if len(w.v.StepNameHints) > 0 {
		lowerName := strings.ToLower(step.Name)
		for keyword, suggested := range w.v.StepNameHints {
			if strings.Contains(lowerName, keyword) && step.Function != suggested {
				w.res.addWarning(Issue{
					Code:    FunctionMismatchWarning,
					Message: fmt.Sprintf("step named %q invokes %q; did you mean %q?", step.Name, step.Function, suggested),
					Path:    path + ".function",
					Details: map[string]any{"step": step.Name, "keyword": keyword, "suggested": suggested, "actual": step.Function},
				})
			}
		}
	}
}

func containsStr(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// walkStrings walks v (typically a step's Params map) recursively, invoking
// fn for every string leaf with a JSON-pointer-ish subpath.
func walkStrings(v any, path string, fn func(s, path string)) {
	switch t := v.(type) {
	case string:
		fn(t, path)
	case map[string]any:
		for k, sub := range t {
			walkStrings(sub, path+"."+k, fn)
		}
	case []any:
		for i, sub := range t {
			walkStrings(sub, fmt.Sprintf("%s[%d]", path, i), fn)
		}
	}
}
