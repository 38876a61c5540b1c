// Package template implements the Template Resolver (C5): a small
// recursive-descent evaluator for the engine's {{ expr }} dialect. It is
// deliberately not a general templating language (§9 "Template dialect" —
// "not full Jinja"): attribute/index access, literals, truthiness, the
// length/default pipe filters, and a handful of two-operand comparisons.
package template

import (
	"fmt"

	"github.com/davidlarrimore/curatore-v2-sub001/procedure"
)

// Scope is the typed context a template expression is evaluated against:
// loop-scope bindings, caller parameters, and prior step results (§4.4).
type Scope struct {
	LoopScope map[string]any
	Params    map[string]any
	Steps     map[string]procedure.StepResult
}

// NewScope builds a Scope from a RunContext.
func NewScope(rc *procedure.RunContext) Scope {
	return Scope{LoopScope: rc.LoopScope, Params: rc.Params, Steps: rc.Steps}
}

// resolveRoot resolves a bare identifier in the order loop_scope -> params ->
// steps (§4.4). "params" and "steps" are namespace roots resolved last,
// behind any same-named loop-scope binding — this lets "item"/"item_index"
// shadow an identically-named parameter or step inside a foreach branch.
func (s Scope) resolveRoot(ident string) (any, bool) {
	if s.LoopScope != nil {
		if v, ok := s.LoopScope[ident]; ok {
			return v, true
		}
	}
	if ident == "params" {
		return s.Params, true
	}
	if ident == "steps" {
		return s.stepsDataMap(), true
	}
	if v, ok := s.Params[ident]; ok {
		return v, true
	}
	return nil, false
}

// stepsDataMap projects Steps into name -> StepResult.Data, which is what
// `steps.X` resolves to (not the whole StepResult record, per §4.4).
func (s Scope) stepsDataMap() map[string]any {
	out := make(map[string]any, len(s.Steps))
	for name, r := range s.Steps {
		out[name] = r.Data
	}
	return out
}

// navigate walks path segments (attribute or index accessors) off of root,
// returning an error if a segment accesses a field on a string (§4.4:
// "Accessing a field on a string result value is an error at render time").
func navigate(root any, segs []segment) (any, error) {
	cur := root
	for _, seg := range segs {
		switch {
		case seg.index != nil:
			list, ok := cur.([]any)
			if !ok {
				return nil, fmt.Errorf("template: cannot index into %T", cur)
			}
			i := *seg.index
			if i < 0 || i >= len(list) {
				return nil, fmt.Errorf("template: index %d out of range (len %d)", i, len(list))
			}
			cur = list[i]
		default:
			switch v := cur.(type) {
			case map[string]any:
				cur = v[seg.field]
			case string:
				return nil, fmt.Errorf("template: cannot access field %q on string value", seg.field)
			case nil:
				cur = nil
			default:
				return nil, fmt.Errorf("template: cannot access field %q on %T", seg.field, cur)
			}
		}
	}
	return cur, nil
}

type segment struct {
	field string
	index *int
}
