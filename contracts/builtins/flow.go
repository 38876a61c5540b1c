// Package builtins registers the engine's built-in tools: the four flow
// primitives plus a small illustrative catalog of ordinary tools across the
// search/notify/llm/compound/utility categories. Grounded on
// original_source/backend/app/cwr/tools/primitives/flow/*.py for the flow
// primitives' exact semantics (truthiness, the "empty branches_to_run means
// run them all" convention) and on original_source/backend/app/cwr/tools/
// registry.py for the shape of the built-in catalog, generalized away from
// that app's procurement-specific tool names.
package builtins

import (
	"context"
	"fmt"
	"strings"

	"github.com/davidlarrimore/curatore-v2-sub001/contracts"
	"github.com/davidlarrimore/curatore-v2-sub001/procedure"
	"github.com/davidlarrimore/curatore-v2-sub001/template"
)

// RegisterFlow installs the four flow primitives into r. Flow tools never
// mutate persistent state and never know their own branch names — they
// compute a FlowDirective from their rendered params, and the executor's
// Flow Controller resolves the directive against the step's declared
// Branches (§4.6, §9 "Flow primitives as tools").
func RegisterFlow(r *contracts.Registry) {
	r.Register(ifBranchContract(), contracts.InvokerFunc(invokeIfBranch))
	r.Register(switchBranchContract(), contracts.InvokerFunc(invokeSwitchBranch))
	r.Register(parallelContract(), contracts.InvokerFunc(invokeParallel))
	r.Register(foreachContract(), contracts.InvokerFunc(invokeForeach))
}

func ifBranchContract() procedure.Contract {
	return procedure.Contract{
		Name:        "if_branch",
		Category:    procedure.CategoryFlow,
		Description: "Evaluates a rendered condition and selects the then or else branch.",
		InputSchema: procedure.Schema{
			Type:       "object",
			Properties: map[string]procedure.Schema{"condition": {Type: "string"}},
			Required:   []string{"condition"},
		},
		OutputSchema:    procedure.Schema{Type: "object"},
		IsPrimitive:     true,
		PayloadProfile:  procedure.PayloadThin,
		ExposureProfile: procedure.DefaultExposureProfile(),
	}
}

// invokeIfBranch implements the original's IfBranchFunction.execute: the
// branch key is "then" when the rendered condition is truthy, else "else".
func invokeIfBranch(_ context.Context, _ contracts.InvocationContext, params map[string]any) (procedure.StepResult, error) {
	cond := params["condition"]
	key := "else"
	if template.Truthy(cond) {
		key = "then"
	}
	return procedure.StepResult{
		Status:  procedure.StatusSuccess,
		Data:    map[string]any{"branch": key},
		Message: fmt.Sprintf("selected branch %q", key),
		Directive: &procedure.FlowDirective{
			BranchKey: key,
		},
	}, nil
}

func switchBranchContract() procedure.Contract {
	return procedure.Contract{
		Name:        "switch_branch",
		Category:    procedure.CategoryFlow,
		Description: "Stringifies a rendered value and selects the matching named branch, falling back to default.",
		InputSchema: procedure.Schema{
			Type:       "object",
			Properties: map[string]procedure.Schema{"value": {}},
			Required:   []string{"value"},
		},
		OutputSchema:    procedure.Schema{Type: "object"},
		IsPrimitive:     true,
		PayloadProfile:  procedure.PayloadThin,
		ExposureProfile: procedure.DefaultExposureProfile(),
	}
}

func invokeSwitchBranch(_ context.Context, _ contracts.InvocationContext, params map[string]any) (procedure.StepResult, error) {
	key := stringify(params["value"])
	return procedure.StepResult{
		Status:  procedure.StatusSuccess,
		Data:    map[string]any{"value": key},
		Message: fmt.Sprintf("stringified switch value %q", key),
		// BranchKey is the literal stringified value; the Flow Controller
		// falls back to "default" (or no branch) if this key is absent from
		// the step's declared branches.
		Directive: &procedure.FlowDirective{BranchKey: key},
	}, nil
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", t))
	}
}

func parallelContract() procedure.Contract {
	return procedure.Contract{
		Name:        "parallel",
		Category:    procedure.CategoryFlow,
		Description: "Fans out to every declared branch concurrently, bounded by max_concurrency.",
		InputSchema: procedure.Schema{
			Type: "object",
			Properties: map[string]procedure.Schema{
				"max_concurrency": {Type: "integer", Default: 0},
			},
		},
		OutputSchema:    procedure.Schema{Type: "object"},
		IsPrimitive:     true,
		PayloadProfile:  procedure.PayloadThin,
		ExposureProfile: procedure.DefaultExposureProfile(),
	}
}

// invokeParallel mirrors the original ParallelFunction: it has no knowledge
// of branch names, so BranchesToRun is left empty and RunAllBranches signals
// the executor to run every branch declared on the step.
func invokeParallel(_ context.Context, _ contracts.InvocationContext, params map[string]any) (procedure.StepResult, error) {
	maxConcurrency := 0
	if v, ok := params["max_concurrency"]; ok {
		maxConcurrency = asInt(v)
	}
	return procedure.StepResult{
		Status:  procedure.StatusSuccess,
		Data:    map[string]any{"max_concurrency": maxConcurrency},
		Message: "fanning out to all declared branches",
		Metadata: map[string]any{"max_concurrency": maxConcurrency},
		Directive: &procedure.FlowDirective{
			RunAllBranches: true,
		},
	}, nil
}

func asInt(v any) int {
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	default:
		return 0
	}
}

func foreachContract() procedure.Contract {
	return procedure.Contract{
		Name:        "foreach",
		Category:    procedure.CategoryFlow,
		Description: "Iterates a rendered list, running the each branch once per item with item/item_index bound.",
		InputSchema: procedure.Schema{
			Type:       "object",
			Properties: map[string]procedure.Schema{"items": {Type: "array"}},
			Required:   []string{"items"},
		},
		OutputSchema:    procedure.Schema{Type: "object"},
		IsPrimitive:     true,
		PayloadProfile:  procedure.PayloadThin,
		ExposureProfile: procedure.DefaultExposureProfile(),
	}
}

func invokeForeach(_ context.Context, _ contracts.InvocationContext, params map[string]any) (procedure.StepResult, error) {
	items, _ := params["items"].([]any)
	return procedure.StepResult{
		Status:  procedure.StatusSuccess,
		Data:    map[string]any{"count": len(items)},
		Message: fmt.Sprintf("iterating %d item(s)", len(items)),
		Directive: &procedure.FlowDirective{
			ItemsToIterate: items,
		},
	}, nil
}
