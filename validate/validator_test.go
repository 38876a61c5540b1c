package validate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/davidlarrimore/curatore-v2-sub001/contracts"
	"github.com/davidlarrimore/curatore-v2-sub001/procedure"
)

func testRegistry() *contracts.Registry {
	return contracts.New(func(r *contracts.Registry) {
		r.Register(procedure.Contract{
			Name:     "search_assets",
			Category: procedure.CategorySearch,
			InputSchema: procedure.Schema{
				Type:       "object",
				Properties: map[string]procedure.Schema{"query": {Type: "string"}},
				Required:   []string{"query"},
			},
			OutputSchema: procedure.Schema{
				Type: "array",
				Items: &procedure.Schema{
					Type:       "object",
					Properties: map[string]procedure.Schema{"title": {Type: "string"}, "id": {Type: "string"}},
				},
			},
		}, contracts.InvokerFunc(noopInvoke))
		r.Register(procedure.Contract{
			Name:         "log",
			Category:     procedure.CategoryUtility,
			OutputSchema: procedure.Schema{Type: "string"},
		}, contracts.InvokerFunc(noopInvoke))
		r.Register(procedure.Contract{
			Name:     "get_asset",
			Category: procedure.CategorySearch,
			InputSchema: procedure.Schema{
				Type:       "object",
				Properties: map[string]procedure.Schema{"id": {Type: "string"}},
				Required:   []string{"id"},
			},
			OutputSchema: procedure.Schema{
				Type:       "object",
				Properties: map[string]procedure.Schema{"id": {Type: "string"}, "title": {Type: "string"}},
			},
		}, contracts.InvokerFunc(noopInvoke))
		r.Register(procedure.Contract{Name: "if_branch", Category: procedure.CategoryFlow}, contracts.InvokerFunc(noopInvoke))
		r.Register(procedure.Contract{Name: "switch_branch", Category: procedure.CategoryFlow}, contracts.InvokerFunc(noopInvoke))
		r.Register(procedure.Contract{Name: "parallel", Category: procedure.CategoryFlow}, contracts.InvokerFunc(noopInvoke))
		r.Register(procedure.Contract{Name: "foreach", Category: procedure.CategoryFlow}, contracts.InvokerFunc(noopInvoke))
	})
}

func noopInvoke(context.Context, contracts.InvocationContext, map[string]any) (procedure.StepResult, error) {
	return procedure.StepResult{}, nil
}

func minimalDef() *procedure.Definition {
	return &procedure.Definition{
		Name: "Test Procedure",
		Slug: "test_procedure",
		Steps: []procedure.Step{
			{Name: "s1", Function: "log", Params: map[string]any{"msg": "hi"}},
		},
	}
}

func hasCode(res Result, code Code) bool {
	for _, e := range res.Errors {
		if e.Code == code {
			return true
		}
	}
	return false
}

func hasWarningCode(res Result, code Code) bool {
	for _, w := range res.Warnings {
		if w.Code == code {
			return true
		}
	}
	return false
}

func TestValidateMinimalDefinitionIsValid(t *testing.T) {
	v := &Validator{Registry: testRegistry()}
	res := v.Validate(minimalDef())
	require.True(t, res.Valid, "expected valid, got errors: %+v", res.Errors)
}

func TestPhaseSShortCircuitsOnSchemaError(t *testing.T) {
	v := &Validator{Registry: testRegistry()}
	def := &procedure.Definition{Name: "", Slug: "", Steps: nil}
	res := v.Validate(def)
	require.False(t, res.Valid)
	require.True(t, hasCode(res, MissingRequiredField))
	require.True(t, hasCode(res, EmptySteps))
	// Only Phase S errors should be present - the walk never runs so a
	// deeper-phase code like UNKNOWN_FUNCTION must not appear.
	require.False(t, hasCode(res, UnknownFunction), "phase S short-circuit should prevent the walk from running")
}

func TestPhaseSInvalidSlugFormat(t *testing.T) {
	v := &Validator{Registry: testRegistry()}
	def := minimalDef()
	def.Slug = "Not-A-Valid-Slug!"
	res := v.Validate(def)
	require.True(t, hasCode(res, InvalidSlugFormat))
}

func TestPhaseSContradictoryParameter(t *testing.T) {
	v := &Validator{Registry: testRegistry()}
	def := minimalDef()
	def.Parameters = []procedure.Parameter{{Name: "x", Required: true, Default: "fallback"}}
	res := v.Validate(def)
	require.True(t, hasCode(res, ContradictoryParameter))
}

func TestPhaseSDuplicateParameterName(t *testing.T) {
	v := &Validator{Registry: testRegistry()}
	def := minimalDef()
	def.Parameters = []procedure.Parameter{{Name: "x"}, {Name: "x"}}
	res := v.Validate(def)
	require.True(t, hasCode(res, DuplicateParameterName))
}

func TestDuplicateStepNameWithinList(t *testing.T) {
	v := &Validator{Registry: testRegistry()}
	def := minimalDef()
	def.Steps = append(def.Steps, procedure.Step{Name: "s1", Function: "log"})
	res := v.Validate(def)
	require.True(t, hasCode(res, DuplicateStepName))
}

func TestUnknownFunctionProducesError(t *testing.T) {
	v := &Validator{Registry: testRegistry()}
	def := minimalDef()
	def.Steps[0].Function = "does_not_exist"
	res := v.Validate(def)
	require.True(t, hasCode(res, UnknownFunction))
}

func TestMissingRequiredParamDetected(t *testing.T) {
	v := &Validator{Registry: testRegistry()}
	def := minimalDef()
	def.Steps[0] = procedure.Step{Name: "s1", Function: "search_assets", Params: map[string]any{}}
	res := v.Validate(def)
	require.True(t, hasCode(res, MissingRequiredParam))
}

func TestUnknownFunctionParamIsNotEnforced(t *testing.T) {
	v := &Validator{Registry: testRegistry()}
	def := minimalDef()
	def.Steps[0] = procedure.Step{
		Name: "s1", Function: "search_assets",
		Params: map[string]any{"query": "widgets", "extra_undeclared_key": "whatever"},
	}
	res := v.Validate(def)
	require.True(t, res.Valid, "undeclared param keys should not be enforced as errors, got %+v", res.Errors)
}

func TestInvalidParamTypeDetected(t *testing.T) {
	v := &Validator{Registry: testRegistry()}
	def := minimalDef()
	def.Steps[0] = procedure.Step{Name: "s1", Function: "search_assets", Params: map[string]any{"query": 123}}
	res := v.Validate(def)
	require.True(t, hasCode(res, InvalidParamType))
}

func TestTemplatedParamValueSkipsStaticTypeCheck(t *testing.T) {
	v := &Validator{Registry: testRegistry()}
	def := minimalDef()
	def.Parameters = []procedure.Parameter{{Name: "q", Type: "string"}}
	def.Steps[0] = procedure.Step{Name: "s1", Function: "search_assets", Params: map[string]any{"query": "{{ params.q }}"}}
	res := v.Validate(def)
	require.False(t, hasCode(res, InvalidParamType), "templated values should not trip static type checks: %+v", res.Errors)
}

func TestInvalidOnErrorPolicyOnStepAndDefinition(t *testing.T) {
	v := &Validator{Registry: testRegistry()}
	def := minimalDef()
	def.OnError = "explode"
	res := v.Validate(def)
	require.True(t, hasCode(res, InvalidOnErrorPolicy))
}

func TestIfBranchMissingThenBranch(t *testing.T) {
	v := &Validator{Registry: testRegistry()}
	def := minimalDef()
	def.Steps = []procedure.Step{{Name: "cond", Function: "if_branch", Condition: "true"}}
	res := v.Validate(def)
	require.True(t, hasCode(res, MissingRequiredBranch))
}

func TestIfBranchRejectsUnknownBranchName(t *testing.T) {
	v := &Validator{Registry: testRegistry()}
	def := minimalDef()
	def.Steps = []procedure.Step{{
		Name: "cond", Function: "if_branch", Condition: "true",
		Branches: map[string][]procedure.Step{
			"then":     {{Name: "a", Function: "log"}},
			"sideways": {{Name: "b", Function: "log"}},
		},
	}}
	res := v.Validate(def)
	require.True(t, hasCode(res, InvalidBranchStructure))
}

func TestParallelRequiresAtLeastTwoBranches(t *testing.T) {
	v := &Validator{Registry: testRegistry()}
	def := minimalDef()
	def.Steps = []procedure.Step{{
		Name: "p", Function: "parallel",
		Branches: map[string][]procedure.Step{"only": {{Name: "a", Function: "log"}}},
	}}
	res := v.Validate(def)
	require.True(t, hasCode(res, InsufficientBranches))
}

func TestSwitchBranchRequiresAtLeastOneCase(t *testing.T) {
	v := &Validator{Registry: testRegistry()}
	def := minimalDef()
	def.Steps = []procedure.Step{{
		Name: "sw", Function: "switch_branch",
		Branches: map[string][]procedure.Step{"default": {{Name: "a", Function: "log"}}},
	}}
	res := v.Validate(def)
	require.True(t, hasCode(res, MissingRequiredBranch), "switch_branch with only a default case")
}

func TestForeachEmptyEachBranch(t *testing.T) {
	v := &Validator{Registry: testRegistry()}
	def := minimalDef()
	def.Steps = []procedure.Step{{
		Name: "fe", Function: "foreach", Foreach: "{{ params.items }}",
		Branches: map[string][]procedure.Step{"each": {}},
	}}
	def.Parameters = []procedure.Parameter{{Name: "items", Type: "array"}}
	res := v.Validate(def)
	require.True(t, hasCode(res, EmptyBranch))
}

func TestInvalidTemplateSyntaxDetected(t *testing.T) {
	v := &Validator{Registry: testRegistry()}
	def := minimalDef()
	def.Steps[0].Params = map[string]any{"msg": "{{ params.query === }}"}
	res := v.Validate(def)
	require.True(t, hasCode(res, InvalidTemplateSyntax))
}

func TestUndeclaredParamReferenceDetected(t *testing.T) {
	v := &Validator{Registry: testRegistry()}
	def := minimalDef()
	def.Steps[0].Params = map[string]any{"msg": "{{ params.nope }}"}
	res := v.Validate(def)
	require.True(t, hasCode(res, InvalidParamReference))
}

func TestStepSelfReferenceIsCircularDependency(t *testing.T) {
	v := &Validator{Registry: testRegistry()}
	def := minimalDef()
	def.Steps[0].Params = map[string]any{"msg": "{{ steps.s1 }}"}
	res := v.Validate(def)
	require.True(t, hasCode(res, CircularDependency))
}

func TestForwardStepReferenceIsInvalid(t *testing.T) {
	v := &Validator{Registry: testRegistry()}
	def := minimalDef()
	def.Steps = []procedure.Step{
		{Name: "first", Function: "log", Params: map[string]any{"msg": "{{ steps.second }}"}},
		{Name: "second", Function: "log", Params: map[string]any{"msg": "hi"}},
	}
	res := v.Validate(def)
	require.True(t, hasCode(res, InvalidStepReference))
}

func TestOutputFieldReferenceOnStringOutputIsError(t *testing.T) {
	v := &Validator{Registry: testRegistry()}
	def := minimalDef()
	def.Steps = []procedure.Step{
		{Name: "s1", Function: "log", Params: map[string]any{"msg": "hi"}},
		{Name: "s2", Function: "log", Params: map[string]any{"msg": "{{ steps.s1.bogus_field }}"}},
	}
	res := v.Validate(def)
	require.True(t, hasCode(res, InvalidOutputFieldReference))
}

func TestOutputFieldReferenceOnArrayOutputIsWarning(t *testing.T) {
	v := &Validator{Registry: testRegistry()}
	def := minimalDef()
	def.Steps = []procedure.Step{
		{Name: "search", Function: "search_assets", Params: map[string]any{"query": "widgets"}},
		{Name: "s2", Function: "log", Params: map[string]any{"msg": "{{ steps.search.title }}"}},
	}
	res := v.Validate(def)
	require.True(t, hasWarningCode(res, InvalidOutputFieldReference))
	require.True(t, res.Valid, "a Phase O array-output field access should warn, not fail validation")
}

func TestOutputFieldReferenceUnknownObjectFieldIsWarning(t *testing.T) {
	v := &Validator{Registry: testRegistry()}
	def := minimalDef()
	def.Steps = []procedure.Step{
		{Name: "fetch", Function: "get_asset", Params: map[string]any{"id": "a1"}},
		{Name: "s2", Function: "log", Params: map[string]any{"msg": "{{ steps.fetch.bogus_field }}"}},
	}
	res := v.Validate(def)
	require.True(t, hasWarningCode(res, InvalidOutputFieldReference))
	require.True(t, res.Valid, "an unknown object output field should warn, not fail validation")
}

func TestOutputFieldReferenceKnownObjectFieldIsClean(t *testing.T) {
	v := &Validator{Registry: testRegistry()}
	def := minimalDef()
	def.Steps = []procedure.Step{
		{Name: "fetch", Function: "get_asset", Params: map[string]any{"id": "a1"}},
		{Name: "s2", Function: "log", Params: map[string]any{"msg": "{{ steps.fetch.title }}"}},
	}
	res := v.Validate(def)
	require.True(t, res.Valid, "referencing a declared output field should not produce any issue: %+v", res.Errors)
	require.False(t, hasWarningCode(res, InvalidOutputFieldReference))
}

func TestBranchScopeIsolation(t *testing.T) {
	v := &Validator{Registry: testRegistry()}
	def := minimalDef()
	def.Steps = []procedure.Step{
		{
			Name: "cond", Function: "if_branch", Condition: "true",
			Branches: map[string][]procedure.Step{
				"then": {{Name: "inside", Function: "log"}},
			},
		},
		{Name: "after", Function: "log", Params: map[string]any{"msg": "{{ steps.inside }}"}},
	}
	res := v.Validate(def)
	require.True(t, hasCode(res, InvalidStepReference), "a step declared inside a branch should not be visible outside it")
}

func TestFacetFilterAdvisory(t *testing.T) {
	v := &Validator{Registry: testRegistry(), KnownFacets: []string{"status", "owner"}}
	def := minimalDef()
	def.Steps[0] = procedure.Step{
		Name: "s1", Function: "search_assets",
		Params: map[string]any{"query": "x", "facet_filters": map[string]any{"bogus_facet": "y"}},
	}
	res := v.Validate(def)
	require.True(t, hasWarningCode(res, InvalidFacetFilter))
}

func TestFunctionMismatchHintAdvisory(t *testing.T) {
	v := &Validator{Registry: testRegistry(), StepNameHints: map[string]string{"search": "search_assets"}}
	def := minimalDef()
	def.Steps[0] = procedure.Step{Name: "search_for_widgets", Function: "log", Params: map[string]any{"msg": "hi"}}
	res := v.Validate(def)
	require.True(t, hasWarningCode(res, FunctionMismatchWarning))
}
