package contracts

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/davidlarrimore/curatore-v2-sub001/procedure"
)

func echoInvoker(ctx context.Context, ictx InvocationContext, params map[string]any) (procedure.StepResult, error) {
	return procedure.SuccessResult(params, ""), nil
}

func TestRegistryLazyInit(t *testing.T) {
	initCalls := 0
	r := New(func(reg *Registry) {
		initCalls++
		reg.Register(procedure.Contract{Name: "log", Category: procedure.CategoryUtility}, InvokerFunc(echoInvoker))
	})

	require.Zero(t, initCalls, "initFunc must not run before first use")
	require.True(t, r.Has("log"), "expected \"log\" to be registered after lazy init")
	r.Has("log")
	require.Equal(t, 1, initCalls, "initFunc must run exactly once")
}

func TestRegistryGetMiss(t *testing.T) {
	r := New(nil)
	_, _, ok := r.Get("nonexistent")
	require.False(t, ok)
}

func TestRegistryListByCategoryAndTag(t *testing.T) {
	r := New(func(reg *Registry) {
		reg.Register(procedure.Contract{Name: "llm_generate", Category: procedure.CategoryLLM, Tags: []string{"llm"}}, InvokerFunc(echoInvoker))
		reg.Register(procedure.Contract{Name: "log", Category: procedure.CategoryUtility}, InvokerFunc(echoInvoker))
	})

	llm := r.ListByCategory(procedure.CategoryLLM)
	require.Len(t, llm, 1)
	require.Equal(t, "llm_generate", llm[0].Name)

	tagged := r.ListByTag("llm")
	require.Len(t, tagged, 1)
	require.Equal(t, "llm_generate", tagged[0].Name)

	names := r.Names()
	require.Equal(t, []string{"llm_generate", "log"}, names)
}

func TestRegistryCompiledInputSchemaCaches(t *testing.T) {
	r := New(func(reg *Registry) {
		reg.Register(procedure.Contract{
			Name:     "search_assets",
			Category: procedure.CategorySearch,
			InputSchema: procedure.Schema{
				Type:       "object",
				Properties: map[string]procedure.Schema{"query": {Type: "string"}},
				Required:   []string{"query"},
			},
		}, InvokerFunc(echoInvoker))
	})

	s1, err := r.CompiledInputSchema("search_assets")
	require.NoError(t, err)
	s2, err := r.CompiledInputSchema("search_assets")
	require.NoError(t, err)
	require.Same(t, s1, s2, "compiled schema should be cached and reused across calls")
}

func TestRegistryValidateParamsRejectsWrongType(t *testing.T) {
	r := New(func(reg *Registry) {
		reg.Register(procedure.Contract{
			Name:     "search_assets",
			Category: procedure.CategorySearch,
			InputSchema: procedure.Schema{
				Type:       "object",
				Properties: map[string]procedure.Schema{"limit": {Type: "integer"}},
				Required:   []string{"limit"},
			},
		}, InvokerFunc(echoInvoker))
	})

	err := r.ValidateParams("search_assets", map[string]any{"limit": "not-a-number"})
	require.Error(t, err, "a string value for an integer-typed param must fail validation")
}

func TestRegistryValidateParamsIgnoresMissingRequiredWhenOmitted(t *testing.T) {
	r := New(func(reg *Registry) {
		reg.Register(procedure.Contract{
			Name:     "search_assets",
			Category: procedure.CategorySearch,
			InputSchema: procedure.Schema{
				Type:       "object",
				Properties: map[string]procedure.Schema{"limit": {Type: "integer"}, "query": {Type: "string"}},
				Required:   []string{"limit"},
			},
		}, InvokerFunc(echoInvoker))
	})

	// Required is relaxed in the compiled params schema: Phase F's own
	// MissingRequiredParam check owns the required-field concern, so a
	// concrete-params map that omits "limit" (e.g. because it is still a
	// template placeholder) must not itself trip a jsonschema failure here.
	err := r.ValidateParams("search_assets", map[string]any{"query": "widgets"})
	require.NoError(t, err)
}

func TestRegistryReplaceExistingEntry(t *testing.T) {
	r := New(nil)
	r.Register(procedure.Contract{Name: "log", Description: "v1"}, InvokerFunc(echoInvoker))
	r.Register(procedure.Contract{Name: "log", Description: "v2"}, InvokerFunc(echoInvoker))
	c, _, ok := r.Get("log")
	require.True(t, ok)
	require.Equal(t, "v2", c.Description)
}
