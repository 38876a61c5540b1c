package template

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/davidlarrimore/curatore-v2-sub001/procedure"
)

func scopeFor(params map[string]any, steps map[string]procedure.StepResult, loop map[string]any) Scope {
	return Scope{LoopScope: loop, Params: params, Steps: steps}
}

func TestRenderWholeMarkerReturnsTypedValue(t *testing.T) {
	s := scopeFor(map[string]any{"threshold": 5}, nil, nil)
	v, err := Render("{{ params.threshold }}", s)
	require.NoError(t, err)
	require.Equal(t, 5, v)
}

func TestRenderNoMarkersReturnsUnchanged(t *testing.T) {
	s := scopeFor(nil, nil, nil)
	v, err := Render("plain text, no markers", s)
	require.NoError(t, err)
	require.Equal(t, "plain text, no markers", v)
}

func TestRenderSplicesStringifiedValues(t *testing.T) {
	steps := map[string]procedure.StepResult{
		"search": procedure.SuccessResult([]any{"a", "b", "c"}, ""),
	}
	s := scopeFor(map[string]any{"query": "widgets"}, steps, nil)
	v, err := Render("{{ steps.search | length }} result(s) for query {{ params.query }}", s)
	require.NoError(t, err)
	require.Equal(t, "3 result(s) for query widgets", v)
}

func TestScopeResolvesLoopBeforeParamsAndSteps(t *testing.T) {
	steps := map[string]procedure.StepResult{"item": procedure.SuccessResult("from-steps", "")}
	s := scopeFor(map[string]any{"item": "from-params"}, steps, map[string]any{"item": "from-loop"})
	v, ok := s.resolveRoot("item")
	require.True(t, ok)
	require.Equal(t, "from-loop", v)
}

func TestScopeStepsNamespaceProjectsData(t *testing.T) {
	steps := map[string]procedure.StepResult{
		"prepare": procedure.SuccessResult(map[string]any{"subject": "hi"}, ""),
	}
	s := scopeFor(nil, steps, nil)
	v, err := Render("{{ steps.prepare.subject }}", s)
	require.NoError(t, err)
	require.Equal(t, "hi", v)
}

func TestRenderErrorsOnFieldAccessOnString(t *testing.T) {
	steps := map[string]procedure.StepResult{"search": procedure.SuccessResult("a plain string", "")}
	s := scopeFor(nil, steps, nil)
	_, err := Render("{{ steps.search.field }}", s)
	require.Error(t, err)
}

func TestComparisonOperators(t *testing.T) {
	s := scopeFor(map[string]any{"threshold": 5}, map[string]procedure.StepResult{
		"search": procedure.SuccessResult([]any{"a", "b", "c", "d", "e", "f"}, ""),
	}, nil)
	v, err := Render("{{ steps.search | length > params.threshold }}", s)
	require.NoError(t, err)
	require.Equal(t, true, v)
}

func TestTruthy(t *testing.T) {
	cases := []struct {
		v    any
		want bool
	}{
		{nil, false},
		{"", false},
		{"false", false},
		{"FALSE", false},
		{"no", false},
		{"0", false},
		{"yes", true},
		{0, false},
		{1, true},
		{[]any{}, false},
		{[]any{"x"}, true},
		{map[string]any{}, false},
	}
	for _, c := range cases {
		require.Equal(t, c.want, Truthy(c.v), "Truthy(%#v)", c.v)
	}
}

func TestRenderValueRecurses(t *testing.T) {
	s := scopeFor(map[string]any{"reviewer": "a@example.com"}, nil, nil)
	in := map[string]any{
		"to":      []any{"{{ params.reviewer }}"},
		"subject": "static",
	}
	out, err := RenderValue(in, s)
	require.NoError(t, err)
	m := out.(map[string]any)
	to := m["to"].([]any)
	require.Equal(t, "a@example.com", to[0])
	require.Equal(t, "static", m["subject"])
}

func TestParseInvalidSyntax(t *testing.T) {
	_, err := Parse("params.query ===")
	require.Error(t, err)
}
