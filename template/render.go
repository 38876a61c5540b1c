package template

import (
	"fmt"
	"strconv"
	"strings"
)

// marker finds the span of the next {{ ... }} occurrence in s starting at
// from, returning the inner (trimmed) expression text and the byte range of
// the whole marker including braces. ok is false if no marker remains.
func marker(s string, from int) (inner string, start, end int, ok bool) {
	open := strings.Index(s[from:], "{{")
	if open < 0 {
		return "", 0, 0, false
	}
	open += from
	close := strings.Index(s[open:], "}}")
	if close < 0 {
		return "", 0, 0, false
	}
	close += open
	return strings.TrimSpace(s[open+2 : close]), open, close + 2, true
}

// Render evaluates every {{ expr }} marker in s against scope. A string with
// no markers is returned unchanged (§8 round-trip property). A string that
// is, once trimmed, exactly one marker returns the raw typed value the
// expression evaluates to (so `"{{ params.since_days }}"` yields an int, not
// the string "7"). Otherwise every marker is stringified and spliced into
// the surrounding text.
func Render(s string, scope Scope) (any, error) {
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "{{") && strings.HasSuffix(trimmed, "}}") {
		inner, start, end, ok := marker(trimmed, 0)
		if ok && start == 0 && end == len(trimmed) {
			expr, err := Parse(inner)
			if err != nil {
				return nil, err
			}
			return Eval(expr, scope)
		}
	}

	if !strings.Contains(s, "{{") {
		return s, nil
	}

	var b strings.Builder
	pos := 0
	for {
		inner, start, end, ok := marker(s, pos)
		if !ok {
			b.WriteString(s[pos:])
			break
		}
		b.WriteString(s[pos:start])
		expr, err := Parse(inner)
		if err != nil {
			return nil, err
		}
		val, err := Eval(expr, scope)
		if err != nil {
			return nil, err
		}
		b.WriteString(stringifyValue(val))
		pos = end
	}
	return b.String(), nil
}

func stringifyValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// RenderValue recursively renders params: maps and lists are walked,
// strings are rendered through Render, and non-string leaves pass through
// unchanged (§4.4).
func RenderValue(v any, scope Scope) (any, error) {
	switch t := v.(type) {
	case string:
		return Render(t, scope)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, sub := range t {
			rv, err := RenderValue(sub, scope)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = rv
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, sub := range t {
			rv, err := RenderValue(sub, scope)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = rv
		}
		return out, nil
	default:
		return v, nil
	}
}

// falsyStrings mirrors original_source's IfBranchFunction._is_truthy, which
// lowercases the whole string before comparing against every token in this
// set (not just "false" and the empty string, as a literal reading of
// spec.md's parenthetical might suggest) — see DESIGN.md.
var falsyStrings = map[string]bool{
	"":      true,
	"false": true,
	"0":     true,
	"none":  true,
	"null":  true,
	"no":    true,
	"n":     true,
}

// Truthy implements the engine's truthiness conversion (§4.4).
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case int:
		return t != 0
	case int64:
		return t != 0
	case float64:
		return t != 0
	case string:
		return !falsyStrings[strings.ToLower(t)]
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}
