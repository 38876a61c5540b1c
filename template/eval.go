package template

import (
	"fmt"
	"strconv"
	"strings"
)

// ast is the parsed form of one {{ expr }} expression: a path (or literal)
// root, zero-or-one pipe filters, and zero-or-one comparison operator+rhs.
type astExpr struct {
	root    pathOrLiteral
	filter  *filterCall
	cmpOp   string
	cmpRHS  pathOrLiteral
	hasCmp  bool
}

type pathOrLiteral struct {
	isLiteral bool
	literal   any
	ident     string
	segments  []segment
}

type filterCall struct {
	name string
	arg  *pathOrLiteral
}

// ParseError reports a malformed expression (INVALID_TEMPLATE_SYNTAX at the
// validator layer wraps these).
type ParseError struct {
	Msg string
}

func (e *ParseError) Error() string { return e.Msg }

// Parse parses the inner text of a {{ ... }} marker (trimmed, without the
// braces) into an evaluable expression.
func Parse(expr string) (*astExpr, error) {
	p := &parser{s: strings.TrimSpace(expr)}
	e, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.s) {
		return nil, &ParseError{Msg: fmt.Sprintf("unexpected trailing input %q", p.s[p.pos:])}
	}
	return e, nil
}

// Eval evaluates a parsed expression against scope.
func Eval(e *astExpr, scope Scope) (any, error) {
	val, err := evalPathOrLiteral(e.root, scope)
	if err != nil {
		return nil, err
	}
	if e.filter != nil {
		val, err = applyFilter(*e.filter, val, scope)
		if err != nil {
			return nil, err
		}
	}
	if e.hasCmp {
		rhs, err := evalPathOrLiteral(e.cmpRHS, scope)
		if err != nil {
			return nil, err
		}
		return compare(e.cmpOp, val, rhs)
	}
	return val, nil
}

func evalPathOrLiteral(pl pathOrLiteral, scope Scope) (any, error) {
	if pl.isLiteral {
		return pl.literal, nil
	}
	root, ok := scope.resolveRoot(pl.ident)
	if !ok {
		return nil, nil
	}
	return navigate(root, pl.segments)
}

func applyFilter(f filterCall, val any, scope Scope) (any, error) {
	switch f.name {
	case "length":
		return Length(val), nil
	case "default":
		if Truthy(val) {
			return val, nil
		}
		if f.arg == nil {
			return nil, nil
		}
		return evalPathOrLiteral(*f.arg, scope)
	default:
		return nil, fmt.Errorf("template: unknown filter %q", f.name)
	}
}

// Length implements the `length` pipe filter: len() of strings, slices and
// maps; 0 for nil; 0 for any other scalar (mirrors Python's permissive
// len()-on-the-wrong-thing-is-an-error semantics loosely — the engine
// chooses 0 over a render failure since length is advisory, used mostly in
// truthiness/comparison expressions).
func Length(v any) int {
	switch t := v.(type) {
	case nil:
		return 0
	case string:
		return len(t)
	case []any:
		return len(t)
	case map[string]any:
		return len(t)
	default:
		return 0
	}
}

func compare(op string, lhs, rhs any) (bool, error) {
	switch op {
	case "==":
		return looseEqual(lhs, rhs), nil
	case "!=":
		return !looseEqual(lhs, rhs), nil
	}
	lf, lok := asFloat(lhs)
	rf, rok := asFloat(rhs)
	if !lok || !rok {
		return false, fmt.Errorf("template: comparison %q requires numeric operands", op)
	}
	switch op {
	case ">":
		return lf > rf, nil
	case "<":
		return lf < rf, nil
	case ">=":
		return lf >= rf, nil
	case "<=":
		return lf <= rf, nil
	}
	return false, fmt.Errorf("template: unknown comparison operator %q", op)
}

func looseEqual(a, b any) bool {
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			return af == bf
		}
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
