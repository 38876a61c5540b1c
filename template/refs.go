package template

// Ref describes one `steps.X[.field]` or `params.X` reference discovered in
// a parsed expression, used by the validator's Phase T/Phase O.
type Ref struct {
	// Namespace is "steps", "params", or "loop" (item/item_index).
	Namespace string
	// Name is the step or parameter name; for loop refs it is the loop
	// identifier itself (item or item_index).
	Name string
	// Field is the first field segment after the name, if any — this is
	// what Phase O checks against the referenced step's output_schema.
	// Empty if the reference has no field access (bare `{{ steps.X }}`).
	Field string
	// HasField reports whether Field is meaningful (a field access occurred)
	// as opposed to an empty-string field name.
	HasField bool
}

// ExtractMarkers returns the trimmed inner text of every {{ ... }} marker in
// s, in order of appearance.
func ExtractMarkers(s string) []string {
	var out []string
	pos := 0
	for {
		inner, _, end, ok := marker(s, pos)
		if !ok {
			break
		}
		out = append(out, inner)
		pos = end
	}
	return out
}

// CollectRefs walks a parsed expression's root path, filter argument, and
// comparison RHS, returning every steps/params/loop reference encountered.
func CollectRefs(e *astExpr) []Ref {
	var out []Ref
	collectFromPathOrLiteral(e.root, &out)
	if e.filter != nil && e.filter.arg != nil {
		collectFromPathOrLiteral(*e.filter.arg, &out)
	}
	if e.hasCmp {
		collectFromPathOrLiteral(e.cmpRHS, &out)
	}
	return out
}

func collectFromPathOrLiteral(pl pathOrLiteral, out *[]Ref) {
	if pl.isLiteral {
		return
	}
	switch pl.ident {
	case "steps":
		if len(pl.segments) == 0 {
			return
		}
		stepName := pl.segments[0].field
		ref := Ref{Namespace: "steps", Name: stepName}
		if len(pl.segments) > 1 && pl.segments[1].field != "" {
			ref.Field = pl.segments[1].field
			ref.HasField = true
		}
		*out = append(*out, ref)
	case "params":
		if len(pl.segments) == 0 {
			return
		}
		*out = append(*out, Ref{Namespace: "params", Name: pl.segments[0].field})
	case "item", "item_index":
		*out = append(*out, Ref{Namespace: "loop", Name: pl.ident})
	}
}
