// Package bindingreplace implements BindingReplacer (§4.4): a visitor that
// substitutes one set of column bindings for another throughout a plan
// subtree, used by the compressed-materialization pass to retarget
// references after inserting a projection.
package bindingreplace

import "github.com/bise86/duckdb/pkg/plan"

// Replacement describes one binding substitution: every ColumnRef bound to
// Old is rewritten to bind to New, with its type updated to NewType.
type Replacement struct {
	Old     plan.ColumnBinding
	New     plan.ColumnBinding
	NewType plan.Type
}

// Replacer rewrites ColumnRef expressions according to a fixed set of
// replacements.
type Replacer struct {
	byOld map[plan.ColumnBinding]Replacement
}

// New builds a Replacer from a list of replacements.
func New(replacements []Replacement) *Replacer {
	byOld := make(map[plan.ColumnBinding]Replacement, len(replacements))
	for _, r := range replacements {
		byOld[r.Old] = r
	}
	return &Replacer{byOld: byOld}
}

// Apply descends from root, rewriting every ColumnRef whose binding matches
// one of the replacer's entries, and refreshing the cached schema of any
// operator whose expressions changed. It refuses to descend below stop: the
// operator at stop (and everything beneath it) is left untouched, because
// that subtree is the side the replacement was derived from and must keep
// referencing the old bindings.
func (r *Replacer) Apply(root, stop *plan.Operator) {
	if root == nil || root == stop {
		return
	}
	changed := false
	for i, e := range root.Expressions {
		root.Expressions[i] = r.rewrite(e, &changed)
	}
	for _, c := range root.Children {
		r.Apply(c, stop)
	}
	if changed {
		root.Refresh()
	}
}

func (r *Replacer) rewrite(e plan.Expression, changed *bool) plan.Expression {
	switch v := e.(type) {
	case *plan.ColumnRef:
		if repl, ok := r.byOld[v.Binding]; ok {
			*changed = true
			return &plan.ColumnRef{Binding: repl.New, ResultType: repl.NewType}
		}
		return v
	case *plan.Function:
		for i, a := range v.Args {
			v.Args[i] = r.rewrite(a, changed)
		}
		return v
	case *plan.Comparison:
		v.Left = r.rewrite(v.Left, changed)
		v.Right = r.rewrite(v.Right, changed)
		return v
	default:
		return e
	}
}
