package join

import "github.com/bise86/duckdb/pkg/plan"

// rebuildTree walks the winning JoinNode bottom-up and instantiates a
// COMPARISON_JOIN operator per internal node, per SPEC_FULL.md's "Plan
// rebuild" decision: the source leaves this step to "the host", but this
// module commits to returning the reordered plan directly.
//
// Each promoted predicate is attached at the lowest join whose two
// children's relation sets first separate its two referenced sides.
// Predicates that were never promoted to edges are not attached here; they
// stay in g.Leftover for the caller to wrap the final tree in a FILTER.
func rebuildTree(g *Graph, root *JoinNode) *plan.Operator {
	consumed := make([]bool, len(g.Promoted))
	op := rebuild(g, root, consumed)
	for i, ok := range consumed {
		if !ok {
			plan.PanicInternal("promoted predicate %d never attached to any join in the rebuilt tree", i)
		}
	}
	return op
}

func rebuild(g *Graph, node *JoinNode, consumed []bool) *plan.Operator {
	if node.Left == nil && node.Right == nil {
		return g.Relations[node.Set.Min()]
	}

	left := rebuild(g, node.Left, consumed)
	right := rebuild(g, node.Right, consumed)

	op := &plan.Operator{
		Kind:     plan.ComparisonJoin,
		Children: []*plan.Operator{left, right},
	}

	for i, pred := range g.Promoted {
		if consumed[i] {
			continue
		}
		coveredLR := pred.LeftIDs.SubsetOf(node.Left.Set) && pred.RightIDs.SubsetOf(node.Right.Set)
		coveredRL := pred.LeftIDs.SubsetOf(node.Right.Set) && pred.RightIDs.SubsetOf(node.Left.Set)
		if coveredLR || coveredRL {
			op.Expressions = append(op.Expressions, pred.Expr)
			consumed[i] = true
		}
	}

	op.Refresh()
	return op
}
