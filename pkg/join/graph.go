package join

import (
	"sort"

	"github.com/bise86/duckdb/pkg/plan"
)

// Graph is the extracted JoinGraph: a dense relation mapping, the
// interned RelationSets and edge trie built from the plan's join
// predicates, and whatever predicates could not be promoted to edges.
type Graph struct {
	Interner *Interner

	// Relations maps a dense 0..N-1 id to the GET operator it was
	// extracted from.
	Relations []*plan.Operator

	// TableIndexToID maps a GET's TableIndex back to its dense id, used
	// when resolving column references to relation ids.
	TableIndexToID map[uint32]int

	edges *edgeTrie

	// Promoted holds every comparison predicate that was turned into a
	// join edge, with the relation ids each side referenced.
	Promoted []PromotedPredicate

	// Leftover holds every predicate collected during extraction that was
	// not promoted: single-relation filters, and comparisons whose sides
	// were not disjoint.
	Leftover []plan.Expression
}

// PromotedPredicate records a join predicate that was turned into an edge,
// together with the relation ids its two sides reference, so the rebuild
// step can reattach it at the right join node.
type PromotedPredicate struct {
	Expr       plan.Expression
	LeftIDs    *RelationSet
	RightIDs   *RelationSet
}

// GetNeighbors returns the neighbor relation ids of s under exclusion set
// excl, per §4.2.
func (g *Graph) GetNeighbors(s, excl *RelationSet) []int {
	return g.edges.getNeighbors(s, excl)
}

// IsConnected reports whether s has an edge into a subset of t.
func (g *Graph) IsConnected(s, t *RelationSet) bool {
	return g.edges.isConnected(s, t)
}

// Extract walks root looking for a reorderable subtree of inner joins and
// filters, per §4.1. It returns false, unchanged if root contains a
// construct that blocks reordering (a non-inner join, a subquery, or a
// table function) anywhere on the path it must descend.
func Extract(root *plan.Operator) (*Graph, bool) {
	g := &Graph{
		Interner:       NewInterner(),
		edges:          newEdgeTrie(),
		TableIndexToID: make(map[uint32]int),
	}

	var predicates []plan.Expression
	ok := walkExtract(root, g, &predicates)
	if !ok {
		return nil, false
	}
	if len(g.Relations) < 2 {
		return nil, false
	}

	g.promoteEdges(predicates)
	return g, true
}

// walkExtract descends the plan, registering GET leaves into g.Relations
// and appending FILTER/JOIN predicates to predicates. It returns false if
// it hits a blocking construct.
func walkExtract(op *plan.Operator, g *Graph, predicates *[]plan.Expression) bool {
	if op == nil {
		return true
	}

	switch op.Kind {
	case plan.Subquery, plan.TableFunction:
		return false

	case plan.Get:
		id := len(g.Relations)
		g.Relations = append(g.Relations, op)
		g.TableIndexToID[op.TableIndex] = id
		return true

	case plan.Join:
		if op.JoinKind != plan.InnerJoin {
			return false
		}
		*predicates = append(*predicates, op.Expressions...)
		for _, c := range op.Children {
			if !walkExtract(c, g, predicates) {
				return false
			}
		}
		return true

	case plan.CrossProduct:
		for _, c := range op.Children {
			if !walkExtract(c, g, predicates) {
				return false
			}
		}
		return true

	case plan.Filter:
		*predicates = append(*predicates, op.Expressions...)
		return walkExtract(op.Children[0], g, predicates)

	default:
		// Transparent: PROJECTION, AGGREGATE, DISTINCT, ORDER_BY, LIMIT,
		// and already-physical join kinds are passed through without
		// consuming their expressions as join predicates.
		for _, c := range op.Children {
			if !walkExtract(c, g, predicates) {
				return false
			}
		}
		return true
	}
}

// promoteEdges classifies each collected predicate into an edge or a
// leftover, per §4.1's disjointness rule.
func (g *Graph) promoteEdges(predicates []plan.Expression) {
	for _, expr := range predicates {
		cmp, ok := expr.(*plan.Comparison)
		if !ok {
			g.Leftover = append(g.Leftover, expr)
			continue
		}

		leftIDs := g.relationIDsOf(cmp.Left)
		rightIDs := g.relationIDsOf(cmp.Right)
		if len(leftIDs) == 0 || len(rightIDs) == 0 || !disjointIDSlices(leftIDs, rightIDs) {
			g.Leftover = append(g.Leftover, expr)
			continue
		}

		leftSet := g.Interner.Get(leftIDs)
		rightSet := g.Interner.Get(rightIDs)
		g.edges.insert(leftSet, rightSet)
		g.edges.insert(rightSet, leftSet)
		g.Promoted = append(g.Promoted, PromotedPredicate{Expr: expr, LeftIDs: leftSet, RightIDs: rightSet})
	}
}

// relationIDsOf returns the sorted, deduplicated set of dense relation ids
// referenced anywhere within expr.
func (g *Graph) relationIDsOf(expr plan.Expression) []int {
	bindings := plan.ColumnRefs(expr)
	seen := make(map[int]bool)
	for _, b := range bindings {
		if id, ok := g.TableIndexToID[b.TableIndex]; ok {
			seen[id] = true
		}
	}
	ids := make([]int, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func disjointIDSlices(a, b []int) bool {
	seen := make(map[int]bool, len(a))
	for _, id := range a {
		seen[id] = true
	}
	for _, id := range b {
		if seen[id] {
			return false
		}
	}
	return true
}
