package join

import (
	"github.com/bise86/duckdb/pkg/cost"
	"github.com/bise86/duckdb/pkg/host"
)

// JoinNode is one entry in the DP table: the best join tree found so far
// for a given RelationSet. Leaf nodes have no children and Cost 0.
type JoinNode struct {
	Set         *RelationSet
	Left, Right *JoinNode
	Cardinality uint64
	Cost        uint64
}

// enumerator runs DPccp (§4.2) over a Graph, filling a DP table keyed by
// interned *RelationSet pointers.
type enumerator struct {
	graph     *Graph
	model     cost.Model
	estimator host.CardinalityEstimator
	plans     map[*RelationSet]*JoinNode
}

// run fills the DP table and returns the best JoinNode for the full
// relation set, or nil if the graph has no relations.
func (e *enumerator) run() *JoinNode {
	n := len(e.graph.Relations)
	if n == 0 {
		return nil
	}

	for id := 0; id < n; id++ {
		s := e.graph.Interner.Singleton(id)
		card := e.estimator.EstimateCardinality(e.graph.Relations[id])
		e.plans[s] = &JoinNode{Set: s, Cardinality: card}
	}

	for id := n - 1; id >= 0; id-- {
		s := e.graph.Interner.Singleton(id)
		excl := e.graph.Interner.Range(0, id)
		e.emitCSG(s)
		e.enumerateCSGRecursive(s, excl)
	}

	full := e.graph.Interner.Range(0, n)
	return e.plans[full]
}

// emitCSG corresponds to §4.2 EmitCSG(S).
func (e *enumerator) emitCSG(s *RelationSet) {
	excl := e.graph.Interner.Union(e.graph.Interner.Range(0, s.Min()), s)
	neighbors := e.graph.GetNeighbors(s, excl)

	for _, n := range neighbors {
		singleton := e.graph.Interner.Singleton(n)
		if e.graph.IsConnected(s, singleton) {
			e.emitPair(s, singleton)
		}
		e.enumerateCmpRecursive(s, singleton, excl)
	}
}

// enumerateCmpRecursive corresponds to §4.2 EnumerateCmpRecursive(L,R,excl).
func (e *enumerator) enumerateCmpRecursive(left, right, excl *RelationSet) {
	neighbors := e.graph.GetNeighbors(right, excl)

	runningExcl := excl
	for _, n := range neighbors {
		rPrime := e.graph.Interner.Union(right, e.graph.Interner.Singleton(n))
		if _, ok := e.plans[rPrime]; ok && e.graph.IsConnected(left, rPrime) {
			e.emitPair(left, rPrime)
		}
		runningExcl = e.graph.Interner.Union(runningExcl, e.graph.Interner.Singleton(n))
		e.enumerateCmpRecursive(left, rPrime, runningExcl)
	}
}

// enumerateCSGRecursive corresponds to §4.2 EnumerateCSGRecursive(S,excl).
func (e *enumerator) enumerateCSGRecursive(s, excl *RelationSet) {
	neighbors := e.graph.GetNeighbors(s, excl)

	runningExcl := excl
	for _, n := range neighbors {
		sPrime := e.graph.Interner.Union(s, e.graph.Interner.Singleton(n))
		if _, ok := e.plans[sPrime]; ok {
			e.emitCSG(sPrime)
		}
		runningExcl = e.graph.Interner.Union(runningExcl, e.graph.Interner.Singleton(n))
		e.enumerateCSGRecursive(sPrime, runningExcl)
	}
}

// emitPair corresponds to §4.2 EmitPair(L,R): the DP table holds at most
// one entry per RelationSet, always the lowest-cost plan seen for it.
func (e *enumerator) emitPair(left, right *RelationSet) {
	a, ok := e.plans[left]
	if !ok {
		return
	}
	b, ok := e.plans[right]
	if !ok {
		return
	}

	set := e.graph.Interner.Union(left, right)
	candidate := e.createJoinTree(set, a, b)

	existing, ok := e.plans[set]
	if !ok || candidate.Cost < existing.Cost {
		e.plans[set] = candidate
	}
}

// createJoinTree corresponds to §4.2 CreateJoinTree: the smaller-cardinality
// side ends up on the right, a stable hash-build heuristic.
func (e *enumerator) createJoinTree(set *RelationSet, a, b *JoinNode) *JoinNode {
	if a.Cardinality < b.Cardinality {
		a, b = b, a
	}
	card, cost := e.model.Combine(a.Cardinality, a.Cost, b.Cardinality, b.Cost)
	return &JoinNode{Set: set, Left: a, Right: b, Cardinality: card, Cost: cost}
}
