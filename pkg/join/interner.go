package join

import "sort"

// Interner owns the canonical RelationSet for every distinct membership
// seen during one optimizer run, represented as a trie keyed by the sorted
// id sequence (design note: RelationSet interning). Lookups and unions
// always return the same *RelationSet for the same membership, so identity
// comparison (pointer equality) is sufficient everywhere else in this
// package.
type Interner struct {
	root *internerNode
}

type internerNode struct {
	children map[int]*internerNode
	set      *RelationSet // non-nil once this prefix has been interned
}

func newInternerNode() *internerNode {
	return &internerNode{children: make(map[int]*internerNode)}
}

// NewInterner creates an empty Interner.
func NewInterner() *Interner {
	return &Interner{root: newInternerNode()}
}

// Get interns ids and returns the canonical RelationSet for that
// membership. ids need not be pre-sorted or deduplicated.
func (in *Interner) Get(ids []int) *RelationSet {
	ids = sortedUnique(ids)
	node := in.root
	for _, id := range ids {
		child, ok := node.children[id]
		if !ok {
			child = newInternerNode()
			node.children[id] = child
		}
		node = child
	}
	if node.set == nil {
		owned := make([]int, len(ids))
		copy(owned, ids)
		node.set = &RelationSet{ids: owned}
	}
	return node.set
}

// Singleton interns the one-element set {id}.
func (in *Interner) Singleton(id int) *RelationSet {
	return in.Get([]int{id})
}

// Range interns the set {lo, ..., hi-1}. Returns the empty set if hi <= lo.
func (in *Interner) Range(lo, hi int) *RelationSet {
	if hi <= lo {
		return in.Get(nil)
	}
	ids := make([]int, 0, hi-lo)
	for i := lo; i < hi; i++ {
		ids = append(ids, i)
	}
	return in.Get(ids)
}

// Union interns the union of a and b's memberships.
func (in *Interner) Union(a, b *RelationSet) *RelationSet {
	return in.Get(unionIDs(a.ids, b.ids))
}

func sortedUnique(ids []int) []int {
	if len(ids) == 0 {
		return nil
	}
	out := make([]int, len(ids))
	copy(out, ids)
	sort.Ints(out)
	dedup := out[:1]
	for _, id := range out[1:] {
		if id != dedup[len(dedup)-1] {
			dedup = append(dedup, id)
		}
	}
	return dedup
}
