package join

import (
	"github.com/bise86/duckdb/pkg/cost"
	"github.com/bise86/duckdb/pkg/host"
	"github.com/bise86/duckdb/pkg/plan"
)

// Optimizer is the join-order optimizer (§4.1, §4.2): JoinOrderOptimizer in
// the spec's terms.
type Optimizer struct {
	estimator host.CardinalityEstimator
	model     cost.Model
}

// NewOptimizer constructs an Optimizer. model may be nil, in which case
// cost.NewDefaultModel is used.
func NewOptimizer(estimator host.CardinalityEstimator, model cost.Model) *Optimizer {
	if model == nil {
		model = cost.NewDefaultModel()
	}
	return &Optimizer{estimator: estimator, model: model}
}

// Optimize reorders the join subtree rooted at root and returns the
// reordered plan. If root contains a construct the enumerator cannot
// reorder (a non-inner join, subquery, table function, or fewer than two
// base relations), it returns root unchanged and false.
//
// An internal invariant violation anywhere in extraction, enumeration, or
// rebuild aborts the whole pass: Optimize recovers the panic, logs it, and
// falls back to returning root unchanged rather than propagating a broken
// plan to the host (§7).
func (o *Optimizer) Optimize(root *plan.Operator) (rebuilt *plan.Operator, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			debugf("join: recovered internal error, falling back to unrewritten plan: %v\n", r)
			rebuilt, ok = root, false
		}
	}()
	return o.optimize(root)
}

func (o *Optimizer) optimize(root *plan.Operator) (*plan.Operator, bool) {
	g, ok := Extract(root)
	if !ok {
		debugln("join: extraction found an unsupported construct, leaving plan unchanged")
		return root, false
	}

	e := &enumerator{
		graph:     g,
		model:     o.model,
		estimator: o.estimator,
		plans:     make(map[*RelationSet]*JoinNode),
	}
	best := e.run()
	if best == nil {
		return root, false
	}

	debugf("join: optimized %d relations, chosen cost=%d\n", len(g.Relations), best.Cost)

	rebuilt := rebuildTree(g, best)
	if len(g.Leftover) > 0 {
		rebuilt = &plan.Operator{
			Kind:        plan.Filter,
			Children:    []*plan.Operator{rebuilt},
			Expressions: g.Leftover,
		}
		rebuilt.Refresh()
	}
	return rebuilt, true
}
