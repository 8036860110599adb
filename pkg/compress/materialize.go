package compress

import (
	"github.com/bise86/duckdb/pkg/bindingreplace"
	"github.com/bise86/duckdb/pkg/host"
	"github.com/bise86/duckdb/pkg/plan"
)

// CompressedMaterialization inserts and later prunes compress/decompress
// projection pairs around AGGREGATE, DISTINCT, and ORDER_BY operators
// (§4.3). One instance owns the StatisticsMap it updates in place as it
// runs.
type CompressedMaterialization struct {
	stats *plan.StatisticsMap
	casts host.CastProvider
	alloc host.TableIndexAllocator
	funcs host.CompressFunctionProvider

	compressionIndices   map[uint32]bool
	decompressionIndices map[uint32]bool
}

// New builds a CompressedMaterialization pass over stats, which is mutated
// in place as compressed bindings are introduced and retired.
func New(stats *plan.StatisticsMap, casts host.CastProvider, alloc host.TableIndexAllocator, funcs host.CompressFunctionProvider) *CompressedMaterialization {
	return &CompressedMaterialization{
		stats:                stats,
		casts:                casts,
		alloc:                alloc,
		funcs:                funcs,
		compressionIndices:   make(map[uint32]bool),
		decompressionIndices: make(map[uint32]bool),
	}
}

// Compress runs the full pass over root: inserting compress/decompress
// projections around every eligible materializing operator, then
// eliminating redundant decompress-then-compress pairs. It returns the new
// plan root (which may differ from root if root itself was wrapped).
//
// An internal invariant violation anywhere in the pass aborts the whole
// rewrite: Compress recovers the panic, logs it, and falls back to
// returning root unchanged rather than handing the host a partially
// rewritten plan (§7).
func (cm *CompressedMaterialization) Compress(root *plan.Operator) (result *plan.Operator) {
	defer func() {
		if r := recover(); r != nil {
			debugf("compress: recovered internal error, falling back to unrewritten plan: %v\n", r)
			result = root
		}
	}()

	h := &holder{root: root}
	newSubtree := cm.rewrite(h, root, func(newRoot *plan.Operator) { h.root = newRoot })
	h.root = newSubtree
	return cm.eliminateRedundantPairs(h.root)
}

// holder tracks the plan's current overall root so BindingReplacer passes
// triggered deep inside the recursion can walk the full, up-to-date tree.
type holder struct {
	root *plan.Operator
}

// rewrite processes op's subtree bottom-up and returns the operator that
// should occupy its old slot: itself, or a decompress projection wrapping
// it. set must be called by the time a materializing operator installs its
// replacement, so that a BindingReplacer pass issued afterward sees the new
// node already linked into the tree.
func (cm *CompressedMaterialization) rewrite(h *holder, op *plan.Operator, set func(*plan.Operator)) *plan.Operator {
	for i := range op.Children {
		idx := i
		op.Children[idx] = cm.rewrite(h, op.Children[idx], func(newChild *plan.Operator) { op.Children[idx] = newChild })
	}
	op.Refresh()

	switch op.Kind {
	case plan.Aggregate, plan.Distinct, plan.OrderBy:
		return cm.processMaterializing(h, op, set)
	default:
		return op
	}
}

func (cm *CompressedMaterialization) processMaterializing(h *holder, m *plan.Operator, set func(*plan.Operator)) *plan.Operator {
	child := m.Children[0]
	candidates := eligibleBindings(m, child)

	var plans []CompressionPlan
	for _, b := range candidates {
		typ, ok := child.TypeOf(b)
		if !ok {
			continue
		}
		stats, ok := cm.stats.Lookup(b)
		if !ok {
			continue // no statistics: nothing to narrow against, leave uncompressed
		}
		if cp, ok := decide(b, typ, stats, cm.casts, cm.funcs); ok {
			plans = append(plans, cp)
		}
	}
	if len(plans) == 0 {
		return m
	}

	pc := cm.buildCompressProjection(child, plans)
	cm.compressionIndices[pc.TableIndex] = true
	m.Children[0] = pc

	var compressReplacements []bindingreplace.Replacement
	for _, cp := range plans {
		compressReplacements = append(compressReplacements, bindingreplace.Replacement{
			Old: cp.OldBinding, New: cp.NewBinding, NewType: cp.NewType,
		})
	}
	bindingreplace.New(compressReplacements).Apply(h.root, pc)
	m.Refresh()

	newBindingToPlan := make(map[plan.ColumnBinding]CompressionPlan, len(plans))
	for _, cp := range plans {
		cm.stats.Erase(cp.OldBinding)
		cm.stats.Insert(cp.NewBinding, cp.NewStats)
		newBindingToPlan[cp.NewBinding] = cp
	}

	pd := cm.buildDecompressProjection(m, newBindingToPlan)
	cm.decompressionIndices[pd.TableIndex] = true
	debugf("compress: inserted compress table=%d / decompress table=%d around %s (%d bindings narrowed)\n",
		pc.TableIndex, pd.TableIndex, m.Kind, len(plans))

	set(pd)
	if h.root == m {
		h.root = pd
	} else {
		var decompressReplacements []bindingreplace.Replacement
		i := 0
		for _, b := range m.OutputBindings() {
			decompressReplacements = append(decompressReplacements, bindingreplace.Replacement{
				Old: b, New: pd.OutputBindings()[i], NewType: pd.OutputTypes()[i],
			})
			i++
		}
		bindingreplace.New(decompressReplacements).Apply(h.root, pd)
	}

	return pd
}

// buildCompressProjection wraps child in a PROJECTION with one entry per
// child output binding: a compress expression for every binding with a
// CompressionPlan, an identity pass-through for everything else.
func (cm *CompressedMaterialization) buildCompressProjection(child *plan.Operator, plans []CompressionPlan) *plan.Operator {
	byOld := make(map[plan.ColumnBinding]*CompressionPlan, len(plans))
	for i := range plans {
		byOld[plans[i].OldBinding] = &plans[i]
	}

	tableIndex := cm.alloc.AllocateTableIndex()
	exprs := make([]plan.Expression, len(child.OutputBindings()))
	for i, b := range child.OutputBindings() {
		typ := child.OutputTypes()[i]
		input := &plan.ColumnRef{Binding: b, ResultType: typ}
		if cp, ok := byOld[b]; ok {
			exprs[i] = cp.buildCompress(input)
		} else {
			exprs[i] = input
		}
	}

	pc := &plan.Operator{
		Kind:        plan.Projection,
		Children:    []*plan.Operator{child},
		Expressions: exprs,
		TableIndex:  tableIndex,
	}
	pc.Refresh()

	for i, b := range child.OutputBindings() {
		if cp, ok := byOld[b]; ok {
			cp.NewBinding = pc.OutputBindings()[i]
		}
	}
	return pc
}

// buildDecompressProjection wraps m in a PROJECTION that widens every
// bindingrecognized in newBindingToPlan back to its original
// representation, and passes everything else through unchanged.
func (cm *CompressedMaterialization) buildDecompressProjection(m *plan.Operator, newBindingToPlan map[plan.ColumnBinding]CompressionPlan) *plan.Operator {
	tableIndex := cm.alloc.AllocateTableIndex()
	outBindings := m.OutputBindings()
	outTypes := m.OutputTypes()
	exprs := make([]plan.Expression, len(outBindings))

	for i, b := range outBindings {
		typ := outTypes[i]
		matched, ok := newBindingToPlan[b]
		if !ok && i < len(m.Expressions) {
			if ref, isRef := m.Expressions[i].(*plan.ColumnRef); isRef {
				if cp, ok2 := newBindingToPlan[ref.Binding]; ok2 {
					matched, ok = cp, true
				}
			}
		}
		if ok {
			input := &plan.ColumnRef{Binding: b, ResultType: typ}
			exprs[i] = matched.buildDecompress(input)
		} else {
			exprs[i] = &plan.ColumnRef{Binding: b, ResultType: typ}
		}
	}

	pd := &plan.Operator{
		Kind:        plan.Projection,
		Children:    []*plan.Operator{m},
		Expressions: exprs,
		TableIndex:  tableIndex,
	}
	pd.Refresh()
	return pd
}
