package compress

import "github.com/bise86/duckdb/pkg/plan"

// eliminateRedundantPairs walks the plan looking for a compress projection
// whose input, reached through the transparent-operator whitelist (§4.3:
// PROJECTION, COMPARISON_JOIN, ANY_JOIN, DELIM_JOIN, FILTER, LIMIT), is
// exactly a decompress projection this pass itself inserted earlier. When
// every reference to that decompress projection's output round-trips
// cleanly back to the pre-decompression representation, both projections
// collapse: the decompress projection is spliced out and the compress
// projection's redundant expressions become plain pass-throughs.
func (cm *CompressedMaterialization) eliminateRedundantPairs(root *plan.Operator) *plan.Operator {
	cm.eliminate(root)
	return root
}

// eliminate never replaces op itself: a compress projection's only possible
// simplification is to some of its own Expressions, and the decompress
// projection it collapses with is always a strict descendant, spliced out
// in place at its own parent.
func (cm *CompressedMaterialization) eliminate(op *plan.Operator) {
	for _, c := range op.Children {
		cm.eliminate(c)
	}

	if op.Kind == plan.Projection && cm.compressionIndices[op.TableIndex] && len(op.Children) == 1 {
		if pd, chain, parent, idx, ok := cm.findDecompressAncestor(op, 0); ok {
			if cm.collapsePair(op, pd, chain, parent, idx) {
				debugf("compress: eliminated redundant pair compress table=%d / decompress table=%d\n", op.TableIndex, pd.TableIndex)
			}
		}
	}
}

// findDecompressAncestor searches parent.Children[idx]'s subtree, descending
// through the transparent-operator whitelist (§4.3: PROJECTION,
// COMPARISON_JOIN, ANY_JOIN, DELIM_JOIN, FILTER, LIMIT), for a PROJECTION
// this pass recorded as a decompress projection. It returns the chain of
// operators strictly between the compress projection and pd, ordered
// bottom-up (nearest pd first, nearest the compress projection last),
// mirroring the reversed operators_in_between built by the original
// source's FindDecompression.
func (cm *CompressedMaterialization) findDecompressAncestor(parent *plan.Operator, idx int) (pd *plan.Operator, chain []*plan.Operator, foundParent *plan.Operator, foundIdx int, ok bool) {
	node := parent.Children[idx]
	if node.Kind == plan.Projection && cm.decompressionIndices[node.TableIndex] {
		return node, nil, parent, idx, true
	}
	switch node.Kind {
	case plan.Projection, plan.Filter, plan.Limit:
		if pd, rest, fp, fi, ok := cm.findDecompressAncestor(node, 0); ok {
			return pd, append(rest, node), fp, fi, true
		}
	case plan.ComparisonJoin, plan.AnyJoin, plan.DelimJoin:
		for i := range node.Children {
			if pd, rest, fp, fi, ok := cm.findDecompressAncestor(node, i); ok {
				return pd, append(rest, node), fp, fi, true
			}
		}
	}
	return nil, nil, nil, 0, false
}

// elimination describes one decompress-column / compress-column pair that
// the chain walk proved safe to collapse.
type elimination struct {
	decompressColIdx int
	compressColIdx   int
	carriers         []*plan.ColumnRef // bare pass-through refs along chain that must be rebound to m
}

// collapsePair attempts to remove pd and simplify pc's compress expressions
// that read pd's output, threading each decompress column's binding up
// through chain per §4.3 ("referenced exactly once, only via a bare column
// reference" at every intervening PROJECTION; never referenced by an
// intervening FILTER predicate or join condition), mirroring
// RemoveRedundantExpressions/RemoveRedundantExpressionsProjection. It
// commits the edit only for the columns it proved safe; if none are safe it
// leaves the plan untouched and returns false.
func (cm *CompressedMaterialization) collapsePair(pc, pd *plan.Operator, chain []*plan.Operator, pdParent *plan.Operator, pdIdx int) bool {
	m := pd.Children[0]
	pdBindings := pd.OutputBindings()
	mBindings := m.OutputBindings()
	mTypes := m.OutputTypes()

	var plans []elimination

	for colIdx, de := range pd.Expressions {
		decompressFn, isFn := de.(*plan.Function)
		if !isFn {
			continue
		}

		binding := pdBindings[colIdx]
		var carriers []*plan.ColumnRef
		blocked := false
		for _, node := range chain {
			switch node.Kind {
			case plan.Projection:
				ref, newBinding, ok := singleBareForward(node, binding)
				if !ok {
					blocked = true
					break
				}
				carriers = append(carriers, ref)
				binding = newBinding
			case plan.ComparisonJoin, plan.AnyJoin, plan.DelimJoin, plan.Filter:
				if exprsUseBinding(node.Expressions, binding) {
					blocked = true
				}
			case plan.Limit:
				// transparent, no check needed
			}
			if blocked {
				break
			}
		}
		if blocked {
			continue
		}

		// binding now lives in pc.Children[0]'s namespace; find the compress
		// expression reading it.
		compressColIdx, compressFn := findCompressExpr(pc, binding)
		if compressFn == nil {
			continue
		}

		narrowType := mTypes[colIdx]
		if compressFn.Type() != narrowType {
			continue // §4.3: statistics/type mismatch, just in case
		}
		if !constantsMatch(decompressFn, compressFn) {
			continue // §4.3: the shared min must agree on both sides
		}

		plans = append(plans, elimination{decompressColIdx: colIdx, compressColIdx: compressColIdx, carriers: carriers})
	}

	if len(plans) == 0 {
		return false
	}

	for _, el := range plans {
		newBinding, newType := mBindings[el.decompressColIdx], mTypes[el.decompressColIdx]
		pc.Expressions[el.compressColIdx] = &plan.ColumnRef{Binding: newBinding, ResultType: newType}
		for _, ref := range el.carriers {
			ref.Binding = newBinding
			ref.ResultType = newType
		}
	}

	// pd leaves the tree only when every one of its columns collapsed;
	// otherwise it stays to produce the columns that are still read
	// through its own bindings.
	if len(plans) == len(pd.Expressions) {
		pdParent.Children[pdIdx] = m
	}
	for _, node := range chain {
		node.Refresh()
	}
	pc.Refresh()
	return true
}

// singleBareForward reports whether node (a PROJECTION) forwards binding
// through exactly one bare column reference, with no other expression in
// node making non-trivial use of it, per
// RemoveRedundantExpressionsProjection. On success it returns that
// ColumnRef (to rebind later) and node's own output binding at that
// position.
func singleBareForward(node *plan.Operator, binding plan.ColumnBinding) (*plan.ColumnRef, plan.ColumnBinding, bool) {
	for _, e := range node.Expressions {
		if _, isRef := e.(*plan.ColumnRef); !isRef && usesBinding(e, binding) {
			return nil, plan.ColumnBinding{}, false
		}
	}

	var found *plan.ColumnRef
	foundIdx := -1
	outBindings := node.OutputBindings()
	for i, e := range node.Expressions {
		ref, isRef := e.(*plan.ColumnRef)
		if !isRef || ref.Binding != binding {
			continue
		}
		if found != nil {
			return nil, plan.ColumnBinding{}, false // duplicate projection, don't eliminate (for now)
		}
		found, foundIdx = ref, i
	}
	if found == nil {
		return nil, plan.ColumnBinding{}, false // projected out
	}
	return found, outBindings[foundIdx], true
}

func exprsUseBinding(exprs []plan.Expression, binding plan.ColumnBinding) bool {
	for _, e := range exprs {
		if usesBinding(e, binding) {
			return true
		}
	}
	return false
}

func usesBinding(e plan.Expression, binding plan.ColumnBinding) bool {
	for _, b := range plan.ColumnRefs(e) {
		if b == binding {
			return true
		}
	}
	return false
}

// findCompressExpr locates the entry in pc.Expressions that reads binding
// (directly, as the innermost argument of a compress function call) and
// returns its index alongside the function itself.
func findCompressExpr(pc *plan.Operator, binding plan.ColumnBinding) (int, *plan.Function) {
	for i, e := range pc.Expressions {
		fn, isFn := e.(*plan.Function)
		if !isFn {
			continue
		}
		if ref := innermostColumnRef(fn); ref != nil && ref.Binding == binding {
			return i, fn
		}
	}
	return -1, nil
}

// constantsMatch reports whether decompress and compress carry the same
// constant operand (the shared `min`, per §4.3's integral compression
// rule). Expressions with no constant operand at all (the string path,
// which only narrows widths) are considered matching by definition.
func constantsMatch(decompress, compress *plan.Function) bool {
	dv, dok := findConstant(decompress)
	cv, cok := findConstant(compress)
	if !dok && !cok {
		return true
	}
	return dok && cok && dv == cv
}

// findConstant searches fn's arguments in order, recursing into nested
// function calls, and returns the first BOUND_CONSTANT it finds. In the
// shape decideIntegral builds, the constant sits one level below the outer
// cast function.
func findConstant(fn *plan.Function) (interface{}, bool) {
	for _, arg := range fn.Args {
		switch a := arg.(type) {
		case *plan.Constant:
			return a.Value, true
		case *plan.Function:
			if v, ok := findConstant(a); ok {
				return v, true
			}
		}
	}
	return nil, false
}

func innermostColumnRef(e plan.Expression) *plan.ColumnRef {
	for {
		switch v := e.(type) {
		case *plan.ColumnRef:
			return v
		case *plan.Function:
			if len(v.Args) == 0 {
				return nil
			}
			e = v.Args[0]
		default:
			return nil
		}
	}
}
