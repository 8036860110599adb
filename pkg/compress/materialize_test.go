package compress

import (
	"testing"

	"github.com/bise86/duckdb/pkg/host"
	"github.com/bise86/duckdb/pkg/plan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCasts allows every cast the compression ladder ever asks for and
// names the function after the two types it connects, standing in for the
// host's real catalog-backed cast resolution.
type fakeCasts struct{}

func (fakeCasts) GetCastFunction(src, tgt plan.Type) (host.CastInfo, bool) {
	return host.CastInfo{SourceType: src, TargetType: tgt, FunctionName: "cast_" + src.String() + "_to_" + tgt.String()}, true
}

// fakeFuncs names the compress/decompress function families predictably so
// tests can assert on them without a real function catalog.
type fakeFuncs struct{}

func (fakeFuncs) SubtractFunction(numeric plan.Type) string { return "subtract_" + numeric.String() }
func (fakeFuncs) AddFunction(numeric plan.Type) string      { return "add_" + numeric.String() }
func (fakeFuncs) StringEncodeFunction(width int) string     { return "string_encode" }
func (fakeFuncs) StringDecodeFunction(width int) string     { return "string_decode" }

// fakeAllocator hands out sequential table indices starting above any
// index a test's hand-built plan already uses.
type fakeAllocator struct{ next uint32 }

func (a *fakeAllocator) AllocateTableIndex() uint32 {
	a.next++
	return a.next
}

var (
	_ host.CastProvider             = fakeCasts{}
	_ host.CompressFunctionProvider = fakeFuncs{}
	_ host.TableIndexAllocator      = (*fakeAllocator)(nil)
)

func newCM(stats *plan.StatisticsMap) *CompressedMaterialization {
	return New(stats, fakeCasts{}, &fakeAllocator{next: 100}, fakeFuncs{})
}

func scanGet(tableIndex uint32, name string, cols []string, types []plan.Type) *plan.Operator {
	return plan.NewGet(tableIndex, name, cols, types)
}

func groupByAgg(tableIndex uint32, child *plan.Operator, keyBinding plan.ColumnBinding, keyType plan.Type) *plan.Operator {
	agg := &plan.Operator{
		Kind:         plan.Aggregate,
		Children:     []*plan.Operator{child},
		TableIndex:   tableIndex,
		NumGroupKeys: 1,
		Expressions: []plan.Expression{
			&plan.ColumnRef{Binding: keyBinding, ResultType: keyType},
		},
	}
	agg.Refresh()
	return agg
}

func TestScenario5IntegralCompressionUTINYINT(t *testing.T) {
	scan := scanGet(0, "t", []string{"k"}, []plan.Type{plan.TypeInt64})
	kb := scan.OutputBindings()[0]

	stats := plan.NewStatisticsMap()
	stats.Insert(kb, plan.NewNumericStats(plan.TypeInt64, 1000, 1255, true))

	agg := groupByAgg(5, scan, kb, plan.TypeInt64)

	cm := newCM(stats)
	result := cm.Compress(agg)

	require.Equal(t, plan.Projection, result.Kind, "the aggregate must be wrapped in a decompress projection")
	require.Equal(t, plan.Aggregate, result.Children[0].Kind)

	compressProj := result.Children[0].Children[0]
	require.Equal(t, plan.Projection, compressProj.Kind)

	compressExpr := compressProj.Expressions[0].(*plan.Function)
	assert.Equal(t, plan.TypeUint8, compressExpr.Type(), "range 255 fits UTINYINT")

	decompressExpr := result.Expressions[0].(*plan.Function)
	assert.Equal(t, plan.TypeInt64, decompressExpr.Type())

	newStats, ok := stats.Lookup(compressProj.OutputBindings()[0])
	require.True(t, ok)
	ns := newStats.(*plan.NumericStats)
	assert.Equal(t, int64(0), ns.Min)
	assert.Equal(t, int64(255), ns.Max)
}

func TestScenario5IntegralCompressionUSMALLINT(t *testing.T) {
	scan := scanGet(0, "t", []string{"k"}, []plan.Type{plan.TypeInt64})
	kb := scan.OutputBindings()[0]

	stats := plan.NewStatisticsMap()
	stats.Insert(kb, plan.NewNumericStats(plan.TypeInt64, 0, 300, true))

	agg := groupByAgg(5, scan, kb, plan.TypeInt64)

	cm := newCM(stats)
	result := cm.Compress(agg)

	compressProj := result.Children[0].Children[0]
	compressExpr := compressProj.Expressions[0].(*plan.Function)
	assert.Equal(t, plan.TypeUint16, compressExpr.Type(), "range 300 needs USMALLINT")
}

func TestScenario5NoStatsMeansNoCompression(t *testing.T) {
	scan := scanGet(0, "t", []string{"k"}, []plan.Type{plan.TypeInt64})
	kb := scan.OutputBindings()[0]

	stats := plan.NewStatisticsMap() // no entry for kb

	agg := groupByAgg(5, scan, kb, plan.TypeInt64)

	cm := newCM(stats)
	result := cm.Compress(agg)

	assert.Same(t, agg, result, "without statistics the aggregate must be left untouched")
}

// TestScenario6RedundantPairEliminationAcrossJoin reproduces scenario 6's
// shape: Aggregate(Join(Projection_decompress(Aggregate(Projection_compress
// (Scan))), Other)), where the outer aggregate groups by the same column
// the inner aggregate already narrowed. The join condition deliberately
// does not reference that column, so nothing blocks elimination (§4.3:
// "require that the binding does not appear in any join condition").
func TestScenario6RedundantPairEliminationAcrossJoin(t *testing.T) {
	scan := scanGet(0, "t", []string{"k"}, []plan.Type{plan.TypeInt64})
	kb := scan.OutputBindings()[0]

	stats := plan.NewStatisticsMap()
	stats.Insert(kb, plan.NewNumericStats(plan.TypeInt64, 1000, 1255, true))

	innerAgg := groupByAgg(5, scan, kb, plan.TypeInt64)

	cm := newCM(stats)
	rewrittenInner := cm.processMaterializing(&holder{root: innerAgg}, innerAgg, func(*plan.Operator) {})
	require.Equal(t, plan.Projection, rewrittenInner.Kind, "inner aggregate must come back wrapped in a decompress projection")
	innerDecompressIndex := rewrittenInner.TableIndex

	// The host re-establishes statistics for the decompressed binding
	// (simulating a planner that recomputes column statistics after each
	// rewrite), making the outer aggregate's own group key eligible for
	// compression too.
	decompressedBinding := rewrittenInner.OutputBindings()[0]
	stats.Insert(decompressedBinding, plan.NewNumericStats(plan.TypeInt64, 1000, 1255, true))

	other := scanGet(1, "other", []string{"y"}, []plan.Type{plan.TypeInt64})

	join := &plan.Operator{
		Kind:     plan.ComparisonJoin,
		Children: []*plan.Operator{rewrittenInner, other},
	}
	join.Refresh()

	outerAgg := groupByAgg(50, join, decompressedBinding, plan.TypeInt64)

	result := cm.Compress(outerAgg)
	require.Equal(t, plan.Projection, result.Kind)

	outerCompressProj := result.Children[0].Children[0]
	require.True(t, cm.compressionIndices[outerCompressProj.TableIndex], "outer aggregate's own compress projection must be in place")

	joinNode := outerCompressProj.Children[0]
	require.Equal(t, plan.ComparisonJoin, joinNode.Kind)

	// The inner decompress projection must have been spliced out: the
	// join's left child is now the inner aggregate directly, still narrow.
	assert.Equal(t, plan.Aggregate, joinNode.Children[0].Kind, "decompress projection must be eliminated")
	assert.False(t, cm.decompressionIndices[innerDecompressIndex] && containsTableIndex(joinNode, innerDecompressIndex),
		"no surviving node should carry the eliminated decompress projection's table index")

	// The outer compress projection's expression for this column collapsed
	// to a bare reference into the now-directly-connected narrow column.
	ref, isRef := outerCompressProj.Expressions[0].(*plan.ColumnRef)
	require.True(t, isRef, "redundant compress expression must collapse to a bare column reference")
	assert.Equal(t, joinNode.Children[0].OutputBindings()[0], ref.Binding)
}

func containsTableIndex(op *plan.Operator, tableIndex uint32) bool {
	if op.Kind == plan.Projection && op.TableIndex == tableIndex {
		return true
	}
	for _, c := range op.Children {
		if containsTableIndex(c, tableIndex) {
			return true
		}
	}
	return false
}

func TestRoundTripIntegralCompression(t *testing.T) {
	scan := scanGet(0, "t", []string{"k"}, []plan.Type{plan.TypeInt64})
	kb := scan.OutputBindings()[0]
	stats := plan.NewStatisticsMap()
	stats.Insert(kb, plan.NewNumericStats(plan.TypeInt64, 1000, 1255, true))

	cp, ok := decide(kb, plan.TypeInt64, mustLookup(t, stats, kb), fakeCasts{}, fakeFuncs{})
	require.True(t, ok)

	input := &plan.ColumnRef{Binding: kb, ResultType: plan.TypeInt64}
	compressExpr := cp.buildCompress(input)
	fn := compressExpr.(*plan.Function)
	assert.Equal(t, "cast_INT64_to_UINT8", fn.Name)

	decompressExpr := cp.buildDecompress(&plan.ColumnRef{Binding: kb, ResultType: cp.NewType})
	dfn := decompressExpr.(*plan.Function)
	assert.Equal(t, "add_INT64", dfn.Name)
}

func mustLookup(t *testing.T, stats *plan.StatisticsMap, b plan.ColumnBinding) plan.Statistics {
	t.Helper()
	s, ok := stats.Lookup(b)
	require.True(t, ok)
	return s
}

func TestIdempotenceSecondCompressPassIsANoop(t *testing.T) {
	scan := scanGet(0, "t", []string{"k"}, []plan.Type{plan.TypeInt64})
	kb := scan.OutputBindings()[0]
	stats := plan.NewStatisticsMap()
	stats.Insert(kb, plan.NewNumericStats(plan.TypeInt64, 1000, 1255, true))

	agg := groupByAgg(5, scan, kb, plan.TypeInt64)

	cm := newCM(stats)
	first := cm.Compress(agg)

	cm2 := newCM(stats)
	second := cm2.Compress(first)

	assert.Equal(t, first.Explain(), second.Explain(), "re-running compression on an already-compressed plan must not add another layer")
}
