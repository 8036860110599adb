// Package host defines the contracts this optimization core consumes from
// its caller (§6 External Interfaces). A real catalog, binder, or execution
// engine supplies concrete implementations; this module supplies none.
package host

import "github.com/bise86/duckdb/pkg/plan"

// CardinalityEstimator supplies a per-leaf row-count estimate, the only
// cardinality input the DPccp enumerator does not derive itself.
type CardinalityEstimator interface {
	EstimateCardinality(op *plan.Operator) uint64
}

// CastInfo describes a cast the compressed-materialization pass can use to
// build a compress or decompress expression.
type CastInfo struct {
	SourceType plan.Type
	TargetType plan.Type
	// FunctionName is the Function.Name a Function expression built with
	// this cast should carry.
	FunctionName string
}

// CastProvider resolves a cast between two types, if one exists.
type CastProvider interface {
	GetCastFunction(src, tgt plan.Type) (CastInfo, bool)
}

// TableIndexAllocator returns a fresh, globally-unique table index for a
// newly inserted projection.
type TableIndexAllocator interface {
	AllocateTableIndex() uint32
}

// CompressFunctionProvider names the function families the
// compressed-materialization pass builds compress/decompress Function
// expressions out of: compress(x, min) = cast(x - min, target), decompress
// (y, min) = cast(y, source) + min, plus the analogous fixed-width string
// encode/decode pair.
type CompressFunctionProvider interface {
	// SubtractFunction names the subtraction function for a numeric type,
	// used to build compress(x, min).
	SubtractFunction(numeric plan.Type) string
	// AddFunction names the addition function used to build decompress
	// (y, min) = widen(y) + min.
	AddFunction(numeric plan.Type) string
	// StringEncodeFunction/StringDecodeFunction name the fixed-width
	// string compression pair for a given encoded byte width.
	StringEncodeFunction(width int) string
	StringDecodeFunction(width int) string
}
