// Package compress implements the compressed-materialization pass (§4.3):
// inserting compress/decompress projection pairs around AGGREGATE,
// DISTINCT, and ORDER_BY so intermediate results hash and spill with
// narrower representations, then eliminating redundant round-trips.
package compress

import (
	"github.com/bise86/duckdb/pkg/host"
	"github.com/bise86/duckdb/pkg/plan"
)

// sizeLadder is the predetermined byte-width ladder the string
// compression path chooses from (§4.3).
var sizeLadder = []int{1, 2, 4, 8, 12, 16}

// CompressionPlan is the decision made for one child output binding: how to
// narrow it, and how to widen it back.
type CompressionPlan struct {
	OldBinding plan.ColumnBinding
	OldType    plan.Type
	NewBinding plan.ColumnBinding // filled in once the compress projection's table index is known
	NewType    plan.Type
	NewStats   plan.Statistics

	// buildCompress/buildDecompress construct the Function expression for
	// each direction, given the (already-bound) input ColumnRef.
	buildCompress   func(input *plan.ColumnRef) plan.Expression
	buildDecompress func(input *plan.ColumnRef) plan.Expression
}

// eligibleBindings returns the child output bindings a materializing
// operator m does not itself need in their original representation, per
// SPEC_FULL.md's resolution of the eligibility/scenario-5 tension: a bare
// column reference used directly as a group/order/distinct key stays
// eligible; a binding consumed by any non-trivial sub-expression (an
// aggregate argument, an arithmetic key) is must-preserve.
func eligibleBindings(m, child *plan.Operator) []plan.ColumnBinding {
	mustPreserve := make(map[plan.ColumnBinding]bool)

	switch m.Kind {
	case plan.Aggregate:
		for i, e := range m.Expressions {
			if i < m.NumGroupKeys {
				if _, bare := e.(*plan.ColumnRef); bare {
					continue
				}
			}
			for _, b := range plan.ColumnRefs(e) {
				mustPreserve[b] = true
			}
		}
	case plan.Distinct, plan.OrderBy:
		for _, e := range m.Expressions {
			if _, bare := e.(*plan.ColumnRef); bare {
				continue
			}
			for _, b := range plan.ColumnRefs(e) {
				mustPreserve[b] = true
			}
		}
	}

	var out []plan.ColumnBinding
	for _, b := range child.OutputBindings() {
		if !mustPreserve[b] {
			out = append(out, b)
		}
	}
	return out
}

// decide builds a CompressionPlan for binding if a strictly narrower
// representation is both valid and available, per the integral and string
// compression rules (§4.3). It returns false if neither rule applies or the
// necessary statistics/casts are missing (the Arithmetic/do-not-compress
// outcome from §7).
func decide(binding plan.ColumnBinding, typ plan.Type, stats plan.Statistics, casts host.CastProvider, funcs host.CompressFunctionProvider) (CompressionPlan, bool) {
	if stats.BoundType() != typ {
		plan.PanicInternal("statistics type %s does not match binding %s's declared type %s", stats.BoundType(), binding, typ)
	}
	if typ.IsIntegral() {
		return decideIntegral(binding, typ, stats, casts, funcs)
	}
	if typ == plan.TypeVarchar {
		return decideString(binding, stats, casts, funcs)
	}
	return CompressionPlan{}, false
}

func decideIntegral(binding plan.ColumnBinding, typ plan.Type, stats plan.Statistics, casts host.CastProvider, funcs host.CompressFunctionProvider) (CompressionPlan, bool) {
	ns, ok := stats.(*plan.NumericStats)
	if !ok || !ns.HasRange {
		return CompressionPlan{}, false
	}
	if ns.Max < ns.Min {
		return CompressionPlan{}, false // Arithmetic: malformed range, skip
	}

	span := ns.Max - ns.Min
	if span < 0 {
		return CompressionPlan{}, false // overflowed computing the span
	}

	width := narrowestWidthStrictlyAbove(span)
	if width <= 0 || width >= typ.Width() {
		return CompressionPlan{}, false // no narrower type strictly smaller than the source
	}

	newType := unsignedOfWidth(width)
	subCast, ok := casts.GetCastFunction(typ, newType)
	if !ok {
		return CompressionPlan{}, false
	}
	widenCast, ok := casts.GetCastFunction(newType, typ)
	if !ok {
		return CompressionPlan{}, false
	}

	min := ns.Min
	subName := funcs.SubtractFunction(typ)
	addName := funcs.AddFunction(typ)

	plan_ := CompressionPlan{
		OldBinding: binding,
		OldType:    typ,
		NewType:    newType,
		NewStats:   plan.NewNumericStats(newType, 0, span, true),
		buildCompress: func(input *plan.ColumnRef) plan.Expression {
			sub := &plan.Function{Name: subName, ResultType: typ, Args: []plan.Expression{input, &plan.Constant{ResultType: typ, Value: min}}}
			return &plan.Function{Name: subCast.FunctionName, ResultType: newType, Args: []plan.Expression{sub}}
		},
		buildDecompress: func(input *plan.ColumnRef) plan.Expression {
			widened := &plan.Function{Name: widenCast.FunctionName, ResultType: typ, Args: []plan.Expression{input}}
			return &plan.Function{Name: addName, ResultType: typ, Args: []plan.Expression{widened, &plan.Constant{ResultType: typ, Value: min}}}
		},
	}
	return plan_, true
}

// narrowestWidthStrictlyAbove returns the smallest integral width (1, 2, 4,
// or 8 bytes) whose unsigned range strictly exceeds span, or 0 if even 8
// bytes cannot represent it (not expected for an int64-bounded span, kept
// only to make the failure mode explicit rather than silently wrapping).
func narrowestWidthStrictlyAbove(span int64) int {
	for _, w := range []int{1, 2, 4, 8} {
		if span < maxUnsignedOfWidth(w) {
			return w
		}
	}
	return 0
}

func maxUnsignedOfWidth(w int) int64 {
	switch w {
	case 1:
		return 1 << 8
	case 2:
		return 1 << 16
	case 4:
		return 1 << 32
	default:
		return 1<<63 - 1
	}
}

func unsignedOfWidth(width int) plan.Type {
	switch width {
	case 1:
		return plan.TypeUint8
	case 2:
		return plan.TypeUint16
	case 4:
		return plan.TypeUint32
	case 8:
		return plan.TypeUint64
	default:
		return plan.TypeUnknown
	}
}

func decideString(binding plan.ColumnBinding, stats plan.Statistics, casts host.CastProvider, funcs host.CompressFunctionProvider) (CompressionPlan, bool) {
	ss, ok := stats.(*plan.StringStats)
	if !ok || !ss.HasMaxLength {
		return CompressionPlan{}, false
	}

	width := 0
	for _, w := range sizeLadder {
		if w > ss.MaxLength {
			width = w
			break
		}
	}
	if width == 0 {
		return CompressionPlan{}, false
	}

	upperBound := maxUnsignedOfWidth(width) - 1
	lowerBound := int64(0)

	// Design note (c): when the ladder picks a 2-byte slot, read the
	// leading byte of min_str/max_str as the numeric bound (0 if the
	// string is empty) and narrow to 1 byte if the leading byte of
	// max_str doesn't already saturate uint8. The upper bound is
	// max_numeric+1, not max_numeric — preserved exactly here to stay
	// compatible with downstream range checks, per design note (c).
	if width == 2 {
		var minNumeric, maxNumeric uint8
		if ss.MaxLength != 0 && len(ss.MinStr) != 0 {
			minNumeric = ss.MinStr[0]
		}
		if ss.MaxLength != 0 && len(ss.MaxStr) != 0 {
			maxNumeric = ss.MaxStr[0]
		}
		lowerBound = int64(minNumeric)
		upperBound = int64(maxNumeric) + 1
		if maxNumeric < 255 {
			width = 1
		}
	}

	newType := unsignedOfWidth(width)
	encodeFn := funcs.StringEncodeFunction(width)
	decodeFn := funcs.StringDecodeFunction(width)

	plan_ := CompressionPlan{
		OldBinding: binding,
		OldType:    plan.TypeVarchar,
		NewType:    newType,
		NewStats:   plan.NewNumericStats(newType, lowerBound, upperBound, true),
		buildCompress: func(input *plan.ColumnRef) plan.Expression {
			return &plan.Function{Name: encodeFn, ResultType: newType, Args: []plan.Expression{input}}
		},
		buildDecompress: func(input *plan.ColumnRef) plan.Expression {
			return &plan.Function{Name: decodeFn, ResultType: plan.TypeVarchar, Args: []plan.Expression{input}}
		},
	}
	return plan_, true
}
