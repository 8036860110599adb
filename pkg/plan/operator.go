package plan

import "fmt"

// Kind tags the shape of a logical operator.
type Kind int

const (
	Get Kind = iota
	Filter
	Projection
	Join
	CrossProduct
	Aggregate
	Distinct
	OrderBy
	Limit
	ComparisonJoin
	DelimJoin
	AnyJoin
	Subquery
	TableFunction
)

func (k Kind) String() string {
	switch k {
	case Get:
		return "GET"
	case Filter:
		return "FILTER"
	case Projection:
		return "PROJECTION"
	case Join:
		return "JOIN"
	case CrossProduct:
		return "CROSS_PRODUCT"
	case Aggregate:
		return "AGGREGATE"
	case Distinct:
		return "DISTINCT"
	case OrderBy:
		return "ORDER_BY"
	case Limit:
		return "LIMIT"
	case ComparisonJoin:
		return "COMPARISON_JOIN"
	case DelimJoin:
		return "DELIM_JOIN"
	case AnyJoin:
		return "ANY_JOIN"
	case Subquery:
		return "SUBQUERY"
	case TableFunction:
		return "TABLE_FUNCTION"
	default:
		return "UNKNOWN"
	}
}

// JoinType distinguishes inner joins, which the join-order pass is allowed
// to reorder, from outer and semi/anti variants it is not.
type JoinType int

const (
	InnerJoin JoinType = iota
	LeftJoin
	RightJoin
	FullJoin
	SemiJoin
	AntiJoin
)

// Operator is a node in a logical plan tree. A node exclusively owns its
// Children; rewrites replace a child slot wholesale rather than mutating
// through a shared reference.
//
// Schema-producing kinds (GET, PROJECTION, AGGREGATE) allocate a TableIndex
// and number their own output bindings under it: 0..len(Columns)-1 for GET,
// 0..len(Expressions)-1 for PROJECTION and AGGREGATE.
// Pass-through kinds (FILTER, DISTINCT, ORDER_BY, LIMIT) reuse their single
// child's output bindings unchanged. Join kinds concatenate both children's
// output bindings, left then right.
type Operator struct {
	Kind     Kind
	Children []*Operator

	// Expressions holds the kind-specific expression list: the projection
	// list for PROJECTION, join conditions for JOIN/COMPARISON_JOIN/
	// ANY_JOIN/DELIM_JOIN, filter conditions for FILTER, distinct-on
	// columns for DISTINCT, and group keys followed by aggregate calls for
	// AGGREGATE (see NumGroupKeys).
	Expressions []Expression

	// TableIndex is meaningful only for GET, PROJECTION, and AGGREGATE.
	TableIndex uint32

	// NumGroupKeys is the number of leading entries in Expressions that
	// are group keys, for AGGREGATE only; the rest are aggregate calls.
	NumGroupKeys int

	// SortAscending is parallel to Expressions for ORDER_BY, recording
	// each order item's direction.
	SortAscending []bool

	// JoinKind distinguishes inner from outer/semi/anti for Kind == Join.
	JoinKind JoinType

	// TableName and Columns/ColumnTypes describe a GET leaf's own schema.
	TableName   string
	Columns     []string
	ColumnTypes []Type

	// cached derived data, refreshed by Refresh.
	outputBindings []ColumnBinding
	outputTypes    []Type
}

// NewGet builds a GET leaf with a fresh table index and base schema.
func NewGet(tableIndex uint32, tableName string, columns []string, columnTypes []Type) *Operator {
	op := &Operator{
		Kind:        Get,
		TableIndex:  tableIndex,
		TableName:   tableName,
		Columns:     columns,
		ColumnTypes: columnTypes,
	}
	op.Refresh()
	return op
}

// OutputBindings returns the cached output column bindings, in order.
func (op *Operator) OutputBindings() []ColumnBinding { return op.outputBindings }

// OutputTypes returns the cached output types, parallel to OutputBindings.
func (op *Operator) OutputTypes() []Type { return op.outputTypes }

// TypeOf returns the declared output type for binding, if op produces it.
func (op *Operator) TypeOf(binding ColumnBinding) (Type, bool) {
	for i, b := range op.outputBindings {
		if b == binding {
			return op.outputTypes[i], true
		}
	}
	return TypeUnknown, false
}

// Refresh recomputes outputBindings/outputTypes from Kind, Children, and
// Expressions. Every rewrite that changes an operator's shape must call
// Refresh before the result is observed by an ancestor.
func (op *Operator) Refresh() {
	switch op.Kind {
	case Get:
		op.outputBindings = make([]ColumnBinding, len(op.Columns))
		op.outputTypes = make([]Type, len(op.Columns))
		for i := range op.Columns {
			op.outputBindings[i] = ColumnBinding{TableIndex: op.TableIndex, ColumnIndex: uint32(i)}
			op.outputTypes[i] = op.ColumnTypes[i]
		}

	case Projection, Aggregate:
		op.outputBindings = make([]ColumnBinding, len(op.Expressions))
		op.outputTypes = make([]Type, len(op.Expressions))
		for i, e := range op.Expressions {
			op.outputBindings[i] = ColumnBinding{TableIndex: op.TableIndex, ColumnIndex: uint32(i)}
			op.outputTypes[i] = e.Type()
		}

	case Join, CrossProduct, ComparisonJoin, AnyJoin, DelimJoin:
		var bindings []ColumnBinding
		var types []Type
		for _, child := range op.Children {
			bindings = append(bindings, child.OutputBindings()...)
			types = append(types, child.OutputTypes()...)
		}
		op.outputBindings = bindings
		op.outputTypes = types

	case Filter, Distinct, OrderBy, Limit:
		if len(op.Children) == 1 {
			op.outputBindings = op.Children[0].OutputBindings()
			op.outputTypes = op.Children[0].OutputTypes()
		}

	default:
		// SUBQUERY / TABLE_FUNCTION: opaque to this package, schema comes
		// from the host. Leave cached data as-is.
	}

	debugf("plan: refreshed %s table=%d outputs=%d\n", op.Kind, op.TableIndex, len(op.outputBindings))
}

// Explain renders a short multi-line description of the subtree rooted at
// op, in the teacher's indentation style.
func (op *Operator) Explain() string {
	return op.explain(0)
}

func (op *Operator) explain(depth int) string {
	indent := ""
	for i := 0; i < depth; i++ {
		indent += "  "
	}
	s := fmt.Sprintf("%s%s", indent, op.Kind)
	if op.Kind == Get {
		s += fmt.Sprintf("(%s)", op.TableName)
	}
	s += "\n"
	for _, c := range op.Children {
		s += c.explain(depth + 1)
	}
	return s
}
