package plan

// ExprKind tags the concrete type behind an Expression.
type ExprKind int

const (
	ExprColumnRef ExprKind = iota
	ExprConstant
	ExprFunction
	ExprComparison
)

// Expression is a node in a scalar expression tree. It mirrors the shape of
// a parsed SQL expression but is built and rewritten directly by callers of
// this package rather than produced by a parser.
type Expression interface {
	Kind() ExprKind
	// Type returns the result type this expression evaluates to.
	Type() Type
}

// ColumnRef is a BOUND_COLUMN_REF: a reference to some operator's output
// column, carrying the type the referencing operator expects it to have.
type ColumnRef struct {
	Binding    ColumnBinding
	ResultType Type
}

func (c *ColumnRef) Kind() ExprKind { return ExprColumnRef }
func (c *ColumnRef) Type() Type     { return c.ResultType }

// Constant is a BOUND_CONSTANT: a literal value with a declared type.
type Constant struct {
	ResultType Type
	Value      interface{}
}

func (c *Constant) Kind() ExprKind { return ExprConstant }
func (c *Constant) Type() Type     { return c.ResultType }

// Function is a BOUND_FUNCTION: a named function call with owned argument
// expressions and a declared result type. The compressed-materialization
// pass builds compress/decompress projections out of Function nodes whose
// Name matches a function the host resolves through host.CastProvider or
// the narrow/widen families in host.CompressFunctionProvider.
type Function struct {
	Name       string
	ResultType Type
	Args       []Expression
}

func (f *Function) Kind() ExprKind { return ExprFunction }
func (f *Function) Type() Type     { return f.ResultType }

// ComparisonOp enumerates the operators a Comparison expression supports.
type ComparisonOp int

const (
	CompareEQ ComparisonOp = iota
	CompareNE
	CompareLT
	CompareLE
	CompareGT
	CompareGE
)

// Comparison is a two-sided boolean expression, the shape a join predicate
// or filter condition takes before it is either promoted to a join edge or
// left in place on the operator that produced it.
type Comparison struct {
	Op    ComparisonOp
	Left  Expression
	Right Expression
}

func (c *Comparison) Kind() ExprKind { return ExprComparison }
func (c *Comparison) Type() Type     { return TypeUnknown }

// ColumnRefs walks expr and returns every ColumnBinding referenced anywhere
// within it, including nested function arguments and comparison operands.
func ColumnRefs(expr Expression) []ColumnBinding {
	var out []ColumnBinding
	collectColumnRefs(expr, &out)
	return out
}

func collectColumnRefs(expr Expression, out *[]ColumnBinding) {
	if expr == nil {
		return
	}
	switch e := expr.(type) {
	case *ColumnRef:
		*out = append(*out, e.Binding)
	case *Constant:
		// no bindings
	case *Function:
		for _, arg := range e.Args {
			collectColumnRefs(arg, out)
		}
	case *Comparison:
		collectColumnRefs(e.Left, out)
		collectColumnRefs(e.Right, out)
	}
}

// IsBareColumnRef reports whether expr is nothing more than a direct
// reference to binding, with no surrounding computation.
func IsBareColumnRef(expr Expression, binding ColumnBinding) bool {
	ref, ok := expr.(*ColumnRef)
	return ok && ref.Binding == binding
}
