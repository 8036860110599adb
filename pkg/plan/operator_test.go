package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetOutputBindings(t *testing.T) {
	op := NewGet(0, "a", []string{"x", "y"}, []Type{TypeInt64, TypeVarchar})

	assert.Equal(t, []ColumnBinding{{TableIndex: 0, ColumnIndex: 0}, {TableIndex: 0, ColumnIndex: 1}}, op.OutputBindings())
	assert.Equal(t, []Type{TypeInt64, TypeVarchar}, op.OutputTypes())
}

func TestFilterPassesThroughChildSchema(t *testing.T) {
	child := NewGet(0, "a", []string{"x"}, []Type{TypeInt64})
	filter := &Operator{Kind: Filter, Children: []*Operator{child}}
	filter.Refresh()

	assert.Equal(t, child.OutputBindings(), filter.OutputBindings())
	assert.Equal(t, child.OutputTypes(), filter.OutputTypes())
}

func TestJoinConcatenatesChildSchemas(t *testing.T) {
	left := NewGet(0, "a", []string{"x"}, []Type{TypeInt64})
	right := NewGet(1, "b", []string{"y"}, []Type{TypeVarchar})
	join := &Operator{Kind: ComparisonJoin, Children: []*Operator{left, right}}
	join.Refresh()

	assert.Len(t, join.OutputBindings(), 2)
	assert.Equal(t, ColumnBinding{TableIndex: 0, ColumnIndex: 0}, join.OutputBindings()[0])
	assert.Equal(t, ColumnBinding{TableIndex: 1, ColumnIndex: 0}, join.OutputBindings()[1])
	assert.Equal(t, []Type{TypeInt64, TypeVarchar}, join.OutputTypes())
}

func TestProjectionAllocatesFreshBindings(t *testing.T) {
	child := NewGet(0, "a", []string{"x"}, []Type{TypeInt64})
	proj := &Operator{
		Kind:       Projection,
		Children:   []*Operator{child},
		TableIndex: 5,
		Expressions: []Expression{
			&ColumnRef{Binding: child.OutputBindings()[0], ResultType: TypeInt64},
		},
	}
	proj.Refresh()

	assert.Equal(t, []ColumnBinding{{TableIndex: 5, ColumnIndex: 0}}, proj.OutputBindings())
}

func TestTypeWidthAndIntegral(t *testing.T) {
	assert.True(t, TypeUint16.IsIntegral())
	assert.False(t, TypeVarchar.IsIntegral())
	assert.Equal(t, 2, TypeUint16.Width())
	assert.Equal(t, TypeUint8, unsignedOfWidth(1))
	assert.Equal(t, TypeUnknown, unsignedOfWidth(3))
}

func TestColumnRefsWalksNestedExpressions(t *testing.T) {
	a := ColumnBinding{TableIndex: 0, ColumnIndex: 0}
	b := ColumnBinding{TableIndex: 0, ColumnIndex: 1}
	expr := &Function{
		Name: "add",
		Args: []Expression{
			&ColumnRef{Binding: a},
			&Comparison{Op: CompareEQ, Left: &ColumnRef{Binding: b}, Right: &Constant{Value: 1}},
		},
	}

	refs := ColumnRefs(expr)
	assert.ElementsMatch(t, []ColumnBinding{a, b}, refs)
}

func TestIsBareColumnRef(t *testing.T) {
	b := ColumnBinding{TableIndex: 1, ColumnIndex: 2}
	assert.True(t, IsBareColumnRef(&ColumnRef{Binding: b}, b))
	assert.False(t, IsBareColumnRef(&Function{Name: "f"}, b))
}
