package olap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValueSetPredicateEvaluate(t *testing.T) {
	p := NewValueSet(IntValue(1), IntValue(2), IntValue(3))
	require.True(t, p.Evaluate(IntValue(2)))
	require.False(t, p.Evaluate(IntValue(4)))
}

func TestValueSetPredicateMinus(t *testing.T) {
	p := NewValueSet(IntValue(1), IntValue(2), IntValue(3))
	out := p.Minus(NewValueSet(IntValue(2)))
	require.False(t, out.Evaluate(IntValue(2)))
	require.True(t, out.Evaluate(IntValue(1)))
	require.True(t, out.Evaluate(IntValue(3)))
}

func TestValueSetPredicateMightIntersect(t *testing.T) {
	a := NewValueSet(IntValue(1), IntValue(2))
	b := NewValueSet(IntValue(2), IntValue(3))
	c := NewValueSet(IntValue(4))
	require.True(t, a.MightIntersect(b))
	require.False(t, a.MightIntersect(c))
	require.True(t, a.MightIntersect(LiteralTrue{}))
	require.False(t, a.MightIntersect(LiteralFalse{}))
}

func TestLiteralTrueFalse(t *testing.T) {
	require.True(t, LiteralTrue{}.Evaluate(IntValue(0)))
	require.False(t, LiteralFalse{}.Evaluate(IntValue(0)))
	require.Equal(t, "TRUE", LiteralTrue{}.String())
	require.Equal(t, "FALSE", LiteralFalse{}.String())
}

func TestMemberPredicateOr(t *testing.T) {
	a := MemberPredicate{Value: IntValue(1), Level: "State"}
	b := MemberPredicate{Value: IntValue(2), Level: "State"}
	or := a.Or(b)
	require.True(t, or.Evaluate(IntValue(1)))
	require.True(t, or.Evaluate(IntValue(2)))
	require.False(t, or.Evaluate(IntValue(3)))
}

func TestCompoundPredicateEvaluateAndMightIntersect(t *testing.T) {
	cp := NewCompoundPredicate().With(0, IntValuePred(1997)).With(1, IntValuePred(1))
	require.True(t, cp.Evaluate(map[int]Value{0: IntValue(1997), 1: IntValue(1)}))
	require.False(t, cp.Evaluate(map[int]Value{0: IntValue(1997), 1: IntValue(2)}))

	other := NewCompoundPredicate().With(0, IntValuePred(1998))
	require.False(t, cp.MightIntersect(other))
}

func TestCompoundListDisjunction(t *testing.T) {
	a := NewCompoundPredicate().With(0, IntValuePred(1997)).With(1, IntValuePred(2))
	b := NewCompoundPredicate().With(0, IntValuePred(1998)).With(1, IntValuePred(1))
	list := CompoundList{a, b}

	require.True(t, list.Evaluate(map[int]Value{0: IntValue(1997), 1: IntValue(2)}))
	require.True(t, list.Evaluate(map[int]Value{0: IntValue(1998), 1: IntValue(1)}))
	require.False(t, list.Evaluate(map[int]Value{0: IntValue(1998), 1: IntValue(2)}))
}

// IntValuePred is a small test helper building a single-value ValueSet
// predicate for an int column value.
func IntValuePred(v int64) ColumnPredicate {
	return NewValueSet(IntValue(v))
}
