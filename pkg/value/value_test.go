package value

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSingletonsNeverMarked(t *testing.T) {
	NilVal.SetMarked(false)
	TrueVal.SetMarked(false)
	require.True(t, NilVal.Marked())
	require.True(t, TrueVal.Marked())
	require.Equal(t, uint64(0), NilVal.Ident())
}

func TestNumberEqualityByValue(t *testing.T) {
	a := NewNumber(3)
	b := NewNumber(3)
	require.NotEqual(t, a.Ident(), b.Ident())
	require.True(t, Equal(a, b))
}

func TestTableIdentityEquality(t *testing.T) {
	a := NewTable()
	b := NewTable()
	require.False(t, Equal(a, b))
	require.True(t, Equal(a, a))
}

func TestTruthy(t *testing.T) {
	require.False(t, Truthy(NilVal))
	require.False(t, Truthy(FalseVal))
	require.False(t, Truthy(NewNumber(0)))
	require.True(t, Truthy(NewNumber(1)))
	require.False(t, Truthy(NewStr(nil)))
	require.True(t, Truthy(NewStr([]byte("x"))))
	require.False(t, Truthy(NewList(nil)))
	require.True(t, Truthy(NewTable())) // empty table is truthy
}

func TestTupleSpreadNonDestructive(t *testing.T) {
	tup := NewTuple([]Value{NewNumber(1), NewNumber(2)})
	three := tup.Spread(3)
	require.Len(t, three, 3)
	require.Equal(t, Kind(KindNumber), three[0].Kind())
	require.Equal(t, KindNil, three[2].Kind())

	// Spreading again must not have mutated the tuple's own slice.
	require.Len(t, tup.Values, 2)
	two := tup.Spread(1)
	require.Len(t, two, 1)
}

func TestTableSetGetDeleteAndLoadFactor(t *testing.T) {
	tbl := NewTable()
	for i := 0; i < 100; i++ {
		tbl.Set(NewNumber(float64(i)), NewNumber(float64(i*2)))
	}
	require.Equal(t, 100, tbl.Len())
	require.LessOrEqual(t, float64(tbl.Len())/float64(len(tbl.buckets)), growLoadFactor)
	v, ok := tbl.Get(NewNumber(42))
	require.True(t, ok)
	require.Equal(t, float64(84), v.(*Number).V)

	for i := 0; i < 90; i++ {
		tbl.Delete(NewNumber(float64(i)))
	}
	require.Equal(t, 10, tbl.Len())
	require.Greater(t, float64(tbl.Len())/float64(len(tbl.buckets)), shrinkLoadFactor)

	// Setting a key to nil removes it.
	tbl.Set(NewNumber(95), NilVal)
	_, ok = tbl.Get(NewNumber(95))
	require.False(t, ok)
}

func TestListGetSetAppend(t *testing.T) {
	l := NewList([]Value{NewNumber(1), NewNumber(2)})
	require.Equal(t, 2, l.Len())
	l.Append(NewNumber(3))
	require.Equal(t, 3, l.Len())
	v, ok := l.Get(2)
	require.True(t, ok)
	require.Equal(t, float64(3), v.(*Number).V)
	require.True(t, l.Set(0, NewNumber(99)))
	v, _ = l.Get(0)
	require.Equal(t, float64(99), v.(*Number).V)
	_, ok = l.Get(10)
	require.False(t, ok)
}

func TestListRemoveAtShrinksCapacity(t *testing.T) {
	l := NewList(nil)
	for i := 0; i < 64; i++ {
		l.Append(NewNumber(float64(i)))
	}
	grown := cap(l.items)
	for l.Len() > 4 {
		l.RemoveAt(l.Len() - 1)
	}
	require.Equal(t, 4, l.Len())
	require.Less(t, cap(l.items), grown, "capacity must halve as the list drains")
	require.GreaterOrEqual(t, cap(l.items), listMinCap)
}

func TestScopeDeclareLookupRebind(t *testing.T) {
	global := NewScope(nil)
	global.Declare("x", NewNumber(1))

	inner := NewScope(global)
	v, ok := inner.Lookup("x")
	require.True(t, ok)
	require.Equal(t, float64(1), v.(*Number).V)

	inner.Declare("x", NewNumber(2)) // shadows, does not touch global
	v, _ = inner.Lookup("x")
	require.Equal(t, float64(2), v.(*Number).V)
	v, _ = global.Lookup("x")
	require.Equal(t, float64(1), v.(*Number).V)

	inner.Rebind("y", NewNumber(7)) // undeclared -> binds at global
	_, okInner := inner.lookupLocal("y")
	require.False(t, okInner)
	v, ok = global.Lookup("y")
	require.True(t, ok)
	require.Equal(t, float64(7), v.(*Number).V)
}

func TestIteratorString(t *testing.T) {
	it := NewStringIterator(NewStr([]byte("ab")))
	v, ok := it.NextString()
	require.True(t, ok)
	require.Equal(t, "a", string(v.(*Str).V))
	v, ok = it.NextString()
	require.True(t, ok)
	require.Equal(t, "b", string(v.(*Str).V))
	_, ok = it.NextString()
	require.False(t, ok)
}
