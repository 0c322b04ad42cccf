package gc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/huywallz/tug/pkg/value"
)

func TestCollectSweepsUnreachableValues(t *testing.T) {
	c := New()
	live := value.NewNumber(1)
	dead := value.NewNumber(2)
	c.Track(live)
	c.Track(dead)

	freed := c.Collect(Roots{Values: []value.Value{live}})
	require.Equal(t, 1, freed)
	require.False(t, live.Marked()) // marks cleared on survivors
}

func TestCollectKeepsReachableTableEntriesAndMetatable(t *testing.T) {
	c := New()
	tbl := value.NewTable()
	entryVal := value.NewNumber(42)
	mt := value.NewTable()
	tbl.Metatable = mt
	tbl.Set(value.NewStr([]byte("k")), entryVal)

	c.Track(tbl)
	c.Track(entryVal)
	c.Track(mt)
	orphan := value.NewNumber(99)
	c.Track(orphan)

	freed := c.Collect(Roots{Values: []value.Value{tbl}})
	require.Equal(t, 1, freed) // only the orphan

	v, ok := tbl.Get(value.NewStr([]byte("k")))
	require.True(t, ok)
	require.Equal(t, float64(42), v.(*value.Number).V)
}

func TestCollectWalksClosureScopeChain(t *testing.T) {
	c := New()
	outer := value.NewScope(nil)
	inner := value.NewScope(outer)
	c.TrackScope(outer)
	c.TrackScope(inner)

	captured := value.NewNumber(7)
	c.Track(captured)
	outer.Declare("x", captured)

	fn := value.NewScriptFunction("f", nil, nil, inner)
	c.Track(fn)

	orphanScope := value.NewScope(nil)
	c.TrackScope(orphanScope)

	freed := c.Collect(Roots{Values: []value.Value{fn}})
	require.Equal(t, 1, freed) // only orphanScope

	v, ok := outer.Lookup("x")
	require.True(t, ok)
	require.Equal(t, float64(7), v.(*value.Number).V)
}

func TestCollectBreaksCyclesBetweenTables(t *testing.T) {
	c := New()
	a := value.NewTable()
	b := value.NewTable()
	a.Set(value.NewStr([]byte("b")), b)
	b.Set(value.NewStr([]byte("a")), a)
	c.Track(a)
	c.Track(b)

	freed := c.Collect(Roots{Values: []value.Value{a}})
	require.Equal(t, 0, freed, "a reaches b and b reaches a; both must survive without markReachable looping forever")
}

func TestSingletonsNeverTrackedOrFreed(t *testing.T) {
	c := New()
	// nil/true/false are never passed to Track in the first place (the
	// VM never allocates them), so a sweep over an otherwise-empty heap
	// must not touch their Marked state.
	value.NilVal.SetMarked(false)
	c.Collect(Roots{})
	require.True(t, value.NilVal.Marked())
}

func TestAdaptiveThresholdBoundedGrowthAndShrink(t *testing.T) {
	c := New()
	start := c.Threshold()

	var vs []value.Value
	for i := 0; i < 20000; i++ {
		v := value.NewNumber(float64(i))
		c.Track(v)
		vs = append(vs, v)
	}
	c.Collect(Roots{Values: vs})
	grown := c.Threshold()
	require.LessOrEqual(t, grown, start*2, "threshold must not grow by more than maxGrowth (2x) in one cycle")

	// Now drop every reference and collect again: bytesInUse falls to 0,
	// and the threshold must not shrink by more than minShrink (0.5x).
	c.Collect(Roots{})
	shrunk := c.Threshold()
	require.GreaterOrEqual(t, shrunk, int64(float64(grown)*0.5))
}

func TestCollectAllMarksEveryRegisteredSource(t *testing.T) {
	c := New()
	a := value.NewNumber(1)
	b := value.NewNumber(2)
	dead := value.NewNumber(3)
	c.Track(a)
	c.Track(b)
	c.Track(dead)

	// Two coexisting owners, each rooting one value: a cycle triggered
	// by either must keep both alive and sweep only the orphan.
	c.AddRootSource(func() (Roots, bool) { return Roots{Values: []value.Value{a}}, true })
	c.AddRootSource(func() (Roots, bool) { return Roots{Values: []value.Value{b}}, true })

	freed := c.CollectAll()
	require.Equal(t, 1, freed)
}

func TestCollectAllDropsEndedSources(t *testing.T) {
	c := New()
	v := value.NewNumber(1)
	c.Track(v)

	ended := false
	c.AddRootSource(func() (Roots, bool) {
		if ended {
			return Roots{}, false
		}
		return Roots{Values: []value.Value{v}}, true
	})

	require.Equal(t, 0, c.CollectAll())
	ended = true
	require.Equal(t, 1, c.CollectAll(), "an ended source's values must be swept once it reports live=false")
	require.Equal(t, 0, len(c.sources))
}

func TestPoolCapsDoNotGrowUnbounded(t *testing.T) {
	c := New()
	for i := 0; i < poolCapObjects+500; i++ {
		c.Track(value.NewNumber(float64(i)))
	}
	c.Collect(Roots{}) // nothing rooted: everything is swept into the pool
	require.LessOrEqual(t, len(c.numberPool)+len(c.strPool), poolCapObjects)
}

func TestSweptObjectsAreRecycledWithFreshIdentity(t *testing.T) {
	c := New()
	dead := c.NewNumber(7)
	oldIdent := dead.Ident()
	require.Equal(t, 1, c.Collect(Roots{}))

	reused := c.NewNumber(42)
	require.Same(t, dead, reused, "allocation must drain the pool the sweep filled")
	require.Equal(t, float64(42), reused.V)
	require.NotEqual(t, oldIdent, reused.Ident(), "a recycled object must never keep its old identity")
	require.False(t, reused.Marked())

	// The recycled object is tracked again: a rooted collect keeps it, an
	// unrooted one sweeps it back.
	require.Equal(t, 0, c.Collect(Roots{Values: []value.Value{reused}}))
	require.Equal(t, 1, c.Collect(Roots{}))
}

func TestScopePoolRecyclesClearedScopes(t *testing.T) {
	c := New()
	dead := c.NewScope(nil)
	dead.Declare("x", value.NewNumber(1))
	require.Equal(t, 1, c.Collect(Roots{}))

	reused := c.NewScope(nil)
	require.Same(t, dead, reused)
	_, ok := reused.Lookup("x")
	require.False(t, ok, "a recycled scope must come back empty")
	require.Nil(t, reused.Outer)
}

func TestVectorPoolTakeRelease(t *testing.T) {
	c := New()
	require.Nil(t, c.TakeVector())
	buf := make([]value.Value, 0, 4)
	c.ReleaseVector(buf)
	got := c.TakeVector()
	require.NotNil(t, got)
	require.Equal(t, 0, len(got))
}
