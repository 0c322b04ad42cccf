// Package gc implements tug's tracing collector: a simple mark-sweep
// pass over three root collections — live Values, live Scopes, and live
// Tasks — with an adaptive byte threshold (spec §4.4).
//
// pkg/gc deliberately does not import pkg/vm: pkg/vm owns Task and would
// create an import cycle if gc depended on it directly. Instead, each
// Task registers a RootSource closure that snapshots its Roots on
// demand; a cycle (Collector.CollectAll) marks from every registered
// source, so gc only ever imports pkg/value.
//
// The collector keeps its own registry of every Value and Scope it has
// ever been told about via Track/TrackScope — this is the "all allocated
// Values"/"all allocated Scopes" universe the sweep phase walks, distinct
// from Roots, which is only the subset reachable from live tasks right
// now.
package gc

import (
	"github.com/huywallz/tug/pkg/value"
)

// approxObjectSize is the flat per-object byte charge used for the
// bytes-in-use estimate. tug's heap objects (numbers, short strings,
// small tables/lists, scope entries) are small and roughly uniform, so a
// flat charge tracks the adaptive-threshold formula's intent (linear
// growth proportional to live object count) without per-kind size
// accounting.
const approxObjectSize = 64

// Roots is the tri-root set the VM assembles fresh before each
// collection cycle, per spec §4.4 Mark phase: every Value reachable from
// any live task's stacks, every Scope in those tasks' lexical chains
// (including each task's global scope), and a Mark hook the VM uses to
// walk each live task's frames/stacks, recursing into table entries and
// metatables, list items, tuple items, closures' captured chains, and
// iterators' underlying objects.
type Roots struct {
	Values []value.Value
	Scopes []*value.Scope
	Mark   func(visit func(value.Value))
}

const (
	initialThreshold = 1 << 20 // 1 MiB
	targetLoad       = 0.6
	minShrink        = 0.5
	maxGrowth        = 2.0
)

// Pool caps bound how many freed objects of each kind are retained for
// reuse rather than released to the Go garbage collector outright. The
// object cap is shared across the per-type value pools.
const (
	poolCapObjects = 4096
	poolCapScopes  = 256
	poolCapVectors = 256
)

// RootSource yields one root owner's current Roots snapshot. live=false
// reports that the owner has ended for good (a Task in its terminal
// Ended state): CollectAll drops the source permanently, at which point
// everything only that owner kept reachable is swept on this cycle.
type RootSource func() (roots Roots, live bool)

// Collector runs tug's mark-sweep cycles, owns the live-object registry
// swept each cycle, and tracks the allocator's adaptive threshold.
type Collector struct {
	bytesInUse int64
	threshold  int64

	values  []value.Value
	scopes  []*value.Scope
	sources []RootSource

	numberPool []*value.Number
	strPool    []*value.Str
	scopePool  []*value.Scope
	vectorPool [][]value.Value
}

// New returns a Collector with the spec's initial 1 MiB threshold.
func New() *Collector {
	return &Collector{threshold: initialThreshold}
}

// Track registers a newly allocated Value so future Collect calls can
// consider it for sweeping. Call this once per allocation, immediately
// after construction.
func (c *Collector) Track(v value.Value) {
	c.values = append(c.values, v)
	c.bytesInUse += approxObjectSize
}

// TrackScope registers a newly allocated Scope the same way Track does
// for Values.
func (c *Collector) TrackScope(s *value.Scope) {
	c.scopes = append(c.scopes, s)
	c.bytesInUse += approxObjectSize
}

// BytesInUse reports the allocator's current estimate of live heap
// bytes, used by the VM to decide when to call Collect.
func (c *Collector) BytesInUse() int64 { return c.bytesInUse }

// Threshold reports the byte count at which the VM should next collect.
func (c *Collector) Threshold() int64 { return c.threshold }

// ShouldCollect reports whether bytes-in-use has crossed the threshold.
// The VM consults this once per instruction-loop iteration, at an
// instruction boundary only, never mid-instruction or while any native
// callback frame is on the call stack (spec §4.4 Hard contract) — that
// invariant is enforced by the VM's call site, not by this package.
func (c *Collector) ShouldCollect() bool {
	return c.bytesInUse > c.threshold
}

// AddRootSource registers a live root owner (a Task, in practice) whose
// Roots are gathered on every CollectAll cycle, alongside whatever
// explicit Roots the caller passes. A source reporting live=false is
// dropped — the spec's "Tasks in Ended state are closed and freed".
func (c *Collector) AddRootSource(src RootSource) {
	c.sources = append(c.sources, src)
}

// CollectAll runs one mark-sweep cycle rooted in every registered
// source: the shared-collector form of Collect the VM calls at its
// instruction boundary, so a Task triggering a collection never sweeps
// values only some other coexisting Task still reaches (spec §4.4 Mark
// phase: "for every task in state ≠ Ended").
func (c *Collector) CollectAll() (freed int) {
	kept := c.sources[:0]
	for _, src := range c.sources {
		roots, live := src()
		if !live {
			continue
		}
		kept = append(kept, src)
		c.mark(roots)
	}
	c.sources = kept
	return c.sweep()
}

// Collect runs one full mark-sweep cycle over exactly the given roots:
// every object in roots (and everything roots.Mark reaches) is marked
// live; every tracked object still unmarked afterward is swept
// (returned to its pool if there is room, otherwise dropped) and
// debited from bytesInUse. Marks are cleared on survivors so the next
// cycle starts clean. It returns the number of objects freed.
func (c *Collector) Collect(roots Roots) (freed int) {
	c.mark(roots)
	return c.sweep()
}

func (c *Collector) mark(roots Roots) {
	for _, v := range roots.Values {
		markReachable(v)
	}
	for _, s := range roots.Scopes {
		markScopeChain(s)
	}
	if roots.Mark != nil {
		roots.Mark(markReachable)
	}
}

func (c *Collector) sweep() (freed int) {
	survivors := c.values[:0]
	for _, v := range c.values {
		if v.Marked() {
			v.SetMarked(false)
			survivors = append(survivors, v)
		} else {
			freed++
			c.bytesInUse -= approxObjectSize
			c.pool(v)
		}
	}
	c.values = survivors

	scopeSurvivors := c.scopes[:0]
	for _, s := range c.scopes {
		if s.Marked() {
			s.SetMarked(false)
			scopeSurvivors = append(scopeSurvivors, s)
		} else {
			freed++
			c.bytesInUse -= approxObjectSize
			if len(c.scopePool) < poolCapScopes {
				c.scopePool = append(c.scopePool, s)
			}
		}
	}
	c.scopes = scopeSurvivors

	if c.bytesInUse < 0 {
		c.bytesInUse = 0
	}
	c.recomputeThreshold()
	return freed
}

// markReachable marks v and recurses into every Value it directly
// contains: table entries and metatable, list items, tuple items, a
// closure's captured scope chain, and an iterator's underlying source.
// Already-marked values are not re-visited, which also breaks cycles
// (tables referencing themselves, closures capturing a scope that holds
// the closure itself).
func markReachable(v value.Value) {
	if v == nil || v.Marked() {
		return
	}
	v.SetMarked(true)

	switch x := v.(type) {
	case *value.Table:
		x.Each(func(k, val value.Value) {
			markReachable(k)
			markReachable(val)
		})
		if x.Metatable != nil {
			markReachable(x.Metatable)
		}
	case *value.List:
		x.Each(func(_ int, val value.Value) {
			markReachable(val)
		})
	case *value.Tuple:
		for _, val := range x.Values {
			markReachable(val)
		}
	case *value.Function:
		markScopeChain(x.Captured)
	case *value.Iterator:
		markReachable(x.Source)
	}
}

func markScopeChain(s *value.Scope) {
	for cur := s; cur != nil && !cur.Marked(); cur = cur.Outer {
		cur.SetMarked(true)
		cur.Each(func(_ string, v value.Value) {
			markReachable(v)
		})
	}
}

func (c *Collector) recomputeThreshold() {
	target := int64(float64(c.bytesInUse) / targetLoad)
	lo := int64(float64(c.threshold) * minShrink)
	hi := int64(float64(c.threshold) * maxGrowth)
	if target < lo {
		target = lo
	}
	if target > hi {
		target = hi
	}
	if target < initialThreshold && c.threshold <= initialThreshold {
		target = initialThreshold
	}
	c.threshold = target
}

// pool retains a swept value for reuse, keyed by type. Only Numbers and
// Strs — the kinds the instruction loop churns through — are worth
// keeping; everything else goes back to the Go runtime.
func (c *Collector) pool(v value.Value) {
	if len(c.numberPool)+len(c.strPool) >= poolCapObjects {
		return
	}
	switch x := v.(type) {
	case *value.Number:
		c.numberPool = append(c.numberPool, x)
	case *value.Str:
		c.strPool = append(c.strPool, x)
	}
}

// NewNumber returns a tracked Number, recycling a pooled one when
// available: spec §4.4's sweep fills the per-type pools and allocation
// drains them.
func (c *Collector) NewNumber(v float64) *value.Number {
	if n := len(c.numberPool); n > 0 {
		num := c.numberPool[n-1]
		c.numberPool = c.numberPool[:n-1]
		num.Recycle(v)
		c.Track(num)
		return num
	}
	num := value.NewNumber(v)
	c.Track(num)
	return num
}

// NewStr returns a tracked Str, recycling a pooled one when available.
func (c *Collector) NewStr(b []byte) *value.Str {
	if n := len(c.strPool); n > 0 {
		s := c.strPool[n-1]
		c.strPool = c.strPool[:n-1]
		s.Recycle(b)
		c.Track(s)
		return s
	}
	s := value.NewStr(b)
	c.Track(s)
	return s
}

// NewScope returns a tracked Scope, recycling a pooled one when
// available.
func (c *Collector) NewScope(outer *value.Scope) *value.Scope {
	if n := len(c.scopePool); n > 0 {
		s := c.scopePool[n-1]
		c.scopePool = c.scopePool[:n-1]
		s.Recycle(outer)
		c.TrackScope(s)
		return s
	}
	s := value.NewScope(outer)
	c.TrackScope(s)
	return s
}

// TakeVector returns a pooled []value.Value slice (reset to zero length)
// if one is available, else nil.
func (c *Collector) TakeVector() []value.Value {
	n := len(c.vectorPool)
	if n == 0 {
		return nil
	}
	v := c.vectorPool[n-1]
	c.vectorPool = c.vectorPool[:n-1]
	return v[:0]
}

// ReleaseVector returns a slice to the vector pool if there is room.
// Elements are zeroed so a parked slice doesn't pin the values its last
// life carried.
func (c *Collector) ReleaseVector(v []value.Value) {
	for i := range v {
		v[i] = nil
	}
	if len(c.vectorPool) < poolCapVectors {
		c.vectorPool = append(c.vectorPool, v[:0])
	}
}
