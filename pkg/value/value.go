// Package value defines tug's runtime value model: the tagged Value
// interface, its heap-allocated kinds (Number, Str, Table, List, Tuple,
// Function, Iterator), the three non-heap singletons (nil, true, false),
// and the identity/hashing/equality helpers the VM and GC build on.
//
// Every Value except the three singletons carries a Header with a
// monotonically increasing identity, seeded once per process from
// wall-clock time (see spec §9 "Global mutable state" — the identity
// seed is the one datum this port keeps process-global rather than
// threading through a Runtime context) and a mark bit the collector
// flips during its mark phase. Embedding Header (rather than a pointer
// to it) lets every heap kind promote Ident/Marked/SetMarked without
// each type writing its own trivial forwarding methods, and keeps the
// field exported so pkg/gc and pkg/vm can construct these types directly
// without an accessor layer.
package value

import (
	"math"
	"sync/atomic"
	"time"
)

// Kind tags the dynamic type of a Value.
type Kind int

const (
	KindNil Kind = iota
	KindBool
	KindNumber
	KindString
	KindTable
	KindList
	KindTuple
	KindFunction
	KindIterator
)

func (k Kind) String() string {
	switch k {
	case KindNil:
		return "nil"
	case KindBool:
		return "bool"
	case KindNumber:
		return "num"
	case KindString:
		return "str"
	case KindTable:
		return "table"
	case KindList:
		return "list"
	case KindTuple:
		return "tuple"
	case KindFunction:
		return "func"
	case KindIterator:
		return "iterator"
	default:
		return "unknown"
	}
}

// Value is implemented by every runtime value: the three singletons and
// every heap-allocated kind.
type Value interface {
	Kind() Kind
	Ident() uint64
	Marked() bool
	SetMarked(bool)
}

// Header is embedded by every heap-allocated Value kind. Its identity is
// assigned at allocation and replaced only when a pooled object is
// recycled (see the Recycle methods); its mark bit is owned
// exclusively by pkg/gc's mark phase.
type Header struct {
	id     uint64
	marked bool
}

func (h *Header) Ident() uint64     { return h.id }
func (h *Header) Marked() bool      { return h.marked }
func (h *Header) SetMarked(m bool)  { h.marked = m }

// identSeed is the process-wide identity counter, seeded from wall-clock
// time so identities are distinct across process restarts too (useful
// when traces from two runs are compared). Access is atomic because
// allocation can happen from within a native callback that itself drives
// the VM reentrantly.
var identSeed uint64 = uint64(time.Now().UnixNano())

func nextIdent() uint64 {
	return atomic.AddUint64(&identSeed, 1)
}

func newHeader() Header { return Header{id: nextIdent()} }

// ---- singletons ----

// NilValue is the unique value of KindNil. nil, true, and false are
// never marked or swept (spec §4.4 Hard contract): their Marked always
// reports true and SetMarked is a no-op.
type NilValue struct{}

func (*NilValue) Kind() Kind       { return KindNil }
func (*NilValue) Ident() uint64    { return 0 }
func (*NilValue) Marked() bool     { return true }
func (*NilValue) SetMarked(m bool) {}

// BoolValue is one of the two boolean singletons.
type BoolValue struct{ V bool }

func (*BoolValue) Kind() Kind       { return KindBool }
func (*BoolValue) Ident() uint64    { return 0 }
func (*BoolValue) Marked() bool     { return true }
func (*BoolValue) SetMarked(m bool) {}

// NilVal, TrueVal, and FalseVal are the process's only instances of
// their kinds; every nil/true/false in every task is this exact pointer.
var (
	NilVal   = &NilValue{}
	TrueVal  = &BoolValue{V: true}
	FalseVal = &BoolValue{V: false}
)

// Bool returns TrueVal or FalseVal for b, never allocating.
func Bool(b bool) Value {
	if b {
		return TrueVal
	}
	return FalseVal
}

// ---- Number ----

type Number struct {
	Header
	V float64
}

func NewNumber(v float64) *Number {
	return &Number{Header: newHeader(), V: v}
}

// Recycle reinitializes a swept Number for reuse from an object pool:
// fresh identity, clear mark, new payload. The old identity must never
// leak into the object's next life.
func (n *Number) Recycle(v float64) *Number {
	n.Header = newHeader()
	n.V = v
	return n
}

func (*Number) Kind() Kind { return KindNumber }

// ---- Str ----

type Str struct {
	Header
	V []byte
}

func NewStr(s []byte) *Str {
	return &Str{Header: newHeader(), V: s}
}

// Recycle reinitializes a swept Str for reuse, same contract as
// (*Number).Recycle.
func (s *Str) Recycle(b []byte) *Str {
	s.Header = newHeader()
	s.V = b
	return s
}

func (*Str) Kind() Kind { return KindString }

// ---- Tuple ----

// Tuple is the internal multi-value container produced by `return a, b`
// and the Tuple opcode (spec §4.5). It is never exposed to scripts as an
// ordinary value: consumers either spread it (return/argument sites) or
// collapse it to its first element (Collapse).
type Tuple struct {
	Header
	Values []Value
}

func NewTuple(vs []Value) *Tuple {
	return &Tuple{Header: newHeader(), Values: vs}
}

func (*Tuple) Kind() Kind { return KindTuple }

// First returns the tuple's first element, or nil if empty.
func (t *Tuple) First() Value {
	if len(t.Values) == 0 {
		return NilVal
	}
	return t.Values[0]
}

// Spread returns exactly n values: truncating extras, padding with nil
// when short. It always allocates a fresh slice — the tuple's own
// backing array is never mutated, resolving spec §9's "implementers
// should specify a non-destructive spread" open question in favor of
// non-destructive.
func (t *Tuple) Spread(n int) []Value {
	out := make([]Value, n)
	for i := 0; i < n; i++ {
		if i < len(t.Values) {
			out[i] = t.Values[i]
		} else {
			out[i] = NilVal
		}
	}
	return out
}

// SpreadValue returns n values from v: if v is a *Tuple it spreads it
// non-destructively; otherwise v occupies slot 0 and the rest are nil.
func SpreadValue(v Value, n int) []Value {
	if t, ok := v.(*Tuple); ok {
		return t.Spread(n)
	}
	out := make([]Value, n)
	if n > 0 {
		out[0] = v
	}
	for i := 1; i < n; i++ {
		out[i] = NilVal
	}
	return out
}

// Collapse unwraps a Tuple to its first element (used where a single
// value is expected from a call or expression that may have produced a
// multi-value return).
func Collapse(v Value) Value {
	if t, ok := v.(*Tuple); ok {
		return t.First()
	}
	return v
}

// ---- Function ----

// NativeFn is a host-provided callback. It receives the task-level
// argument list already spread to its call site's argc and returns a
// single value (itself a *Tuple for multi-value returns) or an error,
// which the VM turns into a script-visible non-local exit (spec §7).
type NativeFn func(args []Value) (Value, error)

type Function struct {
	Header
	Name     string
	Params   []string
	Body     []byte // nil for native functions
	Captured *Scope // lexical scope chain at the definition site
	Native   NativeFn
}

func (*Function) Kind() Kind { return KindFunction }

func (f *Function) IsNative() bool { return f.Native != nil }

func NewScriptFunction(name string, params []string, body []byte, captured *Scope) *Function {
	return &Function{Header: newHeader(), Name: name, Params: params, Body: body, Captured: captured}
}

func NewNativeFunction(name string, fn NativeFn) *Function {
	return &Function{Header: newHeader(), Name: name, Native: fn}
}

// ---- truthiness ----

// Truthy reports a Value's boolean sense per spec §4.5: nil/false, 0,
// empty string, and empty list are falsy; everything else (including
// non-empty tables) is truthy. Tables with a __truth metatable hook are
// resolved by the VM before falling back to this function.
func Truthy(v Value) bool {
	switch t := v.(type) {
	case *NilValue:
		return false
	case *BoolValue:
		return t.V
	case *Number:
		return t.V != 0
	case *Str:
		return len(t.V) != 0
	case *List:
		return len(t.items) != 0
	default:
		return true
	}
}

// ---- equality & hashing ----

// Equal implements spec §4.5's equality rule: Numbers and Strings by
// value, Tables/Lists/Functions by identity, singletons by type. It does
// not consult __eq — the VM checks for that hook before falling back
// here.
func Equal(a, b Value) bool {
	if a.Kind() != b.Kind() {
		return false
	}
	switch x := a.(type) {
	case *NilValue:
		return true
	case *BoolValue:
		return x.V == b.(*BoolValue).V
	case *Number:
		return x.V == b.(*Number).V
	case *Str:
		return string(x.V) == string(b.(*Str).V)
	default:
		return a.Ident() == b.Ident()
	}
}

// Hash computes an FNV-1a-derived hash over a Value's type tag and
// content, used by Table's bucket chaining. Numbers hash their raw bits;
// strings hash their bytes; singletons hash a fixed constant per kind;
// every other heap kind hashes by identity, matching the identity-based
// equality above.
func Hash(v Value) uint64 {
	const offset64 = 14695981039346656037
	const prime64 = 1099511628211

	h := uint64(offset64)
	mix := func(b byte) {
		h ^= uint64(b)
		h *= prime64
	}

	switch x := v.(type) {
	case *NilValue:
		mix(byte(KindNil))
	case *BoolValue:
		mix(byte(KindBool))
		if x.V {
			mix(1)
		} else {
			mix(0)
		}
	case *Number:
		mix(byte(KindNumber))
		bits := math.Float64bits(x.V)
		for i := 0; i < 8; i++ {
			mix(byte(bits >> (8 * i)))
		}
	case *Str:
		mix(byte(KindString))
		for _, b := range x.V {
			mix(b)
		}
	default:
		mix(byte(v.Kind()))
		id := v.Ident()
		for i := 0; i < 8; i++ {
			mix(byte(id >> (8 * i)))
		}
	}
	return h
}
