package value

// Scope is a chained-bucket variable dictionary linked to an outer scope,
// forming the lexical chain a closure captures at its definition site and
// a task walks at runtime to resolve names (spec §3 Scope, §4.5 Scope
// operations). Scope is itself a heap-allocated, GC-rooted object: the
// collector's mark phase walks every task's live scope chain directly,
// independent of the Values root set.
type Scope struct {
	Header
	buckets []*scopeEntry
	count   int
	Outer   *Scope
}

type scopeEntry struct {
	name string
	hash uint64
	val  Value
	next *scopeEntry
}

const scopeMinCap = 8

// NewScope allocates a scope whose outer link is outer (nil for the
// global scope).
func NewScope(outer *Scope) *Scope {
	return &Scope{Header: newHeader(), buckets: make([]*scopeEntry, scopeMinCap), Outer: outer}
}

// Recycle reinitializes a swept scope for reuse from the scope pool:
// fresh identity, no bindings, new outer link. The bucket array is kept
// at whatever size its last life grew it to — capacity reuse is the
// point of pooling.
func (s *Scope) Recycle(outer *Scope) *Scope {
	s.Header = newHeader()
	for i := range s.buckets {
		s.buckets[i] = nil
	}
	s.count = 0
	s.Outer = outer
	return s
}

func hashString(s string) uint64 {
	const offset64 = 14695981039346656037
	const prime64 = 1099511628211
	h := uint64(offset64)
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= prime64
	}
	return h
}

func (s *Scope) bucketIndex(h uint64) int {
	return int(h & uint64(len(s.buckets)-1))
}

// declareLocal binds name to v in this scope only, overwriting any prior
// binding in this scope (but leaving outer bindings of the same name
// alone — shadowing).
func (s *Scope) declareLocal(name string, v Value) {
	h := hashString(name)
	idx := s.bucketIndex(h)
	for e := s.buckets[idx]; e != nil; e = e.next {
		if e.hash == h && e.name == name {
			e.val = v
			return
		}
	}
	entry := &scopeEntry{name: name, hash: h, val: v}
	entry.next = s.buckets[idx]
	s.buckets[idx] = entry
	s.count++
	if float64(s.count)/float64(len(s.buckets)) > 0.8 {
		s.resize(len(s.buckets) * 2)
	}
}

func (s *Scope) resize(newCap int) {
	old := s.buckets
	s.buckets = make([]*scopeEntry, newCap)
	for _, head := range old {
		for e := head; e != nil; {
			next := e.next
			idx := s.bucketIndex(e.hash)
			e.next = s.buckets[idx]
			s.buckets[idx] = e
			e = next
		}
	}
}

// lookupLocal finds name in this scope only (no chain walk).
func (s *Scope) lookupLocal(name string) (Value, bool) {
	h := hashString(name)
	for e := s.buckets[s.bucketIndex(h)]; e != nil; e = e.next {
		if e.hash == h && e.name == name {
			return e.val, true
		}
	}
	return nil, false
}

// Declare binds name in the current (innermost) scope, implementing
// `:=`.
func (s *Scope) Declare(name string, v Value) {
	s.declareLocal(name, v)
}

// Lookup walks the chain from s outward, returning the first binding
// found. Absent names are the caller's responsibility to treat as nil
// (spec §7: "unknown variable... absent names read as nil — no error").
func (s *Scope) Lookup(name string) (Value, bool) {
	for cur := s; cur != nil; cur = cur.Outer {
		if v, ok := cur.lookupLocal(name); ok {
			return v, true
		}
	}
	return nil, false
}

// Rebind implements `=`: it climbs the chain and overwrites the nearest
// existing binding. If none exists, it inserts at the outermost (global)
// scope and returns false to tell the caller no prior binding existed
// (informational only — the spec treats this as a normal, non-erroring
// path).
func (s *Scope) Rebind(name string, v Value) bool {
	for cur := s; cur != nil; cur = cur.Outer {
		if _, ok := cur.lookupLocal(name); ok {
			cur.declareLocal(name, v)
			return true
		}
	}
	s.Root().declareLocal(name, v)
	return false
}

// Root returns the outermost scope in s's chain (the global scope).
func (s *Scope) Root() *Scope {
	cur := s
	for cur.Outer != nil {
		cur = cur.Outer
	}
	return cur
}

// Each calls fn for every (name, value) binding in this scope only (not
// the chain), used by the GC mark phase.
func (s *Scope) Each(fn func(name string, v Value)) {
	for _, head := range s.buckets {
		for e := head; e != nil; e = e.next {
			fn(e.name, e.val)
		}
	}
}
