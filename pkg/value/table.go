package value

// Table is tug's one associative data structure: an open-chained hash
// table keyed by arbitrary Values (compared via Equal, bucketed via
// Hash), with an optional Metatable supplying operator/indexing/
// iteration hook overrides (spec §4.6).
//
// Bucket count is always a power of two. Load factor (count/len(buckets))
// is kept in (0.2, 0.8] for cap > minTableCap: Set grows when it would
// push the factor above growLoadFactor, Delete shrinks when it would
// drop it below shrinkLoadFactor, never below minTableCap buckets.
type Table struct {
	Header
	buckets   []*tableEntry
	count     int
	Metatable *Table
}

type tableEntry struct {
	key  Value
	val  Value
	hash uint64
	next *tableEntry
}

const (
	minTableCap      = 8
	growLoadFactor   = 0.8
	shrinkLoadFactor = 0.2
)

// NewTable returns an empty table with the minimum bucket count.
func NewTable() *Table {
	return &Table{Header: newHeader(), buckets: make([]*tableEntry, minTableCap)}
}

// Len reports the number of live entries.
func (t *Table) Len() int { return t.count }

func (t *Table) bucketIndex(h uint64) int {
	return int(h & uint64(len(t.buckets)-1))
}

// Get looks up key, returning (nil-Value-of-this-table's-host, false)
// when absent — callers needing the "absent returns nil" script-visible
// semantics should treat the boolean themselves; this method reports
// presence explicitly so SetIndex/metatable dispatch can distinguish
// "key maps to the nil value" from "key absent" if that ever matters.
func (t *Table) Get(key Value) (Value, bool) {
	h := Hash(key)
	idx := t.bucketIndex(h)
	for e := t.buckets[idx]; e != nil; e = e.next {
		if e.hash == h && Equal(e.key, key) {
			return e.val, true
		}
	}
	return NilVal, false
}

// Set inserts or overwrites key -> val. Setting a key to NilVal removes
// it, matching the spec's "removed with nil" entry semantics.
func (t *Table) Set(key, val Value) {
	if _, isNil := val.(*NilValue); isNil {
		t.Delete(key)
		return
	}
	h := Hash(key)
	idx := t.bucketIndex(h)
	for e := t.buckets[idx]; e != nil; e = e.next {
		if e.hash == h && Equal(e.key, key) {
			e.val = val
			return
		}
	}
	entry := &tableEntry{key: key, val: val, hash: h}
	entry.next = t.buckets[idx]
	t.buckets[idx] = entry
	t.count++
	if float64(t.count)/float64(len(t.buckets)) > growLoadFactor {
		t.resize(len(t.buckets) * 2)
	}
}

// Delete removes key if present.
func (t *Table) Delete(key Value) {
	h := Hash(key)
	idx := t.bucketIndex(h)
	var prev *tableEntry
	for e := t.buckets[idx]; e != nil; e = e.next {
		if e.hash == h && Equal(e.key, key) {
			if prev == nil {
				t.buckets[idx] = e.next
			} else {
				prev.next = e.next
			}
			t.count--
			break
		}
		prev = e
	}
	if len(t.buckets) > minTableCap && float64(t.count)/float64(len(t.buckets)) < shrinkLoadFactor {
		newCap := len(t.buckets) / 2
		if newCap < minTableCap {
			newCap = minTableCap
		}
		t.resize(newCap)
	}
}

func (t *Table) resize(newCap int) {
	old := t.buckets
	t.buckets = make([]*tableEntry, newCap)
	for _, head := range old {
		for e := head; e != nil; {
			next := e.next
			idx := t.bucketIndex(e.hash)
			e.next = t.buckets[idx]
			t.buckets[idx] = e
			e = next
		}
	}
}

// Each calls fn for every live entry, in bucket-then-chain order. The
// order is not source-insertion order — callers that need deterministic
// iteration over a table literal's positional keys should not rely on
// Each for that. The collector's mark phase uses it; the VM's Iter/Next
// opcodes walk a table through entryAt instead, in the same order, which
// is not a guaranteed external contract.
func (t *Table) Each(fn func(k, v Value)) {
	for _, head := range t.buckets {
		for e := head; e != nil; e = e.next {
			fn(e.key, e.val)
		}
	}
}

// entryAt returns the i-th live (key, value) pair in bucket-then-chain
// order, used by Iterator to resume table iteration across Next calls
// without holding a live pointer into the chain (which a concurrent
// Delete during __next dispatch could invalidate).
func (t *Table) entryAt(i int) (Value, Value, bool) {
	n := 0
	for _, head := range t.buckets {
		for e := head; e != nil; e = e.next {
			if n == i {
				return e.key, e.val, true
			}
			n++
		}
	}
	return nil, nil, false
}

func (*Table) Kind() Kind { return KindTable }
