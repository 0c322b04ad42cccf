package value

// List is a dynamically sized, 0-indexed array of Values, mirroring the
// growth discipline of Table: capacity doubles when full (via append)
// and halves once the list is at most a quarter full, never below
// listMinCap.
type List struct {
	Header
	items []Value
}

const listMinCap = 8

// NewList returns a list containing exactly items (ownership of the
// slice transfers to the List).
func NewList(items []Value) *List {
	return &List{Header: newHeader(), items: items}
}

func (*List) Kind() Kind { return KindList }

// Len reports the number of elements.
func (l *List) Len() int { return len(l.items) }

// Get returns the element at i and whether i was in range.
func (l *List) Get(i int) (Value, bool) {
	if i < 0 || i >= len(l.items) {
		return NilVal, false
	}
	return l.items[i], true
}

// Set overwrites the element at i, reporting whether i was in range.
func (l *List) Set(i int, v Value) bool {
	if i < 0 || i >= len(l.items) {
		return false
	}
	l.items[i] = v
	return true
}

// Append grows the list by one element, amortized O(1).
func (l *List) Append(v Value) {
	l.items = append(l.items, v)
}

// Insert splices v in at i, shifting later elements up by one. i == Len()
// is a valid append position; anything else out of [0, Len()] fails.
func (l *List) Insert(i int, v Value) bool {
	if i < 0 || i > len(l.items) {
		return false
	}
	l.items = append(l.items, nil)
	copy(l.items[i+1:], l.items[i:])
	l.items[i] = v
	return true
}

// RemoveAt deletes and returns the element at i, shifting later elements
// down by one.
func (l *List) RemoveAt(i int) (Value, bool) {
	if i < 0 || i >= len(l.items) {
		return NilVal, false
	}
	v := l.items[i]
	l.items = append(l.items[:i], l.items[i+1:]...)
	l.maybeShrink()
	return v, true
}

// maybeShrink halves the backing array once the list is at most a
// quarter full, reallocating so the dropped capacity actually returns
// to the runtime.
func (l *List) maybeShrink() {
	if cap(l.items) <= listMinCap || len(l.items) > cap(l.items)/4 {
		return
	}
	newCap := cap(l.items) / 2
	if newCap < listMinCap {
		newCap = listMinCap
	}
	items := make([]Value, len(l.items), newCap)
	copy(items, l.items)
	l.items = items
}

// Each calls fn for every element in order.
func (l *List) Each(fn func(i int, v Value)) {
	for i, v := range l.items {
		fn(i, v)
	}
}

// Items exposes the backing slice read-only-by-convention, for the GC
// mark phase and for building display strings.
func (l *List) Items() []Value { return l.items }
