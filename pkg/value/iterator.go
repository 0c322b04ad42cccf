package value

// Iterator is the internal Value produced by the VM's Iter opcode (spec
// §4.5 Iteration) over a String, List, or Table, or — when a Table's
// metatable carries __iter — over whatever __iter(t) returns. It is
// never constructed by scripts directly.
type Iterator struct {
	Header
	Variant  IterVariant
	Source   Value
	pos      int // next element index, for string/list
	tableIdx int // next entry index, for table iteration
}

// IterVariant distinguishes the four ways an Iterator advances.
type IterVariant int

const (
	IterString IterVariant = iota
	IterList
	IterTable
	IterHook // driven by the source table's __next metamethod
)

func (*Iterator) Kind() Kind { return KindIterator }

// NewStringIterator returns an iterator yielding successive 1-byte
// substrings of s.
func NewStringIterator(s *Str) *Iterator {
	return &Iterator{Header: newHeader(), Variant: IterString, Source: s}
}

// NewListIterator returns an iterator yielding successive elements of l.
func NewListIterator(l *List) *Iterator {
	return &Iterator{Header: newHeader(), Variant: IterList, Source: l}
}

// NewTableIterator returns an iterator yielding successive (key, value)
// pairs of t.
func NewTableIterator(t *Table) *Iterator {
	return &Iterator{Header: newHeader(), Variant: IterTable, Source: t}
}

// NewHookIterator wraps a table whose metatable's __next hook drives
// iteration; the VM calls the hook itself and does not use NextString/
// NextList/NextTable for this variant.
func NewHookIterator(source Value) *Iterator {
	return &Iterator{Header: newHeader(), Variant: IterHook, Source: source}
}

// NextString returns the iterator's next 1-byte substring, or ok=false
// at exhaustion.
func (it *Iterator) NextString() (Value, bool) {
	s := it.Source.(*Str)
	if it.pos >= len(s.V) {
		return nil, false
	}
	b := s.V[it.pos]
	it.pos++
	return NewStr([]byte{b}), true
}

// NextList returns the iterator's next element, or ok=false at
// exhaustion.
func (it *Iterator) NextList() (Value, bool) {
	l := it.Source.(*List)
	if it.pos >= len(l.items) {
		return nil, false
	}
	v := l.items[it.pos]
	it.pos++
	return v, true
}

// NextTable returns the iterator's next (key, value) pair, or ok=false
// at exhaustion.
func (it *Iterator) NextTable() (k, v Value, ok bool) {
	t := it.Source.(*Table)
	key, val, found := t.entryAt(it.tableIdx)
	if !found {
		return nil, nil, false
	}
	it.tableIdx++
	return key, val, true
}
