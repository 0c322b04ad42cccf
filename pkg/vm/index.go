// index.go implements indexing (GetIndex/SetIndex), iteration
// (Iter/Next), and metatable hook lookup — the three places tug's
// data-model operations (spec §4.2/§4.6) can call back into script code.
package vm

import (
	"github.com/huywallz/tug/pkg/value"
)

// metaHook looks up name in t's metatable, if it has one. A hook value
// that exists but isn't callable is still returned — dispatchCall (or
// whatever calls the hook) reports the actual error, since a table or
// other value could itself be a valid __call target.
func (t *Task) metaHook(tbl *value.Table, name string) (value.Value, bool) {
	if tbl.Metatable == nil {
		return nil, false
	}
	v, ok := tbl.Metatable.Get(value.NewStr([]byte(name)))
	if !ok {
		return nil, false
	}
	return v, true
}

func numericIndex(key value.Value) (int, bool) {
	n, ok := key.(*value.Number)
	if !ok {
		return 0, false
	}
	return int(n.V), true
}

// getIndexValue implements OpGetIndex's semantics for every indexable
// kind. A table whose metatable carries __get defers to the hook for
// every read — the raw entries are bypassed entirely, even for keys the
// table actually holds (spec §4.5: "GetIndex on Table first consults
// __get hook; else direct lookup"). Absent table keys and out-of-range
// list/string indices read as nil rather than erroring (spec §4.2 edge
// cases); everything else that isn't indexable is a runtime error.
func (t *Task) getIndexValue(recv, key value.Value, line int) (value.Value, bool) {
	switch r := recv.(type) {
	case *value.Table:
		if hook, ok := t.metaHook(r, "__get"); ok {
			result, ok2 := t.dispatchCall(hook, []value.Value{recv, key}, line)
			if !ok2 {
				return nil, false
			}
			return value.Collapse(result), true
		}
		if v, ok := r.Get(key); ok {
			return v, true
		}
		return value.NilVal, true

	case *value.List:
		idx, ok := numericIndex(key)
		if !ok {
			t.Fail("list index must be a number")
			return nil, false
		}
		if v, ok2 := r.Get(idx); ok2 {
			return v, true
		}
		return value.NilVal, true

	case *value.Str:
		idx, ok := numericIndex(key)
		if !ok {
			t.Fail("string index must be a number")
			return nil, false
		}
		if idx < 0 || idx >= len(r.V) {
			return value.NilVal, true
		}
		return t.gc.NewStr([]byte{r.V[idx]}), true

	default:
		t.Fail("unable to index '%s'", recv.Kind())
		return nil, false
	}
}

// setIndexValue implements OpSetIndex and the assignment-side of
// OpMultiAssign's index targets. A List requires an in-range index —
// writing at the current length is out of range, not an append; growth
// goes through the host's ListPush/ListInsert (spec §4.5).
func (t *Task) setIndexValue(recv, key, val value.Value, line int) bool {
	switch r := recv.(type) {
	case *value.Table:
		if hook, ok := t.metaHook(r, "__set"); ok {
			_, ok2 := t.dispatchCall(hook, []value.Value{recv, key, val}, line)
			return ok2
		}
		r.Set(key, val)
		return true

	case *value.List:
		idx, ok := numericIndex(key)
		if !ok {
			t.Fail("list index must be a number")
			return false
		}
		if !r.Set(idx, val) {
			t.Fail("list index out of range")
			return false
		}
		return true

	default:
		t.Fail("unable to index '%s'", recv.Kind())
		return false
	}
}

// makeIterator implements OpIter: Strings/Lists/Tables iterate natively;
// a table whose metatable carries __iter is asked for its iterable first
// (the hook fires exactly once, and its result must itself be iterable
// or carry __next); a table whose metatable carries __next drives
// iteration through that hook directly (spec §4.5 Iteration). Returns
// nil (having already called Fail) on any failure.
func (t *Task) makeIterator(v value.Value, line int) value.Value {
	switch x := v.(type) {
	case *value.Str:
		return t.allocIter(value.NewStringIterator(x))
	case *value.List:
		return t.allocIter(value.NewListIterator(x))
	case *value.Table:
		if hook, ok := t.metaHook(x, "__iter"); ok {
			state, ok2 := t.dispatchCall(hook, []value.Value{v}, line)
			if !ok2 {
				return nil
			}
			return t.makeIterator(value.Collapse(state), line)
		}
		if _, ok := t.metaHook(x, "__next"); ok {
			return t.allocIter(value.NewHookIterator(x))
		}
		return t.allocIter(value.NewTableIterator(x))
	default:
		t.Fail("unable to iterate '%s'", v.Kind())
		return nil
	}
}

// execNext implements OpNext: the iterator built by Iter sits on top of
// the stack for the entire loop (one PushClosure scope spans the whole
// for statement) and is only popped once exhausted, at which point
// execution jumps to exitAddr; otherwise the next element(s) are bound
// to names in the loop's scope and execution falls through into the
// body.
func (t *Task) execNext(names []string, exitAddr int, line int) {
	top := t.peek()
	it, ok := top.(*value.Iterator)
	if !ok {
		t.Fail("iteration fatal error")
		return
	}

	bind := func(vals ...value.Value) {
		for i, name := range names {
			if i < len(vals) {
				t.scope.Declare(name, vals[i])
			} else {
				t.scope.Declare(name, value.NilVal)
			}
		}
	}

	switch it.Variant {
	case value.IterString:
		v, ok2 := it.NextString()
		if !ok2 {
			t.pop()
			t.frame.IP = exitAddr
			return
		}
		bind(t.alloc(v))

	case value.IterList:
		v, ok2 := it.NextList()
		if !ok2 {
			t.pop()
			t.frame.IP = exitAddr
			return
		}
		bind(v)

	case value.IterTable:
		k, v, ok2 := it.NextTable()
		if !ok2 {
			t.pop()
			t.frame.IP = exitAddr
			return
		}
		bind(k, v)

	case value.IterHook:
		srcTable, ok2 := it.Source.(*value.Table)
		if !ok2 {
			t.Fail("iteration fatal error")
			return
		}
		hook, ok3 := t.metaHook(srcTable, "__next")
		if !ok3 {
			t.Fail("iteration fatal error")
			return
		}
		result, ok4 := t.dispatchCall(hook, []value.Value{srcTable}, line)
		if !ok4 {
			return
		}
		// __next returns a boolean continue flag followed by one value
		// per bound name, as a tuple (spec §4.6).
		vals := value.SpreadValue(result, 1+len(names))
		flag, isBool := vals[0].(*value.BoolValue)
		if !isBool {
			t.Fail("'__next' must return a boolean")
			return
		}
		if !flag.V {
			t.pop()
			t.frame.IP = exitAddr
			return
		}
		bind(vals[1:]...)

	default:
		t.Fail("iteration fatal error")
	}
}
