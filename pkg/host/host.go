// Package host implements tug's host-facing API (spec §6): the surface a
// program embedding the interpreter actually links against. It owns the
// one process-wide Runtime context (the GC and, per spec §9's "Global
// mutable state" note, everything else that would otherwise be a
// process-global), compiles source into Tasks, and offers value
// constructors/introspection and the argument/return/reentrant-call
// helpers a native callback needs.
//
// pkg/host is deliberately thin: it does not duplicate pkg/vm's
// metatable-dispatch semantics (GetField/SetField here are direct table
// operations, not __get/__set-honoring ones — that dispatch only exists
// inside the VM's own instruction loop, which is reached through Call/
// ProtectedCall, not through this package's introspection helpers).
package host

import (
	"fmt"

	"github.com/huywallz/tug/pkg/compiler"
	"github.com/huywallz/tug/pkg/gc"
	"github.com/huywallz/tug/pkg/parser"
	"github.com/huywallz/tug/pkg/value"
	"github.com/huywallz/tug/pkg/vm"
)

// CompileError is returned by Compile on a lex/parse/compile failure,
// carrying the offending source line the way spec §6/§7 describes
// ("source:line: message").
type CompileError struct {
	SourceName string
	Line       int
	Message    string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("%s:%d: %s", e.SourceName, e.Line, e.Message)
}

// Runtime is the one process-wide context the host holds: it owns the
// shared GC (spec §5 "one process-wide runtime context owns the GC...
// multiple Tasks may coexist but execute serially") and is the factory
// for every Value a native callback or the host itself constructs.
type Runtime struct {
	gc *gc.Collector
}

// New implements the host lifecycle's init() (spec §6).
func New() *Runtime {
	return &Runtime{gc: gc.New()}
}

// Close implements the host lifecycle's close(). tug's collector holds
// no OS resources, so this only exists to give the host a symmetric
// lifecycle call to make and a future place to hang teardown logic.
func (rt *Runtime) Close() {}

func (rt *Runtime) track(v value.Value) value.Value {
	rt.gc.Track(v)
	return v
}

// Compile implements compile(sourceName, code): lex, parse, and emit
// bytecode, then wrap it in a fresh Task sharing this Runtime's
// collector. Any lex/parse/compile failure comes back as a *CompileError
// stamped with sourceName and the offending line, never a *vm.Task.
func (rt *Runtime) Compile(sourceName, code string) (*vm.Task, error) {
	prog, err := parser.Parse(code)
	if err != nil {
		if pe, ok := err.(*parser.ParseError); ok {
			return nil, &CompileError{SourceName: sourceName, Line: pe.Line, Message: pe.Message}
		}
		return nil, &CompileError{SourceName: sourceName, Line: 0, Message: err.Error()}
	}
	chunk, err := compiler.Compile(prog)
	if err != nil {
		if ce, ok := err.(*compiler.CompileError); ok {
			return nil, &CompileError{SourceName: sourceName, Line: ce.Line, Message: ce.Message}
		}
		return nil, &CompileError{SourceName: sourceName, Line: 0, Message: err.Error()}
	}
	return vm.NewTask(sourceName, chunk.Code, rt.gc), nil
}

// ---- Execute (spec §6 Execute) ----

// Resume drives task until it yields, errors, or ends.
func (rt *Runtime) Resume(task *vm.Task) { task.Resume() }

// Pause requests task suspend at the next instruction boundary. Intended
// to be called from inside a native callback running on task.
func (rt *Runtime) Pause(task *vm.Task) { task.Pause() }

// State reports task's lifecycle state.
func (rt *Runtime) State(task *vm.Task) vm.State { return task.State() }

// ErrorMessage returns task's failure message, empty if not in StateError.
func (rt *Runtime) ErrorMessage(task *vm.Task) string { return task.ErrorMessage() }

// ErrorTraceback renders task's accumulated traceback, one frame per
// line, in the "sourceName:line: in functionName" form (spec §7).
func (rt *Runtime) ErrorTraceback(task *vm.Task) string { return task.ErrorTraceback() }

// ---- Value construction (spec §6 Value construction) ----

// Nil, True, and False return the process-wide singletons.
func (rt *Runtime) Nil() value.Value   { return value.NilVal }
func (rt *Runtime) True() value.Value  { return value.TrueVal }
func (rt *Runtime) False() value.Value { return value.FalseVal }

// Number allocates a new Number value, reusing the collector's object
// pool when it can.
func (rt *Runtime) Number(v float64) value.Value {
	return rt.gc.NewNumber(v)
}

// StringOwned wraps b directly as a String value without copying;
// callers must not mutate b afterward.
func (rt *Runtime) StringOwned(b []byte) value.Value {
	return rt.gc.NewStr(b)
}

// StringConst copies b into a new String value, safe to call even when
// the caller retains and later mutates b.
func (rt *Runtime) StringConst(b []byte) value.Value {
	cp := make([]byte, len(b))
	copy(cp, b)
	return rt.gc.NewStr(cp)
}

// Table allocates a new, empty Table.
func (rt *Runtime) Table() *value.Table {
	t := value.NewTable()
	rt.gc.Track(t)
	return t
}

// List allocates a new List over items (ownership of the slice
// transfers to the List, matching value.NewList).
func (rt *Runtime) List(items ...value.Value) *value.List {
	l := value.NewList(items)
	rt.gc.Track(l)
	return l
}

// Tuple allocates a new internal multi-value Tuple over vs.
func (rt *Runtime) Tuple(vs ...value.Value) value.Value {
	return rt.track(value.NewTuple(vs))
}

// NativeCallback is the Go-side implementation of a CFunc: it receives
// the already-collapsed argument list for its call site (spec §4.5
// Calls: "extra -> ignored", missing slots already padded with nil by
// the VM's param binding — but a native function instead sees exactly
// what was passed, so it should consult len(args) itself) and returns
// either a single value (itself a Tuple, via Runtime.Tuple/Many, for a
// multi-value return) or an error.
//
// A callback that needs tug's non-local-exit semantics (spec §6 "err",
// §7 Propagation) should call Err rather than returning a plain error
// when it wants its failure to look exactly like a script-raised error,
// including participating in unwinding/protected-call containment; a
// plain Go error return also works and is translated identically by
// pkg/vm's callNativeSafe.
type NativeCallback func(args []value.Value) (value.Value, error)

// CFunc wraps fn as a native Function value under name, ready to be
// installed as a global or passed as a value (spec §6 cfunc).
func (rt *Runtime) CFunc(name string, fn NativeCallback) *value.Function {
	f := value.NewNativeFunction(name, value.NativeFn(fn))
	rt.gc.Track(f)
	return f
}

// Err performs the non-local exit spec §6/§7 describe for a native
// callback's "err" operation: it never returns to its caller. pkg/vm's
// callNativeSafe recovers exactly this carrier type and turns it into
// the Task's RuntimeError, driving unwinding the same way an uncaught
// script failure would.
func Err(format string, args ...interface{}) {
	panic(vm.ScriptAbort{Message: fmt.Sprintf(format, args...)})
}

// Many packages multiple values into the Tuple a NativeCallback returns
// for a multi-value return (spec §6 "returnMany").
func Many(vs ...value.Value) value.Value {
	return value.NewTuple(vs)
}

// ---- Value introspection (spec §6 Value introspection) ----

// TypeOf reports v's type label: a Table's __type metatable entry (a
// Str) overrides the default Kind().String() label, mirroring spec
// §4.6's `__type` hook.
func (rt *Runtime) TypeOf(v value.Value) string {
	if t, ok := v.(*value.Table); ok && t.Metatable != nil {
		if raw, ok := t.Metatable.Get(value.NewStr([]byte("__type"))); ok {
			if s, ok := raw.(*value.Str); ok {
				return string(s.V)
			}
		}
	}
	return v.Kind().String()
}

// IdOf returns v's identity, as used for display and identity-insensitive
// hashing of everything but the three nil/true/false singletons.
func (rt *Runtime) IdOf(v value.Value) uint64 { return v.Ident() }

// GetString returns s's bytes and true, or (nil, false) if v isn't a
// String.
func (rt *Runtime) GetString(v value.Value) ([]byte, bool) {
	s, ok := v.(*value.Str)
	if !ok {
		return nil, false
	}
	return s.V, true
}

// GetNumber returns n's float64 and true, or (0, false) if v isn't a
// Number.
func (rt *Runtime) GetNumber(v value.Value) (float64, bool) {
	n, ok := v.(*value.Number)
	if !ok {
		return 0, false
	}
	return n.V, true
}

// GetLength reports the length of a String (byte count), Table (live
// entry count), or List (element count); ok is false for any other
// kind.
func (rt *Runtime) GetLength(v value.Value) (int, bool) {
	switch x := v.(type) {
	case *value.Str:
		return len(x.V), true
	case *value.Table:
		return x.Len(), true
	case *value.List:
		return x.Len(), true
	default:
		return 0, false
	}
}

// GetField reads key directly out of table, without consulting __get —
// hook-honoring indexing is a VM-instruction-loop concern (see the
// package doc). ok is false if key is absent.
func (rt *Runtime) GetField(table *value.Table, key value.Value) (value.Value, bool) {
	return table.Get(key)
}

// SetField writes key -> val directly into table, without consulting
// __set. Setting val to Nil removes the entry (spec §3 Table).
func (rt *Runtime) SetField(table *value.Table, key, val value.Value) {
	table.Set(key, val)
}

// GetMetatable returns table's metatable, or the value of its own
// __metatable entry if one is present — the "weak shield against host
// inspection" spec §4.6 describes.
func (rt *Runtime) GetMetatable(table *value.Table) value.Value {
	if table.Metatable == nil {
		return value.NilVal
	}
	if shield, ok := table.Metatable.Get(value.NewStr([]byte("__metatable"))); ok {
		return shield
	}
	return table.Metatable
}

// SetMetatable installs mt (or nil to clear) as table's metatable.
func (rt *Runtime) SetMetatable(table *value.Table, mt *value.Table) {
	table.Metatable = mt
}

// ListPush appends v to the end of l.
func (rt *Runtime) ListPush(l *value.List, v value.Value) { l.Append(v) }

// ListPop removes and returns the element at index, or (nil, false) if
// out of range.
func (rt *Runtime) ListPop(l *value.List, index int) (value.Value, bool) {
	return l.RemoveAt(index)
}

// ListInsert splices v into l at index, shifting later elements up.
func (rt *Runtime) ListInsert(l *value.List, index int, v value.Value) bool {
	return l.Insert(index, v)
}

// ListSet overwrites l's element at index.
func (rt *Runtime) ListSet(l *value.List, index int, v value.Value) bool {
	return l.Set(index, v)
}

// ---- Variable access on a task (spec §6) ----

// SetGlobal/GetGlobal/HasGlobal and SetVar/GetVar/HasVar forward directly
// to the Task: the host API surface is a pass-through here, not a
// separate concern, since the Task already carries both scopes.
func (rt *Runtime) SetGlobal(task *vm.Task, name string, v value.Value) { task.SetGlobal(name, v) }
func (rt *Runtime) GetGlobal(task *vm.Task, name string) value.Value    { return task.GetGlobal(name) }
func (rt *Runtime) HasGlobal(task *vm.Task, name string) bool          { return task.HasGlobal(name) }

func (rt *Runtime) SetVar(task *vm.Task, name string, v value.Value) { task.SetVar(name, v) }
func (rt *Runtime) GetVar(task *vm.Task, name string) value.Value    { return task.GetVar(name) }
func (rt *Runtime) HasVar(task *vm.Task, name string) bool           { return task.HasVar(name) }

// ---- Reentrant call (spec §6 Reentrant call) ----

// Call invokes fn with args, reentering the VM (spec §6 "call"). A
// failure is not contained: task is left in StateError exactly as an
// uncaught script error would leave it.
func (rt *Runtime) Call(task *vm.Task, fn value.Value, args ...value.Value) (value.Value, error) {
	return task.Call(fn, args...)
}

// ProtectedCall invokes fn with a single argument arg, containing any
// failure into the returned error instead of leaving task in StateError
// (spec §6 "protectedCall"). Called from within a running callback, task
// stays Running either way; called directly from host code on a task
// that has already finished, it's left in whatever state it was in
// before the call (Ended, most commonly) once the call returns.
func (rt *Runtime) ProtectedCall(task *vm.Task, fn value.Value, arg value.Value) (value.Value, error) {
	return task.ProtectedCall(fn, []value.Value{arg})
}
