// Package vm is tug's bytecode interpreter: Task/Frame lifecycle,
// call/return, metatable-dispatched operators, pause/resume, and
// protected-call unwinding (spec §4.5/§4.6/§7), grounded on
// original_source/tug.c's task_exec/call_obj/frame machinery and on the
// teacher's pkg/vm (errors.go's RuntimeError shape, the doc-comment
// density of its instruction-loop switch).
package vm

import (
	"fmt"

	"github.com/huywallz/tug/pkg/bytecode"
	"github.com/huywallz/tug/pkg/gc"
	"github.com/huywallz/tug/pkg/value"
)

// State is a Task's position in the lifecycle spec §4.5 describes:
// New -> Running -> {Yielded -> Running}* -> {Ended | Error}.
type State int

const (
	StateNew State = iota
	StateRunning
	StateYielded
	StateError
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "New"
	case StateRunning:
		return "Running"
	case StateYielded:
		return "Yielded"
	case StateError:
		return "Error"
	case StateEnded:
		return "Ended"
	default:
		return "Unknown"
	}
}

// callDepthLimit is the hard recursion ceiling past which a Call fails
// with "stack overflow" (spec §4.5, §8 boundary: 1000 overflows, 999
// does not).
const callDepthLimit = 1000

// Frame is one activation record on a Task's call stack (spec §3
// Frame). EntryScope/EntryStackDepth are captured at push time so
// unwinding (on error, or a normal Halt return) can restore both stacks
// to exactly where the call began.
type Frame struct {
	SourceName string
	FuncName   string
	Code       []byte
	IP         int
	Line       int

	EntryScope      *value.Scope
	EntryStackDepth int

	Args      []value.Value
	Ret       value.Value
	Protected bool

	Next *Frame
}

// Task is one independent script execution context (spec §3 Task): its
// own operand stack, call-frame list, lexical scope chain, global
// scope, and error/traceback state.
type Task struct {
	SourceName string

	frame      *Frame
	frameCount int

	stack  []value.Value
	scope  *value.Scope
	global *value.Scope

	state State
	msg   string
	trace []StackFrame

	// Result holds the value the outermost frame returned, once the
	// Task reaches State Ended. Nil until then.
	Result value.Value

	gc *gc.Collector
}

// NewTask creates a Task over compiled code, in State New. gc is shared
// across every Task the host runs concurrently-in-turn, per spec §5's
// "one process-wide runtime context owns the GC".
func NewTask(sourceName string, code []byte, collector *gc.Collector) *Task {
	global := collector.NewScope(nil)

	t := &Task{
		SourceName: sourceName,
		global:     global,
		scope:      global,
		state:      StateNew,
		gc:         collector,
	}
	t.frame = &Frame{
		SourceName: sourceName,
		FuncName:   "<main>",
		Code:       code,
		EntryScope: global,
	}
	t.frameCount = 1

	// Every coexisting Task on this collector contributes its roots to
	// each cycle, until it ends for good (spec §4.4: "for every task in
	// state ≠ Ended").
	collector.AddRootSource(func() (gc.Roots, bool) {
		if t.state == StateEnded {
			return gc.Roots{}, false
		}
		return t.roots(), true
	})
	return t
}

// State reports the Task's current lifecycle state.
func (t *Task) State() State { return t.state }

// ErrorMessage is the short failure string set by the unwind that left
// the Task in State Error (empty otherwise).
func (t *Task) ErrorMessage() string { return t.msg }

// ErrorTraceback renders the accumulated unwind trace in the
// "sourceName:line: in functionName" form spec §7 specifies, one frame
// per line, innermost first.
func (t *Task) ErrorTraceback() string {
	var out string
	for _, f := range t.trace {
		out += fmt.Sprintf("%s:%d: in %s\n", f.SourceName, f.Line, f.FuncName)
	}
	return out
}

// Err returns the Task's failure as a *RuntimeError, or nil if the Task
// is not in State Error.
func (t *Task) Err() error {
	if t.state != StateError {
		return nil
	}
	return &RuntimeError{Message: t.msg, StackTrace: t.trace}
}

// Pause transitions a Running task to Yielded, the only explicit
// suspension point (spec §5): called from inside a native callback, it
// causes the instruction loop to return control to the host once the
// current opcode finishes.
func (t *Task) Pause() {
	if t.state == StateRunning {
		t.state = StateYielded
	}
}

// Fail moves the Task into State Error with a formatted message. Each
// runtime error path (type mismatches, bad call targets, division by
// zero, …) funnels through this, mirroring tug.c's assign_err.
func (t *Task) Fail(format string, args ...interface{}) {
	t.msg = fmt.Sprintf(format, args...)
	t.state = StateError
}

// Resume drives the instruction loop until the Task yields, errors, or
// ends (spec §4.5 "Running -> Yielded|Error|Ended"). Calling Resume on
// any other state is a no-op.
func (t *Task) Resume() {
	if t.state != StateNew && t.state != StateYielded {
		return
	}
	t.state = StateRunning
	for t.state == StateRunning {
		t.step()
		if t.state == StateError {
			t.unwind()
		}
	}
}

// unwind walks frames innermost-first, accumulating one traceback record
// per freed frame and truncating the operand stack to each frame's entry
// depth, until it either exhausts every frame (Task stays in Error,
// fully reported to the host via Err/ErrorTraceback) or pops a frame
// flagged Protected — whose protection is consumed right after it is
// popped, handing control back to whatever installed the protected call
// (ProtectedCall) with the accumulated trace left in t.trace for it to
// read (spec §7 Propagation).
func (t *Task) unwind() {
	for t.frame != nil {
		protected := t.frame.Protected
		t.trace = append(t.trace, StackFrame{
			SourceName: t.frame.SourceName,
			FuncName:   t.frame.FuncName,
			Line:       t.frame.Line,
		})
		if t.frame.EntryStackDepth < len(t.stack) {
			t.stack = t.stack[:t.frame.EntryStackDepth]
		}
		t.scope = t.frame.EntryScope
		t.frame = t.frame.Next
		t.frameCount--
		if protected {
			t.state = StateRunning
			return
		}
	}
}

// push/pop are the operand stack primitives every opcode handler uses.
func (t *Task) push(v value.Value) { t.stack = append(t.stack, v) }

func (t *Task) pop() value.Value {
	if t.frame != nil && len(t.stack) <= t.frame.EntryStackDepth {
		return value.NilVal
	}
	if len(t.stack) == 0 {
		return value.NilVal
	}
	v := t.stack[len(t.stack)-1]
	t.stack = t.stack[:len(t.stack)-1]
	return v
}

// popRaw pops exactly one stack slot without spreading a Tuple, mirroring
// tug.c's pop_tvalue; pop never spreads either, so the two are the same.
// Tuple construction and the conditional jumps use it for their
// single-slot reads.
func (t *Task) popRaw() value.Value { return t.pop() }

func (t *Task) peek() value.Value {
	if len(t.stack) == 0 {
		return value.NilVal
	}
	return t.stack[len(t.stack)-1]
}

// reader returns a bytecode.Reader positioned at the current frame's IP;
// commit writes the reader's advance back to the frame.
func (t *Task) reader() *bytecode.Reader {
	return &bytecode.Reader{Code: t.frame.Code, IP: t.frame.IP}
}

func (t *Task) commit(r *bytecode.Reader) { t.frame.IP = r.IP }

// alloc registers v with the collector and returns it, so every opcode
// handler that constructs a heap Value does so through one call site
// (gc §4.4: "all allocated Values" is exactly what Track has seen).
func (t *Task) alloc(v value.Value) value.Value {
	t.gc.Track(v)
	return v
}

func (t *Task) allocIter(it *value.Iterator) *value.Iterator {
	t.gc.Track(it)
	return it
}

// SetGlobal/GetGlobal/HasGlobal and SetVar/GetVar/HasVar back the host
// API's variable-access surface (spec §6).
func (t *Task) SetGlobal(name string, v value.Value) { t.global.Declare(name, v) }

func (t *Task) GetGlobal(name string) value.Value {
	v, ok := t.global.Lookup(name)
	if !ok {
		return value.NilVal
	}
	return v
}

func (t *Task) HasGlobal(name string) bool {
	_, ok := t.global.Lookup(name)
	return ok
}

func (t *Task) SetVar(name string, v value.Value) { t.scope.Declare(name, v) }

func (t *Task) GetVar(name string) value.Value {
	v, ok := t.scope.Lookup(name)
	if !ok {
		return value.NilVal
	}
	return v
}

func (t *Task) HasVar(name string) bool {
	_, ok := t.scope.Lookup(name)
	return ok
}

// roots assembles a fresh gc.Roots snapshot of everything this Task
// makes reachable right now: the operand stack, every scope in the
// current lexical chain, each suspended frame's entry scope chain (a
// caller's locals are reachable only through its EntryScope while a
// callee runs), the global scope, and a Mark hook that walks each live
// frame's arguments/return slot (gc §4.4 Mark phase). markScopeChain
// follows Outer links and skips already-marked scopes, so the chain
// heads collected here may overlap freely.
func (t *Task) roots() gc.Roots {
	scopes := []*value.Scope{t.scope, t.global}
	for f := t.frame; f != nil; f = f.Next {
		if f.EntryScope != nil {
			scopes = append(scopes, f.EntryScope)
		}
	}
	values := append([]value.Value(nil), t.stack...)
	return gc.Roots{
		Values: values,
		Scopes: scopes,
		Mark: func(visit func(value.Value)) {
			for f := t.frame; f != nil; f = f.Next {
				for _, a := range f.Args {
					visit(a)
				}
				if f.Ret != nil {
					visit(f.Ret)
				}
			}
		},
	}
}

// collectIfDue runs one GC cycle when the allocator's bytes-in-use
// crosses its threshold. Called only at an instruction boundary (the
// top of step), never while a native callback frame is on the stack —
// satisfying gc §4.4's hard contract. The cycle is rooted in every
// task registered on the shared collector, not just this one.
func (t *Task) collectIfDue() {
	if t.gc.ShouldCollect() {
		t.gc.CollectAll()
	}
}
