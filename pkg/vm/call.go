// call.go implements tug's single call-dispatch path: every invocation —
// an OpCall from the instruction stream, a metatable hook fired mid-
// opcode (operator overloads, __get/__set, __call, __iter/__next), and a
// host-driven Call — funnels through dispatchCall (ProtectedCall pushes
// its frame itself so it can catch the failure). A scripted
// callee runs to completion in a nested loop before dispatchCall returns,
// so the caller (whether that's execCall or a hook site deep inside an
// opcode handler) always sees a finished result or a task already in
// State Error. Pause still works through this: a native callback that
// calls Task.Pause partway down a call chain flips the state away from
// Running, every nested loop's condition fails in turn, and control
// unwinds cleanly back to Resume with the real interpreter state (the
// Task's frame chain, not the Go call stack) left exactly where it
// should resume next.
package vm

import (
	"fmt"
	"strings"

	"github.com/huywallz/tug/pkg/value"
)

// dispatchCall invokes callee with args, synchronously running any
// scripted call to completion before returning. ok is false exactly
// when the Task has moved out of State Running (Error, from a failed
// call or an already-signaled Fail) — the caller should stop and return,
// not push anything.
func (t *Task) dispatchCall(callee value.Value, args []value.Value, line int) (value.Value, bool) {
	switch fn := callee.(type) {
	case *value.Function:
		if fn.IsNative() {
			result, err := t.callNativeSafe(fn, args)
			if err != nil {
				t.Fail("%s", err.Error())
				return nil, false
			}
			return result, true
		}
		return t.runScriptCall(fn, args, line, false)

	case *value.Table:
		hook, ok := t.metaHook(fn, "__call")
		if !ok {
			t.Fail("unable to call 'table'")
			return nil, false
		}
		return t.dispatchCall(hook, append([]value.Value{callee}, args...), line)

	default:
		t.Fail("unable to call '%s'", callee.Kind())
		return nil, false
	}
}

// runScriptCall pushes fn's activation record and drives the instruction
// loop directly until that exact frame (and anything it in turn calls)
// has unwound back off the call stack.
func (t *Task) runScriptCall(fn *value.Function, args []value.Value, line int, protected bool) (value.Value, bool) {
	oldFrame := t.frame
	oldResult := t.Result
	if !t.pushScriptFrame(fn, args, protected, line) {
		return nil, false
	}
	for t.state == StateRunning && t.frame != oldFrame {
		t.step()
	}
	if oldFrame == nil && t.state == StateEnded {
		// Called on a Task with no frames left: the callee's Halt emptied
		// the frame stack and put its value in Result instead of on the
		// operand stack. Hand it back and keep the Task's own Result.
		ret := t.Result
		t.Result = oldResult
		t.state = StateRunning
		return ret, true
	}
	if t.state != StateRunning {
		return nil, false
	}
	return t.pop(), true
}

// pushScriptFrame allocates the new call's lexical scope, binds params to
// args (missing args read as nil, extras are simply unused), and pushes
// a Frame recording the CALL SITE's scope/stack depth as its entry point
// so a later unwind restores the caller exactly, not the callee's own
// scope (original_source/tug.c's call_obj capturing the caller's fp).
func (t *Task) pushScriptFrame(fn *value.Function, args []value.Value, protected bool, line int) bool {
	if t.frameCount >= callDepthLimit {
		t.Fail("stack overflow")
		return false
	}

	scope := t.gc.NewScope(fn.Captured)
	for i, p := range fn.Params {
		var v value.Value = value.NilVal
		if i < len(args) {
			v = args[i]
		}
		scope.Declare(p, v)
	}

	if t.frame != nil {
		t.frame.Line = line
	}

	newFrame := &Frame{
		SourceName:      t.SourceName,
		FuncName:        displayName(fn),
		Code:            fn.Body,
		Line:            line,
		EntryScope:      t.scope,
		EntryStackDepth: len(t.stack),
		Args:            args,
		Protected:       protected,
		Next:            t.frame,
	}
	t.frame = newFrame
	t.scope = scope
	t.frameCount++
	return true
}

func displayName(fn *value.Function) string {
	if fn.Name == "" {
		return "<anonymous>"
	}
	return fn.Name
}

// callNativeSafe runs a host-provided NativeFn, translating a ScriptAbort
// panic (the non-local-exit carrier, see errors.go) into an ordinary
// error return. Any other panic is a genuine bug and is left to
// propagate, mirroring gothird's panicerr: only the carrier type this
// package defines is ever recovered here.
func (t *Task) callNativeSafe(fn *value.Function, args []value.Value) (result value.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			if abort, ok := r.(ScriptAbort); ok {
				// ScriptAbort.Error() is the bare message; dispatchCall
				// hands it to Fail and ProtectedCall returns it as is,
				// so no wrapping here — a
				// *RuntimeError's own Error() prepends "error: ",
				// which would otherwise get baked into Task.msg and
				// double up the next time it's rendered.
				err = abort
				return
			}
			panic(r)
		}
	}()
	return fn.Native(args)
}

// execCall implements OpCall: the callee sits on the stack with its argc
// arguments above it, the last argument on top (spec §4.3 Call). Each argument is collapsed from a Tuple
// (only the function's own return/Tuple opcode carries multi-value
// semantics; an argument position always wants one value). The argument
// vector comes from the collector's slice pool when one fits; execHalt
// returns it there once the frame retires.
func (t *Task) execCall(argc, line int) {
	args := t.gc.TakeVector()
	if cap(args) < argc {
		args = make([]value.Value, argc)
	} else {
		args = args[:argc]
	}
	for i := argc - 1; i >= 0; i-- {
		args[i] = value.Collapse(t.pop())
	}
	callee := t.pop()
	if t.frame != nil {
		t.frame.Line = line
	}
	result, ok := t.dispatchCall(callee, args, line)
	if !ok {
		return
	}
	t.push(result)
}

// execHalt implements OpHalt: the return value (a plain Value, or a
// *Tuple for a multi-value return) is already on top of the stack. The
// current frame is retired, its caller's scope/stack restored, and the
// value handed back to whoever is waiting — either the caller frame
// resumed by the ordinary instruction loop, or a runScriptCall/
// ProtectedCall nested loop that will pop it right back off.
func (t *Task) execHalt() {
	ret := t.pop()
	frame := t.frame
	frame.Ret = ret
	if frame.Args != nil {
		t.gc.ReleaseVector(frame.Args)
		frame.Args = nil
	}

	t.scope = frame.EntryScope
	if frame.EntryStackDepth < len(t.stack) {
		t.stack = t.stack[:frame.EntryStackDepth]
	}
	t.frame = frame.Next
	t.frameCount--

	if t.frame == nil {
		t.Result = ret
		t.state = StateEnded
		return
	}
	t.push(ret)
}

// execFuncDef implements OpFuncDef. A bare name (len(names) <= 1) leaves
// the new closure on the stack for the compiler's trailing OpStore (or,
// for an anonymous FuncLit, for whatever expression context follows). A
// dotted path (`func a.b.c(...)`) is resolved and assigned by the VM
// itself, mirroring tug.c's handling of compound function targets: the
// closure never touches the operand stack in that case.
func (t *Task) execFuncDef(line int, names, params []string, body []byte) {
	name := ""
	if len(names) > 0 {
		name = strings.Join(names, ".")
	}
	fn := t.alloc(value.NewScriptFunction(name, params, body, t.scope))

	if len(names) <= 1 {
		t.push(fn)
		return
	}

	base, ok := t.scope.Lookup(names[0])
	if !ok {
		base = value.NilVal // the index step below reports the real error
	}
	cur := base
	for i := 1; i < len(names)-1; i++ {
		key := t.gc.NewStr([]byte(names[i]))
		next, ok := t.getIndexValue(cur, key, line)
		if !ok {
			return
		}
		cur = next
	}
	key := t.gc.NewStr([]byte(names[len(names)-1]))
	t.setIndexValue(cur, key, fn, line)
}

// Call invokes fn reentrantly from host code or from inside a native
// callback (spec §6 "Reentrant call", unprotected form). Unlike
// ProtectedCall, a failure here is not contained: it leaves the Task in
// State Error exactly as an uncaught script error would, and the caller
// is expected to propagate it rather than keep driving the task.
//
// A native callback calls this while the Task is already State Running,
// and dispatchCall's nested loop rides on that. Direct host use — the
// "call a function the script registered, after the script itself has
// finished running" pattern — finds the Task in State Ended (or New, or
// Yielded) instead, so resumeForReentry/restoreAfterReentry bracket the
// call with a temporary State Running exactly when one is needed,
// restoring whatever suspended state the Task was in if the call itself
// didn't already move it to a new terminal state.
func (t *Task) Call(fn value.Value, args ...value.Value) (value.Value, error) {
	prev := t.resumeForReentry()
	line := 0
	if t.frame != nil {
		line = t.frame.Line
	}
	// Copy: the frame keeps (and, on Halt, recycles) its argument slice,
	// which must never be backing storage the host still owns.
	result, ok := t.dispatchCall(fn, append([]value.Value(nil), args...), line)
	t.restoreAfterReentry(prev)
	if !ok {
		return value.NilVal, t.Err()
	}
	return result, nil
}

// resumeForReentry flips a non-Running Task to Running so a reentrant
// call's nested loop (which, like Resume's own, only drives while
// Running) can actually execute, and reports the state to restore
// afterward if nothing else changes it.
func (t *Task) resumeForReentry() State {
	prev := t.state
	if prev != StateRunning {
		t.state = StateRunning
	}
	return prev
}

// restoreAfterReentry undoes resumeForReentry's temporary flip, but only
// if the reentrant call left the state exactly as it found it (Running):
// an Error produced by the call itself is the real outcome and stands,
// not papered back over to whatever the Task was doing before. A callee
// Halt that empties the frame stack does not count as such an outcome:
// runScriptCall and ProtectedCall hand its value back and put the state
// back to Running (or the prior state) themselves.
func (t *Task) restoreAfterReentry(prev State) {
	if prev != StateRunning && t.state == StateRunning {
		t.state = prev
	}
}

// ProtectedCall invokes fn (spec §6 "Native callback control transfer"
// calling back into the script, and direct host use on a callback value
// read out of a global): a script function's failure is caught and
// handed back as an error, leaving the Task able to keep running,
// instead of leaving it in a terminal State Error the way an uncaught
// script error does. Only *Function values are accepted — calling a
// table's __call chain through this entry point isn't supported; host
// callers hold function values, not arbitrary callables.
func (t *Task) ProtectedCall(fn value.Value, args []value.Value) (value.Value, error) {
	v, ok := fn.(*value.Function)
	if !ok {
		return value.NilVal, fmt.Errorf("unable to call '%s'", fn.Kind())
	}
	if v.IsNative() {
		return t.callNativeSafe(v, args)
	}

	// Like Call, this needs State Running to drive its nested loop at
	// all, but — per this method's own "direct host use" case — may be
	// invoked when the Task is Ended, New, or Yielded instead.
	prev := t.resumeForReentry()

	line := 0
	if t.frame != nil {
		line = t.frame.Line
	}
	oldFrame := t.frame
	oldResult := t.Result
	// Same copy rationale as Call: the frame's argument slice gets
	// recycled on Halt.
	if !t.pushScriptFrame(v, append([]value.Value(nil), args...), true, line) {
		err := t.Err()
		t.state = prev
		t.msg = ""
		return value.NilVal, err
	}

	for t.state == StateRunning && t.frame != oldFrame {
		t.step()
		if t.state == StateError {
			msg := t.msg
			t.unwind()
			t.msg = ""
			trace := t.trace
			t.trace = nil
			t.restoreAfterReentry(prev)
			return value.NilVal, &RuntimeError{Message: msg, StackTrace: trace}
		}
	}
	if oldFrame == nil && t.state == StateEnded {
		// Same case as in runScriptCall: the callee's Halt emptied the
		// frame stack and left its value in Result.
		result := t.Result
		t.Result = oldResult
		t.state = prev
		return result, nil
	}
	// The loop only exits without having returned above when the call's
	// own frame has unwound back to oldFrame (success) or when something
	// else (a nested Pause, say) moved the state away from Running before
	// that happened — anything other than frame==oldFrame here is that
	// latter, unsupported case.
	if t.frame != oldFrame {
		err := fmt.Errorf("task is not running (state %s)", t.state)
		t.restoreAfterReentry(prev)
		return value.NilVal, err
	}
	result := t.pop()
	t.restoreAfterReentry(prev)
	return result, nil
}
