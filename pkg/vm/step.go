// step.go implements Task.step, the VM's single-opcode fetch-decode-
// execute cycle (spec §4.5). Resume calls it in a tight loop;
// runScriptCall and ProtectedCall (call.go) also drive it directly to run
// a called function's frame (a hook's, say, from the middle of another
// opcode's handler) to completion.
//
// Every opcode handler reads its own operands from the Reader, mutates
// the task's operand stack/scope/frame as spec §4.3's encoding dictates,
// and either falls through to the bottom (which commits the advanced IP)
// or returns early after a jump/call/halt has already repositioned the
// frame. The opcode byte itself is committed before the handler runs, so
// a handler that calls Task.Fail leaves the IP just past the opcode (or
// past whatever operands it committed); that frame is never resumed, and
// unwind truncates the stacks back to each frame's entry depth.
package vm

import (
	"github.com/huywallz/tug/pkg/bytecode"
	"github.com/huywallz/tug/pkg/value"
)

// step executes exactly one opcode from the current frame. It is only
// ever called at an instruction boundary, which is also the only point
// the GC is allowed to run (spec §4.4 Hard contract).
func (t *Task) step() {
	t.collectIfDue()

	if t.frame == nil {
		t.state = StateEnded
		return
	}

	r := t.reader()
	op := r.ReadOp()
	t.frame.IP = r.IP // commit the opcode byte itself before any operand-dependent Fail

	switch op {
	case bytecode.OpNum:
		t.push(t.gc.NewNumber(r.ReadFloat64()))

	case bytecode.OpStr:
		t.push(t.gc.NewStr([]byte(r.ReadCString())))

	case bytecode.OpTrue:
		t.push(value.TrueVal)

	case bytecode.OpFalse:
		t.push(value.FalseVal)

	case bytecode.OpNil:
		t.push(value.NilVal)

	case bytecode.OpTable:
		t.push(t.alloc(value.NewTable()))

	case bytecode.OpList:
		n := r.ReadWord()
		items := make([]value.Value, n)
		for i := n - 1; i >= 0; i-- {
			items[i] = t.pop()
		}
		t.push(t.alloc(value.NewList(items)))

	case bytecode.OpTuple:
		n := r.ReadWord()
		items := make([]value.Value, n)
		for i := n - 1; i >= 0; i-- {
			items[i] = t.popRaw()
		}
		t.push(t.alloc(value.NewTuple(items)))

	case bytecode.OpLoadVar:
		name := r.ReadCString()
		v, ok := t.scope.Lookup(name)
		if !ok {
			v = value.NilVal
		}
		t.push(v)

	case bytecode.OpStore:
		local := r.ReadByte()
		count := r.ReadWord()
		names := make([]string, count)
		for i := 0; i < count; i++ {
			names[i] = r.ReadCString()
		}
		v := t.pop()
		for _, name := range names {
			if local == 1 {
				t.scope.Declare(name, v)
			} else {
				t.scope.Rebind(name, v)
			}
		}

	case bytecode.OpAdd, bytecode.OpSub, bytecode.OpMul, bytecode.OpDiv, bytecode.OpMod,
		bytecode.OpGt, bytecode.OpLt, bytecode.OpGe, bytecode.OpLe:
		line := r.ReadWord()
		t.commit(r)
		t.binaryArith(op, line)
		return

	case bytecode.OpEq:
		t.commit(r)
		t.equality(false)
		return

	case bytecode.OpNe:
		t.commit(r)
		t.equality(true)
		return

	case bytecode.OpPos, bytecode.OpNeg:
		line := r.ReadWord()
		t.commit(r)
		t.unaryArith(op, line)
		return

	case bytecode.OpNot:
		t.commit(r)
		v := t.pop()
		t.push(value.Bool(!t.truthyOf(v, 0)))
		return

	case bytecode.OpPop:
		n := r.ReadWord()
		for i := 0; i < n; i++ {
			t.pop()
		}

	case bytecode.OpJump:
		target := r.ReadWord()
		t.frame.IP = target
		return

	case bytecode.OpJumpIfTrue:
		target := r.ReadWord()
		pushBack := r.ReadByte()
		v := t.popRaw()
		truthy := t.truthyOf(v, 0)
		if pushBack == 1 && truthy {
			t.push(v)
		}
		if truthy {
			t.frame.IP = target
			return
		}

	case bytecode.OpJumpIfFalse:
		target := r.ReadWord()
		pushBack := r.ReadByte()
		v := t.popRaw()
		truthy := t.truthyOf(v, 0)
		if pushBack == 1 && !truthy {
			t.push(v)
		}
		if !truthy {
			t.frame.IP = target
			return
		}

	case bytecode.OpPushClosure:
		t.scope = t.gc.NewScope(t.scope)

	case bytecode.OpPopClosure:
		if t.scope.Outer != nil {
			t.scope = t.scope.Outer
		}

	case bytecode.OpScopePopJump:
		n := r.ReadWord()
		target := r.ReadWord()
		for i := 0; i < n; i++ {
			if t.scope.Outer != nil {
				t.scope = t.scope.Outer
			}
		}
		t.frame.IP = target
		return

	case bytecode.OpFuncDef:
		line := r.ReadWord()
		nameCount := r.ReadWord()
		names := make([]string, nameCount)
		for i := 0; i < nameCount; i++ {
			names[i] = r.ReadCString()
		}
		paramCount := r.ReadWord()
		params := make([]string, paramCount)
		for i := 0; i < paramCount; i++ {
			params[i] = r.ReadCString()
		}
		bodySize := r.ReadWord()
		body := r.ReadBytes(bodySize)
		t.commit(r)
		t.execFuncDef(line, names, params, body)
		return

	case bytecode.OpCall:
		argc := r.ReadWord()
		line := r.ReadWord()
		t.commit(r)
		t.execCall(argc, line)
		return

	case bytecode.OpHalt:
		t.commit(r)
		t.execHalt()
		return

	case bytecode.OpGetIndex:
		line := r.ReadWord()
		t.commit(r)
		key := t.pop()
		recv := t.pop()
		result, ok := t.getIndexValue(recv, key, line)
		if !ok {
			return
		}
		t.push(result)
		return

	case bytecode.OpSetIndex:
		line := r.ReadWord()
		pushBack := r.ReadByte()
		t.commit(r)
		val := t.pop()
		key := t.pop()
		recv := t.pop()
		if !t.setIndexValue(recv, key, val, line) {
			return
		}
		if pushBack == 1 {
			t.push(recv)
		}
		return

	case bytecode.OpIter:
		line := r.ReadWord()
		t.commit(r)
		v := t.pop()
		it := t.makeIterator(v, line)
		if it == nil {
			return
		}
		t.push(it)
		return

	case bytecode.OpNext:
		line := r.ReadWord()
		nameCount := r.ReadWord()
		names := make([]string, nameCount)
		for i := 0; i < nameCount; i++ {
			names[i] = r.ReadCString()
		}
		exitAddr := r.ReadWord()
		t.commit(r)
		t.execNext(names, exitAddr, line)
		return

	case bytecode.OpMultiAssign:
		line := r.ReadWord()
		local := r.ReadByte()
		valueCount := r.ReadWord()
		targetCount := r.ReadWord()
		kinds := make([]byte, targetCount)
		names := make([]string, targetCount)
		for i := 0; i < targetCount; i++ {
			kinds[i] = r.ReadByte()
			if kinds[i] == 1 {
				names[i] = r.ReadCString()
			}
		}
		t.commit(r)
		t.execMultiAssign(local, valueCount, targetCount, kinds, names, line)
		return

	default:
		t.Fail("illegal opcode %v", op)
		return
	}

	t.commit(r)
}
