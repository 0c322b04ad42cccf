package bytecode

import "testing"

func TestChunkEmitAndReadBack(t *testing.T) {
	c := NewChunk()
	c.WriteOp(OpNum)
	c.WriteFloat64(3.5)
	c.WriteOp(OpStr)
	c.WriteCString("hello")
	c.WriteOp(OpHalt)

	r := NewReader(c.Code)
	if op := r.ReadOp(); op != OpNum {
		t.Fatalf("want OpNum, got %s", op)
	}
	if f := r.ReadFloat64(); f != 3.5 {
		t.Fatalf("want 3.5, got %v", f)
	}
	if op := r.ReadOp(); op != OpStr {
		t.Fatalf("want OpStr, got %s", op)
	}
	if s := r.ReadCString(); s != "hello" {
		t.Fatalf("want hello, got %q", s)
	}
	if op := r.ReadOp(); op != OpHalt {
		t.Fatalf("want OpHalt, got %s", op)
	}
	if !r.AtEnd() {
		t.Fatalf("expected reader to be at end")
	}
}

func TestChunkBackpatch(t *testing.T) {
	c := NewChunk()
	c.WriteOp(OpJump)
	pos := c.WriteWord(0)
	target := c.Len()
	c.WriteOp(OpHalt)
	c.PatchWord(pos, target)

	r := NewReader(c.Code)
	r.ReadOp()
	if addr := r.ReadWord(); addr != target {
		t.Fatalf("want patched addr %d, got %d", target, addr)
	}
}

func TestDisassembleDoesNotPanic(t *testing.T) {
	c := NewChunk()
	c.WriteOp(OpTrue)
	c.WriteOp(OpJumpIfFalse)
	c.WriteWord(0)
	c.WriteByte(1)
	c.WriteOp(OpPop)
	c.WriteWord(1)
	c.WriteOp(OpHalt)

	out := Disassemble(c.Code)
	if out == "" {
		t.Fatalf("expected non-empty disassembly")
	}
}

func TestOpString(t *testing.T) {
	if OpAdd.String() != "Add" {
		t.Fatalf("want Add, got %s", OpAdd)
	}
}
