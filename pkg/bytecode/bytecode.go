// Package bytecode defines tug's linear instruction encoding and the
// growable byte buffer the compiler emits into and the VM steps through.
//
// Encoding (see spec §4.3): opcodes are one byte; numbers are raw 8-byte
// IEEE-754 (little-endian, via encoding/binary); addresses and counts are
// native machine words, here fixed at 8 bytes for a stable on-disk-shaped
// layout regardless of GOARCH; strings are NUL-terminated byte runs.
// Jumps store absolute byte addresses into the same Chunk; forward jumps
// are back-patched once their target is known.
//
// A function literal's body is compiled into its own Chunk and spliced
// into the enclosing chunk as a length-prefixed blob by OpFuncDef, never
// by concatenating instruction streams — this keeps each function's
// addresses self-relative.
package bytecode

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Op is a single-byte opcode.
type Op byte

const (
	OpNum Op = iota
	OpStr
	OpTrue
	OpFalse
	OpNil
	OpTable
	OpList
	OpTuple

	OpLoadVar
	OpStore

	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpGt
	OpLt
	OpGe
	OpLe
	OpEq
	OpNe

	OpPos
	OpNeg
	OpNot

	OpPop

	OpJump
	OpJumpIfTrue
	OpJumpIfFalse

	OpPushClosure
	OpPopClosure
	OpScopePopJump

	OpFuncDef
	OpCall
	OpHalt

	OpGetIndex
	OpSetIndex

	OpIter
	OpNext

	OpMultiAssign
)

var opNames = map[Op]string{
	OpNum: "Num", OpStr: "Str", OpTrue: "True", OpFalse: "False", OpNil: "Nil",
	OpTable: "Table", OpList: "List", OpTuple: "Tuple",
	OpLoadVar: "LoadVar", OpStore: "Store",
	OpAdd: "Add", OpSub: "Sub", OpMul: "Mul", OpDiv: "Div", OpMod: "Mod",
	OpGt: "Gt", OpLt: "Lt", OpGe: "Ge", OpLe: "Le", OpEq: "Eq", OpNe: "Ne",
	OpPos: "Pos", OpNeg: "Neg", OpNot: "Not",
	OpPop:          "Pop",
	OpJump:         "Jump",
	OpJumpIfTrue:   "JumpIfTrue",
	OpJumpIfFalse:  "JumpIfFalse",
	OpPushClosure:  "PushClosure",
	OpPopClosure:   "PopClosure",
	OpScopePopJump: "ScopePopJump",
	OpFuncDef:      "FuncDef",
	OpCall:         "Call",
	OpHalt:         "Halt",
	OpGetIndex:     "GetIndex",
	OpSetIndex:     "SetIndex",
	OpIter:         "Iter",
	OpNext:         "Next",
	OpMultiAssign:  "MultiAssign",
}

func (o Op) String() string {
	if n, ok := opNames[o]; ok {
		return n
	}
	return fmt.Sprintf("Op(%d)", o)
}

// wordSize is the encoded width of addresses and counts: fixed regardless
// of host GOARCH so chunks are portable between processes.
const wordSize = 8

// Chunk is a growable byte buffer of emitted instructions, built up by
// the compiler and walked by the VM's instruction pointer.
type Chunk struct {
	Code []byte
}

// NewChunk returns an empty Chunk ready for emission.
func NewChunk() *Chunk { return &Chunk{} }

// Len returns the current size of the code buffer, i.e. the address the
// next emitted byte will land at.
func (c *Chunk) Len() int { return len(c.Code) }

func (c *Chunk) WriteByte(b byte) int {
	pos := len(c.Code)
	c.Code = append(c.Code, b)
	return pos
}

// WriteOp appends a single opcode byte and returns its address.
func (c *Chunk) WriteOp(op Op) int { return c.WriteByte(byte(op)) }

// WriteWord appends a native-word-sized (8 byte) little-endian count or
// address.
func (c *Chunk) WriteWord(v int) int {
	pos := len(c.Code)
	var buf [wordSize]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(v))
	c.Code = append(c.Code, buf[:]...)
	return pos
}

// WriteFloat64 appends a raw IEEE-754 double.
func (c *Chunk) WriteFloat64(f float64) int {
	pos := len(c.Code)
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(f))
	c.Code = append(c.Code, buf[:]...)
	return pos
}

// WriteCString appends s followed by a NUL terminator.
func (c *Chunk) WriteCString(s string) int {
	pos := len(c.Code)
	c.Code = append(c.Code, s...)
	c.Code = append(c.Code, 0)
	return pos
}

// WriteBytes appends raw bytes (used to splice a nested function's
// compiled Chunk into its enclosing one).
func (c *Chunk) WriteBytes(b []byte) int {
	pos := len(c.Code)
	c.Code = append(c.Code, b...)
	return pos
}

// PatchWord overwrites the 8-byte word at pos, used for back-patching a
// forward jump or loop address once its target is known.
func (c *Chunk) PatchWord(pos int, v int) {
	binary.LittleEndian.PutUint64(c.Code[pos:pos+wordSize], uint64(v))
}

// Reader is a cursor over a Chunk's code, used by the VM's fetch step and
// by the disassembler.
type Reader struct {
	Code []byte
	IP   int
}

// NewReader returns a Reader positioned at the start of code.
func NewReader(code []byte) *Reader { return &Reader{Code: code} }

func (r *Reader) AtEnd() bool { return r.IP >= len(r.Code) }

func (r *Reader) ReadOp() Op {
	op := Op(r.Code[r.IP])
	r.IP++
	return op
}

func (r *Reader) ReadByte() byte {
	b := r.Code[r.IP]
	r.IP++
	return b
}

func (r *Reader) ReadWord() int {
	v := binary.LittleEndian.Uint64(r.Code[r.IP : r.IP+wordSize])
	r.IP += wordSize
	return int(v)
}

func (r *Reader) ReadFloat64() float64 {
	bits := binary.LittleEndian.Uint64(r.Code[r.IP : r.IP+8])
	r.IP += 8
	return math.Float64frombits(bits)
}

// ReadCString reads a NUL-terminated string starting at IP.
func (r *Reader) ReadCString() string {
	start := r.IP
	for r.Code[r.IP] != 0 {
		r.IP++
	}
	s := string(r.Code[start:r.IP])
	r.IP++ // skip NUL
	return s
}

// ReadBytes reads n raw bytes (used to pull a nested function body out of
// its enclosing chunk).
func (r *Reader) ReadBytes(n int) []byte {
	b := r.Code[r.IP : r.IP+n]
	r.IP += n
	return b
}

// Disassemble renders code as a human-readable listing, one instruction
// per line, in the form "addr: Mnemonic operands". Intended for
// diagnostics only; never on the hot execution path.
func Disassemble(code []byte) string {
	r := NewReader(code)
	var out []byte
	for !r.AtEnd() {
		addr := r.IP
		op := r.ReadOp()
		line := fmt.Sprintf("%04d: %s", addr, op)
		switch op {
		case OpNum:
			line += fmt.Sprintf(" %g", r.ReadFloat64())
		case OpStr:
			line += fmt.Sprintf(" %q", r.ReadCString())
		case OpList, OpTuple, OpPop:
			line += fmt.Sprintf(" %d", r.ReadWord())
		case OpCall:
			argc := r.ReadWord()
			srcLine := r.ReadWord()
			line += fmt.Sprintf(" argc=%d line=%d", argc, srcLine)
		case OpLoadVar:
			line += " " + r.ReadCString()
		case OpStore:
			local := r.ReadByte()
			count := r.ReadWord()
			for i := 0; i < count; i++ {
				line += " " + r.ReadCString()
			}
			line += fmt.Sprintf(" local=%d", local)
		case OpAdd, OpSub, OpMul, OpDiv, OpMod, OpGt, OpLt, OpGe, OpLe, OpPos, OpNeg:
			line += fmt.Sprintf(" line=%d", r.ReadWord())
		case OpJump:
			line += fmt.Sprintf(" -> %d", r.ReadWord())
		case OpJumpIfTrue, OpJumpIfFalse:
			addrArg := r.ReadWord()
			pushBack := r.ReadByte()
			line += fmt.Sprintf(" -> %d pushBack=%d", addrArg, pushBack)
		case OpScopePopJump:
			depth := r.ReadWord()
			target := r.ReadWord()
			line += fmt.Sprintf(" depth=%d -> %d", depth, target)
		case OpFuncDef:
			srcLine := r.ReadWord()
			nameCount := r.ReadWord()
			for i := 0; i < nameCount; i++ {
				line += " " + r.ReadCString()
			}
			paramCount := r.ReadWord()
			for i := 0; i < paramCount; i++ {
				line += " " + r.ReadCString()
			}
			bodySize := r.ReadWord()
			r.ReadBytes(bodySize)
			line += fmt.Sprintf(" line=%d params=%d bodySize=%d", srcLine, paramCount, bodySize)
		case OpGetIndex:
			line += fmt.Sprintf(" line=%d", r.ReadWord())
		case OpSetIndex:
			srcLine := r.ReadWord()
			pushBack := r.ReadByte()
			line += fmt.Sprintf(" line=%d pushBack=%d", srcLine, pushBack)
		case OpIter:
			line += fmt.Sprintf(" line=%d", r.ReadWord())
		case OpNext:
			srcLine := r.ReadWord()
			nameCount := r.ReadWord()
			for i := 0; i < nameCount; i++ {
				line += " " + r.ReadCString()
			}
			line += fmt.Sprintf(" line=%d -> %d", srcLine, r.ReadWord())
		case OpMultiAssign:
			srcLine := r.ReadWord()
			local := r.ReadByte()
			valueCount := r.ReadWord()
			targetCount := r.ReadWord()
			for i := 0; i < targetCount; i++ {
				kind := r.ReadByte()
				if kind == 1 {
					r.ReadCString()
				}
			}
			line += fmt.Sprintf(" line=%d local=%d values=%d targets=%d", srcLine, local, valueCount, targetCount)
		}
		out = append(out, line...)
		out = append(out, '\n')
	}
	return string(out)
}
