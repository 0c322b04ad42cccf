package compiler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/huywallz/tug/pkg/bytecode"
	"github.com/huywallz/tug/pkg/parser"
)

func mustCompile(t *testing.T, src string) *bytecode.Chunk {
	t.Helper()
	prog, err := parser.Parse(src)
	require.NoError(t, err)
	chunk, err := Compile(prog)
	require.NoError(t, err)
	return chunk
}

func TestCompileArithmeticEndsInHalt(t *testing.T) {
	chunk := mustCompile(t, "x := 1 + 2 * 3\nreturn x")
	require.NotEmpty(t, chunk.Code)

	r := bytecode.NewReader(chunk.Code)
	require.Equal(t, bytecode.OpNum, r.ReadOp())
	require.Equal(t, 1.0, r.ReadFloat64())
	require.Equal(t, bytecode.OpNum, r.ReadOp())
	require.Equal(t, 2.0, r.ReadFloat64())
	require.Equal(t, bytecode.OpNum, r.ReadOp())
	require.Equal(t, 3.0, r.ReadFloat64())
	require.Equal(t, bytecode.OpMul, r.ReadOp())
	r.ReadWord() // line
	require.Equal(t, bytecode.OpAdd, r.ReadOp())
	r.ReadWord() // line

	disasm := bytecode.Disassemble(chunk.Code)
	require.Contains(t, disasm, "MultiAssign")
	require.Contains(t, disasm, "Halt")
}

func TestCompileIfElseBranchesPatchForward(t *testing.T) {
	chunk := mustCompile(t, "if true then return 1 else return 2 end")
	disasm := bytecode.Disassemble(chunk.Code)
	require.Contains(t, disasm, "JumpIfFalse")
	require.Contains(t, disasm, "PushClosure")
	require.Contains(t, disasm, "PopClosure")
}

func TestCompileWhileLoopBreakContinue(t *testing.T) {
	chunk := mustCompile(t, `
i := 0
while i < 10 do
	i = i + 1
	if i == 5 then
		break
	end
	continue
end
return i
`)
	disasm := bytecode.Disassemble(chunk.Code)
	require.Contains(t, disasm, "ScopePopJump")
}

func TestCompileForLoopEmitsIterNext(t *testing.T) {
	chunk := mustCompile(t, "sum := 0\nfor i in [1, 2, 3] do\n\tsum = sum + i\nend\nreturn sum")
	disasm := bytecode.Disassemble(chunk.Code)
	require.Contains(t, disasm, "Iter")
	require.Contains(t, disasm, "Next")
}

func TestCompileFuncDeclSimpleNameStoresLocal(t *testing.T) {
	chunk := mustCompile(t, "func double(x)\n\treturn x * 2\nend\nreturn double(21)")
	disasm := bytecode.Disassemble(chunk.Code)
	require.Contains(t, disasm, "FuncDef")
	require.Contains(t, disasm, "Store")
	require.Contains(t, disasm, "Call")
}

func TestCompileTableLiteralUsesSetIndexChain(t *testing.T) {
	chunk := mustCompile(t, `t := {a = 1, [2] = "two", 9}
return t`)
	disasm := bytecode.Disassemble(chunk.Code)
	require.Contains(t, disasm, "Table")
	require.Contains(t, disasm, "SetIndex")
}

func TestCompileBreakOutsideLoopIsCompileError(t *testing.T) {
	prog, err := parser.Parse("break")
	if err != nil {
		// the parser itself already rejects this; either stage failing
		// the same way satisfies this test's intent.
		require.Error(t, err)
		return
	}
	_, err = Compile(prog)
	require.Error(t, err)
}
