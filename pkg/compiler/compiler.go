// Package compiler walks an *ast.Program once and emits tug's linear
// bytecode (spec §4.3), grounded directly on original_source/tug.c's
// compile()/compile_node()/compile_block() for opcode operand order and
// on the teacher's pkg/compiler for naming and error-reporting style.
//
// A Compiler instance is single-use: it owns one growable bytecode.Chunk
// and the loop-context stack needed to back-patch break/continue. Nested
// function bodies (FuncLit, FuncDeclStmt) are compiled with a fresh
// Compiler into their own Chunk and spliced into the parent as a
// length-prefixed blob — this keeps every function's jump addresses
// self-relative, never depending on where the enclosing chunk happened
// to place it.
package compiler

import (
	"fmt"

	"github.com/huywallz/tug/pkg/ast"
	"github.com/huywallz/tug/pkg/bytecode"
)

// CompileError wraps a compiler-stage failure with the offending source
// line, mirroring parser.ParseError's shape.
type CompileError struct {
	Line    int
	Message string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("%d: %s", e.Line, e.Message)
}

// loopCtx is pushed on entry to a while/for loop and popped on exit. It
// records the scope depth just before the loop's own closure was pushed
// (so break knows to pop that closure too — its jump target lies past
// the loop's PopClosure — while continue pops one fewer and keeps it)
// and the loop's start address (continue's jump target). breakPatches
// collects the addresses of each break's placeholder jump target,
// back-patched once the loop's exit address is known.
type loopCtx struct {
	depthAtEntry int
	start        int
	breakPatches []int
}

// Compiler emits one function body (top-level program or nested
// function literal) into a single Chunk.
type Compiler struct {
	chunk *bytecode.Chunk
	loops []loopCtx
	depth int // static scope-nesting depth, mirrors tug.c's global `depth`
}

// New returns a Compiler ready to emit into a fresh Chunk.
func New() *Compiler {
	return &Compiler{chunk: bytecode.NewChunk()}
}

// Compile compiles a whole program into a Chunk whose code ends with an
// implicit `return nil`, so a task whose outermost frame runs off the
// end of the script halts cleanly instead of reading past the buffer.
func Compile(prog *ast.Program) (*bytecode.Chunk, error) {
	c := New()
	if err := c.compileBlock(prog.Statements); err != nil {
		return nil, err
	}
	c.chunk.WriteOp(bytecode.OpNil)
	c.chunk.WriteOp(bytecode.OpHalt)
	return c.chunk, nil
}

func (c *Compiler) emitClosure(push bool) {
	if push {
		c.depth++
		c.chunk.WriteOp(bytecode.OpPushClosure)
	} else {
		c.depth--
		c.chunk.WriteOp(bytecode.OpPopClosure)
	}
}

func (c *Compiler) compileBlock(stmts []ast.Stmt) error {
	for _, s := range stmts {
		if err := c.compileStmt(s); err != nil {
			return err
		}
		if _, ok := s.(*ast.ExprStmt); ok {
			c.chunk.WriteOp(bytecode.OpPop)
			c.chunk.WriteWord(1)
		}
	}
	return nil
}

func (c *Compiler) compileStmt(s ast.Stmt) error {
	switch n := s.(type) {
	case *ast.ExprStmt:
		return c.compileExpr(n.X)

	case *ast.AssignStmt:
		return c.compileAssign(n)

	case *ast.IfStmt:
		return c.compileIf(n)

	case *ast.WhileStmt:
		return c.compileWhile(n)

	case *ast.ForStmt:
		return c.compileFor(n)

	case *ast.FuncDeclStmt:
		return c.compileFuncDecl(n)

	case *ast.ReturnStmt:
		return c.compileReturn(n)

	case *ast.BreakStmt:
		if len(c.loops) == 0 {
			return &CompileError{Line: n.Line(), Message: "'break' outside loop"}
		}
		loop := &c.loops[len(c.loops)-1]
		c.chunk.WriteOp(bytecode.OpScopePopJump)
		c.chunk.WriteWord(c.depth - loop.depthAtEntry)
		loop.breakPatches = append(loop.breakPatches, c.chunk.WriteWord(0))
		return nil

	case *ast.ContinueStmt:
		if len(c.loops) == 0 {
			return &CompileError{Line: n.Line(), Message: "'continue' outside loop"}
		}
		loop := &c.loops[len(c.loops)-1]
		c.chunk.WriteOp(bytecode.OpScopePopJump)
		c.chunk.WriteWord(c.depth - loop.depthAtEntry - 1)
		c.chunk.WriteWord(loop.start)
		return nil

	default:
		return &CompileError{Line: s.Line(), Message: fmt.Sprintf("unsupported statement %T", s)}
	}
}

func (c *Compiler) compileIf(n *ast.IfStmt) error {
	var exitPatches []int

	for _, clause := range n.Clauses {
		if err := c.compileExpr(clause.Cond); err != nil {
			return err
		}
		c.chunk.WriteOp(bytecode.OpJumpIfFalse)
		falsePos := c.chunk.WriteWord(0)
		c.chunk.WriteByte(0)

		c.emitClosure(true)
		if err := c.compileBlock(clause.Body); err != nil {
			return err
		}
		c.emitClosure(false)

		c.chunk.WriteOp(bytecode.OpJump)
		exitPatches = append(exitPatches, c.chunk.WriteWord(0))
		c.chunk.PatchWord(falsePos, c.chunk.Len())
	}

	if n.Else != nil {
		c.emitClosure(true)
		if err := c.compileBlock(n.Else); err != nil {
			return err
		}
		c.emitClosure(false)
	}

	end := c.chunk.Len()
	for _, pos := range exitPatches {
		c.chunk.PatchWord(pos, end)
	}
	return nil
}

// compileWhile wraps the whole loop in a single closure scope: bindings
// declared in the body persist across iterations. The condition-false
// exit jumps to the PopClosure; break jumps past it, having popped the
// loop scope itself along with any block scopes open at the break site.
func (c *Compiler) compileWhile(n *ast.WhileStmt) error {
	c.emitClosure(true)
	start := c.chunk.Len()
	c.loops = append(c.loops, loopCtx{depthAtEntry: c.depth - 1, start: start})

	if err := c.compileExpr(n.Cond); err != nil {
		return err
	}
	c.chunk.WriteOp(bytecode.OpJumpIfFalse)
	exitPos := c.chunk.WriteWord(0)
	c.chunk.WriteByte(0)

	if err := c.compileBlock(n.Body); err != nil {
		return err
	}

	c.chunk.WriteOp(bytecode.OpJump)
	c.chunk.WriteWord(start)
	c.chunk.PatchWord(exitPos, c.chunk.Len())
	c.emitClosure(false)

	c.patchBreaks()
	return nil
}

// compileFor mirrors compileWhile's single-scope shape around the
// Iter/Next pair: Next's exhaustion exit (which has already popped the
// iterator) lands on the PopClosure, while break jumps past it — the
// iterator a break abandons stays on the operand stack until the frame
// unwinds, matching the exit arithmetic this loop's ScopePopJump uses.
func (c *Compiler) compileFor(n *ast.ForStmt) error {
	c.emitClosure(true)

	if err := c.compileExpr(n.Iter); err != nil {
		return err
	}
	c.chunk.WriteOp(bytecode.OpIter)
	c.chunk.WriteWord(n.Line())

	start := c.chunk.Len()
	c.loops = append(c.loops, loopCtx{depthAtEntry: c.depth - 1, start: start})

	c.chunk.WriteOp(bytecode.OpNext)
	c.chunk.WriteWord(n.Line())
	c.chunk.WriteWord(len(n.Names))
	for _, name := range n.Names {
		c.chunk.WriteCString(name)
	}
	exitPos := c.chunk.WriteWord(0)

	if err := c.compileBlock(n.Body); err != nil {
		return err
	}

	c.chunk.WriteOp(bytecode.OpJump)
	c.chunk.WriteWord(start)
	c.chunk.PatchWord(exitPos, c.chunk.Len())
	c.emitClosure(false)

	c.patchBreaks()
	return nil
}

// patchBreaks resolves every break's placeholder jump target, recorded in
// the innermost loopCtx, to the address immediately following the loop,
// then pops that context.
func (c *Compiler) patchBreaks() {
	loop := c.loops[len(c.loops)-1]
	end := c.chunk.Len()
	for _, pos := range loop.breakPatches {
		c.chunk.PatchWord(pos, end)
	}
	c.loops = c.loops[:len(c.loops)-1]
}

// compileFuncBody compiles params/body into a fresh nested Chunk whose
// final instruction is an implicit `return nil`, matching a function
// that runs off its own end without an explicit return statement.
func compileFuncBody(body []ast.Stmt) ([]byte, error) {
	nested := New()
	if err := nested.compileBlock(body); err != nil {
		return nil, err
	}
	nested.chunk.WriteOp(bytecode.OpNil)
	nested.chunk.WriteOp(bytecode.OpHalt)
	return nested.chunk.Code, nil
}

func (c *Compiler) emitFuncDef(line int, names, params []string, body []ast.Stmt) error {
	bodyBytes, err := compileFuncBody(body)
	if err != nil {
		return err
	}
	c.chunk.WriteOp(bytecode.OpFuncDef)
	c.chunk.WriteWord(line)
	c.chunk.WriteWord(len(names))
	for _, name := range names {
		c.chunk.WriteCString(name)
	}
	c.chunk.WriteWord(len(params))
	for _, p := range params {
		c.chunk.WriteCString(p)
	}
	c.chunk.WriteWord(len(bodyBytes))
	c.chunk.WriteBytes(bodyBytes)
	return nil
}

func (c *Compiler) compileFuncDecl(n *ast.FuncDeclStmt) error {
	if err := c.emitFuncDef(n.Line(), n.Path, n.Params, n.Body); err != nil {
		return err
	}
	if len(n.Path) == 1 {
		c.chunk.WriteOp(bytecode.OpStore)
		c.chunk.WriteByte(1)
		c.chunk.WriteWord(1)
		c.chunk.WriteCString(n.Path[0])
	}
	// len(Path) > 1: the VM resolves and assigns the dotted path itself
	// while executing OpFuncDef; nothing is left on the stack.
	return nil
}

func (c *Compiler) compileReturn(n *ast.ReturnStmt) error {
	switch len(n.Values) {
	case 0:
		c.chunk.WriteOp(bytecode.OpNil)
	case 1:
		if err := c.compileExpr(n.Values[0]); err != nil {
			return err
		}
	default:
		for _, v := range n.Values {
			if err := c.compileExpr(v); err != nil {
				return err
			}
		}
		c.chunk.WriteOp(bytecode.OpTuple)
		c.chunk.WriteWord(len(n.Values))
	}
	c.chunk.WriteOp(bytecode.OpHalt)
	return nil
}

func (c *Compiler) compileAssign(n *ast.AssignStmt) error {
	for _, t := range n.Targets {
		if t.Index != nil {
			if err := c.compileExpr(t.Index.Receiver); err != nil {
				return err
			}
			if err := c.compileExpr(t.Index.Index); err != nil {
				return err
			}
		}
	}
	for _, v := range n.Values {
		if err := c.compileExpr(v); err != nil {
			return err
		}
	}

	c.chunk.WriteOp(bytecode.OpMultiAssign)
	c.chunk.WriteWord(n.Line())
	if n.Declare {
		c.chunk.WriteByte(1)
	} else {
		c.chunk.WriteByte(0)
	}
	c.chunk.WriteWord(len(n.Values))
	c.chunk.WriteWord(len(n.Targets))
	for i := len(n.Targets) - 1; i >= 0; i-- {
		t := n.Targets[i]
		if t.Index == nil {
			c.chunk.WriteByte(1)
			c.chunk.WriteCString(t.Name)
		} else {
			c.chunk.WriteByte(0)
		}
	}
	return nil
}

var binOps = map[string]bytecode.Op{
	"+": bytecode.OpAdd, "-": bytecode.OpSub, "*": bytecode.OpMul,
	"/": bytecode.OpDiv, "%": bytecode.OpMod,
	">": bytecode.OpGt, "<": bytecode.OpLt, ">=": bytecode.OpGe, "<=": bytecode.OpLe,
	"==": bytecode.OpEq, "!=": bytecode.OpNe,
}

func (c *Compiler) compileExpr(e ast.Expr) error {
	switch n := e.(type) {
	case *ast.NumberLit:
		c.chunk.WriteOp(bytecode.OpNum)
		c.chunk.WriteFloat64(n.Value)

	case *ast.StringLit:
		c.chunk.WriteOp(bytecode.OpStr)
		c.chunk.WriteCString(string(n.Value))

	case *ast.BoolLit:
		if n.Value {
			c.chunk.WriteOp(bytecode.OpTrue)
		} else {
			c.chunk.WriteOp(bytecode.OpFalse)
		}

	case *ast.NilLit:
		c.chunk.WriteOp(bytecode.OpNil)

	case *ast.Identifier:
		c.chunk.WriteOp(bytecode.OpLoadVar)
		c.chunk.WriteCString(n.Name)

	case *ast.TableLit:
		c.chunk.WriteOp(bytecode.OpTable)
		for i, entry := range n.Entries {
			switch {
			case entry.Key != nil:
				if err := c.compileExpr(entry.Key); err != nil {
					return err
				}
			case entry.Name != "":
				c.chunk.WriteOp(bytecode.OpStr)
				c.chunk.WriteCString(entry.Name)
			default:
				c.chunk.WriteOp(bytecode.OpNum)
				c.chunk.WriteFloat64(float64(i))
			}
			if err := c.compileExpr(entry.Value); err != nil {
				return err
			}
			c.chunk.WriteOp(bytecode.OpSetIndex)
			c.chunk.WriteWord(0)
			c.chunk.WriteByte(1)
		}

	case *ast.ListLit:
		for _, el := range n.Elements {
			if err := c.compileExpr(el); err != nil {
				return err
			}
		}
		c.chunk.WriteOp(bytecode.OpList)
		c.chunk.WriteWord(len(n.Elements))

	case *ast.FuncLit:
		return c.emitFuncDef(n.Line(), nil, n.Params, n.Body)

	case *ast.UnaryExpr:
		if err := c.compileExpr(n.Operand); err != nil {
			return err
		}
		switch n.Op {
		case "+":
			c.chunk.WriteOp(bytecode.OpPos)
			c.chunk.WriteWord(n.Line())
		case "-":
			c.chunk.WriteOp(bytecode.OpNeg)
			c.chunk.WriteWord(n.Line())
		case "not":
			c.chunk.WriteOp(bytecode.OpNot)
		default:
			return &CompileError{Line: n.Line(), Message: fmt.Sprintf("unknown unary operator %q", n.Op)}
		}

	case *ast.BinaryExpr:
		if err := c.compileExpr(n.Left); err != nil {
			return err
		}
		if err := c.compileExpr(n.Right); err != nil {
			return err
		}
		op, ok := binOps[n.Op]
		if !ok {
			return &CompileError{Line: n.Line(), Message: fmt.Sprintf("unknown binary operator %q", n.Op)}
		}
		c.chunk.WriteOp(op)
		if op != bytecode.OpEq && op != bytecode.OpNe {
			c.chunk.WriteWord(n.Line())
		}

	case *ast.AndExpr:
		if err := c.compileExpr(n.Left); err != nil {
			return err
		}
		c.chunk.WriteOp(bytecode.OpJumpIfFalse)
		pos := c.chunk.WriteWord(0)
		c.chunk.WriteByte(1)
		c.chunk.WriteOp(bytecode.OpPop)
		c.chunk.WriteWord(1)
		if err := c.compileExpr(n.Right); err != nil {
			return err
		}
		c.chunk.PatchWord(pos, c.chunk.Len())

	case *ast.OrExpr:
		if err := c.compileExpr(n.Left); err != nil {
			return err
		}
		c.chunk.WriteOp(bytecode.OpJumpIfTrue)
		pos := c.chunk.WriteWord(0)
		c.chunk.WriteByte(1)
		c.chunk.WriteOp(bytecode.OpPop)
		c.chunk.WriteWord(1)
		if err := c.compileExpr(n.Right); err != nil {
			return err
		}
		c.chunk.PatchWord(pos, c.chunk.Len())

	case *ast.CallExpr:
		if err := c.compileExpr(n.Callee); err != nil {
			return err
		}
		for _, a := range n.Args {
			if err := c.compileExpr(a); err != nil {
				return err
			}
		}
		c.chunk.WriteOp(bytecode.OpCall)
		c.chunk.WriteWord(len(n.Args))
		c.chunk.WriteWord(n.Line())

	case *ast.IndexExpr:
		if err := c.compileExpr(n.Receiver); err != nil {
			return err
		}
		if err := c.compileExpr(n.Index); err != nil {
			return err
		}
		c.chunk.WriteOp(bytecode.OpGetIndex)
		c.chunk.WriteWord(n.Line())

	case *ast.FieldExpr:
		if err := c.compileExpr(n.Receiver); err != nil {
			return err
		}
		c.chunk.WriteOp(bytecode.OpStr)
		c.chunk.WriteCString(n.Name)
		c.chunk.WriteOp(bytecode.OpGetIndex)
		c.chunk.WriteWord(n.Line())

	default:
		return &CompileError{Line: e.Line(), Message: fmt.Sprintf("unsupported expression %T", e)}
	}
	return nil
}
