package parser

import (
	"testing"

	"github.com/huywallz/tug/pkg/ast"
)

func parseOk(t *testing.T, src string) *ast.Program {
	t.Helper()
	prog, err := Parse(src)
	if err != nil {
		t.Fatalf("unexpected parse error for %q: %v", src, err)
	}
	return prog
}

func TestParse_LiteralsAndAssign(t *testing.T) {
	prog := parseOk(t, `x := 1 + 2 * 3`)
	if len(prog.Statements) != 1 {
		t.Fatalf("expected 1 statement, got %d", len(prog.Statements))
	}
	assign, ok := prog.Statements[0].(*ast.AssignStmt)
	if !ok {
		t.Fatalf("expected *ast.AssignStmt, got %T", prog.Statements[0])
	}
	if !assign.Declare {
		t.Fatalf("expected a := declaration")
	}
	if len(assign.Targets) != 1 || assign.Targets[0].Name != "x" {
		t.Fatalf("expected single target 'x', got %+v", assign.Targets)
	}
}

func TestParse_PrecedenceAdditiveBeforeMultiplicative(t *testing.T) {
	// 1 + 2 * 3 must parse as 1 + (2 * 3): the top-level BinaryExpr is "+"
	// with a "*" on its right.
	prog := parseOk(t, `return 1 + 2 * 3`)
	ret := prog.Statements[0].(*ast.ReturnStmt)
	top, ok := ret.Values[0].(*ast.BinaryExpr)
	if !ok || top.Op != "+" {
		t.Fatalf("expected top-level '+' BinaryExpr, got %#v", ret.Values[0])
	}
	right, ok := top.Right.(*ast.BinaryExpr)
	if !ok || right.Op != "*" {
		t.Fatalf("expected right operand to be a '*' BinaryExpr, got %#v", top.Right)
	}
}

func TestParse_AndOrShortCircuitPrecedence(t *testing.T) {
	// "a or b and c" must parse as "a or (b and c)" — and binds tighter.
	prog := parseOk(t, `return a or b and c`)
	ret := prog.Statements[0].(*ast.ReturnStmt)
	or, ok := ret.Values[0].(*ast.OrExpr)
	if !ok {
		t.Fatalf("expected top-level OrExpr, got %#v", ret.Values[0])
	}
	if _, ok := or.Right.(*ast.AndExpr); !ok {
		t.Fatalf("expected right side of 'or' to be an AndExpr, got %#v", or.Right)
	}
}

func TestParse_TableLiteralKeyedNamedAndPositional(t *testing.T) {
	prog := parseOk(t, `t := { [1+1] = "a", name = "b", "c" }`)
	assign := prog.Statements[0].(*ast.AssignStmt)
	lit := assign.Values[0].(*ast.TableLit)
	if len(lit.Entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(lit.Entries))
	}
	if lit.Entries[0].Key == nil || lit.Entries[0].Name != "" {
		t.Fatalf("entry 0 should be a keyed entry: %+v", lit.Entries[0])
	}
	if lit.Entries[1].Name != "name" {
		t.Fatalf("entry 1 should be named 'name': %+v", lit.Entries[1])
	}
	if lit.Entries[2].Key != nil || lit.Entries[2].Name != "" {
		t.Fatalf("entry 2 should be positional: %+v", lit.Entries[2])
	}
}

func TestParse_ListLiteral(t *testing.T) {
	prog := parseOk(t, `l := [1, 2, 3]`)
	assign := prog.Statements[0].(*ast.AssignStmt)
	lit := assign.Values[0].(*ast.ListLit)
	if len(lit.Elements) != 3 {
		t.Fatalf("expected 3 elements, got %d", len(lit.Elements))
	}
}

func TestParse_FuncLitAndCallChain(t *testing.T) {
	prog := parseOk(t, `f := func(a, b) return a + b end return f(1, 2).x[0]`)
	assign := prog.Statements[0].(*ast.AssignStmt)
	lit := assign.Values[0].(*ast.FuncLit)
	if len(lit.Params) != 2 || lit.Params[0] != "a" || lit.Params[1] != "b" {
		t.Fatalf("unexpected params: %v", lit.Params)
	}

	ret := prog.Statements[1].(*ast.ReturnStmt)
	idx, ok := ret.Values[0].(*ast.IndexExpr)
	if !ok {
		t.Fatalf("expected outer IndexExpr from postfix chain, got %#v", ret.Values[0])
	}
	field, ok := idx.Receiver.(*ast.FieldExpr)
	if !ok || field.Name != "x" {
		t.Fatalf("expected FieldExpr 'x' beneath the index, got %#v", idx.Receiver)
	}
	if _, ok := field.Receiver.(*ast.CallExpr); !ok {
		t.Fatalf("expected CallExpr beneath the field access, got %#v", field.Receiver)
	}
}

func TestParse_MultiTargetMultiValueAssign(t *testing.T) {
	prog := parseOk(t, `a, b := 1, 2`)
	assign := prog.Statements[0].(*ast.AssignStmt)
	if len(assign.Targets) != 2 || len(assign.Values) != 2 {
		t.Fatalf("expected 2 targets and 2 values, got %d/%d", len(assign.Targets), len(assign.Values))
	}
}

func TestParse_IfElseifElse(t *testing.T) {
	prog := parseOk(t, `
if x then
	y := 1
elseif z then
	y := 2
else
	y := 3
end`)
	ifs := prog.Statements[0].(*ast.IfStmt)
	if len(ifs.Clauses) != 2 {
		t.Fatalf("expected if+elseif = 2 clauses, got %d", len(ifs.Clauses))
	}
	if ifs.Else == nil {
		t.Fatalf("expected an else block")
	}
}

func TestParse_ForLoopNames(t *testing.T) {
	prog := parseOk(t, `for k, v in t do end`)
	fs := prog.Statements[0].(*ast.ForStmt)
	if len(fs.Names) != 2 || fs.Names[0] != "k" || fs.Names[1] != "v" {
		t.Fatalf("unexpected loop names: %v", fs.Names)
	}
}

func TestParse_BreakContinueInsideLoop(t *testing.T) {
	parseOk(t, `while true do break end`)
	parseOk(t, `while true do continue end`)
}

func TestParse_BreakOutsideLoopIsError(t *testing.T) {
	_, err := Parse(`break`)
	if err == nil {
		t.Fatalf("expected an error for 'break' outside a loop")
	}
	pe, ok := err.(*ParseError)
	if !ok {
		t.Fatalf("expected *ParseError, got %T", err)
	}
	if pe.Message != "'break' outside loop" {
		t.Fatalf("unexpected message: %q", pe.Message)
	}
}

func TestParse_ContinueOutsideLoopIsError(t *testing.T) {
	_, err := Parse(`continue`)
	if err == nil {
		t.Fatalf("expected an error for 'continue' outside a loop")
	}
}

func TestParse_DeclareWithIndexTargetIsInvalid(t *testing.T) {
	_, err := Parse(`a.b := 1`)
	if err == nil {
		t.Fatalf("expected an error: ':=' is forbidden when a target is an index")
	}
	pe, ok := err.(*ParseError)
	if !ok || pe.Message != "invalid assignment target" {
		t.Fatalf("expected 'invalid assignment target' ParseError, got %v", err)
	}
}

func TestParse_IndexTargetWithPlainAssignIsFine(t *testing.T) {
	parseOk(t, `a.b = 1`)
	parseOk(t, `a[0] = 1`)
}

func TestParse_MalformedNumberPropagatesAsParseError(t *testing.T) {
	_, err := Parse(`x := 1.2.3`)
	if err == nil {
		t.Fatalf("expected a parse error from the malformed number")
	}
}

func TestParse_FuncDeclDottedName(t *testing.T) {
	prog := parseOk(t, `func a.b.c() end`)
	fd := prog.Statements[0].(*ast.FuncDeclStmt)
	if len(fd.Path) != 3 || fd.Path[2] != "c" {
		t.Fatalf("unexpected dotted path: %v", fd.Path)
	}
}

func TestParse_NoErrorRecoveryAbortsAtFirstError(t *testing.T) {
	_, err := Parse(`x := (1 +`)
	if err == nil {
		t.Fatalf("expected a parse error for an unterminated expression")
	}
}
