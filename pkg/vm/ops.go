// ops.go implements the arithmetic, comparison, unary, equality, and
// truthiness operators (spec §4.2/§4.6): numeric fast paths first,
// string concatenation for +, then metatable-hook dispatch, matching
// original_source/tug.c's op_* functions falling through to
// meta_binop/meta_unop before erroring.
package vm

import (
	"math"

	"github.com/huywallz/tug/pkg/bytecode"
	"github.com/huywallz/tug/pkg/value"
)

func arithHookName(op bytecode.Op) string {
	switch op {
	case bytecode.OpAdd:
		return "__add"
	case bytecode.OpSub:
		return "__sub"
	case bytecode.OpMul:
		return "__mul"
	case bytecode.OpDiv:
		return "__div"
	case bytecode.OpMod:
		return "__mod"
	case bytecode.OpGt:
		return "__gt"
	case bytecode.OpLt:
		return "__lt"
	case bytecode.OpGe:
		return "__ge"
	case bytecode.OpLe:
		return "__le"
	default:
		return ""
	}
}

// opVerb is the operator's short name as runtime error messages spell
// it: "unable to add 'str' with 'nil'".
func opVerb(op bytecode.Op) string {
	switch op {
	case bytecode.OpAdd:
		return "add"
	case bytecode.OpSub:
		return "sub"
	case bytecode.OpMul:
		return "mul"
	case bytecode.OpDiv:
		return "div"
	case bytecode.OpMod:
		return "mod"
	default:
		return "compare"
	}
}

func isRelational(op bytecode.Op) bool {
	switch op {
	case bytecode.OpGt, bytecode.OpLt, bytecode.OpGe, bytecode.OpLe:
		return true
	default:
		return false
	}
}

// findBinaryHook looks for op's overload on either operand's metatable,
// left first, matching tug.c's operand-scan order.
func (t *Task) findBinaryHook(op bytecode.Op, left, right value.Value) (value.Value, bool) {
	name := arithHookName(op)
	if name == "" {
		return nil, false
	}
	if tbl, ok := left.(*value.Table); ok {
		if hook, ok2 := t.metaHook(tbl, name); ok2 {
			return hook, true
		}
	}
	if tbl, ok := right.(*value.Table); ok {
		if hook, ok2 := t.metaHook(tbl, name); ok2 {
			return hook, true
		}
	}
	return nil, false
}

// binaryArith implements Add/Sub/Mul/Div/Mod/Gt/Lt/Ge/Le: a numeric
// fast path, string concatenation and lexicographic comparison for two
// Strings, then metatable dispatch, then failure.
func (t *Task) binaryArith(op bytecode.Op, line int) {
	right := value.Collapse(t.pop())
	left := value.Collapse(t.pop())

	if ln, lok := left.(*value.Number); lok {
		if rn, rok := right.(*value.Number); rok {
			t.numericBinOp(op, ln.V, rn.V)
			return
		}
	}

	if ls, lok := left.(*value.Str); lok {
		if rs, rok := right.(*value.Str); rok {
			switch op {
			case bytecode.OpAdd:
				buf := make([]byte, 0, len(ls.V)+len(rs.V))
				buf = append(buf, ls.V...)
				buf = append(buf, rs.V...)
				t.push(t.gc.NewStr(buf))
				return
			case bytecode.OpGt:
				t.push(value.Bool(string(ls.V) > string(rs.V)))
				return
			case bytecode.OpLt:
				t.push(value.Bool(string(ls.V) < string(rs.V)))
				return
			case bytecode.OpGe:
				t.push(value.Bool(string(ls.V) >= string(rs.V)))
				return
			case bytecode.OpLe:
				t.push(value.Bool(string(ls.V) <= string(rs.V)))
				return
			}
		}
	}

	if hook, ok := t.findBinaryHook(op, left, right); ok {
		result, ok2 := t.dispatchCall(hook, []value.Value{left, right}, line)
		if !ok2 {
			return
		}
		res := value.Collapse(result)
		if isRelational(op) {
			b, isBool := res.(*value.BoolValue)
			if !isBool {
				t.Fail("'%s' must return a boolean", arithHookName(op))
				return
			}
			t.push(value.Bool(b.V))
			return
		}
		t.push(res)
		return
	}

	t.Fail("unable to %s '%s' with '%s'", opVerb(op), left.Kind(), right.Kind())
}

func (t *Task) numericBinOp(op bytecode.Op, a, b float64) {
	switch op {
	case bytecode.OpAdd:
		t.push(t.gc.NewNumber(a + b))
	case bytecode.OpSub:
		t.push(t.gc.NewNumber(a - b))
	case bytecode.OpMul:
		t.push(t.gc.NewNumber(a * b))
	case bytecode.OpDiv:
		if b == 0 {
			t.Fail("zero division")
			return
		}
		t.push(t.gc.NewNumber(a / b))
	case bytecode.OpMod:
		if b == 0 {
			t.Fail("zero modulo")
			return
		}
		t.push(t.gc.NewNumber(math.Mod(a, b)))
	case bytecode.OpGt:
		t.push(value.Bool(a > b))
	case bytecode.OpLt:
		t.push(value.Bool(a < b))
	case bytecode.OpGe:
		t.push(value.Bool(a >= b))
	case bytecode.OpLe:
		t.push(value.Bool(a <= b))
	}
}

// unaryArith implements Pos/Neg: numeric fast path, then __pos/__neg.
func (t *Task) unaryArith(op bytecode.Op, line int) {
	operand := value.Collapse(t.pop())

	if n, ok := operand.(*value.Number); ok {
		if op == bytecode.OpPos {
			t.push(t.gc.NewNumber(+n.V))
		} else {
			t.push(t.gc.NewNumber(-n.V))
		}
		return
	}

	name := "__pos"
	if op == bytecode.OpNeg {
		name = "__neg"
	}
	if tbl, ok := operand.(*value.Table); ok {
		if hook, ok2 := t.metaHook(tbl, name); ok2 {
			result, ok3 := t.dispatchCall(hook, []value.Value{operand}, line)
			if !ok3 {
				return
			}
			t.push(value.Collapse(result))
			return
		}
	}

	verb := "pos"
	if op == bytecode.OpNeg {
		verb = "neg"
	}
	t.Fail("unable to %s '%s'", verb, operand.Kind())
}

// equality implements Eq/Ne: identity/value rules from value.Equal,
// overridable by a __eq/__ne hook on either operand (spec §4.6). Ne
// prefers a __ne hook and falls back to a negated __eq. Eq/Ne carry no
// line operand in the bytecode (see bytecode.go), so a hook firing from
// one of these reports line 0 in any traceback it produces.
func (t *Task) equality(negate bool) {
	right := value.Collapse(t.pop())
	left := value.Collapse(t.pop())

	if negate {
		if hook, ok := t.eitherHook(left, right, "__ne"); ok {
			b, ok2 := t.callBoolHook(hook, "__ne", left, right)
			if !ok2 {
				return
			}
			t.push(value.Bool(b))
			return
		}
	}
	if hook, ok := t.eitherHook(left, right, "__eq"); ok {
		b, ok2 := t.callBoolHook(hook, "__eq", left, right)
		if !ok2 {
			return
		}
		if negate {
			b = !b
		}
		t.push(value.Bool(b))
		return
	}

	eq := value.Equal(left, right)
	if negate {
		eq = !eq
	}
	t.push(value.Bool(eq))
}

// eitherHook finds name on the left operand's metatable first, then the
// right's, the same scan order findBinaryHook uses.
func (t *Task) eitherHook(left, right value.Value, name string) (value.Value, bool) {
	if tbl, ok := left.(*value.Table); ok {
		if hook, ok2 := t.metaHook(tbl, name); ok2 {
			return hook, true
		}
	}
	if tbl, ok := right.(*value.Table); ok {
		if hook, ok2 := t.metaHook(tbl, name); ok2 {
			return hook, true
		}
	}
	return nil, false
}

// callBoolHook invokes a hook whose contract requires a boolean return
// (__eq/__ne, spec §4.6) and fails the task if it returns anything else.
func (t *Task) callBoolHook(hook value.Value, name string, args ...value.Value) (bool, bool) {
	result, ok := t.dispatchCall(hook, args, 0)
	if !ok {
		return false, false
	}
	b, isBool := value.Collapse(result).(*value.BoolValue)
	if !isBool {
		t.Fail("'%s' must return a boolean", name)
		return false, false
	}
	return b.V, true
}

// truthyOf resolves a value's boolean sense, honoring a table's __truth
// hook before falling back to value.Truthy (spec §4.5: every truthiness
// test in the VM — if/while conditions, and/or short-circuit, not — goes
// through this, never value.Truthy directly).
func (t *Task) truthyOf(v value.Value, line int) bool {
	if tbl, ok := v.(*value.Table); ok {
		if hook, ok2 := t.metaHook(tbl, "__truth"); ok2 {
			result, ok3 := t.dispatchCall(hook, []value.Value{v}, line)
			if !ok3 {
				return false
			}
			b, isBool := value.Collapse(result).(*value.BoolValue)
			if !isBool {
				t.Fail("'__truth' must return a boolean")
				return false
			}
			return b.V
		}
	}
	return value.Truthy(v)
}
