// assign.go implements OpMultiAssign, the single opcode backing both
// `:=`/`=` and multi-target/multi-value assignment (spec §4.2 Assignment,
// §9 "non-destructive spread"). The compiler encodes target descriptors
// in reverse of their source order (pkg/compiler/compiler.go's
// compileAssign) so popping them LIFO off the stack lines up with the
// index-target (receiver, key) pairs it pushed earlier, in forward
// order, before the values.
package vm

import "github.com/huywallz/tug/pkg/value"

// execMultiAssign implements OpMultiAssign. valueCount stack values sit
// on top (pushed left-to-right by the value expressions); beneath those,
// one (receiver, key) pair per index target sits in original target
// order. kinds/names describe the targetCount targets in reverse source
// order: kinds[j] == 1 means a plain name (names[j] holds it); 0 means
// an index target, whose receiver/key are popped here.
func (t *Task) execMultiAssign(local byte, valueCount, targetCount int, kinds []byte, names []string, line int) {
	raw := make([]value.Value, valueCount)
	for i := valueCount - 1; i >= 0; i-- {
		raw[i] = t.pop()
	}

	var flat []value.Value
	switch {
	case valueCount == 1:
		flat = value.SpreadValue(raw[0], targetCount)
	default:
		flat = make([]value.Value, targetCount)
		for i := 0; i < targetCount; i++ {
			if i < valueCount {
				flat[i] = value.Collapse(raw[i])
			} else {
				flat[i] = value.NilVal
			}
		}
	}

	declare := local == 1
	for j := 0; j < targetCount; j++ {
		origIdx := targetCount - 1 - j
		val := flat[origIdx]

		if kinds[j] == 1 {
			if declare {
				t.scope.Declare(names[j], val)
			} else {
				t.scope.Rebind(names[j], val)
			}
			continue
		}

		key := t.pop()
		recv := t.pop()
		if !t.setIndexValue(recv, key, val, line) {
			return
		}
	}
}
