package vm

import (
	"fmt"
	"strings"
)

// StackFrame is one line of a RuntimeError's traceback: the source name,
// the function display name, and the line executing in that frame when
// it was unwound. Mirrors the teacher's pkg/vm/errors.go StackFrame, with
// Selector/IP/SourceCol dropped since tug has no message-send or column
// tracking.
type StackFrame struct {
	SourceName string
	FuncName   string
	Line       int
}

// RuntimeError is what a Task's unwind leaves behind for the host to
// read back via ErrorMessage/ErrorTraceback (spec §7 "User visibility").
type RuntimeError struct {
	Message    string
	StackTrace []StackFrame
}

func (e *RuntimeError) Error() string {
	var b strings.Builder
	if len(e.StackTrace) > 0 {
		b.WriteString("stack traceback:\n")
		for _, f := range e.StackTrace {
			fmt.Fprintf(&b, "\t%s:%d: in %s\n", f.SourceName, f.Line, f.FuncName)
		}
	}
	fmt.Fprintf(&b, "error: %s", e.Message)
	return b.String()
}

// ScriptAbort is the panic value a native callback's non-local exit
// carries from the point of failure back to the call boundary that
// installed the recover (§5 "Native callback control transfer", §9
// "Non-local exit from native callbacks"). Adapted from
// github.com/jcorbin/gothird's internal/panicerr pattern into a
// same-goroutine, call-boundary form: native calls in tug are always
// synchronous within one Task, so no goroutine crossing is needed.
type ScriptAbort struct {
	Message string
}

func (a ScriptAbort) Error() string { return a.Message }
