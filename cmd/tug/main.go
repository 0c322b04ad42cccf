// Command tug is the minimal CLI driver spec §6 describes: read one
// script file, install a bare `print` callback (the real standard
// library is an external collaborator per spec §1, out of scope here),
// resume the task to completion, and report any error with its
// traceback. It exists to exercise pkg/host end-to-end, the way the
// teacher's cmd/smog/main.go exercises its own VM.
package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/huywallz/tug/pkg/host"
	"github.com/huywallz/tug/pkg/value"
	"github.com/huywallz/tug/pkg/vm"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: tug <script.tug>")
		os.Exit(1)
	}
	if err := run(os.Args[1]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	rt := host.New()
	defer rt.Close()

	task, err := rt.Compile(path, string(data))
	if err != nil {
		return err
	}

	installPrint(rt, task)

	rt.Resume(task)
	if rt.State(task) == vm.StateError {
		fmt.Fprint(os.Stderr, rt.ErrorTraceback(task))
		return fmt.Errorf("error: %s", rt.ErrorMessage(task))
	}
	return nil
}

// installPrint wires a single-function `print` callback, the smallest
// possible proof that cmd/tug's CFunc/host wiring works end to end,
// without reimplementing the real standard library (spec §1 places that
// out of scope; it is an external collaborator over the same host API
// this callback itself uses).
func installPrint(rt *host.Runtime, task *vm.Task) {
	out := bufio.NewWriter(os.Stdout)
	printFn := rt.CFunc("print", func(args []value.Value) (value.Value, error) {
		a := host.Args(args)
		for i := 0; i < a.ArgCount(); i++ {
			if i > 0 {
				out.WriteByte(' ')
			}
			writeDisplay(out, rt, a.Arg(i))
		}
		out.WriteByte('\n')
		out.Flush()
		return rt.Nil(), nil
	})
	rt.SetGlobal(task, "print", printFn)
}

// writeDisplay renders v the way a script author expects `print` to show
// it: strings bare, numbers/bools/nil via Go's default formatting, and
// everything else by kind and identity (spec §3: "every value... carries
// an identity... used by the host for display").
func writeDisplay(out *bufio.Writer, rt *host.Runtime, v value.Value) {
	if s, ok := rt.GetString(v); ok {
		out.Write(s)
		return
	}
	if n, ok := rt.GetNumber(v); ok {
		fmt.Fprintf(out, "%g", n)
		return
	}
	switch v.Kind() {
	case value.KindNil:
		out.WriteString("nil")
	case value.KindBool:
		fmt.Fprintf(out, "%v", value.Truthy(v))
	default:
		fmt.Fprintf(out, "%s: 0x%x", rt.TypeOf(v), rt.IdOf(v))
	}
}
