package host

import "github.com/huywallz/tug/pkg/value"

// Args is the argument list a NativeCallback receives, with the
// argCount/arg/hasArg accessors spec §6 specifies for a native
// callback's view of its call site.
type Args []value.Value

// ArgCount reports how many arguments were actually passed at the call
// site (not how many parameters the callback declares).
func (a Args) ArgCount() int { return len(a) }

// Arg returns the i-th argument, or Nil if i is out of range — missing
// arguments read as nil, mirroring scripted parameter binding (spec
// §4.5 Calls).
func (a Args) Arg(i int) value.Value {
	if i < 0 || i >= len(a) {
		return value.NilVal
	}
	return a[i]
}

// HasArg reports whether a value was actually supplied at index i.
func (a Args) HasArg(i int) bool {
	return i >= 0 && i < len(a)
}
