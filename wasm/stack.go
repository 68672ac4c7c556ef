package wasm

import "fmt"

// stackType is an inferred operand stack: a known suffix of value types,
// ordered bottom to top, possibly sitting on an unknown prefix. The ell flag
// marks that prefix: an arbitrarily long run of arbitrary types below the
// suffix, which is how code after an unconditional transfer stays checkable
// without backtracking.
type stackType struct {
	ts  []ValueType
	ell bool
}

func stackOf(ts ...ValueType) stackType {
	return stackType{ts: ts}
}

// String implements fmt.Stringer
func (s stackType) String() string {
	if !s.ell {
		return typesString(s.ts)
	}
	if len(s.ts) == 0 {
		return "[...]"
	}
	return "[... " + typesString(s.ts)[1:]
}

// peek returns the type at the given depth from the top of the known suffix,
// or Bottom when the depth reaches into the unknown prefix.
func peek(depth int, s stackType) ValueType {
	if depth >= len(s.ts) {
		return Bottom
	}
	return s.ts[len(s.ts)-1-depth]
}

// checkStack demands the actual types match the required ones exactly, in
// length and pointwise.
func checkStack(actual, required []ValueType, at Pos) error {
	if !matchValueTypes(actual, required) {
		return invalid(at, "type mismatch: instruction requires %s but stack has %s",
			typesString(required), typesString(actual))
	}
	return nil
}

// pop consumes required from the top of actual and returns the untouched
// lower portion. When the actual side is unbounded, the part of the
// requirement below its known suffix is satisfied by implicit Bottom values;
// otherwise the match must be exact.
func pop(required, actual stackType, at Pos) (stackType, error) {
	n1 := len(required.ts)
	n2 := len(actual.ts)
	n := n1
	if n2 < n {
		n = n2
	}
	pad := 0
	if actual.ell {
		pad = n1 - n
	}

	top := make([]ValueType, 0, pad+n)
	for i := 0; i < pad; i++ {
		top = append(top, Bottom)
	}
	top = append(top, actual.ts[n2-n:]...)
	if err := checkStack(top, required.ts, at); err != nil {
		return stackType{}, err
	}

	rem := stackType{ell: actual.ell}
	if !required.ell {
		rem.ts = actual.ts[:n2-n]
	}
	return rem, nil
}

// push places result on top of base, propagating unboundedness from either
// side. An unbounded result atop a non-empty suffix would lose information,
// so that is an internal consistency violation, not a user error.
func push(result, base stackType, at Pos) stackType {
	if result.ell && len(base.ts) != 0 {
		panic(fmt.Errorf("BUG: unbounded result pushed onto non-empty stack at %s", at))
	}
	ts := make([]ValueType, 0, len(base.ts)+len(result.ts))
	ts = append(ts, base.ts...)
	ts = append(ts, result.ts...)
	return stackType{ts: ts, ell: base.ell || result.ell}
}
