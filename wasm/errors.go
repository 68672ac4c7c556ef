package wasm

import "fmt"

// Pos is the byte offset of an AST node in the decoded source. It is carried
// through instructions and module declarations for diagnostics only; a zero
// Pos means the decoder supplied no location.
type Pos uint64

// String implements fmt.Stringer
func (p Pos) String() string {
	return fmt.Sprintf("%#x", uint64(p))
}

// ValidationError is the only failure a well-formed module can produce during
// validation: a diagnosed reason plus the source location it was found at.
// Out-of-range indexes that indicate a bug in the validator itself are raised
// as panics instead, never as ValidationError.
type ValidationError struct {
	// Pos locates the offending construct, or zero when unknown.
	Pos Pos

	msg string
}

// Error implements error
func (e *ValidationError) Error() string {
	if e.Pos == 0 {
		return e.msg
	}
	return fmt.Sprintf("%s (at %s)", e.msg, e.Pos)
}

// invalid builds the single checked-failure kind of this package.
func invalid(pos Pos, format string, args ...interface{}) error {
	return &ValidationError{Pos: pos, msg: fmt.Sprintf(format, args...)}
}
