package wasm

import (
	"fmt"
	"strings"
)

// ValueType is the type of a single operand-stack value or local.
//
// The closed set of implementations is NumType, RefType, SealedType and the
// validator-internal Bottom.
type ValueType interface {
	fmt.Stringer
	valueType()
}

// NumType is a fixed-width numeric kind.
type NumType byte

const (
	NumTypeI32 NumType = iota
	NumTypeI64
	NumTypeF32
	NumTypeF64
)

func (NumType) valueType() {}

// String implements fmt.Stringer
func (t NumType) String() string {
	switch t {
	case NumTypeI32:
		return "i32"
	case NumTypeI64:
		return "i64"
	case NumTypeF32:
		return "f32"
	case NumTypeF64:
		return "f64"
	}
	return "unknown"
}

// Bits returns the storage width of the numeric kind.
func (t NumType) Bits() uint32 {
	switch t {
	case NumTypeI32, NumTypeF32:
		return 32
	case NumTypeI64, NumTypeF64:
		return 64
	}
	panic(fmt.Errorf("BUG: unknown numeric type %d", byte(t)))
}

// IsInteger returns true for the integer kinds, which are the only ones that
// support packed (sub-word) memory access.
func (t NumType) IsInteger() bool {
	return t == NumTypeI32 || t == NumTypeI64
}

// RefType is a reference kind. RefTypeAny is the supertype of every reference;
// RefTypeNull is inhabited by null alone.
type RefType byte

const (
	RefTypeNull RefType = iota
	RefTypeAny
	RefTypeFunc
)

func (RefType) valueType() {}

// String implements fmt.Stringer
func (t RefType) String() string {
	switch t {
	case RefTypeNull:
		return "nullref"
	case RefTypeAny:
		return "anyref"
	case RefTypeFunc:
		return "funcref"
	}
	return "unknown"
}

// SealedType is an abstract type as seen inside the module validating its own
// body: an opaque identity addressed by its position among the module's
// abstract-type imports. It never escapes a module boundary unresolved; see
// ExternTypeOfImport and ExternTypeOfExport.
type SealedType Index

func (SealedType) valueType() {}

// String implements fmt.Stringer
func (t SealedType) String() string {
	return fmt.Sprintf("abstract[%d]", Index(t))
}

type bottomType struct{}

func (bottomType) valueType() {}

// String implements fmt.Stringer
func (bottomType) String() string {
	return "bot"
}

// Bottom is the type of values produced on an unreachable code path. It is
// internal polymorphism of the validator, never a type a module can declare:
// it matches any required type when supplied, but stands for nothing when
// required itself.
var Bottom ValueType = bottomType{}

func matchNumType(actual, required NumType) bool {
	return actual == required
}

func matchRefType(actual, required RefType) bool {
	return actual == required || required == RefTypeAny
}

// MatchValueType reports whether a value of type actual may be supplied where
// required is demanded. Bottom is accepted only on the actual side.
func MatchValueType(actual, required ValueType) bool {
	switch a := actual.(type) {
	case bottomType:
		return true
	case NumType:
		r, ok := required.(NumType)
		return ok && matchNumType(a, r)
	case RefType:
		r, ok := required.(RefType)
		return ok && matchRefType(a, r)
	case SealedType:
		r, ok := required.(SealedType)
		return ok && a == r
	}
	return false
}

// isNumType must be decidable even on Bottom: the untyped select instruction
// demands a numeric discriminant on code paths that may be unreachable.
func isNumType(t ValueType) bool {
	_, ok := t.(NumType)
	return ok || t == Bottom
}

func matchValueTypes(actual, required []ValueType) bool {
	if len(actual) != len(required) {
		return false
	}
	for i := range actual {
		if !MatchValueType(actual[i], required[i]) {
			return false
		}
	}
	return true
}

// typesString renders a list of value types the way diagnostics cite stack
// shapes, e.g. "[i32 f64]".
func typesString(ts []ValueType) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, t := range ts {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(t.String())
	}
	sb.WriteByte(']')
	return sb.String()
}

// WrappedType is a value type as it occurs in a function signature. When
// Seals is non-nil the occurrence mints the abstract type the module exports
// at that index: the value is represented as Type inside the module and
// hidden behind the abstract type outside of it.
type WrappedType struct {
	Type  ValueType
	Seals *Index
}

// Plain wraps ordinary value types for use in a FunctionType.
func Plain(ts ...ValueType) []WrappedType {
	ws := make([]WrappedType, len(ts))
	for i, t := range ts {
		ws[i] = WrappedType{Type: t}
	}
	return ws
}

// Seal wraps a value type that mints the module's abstract type export id.
func Seal(t ValueType, id Index) WrappedType {
	return WrappedType{Type: t, Seals: &id}
}

// FunctionType is a function signature over wrapped value types.
//
// Note: validation enforces at most one result, a restriction of the current
// format rather than of the model.
type FunctionType struct {
	Params  []WrappedType
	Results []WrappedType
}

func unwrapTypes(ws []WrappedType) []ValueType {
	ts := make([]ValueType, len(ws))
	for i, w := range ws {
		ts[i] = w.Type
	}
	return ts
}

// UnwrappedParams returns the parameter types as seen inside the defining
// module, where minted abstract types are transparent.
func (t *FunctionType) UnwrappedParams() []ValueType {
	return unwrapTypes(t.Params)
}

// UnwrappedResults is the result-side counterpart of UnwrappedParams.
func (t *FunctionType) UnwrappedResults() []ValueType {
	return unwrapTypes(t.Results)
}

// String implements fmt.Stringer
func (t *FunctionType) String() string {
	return typesString(t.UnwrappedParams()) + " -> " + typesString(t.UnwrappedResults())
}

// Limits bound the size of a table or memory.
type Limits struct {
	Min uint64
	Max *uint64
}

// matchLimits implements the import-direction rule: the offered entity must
// be at least as large as required and no larger than the required ceiling.
func matchLimits(required, offered Limits) bool {
	if offered.Min < required.Min {
		return false
	}
	if required.Max != nil && (offered.Max == nil || *offered.Max > *required.Max) {
		return false
	}
	return true
}

// TableType declares the element kind and size bounds of a table.
type TableType struct {
	ElemType RefType
	Limits   Limits
}

// MemoryType declares the size bounds of a linear memory, in pages.
type MemoryType = Limits

// GlobalType declares the value type and mutability of a global.
type GlobalType struct {
	ValType ValueType
	Mutable bool
}
