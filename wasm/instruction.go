package wasm

import "fmt"

// Instr is a single decoded instruction. Structured instructions carry their
// nested sequences; every instruction carries its source location via Loc.
type Instr interface {
	Pos() Pos
	isInstr()
}

// Loc is embedded in every instruction to record its source offset, which is
// used only in diagnostics.
type Loc struct {
	Offset Pos
}

// Pos implements Instr
func (l Loc) Pos() Pos { return l.Offset }

func (Loc) isInstr() {}

type (
	// Unreachable unconditionally traps; code after it is statically
	// unreachable and type-checks against any stack.
	Unreachable struct{ Loc }

	Nop struct{ Loc }

	// Drop discards the top stack value of whatever type it has.
	Drop struct{ Loc }

	// Select picks one of two values by an i32 discriminant. Without an
	// annotation the operand type must be numeric; Types, when present,
	// must hold exactly one type.
	Select struct {
		Loc
		Types []ValueType
	}

	// Block is a structured block whose label carries its result types.
	Block struct {
		Loc
		Results []ValueType
		Body    []Instr
	}

	// Loop is like Block except branches to its label re-enter the loop, so
	// the label carries the entry type, which is empty.
	Loop struct {
		Loc
		Results []ValueType
		Body    []Instr
	}

	If struct {
		Loc
		Results []ValueType
		Then    []Instr
		Else    []Instr
	}

	Br struct {
		Loc
		Label Index
	}

	BrIf struct {
		Loc
		Label Index
	}

	// BrTable branches to one of Labels by an i32 index, or to Default.
	// All targets must agree on their result types.
	BrTable struct {
		Loc
		Labels  []Index
		Default Index
	}

	Return struct{ Loc }

	Call struct {
		Loc
		Func Index
	}

	CallIndirect struct {
		Loc
		Table Index
		Type  Index
	}

	LocalGet struct {
		Loc
		Local Index
	}

	LocalSet struct {
		Loc
		Local Index
	}

	LocalTee struct {
		Loc
		Local Index
	}

	GlobalGet struct {
		Loc
		Global Index
	}

	GlobalSet struct {
		Loc
		Global Index
	}

	// RefNull produces the null value at the given reference kind.
	RefNull struct {
		Loc
		Type RefType
	}

	RefIsNull struct{ Loc }

	// RefFunc produces a funcref to a function declared referenceable by a
	// declarative element segment.
	RefFunc struct {
		Loc
		Func Index
	}

	// Const pushes a numeric constant. Value holds the raw bits; validation
	// only reads Type.
	Const struct {
		Loc
		Type  NumType
		Value uint64
	}

	Unary struct {
		Loc
		Type NumType
		Op   UnOp
	}

	Binary struct {
		Loc
		Type NumType
		Op   BinOp
	}

	Test struct {
		Loc
		Type NumType
		Op   TestOp
	}

	Compare struct {
		Loc
		Type NumType
		Op   RelOp
	}

	// Convert changes the numeric kind of its operand. From and To must
	// differ; a conversion within one kind is rejected as nonsensical.
	Convert struct {
		Loc
		From NumType
		To   NumType
		Op   CvtOp
	}

	// Load reads Type from memory. Pack, when non-zero, narrows the access
	// to 8, 16 or 32 bits, sign- or zero-extending per Signed.
	Load struct {
		Loc
		Type   NumType
		Pack   PackWidth
		Signed bool
		Align  uint32
		Offset uint32
	}

	Store struct {
		Loc
		Type   NumType
		Pack   PackWidth
		Align  uint32
		Offset uint32
	}

	MemorySize struct{ Loc }

	MemoryGrow struct{ Loc }
)

// PackWidth is the bit width of a packed memory access, or PackNone for a
// full-width one.
type PackWidth byte

const (
	PackNone PackWidth = 0
	Pack8    PackWidth = 8
	Pack16   PackWidth = 16
	Pack32   PackWidth = 32
)

// UnOp discriminates unary numeric operators. Validation only uses the
// operand kind; the operator itself is interpreted by the executing engine.
type UnOp byte

const (
	UnOpClz UnOp = iota
	UnOpCtz
	UnOpPopcnt
	UnOpAbs
	UnOpNeg
	UnOpCeil
	UnOpFloor
	UnOpTrunc
	UnOpNearest
	UnOpSqrt
)

// BinOp discriminates binary numeric operators.
type BinOp byte

const (
	BinOpAdd BinOp = iota
	BinOpSub
	BinOpMul
	BinOpDivS
	BinOpDivU
	BinOpRemS
	BinOpRemU
	BinOpAnd
	BinOpOr
	BinOpXor
	BinOpShl
	BinOpShrS
	BinOpShrU
	BinOpRotl
	BinOpRotr
	BinOpDiv
	BinOpMin
	BinOpMax
	BinOpCopySign
)

// TestOp discriminates numeric test operators.
type TestOp byte

const (
	TestOpEqz TestOp = iota
)

// RelOp discriminates numeric comparison operators.
type RelOp byte

const (
	RelOpEq RelOp = iota
	RelOpNe
	RelOpLtS
	RelOpLtU
	RelOpGtS
	RelOpGtU
	RelOpLeS
	RelOpLeU
	RelOpGeS
	RelOpGeU
	RelOpLt
	RelOpGt
	RelOpLe
	RelOpGe
)

// CvtOp discriminates numeric conversion operators.
type CvtOp byte

const (
	CvtOpWrap CvtOp = iota
	CvtOpExtendS
	CvtOpExtendU
	CvtOpTruncS
	CvtOpTruncU
	CvtOpConvertS
	CvtOpConvertU
	CvtOpDemote
	CvtOpPromote
	CvtOpReinterpret
)

// InstrName returns the display name of an instruction for diagnostics.
func InstrName(i Instr) string {
	switch i := i.(type) {
	case Unreachable:
		return "unreachable"
	case Nop:
		return "nop"
	case Drop:
		return "drop"
	case Select:
		return "select"
	case Block:
		return "block"
	case Loop:
		return "loop"
	case If:
		return "if"
	case Br:
		return "br"
	case BrIf:
		return "br_if"
	case BrTable:
		return "br_table"
	case Return:
		return "return"
	case Call:
		return "call"
	case CallIndirect:
		return "call_indirect"
	case LocalGet:
		return "local.get"
	case LocalSet:
		return "local.set"
	case LocalTee:
		return "local.tee"
	case GlobalGet:
		return "global.get"
	case GlobalSet:
		return "global.set"
	case RefNull:
		return "ref.null"
	case RefIsNull:
		return "ref.is_null"
	case RefFunc:
		return "ref.func"
	case Const:
		return i.Type.String() + ".const"
	case Unary:
		return i.Type.String() + ".unop"
	case Binary:
		return i.Type.String() + ".binop"
	case Test:
		return i.Type.String() + ".testop"
	case Compare:
		return i.Type.String() + ".relop"
	case Convert:
		return fmt.Sprintf("%s.convert_%s", i.To, i.From)
	case Load:
		return loadStoreName(i.Type, i.Pack, "load")
	case Store:
		return loadStoreName(i.Type, i.Pack, "store")
	case MemorySize:
		return "memory.size"
	case MemoryGrow:
		return "memory.grow"
	}
	return "unknown"
}

func loadStoreName(t NumType, pack PackWidth, op string) string {
	if pack == PackNone {
		return fmt.Sprintf("%s.%s", t, op)
	}
	return fmt.Sprintf("%s.%s%d", t, op, pack)
}
