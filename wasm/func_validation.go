package wasm

import "fmt"

// context is the immutable state a function body or block is validated
// against. Every index namespace is accumulated imports-first; nested scopes
// extend a copy rather than mutating, so leaving a scope needs no restore and
// independent validations never interfere.
type context struct {
	types    []*FunctionType
	funcs    []*FunctionType
	tables   []*TableType
	memories []*MemoryType
	globals  []*GlobalType
	elems    []RefType
	datas    int

	// sealed holds, in import order, the unresolved references of the
	// abstract types this module imports; SealedType indexes it.
	sealed []TypeRef

	locals  []ValueType
	results []ValueType
	// labels holds one result stack per enclosing structured block,
	// innermost first.
	labels [][]ValueType

	// refs is the set of function indexes declarative element segments made
	// legal for RefFunc.
	refs map[Index]struct{}
}

// withLabel returns a copy of the context with one more enclosing label.
func (c *context) withLabel(ts []ValueType) *context {
	d := *c
	d.labels = make([][]ValueType, 0, len(c.labels)+1)
	d.labels = append(d.labels, ts)
	d.labels = append(d.labels, c.labels...)
	return &d
}

// withFrame returns a copy of the context scoped to one function body.
func (c *context) withFrame(locals, results []ValueType) *context {
	d := *c
	d.locals = locals
	d.results = results
	d.labels = [][]ValueType{results}
	return &d
}

func (c *context) typ(x Index, at Pos) (*FunctionType, error) {
	if x >= uint32(len(c.types)) {
		return nil, invalid(at, "unknown type %d", x)
	}
	return c.types[x], nil
}

func (c *context) fnc(x Index, at Pos) (*FunctionType, error) {
	if x >= uint32(len(c.funcs)) {
		return nil, invalid(at, "unknown function %d", x)
	}
	return c.funcs[x], nil
}

func (c *context) table(x Index, at Pos) (*TableType, error) {
	if x >= uint32(len(c.tables)) {
		return nil, invalid(at, "unknown table %d", x)
	}
	return c.tables[x], nil
}

func (c *context) memory(x Index, at Pos) (*MemoryType, error) {
	if x >= uint32(len(c.memories)) {
		return nil, invalid(at, "unknown memory %d", x)
	}
	return c.memories[x], nil
}

func (c *context) global(x Index, at Pos) (*GlobalType, error) {
	if x >= uint32(len(c.globals)) {
		return nil, invalid(at, "unknown global %d", x)
	}
	return c.globals[x], nil
}

func (c *context) local(x Index, at Pos) (ValueType, error) {
	if x >= uint32(len(c.locals)) {
		return nil, invalid(at, "unknown local %d", x)
	}
	return c.locals[x], nil
}

func (c *context) label(x Index, at Pos) ([]ValueType, error) {
	if x >= uint32(len(c.labels)) {
		return nil, invalid(at, "unknown label %d", x)
	}
	return c.labels[x], nil
}

// opType is the stack effect of one instruction: it consumes ins off the top
// of the stack and leaves outs there.
type opType struct {
	ins  stackType
	outs stackType
}

// effect is the fixed form most instructions use.
func effect(ins, outs []ValueType) opType {
	return opType{ins: stackOf(ins...), outs: stackOf(outs...)}
}

// effectPoly is the stack-emptying form used by unconditional transfers: the
// stated requirement may sit on any stack whatsoever, and whatever follows is
// unreachable, so the output absorbs anything too.
func effectPoly(ins, outs []ValueType) opType {
	return opType{
		ins:  stackType{ts: ins, ell: true},
		outs: stackType{ts: outs, ell: true},
	}
}

// checkResultArity enforces the current format restriction of at most one
// block or function result.
func checkResultArity(n int, at Pos) error {
	if n > 1 {
		return invalid(at, "invalid result arity, larger than 1 is not (yet) allowed")
	}
	return nil
}

// checkInstr assigns one instruction its stack effect. s is the stack
// inferred so far, consulted only by instructions whose requirement must be
// read off the stack rather than stated a priori.
func (c *context) checkInstr(e Instr, s stackType) (opType, error) {
	at := e.Pos()
	i32 := ValueType(NumTypeI32)

	switch e := e.(type) {
	case Unreachable:
		return effectPoly(nil, nil), nil

	case Nop:
		return effect(nil, nil), nil

	case Drop:
		t := peek(0, s)
		return effect([]ValueType{t}, nil), nil

	case Select:
		if e.Types != nil {
			if len(e.Types) != 1 {
				return opType{}, invalid(at, "select annotation must have exactly one type")
			}
			t := e.Types[0]
			return effect([]ValueType{t, t, i32}, []ValueType{t}), nil
		}
		t := peek(1, s)
		if !isNumType(t) {
			return opType{}, invalid(at, "type mismatch: select requires a numeric type but stack has %s", t)
		}
		return effect([]ValueType{t, t, i32}, []ValueType{t}), nil

	case Block:
		if err := checkResultArity(len(e.Results), at); err != nil {
			return opType{}, err
		}
		if err := c.withLabel(e.Results).checkBlock(e.Body, e.Results, at); err != nil {
			return opType{}, err
		}
		return effect(nil, e.Results), nil

	case Loop:
		if err := checkResultArity(len(e.Results), at); err != nil {
			return opType{}, err
		}
		// A branch to a loop label re-enters the loop, so the label carries
		// the entry type, not the exit type.
		if err := c.withLabel(nil).checkBlock(e.Body, e.Results, at); err != nil {
			return opType{}, err
		}
		return effect(nil, e.Results), nil

	case If:
		if err := checkResultArity(len(e.Results), at); err != nil {
			return opType{}, err
		}
		inner := c.withLabel(e.Results)
		if err := inner.checkBlock(e.Then, e.Results, at); err != nil {
			return opType{}, err
		}
		if err := inner.checkBlock(e.Else, e.Results, at); err != nil {
			return opType{}, err
		}
		return effect([]ValueType{i32}, e.Results), nil

	case Br:
		ts, err := c.label(e.Label, at)
		if err != nil {
			return opType{}, err
		}
		return effectPoly(ts, nil), nil

	case BrIf:
		ts, err := c.label(e.Label, at)
		if err != nil {
			return opType{}, err
		}
		ins := make([]ValueType, 0, len(ts)+1)
		ins = append(ins, ts...)
		ins = append(ins, i32)
		return effect(ins, ts), nil

	case BrTable:
		def, err := c.label(e.Default, at)
		if err != nil {
			return opType{}, err
		}
		// The targets may be reached on a partially polymorphic stack, so
		// the agreed result types are read off the stack, under the i32
		// index operand.
		n := len(def)
		ts := make([]ValueType, n)
		for i := 0; i < n; i++ {
			ts[i] = peek(n-i, s)
		}
		if err := checkStack(ts, def, at); err != nil {
			return opType{}, err
		}
		for _, x := range e.Labels {
			lts, err := c.label(x, at)
			if err != nil {
				return opType{}, err
			}
			if err := checkStack(ts, lts, at); err != nil {
				return opType{}, err
			}
		}
		ins := make([]ValueType, 0, n+1)
		ins = append(ins, ts...)
		ins = append(ins, i32)
		return effectPoly(ins, nil), nil

	case Return:
		return effectPoly(c.results, nil), nil

	case Call:
		ft, err := c.fnc(e.Func, at)
		if err != nil {
			return opType{}, err
		}
		return effect(ft.UnwrappedParams(), ft.UnwrappedResults()), nil

	case CallIndirect:
		tt, err := c.table(e.Table, at)
		if err != nil {
			return opType{}, err
		}
		if tt.ElemType != RefTypeFunc {
			return opType{}, invalid(at, "type mismatch: call_indirect requires a table of funcref but table %d holds %s", e.Table, tt.ElemType)
		}
		ft, err := c.typ(e.Type, at)
		if err != nil {
			return opType{}, err
		}
		params := ft.UnwrappedParams()
		ins := make([]ValueType, 0, len(params)+1)
		ins = append(ins, params...)
		ins = append(ins, i32)
		return effect(ins, ft.UnwrappedResults()), nil

	case LocalGet:
		t, err := c.local(e.Local, at)
		if err != nil {
			return opType{}, err
		}
		return effect(nil, []ValueType{t}), nil

	case LocalSet:
		t, err := c.local(e.Local, at)
		if err != nil {
			return opType{}, err
		}
		return effect([]ValueType{t}, nil), nil

	case LocalTee:
		t, err := c.local(e.Local, at)
		if err != nil {
			return opType{}, err
		}
		return effect([]ValueType{t}, []ValueType{t}), nil

	case GlobalGet:
		gt, err := c.global(e.Global, at)
		if err != nil {
			return opType{}, err
		}
		return effect(nil, []ValueType{gt.ValType}), nil

	case GlobalSet:
		gt, err := c.global(e.Global, at)
		if err != nil {
			return opType{}, err
		}
		if !gt.Mutable {
			return opType{}, invalid(at, "global %d is immutable", e.Global)
		}
		return effect([]ValueType{gt.ValType}, nil), nil

	case RefNull:
		return effect(nil, []ValueType{e.Type}), nil

	case RefIsNull:
		return effect([]ValueType{RefTypeAny}, []ValueType{i32}), nil

	case RefFunc:
		if _, err := c.fnc(e.Func, at); err != nil {
			return opType{}, err
		}
		if _, ok := c.refs[e.Func]; !ok {
			return opType{}, invalid(at, "undeclared function reference %d", e.Func)
		}
		return effect(nil, []ValueType{RefTypeFunc}), nil

	case Const:
		return effect(nil, []ValueType{e.Type}), nil

	case Unary:
		return effect([]ValueType{e.Type}, []ValueType{e.Type}), nil

	case Binary:
		return effect([]ValueType{e.Type, e.Type}, []ValueType{e.Type}), nil

	case Test:
		return effect([]ValueType{e.Type}, []ValueType{i32}), nil

	case Compare:
		return effect([]ValueType{e.Type, e.Type}, []ValueType{i32}), nil

	case Convert:
		if e.From == e.To {
			return opType{}, invalid(at, "invalid conversion from %s to %s", e.From, e.To)
		}
		return effect([]ValueType{e.From}, []ValueType{e.To}), nil

	case Load:
		if _, err := c.memory(0, at); err != nil {
			return opType{}, err
		}
		if err := checkMemArg(e.Type, e.Pack, e.Align, at); err != nil {
			return opType{}, err
		}
		return effect([]ValueType{i32}, []ValueType{e.Type}), nil

	case Store:
		if _, err := c.memory(0, at); err != nil {
			return opType{}, err
		}
		if err := checkMemArg(e.Type, e.Pack, e.Align, at); err != nil {
			return opType{}, err
		}
		return effect([]ValueType{i32, e.Type}, nil), nil

	case MemorySize:
		if _, err := c.memory(0, at); err != nil {
			return opType{}, err
		}
		return effect(nil, []ValueType{i32}), nil

	case MemoryGrow:
		if _, err := c.memory(0, at); err != nil {
			return opType{}, err
		}
		return effect([]ValueType{i32}, []ValueType{i32}), nil
	}

	panic(fmt.Errorf("BUG: unhandled instruction %s", InstrName(e)))
}

// checkMemArg enforces natural alignment and the packed-access rules: packing
// applies only to integers, must be narrower than the accessed type, and
// 32-bit packing is meaningful only on 64-bit values.
func checkMemArg(t NumType, pack PackWidth, align uint32, at Pos) error {
	width := t.Bits()
	if pack != PackNone {
		if !t.IsInteger() || uint32(pack) >= width || (pack == Pack32 && t != NumTypeI64) {
			return invalid(at, "invalid packed memory access")
		}
		width = uint32(pack)
	}
	if align >= 32 || 1<<align > width/8 {
		return invalid(at, "invalid memory alignment")
	}
	return nil
}

// checkSeq infers the stack left by an instruction sequence, folding each
// instruction's effect left to right so that instructions which read the
// stack see exactly the stack their predecessors left.
func (c *context) checkSeq(body []Instr) (stackType, error) {
	s := stackOf()
	for _, e := range body {
		op, err := c.checkInstr(e, s)
		if err != nil {
			return stackType{}, err
		}
		rem, err := pop(op.ins, s, e.Pos())
		if err != nil {
			return stackType{}, err
		}
		s = push(op.outs, rem, e.Pos())
	}
	return s, nil
}

// checkBlock validates an instruction sequence and demands its final stack
// pops down to exactly the declared results, with nothing left over.
func (c *context) checkBlock(body []Instr, results []ValueType, at Pos) error {
	s, err := c.checkSeq(body)
	if err != nil {
		return err
	}
	rem, err := pop(stackOf(results...), s, at)
	if err != nil {
		return err
	}
	if len(rem.ts) != 0 {
		return invalid(at, "type mismatch: block requires %s but stack has %s", typesString(results), s)
	}
	return nil
}

// validateFunction checks one function body against its declared type. The
// body sees the parameters and declared locals, and an implicit outermost
// label holding the results.
func (c *context) validateFunction(ft *FunctionType, code *Code, at Pos) error {
	params := ft.UnwrappedParams()
	locals := make([]ValueType, 0, len(params)+len(code.LocalTypes))
	locals = append(locals, params...)
	locals = append(locals, code.LocalTypes...)

	results := ft.UnwrappedResults()
	return c.withFrame(locals, results).checkBlock(code.Body, results, at)
}
