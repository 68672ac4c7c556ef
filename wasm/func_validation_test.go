package wasm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// bodyContext is the module-level state the body tests validate against:
// one [i32] -> [i32] type, a function of that type, a funcref table, one
// memory, a mutable i32 global and an immutable f64 one.
func bodyContext() *context {
	i32i32 := &FunctionType{Params: Plain(NumTypeI32), Results: Plain(NumTypeI32)}
	return &context{
		types:    []*FunctionType{i32i32},
		funcs:    []*FunctionType{i32i32},
		tables:   []*TableType{{ElemType: RefTypeFunc, Limits: Limits{Min: 1}}},
		memories: []*MemoryType{{Min: 1}},
		globals: []*GlobalType{
			{ValType: NumTypeI32, Mutable: true},
			{ValType: NumTypeF64, Mutable: false},
		},
		refs: map[Index]struct{}{0: {}},
	}
}

func TestValidateFunction(t *testing.T) {
	tests := []struct {
		name        string
		functype    *FunctionType
		code        *Code
		expectedErr string
	}{
		{
			name:     "add one to parameter",
			functype: &FunctionType{Params: Plain(NumTypeI32), Results: Plain(NumTypeI32)},
			code: &Code{Body: []Instr{
				LocalGet{Local: 0},
				Const{Type: NumTypeI32, Value: 1},
				Binary{Type: NumTypeI32, Op: BinOpAdd},
			}},
		},
		{
			name:     "code after unreachable checks against anything",
			functype: &FunctionType{},
			code: &Code{Body: []Instr{
				Unreachable{},
				Const{Type: NumTypeI32, Value: 1},
				Drop{},
			}},
		},
		{
			name:     "unreachable satisfies the result",
			functype: &FunctionType{Results: Plain(NumTypeI32)},
			code:     &Code{Body: []Instr{Unreachable{}}},
		},
		{
			name:     "drop after unreachable consumes a bottom",
			functype: &FunctionType{},
			code:     &Code{Body: []Instr{Unreachable{}, Drop{}}},
		},
		{
			name:        "missing result",
			functype:    &FunctionType{Results: Plain(NumTypeI32)},
			code:        &Code{Body: []Instr{Nop{}}},
			expectedErr: "type mismatch: instruction requires [i32] but stack has []",
		},
		{
			name:        "leftover value",
			functype:    &FunctionType{},
			code:        &Code{Body: []Instr{Const{Type: NumTypeI32}}},
			expectedErr: "type mismatch: block requires [] but stack has [i32]",
		},
		{
			name:        "wrong result type",
			functype:    &FunctionType{Results: Plain(NumTypeI32)},
			code:        &Code{Body: []Instr{Const{Type: NumTypeF32}}},
			expectedErr: "type mismatch: instruction requires [i32] but stack has [f32]",
		},
		{
			name:     "declared local",
			functype: &FunctionType{},
			code: &Code{
				LocalTypes: []ValueType{NumTypeF64},
				Body:       []Instr{LocalGet{Local: 0}, Drop{}},
			},
		},
		{
			name:        "unknown local",
			functype:    &FunctionType{Params: Plain(NumTypeI32)},
			code:        &Code{Body: []Instr{LocalGet{Local: 1}, Drop{}}},
			expectedErr: "unknown local 1",
		},
		{
			name:     "local.set and tee",
			functype: &FunctionType{Params: Plain(NumTypeI32), Results: Plain(NumTypeI32)},
			code: &Code{Body: []Instr{
				Const{Type: NumTypeI32, Value: 3},
				LocalTee{Local: 0},
				LocalSet{Local: 0},
				LocalGet{Local: 0},
			}},
		},
		{
			name:     "read and write mutable global",
			functype: &FunctionType{},
			code: &Code{Body: []Instr{
				GlobalGet{Global: 0},
				GlobalSet{Global: 0},
			}},
		},
		{
			name:     "assignment to immutable global",
			functype: &FunctionType{},
			code: &Code{Body: []Instr{
				Const{Type: NumTypeF64},
				GlobalSet{Global: 1},
			}},
			// Even though f64 is the right type, mutability is checked.
			expectedErr: "global 1 is immutable",
		},
		{
			name:        "unknown global",
			functype:    &FunctionType{},
			code:        &Code{Body: []Instr{GlobalGet{Global: 5}, Drop{}}},
			expectedErr: "unknown global 5",
		},
		{
			name:     "call",
			functype: &FunctionType{Results: Plain(NumTypeI32)},
			code: &Code{Body: []Instr{
				Const{Type: NumTypeI32, Value: 7},
				Call{Func: 0},
			}},
		},
		{
			name:        "unknown function",
			functype:    &FunctionType{},
			code:        &Code{Body: []Instr{Call{Func: 1}}},
			expectedErr: "unknown function 1",
		},
		{
			name:     "call_indirect",
			functype: &FunctionType{Results: Plain(NumTypeI32)},
			code: &Code{Body: []Instr{
				Const{Type: NumTypeI32, Value: 7},
				Const{Type: NumTypeI32, Value: 0},
				CallIndirect{Table: 0, Type: 0},
			}},
		},
		{
			name:        "call_indirect unknown table",
			functype:    &FunctionType{},
			code:        &Code{Body: []Instr{Const{Type: NumTypeI32}, CallIndirect{Table: 1, Type: 0}}},
			expectedErr: "unknown table 1",
		},
		{
			name:        "call_indirect unknown type",
			functype:    &FunctionType{},
			code:        &Code{Body: []Instr{Const{Type: NumTypeI32}, CallIndirect{Table: 0, Type: 9}}},
			expectedErr: "unknown type 9",
		},
		{
			name:     "untyped select on numerics",
			functype: &FunctionType{Results: Plain(NumTypeF32)},
			code: &Code{Body: []Instr{
				Const{Type: NumTypeF32},
				Const{Type: NumTypeF32},
				Const{Type: NumTypeI32},
				Select{},
			}},
		},
		{
			name:     "untyped select after unreachable",
			functype: &FunctionType{},
			code: &Code{Body: []Instr{
				Unreachable{},
				Select{},
				Drop{},
			}},
		},
		{
			name:     "untyped select on references",
			functype: &FunctionType{},
			code: &Code{Body: []Instr{
				RefNull{Type: RefTypeFunc},
				RefNull{Type: RefTypeFunc},
				Const{Type: NumTypeI32},
				Select{},
				Drop{},
			}},
			expectedErr: "type mismatch: select requires a numeric type but stack has funcref",
		},
		{
			name:     "typed select on references",
			functype: &FunctionType{},
			code: &Code{Body: []Instr{
				RefNull{Type: RefTypeFunc},
				RefNull{Type: RefTypeFunc},
				Const{Type: NumTypeI32},
				Select{Types: []ValueType{RefTypeFunc}},
				Drop{},
			}},
		},
		{
			name:     "typed select with two annotations",
			functype: &FunctionType{},
			code: &Code{Body: []Instr{
				Const{Type: NumTypeI32},
				Const{Type: NumTypeI32},
				Const{Type: NumTypeI32},
				Select{Types: []ValueType{NumTypeI32, NumTypeI32}},
				Drop{},
			}},
			expectedErr: "select annotation must have exactly one type",
		},
		{
			name:     "block result",
			functype: &FunctionType{Results: Plain(NumTypeI32)},
			code: &Code{Body: []Instr{
				Block{Results: []ValueType{NumTypeI32}, Body: []Instr{
					Const{Type: NumTypeI32, Value: 1},
				}},
			}},
		},
		{
			name:     "block with two results",
			functype: &FunctionType{},
			code: &Code{Body: []Instr{
				Block{Results: []ValueType{NumTypeI32, NumTypeI32}},
			}},
			expectedErr: "invalid result arity, larger than 1 is not (yet) allowed",
		},
		{
			name:     "br to block label",
			functype: &FunctionType{Results: Plain(NumTypeI32)},
			code: &Code{Body: []Instr{
				Block{Results: []ValueType{NumTypeI32}, Body: []Instr{
					Const{Type: NumTypeI32, Value: 1},
					Br{Label: 0},
				}},
			}},
		},
		{
			name:     "br to function label",
			functype: &FunctionType{Results: Plain(NumTypeI32)},
			code: &Code{Body: []Instr{
				Const{Type: NumTypeI32, Value: 1},
				Br{Label: 0},
			}},
		},
		{
			name:        "br to unknown label",
			functype:    &FunctionType{},
			code:        &Code{Body: []Instr{Br{Label: 1}}},
			expectedErr: "unknown label 1",
		},
		{
			name:     "br_if keeps the label types",
			functype: &FunctionType{Results: Plain(NumTypeI32)},
			code: &Code{Body: []Instr{
				Const{Type: NumTypeI32, Value: 1},
				Const{Type: NumTypeI32, Value: 0},
				BrIf{Label: 0},
			}},
		},
		{
			name:     "loop label carries the entry type",
			functype: &FunctionType{Results: Plain(NumTypeI32)},
			code: &Code{Body: []Instr{
				Loop{Results: []ValueType{NumTypeI32}, Body: []Instr{
					// A branch to label 0 re-enters the loop, so it needs
					// no operand even though the loop yields one.
					Const{Type: NumTypeI32, Value: 0},
					BrIf{Label: 0},
					Const{Type: NumTypeI32, Value: 1},
				}},
			}},
		},
		{
			name:     "if arms agree",
			functype: &FunctionType{Results: Plain(NumTypeI32)},
			code: &Code{Body: []Instr{
				Const{Type: NumTypeI32, Value: 1},
				If{
					Results: []ValueType{NumTypeI32},
					Then:    []Instr{Const{Type: NumTypeI32, Value: 1}},
					Else:    []Instr{Const{Type: NumTypeI32, Value: 2}},
				},
			}},
		},
		{
			name:     "if arm yields the wrong type",
			functype: &FunctionType{Results: Plain(NumTypeI32)},
			code: &Code{Body: []Instr{
				Const{Type: NumTypeI32, Value: 1},
				If{
					Results: []ValueType{NumTypeI32},
					Then:    []Instr{Const{Type: NumTypeI32, Value: 1}},
					Else:    []Instr{Const{Type: NumTypeF32}},
				},
			}},
			expectedErr: "type mismatch: instruction requires [i32] but stack has [f32]",
		},
		{
			name:     "br_table targets agree",
			functype: &FunctionType{Results: Plain(NumTypeI32)},
			code: &Code{Body: []Instr{
				Block{Results: []ValueType{NumTypeI32}, Body: []Instr{
					Const{Type: NumTypeI32, Value: 1},
					Const{Type: NumTypeI32, Value: 0},
					BrTable{Labels: []Index{0, 1}, Default: 1},
				}},
			}},
		},
		{
			name:     "br_table target disagrees",
			functype: &FunctionType{Results: Plain(NumTypeI32)},
			code: &Code{Body: []Instr{
				Block{Results: []ValueType{NumTypeF32}, Body: []Instr{
					Const{Type: NumTypeF32},
					Const{Type: NumTypeI32, Value: 0},
					BrTable{Labels: []Index{0}, Default: 1},
				}},
			}},
			expectedErr: "type mismatch: instruction requires [i32] but stack has [f32]",
		},
		{
			name:     "br_table after unreachable",
			functype: &FunctionType{Results: Plain(NumTypeI32)},
			code: &Code{Body: []Instr{
				Unreachable{},
				BrTable{Labels: []Index{0}, Default: 0},
			}},
		},
		{
			name:     "return",
			functype: &FunctionType{Results: Plain(NumTypeI32)},
			code: &Code{Body: []Instr{
				Const{Type: NumTypeI32, Value: 1},
				Return{},
			}},
		},
		{
			name:        "return without operand",
			functype:    &FunctionType{Results: Plain(NumTypeI32)},
			code:        &Code{Body: []Instr{Return{}}},
			expectedErr: "type mismatch: instruction requires [i32] but stack has []",
		},
		{
			name:     "numeric operators",
			functype: &FunctionType{Results: Plain(NumTypeI32)},
			code: &Code{Body: []Instr{
				Const{Type: NumTypeI64, Value: 3},
				Unary{Type: NumTypeI64, Op: UnOpPopcnt},
				Test{Type: NumTypeI64, Op: TestOpEqz},
				Const{Type: NumTypeF64},
				Const{Type: NumTypeF64},
				Compare{Type: NumTypeF64, Op: RelOpLt},
				Binary{Type: NumTypeI32, Op: BinOpAnd},
			}},
		},
		{
			name:     "conversion",
			functype: &FunctionType{Results: Plain(NumTypeI64)},
			code: &Code{Body: []Instr{
				Const{Type: NumTypeI32, Value: 1},
				Convert{From: NumTypeI32, To: NumTypeI64, Op: CvtOpExtendS},
			}},
		},
		{
			name:     "conversion within one kind",
			functype: &FunctionType{},
			code: &Code{Body: []Instr{
				Const{Type: NumTypeI32, Value: 1},
				Convert{From: NumTypeI32, To: NumTypeI32, Op: CvtOpExtendS},
				Drop{},
			}},
			expectedErr: "invalid conversion from i32 to i32",
		},
		{
			name:     "ref.is_null accepts any reference",
			functype: &FunctionType{Results: Plain(NumTypeI32)},
			code: &Code{Body: []Instr{
				RefNull{Type: RefTypeNull},
				RefIsNull{},
			}},
		},
		{
			name:     "ref.func on a declared function",
			functype: &FunctionType{},
			code:     &Code{Body: []Instr{RefFunc{Func: 0}, Drop{}}},
		},
		{
			name:     "load and store",
			functype: &FunctionType{},
			code: &Code{Body: []Instr{
				Const{Type: NumTypeI32, Value: 0},
				Const{Type: NumTypeI32, Value: 4},
				Load{Type: NumTypeI64, Pack: Pack16, Signed: true, Align: 1},
				Store{Type: NumTypeI64, Align: 3},
			}},
		},
		{
			name:     "memory.size and grow",
			functype: &FunctionType{Results: Plain(NumTypeI32)},
			code: &Code{Body: []Instr{
				MemorySize{},
				MemoryGrow{},
			}},
		},
		{
			name:     "over-aligned load",
			functype: &FunctionType{},
			code: &Code{Body: []Instr{
				Const{Type: NumTypeI32, Value: 0},
				Load{Type: NumTypeI32, Align: 3},
				Drop{},
			}},
			expectedErr: "invalid memory alignment",
		},
		{
			name:     "packed access to float",
			functype: &FunctionType{},
			code: &Code{Body: []Instr{
				Const{Type: NumTypeI32, Value: 0},
				Load{Type: NumTypeF32, Pack: Pack16},
				Drop{},
			}},
			expectedErr: "invalid packed memory access",
		},
		{
			name:     "32-bit packing of a 32-bit integer",
			functype: &FunctionType{},
			code: &Code{Body: []Instr{
				Const{Type: NumTypeI32, Value: 0},
				Load{Type: NumTypeI32, Pack: Pack32},
				Drop{},
			}},
			expectedErr: "invalid packed memory access",
		},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			err := bodyContext().validateFunction(tc.functype, tc.code, 0)
			if tc.expectedErr != "" {
				require.EqualError(t, err, tc.expectedErr)
			} else {
				require.NoError(t, err)
			}
		})
	}

	t.Run("ref.func on an unknown function", func(t *testing.T) {
		err := bodyContext().validateFunction(&FunctionType{}, &Code{Body: []Instr{
			RefFunc{Func: 9}, Drop{},
		}}, 0)
		require.EqualError(t, err, "unknown function 9")
	})

	t.Run("ref.func on an undeclared function", func(t *testing.T) {
		c := bodyContext()
		c.refs = nil
		err := c.validateFunction(&FunctionType{}, &Code{Body: []Instr{
			RefFunc{Func: 0}, Drop{},
		}}, 0)
		require.EqualError(t, err, "undeclared function reference 0")
	})

	t.Run("no memory declared", func(t *testing.T) {
		c := bodyContext()
		c.memories = nil
		err := c.validateFunction(&FunctionType{Results: Plain(NumTypeI32)}, &Code{Body: []Instr{
			MemorySize{},
		}}, 0)
		require.EqualError(t, err, "unknown memory 0")
	})

	t.Run("call_indirect on a non-funcref table", func(t *testing.T) {
		c := bodyContext()
		c.tables = []*TableType{{ElemType: RefTypeAny, Limits: Limits{Min: 1}}}
		err := c.validateFunction(&FunctionType{}, &Code{Body: []Instr{
			Const{Type: NumTypeI32},
			CallIndirect{Table: 0, Type: 0},
		}}, 0)
		require.EqualError(t, err, "type mismatch: call_indirect requires a table of funcref but table 0 holds anyref")
	})

	t.Run("sealed params are transparent inside the module", func(t *testing.T) {
		c := bodyContext()
		c.sealed = []TypeRef{ModuleTypeRef{Module: "adt", Name: "stack"}}
		ft := &FunctionType{
			Params:  Plain(SealedType(0)),
			Results: []WrappedType{Seal(NumTypeI32, 0)},
		}
		// The body sees abstract[0] as itself and the minted result as its
		// representation type.
		err := c.validateFunction(ft, &Code{Body: []Instr{
			LocalGet{Local: 0},
			Drop{},
			Const{Type: NumTypeI32, Value: 1},
		}}, 0)
		require.NoError(t, err)
	})
}
