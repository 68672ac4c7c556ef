package wasm

import "fmt"

// ExternVal is a value type as visible across a module boundary: either an
// ordinary value type, or an opaque abstract-type reference. An abstract type
// never crosses a boundary as its internal representation.
//
// The parameter R is the reference flavor: TypeRef before any instance
// exists, InstanceTypeRef afterwards.
type ExternVal[R any] struct {
	// Type is set for an ordinary value type, nil when Abs is set.
	Type ValueType
	// Abs is the opaque marker of an abstract type.
	Abs *R
}

// String implements fmt.Stringer
func (v ExternVal[R]) String() string {
	if v.Abs != nil {
		return fmt.Sprintf("%v", *v.Abs)
	}
	return v.Type.String()
}

// ExternFuncType is the boundary-visible form of a function signature. It
// retains the internal type alongside the externalized one: import and export
// matching read only Params and Results, while call-site validation in the
// defining module needs Internal.
type ExternFuncType[R any] struct {
	Params  []ExternVal[R]
	Results []ExternVal[R]

	// Internal is the signature as seen inside the defining module, where
	// minted abstract types are transparent.
	Internal *FunctionType
}

// ExternType is the uniform projection of any importable or exportable
// entity, discriminated by Kind.
type ExternType[R any] struct {
	Kind ExternKind

	// AbsType is set when Kind is ExternKindAbsType.
	AbsType *R
	// Func is set when Kind is ExternKindFunc.
	Func *ExternFuncType[R]
	// Table is set when Kind is ExternKindTable.
	Table *TableType
	// Memory is set when Kind is ExternKindMemory.
	Memory *MemoryType
	// Global is set when Kind is ExternKindGlobal.
	Global *GlobalType
}

// externFuncType lowers an internal function type to its boundary-visible
// form. sealNew is applied wherever the signature mints an abstract type, and
// resolveSealed wherever it mentions one imported earlier; supplying the two
// callbacks is what lets the identical algorithm serve both the unresolved
// and the resolved view.
func externFuncType[R any](ft *FunctionType, sealNew, resolveSealed func(Index) R) *ExternFuncType[R] {
	return &ExternFuncType[R]{
		Params:   externVals(ft.Params, sealNew, resolveSealed),
		Results:  externVals(ft.Results, sealNew, resolveSealed),
		Internal: ft,
	}
}

func externVals[R any](ws []WrappedType, sealNew, resolveSealed func(Index) R) []ExternVal[R] {
	out := make([]ExternVal[R], len(ws))
	for i, w := range ws {
		if w.Seals != nil {
			r := sealNew(*w.Seals)
			out[i] = ExternVal[R]{Abs: &r}
		} else if s, ok := w.Type.(SealedType); ok {
			r := resolveSealed(Index(s))
			out[i] = ExternVal[R]{Abs: &r}
		} else {
			out[i] = ExternVal[R]{Type: w.Type}
		}
	}
	return out
}

// externTypeOfImport dispatches on the import kind; the callbacks fix the
// reference flavor as in externFuncType, and abs produces the reference for
// an abstract-type import itself.
func externTypeOfImport[R any](m *Module, imp *Import, abs func(*Import) R, sealNew, resolveSealed func(Index) R) *ExternType[R] {
	switch imp.Kind {
	case ExternKindAbsType:
		r := abs(imp)
		return &ExternType[R]{Kind: ExternKindAbsType, AbsType: &r}
	case ExternKindFunc:
		if imp.DescFunc >= uint32(len(m.TypeSection)) {
			panic(fmt.Errorf("BUG: import %s.%s references unknown type %d", imp.Module, imp.Name, imp.DescFunc))
		}
		return &ExternType[R]{Kind: ExternKindFunc, Func: externFuncType(m.TypeSection[imp.DescFunc], sealNew, resolveSealed)}
	case ExternKindTable:
		return &ExternType[R]{Kind: ExternKindTable, Table: imp.DescTable}
	case ExternKindMemory:
		return &ExternType[R]{Kind: ExternKindMemory, Memory: imp.DescMem}
	case ExternKindGlobal:
		return &ExternType[R]{Kind: ExternKindGlobal, Global: imp.DescGlobal}
	default:
		panic(fmt.Errorf("BUG: unknown extern kind: %d", imp.Kind))
	}
}

// unresolvedSealNew mints the module's abstract type export id as a local
// reference.
func (m *Module) unresolvedSealNew(id Index) TypeRef {
	return LocalTypeRef{Index: id}
}

// unresolvedSealed names the i-th abstract type the module imports. An index
// out of range means the caller's context was built incorrectly, so this is
// an internal fault, not a validation error.
func (m *Module) unresolvedSealed(i Index) TypeRef {
	n := Index(0)
	for _, imp := range m.ImportSection {
		if imp.Kind != ExternKindAbsType {
			continue
		}
		if n == i {
			return ModuleTypeRef{Module: imp.Module, Name: imp.Name}
		}
		n++
	}
	panic(fmt.Errorf("BUG: abstract type %d is not imported", i))
}

// ExternTypeOfImport returns the external type the module demands for one of
// its imports, before any instance exists. It is used by linking components
// to discover what a validated module expects; calling it with an import of
// an unvalidated module may panic.
func (m *Module) ExternTypeOfImport(imp *Import) *ExternType[TypeRef] {
	abs := func(imp *Import) TypeRef {
		return ModuleTypeRef{Module: imp.Module, Name: imp.Name}
	}
	return externTypeOfImport(m, imp, abs, m.unresolvedSealNew, m.unresolvedSealed)
}

// ExternTypeOfExport returns the external type the module offers under one of
// its exports, before any instance exists. exp must be an entry of the
// module's ExportSection.
func (m *Module) ExternTypeOfExport(exp *Export) *ExternType[TypeRef] {
	switch exp.Kind {
	case ExternKindAbsType:
		local := Index(0)
		for _, e := range m.ExportSection {
			if e == exp {
				var r TypeRef = LocalTypeRef{Index: local}
				return &ExternType[TypeRef]{Kind: ExternKindAbsType, AbsType: &r}
			}
			if e.Kind == ExternKindAbsType {
				local++
			}
		}
		panic(fmt.Errorf("BUG: export %q is not part of the module", exp.Name))
	case ExternKindFunc:
		_, functions, _, _, _ := m.allDeclarations()
		if exp.Index >= uint32(len(functions)) {
			panic(fmt.Errorf("BUG: export %q references unknown function %d", exp.Name, exp.Index))
		}
		typeIdx := functions[exp.Index]
		if typeIdx >= uint32(len(m.TypeSection)) {
			panic(fmt.Errorf("BUG: export %q references unknown type %d", exp.Name, typeIdx))
		}
		return &ExternType[TypeRef]{
			Kind: ExternKindFunc,
			Func: externFuncType(m.TypeSection[typeIdx], m.unresolvedSealNew, m.unresolvedSealed),
		}
	case ExternKindTable:
		_, _, _, _, tables := m.allDeclarations()
		if exp.Index >= uint32(len(tables)) {
			panic(fmt.Errorf("BUG: export %q references unknown table %d", exp.Name, exp.Index))
		}
		return &ExternType[TypeRef]{Kind: ExternKindTable, Table: tables[exp.Index]}
	case ExternKindMemory:
		_, _, _, memories, _ := m.allDeclarations()
		if exp.Index >= uint32(len(memories)) {
			panic(fmt.Errorf("BUG: export %q references unknown memory %d", exp.Name, exp.Index))
		}
		return &ExternType[TypeRef]{Kind: ExternKindMemory, Memory: memories[exp.Index]}
	case ExternKindGlobal:
		_, _, globals, _, _ := m.allDeclarations()
		if exp.Index >= uint32(len(globals)) {
			panic(fmt.Errorf("BUG: export %q references unknown global %d", exp.Name, exp.Index))
		}
		return &ExternType[TypeRef]{Kind: ExternKindGlobal, Global: globals[exp.Index]}
	default:
		panic(fmt.Errorf("BUG: unknown extern kind: %d", exp.Kind))
	}
}

// MatchExternType reports whether an entity of type offered satisfies a
// requirement of type required. matchRef compares abstract-type references in
// the flavor at hand; everything else follows the width-subtyping-free rules:
// function types match pointwise in the same direction on both parameters and
// results, tables and memories use import-direction limits, globals match
// exactly.
func MatchExternType[R any](required, offered *ExternType[R], matchRef func(required, offered R) bool) bool {
	if required.Kind != offered.Kind {
		return false
	}
	switch required.Kind {
	case ExternKindAbsType:
		return matchRef(*required.AbsType, *offered.AbsType)
	case ExternKindFunc:
		return matchExternVals(required.Func.Params, offered.Func.Params, matchRef) &&
			matchExternVals(required.Func.Results, offered.Func.Results, matchRef)
	case ExternKindTable:
		return offered.Table.ElemType == required.Table.ElemType &&
			matchLimits(required.Table.Limits, offered.Table.Limits)
	case ExternKindMemory:
		return matchLimits(*required.Memory, *offered.Memory)
	case ExternKindGlobal:
		return offered.Global.Mutable == required.Global.Mutable &&
			offered.Global.ValType == required.Global.ValType
	default:
		panic(fmt.Errorf("BUG: unknown extern kind: %d", required.Kind))
	}
}

func matchExternVals[R any](required, offered []ExternVal[R], matchRef func(required, offered R) bool) bool {
	if len(required) != len(offered) {
		return false
	}
	for i := range required {
		r, o := required[i], offered[i]
		switch {
		case r.Abs != nil && o.Abs != nil:
			if !matchRef(*r.Abs, *o.Abs) {
				return false
			}
		case r.Abs == nil && o.Abs == nil:
			if !MatchValueType(o.Type, r.Type) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// MatchUnresolvedExternType matches two external types of modules considered
// in isolation.
func MatchUnresolvedExternType(required, offered *ExternType[TypeRef]) bool {
	return MatchExternType(required, offered, MatchTypeRef)
}

// MatchResolvedExternType matches two external types at instantiation time.
// This is the check performed once per cross-module linkage, when an
// importing instance binds to a providing entity.
func MatchResolvedExternType(required, offered *ExternType[InstanceTypeRef]) bool {
	return MatchExternType(required, offered, MatchInstanceTypeRef)
}
