package wasm

import "fmt"

// ModuleInstance is the validator's view of an instantiated module: its
// identity, the abstract types it inherited from its own imports, and the
// entities it exports. Runtime contents of tables, memories and globals live
// in the embedding runtime, not here.
type ModuleInstance struct {
	Name string

	// ID is the generative identity of this instantiation. Two instances
	// of the same module carry different IDs and therefore export mutually
	// non-matching abstract types.
	ID InstanceID

	// Sealed records, in import order, the resolved abstract types bound
	// when this instance's own abstract-type imports were satisfied.
	Sealed []InstanceTypeRef

	Exports map[string]*ExportInstance
}

// ExportInstance is one instantiated entity offered by a ModuleInstance,
// discriminated by Kind.
type ExportInstance struct {
	Kind ExternKind

	// AbsType is set when Kind is ExternKindAbsType: the resolved identity
	// of the abstract type this instance exports.
	AbsType InstanceTypeRef

	Function *FunctionInstance
	Table    *TableInstance
	Memory   *MemoryInstance
	Global   *GlobalInstance
}

// FunctionInstance is an instantiated function. Module is nil for functions
// supplied by the host, which are owned by HostID and may not mention
// abstract types in their signatures.
type FunctionInstance struct {
	Module     *ModuleInstance
	Type       *FunctionType
	LocalTypes []ValueType
	Body       []Instr
}

// TableInstance carries the type of an instantiated table; its elements are
// runtime state outside this package.
type TableInstance struct {
	Type *TableType
}

// MemoryInstance carries the type of an instantiated memory.
type MemoryInstance struct {
	Type *MemoryType
}

// GlobalInstance carries the type of an instantiated global.
type GlobalInstance struct {
	Type *GlobalType
}

// ExternType computes the resolved external type of a function instance for
// import and export matching. Host functions resolve under HostID; a host
// signature that mints or mentions an abstract type is unsupported and
// panics.
func (f *FunctionInstance) ExternType() *ExternType[InstanceTypeRef] {
	owner := HostID
	var sealed []InstanceTypeRef
	if f.Module != nil {
		owner, sealed = f.Module.ID, f.Module.Sealed
	}
	return &ExternType[InstanceTypeRef]{
		Kind: ExternKindFunc,
		Func: externFuncType(f.Type, resolvedSealNew(owner), resolvedSealed(owner, sealed)),
	}
}

// ExternTypeOfExport computes the resolved external type of one exported
// entity of this instance.
func (m *ModuleInstance) ExternTypeOfExport(e *ExportInstance) *ExternType[InstanceTypeRef] {
	switch e.Kind {
	case ExternKindAbsType:
		r := e.AbsType
		return &ExternType[InstanceTypeRef]{Kind: ExternKindAbsType, AbsType: &r}
	case ExternKindFunc:
		return e.Function.ExternType()
	case ExternKindTable:
		return &ExternType[InstanceTypeRef]{Kind: ExternKindTable, Table: e.Table.Type}
	case ExternKindMemory:
		return &ExternType[InstanceTypeRef]{Kind: ExternKindMemory, Memory: e.Memory.Type}
	case ExternKindGlobal:
		return &ExternType[InstanceTypeRef]{Kind: ExternKindGlobal, Global: e.Global.Type}
	default:
		panic(fmt.Errorf("BUG: unknown extern kind: %d", e.Kind))
	}
}

// ResolvedExternTypeOfImport computes the external type an import demands at
// instantiation time, once the abstract types bound by the instance's earlier
// imports are known. owner is the identity of the instance being created and
// sealed its partially populated abstract-type table. An abstract-type import
// resolves to the reference already recorded for it in sealed; recording that
// binding in the first place is the instantiation component's job.
func (m *Module) ResolvedExternTypeOfImport(imp *Import, owner InstanceID, sealed []InstanceTypeRef) *ExternType[InstanceTypeRef] {
	abs := func(imp *Import) InstanceTypeRef {
		i := Index(0)
		for _, other := range m.ImportSection {
			if other == imp {
				break
			}
			if other.Kind == ExternKindAbsType {
				i++
			}
		}
		return resolvedSealed(owner, sealed)(i)
	}
	return externTypeOfImport(m, imp, abs, resolvedSealNew(owner), resolvedSealed(owner, sealed))
}

func resolvedSealNew(owner InstanceID) func(Index) InstanceTypeRef {
	return func(id Index) InstanceTypeRef {
		if owner == HostID {
			panic(fmt.Errorf("BUG: host-defined abstract types are not supported"))
		}
		return InstanceTypeRef{Owner: owner, Index: id}
	}
}

func resolvedSealed(owner InstanceID, sealed []InstanceTypeRef) func(Index) InstanceTypeRef {
	return func(i Index) InstanceTypeRef {
		if owner == HostID {
			panic(fmt.Errorf("BUG: host-defined abstract types are not supported"))
		}
		if int(i) >= len(sealed) {
			panic(fmt.Errorf("BUG: abstract type %d is not bound on instance %d", i, uint64(owner)))
		}
		return sealed[i]
	}
}
