package wasm

import "fmt"

// Index is the offset in an index namespace, not necessarily an absolute
// position in a Module section, because index namespaces are often preceded
// by the corresponding imports in Module.ImportSection.
type Index = uint32

// Module is the abstract syntax of a decoded module, the input to Validate.
//
// Section order in the struct mirrors the index-space rules: every namespace
// (functions, tables, memories, globals, abstract types) begins with imported
// entities, in import order, followed by locally declared ones, in declaration
// order.
type Module struct {
	// TypeSection contains the function signatures referenced by function
	// imports and by FunctionSection.
	TypeSection []*FunctionType

	// ImportSection contains imported abstract types, functions, tables,
	// memories and globals required for instantiation.
	ImportSection []*Import

	// FunctionSection contains the TypeSection index of each function
	// defined in this module. It is index-correlated with CodeSection.
	FunctionSection []Index

	// CodeSection holds each locally defined function's locals and body.
	CodeSection []*Code

	TableSection  []*TableType
	MemorySection []*MemoryType
	GlobalSection []*Global

	// ElementSection initializes tables, and in declarative mode marks
	// functions as referenceable by RefFunc.
	ElementSection []*ElementSegment

	// DataSection initializes memories.
	DataSection []*DataSegment

	// StartSection, when present, is the function index namespace position
	// of a nullary function run at instantiation.
	StartSection *Index

	// ExportSection is ordered: the position of an abstract-type export
	// among its peers is the local index LocalTypeRef refers to. Export
	// names must be unique, which Validate enforces.
	ExportSection []*Export
}

// Import is one required entity, discriminated by Kind.
type Import struct {
	Kind ExternKind
	// Module is the primary namespace of the two-part import name.
	Module string
	// Name is the secondary namespace of the two-part import name.
	Name string
	// DescFunc is the TypeSection index when Kind is ExternKindFunc.
	DescFunc Index
	// DescTable is the inlined table type when Kind is ExternKindTable.
	DescTable *TableType
	// DescMem is the inlined memory type when Kind is ExternKindMemory.
	DescMem *MemoryType
	// DescGlobal is the inlined global type when Kind is ExternKindGlobal.
	DescGlobal *GlobalType
	// An abstract-type import carries no description beyond its name.

	At Pos
}

// Export is one offered entity, discriminated by Kind.
type Export struct {
	Kind ExternKind
	// Name is what importing modules refer to this entity as.
	Name string
	// Index addresses the entity in the index namespace of Kind. It is
	// unused for abstract-type exports, whose identity is positional.
	Index Index

	At Pos
}

// Code is an entry of CodeSection: the locals and body of one function.
type Code struct {
	LocalTypes []ValueType
	Body       []Instr
}

// Global pairs a global declaration with its constant initializer.
type Global struct {
	Type *GlobalType
	Init []Instr

	At Pos
}

// ElementMode selects how an element segment takes effect.
type ElementMode = byte

const (
	// ElementModeActive segments copy into a table at instantiation.
	ElementModeActive ElementMode = iota
	// ElementModePassive segments wait for an explicit instruction.
	ElementModePassive
	// ElementModeDeclarative segments only declare functions referenceable
	// by RefFunc; they never materialize.
	ElementModeDeclarative
)

// ElementSegment initializes a range of table elements.
type ElementSegment struct {
	Mode ElementMode
	// Type is the reference kind of every initializer in Init.
	Type RefType
	// TableIndex and Offset identify the destination; both are meaningful
	// only in active mode.
	TableIndex Index
	Offset     []Instr
	// Init holds one constant expression per element.
	Init [][]Instr

	At Pos
}

// DataMode selects how a data segment takes effect.
type DataMode = byte

const (
	DataModeActive DataMode = iota
	DataModePassive
)

// DataSegment initializes a range of memory bytes.
type DataSegment struct {
	Mode DataMode
	// MemoryIndex and Offset identify the destination; both are meaningful
	// only in active mode.
	MemoryIndex Index
	Offset      []Instr
	Init        []byte

	At Pos
}

// ExternKind discriminates the boundary-visible kinds of entities.
type ExternKind = byte

const (
	ExternKindAbsType ExternKind = iota
	ExternKindFunc
	ExternKindTable
	ExternKindMemory
	ExternKindGlobal
)

// ExternKindName returns the canonical name of an extern kind.
func ExternKindName(ek ExternKind) string {
	switch ek {
	case ExternKindAbsType:
		return "abstract type"
	case ExternKindFunc:
		return "func"
	case ExternKindTable:
		return "table"
	case ExternKindMemory:
		return "memory"
	case ExternKindGlobal:
		return "global"
	}
	return "unknown"
}

// allDeclarations accumulates every index namespace of the module, imported
// entities first in import order, then local declarations in declaration
// order. This positional accumulation is the addressing scheme every Index in
// import and export declarations resolves against, so extern typing and
// context construction both go through it.
func (m *Module) allDeclarations() (sealed []TypeRef, functions []Index, globals []*GlobalType, memories []*MemoryType, tables []*TableType) {
	for _, imp := range m.ImportSection {
		switch imp.Kind {
		case ExternKindAbsType:
			sealed = append(sealed, ModuleTypeRef{Module: imp.Module, Name: imp.Name})
		case ExternKindFunc:
			functions = append(functions, imp.DescFunc)
		case ExternKindTable:
			tables = append(tables, imp.DescTable)
		case ExternKindMemory:
			memories = append(memories, imp.DescMem)
		case ExternKindGlobal:
			globals = append(globals, imp.DescGlobal)
		default:
			panic(fmt.Errorf("BUG: unknown extern kind: %d", imp.Kind))
		}
	}

	functions = append(functions, m.FunctionSection...)
	for _, g := range m.GlobalSection {
		globals = append(globals, g.Type)
	}
	memories = append(memories, m.MemorySection...)
	tables = append(tables, m.TableSection...)
	return
}

// declaredFunctions collects the function indexes made referenceable by
// declarative element segments. RefFunc is legal only for members of this
// set, which is computed before any body is validated so that forward and
// backward references both work in the single pass.
func (m *Module) declaredFunctions() map[Index]struct{} {
	refs := map[Index]struct{}{}
	for _, es := range m.ElementSection {
		if es.Mode != ElementModeDeclarative {
			continue
		}
		for _, expr := range es.Init {
			for _, e := range expr {
				if rf, ok := e.(RefFunc); ok {
					refs[rf.Func] = struct{}{}
				}
			}
		}
	}
	return refs
}

// SectionID identifies a section of a Module for diagnostics.
type SectionID = byte

const (
	SectionIDType SectionID = iota
	SectionIDImport
	SectionIDFunction
	SectionIDTable
	SectionIDMemory
	SectionIDGlobal
	SectionIDExport
	SectionIDStart
	SectionIDElement
	SectionIDCode
	SectionIDData
)

// SectionIDName returns the canonical name of a module section.
func SectionIDName(sectionID SectionID) string {
	switch sectionID {
	case SectionIDType:
		return "type"
	case SectionIDImport:
		return "import"
	case SectionIDFunction:
		return "function"
	case SectionIDTable:
		return "table"
	case SectionIDMemory:
		return "memory"
	case SectionIDGlobal:
		return "global"
	case SectionIDExport:
		return "export"
	case SectionIDStart:
		return "start"
	case SectionIDElement:
		return "element"
	case SectionIDCode:
		return "code"
	case SectionIDData:
		return "data"
	}
	return "unknown"
}

// SectionElementCount returns the count of elements in a given section.
func (m *Module) SectionElementCount(sectionID SectionID) uint32 {
	switch sectionID {
	case SectionIDType:
		return uint32(len(m.TypeSection))
	case SectionIDImport:
		return uint32(len(m.ImportSection))
	case SectionIDFunction:
		return uint32(len(m.FunctionSection))
	case SectionIDTable:
		return uint32(len(m.TableSection))
	case SectionIDMemory:
		return uint32(len(m.MemorySection))
	case SectionIDGlobal:
		return uint32(len(m.GlobalSection))
	case SectionIDExport:
		return uint32(len(m.ExportSection))
	case SectionIDStart:
		if m.StartSection != nil {
			return 1
		}
		return 0
	case SectionIDElement:
		return uint32(len(m.ElementSection))
	case SectionIDCode:
		return uint32(len(m.CodeSection))
	case SectionIDData:
		return uint32(len(m.DataSection))
	default:
		panic(fmt.Errorf("BUG: unknown section: %d", sectionID))
	}
}
