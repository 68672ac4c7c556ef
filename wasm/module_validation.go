package wasm

import "fmt"

const (
	// maximumTableEntries is the format ceiling on table sizes.
	maximumTableEntries = uint64(1) << 32
	// maximumMemoryPages is the format ceiling on memory sizes (4GiB).
	maximumMemoryPages = uint64(65536)
)

// Validate statically checks the whole module: every declaration, segment,
// constant initializer and function body. It returns nil or the first
// ValidationError found; it never mutates the module, so re-validating is
// deterministic and concurrent validations of independent modules are safe.
func (m *Module) Validate() error {
	if len(m.FunctionSection) != len(m.CodeSection) {
		return invalid(0, "function and code section have inconsistent lengths")
	}

	c, err := m.buildContext()
	if err != nil {
		return err
	}

	for _, ft := range m.TypeSection {
		if err := c.validateFunctionType(ft); err != nil {
			return err
		}
	}
	if err := m.validateGlobals(c); err != nil {
		return err
	}
	if err := m.validateTables(c); err != nil {
		return err
	}
	if err := m.validateMemories(c); err != nil {
		return err
	}
	if err := m.validateElementSegments(c); err != nil {
		return err
	}
	if err := m.validateDataSegments(c); err != nil {
		return err
	}
	if err := m.validateFunctions(c); err != nil {
		return err
	}
	if err := m.validateStart(c); err != nil {
		return err
	}
	if err := m.validateExports(c); err != nil {
		return err
	}

	if len(c.memories) > 1 {
		return invalid(0, "multiple memories")
	}
	return nil
}

// buildContext folds the module into a validation context in dependency
// order: the type list binds first so function imports can resolve against
// it, then imports in declaration order, then local functions, tables,
// memories and segment types. Globals are deliberately absent here; they bind
// one by one while their initializers are validated, so a global can observe
// only previously bound state.
func (m *Module) buildContext() (*context, error) {
	c := &context{
		types: m.TypeSection,
		datas: len(m.DataSection),
		refs:  m.declaredFunctions(),
	}

	for _, imp := range m.ImportSection {
		switch imp.Kind {
		case ExternKindAbsType:
			c.sealed = append(c.sealed, ModuleTypeRef{Module: imp.Module, Name: imp.Name})
		case ExternKindFunc:
			ft, err := c.typ(imp.DescFunc, imp.At)
			if err != nil {
				return nil, err
			}
			c.funcs = append(c.funcs, ft)
		case ExternKindTable:
			c.tables = append(c.tables, imp.DescTable)
		case ExternKindMemory:
			c.memories = append(c.memories, imp.DescMem)
		case ExternKindGlobal:
			c.globals = append(c.globals, imp.DescGlobal)
		default:
			panic(fmt.Errorf("BUG: unknown extern kind: %d", imp.Kind))
		}
	}

	for _, typeIdx := range m.FunctionSection {
		ft, err := c.typ(typeIdx, 0)
		if err != nil {
			return nil, err
		}
		c.funcs = append(c.funcs, ft)
	}
	c.tables = append(c.tables, m.TableSection...)
	c.memories = append(c.memories, m.MemorySection...)
	for _, es := range m.ElementSection {
		c.elems = append(c.elems, es.Type)
	}
	return c, nil
}

// validateFunctionType checks a type definition: the result-arity restriction
// and that every sealed abstract type it mentions was actually imported.
func (c *context) validateFunctionType(ft *FunctionType) error {
	if err := checkResultArity(len(ft.Results), 0); err != nil {
		return err
	}
	for _, ws := range [][]WrappedType{ft.Params, ft.Results} {
		for _, w := range ws {
			if s, ok := w.Type.(SealedType); ok && Index(s) >= uint32(len(c.sealed)) {
				return invalid(0, "unknown abstract type %d", Index(s))
			}
		}
	}
	return nil
}

// validateGlobals checks each initializer against the restricted constant
// language and binds the globals into the context one at a time, so an
// initializer can read imported globals and locally declared ones that
// precede it, never itself or a later one.
func (m *Module) validateGlobals(c *context) error {
	for i, g := range m.GlobalSection {
		if err := c.validateConstExpr(g.Init, []ValueType{g.Type.ValType}, g.At); err != nil {
			return invalid(g.At, "%s[%d] %v", SectionIDName(SectionIDGlobal), i, constErrMsg(err))
		}
		c.globals = append(c.globals, g.Type)
	}
	return nil
}

func (m *Module) validateTables(c *context) error {
	for i, t := range c.tables {
		if err := validateLimits(t.Limits, maximumTableEntries, "entries"); err != nil {
			return invalid(0, "%s[%d] %v", SectionIDName(SectionIDTable), i, constErrMsg(err))
		}
	}
	return nil
}

func (m *Module) validateMemories(c *context) error {
	for i, mem := range c.memories {
		if err := validateLimits(*mem, maximumMemoryPages, "pages (4GiB)"); err != nil {
			return invalid(0, "%s[%d] %v", SectionIDName(SectionIDMemory), i, constErrMsg(err))
		}
	}
	return nil
}

func validateLimits(l Limits, ceiling uint64, unit string) error {
	if l.Min > ceiling || (l.Max != nil && *l.Max > ceiling) {
		return invalid(0, "size must be at most %d %s", ceiling, unit)
	}
	if l.Max != nil && l.Min > *l.Max {
		return invalid(0, "size minimum must not be greater than maximum")
	}
	return nil
}

func (m *Module) validateElementSegments(c *context) error {
	for i, es := range m.ElementSection {
		for _, expr := range es.Init {
			if err := c.validateConstExpr(expr, []ValueType{es.Type}, es.At); err != nil {
				return invalid(es.At, "%s[%d] %v", SectionIDName(SectionIDElement), i, constErrMsg(err))
			}
		}
		if es.Mode != ElementModeActive {
			continue
		}
		tt, err := c.table(es.TableIndex, es.At)
		if err != nil {
			return err
		}
		if !matchRefType(es.Type, tt.ElemType) {
			return invalid(es.At, "%s[%d] type mismatch: segment type %s does not match table element type %s",
				SectionIDName(SectionIDElement), i, es.Type, tt.ElemType)
		}
		if err := c.validateConstExpr(es.Offset, []ValueType{NumTypeI32}, es.At); err != nil {
			return invalid(es.At, "%s[%d] %v", SectionIDName(SectionIDElement), i, constErrMsg(err))
		}
	}
	return nil
}

func (m *Module) validateDataSegments(c *context) error {
	for i, ds := range m.DataSection {
		if ds.Mode != DataModeActive {
			continue
		}
		if _, err := c.memory(ds.MemoryIndex, ds.At); err != nil {
			return err
		}
		if err := c.validateConstExpr(ds.Offset, []ValueType{NumTypeI32}, ds.At); err != nil {
			return invalid(ds.At, "%s[%d] %v", SectionIDName(SectionIDData), i, constErrMsg(err))
		}
	}
	return nil
}

func (m *Module) validateFunctions(c *context) error {
	importCount := 0
	for _, imp := range m.ImportSection {
		if imp.Kind == ExternKindFunc {
			importCount++
		}
	}
	for i := range m.FunctionSection {
		ft := c.funcs[importCount+i]
		if err := c.validateFunction(ft, m.CodeSection[i], 0); err != nil {
			return err
		}
	}
	return nil
}

func (m *Module) validateStart(c *context) error {
	if m.StartSection == nil {
		return nil
	}
	ft, err := c.fnc(*m.StartSection, 0)
	if err != nil {
		return err
	}
	if len(ft.Params) != 0 || len(ft.Results) != 0 {
		return invalid(0, "start function must have an empty signature")
	}
	return nil
}

func (m *Module) validateExports(c *context) error {
	names := make(map[string]struct{}, len(m.ExportSection))
	for _, exp := range m.ExportSection {
		if _, ok := names[exp.Name]; ok {
			return invalid(exp.At, "duplicate export name %q", exp.Name)
		}
		names[exp.Name] = struct{}{}

		switch exp.Kind {
		case ExternKindAbsType:
			// Nothing to resolve: the export itself is the declaration.
		case ExternKindFunc:
			if _, err := c.fnc(exp.Index, exp.At); err != nil {
				return err
			}
		case ExternKindTable:
			if _, err := c.table(exp.Index, exp.At); err != nil {
				return err
			}
		case ExternKindMemory:
			if _, err := c.memory(exp.Index, exp.At); err != nil {
				return err
			}
		case ExternKindGlobal:
			if _, err := c.global(exp.Index, exp.At); err != nil {
				return err
			}
		default:
			panic(fmt.Errorf("BUG: unknown extern kind: %d", exp.Kind))
		}
	}
	return nil
}

// validateConstExpr checks an initializer against the restricted constant
// language: numeric constants, null references, function references and reads
// of already-bound immutable globals, producing exactly the expected types.
// RefFunc here only needs its index in range; segments are themselves the
// declaration sites the refs set is derived from.
func (c *context) validateConstExpr(expr []Instr, expected []ValueType, at Pos) error {
	ts := make([]ValueType, 0, len(expected))
	for _, e := range expr {
		switch e := e.(type) {
		case Const:
			ts = append(ts, e.Type)
		case RefNull:
			ts = append(ts, e.Type)
		case RefFunc:
			if _, err := c.fnc(e.Func, e.Pos()); err != nil {
				return err
			}
			ts = append(ts, RefTypeFunc)
		case GlobalGet:
			gt, err := c.global(e.Global, e.Pos())
			if err != nil {
				return err
			}
			if gt.Mutable {
				return invalid(e.Pos(), "constant expression required, but global %d is mutable", e.Global)
			}
			ts = append(ts, gt.ValType)
		default:
			return invalid(e.Pos(), "constant expression required, but found %s", InstrName(e))
		}
	}
	if !matchValueTypes(ts, expected) {
		return invalid(at, "type mismatch: constant expression requires %s but produces %s",
			typesString(expected), typesString(ts))
	}
	return nil
}

// constErrMsg strips the position suffix when re-wrapping a nested error so
// the location is not rendered twice.
func constErrMsg(err error) string {
	if ve, ok := err.(*ValidationError); ok {
		return ve.msg
	}
	return err.Error()
}
