// Package wasm is the static validator for a stack-based, module-oriented
// bytecode format extended with abstract types: types a module can declare
// and export so that their representation is hidden from other modules, while
// their identity becomes distinguishable once the module is instantiated.
//
// The package consumes an already-decoded Module and either accepts it or
// returns the first ValidationError found. Binary decoding, execution and
// the concrete runtime representation of tables, memories and globals are
// deliberately out of scope; see Module.Validate, ExternTypeOfImport,
// ExternTypeOfExport and MatchExternType for the boundary this package
// exposes to decoders and instantiation components.
package wasm
