// Package wasm implements the binary decoder for the WebAssembly 1.0 module
// format: it turns a module's raw bytes into the typed, read-only catalog
// the execution engine initializes itself from.
package wasm

// Magic is the 4-byte "\0asm" preamble every WASM module starts with.
const Magic uint32 = 0x6d736100

// Version is the only module version this decoder understands.
const Version uint32 = 0x1

// ValueType is a WebAssembly value type code. The decoder recognizes all
// four defined in the MVP; only ValueTypeI32 is ever executed.
type ValueType int8

const (
	ValueTypeI32 ValueType = 0x7F
	ValueTypeI64 ValueType = 0x7E
	ValueTypeF32 ValueType = 0x7D
	ValueTypeF64 ValueType = 0x7C
)

func (vt ValueType) String() string {
	switch vt {
	case ValueTypeI32:
		return "i32"
	case ValueTypeI64:
		return "i64"
	case ValueTypeF32:
		return "f32"
	case ValueTypeF64:
		return "f64"
	default:
		return "invalid"
	}
}

// BlockTypeEmpty is the only block type this subset's control instructions
// carry: WASM 1.0's multi-value proposal block types are not supported.
const BlockTypeEmpty byte = 0x40

// FuncTypeForm is the leading tag byte of every encoded function type.
const FuncTypeForm byte = 0x60

// ElemTypeFuncRef is the only table element type WASM 1.0 defines.
const ElemTypeFuncRef byte = 0x70

// External kinds, shared by import and export descriptors.
const (
	ExternalFunction byte = 0x00
	ExternalTable    byte = 0x01
	ExternalMemory   byte = 0x02
	ExternalGlobal   byte = 0x03
)

// FuncType is a function signature: an ordered parameter list and an
// ordered result list.
type FuncType struct {
	Params  []ValueType
	Results []ValueType
}

// Limits bounds a table or memory: a required minimum and an optional
// maximum (present when Flag's bit 0 is set).
type Limits struct {
	Flag uint8
	Min  uint32
	Max  uint32
}

// HasMax reports whether the limits carry an explicit maximum.
func (l Limits) HasMax() bool {
	return l.Flag&0x1 != 0
}

// Mem is a memory import/definition's limits, expressed in 64KiB pages.
type Mem struct {
	Limits Limits
}

// Table is a table import/definition's element type and limits.
type Table struct {
	ElemType byte
	Limits   Limits
}

// GlobalType is a global's value type and mutability.
type GlobalType struct {
	ValueType ValueType
	Mutable   bool
}

// Global is a module-defined global: its type and the raw bytes of its
// constant initializer expression (terminated by `end`). The engine, not
// the decoder, evaluates Init.
type Global struct {
	Type GlobalType
	Init []byte
}

// ImportDesc is the kind-specific descriptor attached to an Import.
type ImportDesc struct {
	Kind       byte
	TypeIdx    uint32 // valid when Kind == ExternalFunction
	Table      *Table
	Mem        *Mem
	GlobalType *GlobalType
}

// Import is one entry of the import section: a (module, field) pair naming
// an external dependency the engine binds at instantiation time.
type Import struct {
	ModuleName string
	FieldName  string
	Desc       ImportDesc
}

// ExportDesc names the index space an export's Idx resolves into.
type ExportDesc struct {
	Kind byte
	Idx  uint32
}

// Export is one entry of the export section.
type Export struct {
	Name string
	Desc ExportDesc
}

// Element is one active element segment: the table it populates and the
// function indices it writes, starting at a constant offset expression
// kept as raw bytes. Element segments are decoded but never executed
// against or evaluated, since tables are out of scope for this engine.
type Element struct {
	TableIdx uint32
	Offset   []byte
	Init     []uint32
}

// LocalEntry is one run of locals sharing a single value type, as they
// appear in a function's local declaration vector.
type LocalEntry struct {
	Count     uint32
	ValueType ValueType
}

// Code is one entry of the code section: a function's declared locals and
// its instruction body (without the trailing `end`, which the decoder
// strips since every dispatch loop treats it as the implicit frame
// terminator).
type Code struct {
	Locals []LocalEntry
	Body   []byte
}

// Data is one active data segment: the memory it targets, the constant
// offset (already resolved to a concrete u32 at decode time, since MVP data
// offsets are always a bare `i32.const ... end`), and its payload.
type Data struct {
	MemIdx uint32
	Offset uint32
	Init   []byte
}

// Function is a defined (non-imported) function: its signature, resolved
// via the type section, and its code section entry.
type Function struct {
	Type FuncType
	Code Code
}

// FuncRefKind distinguishes where a call index dispatches to.
type FuncRefKind int

const (
	// FuncRefHost indicates the index resolves to an imported function the
	// host must supply a callback for.
	FuncRefHost FuncRefKind = iota
	// FuncRefLocal indicates the index resolves to a module-defined
	// function with a code section entry.
	FuncRefLocal
)

// FuncRef is the result of resolving a call index: either a host import
// slot or a local function/code index.
type FuncRef struct {
	Kind  FuncRefKind
	Index int
}

// Module is the decoder's output: an immutable, read-only catalog of a
// module's sections. The execution engine is the only thing that
// interprets it; Module itself never executes a single instruction.
type Module struct {
	Version uint32

	Types    []FuncType
	Imports  []Import
	FuncSec  []uint32 // type index per defined function, in code order
	Tables   []Table
	Mems     []Mem
	Globals  []Global
	Exports  map[string]Export
	HasStart bool
	Start    uint32
	Elements []Element
	Code     []Code
	Data     []Data
}
