package wasm

import "fmt"

// ImportFuncCount returns the number of function imports. Call indices
// below this count dispatch to the host; indices at or above it dispatch to
// the code section.
func (m *Module) ImportFuncCount() int {
	n := 0
	for _, imp := range m.Imports {
		if imp.Desc.Kind == ExternalFunction {
			n++
		}
	}
	return n
}

// TotalFuncCount returns the total number of functions in the call index
// space: imported plus defined.
func (m *Module) TotalFuncCount() int {
	return m.ImportFuncCount() + len(m.FuncSec)
}

// FuncRef resolves a call index into either a host import slot or a local
// code/type index. It is undefined (ok == false) when idx is out of range.
func (m *Module) FuncRef(idx int) (ref FuncRef, ok bool) {
	imported := m.ImportFuncCount()
	if idx < 0 || idx >= m.TotalFuncCount() {
		return FuncRef{}, false
	}
	if idx < imported {
		return FuncRef{Kind: FuncRefHost, Index: m.importFuncIndex(idx)}, true
	}
	return FuncRef{Kind: FuncRefLocal, Index: idx - imported}, true
}

// importFuncIndex maps the nth function import (counting only function
// imports) back to its index within Imports, since imports of other kinds
// (table/memory/global) interleave with it in encoding order.
func (m *Module) importFuncIndex(nthFunc int) int {
	seen := 0
	for i, imp := range m.Imports {
		if imp.Desc.Kind != ExternalFunction {
			continue
		}
		if seen == nthFunc {
			return i
		}
		seen++
	}
	panic("wasm: importFuncIndex out of range")
}

// TypeOfFunction returns the signature of the function at call index idx,
// whether imported or defined.
func (m *Module) TypeOfFunction(idx int) (FuncType, error) {
	ref, ok := m.FuncRef(idx)
	if !ok {
		return FuncType{}, fmt.Errorf("wasm: function index %d out of range", idx)
	}
	var typeIdx uint32
	switch ref.Kind {
	case FuncRefHost:
		typeIdx = m.Imports[ref.Index].Desc.TypeIdx
	case FuncRefLocal:
		typeIdx = m.FuncSec[ref.Index]
	}
	if int(typeIdx) >= len(m.Types) {
		return FuncType{}, fmt.Errorf("wasm: type index %d out of range", typeIdx)
	}
	return m.Types[typeIdx], nil
}

// Function assembles the local function at code index idx (0-based, after
// subtracting the imported-function count) into a Function value pairing
// its signature with its code entry.
func (m *Module) Function(codeIdx int) (Function, error) {
	if codeIdx < 0 || codeIdx >= len(m.FuncSec) {
		return Function{}, fmt.Errorf("wasm: local function index %d out of range", codeIdx)
	}
	typeIdx := m.FuncSec[codeIdx]
	if int(typeIdx) >= len(m.Types) {
		return Function{}, fmt.Errorf("wasm: type index %d out of range", typeIdx)
	}
	if codeIdx >= len(m.Code) {
		return Function{}, fmt.Errorf("wasm: code entry %d missing", codeIdx)
	}
	return Function{Type: m.Types[typeIdx], Code: m.Code[codeIdx]}, nil
}

// ExportedFunc looks up an exported function's call index by name.
func (m *Module) ExportedFunc(name string) (int, bool) {
	exp, ok := m.Exports[name]
	if !ok || exp.Desc.Kind != ExternalFunction {
		return 0, false
	}
	return int(exp.Desc.Idx), true
}
