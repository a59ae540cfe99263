package vm

// Byte-level WASM module builder shared by this package's tests. wat2wasm
// is not assumed to be on the test runner's PATH, so fixtures are literal
// instruction sequences assembled the same way the decoder's own tests
// assemble sections, rather than compiled from .wat source.

func uleb(v uint32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		out = append(out, b)
		if v == 0 {
			return out
		}
	}
}

func sleb(v int32) []byte {
	var out []byte
	more := true
	for more {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			more = false
		} else {
			b |= 0x80
		}
		out = append(out, b)
	}
	return out
}

func preamble() []byte {
	return []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00}
}

func section(id byte, body []byte) []byte {
	out := []byte{id}
	out = append(out, uleb(uint32(len(body)))...)
	return append(out, body...)
}

func vec(items ...[]byte) []byte {
	out := uleb(uint32(len(items)))
	for _, it := range items {
		out = append(out, it...)
	}
	return out
}

func wname(s string) []byte {
	return append(uleb(uint32(len(s))), []byte(s)...)
}

func funcType(params, results []byte) []byte {
	out := append([]byte{0x60}, uleb(uint32(len(params)))...)
	out = append(out, params...)
	out = append(out, uleb(uint32(len(results)))...)
	return append(out, results...)
}

func importFuncEntry(mod, field string, typeIdx uint32) []byte {
	out := append([]byte{}, wname(mod)...)
	out = append(out, wname(field)...)
	out = append(out, 0x00)
	return append(out, uleb(typeIdx)...)
}

func exportEntry(n string, kind byte, idx uint32) []byte {
	out := append([]byte{}, wname(n)...)
	out = append(out, kind)
	return append(out, uleb(idx)...)
}

func memoryEntry(min uint32) []byte {
	return append([]byte{0x00}, uleb(min)...)
}

func i32ConstExpr(v int32) []byte {
	return append(append([]byte{0x41}, sleb(v)...), 0x0B)
}

// localsVec encodes a code entry's local declaration vector from a flat
// list of (count, valtype) pairs.
func localsVec(entries ...[2]uint32) []byte {
	items := make([][]byte, len(entries))
	for i, e := range entries {
		items[i] = append(uleb(e[0]), byte(e[1]))
	}
	return vec(items...)
}

func codeEntry(locals []byte, body []byte) []byte {
	inner := append(append([]byte{}, locals...), body...)
	inner = append(inner, 0x0B) // function end
	return append(uleb(uint32(len(inner))), inner...)
}

const valI32 = 0x7F

// moduleBuilder assembles a minimal WASM module section by section: types,
// imports, functions/code, memory, exports, a start index, and data
// segments, each added only when a test fixture actually needs it.
type moduleBuilder struct {
	types    [][]byte
	imports  [][]byte
	funcs    []uint32
	codes    [][]byte
	mem      []byte
	exports  [][]byte
	hasStart bool
	start    uint32
	data     [][]byte
}

func (b *moduleBuilder) addType(params, results []byte) uint32 {
	b.types = append(b.types, funcType(params, results))
	return uint32(len(b.types) - 1)
}

func (b *moduleBuilder) addImportFunc(mod, field string, typeIdx uint32) {
	b.imports = append(b.imports, importFuncEntry(mod, field, typeIdx))
}

func (b *moduleBuilder) addFunc(typeIdx uint32, locals []byte, body []byte) uint32 {
	b.funcs = append(b.funcs, typeIdx)
	idx := uint32(len(b.imports)) + uint32(len(b.funcs)) - 1
	if locals == nil {
		locals = uleb(0) // empty local-declaration vector
	}
	b.codes = append(b.codes, codeEntry(locals, body))
	return idx
}

func (b *moduleBuilder) addExport(name string, idx uint32) {
	b.exports = append(b.exports, exportEntry(name, 0x00, idx))
}

func (b *moduleBuilder) setMemory(min uint32) {
	b.mem = memoryEntry(min)
}

func (b *moduleBuilder) setStart(idx uint32) {
	b.hasStart = true
	b.start = idx
}

func (b *moduleBuilder) addData(offset int32, init []byte) {
	entry := append([]byte{0x00}, i32ConstExpr(offset)...)
	entry = append(entry, uleb(uint32(len(init)))...)
	entry = append(entry, init...)
	b.data = append(b.data, entry)
}

func (b *moduleBuilder) build() []byte {
	out := preamble()
	if len(b.types) > 0 {
		out = append(out, section(1, vec(b.types...))...)
	}
	if len(b.imports) > 0 {
		out = append(out, section(2, vec(b.imports...))...)
	}
	if len(b.funcs) > 0 {
		items := make([][]byte, len(b.funcs))
		for i, t := range b.funcs {
			items[i] = uleb(t)
		}
		out = append(out, section(3, vec(items...))...)
	}
	if b.mem != nil {
		out = append(out, section(5, vec(b.mem))...)
	}
	if len(b.exports) > 0 {
		out = append(out, section(7, vec(b.exports...))...)
	}
	if b.hasStart {
		out = append(out, section(8, uleb(b.start))...)
	}
	if len(b.codes) > 0 {
		out = append(out, section(10, vec(b.codes...))...)
	}
	if len(b.data) > 0 {
		out = append(out, section(11, vec(b.data...))...)
	}
	return out
}
