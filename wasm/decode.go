package wasm

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"unicode/utf8"

	"github.com/vertexdlt/vm/leb128"
)

// DecodeError is returned by Decode for malformed or unsupported input. Kind
// is a stable tag a caller can switch on; Err, when set, carries the
// underlying cause (a short read, an LEB128 overflow, ...).
type DecodeError struct {
	Kind string
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("wasm: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("wasm: %s", e.Kind)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func newDecodeError(kind string, err error) *DecodeError {
	return &DecodeError{Kind: kind, Err: err}
}

// Decode error kinds. Kind tags are stable; messages are advisory.
const (
	ErrInvalidMagic           = "InvalidMagic"
	ErrUnsupportedVersion     = "UnsupportedVersion"
	ErrMalformedLEB128        = "MalformedLEB128"
	ErrShortRead              = "ShortRead"
	ErrUnknownSectionID       = "UnknownSectionId"
	ErrUnsupportedConstruct   = "UnsupportedConstruct"
	ErrInconsistentSectionLen = "InconsistentSectionSize"
)

// Decode reads a complete WASM module from r and returns its decoded
// in-memory catalog. Decode is stateless: nothing about one call affects
// another.
func Decode(r io.Reader) (*Module, error) {
	if err := readPreamble(r); err != nil {
		return nil, err
	}

	m := &Module{Version: Version, Exports: map[string]Export{}}
	var lastID int
	first := true
	for {
		id, err := readByte(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, newDecodeError(ErrShortRead, err)
		}

		if id != 0 {
			if !first && int(id) <= lastID {
				return nil, newDecodeError(ErrUnknownSectionID, fmt.Errorf("section id %d out of order after %d", id, lastID))
			}
			lastID = int(id)
		}
		first = false

		size, err := leb128.ReadUint32(byteReaderFrom(r))
		if err != nil {
			return nil, newDecodeError(ErrMalformedLEB128, err)
		}
		payload := io.LimitReader(r, int64(size))
		if err := decodeSection(m, id, payload); err != nil {
			return nil, err
		}
		// Never trust payload_size to match the sum of sub-field widths:
		// each sub-field was read with its own LEB128 semantics above, so
		// any bytes left over mean the declared size and the content
		// disagree. Custom sections are the exception, since their payload
		// is opaque and skipped wholesale.
		left, err := io.Copy(ioutil.Discard, payload)
		if err != nil {
			return nil, newDecodeError(ErrShortRead, err)
		}
		if left > 0 && id != 0 {
			return nil, newDecodeError(ErrInconsistentSectionLen, fmt.Errorf("section %d declared %d bytes, %d unconsumed", id, size, left))
		}
	}
	if len(m.Code) != len(m.FuncSec) {
		return nil, newDecodeError(ErrInconsistentSectionLen, fmt.Errorf("%d function declarations but %d code bodies", len(m.FuncSec), len(m.Code)))
	}
	return m, nil
}

func decodeSection(m *Module, id byte, r io.Reader) error {
	switch id {
	case 0:
		return nil // custom section: skip, no id ordering constraint
	case 1:
		return decodeTypeSection(m, r)
	case 2:
		return decodeImportSection(m, r)
	case 3:
		return decodeFunctionSection(m, r)
	case 4:
		return decodeTableSection(m, r)
	case 5:
		return decodeMemorySection(m, r)
	case 6:
		return decodeGlobalSection(m, r)
	case 7:
		return decodeExportSection(m, r)
	case 8:
		return decodeStartSection(m, r)
	case 9:
		return decodeElementSection(m, r)
	case 10:
		return decodeCodeSection(m, r)
	case 11:
		return decodeDataSection(m, r)
	default:
		return newDecodeError(ErrUnknownSectionID, fmt.Errorf("id %d", id))
	}
}

func readPreamble(r io.Reader) error {
	magic := make([]byte, 4)
	if _, err := io.ReadFull(r, magic); err != nil {
		return newDecodeError(ErrShortRead, err)
	}
	if !bytes.Equal(magic, []byte{0x00, 0x61, 0x73, 0x6D}) {
		return newDecodeError(ErrInvalidMagic, nil)
	}
	var ver [4]byte
	if _, err := io.ReadFull(r, ver[:]); err != nil {
		return newDecodeError(ErrShortRead, err)
	}
	version := uint32(ver[0]) | uint32(ver[1])<<8 | uint32(ver[2])<<16 | uint32(ver[3])<<24
	if version != Version {
		return newDecodeError(ErrUnsupportedVersion, fmt.Errorf("got %d", version))
	}
	return nil
}

// byteReaderFrom adapts an io.Reader to leb128's one-byte-at-a-time
// interface when it doesn't already implement ReadByte (io.LimitReader's
// result doesn't).
type singleByteReader struct{ r io.Reader }

func (s singleByteReader) ReadByte() (byte, error) {
	var buf [1]byte
	_, err := io.ReadFull(s.r, buf[:])
	return buf[0], err
}

func byteReaderFrom(r io.Reader) interface {
	ReadByte() (byte, error)
} {
	if br, ok := r.(interface{ ReadByte() (byte, error) }); ok {
		return br
	}
	return singleByteReader{r}
}

func readByte(r io.Reader) (byte, error) {
	var buf [1]byte
	n, err := r.Read(buf[:])
	if n == 1 {
		return buf[0], nil
	}
	if err == nil {
		err = io.EOF
	}
	return 0, err
}

func readU32(r io.Reader) (uint32, error) {
	return leb128.ReadUint32(byteReaderFrom(r))
}

func readI32(r io.Reader) (int32, error) {
	return leb128.ReadInt32(byteReaderFrom(r))
}

func readBytes(r io.Reader, n uint32) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, newDecodeError(ErrShortRead, err)
	}
	return b, nil
}

func readName(r io.Reader) (string, error) {
	n, err := readU32(r)
	if err != nil {
		return "", newDecodeError(ErrMalformedLEB128, err)
	}
	b, err := readBytes(r, n)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", newDecodeError(ErrUnsupportedConstruct, errors.New("invalid utf-8 name"))
	}
	return string(b), nil
}

func readValueType(r io.Reader) (ValueType, error) {
	b, err := readByte(r)
	if err != nil {
		return 0, newDecodeError(ErrShortRead, err)
	}
	switch ValueType(b) {
	case ValueTypeI32, ValueTypeI64, ValueTypeF32, ValueTypeF64:
		return ValueType(b), nil
	default:
		return 0, newDecodeError(ErrUnsupportedConstruct, fmt.Errorf("value type 0x%02x", b))
	}
}

func readLimits(r io.Reader) (Limits, error) {
	flag, err := readByte(r)
	if err != nil {
		return Limits{}, newDecodeError(ErrShortRead, err)
	}
	if flag != 0x00 && flag != 0x01 {
		return Limits{}, newDecodeError(ErrUnsupportedConstruct, fmt.Errorf("limits flag 0x%02x", flag))
	}
	min, err := readU32(r)
	if err != nil {
		return Limits{}, newDecodeError(ErrMalformedLEB128, err)
	}
	l := Limits{Flag: flag, Min: min}
	if flag == 0x01 {
		max, err := readU32(r)
		if err != nil {
			return Limits{}, newDecodeError(ErrMalformedLEB128, err)
		}
		l.Max = max
	}
	return l, nil
}

func readGlobalType(r io.Reader) (GlobalType, error) {
	vt, err := readValueType(r)
	if err != nil {
		return GlobalType{}, err
	}
	mut, err := readByte(r)
	if err != nil {
		return GlobalType{}, newDecodeError(ErrShortRead, err)
	}
	if mut != 0x00 && mut != 0x01 {
		return GlobalType{}, newDecodeError(ErrUnsupportedConstruct, fmt.Errorf("mutability flag 0x%02x", mut))
	}
	return GlobalType{ValueType: vt, Mutable: mut == 0x01}, nil
}

func readElemType(r io.Reader) (byte, error) {
	b, err := readByte(r)
	if err != nil {
		return 0, newDecodeError(ErrShortRead, err)
	}
	if b != ElemTypeFuncRef {
		return 0, newDecodeError(ErrUnsupportedConstruct, fmt.Errorf("table element type 0x%02x", b))
	}
	return b, nil
}

func decodeTypeSection(m *Module, r io.Reader) error {
	count, err := readU32(r)
	if err != nil {
		return newDecodeError(ErrMalformedLEB128, err)
	}
	m.Types = make([]FuncType, count)
	for i := range m.Types {
		form, err := readByte(r)
		if err != nil {
			return newDecodeError(ErrShortRead, err)
		}
		if form != FuncTypeForm {
			return newDecodeError(ErrUnsupportedConstruct, fmt.Errorf("functype form 0x%02x", form))
		}
		params, err := readValueTypeVector(r)
		if err != nil {
			return err
		}
		results, err := readValueTypeVector(r)
		if err != nil {
			return err
		}
		m.Types[i] = FuncType{Params: params, Results: results}
	}
	return nil
}

func readValueTypeVector(r io.Reader) ([]ValueType, error) {
	n, err := readU32(r)
	if err != nil {
		return nil, newDecodeError(ErrMalformedLEB128, err)
	}
	vts := make([]ValueType, n)
	for i := range vts {
		vts[i], err = readValueType(r)
		if err != nil {
			return nil, err
		}
	}
	return vts, nil
}

func decodeImportSection(m *Module, r io.Reader) error {
	count, err := readU32(r)
	if err != nil {
		return newDecodeError(ErrMalformedLEB128, err)
	}
	m.Imports = make([]Import, count)
	for i := range m.Imports {
		modName, err := readName(r)
		if err != nil {
			return err
		}
		field, err := readName(r)
		if err != nil {
			return err
		}
		kind, err := readByte(r)
		if err != nil {
			return newDecodeError(ErrShortRead, err)
		}
		var desc ImportDesc
		desc.Kind = kind
		switch kind {
		case ExternalFunction:
			desc.TypeIdx, err = readU32(r)
		case ExternalTable:
			desc.Table = &Table{}
			desc.Table.ElemType, err = readElemType(r)
			if err == nil {
				desc.Table.Limits, err = readLimits(r)
			}
		case ExternalMemory:
			desc.Mem = &Mem{}
			desc.Mem.Limits, err = readLimits(r)
		case ExternalGlobal:
			var gt GlobalType
			gt, err = readGlobalType(r)
			desc.GlobalType = &gt
		default:
			return newDecodeError(ErrUnsupportedConstruct, fmt.Errorf("import external kind 0x%02x", kind))
		}
		if err != nil {
			return err
		}
		m.Imports[i] = Import{ModuleName: modName, FieldName: field, Desc: desc}
	}
	return nil
}

func decodeFunctionSection(m *Module, r io.Reader) error {
	count, err := readU32(r)
	if err != nil {
		return newDecodeError(ErrMalformedLEB128, err)
	}
	m.FuncSec = make([]uint32, count)
	for i := range m.FuncSec {
		m.FuncSec[i], err = readU32(r)
		if err != nil {
			return newDecodeError(ErrMalformedLEB128, err)
		}
	}
	return nil
}

func decodeTableSection(m *Module, r io.Reader) error {
	count, err := readU32(r)
	if err != nil {
		return newDecodeError(ErrMalformedLEB128, err)
	}
	m.Tables = make([]Table, count)
	for i := range m.Tables {
		m.Tables[i].ElemType, err = readElemType(r)
		if err != nil {
			return err
		}
		m.Tables[i].Limits, err = readLimits(r)
		if err != nil {
			return err
		}
	}
	return nil
}

func decodeMemorySection(m *Module, r io.Reader) error {
	count, err := readU32(r)
	if err != nil {
		return newDecodeError(ErrMalformedLEB128, err)
	}
	m.Mems = make([]Mem, count)
	for i := range m.Mems {
		m.Mems[i].Limits, err = readLimits(r)
		if err != nil {
			return err
		}
	}
	return nil
}

func decodeGlobalSection(m *Module, r io.Reader) error {
	count, err := readU32(r)
	if err != nil {
		return newDecodeError(ErrMalformedLEB128, err)
	}
	m.Globals = make([]Global, count)
	for i := range m.Globals {
		gt, err := readGlobalType(r)
		if err != nil {
			return err
		}
		init, err := readConstExpr(r)
		if err != nil {
			return err
		}
		m.Globals[i] = Global{Type: gt, Init: init}
	}
	return nil
}

func decodeExportSection(m *Module, r io.Reader) error {
	count, err := readU32(r)
	if err != nil {
		return newDecodeError(ErrMalformedLEB128, err)
	}
	for i := uint32(0); i < count; i++ {
		name, err := readName(r)
		if err != nil {
			return err
		}
		kind, err := readByte(r)
		if err != nil {
			return newDecodeError(ErrShortRead, err)
		}
		if kind > ExternalGlobal {
			return newDecodeError(ErrUnsupportedConstruct, fmt.Errorf("export desc kind 0x%02x", kind))
		}
		idx, err := readU32(r)
		if err != nil {
			return newDecodeError(ErrMalformedLEB128, err)
		}
		m.Exports[name] = Export{Name: name, Desc: ExportDesc{Kind: kind, Idx: idx}}
	}
	return nil
}

func decodeStartSection(m *Module, r io.Reader) error {
	idx, err := readU32(r)
	if err != nil {
		return newDecodeError(ErrMalformedLEB128, err)
	}
	m.HasStart = true
	m.Start = idx
	return nil
}

func decodeElementSection(m *Module, r io.Reader) error {
	count, err := readU32(r)
	if err != nil {
		return newDecodeError(ErrMalformedLEB128, err)
	}
	m.Elements = make([]Element, count)
	for i := range m.Elements {
		m.Elements[i].TableIdx, err = readU32(r)
		if err != nil {
			return newDecodeError(ErrMalformedLEB128, err)
		}
		m.Elements[i].Offset, err = readConstExpr(r)
		if err != nil {
			return err
		}
		n, err := readU32(r)
		if err != nil {
			return newDecodeError(ErrMalformedLEB128, err)
		}
		idxs := make([]uint32, n)
		for j := range idxs {
			idxs[j], err = readU32(r)
			if err != nil {
				return newDecodeError(ErrMalformedLEB128, err)
			}
		}
		m.Elements[i].Init = idxs
	}
	return nil
}

func decodeCodeSection(m *Module, r io.Reader) error {
	count, err := readU32(r)
	if err != nil {
		return newDecodeError(ErrMalformedLEB128, err)
	}
	m.Code = make([]Code, count)
	for i := range m.Code {
		size, err := readU32(r)
		if err != nil {
			return newDecodeError(ErrMalformedLEB128, err)
		}
		body, err := readBytes(r, size)
		if err != nil {
			return err
		}
		br := bytes.NewReader(body)
		locals, err := readLocals(br)
		if err != nil {
			return err
		}
		// Whatever remains of body (after the ULEB128 locals vector we just
		// consumed via br) is the instruction stream. We never subtract a
		// fixed guess for the locals vector's width: br's position after
		// reading each LEB128 entry tells us exactly where the body starts.
		rest := make([]byte, br.Len())
		copy(rest, body[len(body)-br.Len():])
		if len(rest) == 0 || rest[len(rest)-1] != 0x0B {
			return newDecodeError(ErrUnsupportedConstruct, errors.New("function body missing terminating end"))
		}
		m.Code[i] = Code{Locals: locals, Body: rest[:len(rest)-1]}
	}
	return nil
}

func readLocals(r io.Reader) ([]LocalEntry, error) {
	count, err := readU32(r)
	if err != nil {
		return nil, newDecodeError(ErrMalformedLEB128, err)
	}
	locals := make([]LocalEntry, count)
	for i := range locals {
		locals[i].Count, err = readU32(r)
		if err != nil {
			return nil, newDecodeError(ErrMalformedLEB128, err)
		}
		locals[i].ValueType, err = readValueType(r)
		if err != nil {
			return nil, err
		}
		if locals[i].ValueType != ValueTypeI32 {
			return nil, newDecodeError(ErrUnsupportedConstruct, fmt.Errorf("local type %s", locals[i].ValueType))
		}
	}
	return locals, nil
}

func decodeDataSection(m *Module, r io.Reader) error {
	count, err := readU32(r)
	if err != nil {
		return newDecodeError(ErrMalformedLEB128, err)
	}
	m.Data = make([]Data, count)
	for i := range m.Data {
		memIdx, err := readU32(r)
		if err != nil {
			return newDecodeError(ErrMalformedLEB128, err)
		}
		if memIdx != 0 {
			return newDecodeError(ErrUnsupportedConstruct, errors.New("data segment memory index must be 0"))
		}
		op, err := readByte(r)
		if err != nil {
			return newDecodeError(ErrShortRead, err)
		}
		if op != byte(i32ConstOp) {
			return newDecodeError(ErrUnsupportedConstruct, fmt.Errorf("data offset opcode 0x%02x", op))
		}
		offset, err := readI32(r)
		if err != nil {
			return newDecodeError(ErrMalformedLEB128, err)
		}
		if end, err := readByte(r); err != nil || end != endOp {
			return newDecodeError(ErrUnsupportedConstruct, errors.New("data offset expression missing end"))
		}
		n, err := readU32(r)
		if err != nil {
			return newDecodeError(ErrMalformedLEB128, err)
		}
		init, err := readBytes(r, n)
		if err != nil {
			return err
		}
		m.Data[i] = Data{MemIdx: memIdx, Offset: uint32(offset), Init: init}
	}
	return nil
}

// Opcodes recognized while scanning constant initializer expressions
// (global initializers, element/table offsets). These mirror the runtime
// opcode set but are decoded here independent of the vm package, since a
// Module must remain a pure function of its bytes with no engine
// dependency.
const (
	i32ConstOp  byte = 0x41
	i64ConstOp  byte = 0x42
	f32ConstOp  byte = 0x43
	f64ConstOp  byte = 0x44
	globalGetOp byte = 0x23
	endOp       byte = 0x0B
)

// readConstExpr captures the raw bytes of a constant initializer
// expression, from its first opcode through its terminating `end`
// (inclusive). It understands just enough of each opcode's immediate
// encoding to find the true `end`, never by scanning for a stray 0x0B
// byte, which could also be the final byte of a multi-byte LEB128
// immediate. The engine evaluates these bytes later; the decoder's only job
// is to delimit them correctly.
func readConstExpr(r io.Reader) ([]byte, error) {
	var buf bytes.Buffer
	for {
		op, err := readByte(r)
		if err != nil {
			return nil, newDecodeError(ErrShortRead, err)
		}
		buf.WriteByte(op)
		switch op {
		case i32ConstOp:
			if err := copyLEB(r, &buf, 32); err != nil {
				return nil, err
			}
		case i64ConstOp:
			if err := copyLEB(r, &buf, 64); err != nil {
				return nil, err
			}
		case f32ConstOp:
			if err := copyFixed(r, &buf, 4); err != nil {
				return nil, err
			}
		case f64ConstOp:
			if err := copyFixed(r, &buf, 8); err != nil {
				return nil, err
			}
		case globalGetOp:
			if err := copyLEB(r, &buf, 32); err != nil {
				return nil, err
			}
		case endOp:
			return buf.Bytes(), nil
		default:
			return nil, newDecodeError(ErrUnsupportedConstruct, fmt.Errorf("init expr opcode 0x%02x", op))
		}
	}
}

// copyLEB reads one LEB128 value of at most bits bits from r, writing its
// raw bytes to buf.
func copyLEB(r io.Reader, buf *bytes.Buffer, bits uint) error {
	limit := int((bits + 6) / 7)
	for n := 1; ; n++ {
		b, err := readByte(r)
		if err != nil {
			return newDecodeError(ErrShortRead, err)
		}
		buf.WriteByte(b)
		if n > limit {
			return newDecodeError(ErrMalformedLEB128, errors.New("leb128 overflow"))
		}
		if b&0x80 == 0 {
			return nil
		}
	}
}

func copyFixed(r io.Reader, buf *bytes.Buffer, n int) error {
	b, err := readBytes(r, uint32(n))
	if err != nil {
		return err
	}
	buf.Write(b)
	return nil
}
