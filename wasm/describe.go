package wasm

import (
	"fmt"

	"github.com/vertexdlt/vm/number"
)

// DescribeConstExpr renders a constant initializer expression's leading
// opcode and immediate as a human-readable string, for introspection
// tooling (a module dump, a debug log line) that wants to show a global or
// data-offset initializer without the caller re-parsing its raw bytes.
// i32/i64 immediates print as their plain integer value; f32/f64 go through
// package number, since this subset's engine never executes float
// arithmetic and so never otherwise needs to materialize one.
func DescribeConstExpr(init []byte) string {
	if len(init) == 0 {
		return "<empty>"
	}
	switch init[0] {
	case i32ConstOp:
		v, _, err := decodeSLEB(init[1:])
		if err != nil {
			return "i32.const <malformed>"
		}
		return fmt.Sprintf("i32.const %d", int32(v))
	case i64ConstOp:
		v, _, err := decodeSLEB(init[1:])
		if err != nil {
			return "i64.const <malformed>"
		}
		return fmt.Sprintf("i64.const %d", v)
	case f32ConstOp:
		if len(init) < 5 {
			return "f32.const <malformed>"
		}
		bits := leU32(init[1:5])
		if number.IsF32NaN(bits) {
			return "f32.const nan"
		}
		return fmt.Sprintf("f32.const %g", number.DescribeF32(bits))
	case f64ConstOp:
		if len(init) < 9 {
			return "f64.const <malformed>"
		}
		bits := leU64(init[1:9])
		if number.IsF64NaN(bits) {
			return "f64.const nan"
		}
		return fmt.Sprintf("f64.const %g", number.DescribeF64(bits))
	case globalGetOp:
		idx, _, err := decodeULEB(init[1:])
		if err != nil {
			return "global.get <malformed>"
		}
		return fmt.Sprintf("global.get %d", idx)
	default:
		return fmt.Sprintf("<opcode 0x%02x>", init[0])
	}
}

func leU32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func leU64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

// decodeULEB/decodeSLEB decode a single LEB128 value out of an already
// isolated immediate slice (the caller has already delimited it via
// readConstExpr, so there's no declared-size bound left to enforce here).
func decodeULEB(b []byte) (uint64, int, error) {
	var result uint64
	var shift uint
	for i, cur := range b {
		result |= uint64(cur&0x7f) << shift
		shift += 7
		if cur&0x80 == 0 {
			return result, i + 1, nil
		}
	}
	return 0, 0, fmt.Errorf("wasm: truncated leb128")
}

func decodeSLEB(b []byte) (int64, int, error) {
	var result int64
	var shift uint
	for i, cur := range b {
		result |= int64(cur&0x7f) << shift
		shift += 7
		if cur&0x80 == 0 {
			if shift < 64 && cur&0x40 != 0 {
				result |= -1 << shift
			}
			return result, i + 1, nil
		}
	}
	return 0, 0, fmt.Errorf("wasm: truncated leb128")
}
