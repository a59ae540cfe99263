// Package number holds small value-representation helpers shared by the
// decoder and engine: i32 narrow-width truncation/extension for the
// load8_u/store8 pair, and introspection helpers for the f32/f64 values the
// decoder recognizes but the engine never executes.
package number

// TruncU8 narrows v to its low 8 bits, as i32.store8 requires.
func TruncU8(v int32) byte {
	return byte(uint32(v))
}

// ZeroExtend8 widens b to an i32 with its upper 24 bits clear, as
// i32.load8_u requires.
func ZeroExtend8(b byte) int32 {
	return int32(uint32(b))
}
