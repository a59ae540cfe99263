package vm

// boolToI32 converts a Go boolean into WASM's i32 encoding of true/false, as
// every comparison opcode's result requires.
func boolToI32(b bool) int32 {
	if b {
		return 1
	}
	return 0
}

// readMemArg reads the (align, offset) pair every load/store instruction
// carries as its immediate, returning the offset and the position of the
// following instruction. Align is decoded only to advance past it; this
// engine does not use alignment as a performance hint.
func readMemArg(code []byte, pos int) (offset uint32, next int, err error) {
	next, err = skipULEB(code, pos) // align
	if err != nil {
		return 0, 0, err
	}
	v, n, err := readULEB(code, next)
	if err != nil {
		return 0, 0, err
	}
	return v, next + n, nil
}
