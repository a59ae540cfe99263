// Package opcode names the instruction byte codes the engine dispatches on.
package opcode

import "fmt"

// Opcode is a single WASM instruction byte.
type Opcode byte

// Control and numeric opcodes required by the execution engine, plus the
// small set of extensions (select, eqz, the full i32 comparison/bitwise
// suite, and a minimal load/store pair) the engine implements beyond the
// required floor.
const (
	Unreachable Opcode = 0x00
	Nop         Opcode = 0x01
	Block       Opcode = 0x02
	Loop        Opcode = 0x03
	If          Opcode = 0x04
	Else        Opcode = 0x05
	End         Opcode = 0x0B
	Br          Opcode = 0x0C
	BrIf        Opcode = 0x0D
	Return      Opcode = 0x0F
	Call        Opcode = 0x10
	Drop        Opcode = 0x1A
	Select      Opcode = 0x1B

	LocalGet  Opcode = 0x20
	LocalSet  Opcode = 0x21
	LocalTee  Opcode = 0x22
	GlobalGet Opcode = 0x23
	GlobalSet Opcode = 0x24

	I32Load8U Opcode = 0x2D
	I32Store8 Opcode = 0x3A

	I32Const Opcode = 0x41

	I32Eqz Opcode = 0x45
	I32Eq  Opcode = 0x46
	I32Ne  Opcode = 0x47
	I32LtS Opcode = 0x48
	I32LtU Opcode = 0x49
	I32GtS Opcode = 0x4A
	I32GtU Opcode = 0x4B
	I32LeS Opcode = 0x4C
	I32LeU Opcode = 0x4D
	I32GeS Opcode = 0x4E
	I32GeU Opcode = 0x4F

	I32Add  Opcode = 0x6A
	I32Sub  Opcode = 0x6B
	I32Mul  Opcode = 0x6C
	I32DivS Opcode = 0x6D
	I32DivU Opcode = 0x6E
	I32RemS Opcode = 0x6F
	I32RemU Opcode = 0x70
	I32And  Opcode = 0x71
	I32Or   Opcode = 0x72
	I32Xor  Opcode = 0x73
	I32Shl  Opcode = 0x74
	I32ShrS Opcode = 0x75
	I32ShrU Opcode = 0x76
	I32Rotl Opcode = 0x77
	I32Rotr Opcode = 0x78
)

var names = map[Opcode]string{
	Unreachable: "unreachable", Nop: "nop", Block: "block", Loop: "loop",
	If: "if", Else: "else", End: "end", Br: "br", BrIf: "br_if",
	Return: "return", Call: "call", Drop: "drop", Select: "select",
	LocalGet: "local.get", LocalSet: "local.set", LocalTee: "local.tee",
	GlobalGet: "global.get", GlobalSet: "global.set",
	I32Load8U: "i32.load8_u", I32Store8: "i32.store8",
	I32Const: "i32.const", I32Eqz: "i32.eqz",
	I32Eq: "i32.eq", I32Ne: "i32.ne", I32LtS: "i32.lt_s", I32LtU: "i32.lt_u",
	I32GtS: "i32.gt_s", I32GtU: "i32.gt_u", I32LeS: "i32.le_s", I32LeU: "i32.le_u",
	I32GeS: "i32.ge_s", I32GeU: "i32.ge_u",
	I32Add: "i32.add", I32Sub: "i32.sub", I32Mul: "i32.mul",
	I32DivS: "i32.div_s", I32DivU: "i32.div_u", I32RemS: "i32.rem_s", I32RemU: "i32.rem_u",
	I32And: "i32.and", I32Or: "i32.or", I32Xor: "i32.xor",
	I32Shl: "i32.shl", I32ShrS: "i32.shr_s", I32ShrU: "i32.shr_u",
	I32Rotl: "i32.rotl", I32Rotr: "i32.rotr",
}

func (op Opcode) String() string {
	if name, ok := names[op]; ok {
		return name
	}
	return fmt.Sprintf("opcode(0x%02x)", byte(op))
}

// IsComparison reports whether op is one of the i32 relational operators.
func IsComparison(op Opcode) bool {
	return I32Eq <= op && op <= I32GeU
}

// IsArithmetic reports whether op is one of the binary i32 arithmetic or
// bitwise operators.
func IsArithmetic(op Opcode) bool {
	return I32Add <= op && op <= I32Rotr
}
