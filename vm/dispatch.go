package vm

import (
	"math"
	"math/bits"

	"github.com/vertexdlt/vm/number"
	"github.com/vertexdlt/vm/opcode"
)

// run executes frame's instruction stream to completion and returns the
// function's single result, or 0 when its signature declares none. It is
// the engine's sole dispatch loop. Nested calls recurse straight through
// Go's own call stack (callIndex calls run again for the callee), so run
// never has to save and restore an explicit continuation.
func (e *Engine) run(f *Frame) int32 {
	for {
		if f.ip >= len(f.code) {
			// The decoder strips the function body's own trailing end byte
			// (every nested block/loop/if keeps its own), so running off
			// the end of code is itself the function's implicit return.
			return e.frameResult(f)
		}
		op := opcode.Opcode(f.code[f.ip])
		f.ip++
		e.chargeGas(op)
		if e.Debug != nil {
			e.Debug.Printf("fn %d @%04x %s", f.FuncIdx, f.ip-1, op)
		}

		switch op {
		case opcode.Unreachable:
			panic(ErrUnreachable)
		case opcode.Nop:
			// no-op
		case opcode.Block:
			f.ip++ // block type byte, always 0x40 in this subset
			f.pushBlock(blockKindBlock, f.ip)
		case opcode.Loop:
			f.ip++
			f.pushBlock(blockKindLoop, f.ip)
		case opcode.If:
			cond := e.pop()
			f.ip++ // block type byte
			pos := f.ip
			f.pushBlock(blockKindIf, pos)
			if cond == 0 {
				next, atElse, err := scanForward(f.code, pos, 1, true)
				if err != nil {
					panic(lebTrap(err))
				}
				if atElse {
					// Land just past the else opcode itself so the else
					// body executes; the block stays open until its end.
					f.ip = next + 1
				} else {
					f.ip = next
					f.popBlock()
				}
			}
		case opcode.Else:
			// Reached only by falling out of a true if-branch: the
			// else body is dead code here, so skip past its end.
			next, _, err := scanForward(f.code, f.ip, 1, false)
			if err != nil {
				panic(lebTrap(err))
			}
			f.ip = next
			if f.popBlock().kind != blockKindIf {
				panic(ErrNoMatchingIfBlock)
			}
		case opcode.End:
			if len(f.blocks) > 0 {
				f.popBlock()
				continue
			}
			return e.frameResult(f)
		case opcode.Br:
			l, n, err := readULEB(f.code, f.ip)
			if err != nil {
				panic(lebTrap(err))
			}
			f.ip += n
			e.branch(f, int(l))
		case opcode.BrIf:
			l, n, err := readULEB(f.code, f.ip)
			if err != nil {
				panic(lebTrap(err))
			}
			f.ip += n
			if e.pop() != 0 {
				e.branch(f, int(l))
			}
		case opcode.Return:
			return e.frameResult(f)
		case opcode.Call:
			idx, n, err := readULEB(f.code, f.ip)
			if err != nil {
				panic(lebTrap(err))
			}
			f.ip += n
			e.dispatchCall(int(idx))
		case opcode.Drop:
			e.pop()
		case opcode.Select:
			cond := e.pop()
			b := e.pop()
			a := e.pop()
			if cond != 0 {
				e.push(a)
			} else {
				e.push(b)
			}
		case opcode.LocalGet:
			idx, n, err := readULEB(f.code, f.ip)
			if err != nil {
				panic(lebTrap(err))
			}
			f.ip += n
			if int(idx) >= len(f.locals) {
				panic(ErrOutOfBoundMemoryAccess)
			}
			e.push(f.locals[idx])
		case opcode.LocalSet:
			idx, n, err := readULEB(f.code, f.ip)
			if err != nil {
				panic(lebTrap(err))
			}
			f.ip += n
			if int(idx) >= len(f.locals) {
				panic(ErrOutOfBoundMemoryAccess)
			}
			f.locals[idx] = e.pop()
		case opcode.LocalTee:
			idx, n, err := readULEB(f.code, f.ip)
			if err != nil {
				panic(lebTrap(err))
			}
			f.ip += n
			if int(idx) >= len(f.locals) {
				panic(ErrOutOfBoundMemoryAccess)
			}
			f.locals[idx] = e.peek()
		case opcode.GlobalGet:
			idx, n, err := readULEB(f.code, f.ip)
			if err != nil {
				panic(lebTrap(err))
			}
			f.ip += n
			if int(idx) >= len(e.globals) {
				panic(ErrOutOfBoundMemoryAccess)
			}
			e.push(e.globals[idx])
		case opcode.GlobalSet:
			idx, n, err := readULEB(f.code, f.ip)
			if err != nil {
				panic(lebTrap(err))
			}
			f.ip += n
			if int(idx) >= len(e.globals) {
				panic(ErrOutOfBoundMemoryAccess)
			}
			e.globals[idx] = e.pop()
		case opcode.I32Const:
			v, n, err := readSLEB(f.code, f.ip)
			if err != nil {
				panic(lebTrap(err))
			}
			f.ip += n
			e.push(v)
		case opcode.I32Load8U:
			offset, next, err := readMemArg(f.code, f.ip)
			if err != nil {
				panic(lebTrap(err))
			}
			f.ip = next
			addr := uint32(e.pop()) + offset
			if int(addr) >= len(e.memory) {
				panic(ErrOutOfBoundMemoryAccess)
			}
			e.push(number.ZeroExtend8(e.memory[addr]))
		case opcode.I32Store8:
			offset, next, err := readMemArg(f.code, f.ip)
			if err != nil {
				panic(lebTrap(err))
			}
			f.ip = next
			val := e.pop()
			addr := uint32(e.pop()) + offset
			if int(addr) >= len(e.memory) {
				panic(ErrOutOfBoundMemoryAccess)
			}
			e.memory[addr] = number.TruncU8(val)
		case opcode.I32Eqz:
			e.push(boolToI32(e.pop() == 0))
		default:
			switch {
			case opcode.IsComparison(op):
				e.execComparison(op)
			case opcode.IsArithmetic(op):
				e.execArithmetic(op)
			default:
				panic(ErrUnknownOpcode)
			}
		}
	}
}

// frameResult reads the function's single return value off the operand
// stack: at a function's end/return point the stack holds nothing of the
// callee's beyond its declared results.
func (e *Engine) frameResult(f *Frame) int32 {
	if f.resultCount == 1 {
		return e.pop()
	}
	return 0
}

// branch implements the br/br_if jump target resolution. A branch to a
// loop is a back edge: the l blocks nested inside it close, but the loop
// itself stays open (its end is still ahead) and the cursor resets to its
// first body instruction. A branch to any other block is a forward exit:
// the target closes too, and the cursor scans past its matching end.
func (e *Engine) branch(f *Frame, l int) {
	target, ok := f.blockAt(l)
	if !ok {
		panic(ErrInvalidBreakDepth)
	}
	if target.kind == blockKindLoop {
		for i := 0; i < l; i++ {
			f.popBlock()
		}
		f.ip = target.bodyPos
		return
	}
	for i := 0; i <= l; i++ {
		f.popBlock()
	}
	next, _, err := scanForward(f.code, f.ip, l+1, false)
	if err != nil {
		panic(lebTrap(err))
	}
	f.ip = next
}

// dispatchCall resolves x's signature, pops its arguments off the operand
// stack in source order (topmost popped value is the last argument), and
// pushes back its single result, if any.
func (e *Engine) dispatchCall(idx int) {
	ft, err := e.module.TypeOfFunction(idx)
	if err != nil {
		panic(NewExecError(err.Error()))
	}
	args := make([]int32, len(ft.Params))
	for i := len(args) - 1; i >= 0; i-- {
		args[i] = e.pop()
	}
	ret := e.callIndex(idx, args)
	if len(ft.Results) == 1 {
		e.push(ret)
	}
}

// execArithmetic handles the binary i32 arithmetic and bitwise opcodes, all
// wrapping two's-complement.
func (e *Engine) execArithmetic(op opcode.Opcode) {
	b := e.pop()
	a := e.pop()
	var c int32
	switch op {
	case opcode.I32Add:
		c = a + b
	case opcode.I32Sub:
		c = a - b
	case opcode.I32Mul:
		c = a * b
	case opcode.I32DivS:
		if b == 0 {
			panic(ErrIntegerDivisionByZero)
		}
		if a == math.MinInt32 && b == -1 {
			panic(ErrIntegerOverflow)
		}
		c = a / b
	case opcode.I32DivU:
		if b == 0 {
			panic(ErrIntegerDivisionByZero)
		}
		c = int32(uint32(a) / uint32(b))
	case opcode.I32RemS:
		if b == 0 {
			panic(ErrIntegerDivisionByZero)
		}
		c = a % b
	case opcode.I32RemU:
		if b == 0 {
			panic(ErrIntegerDivisionByZero)
		}
		c = int32(uint32(a) % uint32(b))
	case opcode.I32And:
		c = a & b
	case opcode.I32Or:
		c = a | b
	case opcode.I32Xor:
		c = a ^ b
	case opcode.I32Shl:
		c = a << (uint32(b) % 32)
	case opcode.I32ShrS:
		c = a >> (uint32(b) % 32)
	case opcode.I32ShrU:
		c = int32(uint32(a) >> (uint32(b) % 32))
	case opcode.I32Rotl:
		c = int32(bits.RotateLeft32(uint32(a), int(b)))
	case opcode.I32Rotr:
		c = int32(bits.RotateLeft32(uint32(a), int(-b)))
	}
	e.push(c)
}

// execComparison handles the i32 relational opcodes, treating both operands
// as two's-complement.
func (e *Engine) execComparison(op opcode.Opcode) {
	b := e.pop()
	a := e.pop()
	var result bool
	switch op {
	case opcode.I32Eq:
		result = a == b
	case opcode.I32Ne:
		result = a != b
	case opcode.I32LtS:
		result = a < b
	case opcode.I32LtU:
		result = uint32(a) < uint32(b)
	case opcode.I32GtS:
		result = a > b
	case opcode.I32GtU:
		result = uint32(a) > uint32(b)
	case opcode.I32LeS:
		result = a <= b
	case opcode.I32LeU:
		result = uint32(a) <= uint32(b)
	case opcode.I32GeS:
		result = a >= b
	case opcode.I32GeU:
		result = uint32(a) >= uint32(b)
	}
	e.push(boolToI32(result))
}

// chargeGas prices op against the engine's GasPolicy, panicking with
// ErrOutOfGas once the budget is exceeded. A nil policy (the zero value of
// NewVM's gasPolicy argument) runs unmetered.
func (e *Engine) chargeGas(op opcode.Opcode) {
	if e.gasPolicy == nil {
		return
	}
	e.gas.Used += e.gasPolicy.GetCostForOp(op)
	if e.gas.Limit > 0 && e.gas.Used > e.gas.Limit {
		panic(ErrOutOfGas)
	}
}
