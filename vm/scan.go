package vm

import (
	"errors"

	"github.com/vertexdlt/vm/leb128"
	"github.com/vertexdlt/vm/opcode"
)

// skipImmediate advances past the immediate operand(s) of the instruction
// at op (whose opcode byte has already been consumed), returning the
// position of the next instruction. It understands the encoding of every
// opcode the decoder or engine ever emits; an opcode with no immediate
// (arithmetic, comparison, drop, ...) returns pos unchanged.
func skipImmediate(op opcode.Opcode, body []byte, pos int) (int, error) {
	switch op {
	case opcode.Block, opcode.Loop, opcode.If:
		return pos + 1, nil // block type byte
	case opcode.Br, opcode.BrIf, opcode.Call,
		opcode.LocalGet, opcode.LocalSet, opcode.LocalTee,
		opcode.GlobalGet, opcode.GlobalSet:
		return skipULEB(body, pos)
	case opcode.I32Const:
		return skipSLEB(body, pos)
	case opcode.I32Load8U, opcode.I32Store8:
		next, err := skipULEB(body, pos) // align
		if err != nil {
			return 0, err
		}
		return skipULEB(body, next) // offset
	default:
		return pos, nil
	}
}

func skipULEB(body []byte, pos int) (int, error) {
	_, n, err := leb128.Decode(body, pos, 32, false)
	if err != nil {
		return 0, err
	}
	return pos + n, nil
}

func skipSLEB(body []byte, pos int) (int, error) {
	_, n, err := leb128.Decode(body, pos, 32, true)
	if err != nil {
		return 0, err
	}
	return pos + n, nil
}

// lebTrap maps an immediate-decoding failure to its trap: an overlong
// LEB128 encoding has its own sentinel, anything else (running off the end
// of the body) becomes a generic ExecError.
func lebTrap(err error) error {
	if errors.Is(err, leb128.ErrOverflow) {
		return ErrLebOverflow
	}
	return NewExecError(err.Error())
}

// readULEB and readSLEB decode one i32-range LEB128 immediate at pos,
// returning its value, byte width, and any error.
func readULEB(body []byte, pos int) (uint32, int, error) {
	v, n, err := leb128.Decode(body, pos, 32, false)
	return uint32(v), n, err
}

func readSLEB(body []byte, pos int) (int32, int, error) {
	v, n, err := leb128.Decode(body, pos, 32, true)
	return int32(v), n, err
}

var errScanRanOffEnd = errors.New("vm: control structure scan ran past function body")

// scanForward walks body starting at pos, treating every block/loop/if as
// opening a new nested level and every end as closing one, until depth
// pending closes have been consumed. It returns the position of the
// instruction immediately following the depth-closing end.
//
// depth is not simply "how many blocks are we inside": it is how many
// `end` tokens must be consumed before stopping, which is why a br
// targeting an outer block must be scanned with depth = relativeDepth+1:
// one `end` for each of the relativeDepth blocks nested between the branch
// and its target, plus one more for the target block's own end.
//
// When stopAtElse is true and an `else` is encountered while depth == 1
// (i.e. it belongs to the block this scan is trying to close), the scan
// stops there instead, returning the position of the (unconsumed) else
// opcode and atElse == true. This is used only by the false-branch of `if`,
// which needs to tell an `else` belonging to it apart from `end`.
func scanForward(body []byte, pos int, depth int, stopAtElse bool) (next int, atElse bool, err error) {
	for {
		if pos >= len(body) {
			return 0, false, errScanRanOffEnd
		}
		op := opcode.Opcode(body[pos])
		pos++

		switch op {
		case opcode.Block, opcode.Loop, opcode.If:
			depth++
			pos, err = skipImmediate(op, body, pos)
		case opcode.Else:
			if stopAtElse && depth == 1 {
				return pos - 1, true, nil
			}
		case opcode.End:
			depth--
			if depth == 0 {
				return pos, false, nil
			}
		default:
			pos, err = skipImmediate(op, body, pos)
		}
		if err != nil {
			return 0, false, err
		}
	}
}
