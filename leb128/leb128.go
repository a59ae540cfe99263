// Package leb128 implements the variable-length integer encoding used
// throughout the WebAssembly binary format: 7 data bits per byte, with the
// high bit marking continuation.
package leb128

import (
	"errors"
	"io"
)

// ErrOverflow is returned when an encoded integer uses more bytes than its
// declared bit width allows.
var ErrOverflow = errors.New("leb128: value overflows declared width")

// maxBytes returns the largest number of LEB128 bytes a value of the given
// bit width can legally occupy.
func maxBytes(bits uint) int {
	return int((bits + 6) / 7)
}

// Decode reads a LEB128-encoded integer of at most bits bits from b,
// starting at offset off. It returns the decoded value (sign-extended when
// signed is true), the number of bytes consumed, and an error if the
// encoding runs past the end of b or exceeds its declared width.
func Decode(b []byte, off int, bits uint, signed bool) (int64, int, error) {
	var (
		result int64
		shift  uint
		n      int
	)
	limit := maxBytes(bits)
	for {
		if off+n >= len(b) {
			return 0, 0, io.ErrUnexpectedEOF
		}
		cur := b[off+n]
		result |= int64(cur&0x7f) << shift
		shift += 7
		n++
		if n > limit {
			return 0, 0, ErrOverflow
		}
		if cur&0x80 == 0 {
			if signed && shift < 64 && cur&0x40 != 0 {
				result |= -1 << shift
			}
			return result, n, nil
		}
	}
}

// byteReader is the minimal interface Read* needs: anything that can hand
// back one byte at a time, satisfied by *bytes.Reader and *bufio.Reader.
type byteReader interface {
	ReadByte() (byte, error)
}

func read(r byteReader, bits uint, signed bool) (int64, error) {
	var (
		result int64
		shift  uint
		n      int
	)
	limit := maxBytes(bits)
	for {
		cur, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		result |= int64(cur&0x7f) << shift
		shift += 7
		n++
		if n > limit {
			return 0, ErrOverflow
		}
		if cur&0x80 == 0 {
			if signed && shift < 64 && cur&0x40 != 0 {
				result |= -1 << shift
			}
			return result, nil
		}
	}
}

// ReadUint32 reads a ULEB128-encoded uint32 from r.
func ReadUint32(r byteReader) (uint32, error) {
	v, err := read(r, 32, false)
	return uint32(v), err
}

// ReadInt32 reads an SLEB128-encoded int32 from r.
func ReadInt32(r byteReader) (int32, error) {
	v, err := read(r, 32, true)
	return int32(v), err
}

// ReadUint64 reads a ULEB128-encoded uint64 from r.
func ReadUint64(r byteReader) (uint64, error) {
	v, err := read(r, 64, false)
	return uint64(v), err
}

// ReadInt64 reads an SLEB128-encoded int64 from r.
func ReadInt64(r byteReader) (int64, error) {
	return read(r, 64, true)
}
