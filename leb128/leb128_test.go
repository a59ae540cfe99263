package leb128

import (
	"bytes"
	"testing"
)

func TestReadUint32Boundaries(t *testing.T) {
	cases := []struct {
		name string
		in   []byte
		want uint32
	}{
		{"zero", []byte{0x00}, 0},
		{"onebyte-max", []byte{0x7F}, 127},
		{"twobyte-min", []byte{0x80, 0x01}, 128},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := ReadUint32(bytes.NewReader(c.in))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != c.want {
				t.Errorf("got %d, want %d", got, c.want)
			}
		})
	}
}

func TestReadUint32RejectsOverlongEncoding(t *testing.T) {
	// Six bytes (five with the continuation bit set) encode more 7-bit
	// groups than a u32 may use.
	overlong := []byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x01}
	_, err := ReadUint32(bytes.NewReader(overlong))
	if err != ErrOverflow {
		t.Errorf("expected ErrOverflow, got %v", err)
	}
}

func TestReadInt32SignExtends(t *testing.T) {
	// -1 encodes as a single byte 0x7F in SLEB128.
	got, err := ReadInt32(bytes.NewReader([]byte{0x7F}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != -1 {
		t.Errorf("got %d, want -1", got)
	}
}

func TestDecodeReportsConsumedByteCount(t *testing.T) {
	v, n, err := Decode([]byte{0x80, 0x01, 0xFF}, 0, 32, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 128 || n != 2 {
		t.Errorf("got value=%d n=%d, want value=128 n=2", v, n)
	}
}
