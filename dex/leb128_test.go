package dex

import (
	"testing"
)

func TestReadULEB128(t *testing.T) {
	tests := []struct {
		in   []byte
		want uint32
		next int
		ok   bool
	}{
		{[]byte{0x00}, 0, 1, true},
		{[]byte{0x7f}, 127, 1, true},
		{[]byte{0x80, 0x7f}, 16256, 2, true},
		{[]byte{0xff, 0xff, 0xff, 0xff, 0x0f}, 0xffffffff, 5, true},
		{[]byte{0x80}, 0, 0, false},
		{[]byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x01}, 0, 0, false},
	}
	for _, tt := range tests {
		got, next, ok := ReadULEB128(tt.in, 0)
		if ok != tt.ok {
			t.Errorf("ReadULEB128(% x) ok = %v, want %v", tt.in, ok, tt.ok)
			continue
		}
		if ok && (got != tt.want || next != tt.next) {
			t.Errorf("ReadULEB128(% x) = %d, %d; want %d, %d", tt.in, got, next, tt.want, tt.next)
		}
	}
}

func TestReadSLEB128(t *testing.T) {
	tests := []struct {
		in   []byte
		want int32
	}{
		{[]byte{0x00}, 0},
		{[]byte{0x01}, 1},
		{[]byte{0x7f}, -1},
		{[]byte{0x80, 0x7f}, -128},
		{[]byte{0x3c}, 60},
	}
	for _, tt := range tests {
		got, _, ok := ReadSLEB128(tt.in, 0)
		if !ok || got != tt.want {
			t.Errorf("ReadSLEB128(% x) = %d, %v; want %d", tt.in, got, ok, tt.want)
		}
	}
}

func TestReadULEB128p1(t *testing.T) {
	got, _, ok := ReadULEB128p1([]byte{0x00}, 0)
	if !ok || got != -1 {
		t.Errorf("ReadULEB128p1(00) = %d, %v; want -1", got, ok)
	}
	got, _, ok = ReadULEB128p1([]byte{0x05}, 0)
	if !ok || got != 4 {
		t.Errorf("ReadULEB128p1(05) = %d, %v; want 4", got, ok)
	}
}

func TestWriterSLEBMatchesReader(t *testing.T) {
	for _, v := range []int32{0, 1, -1, 63, 64, -64, -65, 1 << 20, -(1 << 20), 2147483647, -2147483648} {
		w := &writer{}
		w.sleb(v)
		got, next, ok := ReadSLEB128(w.buf, 0)
		if !ok || got != v || next != len(w.buf) {
			t.Errorf("sleb(%d) = % x decodes to %d (next %d, ok %v)", v, w.buf, got, next, ok)
		}
	}
}
