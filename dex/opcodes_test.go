package dex

import (
	"strings"
	"testing"
)

func TestTwoAddrOpcodesMirrorBinops(t *testing.T) {
	for op := OpAddInt2Addr; op <= OpRemDouble2Addr; op++ {
		info := op.Info()
		base := (op - OpAddInt2Addr + OpAddInt).Info()
		if info.Name != base.Name+"/2addr" {
			t.Errorf("opcode %#02x = %q, want %q", byte(op), info.Name, base.Name+"/2addr")
		}
		if info.Format != Fmt12x {
			t.Errorf("%s format = %v, want Fmt12x", info.Name, info.Format)
		}
	}
	for op, want := range map[Opcode]string{
		OpDivInt2Addr:    "div-int/2addr",
		OpShlLong2Addr:   "shl-long/2addr",
		OpRemFloat2Addr:  "rem-float/2addr",
		OpDivDouble2Addr: "div-double/2addr",
	} {
		if got := op.Info().Name; got != want {
			t.Errorf("%#02x name = %q, want %q", byte(op), got, want)
		}
	}
	if !strings.HasSuffix(OpRemDouble2Addr.Info().Name, "/2addr") || OpRemDouble2Addr != 0xcf {
		t.Errorf("rem-double/2addr = %#02x", byte(OpRemDouble2Addr))
	}
}
