package dex

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

// ---------------------------------------------------------------------------
// Header and checksum
// ---------------------------------------------------------------------------

func TestVerifyRejectsDamagedHeaders(t *testing.T) {
	tests := []struct {
		name   string
		mutate func([]byte) []byte
		want   error
	}{
		{"short buffer", func(b []byte) []byte { return b[:40] }, ErrTruncated},
		{"bad magic", func(b []byte) []byte { b[4] = '9'; return b }, ErrBadMagic},
		{"bad endian tag", func(b []byte) []byte { binary.LittleEndian.PutUint32(b[40:], 0xdeadbeef); return b }, ErrBadEndianTag},
		{"truncated body", func(b []byte) []byte { return b[:len(b)-8] }, ErrTruncated},
		{"corrupt body", func(b []byte) []byte { b[len(b)-1] ^= 0xff; return b }, ErrChecksum},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := tt.mutate(buildContainer(t, helloClass()))
			_, err := Verify(buf)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Verify error = %v, want %v", err, tt.want)
			}
			var ve *VerifyError
			if !errors.As(err, &ve) {
				t.Fatalf("error %T is not a *VerifyError", err)
			}
		})
	}
}

func TestVerifyToleratesTrailingBytes(t *testing.T) {
	buf := buildContainer(t, helloClass())
	padded := append(buf, 0, 0, 0, 0)
	f, err := Verify(padded)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if len(f.Bytes()) != len(buf) {
		t.Errorf("file length = %d, want %d", len(f.Bytes()), len(buf))
	}
}

func TestSkipChecksum(t *testing.T) {
	buf := buildContainer(t, helloClass())
	binary.LittleEndian.PutUint32(buf[8:], 0)
	if _, err := Verify(append([]byte(nil), buf...)); !errors.Is(err, ErrChecksum) {
		t.Fatalf("Verify error = %v, want ErrChecksum", err)
	}
	if _, err := Verify(buf, SkipChecksum()); err != nil {
		t.Fatalf("Verify with SkipChecksum failed: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Byte order
// ---------------------------------------------------------------------------

func TestByteOrderRoundTrip(t *testing.T) {
	orig := buildContainer(t, helloClass())
	input := append([]byte(nil), orig...)

	be, err := ToByteOrder(input, binary.BigEndian)
	if err != nil {
		t.Fatalf("ToByteOrder(BigEndian) failed: %v", err)
	}
	if !bytes.Equal(input, orig) {
		t.Fatal("ToByteOrder modified its input")
	}
	if bytes.Equal(be, orig) {
		t.Fatal("big-endian output identical to little-endian input")
	}
	if tag := binary.LittleEndian.Uint32(be[40:]); tag != ReverseEndianConstant {
		t.Fatalf("endian tag read little-endian = 0x%08x, want 0x%08x", tag, ReverseEndianConstant)
	}
	if sum := binary.BigEndian.Uint32(be[8:]); sum != Checksum(be) {
		t.Errorf("big-endian checksum = %08x, want %08x", sum, Checksum(be))
	}

	f, err := Verify(append([]byte(nil), be...))
	if err != nil {
		t.Fatalf("Verify(big-endian) failed: %v", err)
	}
	if _, ok := f.FindClassDef("LHello;"); !ok {
		t.Error("LHello; missing after big-endian verify")
	}

	le, err := ToByteOrder(be, binary.LittleEndian)
	if err != nil {
		t.Fatalf("ToByteOrder(LittleEndian) failed: %v", err)
	}
	if !bytes.Equal(le, orig) {
		t.Error("little-endian round trip differs from the original")
	}
}

// ---------------------------------------------------------------------------
// Cross verification
// ---------------------------------------------------------------------------

func TestStringsOutOfOrderRejected(t *testing.T) {
	b := NewBuilder()
	b.PreserveStringOrder = true
	for _, s := range []string{"banana", "apple", "cherry"} {
		b.AddString(s)
	}
	buf, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	_, err = Verify(buf)
	if !errors.Is(err, ErrOutOfOrder) {
		t.Fatalf("Verify error = %v, want ErrOutOfOrder", err)
	}

	sorted := NewBuilder()
	for _, s := range []string{"banana", "apple", "cherry"} {
		sorted.AddString(s)
	}
	if buf, err = sorted.Build(); err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	f, err := Verify(buf)
	if err != nil {
		t.Fatalf("Verify of sorted strings failed: %v", err)
	}
	for i, want := range []string{"apple", "banana", "cherry"} {
		if got := f.String(uint32(i)); got != want {
			t.Errorf("String(%d) = %q, want %q", i, got, want)
		}
	}
}

func TestWrongOwnerRejected(t *testing.T) {
	c := helloClass()
	c.VirtualMethods[0].Owner = "LOther;"
	_, err := Verify(buildContainer(t, c))
	if !errors.Is(err, ErrWrongOwner) {
		t.Fatalf("Verify error = %v, want ErrWrongOwner", err)
	}
}

func TestTryRangeBeyondInstructionsRejected(t *testing.T) {
	withTry := func(count uint16) *ClassSpec {
		return &ClassSpec{
			Descriptor:  "LTry;",
			AccessFlags: AccPublic,
			Superclass:  "Ljava/lang/Object;",
			DirectMethods: []MethodSpec{{
				Name:        "run",
				Descriptor:  "()V",
				AccessFlags: AccStatic,
				Code: &CodeSpec{
					Registers: 1,
					Insns:     []uint16{0, 0, 0, uint16(OpReturnVoid)},
					Tries:     []TrySpec{{Start: 0, Count: count, CatchAll: true, CatchAllAddr: 3}},
				},
			}},
		}
	}

	if _, err := Verify(buildContainer(t, withTry(4))); err != nil {
		t.Fatalf("try {0,4} rejected: %v", err)
	}
	_, err := Verify(buildContainer(t, withTry(10)))
	if !errors.Is(err, ErrBadTryRange) {
		t.Fatalf("Verify error = %v, want ErrBadTryRange", err)
	}
}

func TestTablesStrictlyOrdered(t *testing.T) {
	other := &ClassSpec{
		Descriptor:  "LAardvark;",
		AccessFlags: AccPublic,
		Superclass:  "Ljava/lang/Object;",
		InstanceFields: []FieldSpec{
			{Name: "zebra", Type: "J"},
			{Name: "alpha", Type: "Z"},
		},
	}
	f, err := Verify(buildContainer(t, helloClass(), other))
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	for i := 1; i < len(f.StringIDs); i++ {
		if compareStrings(f.String(uint32(i-1)), f.String(uint32(i))) >= 0 {
			t.Errorf("strings %d and %d out of order: %q, %q", i-1, i, f.String(uint32(i-1)), f.String(uint32(i)))
		}
	}
	for i := 1; i < len(f.TypeIDs); i++ {
		if f.TypeIDs[i-1] >= f.TypeIDs[i] {
			t.Errorf("type ids %d and %d out of order", i-1, i)
		}
	}
	for i := 1; i < len(f.FieldIDs); i++ {
		a, b := f.FieldIDs[i-1], f.FieldIDs[i]
		if !memberLess(uint32(a.ClassIdx), a.NameIdx, uint32(a.TypeIdx), uint32(b.ClassIdx), b.NameIdx, uint32(b.TypeIdx)) {
			t.Errorf("field ids %d and %d out of order", i-1, i)
		}
	}
	for i := 1; i < len(f.MethodIDs); i++ {
		a, b := f.MethodIDs[i-1], f.MethodIDs[i]
		if !memberLess(uint32(a.ClassIdx), a.NameIdx, uint32(a.ProtoIdx), uint32(b.ClassIdx), b.NameIdx, uint32(b.ProtoIdx)) {
			t.Errorf("method ids %d and %d out of order", i-1, i)
		}
	}
}

func TestSkipCrossVerify(t *testing.T) {
	b := NewBuilder()
	b.PreserveStringOrder = true
	b.AddString("b")
	b.AddString("a")
	buf, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if _, err := Verify(buf, SkipCrossVerify()); err != nil {
		t.Fatalf("Verify with SkipCrossVerify failed: %v", err)
	}
}
