package jdwp

import (
	"io"
	"testing"
	"time"

	"github.com/chazu/dexvm/dex"
	"github.com/chazu/dexvm/vm"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

const descObject = "Ljava/lang/Object;"

type asmFunc func(a *dex.Assembler, ix *dex.Index)

func code(regs, ins uint16, asm asmFunc, lines ...dex.LineSpec) *dex.CodeSpec {
	return &dex.CodeSpec{
		Registers: regs,
		Ins:       ins,
		Outs:      3,
		Lines:     lines,
		Assemble: func(ix *dex.Index) []uint16 {
			a := dex.NewAssembler()
			asm(a, ix)
			return a.Insns()
		},
	}
}

// targetClass is LTarget;, the class the debugger tests poke at.
func targetClass() *dex.ClassSpec {
	return &dex.ClassSpec{
		Descriptor:  "LTarget;",
		AccessFlags: dex.AccPublic,
		Superclass:  descObject,
		SourceFile:  "Target.java",
		StaticFields: []dex.FieldSpec{
			{Name: "count", Type: "I", AccessFlags: dex.AccPublic | dex.AccStatic},
		},
		InstanceFields: []dex.FieldSpec{
			{Name: "label", Type: "Ljava/lang/String;", AccessFlags: dex.AccPublic},
			{Name: "total", Type: "J", AccessFlags: dex.AccPublic},
		},
		DirectMethods: []dex.MethodSpec{
			{
				Name:        "<init>",
				Descriptor:  "()V",
				AccessFlags: dex.AccPublic | dex.AccConstructor,
				Code: code(1, 1, func(a *dex.Assembler, ix *dex.Index) {
					a.Op35c(dex.OpInvokeDirect, ix.Method(descObject, "<init>", "()V"), 0)
					a.Op10x(dex.OpReturnVoid)
				}),
			},
			{
				// work(n) returns n+1 over two lines.
				Name:        "work",
				Descriptor:  "(I)I",
				AccessFlags: dex.AccPublic | dex.AccStatic,
				Code: func() *dex.CodeSpec {
					c := code(2, 1, func(a *dex.Assembler, ix *dex.Index) {
						a.Op22b(dex.OpAddIntLit8, 0, 1, 1)
						a.Op11x(dex.OpReturn, 0)
					}, dex.LineSpec{Addr: 0, Line: 10}, dex.LineSpec{Addr: 2, Line: 11})
					c.ParamNames = []string{"n"}
					return c
				}(),
			},
			{
				Name:        "add",
				Descriptor:  "(II)I",
				AccessFlags: dex.AccPublic | dex.AccStatic,
				Code: code(3, 2, func(a *dex.Assembler, ix *dex.Index) {
					a.Op23x(dex.OpAddInt, 0, 1, 2)
					a.Op11x(dex.OpReturn, 0)
				}),
			},
			{
				Name:        "fail",
				Descriptor:  "()I",
				AccessFlags: dex.AccPublic | dex.AccStatic,
				Code: code(2, 0, func(a *dex.Assembler, ix *dex.Index) {
					a.Op11n(dex.OpConst4, 0, 0)
					a.Op23x(dex.OpDivInt, 1, 0, 0)
					a.Op11x(dex.OpReturn, 1)
				}),
			},
		},
		VirtualMethods: []dex.MethodSpec{
			{
				Name:        "get",
				Descriptor:  "()I",
				AccessFlags: dex.AccPublic,
				Code: code(2, 1, func(a *dex.Assembler, ix *dex.Index) {
					a.Op11n(dex.OpConst4, 0, 7)
					a.Op11x(dex.OpReturn, 0)
				}, dex.LineSpec{Addr: 0, Line: 20}),
			},
		},
	}
}

func buildDex(t *testing.T, classes ...*dex.ClassSpec) *dex.File {
	t.Helper()
	b := dex.NewBuilder()
	for _, c := range classes {
		b.AddClass(c)
	}
	buf, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	f, err := dex.Verify(buf)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	return f
}

func newTestVM(t *testing.T, classes ...*dex.ClassSpec) *vm.VM {
	t.Helper()
	cfg := vm.DefaultConfig()
	cfg.Stdout = io.Discard
	v, err := vm.New(cfg)
	if err != nil {
		t.Fatalf("vm.New failed: %v", err)
	}
	t.Cleanup(v.Shutdown)
	if len(classes) > 0 {
		v.AddDexFile(buildDex(t, classes...))
	}
	return v
}

// sentPacket is a command the bridge sent to the debugger.
type sentPacket struct {
	cmdSet, cmd byte
	data        []byte
}

type recorder struct {
	ch chan sentPacket
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan sentPacket, 64)}
}

func (r *recorder) sink(cmdSet, cmd byte, payload []byte) error {
	r.ch <- sentPacket{cmdSet, cmd, append([]byte(nil), payload...)}
	return nil
}

func (r *recorder) next(t *testing.T) sentPacket {
	t.Helper()
	select {
	case p := <-r.ch:
		return p
	case <-time.After(5 * time.Second):
		t.Fatal("no packet sent")
	}
	return sentPacket{}
}

func (r *recorder) none(t *testing.T) {
	t.Helper()
	select {
	case p := <-r.ch:
		t.Fatalf("unexpected packet %d/%d", p.cmdSet, p.cmd)
	default:
	}
}

// newTestBridge returns a connected bridge over a VM holding LTarget;.
func newTestBridge(t *testing.T) (*vm.VM, *Bridge, *recorder) {
	t.Helper()
	v := newTestVM(t, targetClass())
	b, err := NewBridge(v)
	if err != nil {
		t.Fatalf("NewBridge failed: %v", err)
	}
	t.Cleanup(b.Close)
	rec := newRecorder()
	if err := b.Connected("test", rec.sink); err != nil {
		t.Fatalf("Connected failed: %v", err)
	}
	return v, b, rec
}

func mustClass(t *testing.T, v *vm.VM, desc string) *vm.Class {
	t.Helper()
	c, err := v.Classes.FindClass(desc)
	if err != nil {
		t.Fatalf("FindClass(%s) failed: %v", desc, err)
	}
	return c
}

// classID loads desc and returns its debugger id.
func classID(t *testing.T, v *vm.VM, b *Bridge, desc string) ObjectID {
	t.Helper()
	mustClass(t, v, desc)
	infos := b.ClassBySignature(desc)
	if len(infos) != 1 {
		t.Fatalf("ClassBySignature(%s) = %v", desc, infos)
	}
	return infos[0].ID
}

func methodID(t *testing.T, b *Bridge, class ObjectID, name string) ObjectID {
	t.Helper()
	methods, err := b.Methods(class)
	if err != nil {
		t.Fatal(err)
	}
	for _, m := range methods {
		if m.Name == name {
			return m.ID
		}
	}
	t.Fatalf("no method %s", name)
	return 0
}

func fieldID(t *testing.T, b *Bridge, class ObjectID, name string) ObjectID {
	t.Helper()
	fields, err := b.Fields(class)
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range fields {
		if f.Name == name {
			return f.ID
		}
	}
	t.Fatalf("no field %s", name)
	return 0
}

func waitStatus(t *testing.T, th *vm.Thread, want vm.ThreadStatus) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for th.Status() != want {
		if time.Now().After(deadline) {
			t.Fatalf("%s status %s, want %s", th, th.Status(), want)
		}
		time.Sleep(time.Millisecond)
	}
}

func intVal(i int32) Value {
	return Value{Tag: TagInt, Bits: uint64(uint32(i))}
}
