package vm

import (
	"bytes"
	"testing"

	"github.com/chazu/dexvm/dex"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

type asmFunc func(a *dex.Assembler, ix *dex.Index)

func newTestVM(t *testing.T, cfg Config, classes ...*dex.ClassSpec) (*VM, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	cfg.Stdout = &out
	vm, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(vm.Shutdown)
	if len(classes) > 0 {
		vm.AddDexFile(buildDex(t, classes...))
	}
	return vm, &out
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

func code(regs, ins uint16, asm asmFunc, tries ...dex.TrySpec) *dex.CodeSpec {
	return &dex.CodeSpec{
		Registers: regs,
		Ins:       ins,
		Outs:      5,
		Tries:     tries,
		Assemble: func(ix *dex.Index) []uint16 {
			a := dex.NewAssembler()
			asm(a, ix)
			return a.Insns()
		},
	}
}

func staticMethod(name, desc string, regs, ins uint16, asm asmFunc, tries ...dex.TrySpec) dex.MethodSpec {
	return dex.MethodSpec{
		Name:        name,
		Descriptor:  desc,
		AccessFlags: dex.AccPublic | dex.AccStatic,
		Code:        code(regs, ins, asm, tries...),
	}
}

func virtualMethod(name, desc string, regs, ins uint16, asm asmFunc) dex.MethodSpec {
	return dex.MethodSpec{
		Name:        name,
		Descriptor:  desc,
		AccessFlags: dex.AccPublic,
		Code:        code(regs, ins, asm),
	}
}

// constructor returns an <init>()V that calls the superclass constructor.
func constructor(super string) dex.MethodSpec {
	return dex.MethodSpec{
		Name:        "<init>",
		Descriptor:  "()V",
		AccessFlags: dex.AccPublic | dex.AccConstructor,
		Code: code(1, 1, func(a *dex.Assembler, ix *dex.Index) {
			a.Op35c(dex.OpInvokeDirect, ix.Method(super, "<init>", "()V"), 0)
			a.Op10x(dex.OpReturnVoid)
		}),
	}
}

// mainClass returns LMain; with a static main whose body is asm.
func mainClass(regs uint16, asm asmFunc, tries ...dex.TrySpec) *dex.ClassSpec {
	return &dex.ClassSpec{
		Descriptor:    "LMain;",
		AccessFlags:   dex.AccPublic,
		Superclass:    descObject,
		DirectMethods: []dex.MethodSpec{staticMethod("main", "([Ljava/lang/String;)V", regs, 1, asm, tries...)},
	}
}

func printInt(a *dex.Assembler, ix *dex.Index, r uint8) {
	a.Op35c(dex.OpInvokeStatic, ix.Method("LPrint;", "println", "(I)V"), r)
}

func printString(a *dex.Assembler, ix *dex.Index, r uint8) {
	a.Op35c(dex.OpInvokeStatic, ix.Method("LPrint;", "println", "(Ljava/lang/String;)V"), r)
}

func runMain(t *testing.T, vm *VM, out *bytes.Buffer) string {
	t.Helper()
	if err := vm.Run("LMain;", nil); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	return out.String()
}

func mustClass(t *testing.T, vm *VM, desc string) *Class {
	t.Helper()
	c, err := vm.Classes.FindClass(desc)
	if err != nil {
		t.Fatalf("FindClass(%s) failed: %v", desc, err)
	}
	return c
}
