package vm

import (
	"errors"
	"testing"

	"github.com/chazu/dexvm/dex"
)

func TestClassLayout(t *testing.T) {
	spec := &dex.ClassSpec{
		Descriptor:  "LPoint;",
		AccessFlags: dex.AccPublic,
		Superclass:  descObject,
		InstanceFields: []dex.FieldSpec{
			{Name: "b", Type: "B"},
			{Name: "d", Type: "D"},
			{Name: "i", Type: "I"},
			{Name: "o", Type: descObject},
			{Name: "s", Type: "S"},
		},
	}
	vm, _ := newTestVM(t, DefaultConfig(), spec)
	c := mustClass(t, vm, "LPoint;")

	if c.RefCount != 1 {
		t.Errorf("RefCount = %d, want 1", c.RefCount)
	}
	want := map[string]int{"o": 0, "d": 0, "i": 8, "s": 12, "b": 14}
	for name, off := range want {
		var typ string
		for _, f := range spec.InstanceFields {
			if f.Name == name {
				typ = f.Type
			}
		}
		f := c.FindField(name, typ, false)
		if f == nil {
			t.Fatalf("field %s not found", name)
		}
		if f.Offset != off {
			t.Errorf("%s offset = %d, want %d", name, f.Offset, off)
		}
	}
	if c.PrimSize != 15 {
		t.Errorf("PrimSize = %d, want 15", c.PrimSize)
	}
}

func TestVTableOverrides(t *testing.T) {
	a := &dex.ClassSpec{
		Descriptor:     "LA;",
		AccessFlags:    dex.AccPublic,
		Superclass:     descObject,
		DirectMethods:  []dex.MethodSpec{constructor(descObject)},
		VirtualMethods: []dex.MethodSpec{returnConst("f", 1), returnConst("g", 2)},
	}
	b := &dex.ClassSpec{
		Descriptor:     "LB;",
		AccessFlags:    dex.AccPublic,
		Superclass:     "LA;",
		DirectMethods:  []dex.MethodSpec{constructor("LA;")},
		VirtualMethods: []dex.MethodSpec{returnConst("g", 3), returnConst("h", 4)},
	}
	vm, _ := newTestVM(t, DefaultConfig(), a, b)
	ca, cb := mustClass(t, vm, "LA;"), mustClass(t, vm, "LB;")

	if len(cb.VTable) != len(ca.VTable)+1 {
		t.Fatalf("vtable sizes %d and %d", len(ca.VTable), len(cb.VTable))
	}
	fa, ga := ca.FindVirtual("f", "()I"), ca.FindVirtual("g", "()I")
	gb, hb := cb.FindVirtual("g", "()I"), cb.FindVirtual("h", "()I")
	if cb.FindVirtual("f", "()I") != fa {
		t.Error("B does not inherit f from A")
	}
	if gb.Class != cb || gb.VTableIndex != ga.VTableIndex {
		t.Errorf("g override: class %s slot %d, want LB; slot %d", gb.Class, gb.VTableIndex, ga.VTableIndex)
	}
	if hb.VTableIndex != len(ca.VTable) {
		t.Errorf("h slot = %d, want %d", hb.VTableIndex, len(ca.VTable))
	}
	if !cb.IsSubclassOf(ca) || ca.IsSubclassOf(cb) {
		t.Error("subclass relation wrong")
	}
}

func returnConst(name string, v int8) dex.MethodSpec {
	return virtualMethod(name, "()I", 2, 1, func(a *dex.Assembler, ix *dex.Index) {
		a.Op11n(dex.OpConst4, 0, v)
		a.Op11x(dex.OpReturn, 0)
	})
}

func TestClassLoadErrors(t *testing.T) {
	classes := []*dex.ClassSpec{
		{Descriptor: "LX;", AccessFlags: dex.AccPublic, Superclass: "LY;"},
		{Descriptor: "LY;", AccessFlags: dex.AccPublic, Superclass: "LX;"},
		{Descriptor: "LOrphan;", AccessFlags: dex.AccPublic, Superclass: "LMissing;"},
		{Descriptor: "LSub;", AccessFlags: dex.AccPublic, Superclass: descString},
	}
	vm, _ := newTestVM(t, DefaultConfig(), classes...)

	tests := []struct {
		desc string
		want error
	}{
		{"LX;", ErrClassCircular},
		{"LOrphan;", ErrClassNotFound},
		{"LSub;", ErrClassNotFound},
		{"LNowhere;", ErrClassNotFound},
		{"Q", ErrClassNotFound},
		{"V", ErrClassNotFound},
		{"", ErrClassNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			_, err := vm.Classes.FindClass(tt.desc)
			if !errors.Is(err, tt.want) {
				t.Errorf("FindClass(%q) = %v, want %v", tt.desc, err, tt.want)
			}
		})
	}

	// A failed load is remembered.
	_, err1 := vm.Classes.FindClass("LOrphan;")
	_, err2 := vm.Classes.FindClass("LOrphan;")
	if err1 == nil || err1.Error() != err2.Error() {
		t.Errorf("repeated load errors differ: %v / %v", err1, err2)
	}
	if vm.Classes.Lookup("LOrphan;") != nil {
		t.Error("Lookup returned a class in the error state")
	}
}

func TestArrayAndPrimitiveClasses(t *testing.T) {
	vm, _ := newTestVM(t, DefaultConfig())

	ints := mustClass(t, vm, "[I")
	if !ints.IsArray() || !ints.Component.Primitive || ints.Component.Descriptor != "I" {
		t.Errorf("[I component = %+v", ints.Component)
	}
	if ints.Super != mustClass(t, vm, descObject) {
		t.Error("array superclass is not Object")
	}

	strs := mustClass(t, vm, "[[Ljava/lang/String;")
	objs := mustClass(t, vm, "[[Ljava/lang/Object;")
	if !strs.IsAssignableTo(objs) {
		t.Error("String[][] not assignable to Object[][]")
	}
	if objs.IsAssignableTo(strs) {
		t.Error("Object[][] assignable to String[][]")
	}
	if ints.IsAssignableTo(mustClass(t, vm, "[J")) {
		t.Error("int[] assignable to long[]")
	}
	if !ints.IsAssignableTo(mustClass(t, vm, descObject)) {
		t.Error("int[] not assignable to Object")
	}
	if again := mustClass(t, vm, "[I"); again != ints {
		t.Error("array class loaded twice")
	}
}

func TestStaticValuesAndInitializer(t *testing.T) {
	spec := &dex.ClassSpec{
		Descriptor:  "LConsts;",
		AccessFlags: dex.AccPublic,
		Superclass:  descObject,
		StaticFields: []dex.FieldSpec{
			{Name: "greeting", Type: descString, AccessFlags: dex.AccStatic, Value: dex.StringValue("hi")},
			{Name: "n", Type: "I", AccessFlags: dex.AccStatic, Value: dex.IntValue(7)},
			{Name: "x", Type: "J", AccessFlags: dex.AccStatic},
		},
		DirectMethods: []dex.MethodSpec{
			staticMethod("<clinit>", "()V", 2, 0, func(a *dex.Assembler, ix *dex.Index) {
				a.Op51l(dex.OpConstWide, 0, 1<<40)
				a.Op21c(dex.OpSputWide, 0, ix.Field("LConsts;", "x", "J"))
				a.Op10x(dex.OpReturnVoid)
			}),
		},
	}
	vm, _ := newTestVM(t, DefaultConfig(), spec)
	c := mustClass(t, vm, "LConsts;")
	if c.Status() != ClassVerified {
		t.Fatalf("status before init = %s", c.Status())
	}
	if err := vm.InitializeClass(vm.MainThread(), c); err != nil {
		t.Fatal(err)
	}
	if c.Status() != ClassInitialized {
		t.Fatalf("status = %s", c.Status())
	}
	if got := c.GetStatic(c.FindField("n", "I", true)).Int(); got != 7 {
		t.Errorf("n = %d", got)
	}
	if got := c.GetStatic(c.FindField("x", "J", true)).Long(); got != 1<<40 {
		t.Errorf("x = %d", got)
	}
	s := c.GetStatic(c.FindField("greeting", descString, true)).Ref
	if s == nil || s.Str != "hi" {
		t.Fatalf("greeting = %v", s)
	}
	if interned, _ := vm.Intern(vm.MainThread(), "hi"); interned != s {
		t.Error("string static value is not interned")
	}
}

func TestFailedInitializerPoisonsClass(t *testing.T) {
	spec := &dex.ClassSpec{
		Descriptor:  "LBad;",
		AccessFlags: dex.AccPublic,
		Superclass:  descObject,
		DirectMethods: []dex.MethodSpec{
			staticMethod("<clinit>", "()V", 2, 0, func(a *dex.Assembler, ix *dex.Index) {
				a.Op11n(dex.OpConst4, 0, 1)
				a.Op11n(dex.OpConst4, 1, 0)
				a.Op23x(dex.OpDivInt, 0, 0, 1)
				a.Op10x(dex.OpReturnVoid)
			}),
		},
	}
	vm, _ := newTestVM(t, DefaultConfig(), spec)
	c := mustClass(t, vm, "LBad;")
	th := vm.MainThread()

	exc, ok := AsThrow(vm.InitializeClass(th, c))
	if !ok || exc.Class.Descriptor != "Ljava/lang/ArithmeticException;" {
		t.Fatalf("first init: %v", exc)
	}
	if c.Status() != ClassError {
		t.Fatalf("status = %s", c.Status())
	}
	exc, ok = AsThrow(vm.InitializeClass(th, c))
	if !ok || exc.Class.Descriptor != "Ljava/lang/NoClassDefFoundError;" {
		t.Errorf("second init: %v", exc)
	}
}

func TestClassesSorted(t *testing.T) {
	vm, _ := newTestVM(t, DefaultConfig())
	cs := vm.Classes.Classes()
	for i := 1; i < len(cs); i++ {
		if cs[i-1].Descriptor >= cs[i].Descriptor {
			t.Fatalf("Classes out of order at %d: %s >= %s", i, cs[i-1].Descriptor, cs[i].Descriptor)
		}
	}
}
