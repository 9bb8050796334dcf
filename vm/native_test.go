package vm

import (
	"testing"
)

func TestNativeRegistry(t *testing.T) {
	r := NewNativeRegistry()
	if r.Lookup("LFoo;.bar()V") != nil {
		t.Fatal("empty registry returned a function")
	}
	called := false
	r.Register("LFoo;.bar()V", func(*Thread, []Value) (Value, error) {
		called = true
		return Value{}, nil
	})
	r.Register("LFoo;.aaa()V", func(*Thread, []Value) (Value, error) { return Value{}, nil })

	fn := r.Lookup("LFoo;.bar()V")
	if fn == nil {
		t.Fatal("registered function not found")
	}
	fn(nil, nil)
	if !called {
		t.Error("Lookup returned a different function")
	}
	keys := r.Keys()
	if len(keys) != 2 || keys[0] != "LFoo;.aaa()V" || keys[1] != "LFoo;.bar()V" {
		t.Errorf("Keys = %v", keys)
	}
}

func TestBuiltinsBound(t *testing.T) {
	vm, _ := newTestVM(t, DefaultConfig())
	for _, c := range vm.Classes.Classes() {
		for _, m := range append(c.DirectMethods, c.VirtualMethods...) {
			if m.IsNative() && m.Native == nil {
				t.Errorf("%s has no native bound", m.Key())
			}
		}
	}
}

func TestBuiltinStrings(t *testing.T) {
	vm, _ := newTestVM(t, DefaultConfig())
	th := vm.MainThread()
	str := mustClass(t, vm, descString)
	a, _ := vm.NewString(th, "héllo")
	b, _ := vm.NewString(th, "héllo")

	tests := []struct {
		name string
		desc string
		this *Object
		args []Value
		want int32
	}{
		{"length", "()I", a, nil, 5},
		{"equals", "(Ljava/lang/Object;)Z", a, []Value{RefValue(b)}, 1},
		{"equals", "(Ljava/lang/Object;)Z", a, []Value{{}}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := vm.Invoke(th, str.FindVirtual(tt.name, tt.desc), tt.this, tt.args, true)
			if err != nil {
				t.Fatal(err)
			}
			if v.Int() != tt.want {
				t.Errorf("%s = %d, want %d", tt.name, v.Int(), tt.want)
			}
		})
	}

	ha, _ := vm.Invoke(th, str.FindVirtual("hashCode", "()I"), a, nil, true)
	hb, _ := vm.Invoke(th, str.FindVirtual("hashCode", "()I"), b, nil, true)
	if ha.Int() != hb.Int() {
		t.Error("equal strings hash differently")
	}
}
