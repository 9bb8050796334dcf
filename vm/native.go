package vm

import (
	"fmt"
	"strconv"
	"unicode/utf16"

	"github.com/sasha-s/go-deadlock"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// ---------------------------------------------------------------------------
// Native methods
// ---------------------------------------------------------------------------

// NativeFunc implements a native method. args holds the receiver first
// for instance methods, then one Value per parameter. Returning a
// *ThrowError raises that exception; any other error is converted.
type NativeFunc func(t *Thread, args []Value) (Value, error)

// NativeRegistry maps method keys ("Lpkg/C;.name(desc)") to Go
// implementations.
type NativeRegistry struct {
	mu  deadlock.RWMutex
	fns map[string]NativeFunc
}

// NewNativeRegistry returns an empty registry.
func NewNativeRegistry() *NativeRegistry {
	return &NativeRegistry{fns: make(map[string]NativeFunc)}
}

// Register binds fn to key, replacing any earlier binding. Classes
// loaded afterwards pick it up; already loaded native methods look it up
// on first call.
func (r *NativeRegistry) Register(key string, fn NativeFunc) {
	r.mu.Lock()
	r.fns[key] = fn
	r.mu.Unlock()
}

// Lookup returns the function bound to key, or nil.
func (r *NativeRegistry) Lookup(key string) NativeFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fns[key]
}

// Keys returns the registered keys in sorted order.
func (r *NativeRegistry) Keys() []string {
	r.mu.RLock()
	keys := maps.Keys(r.fns)
	r.mu.RUnlock()
	slices.Sort(keys)
	return keys
}

// VM returns the machine t belongs to.
func (t *Thread) VM() *VM {
	return t.vm
}

// ---------------------------------------------------------------------------
// Built-in natives
// ---------------------------------------------------------------------------

func (vm *VM) registerBuiltins() {
	r := vm.Natives

	// java.lang.Object
	r.Register("Ljava/lang/Object;.<init>()V", func(*Thread, []Value) (Value, error) {
		return Value{}, nil
	})
	r.Register("Ljava/lang/Object;.hashCode()I", func(_ *Thread, args []Value) (Value, error) {
		return IntValue(args[0].Ref.IdentityHash()), nil
	})
	r.Register("Ljava/lang/Object;.equals(Ljava/lang/Object;)Z", func(_ *Thread, args []Value) (Value, error) {
		return BoolValue(args[0].Ref == args[1].Ref), nil
	})
	r.Register("Ljava/lang/Object;.getClass()Ljava/lang/Class;", func(t *Thread, args []Value) (Value, error) {
		m, err := vm.ClassObject(t, args[0].Ref.Class)
		return RefValue(m), err
	})
	r.Register("Ljava/lang/Object;.toString()Ljava/lang/String;", func(t *Thread, args []Value) (Value, error) {
		o := args[0].Ref
		return vm.stringResult(t, fmt.Sprintf("%s@%x", o.Class.Name(), uint32(o.IdentityHash())))
	})

	// java.lang.String
	r.Register("Ljava/lang/String;.length()I", func(_ *Thread, args []Value) (Value, error) {
		return IntValue(int32(len(utf16Of(args[0].Ref.Str)))), nil
	})
	r.Register("Ljava/lang/String;.concat(Ljava/lang/String;)Ljava/lang/String;", func(t *Thread, args []Value) (Value, error) {
		other := args[1].Ref
		if other == nil {
			return Value{}, vm.newThrow(t, "Ljava/lang/NullPointerException;", "concat with null")
		}
		return vm.stringResult(t, args[0].Ref.Str+other.Str)
	})
	r.Register("Ljava/lang/String;.equals(Ljava/lang/Object;)Z", func(_ *Thread, args []Value) (Value, error) {
		a, b := args[0].Ref, args[1].Ref
		return BoolValue(b != nil && b.Class == a.Class && a.Str == b.Str), nil
	})
	r.Register("Ljava/lang/String;.hashCode()I", func(_ *Thread, args []Value) (Value, error) {
		var h int32
		for _, u := range utf16Of(args[0].Ref.Str) {
			h = 31*h + int32(u)
		}
		return IntValue(h), nil
	})
	r.Register("Ljava/lang/String;.toString()Ljava/lang/String;", func(_ *Thread, args []Value) (Value, error) {
		return args[0], nil
	})
	r.Register("Ljava/lang/String;.valueOf(I)Ljava/lang/String;", func(t *Thread, args []Value) (Value, error) {
		return vm.stringResult(t, strconv.Itoa(int(args[0].Int())))
	})

	// java.lang.System
	r.Register("Ljava/lang/System;.identityHashCode(Ljava/lang/Object;)I", func(_ *Thread, args []Value) (Value, error) {
		if args[0].Ref == nil {
			return IntValue(0), nil
		}
		return IntValue(args[0].Ref.IdentityHash()), nil
	})
	r.Register("Ljava/lang/System;.gc()V", func(t *Thread, _ []Value) (Value, error) {
		vm.Heap.Collect(t, "explicit")
		return Value{}, nil
	})

	// java.lang.Thread
	r.Register("Ljava/lang/Thread;.currentThread()Ljava/lang/Thread;", func(t *Thread, _ []Value) (Value, error) {
		return RefValue(t.Peer), nil
	})
	r.Register("Ljava/lang/Thread;.getName()Ljava/lang/String;", func(t *Thread, args []Value) (Value, error) {
		name := ""
		if p := args[0].Ref.Peer; p != nil {
			name = p.Name
		}
		return vm.stringResult(t, name)
	})

	// java.lang.Throwable
	r.Register("Ljava/lang/Throwable;.<init>()V", func(*Thread, []Value) (Value, error) {
		return Value{}, nil
	})
	r.Register("Ljava/lang/Throwable;.<init>(Ljava/lang/String;)V", func(_ *Thread, args []Value) (Value, error) {
		exc := args[0].Ref
		if f := exc.Class.FindField("detailMessage", "Ljava/lang/String;", false); f != nil {
			exc.SetField(f, args[1])
		}
		return Value{}, nil
	})
	r.Register("Ljava/lang/Throwable;.getMessage()Ljava/lang/String;", func(_ *Thread, args []Value) (Value, error) {
		exc := args[0].Ref
		if f := exc.Class.FindField("detailMessage", "Ljava/lang/String;", false); f != nil {
			return exc.GetField(f), nil
		}
		return Value{}, nil
	})

	// java.lang.Class
	r.Register("Ljava/lang/Class;.getName()Ljava/lang/String;", func(t *Thread, args []Value) (Value, error) {
		return vm.stringResult(t, args[0].Ref.Mirror.Name())
	})

	// Console output for test programs.
	r.Register("LPrint;.println(Ljava/lang/String;)V", func(_ *Thread, args []Value) (Value, error) {
		s := "null"
		if o := args[0].Ref; o != nil {
			s = o.Str
		}
		_, err := fmt.Fprintln(vm.Config.Stdout, s)
		return Value{}, err
	})
	r.Register("LPrint;.println(I)V", func(_ *Thread, args []Value) (Value, error) {
		_, err := fmt.Fprintln(vm.Config.Stdout, args[0].Int())
		return Value{}, err
	})
}

func (vm *VM) stringResult(t *Thread, s string) (Value, error) {
	o, err := vm.NewString(t, s)
	if err != nil {
		return Value{}, err
	}
	return RefValue(o), nil
}

func utf16Of(s string) []uint16 {
	return utf16.Encode([]rune(s))
}
