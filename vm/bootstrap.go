package vm

import (
	"fmt"
	"strings"

	"github.com/chazu/dexvm/dex"
)

// ---------------------------------------------------------------------------
// Bootstrap: intrinsic classes
// ---------------------------------------------------------------------------

// bootClass describes a class the runtime defines itself. Methods are
// written "name(desc)ret", with a "static " prefix for static methods;
// all of them are native.
type bootClass struct {
	desc    string
	super   string
	flags   uint32
	fields  []string
	methods []string
}

const (
	descObject    = "Ljava/lang/Object;"
	descString    = "Ljava/lang/String;"
	descThread    = "Ljava/lang/Thread;"
	descThrowable = "Ljava/lang/Throwable;"

	descThreadGroup = "Ljava/lang/ThreadGroup;"
)

// bootClasses lists intrinsic classes with each superclass ahead of its
// subclasses.
var bootClasses = []bootClass{
	{desc: descObject, methods: []string{
		"<init>()V",
		"hashCode()I",
		"equals(Ljava/lang/Object;)Z",
		"getClass()Ljava/lang/Class;",
		"toString()Ljava/lang/String;",
	}},
	{desc: "Ljava/lang/Class;", super: descObject, flags: dex.AccFinal, methods: []string{
		"getName()Ljava/lang/String;",
	}},
	{desc: descString, super: descObject, flags: dex.AccFinal, methods: []string{
		"length()I",
		"concat(Ljava/lang/String;)Ljava/lang/String;",
		"equals(Ljava/lang/Object;)Z",
		"hashCode()I",
		"toString()Ljava/lang/String;",
		"static valueOf(I)Ljava/lang/String;",
	}},
	{desc: "Ljava/lang/System;", super: descObject, flags: dex.AccFinal, methods: []string{
		"static identityHashCode(Ljava/lang/Object;)I",
		"static gc()V",
	}},
	{desc: descThread, super: descObject, methods: []string{
		"static currentThread()Ljava/lang/Thread;",
		"getName()Ljava/lang/String;",
	}},
	{desc: descThreadGroup, super: descObject, fields: []string{
		"name:Ljava/lang/String;",
		"parent:Ljava/lang/ThreadGroup;",
	}},
	{desc: descThrowable, super: descObject, fields: []string{"detailMessage:Ljava/lang/String;"}, methods: []string{
		"<init>()V",
		"<init>(Ljava/lang/String;)V",
		"getMessage()Ljava/lang/String;",
	}},
	{desc: "Ljava/lang/Exception;", super: descThrowable},
	{desc: "Ljava/lang/RuntimeException;", super: "Ljava/lang/Exception;"},
	{desc: "Ljava/lang/NullPointerException;", super: "Ljava/lang/RuntimeException;"},
	{desc: "Ljava/lang/ArithmeticException;", super: "Ljava/lang/RuntimeException;"},
	{desc: "Ljava/lang/ClassCastException;", super: "Ljava/lang/RuntimeException;"},
	{desc: "Ljava/lang/NegativeArraySizeException;", super: "Ljava/lang/RuntimeException;"},
	{desc: "Ljava/lang/ArrayStoreException;", super: "Ljava/lang/RuntimeException;"},
	{desc: "Ljava/lang/IndexOutOfBoundsException;", super: "Ljava/lang/RuntimeException;"},
	{desc: "Ljava/lang/ArrayIndexOutOfBoundsException;", super: "Ljava/lang/IndexOutOfBoundsException;"},
	{desc: "Ljava/lang/Error;", super: descThrowable},
	{desc: "Ljava/lang/VirtualMachineError;", super: "Ljava/lang/Error;"},
	{desc: "Ljava/lang/OutOfMemoryError;", super: "Ljava/lang/VirtualMachineError;"},
	{desc: "Ljava/lang/StackOverflowError;", super: "Ljava/lang/VirtualMachineError;"},
	{desc: "Ljava/lang/LinkageError;", super: "Ljava/lang/Error;"},
	{desc: "Ljava/lang/NoClassDefFoundError;", super: "Ljava/lang/LinkageError;"},
	{desc: "Ljava/lang/NoSuchFieldError;", super: "Ljava/lang/LinkageError;"},
	{desc: "Ljava/lang/NoSuchMethodError;", super: "Ljava/lang/LinkageError;"},
	{desc: "Ljava/lang/AbstractMethodError;", super: "Ljava/lang/LinkageError;"},
	{desc: "Ljava/lang/InstantiationError;", super: "Ljava/lang/LinkageError;"},
	{desc: "Ljava/lang/UnsatisfiedLinkError;", super: "Ljava/lang/LinkageError;"},
	{desc: "Ljava/lang/ExceptionInInitializerError;", super: "Ljava/lang/LinkageError;"},
	{desc: "LPrint;", super: descObject, flags: dex.AccFinal, methods: []string{
		"static println(Ljava/lang/String;)V",
		"static println(I)V",
	}},
}

// bootstrap defines the intrinsic classes and preallocates the
// OutOfMemoryError thrown when the heap cannot satisfy a request.
func (vm *VM) bootstrap() error {
	for _, bc := range bootClasses {
		c, err := vm.bootClass(bc)
		if err != nil {
			return err
		}
		if err := vm.Classes.DefineBootstrap(c); err != nil {
			return err
		}
	}

	c, err := vm.Classes.FindClass("Ljava/lang/OutOfMemoryError;")
	if err != nil {
		return err
	}
	if vm.oom, err = vm.Heap.Alloc(nil, c); err != nil {
		return fmt.Errorf("preallocating OutOfMemoryError: %w", err)
	}
	if err := vm.createThreadGroups(); err != nil {
		return err
	}
	log.Debugf("bootstrapped %d classes", len(bootClasses))
	return nil
}

func (vm *VM) bootClass(bc bootClass) (*Class, error) {
	c := &Class{
		Descriptor:  bc.desc,
		AccessFlags: dex.AccPublic | bc.flags,
		SourceFile:  "<runtime>",
	}
	if bc.super != "" {
		if c.Super = vm.Classes.Lookup(bc.super); c.Super == nil {
			return nil, fmt.Errorf("bootstrap class %s: superclass %s: %w", bc.desc, bc.super, ErrClassNotFound)
		}
	}
	for i, spec := range bc.fields {
		name, typ, _ := strings.Cut(spec, ":")
		c.InstanceFields = append(c.InstanceFields, &Field{
			Class:       c,
			Name:        name,
			Type:        typ,
			AccessFlags: dex.AccPrivate,
			Index:       uint32(i),
		})
	}
	for _, spec := range bc.methods {
		flags := dex.AccPublic | dex.AccNative
		if rest, ok := strings.CutPrefix(spec, "static "); ok {
			spec = rest
			flags |= dex.AccStatic
		}
		i := strings.IndexByte(spec, '(')
		if i < 0 {
			return nil, fmt.Errorf("bootstrap class %s: malformed method %q", bc.desc, spec)
		}
		name, desc := spec[:i], spec[i:]
		if name == "<init>" {
			flags |= dex.AccConstructor
		}
		m := newMethod(c, name, desc, flags)
		m.Native = vm.Natives.Lookup(m.Key())
		if m.IsDirect() {
			m.Index = uint32(len(c.DirectMethods))
			c.DirectMethods = append(c.DirectMethods, m)
		} else {
			m.Index = uint32(len(c.VirtualMethods))
			c.VirtualMethods = append(c.VirtualMethods, m)
		}
	}
	return c, nil
}
