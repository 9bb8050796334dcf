package vm

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/chazu/dexvm/dex"
)

// ---------------------------------------------------------------------------
// Class status
// ---------------------------------------------------------------------------

// ClassStatus tracks a class through loading and initialization.
type ClassStatus int32

const (
	ClassNotReady ClassStatus = iota
	ClassVerified
	ClassInitializing
	ClassInitialized
	ClassError
)

func (s ClassStatus) String() string {
	switch s {
	case ClassNotReady:
		return "not-ready"
	case ClassVerified:
		return "verified"
	case ClassInitializing:
		return "initializing"
	case ClassInitialized:
		return "initialized"
	case ClassError:
		return "error"
	}
	return "unknown"
}

// ---------------------------------------------------------------------------
// Class
// ---------------------------------------------------------------------------

// Class is a loaded class, array class or primitive type.
type Class struct {
	Descriptor  string
	AccessFlags uint32
	Super       *Class
	Interfaces  []*Class
	SourceFile  string

	// File and Def are set for classes loaded from a container.
	File *dex.File
	Def  *dex.ClassDef

	// Component is the element class of an array class.
	Component *Class
	Primitive bool

	StaticFields   []*Field
	InstanceFields []*Field
	DirectMethods  []*Method
	VirtualMethods []*Method
	VTable         []*Method

	// PrimSize and RefCount size instance storage, superclasses included.
	PrimSize int
	RefCount int

	StaticPrims []byte
	StaticRefs  []*Object

	status     atomic.Int32
	initThread *Thread
	linkErr    error
	mirror     atomic.Pointer[Object]
}

// Status returns the class's current status.
func (c *Class) Status() ClassStatus {
	return ClassStatus(c.status.Load())
}

// Name returns the class name in source form, e.g. "java.lang.String".
func (c *Class) Name() string {
	d := c.Descriptor
	if strings.HasPrefix(d, "L") && strings.HasSuffix(d, ";") {
		d = d[1 : len(d)-1]
	}
	return strings.ReplaceAll(d, "/", ".")
}

func (c *Class) String() string {
	return c.Descriptor
}

// IsArray reports whether c is an array class.
func (c *Class) IsArray() bool {
	return c.Component != nil
}

// IsInterface reports whether c is an interface.
func (c *Class) IsInterface() bool {
	return c.AccessFlags&dex.AccInterface != 0
}

// IsAbstract reports whether c cannot be instantiated.
func (c *Class) IsAbstract() bool {
	return c.AccessFlags&(dex.AccAbstract|dex.AccInterface) != 0
}

// Implements reports whether c or a superclass implements iface.
func (c *Class) Implements(iface *Class) bool {
	for k := c; k != nil; k = k.Super {
		for _, i := range k.Interfaces {
			if i == iface || i.Implements(iface) {
				return true
			}
		}
	}
	return false
}

// IsSubclassOf reports whether c is target or extends it.
func (c *Class) IsSubclassOf(target *Class) bool {
	for k := c; k != nil; k = k.Super {
		if k == target {
			return true
		}
	}
	return false
}

// IsAssignableTo reports whether a reference of class c may be stored in a
// variable of class target.
func (c *Class) IsAssignableTo(target *Class) bool {
	if c == target {
		return true
	}
	if c.Primitive || target.Primitive {
		return false
	}
	if target.Descriptor == "Ljava/lang/Object;" {
		return true
	}
	if c.IsArray() {
		if !target.IsArray() {
			return false
		}
		if c.Component.Primitive || target.Component.Primitive {
			return c.Component == target.Component
		}
		return c.Component.IsAssignableTo(target.Component)
	}
	if target.IsInterface() {
		return c.Implements(target)
	}
	return c.IsSubclassOf(target)
}

// FindField looks up a field by name and type in c, its superclasses and,
// for static fields, its interfaces.
func (c *Class) FindField(name, typ string, static bool) *Field {
	for k := c; k != nil; k = k.Super {
		fields := k.InstanceFields
		if static {
			fields = k.StaticFields
		}
		for _, f := range fields {
			if f.Name == name && f.Type == typ {
				return f
			}
		}
		if static {
			for _, i := range k.Interfaces {
				if f := i.FindField(name, typ, true); f != nil {
					return f
				}
			}
		}
	}
	return nil
}

// FindDirect returns a direct method declared by c itself.
func (c *Class) FindDirect(name, desc string) *Method {
	for _, m := range c.DirectMethods {
		if m.Name == name && m.Descriptor == desc {
			return m
		}
	}
	return nil
}

// FindDeclared returns a direct or virtual method declared by c itself.
func (c *Class) FindDeclared(name, desc string) *Method {
	if m := c.FindDirect(name, desc); m != nil {
		return m
	}
	for _, m := range c.VirtualMethods {
		if m.Name == name && m.Descriptor == desc {
			return m
		}
	}
	return nil
}

// FindMethod resolves a method reference against c: declared methods
// first, then superclasses, then superinterfaces.
func (c *Class) FindMethod(name, desc string) *Method {
	for k := c; k != nil; k = k.Super {
		if m := k.FindDeclared(name, desc); m != nil {
			return m
		}
	}
	for k := c; k != nil; k = k.Super {
		for _, i := range k.Interfaces {
			if m := i.FindMethod(name, desc); m != nil {
				return m
			}
		}
	}
	return nil
}

// FindVirtual returns the implementation c uses for a virtual method.
func (c *Class) FindVirtual(name, desc string) *Method {
	for i := len(c.VTable) - 1; i >= 0; i-- {
		if m := c.VTable[i]; m.Name == name && m.Descriptor == desc {
			return m
		}
	}
	return nil
}

// GetStatic reads a static field of c.
func (c *Class) GetStatic(f *Field) Value {
	return loadField(f, f.Class.StaticPrims, f.Class.StaticRefs)
}

// SetStatic writes a static field of c.
func (c *Class) SetStatic(f *Field, v Value) {
	storeField(f, f.Class.StaticPrims, f.Class.StaticRefs, v)
}

// Mirror returns the java.lang.Class instance of c, if one was created.
func (c *Class) Mirror() *Object {
	return c.mirror.Load()
}

// ---------------------------------------------------------------------------
// Fields and methods
// ---------------------------------------------------------------------------

// Field is a resolved field. Offset indexes Prims (bytes) for primitive
// fields and Refs for reference fields.
type Field struct {
	Class       *Class
	Name        string
	Type        string
	AccessFlags uint32
	Offset      int
	Index       uint32
}

// IsStatic reports whether f is a static field.
func (f *Field) IsStatic() bool {
	return f.AccessFlags&dex.AccStatic != 0
}

// IsRef reports whether f holds a reference.
func (f *Field) IsRef() bool {
	return isRef(f.Type)
}

// Method is a resolved method.
type Method struct {
	Class       *Class
	Name        string
	Descriptor  string
	Shorty      string
	Params      []string
	Return      string
	AccessFlags uint32
	Code        *dex.Code

	// Index is the method_idx of the defining container.
	Index       uint32
	VTableIndex int
	Native      NativeFunc

	debugOnce sync.Once
	debug     *dex.DebugInfo
}

func newMethod(c *Class, name, desc string, flags uint32) *Method {
	params, ret, _ := dex.ParameterDescriptors(desc)
	shorty := []byte{dex.ShortyChar(ret)}
	for _, p := range params {
		shorty = append(shorty, dex.ShortyChar(p))
	}
	return &Method{
		Class:       c,
		Name:        name,
		Descriptor:  desc,
		Shorty:      string(shorty),
		Params:      params,
		Return:      ret,
		AccessFlags: flags,
		VTableIndex: -1,
	}
}

// Key returns the native registration key, e.g.
// "Ljava/lang/String;.length()I".
func (m *Method) Key() string {
	return m.Class.Descriptor + "." + m.Name + m.Descriptor
}

func (m *Method) String() string {
	return m.Key()
}

// IsStatic reports whether m is static.
func (m *Method) IsStatic() bool { return m.AccessFlags&dex.AccStatic != 0 }

// IsNative reports whether m is implemented by a NativeFunc.
func (m *Method) IsNative() bool { return m.AccessFlags&dex.AccNative != 0 }

// IsAbstract reports whether m has no implementation.
func (m *Method) IsAbstract() bool { return m.AccessFlags&dex.AccAbstract != 0 }

// IsDirect reports whether m is dispatched without the vtable.
func (m *Method) IsDirect() bool {
	return m.AccessFlags&(dex.AccStatic|dex.AccPrivate|dex.AccConstructor) != 0
}

// ArgWords returns the number of registers m's arguments occupy,
// including this.
func (m *Method) ArgWords() int {
	n := 0
	if !m.IsStatic() {
		n++
	}
	for _, p := range m.Params {
		n++
		if isWide(p) {
			n++
		}
	}
	return n
}

// DebugInfo returns the decoded line and local tables of m.
func (m *Method) DebugInfo() *dex.DebugInfo {
	m.debugOnce.Do(func() {
		if m.Class.File == nil || m.Code == nil {
			m.debug = &dex.DebugInfo{}
			return
		}
		m.debug = m.Class.File.DebugInfo(m.Code, m.Index, m.IsStatic())
	})
	return m.debug
}

// LineAt returns the source line of pc, or -1 when unknown.
func (m *Method) LineAt(pc uint32) int {
	if m.IsNative() {
		return -2
	}
	if line := m.DebugInfo().LineForAddress(pc); line != 0 {
		return int(line)
	}
	return -1
}
