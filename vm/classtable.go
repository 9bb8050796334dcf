package vm

import (
	"fmt"
	"sync"

	"github.com/sasha-s/go-deadlock"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/chazu/dexvm/dex"
)

// ---------------------------------------------------------------------------
// ClassTable
// ---------------------------------------------------------------------------

// ClassTable owns every loaded class. Loading is on demand and idempotent:
// a thread that finds a class being loaded by another thread waits for
// the outcome instead of loading it again.
type ClassTable struct {
	vm *VM

	mu      deadlock.Mutex
	cond    *sync.Cond
	classes map[string]*Class
	files   []*dex.File
	caches  map[*dex.File]*resolveCache
}

// resolveCache memoizes index resolution per container.
type resolveCache struct {
	mu      deadlock.Mutex
	classes []*Class
	fields  []*Field
	methods []*Method
	strings []*Object
}

func newClassTable(vm *VM) *ClassTable {
	ct := &ClassTable{
		vm:      vm,
		classes: make(map[string]*Class),
		caches:  make(map[*dex.File]*resolveCache),
	}
	ct.cond = sync.NewCond(&ct.mu)
	return ct
}

// AddDexFile makes the classes of f available for loading. Containers
// added earlier take precedence for duplicate descriptors.
func (ct *ClassTable) AddDexFile(f *dex.File) {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	ct.files = append(ct.files, f)
	ct.caches[f] = &resolveCache{
		classes: make([]*Class, len(f.TypeIDs)),
		fields:  make([]*Field, len(f.FieldIDs)),
		methods: make([]*Method, len(f.MethodIDs)),
		strings: make([]*Object, len(f.StringIDs)),
	}
	log.Infof("added container with %d classes", len(f.ClassDefs))
}

// Files returns the containers added so far.
func (ct *ClassTable) Files() []*dex.File {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	return slices.Clone(ct.files)
}

func (ct *ClassTable) cache(f *dex.File) *resolveCache {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	return ct.caches[f]
}

// DefineBootstrap installs a class built by the runtime itself. The class
// is linked and marked initialized.
func (ct *ClassTable) DefineBootstrap(c *Class) error {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	if _, ok := ct.classes[c.Descriptor]; ok {
		return fmt.Errorf("bootstrap class %s already defined", c.Descriptor)
	}
	ct.link(c)
	c.status.Store(int32(ClassInitialized))
	ct.classes[c.Descriptor] = c
	return nil
}

// Lookup returns a class that is already loaded, without loading it.
func (ct *ClassTable) Lookup(desc string) *Class {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	c := ct.classes[desc]
	if c == nil {
		return nil
	}
	if s := c.Status(); s == ClassNotReady || s == ClassError {
		return nil
	}
	return c
}

// Classes returns every successfully loaded class ordered by descriptor.
func (ct *ClassTable) Classes() []*Class {
	ct.mu.Lock()
	keys := maps.Keys(ct.classes)
	slices.Sort(keys)
	out := make([]*Class, 0, len(keys))
	for _, k := range keys {
		c := ct.classes[k]
		if s := c.Status(); s != ClassNotReady && s != ClassError {
			out = append(out, c)
		}
	}
	ct.mu.Unlock()
	return out
}

// FindClass returns the class named by desc, loading and linking it on
// first use. A failed load leaves the class in the error state and every
// later request fails the same way.
func (ct *ClassTable) FindClass(desc string) (*Class, error) {
	return ct.find(desc, nil)
}

func (ct *ClassTable) find(desc string, chain []string) (*Class, error) {
	if desc == "" {
		return nil, fmt.Errorf("empty descriptor: %w", ErrClassNotFound)
	}
	if slices.Contains(chain, desc) {
		return nil, fmt.Errorf("%s: %w", desc, ErrClassCircular)
	}

	ct.mu.Lock()
	for {
		c, ok := ct.classes[desc]
		if !ok {
			break
		}
		switch c.Status() {
		case ClassNotReady:
			ct.cond.Wait()
			continue
		case ClassError:
			err := c.linkErr
			ct.mu.Unlock()
			return nil, err
		}
		ct.mu.Unlock()
		return c, nil
	}

	var (
		file *dex.File
		def  *dex.ClassDef
	)
	if desc[0] == 'L' {
		for _, f := range ct.files {
			if d, ok := f.FindClassDef(desc); ok {
				file, def = f, d
				break
			}
		}
		if def == nil {
			ct.mu.Unlock()
			return nil, fmt.Errorf("%s: %w", desc, ErrClassNotFound)
		}
	} else if !dex.IsValidTypeDescriptor(desc) || desc == "V" {
		ct.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", desc, ErrClassNotFound)
	}

	// Publish a placeholder so concurrent lookups wait for this load.
	c := &Class{Descriptor: desc}
	ct.classes[desc] = c
	ct.mu.Unlock()

	chain = append(chain, desc)
	var err error
	switch {
	case desc[0] == '[':
		err = ct.loadArray(c, chain)
	case def != nil:
		err = ct.loadFromDex(c, file, def, chain)
	default:
		c.Primitive = true
		c.AccessFlags = dex.AccPublic | dex.AccFinal | dex.AccAbstract
	}

	ct.mu.Lock()
	if err != nil {
		c.linkErr = err
		c.status.Store(int32(ClassError))
		log.Warningf("loading %s failed: %s", desc, err)
	} else {
		ct.link(c)
		c.status.Store(int32(ClassVerified))
		log.Debugf("loaded %s", desc)
	}
	ct.cond.Broadcast()
	ct.mu.Unlock()

	if err != nil {
		return nil, err
	}
	ct.vm.hooks().PostClassPrepare(nil, c)
	return c, nil
}

func (ct *ClassTable) loadArray(c *Class, chain []string) error {
	comp, err := ct.find(c.Descriptor[1:], chain)
	if err != nil {
		return err
	}
	obj, err := ct.find("Ljava/lang/Object;", chain)
	if err != nil {
		return err
	}
	c.Component = comp
	c.Super = obj
	c.AccessFlags = dex.AccPublic | dex.AccFinal | dex.AccAbstract
	return nil
}

func (ct *ClassTable) loadFromDex(c *Class, f *dex.File, def *dex.ClassDef, chain []string) error {
	c.File = f
	c.Def = def
	c.AccessFlags = def.AccessFlags
	c.SourceFile = f.SourceFile(def)

	if sup := f.Superclass(def); sup != "" {
		s, err := ct.find(sup, chain)
		if err != nil {
			return fmt.Errorf("%s: superclass: %w", c.Descriptor, err)
		}
		if s.IsInterface() || s.AccessFlags&dex.AccFinal != 0 {
			return fmt.Errorf("%s: cannot extend %s: %w", c.Descriptor, sup, ErrClassNotFound)
		}
		c.Super = s
	} else if c.Descriptor != "Ljava/lang/Object;" {
		return fmt.Errorf("%s: missing superclass: %w", c.Descriptor, ErrClassNotFound)
	}

	for _, name := range f.Interfaces(def) {
		i, err := ct.find(name, chain)
		if err != nil {
			return fmt.Errorf("%s: interface: %w", c.Descriptor, err)
		}
		if !i.IsInterface() {
			return fmt.Errorf("%s: %s is not an interface: %w", c.Descriptor, name, ErrClassNotFound)
		}
		c.Interfaces = append(c.Interfaces, i)
	}

	cd, err := f.ClassData(def)
	if err != nil {
		return fmt.Errorf("%s: %w", c.Descriptor, err)
	}
	if cd == nil {
		return nil
	}
	for _, ef := range cd.StaticFields {
		c.StaticFields = append(c.StaticFields, newDexField(c, f, ef))
	}
	for _, ef := range cd.InstanceFields {
		c.InstanceFields = append(c.InstanceFields, newDexField(c, f, ef))
	}
	for _, em := range cd.DirectMethods {
		m, err := ct.newDexMethod(c, f, em)
		if err != nil {
			return err
		}
		c.DirectMethods = append(c.DirectMethods, m)
	}
	for _, em := range cd.VirtualMethods {
		m, err := ct.newDexMethod(c, f, em)
		if err != nil {
			return err
		}
		c.VirtualMethods = append(c.VirtualMethods, m)
	}
	return nil
}

func newDexField(c *Class, f *dex.File, ef dex.EncodedField) *Field {
	_, name, typ := f.FieldRef(ef.FieldIdx)
	return &Field{Class: c, Name: name, Type: typ, AccessFlags: ef.AccessFlags, Index: ef.FieldIdx}
}

func (ct *ClassTable) newDexMethod(c *Class, f *dex.File, em dex.EncodedMethod) (*Method, error) {
	_, name, desc := f.MethodRef(em.MethodIdx)
	m := newMethod(c, name, desc, em.AccessFlags)
	m.Index = em.MethodIdx
	code, err := f.Code(em.CodeOff)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", m.Key(), err)
	}
	m.Code = code
	if m.IsNative() {
		m.Native = ct.vm.Natives.Lookup(m.Key())
	}
	return m, nil
}

// ---------------------------------------------------------------------------
// Linking
// ---------------------------------------------------------------------------

// link computes storage layout and the vtable. The superclass is linked.
func (ct *ClassTable) link(c *Class) {
	if c.Super != nil {
		c.PrimSize = c.Super.PrimSize
		c.RefCount = c.Super.RefCount
	}
	c.PrimSize, c.RefCount = layout(c.InstanceFields, c.PrimSize, c.RefCount)
	prims, refs := layout(c.StaticFields, 0, 0)
	c.StaticPrims = make([]byte, prims)
	c.StaticRefs = make([]*Object, refs)

	if c.Super != nil {
		c.VTable = slices.Clone(c.Super.VTable)
	}
	if c.IsInterface() {
		return
	}
	for _, m := range c.VirtualMethods {
		idx := slices.IndexFunc(c.VTable, func(v *Method) bool {
			return v.Name == m.Name && v.Descriptor == m.Descriptor
		})
		if idx >= 0 {
			c.VTable[idx] = m
		} else {
			idx = len(c.VTable)
			c.VTable = append(c.VTable, m)
		}
		m.VTableIndex = idx
	}
}

// layout assigns offsets: references first, then primitives from widest
// to narrowest at natural alignment.
func layout(fields []*Field, prims, refs int) (int, int) {
	for _, f := range fields {
		if f.IsRef() {
			f.Offset = refs
			refs++
		}
	}
	for _, w := range []int{8, 4, 2, 1} {
		for _, f := range fields {
			if f.IsRef() || primWidth(f.Type) != w {
				continue
			}
			prims = (prims + w - 1) &^ (w - 1)
			f.Offset = prims
			prims += w
		}
	}
	return prims, refs
}

// ---------------------------------------------------------------------------
// Initialization
// ---------------------------------------------------------------------------

// InitializeClass runs the static initialization of c on t: superclass
// first, then static values from the container, then <clinit>. A thread
// that re-enters initialization of a class it is initializing returns at
// once; other threads wait for the initializer to finish.
func (vm *VM) InitializeClass(t *Thread, c *Class) error {
	ct := vm.Classes
	ct.mu.Lock()
	for {
		switch c.Status() {
		case ClassInitialized:
			ct.mu.Unlock()
			return nil
		case ClassError:
			ct.mu.Unlock()
			return vm.newThrow(t, "Ljava/lang/NoClassDefFoundError;", c.Name())
		case ClassInitializing:
			if c.initThread == t {
				ct.mu.Unlock()
				return nil
			}
			ct.mu.Unlock()
			old := t.SetStatus(ThreadVMWait)
			ct.mu.Lock()
			for c.Status() == ClassInitializing {
				ct.cond.Wait()
			}
			ct.mu.Unlock()
			t.SetStatus(old)
			ct.mu.Lock()
			continue
		}
		break
	}
	c.status.Store(int32(ClassInitializing))
	c.initThread = t
	ct.mu.Unlock()

	err := vm.runInitializer(t, c)

	ct.mu.Lock()
	if err != nil {
		c.status.Store(int32(ClassError))
		c.linkErr = fmt.Errorf("%s: initialization failed: %w", c.Descriptor, err)
	} else {
		c.status.Store(int32(ClassInitialized))
	}
	c.initThread = nil
	ct.cond.Broadcast()
	ct.mu.Unlock()
	return err
}

func (vm *VM) runInitializer(t *Thread, c *Class) error {
	if c.Super != nil && !c.IsInterface() {
		if err := vm.InitializeClass(t, c.Super); err != nil {
			return err
		}
	}
	if c.File != nil {
		values := c.File.StaticValues(c.Def)
		for i, ev := range values {
			if i >= len(c.StaticFields) {
				break
			}
			v, err := vm.staticValue(t, c.File, ev)
			if err != nil {
				return err
			}
			c.SetStatic(c.StaticFields[i], v)
		}
	}
	if m := c.FindDirect("<clinit>", "()V"); m != nil {
		log.Debugf("running %s", m.Key())
		if _, exc := vm.invokeMethod(t, m, nil); exc != nil {
			return &ThrowError{Exception: exc}
		}
	}
	return nil
}

func (vm *VM) staticValue(t *Thread, f *dex.File, ev dex.EncodedValue) (Value, error) {
	switch ev.Type {
	case dex.ValueString:
		s, err := vm.Intern(t, f.String(uint32(ev.Bits)))
		return RefValue(s), err
	case dex.ValueType:
		c, err := vm.Classes.FindClass(f.TypeDescriptor(uint32(ev.Bits)))
		if err != nil {
			return Value{}, err
		}
		m, err := vm.ClassObject(t, c)
		return RefValue(m), err
	case dex.ValueNull:
		return Value{}, nil
	}
	return Value{Bits: ev.Bits}, nil
}

// ---------------------------------------------------------------------------
// Index resolution
// ---------------------------------------------------------------------------

// resolveClass resolves a type index of f, throwing NoClassDefFoundError
// on failure.
func (vm *VM) resolveClass(t *Thread, f *dex.File, idx uint32) (*Class, *Object) {
	rc := vm.Classes.cache(f)
	rc.mu.Lock()
	c := rc.classes[idx]
	rc.mu.Unlock()
	if c != nil {
		return c, nil
	}
	desc := f.TypeDescriptor(idx)
	c, err := vm.Classes.FindClass(desc)
	if err != nil {
		log.Debugf("resolving %s: %s", desc, err)
		return nil, vm.throwable(t, "Ljava/lang/NoClassDefFoundError;", desc)
	}
	rc.mu.Lock()
	rc.classes[idx] = c
	rc.mu.Unlock()
	return c, nil
}

func (vm *VM) resolveField(t *Thread, f *dex.File, idx uint32, static bool) (*Field, *Object) {
	rc := vm.Classes.cache(f)
	rc.mu.Lock()
	fld := rc.fields[idx]
	rc.mu.Unlock()
	if fld != nil {
		return fld, nil
	}
	class, name, typ := f.FieldRef(idx)
	c, exc := vm.resolveClass(t, f, uint32(f.FieldIDs[idx].ClassIdx))
	if exc != nil {
		return nil, exc
	}
	if fld = c.FindField(name, typ, static); fld == nil {
		return nil, vm.throwable(t, "Ljava/lang/NoSuchFieldError;", class+"."+name+":"+typ)
	}
	rc.mu.Lock()
	rc.fields[idx] = fld
	rc.mu.Unlock()
	return fld, nil
}

func (vm *VM) resolveMethod(t *Thread, f *dex.File, idx uint32) (*Method, *Object) {
	rc := vm.Classes.cache(f)
	rc.mu.Lock()
	m := rc.methods[idx]
	rc.mu.Unlock()
	if m != nil {
		return m, nil
	}
	class, name, desc := f.MethodRef(idx)
	c, exc := vm.resolveClass(t, f, uint32(f.MethodIDs[idx].ClassIdx))
	if exc != nil {
		return nil, exc
	}
	if m = c.FindMethod(name, desc); m == nil {
		return nil, vm.throwable(t, "Ljava/lang/NoSuchMethodError;", class+"."+name+desc)
	}
	rc.mu.Lock()
	rc.methods[idx] = m
	rc.mu.Unlock()
	return m, nil
}

func (vm *VM) resolveString(t *Thread, f *dex.File, idx uint32) (*Object, *Object) {
	rc := vm.Classes.cache(f)
	rc.mu.Lock()
	s := rc.strings[idx]
	rc.mu.Unlock()
	if s != nil {
		return s, nil
	}
	s, err := vm.Intern(t, f.String(idx))
	if err != nil {
		return nil, vm.errorThrowable(t, err)
	}
	rc.mu.Lock()
	rc.strings[idx] = s
	rc.mu.Unlock()
	return s, nil
}

// enumerateRoots visits static references, class mirrors and resolved
// string constants.
func (ct *ClassTable) enumerateRoots(visit func(*Object)) {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	for _, c := range ct.classes {
		for _, r := range c.StaticRefs {
			if r != nil {
				visit(r)
			}
		}
		if m := c.mirror.Load(); m != nil {
			visit(m)
		}
	}
	for _, rc := range ct.caches {
		rc.mu.Lock()
		for _, s := range rc.strings {
			if s != nil {
				visit(s)
			}
		}
		rc.mu.Unlock()
	}
}
