package vm

import (
	"errors"
)

// ---------------------------------------------------------------------------
// Exceptions
// ---------------------------------------------------------------------------

// throwable creates an exception instance of class desc with an optional
// detail message. Allocation failure yields the preallocated
// OutOfMemoryError.
func (vm *VM) throwable(t *Thread, desc, msg string) *Object {
	c, err := vm.Classes.FindClass(desc)
	if err != nil {
		log.Errorf("exception class %s: %s", desc, err)
		return vm.oom
	}
	exc, err := vm.Heap.Alloc(t, c)
	if err != nil {
		return vm.oom
	}
	if msg != "" {
		if s, err := vm.Heap.AllocString(t, msg); err == nil {
			if f := c.FindField("detailMessage", "Ljava/lang/String;", false); f != nil {
				exc.SetField(f, RefValue(s))
			}
		}
	}
	return exc
}

// newThrow returns a *ThrowError carrying a new exception.
func (vm *VM) newThrow(t *Thread, desc, msg string) error {
	return &ThrowError{Exception: vm.throwable(t, desc, msg)}
}

// errorThrowable converts a Go error into an exception object.
func (vm *VM) errorThrowable(t *Thread, err error) *Object {
	if exc, ok := AsThrow(err); ok {
		return exc
	}
	switch {
	case errors.Is(err, ErrOutOfMemory):
		return vm.oom
	case errors.Is(err, ErrClassNotFound), errors.Is(err, ErrClassCircular):
		return vm.throwable(t, "Ljava/lang/NoClassDefFoundError;", err.Error())
	case errors.Is(err, ErrNoSuchMethod):
		return vm.throwable(t, "Ljava/lang/NoSuchMethodError;", err.Error())
	case errors.Is(err, ErrNoSuchField):
		return vm.throwable(t, "Ljava/lang/NoSuchFieldError;", err.Error())
	case errors.Is(err, ErrUnsatisfiedLink):
		return vm.throwable(t, "Ljava/lang/UnsatisfiedLinkError;", err.Error())
	}
	return vm.throwable(t, "Ljava/lang/RuntimeException;", err.Error())
}

// findCatch looks for the handler of exc at pc in m. Try entries are
// scanned in file order; the first range containing pc decides.
func (vm *VM) findCatch(t *Thread, m *Method, pc int, exc *Object) (uint32, bool) {
	code := m.Code
	for _, try := range code.Tries {
		if !try.Contains(uint32(pc)) {
			continue
		}
		h := code.HandlerAt(try.HandlerOff)
		if h == nil {
			return 0, false
		}
		for _, e := range h.Entries {
			c, err := vm.Classes.FindClass(m.Class.File.TypeDescriptor(e.TypeIdx))
			if err != nil {
				log.Warningf("%s: catch type: %s", m.Key(), err)
				continue
			}
			if exc.Class.IsAssignableTo(c) {
				return e.Addr, true
			}
		}
		if h.CatchAll {
			return h.CatchAllPC, true
		}
		return 0, false
	}
	return 0, false
}
