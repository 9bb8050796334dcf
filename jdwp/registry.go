package jdwp

import (
	"fmt"

	"github.com/sasha-s/go-deadlock"

	"github.com/chazu/dexvm/vm"
)

// ObjectID is an opaque handle for an object, class, method or field
// exposed to the debugger. The low 32 bits are a slot index plus one and
// the high 32 bits the slot's generation, so an id outlives neither its
// registration nor the session that issued it. Zero is null.
type ObjectID uint64

func makeID(index, gen uint32) ObjectID {
	return ObjectID(uint64(gen)<<32 | uint64(index+1))
}

func (id ObjectID) index() uint32 { return uint32(id) - 1 }

func (id ObjectID) generation() uint32 { return uint32(id >> 32) }

type slot struct {
	ref any
	gen uint32
}

// Registry maps ids to VM pointers. Registered objects are GC roots
// until they are released or the registry is cleared.
type Registry struct {
	mu        deadlock.Mutex
	connected bool
	slots     []slot
	free      []uint32
	index     map[any]ObjectID
}

// NewRegistry returns an empty, disconnected registry.
func NewRegistry() *Registry {
	return &Registry{index: make(map[any]ObjectID)}
}

// SetConnected enables or disables registration.
func (r *Registry) SetConnected(connected bool) {
	r.mu.Lock()
	r.connected = connected
	r.mu.Unlock()
}

func isNil(ref any) bool {
	switch v := ref.(type) {
	case nil:
		return true
	case *vm.Object:
		return v == nil
	case *vm.Class:
		return v == nil
	case *vm.Method:
		return v == nil
	case *vm.Field:
		return v == nil
	}
	return false
}

// Register returns the id of ref, creating it on first use. The same
// pointer always yields the same id. Nil maps to 0; so does any
// registration while no debugger is connected.
func (r *Registry) Register(ref any) ObjectID {
	if isNil(ref) {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.connected {
		log.Warningf("registry: ignoring registration of %T while disconnected", ref)
		return 0
	}
	if id, ok := r.index[ref]; ok {
		return id
	}
	var idx uint32
	if n := len(r.free); n > 0 {
		idx = r.free[n-1]
		r.free = r.free[:n-1]
	} else {
		idx = uint32(len(r.slots))
		r.slots = append(r.slots, slot{gen: 1})
	}
	r.slots[idx].ref = ref
	id := makeID(idx, r.slots[idx].gen)
	r.index[ref] = id
	return id
}

// Get returns the pointer behind id, nil for id 0, or ErrInvalidObject
// for an id that was never issued or has been invalidated.
func (r *Registry) Get(id ObjectID) (any, error) {
	if id == 0 {
		return nil, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := id.index()
	if int(idx) >= len(r.slots) {
		return nil, fmt.Errorf("id %#x: %w", uint64(id), ErrInvalidObject)
	}
	s := r.slots[idx]
	if s.ref == nil || s.gen != id.generation() {
		return nil, fmt.Errorf("id %#x: stale: %w", uint64(id), ErrInvalidObject)
	}
	return s.ref, nil
}

// Object resolves id to an object.
func (r *Registry) Object(id ObjectID) (*vm.Object, error) {
	ref, err := r.Get(id)
	if err != nil || ref == nil {
		return nil, err
	}
	o, ok := ref.(*vm.Object)
	if !ok {
		return nil, fmt.Errorf("id %#x is a %T: %w", uint64(id), ref, ErrInvalidObject)
	}
	return o, nil
}

// Class resolves id to a reference type.
func (r *Registry) Class(id ObjectID) (*vm.Class, error) {
	ref, err := r.Get(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidClass, err)
	}
	c, ok := ref.(*vm.Class)
	if !ok {
		return nil, fmt.Errorf("id %#x: %w", uint64(id), ErrInvalidClass)
	}
	return c, nil
}

// Method resolves id to a method.
func (r *Registry) Method(id ObjectID) (*vm.Method, error) {
	ref, _ := r.Get(id)
	m, ok := ref.(*vm.Method)
	if !ok {
		return nil, fmt.Errorf("id %#x: %w", uint64(id), ErrInvalidMethod)
	}
	return m, nil
}

// Field resolves id to a field.
func (r *Registry) Field(id ObjectID) (*vm.Field, error) {
	ref, _ := r.Get(id)
	f, ok := ref.(*vm.Field)
	if !ok {
		return nil, fmt.Errorf("id %#x: %w", uint64(id), ErrInvalidField)
	}
	return f, nil
}

// Release invalidates one id.
func (r *Registry) Release(id ObjectID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := id.index()
	if id == 0 || int(idx) >= len(r.slots) || r.slots[idx].gen != id.generation() || r.slots[idx].ref == nil {
		return
	}
	delete(r.index, r.slots[idx].ref)
	r.slots[idx].ref = nil
	r.slots[idx].gen++
	r.free = append(r.free, idx)
}

// Clear invalidates every id issued so far. Generations are bumped so
// no old id can alias a later registration.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.free = r.free[:0]
	for i := len(r.slots) - 1; i >= 0; i-- {
		r.slots[i].ref = nil
		r.slots[i].gen++
		r.free = append(r.free, uint32(i))
	}
	clear(r.index)
	log.Debugf("registry cleared (%d slots)", len(r.slots))
}

// Len returns the number of live registrations.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.index)
}

// EnumerateRoots reports every registered object to the collector.
func (r *Registry) EnumerateRoots(visit func(*vm.Object)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.slots {
		if o, ok := s.ref.(*vm.Object); ok {
			visit(o)
		}
	}
}
