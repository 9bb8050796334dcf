package jdwp

import (
	"errors"
	"fmt"

	"github.com/chazu/dexvm/vm"
)

// ---------------------------------------------------------------------------
// Slot remapping
// ---------------------------------------------------------------------------

// Debuggers expect "this" in slot 0, but the receiver lives in the first
// argument register. The two are swapped, and register 0 is exposed as
// slot thisSubstitute.
const thisSubstitute = 1000

// tweakSlot maps a register to the slot shown to the debugger.
func tweakSlot(m *vm.Method, reg int) int {
	if m.IsStatic() || m.Code == nil {
		return reg
	}
	this := int(m.Code.RegistersSize) - int(m.Code.InsSize)
	switch reg {
	case this:
		return 0
	case 0:
		return thisSubstitute
	}
	return reg
}

// untweakSlot maps a debugger slot back to a register.
func untweakSlot(m *vm.Method, slot int) int {
	if m.IsStatic() || m.Code == nil {
		return slot
	}
	switch slot {
	case thisSubstitute:
		return 0
	case 0:
		return int(m.Code.RegistersSize) - int(m.Code.InsSize)
	}
	return slot
}

// ---------------------------------------------------------------------------
// Frames
// ---------------------------------------------------------------------------

// FrameID names a frame: the thread's index in the upper half and the
// frame's depth from the bottom of the stack in the lower half, so ids
// of outer frames stay valid while inner frames come and go.
type FrameID uint64

func makeFrameID(t *vm.Thread, depth int) FrameID {
	return FrameID(uint64(t.ID)<<32 | uint64(uint32(depth)))
}

// FrameInfo is one stack frame as the debugger sees it.
type FrameInfo struct {
	ID       FrameID
	Location Location
}

// location converts a VM location to debugger ids. Native methods have
// index -1.
func (b *Bridge) location(l vm.Location) Location {
	m := l.Method
	if m == nil {
		return Location{}
	}
	loc := Location{
		TypeTag: typeTagOf(m.Class),
		Class:   b.reg.Register(m.Class),
		Method:  b.reg.Register(m),
		Index:   uint64(l.PC),
	}
	if m.Code == nil {
		loc.Index = ^uint64(0)
	}
	return loc
}

// suspendedThread resolves a thread whose stack may be inspected.
func (b *Bridge) suspendedThread(id ObjectID) (*vm.Thread, error) {
	t, err := b.thread(id)
	if err != nil {
		return nil, err
	}
	if t.SuspendCount() == 0 {
		return nil, fmt.Errorf("%s: %w", t, ErrNotSuspended)
	}
	return t, nil
}

// FrameCount returns the stack depth of a suspended thread.
func (b *Bridge) FrameCount(id ObjectID) (int, error) {
	t, err := b.suspendedThread(id)
	if err != nil {
		return 0, err
	}
	return t.Depth(), nil
}

// Frames returns up to length frames of a suspended thread, innermost
// first, starting at start. A negative length means all remaining.
func (b *Bridge) Frames(id ObjectID, start, length int) ([]FrameInfo, error) {
	t, err := b.suspendedThread(id)
	if err != nil {
		return nil, err
	}
	frames := t.Frames()
	n := len(frames)
	if start < 0 || start > n {
		return nil, fmt.Errorf("start %d of %d frames: %w", start, n, ErrInvalidIndex)
	}
	if length < 0 {
		length = n - start
	}
	if length > n-start {
		return nil, fmt.Errorf("length %d from %d of %d frames: %w", length, start, n, ErrInvalidLength)
	}
	out := make([]FrameInfo, 0, length)
	for i := start; i < start+length; i++ {
		depth := n - 1 - i
		out = append(out, FrameInfo{
			ID:       makeFrameID(t, depth),
			Location: b.location(frames[depth].Location()),
		})
	}
	return out, nil
}

// frame resolves a frame of a suspended thread.
func (b *Bridge) frame(threadID ObjectID, id FrameID) (*vm.Frame, error) {
	t, err := b.suspendedThread(threadID)
	if err != nil {
		return nil, err
	}
	if uint32(id>>32) != t.ID {
		return nil, fmt.Errorf("frame %#x not on %s: %w", uint64(id), t, ErrInvalidFrame)
	}
	frames := t.Frames()
	depth := int(uint32(id))
	if depth >= len(frames) {
		return nil, fmt.Errorf("frame %#x: %w", uint64(id), ErrInvalidFrame)
	}
	f := frames[depth]
	if f.Method.Code == nil {
		return nil, fmt.Errorf("%s is native: %w", f.Method.Key(), ErrOpaqueFrame)
	}
	return f, nil
}

// descForTag returns a descriptor that reads a register as tag.
func descForTag(t Tag) (string, error) {
	if t.IsPrimitive() {
		if t == TagVoid {
			return "", fmt.Errorf("void slot: %w", ErrTypeMismatch)
		}
		return string(rune(t)), nil
	}
	if TagWidth(t) != idSize {
		return "", fmt.Errorf("tag %q: %w", byte(t), ErrTypeMismatch)
	}
	return "Ljava/lang/Object;", nil
}

// GetLocal reads a local slot as tag. Object tags are refined by the
// value's runtime class.
func (b *Bridge) GetLocal(threadID ObjectID, frameID FrameID, slot int, tag Tag) (Value, error) {
	f, err := b.frame(threadID, frameID)
	if err != nil {
		return Value{}, err
	}
	desc, err := descForTag(tag)
	if err != nil {
		return Value{}, err
	}
	reg := untweakSlot(f.Method, slot)
	if !f.ValidSlot(reg, desc) {
		return Value{}, fmt.Errorf("slot %d of %s: %w", slot, f.Method.Key(), ErrInvalidSlot)
	}
	v := f.Get(reg, desc)
	if tag.IsPrimitive() {
		return Value{Tag: tag, Bits: v.Bits}, nil
	}
	out := Value{Tag: tag, Bits: uint64(b.reg.Register(v.Ref))}
	if v.Ref != nil && (tag == TagObject || tag == TagArray) {
		out.Tag = RefineTag(v.Ref)
	}
	return out, nil
}

// SetLocal writes a local slot.
func (b *Bridge) SetLocal(threadID ObjectID, frameID FrameID, slot int, v Value) error {
	f, err := b.frame(threadID, frameID)
	if err != nil {
		return err
	}
	desc, err := descForTag(v.Tag)
	if err != nil {
		return err
	}
	reg := untweakSlot(f.Method, slot)
	if !f.ValidSlot(reg, desc) {
		return fmt.Errorf("slot %d of %s: %w", slot, f.Method.Key(), ErrInvalidSlot)
	}
	if !v.Tag.IsPrimitive() {
		desc = "Ljava/lang/Object;"
		v.Tag = TagObject
	}
	val, err := b.fromWire(desc, v)
	if err != nil {
		return err
	}
	f.Set(reg, desc, val)
	return nil
}

// ThisObject returns the receiver of a frame, or a null object for
// static methods.
func (b *Bridge) ThisObject(threadID ObjectID, frameID FrameID) (Value, error) {
	f, err := b.frame(threadID, frameID)
	if err != nil {
		return Value{}, err
	}
	this := f.This()
	return Value{Tag: RefineTag(this), Bits: uint64(b.reg.Register(this))}, nil
}

// ---------------------------------------------------------------------------
// Remote invocation
// ---------------------------------------------------------------------------

// InvokeResult is the outcome of InvokeMethod. Exception is a null
// object when the call returned normally.
type InvokeResult struct {
	Value     Value
	Exception Value
}

// InvokeMethod calls a method on a thread parked by an event. objectID
// is 0 for static methods. The thread must have been suspended exactly
// once, by the event that parked it.
func (b *Bridge) InvokeMethod(threadID, objectID, classID, methodID ObjectID, args []Value, opts vm.InvokeOptions) (InvokeResult, error) {
	t, err := b.thread(threadID)
	if err != nil {
		return InvokeResult{}, err
	}
	m, err := b.method(classID, methodID)
	if err != nil {
		return InvokeResult{}, err
	}
	var this *vm.Object
	if !m.IsStatic() {
		if this, err = b.object(objectID); err != nil {
			return InvokeResult{}, err
		}
	}
	if len(args) != len(m.Params) {
		return InvokeResult{}, fmt.Errorf("%s: %d arguments, want %d: %w", m.Key(), len(args), len(m.Params), ErrBadPacket)
	}
	vals := make([]vm.Value, len(args))
	for i, a := range args {
		if vals[i], err = b.fromWire(m.Params[i], a); err != nil {
			return InvokeResult{}, err
		}
	}

	req := &vm.InvokeRequest{Method: m, This: this, Args: vals, Options: opts}
	log.Debugf("invoke %s on %s", m.Key(), t)
	if err := b.vm.Threads.Invoke(b.self, t, req); err != nil {
		switch {
		case errors.Is(err, vm.ErrSuspendedTooDeeply):
			return InvokeResult{}, fmt.Errorf("%w: %w", ErrThreadSuspended, err)
		case errors.Is(err, vm.ErrNotParkedForEvent):
			return InvokeResult{}, fmt.Errorf("%w: %w", ErrInvalidThread, err)
		case errors.Is(err, vm.ErrNotSuspended):
			return InvokeResult{}, fmt.Errorf("%w: %w", ErrNotSuspended, err)
		}
		return InvokeResult{}, err
	}

	res := InvokeResult{Exception: Value{Tag: TagObject}}
	if req.Exception != nil {
		res.Exception.Bits = uint64(b.reg.Register(req.Exception))
		tag, _ := TagFromDescriptor(m.Return)
		res.Value = Value{Tag: tag}
		return res, nil
	}
	res.Value = b.toWire(m.Return, req.Result)
	return res, nil
}

// NewInstance allocates an instance of a class and runs the constructor
// methodID on it in the given thread, with the same rules as
// InvokeMethod. The new object is reported as null when the constructor
// throws.
func (b *Bridge) NewInstance(threadID, classID, methodID ObjectID, args []Value, opts vm.InvokeOptions) (InvokeResult, error) {
	c, err := b.reg.Class(classID)
	if err != nil {
		return InvokeResult{}, err
	}
	if c.IsArray() || c.IsInterface() || c.IsAbstract() || c.Primitive {
		return InvokeResult{}, fmt.Errorf("%s cannot be instantiated: %w", c, ErrInvalidClass)
	}
	if s := c.Status(); s == vm.ClassNotReady || s == vm.ClassError {
		return InvokeResult{}, fmt.Errorf("%s is %s: %w", c, s, ErrNotPrepared)
	}
	m, err := b.method(classID, methodID)
	if err != nil {
		return InvokeResult{}, err
	}
	if m.Name != "<init>" || m.Class != c {
		return InvokeResult{}, fmt.Errorf("%s is not a constructor of %s: %w", m.Key(), c, ErrInvalidMethod)
	}

	o, err := b.vm.Heap.Alloc(b.self, c)
	if err != nil {
		return InvokeResult{}, err
	}
	id := b.reg.Register(o)
	b.self.ReleasePending()

	res, err := b.InvokeMethod(threadID, id, classID, methodID, args, opts|vm.InvokeNonvirtual)
	if err != nil {
		b.reg.Release(id)
		return InvokeResult{}, err
	}
	res.Value = Value{Tag: TagObject}
	if res.Exception.Bits != 0 {
		b.reg.Release(id)
		return res, nil
	}
	res.Value.Bits = uint64(id)
	return res, nil
}
