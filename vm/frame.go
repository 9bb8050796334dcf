package vm

// ---------------------------------------------------------------------------
// Frames
// ---------------------------------------------------------------------------

// FrameState tracks a frame from creation until it is popped.
type FrameState int32

const (
	FrameCreated FrameState = iota
	FrameExecuting
	FrameUnwinding
	FrameReturned
	FramePropagated
)

func (s FrameState) String() string {
	switch s {
	case FrameCreated:
		return "created"
	case FrameExecuting:
		return "executing"
	case FrameUnwinding:
		return "unwinding"
	case FrameReturned:
		return "returned"
	case FramePropagated:
		return "propagated"
	}
	return "unknown"
}

// Frame is one activation. Arguments occupy the last registers. Native
// methods get a frame without registers so stacks list them.
type Frame struct {
	Method *Method
	Regs   []Reg

	// PC is the current instruction, or the invoke instruction while a
	// callee runs.
	PC      int
	ThrowPC int
	CatchPC int
	State   FrameState

	// result holds the last invoke's return value for move-result.
	result Value
}

func newFrame(m *Method, nregs int) *Frame {
	f := &Frame{Method: m, ThrowPC: -1, CatchPC: -1}
	if nregs > 0 {
		f.Regs = make([]Reg, nregs)
	}
	return f
}

// Location returns the frame's current position.
func (f *Frame) Location() Location {
	return Location{Method: f.Method, PC: uint32(f.PC)}
}

// Line returns the source line of the current position, -1 when unknown
// and -2 for native methods.
func (f *Frame) Line() int {
	return f.Method.LineAt(uint32(f.PC))
}

// This returns the receiver of an instance method, read from the first
// argument register.
func (f *Frame) This() *Object {
	m := f.Method
	if m.IsStatic() || m.Code == nil || len(f.Regs) == 0 {
		return nil
	}
	return f.Regs[int(m.Code.RegistersSize)-int(m.Code.InsSize)].Ref
}

// ThisSlot returns the register holding the receiver, or -1.
func (f *Frame) ThisSlot() int {
	m := f.Method
	if m.IsStatic() || m.Code == nil {
		return -1
	}
	return int(m.Code.RegistersSize) - int(m.Code.InsSize)
}

// Get reads a register as a value of the given descriptor.
func (f *Frame) Get(slot int, desc string) Value {
	switch {
	case isRef(desc):
		return Value{Ref: f.Regs[slot].Ref}
	case isWide(desc):
		return Value{Bits: uint64(f.Regs[slot].Bits) | uint64(f.Regs[slot+1].Bits)<<32}
	}
	return Value{Bits: uint64(f.Regs[slot].Bits)}
}

// Set writes a register as a value of the given descriptor.
func (f *Frame) Set(slot int, desc string, v Value) {
	switch {
	case isRef(desc):
		f.Regs[slot] = Reg{Ref: v.Ref}
	case isWide(desc):
		f.Regs[slot] = Reg{Bits: uint32(v.Bits)}
		f.Regs[slot+1] = Reg{Bits: uint32(v.Bits >> 32)}
	default:
		f.Regs[slot] = Reg{Bits: uint32(v.Bits)}
	}
}

// ValidSlot reports whether slot (and slot+1 for wide types) is a
// register of the frame.
func (f *Frame) ValidSlot(slot int, desc string) bool {
	n := 1
	if isWide(desc) {
		n = 2
	}
	return slot >= 0 && slot+n <= len(f.Regs)
}
