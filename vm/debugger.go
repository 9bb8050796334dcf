package vm

import "fmt"

// ---------------------------------------------------------------------------
// Debugger hooks
// ---------------------------------------------------------------------------

// Location is a code position: a method and a pc in code units.
type Location struct {
	Method *Method
	PC     uint32
}

func (l Location) String() string {
	if l.Method == nil {
		return "<none>"
	}
	return fmt.Sprintf("%s@%d", l.Method.Key(), l.PC)
}

// DebugHooks receives interpreter events. The interpreter checks Active
// before reporting per-instruction and per-call events, so an inactive
// implementation costs one call per check. Hooks run on the thread that
// caused the event and may park it with Thread.SuspendForEvent.
type DebugHooks interface {
	Active() bool
	PostInstruction(t *Thread, f *Frame)
	PostMethodEntry(t *Thread, f *Frame)
	PostMethodExit(t *Thread, f *Frame, result Value)
	// PostException reports a throw. caught is false when no frame on the
	// stack handles exc; catchAt is then the zero Location.
	PostException(t *Thread, throwAt Location, exc *Object, catchAt Location, caught bool, this *Object)
	PostThreadStart(t *Thread)
	PostThreadDeath(t *Thread)
	// PostClassPrepare reports a newly linked class. t is nil when no VM
	// thread triggered the load.
	PostClassPrepare(t *Thread, c *Class)
}

// NoHooks is the DebugHooks used when no debugger is attached.
type NoHooks struct{}

func (NoHooks) Active() bool { return false }
func (NoHooks) PostInstruction(*Thread, *Frame) {}
func (NoHooks) PostMethodEntry(*Thread, *Frame) {}
func (NoHooks) PostMethodExit(*Thread, *Frame, Value) {}
func (NoHooks) PostException(*Thread, Location, *Object, Location, bool, *Object) {}
func (NoHooks) PostThreadStart(*Thread) {}
func (NoHooks) PostThreadDeath(*Thread) {}
func (NoHooks) PostClassPrepare(*Thread, *Class) {}

type hooksBox struct {
	h DebugHooks
}

// SetDebugHooks installs h, or removes the current hooks when h is nil.
func (vm *VM) SetDebugHooks(h DebugHooks) {
	if h == nil {
		h = NoHooks{}
	}
	vm.debugHooks.Store(hooksBox{h})
}

func (vm *VM) hooks() DebugHooks {
	return vm.debugHooks.Load().(hooksBox).h
}

// postThrow reports exc to the debugger once per throw. The stack is
// scanned for the frame that will catch it.
func (vm *VM) postThrow(t *Thread, f *Frame, pc int, exc *Object) {
	if t.posted == exc {
		return
	}
	t.posted = exc
	h := vm.hooks()
	if !h.Active() {
		return
	}
	var catchAt Location
	caught := false
	for i := len(t.frames) - 1; i >= 0 && !caught; i-- {
		fr := t.frames[i]
		if fr.Method.Code == nil {
			continue
		}
		at := fr.PC
		if fr == f {
			at = pc
		}
		if addr, ok := vm.findCatch(t, fr.Method, at, exc); ok {
			catchAt = Location{Method: fr.Method, PC: addr}
			caught = true
		}
	}
	h.PostException(t, Location{Method: f.Method, PC: uint32(pc)}, exc, catchAt, caught, f.This())
}
