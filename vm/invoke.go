package vm

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Invocation from Go
// ---------------------------------------------------------------------------

// Invoke runs m on t. With virtual set and a receiver present, the
// implementation is chosen from this's class. An exception escaping the
// call is returned as a *ThrowError.
func (vm *VM) Invoke(t *Thread, m *Method, this *Object, args []Value, virtual bool) (Value, error) {
	if vm.shutdown.Load() {
		return Value{}, ErrShutdown
	}
	old := t.SetStatus(ThreadRunning)
	defer t.SetStatus(old)

	if !m.IsStatic() {
		if this == nil {
			return Value{}, &ThrowError{Exception: vm.throwable(t, "Ljava/lang/NullPointerException;", "")}
		}
		if virtual && !m.IsDirect() {
			impl := this.Class.FindVirtual(m.Name, m.Descriptor)
			if impl == nil {
				return Value{}, fmt.Errorf("%s on %s: %w", m.Key(), this.Class.Descriptor, ErrNoSuchMethod)
			}
			m = impl
		}
	} else if err := vm.InitializeClass(t, m.Class); err != nil {
		return Value{}, err
	}
	if len(args) != len(m.Params) {
		return Value{}, fmt.Errorf("%s: got %d arguments, want %d", m.Key(), len(args), len(m.Params))
	}

	regs := make([]Reg, 0, m.ArgWords())
	if !m.IsStatic() {
		regs = append(regs, Reg{Ref: this})
	}
	for i, p := range m.Params {
		regs = appendArg(regs, p, args[i])
	}
	v, exc := vm.invokeMethod(t, m, regs)
	if exc != nil {
		return Value{}, &ThrowError{Exception: exc}
	}
	return v, nil
}

// appendArg lays out one argument in registers.
func appendArg(regs []Reg, desc string, v Value) []Reg {
	switch {
	case isRef(desc):
		return append(regs, Reg{Ref: v.Ref})
	case isWide(desc):
		return append(regs, Reg{Bits: uint32(v.Bits)}, Reg{Bits: uint32(v.Bits >> 32)})
	}
	return append(regs, Reg{Bits: uint32(v.Bits)})
}

// argValues converts argument registers back to one Value per parameter,
// receiver first.
func argValues(m *Method, regs []Reg) []Value {
	out := make([]Value, 0, len(m.Params)+1)
	i := 0
	if !m.IsStatic() {
		out = append(out, Value{Ref: regs[0].Ref})
		i++
	}
	for _, p := range m.Params {
		switch {
		case isRef(p):
			out = append(out, Value{Ref: regs[i].Ref})
			i++
		case isWide(p):
			out = append(out, Value{Bits: uint64(regs[i].Bits) | uint64(regs[i+1].Bits)<<32})
			i += 2
		default:
			out = append(out, Value{Bits: uint64(regs[i].Bits)})
			i++
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Invocation on behalf of the debugger
// ---------------------------------------------------------------------------

// InvokeOptions are the debugger's invoke flags.
type InvokeOptions uint32

const (
	InvokeSingleThreaded InvokeOptions = 0x01
	InvokeNonvirtual     InvokeOptions = 0x02
)

var (
	ErrNotParkedForEvent  = errors.New("thread not suspended by an event")
	ErrSuspendedTooDeeply = errors.New("thread suspended too deeply")
)

// InvokeRequest is a call the debugger asks a parked thread to make.
// The bookkeeping fields are guarded by the thread list's suspend lock.
type InvokeRequest struct {
	Method  *Method
	This    *Object
	Args    []Value
	Options InvokeOptions

	Result    Value
	Exception *Object

	ready  bool
	needed bool
	done   bool
}

// Invoke runs req on t, which must be parked in SuspendForEvent, and
// blocks until the call completes and t is parked again. self is the
// calling VM thread, or nil for a protocol goroutine.
//
// A thread whose suspend count is above one is rejected: the call would
// need the extra suspensions drained and restored around it.
func (tl *ThreadList) Invoke(self, t *Thread, req *InvokeRequest) error {
	tl.suspendMu.Lock()
	if t.Status() == ThreadZombie || t.invoke == nil || !t.invoke.ready {
		tl.suspendMu.Unlock()
		return fmt.Errorf("%s: %w", t, ErrNotParkedForEvent)
	}
	if t.suspendCount > 1 {
		tl.suspendMu.Unlock()
		return fmt.Errorf("%s (suspend count %d): %w", t, t.suspendCount, ErrSuspendedTooDeeply)
	}
	req.ready = true
	req.needed = true
	req.done = false
	t.invoke = req
	tl.suspendMu.Unlock()

	var old ThreadStatus
	if self != nil {
		old = self.SetStatus(ThreadVMWait)
	}
	single := req.Options&InvokeSingleThreaded != 0
	if single {
		if err := tl.resume(t, true); err != nil {
			tl.suspendMu.Lock()
			req.needed = false
			tl.suspendMu.Unlock()
			if self != nil {
				self.SetStatus(old)
			}
			return err
		}
	} else {
		tl.ResumeAllDebug(self)
	}

	tl.suspendMu.Lock()
	for !req.done {
		tl.suspendCond.Wait()
	}
	tl.suspendMu.Unlock()
	tl.WaitUntilSuspended(t)

	if !single {
		tl.SuspendAllDebug(self)
		if err := tl.resume(t, true); err != nil {
			log.Errorf("invoke on %s: %s", t, err)
		}
	}
	if self != nil {
		self.SetStatus(old)
	}
	return nil
}

// executeInvoke runs a debugger request on its target thread. The pending
// exception is saved around the call.
func (vm *VM) executeInvoke(t *Thread, req *InvokeRequest) {
	saved := t.exception
	t.exception = nil

	m := req.Method
	virtual := req.Options&InvokeNonvirtual == 0 && !m.IsStatic() && !m.IsDirect()
	log.Debugf("%s invoking %s (virtual=%t)", t, m.Key(), virtual)
	v, err := vm.Invoke(t, m, req.This, req.Args, virtual)
	req.Result = v
	req.Exception = nil
	if err != nil {
		req.Result = Value{}
		req.Exception = vm.errorThrowable(t, err)
	}
	t.exception = saved
}
