package jdwp

import (
	"github.com/chazu/dexvm/vm"
)

// Command sets and commands the VM sends unprompted.
const (
	cmdSetEvent  = 64
	cmdComposite = 100
)

// ---------------------------------------------------------------------------
// vm.DebugHooks
// ---------------------------------------------------------------------------

// PostInstruction reports breakpoints and completed steps before f
// executes its current instruction.
func (b *Bridge) PostInstruction(t *vm.Thread, f *vm.Frame) {
	loc := f.Location()
	depth := t.Depth()
	this := f.This()
	b.dispatch(t,
		&eventContext{kind: EventBreakpoint, thread: t, loc: loc, class: f.Method.Class, this: this},
		&eventContext{kind: EventSingleStep, thread: t, loc: loc, class: f.Method.Class, this: this, frame: f, depth: depth},
	)
}

func (b *Bridge) PostMethodEntry(t *vm.Thread, f *vm.Frame) {
	b.dispatch(t, &eventContext{kind: EventMethodEntry, thread: t, loc: f.Location(), class: f.Method.Class, this: f.This()})
}

func (b *Bridge) PostMethodExit(t *vm.Thread, f *vm.Frame, _ vm.Value) {
	b.dispatch(t, &eventContext{kind: EventMethodExit, thread: t, loc: f.Location(), class: f.Method.Class, this: f.This()})
}

func (b *Bridge) PostException(t *vm.Thread, throwAt vm.Location, exc *vm.Object, catchAt vm.Location, caught bool, this *vm.Object) {
	ctx := &eventContext{
		kind:     EventException,
		thread:   t,
		loc:      throwAt,
		this:     this,
		exc:      exc,
		catchLoc: catchAt,
		caught:   caught,
	}
	if throwAt.Method != nil {
		ctx.class = throwAt.Method.Class
	}
	b.dispatch(t, ctx)
}

func (b *Bridge) PostThreadStart(t *vm.Thread) {
	b.dispatch(t, &eventContext{kind: EventThreadStart, thread: t})
}

func (b *Bridge) PostThreadDeath(t *vm.Thread) {
	b.dispatch(t, &eventContext{kind: EventThreadDeath, thread: t})
}

func (b *Bridge) PostClassPrepare(t *vm.Thread, c *vm.Class) {
	b.dispatch(t, &eventContext{kind: EventClassPrepare, thread: t, class: c})
}

// PostVMDeath tells the debugger the VM is going away. Requests for it
// never suspend.
func (b *Bridge) PostVMDeath() {
	b.dispatch(nil, &eventContext{kind: EventVMDeath})
}

// ---------------------------------------------------------------------------
// Posting
// ---------------------------------------------------------------------------

// dispatch matches ctxs against the request list and sends one
// composite packet for all hits, then applies the suspend policy.
func (b *Bridge) dispatch(t *vm.Thread, ctxs ...*eventContext) {
	if b.State() != StateActive || b.events.Len() == 0 {
		return
	}
	if t != nil && (t == b.self || t.InvokeInProgress()) {
		return
	}
	hits, policy := b.events.match(ctxs...)
	if len(hits) == 0 {
		return
	}
	// Without an event thread there is nothing to park.
	if t == nil {
		policy = SuspendNone
	}

	w := &Writer{}
	w.U1(byte(policy))
	w.U4(uint32(len(hits)))
	for _, h := range hits {
		w.U1(byte(h.ctx.kind))
		w.U4(h.id)
		b.writeEvent(w, h.ctx)
	}
	log.Debugf("posting %d event(s), first %s, policy %d", len(hits), hits[0].ctx.kind, policy)
	b.post(t, policy, w.Bytes())
}

// post sends a composite payload and suspends per policy. The posting
// thread waits in VMWait so another thread's suspend-all does not wait
// on it.
func (b *Bridge) post(t *vm.Thread, policy SuspendPolicy, payload []byte) {
	var old vm.ThreadStatus
	if t != nil {
		old = t.SetStatus(vm.ThreadVMWait)
	}
	if policy == SuspendAll {
		b.vm.Threads.SuspendAllDebug(t)
	}
	if err := b.send(cmdSetEvent, cmdComposite, payload); err != nil {
		log.Warningf("sending event: %s", err)
	}
	if t == nil {
		return
	}
	if policy != SuspendNone {
		t.SuspendForEvent()
	}
	t.SetStatus(old)
}

// writeEvent encodes the body of one event.
func (b *Bridge) writeEvent(w *Writer, ctx *eventContext) {
	switch ctx.kind {
	case EventSingleStep, EventBreakpoint, EventMethodEntry, EventMethodExit:
		w.ID(b.threadID(ctx.thread))
		w.Location(b.location(ctx.loc))
	case EventException:
		w.ID(b.threadID(ctx.thread))
		w.Location(b.location(ctx.loc))
		w.Value(Value{Tag: TagObject, Bits: uint64(b.reg.Register(ctx.exc))})
		w.Location(b.location(ctx.catchLoc))
	case EventThreadStart, EventThreadDeath:
		w.ID(b.threadID(ctx.thread))
	case EventClassPrepare:
		w.ID(b.threadID(ctx.thread))
		w.U1(byte(typeTagOf(ctx.class)))
		w.ID(b.reg.Register(ctx.class))
		w.Str(ctx.class.Descriptor)
		w.U4(classStatus(ctx.class))
	case EventVMStart:
		w.ID(b.threadID(ctx.thread))
	case EventVMDeath:
	}
}

// vmStart returns the composite packet announcing the VM to a new
// debugger.
func (b *Bridge) vmStart() []byte {
	w := &Writer{}
	w.U1(byte(SuspendNone))
	w.U4(1)
	w.U1(byte(EventVMStart))
	w.U4(0)
	b.writeEvent(w, &eventContext{kind: EventVMStart, thread: b.vm.MainThread()})
	return w.Bytes()
}
