package jdwp

import (
	"errors"
	"testing"

	"github.com/chazu/dexvm/dex"
	"github.com/chazu/dexvm/vm"
)

func TestMatchClassPattern(t *testing.T) {
	tests := []struct {
		pattern, name string
		want          bool
	}{
		{"*", "a.b.C", true},
		{"a.b.C", "a.b.C", true},
		{"a.b.C", "a.b.D", false},
		{"a.b.*", "a.b.C", true},
		{"a.b.*", "a.c.C", false},
		{"*.C", "a.b.C", true},
		{"*.C", "a.b.CD", false},
		{"Tar*", "Target", true},
	}
	for _, tt := range tests {
		if got := matchClassPattern(tt.pattern, tt.name); got != tt.want {
			t.Errorf("matchClassPattern(%q, %q) = %t, want %t", tt.pattern, tt.name, got, tt.want)
		}
	}
}

func TestEventListCount(t *testing.T) {
	l := newEventList()
	id := l.add(&request{kind: EventThreadStart, policy: SuspendThread, count: 2})
	l.add(&request{kind: EventThreadDeath, policy: SuspendAll})
	ctx := &eventContext{kind: EventThreadStart}

	if hits, _ := l.match(ctx); len(hits) != 0 {
		t.Fatalf("first occurrence hit %v", hits)
	}
	hits, policy := l.match(ctx)
	if len(hits) != 1 || hits[0].id != id || policy != SuspendThread {
		t.Fatalf("second occurrence = %v, policy %d", hits, policy)
	}
	if l.Len() != 1 {
		t.Errorf("expired request kept: Len = %d", l.Len())
	}
	if hits, _ := l.match(ctx); len(hits) != 0 {
		t.Error("expired request fired again")
	}

	_, policy = l.match(ctx, &eventContext{kind: EventThreadDeath})
	if policy != SuspendAll {
		t.Errorf("policy = %d, want SuspendAll", policy)
	}
	l.removeKind(EventThreadDeath)
	if l.Len() != 0 {
		t.Errorf("Len after removeKind = %d", l.Len())
	}
}

func TestStepAdvance(t *testing.T) {
	m := &vm.Method{Class: &vm.Class{}, Code: &dex.Code{RegistersSize: 1}}
	other := &vm.Method{Class: &vm.Class{}, Code: &dex.Code{RegistersSize: 1}}
	at := func(meth *vm.Method, pc, depth int) *eventContext {
		return &eventContext{frame: &vm.Frame{Method: meth, PC: pc}, depth: depth}
	}

	tests := []struct {
		name  string
		depth StepDepth
		ctx   *eventContext
		want  bool
	}{
		{"into same pc", StepInto, at(m, 4, 2), false},
		{"into next pc", StepInto, at(m, 6, 2), true},
		{"into callee", StepInto, at(other, 0, 3), true},
		{"over callee", StepOver, at(other, 0, 3), false},
		{"over next pc", StepOver, at(m, 6, 2), true},
		{"over return", StepOver, at(other, 9, 1), true},
		{"out same frame", StepOut, at(m, 6, 2), false},
		{"out callee", StepOut, at(other, 0, 3), false},
		{"out return", StepOut, at(other, 9, 1), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &stepState{size: StepMin, depth: tt.depth, frames: 2, method: m, line: -1, pc: 4}
			if got := s.advance(tt.ctx); got != tt.want {
				t.Errorf("advance = %t, want %t", got, tt.want)
			}
			if tt.want && (s.frames != tt.ctx.depth || s.pc != tt.ctx.frame.PC) {
				t.Errorf("baseline not moved: %+v", s)
			}
		})
	}

	s := &stepState{depth: StepInto, frames: 1, method: m, pc: 0}
	if s.advance(&eventContext{}) {
		t.Error("advance without a frame")
	}
}

func TestSetEventValidation(t *testing.T) {
	_, b, _ := newTestBridge(t)
	tests := []struct {
		name string
		er   EventRequest
		code ErrorCode
	}{
		{"bad kind", EventRequest{Kind: 3}, ErrCodeInvalidEvent},
		{"bad policy", EventRequest{Kind: EventThreadStart, Policy: 7}, ErrCodeInvalidEvent},
		{"step without modifier", EventRequest{Kind: EventSingleStep}, ErrCodeInvalidEvent},
		{"zero count", EventRequest{Kind: EventThreadStart, Modifiers: []Modifier{{Kind: ModCount}}}, ErrCodeInvalidEvent},
		{"bad class", EventRequest{Kind: EventClassPrepare, Modifiers: []Modifier{{Kind: ModClassOnly, Class: 77}}}, ErrCodeInvalidClass},
		{"bad thread", EventRequest{Kind: EventThreadStart, Modifiers: []Modifier{{Kind: ModThreadOnly, Thread: 77}}}, ErrCodeInvalidThread},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := b.SetEvent(tt.er); CodeOf(err) != tt.code {
				t.Errorf("code %d, want %d (%v)", CodeOf(err), tt.code, err)
			}
		})
	}
	if b.State() != StateConnected {
		t.Errorf("rejected requests activated the bridge: %s", b.State())
	}
}

func TestModifierRoundTrip(t *testing.T) {
	mods := []Modifier{
		{Kind: ModCount, Count: 3},
		{Kind: ModThreadOnly, Thread: 9},
		{Kind: ModClassMatch, Pattern: "java.*"},
		{Kind: ModLocationOnly, Location: Location{TypeTag: TypeClass, Class: 1, Method: 2, Index: 4}},
		{Kind: ModExceptionOnly, Class: 5, Caught: true},
		{Kind: ModStep, Thread: 9, Size: StepLine, Depth: StepOver},
	}
	w := &Writer{}
	for _, m := range mods {
		m.WriteTo(w)
	}
	r := NewReader(w.Bytes())
	for _, want := range mods {
		got, err := ReadModifier(r)
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("got %+v, want %+v", got, want)
		}
	}

	w = &Writer{}
	w.U1(byte(ModConditional))
	w.U4(1)
	if _, err := ReadModifier(NewReader(w.Bytes())); !errors.Is(err, ErrNotImplemented) {
		t.Errorf("conditional modifier: %v", err)
	}
}

// readComposite decodes the header of a composite event packet and the
// kind and request id of its first event.
func readComposite(t *testing.T, p sentPacket) (*Reader, SuspendPolicy, EventKind, uint32) {
	t.Helper()
	if p.cmdSet != cmdSetEvent || p.cmd != cmdComposite {
		t.Fatalf("packet %d/%d, want composite event", p.cmdSet, p.cmd)
	}
	r := NewReader(p.data)
	policy := SuspendPolicy(r.U1())
	if n := r.U4(); n != 1 {
		t.Fatalf("%d events in composite, want 1", n)
	}
	kind := EventKind(r.U1())
	id := r.U4()
	return r, policy, kind, id
}

type callResult struct {
	v   vm.Value
	err error
}

func TestBreakpointInspectAndInvoke(t *testing.T) {
	v, b, rec := newTestBridge(t)
	cid := classID(t, v, b, "LTarget;")
	work := methodID(t, b, cid, "work")
	add := methodID(t, b, cid, "add")

	reqID, err := b.SetEvent(EventRequest{
		Kind:   EventBreakpoint,
		Policy: SuspendThread,
		Modifiers: []Modifier{
			{Kind: ModLocationOnly, Location: Location{TypeTag: TypeClass, Class: cid, Method: work, Index: 0}},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	worker, err := v.AttachThread("worker")
	if err != nil {
		t.Fatal(err)
	}
	defer v.DetachThread(worker)
	m, err := b.Registry().Method(work)
	if err != nil {
		t.Fatal(err)
	}
	done := make(chan callResult, 1)
	go func() {
		res, err := v.Invoke(worker, m, nil, []vm.Value{vm.IntValue(5)}, false)
		done <- callResult{res, err}
	}()

	r, policy, kind, id := readComposite(t, rec.next(t))
	if policy != SuspendThread || kind != EventBreakpoint || id != reqID {
		t.Fatalf("event policy %d kind %s id %d", policy, kind, id)
	}
	tid := r.ID()
	if tid != b.threadID(worker) {
		t.Errorf("event thread %d, want worker", tid)
	}
	if loc := r.Location(); loc.Method != work || loc.Index != 0 {
		t.Errorf("event location %+v", loc)
	}
	waitStatus(t, worker, vm.ThreadSuspended)

	if n, err := b.FrameCount(tid); err != nil || n != 1 {
		t.Fatalf("FrameCount = %d, %v", n, err)
	}
	frames, err := b.Frames(tid, 0, -1)
	if err != nil || len(frames) != 1 {
		t.Fatalf("Frames = %v, %v", frames, err)
	}
	fid := frames[0].ID
	if got, err := b.GetLocal(tid, fid, 1, TagInt); err != nil || got != intVal(5) {
		t.Errorf("GetLocal(n) = %+v, %v", got, err)
	}
	if _, err := b.GetLocal(tid, fid, 9, TagInt); CodeOf(err) != ErrCodeInvalidSlot {
		t.Errorf("GetLocal(9) code %d", CodeOf(err))
	}
	if this, err := b.ThisObject(tid, fid); err != nil || this.ID() != 0 {
		t.Errorf("ThisObject of static frame = %+v, %v", this, err)
	}

	res, err := b.InvokeMethod(tid, 0, cid, add, []Value{intVal(2), intVal(3)}, vm.InvokeSingleThreaded)
	if err != nil {
		t.Fatal(err)
	}
	if res.Value != intVal(5) || res.Exception.ID() != 0 {
		t.Errorf("add(2, 3) = %+v", res)
	}
	if n, _ := b.SuspendCount(tid); n != 1 {
		t.Errorf("suspend count after invoke = %d", n)
	}

	if err := b.SuspendThread(tid); err != nil {
		t.Fatal(err)
	}
	_, err = b.InvokeMethod(tid, 0, cid, add, []Value{intVal(1), intVal(1)}, vm.InvokeSingleThreaded)
	if !errors.Is(err, ErrThreadSuspended) || CodeOf(err) != ErrCodeSuspended {
		t.Errorf("invoke at suspend count 2 = %v (code %d)", err, CodeOf(err))
	}

	if err := b.SetLocal(tid, fid, 1, intVal(41)); err != nil {
		t.Fatal(err)
	}
	b.ClearEvent(EventBreakpoint, reqID)
	for range 2 {
		if err := b.ResumeThread(tid); err != nil {
			t.Fatal(err)
		}
	}

	got := <-done
	if got.err != nil {
		t.Fatalf("work failed: %v", got.err)
	}
	if got.v.Int() != 42 {
		t.Errorf("work(41) = %d, want 42", got.v.Int())
	}
	rec.none(t)
}

func TestExceptionEvent(t *testing.T) {
	v, b, rec := newTestBridge(t)
	cid := classID(t, v, b, "LTarget;")
	fail := methodID(t, b, cid, "fail")

	if _, err := b.SetEvent(EventRequest{
		Kind:      EventException,
		Policy:    SuspendNone,
		Modifiers: []Modifier{{Kind: ModExceptionOnly, Caught: false, Uncaught: true}},
	}); err != nil {
		t.Fatal(err)
	}

	m, _ := b.Registry().Method(fail)
	_, err := v.Invoke(v.MainThread(), m, nil, nil, false)
	var thrown *vm.ThrowError
	if !errors.As(err, &thrown) {
		t.Fatalf("fail() = %v, want a thrown exception", err)
	}

	r, policy, kind, _ := readComposite(t, rec.next(t))
	if policy != SuspendNone || kind != EventException {
		t.Fatalf("event policy %d kind %s", policy, kind)
	}
	if tid := r.ID(); tid != b.threadID(v.MainThread()) {
		t.Errorf("event thread %d", tid)
	}
	if loc := r.Location(); loc.Method != fail || loc.Index != 1 {
		t.Errorf("throw location %+v, want fail@1", loc)
	}
	exc := r.Value()
	if exc.Tag != TagObject {
		t.Errorf("exception tag %s", exc.Tag)
	}
	if o, err := b.Registry().Object(exc.ID()); err != nil || o != thrown.Exception {
		t.Errorf("exception object %v, %v", o, err)
	}
	if catch := r.Location(); catch.Method != 0 {
		t.Errorf("uncaught exception has catch location %+v", catch)
	}
	if r.Err() != nil {
		t.Error(r.Err())
	}
}

func TestClassPrepareEvent(t *testing.T) {
	v, b, rec := newTestBridge(t)

	if _, err := b.SetEvent(EventRequest{
		Kind:      EventClassPrepare,
		Policy:    SuspendAll,
		Modifiers: []Modifier{{Kind: ModClassMatch, Pattern: "Tar*"}},
	}); err != nil {
		t.Fatal(err)
	}
	mustClass(t, v, "LTarget;")

	r, policy, kind, _ := readComposite(t, rec.next(t))
	if kind != EventClassPrepare {
		t.Fatalf("event kind %s", kind)
	}
	// No thread to park, so nothing is suspended.
	if policy != SuspendNone {
		t.Errorf("policy %d, want none", policy)
	}
	if n := v.MainThread().SuspendCount(); n != 0 {
		t.Errorf("main suspend count %d", n)
	}
	r.ID()
	if tt := TypeTag(r.U1()); tt != TypeClass {
		t.Errorf("type tag %d", tt)
	}
	r.ID()
	if sig := r.Str(); sig != "LTarget;" {
		t.Errorf("signature %q", sig)
	}
	rec.none(t)
}
