package vm

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sasha-s/go-deadlock"
)

// ---------------------------------------------------------------------------
// Thread status
// ---------------------------------------------------------------------------

// ThreadStatus is the scheduling state of a VM thread.
type ThreadStatus int32

const (
	ThreadStarting ThreadStatus = iota
	ThreadInitializing
	ThreadRunning
	ThreadNative
	ThreadMonitor
	ThreadWait
	ThreadTimedWait
	ThreadVMWait
	ThreadSuspended
	ThreadZombie
)

var threadStatusNames = [...]string{
	ThreadStarting:     "starting",
	ThreadInitializing: "initializing",
	ThreadRunning:      "running",
	ThreadNative:       "native",
	ThreadMonitor:      "monitor",
	ThreadWait:         "wait",
	ThreadTimedWait:    "timed-wait",
	ThreadVMWait:       "vm-wait",
	ThreadSuspended:    "suspended",
	ThreadZombie:       "zombie",
}

func (s ThreadStatus) String() string {
	if int(s) < len(threadStatusNames) {
		return threadStatusNames[s]
	}
	return fmt.Sprintf("status(%d)", int32(s))
}

// safe reports whether a thread in status s cannot touch the heap
// without first passing SetStatus(ThreadRunning).
func (s ThreadStatus) safe() bool {
	return s != ThreadRunning
}

// ---------------------------------------------------------------------------
// Thread
// ---------------------------------------------------------------------------

// Thread is a VM thread. Its frames, pending allocations and exception
// are owned by the goroutine running it; other goroutines read them only
// while the thread is suspended.
type Thread struct {
	ID   uint32
	Name string

	// Peer is the java.lang.Thread instance.
	Peer *Object

	vm   *VM
	list *ThreadList

	// status is written under list.suspendMu and read lock-free.
	status          atomic.Int32
	suspendPending  atomic.Bool
	suspendCount    int
	dbgSuspendCount int
	invoke          *InvokeRequest

	frames    []*Frame
	exception *Object
	posted    *Object
	pending   []*Object
}

func (t *Thread) String() string {
	return fmt.Sprintf("thread %d (%s)", t.ID, t.Name)
}

// Status returns the current status.
func (t *Thread) Status() ThreadStatus {
	return ThreadStatus(t.status.Load())
}

// SetStatus changes the status and returns the previous one. Entering
// ThreadRunning blocks while a suspension is pending.
func (t *Thread) SetStatus(s ThreadStatus) ThreadStatus {
	tl := t.list
	tl.suspendMu.Lock()
	defer tl.suspendMu.Unlock()
	old := t.Status()
	if s == ThreadRunning {
		for t.suspendCount > 0 {
			t.status.Store(int32(ThreadSuspended))
			tl.suspendCond.Broadcast()
			tl.suspendCond.Wait()
		}
	}
	t.status.Store(int32(s))
	tl.suspendCond.Broadcast()
	return old
}

// SuspendCount returns the total suspend count.
func (t *Thread) SuspendCount() int {
	t.list.suspendMu.Lock()
	defer t.list.suspendMu.Unlock()
	return t.suspendCount
}

// DebugSuspendCount returns the part of the suspend count owed to the
// debugger.
func (t *Thread) DebugSuspendCount() int {
	t.list.suspendMu.Lock()
	defer t.list.suspendMu.Unlock()
	return t.dbgSuspendCount
}

// SafePoint parks the thread while its suspend count is above zero. The
// fast path is a single atomic load.
func (t *Thread) SafePoint() {
	if !t.suspendPending.Load() {
		return
	}
	tl := t.list
	tl.suspendMu.Lock()
	t.park()
	tl.suspendMu.Unlock()
}

// park waits out the suspend count. suspendMu is held.
func (t *Thread) park() {
	tl := t.list
	if t.suspendCount == 0 {
		return
	}
	old := t.Status()
	t.status.Store(int32(ThreadSuspended))
	tl.suspendCond.Broadcast()
	for t.suspendCount > 0 {
		tl.suspendCond.Wait()
	}
	t.status.Store(int32(old))
	tl.suspendCond.Broadcast()
}

// SuspendForEvent suspends the thread on behalf of the debugger after it
// posted an event. While parked the thread services invoke requests;
// it returns once the debugger resumes it.
func (t *Thread) SuspendForEvent() {
	tl := t.list
	tl.suspendMu.Lock()
	defer tl.suspendMu.Unlock()

	t.suspendCount++
	t.dbgSuspendCount++
	t.suspendPending.Store(true)
	for {
		if t.invoke == nil {
			t.invoke = &InvokeRequest{}
		}
		t.invoke.ready = true
		t.park()
		req := t.invoke
		if !req.needed {
			req.ready = false
			return
		}

		// The invoker resumed us only to run its request.
		req.ready = false
		tl.suspendMu.Unlock()
		t.vm.executeInvoke(t, req)
		tl.suspendMu.Lock()

		req.needed = false
		req.done = true
		t.suspendCount++
		t.dbgSuspendCount++
		t.suspendPending.Store(true)
		tl.suspendCond.Broadcast()
	}
}

// Frames returns a copy of the call stack, innermost frame last.
func (t *Thread) Frames() []*Frame {
	return append([]*Frame(nil), t.frames...)
}

// Depth returns the number of frames on the call stack.
func (t *Thread) Depth() int {
	return len(t.frames)
}

// Exception returns the exception being delivered, if any.
func (t *Thread) Exception() *Object {
	return t.exception
}

// SetException replaces the pending exception.
func (t *Thread) SetException(exc *Object) {
	t.exception = exc
}

func (t *Thread) pushFrame(f *Frame) {
	t.frames = append(t.frames, f)
}

func (t *Thread) popFrame() {
	t.frames[len(t.frames)-1] = nil
	t.frames = t.frames[:len(t.frames)-1]
}

// addPending protects a new object until the thread stores it somewhere
// the collector can see.
func (t *Thread) addPending(o *Object) {
	t.pending = append(t.pending, o)
}

// clearPending drops the pending-allocation list. Called only at
// interpreted safe points, where every live object is in a register.
func (t *Thread) clearPending() {
	clear(t.pending)
	t.pending = t.pending[:0]
}

// ReleasePending drops the pending-allocation list of a thread that does
// not run interpreted code, once its new objects are rooted elsewhere.
func (t *Thread) ReleasePending() {
	if t.Status() == ThreadRunning {
		t.clearPending()
		return
	}
	old := t.SetStatus(ThreadRunning)
	t.clearPending()
	t.SetStatus(old)
}

// InvokeInProgress reports whether t is running a debugger invoke.
func (t *Thread) InvokeInProgress() bool {
	t.list.suspendMu.Lock()
	defer t.list.suspendMu.Unlock()
	return t.invoke != nil && t.invoke.needed
}

// enumerateRoots reports registers, pending allocations, the pending
// exception, the peer and invoke arguments.
func (t *Thread) enumerateRoots(visit func(*Object)) {
	for _, f := range t.frames {
		for _, r := range f.Regs {
			if r.Ref != nil {
				visit(r.Ref)
			}
		}
		if f.result.Ref != nil {
			visit(f.result.Ref)
		}
	}
	for _, o := range t.pending {
		visit(o)
	}
	visit(t.exception)
	visit(t.posted)
	visit(t.Peer)
	if req := t.invoke; req != nil {
		visit(req.This)
		for _, a := range req.Args {
			visit(a.Ref)
		}
		visit(req.Result.Ref)
		visit(req.Exception)
	}
}

// ---------------------------------------------------------------------------
// ThreadList
// ---------------------------------------------------------------------------

// ThreadList tracks live threads and coordinates suspension. suspendMu
// guards every suspend count and status write; suspendCond is broadcast
// whenever either changes. Lock order is suspendMu before mu.
type ThreadList struct {
	vm *VM

	mu      deadlock.Mutex
	threads []*Thread
	nextID  uint32

	suspendMu   deadlock.Mutex
	suspendCond *sync.Cond
	allCount    int
	dbgAllCount int
}

func newThreadList(vm *VM) *ThreadList {
	tl := &ThreadList{vm: vm, nextID: 1}
	tl.suspendCond = sync.NewCond(&tl.suspendMu)
	return tl
}

// Attach registers a new running thread. A thread attached during a
// suspend-all starts out suspended.
func (tl *ThreadList) Attach(name string) *Thread {
	t := &Thread{Name: name, vm: tl.vm, list: tl}
	t.status.Store(int32(ThreadStarting))

	// Registering under suspendMu keeps a concurrent suspend-all from
	// missing the new thread.
	tl.suspendMu.Lock()
	tl.mu.Lock()
	t.ID = tl.nextID
	tl.nextID++
	tl.threads = append(tl.threads, t)
	tl.mu.Unlock()
	t.suspendCount = tl.allCount
	t.dbgSuspendCount = tl.dbgAllCount
	t.suspendPending.Store(t.suspendCount > 0)
	tl.suspendMu.Unlock()

	t.SetStatus(ThreadRunning)
	log.Debugf("attached %s", t)
	return t
}

// Detach removes t from the list and marks it a zombie.
func (tl *ThreadList) Detach(t *Thread) {
	tl.mu.Lock()
	for i, x := range tl.threads {
		if x == t {
			tl.threads = append(tl.threads[:i], tl.threads[i+1:]...)
			break
		}
	}
	tl.mu.Unlock()

	tl.suspendMu.Lock()
	t.status.Store(int32(ThreadZombie))
	tl.suspendCond.Broadcast()
	tl.suspendMu.Unlock()
	log.Debugf("detached %s", t)
}

// Find returns the live thread with the given id.
func (tl *ThreadList) Find(id uint32) (*Thread, error) {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	for _, t := range tl.threads {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, fmt.Errorf("thread %d: %w", id, ErrThreadNotFound)
}

// FindByPeer returns the thread whose java.lang.Thread instance is peer.
// The list lock is held for the whole walk.
func (tl *ThreadList) FindByPeer(peer *Object) *Thread {
	if peer == nil {
		return nil
	}
	tl.mu.Lock()
	defer tl.mu.Unlock()
	for _, t := range tl.threads {
		if t.Peer == peer {
			return t
		}
	}
	return nil
}

// Each calls fn for every live thread with the list locked.
func (tl *ThreadList) Each(fn func(*Thread)) {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	for _, t := range tl.threads {
		fn(t)
	}
}

// Snapshot returns the live threads.
func (tl *ThreadList) Snapshot() []*Thread {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	return append([]*Thread(nil), tl.threads...)
}

// Len returns the number of live threads.
func (tl *ThreadList) Len() int {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	return len(tl.threads)
}

// ---------------------------------------------------------------------------
// Suspension
// ---------------------------------------------------------------------------

// Suspend increments t's suspend count. The thread parks at its next safe
// point; use WaitUntilSuspended to wait for that.
func (tl *ThreadList) Suspend(t *Thread) {
	tl.suspend(t, false)
}

// SuspendDebug is Suspend on behalf of the debugger.
func (tl *ThreadList) SuspendDebug(t *Thread) {
	tl.suspend(t, true)
}

func (tl *ThreadList) suspend(t *Thread, debug bool) {
	tl.suspendMu.Lock()
	defer tl.suspendMu.Unlock()
	t.suspendCount++
	if debug {
		t.dbgSuspendCount++
	}
	t.suspendPending.Store(true)
	tl.suspendCond.Broadcast()
}

// Resume decrements t's suspend count, waking the thread when it reaches
// zero. Resuming a thread that is not suspended is an error.
func (tl *ThreadList) Resume(t *Thread) error {
	return tl.resume(t, false)
}

// ResumeDebug is Resume on behalf of the debugger.
func (tl *ThreadList) ResumeDebug(t *Thread) error {
	return tl.resume(t, true)
}

func (tl *ThreadList) resume(t *Thread, debug bool) error {
	tl.suspendMu.Lock()
	defer tl.suspendMu.Unlock()
	if t.suspendCount == 0 {
		return fmt.Errorf("%s: %w", t, ErrNotSuspended)
	}
	tl.resumeLocked(t, debug)
	return nil
}

func (tl *ThreadList) resumeLocked(t *Thread, debug bool) {
	if t.suspendCount > 0 {
		t.suspendCount--
	}
	if debug && t.dbgSuspendCount > 0 {
		t.dbgSuspendCount--
	}
	t.suspendPending.Store(t.suspendCount > 0)
	tl.suspendCond.Broadcast()
}

// SuspendAll suspends every thread except self, which may be nil, and
// waits until each one is parked or otherwise safe.
func (tl *ThreadList) SuspendAll(self *Thread) {
	tl.suspendAll(self, false)
}

// SuspendAllDebug is SuspendAll on behalf of the debugger.
func (tl *ThreadList) SuspendAllDebug(self *Thread) {
	tl.suspendAll(self, true)
}

func (tl *ThreadList) suspendAll(self *Thread, debug bool) {
	tl.suspendMu.Lock()
	tl.allCount++
	if debug {
		tl.dbgAllCount++
	}
	threads := tl.Snapshot()
	for _, t := range threads {
		if t == self {
			continue
		}
		t.suspendCount++
		if debug {
			t.dbgSuspendCount++
		}
		t.suspendPending.Store(true)
	}
	tl.suspendCond.Broadcast()
	for _, t := range threads {
		if t == self {
			continue
		}
		for !t.Status().safe() {
			tl.suspendCond.Wait()
		}
	}
	tl.suspendMu.Unlock()
}

// ResumeAll undoes SuspendAll.
func (tl *ThreadList) ResumeAll(self *Thread) {
	tl.resumeAll(self, false)
}

// ResumeAllDebug undoes SuspendAllDebug and event suspensions.
func (tl *ThreadList) ResumeAllDebug(self *Thread) {
	tl.resumeAll(self, true)
}

func (tl *ThreadList) resumeAll(self *Thread, debug bool) {
	tl.suspendMu.Lock()
	defer tl.suspendMu.Unlock()
	threads := tl.Snapshot()
	if tl.allCount > 0 {
		tl.allCount--
	}
	if debug && tl.dbgAllCount > 0 {
		tl.dbgAllCount--
	}
	for _, t := range threads {
		if t == self || t.suspendCount == 0 {
			continue
		}
		tl.resumeLocked(t, debug)
	}
}

// UndoDebugSuspensions clears every debugger-owned suspension, used when
// the debugger disconnects.
func (tl *ThreadList) UndoDebugSuspensions() {
	tl.suspendMu.Lock()
	defer tl.suspendMu.Unlock()
	threads := tl.Snapshot()
	tl.allCount -= tl.dbgAllCount
	tl.dbgAllCount = 0
	for _, t := range threads {
		t.suspendCount -= t.dbgSuspendCount
		t.dbgSuspendCount = 0
		t.suspendPending.Store(t.suspendCount > 0)
	}
	tl.suspendCond.Broadcast()
}

// WaitUntilSuspended blocks until t is parked or in a status where it
// cannot touch the heap, such as Native or VMWait.
func (tl *ThreadList) WaitUntilSuspended(t *Thread) {
	tl.suspendMu.Lock()
	defer tl.suspendMu.Unlock()
	for !t.Status().safe() {
		tl.suspendCond.Wait()
	}
}

// enumerateRoots visits the roots of every live thread.
func (tl *ThreadList) enumerateRoots(visit func(*Object)) {
	for _, t := range tl.Snapshot() {
		t.enumerateRoots(visit)
	}
}
