package vm

import (
	"errors"
	"testing"
	"time"
)

func TestSuspendCountsNest(t *testing.T) {
	vm, _ := newTestVM(t, DefaultConfig())
	th, err := vm.AttachThread("worker")
	if err != nil {
		t.Fatal(err)
	}
	defer vm.DetachThread(th)

	tl := vm.Threads
	tl.Suspend(th)
	tl.SuspendDebug(th)
	if th.SuspendCount() != 2 || th.DebugSuspendCount() != 1 {
		t.Fatalf("counts = %d/%d, want 2/1", th.SuspendCount(), th.DebugSuspendCount())
	}
	if err := tl.Resume(th); err != nil {
		t.Fatal(err)
	}
	if th.SuspendCount() != 1 {
		t.Errorf("SuspendCount = %d after one resume, want 1", th.SuspendCount())
	}
	if err := tl.ResumeDebug(th); err != nil {
		t.Fatal(err)
	}
	if th.SuspendCount() != 0 || th.DebugSuspendCount() != 0 {
		t.Errorf("counts = %d/%d, want 0/0", th.SuspendCount(), th.DebugSuspendCount())
	}
	if err := tl.Resume(th); !errors.Is(err, ErrNotSuspended) {
		t.Errorf("Resume of running thread = %v, want ErrNotSuspended", err)
	}
}

func TestSetStatusRunningBlocksWhileSuspended(t *testing.T) {
	vm, _ := newTestVM(t, DefaultConfig())
	th, err := vm.AttachThread("worker")
	if err != nil {
		t.Fatal(err)
	}
	defer vm.DetachThread(th)

	vm.Threads.Suspend(th)
	entered := make(chan struct{})
	go func() {
		old := th.SetStatus(ThreadRunning)
		close(entered)
		th.SetStatus(old)
	}()

	select {
	case <-entered:
		t.Fatal("thread entered Running while suspended")
	case <-time.After(50 * time.Millisecond):
	}
	if err := vm.Threads.Resume(th); err != nil {
		t.Fatal(err)
	}
	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("thread did not run after resume")
	}
}

func TestSuspendAllWaitsForSafePoint(t *testing.T) {
	vm, _ := newTestVM(t, DefaultConfig())
	th, err := vm.AttachThread("worker")
	if err != nil {
		t.Fatal(err)
	}
	defer vm.DetachThread(th)

	running := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		old := th.SetStatus(ThreadRunning)
		close(running)
		<-release
		th.SafePoint()
		th.SetStatus(old)
	}()
	<-running

	suspended := make(chan struct{})
	go func() {
		vm.Threads.SuspendAll(nil)
		close(suspended)
	}()
	select {
	case <-suspended:
		t.Fatal("SuspendAll returned while a thread was running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-suspended:
	case <-time.After(5 * time.Second):
		t.Fatal("SuspendAll did not complete after the safe point")
	}
	if th.Status() != ThreadSuspended {
		t.Errorf("status = %s, want suspended", th.Status())
	}
	vm.Threads.ResumeAll(nil)
	<-done
}

func TestAttachDuringSuspendAll(t *testing.T) {
	vm, _ := newTestVM(t, DefaultConfig())
	vm.Threads.SuspendAll(vm.MainThread())

	attached := make(chan *Thread)
	go func() { attached <- vm.Threads.Attach("late") }()
	select {
	case <-attached:
		t.Fatal("thread attached during SuspendAll started running")
	case <-time.After(50 * time.Millisecond):
	}

	vm.Threads.ResumeAll(vm.MainThread())
	select {
	case th := <-attached:
		if th.SuspendCount() != 0 {
			t.Errorf("SuspendCount after ResumeAll = %d", th.SuspendCount())
		}
		vm.Threads.Detach(th)
	case <-time.After(5 * time.Second):
		t.Fatal("late thread did not start after ResumeAll")
	}
}

func TestAttachRacingSuspendAll(t *testing.T) {
	vm, _ := newTestVM(t, DefaultConfig())
	main := vm.MainThread()

	for i := 0; i < 200; i++ {
		attached := make(chan *Thread, 1)
		go func() {
			th := vm.Threads.Attach("racer")
			th.SetStatus(ThreadNative)
			attached <- th
		}()

		vm.Threads.SuspendAll(main)
		for _, th := range vm.Threads.Snapshot() {
			if th == main {
				continue
			}
			if n := th.SuspendCount(); n != 1 {
				t.Fatalf("iteration %d: %s has suspend count %d during SuspendAll", i, th, n)
			}
			if th.Status() == ThreadRunning {
				t.Fatalf("iteration %d: %s running during SuspendAll", i, th)
			}
		}
		vm.Threads.ResumeAll(main)

		select {
		case th := <-attached:
			if n := th.SuspendCount(); n != 0 {
				t.Errorf("iteration %d: suspend count %d after ResumeAll", i, n)
			}
			vm.Threads.Detach(th)
		case <-time.After(5 * time.Second):
			t.Fatalf("iteration %d: attach did not finish after ResumeAll", i)
		}
	}
}

func TestUndoDebugSuspensions(t *testing.T) {
	vm, _ := newTestVM(t, DefaultConfig())
	th, _ := vm.AttachThread("worker")
	defer vm.DetachThread(th)

	vm.Threads.Suspend(th)
	vm.Threads.SuspendAllDebug(nil)
	vm.Threads.SuspendDebug(th)
	if th.SuspendCount() != 3 {
		t.Fatalf("SuspendCount = %d, want 3", th.SuspendCount())
	}
	vm.Threads.UndoDebugSuspensions()
	if th.SuspendCount() != 1 || th.DebugSuspendCount() != 0 {
		t.Errorf("counts = %d/%d, want 1/0", th.SuspendCount(), th.DebugSuspendCount())
	}
	vm.Threads.Resume(th)
}

func TestThreadLookup(t *testing.T) {
	vm, _ := newTestVM(t, DefaultConfig())
	th, err := vm.AttachThread("worker")
	if err != nil {
		t.Fatal(err)
	}
	if th.Status() != ThreadNative {
		t.Errorf("attached thread status = %s, want native", th.Status())
	}
	if got, err := vm.Threads.Find(th.ID); err != nil || got != th {
		t.Errorf("Find(%d) = %v, %v", th.ID, got, err)
	}
	if got := vm.Threads.FindByPeer(th.Peer); got != th {
		t.Errorf("FindByPeer = %v", got)
	}
	if vm.Threads.Len() != 2 {
		t.Errorf("Len = %d, want 2", vm.Threads.Len())
	}

	vm.DetachThread(th)
	if th.Status() != ThreadZombie {
		t.Errorf("detached status = %s", th.Status())
	}
	if _, err := vm.Threads.Find(th.ID); !errors.Is(err, ErrThreadNotFound) {
		t.Errorf("Find after detach = %v", err)
	}
	if vm.Threads.FindByPeer(nil) != nil {
		t.Error("FindByPeer(nil) found a thread")
	}
}

func TestThreadStatusString(t *testing.T) {
	tests := []struct {
		s    ThreadStatus
		want string
	}{
		{ThreadRunning, "running"},
		{ThreadVMWait, "vm-wait"},
		{ThreadZombie, "zombie"},
		{ThreadStatus(42), "status(42)"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", int32(tt.s), got, tt.want)
		}
	}
}
