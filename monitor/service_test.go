package monitor

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"connectrpc.com/connect"

	"github.com/chazu/dexvm/vm"
)

func newTestMonitor(t *testing.T) (*vm.VM, *Client) {
	t.Helper()
	v, err := vm.New(vm.DefaultConfig())
	if err != nil {
		t.Fatalf("vm.New failed: %v", err)
	}
	t.Cleanup(v.Shutdown)
	w := NewWorker(v)
	t.Cleanup(w.Stop)
	srv := httptest.NewServer(NewServer(w).Handler())
	t.Cleanup(srv.Close)
	return v, NewClient(srv.Client(), srv.URL+"/")
}

func TestHeap(t *testing.T) {
	_, c := newTestMonitor(t)
	ctx := context.Background()

	a, err := c.Heap(ctx)
	if err != nil {
		t.Fatalf("Heap: %v", err)
	}
	if a.Objects < 1 {
		t.Errorf("Objects = %d, want the preallocated error at least", a.Objects)
	}
	if a.Limit <= 0 || a.Summary == "" {
		t.Errorf("response = %+v", a)
	}
	b, err := c.Heap(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if a.SnapshotID == "" || a.SnapshotID == b.SnapshotID {
		t.Errorf("snapshot ids %q and %q should be distinct", a.SnapshotID, b.SnapshotID)
	}
}

func TestCollect(t *testing.T) {
	v, c := newTestMonitor(t)
	v.Collector.SetEnabled(false)
	th := v.MainThread()
	for i := 0; i < 10; i++ {
		if _, err := v.NewString(th, "garbage"); err != nil {
			t.Fatal(err)
		}
	}
	th.ReleasePending()
	before := v.Heap.Stats()

	res, err := c.Collect(context.Background(), "")
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if res.Heap.Cycles <= before.Cycles {
		t.Errorf("Cycles = %d, want more than %d", res.Heap.Cycles, before.Cycles)
	}
	if res.Heap.LastReason != "monitor" {
		t.Errorf("LastReason = %q, want monitor", res.Heap.LastReason)
	}
	if res.FreedObjects < 10 {
		t.Errorf("FreedObjects = %d, want at least 10", res.FreedObjects)
	}

	res, err = c.Collect(context.Background(), "manual")
	if err != nil {
		t.Fatal(err)
	}
	if res.Heap.LastReason != "manual" {
		t.Errorf("LastReason = %q, want manual", res.Heap.LastReason)
	}
}

func TestThreads(t *testing.T) {
	v, c := newTestMonitor(t)
	worker, err := v.AttachThread("worker")
	if err != nil {
		t.Fatal(err)
	}
	defer v.DetachThread(worker)

	res, err := c.Threads(context.Background())
	if err != nil {
		t.Fatalf("Threads: %v", err)
	}
	if len(res.Threads) < 2 {
		t.Fatalf("got %d threads, want at least 2", len(res.Threads))
	}
	names := map[string]ThreadInfo{}
	for i, ti := range res.Threads {
		if i > 0 && res.Threads[i-1].ID >= ti.ID {
			t.Errorf("threads out of order: %d before %d", res.Threads[i-1].ID, ti.ID)
		}
		names[ti.Name] = ti
	}
	w, ok := names["worker"]
	if !ok {
		t.Fatalf("worker thread missing from %+v", res.Threads)
	}
	if w.Status != vm.ThreadNative.String() || w.Top != "" {
		t.Errorf("worker = %+v", w)
	}
}

func TestClasses(t *testing.T) {
	_, c := newTestMonitor(t)
	ctx := context.Background()

	res, err := c.Classes(ctx, "Ljava/lang/")
	if err != nil {
		t.Fatalf("Classes: %v", err)
	}
	var object *ClassInfo
	for i := range res.Classes {
		if res.Classes[i].Descriptor == "Ljava/lang/Object;" {
			object = &res.Classes[i]
		}
		if i > 0 && res.Classes[i-1].Descriptor > res.Classes[i].Descriptor {
			t.Errorf("classes out of order at %s", res.Classes[i].Descriptor)
		}
	}
	if object == nil {
		t.Fatalf("Object missing from %+v", res.Classes)
	}
	if object.Super != "" || object.Methods == 0 {
		t.Errorf("Object = %+v", *object)
	}

	all, err := c.Classes(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all.Classes) < len(res.Classes) {
		t.Errorf("unfiltered list has %d classes, filtered has %d", len(all.Classes), len(res.Classes))
	}

	_, err = c.Classes(ctx, "java/lang")
	if connect.CodeOf(err) != connect.CodeInvalidArgument {
		t.Errorf("bad prefix: code %v, err %v", connect.CodeOf(err), err)
	}
}

func TestWorkerStopped(t *testing.T) {
	v, err := vm.New(vm.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer v.Shutdown()
	w := NewWorker(v)
	if w.VM() != v {
		t.Error("VM() returned a different runtime")
	}
	w.Stop()
	if _, err := w.Do(func(*vm.VM) any { return nil }); !errors.Is(err, ErrStopped) {
		t.Errorf("Do after Stop = %v, want ErrStopped", err)
	}
}

func TestWorkerRecoversPanic(t *testing.T) {
	v, err := vm.New(vm.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer v.Shutdown()
	w := NewWorker(v)
	defer w.Stop()

	if _, err := w.Do(func(*vm.VM) any { panic("boom") }); err == nil {
		t.Fatal("panic was not reported")
	}
	got, err := w.Do(func(*vm.VM) any { return 7 })
	if err != nil || got != 7 {
		t.Errorf("Do after panic = %v, %v", got, err)
	}
}

func TestServeShutsDownOnCancel(t *testing.T) {
	v, err := vm.New(vm.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer v.Shutdown()
	w := NewWorker(v)
	defer w.Stop()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewServer(w).Serve(ctx, ln) }()

	c := NewClient(http.DefaultClient, "http://"+ln.Addr().String())
	if _, err := c.Heap(context.Background()); err != nil {
		t.Fatalf("Heap: %v", err)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestProfile(t *testing.T) {
	v, c := newTestMonitor(t)
	obj, err := v.Classes.FindClass("Ljava/lang/Object;")
	if err != nil {
		t.Fatal(err)
	}
	ctor := obj.FindDirect("<init>", "()V")
	if ctor == nil {
		t.Fatal("Object.<init> missing")
	}
	th := v.MainThread()
	o, err := v.Heap.Alloc(th, obj)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if _, err := v.Invoke(th, ctor, o, nil, false); err != nil {
			t.Fatalf("Invoke: %v", err)
		}
	}

	res, err := c.Profile(context.Background(), 1)
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if len(res.Methods) != 1 {
		t.Fatalf("got %d methods, want 1", len(res.Methods))
	}
	if res.Methods[0].Method != ctor.Key() || res.Methods[0].Invocations != 3 {
		t.Errorf("top method = %+v", res.Methods[0])
	}
	if res.Invocations < 3 || res.TotalMethods < 1 {
		t.Errorf("response = %+v", res)
	}
}
