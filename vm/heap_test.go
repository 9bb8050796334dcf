package vm

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/chazu/dexvm/dex"
)

func TestHeapCollectFreesUnreachable(t *testing.T) {
	vm, _ := newTestVM(t, DefaultConfig())
	th := vm.MainThread()
	obj := mustClass(t, vm, descObject)

	kept, err := vm.Heap.Alloc(th, obj)
	if err != nil {
		t.Fatal(err)
	}
	garbage, err := vm.Heap.Alloc(th, obj)
	if err != nil {
		t.Fatal(err)
	}
	th.clearPending()
	vm.Heap.AddRoots("test", func(visit func(*Object)) { visit(kept) })

	before := vm.Heap.Stats()
	s := vm.Heap.Collect(th, "test")
	if s.Cycles != before.Cycles+1 {
		t.Errorf("Cycles = %d, want %d", s.Cycles, before.Cycles+1)
	}
	if s.LastFreed < 1 || s.LastReason != "test" {
		t.Errorf("stats = %+v", s)
	}
	if !vm.Heap.Contains(kept) {
		t.Error("rooted object was collected")
	}
	if vm.Heap.Contains(garbage) {
		t.Error("unreachable object survived")
	}

	vm.Heap.RemoveRoots("test")
	vm.Heap.Collect(th, "test")
	if vm.Heap.Contains(kept) {
		t.Error("object survived after its root source was removed")
	}
}

func TestHeapPendingAllocationsSurvive(t *testing.T) {
	vm, _ := newTestVM(t, DefaultConfig())
	th := vm.MainThread()
	o, err := vm.Heap.Alloc(th, mustClass(t, vm, descObject))
	if err != nil {
		t.Fatal(err)
	}
	vm.Heap.Collect(th, "pending")
	if !vm.Heap.Contains(o) {
		t.Fatal("pending allocation was collected")
	}
	th.clearPending()
	vm.Heap.Collect(th, "cleared")
	if vm.Heap.Contains(o) {
		t.Error("allocation survived after the pending list was cleared")
	}
}

func TestHeapTracesReferences(t *testing.T) {
	vm, _ := newTestVM(t, DefaultConfig())
	th := vm.MainThread()
	arr, err := vm.Heap.AllocArray(th, mustClass(t, vm, "[Ljava/lang/Object;"), 2)
	if err != nil {
		t.Fatal(err)
	}
	child, _ := vm.Heap.Alloc(th, mustClass(t, vm, descObject))
	s, _ := vm.NewString(th, "leaf")
	arr.Refs[0] = child
	arr.Refs[1] = s
	th.clearPending()

	vm.Heap.AddRoots("array", func(visit func(*Object)) { visit(arr) })
	vm.Heap.Collect(th, "trace")
	for _, o := range []*Object{arr, child, s} {
		if !vm.Heap.Contains(o) {
			t.Errorf("%s reachable from a root was collected", o.Class.Descriptor)
		}
	}
}

func TestHeapStaticsAndInternedStringsAreRoots(t *testing.T) {
	holder := &dex.ClassSpec{
		Descriptor:   "LHolder;",
		AccessFlags:  dex.AccPublic,
		Superclass:   descObject,
		StaticFields: []dex.FieldSpec{{Name: "ref", Type: descObject, AccessFlags: dex.AccStatic}},
	}
	vm, _ := newTestVM(t, DefaultConfig(), holder)
	th := vm.MainThread()
	c := mustClass(t, vm, "LHolder;")
	o, _ := vm.Heap.Alloc(th, mustClass(t, vm, descObject))
	c.SetStatic(c.FindField("ref", descObject, true), RefValue(o))
	s, err := vm.Intern(th, "constant")
	if err != nil {
		t.Fatal(err)
	}
	th.clearPending()

	vm.Heap.Collect(th, "roots")
	if !vm.Heap.Contains(o) {
		t.Error("object held by a static field was collected")
	}
	if !vm.Heap.Contains(s) {
		t.Error("interned string was collected")
	}
	if again, _ := vm.Intern(th, "constant"); again != s {
		t.Error("Intern returned a different instance")
	}
}

func TestHeapExhaustion(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HeapLimit = 4096
	vm, _ := newTestVM(t, cfg)
	th := vm.MainThread()

	_, err := vm.Heap.AllocArray(th, mustClass(t, vm, "[I"), 2048)
	if !errors.Is(err, ErrOutOfMemory) {
		t.Fatalf("AllocArray error = %v, want ErrOutOfMemory", err)
	}
	if vm.Heap.Stats().Cycles == 0 {
		t.Error("exhaustion did not trigger a collection first")
	}
	if _, err := vm.Heap.AllocArray(th, mustClass(t, vm, "[I"), 16); err != nil {
		t.Errorf("small allocation failed: %v", err)
	}
}

func TestHeapExhaustionThrowsOutOfMemoryError(t *testing.T) {
	main := mainClass(2, func(a *dex.Assembler, ix *dex.Index) {
		a.Op31i(dex.OpConst, 0, 1<<20)
		a.Op22c(dex.OpNewArray, 0, 0, ix.Type("[J"))
		a.Op10x(dex.OpReturnVoid)
	})
	cfg := DefaultConfig()
	cfg.HeapLimit = 1 << 16
	vm, _ := newTestVM(t, cfg, main)
	exc, ok := AsThrow(vm.Run("LMain;", nil))
	if !ok || exc.Class.Descriptor != "Ljava/lang/OutOfMemoryError;" {
		t.Fatalf("want OutOfMemoryError, got %v", exc)
	}
}

func TestHeapFreeListReuse(t *testing.T) {
	vm, _ := newTestVM(t, DefaultConfig())
	buf := vm.Heap.take(100)
	if len(buf) != 100 || cap(buf) != sizeClass(100) {
		t.Fatalf("take(100) len %d cap %d", len(buf), cap(buf))
	}
	buf[0] = 0xff
	vm.Heap.give(buf)
	again := vm.Heap.take(90)
	if cap(again) != cap(buf) || again[0] != 0 {
		t.Errorf("reused buffer cap %d first byte %#x; want cap %d zeroed", cap(again), again[0], cap(buf))
	}
}

func TestHeapStatsString(t *testing.T) {
	s := HeapStats{Objects: 12345, Bytes: 3 << 20, Limit: 64 << 20, Cycles: 2, LastFreed: 1000, LastBytes: 2048}
	got := s.String()
	for _, want := range []string{"12,345 objects", "3.0 MiB", "64 MiB", "2 collections", "2.0 KiB"} {
		if !strings.Contains(got, want) {
			t.Errorf("String() = %q, missing %q", got, want)
		}
	}
}

func TestCollectorThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HeapLimit = 1 << 12
	vm, _ := newTestVM(t, cfg)
	c := NewCollector(vm.Heap, time.Hour, 0.5)

	if c.maybeCollect() {
		t.Fatal("collected below threshold")
	}
	th := vm.MainThread()
	if _, err := vm.Heap.AllocArray(th, mustClass(t, vm, "[B"), 3000); err != nil {
		t.Fatal(err)
	}
	if !c.maybeCollect() {
		t.Fatal("did not collect above threshold")
	}
	if c.RunCount() != 1 || c.LastStats() == nil {
		t.Errorf("RunCount = %d, LastStats = %v", c.RunCount(), c.LastStats())
	}
}

func TestCollectorStartStop(t *testing.T) {
	vm, _ := newTestVM(t, DefaultConfig())
	c := NewCollector(vm.Heap, 10*time.Millisecond, 0)
	if c.Threshold() != DefaultGCThreshold {
		t.Errorf("Threshold = %v, want default", c.Threshold())
	}
	c.Start()
	c.Start()
	c.Stop()
	c.Stop()
	if s := c.CollectNow("manual"); s.LastReason != "manual" {
		t.Errorf("LastReason = %q", s.LastReason)
	}
}
