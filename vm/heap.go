package vm

import (
	"fmt"
	"math/bits"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sasha-s/go-deadlock"
)

// ---------------------------------------------------------------------------
// Heap
// ---------------------------------------------------------------------------

// RootEnumerator reports GC roots by calling visit for each one. Nil
// references may be passed and are ignored.
type RootEnumerator func(visit func(*Object))

// objectOverhead is the fixed accounting cost of every object.
const objectOverhead = 16

// maxFreePerClass bounds each free list.
const maxFreePerClass = 256

type rootSource struct {
	name string
	fn   RootEnumerator
}

// Heap is a non-moving heap collected by stop-the-world mark-sweep.
type Heap struct {
	vm *VM

	// gcMu serializes collections.
	gcMu deadlock.Mutex

	mu       deadlock.Mutex
	objects  []*Object
	bytes    int64
	limit    int64
	free     map[int][][]byte
	roots    []rootSource
	nextHash uint32
	stats    HeapStats
}

// HeapStats is a snapshot of heap usage and collector history.
type HeapStats struct {
	Objects    int
	Bytes      int64
	Limit      int64
	Cycles     uint64
	Freed      uint64
	LastFreed  int
	LastBytes  int64
	LastPause  time.Duration
	LastReason string
}

func (s HeapStats) String() string {
	limit := "unlimited"
	if s.Limit > 0 {
		limit = humanize.IBytes(uint64(s.Limit))
	}
	return fmt.Sprintf("%s objects, %s of %s, %d collections, last freed %s objects (%s) in %s",
		humanize.Comma(int64(s.Objects)), humanize.IBytes(uint64(s.Bytes)), limit,
		s.Cycles, humanize.Comma(int64(s.LastFreed)), humanize.IBytes(uint64(s.LastBytes)), s.LastPause)
}

func newHeap(vm *VM, limit int64) *Heap {
	return &Heap{
		vm:    vm,
		limit: limit,
		free:  make(map[int][][]byte),
	}
}

// AddRoots registers a named root source consulted by every collection.
func (h *Heap) AddRoots(name string, fn RootEnumerator) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, r := range h.roots {
		if r.name == name {
			h.roots[i].fn = fn
			return
		}
	}
	h.roots = append(h.roots, rootSource{name: name, fn: fn})
}

// RemoveRoots unregisters a root source.
func (h *Heap) RemoveRoots(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, r := range h.roots {
		if r.name == name {
			h.roots = append(h.roots[:i], h.roots[i+1:]...)
			return
		}
	}
}

// Stats returns a snapshot of heap statistics.
func (h *Heap) Stats() HeapStats {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := h.stats
	s.Objects = len(h.objects)
	s.Bytes = h.bytes
	s.Limit = h.limit
	return s
}

// Usage returns the fraction of the limit in use, or 0 without a limit.
func (h *Heap) Usage() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.limit <= 0 {
		return 0
	}
	return float64(h.bytes) / float64(h.limit)
}

// ---------------------------------------------------------------------------
// Allocation
// ---------------------------------------------------------------------------

// Alloc returns a zeroed instance of c.
func (h *Heap) Alloc(t *Thread, c *Class) (*Object, error) {
	size := objectOverhead + c.PrimSize + c.RefCount*8
	return h.allocate(t, size, func() *Object {
		o := &Object{Class: c, Prims: h.take(c.PrimSize)}
		if c.RefCount > 0 {
			o.Refs = make([]*Object, c.RefCount)
		}
		return o
	})
}

// AllocArray returns a zeroed array of class c with n elements. The
// caller rejects negative lengths.
func (h *Heap) AllocArray(t *Thread, c *Class, n int) (*Object, error) {
	if n < 0 {
		return nil, fmt.Errorf("negative array length %d", n)
	}
	elem := c.Descriptor[1:]
	if isRef(elem) {
		return h.allocate(t, objectOverhead+n*8, func() *Object {
			return &Object{Class: c, Refs: make([]*Object, n), Length: n}
		})
	}
	w := primWidth(elem)
	return h.allocate(t, objectOverhead+n*w, func() *Object {
		return &Object{Class: c, Prims: h.take(n * w), Length: n}
	})
}

// AllocString returns a new java.lang.String holding s.
func (h *Heap) AllocString(t *Thread, s string) (*Object, error) {
	c, err := h.vm.Classes.FindClass("Ljava/lang/String;")
	if err != nil {
		return nil, err
	}
	return h.allocate(t, objectOverhead+len(s)*2, func() *Object {
		return &Object{Class: c, Str: s}
	})
}

func (h *Heap) allocate(t *Thread, size int, build func() *Object) (*Object, error) {
	// A thread outside the interpreter counts as safe for the collector,
	// so it must become Running for the duration of the allocation.
	if t != nil {
		if t.Status() != ThreadRunning {
			old := t.SetStatus(ThreadRunning)
			defer t.SetStatus(old)
		} else {
			t.SafePoint()
		}
	}
	h.mu.Lock()
	if h.limit > 0 && h.bytes+int64(size) > h.limit {
		h.mu.Unlock()
		h.Collect(t, "alloc")
		h.mu.Lock()
		if h.bytes+int64(size) > h.limit {
			h.mu.Unlock()
			log.Warningf("allocation of %s failed with %s in use", humanize.IBytes(uint64(size)), humanize.IBytes(uint64(h.bytes)))
			return nil, ErrOutOfMemory
		}
	}
	o := build()
	o.size = size
	h.nextHash++
	o.hash = (h.nextHash * 2654435761) >> 1
	h.objects = append(h.objects, o)
	h.bytes += int64(size)
	h.mu.Unlock()

	if t != nil {
		t.addPending(o)
	}
	return o, nil
}

// sizeClass rounds n up to the next power of two, minimum 16.
func sizeClass(n int) int {
	if n <= 16 {
		return 16
	}
	return 1 << bits.Len(uint(n-1))
}

// take returns a zeroed buffer of n bytes. h.mu is held.
func (h *Heap) take(n int) []byte {
	if n == 0 {
		return nil
	}
	cls := sizeClass(n)
	if list := h.free[cls]; len(list) > 0 {
		buf := list[len(list)-1]
		h.free[cls] = list[:len(list)-1]
		buf = buf[:n]
		clear(buf)
		return buf
	}
	return make([]byte, n, cls)
}

// give returns a buffer to its free list. h.mu is held.
func (h *Heap) give(buf []byte) {
	c := cap(buf)
	if c == 0 || c != sizeClass(c) {
		return
	}
	if list := h.free[c]; len(list) < maxFreePerClass {
		h.free[c] = append(list, buf[:0])
	}
}

// ---------------------------------------------------------------------------
// Collection
// ---------------------------------------------------------------------------

// Collect runs a full collection. t is the calling thread, or nil when
// the collector runs outside any VM thread. Every other thread is
// suspended for the mark and sweep.
func (h *Heap) Collect(t *Thread, reason string) HeapStats {
	if t != nil {
		old := t.SetStatus(ThreadVMWait)
		h.gcMu.Lock()
		t.SetStatus(old)
	} else {
		h.gcMu.Lock()
	}
	defer h.gcMu.Unlock()

	threads := h.vm.Threads
	threads.SuspendAll(t)
	defer threads.ResumeAll(t)

	start := time.Now()
	h.mu.Lock()
	roots := append([]rootSource(nil), h.roots...)
	h.mu.Unlock()

	var stack []*Object
	visit := func(o *Object) {
		if o != nil && !o.marked {
			o.marked = true
			stack = append(stack, o)
		}
	}
	for _, r := range roots {
		r.fn(visit)
	}

	h.mu.Lock()
	for len(stack) > 0 {
		o := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		o.children(visit)
	}

	live := h.objects[:0]
	freed, freedBytes := 0, int64(0)
	for _, o := range h.objects {
		if o.marked {
			o.marked = false
			live = append(live, o)
			continue
		}
		freed++
		freedBytes += int64(o.size)
		h.give(o.Prims)
		o.Prims, o.Refs = nil, nil
	}
	clear(h.objects[len(live):])
	h.objects = live
	h.bytes -= freedBytes

	pause := time.Since(start)
	h.stats.Cycles++
	h.stats.Freed += uint64(freed)
	h.stats.LastFreed = freed
	h.stats.LastBytes = freedBytes
	h.stats.LastPause = pause
	h.stats.LastReason = reason
	s := h.stats
	s.Objects = len(h.objects)
	s.Bytes = h.bytes
	s.Limit = h.limit
	h.mu.Unlock()

	log.Infof("GC (%s): freed %s objects (%s), %s in use, paused %s",
		reason, humanize.Comma(int64(freed)), humanize.IBytes(uint64(freedBytes)),
		humanize.IBytes(uint64(s.Bytes)), pause)
	return s
}

// Contains reports whether o is a live heap object. It is linear in the
// heap size and meant for tests and diagnostics.
func (h *Heap) Contains(o *Object) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, x := range h.objects {
		if x == o {
			return true
		}
	}
	return false
}
