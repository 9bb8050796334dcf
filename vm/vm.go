package vm

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/sasha-s/go-deadlock"

	"github.com/chazu/dexvm/dex"
	"github.com/chazu/dexvm/dexcache"
)

// ---------------------------------------------------------------------------
// VM: the runtime
// ---------------------------------------------------------------------------

// Config holds runtime settings.
type Config struct {
	// HeapLimit caps accounted heap bytes; zero means unlimited.
	HeapLimit     int64
	MaxFrameDepth int
	GCInterval    time.Duration
	GCThreshold   float64

	// Stdout receives console output from Print natives.
	Stdout io.Writer

	// Cache, when set, remembers verification outcomes by digest.
	Cache *dexcache.Cache
}

// DefaultConfig returns the settings used when none are given.
func DefaultConfig() Config {
	return Config{
		HeapLimit:     64 << 20,
		MaxFrameDepth: DefaultMaxFrameDepth,
		GCInterval:    DefaultGCInterval,
		GCThreshold:   DefaultGCThreshold,
		Stdout:        os.Stdout,
	}
}

// VM is one runtime instance.
type VM struct {
	Config Config

	Classes   *ClassTable
	Heap      *Heap
	Threads   *ThreadList
	Natives   *NativeRegistry
	Collector *Collector
	Profiler  *Profiler

	debugHooks atomic.Value // hooksBox
	maxDepth   int

	internMu deadlock.Mutex
	interned map[string]*Object

	// oom is thrown when the heap cannot even hold an exception.
	oom      *Object
	groups   threadGroups
	main     *Thread
	shutdown atomic.Bool
}

// New creates and bootstraps a VM with a main thread attached.
func New(cfg Config) (*VM, error) {
	if cfg.MaxFrameDepth <= 0 {
		cfg.MaxFrameDepth = DefaultMaxFrameDepth
	}
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}
	vm := &VM{
		Config:   cfg,
		Natives:  NewNativeRegistry(),
		maxDepth: cfg.MaxFrameDepth,
		interned: make(map[string]*Object),
	}
	vm.SetDebugHooks(nil)
	vm.Classes = newClassTable(vm)
	vm.Heap = newHeap(vm, cfg.HeapLimit)
	vm.Threads = newThreadList(vm)
	vm.Collector = NewCollector(vm.Heap, cfg.GCInterval, cfg.GCThreshold)
	vm.Profiler = NewProfiler()
	vm.Profiler.OnHot = func(m *Method, count uint64) {
		log.Infof("%s is hot after %d invocations", m.Key(), count)
	}

	vm.Heap.AddRoots("threads", vm.Threads.enumerateRoots)
	vm.Heap.AddRoots("classes", vm.Classes.enumerateRoots)
	vm.Heap.AddRoots("intern", vm.enumerateInterned)
	vm.Heap.AddRoots("vm", func(visit func(*Object)) {
		visit(vm.oom)
		visit(vm.groups.system)
		visit(vm.groups.main)
	})

	vm.registerBuiltins()
	if err := vm.bootstrap(); err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	main, err := vm.AttachThread("main")
	if err != nil {
		return nil, err
	}
	vm.main = main
	log.Infof("vm ready: %d classes, heap limit %d", len(vm.Classes.Classes()), cfg.HeapLimit)
	return vm, nil
}

// MainThread returns the thread attached by New.
func (vm *VM) MainThread() *Thread {
	return vm.main
}

// ---------------------------------------------------------------------------
// Containers
// ---------------------------------------------------------------------------

// AddDexFile makes the classes of a verified container loadable.
func (vm *VM) AddDexFile(f *dex.File) {
	vm.Classes.AddDexFile(f)
}

// LoadFile reads, verifies and adds the container at path. With a cache
// configured, a container that failed before is rejected without
// verifying again, and one that passed skips cross-verification.
func (vm *VM) LoadFile(path string) (*dex.File, error) {
	data, err := dex.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cache := vm.Config.Cache
	var (
		digest string
		opts   []dex.VerifyOption
		hit    bool
	)
	if cache != nil {
		digest = dexcache.Digest(data)
		e, ok, err := cache.Lookup(digest)
		switch {
		case err != nil:
			log.Warningf("verification cache: %s", err)
		case ok && !e.Verified:
			return nil, fmt.Errorf("%s: %w: %s", path, dexcache.ErrRejected, e.Error)
		case ok:
			hit = true
			opts = append(opts, dex.SkipCrossVerify())
		}
	}

	f, verr := dex.Verify(data, opts...)
	if cache != nil && !hit {
		e := dexcache.Entry{Verified: verr == nil}
		if verr != nil {
			e.Error = verr.Error()
		} else {
			e.Classes = len(f.ClassDefs)
		}
		if err := cache.Record(digest, e); err != nil {
			log.Warningf("verification cache: %s", err)
		}
	}
	if verr != nil {
		return nil, fmt.Errorf("%s: %w", path, verr)
	}
	vm.AddDexFile(f)
	log.Infof("loaded %s: %d classes", path, len(f.ClassDefs))
	return f, nil
}

// ---------------------------------------------------------------------------
// Threads
// ---------------------------------------------------------------------------

// AttachThread creates a VM thread with a java.lang.Thread peer. The
// thread starts in ThreadNative status; Invoke switches it to Running
// while interpreted code executes.
func (vm *VM) AttachThread(name string) (*Thread, error) {
	t := vm.Threads.Attach(name)
	t.SetStatus(ThreadNative)

	c, err := vm.Classes.FindClass(descThread)
	if err != nil {
		vm.Threads.Detach(t)
		return nil, err
	}
	peer, err := vm.Heap.Alloc(t, c)
	if err != nil {
		vm.Threads.Detach(t)
		return nil, err
	}
	peer.Peer = t
	t.Peer = peer
	t.clearPending()

	vm.hooks().PostThreadStart(t)
	return t, nil
}

// DetachThread posts thread death and removes t.
func (vm *VM) DetachThread(t *Thread) {
	vm.hooks().PostThreadDeath(t)
	vm.Threads.Detach(t)
	log.Debugf("detached %s", t)
}

// ---------------------------------------------------------------------------
// Strings and class objects
// ---------------------------------------------------------------------------

// Intern returns the canonical String instance for s.
func (vm *VM) Intern(t *Thread, s string) (*Object, error) {
	vm.internMu.Lock()
	o := vm.interned[s]
	vm.internMu.Unlock()
	if o != nil {
		return o, nil
	}

	// Allocation may collect, so it runs without the intern lock.
	o, err := vm.Heap.AllocString(t, s)
	if err != nil {
		return nil, err
	}
	vm.internMu.Lock()
	defer vm.internMu.Unlock()
	if prev := vm.interned[s]; prev != nil {
		return prev, nil
	}
	vm.interned[s] = o
	return o, nil
}

func (vm *VM) enumerateInterned(visit func(*Object)) {
	vm.internMu.Lock()
	defer vm.internMu.Unlock()
	for _, o := range vm.interned {
		visit(o)
	}
}

// NewString allocates a String that is not interned.
func (vm *VM) NewString(t *Thread, s string) (*Object, error) {
	return vm.Heap.AllocString(t, s)
}

// ClassObject returns the java.lang.Class instance for c, creating it on
// first use.
func (vm *VM) ClassObject(t *Thread, c *Class) (*Object, error) {
	if m := c.mirror.Load(); m != nil {
		return m, nil
	}
	cls, err := vm.Classes.FindClass("Ljava/lang/Class;")
	if err != nil {
		return nil, err
	}
	o, err := vm.Heap.Alloc(t, cls)
	if err != nil {
		return nil, err
	}
	o.Mirror = c
	if !c.mirror.CompareAndSwap(nil, o) {
		return c.mirror.Load(), nil
	}
	return o, nil
}

// ---------------------------------------------------------------------------
// Running programs
// ---------------------------------------------------------------------------

// Run calls mainClass.main(String[]) on the main thread. An uncaught
// exception is returned as a *ThrowError.
func (vm *VM) Run(mainClass string, args []string) error {
	t := vm.main
	c, err := vm.Classes.FindClass(mainClass)
	if err != nil {
		return err
	}
	m := c.FindDirect("main", "([Ljava/lang/String;)V")
	if m == nil || !m.IsStatic() {
		return fmt.Errorf("%s.main([Ljava/lang/String;)V: %w", mainClass, ErrNoSuchMethod)
	}

	arrClass, err := vm.Classes.FindClass("[Ljava/lang/String;")
	if err != nil {
		return err
	}
	arr, err := vm.Heap.AllocArray(t, arrClass, len(args))
	if err != nil {
		return err
	}
	for i, a := range args {
		s, err := vm.NewString(t, a)
		if err != nil {
			return err
		}
		arr.Refs[i] = s
	}

	log.Infof("running %s", m.Key())
	start := time.Now()
	_, err = vm.Invoke(t, m, nil, []Value{RefValue(arr)}, false)
	log.Infof("%s finished in %s", m.Key(), time.Since(start))
	return err
}

// Shutdown stops the background collector and detaches the main thread.
// Later Invoke calls fail with ErrShutdown.
func (vm *VM) Shutdown() {
	if !vm.shutdown.CompareAndSwap(false, true) {
		return
	}
	vm.Collector.Stop()
	vm.DetachThread(vm.main)
	log.Infof("vm shut down")
}

// IsShutdown reports whether Shutdown has been called.
func (vm *VM) IsShutdown() bool {
	return vm.shutdown.Load()
}
