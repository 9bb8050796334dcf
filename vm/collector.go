package vm

import (
	"sync"
	"sync/atomic"
	"time"
)

// ---------------------------------------------------------------------------
// Collector: background GC trigger
// ---------------------------------------------------------------------------

// Collector periodically checks heap usage and runs a collection when it
// crosses the threshold fraction of the heap limit.
type Collector struct {
	heap      *Heap
	interval  time.Duration
	threshold float64
	enabled   atomic.Bool
	stop      chan struct{}
	stopped   chan struct{}
	mu        sync.Mutex // protects start/stop lifecycle

	runCount  atomic.Uint64
	lastStats atomic.Value // *HeapStats
}

// DefaultGCInterval is the default polling interval of the Collector.
const DefaultGCInterval = 5 * time.Second

// DefaultGCThreshold is the default usage fraction that triggers a
// background collection.
const DefaultGCThreshold = 0.75

// NewCollector creates a Collector for h. Non-positive arguments select
// the defaults.
func NewCollector(h *Heap, interval time.Duration, threshold float64) *Collector {
	if interval <= 0 {
		interval = DefaultGCInterval
	}
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultGCThreshold
	}
	c := &Collector{
		heap:      h,
		interval:  interval,
		threshold: threshold,
	}
	c.enabled.Store(true)
	return c
}

// Start begins the polling goroutine. It is safe to call Start multiple
// times; only one loop will run.
func (c *Collector) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stop != nil {
		return
	}
	c.stop = make(chan struct{})
	c.stopped = make(chan struct{})

	// Capture channels so the goroutine does not read fields Stop nils out.
	stopCh := c.stop
	stoppedCh := c.stopped
	go c.loop(stopCh, stoppedCh)
}

// Stop halts the polling goroutine and waits for it to finish. It is safe
// to call Stop multiple times or on a Collector that was never started.
func (c *Collector) Stop() {
	c.mu.Lock()
	stopCh := c.stop
	stoppedCh := c.stopped
	c.stop = nil
	c.stopped = nil
	c.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
		<-stoppedCh
	}
}

// SetEnabled enables or disables background collections.
func (c *Collector) SetEnabled(enabled bool) {
	c.enabled.Store(enabled)
}

// IsEnabled returns whether background collections are enabled.
func (c *Collector) IsEnabled() bool {
	return c.enabled.Load()
}

// Interval returns the polling interval.
func (c *Collector) Interval() time.Duration {
	return c.interval
}

// Threshold returns the usage fraction that triggers a collection.
func (c *Collector) Threshold() float64 {
	return c.threshold
}

// RunCount returns the number of collections the Collector started.
func (c *Collector) RunCount() uint64 {
	return c.runCount.Load()
}

// LastStats returns the heap statistics after the most recent background
// collection, or nil if none ran yet.
func (c *Collector) LastStats() *HeapStats {
	v := c.lastStats.Load()
	if v == nil {
		return nil
	}
	return v.(*HeapStats)
}

// CollectNow runs a collection regardless of usage.
func (c *Collector) CollectNow(reason string) HeapStats {
	return c.collect(reason)
}

func (c *Collector) loop(stopCh <-chan struct{}, stoppedCh chan struct{}) {
	defer close(stoppedCh)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if c.enabled.Load() {
				c.maybeCollect()
			}
		}
	}
}

// maybeCollect collects when usage is at or above the threshold.
func (c *Collector) maybeCollect() bool {
	if c.heap.Usage() < c.threshold {
		return false
	}
	c.collect("background")
	return true
}

func (c *Collector) collect(reason string) HeapStats {
	s := c.heap.Collect(nil, reason)
	c.runCount.Add(1)
	c.lastStats.Store(&s)
	return s
}
