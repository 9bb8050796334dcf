package vm

import (
	"cmp"
	"sync"
	"sync/atomic"

	"golang.org/x/exp/slices"
)

// DefaultHotThreshold is the invocation count at which a method is
// reported hot.
const DefaultHotThreshold = 1000

// MethodProfile holds profiling data for a single method.
type MethodProfile struct {
	Invocations atomic.Uint64
	hot         atomic.Bool
}

// Hot reports whether the method has crossed the threshold.
func (p *MethodProfile) Hot() bool { return p.hot.Load() }

// Profiler counts method invocations. Natives are counted like
// interpreted methods.
type Profiler struct {
	profiles sync.Map // *Method -> *MethodProfile

	// HotThreshold is read on every invocation; set it before running
	// code.
	HotThreshold uint64

	// OnHot, when set, is called once per method as it becomes hot.
	OnHot func(m *Method, count uint64)

	hotCount atomic.Uint64
}

// NewProfiler creates a profiler with the default threshold.
func NewProfiler() *Profiler {
	return &Profiler{HotThreshold: DefaultHotThreshold}
}

// RecordInvocation counts one call of m and reports whether it made m
// hot.
func (p *Profiler) RecordInvocation(m *Method) bool {
	if m == nil {
		return false
	}
	val, ok := p.profiles.Load(m)
	if !ok {
		val, _ = p.profiles.LoadOrStore(m, &MethodProfile{})
	}
	profile := val.(*MethodProfile)
	count := profile.Invocations.Add(1)

	if count < p.HotThreshold || !profile.hot.CompareAndSwap(false, true) {
		return false
	}
	p.hotCount.Add(1)
	if p.OnHot != nil {
		p.OnHot(m, count)
	}
	return true
}

// Profile returns the profile for m, or nil if it was never invoked.
func (p *Profiler) Profile(m *Method) *MethodProfile {
	if val, ok := p.profiles.Load(m); ok {
		return val.(*MethodProfile)
	}
	return nil
}

// ProfilerStats holds aggregate profiling statistics.
type ProfilerStats struct {
	Methods     int
	HotMethods  int
	Invocations uint64
}

// Stats returns aggregate profiling statistics.
func (p *Profiler) Stats() ProfilerStats {
	var stats ProfilerStats
	p.profiles.Range(func(_, value any) bool {
		profile := value.(*MethodProfile)
		stats.Methods++
		stats.Invocations += profile.Invocations.Load()
		if profile.Hot() {
			stats.HotMethods++
		}
		return true
	})
	return stats
}

// MethodCount pairs a method with its invocation count.
type MethodCount struct {
	Method *Method
	Count  uint64
	Hot    bool
}

// TopMethods returns the n most frequently invoked methods, most
// invoked first. Ties are broken by method key. n <= 0 returns all.
func (p *Profiler) TopMethods(n int) []MethodCount {
	var all []MethodCount
	p.profiles.Range(func(key, value any) bool {
		profile := value.(*MethodProfile)
		all = append(all, MethodCount{
			Method: key.(*Method),
			Count:  profile.Invocations.Load(),
			Hot:    profile.Hot(),
		})
		return true
	})
	slices.SortFunc(all, func(x, y MethodCount) int {
		if c := cmp.Compare(y.Count, x.Count); c != 0 {
			return c
		}
		return cmp.Compare(x.Method.Key(), y.Method.Key())
	})
	if n > 0 && n < len(all) {
		all = all[:n]
	}
	return all
}

// Reset clears all profiling data.
func (p *Profiler) Reset() {
	p.profiles.Range(func(key, _ any) bool {
		p.profiles.Delete(key)
		return true
	})
	p.hotCount.Store(0)
}
