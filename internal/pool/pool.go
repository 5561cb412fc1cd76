// Package pool implements the bounded object-reuse contract from spec
// §4.A: a fixed-ceiling free list with leak detection, used to keep Trade
// and Position allocation off the hot per-tick path.
package pool

import (
	"log"
	"sync"
)

// Resettable is implemented by pool-managed record types so release can
// scrub stale fields before the object returns to the free list.
type Resettable interface {
	Reset()
}

// Stats mirrors the instrumentation spec §4.A requires: totals for
// acquired, released, reused, created, and discarded objects, plus the
// count of untracked emergency allocations made once the pool was full.
type Stats struct {
	Name      string
	MaxSize   int
	Created   int
	Available int
	InUse     int
	Acquired  int64
	Released  int64
	Reused    int64
	Discarded int64
	Emergency int64
}

// ReleaseEfficiency is released/acquired, the health signal spec §4.A
// defines.
func (s Stats) ReleaseEfficiency() float64 {
	if s.Acquired == 0 {
		return 1
	}
	return float64(s.Released) / float64(s.Acquired)
}

// Usage is the fraction of maxSize currently allocated (created).
func (s Stats) Usage() float64 {
	if s.MaxSize == 0 {
		return 0
	}
	return float64(s.Created) / float64(s.MaxSize)
}

// Health thresholds from spec §4.A: unhealthy when release efficiency
// drops below 0.8 or usage climbs above 0.9.
const (
	WarnUsage      = 0.8
	UnhealthyUsage = 0.9
	CriticalUsage  = 0.95
	MinEfficiency  = 0.8
)

// Health is the healthCheck() result.
type Health struct {
	Healthy    bool
	Reason     string
	Efficiency float64
	Usage      float64
}

func (s Stats) Health() Health {
	eff := s.ReleaseEfficiency()
	usage := s.Usage()
	if eff < MinEfficiency {
		return Health{Healthy: false, Reason: "release efficiency below threshold", Efficiency: eff, Usage: usage}
	}
	if usage > UnhealthyUsage {
		return Health{Healthy: false, Reason: "usage above threshold", Efficiency: eff, Usage: usage}
	}
	return Health{Healthy: true, Efficiency: eff, Usage: usage}
}

// Pool is a generic, mutex-guarded bounded free list for pointer-typed
// records that implement Resettable.
type Pool[T Resettable] struct {
	mu      sync.Mutex
	name    string
	maxSize int
	newFn   func() T

	available []T
	inUse     []T // insertion order, oldest first

	acquired  int64
	released  int64
	reused    int64
	created   int
	discarded int64
	emergency int64
}

// New builds a pool with the given ceiling and constructor, prefilling
// prefill free objects up front (spec §4.A default capacities: Trade 2000
// prefill 200, Position 1000 prefill 100, PriceUpdate 500 prefill 50).
func New[T Resettable](name string, maxSize, prefill int, newFn func() T) *Pool[T] {
	p := &Pool[T]{name: name, maxSize: maxSize, newFn: newFn}
	for i := 0; i < prefill && i < maxSize; i++ {
		p.available = append(p.available, newFn())
		p.created++
	}
	return p
}

// Acquire returns a pooled object, preferring reuse over allocation.
//
// Order of attempts (spec §4.A): pop the free list; else allocate new if
// under the ceiling; else force-release up to 10% of capacity from the
// oldest held objects back to the free list and, since the ceiling is
// still reached, allocate an untracked emergency object for this call and
// log a leak warning. Later calls reuse the reclaimed objects.
func (p *Pool[T]) Acquire() T {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.acquired++

	if n := len(p.available); n > 0 {
		obj := p.available[n-1]
		p.available = p.available[:n-1]
		p.inUse = append(p.inUse, obj)
		p.reused++
		return obj
	}

	if p.created < p.maxSize {
		obj := p.newFn()
		p.created++
		p.inUse = append(p.inUse, obj)
		return obj
	}

	p.forceCleanupLocked()

	p.emergency++
	log.Printf("pool %q: at capacity (%d), allocating untracked emergency object (leak suspected)", p.name, p.maxSize)
	return p.newFn()
}

// forceCleanupLocked reclaims up to 10% of capacity from the oldest held
// objects when the pool is exhausted. Caller must hold p.mu.
func (p *Pool[T]) forceCleanupLocked() {
	n := p.maxSize / 10
	if n < 1 {
		n = 1
	}
	if n > len(p.inUse) {
		n = len(p.inUse)
	}
	if n == 0 {
		return
	}
	reclaimed := p.inUse[:n]
	p.inUse = p.inUse[n:]
	for _, obj := range reclaimed {
		obj.Reset()
		p.available = append(p.available, obj)
	}
}

// Release idempotently returns obj to the free list after scrubbing it
// via Reset. When the free list would exceed maxSize, the object is
// discarded instead and the live-object count decremented.
func (p *Pool[T]) Release(obj T) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, free := range p.available {
		if any(free) == any(obj) {
			return
		}
	}
	p.released++

	for i, held := range p.inUse {
		if any(held) == any(obj) {
			p.inUse = append(p.inUse[:i], p.inUse[i+1:]...)
			break
		}
	}

	if len(p.available) >= p.maxSize {
		p.discarded++
		p.created--
		return
	}

	obj.Reset()
	p.available = append(p.available, obj)
}

// Clear empties the free list and forgets every held object, resetting
// the live-object count to zero.
func (p *Pool[T]) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.available = nil
	p.inUse = nil
	p.created = 0
}

// ReleaseAll force-releases every currently held object back to the free
// list (used by PoolMonitor's critical-threshold emergency path).
func (p *Pool[T]) ReleaseAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, obj := range p.inUse {
		obj.Reset()
		p.available = append(p.available, obj)
	}
	p.inUse = nil
}

// Resize changes the ceiling. If newMax is below the current live-object
// count, excess free objects are discarded down to the new ceiling.
func (p *Pool[T]) Resize(newMax int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.maxSize = newMax
	for p.created > p.maxSize && len(p.available) > 0 {
		p.available = p.available[:len(p.available)-1]
		p.created--
		p.discarded++
	}
}

// Stats returns a snapshot of the pool's instrumentation.
func (p *Pool[T]) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Name:      p.name,
		MaxSize:   p.maxSize,
		Created:   p.created,
		Available: len(p.available),
		InUse:     len(p.inUse),
		Acquired:  p.acquired,
		Released:  p.released,
		Reused:    p.reused,
		Discarded: p.discarded,
		Emergency: p.emergency,
	}
}

// HealthCheck returns the pool's current health classification.
func (p *Pool[T]) HealthCheck() Health {
	return p.Stats().Health()
}

// Name returns the pool's label, used by PoolMonitor for reporting.
func (p *Pool[T]) Name() string { return p.name }
