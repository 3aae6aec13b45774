package graph

import (
	"container/heap"
	"context"
	"sync"
	"sync/atomic"
)

// gateWaiter is one blocked Acquire call, ordered by (Priority desc, seq asc)
// so ties resolve FIFO within a priority class — the same tie-break the
// teacher's workHeap gives OrderKey, but here Priority is author-declared
// rather than hash-derived, since admission order (not replay determinism)
// is what this gate needs to guarantee.
type gateWaiter struct {
	priority Priority
	seq      uint64
	ready    chan struct{}
}

type waiterHeap []*gateWaiter

func (h waiterHeap) Len() int { return len(h) }
func (h waiterHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}
func (h waiterHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *waiterHeap) Push(x interface{}) { *h = append(*h, x.(*gateWaiter)) }
func (h *waiterHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[0 : n-1]
	return item
}

// PriorityGate is a counting semaphore that admits the highest-priority
// waiter first, FIFO within a priority class. The engine holds one
// workflow-wide gate plus one gate per (kind, name) pair whose descriptor
// sets MaxConcurrentExecutions (spec §5).
type PriorityGate struct {
	mu      sync.Mutex
	waiters waiterHeap
	nextSeq uint64

	limit     int32
	inUse     atomic.Int32
	peak      atomic.Int32
	admitted  atomic.Int64
}

// NewPriorityGate constructs a gate with the given concurrency limit. limit
// <= 0 means unbounded (Acquire always succeeds immediately).
func NewPriorityGate(limit int) *PriorityGate {
	g := &PriorityGate{limit: int32(limit)}
	heap.Init(&g.waiters)
	return g
}

// Acquire blocks until a slot is available at the given priority or ctx is
// cancelled. Returns false on cancellation.
func (g *PriorityGate) Acquire(ctx context.Context, priority Priority) bool {
	if g.limit <= 0 {
		g.admitted.Add(1)
		return true
	}

	g.mu.Lock()
	if g.inUse.Load() < g.limit && g.waiters.Len() == 0 {
		g.inUse.Add(1)
		g.bumpPeak()
		g.mu.Unlock()
		g.admitted.Add(1)
		return true
	}

	w := &gateWaiter{priority: priority, seq: g.nextSeq, ready: make(chan struct{})}
	g.nextSeq++
	heap.Push(&g.waiters, w)
	g.mu.Unlock()

	select {
	case <-w.ready:
		g.admitted.Add(1)
		return true
	case <-ctx.Done():
		g.mu.Lock()
		defer g.mu.Unlock()
		select {
		case <-w.ready:
			// Raced with admission; honor it and release immediately rather
			// than leaking a slot.
			go g.Release()
			return false
		default:
		}
		g.removeWaiter(w)
		return false
	}
}

func (g *PriorityGate) removeWaiter(target *gateWaiter) {
	for i, w := range g.waiters {
		if w == target {
			heap.Remove(&g.waiters, i)
			return
		}
	}
}

func (g *PriorityGate) bumpPeak() {
	for {
		cur := g.inUse.Load()
		peak := g.peak.Load()
		if cur <= peak {
			return
		}
		if g.peak.CompareAndSwap(peak, cur) {
			return
		}
	}
}

// Release frees one slot, admitting the highest-priority waiter if any.
func (g *PriorityGate) Release() {
	if g.limit <= 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.waiters.Len() > 0 {
		w := heap.Pop(&g.waiters).(*gateWaiter)
		close(w.ready)
		return
	}
	g.inUse.Add(-1)
}

// GateMetrics is a point-in-time snapshot for Prometheus export.
type GateMetrics struct {
	InUse    int32
	Peak     int32
	Waiting  int
	Admitted int64
}

// Metrics returns a snapshot of the gate's current state.
func (g *PriorityGate) Metrics() GateMetrics {
	g.mu.Lock()
	waiting := g.waiters.Len()
	g.mu.Unlock()
	return GateMetrics{
		InUse:    g.inUse.Load(),
		Peak:     g.peak.Load(),
		Waiting:  waiting,
		Admitted: g.admitted.Load(),
	}
}
