package graph

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultMailboxCapacity is the ring's default slot count (spec §3).
const DefaultMailboxCapacity = 256

// DefaultVisibilityTimeout is how long a leased envelope stays invisible to
// other leasers before it is reclaimed.
const DefaultVisibilityTimeout = 30 * time.Second

// EnqueueResult reports whether Enqueue displaced an existing envelope.
type EnqueueResult struct {
	Evicted     bool
	EvictedFrom Envelope
}

// RequeueOutcome is the result of Requeue.
type RequeueOutcome int

const (
	// Requeued means the envelope is back to Ready with a bumped retry count.
	Requeued RequeueOutcome = iota
	// DeadLettered means retries were exhausted; the envelope moved to the dead-letter queue.
	DeadLettered
)

// LeaseHandle is returned by Lease on success.
type LeaseHandle struct {
	LeaseID  string
	Envelope Envelope
}

// Mailbox is the bounded, per-vertex ring buffer with lease-based
// visibility, retry bookkeeping, and dead-lettering (spec §4.2).
//
// All operations are linearizable against a per-mailbox mutex: the
// teacher's engine uses lock-free CAS on scalar order/idempotency keys, but
// a multi-field envelope transition (status + retry count + lease id +
// VisibleAfter, all updated together) cannot be CAS'd atomically in Go
// without a wrapper allocation on every update, so a narrow mutex held only
// across the bookkeeping mutation — never across a user callback — is the
// idiomatic equivalent here.
type Mailbox struct {
	mu       sync.Mutex
	cond     *sync.Cond
	ring     []*Envelope
	capacity int
	head     int
	count    int
	nextSeq  uint64
	closed   bool

	vertexID          string
	visibilityTimeout time.Duration
	clock             Clock
	retryPolicy       *RetryPolicy
	dlq               *DeadLetterQueue
}

// NewMailbox constructs a mailbox for vertexID with the given capacity (0
// uses DefaultMailboxCapacity).
func NewMailbox(vertexID string, capacity int, clock Clock, policy *RetryPolicy, dlq *DeadLetterQueue) *Mailbox {
	if capacity <= 0 {
		capacity = DefaultMailboxCapacity
	}
	if clock == nil {
		clock = RealClock{}
	}
	m := &Mailbox{
		ring:              make([]*Envelope, capacity),
		capacity:          capacity,
		vertexID:          vertexID,
		visibilityTimeout: DefaultVisibilityTimeout,
		clock:             clock,
		retryPolicy:       policy,
		dlq:               dlq,
	}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// slotIndex returns the ring index of the i-th logical element (0 = oldest).
func (m *Mailbox) slotIndex(i int) int {
	return (m.head + i) % m.capacity
}

// Enqueue atomically places msg into the next free slot, evicting the
// oldest Ready envelope if the ring is full (newest-wins back pressure,
// spec §4.2 and §9 Open Questions). Never blocks.
func (m *Mailbox) Enqueue(msg Message) EnqueueResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	env := &Envelope{
		Message:      msg,
		Seq:          m.nextSeq,
		Status:       StatusReady,
		VisibleAfter: m.clock.Now(),
	}
	m.nextSeq++

	var result EnqueueResult
	if m.count == m.capacity {
		// Evict the oldest Ready envelope; Leased envelopes are never evicted
		// (spec invariant + testable property 8). Scan from the head.
		evictIdx := -1
		for i := 0; i < m.capacity; i++ {
			idx := m.slotIndex(i)
			if m.ring[idx] != nil && m.ring[idx].Status == StatusReady {
				evictIdx = idx
				break
			}
		}
		if evictIdx == -1 {
			// All slots leased: a leased envelope cannot be dropped, so the
			// newest message is itself dropped (and reported as evicted)
			// rather than violating lease exclusivity.
			result.Evicted = true
			result.EvictedFrom = msgOnlyEnvelope(msg)
			return result
		}
		result.Evicted = true
		result.EvictedFrom = *m.ring[evictIdx]
		m.removeSlot(evictIdx)
	}

	idx := m.slotIndex(m.count)
	m.ring[idx] = env
	m.count++
	m.cond.Signal()
	return result
}

func msgOnlyEnvelope(msg Message) Envelope {
	return Envelope{Message: msg, Status: StatusSuperseded}
}

// removeSlot deletes the envelope at ring index idx and compacts the ring,
// preserving relative FIFO order. Must be called with mu held.
func (m *Mailbox) removeSlot(idx int) {
	// Find logical position of idx relative to head.
	var pos int
	for i := 0; i < m.count; i++ {
		if m.slotIndex(i) == idx {
			pos = i
			break
		}
	}
	for i := pos; i < m.count-1; i++ {
		m.ring[m.slotIndex(i)] = m.ring[m.slotIndex(i+1)]
	}
	m.ring[m.slotIndex(m.count-1)] = nil
	m.count--
}

// reclaimExpired resets leased envelopes whose lease has expired back to
// Ready, or supersedes them into the dead-letter queue if retries are
// exhausted. Must be called with mu held.
func (m *Mailbox) reclaimExpired(now time.Time) {
	for i := 0; i < m.count; i++ {
		idx := m.slotIndex(i)
		env := m.ring[idx]
		if env == nil || env.Status != StatusLeased {
			continue
		}
		if env.LeaseExpiry.After(now) {
			continue
		}
		if m.retryPolicy != nil && env.RetryCount > m.retryPolicy.MaxAttempts {
			env.Status = StatusSuperseded
			if m.dlq != nil {
				m.dlq.Add(m.vertexID, *env, "retries-exhausted", now)
			}
			m.removeSlot(idx)
			i--
			continue
		}
		env.Status = StatusReady
		env.LeaseID = ""
		env.generation++
	}
}

// Lease atomically finds the oldest visible Ready envelope, flips it to
// Leased, and returns it. Blocks up to timeout (0 = block until ctx.Done or
// a message is found); returns ok=false on timeout or context cancellation.
func (m *Mailbox) Lease(ctx context.Context, timeout time.Duration) (LeaseHandle, bool) {
	deadline := time.Time{}
	if timeout > 0 {
		deadline = m.clock.Now().Add(timeout)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for {
		now := m.clock.Now()
		m.reclaimExpired(now)

		for i := 0; i < m.count; i++ {
			idx := m.slotIndex(i)
			env := m.ring[idx]
			if env == nil || env.Status != StatusReady {
				continue
			}
			if env.VisibleAfter.After(now) {
				continue
			}
			env.Status = StatusLeased
			env.LeaseID = uuid.NewString()
			env.LeaseExpiry = now.Add(m.visibilityTimeout)
			env.generation++
			return LeaseHandle{LeaseID: env.LeaseID, Envelope: *env}, true
		}

		if ctx.Err() != nil {
			return LeaseHandle{}, false
		}
		if !deadline.IsZero() && !now.Before(deadline) {
			return LeaseHandle{}, false
		}

		// Wait for a signal (Enqueue/Requeue) or re-poll periodically so
		// lease-expiry reclamation and ctx cancellation still make progress
		// without a waiter. cond.Wait must be called by the goroutine holding
		// mu; a separate timer goroutine only Broadcasts to break it out,
		// never calls Wait itself.
		wait := 50 * time.Millisecond
		if !deadline.IsZero() {
			if remaining := deadline.Sub(now); remaining < wait {
				wait = remaining
			}
		}
		timer := time.AfterFunc(wait, m.cond.Broadcast)
		m.cond.Wait()
		timer.Stop()
	}
}

// Acknowledge marks the envelope holding leaseID Completed and frees its
// slot. Idempotent: a stale or unknown lease id is a no-op.
func (m *Mailbox) Acknowledge(leaseID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < m.count; i++ {
		idx := m.slotIndex(i)
		env := m.ring[idx]
		if env != nil && env.Status == StatusLeased && env.LeaseID == leaseID {
			env.Status = StatusCompleted
			m.removeSlot(idx)
			return
		}
	}
}

// Requeue increments the envelope's retry count. If the new count exceeds
// the policy maximum, it is superseded and dead-lettered; otherwise it is
// reset to Ready with VisibleAfter = now + backoff(retryCount).
func (m *Mailbox) Requeue(leaseID string, reason string) RequeueOutcome {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	for i := 0; i < m.count; i++ {
		idx := m.slotIndex(i)
		env := m.ring[idx]
		if env == nil || env.Status != StatusLeased || env.LeaseID != leaseID {
			continue
		}
		env.RetryCount++
		env.LeaseID = ""
		env.generation++

		maxAttempts := 0
		if m.retryPolicy != nil {
			maxAttempts = m.retryPolicy.MaxAttempts
		}
		if maxAttempts > 0 && env.RetryCount > maxAttempts {
			env.Status = StatusSuperseded
			if m.dlq != nil {
				m.dlq.Add(m.vertexID, *env, reason, now)
			}
			m.removeSlot(idx)
			return DeadLettered
		}

		delay := time.Duration(0)
		if m.retryPolicy != nil {
			delay = m.retryPolicy.Backoff(env.RetryCount, nil)
		}
		env.Status = StatusReady
		env.VisibleAfter = now.Add(delay)
		m.cond.Signal()
		return Requeued
	}
	return Requeued
}

// Drain marks every Ready envelope Superseded and clears the mailbox; used
// on workflow cancellation.
func (m *Mailbox) Drain() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock.Now()
	for m.count > 0 {
		idx := m.slotIndex(0)
		env := m.ring[idx]
		if env.Status == StatusReady {
			env.Status = StatusSuperseded
			if m.dlq != nil {
				m.dlq.Add(m.vertexID, *env, "drained", now)
			}
		}
		m.removeSlot(idx)
	}
	m.closed = true
	m.cond.Broadcast()
}

// PendingCount reports the number of non-terminal (Ready or Leased)
// envelopes currently held, used by the completion detector.
func (m *Mailbox) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for i := 0; i < m.count; i++ {
		env := m.ring[m.slotIndex(i)]
		if env != nil && (env.Status == StatusReady || env.Status == StatusLeased) {
			n++
		}
	}
	return n
}
