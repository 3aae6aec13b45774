package graph

import (
	"sync"
	"time"
)

// DeadLetterEntry records an envelope that exhausted retries or was dropped
// by the router due to a guard evaluation failure. Append-only from the
// mailbox/router side, read-only from observers (spec §5).
type DeadLetterEntry struct {
	VertexID  string
	Envelope  Envelope
	Reason    string
	Timestamp time.Time
}

// DeadLetterQueue is the shared sink for superseded envelopes and
// guard-evaluation failures across an entire workflow instance.
type DeadLetterQueue struct {
	mu      sync.Mutex
	entries []DeadLetterEntry
}

// NewDeadLetterQueue constructs an empty queue.
func NewDeadLetterQueue() *DeadLetterQueue {
	return &DeadLetterQueue{}
}

// Add appends an entry, stamping it with the given clock.
func (q *DeadLetterQueue) Add(vertexID string, env Envelope, reason string, now time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append(q.entries, DeadLetterEntry{
		VertexID:  vertexID,
		Envelope:  env,
		Reason:    reason,
		Timestamp: now,
	})
}

// Entries returns a snapshot copy of all recorded entries.
func (q *DeadLetterQueue) Entries() []DeadLetterEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]DeadLetterEntry, len(q.entries))
	copy(out, q.entries)
	return out
}

// Len reports the number of entries currently recorded.
func (q *DeadLetterQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}
