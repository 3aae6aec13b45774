// Package emit provides event emission and observability for graph execution.
package emit

import "context"

// Emitter receives observability events from workflow execution.
//
// Implementations must not block workflow execution and must not panic;
// errors should be logged internally rather than surfaced to the caller.
type Emitter interface {
	// Emit sends a single event to the configured backend.
	Emit(event Event)

	// EmitBatch sends multiple events in one call, preserving order.
	EmitBatch(ctx context.Context, events []Event) error

	// Flush blocks until all buffered events are delivered or ctx expires.
	Flush(ctx context.Context) error
}

// Broadcaster fans events out to multiple Emitters. Emit, EmitBatch and
// Flush call each target in turn on the caller's goroutine, so a slow
// target delays the targets after it and the caller; events are neither
// buffered nor dropped.
type Broadcaster struct {
	targets []Emitter
}

// NewBroadcaster constructs a Broadcaster over targets.
func NewBroadcaster(targets ...Emitter) *Broadcaster {
	return &Broadcaster{targets: targets}
}

func (b *Broadcaster) Emit(event Event) {
	for _, t := range b.targets {
		t.Emit(event)
	}
}

func (b *Broadcaster) EmitBatch(ctx context.Context, events []Event) error {
	var firstErr error
	for _, t := range b.targets {
		if err := t.EmitBatch(ctx, events); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (b *Broadcaster) Flush(ctx context.Context) error {
	var firstErr error
	for _, t := range b.targets {
		if err := t.Flush(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
