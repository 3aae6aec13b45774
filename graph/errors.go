// Package graph provides the core workflow execution engine: per-vertex
// mailboxes, a router that translates vertex completion/failure into
// mailbox enqueues, and an engine that drives every reachable vertex to a
// terminal state.
package graph

import "errors"

// Sentinel errors returned by graph validation, the mailbox, and the engine.
var (
	// ErrDuplicateVertexID indicates two vertex descriptors share an id.
	ErrDuplicateVertexID = errors.New("graph: duplicate vertex id")

	// ErrUnknownEndpoint indicates an edge references a vertex id that does not exist.
	ErrUnknownEndpoint = errors.New("graph: edge references unknown vertex")

	// ErrCycleDetected indicates a cycle exists among enabled, non-compensation edges.
	ErrCycleDetected = errors.New("graph: cycle detected among non-compensation edges")

	// ErrNoEntryVertex indicates no vertex qualifies as an entry point and none was named explicitly.
	ErrNoEntryVertex = errors.New("graph: no entry vertex found")

	// ErrUnknownEntryVertex indicates the explicit EntryVertexID does not name a registered vertex.
	ErrUnknownEntryVertex = errors.New("graph: explicit entry vertex id not found")

	// ErrMissingConfig indicates a vertex's kind-specific configuration failed validation.
	ErrMissingConfig = errors.New("graph: missing or invalid vertex configuration")

	// ErrUnknownVertexKind indicates the factory has no builder registered for a kind.
	ErrUnknownVertexKind = errors.New("graph: unknown vertex kind")

	// ErrMailboxClosed indicates an operation was attempted on a drained/torn-down mailbox.
	ErrMailboxClosed = errors.New("graph: mailbox closed")

	// ErrLeaseNotFound indicates Acknowledge/Requeue was called with a stale or unknown lease id.
	ErrLeaseNotFound = errors.New("graph: lease not found")

	// ErrMaxRecursionDepth indicates a subflow exceeded its configured inclusion depth.
	ErrMaxRecursionDepth = errors.New("graph: maximum recursion depth exceeded")

	// ErrMaxIterationsExceeded indicates a while-loop reached its MaxIterations cap; this is a Fail.
	ErrMaxIterationsExceeded = errors.New("graph: while-loop max iterations exceeded")

	// ErrCircuitOpen is the synthetic failure raised when a vertex kind's breaker is Open
	// and no fallback vertex is configured.
	ErrCircuitOpen = errors.New("graph: circuit open")

	// ErrRetriesExhausted marks an envelope superseded after exceeding its retry policy.
	ErrRetriesExhausted = errors.New("graph: retries exhausted")

	// ErrNotFound is returned by CheckpointStore implementations for an absent run/checkpoint.
	ErrNotFound = errors.New("graph: not found")
)

// EngineError is a structured, machine-inspectable error produced by the
// engine and its validation pass. Code is a short discriminator suitable
// for programmatic dispatch; Cause, when present, is the underlying error.
type EngineError struct {
	Message string
	Code    string
	Cause   error
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap supports errors.Is/errors.As against Cause.
func (e *EngineError) Unwrap() error {
	return e.Cause
}

// ErrorDescriptor is the structured error payload carried on a Fail message.
// Kind is matched against RetryPolicy.RetryOn/DoNotRetryOn discriminators.
type ErrorDescriptor struct {
	Kind    string
	Message string
	Cause   error
}

func (d *ErrorDescriptor) Error() string {
	if d == nil {
		return ""
	}
	return d.Kind + ": " + d.Message
}
