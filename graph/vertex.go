package graph

import "context"

// VertexKind discriminates the built-in vertex behaviors the engine knows
// how to orchestrate (spec §4.1). User task vertices carry arbitrary opaque
// logic; the rest are control-flow primitives with fixed semantics.
type VertexKind string

const (
	KindTask      VertexKind = "Task"
	KindLLM       VertexKind = "LLM"
	KindHTTPTask  VertexKind = "HTTPTask"
	KindBranch    VertexKind = "Branch"
	KindSwitch    VertexKind = "Switch"
	KindForeach   VertexKind = "Foreach"
	KindWhileLoop VertexKind = "WhileLoop"
	KindSubflow   VertexKind = "Subflow"
	KindContainer VertexKind = "Container"
	KindTrigger   VertexKind = "Trigger"
)

// Priority orders admission into the concurrency gate. Higher values run
// first; ties break FIFO by enqueue sequence (spec §5).
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
)

// Outcome is what a vertex's Execute call decided: either a chosen outgoing
// port (control-flow vertices) or none, meaning "whatever edges match this
// completion with no port filter" (ordinary task vertices).
type Outcome struct {
	Port string
	// More signals that a Foreach/WhileLoop vertex wants to be re-entered
	// rather than finished; the engine calls Execute again in place,
	// bypassing the mailbox/router entirely, until More is false.
	More bool
}

// VertexDescriptor is the static, graph-authored configuration for one
// vertex: identity plus whatever the concrete Vertex implementation needs
// out of the config bag (interpreted at construction time, never at
// Execute time, per SPEC_FULL's typing-at-the-boundary rule).
type VertexDescriptor struct {
	ID       string   `json:"id" yaml:"id"`
	Kind     VertexKind `json:"kind" yaml:"kind"`
	Name     string   `json:"name,omitempty" yaml:"name,omitempty"`
	Priority Priority `json:"priority,omitempty" yaml:"priority,omitempty"`

	// Config is the raw, author-supplied settings for this vertex (e.g. a
	// guard expression, a loop body subflow id, an HTTP template). Concrete
	// Vertex implementations type-assert out of it in Initialize.
	Config Bag `json:"config,omitempty" yaml:"config,omitempty"`

	Retry   *RetryPolicy          `json:"retry,omitempty" yaml:"retry,omitempty"`
	Breaker *CircuitBreakerPolicy `json:"breaker,omitempty" yaml:"breaker,omitempty"`
	Timeout int                   `json:"timeout,omitempty" yaml:"timeout,omitempty"` // seconds; 0 means the graph's DefaultTimeoutSeconds, or else the engine default, applies

	MailboxCapacity int `json:"mailboxCapacity,omitempty" yaml:"mailboxCapacity,omitempty"` // 0 means DefaultMailboxCapacity

	// MaxConcurrentExecutions bounds concurrent admissions across every
	// vertex sharing this descriptor's (Kind, Name) pair, via a gate layered
	// on top of the workflow-wide one (spec §4.4 step 3, §4.5). 0 means no
	// per-kind cap.
	MaxConcurrentExecutions int `json:"maxConcurrentExecutions,omitempty" yaml:"maxConcurrentExecutions,omitempty"`

	// FallbackVertexID, if set, is the vertex this one's work is redirected
	// to when its circuit breaker is Open (spec §4.4: "route to the fallback
	// vertex id if configured; otherwise produce a Fail event").
	FallbackVertexID string `json:"fallbackVertexId,omitempty" yaml:"fallbackVertexId,omitempty"`
}

// Vertex is the contract every unit of work in a graph implements (spec
// §4.1). Initialize runs once at graph-load time; Execute runs once per
// admitted message and must be safe to retry (at-least-once semantics).
type Vertex interface {
	// Initialize validates and captures descriptor.Config. Returning an
	// error fails graph validation before any workflow run starts.
	Initialize(descriptor VertexDescriptor) error

	// Execute consumes the incoming bag plus the shared workflow-global bag,
	// runs the vertex's work, and returns the bag to merge into Output plus
	// an Outcome describing how to route onward. ctx carries the run's
	// hierarchical cancellation token (spec §4.5); implementations doing
	// blocking I/O must respect it.
	Execute(ctx context.Context, global Bag, input Bag) (Bag, Outcome, error)
}

// Factory constructs a Vertex instance for a given VertexKind. Concrete
// packages (graph/vertex/llm, graph/vertex/httptask, and the built-in
// control-flow kinds) register themselves through a Factory implementation
// supplied to the engine at construction time (spec §6 external interfaces).
type Factory interface {
	New(kind VertexKind) (Vertex, error)
}
