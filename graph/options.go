package graph

import "time"

// Option configures an Engine at construction time.
//
// Functional options keep New's signature stable as configuration grows:
//
//	engine, err := graph.New(
//	    graph.WithEvaluator(eval.NewJQEvaluator()),
//	    graph.WithCheckpointStore(store.NewMemStore()),
//	    graph.WithMaxConcurrency(16),
//	)
type Option func(*engineConfig) error

// engineConfig collects options before New validates and applies them.
type engineConfig struct {
	evaluator       ExpressionEvaluator
	store           CheckpointStore
	emitter         Emitter
	clock           Clock
	metrics         *PrometheusMetrics
	factory         Factory

	maxConcurrency        int
	defaultVertexTimeout  time.Duration
	runWallClockBudget    time.Duration
	allowPause            bool
	defaultRetryPolicy    *RetryPolicy
	breakerPolicies       map[VertexKind]*CircuitBreakerPolicy
	checkpointEvery       time.Duration
}

func defaultEngineConfig() *engineConfig {
	return &engineConfig{
		clock:                RealClock{},
		maxConcurrency:       8,
		defaultVertexTimeout: 30 * time.Second,
		runWallClockBudget:   10 * time.Minute,
		allowPause:           true,
		breakerPolicies:      make(map[VertexKind]*CircuitBreakerPolicy),
		checkpointEvery:      5 * time.Second,
	}
}

// WithEvaluator supplies the ExpressionEvaluator used for edge guards and
// control-flow vertex conditions. Required; New returns an error if omitted.
func WithEvaluator(e ExpressionEvaluator) Option {
	return func(cfg *engineConfig) error {
		cfg.evaluator = e
		return nil
	}
}

// WithCheckpointStore supplies durable storage for workflow snapshots.
// Required; New returns an error if omitted.
func WithCheckpointStore(s CheckpointStore) Option {
	return func(cfg *engineConfig) error {
		cfg.store = s
		return nil
	}
}

// WithEmitter registers the event sink for lifecycle notifications. If
// omitted, events are dropped (NullEmitter semantics).
func WithEmitter(e Emitter) Option {
	return func(cfg *engineConfig) error {
		cfg.emitter = e
		return nil
	}
}

// WithFactory supplies the Vertex constructor for every kind named in a
// graph. Required; New returns an error if omitted.
func WithFactory(f Factory) Option {
	return func(cfg *engineConfig) error {
		cfg.factory = f
		return nil
	}
}

// WithClock overrides the engine's time source, primarily for deterministic
// tests via NewManualClock.
func WithClock(c Clock) Option {
	return func(cfg *engineConfig) error {
		cfg.clock = c
		return nil
	}
}

// WithMaxConcurrency bounds the workflow-wide number of vertex instances
// executing at once. Per-vertex-kind limits, if any, are tighter still.
//
// Default: 8.
func WithMaxConcurrency(n int) Option {
	return func(cfg *engineConfig) error {
		if n < 0 {
			return &EngineError{Message: "max concurrency must be >= 0", Code: "InvalidOption"}
		}
		cfg.maxConcurrency = n
		return nil
	}
}

// WithDefaultVertexTimeout sets the per-call timeout applied to any vertex
// that doesn't declare its own Timeout.
//
// Default: 30s.
func WithDefaultVertexTimeout(d time.Duration) Option {
	return func(cfg *engineConfig) error {
		cfg.defaultVertexTimeout = d
		return nil
	}
}

// WithRunWallClockBudget caps total wall-clock time for one workflow run.
// Zero disables the cap.
//
// Default: 10m.
func WithRunWallClockBudget(d time.Duration) Option {
	return func(cfg *engineConfig) error {
		cfg.runWallClockBudget = d
		return nil
	}
}

// WithAllowPause toggles whether Pause/Resume are accepted for runs on this
// engine. Disabling it lets Cancel still work while rejecting Pause.
//
// Default: true.
func WithAllowPause(allow bool) Option {
	return func(cfg *engineConfig) error {
		cfg.allowPause = allow
		return nil
	}
}

// WithDefaultRetryPolicy sets the retry policy applied to vertices that
// don't declare their own.
func WithDefaultRetryPolicy(p *RetryPolicy) Option {
	return func(cfg *engineConfig) error {
		if err := p.Validate(); err != nil {
			return err
		}
		cfg.defaultRetryPolicy = p
		return nil
	}
}

// WithBreakerPolicy registers a circuit breaker policy for a vertex kind.
func WithBreakerPolicy(kind VertexKind, p *CircuitBreakerPolicy) Option {
	return func(cfg *engineConfig) error {
		cfg.breakerPolicies[kind] = p
		return nil
	}
}

// WithMetrics enables Prometheus metrics collection, exporting gate
// occupancy, mailbox depth, retry counts, and dead-letter totals.
func WithMetrics(m *PrometheusMetrics) Option {
	return func(cfg *engineConfig) error {
		cfg.metrics = m
		return nil
	}
}

// WithCheckpointInterval sets how often a running workflow's Snapshot is
// persisted to the CheckpointStore, independent of pause/cancel.
//
// Default: 5s.
func WithCheckpointInterval(d time.Duration) Option {
	return func(cfg *engineConfig) error {
		cfg.checkpointEvery = d
		return nil
	}
}
