package graph

import (
	"github.com/sony/gobreaker"
)

// BreakerRegistry holds one circuit breaker per vertex kind, matching the
// spec's "breaker scoped to vertex kind, not to individual vertex" model
// (spec §4.5). Built on github.com/sony/gobreaker rather than a hand-rolled
// state machine, since CircuitBreakerPolicy maps directly onto
// gobreaker.Settings.
type BreakerRegistry struct {
	breakers map[VertexKind]*gobreaker.CircuitBreaker
}

// NewBreakerRegistry builds one breaker per kind present in policies.
func NewBreakerRegistry(policies map[VertexKind]*CircuitBreakerPolicy) *BreakerRegistry {
	r := &BreakerRegistry{breakers: make(map[VertexKind]*gobreaker.CircuitBreaker, len(policies))}
	for kind, p := range policies {
		if p == nil {
			continue
		}
		settings := gobreaker.Settings{
			Name:        string(kind),
			MaxRequests: p.HalfOpenSuccesses,
			Timeout:     p.OpenDuration,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				if counts.Requests < p.MinimumThroughput {
					return false
				}
				return counts.ConsecutiveFailures >= p.FailureThreshold
			},
		}
		r.breakers[kind] = gobreaker.NewCircuitBreaker(settings)
	}
	return r
}

// Allow reports whether kind's breaker currently permits execution, and
// returns the breaker so the caller can inspect it. Outcomes are recorded
// on the breaker only by Execute.
func (r *BreakerRegistry) Allow(kind VertexKind) (*gobreaker.CircuitBreaker, bool) {
	cb, ok := r.breakers[kind]
	if !ok {
		return nil, true
	}
	if cb.State() == gobreaker.StateOpen {
		return cb, false
	}
	return cb, true
}

// Execute runs fn through kind's breaker if one is configured, translating
// gobreaker.ErrOpenState into ErrCircuitOpen.
func (r *BreakerRegistry) Execute(kind VertexKind, fn func() (any, error)) (any, error) {
	cb, ok := r.breakers[kind]
	if !ok {
		return fn()
	}
	out, err := cb.Execute(fn)
	if err == gobreaker.ErrOpenState {
		return nil, &EngineError{Message: "circuit open for vertex kind " + string(kind), Code: "CircuitOpen", Cause: ErrCircuitOpen}
	}
	return out, err
}

// State reports the current breaker state string for kind, or "Closed" if
// no breaker is configured for it.
func (r *BreakerRegistry) State(kind VertexKind) string {
	cb, ok := r.breakers[kind]
	if !ok {
		return "Closed"
	}
	switch cb.State() {
	case gobreaker.StateOpen:
		return "Open"
	case gobreaker.StateHalfOpen:
		return "HalfOpen"
	default:
		return "Closed"
	}
}
