package graph

import (
	"math/rand"
	"time"
)

// RetryStrategy selects the backoff shape applied between retry attempts
// (spec §4.5).
type RetryStrategy string

const (
	RetryNone        RetryStrategy = "None"
	RetryFixed       RetryStrategy = "Fixed"
	RetryLinear      RetryStrategy = "Linear"
	RetryExponential RetryStrategy = "Exponential"
)

// RetryPolicy configures per-vertex retry behavior: how many attempts, what
// backoff shape, and which errors qualify.
//
// The backoff computation is grounded on the teacher's computeBackoff, but
// the jitter shape is not: the teacher jitters 0..BaseDelay (uniform,
// additive-only), while this policy applies a symmetric ±25% jitter around
// the computed delay, per the required retry contract here.
type RetryPolicy struct {
	Strategy RetryStrategy `json:"strategy" yaml:"strategy"`

	// MaxAttempts is the maximum number of retries after the first
	// execution, so an envelope executes at most MaxAttempts+1 times before
	// it is dead-lettered. Validate requires at least 1 unless Strategy is
	// None.
	MaxAttempts int `json:"maxAttempts,omitempty" yaml:"maxAttempts,omitempty"`

	// BaseDelay is the fixed delay (RetryFixed), the per-attempt increment
	// (RetryLinear), or the exponential base (RetryExponential).
	BaseDelay time.Duration `json:"baseDelay,omitempty" yaml:"baseDelay,omitempty"`

	// MaxDelay caps the computed delay before jitter is applied. 0 means
	// uncapped.
	MaxDelay time.Duration `json:"maxDelay,omitempty" yaml:"maxDelay,omitempty"`

	// RetryOn, if non-empty, restricts retries to errors whose EngineError
	// Code is in this set. Empty means every error is retryable subject to
	// DoNotRetryOn.
	RetryOn []string `json:"retryOn,omitempty" yaml:"retryOn,omitempty"`

	// DoNotRetryOn excludes specific error codes from retry even if they
	// would otherwise match RetryOn or the default "retry everything" rule.
	DoNotRetryOn []string `json:"doNotRetryOn,omitempty" yaml:"doNotRetryOn,omitempty"`

	// BudgetPerRun caps total retry attempts across the entire vertex
	// instance (not just the current message), 0 means unbounded.
	BudgetPerRun int `json:"budgetPerRun,omitempty" yaml:"budgetPerRun,omitempty"`
}

// Validate checks the policy's internal consistency.
func (rp *RetryPolicy) Validate() error {
	if rp == nil {
		return nil
	}
	if rp.Strategy != RetryNone && rp.MaxAttempts < 1 {
		return &EngineError{Message: "retry policy requires MaxAttempts >= 1 unless Strategy is None", Code: "InvalidRetryPolicy"}
	}
	if rp.MaxDelay > 0 && rp.BaseDelay > 0 && rp.MaxDelay < rp.BaseDelay {
		return &EngineError{Message: "retry policy MaxDelay must be >= BaseDelay", Code: "InvalidRetryPolicy"}
	}
	return nil
}

// Retryable reports whether an error with the given Code qualifies for
// retry under this policy.
func (rp *RetryPolicy) Retryable(code string) bool {
	if rp == nil || rp.Strategy == RetryNone {
		return false
	}
	for _, c := range rp.DoNotRetryOn {
		if c == code {
			return false
		}
	}
	if len(rp.RetryOn) == 0 {
		return true
	}
	for _, c := range rp.RetryOn {
		if c == code {
			return true
		}
	}
	return false
}

// Backoff computes the delay before the attempt-th retry (1-based: 1 = the
// first retry after the initial failed attempt). rng is optional; nil uses
// the package-level source.
func (rp *RetryPolicy) Backoff(attempt int, rng *rand.Rand) time.Duration {
	if rp == nil || rp.Strategy == RetryNone || attempt < 1 {
		return 0
	}

	var delay time.Duration
	switch rp.Strategy {
	case RetryFixed:
		delay = rp.BaseDelay
	case RetryLinear:
		delay = rp.BaseDelay * time.Duration(attempt)
	case RetryExponential:
		delay = rp.BaseDelay * time.Duration(uint64(1)<<uint(attempt-1))
	default:
		delay = rp.BaseDelay
	}

	if rp.MaxDelay > 0 && delay > rp.MaxDelay {
		delay = rp.MaxDelay
	}
	if delay <= 0 {
		return 0
	}

	return applySymmetricJitter(delay, rng)
}

// applySymmetricJitter scales delay by a uniformly random factor in
// [0.75, 1.25] — a ±25% symmetric jitter, chosen over the teacher's
// additive 0..base jitter because the contract here specifies a bounded
// percentage rather than an unbounded-relative-to-base offset.
func applySymmetricJitter(delay time.Duration, rng *rand.Rand) time.Duration {
	var f float64
	if rng != nil {
		f = rng.Float64()
	} else {
		f = rand.Float64() // #nosec G404 -- retry jitter timing, not security-sensitive
	}
	factor := 0.75 + f*0.5
	return time.Duration(float64(delay) * factor)
}

// CircuitBreakerPolicy configures per-vertex-kind circuit breaking (spec
// §4.5), adapted onto github.com/sony/gobreaker's Settings in breaker.go.
type CircuitBreakerPolicy struct {
	// FailureThreshold is the consecutive-failure count that trips the
	// breaker from Closed to Open. No failure ratio is computed.
	FailureThreshold uint32 `json:"failureThreshold,omitempty" yaml:"failureThreshold,omitempty"`

	// MinimumThroughput is the minimum number of requests the breaker must
	// have counted since its last state change before FailureThreshold is
	// checked at all.
	MinimumThroughput uint32 `json:"minimumThroughput,omitempty" yaml:"minimumThroughput,omitempty"`

	// OpenDuration is how long the breaker stays Open before probing via
	// HalfOpen.
	OpenDuration time.Duration `json:"openDuration,omitempty" yaml:"openDuration,omitempty"`

	// HalfOpenSuccesses is the number of consecutive successful probes
	// required to close the breaker again.
	HalfOpenSuccesses uint32 `json:"halfOpenSuccesses,omitempty" yaml:"halfOpenSuccesses,omitempty"`
}
