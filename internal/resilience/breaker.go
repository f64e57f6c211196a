// Package resilience wraps stage and provider calls with circuit
// breaking, recovery-strategy dispatch, and fallback execution.
//
// Breaker state, the fallback registry, and the error log are owned by
// a single Manager created at process start — no package-level mutable
// state. All state transitions happen under a mutex as one
// read-modify-write, so concurrent calls never lose updates.
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/echolens/echolens/insight-engine/pkg/models"
	"github.com/rs/zerolog/log"
)

const (
	DefaultFailureThreshold = 5
	DefaultRecoveryTimeout  = 30 * time.Second
)

// breaker is the per-component:operation health record.
// Created lazily on first use, lives for the process lifetime.
type breaker struct {
	state            models.CircuitState
	failureCount     int
	lastFailureTime  time.Time
	failureThreshold int
	recoveryTimeout  time.Duration

	// Set while the half-open trial call is in flight; concurrent
	// callers are rejected until the trial resolves.
	trialInFlight bool
}

// BreakerRegistry holds one breaker per named operation key.
type BreakerRegistry struct {
	mu               sync.Mutex
	breakers         map[string]*breaker
	failureThreshold int
	recoveryTimeout  time.Duration

	now func() time.Time
}

// NewBreakerRegistry creates a registry with the given defaults.
func NewBreakerRegistry(failureThreshold int, recoveryTimeout time.Duration) *BreakerRegistry {
	if failureThreshold <= 0 {
		failureThreshold = DefaultFailureThreshold
	}
	if recoveryTimeout <= 0 {
		recoveryTimeout = DefaultRecoveryTimeout
	}
	return &BreakerRegistry{
		breakers:         make(map[string]*breaker),
		failureThreshold: failureThreshold,
		recoveryTimeout:  recoveryTimeout,
		now:              time.Now,
	}
}

// SetNowFunc swaps the clock source. Test hook.
func (r *BreakerRegistry) SetNowFunc(now func() time.Time) {
	r.mu.Lock()
	r.now = now
	r.mu.Unlock()
}

// Key builds the canonical breaker key.
func Key(component, operation string) string {
	return component + ":" + operation
}

// State returns the current state of a breaker, defaulting to closed
// for keys that have never been used.
func (r *BreakerRegistry) State(key string) models.CircuitState {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[key]
	if !ok {
		return models.CircuitClosed
	}
	return b.state
}

// FailureCount returns the consecutive failure count for a key.
func (r *BreakerRegistry) FailureCount(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[key]; ok {
		return b.failureCount
	}
	return 0
}

// Allow decides whether a call may proceed. While open, the recovery
// timeout is checked on the call attempt itself, not by a background
// timer; once it has elapsed the breaker moves to half_open and admits
// one trial call.
func (r *BreakerRegistry) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	b := r.getLocked(key)
	switch b.state {
	case models.CircuitClosed:
		return true
	case models.CircuitHalfOpen:
		if b.trialInFlight {
			return false
		}
		b.trialInFlight = true
		return true
	case models.CircuitOpen:
		if r.now().Sub(b.lastFailureTime) >= b.recoveryTimeout {
			b.state = models.CircuitHalfOpen
			b.trialInFlight = true
			log.Info().Str("breaker", key).Msg("Circuit half-open, admitting trial call")
			return true
		}
		return false
	default:
		return true
	}
}

// RecordSuccess closes a half-open breaker and resets its failure count.
func (r *BreakerRegistry) RecordSuccess(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b := r.getLocked(key)
	if b.state == models.CircuitHalfOpen {
		log.Info().Str("breaker", key).Msg("Circuit closed after successful trial")
	}
	b.state = models.CircuitClosed
	b.failureCount = 0
	b.trialInFlight = false
}

// RecordFailure advances the failure count and opens the breaker at the
// threshold. A failed half-open trial re-opens immediately.
func (r *BreakerRegistry) RecordFailure(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b := r.getLocked(key)
	b.lastFailureTime = r.now()
	b.trialInFlight = false

	if b.state == models.CircuitHalfOpen {
		b.state = models.CircuitOpen
		log.Warn().Str("breaker", key).Msg("Circuit re-opened: trial call failed")
		return
	}

	b.failureCount++
	if b.failureCount >= b.failureThreshold && b.state == models.CircuitClosed {
		b.state = models.CircuitOpen
		log.Warn().
			Str("breaker", key).
			Int("failures", b.failureCount).
			Msg("Circuit opened")
	}
}

func (r *BreakerRegistry) getLocked(key string) *breaker {
	b, ok := r.breakers[key]
	if !ok {
		b = &breaker{
			state:            models.CircuitClosed,
			failureThreshold: r.failureThreshold,
			recoveryTimeout:  r.recoveryTimeout,
		}
		r.breakers[key] = b
	}
	return b
}

// Call runs fn behind the breaker for component:operation. While the
// breaker is open and the recovery timeout has not elapsed, it fails
// fast with ErrServiceUnavailable without invoking fn.
func (r *BreakerRegistry) Call(ctx context.Context, component, operation string, fn func(context.Context) error) error {
	key := Key(component, operation)
	if !r.Allow(key) {
		return models.ErrServiceUnavailable
	}
	if err := fn(ctx); err != nil {
		r.RecordFailure(key)
		return err
	}
	r.RecordSuccess(key)
	return nil
}
