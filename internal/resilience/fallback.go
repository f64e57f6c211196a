package resilience

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// Fn is a wrapped operation. Callers close over their arguments, so a
// registered fallback runs with the same inputs as the primary.
type Fn func(context.Context) error

// FallbackRegistry holds one alternate implementation per named
// operation. Thread-safe.
type FallbackRegistry struct {
	mu        sync.RWMutex
	fallbacks map[string]Fn
}

// NewFallbackRegistry creates an empty registry.
func NewFallbackRegistry() *FallbackRegistry {
	return &FallbackRegistry{fallbacks: make(map[string]Fn)}
}

// Register sets the alternate implementation for an operation key.
// Overwrites any existing registration.
func (r *FallbackRegistry) Register(operation string, fn Fn) {
	r.mu.Lock()
	r.fallbacks[operation] = fn
	r.mu.Unlock()
	log.Debug().Str("operation", operation).Msg("Fallback registered")
}

// Execute runs the registered fallback for an operation, or errors if
// none is registered.
func (r *FallbackRegistry) Execute(ctx context.Context, operation string) error {
	r.mu.RLock()
	fn, ok := r.fallbacks[operation]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no fallback registered for %s", operation)
	}
	log.Info().Str("operation", operation).Msg("Running fallback implementation")
	return fn(ctx)
}

// ExecuteWithFallback runs the primary and, on any failure, the
// registered fallback for the operation. The primary's error is
// returned when the fallback also fails (or none is registered).
func (r *FallbackRegistry) ExecuteWithFallback(ctx context.Context, operation string, primary Fn) error {
	primaryErr := primary(ctx)
	if primaryErr == nil {
		return nil
	}

	r.mu.RLock()
	fn, ok := r.fallbacks[operation]
	r.mu.RUnlock()
	if !ok {
		return primaryErr
	}

	log.Warn().Str("operation", operation).Err(primaryErr).Msg("Primary failed, running fallback")
	if fallbackErr := fn(ctx); fallbackErr != nil {
		return fmt.Errorf("fallback for %s also failed: %v (primary: %w)", operation, fallbackErr, primaryErr)
	}
	return nil
}
