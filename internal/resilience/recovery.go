package resilience

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/echolens/echolens/insight-engine/pkg/models"
	"github.com/rs/zerolog/log"
)

// StrategyFor maps an error kind to a recovery strategy. The switch is
// exhaustive over the closed taxonomy; anything that falls through (an
// unclassified kind) uses the severity default.
func StrategyFor(kind models.ErrorKind, severity models.Severity) models.RecoveryStrategy {
	switch kind {
	case models.KindValidation:
		return models.RecoveryDegrade
	case models.KindProviderTransient:
		return models.RecoveryRetry
	case models.KindProviderPermanent:
		return models.RecoveryFallback
	case models.KindDataIntegrity:
		return models.RecoverySkip
	case models.KindBudgetExceeded:
		return models.RecoveryAbort
	case models.KindResourceExhausted:
		return models.RecoveryAbort
	case models.KindUnknown:
		return models.RecoveryEscalate
	default:
		return defaultBySeverity(severity)
	}
}

// defaultBySeverity is the documented fallback when no kind-specific
// mapping exists: critical→abort, high→escalate, medium→retry,
// low→skip-and-continue.
func defaultBySeverity(severity models.Severity) models.RecoveryStrategy {
	switch severity {
	case models.SeverityCritical:
		return models.RecoveryAbort
	case models.SeverityHigh:
		return models.RecoveryEscalate
	case models.SeverityMedium:
		return models.RecoveryRetry
	case models.SeverityLow:
		return models.RecoverySkip
	default:
		return models.RecoveryEscalate
	}
}

// Policy names one wrapped call for classification and logging.
type Policy struct {
	Component  string
	Operation  string
	Severity   models.Severity
	MaxRetries uint64
}

// Manager owns all resilience state: the breaker registry, the fallback
// registry, and the error log. One instance is created at process start
// and shared; it is torn down with the process.
type Manager struct {
	Breakers  *BreakerRegistry
	Fallbacks *FallbackRegistry
	Errors    *ErrorLog
}

// NewManager wires the resilience layer. mirror may be nil (no external
// error-stat cache).
func NewManager(failureThreshold int, recoveryTimeout time.Duration, mirror ErrorMirror) *Manager {
	return &Manager{
		Breakers:  NewBreakerRegistry(failureThreshold, recoveryTimeout),
		Fallbacks: NewFallbackRegistry(),
		Errors:    NewErrorLog(DefaultErrorLogCapacity, mirror),
	}
}

// Execute is the "call with policy" wrapper: it runs fn behind the
// operation's circuit breaker, classifies any failure, records it, and
// applies the dispatched recovery strategy. Retryable failures are
// retried with exponential backoff; fallback strategies consult the
// fallback registry. The returned error is nil when the call (or its
// recovery) produced a usable result.
func (m *Manager) Execute(ctx context.Context, p Policy, fn func(context.Context) error) error {
	key := Key(p.Component, p.Operation)

	err := m.Breakers.Call(ctx, p.Component, p.Operation, fn)
	if err == nil {
		return nil
	}
	if err == models.ErrServiceUnavailable {
		// Fail-fast path: the wrapped operation never ran, nothing to classify.
		return err
	}

	kind := models.ClassifyError(err)
	severity := p.Severity
	if severity == "" {
		severity = models.SeverityOf(err)
	}
	m.Errors.Record(ctx, models.ErrorRecord{
		Operation: p.Operation,
		Component: p.Component,
		Severity:  severity,
		Kind:      kind,
		Timestamp: time.Now().UTC(),
		Metadata:  map[string]string{"error": err.Error()},
	})

	strategy := StrategyFor(kind, severity)
	log.Warn().
		Str("component", p.Component).
		Str("operation", p.Operation).
		Str("kind", string(kind)).
		Str("strategy", string(strategy)).
		Err(err).
		Msg("Operation failed, dispatching recovery")

	switch strategy {
	case models.RecoveryRetry:
		return m.retry(ctx, p, key, fn, err)

	case models.RecoveryFallback:
		if fallbackErr := m.Fallbacks.Execute(ctx, key); fallbackErr == nil {
			return nil
		}
		return err

	case models.RecoveryDegrade, models.RecoverySkip:
		// The caller proceeds with a partial result / drops this unit.
		// The failure stays recorded but does not propagate.
		return nil

	case models.RecoveryEscalate:
		m.Errors.Record(ctx, models.ErrorRecord{
			Operation: p.Operation,
			Component: p.Component,
			Severity:  models.SeverityCritical,
			Kind:      kind,
			Timestamp: time.Now().UTC(),
			Metadata:  map[string]string{"escalated": "true", "error": err.Error()},
		})
		return fmt.Errorf("escalated: %w", err)

	case models.RecoveryAbort:
		return err

	default:
		return err
	}
}

// retry re-runs fn with exponential backoff. The breaker still observes
// every attempt, so a consistently failing dependency opens it even
// under retry.
func (m *Manager) retry(ctx context.Context, p Policy, key string, fn func(context.Context) error, firstErr error) error {
	maxRetries := p.MaxRetries
	if maxRetries == 0 {
		maxRetries = 2
	}

	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(
			backoff.WithInitialInterval(200*time.Millisecond),
			backoff.WithMaxInterval(5*time.Second),
		), maxRetries),
		ctx,
	)

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		callErr := m.Breakers.Call(ctx, p.Component, p.Operation, fn)
		if callErr == models.ErrServiceUnavailable {
			// Breaker opened mid-retry: stop immediately.
			return backoff.Permanent(callErr)
		}
		if callErr != nil && models.ClassifyError(callErr) == models.KindProviderPermanent {
			return backoff.Permanent(callErr)
		}
		return callErr
	}, bo)

	if err != nil {
		log.Warn().
			Str("operation", key).
			Int("attempts", attempt).
			Err(err).
			Msg("Retries exhausted")
		return fmt.Errorf("retries exhausted after %d attempts: %w", attempt, err)
	}
	return nil
}
