package models

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrorKind is the closed taxonomy of handled failures. Recovery
// dispatch switches exhaustively over these — adding a kind without
// a strategy mapping falls through to the severity default.
type ErrorKind string

const (
	KindValidation        ErrorKind = "validation"
	KindProviderTransient ErrorKind = "provider_transient"
	KindProviderPermanent ErrorKind = "provider_permanent"
	KindDataIntegrity     ErrorKind = "data_integrity"
	KindBudgetExceeded    ErrorKind = "budget_exceeded"
	KindResourceExhausted ErrorKind = "resource_exhausted"
	KindUnknown           ErrorKind = "unknown"
)

// Severity orders failures for the default recovery mapping.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// RecoveryStrategy is what the dispatcher decides to do with a failure.
type RecoveryStrategy string

const (
	RecoveryRetry    RecoveryStrategy = "retry"
	RecoveryFallback RecoveryStrategy = "fallback"
	RecoveryDegrade  RecoveryStrategy = "graceful_degradation"
	RecoverySkip     RecoveryStrategy = "skip_and_continue"
	RecoveryAbort    RecoveryStrategy = "abort"
	RecoveryEscalate RecoveryStrategy = "escalate"
)

// AppError is a classified failure. Stage code wraps raw provider and
// storage errors into this so the resilience layer can dispatch on Kind
// instead of string-matching error text.
type AppError struct {
	Kind      ErrorKind
	Severity  Severity
	Component string
	Operation string
	Message   string
	Err       error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s/%s [%s]: %s: %v", e.Component, e.Operation, e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s/%s [%s]: %s", e.Component, e.Operation, e.Kind, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

// NewAppError classifies an error.
func NewAppError(kind ErrorKind, severity Severity, component, operation, message string, err error) *AppError {
	return &AppError{
		Kind:      kind,
		Severity:  severity,
		Component: component,
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}

// ClassifyError extracts the kind from an error chain.
// Unclassified errors are KindUnknown; context deadline errors are
// treated as transient provider failures per the timeout policy.
func ClassifyError(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindProviderTransient
	}
	return KindUnknown
}

// SeverityOf extracts the severity from an error chain, defaulting
// to medium for unclassified errors.
func SeverityOf(err error) Severity {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Severity
	}
	return SeverityMedium
}

// ErrServiceUnavailable is returned when a circuit breaker is open and
// the call failed fast without invoking the wrapped operation.
var ErrServiceUnavailable = errors.New("service unavailable: circuit open")

// ErrBudgetExceeded terminates a workflow deterministically before any
// cost-incurring stage runs over budget.
var ErrBudgetExceeded = errors.New("campaign budget exceeded")

// ErrorRecord is one handled failure, appended to the bounded in-memory
// ring and mirrored to the storage error cache for dashboards.
type ErrorRecord struct {
	Operation string            `json:"operation"`
	Component string            `json:"component"`
	Severity  Severity          `json:"severity"`
	Kind      ErrorKind         `json:"error_kind"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// CircuitState is the health of one breaker.
type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitOpen     CircuitState = "open"
	CircuitHalfOpen CircuitState = "half_open"
)
