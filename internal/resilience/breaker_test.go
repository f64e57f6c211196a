package resilience_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/echolens/echolens/insight-engine/internal/resilience"
	"github.com/echolens/echolens/insight-engine/pkg/models"
)

var errBoom = errors.New("boom")

func failing(context.Context) error { return errBoom }
func succeeding(context.Context) error { return nil }

func TestBreaker_OpensAtThreshold(t *testing.T) {
	r := resilience.NewBreakerRegistry(3, time.Minute)
	ctx := context.Background()
	key := resilience.Key("chat", "synthesize")

	for i := 0; i < 3; i++ {
		if err := r.Call(ctx, "chat", "synthesize", failing); !errors.Is(err, errBoom) {
			t.Fatalf("call %d: err = %v, want boom", i, err)
		}
	}
	if got := r.State(key); got != models.CircuitOpen {
		t.Fatalf("state after threshold failures = %q, want open", got)
	}
}

func TestBreaker_FailsFastWhileOpen(t *testing.T) {
	r := resilience.NewBreakerRegistry(2, time.Minute)
	ctx := context.Background()

	r.Call(ctx, "c", "op", failing)
	r.Call(ctx, "c", "op", failing)

	invoked := false
	err := r.Call(ctx, "c", "op", func(context.Context) error {
		invoked = true
		return nil
	})
	if !errors.Is(err, models.ErrServiceUnavailable) {
		t.Errorf("open-circuit call err = %v, want ErrServiceUnavailable", err)
	}
	if invoked {
		t.Error("wrapped function was invoked while circuit open")
	}
}

func TestBreaker_HalfOpenAfterRecoveryTimeout(t *testing.T) {
	r := resilience.NewBreakerRegistry(2, 30*time.Second)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r.SetNowFunc(func() time.Time { return now })
	ctx := context.Background()
	key := resilience.Key("c", "op")

	r.Call(ctx, "c", "op", failing)
	r.Call(ctx, "c", "op", failing)
	if got := r.State(key); got != models.CircuitOpen {
		t.Fatalf("state = %q, want open", got)
	}

	// Before the recovery timeout: still failing fast.
	now = now.Add(10 * time.Second)
	if err := r.Call(ctx, "c", "op", succeeding); !errors.Is(err, models.ErrServiceUnavailable) {
		t.Fatalf("pre-timeout call err = %v, want fail-fast", err)
	}

	// After the timeout the next attempt transitions to half-open and,
	// on success, closes the breaker with failure_count reset.
	now = now.Add(25 * time.Second)
	if err := r.Call(ctx, "c", "op", succeeding); err != nil {
		t.Fatalf("post-timeout call err = %v, want success", err)
	}
	if got := r.State(key); got != models.CircuitClosed {
		t.Errorf("state after trial success = %q, want closed", got)
	}
	if got := r.FailureCount(key); got != 0 {
		t.Errorf("failure count after close = %d, want 0", got)
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	r := resilience.NewBreakerRegistry(2, 30*time.Second)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r.SetNowFunc(func() time.Time { return now })
	ctx := context.Background()
	key := resilience.Key("c", "op")

	r.Call(ctx, "c", "op", failing)
	r.Call(ctx, "c", "op", failing)

	now = now.Add(31 * time.Second)
	if err := r.Call(ctx, "c", "op", failing); !errors.Is(err, errBoom) {
		t.Fatalf("trial call err = %v, want boom", err)
	}
	if got := r.State(key); got != models.CircuitOpen {
		t.Errorf("state after failed trial = %q, want open", got)
	}

	// Still failing fast right after the failed trial.
	if err := r.Call(ctx, "c", "op", succeeding); !errors.Is(err, models.ErrServiceUnavailable) {
		t.Errorf("post-trial call err = %v, want fail-fast", err)
	}
}

func TestBreaker_HalfOpenAdmitsSingleTrial(t *testing.T) {
	r := resilience.NewBreakerRegistry(2, 30*time.Second)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r.SetNowFunc(func() time.Time { return now })
	ctx := context.Background()
	key := resilience.Key("c", "op")

	r.Call(ctx, "c", "op", failing)
	r.Call(ctx, "c", "op", failing)

	now = now.Add(31 * time.Second)
	if !r.Allow(key) {
		t.Fatal("first attempt after the recovery timeout must be admitted as the trial")
	}
	// Callers arriving while the trial is in flight are rejected.
	if r.Allow(key) {
		t.Error("second caller admitted during an in-flight trial")
	}

	r.RecordSuccess(key)
	if got := r.State(key); got != models.CircuitClosed {
		t.Fatalf("state after trial success = %q, want closed", got)
	}
	if !r.Allow(key) {
		t.Error("closed breaker must admit calls")
	}
}

func TestBreaker_IndependentKeys(t *testing.T) {
	r := resilience.NewBreakerRegistry(1, time.Minute)
	ctx := context.Background()

	r.Call(ctx, "retrieval", "vector", failing)
	if got := r.State(resilience.Key("retrieval", "vector")); got != models.CircuitOpen {
		t.Fatalf("vector breaker = %q, want open", got)
	}
	if got := r.State(resilience.Key("retrieval", "keyword")); got != models.CircuitClosed {
		t.Errorf("keyword breaker = %q, want closed (independent)", got)
	}
}

// Five induced failures with threshold 5 open the breaker; the sixth
// call fails fast without reaching the provider.
func TestBreaker_ChatSynthesizeScenario(t *testing.T) {
	r := resilience.NewBreakerRegistry(5, time.Minute)
	ctx := context.Background()

	providerCalls := 0
	provider := func(context.Context) error {
		providerCalls++
		return errBoom
	}

	for i := 0; i < 5; i++ {
		r.Call(ctx, "chat", "synthesize", provider)
	}
	if providerCalls != 5 {
		t.Fatalf("provider calls = %d, want 5", providerCalls)
	}

	err := r.Call(ctx, "chat", "synthesize", provider)
	if !errors.Is(err, models.ErrServiceUnavailable) {
		t.Errorf("sixth call err = %v, want fail-fast", err)
	}
	if providerCalls != 5 {
		t.Errorf("provider calls after breaker open = %d, want 5", providerCalls)
	}
}
