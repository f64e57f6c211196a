package embeddings

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// fakeDriver records batches and returns fixed-dimension vectors.
type fakeDriver struct {
	batches  [][]string
	maxBatch int
	failOn   int // 1-based batch index to fail, 0 = never
}

func (f *fakeDriver) Kind() string      { return "fake" }
func (f *fakeDriver) Dimensions() int   { return 3 }
func (f *fakeDriver) MaxBatchSize() int { return f.maxBatch }

func (f *fakeDriver) Embed(_ context.Context, texts []string) ([][]float64, error) {
	f.batches = append(f.batches, append([]string(nil), texts...))
	if f.failOn > 0 && len(f.batches) == f.failOn {
		return nil, errors.New("provider unavailable")
	}
	out := make([][]float64, len(texts))
	for i := range texts {
		out[i] = []float64{float64(i), 0, 0}
	}
	return out, nil
}

func (f *fakeDriver) HealthCheck(context.Context) error { return nil }

func TestBatcher_SplitsSequentially(t *testing.T) {
	driver := &fakeDriver{maxBatch: 100}
	b := NewBatcher(driver)

	texts := make([]string, 250)
	for i := range texts {
		texts[i] = "text"
	}

	vectors, err := b.EmbedAll(context.Background(), texts)
	if err != nil {
		t.Fatalf("EmbedAll: %v", err)
	}
	if len(vectors) != 250 {
		t.Fatalf("expected 250 vectors, got %d", len(vectors))
	}
	if len(driver.batches) != 3 {
		t.Fatalf("expected 3 batches, got %d", len(driver.batches))
	}
	for i, want := range []int{100, 100, 50} {
		if len(driver.batches[i]) != want {
			t.Errorf("batch %d: expected %d texts, got %d", i, want, len(driver.batches[i]))
		}
	}
}

func TestBatcher_RespectsDriverMax(t *testing.T) {
	driver := &fakeDriver{maxBatch: 10}
	b := NewBatcher(driver)

	texts := make([]string, 25)
	if _, err := b.EmbedAll(context.Background(), texts); err != nil {
		t.Fatalf("EmbedAll: %v", err)
	}
	if len(driver.batches) != 3 {
		t.Fatalf("expected 3 batches at driver max 10, got %d", len(driver.batches))
	}
}

func TestBatcher_FailedBatchFailsJob(t *testing.T) {
	driver := &fakeDriver{maxBatch: 10, failOn: 2}
	b := NewBatcher(driver)

	texts := make([]string, 30)
	vectors, err := b.EmbedAll(context.Background(), texts)
	if err == nil {
		t.Fatal("expected error from failed batch")
	}
	if vectors != nil {
		t.Error("expected no partial vectors on failure")
	}
	// Stops after the failing batch.
	if len(driver.batches) != 2 {
		t.Errorf("expected 2 batches attempted, got %d", len(driver.batches))
	}
}

func TestBatcher_EmbedGroupsConcurrent(t *testing.T) {
	driver := &fakeDriver{maxBatch: 100}
	b := NewBatcher(driver)

	groups := map[string][]string{
		"posts":    {"a", "b"},
		"comments": {"c"},
	}
	results, err := b.EmbedGroups(context.Background(), groups)
	if err != nil {
		t.Fatalf("EmbedGroups: %v", err)
	}
	if len(results["posts"]) != 2 || len(results["comments"]) != 1 {
		t.Fatalf("unexpected group results: %v", results)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 3, "hel"},
		{"héllo", 2, "hé"}, // rune boundary, not byte
		{"", 5, ""},
		{strings.Repeat("x", 100), 100, strings.Repeat("x", 100)},
	}
	for _, tt := range tests {
		if got := Truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestTruncate_Deterministic(t *testing.T) {
	s := strings.Repeat("market intelligence ", 500)
	a := Truncate(s, 1000)
	b := Truncate(s, 1000)
	if a != b {
		t.Fatal("truncation must be deterministic")
	}
	if len([]rune(a)) != 1000 {
		t.Fatalf("expected 1000 runes, got %d", len([]rune(a)))
	}
}
