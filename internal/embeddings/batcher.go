package embeddings

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/echolens/echolens/insight-engine/pkg/contracts"
)

// DefaultBatchSize is the max texts sent to a provider per request.
const DefaultBatchSize = 100

// Batcher splits large embedding jobs into provider-sized batches.
// Batches within one group run sequentially so a provider rate limit
// hits one request at a time; independent groups (e.g. posts vs
// comments) run concurrently.
type Batcher struct {
	driver    contracts.EmbeddingDriver
	batchSize int
}

// NewBatcher wraps a driver. The batch size is capped at the driver's
// own maximum.
func NewBatcher(driver contracts.EmbeddingDriver) *Batcher {
	size := DefaultBatchSize
	if max := driver.MaxBatchSize(); max > 0 && max < size {
		size = max
	}
	return &Batcher{driver: driver, batchSize: size}
}

// EmbedAll embeds texts in sequential batches and returns vectors in
// input order. A failed batch fails the whole job; vectors from
// earlier batches are discarded rather than returned partially.
func (b *Batcher) EmbedAll(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float64, 0, len(texts))
	for start := 0; start < len(texts); start += b.batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := start + b.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := b.driver.Embed(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embed batch %d-%d: %w", start, end, err)
		}
		vectors = append(vectors, batch...)
	}

	log.Debug().
		Str("driver", b.driver.Kind()).
		Int("texts", len(texts)).
		Int("batch_size", b.batchSize).
		Msg("embedding job complete")
	return vectors, nil
}

// EmbedGroups embeds several independent text groups concurrently,
// one goroutine per group. Returns the first error encountered; groups
// that succeeded are still present in the result map.
func (b *Batcher) EmbedGroups(ctx context.Context, groups map[string][]string) (map[string][][]float64, error) {
	results := make(map[string][][]float64, len(groups))
	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		firstErr error
	)

	for name, texts := range groups {
		wg.Add(1)
		go func(name string, texts []string) {
			defer wg.Done()
			vectors, err := b.EmbedAll(ctx, texts)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("group %s: %w", name, err)
				}
				return
			}
			results[name] = vectors
		}(name, texts)
	}
	wg.Wait()

	return results, firstErr
}
