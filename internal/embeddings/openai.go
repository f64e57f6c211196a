// Package embeddings provides embedding drivers and the batcher that
// feeds them. Ships an OpenAI-compatible driver; any endpoint speaking
// the same API (Azure, proxies, local gateways) works via the endpoint
// option.
package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/echolens/echolens/insight-engine/pkg/models"
)

// OpenAIDriver implements contracts.EmbeddingDriver against OpenAI's
// embedding API. Supports text-embedding-3-small (1536d),
// text-embedding-3-large (3072d), and text-embedding-ada-002 (1536d).
type OpenAIDriver struct {
	apiKey        string
	model         string
	endpoint      string
	dimensions    int
	batchSize     int
	maxInputRunes int
	client        *http.Client
}

// OpenAIOption configures the driver.
type OpenAIOption func(*OpenAIDriver)

// WithEndpoint sets a custom API endpoint (e.g. for proxies).
func WithEndpoint(endpoint string) OpenAIOption {
	return func(d *OpenAIDriver) { d.endpoint = endpoint }
}

// WithBatchSize sets the max texts per Embed call.
func WithBatchSize(size int) OpenAIOption {
	return func(d *OpenAIDriver) { d.batchSize = size }
}

// WithMaxInputRunes sets the deterministic truncation length applied
// to each input before sending.
func WithMaxInputRunes(n int) OpenAIOption {
	return func(d *OpenAIDriver) { d.maxInputRunes = n }
}

// NewOpenAIDriver creates an OpenAI embedding driver.
func NewOpenAIDriver(apiKey, model string, opts ...OpenAIOption) *OpenAIDriver {
	dims := 1536
	if model == "text-embedding-3-large" {
		dims = 3072
	}

	d := &OpenAIDriver{
		apiKey:        apiKey,
		model:         model,
		endpoint:      "https://api.openai.com/v1/embeddings",
		dimensions:    dims,
		batchSize:     DefaultBatchSize,
		maxInputRunes: 8000,
		client:        &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *OpenAIDriver) Kind() string      { return "openai" }
func (d *OpenAIDriver) Dimensions() int   { return d.dimensions }
func (d *OpenAIDriver) MaxBatchSize() int { return d.batchSize }

type embedRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type embedResponse struct {
	Data  []embedData `json:"data"`
	Error *apiError   `json:"error,omitempty"`
}

type embedData struct {
	Embedding []float64 `json:"embedding"`
	Index     int       `json:"index"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// Embed generates vectors for a batch of texts. Overlong inputs are
// truncated deterministically (rune prefix), never dropped.
func (d *OpenAIDriver) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if len(texts) > d.batchSize {
		return nil, models.NewAppError(models.KindProviderPermanent, models.SeverityHigh,
			"embeddings", "embed", fmt.Sprintf("batch size %d exceeds max %d", len(texts), d.batchSize), nil)
	}

	input := make([]string, len(texts))
	for i, t := range texts {
		input[i] = Truncate(t, d.maxInputRunes)
	}

	body, err := json.Marshal(embedRequest{Input: input, Model: d.model})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+d.apiKey)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, models.NewAppError(models.KindProviderTransient, models.SeverityMedium,
			"embeddings", "embed", "http request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, models.NewAppError(models.KindProviderTransient, models.SeverityMedium,
			"embeddings", "embed", "read response failed", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, models.NewAppError(models.KindProviderTransient, models.SeverityMedium,
			"embeddings", "embed", fmt.Sprintf("provider returned %d", resp.StatusCode), nil)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, models.NewAppError(models.KindProviderPermanent, models.SeverityHigh,
			"embeddings", "embed", fmt.Sprintf("provider returned %d: %s", resp.StatusCode, string(respBody)), nil)
	}

	var result embedResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if result.Error != nil {
		return nil, models.NewAppError(models.KindProviderPermanent, models.SeverityHigh,
			"embeddings", "embed", result.Error.Message, nil)
	}

	// Reorder by index
	vectors := make([][]float64, len(texts))
	for _, item := range result.Data {
		if item.Index >= 0 && item.Index < len(vectors) {
			vectors[item.Index] = item.Embedding
		}
	}
	return vectors, nil
}

// HealthCheck verifies the API key by embedding a test string.
func (d *OpenAIDriver) HealthCheck(ctx context.Context) error {
	_, err := d.Embed(ctx, []string{"health check"})
	return err
}

// Truncate cuts s to at most n runes. Deterministic: the same input
// always yields the same prefix.
func Truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
