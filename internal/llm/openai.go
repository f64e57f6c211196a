// Package llm provides text-completion providers and the router that
// selects between them. The router tries providers in fallback order,
// tracks per-campaign spend, and keeps a rolling latency average per
// provider.
package llm

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

// Known cost per 1K tokens (USD) — sensible defaults
var defaultCosts = map[string]map[string]float64{
	"gpt-4o":                    {"input": 0.0025, "output": 0.01},
	"gpt-4o-mini":               {"input": 0.00015, "output": 0.0006},
	"gpt-4-turbo":               {"input": 0.01, "output": 0.03},
	"claude-sonnet-4-20250514":  {"input": 0.003, "output": 0.015},
	"claude-3-5-haiku-20241022": {"input": 0.001, "output": 0.005},
}

// OpenAIProvider implements contracts.CompletionProvider against any
// OpenAI-compatible chat completions endpoint (OpenAI, Azure, Ollama,
// local gateways).
type OpenAIProvider struct {
	apiKey       string
	defaultModel string
	endpoint     string
	client       *http.Client
}

// ProviderOption configures the provider.
type ProviderOption func(*OpenAIProvider)

// WithProviderEndpoint sets a custom API base URL.
func WithProviderEndpoint(endpoint string) ProviderOption {
	return func(p *OpenAIProvider) { p.endpoint = endpoint }
}

// WithHTTPTimeout overrides the default 120s request timeout.
func WithHTTPTimeout(d time.Duration) ProviderOption {
	return func(p *OpenAIProvider) { p.client.Timeout = d }
}

// NewOpenAIProvider creates a chat completion provider.
func NewOpenAIProvider(apiKey, defaultModel string, opts ...ProviderOption) *OpenAIProvider {
	p := &OpenAIProvider{
		apiKey:       apiKey,
		defaultModel: defaultModel,
		endpoint:     "https://api.openai.com/v1",
		client:       &http.Client{Timeout: 120 * time.Second},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *OpenAIProvider) Kind() string { return "openai" }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
		TotalTokens      int64 `json:"total_tokens"`
	} `json:"usage"`
}

// Complete sends a chat completion request. Usage is always populated
// on success, including the estimated cost in USD.
func (p *OpenAIProvider) Complete(ctx context.Context, req models.CompletionRequest) (*models.Completion, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	messages := make([]chatMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	for _, m := range req.Messages {
		messages = append(messages, chatMessage{Role: m.Role, Content: m.Content})
	}

	body, err := json.Marshal(chatRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, models.NewAppError(models.KindProviderTransient, models.SeverityMedium,
			"llm", "complete", "http request failed", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode == http.StatusTooManyRequests || httpResp.StatusCode >= 500 {
		return nil, models.NewAppError(models.KindProviderTransient, models.SeverityMedium,
			"llm", "complete", fmt.Sprintf("provider returned %d", httpResp.StatusCode), nil)
	}
	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(httpResp.Body)
		return nil, models.NewAppError(models.KindProviderPermanent, models.SeverityHigh,
			"llm", "complete", fmt.Sprintf("provider returned %d: %s", httpResp.StatusCode, string(respBody)), nil)
	}

	var resp chatResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	content := ""
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
	}

	return &models.Completion{
		Text: content,
		Usage: models.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
			CostUSD:          estimateCost(model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens),
		},
	}, nil
}

// HealthCheck validates credentials with the cheapest possible call.
func (p *OpenAIProvider) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	_, err := p.Complete(ctx, models.CompletionRequest{
		Messages:  []models.Message{{Role: "user", Content: "Say OK"}},
		MaxTokens: 1,
	})
	return err
}

func estimateCost(model string, promptTokens, completionTokens int64) float64 {
	costs, ok := defaultCosts[model]
	if !ok {
		costs = map[string]float64{"input": 0.001, "output": 0.001}
	}
	return float64(promptTokens)/1000*costs["input"] +
		float64(completionTokens)/1000*costs["output"]
}
