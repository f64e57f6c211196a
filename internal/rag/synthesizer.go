// Package rag implements the chat synthesizer: guardrail validation,
// intent classification, hybrid retrieval and grounded answer
// generation composed into one query pipeline.
package rag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/echolens/echolens/insight-engine/internal/resilience"
	"github.com/echolens/echolens/insight-engine/pkg/contracts"
	"github.com/echolens/echolens/insight-engine/pkg/models"
)

// Failure codes beyond the guardrail verdicts.
const (
	CodeRetrievalUnavailable  = "RETRIEVAL_UNAVAILABLE"
	CodeGenerationUnavailable = "GENERATION_UNAVAILABLE"
)

// NoEvidenceAnswer is returned when the campaign has no matching
// content. Stated explicitly so the model never invents grounding.
const NoEvidenceAnswer = "No relevant content has been collected for this campaign yet, so I can't answer that from evidence. Try again after the next scouting run."

const answerSystemPrompt = `You are a market intelligence assistant. Answer the user's question using ONLY the evidence passages below. Cite passages as [1], [2], etc. If the passages do not contain the answer, say so — never invent facts.

Evidence passages:
%s`

// Synthesizer runs the full chat query pipeline. Run never returns an
// error: every failure path produces a well-formed ChatResult with an
// error code and a user-safe message, and metrics are recorded on
// every path, success or not.
type Synthesizer struct {
	guardrails contracts.GuardrailService
	intents    contracts.IntentService
	retrieval  contracts.RetrievalService
	provider   contracts.CompletionProvider
	monitor    contracts.MonitorSink
	breakers   *resilience.BreakerRegistry
	topK       int
}

// Option configures the synthesizer.
type Option func(*Synthesizer)

// WithTopK sets how many fused passages ground an answer.
func WithTopK(k int) Option {
	return func(s *Synthesizer) {
		if k > 0 {
			s.topK = k
		}
	}
}

// NewSynthesizer wires the pipeline stages together.
func NewSynthesizer(
	guardrails contracts.GuardrailService,
	intents contracts.IntentService,
	retrieval contracts.RetrievalService,
	provider contracts.CompletionProvider,
	monitor contracts.MonitorSink,
	breakers *resilience.BreakerRegistry,
	opts ...Option,
) *Synthesizer {
	s := &Synthesizer{
		guardrails: guardrails,
		intents:    intents,
		retrieval:  retrieval,
		provider:   provider,
		monitor:    monitor,
		breakers:   breakers,
		topK:       5,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run answers one chat query. Pipeline order: guardrail validation →
// intent classification → retrieval → grounded generation → output
// sanitization. A guardrail rejection short-circuits before any
// retrieval or provider call and echoes the verdict code.
func (s *Synthesizer) Run(ctx context.Context, req models.ChatRequest) models.ChatResult {
	start := time.Now()
	result := models.ChatResult{Sources: []models.RetrievalResult{}}
	tools := []string{}

	defer func() {
		result.Metadata.ExecutionMs = time.Since(start).Milliseconds()
		result.Metadata.ToolsExecuted = tools
		s.monitor.Record(ctx, models.RunMetrics{
			CampaignID:    req.CampaignID,
			QueryLen:      len(req.UserQuery),
			ExecutionMs:   result.Metadata.ExecutionMs,
			Intent:        result.Metadata.Intent,
			ToolsExecuted: tools,
			ResultCount:   len(result.Sources),
			Success:       result.Success,
			CostUSD:       result.Metadata.CostUSD,
			TokensUsed:    result.Metadata.TokensUsed,
			ErrorCode:     result.ErrorCode,
			Timestamp:     time.Now().UTC(),
		})
	}()

	// ── Guardrail validation ────────────────────────────────
	verdict := s.guardrails.ValidateQuery(req.UserQuery, req.UserID)
	tools = append(tools, "guardrails")
	if !verdict.Valid {
		log.Info().
			Str("campaign_id", req.CampaignID).
			Str("code", string(verdict.Code)).
			Msg("query rejected by guardrails")
		result.ErrorCode = string(verdict.Code)
		result.Answer = "I can't process that query. " + verdict.Message
		return result
	}

	// ── Intent classification ───────────────────────────────
	intent := s.intents.Classify(ctx, req.UserQuery, req.Conversation)
	tools = append(tools, "intent")
	result.Metadata.Intent = intent.Type
	result.Metadata.Confidence = intent.Confidence

	if intent.Type == models.IntentOutOfScope {
		result.Success = true
		result.Answer = "That's outside this campaign's scope. Ask me about the community content, pain points, trends or voices we're tracking."
		result.Conversation = appendTurn(req.Conversation, req.UserQuery, result.Answer)
		return result
	}

	// ── Retrieval ───────────────────────────────────────────
	var sources []models.RetrievalResult
	err := s.breakers.Call(ctx, "chat", "retrieve", func(ctx context.Context) error {
		var err error
		sources, err = s.retrieval.Search(ctx, req.UserQuery, req.CampaignID, s.topK, nil)
		return err
	})
	tools = append(tools, "retrieval")
	if err != nil {
		log.Warn().Err(err).Str("campaign_id", req.CampaignID).Msg("retrieval unavailable")
		result.ErrorCode = CodeRetrievalUnavailable
		result.Answer = "I couldn't reach the campaign's content right now. Please try again shortly."
		return result
	}
	result.Sources = sources
	result.Metadata.ResultCount = len(sources)

	// Empty corpus is a valid state: say so instead of letting the
	// model hallucinate grounding.
	if len(sources) == 0 {
		result.Success = true
		result.Answer = NoEvidenceAnswer
		result.Conversation = appendTurn(req.Conversation, req.UserQuery, result.Answer)
		return result
	}

	// ── Grounded generation ─────────────────────────────────
	var completion *models.Completion
	err = s.breakers.Call(ctx, "chat", "synthesize", func(ctx context.Context) error {
		var err error
		completion, err = s.provider.Complete(ctx, models.CompletionRequest{
			System:   fmt.Sprintf(answerSystemPrompt, renderPassages(sources)),
			Messages: appendTurn(req.Conversation, req.UserQuery, ""),
		})
		return err
	})
	tools = append(tools, "generation")
	if err != nil {
		log.Warn().Err(err).Str("campaign_id", req.CampaignID).Msg("generation unavailable")
		result.ErrorCode = CodeGenerationUnavailable
		result.Answer = "I found relevant content but couldn't compose an answer right now. Please try again shortly."
		return result
	}
	result.Metadata.TokensUsed = completion.Usage.TotalTokens
	result.Metadata.CostUSD = completion.Usage.CostUSD

	// ── Output sanitization ─────────────────────────────────
	answer := s.guardrails.SanitizeOutput(completion.Text)

	result.Success = true
	result.Answer = answer
	result.Conversation = appendTurn(req.Conversation, req.UserQuery, answer)
	return result
}

// renderPassages numbers the evidence for citation.
func renderPassages(sources []models.RetrievalResult) string {
	var sb strings.Builder
	for i, src := range sources {
		fmt.Fprintf(&sb, "[%d] %s\n", i+1, src.Text)
	}
	return sb.String()
}

// appendTurn extends the history with the user query and, when
// non-empty, the assistant's answer. Input slices are never mutated.
func appendTurn(history []models.Message, query, answer string) []models.Message {
	out := make([]models.Message, 0, len(history)+2)
	out = append(out, history...)
	out = append(out, models.Message{Role: "user", Content: query})
	if answer != "" {
		out = append(out, models.Message{Role: "assistant", Content: answer})
	}
	return out
}
