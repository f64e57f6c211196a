package models

import "time"

// Modality says which search path produced a retrieval candidate.
type Modality string

const (
	ModalityVector  Modality = "vector"
	ModalityKeyword Modality = "keyword"
	ModalityHybrid  Modality = "hybrid"
)

// Provenance ties a retrieval candidate back to its origin record.
// CampaignID is carried so cross-campaign leakage is detectable at
// every layer, not just inside the search backends.
type Provenance struct {
	RecordID   string    `json:"record_id"`
	CampaignID string    `json:"campaign_id"`
	URL        string    `json:"url,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// RetrievalResult is one candidate passage. Produced by the retrieval
// engine, consumed by the synthesizer; never mutated after creation.
type RetrievalResult struct {
	SourceID   string     `json:"source_id"`
	Text       string     `json:"text"`
	Score      float64    `json:"relevance_score"` // 0.0–1.0
	Modality   Modality   `json:"modality"`
	Provenance Provenance `json:"provenance"`
}

// IntentType is the closed set of query intents.
type IntentType string

const (
	IntentConversational IntentType = "conversational"
	IntentPainPoint      IntentType = "pain_point_lookup"
	IntentInfluencer     IntentType = "influencer_lookup"
	IntentTrendSummary   IntentType = "trend_summary"
	IntentOutOfScope     IntentType = "out_of_scope"
)

// KnownIntents lists every classifiable intent, used to validate
// classifier output before trusting it.
var KnownIntents = []IntentType{
	IntentConversational,
	IntentPainPoint,
	IntentInfluencer,
	IntentTrendSummary,
	IntentOutOfScope,
}

// IntentResult pairs an intent with classifier confidence.
// Confidence 0.0 means "unclassified, proceed cautiously".
type IntentResult struct {
	Type       IntentType `json:"intent_type"`
	Confidence float64    `json:"confidence"`
}

// VerdictCode enumerates guardrail rejection reasons.
type VerdictCode string

const (
	VerdictOK          VerdictCode = "OK"
	VerdictTooShort    VerdictCode = "QUERY_TOO_SHORT"
	VerdictTooLong     VerdictCode = "QUERY_TOO_LONG"
	VerdictBlocked     VerdictCode = "BLOCKED_PATTERN"
	VerdictInjection   VerdictCode = "PROMPT_INJECTION"
	VerdictProfanity   VerdictCode = "PROFANITY"
	VerdictHarmful     VerdictCode = "HARMFUL_INTENT"
	VerdictRateLimited VerdictCode = "RATE_LIMIT_EXCEEDED"
)

// GuardrailVerdict is the result of validating one query.
// Created per request, never persisted.
type GuardrailVerdict struct {
	Valid   bool        `json:"valid"`
	Code    VerdictCode `json:"code"`
	Message string      `json:"message,omitempty"`
}

// Accept is the passing verdict.
func Accept() GuardrailVerdict {
	return GuardrailVerdict{Valid: true, Code: VerdictOK}
}

// Reject builds a failing verdict with a user-safe message.
func Reject(code VerdictCode, message string) GuardrailVerdict {
	return GuardrailVerdict{Valid: false, Code: code, Message: message}
}
