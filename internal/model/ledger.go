package model

import (
	"time"
)

// Extraction outcome error kinds recorded on ledger entries. These mirror the
// provider failure reasons plus the orchestrator-level terminal state.
const (
	ErrKindTimeout     = "timeout"
	ErrKindTransport   = "transport"
	ErrKindRefused     = "content_refused"
	ErrKindUnparseable = "unparseable_response"
	ErrKindEmptyImage  = "empty_image"
	ErrKindUnavailable = "extraction_unavailable"
)

// ExtractionLogEntry is one immutable audit row per extraction attempt. The
// row is opened when a provider is chosen and closed when the attempt ends;
// EntityID is attached later by the storage collaborator through an update
// to this same row, never a second one.
type ExtractionLogEntry struct {
	ID        string     `json:"id" db:"id"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty" db:"closed_at"`

	Domain   Domain `json:"domain" db:"domain"`
	Provider string `json:"provider" db:"provider"`
	Model    string `json:"model,omitempty" db:"model"`

	PromptTokens     int     `json:"prompt_tokens" db:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens" db:"completion_tokens"`
	LatencyMS        int64   `json:"latency_ms" db:"latency_ms"`
	CostUSD          float64 `json:"cost_usd" db:"cost_usd"`

	Confidence *float64 `json:"confidence,omitempty" db:"confidence"`
	Success    *bool    `json:"success,omitempty" db:"success"`

	// ErrorKind/ErrorDetail describe the terminal failure when Success is
	// false. PrimaryFailure keeps the first provider's failure reason when
	// the attempt concluded success-via-fallback.
	ErrorKind      string `json:"error_kind,omitempty" db:"error_kind"`
	ErrorDetail    string `json:"error_detail,omitempty" db:"error_detail"`
	PrimaryFailure string `json:"primary_failure,omitempty" db:"primary_failure"`
	FallbackUsed   bool   `json:"fallback_used" db:"fallback_used"`

	EntityID string `json:"entity_id,omitempty" db:"entity_id"`
}

// Open reports whether the entry has not yet been closed.
func (e *ExtractionLogEntry) Open() bool {
	return e != nil && e.ClosedAt == nil
}
