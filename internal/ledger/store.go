// Package ledger persists one audit row per extraction attempt. Writing is
// the hot path: Open and CloseEntry are single-row statements keyed by uuid
// and never wait on the aggregate read queries.
package ledger

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/tastebase/capture-cli/internal/model"
)

const defaultListLimit = 100

// ErrNotFound reports an update against an entry id that does not exist.
var ErrNotFound = eris.New("ledger: entry not found")

// CloseParams carries everything recorded when an entry is closed.
type CloseParams struct {
	Success          bool
	Model            string
	PromptTokens     int
	CompletionTokens int
	LatencyMS        int64
	CostUSD          float64
	Confidence       *float64
	ErrorKind        string
	ErrorDetail      string
	PrimaryFailure   string
	FallbackUsed     bool
}

// Filter narrows List queries. Zero fields match everything.
type Filter struct {
	Domain   model.Domain
	Provider string
	Success  *bool
	Since    time.Time
	Until    time.Time
	Limit    int
}

// Totals aggregates entries over a window. Count includes entries still
// open; SuccessRate is computed over closed entries only so in-flight
// attempts never skew it.
type Totals struct {
	Count         int64   `json:"count"`
	Successes     int64   `json:"successes"`
	Failures      int64   `json:"failures"`
	SuccessRate   float64 `json:"success_rate"`
	TotalCostUSD  float64 `json:"total_cost_usd"`
	AvgConfidence float64 `json:"avg_confidence"`
	AvgLatencyMS  float64 `json:"avg_latency_ms"`
}

// ProviderStats is one provider's share of the window.
type ProviderStats struct {
	Provider string `json:"provider"`
	Totals
}

// DomainStats is one domain's share of the window.
type DomainStats struct {
	Domain model.Domain `json:"domain"`
	Totals
}

// DayStats is one UTC day's share of the window.
type DayStats struct {
	Day string `json:"day"` // YYYY-MM-DD
	Totals
}

// Store is the ledger persistence interface. Open starts an entry when a
// provider is chosen; CloseEntry finalizes the same row when the attempt
// ends; AttachEntity links the saved entity to the row later, through an
// update, never a second row.
type Store interface {
	Open(ctx context.Context, domain model.Domain, provider string) (string, error)
	CloseEntry(ctx context.Context, id string, p CloseParams) error
	AttachEntity(ctx context.Context, id string, entityID string) error

	Get(ctx context.Context, id string) (*model.ExtractionLogEntry, error)
	List(ctx context.Context, f Filter) ([]model.ExtractionLogEntry, error)

	// Aggregates over entries created at or after since; a zero since spans
	// the whole ledger.
	Stats(ctx context.Context, since time.Time) (*Totals, error)
	StatsByProvider(ctx context.Context, since time.Time) ([]ProviderStats, error)
	StatsByDomain(ctx context.Context, since time.Time) ([]DomainStats, error)
	StatsByDay(ctx context.Context, since time.Time) ([]DayStats, error)

	Migrate(ctx context.Context) error
	Close() error
}

func (t *Totals) finish() {
	if closed := t.Successes + t.Failures; closed > 0 {
		t.SuccessRate = float64(t.Successes) / float64(closed)
	}
}
