// Package monitoring runs periodic health checks over the extraction
// ledger and pushes webhook alerts when failure rates or spend cross
// configured thresholds.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/tastebase/capture-cli/internal/ledger"
)

// MetricsSnapshot holds a point-in-time view of extraction health.
type MetricsSnapshot struct {
	// Attempt metrics (within lookback window).
	Attempts      int64   `json:"attempts"`
	Successes     int64   `json:"successes"`
	Failures      int64   `json:"failures"`
	FailureRate   float64 `json:"failure_rate"`
	CostUSD       float64 `json:"cost_usd"`
	AvgConfidence float64 `json:"avg_confidence"`
	AvgLatencyMS  float64 `json:"avg_latency_ms"`

	// Per-provider share of the window.
	Providers []ledger.ProviderStats `json:"providers"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// StatsSource abstracts the ledger queries the collector needs.
type StatsSource interface {
	Stats(ctx context.Context, since time.Time) (*ledger.Totals, error)
	StatsByProvider(ctx context.Context, since time.Time) ([]ledger.ProviderStats, error)
}

// Collector gathers metrics from the extraction ledger.
type Collector struct {
	ledger StatsSource
}

// NewCollector creates a new metrics collector.
func NewCollector(led StatsSource) *Collector {
	return &Collector{ledger: led}
}

// Collect gathers a snapshot of ledger metrics over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   time.Now().UTC(),
	}

	cutoff := time.Now().UTC().Add(-time.Duration(lookbackHours) * time.Hour)

	totals, err := c.ledger.Stats(ctx, cutoff)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: ledger stats")
	}

	snap.Attempts = totals.Count
	snap.Successes = totals.Successes
	snap.Failures = totals.Failures
	snap.CostUSD = totals.TotalCostUSD
	snap.AvgConfidence = totals.AvgConfidence
	snap.AvgLatencyMS = totals.AvgLatencyMS

	// Entries still open have no outcome yet and stay out of the rate.
	if finished := totals.Successes + totals.Failures; finished > 0 {
		snap.FailureRate = float64(totals.Failures) / float64(finished)
	}

	providers, err := c.ledger.StatsByProvider(ctx, cutoff)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: provider stats")
	}
	snap.Providers = providers

	return snap, nil
}
