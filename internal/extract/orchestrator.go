// Package extract runs the photo-to-record pipeline for one attempt:
// provider resolution, the single fallback hop, confidence scoring, wine
// reference matching, and the ledger bookkeeping around all of it.
package extract

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/tastebase/capture-cli/internal/cost"
	"github.com/tastebase/capture-cli/internal/ledger"
	"github.com/tastebase/capture-cli/internal/model"
	"github.com/tastebase/capture-cli/internal/provider"
	"github.com/tastebase/capture-cli/internal/refdb"
	"github.com/tastebase/capture-cli/internal/score"
)

// DefaultTimeout bounds a single provider invocation when the options leave
// Timeout zero.
const DefaultTimeout = 60 * time.Second

// Options configure the orchestrator. DefaultProvider is used when the
// caller names none; the fallback hop runs only when FallbackEnabled and the
// failed provider is not the fallback itself.
type Options struct {
	DefaultProvider  string
	FallbackEnabled  bool
	FallbackProvider string
	Timeout          time.Duration
}

// Result is one successful attempt. Match is nil when no reference catalog
// is wired or the record is not a wine; Enriched lists the fields the
// reference merge filled in.
type Result struct {
	Record       *model.StructuredRecord
	Confidence   model.ConfidenceScore
	Match        *model.MatchResult
	Metadata     model.ProviderMetadata
	EntryID      string
	FallbackUsed bool
	Enriched     []string
}

// Orchestrator coordinates providers, scoring, reference matching and the
// ledger for extraction attempts. Every attempt opens exactly one ledger
// entry and closes it on every path.
type Orchestrator struct {
	registry *provider.Registry
	ledger   ledger.Store
	matcher  *refdb.Matcher
	costs    *cost.Calculator
	opts     Options
}

// NewOrchestrator builds an Orchestrator. A nil matcher skips reference
// matching; a nil calculator falls back to the shipped default rates.
func NewOrchestrator(registry *provider.Registry, led ledger.Store, matcher *refdb.Matcher, costs *cost.Calculator, opts Options) *Orchestrator {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if costs == nil {
		costs = cost.NewCalculator(cost.DefaultRates())
	}
	return &Orchestrator{
		registry: registry,
		ledger:   led,
		matcher:  matcher,
		costs:    costs,
		opts:     opts,
	}
}

// Extract runs one attempt for a normalized image. providerName overrides
// the configured default when non-empty. The attempt makes at most two
// provider calls: the resolved provider, then on failure one hop to the
// fallback. There is no same-provider retry.
func (o *Orchestrator) Extract(ctx context.Context, img provider.Image, domain model.Domain, providerName string) (*Result, error) {
	profile, err := provider.ProfileFor(domain)
	if err != nil {
		return nil, err
	}

	name := providerName
	if name == "" {
		name = o.opts.DefaultProvider
	}
	primary, err := o.registry.Resolve(name)
	if err != nil {
		return nil, err
	}

	entryID, err := o.ledger.Open(ctx, domain, primary.Name())
	if err != nil {
		return nil, eris.Wrap(err, "extract: open ledger entry")
	}

	log := zap.L().With(
		zap.String("entry_id", entryID),
		zap.String("domain", string(domain)),
		zap.String("provider", primary.Name()),
	)
	start := time.Now()
	u := &usage{costs: o.costs}

	rec, meta, primaryErr := o.invoke(ctx, primary, img, domain, profile)
	u.add(meta)

	fallbackUsed := false
	if primaryErr != nil {
		fb := o.fallbackFor(primary)
		if fb == nil {
			return nil, o.fail(ctx, entryID, start, u, primaryErr, nil, false, log)
		}
		log.Warn("extract: primary provider failed, trying fallback",
			zap.String("reason", primaryErr.Reason),
			zap.String("fallback", fb.Name()),
		)
		fallbackUsed = true
		var fbErr *provider.ExtractionError
		rec, meta, fbErr = o.invoke(ctx, fb, img, domain, profile)
		u.add(meta)
		if fbErr != nil {
			return nil, o.fail(ctx, entryID, start, u, primaryErr, fbErr, true, log)
		}
	}

	confidence := score.Score(rec)

	var matchRes *model.MatchResult
	var enriched []string
	if domain == model.DomainWine && o.matcher != nil {
		matchRes, err = o.matcher.Match(ctx, rec)
		if err != nil {
			// The extraction itself succeeded; a catalog outage must not
			// discard it.
			log.Warn("extract: reference match failed", zap.Error(err))
			matchRes = nil
		} else if matchRes.Matched() {
			enriched = refdb.Enrich(rec, matchRes)
		}
	}

	params := ledger.CloseParams{
		Success:          true,
		Model:            u.model,
		PromptTokens:     u.promptTokens,
		CompletionTokens: u.completionTokens,
		LatencyMS:        time.Since(start).Milliseconds(),
		CostUSD:          u.costUSD,
		Confidence:       &confidence.Value,
		FallbackUsed:     fallbackUsed,
	}
	if fallbackUsed {
		params.PrimaryFailure = primaryErr.Reason
	}
	o.closeEntry(ctx, entryID, params)

	res := &Result{
		Record:       rec,
		Confidence:   confidence,
		Match:        matchRes,
		EntryID:      entryID,
		FallbackUsed: fallbackUsed,
		Enriched:     enriched,
	}
	if meta != nil {
		res.Metadata = *meta
	}

	log.Info("extract: attempt complete",
		zap.String("model", u.model),
		zap.Float64("confidence", confidence.Value),
		zap.Float64("cost_usd", u.costUSD),
		zap.Int64("latency_ms", params.LatencyMS),
		zap.Bool("fallback_used", fallbackUsed),
		zap.Int("enriched_fields", len(enriched)),
	)
	return res, nil
}

// invoke runs one provider call under its own timeout window. The metadata
// return is non-nil whenever the provider reported token usage, including
// calls that then failed, so refused and unparseable replies still get
// costed.
func (o *Orchestrator) invoke(ctx context.Context, p provider.Provider, img provider.Image, domain model.Domain, profile provider.Profile) (*model.StructuredRecord, *model.ProviderMetadata, *provider.ExtractionError) {
	if !p.Available() {
		return nil, nil, &provider.ExtractionError{
			Provider: p.Name(),
			Reason:   provider.ReasonTransport,
			Err:      eris.New("provider not configured"),
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, o.opts.Timeout)
	defer cancel()

	rec, meta, err := p.Extract(callCtx, img, domain, profile)
	if err == nil {
		return rec, meta, nil
	}
	var extErr *provider.ExtractionError
	if !errors.As(err, &extErr) {
		extErr = &provider.ExtractionError{Provider: p.Name(), Reason: provider.ReasonTransport, Err: err}
	}
	return nil, meta, extErr
}

// fallbackFor returns the provider for the single hop, or nil when no hop is
// possible: fallback disabled, the failed provider is the fallback itself,
// or the configured name is not registered.
func (o *Orchestrator) fallbackFor(failed provider.Provider) provider.Provider {
	if !o.opts.FallbackEnabled || o.opts.FallbackProvider == "" {
		return nil
	}
	if failed.Name() == o.opts.FallbackProvider {
		return nil
	}
	fb, err := o.registry.Resolve(o.opts.FallbackProvider)
	if err != nil {
		zap.L().Warn("extract: fallback provider not registered",
			zap.String("fallback", o.opts.FallbackProvider))
		return nil
	}
	return fb
}

// fail closes the entry for an attempt where every eligible provider failed
// and returns the terminal error. A lone primary failure keeps its own
// reason as the entry's error kind; once a fallback was attempted the kind
// becomes extraction_unavailable and the primary reason moves to
// primary_failure.
func (o *Orchestrator) fail(ctx context.Context, entryID string, start time.Time, u *usage, primaryErr, fallbackErr *provider.ExtractionError, fallbackUsed bool, log *zap.Logger) error {
	unavailable := &ExtractionUnavailable{Primary: primaryErr, Fallback: fallbackErr}

	params := ledger.CloseParams{
		Success:          false,
		Model:            u.model,
		PromptTokens:     u.promptTokens,
		CompletionTokens: u.completionTokens,
		LatencyMS:        time.Since(start).Milliseconds(),
		CostUSD:          u.costUSD,
		ErrorKind:        primaryErr.Reason,
		ErrorDetail:      primaryErr.Error(),
		FallbackUsed:     fallbackUsed,
	}
	if fallbackErr != nil {
		params.ErrorKind = model.ErrKindUnavailable
		params.ErrorDetail = unavailable.Error()
		params.PrimaryFailure = primaryErr.Reason
	}
	o.closeEntry(ctx, entryID, params)

	log.Error("extract: attempt failed",
		zap.String("error_kind", params.ErrorKind),
		zap.Int64("latency_ms", params.LatencyMS),
		zap.Error(unavailable),
	)
	return unavailable
}

// closeEntry finalizes the row under WithoutCancel so a caller that gave up
// mid-attempt never leaves a half-open entry.
func (o *Orchestrator) closeEntry(ctx context.Context, id string, params ledger.CloseParams) {
	if err := o.ledger.CloseEntry(context.WithoutCancel(ctx), id, params); err != nil {
		zap.L().Warn("extract: close ledger entry", zap.String("entry_id", id), zap.Error(err))
	}
}

// usage accumulates token and cost totals across the attempt's provider
// calls. add also stamps the per-call cost onto the metadata itself.
type usage struct {
	costs            *cost.Calculator
	promptTokens     int
	completionTokens int
	model            string
	costUSD          float64
}

func (u *usage) add(meta *model.ProviderMetadata) {
	if meta == nil {
		return
	}
	meta.CostUSD = u.costs.Cost(meta.Provider, meta.Model, meta.PromptTokens, meta.CompletionTokens)
	u.promptTokens += meta.PromptTokens
	u.completionTokens += meta.CompletionTokens
	u.costUSD += meta.CostUSD
	if meta.Model != "" {
		u.model = meta.Model
	}
}
