package refdb

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/tastebase/capture-cli/internal/model"
)

// Default matcher settings, used when config leaves them zero.
const (
	DefaultSimilarityThreshold = 0.82
	DefaultMaxCandidates       = 25
)

// Code prefix lengths, most specific first. A full code pins the pack size,
// the 11-digit prefix pins the vintage, the 7-digit prefix pins the wine.
const (
	codeLen16 = 16
	codeLen11 = 11
	codeLen7  = 7
)

// Matcher resolves extracted wine records against the reference catalog.
// Tiers run most-specific first and the first unambiguous hit wins; a tier
// with more than one equally strong candidate yields nothing rather than
// guessing, and the next tier gets its chance.
type Matcher struct {
	store         Store
	threshold     float64
	maxCandidates int
}

// NewMatcher builds a Matcher over a reference store. Zero threshold or
// candidate limit fall back to the defaults.
func NewMatcher(store Store, threshold float64, maxCandidates int) *Matcher {
	if threshold <= 0 {
		threshold = DefaultSimilarityThreshold
	}
	if maxCandidates <= 0 {
		maxCandidates = DefaultMaxCandidates
	}
	return &Matcher{store: store, threshold: threshold, maxCandidates: maxCandidates}
}

// Match runs the tier cascade for one extracted record. It never mutates the
// record; enrichment is a separate step so callers can inspect the match
// before merging. Records outside the wine domain return the no-match result.
func (m *Matcher) Match(ctx context.Context, rec *model.StructuredRecord) (*model.MatchResult, error) {
	if rec == nil || rec.Domain != model.DomainWine || rec.Wine == nil {
		return noMatch(), nil
	}

	result, err := m.matchByCode(ctx, rec)
	if err != nil {
		return nil, err
	}
	if result == nil {
		result, err = m.matchByIdentity(ctx, rec)
		if err != nil {
			return nil, err
		}
	}
	if result == nil {
		result, err = m.matchByProducer(ctx, rec)
		if err != nil {
			return nil, err
		}
	}
	if result == nil {
		return noMatch(), nil
	}

	zap.L().Debug("reference match",
		zap.String("tier", string(result.Tier)),
		zap.Int("candidates", result.Candidates),
		zap.Float64("match_confidence", result.MatchConfidence),
	)
	return result, nil
}

// matchByCode looks the provider-suggested code up at each prefix length.
// Rows sharing an 11-digit prefix are pack variants of one wine and vintage,
// so any of them identifies the wine; rows sharing only the 7-digit prefix
// span vintages and match only when the extracted vintage (or the catalog
// itself) narrows them to a single vintage group.
func (m *Matcher) matchByCode(ctx context.Context, rec *model.StructuredRecord) (*model.MatchResult, error) {
	code := NormalizeCode(rec.Wine.SuggestedCode)
	if len(code) < codeLen7 {
		return nil, nil
	}

	if len(code) >= codeLen16 {
		rows, err := m.store.FindByCode(ctx, CodeTier16, code[:codeLen16])
		if err != nil {
			return nil, eris.Wrap(err, "refdb: match code16")
		}
		if len(rows) == 1 {
			return exactMatch(&rows[0], len(rows)), nil
		}
	}

	if len(code) >= codeLen11 {
		rows, err := m.store.FindByCode(ctx, CodeTier11, code[:codeLen11])
		if err != nil {
			return nil, eris.Wrap(err, "refdb: match code11")
		}
		if len(rows) > 0 {
			return exactMatch(&rows[0], len(rows)), nil
		}
	}

	rows, err := m.store.FindByCode(ctx, CodeTier7, code[:codeLen7])
	if err != nil {
		return nil, eris.Wrap(err, "refdb: match code7")
	}
	candidates := len(rows)
	if rec.Wine.Vintage != nil {
		rows = filterByVintage(rows, *rec.Wine.Vintage)
	}
	if len(rows) > 0 && oneVintageGroup(rows) {
		return exactMatch(&rows[0], candidates), nil
	}
	return nil, nil
}

// oneVintageGroup reports whether every row shares one 11-digit code, which
// makes the rows pack variants of a single wine and vintage.
func oneVintageGroup(rows []model.ReferenceRecord) bool {
	if len(rows) > 1 && rows[0].Code11 == "" {
		return false
	}
	for i := 1; i < len(rows); i++ {
		if rows[i].Code11 != rows[0].Code11 {
			return false
		}
	}
	return true
}

// matchByIdentity searches on normalized name and producer, pinning the
// vintage when the extraction read one. Exactly one candidate wins.
func (m *Matcher) matchByIdentity(ctx context.Context, rec *model.StructuredRecord) (*model.MatchResult, error) {
	normName := Normalize(rec.Identity)
	if normName == "" {
		return nil, nil
	}
	normProducer := Normalize(rec.Wine.Producer)

	rows, err := m.store.FindByIdentity(ctx, normName, normProducer, rec.Wine.Vintage, m.maxCandidates)
	if err != nil {
		return nil, eris.Wrap(err, "refdb: match identity")
	}
	if len(rows) != 1 {
		return nil, nil
	}
	return &model.MatchResult{
		Tier:            model.MatchTierIdentityVintage,
		Reference:       &rows[0],
		Candidates:      len(rows),
		MatchConfidence: 0.95,
	}, nil
}

// matchByProducer broadens to every wine of the producer and scores each
// against the extracted identity. Exactly one candidate over the similarity
// threshold wins, with the similarity as match confidence.
func (m *Matcher) matchByProducer(ctx context.Context, rec *model.StructuredRecord) (*model.MatchResult, error) {
	normName := Normalize(rec.Identity)
	normProducer := Normalize(rec.Wine.Producer)
	if normName == "" || normProducer == "" {
		return nil, nil
	}

	rows, err := m.store.FindByProducer(ctx, normProducer, m.maxCandidates)
	if err != nil {
		return nil, eris.Wrap(err, "refdb: match producer")
	}

	var (
		passing int
		best    *model.ReferenceRecord
		bestSim float64
	)
	for i := range rows {
		sim := Similarity(normName, rows[i].NormName)
		if sim < m.threshold {
			continue
		}
		passing++
		if sim > bestSim {
			bestSim = sim
			best = &rows[i]
		}
	}
	if passing != 1 {
		return nil, nil
	}
	return &model.MatchResult{
		Tier:            model.MatchTierProducerFuzzy,
		Reference:       best,
		Candidates:      len(rows),
		MatchConfidence: bestSim,
	}, nil
}

func exactMatch(ref *model.ReferenceRecord, candidates int) *model.MatchResult {
	return &model.MatchResult{
		Tier:            model.MatchTierExact,
		Reference:       ref,
		Candidates:      candidates,
		MatchConfidence: 1.0,
	}
}

func noMatch() *model.MatchResult {
	return &model.MatchResult{Tier: model.MatchTierNone}
}

func filterByVintage(rows []model.ReferenceRecord, vintage int) []model.ReferenceRecord {
	var out []model.ReferenceRecord
	for _, r := range rows {
		if r.Vintage != nil && *r.Vintage == vintage {
			out = append(out, r)
		}
	}
	return out
}
