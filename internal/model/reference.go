package model

import (
	"time"
)

// ReferenceRecord is one row of the canonical wine catalog. The code exists
// at three granularities: Code7 identifies the wine, Code11 adds the vintage,
// Code16 adds the pack/bottle size. Rows are written only by the bulk import
// job and are read-only to the extraction pipeline.
type ReferenceRecord struct {
	ID          string `json:"id" db:"id"`
	Code7       string `json:"code7" db:"code7"`
	Code11      string `json:"code11,omitempty" db:"code11"`
	Code16      string `json:"code16,omitempty" db:"code16"`
	DisplayName string `json:"display_name" db:"display_name"`
	Producer    string `json:"producer,omitempty" db:"producer"`
	Wine        string `json:"wine,omitempty" db:"wine"`
	Country     string `json:"country,omitempty" db:"country"`
	Region      string `json:"region,omitempty" db:"region"`
	SubRegion   string `json:"sub_region,omitempty" db:"sub_region"`
	Site        string `json:"site,omitempty" db:"site"`
	Colour      string `json:"colour,omitempty" db:"colour"`
	Type        string `json:"type,omitempty" db:"type"`
	Vintage     *int   `json:"vintage,omitempty" db:"vintage"`

	// Search keys derived at import time from DisplayName/Producer.
	NormName     string `json:"-" db:"norm_name"`
	NormProducer string `json:"-" db:"norm_producer"`

	ImportedAt time.Time `json:"imported_at" db:"imported_at"`
}

// MatchTier identifies which matching strategy produced a MatchResult.
type MatchTier string

// Match tiers, most specific first.
const (
	MatchTierExact           MatchTier = "exact"
	MatchTierIdentityVintage MatchTier = "identity_vintage"
	MatchTierProducerFuzzy   MatchTier = "producer_fuzzy"
	MatchTierNone            MatchTier = "none"
)

// MatchResult is the outcome of reference matching for one extracted record.
// Candidates counts how many reference rows the winning tier considered; an
// ambiguous tier (more than one equally strong candidate) reports
// MatchTierNone rather than guessing. MatchConfidence is distinct from
// extraction confidence.
type MatchResult struct {
	Tier            MatchTier        `json:"tier"`
	Reference       *ReferenceRecord `json:"reference,omitempty"`
	Candidates      int              `json:"candidates"`
	MatchConfidence float64          `json:"match_confidence"`
}

// Matched reports whether a reference record was unambiguously found.
func (m *MatchResult) Matched() bool {
	return m != nil && m.Tier != MatchTierNone && m.Reference != nil
}
