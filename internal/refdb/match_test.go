package refdb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tastebase/capture-cli/internal/model"
)

func wineRecord(identity, producer string, vintage *int, code string) *model.StructuredRecord {
	return &model.StructuredRecord{
		Domain:   model.DomainWine,
		Identity: identity,
		Wine: &model.WineFields{
			Producer:      producer,
			Vintage:       vintage,
			SuggestedCode: code,
		},
	}
}

func seedCatalog(t *testing.T, st *SQLiteStore, refs ...model.ReferenceRecord) {
	t.Helper()
	_, err := st.UpsertBatch(context.Background(), refs)
	require.NoError(t, err)
}

func TestMatcher_ExactCode16(t *testing.T) {
	st := newTestStore(t)
	seedCatalog(t, st,
		seedRef("1012345", intPtr(2015), "Clos des Mouches", "Joseph Drouhin"),
		seedRef("1023456", intPtr(2016), "Cannubi", "Marchesi di Barolo"),
	)
	m := NewMatcher(st, 0, 0)

	rec := wineRecord("Clos des Mouches", "", nil, "1012345201500750")
	result, err := m.Match(context.Background(), rec)
	require.NoError(t, err)
	require.True(t, result.Matched())
	assert.Equal(t, model.MatchTierExact, result.Tier)
	assert.Equal(t, 1.0, result.MatchConfidence)
	assert.Equal(t, "1012345201500750", result.Reference.Code16)
	assert.Equal(t, 1, result.Candidates)
}

func TestMatcher_Code16MissFallsToCode11(t *testing.T) {
	st := newTestStore(t)
	seedCatalog(t, st, seedRef("1012345", intPtr(2015), "Clos des Mouches", "Joseph Drouhin"))
	m := NewMatcher(st, 0, 0)

	// Pack digits not in the catalog; the 11-digit prefix still pins the wine.
	rec := wineRecord("", "", nil, "1012345201501500")
	result, err := m.Match(context.Background(), rec)
	require.NoError(t, err)
	require.True(t, result.Matched())
	assert.Equal(t, model.MatchTierExact, result.Tier)
	assert.Equal(t, "10123452015", result.Reference.Code11)
}

func TestMatcher_Code11PackVariantsPickFirst(t *testing.T) {
	st := newTestStore(t)
	bottle := seedRef("1012345", intPtr(2015), "Clos des Mouches", "Joseph Drouhin")
	magnum := bottle
	magnum.Code16 = bottle.Code11 + "01500"
	magnum.ID = magnum.Code16
	seedCatalog(t, st, bottle, magnum)
	m := NewMatcher(st, 0, 0)

	rec := wineRecord("", "", nil, "10123452015")
	result, err := m.Match(context.Background(), rec)
	require.NoError(t, err)
	require.True(t, result.Matched())
	assert.Equal(t, model.MatchTierExact, result.Tier)
	assert.Equal(t, 2, result.Candidates)
	assert.Equal(t, bottle.Code16, result.Reference.Code16, "rows order by code16, bottle sorts first")
}

func TestMatcher_Code7UsesVintageToPickGroup(t *testing.T) {
	st := newTestStore(t)
	seedCatalog(t, st,
		seedRef("1012345", intPtr(2015), "Clos des Mouches", "Joseph Drouhin"),
		seedRef("1012345", intPtr(2016), "Clos des Mouches", "Joseph Drouhin"),
	)
	m := NewMatcher(st, 0, 0)

	rec := wineRecord("", "", intPtr(2016), "1012345")
	result, err := m.Match(context.Background(), rec)
	require.NoError(t, err)
	require.True(t, result.Matched())
	assert.Equal(t, model.MatchTierExact, result.Tier)
	require.NotNil(t, result.Reference.Vintage)
	assert.Equal(t, 2016, *result.Reference.Vintage)
	assert.Equal(t, 2, result.Candidates)
}

func TestMatcher_Code7WithoutVintageStaysAmbiguous(t *testing.T) {
	st := newTestStore(t)
	seedCatalog(t, st,
		seedRef("1012345", intPtr(2015), "Clos des Mouches", "Joseph Drouhin"),
		seedRef("1012345", intPtr(2016), "Clos des Mouches", "Joseph Drouhin"),
	)
	m := NewMatcher(st, 0, 0)

	// Two vintages share the 7-digit code; identity and producer tiers then
	// see the same two rows, so the cascade ends with no match.
	rec := wineRecord("Clos des Mouches", "Joseph Drouhin", nil, "1012345")
	result, err := m.Match(context.Background(), rec)
	require.NoError(t, err)
	assert.False(t, result.Matched())
	assert.Equal(t, model.MatchTierNone, result.Tier)
}

func TestMatcher_IdentityVintage(t *testing.T) {
	st := newTestStore(t)
	seedCatalog(t, st,
		seedRef("1012345", intPtr(2015), "Clos des Mouches", "Joseph Drouhin"),
		seedRef("1012345", intPtr(2016), "Clos des Mouches", "Joseph Drouhin"),
	)
	m := NewMatcher(st, 0, 0)

	rec := wineRecord("Clos des Mouches", "Joseph Drouhin", intPtr(2015), "")
	result, err := m.Match(context.Background(), rec)
	require.NoError(t, err)
	require.True(t, result.Matched())
	assert.Equal(t, model.MatchTierIdentityVintage, result.Tier)
	assert.Equal(t, 0.95, result.MatchConfidence)
	assert.Equal(t, 2015, *result.Reference.Vintage)
}

func TestMatcher_IdentityWithoutProducer(t *testing.T) {
	st := newTestStore(t)
	seedCatalog(t, st,
		seedRef("1012345", intPtr(2015), "Clos des Mouches", "Joseph Drouhin"),
		seedRef("1034567", intPtr(2018), "Montrachet Marquis de Laguiche", "Joseph Drouhin"),
	)
	m := NewMatcher(st, 0, 0)

	rec := wineRecord("Montrachet Marquis de Laguiche", "", nil, "")
	result, err := m.Match(context.Background(), rec)
	require.NoError(t, err)
	require.True(t, result.Matched())
	assert.Equal(t, model.MatchTierIdentityVintage, result.Tier)
	assert.Equal(t, "1034567", result.Reference.Code7)
}

func TestMatcher_ProducerFuzzy(t *testing.T) {
	st := newTestStore(t)
	seedCatalog(t, st,
		seedRef("1012345", intPtr(2015), "Clos des Mouches", "Joseph Drouhin"),
		seedRef("1034567", intPtr(2018), "Montrachet Marquis de Laguiche", "Joseph Drouhin"),
	)
	m := NewMatcher(st, 0, 0)

	// Label text drops the "de"; identity equality misses, fuzzy recovers.
	rec := wineRecord("Montrachet Marquis Laguiche", "Joseph Drouhin", nil, "")
	result, err := m.Match(context.Background(), rec)
	require.NoError(t, err)
	require.True(t, result.Matched())
	assert.Equal(t, model.MatchTierProducerFuzzy, result.Tier)
	assert.Equal(t, "1034567", result.Reference.Code7)
	assert.GreaterOrEqual(t, result.MatchConfidence, DefaultSimilarityThreshold)
	assert.Less(t, result.MatchConfidence, 1.0)
	assert.Equal(t, 2, result.Candidates)
}

func TestMatcher_AmbiguousIdentityYieldsNone(t *testing.T) {
	st := newTestStore(t)
	// Same normalized producer and vintage, same wine name, different codes.
	seedCatalog(t, st,
		seedRef("1011111", intPtr(2015), "Réserve Spéciale", "Maison Dupont"),
		seedRef("1022222", intPtr(2015), "Reserve Speciale", "Maison Dupont"),
	)
	m := NewMatcher(st, 0, 0)

	rec := wineRecord("Reserve Speciale", "Maison Dupont", intPtr(2015), "")
	result, err := m.Match(context.Background(), rec)
	require.NoError(t, err)
	assert.False(t, result.Matched())
	assert.Equal(t, model.MatchTierNone, result.Tier)
	assert.Nil(t, result.Reference)
}

func TestMatcher_NonWineDomain(t *testing.T) {
	st := newTestStore(t)
	m := NewMatcher(st, 0, 0)

	rec := &model.StructuredRecord{Domain: model.DomainRecipe, Identity: "Tarte aux pommes"}
	result, err := m.Match(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, model.MatchTierNone, result.Tier)
	assert.False(t, result.Matched())
}

func TestMatcher_ShortCodeIgnored(t *testing.T) {
	st := newTestStore(t)
	seedCatalog(t, st, seedRef("1012345", intPtr(2015), "Clos des Mouches", "Joseph Drouhin"))
	m := NewMatcher(st, 0, 0)

	rec := wineRecord("", "", nil, "12345")
	result, err := m.Match(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, model.MatchTierNone, result.Tier)
}

func TestMatcher_EmptyStore(t *testing.T) {
	st := newTestStore(t)
	m := NewMatcher(st, 0, 0)

	rec := wineRecord("Clos des Mouches", "Joseph Drouhin", intPtr(2015), "1012345201500750")
	result, err := m.Match(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, model.MatchTierNone, result.Tier)
	assert.Zero(t, result.Candidates)
}

func TestMatchAndEnrich_ExactCodeScenario(t *testing.T) {
	st := newTestStore(t)
	ref := seedRef("1012345", intPtr(2015), "Clos des Mouches", "Joseph Drouhin")
	ref.Country = "France"
	ref.Region = "Burgundy"
	ref.SubRegion = "Beaune"
	ref.Colour = "Red"
	ref.Type = "Still"
	seedCatalog(t, st, ref)
	m := NewMatcher(st, 0, 0)

	rec := wineRecord("Clos des Mouches", "", intPtr(2015), "1012345201500750")
	result, err := m.Match(context.Background(), rec)
	require.NoError(t, err)
	require.Equal(t, model.MatchTierExact, result.Tier)

	filled := Enrich(rec, result)
	assert.Contains(t, filled, "region")
	assert.Equal(t, "Burgundy", rec.Wine.Region)
	assert.Equal(t, "France", rec.Wine.Country)
	assert.Equal(t, "Joseph Drouhin", rec.Wine.Producer)
	assert.Equal(t, model.WineTypeRed, rec.Wine.WineType)
	assert.Equal(t, "Clos des Mouches", rec.Identity, "identity came from the label, not the catalog")
}
