package model

import (
	"time"
)

// StructuredRecord is the typed result of one extraction attempt. Every field
// is optional except the identity field for the record's domain (recipe title,
// wine name). Absence is expressed as the zero value: empty string, nil
// pointer, or empty slice. A populated field is always a captured field.
type StructuredRecord struct {
	Domain   Domain `json:"domain"`
	Identity string `json:"identity,omitempty"`

	// Exactly one of Recipe/Wine is non-nil, matching Domain.
	Recipe *RecipeFields `json:"recipe,omitempty"`
	Wine   *WineFields   `json:"wine,omitempty"`
}

// RecipeFields holds the recipe-domain fields.
type RecipeFields struct {
	Servings     *int         `json:"servings,omitempty"`
	PrepMinutes  *int         `json:"prep_minutes,omitempty"`
	CookMinutes  *int         `json:"cook_minutes,omitempty"`
	TotalMinutes *int         `json:"total_minutes,omitempty"`
	Difficulty   string       `json:"difficulty,omitempty"`
	Category     string       `json:"category,omitempty"`
	Cuisine      string       `json:"cuisine,omitempty"`
	Ingredients  []Ingredient `json:"ingredients,omitempty"`
	Instructions string       `json:"instructions,omitempty"`
	Tools        []string     `json:"tools,omitempty"`
	Notes        string       `json:"notes,omitempty"`
}

// Ingredient is a single ingredient line. Raw preserves the verbatim text of
// the line; Quantity/Unit/Name are the parsed decomposition when available.
type Ingredient struct {
	Quantity *float64 `json:"quantity,omitempty"`
	Unit     string   `json:"unit,omitempty"`
	Name     string   `json:"name,omitempty"`
	Raw      string   `json:"raw,omitempty"`
}

// WineFields holds the wine-domain fields.
type WineFields struct {
	Producer       string       `json:"producer,omitempty"`
	Vintage        *int         `json:"vintage,omitempty"`
	Country        string       `json:"country,omitempty"`
	Region         string       `json:"region,omitempty"`
	SubRegion      string       `json:"sub_region,omitempty"`
	Appellation    string       `json:"appellation,omitempty"`
	WineType       string       `json:"wine_type,omitempty"`
	Grapes         []GrapeShare `json:"grapes,omitempty"`
	ABV            *float64     `json:"abv,omitempty"`
	Classification string       `json:"classification,omitempty"`
	SuggestedCode  string       `json:"suggested_code,omitempty"`
	Notes          string       `json:"notes,omitempty"`
}

// Wine types.
const (
	WineTypeRed       = "red"
	WineTypeWhite     = "white"
	WineTypeRose      = "rose"
	WineTypeSparkling = "sparkling"
	WineTypeFortified = "fortified"
	WineTypeSweet     = "sweet"
)

// GrapeShare is one variety in a wine's composition, with an optional
// percentage when the label states it.
type GrapeShare struct {
	Variety string   `json:"variety"`
	Percent *float64 `json:"percent,omitempty"`
}

// HasIdentity reports whether the domain's minimal identity field is set.
// A record without identity is still returned to the caller but scores zero
// on the identity checklist item.
func (r *StructuredRecord) HasIdentity() bool {
	return r != nil && r.Identity != ""
}

// AnyTiming reports whether any recipe timing field is populated.
func (f *RecipeFields) AnyTiming() bool {
	if f == nil {
		return false
	}
	return f.PrepMinutes != nil || f.CookMinutes != nil || f.TotalMinutes != nil
}

// ProviderMetadata records what one extraction attempt cost. Built once per
// attempt and immutable afterwards.
type ProviderMetadata struct {
	Provider         string        `json:"provider"`
	Model            string        `json:"model,omitempty"`
	PromptTokens     int           `json:"prompt_tokens"`
	CompletionTokens int           `json:"completion_tokens"`
	Latency          time.Duration `json:"latency"`
	CostUSD          float64       `json:"cost_usd"`
}

// ChecklistItem is one weighted component of a confidence score.
type ChecklistItem struct {
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
	Earned float64 `json:"earned"`
}

// ConfidenceScore is a completeness estimate in [0,1] for a structured
// record, with the checklist that produced it so callers can explain a low
// score. Derived per request; never persisted apart from the ledger copy.
type ConfidenceScore struct {
	Value     float64         `json:"value"`
	Checklist []ChecklistItem `json:"checklist,omitempty"`
}
