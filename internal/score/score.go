// Package score rates how complete an extracted record is. The score is a
// weighted field-completeness checklist per domain, a pure function of the
// record: no provider state, no randomness, no I/O.
package score

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/tastebase/capture-cli/internal/model"
)

// Instructions shorter than this read as a caption, not a method.
const minInstructionRunes = 20

// Score computes the confidence checklist for a record. Identical records
// always produce identical scores.
func Score(rec *model.StructuredRecord) model.ConfidenceScore {
	if rec == nil {
		return model.ConfidenceScore{}
	}

	switch rec.Domain {
	case model.DomainRecipe:
		return fromChecklist(recipeChecklist(rec))
	case model.DomainWine:
		return fromChecklist(wineChecklist(rec))
	default:
		return model.ConfidenceScore{}
	}
}

func recipeChecklist(rec *model.StructuredRecord) []model.ChecklistItem {
	r := rec.Recipe
	if r == nil {
		r = &model.RecipeFields{}
	}

	instructions := strings.TrimSpace(r.Instructions)

	return []model.ChecklistItem{
		passFail("identity", 1.0, rec.HasIdentity()),
		passFail("ingredients", 1.0, len(r.Ingredients) > 0),
		passFail("instructions", 1.0, utf8.RuneCountInString(instructions) > minInstructionRunes),
		passFail("servings", 0.5, r.Servings != nil),
		passFail("timing", 0.5, r.AnyTiming()),
		passFail("difficulty", 0.5, r.Difficulty != ""),
		passFail("category", 0.5, r.Category != ""),
		{Name: "quantities", Weight: 1.0, Earned: quantifiedShare(r.Ingredients)},
	}
}

func wineChecklist(rec *model.StructuredRecord) []model.ChecklistItem {
	w := rec.Wine
	if w == nil {
		w = &model.WineFields{}
	}

	return []model.ChecklistItem{
		passFail("identity", 1.0, rec.HasIdentity()),
		passFail("producer", 1.0, w.Producer != ""),
		passFail("vintage", 1.0, w.Vintage != nil),
		passFail("region", 1.0, w.Region != "" || w.Country != ""),
		passFail("wine_type", 1.0, w.WineType != ""),
		passFail("grapes", 0.5, len(w.Grapes) > 0),
		passFail("abv", 0.5, w.ABV != nil),
	}
}

func passFail(name string, weight float64, ok bool) model.ChecklistItem {
	item := model.ChecklistItem{Name: name, Weight: weight}
	if ok {
		item.Earned = weight
	}
	return item
}

// quantifiedShare is the fraction of ingredients carrying a parsed numeric
// quantity. An all-quantified list earns the full bonus weight.
func quantifiedShare(ingredients []model.Ingredient) float64 {
	if len(ingredients) == 0 {
		return 0
	}
	var n int
	for _, ing := range ingredients {
		if ing.Quantity != nil {
			n++
		}
	}
	return float64(n) / float64(len(ingredients))
}

func fromChecklist(items []model.ChecklistItem) model.ConfidenceScore {
	var total, earned float64
	for _, item := range items {
		total += item.Weight
		earned += item.Earned
	}
	if total == 0 {
		return model.ConfidenceScore{Checklist: items}
	}

	value := earned / total
	value = math.Max(0, math.Min(1, value))
	return model.ConfidenceScore{Value: value, Checklist: items}
}
