package provider

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/tastebase/capture-cli/internal/model"
)

// cleanJSON strips markdown fences and any chatter around the first JSON
// object in a model reply.
func cleanJSON(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "{"); i > 0 {
		s = s[i:]
	}
	if i := strings.LastIndex(s, "}"); i >= 0 && i < len(s)-1 {
		s = s[:i+1]
	}
	return s
}

var refusalRe = regexp.MustCompile(`(?i)\b(cannot|can't|can not|unable to|won't|will not|not able to)\b`)

// looksLikeRefusal reports whether a reply with no JSON object reads as the
// model declining the task rather than producing a malformed one.
func looksLikeRefusal(text string) bool {
	return !strings.Contains(text, "{") && refusalRe.MatchString(text)
}

type ingredientPayload struct {
	Quantity *float64 `json:"quantity"`
	Unit     *string  `json:"unit"`
	Name     string   `json:"name"`
	Raw      *string  `json:"raw"`
}

type recipePayload struct {
	DishName     string              `json:"dish_name"`
	Servings     *int                `json:"servings"`
	PrepMinutes  *int                `json:"prep_minutes"`
	CookMinutes  *int                `json:"cook_minutes"`
	TotalMinutes *int                `json:"total_minutes"`
	Difficulty   *string             `json:"difficulty"`
	Category     *string             `json:"category"`
	Cuisine      *string             `json:"cuisine"`
	Ingredients  []ingredientPayload `json:"ingredients"`
	Instructions *string             `json:"instructions"`
	Tools        []string            `json:"tools"`
	Notes        *string             `json:"notes"`
}

type grapePayload struct {
	Variety string   `json:"variety"`
	Percent *float64 `json:"percent"`
}

type winePayload struct {
	WineName       string         `json:"wine_name"`
	Producer       *string        `json:"producer"`
	Vintage        *int           `json:"vintage"`
	Country        *string        `json:"country"`
	Region         *string        `json:"region"`
	SubRegion      *string        `json:"sub_region"`
	Appellation    *string        `json:"appellation"`
	WineType       *string        `json:"wine_type"`
	Grapes         []grapePayload `json:"grapes"`
	ABV            *float64       `json:"abv"`
	Classification *string        `json:"classification"`
	Code           *string        `json:"code"`
	Notes          *string        `json:"notes"`
}

// decodeRecord turns a raw model reply into a StructuredRecord for the given
// domain: fence stripping, schema validation, then a typed decode. Any error
// here means the reply did not fit the profile's required shape.
func decodeRecord(raw string, domain model.Domain) (*model.StructuredRecord, error) {
	cleaned := cleanJSON(raw)
	if !strings.HasPrefix(cleaned, "{") {
		return nil, eris.New("provider: reply contains no JSON object")
	}

	var v any
	if err := json.Unmarshal([]byte(cleaned), &v); err != nil {
		return nil, eris.Wrap(err, "provider: unmarshal reply")
	}
	if err := schemaFor(domain).Validate(v); err != nil {
		return nil, eris.Wrap(err, "provider: reply does not match profile schema")
	}

	switch domain {
	case model.DomainWine:
		var p winePayload
		if err := json.Unmarshal([]byte(cleaned), &p); err != nil {
			return nil, eris.Wrap(err, "provider: decode wine reply")
		}
		return wineRecord(p), nil
	default:
		var p recipePayload
		if err := json.Unmarshal([]byte(cleaned), &p); err != nil {
			return nil, eris.Wrap(err, "provider: decode recipe reply")
		}
		return recipeRecord(p), nil
	}
}

func recipeRecord(p recipePayload) *model.StructuredRecord {
	rec := &model.StructuredRecord{
		Domain:   model.DomainRecipe,
		Identity: strings.TrimSpace(p.DishName),
		Recipe: &model.RecipeFields{
			Servings:     p.Servings,
			PrepMinutes:  p.PrepMinutes,
			CookMinutes:  p.CookMinutes,
			TotalMinutes: p.TotalMinutes,
			Difficulty:   strVal(p.Difficulty),
			Category:     strVal(p.Category),
			Cuisine:      strVal(p.Cuisine),
			Instructions: strVal(p.Instructions),
			Tools:        p.Tools,
			Notes:        strVal(p.Notes),
		},
	}
	for _, ing := range p.Ingredients {
		name := strings.TrimSpace(ing.Name)
		raw := strVal(ing.Raw)
		if name == "" && raw == "" {
			continue
		}
		rec.Recipe.Ingredients = append(rec.Recipe.Ingredients, model.Ingredient{
			Quantity: ing.Quantity,
			Unit:     strVal(ing.Unit),
			Name:     name,
			Raw:      raw,
		})
	}
	return rec
}

func wineRecord(p winePayload) *model.StructuredRecord {
	rec := &model.StructuredRecord{
		Domain:   model.DomainWine,
		Identity: strings.TrimSpace(p.WineName),
		Wine: &model.WineFields{
			Producer:       strVal(p.Producer),
			Vintage:        p.Vintage,
			Country:        strVal(p.Country),
			Region:         strVal(p.Region),
			SubRegion:      strVal(p.SubRegion),
			Appellation:    strVal(p.Appellation),
			WineType:       strVal(p.WineType),
			ABV:            p.ABV,
			Classification: strVal(p.Classification),
			SuggestedCode:  digitsOnly(strVal(p.Code)),
			Notes:          strVal(p.Notes),
		},
	}
	for _, g := range p.Grapes {
		variety := strings.TrimSpace(g.Variety)
		if variety == "" {
			continue
		}
		rec.Wine.Grapes = append(rec.Wine.Grapes, model.GrapeShare{Variety: variety, Percent: g.Percent})
	}
	return rec
}

func strVal(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
