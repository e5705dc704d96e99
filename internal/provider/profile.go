package provider

import (
	"github.com/rotisserie/eris"

	"github.com/tastebase/capture-cli/internal/model"
)

// Profile is the versioned instruction set for one domain: the natural
// language field instructions sent as the system prompt, and the JSON
// schema the reply must satisfy. Profiles are constants so the same version
// string always means the same prompt, which keeps cached system blocks and
// regression comparisons meaningful.
type Profile struct {
	Domain       model.Domain
	Version      string
	Instructions string
	UserPrompt   string
}

const recipeInstructionsV1 = `You extract recipe data from photos of cookbook pages, recipe cards and handwritten notes.

Reply with a single JSON object and nothing else. No markdown fences, no commentary.

Fields:
- "dish_name" (string, required): the name of the dish as written. Keep the original language.
- "servings" (integer or null): number of servings or portions.
- "prep_minutes" (integer or null): preparation time in minutes.
- "cook_minutes" (integer or null): cooking/baking time in minutes.
- "total_minutes" (integer or null): total time in minutes if stated separately.
- "difficulty" (string or null): one of "easy", "medium", "hard" when the source states or clearly implies it.
- "category" (string or null): e.g. "starter", "main", "dessert", "side", "drink".
- "cuisine" (string or null): e.g. "french", "italian".
- "ingredients" (array): one entry per ingredient line, each with:
  - "quantity" (number or null): numeric amount; convert fractions like 1/2 to 0.5.
  - "unit" (string or null): unit as written ("g", "cup", "tbsp", ...).
  - "name" (string): the ingredient itself.
  - "raw" (string): the full line exactly as written.
- "instructions" (string): the preparation steps, joined with newlines, in the original language.
- "tools" (array of strings or null): special equipment mentioned.
- "notes" (string or null): tips, variations, serving suggestions.

Transcribe only what is visible. Use null for anything not present; never guess quantities or times.`

const wineInstructionsV1 = `You extract wine label data from photos of bottles and labels.

Reply with a single JSON object and nothing else. No markdown fences, no commentary.

Fields:
- "wine_name" (string, required): the cuvée or wine name as printed, without the producer.
- "producer" (string or null): the producing estate, domaine, château or brand.
- "vintage" (integer or null): the four-digit year, null for non-vintage.
- "country" (string or null)
- "region" (string or null): e.g. "Bourgogne", "Mosel", "Rioja".
- "sub_region" (string or null): e.g. "Côte de Nuits".
- "appellation" (string or null): the legal designation as printed (AOC/AOP, DOCG, AVA, ...).
- "wine_type" (string or null): one of "red", "white", "rose", "sparkling", "fortified", "sweet".
- "grapes" (array or null): one entry per variety, each with:
  - "variety" (string): the grape name.
  - "percent" (number or null): blend share if printed.
- "abv" (number or null): alcohol by volume as a percentage, e.g. 13.5.
- "classification" (string or null): e.g. "Grand Cru", "Premier Cru", "Riserva".
- "code" (string or null): any printed numeric article or registry code, digits only.
- "notes" (string or null): tasting or back-label text worth keeping, abridged.

Transcribe only what is printed. Use null for anything not present; never infer a vintage or region from style.`

// User-turn prompts are short; the heavy lifting lives in the cached system
// instructions above.
const (
	recipeUserPromptV1 = "Extract the recipe from this photo as JSON."
	wineUserPromptV1   = "Extract the wine label from this photo as JSON."
)

var (
	recipeProfileV1 = Profile{
		Domain:       model.DomainRecipe,
		Version:      "recipe.v1",
		Instructions: recipeInstructionsV1,
		UserPrompt:   recipeUserPromptV1,
	}
	wineProfileV1 = Profile{
		Domain:       model.DomainWine,
		Version:      "wine.v1",
		Instructions: wineInstructionsV1,
		UserPrompt:   wineUserPromptV1,
	}
)

// ProfileFor returns the current instruction profile for a domain.
func ProfileFor(domain model.Domain) (Profile, error) {
	switch domain {
	case model.DomainRecipe:
		return recipeProfileV1, nil
	case model.DomainWine:
		return wineProfileV1, nil
	default:
		return Profile{}, eris.Errorf("provider: no instruction profile for domain %q", domain)
	}
}
