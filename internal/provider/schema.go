package provider

import (
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/tastebase/capture-cli/internal/model"
)

// Reply schemas compiled once at init. A reply that parses as JSON but does
// not satisfy its domain schema is an unparseable_response, same as one that
// does not parse at all.

const recipeSchemaV1 = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["dish_name"],
  "properties": {
    "dish_name": {"type": "string", "minLength": 1},
    "servings": {"type": ["integer", "null"], "minimum": 0},
    "prep_minutes": {"type": ["integer", "null"], "minimum": 0},
    "cook_minutes": {"type": ["integer", "null"], "minimum": 0},
    "total_minutes": {"type": ["integer", "null"], "minimum": 0},
    "difficulty": {"type": ["string", "null"]},
    "category": {"type": ["string", "null"]},
    "cuisine": {"type": ["string", "null"]},
    "ingredients": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "required": ["name"],
        "properties": {
          "quantity": {"type": ["number", "null"]},
          "unit": {"type": ["string", "null"]},
          "name": {"type": "string"},
          "raw": {"type": ["string", "null"]}
        }
      }
    },
    "instructions": {"type": ["string", "null"]},
    "tools": {"type": ["array", "null"], "items": {"type": "string"}},
    "notes": {"type": ["string", "null"]}
  }
}`

const wineSchemaV1 = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["wine_name"],
  "properties": {
    "wine_name": {"type": "string", "minLength": 1},
    "producer": {"type": ["string", "null"]},
    "vintage": {"type": ["integer", "null"], "minimum": 1800, "maximum": 2100},
    "country": {"type": ["string", "null"]},
    "region": {"type": ["string", "null"]},
    "sub_region": {"type": ["string", "null"]},
    "appellation": {"type": ["string", "null"]},
    "wine_type": {
      "type": ["string", "null"],
      "enum": ["red", "white", "rose", "sparkling", "fortified", "sweet", null]
    },
    "grapes": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "required": ["variety"],
        "properties": {
          "variety": {"type": "string"},
          "percent": {"type": ["number", "null"], "minimum": 0, "maximum": 100}
        }
      }
    },
    "abv": {"type": ["number", "null"], "minimum": 0, "maximum": 100},
    "classification": {"type": ["string", "null"]},
    "code": {"type": ["string", "null"]},
    "notes": {"type": ["string", "null"]}
  }
}`

var (
	recipeSchema = jsonschema.MustCompileString("recipe.v1.schema.json", recipeSchemaV1)
	wineSchema   = jsonschema.MustCompileString("wine.v1.schema.json", wineSchemaV1)
)

func schemaFor(domain model.Domain) *jsonschema.Schema {
	if domain == model.DomainWine {
		return wineSchema
	}
	return recipeSchema
}
