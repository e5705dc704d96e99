package refdb

import (
	"strings"

	"github.com/tastebase/capture-cli/internal/model"
)

// Enrich copies catalog values into the extracted record wherever the
// extraction left a field unknown. Populated fields are never overwritten,
// even when the catalog disagrees: the photographed label is the higher-trust
// source for whatever it captured, and the catalog only fills gaps. The
// returned slice names the fields that were filled, in a fixed order.
func Enrich(rec *model.StructuredRecord, match *model.MatchResult) []string {
	if rec == nil || rec.Wine == nil || !match.Matched() {
		return nil
	}
	ref := match.Reference

	var filled []string
	fill := func(name string, dst *string, src string) {
		if *dst == "" && src != "" {
			*dst = src
			filled = append(filled, name)
		}
	}

	identity := ref.Wine
	if identity == "" {
		identity = ref.DisplayName
	}
	fill("identity", &rec.Identity, identity)
	fill("producer", &rec.Wine.Producer, ref.Producer)

	if rec.Wine.Vintage == nil && ref.Vintage != nil {
		v := *ref.Vintage
		rec.Wine.Vintage = &v
		filled = append(filled, "vintage")
	}

	fill("country", &rec.Wine.Country, ref.Country)
	fill("region", &rec.Wine.Region, ref.Region)
	fill("sub_region", &rec.Wine.SubRegion, ref.SubRegion)
	fill("wine_type", &rec.Wine.WineType, wineTypeFromReference(ref.Colour, ref.Type))
	fill("suggested_code", &rec.Wine.SuggestedCode, mostSpecificCode(ref))

	return filled
}

// wineTypeFromReference maps the catalog's colour/type pair onto the record
// vocabulary. Type beats colour when both are set: a sparkling rosé is
// "sparkling". Unknown pairs return "" so nothing is filled.
func wineTypeFromReference(colour, typ string) string {
	switch strings.ToLower(strings.TrimSpace(typ)) {
	case "sparkling":
		return model.WineTypeSparkling
	case "fortified":
		return model.WineTypeFortified
	case "sweet", "dessert":
		return model.WineTypeSweet
	}
	switch strings.ToLower(strings.TrimSpace(colour)) {
	case "red":
		return model.WineTypeRed
	case "white":
		return model.WineTypeWhite
	case "rose", "rosé":
		return model.WineTypeRose
	}
	return ""
}

func mostSpecificCode(ref *model.ReferenceRecord) string {
	switch {
	case ref.Code16 != "":
		return ref.Code16
	case ref.Code11 != "":
		return ref.Code11
	default:
		return ref.Code7
	}
}
