// Package model defines the shared data types for the extraction pipeline:
// domains, structured records, provider metadata, reference rows, and ledger
// entries.
package model

import (
	"github.com/rotisserie/eris"
)

// Domain identifies the kind of entity being extracted from a photo. It
// determines which field set and which confidence checklist apply.
type Domain string

// Supported extraction domains.
const (
	DomainRecipe Domain = "recipe"
	DomainWine   Domain = "wine"
)

// ParseDomain validates a user-supplied domain string.
func ParseDomain(s string) (Domain, error) {
	switch Domain(s) {
	case DomainRecipe:
		return DomainRecipe, nil
	case DomainWine:
		return DomainWine, nil
	default:
		return "", eris.Errorf("model: unknown domain %q (want recipe or wine)", s)
	}
}

// Valid reports whether d is a known domain.
func (d Domain) Valid() bool {
	return d == DomainRecipe || d == DomainWine
}
