// Package provider defines the capability contract for turning a normalized
// photo into a structured record, plus the concrete backends that implement
// it: Anthropic vision, OpenRouter vision, and a local tesseract fallback.
package provider

import (
	"context"
	"fmt"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/tastebase/capture-cli/internal/model"
)

// Failure reasons carried by ExtractionError. These are stable strings that
// end up in ledger rows, so renaming one is a data migration.
const (
	ReasonTimeout     = "timeout"
	ReasonTransport   = "transport"
	ReasonRefused     = "content_refused"
	ReasonUnparseable = "unparseable_response"
	ReasonEmptyImage  = "empty_image"
)

// Image is a normalized photo ready for submission: baseline JPEG, RGB,
// longest edge already bounded.
type Image struct {
	JPEG   []byte
	Width  int
	Height int
}

// Provider is a single extraction backend.
type Provider interface {
	Name() string
	Available() bool
	Extract(ctx context.Context, img Image, domain model.Domain, profile Profile) (*model.StructuredRecord, *model.ProviderMetadata, error)
}

// ExtractionError is a failed attempt by one provider. Reason is one of the
// Reason* constants; Err holds the underlying cause when there is one.
type ExtractionError struct {
	Provider string
	Reason   string
	Err      error
}

// Error implements error.
func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Reason, e.Err)
	}
	return fmt.Sprintf("provider %s: %s", e.Provider, e.Reason)
}

// Unwrap exposes the underlying cause to errors.Is/As.
func (e *ExtractionError) Unwrap() error { return e.Err }

func newError(provider, reason string, err error) *ExtractionError {
	return &ExtractionError{Provider: provider, Reason: reason, Err: err}
}

// Registry resolves providers by name. Registration happens once at
// construction; lookups after that are read-only.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds a provider under its own Name. Registering the same name
// twice replaces the earlier entry.
func (r *Registry) Register(p Provider) {
	r.providers[p.Name()] = p
}

// Resolve returns the provider registered under name.
func (r *Registry) Resolve(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, eris.Errorf("provider: unknown provider %q", name)
	}
	return p, nil
}

// Names returns the registered provider names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for n := range r.providers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
