package extract

import (
	"errors"
	"fmt"

	"github.com/tastebase/capture-cli/internal/provider"
)

// ExtractionUnavailable is the terminal failure for one attempt: every
// eligible provider failed. Fallback is nil when no hop was possible, either
// because the fallback is disabled or because the failed provider was the
// fallback itself.
type ExtractionUnavailable struct {
	Primary  *provider.ExtractionError
	Fallback *provider.ExtractionError
}

// Error implements error.
func (e *ExtractionUnavailable) Error() string {
	if e.Fallback != nil {
		return fmt.Sprintf("extraction unavailable: %v; fallback: %v", e.Primary, e.Fallback)
	}
	return fmt.Sprintf("extraction unavailable: %v", e.Primary)
}

// Unwrap exposes the primary failure to errors.Is/As.
func (e *ExtractionUnavailable) Unwrap() error { return e.Primary }

// IsUnavailable reports whether err is the all-providers-failed outcome.
func IsUnavailable(err error) bool {
	var target *ExtractionUnavailable
	return errors.As(err, &target)
}
