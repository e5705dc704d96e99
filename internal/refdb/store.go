package refdb

import (
	"context"
	"time"

	"github.com/tastebase/capture-cli/internal/model"
)

// CodeTier selects which code granularity a lookup targets.
type CodeTier string

const (
	CodeTier16 CodeTier = "code16"
	CodeTier11 CodeTier = "code11"
	CodeTier7  CodeTier = "code7"
)

// ImportMeta records the last bulk import from one source, so unchanged
// upstream files can be skipped on the next run.
type ImportMeta struct {
	Source       string    `json:"source"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	Rows         int64     `json:"rows"`
	ImportedAt   time.Time `json:"imported_at"`
}

// Store is the reference catalog persistence interface. Reads serve the
// matcher; writes belong to the bulk import job only.
type Store interface {
	// Matching reads
	FindByCode(ctx context.Context, tier CodeTier, code string) ([]model.ReferenceRecord, error)
	FindByIdentity(ctx context.Context, normName, normProducer string, vintage *int, limit int) ([]model.ReferenceRecord, error)
	FindByProducer(ctx context.Context, normProducer string, limit int) ([]model.ReferenceRecord, error)

	// Import writes. UpsertBatch keys on Code16; the import job synthesizes
	// a full 16-digit code for every row, so the column is safe to keep
	// unique.
	UpsertBatch(ctx context.Context, records []model.ReferenceRecord) (int64, error)
	Count(ctx context.Context) (int64, error)
	GetImportMeta(ctx context.Context, source string) (*ImportMeta, error)
	SetImportMeta(ctx context.Context, meta ImportMeta) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
