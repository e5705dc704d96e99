package refdb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/tastebase/capture-cli/internal/db"
	"github.com/tastebase/capture-cli/internal/model"
)

// PostgresStore implements Store on a pgx pool. Bulk imports go through the
// temp-table COPY upsert, which keeps multi-hundred-thousand-row reference
// loads off the single-INSERT path.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgres connects to PostgreSQL and returns a PostgresStore.
func NewPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := db.Connect(ctx, databaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "refdb: postgres connect")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresFromPool wraps an existing pool, which tests use to substitute
// pgxmock.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS reference_wines (
	id            TEXT PRIMARY KEY,
	code7         TEXT NOT NULL DEFAULT '',
	code11        TEXT NOT NULL DEFAULT '',
	code16        TEXT NOT NULL DEFAULT '',
	display_name  TEXT NOT NULL,
	producer      TEXT NOT NULL DEFAULT '',
	wine          TEXT NOT NULL DEFAULT '',
	country       TEXT NOT NULL DEFAULT '',
	region        TEXT NOT NULL DEFAULT '',
	sub_region    TEXT NOT NULL DEFAULT '',
	site          TEXT NOT NULL DEFAULT '',
	colour        TEXT NOT NULL DEFAULT '',
	type          TEXT NOT NULL DEFAULT '',
	vintage       INTEGER,
	norm_name     TEXT NOT NULL DEFAULT '',
	norm_producer TEXT NOT NULL DEFAULT '',
	imported_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_reference_wines_code16 ON reference_wines(code16);
CREATE INDEX IF NOT EXISTS idx_reference_wines_code11 ON reference_wines(code11);
CREATE INDEX IF NOT EXISTS idx_reference_wines_code7 ON reference_wines(code7);
CREATE INDEX IF NOT EXISTS idx_reference_wines_identity ON reference_wines(norm_name, norm_producer);
CREATE INDEX IF NOT EXISTS idx_reference_wines_producer ON reference_wines(norm_producer);

CREATE TABLE IF NOT EXISTS reference_imports (
	source        TEXT PRIMARY KEY,
	etag          TEXT NOT NULL DEFAULT '',
	last_modified TEXT NOT NULL DEFAULT '',
	rows          BIGINT NOT NULL DEFAULT 0,
	imported_at   TIMESTAMPTZ NOT NULL
);
`

// Migrate creates the reference tables and indexes.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "refdb: postgres migrate")
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

var referenceColumns = []string{
	"id", "code7", "code11", "code16", "display_name", "producer", "wine",
	"country", "region", "sub_region", "site", "colour", "type", "vintage",
	"norm_name", "norm_producer", "imported_at",
}

const postgresRefColumns = `id, code7, code11, code16, display_name, producer, wine,
	country, region, sub_region, site, colour, type, vintage,
	norm_name, norm_producer, imported_at`

// FindByCode implements Store.
func (s *PostgresStore) FindByCode(ctx context.Context, tier CodeTier, code string) ([]model.ReferenceRecord, error) {
	var column string
	switch tier {
	case CodeTier16:
		column = "code16"
	case CodeTier11:
		column = "code11"
	case CodeTier7:
		column = "code7"
	default:
		return nil, eris.Errorf("refdb: unknown code tier %q", tier)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+postgresRefColumns+` FROM reference_wines WHERE `+column+` = $1 ORDER BY code16`,
		code,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "refdb: postgres find by %s", column)
	}
	defer rows.Close()
	return scanPgReferenceRows(rows)
}

// FindByIdentity implements Store.
func (s *PostgresStore) FindByIdentity(ctx context.Context, normName, normProducer string, vintage *int, limit int) ([]model.ReferenceRecord, error) {
	query := `SELECT ` + postgresRefColumns + ` FROM reference_wines WHERE norm_name = $1`
	args := []any{normName}

	if normProducer != "" {
		args = append(args, normProducer)
		query += ` AND norm_producer = $2`
	}
	if vintage != nil {
		args = append(args, *vintage)
		query += fmt.Sprintf(" AND vintage = $%d", len(args))
	}
	args = append(args, positiveLimit(limit))
	query += fmt.Sprintf(" ORDER BY code16 LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "refdb: postgres find by identity")
	}
	defer rows.Close()
	return scanPgReferenceRows(rows)
}

// FindByProducer implements Store.
func (s *PostgresStore) FindByProducer(ctx context.Context, normProducer string, limit int) ([]model.ReferenceRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+postgresRefColumns+` FROM reference_wines WHERE norm_producer = $1 ORDER BY code16 LIMIT $2`,
		normProducer, positiveLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "refdb: postgres find by producer")
	}
	defer rows.Close()
	return scanPgReferenceRows(rows)
}

// UpsertBatch implements Store via a temp-table COPY upsert keyed on code16.
func (s *PostgresStore) UpsertBatch(ctx context.Context, records []model.ReferenceRecord) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	rows := make([][]any, 0, len(records))
	for _, r := range records {
		importedAt := r.ImportedAt
		if importedAt.IsZero() {
			importedAt = time.Now().UTC()
		}
		rows = append(rows, []any{
			r.ID, r.Code7, r.Code11, r.Code16, r.DisplayName, r.Producer, r.Wine,
			r.Country, r.Region, r.SubRegion, r.Site, r.Colour, r.Type, r.Vintage,
			r.NormName, r.NormProducer, importedAt,
		})
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "reference_wines",
		Columns:      referenceColumns,
		ConflictKeys: []string{"code16"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "refdb: postgres upsert batch")
	}
	return n, nil
}

// Count implements Store.
func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM reference_wines`).Scan(&n)
	if err != nil {
		return 0, eris.Wrap(err, "refdb: postgres count")
	}
	return n, nil
}

// GetImportMeta implements Store.
func (s *PostgresStore) GetImportMeta(ctx context.Context, source string) (*ImportMeta, error) {
	var meta ImportMeta
	err := s.pool.QueryRow(ctx,
		`SELECT source, etag, last_modified, rows, imported_at FROM reference_imports WHERE source = $1`,
		source,
	).Scan(&meta.Source, &meta.ETag, &meta.LastModified, &meta.Rows, &meta.ImportedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "refdb: postgres get import meta")
	}
	return &meta, nil
}

// SetImportMeta implements Store.
func (s *PostgresStore) SetImportMeta(ctx context.Context, meta ImportMeta) error {
	importedAt := meta.ImportedAt
	if importedAt.IsZero() {
		importedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO reference_imports (source, etag, last_modified, rows, imported_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (source) DO UPDATE SET
			etag = EXCLUDED.etag,
			last_modified = EXCLUDED.last_modified,
			rows = EXCLUDED.rows,
			imported_at = EXCLUDED.imported_at`,
		meta.Source, meta.ETag, meta.LastModified, meta.Rows, importedAt,
	)
	return eris.Wrap(err, "refdb: postgres set import meta")
}

func scanPgReferenceRows(rows pgx.Rows) ([]model.ReferenceRecord, error) {
	var out []model.ReferenceRecord
	for rows.Next() {
		rec, err := scanReference(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, eris.Wrap(rows.Err(), "refdb: scan reference rows")
}
