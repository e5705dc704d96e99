package refdb

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/tastebase/capture-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "refdb: sqlite open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "refdb: sqlite exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
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
	imported_at   DATETIME NOT NULL DEFAULT (datetime('now'))
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
	rows          INTEGER NOT NULL DEFAULT 0,
	imported_at   DATETIME NOT NULL
);
`

// Migrate creates the reference tables and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "refdb: sqlite migrate")
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const sqliteRefColumns = `id, code7, code11, code16, display_name, producer, wine,
	country, region, sub_region, site, colour, type, vintage,
	norm_name, norm_producer, imported_at`

// FindByCode implements Store.
func (s *SQLiteStore) FindByCode(ctx context.Context, tier CodeTier, code string) ([]model.ReferenceRecord, error) {
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

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteRefColumns+` FROM reference_wines WHERE `+column+` = ? ORDER BY code16`,
		code,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "refdb: sqlite find by %s", column)
	}
	defer rows.Close()
	return scanReferenceRows(rows)
}

// FindByIdentity implements Store. An empty normProducer matches any
// producer; a nil vintage matches any vintage.
func (s *SQLiteStore) FindByIdentity(ctx context.Context, normName, normProducer string, vintage *int, limit int) ([]model.ReferenceRecord, error) {
	query := `SELECT ` + sqliteRefColumns + ` FROM reference_wines WHERE norm_name = ?`
	args := []any{normName}

	if normProducer != "" {
		query += ` AND norm_producer = ?`
		args = append(args, normProducer)
	}
	if vintage != nil {
		query += ` AND vintage = ?`
		args = append(args, *vintage)
	}
	query += ` ORDER BY code16 LIMIT ?`
	args = append(args, positiveLimit(limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "refdb: sqlite find by identity")
	}
	defer rows.Close()
	return scanReferenceRows(rows)
}

// FindByProducer implements Store.
func (s *SQLiteStore) FindByProducer(ctx context.Context, normProducer string, limit int) ([]model.ReferenceRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteRefColumns+` FROM reference_wines WHERE norm_producer = ? ORDER BY code16 LIMIT ?`,
		normProducer, positiveLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "refdb: sqlite find by producer")
	}
	defer rows.Close()
	return scanReferenceRows(rows)
}

// UpsertBatch implements Store. Rows are keyed by code16; re-importing the
// same code updates the descriptive fields in place.
func (s *SQLiteStore) UpsertBatch(ctx context.Context, records []model.ReferenceRecord) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "refdb: sqlite begin upsert")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO reference_wines (
			id, code7, code11, code16, display_name, producer, wine,
			country, region, sub_region, site, colour, type, vintage,
			norm_name, norm_producer, imported_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(code16) DO UPDATE SET
			code7 = excluded.code7,
			code11 = excluded.code11,
			display_name = excluded.display_name,
			producer = excluded.producer,
			wine = excluded.wine,
			country = excluded.country,
			region = excluded.region,
			sub_region = excluded.sub_region,
			site = excluded.site,
			colour = excluded.colour,
			type = excluded.type,
			vintage = excluded.vintage,
			norm_name = excluded.norm_name,
			norm_producer = excluded.norm_producer,
			imported_at = excluded.imported_at`)
	if err != nil {
		return 0, eris.Wrap(err, "refdb: sqlite prepare upsert")
	}
	defer stmt.Close()

	var n int64
	for _, r := range records {
		importedAt := r.ImportedAt
		if importedAt.IsZero() {
			importedAt = time.Now().UTC()
		}
		if _, err := stmt.ExecContext(ctx,
			r.ID, r.Code7, r.Code11, r.Code16, r.DisplayName, r.Producer, r.Wine,
			r.Country, r.Region, r.SubRegion, r.Site, r.Colour, r.Type, r.Vintage,
			r.NormName, r.NormProducer, importedAt,
		); err != nil {
			return 0, eris.Wrapf(err, "refdb: sqlite upsert %s", r.Code16)
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "refdb: sqlite commit upsert")
	}
	return n, nil
}

// Count implements Store.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reference_wines`).Scan(&n)
	if err != nil {
		return 0, eris.Wrap(err, "refdb: sqlite count")
	}
	return n, nil
}

// GetImportMeta implements Store. Returns nil when the source has never been
// imported.
func (s *SQLiteStore) GetImportMeta(ctx context.Context, source string) (*ImportMeta, error) {
	var meta ImportMeta
	err := s.db.QueryRowContext(ctx,
		`SELECT source, etag, last_modified, rows, imported_at FROM reference_imports WHERE source = ?`,
		source,
	).Scan(&meta.Source, &meta.ETag, &meta.LastModified, &meta.Rows, &meta.ImportedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "refdb: sqlite get import meta")
	}
	return &meta, nil
}

// SetImportMeta implements Store.
func (s *SQLiteStore) SetImportMeta(ctx context.Context, meta ImportMeta) error {
	importedAt := meta.ImportedAt
	if importedAt.IsZero() {
		importedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reference_imports (source, etag, last_modified, rows, imported_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(source) DO UPDATE SET
			etag = excluded.etag,
			last_modified = excluded.last_modified,
			rows = excluded.rows,
			imported_at = excluded.imported_at`,
		meta.Source, meta.ETag, meta.LastModified, meta.Rows, importedAt,
	)
	return eris.Wrap(err, "refdb: sqlite set import meta")
}

type scannable interface {
	Scan(dest ...any) error
}

func scanReferenceRows(rows *sql.Rows) ([]model.ReferenceRecord, error) {
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

func scanReference(row scannable) (*model.ReferenceRecord, error) {
	var (
		rec     model.ReferenceRecord
		vintage sql.NullInt64
	)
	err := row.Scan(
		&rec.ID, &rec.Code7, &rec.Code11, &rec.Code16, &rec.DisplayName,
		&rec.Producer, &rec.Wine, &rec.Country, &rec.Region, &rec.SubRegion,
		&rec.Site, &rec.Colour, &rec.Type, &vintage,
		&rec.NormName, &rec.NormProducer, &rec.ImportedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "refdb: scan reference")
	}
	if vintage.Valid {
		v := int(vintage.Int64)
		rec.Vintage = &v
	}
	return &rec, nil
}

func positiveLimit(limit int) int {
	if limit <= 0 {
		return 25
	}
	return limit
}
