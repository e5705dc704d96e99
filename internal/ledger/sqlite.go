package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
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
		return nil, eris.Wrap(err, "ledger: sqlite open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "ledger: sqlite exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS extraction_ledger (
	id                TEXT PRIMARY KEY,
	created_at        DATETIME NOT NULL,
	closed_at         DATETIME,
	domain            TEXT NOT NULL,
	provider          TEXT NOT NULL,
	model             TEXT NOT NULL DEFAULT '',
	prompt_tokens     INTEGER NOT NULL DEFAULT 0,
	completion_tokens INTEGER NOT NULL DEFAULT 0,
	latency_ms        INTEGER NOT NULL DEFAULT 0,
	cost_usd          REAL NOT NULL DEFAULT 0,
	confidence        REAL,
	success           INTEGER,
	error_kind        TEXT NOT NULL DEFAULT '',
	error_detail      TEXT NOT NULL DEFAULT '',
	primary_failure   TEXT NOT NULL DEFAULT '',
	fallback_used     INTEGER NOT NULL DEFAULT 0,
	entity_id         TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_ledger_created_at ON extraction_ledger(created_at);
CREATE INDEX IF NOT EXISTS idx_ledger_provider ON extraction_ledger(provider);
CREATE INDEX IF NOT EXISTS idx_ledger_domain ON extraction_ledger(domain);
`

// Migrate creates the ledger table and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "ledger: sqlite migrate")
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Open implements Store.
func (s *SQLiteStore) Open(ctx context.Context, domain model.Domain, provider string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO extraction_ledger (id, created_at, domain, provider) VALUES (?, ?, ?, ?)`,
		id, time.Now().UTC(), string(domain), provider,
	)
	if err != nil {
		return "", eris.Wrap(err, "ledger: sqlite open entry")
	}
	return id, nil
}

// CloseEntry implements Store.
func (s *SQLiteStore) CloseEntry(ctx context.Context, id string, p CloseParams) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE extraction_ledger SET
			closed_at = ?,
			model = ?,
			prompt_tokens = ?,
			completion_tokens = ?,
			latency_ms = ?,
			cost_usd = ?,
			confidence = ?,
			success = ?,
			error_kind = ?,
			error_detail = ?,
			primary_failure = ?,
			fallback_used = ?
		WHERE id = ?`,
		time.Now().UTC(), p.Model, p.PromptTokens, p.CompletionTokens,
		p.LatencyMS, p.CostUSD, p.Confidence, p.Success,
		p.ErrorKind, p.ErrorDetail, p.PrimaryFailure, p.FallbackUsed, id,
	)
	if err != nil {
		return eris.Wrap(err, "ledger: sqlite close entry")
	}
	return requireRow(res, id)
}

// AttachEntity implements Store.
func (s *SQLiteStore) AttachEntity(ctx context.Context, id string, entityID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE extraction_ledger SET entity_id = ? WHERE id = ?`, entityID, id)
	if err != nil {
		return eris.Wrap(err, "ledger: sqlite attach entity")
	}
	return requireRow(res, id)
}

const sqliteEntryColumns = `id, created_at, closed_at, domain, provider, model,
	prompt_tokens, completion_tokens, latency_ms, cost_usd, confidence, success,
	error_kind, error_detail, primary_failure, fallback_used, entity_id`

// Get implements Store. Returns nil when no entry has the id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*model.ExtractionLogEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteEntryColumns+` FROM extraction_ledger WHERE id = ?`, id)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return entry, err
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context, f Filter) ([]model.ExtractionLogEntry, error) {
	query := `SELECT ` + sqliteEntryColumns + ` FROM extraction_ledger WHERE 1=1`
	var args []any

	if f.Domain != "" {
		query += ` AND domain = ?`
		args = append(args, string(f.Domain))
	}
	if f.Provider != "" {
		query += ` AND provider = ?`
		args = append(args, f.Provider)
	}
	if f.Success != nil {
		query += ` AND success = ?`
		args = append(args, *f.Success)
	}
	if !f.Since.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, f.Since.UTC())
	}
	if !f.Until.IsZero() {
		query += ` AND created_at < ?`
		args = append(args, f.Until.UTC())
	}

	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "ledger: sqlite list")
	}
	defer rows.Close()
	return scanEntryRows(rows)
}

const sqliteTotalsSelect = `COUNT(*),
	COALESCE(SUM(CASE WHEN success = 1 THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(cost_usd), 0),
	COALESCE(AVG(confidence), 0),
	COALESCE(AVG(latency_ms), 0)`

// Stats implements Store.
func (s *SQLiteStore) Stats(ctx context.Context, since time.Time) (*Totals, error) {
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT %s FROM extraction_ledger WHERE created_at >= ?`, sqliteTotalsSelect),
		since.UTC())

	var t Totals
	if err := row.Scan(&t.Count, &t.Successes, &t.Failures, &t.TotalCostUSD, &t.AvgConfidence, &t.AvgLatencyMS); err != nil {
		return nil, eris.Wrap(err, "ledger: sqlite stats")
	}
	t.finish()
	return &t, nil
}

// StatsByProvider implements Store.
func (s *SQLiteStore) StatsByProvider(ctx context.Context, since time.Time) ([]ProviderStats, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT provider, %s FROM extraction_ledger WHERE created_at >= ?
		 GROUP BY provider ORDER BY COUNT(*) DESC`, sqliteTotalsSelect),
		since.UTC())
	if err != nil {
		return nil, eris.Wrap(err, "ledger: sqlite stats by provider")
	}
	defer rows.Close()

	var out []ProviderStats
	for rows.Next() {
		var ps ProviderStats
		if err := rows.Scan(&ps.Provider, &ps.Count, &ps.Successes, &ps.Failures, &ps.TotalCostUSD, &ps.AvgConfidence, &ps.AvgLatencyMS); err != nil {
			return nil, eris.Wrap(err, "ledger: scan provider stats")
		}
		ps.finish()
		out = append(out, ps)
	}
	return out, eris.Wrap(rows.Err(), "ledger: provider stats rows")
}

// StatsByDomain implements Store.
func (s *SQLiteStore) StatsByDomain(ctx context.Context, since time.Time) ([]DomainStats, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT domain, %s FROM extraction_ledger WHERE created_at >= ?
		 GROUP BY domain ORDER BY COUNT(*) DESC`, sqliteTotalsSelect),
		since.UTC())
	if err != nil {
		return nil, eris.Wrap(err, "ledger: sqlite stats by domain")
	}
	defer rows.Close()

	var out []DomainStats
	for rows.Next() {
		var ds DomainStats
		var domain string
		if err := rows.Scan(&domain, &ds.Count, &ds.Successes, &ds.Failures, &ds.TotalCostUSD, &ds.AvgConfidence, &ds.AvgLatencyMS); err != nil {
			return nil, eris.Wrap(err, "ledger: scan domain stats")
		}
		ds.Domain = model.Domain(domain)
		ds.finish()
		out = append(out, ds)
	}
	return out, eris.Wrap(rows.Err(), "ledger: domain stats rows")
}

// StatsByDay implements Store. Days follow UTC; created_at is stored UTC so
// the first ten characters of the timestamp are the date.
func (s *SQLiteStore) StatsByDay(ctx context.Context, since time.Time) ([]DayStats, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT substr(created_at, 1, 10) AS day, %s FROM extraction_ledger
		 WHERE created_at >= ? GROUP BY day ORDER BY day`, sqliteTotalsSelect),
		since.UTC())
	if err != nil {
		return nil, eris.Wrap(err, "ledger: sqlite stats by day")
	}
	defer rows.Close()

	var out []DayStats
	for rows.Next() {
		var ds DayStats
		if err := rows.Scan(&ds.Day, &ds.Count, &ds.Successes, &ds.Failures, &ds.TotalCostUSD, &ds.AvgConfidence, &ds.AvgLatencyMS); err != nil {
			return nil, eris.Wrap(err, "ledger: scan day stats")
		}
		ds.finish()
		out = append(out, ds)
	}
	return out, eris.Wrap(rows.Err(), "ledger: day stats rows")
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "ledger: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "id %s", id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanEntryRows(rows *sql.Rows) ([]model.ExtractionLogEntry, error) {
	var out []model.ExtractionLogEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *entry)
	}
	return out, eris.Wrap(rows.Err(), "ledger: scan entry rows")
}

func scanEntry(row scannable) (*model.ExtractionLogEntry, error) {
	var (
		e          model.ExtractionLogEntry
		closedAt   sql.NullTime
		confidence sql.NullFloat64
		success    sql.NullBool
	)
	err := row.Scan(
		&e.ID, &e.CreatedAt, &closedAt, &e.Domain, &e.Provider, &e.Model,
		&e.PromptTokens, &e.CompletionTokens, &e.LatencyMS, &e.CostUSD,
		&confidence, &success,
		&e.ErrorKind, &e.ErrorDetail, &e.PrimaryFailure, &e.FallbackUsed, &e.EntityID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "ledger: scan entry")
	}
	if closedAt.Valid {
		t := closedAt.Time
		e.ClosedAt = &t
	}
	if confidence.Valid {
		v := confidence.Float64
		e.Confidence = &v
	}
	if success.Valid {
		v := success.Bool
		e.Success = &v
	}
	return &e, nil
}
