package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/tastebase/capture-cli/internal/db"
	"github.com/tastebase/capture-cli/internal/model"
)

// PostgresStore implements Store on a pgx pool.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgres connects to PostgreSQL and returns a PostgresStore.
func NewPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := db.Connect(ctx, databaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "ledger: postgres connect")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresFromPool wraps an existing pool, which tests use to substitute
// pgxmock.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS extraction_ledger (
	id                TEXT PRIMARY KEY,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	closed_at         TIMESTAMPTZ,
	domain            TEXT NOT NULL,
	provider          TEXT NOT NULL,
	model             TEXT NOT NULL DEFAULT '',
	prompt_tokens     INTEGER NOT NULL DEFAULT 0,
	completion_tokens INTEGER NOT NULL DEFAULT 0,
	latency_ms        BIGINT NOT NULL DEFAULT 0,
	cost_usd          DOUBLE PRECISION NOT NULL DEFAULT 0,
	confidence        DOUBLE PRECISION,
	success           BOOLEAN,
	error_kind        TEXT NOT NULL DEFAULT '',
	error_detail      TEXT NOT NULL DEFAULT '',
	primary_failure   TEXT NOT NULL DEFAULT '',
	fallback_used     BOOLEAN NOT NULL DEFAULT false,
	entity_id         TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_ledger_created_at ON extraction_ledger(created_at);
CREATE INDEX IF NOT EXISTS idx_ledger_provider ON extraction_ledger(provider);
CREATE INDEX IF NOT EXISTS idx_ledger_domain ON extraction_ledger(domain);
`

// Migrate creates the ledger table and indexes.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "ledger: postgres migrate")
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Open implements Store.
func (s *PostgresStore) Open(ctx context.Context, domain model.Domain, provider string) (string, error) {
	id := uuid.NewString()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO extraction_ledger (id, created_at, domain, provider) VALUES ($1, $2, $3, $4)`,
		id, time.Now().UTC(), string(domain), provider,
	)
	if err != nil {
		return "", eris.Wrap(err, "ledger: postgres open entry")
	}
	return id, nil
}

// CloseEntry implements Store.
func (s *PostgresStore) CloseEntry(ctx context.Context, id string, p CloseParams) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE extraction_ledger SET
			closed_at = $1,
			model = $2,
			prompt_tokens = $3,
			completion_tokens = $4,
			latency_ms = $5,
			cost_usd = $6,
			confidence = $7,
			success = $8,
			error_kind = $9,
			error_detail = $10,
			primary_failure = $11,
			fallback_used = $12
		WHERE id = $13`,
		time.Now().UTC(), p.Model, p.PromptTokens, p.CompletionTokens,
		p.LatencyMS, p.CostUSD, p.Confidence, p.Success,
		p.ErrorKind, p.ErrorDetail, p.PrimaryFailure, p.FallbackUsed, id,
	)
	if err != nil {
		return eris.Wrap(err, "ledger: postgres close entry")
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "id %s", id)
	}
	return nil
}

// AttachEntity implements Store.
func (s *PostgresStore) AttachEntity(ctx context.Context, id string, entityID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE extraction_ledger SET entity_id = $1 WHERE id = $2`, entityID, id)
	if err != nil {
		return eris.Wrap(err, "ledger: postgres attach entity")
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "id %s", id)
	}
	return nil
}

const postgresEntryColumns = `id, created_at, closed_at, domain, provider, model,
	prompt_tokens, completion_tokens, latency_ms, cost_usd, confidence, success,
	error_kind, error_detail, primary_failure, fallback_used, entity_id`

// Get implements Store. Returns nil when no entry has the id.
func (s *PostgresStore) Get(ctx context.Context, id string) (*model.ExtractionLogEntry, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+postgresEntryColumns+` FROM extraction_ledger WHERE id = $1`, id)
	entry, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return entry, err
}

// List implements Store.
func (s *PostgresStore) List(ctx context.Context, f Filter) ([]model.ExtractionLogEntry, error) {
	query := `SELECT ` + postgresEntryColumns + ` FROM extraction_ledger WHERE 1=1`
	var args []any

	if f.Domain != "" {
		args = append(args, string(f.Domain))
		query += fmt.Sprintf(` AND domain = $%d`, len(args))
	}
	if f.Provider != "" {
		args = append(args, f.Provider)
		query += fmt.Sprintf(` AND provider = $%d`, len(args))
	}
	if f.Success != nil {
		args = append(args, *f.Success)
		query += fmt.Sprintf(` AND success = $%d`, len(args))
	}
	if !f.Since.IsZero() {
		args = append(args, f.Since.UTC())
		query += fmt.Sprintf(` AND created_at >= $%d`, len(args))
	}
	if !f.Until.IsZero() {
		args = append(args, f.Until.UTC())
		query += fmt.Sprintf(` AND created_at < $%d`, len(args))
	}

	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	args = append(args, limit)
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "ledger: postgres list")
	}
	defer rows.Close()

	var out []model.ExtractionLogEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *entry)
	}
	return out, eris.Wrap(rows.Err(), "ledger: postgres list rows")
}

const postgresTotalsSelect = `COUNT(*),
	COALESCE(SUM(CASE WHEN success THEN 1 ELSE 0 END), 0)::bigint,
	COALESCE(SUM(CASE WHEN NOT success THEN 1 ELSE 0 END), 0)::bigint,
	COALESCE(SUM(cost_usd), 0)::float8,
	COALESCE(AVG(confidence), 0)::float8,
	COALESCE(AVG(latency_ms), 0)::float8`

// Stats implements Store.
func (s *PostgresStore) Stats(ctx context.Context, since time.Time) (*Totals, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(
		`SELECT %s FROM extraction_ledger WHERE created_at >= $1`, postgresTotalsSelect),
		since.UTC())

	var t Totals
	if err := row.Scan(&t.Count, &t.Successes, &t.Failures, &t.TotalCostUSD, &t.AvgConfidence, &t.AvgLatencyMS); err != nil {
		return nil, eris.Wrap(err, "ledger: postgres stats")
	}
	t.finish()
	return &t, nil
}

// StatsByProvider implements Store.
func (s *PostgresStore) StatsByProvider(ctx context.Context, since time.Time) ([]ProviderStats, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(
		`SELECT provider, %s FROM extraction_ledger WHERE created_at >= $1
		 GROUP BY provider ORDER BY COUNT(*) DESC`, postgresTotalsSelect),
		since.UTC())
	if err != nil {
		return nil, eris.Wrap(err, "ledger: postgres stats by provider")
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
func (s *PostgresStore) StatsByDomain(ctx context.Context, since time.Time) ([]DomainStats, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(
		`SELECT domain, %s FROM extraction_ledger WHERE created_at >= $1
		 GROUP BY domain ORDER BY COUNT(*) DESC`, postgresTotalsSelect),
		since.UTC())
	if err != nil {
		return nil, eris.Wrap(err, "ledger: postgres stats by domain")
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

// StatsByDay implements Store. Days follow UTC.
func (s *PostgresStore) StatsByDay(ctx context.Context, since time.Time) ([]DayStats, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(
		`SELECT to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day, %s
		 FROM extraction_ledger WHERE created_at >= $1
		 GROUP BY day ORDER BY day`, postgresTotalsSelect),
		since.UTC())
	if err != nil {
		return nil, eris.Wrap(err, "ledger: postgres stats by day")
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
