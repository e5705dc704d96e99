package refdb

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tastebase/capture-cli/internal/model"
)

func init() {
	// Replace global logger with a no-op to avoid nil pointer panics in tests.
	zap.ReplaceGlobals(zap.NewNop())
}

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresFromPool(mock), mock
}

func refRow(ref model.ReferenceRecord) []any {
	var vintage any
	if ref.Vintage != nil {
		vintage = int64(*ref.Vintage)
	}
	return []any{
		ref.ID, ref.Code7, ref.Code11, ref.Code16, ref.DisplayName, ref.Producer,
		ref.Wine, ref.Country, ref.Region, ref.SubRegion, ref.Site, ref.Colour,
		ref.Type, vintage, ref.NormName, ref.NormProducer, time.Now().UTC(),
	}
}

func TestPostgres_Migrate(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS reference_wines").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, st.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_FindByCode(t *testing.T) {
	st, mock := newMockStore(t)

	ref := seedRef("1012345", intPtr(2015), "Clos des Mouches", "Joseph Drouhin")
	mock.ExpectQuery(`SELECT (.+) FROM reference_wines WHERE code16 = \$1`).
		WithArgs(ref.Code16).
		WillReturnRows(pgxmock.NewRows(referenceColumns).AddRow(refRow(ref)...))

	rows, err := st.FindByCode(context.Background(), CodeTier16, ref.Code16)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, ref.Code16, rows[0].Code16)
	assert.Equal(t, "Joseph Drouhin", rows[0].Producer)
	require.NotNil(t, rows[0].Vintage)
	assert.Equal(t, 2015, *rows[0].Vintage)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_FindByCode_UnknownTier(t *testing.T) {
	st, _ := newMockStore(t)

	_, err := st.FindByCode(context.Background(), CodeTier("code4"), "1012")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown code tier")
}

func TestPostgres_FindByIdentity_BuildsPlaceholders(t *testing.T) {
	st, mock := newMockStore(t)

	ref := seedRef("1012345", intPtr(2015), "Clos des Mouches", "Joseph Drouhin")
	mock.ExpectQuery(`WHERE norm_name = \$1 AND norm_producer = \$2 AND vintage = \$3 ORDER BY code16 LIMIT \$4`).
		WithArgs("clos des mouches", "joseph drouhin", 2015, 10).
		WillReturnRows(pgxmock.NewRows(referenceColumns).AddRow(refRow(ref)...))

	rows, err := st.FindByIdentity(context.Background(), "clos des mouches", "joseph drouhin", intPtr(2015), 10)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_FindByIdentity_NoProducerNoVintage(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery(`WHERE norm_name = \$1 ORDER BY code16 LIMIT \$2`).
		WithArgs("clos des mouches", DefaultMaxCandidates).
		WillReturnRows(pgxmock.NewRows(referenceColumns))

	rows, err := st.FindByIdentity(context.Background(), "clos des mouches", "", nil, 0)
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_FindByProducer(t *testing.T) {
	st, mock := newMockStore(t)

	ref := seedRef("1012345", intPtr(2015), "Clos des Mouches", "Joseph Drouhin")
	mock.ExpectQuery(`WHERE norm_producer = \$1 ORDER BY code16 LIMIT \$2`).
		WithArgs("joseph drouhin", 25).
		WillReturnRows(pgxmock.NewRows(referenceColumns).AddRow(refRow(ref)...))

	rows, err := st.FindByProducer(context.Background(), "joseph drouhin", 25)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpsertBatch(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_reference_wines_load"`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_reference_wines_load"}, referenceColumns).
		WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "reference_wines"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := st.UpsertBatch(context.Background(), []model.ReferenceRecord{
		seedRef("1012345", intPtr(2015), "Clos des Mouches", "Joseph Drouhin"),
		seedRef("1023456", intPtr(2016), "Cannubi", "Marchesi di Barolo"),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpsertBatch_Empty(t *testing.T) {
	st, mock := newMockStore(t)

	n, err := st.UpsertBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Count(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM reference_wines`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(42)))

	n, err := st.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ImportMeta(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT source, etag, last_modified, rows, imported_at FROM reference_imports`).
		WithArgs("lwin").
		WillReturnError(pgx.ErrNoRows)

	meta, err := st.GetImportMeta(context.Background(), "lwin")
	require.NoError(t, err)
	assert.Nil(t, meta)

	imported := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT source, etag, last_modified, rows, imported_at FROM reference_imports`).
		WithArgs("lwin").
		WillReturnRows(pgxmock.NewRows([]string{"source", "etag", "last_modified", "rows", "imported_at"}).
			AddRow("lwin", `"abc"`, "", int64(1200), imported))

	meta, err = st.GetImportMeta(context.Background(), "lwin")
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, int64(1200), meta.Rows)
	assert.Equal(t, imported, meta.ImportedAt)

	mock.ExpectExec(`INSERT INTO reference_imports`).
		WithArgs("lwin", `"abc"`, "", int64(1200), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, st.SetImportMeta(context.Background(), ImportMeta{
		Source: "lwin", ETag: `"abc"`, Rows: 1200,
	}))
	assert.NoError(t, mock.ExpectationsWereMet())
}
