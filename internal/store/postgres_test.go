package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/parcel-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

var searchColumns = []string{
	"id", "consumer_id", "street_number", "street_name", "tax_year", "state", "jurisdictions",
	"groups_run", "failures", "result_count", "results", "started_at", "finished_at",
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS searches`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateSearch(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO searches`).
		WithArgs("s-1", "user-1", "", "Main", 0, "running", 12, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	run, err := s.CreateSearch(context.Background(), model.SearchRun{
		ID:            "s-1",
		ConsumerID:    "user-1",
		Criteria:      model.SearchCriteria{StreetName: "Main"},
		Jurisdictions: 12,
	})
	require.NoError(t, err)
	assert.Equal(t, "running", run.State)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FinishSearch(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE searches SET state = \$1`).
		WithArgs("completed", 3, 1, 1, pgxmock.AnyArg(), pgxmock.AnyArg(), "s-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.FinishSearch(context.Background(), "s-1", Outcome{
		State:    "completed",
		Groups:   3,
		Failures: 1,
		Results:  []model.Result{{JurisdictionID: "A", SourceRecordID: "123"}},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FinishSearch_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE searches`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.FinishSearch(context.Background(), "missing", Outcome{State: "cancelled"})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetSearch(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	started := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	finished := started.Add(4 * time.Second)

	mock.ExpectQuery(`(?s)SELECT id, consumer_id, .* FROM searches WHERE id = \$1`).
		WithArgs("s-1").
		WillReturnRows(pgxmock.NewRows(searchColumns).AddRow(
			"s-1", "user-1", "12", "Main", 2025, "completed", 40,
			3, 0, 1, []byte(`[{"jurisdiction_id":"A","source_record_id":"123","display_address":"12 MAIN ST"}]`),
			started, &finished,
		))

	run, err := s.GetSearch(context.Background(), "s-1")
	require.NoError(t, err)
	assert.Equal(t, "completed", run.State)
	assert.Equal(t, "12 Main", run.Criteria.String())
	require.Len(t, run.Results, 1)
	assert.Equal(t, "123", run.Results[0].SourceRecordID)
	assert.Equal(t, 4*time.Second, run.Duration())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetSearch_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM searches WHERE id = \$1`).
		WithArgs("nope").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetSearch(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListSearches(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	started := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM searches WHERE true AND state = \$1 AND street_name ILIKE \$2 ORDER BY started_at DESC LIMIT \$3 OFFSET \$4`).
		WithArgs("completed", "%Main%", 10, 0).
		WillReturnRows(pgxmock.NewRows(searchColumns).
			AddRow("s-2", "", "", "Main", 0, "completed", 40, 3, 0, 7, []byte(`[]`), started.Add(time.Minute), &started).
			AddRow("s-1", "", "", "Main", 0, "completed", 40, 3, 1, 5, []byte(`[]`), started, &started))

	runs, err := s.ListSearches(context.Background(), SearchFilter{State: "completed", StreetName: "Main", Limit: 10})
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "s-2", runs[0].ID)
	assert.Equal(t, 5, runs[1].ResultCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListSearches_StartedAfter(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	since := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM searches WHERE true AND started_at >= \$1 ORDER BY started_at DESC LIMIT \$2 OFFSET \$3`).
		WithArgs(since, 50, 0).
		WillReturnRows(pgxmock.NewRows(searchColumns))

	runs, err := s.ListSearches(context.Background(), SearchFilter{StartedAfter: since})
	require.NoError(t, err)
	assert.Empty(t, runs)
	assert.NoError(t, mock.ExpectationsWereMet())
}
