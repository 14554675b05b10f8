package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/parcel-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS searches (
	id            TEXT PRIMARY KEY,
	consumer_id   TEXT NOT NULL DEFAULT '',
	street_number TEXT NOT NULL DEFAULT '',
	street_name   TEXT NOT NULL,
	tax_year      INTEGER NOT NULL DEFAULT 0,
	state         TEXT NOT NULL DEFAULT 'running',
	jurisdictions INTEGER NOT NULL DEFAULT 0,
	groups_run    INTEGER NOT NULL DEFAULT 0,
	failures      INTEGER NOT NULL DEFAULT 0,
	result_count  INTEGER NOT NULL DEFAULT 0,
	results       TEXT,
	started_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	finished_at   DATETIME
);

CREATE INDEX IF NOT EXISTS idx_searches_state ON searches(state);
CREATE INDEX IF NOT EXISTS idx_searches_consumer ON searches(consumer_id);
CREATE INDEX IF NOT EXISTS idx_searches_started_at ON searches(started_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateSearch(ctx context.Context, run model.SearchRun) (*model.SearchRun, error) {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	run.State = "running"

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO searches (id, consumer_id, street_number, street_name, tax_year, state, jurisdictions, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.ConsumerID, run.Criteria.StreetNumber, run.Criteria.StreetName, run.Criteria.TaxYear,
		run.State, run.Jurisdictions, run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert search")
	}
	return &run, nil
}

func (s *SQLiteStore) FinishSearch(ctx context.Context, id string, outcome Outcome) error {
	resultsJSON, err := json.Marshal(outcome.Results)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal results")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE searches SET state = ?, groups_run = ?, failures = ?, result_count = ?, results = ?, finished_at = ?
		 WHERE id = ?`,
		outcome.State, outcome.Groups, outcome.Failures, len(outcome.Results), string(resultsJSON), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish search %s", id)
	}
	return checkRowsAffected(res, id)
}

const sqliteSelect = `SELECT id, consumer_id, street_number, street_name, tax_year, state, jurisdictions,
	groups_run, failures, result_count, results, started_at, finished_at FROM searches`

func (s *SQLiteStore) GetSearch(ctx context.Context, id string) (*model.SearchRun, error) {
	row := s.db.QueryRowContext(ctx, sqliteSelect+` WHERE id = ?`, id)
	r, err := scanSearch(row, true)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "id %s", id)
	}
	return r, err
}

func (s *SQLiteStore) ListSearches(ctx context.Context, filter SearchFilter) ([]model.SearchRun, error) {
	query := sqliteSelect + ` WHERE 1=1`
	var args []any

	if filter.State != "" {
		query += ` AND state = ?`
		args = append(args, filter.State)
	}
	if filter.ConsumerID != "" {
		query += ` AND consumer_id = ?`
		args = append(args, filter.ConsumerID)
	}
	if filter.StreetName != "" {
		query += ` AND street_name LIKE ?`
		args = append(args, "%"+filter.StreetName+"%")
	}
	if !filter.StartedAfter.IsZero() {
		query += ` AND started_at >= ?`
		args = append(args, filter.StartedAfter.UTC())
	}
	query += ` ORDER BY started_at DESC LIMIT ? OFFSET ?`
	args = append(args, filter.limit(), filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list searches")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.SearchRun
	for rows.Next() {
		r, err := scanSearch(rows, false)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list searches iterate")
}

func checkRowsAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "id %s", id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

// scanSearch reads one row; the results payload is decoded only when
// withResults is set since listings never show it.
func scanSearch(row scannable, withResults bool) (*model.SearchRun, error) {
	var r model.SearchRun
	var resultsJSON sql.NullString
	var finished sql.NullTime

	err := row.Scan(&r.ID, &r.ConsumerID, &r.Criteria.StreetNumber, &r.Criteria.StreetName, &r.Criteria.TaxYear,
		&r.State, &r.Jurisdictions, &r.Groups, &r.Failures, &r.ResultCount, &resultsJSON, &r.StartedAt, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan search")
	}

	if finished.Valid {
		t := finished.Time
		r.FinishedAt = &t
	}
	if withResults && resultsJSON.Valid {
		if err := json.Unmarshal([]byte(resultsJSON.String), &r.Results); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal results")
		}
	}
	return &r, nil
}
