package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/parcel-cli/internal/model"
)

// Pool is the subset of *pgxpool.Pool the store uses, so tests can swap in
// pgxmock.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const (
	insertSearchSQL = `INSERT INTO searches (id, consumer_id, street_number, street_name, tax_year, state, jurisdictions, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	finishSearchSQL = `UPDATE searches SET state = $1, groups_run = $2, failures = $3, result_count = $4, results = $5, finished_at = $6
		WHERE id = $7`
)

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS searches (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	consumer_id   TEXT NOT NULL DEFAULT '',
	street_number TEXT NOT NULL DEFAULT '',
	street_name   TEXT NOT NULL,
	tax_year      INTEGER NOT NULL DEFAULT 0,
	state         TEXT NOT NULL DEFAULT 'running',
	jurisdictions INTEGER NOT NULL DEFAULT 0,
	groups_run    INTEGER NOT NULL DEFAULT 0,
	failures      INTEGER NOT NULL DEFAULT 0,
	result_count  INTEGER NOT NULL DEFAULT 0,
	results       JSONB,
	started_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at   TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_searches_state ON searches(state);
CREATE INDEX IF NOT EXISTS idx_searches_consumer ON searches(consumer_id);
CREATE INDEX IF NOT EXISTS idx_searches_started_at ON searches(started_at DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateSearch(ctx context.Context, run model.SearchRun) (*model.SearchRun, error) {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	run.State = "running"

	_, err := s.pool.Exec(ctx, insertSearchSQL,
		run.ID, run.ConsumerID, run.Criteria.StreetNumber, run.Criteria.StreetName, run.Criteria.TaxYear,
		run.State, run.Jurisdictions, run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert search")
	}
	return &run, nil
}

func (s *PostgresStore) FinishSearch(ctx context.Context, id string, outcome Outcome) error {
	resultsJSON, err := json.Marshal(outcome.Results)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal results")
	}

	tag, err := s.pool.Exec(ctx, finishSearchSQL,
		outcome.State, outcome.Groups, outcome.Failures, len(outcome.Results), resultsJSON, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish search %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "id %s", id)
	}
	return nil
}

const postgresSelect = `SELECT id, consumer_id, street_number, street_name, tax_year, state, jurisdictions,
	groups_run, failures, result_count, results, started_at, finished_at FROM searches`

func (s *PostgresStore) GetSearch(ctx context.Context, id string) (*model.SearchRun, error) {
	r, err := scanPostgresSearch(s.pool.QueryRow(ctx, postgresSelect+` WHERE id = $1`, id), true)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "id %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get search %s", id)
	}
	return r, nil
}

func (s *PostgresStore) ListSearches(ctx context.Context, filter SearchFilter) ([]model.SearchRun, error) {
	query := postgresSelect + ` WHERE true`
	args := []any{}
	argIdx := 1

	if filter.State != "" {
		query += fmt.Sprintf(` AND state = $%d`, argIdx)
		args = append(args, filter.State)
		argIdx++
	}
	if filter.ConsumerID != "" {
		query += fmt.Sprintf(` AND consumer_id = $%d`, argIdx)
		args = append(args, filter.ConsumerID)
		argIdx++
	}
	if filter.StreetName != "" {
		query += fmt.Sprintf(` AND street_name ILIKE $%d`, argIdx)
		args = append(args, "%"+filter.StreetName+"%")
		argIdx++
	}
	if !filter.StartedAfter.IsZero() {
		query += fmt.Sprintf(` AND started_at >= $%d`, argIdx)
		args = append(args, filter.StartedAfter)
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY started_at DESC LIMIT $%d OFFSET $%d`, argIdx, argIdx+1)
	args = append(args, filter.limit(), filter.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list searches")
	}
	defer rows.Close()

	var runs []model.SearchRun
	for rows.Next() {
		r, err := scanPostgresSearch(rows, false)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan search")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list searches iterate")
}

func scanPostgresSearch(row pgx.Row, withResults bool) (*model.SearchRun, error) {
	var r model.SearchRun
	var resultsJSON []byte

	if err := row.Scan(&r.ID, &r.ConsumerID, &r.Criteria.StreetNumber, &r.Criteria.StreetName, &r.Criteria.TaxYear,
		&r.State, &r.Jurisdictions, &r.Groups, &r.Failures, &r.ResultCount, &resultsJSON, &r.StartedAt, &r.FinishedAt); err != nil {
		return nil, err
	}
	if withResults && len(resultsJSON) > 0 {
		if err := json.Unmarshal(resultsJSON, &r.Results); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal results")
		}
	}
	return &r, nil
}
