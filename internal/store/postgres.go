package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/trendwatch/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies it.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used ledger operations.
var preparedStatements = map[string]string{
	"insert_run":     `INSERT INTO runs (id, status, window_start, window_end, entities_total, entities_collected, started_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
	"finish_run":     `UPDATE runs SET status = $1, entities_collected = $2, error = $3, finished_at = $4 WHERE id = $5`,
	"insert_outcome": `INSERT INTO entity_outcomes (run_id, entity, batches, batches_failed, days, recorded_at) VALUES ($1, $2, $3, $4, $5, $6)`,
	"get_run":        `SELECT id, status, window_start, window_end, entities_total, entities_collected, error, started_at, finished_at FROM runs WHERE id = $1`,
	"list_outcomes":  `SELECT run_id, entity, batches, batches_failed, days, recorded_at FROM entity_outcomes WHERE run_id = $1 ORDER BY recorded_at`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
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

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id                 TEXT PRIMARY KEY,
	status             TEXT NOT NULL DEFAULT 'running',
	window_start       TIMESTAMPTZ,
	window_end         TIMESTAMPTZ,
	entities_total     INTEGER NOT NULL DEFAULT 0,
	entities_collected INTEGER NOT NULL DEFAULT 0,
	error              TEXT,
	started_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at        TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS entity_outcomes (
	run_id         TEXT NOT NULL REFERENCES runs(id),
	entity         TEXT NOT NULL,
	batches        INTEGER NOT NULL DEFAULT 0,
	batches_failed INTEGER NOT NULL DEFAULT 0,
	days           INTEGER NOT NULL DEFAULT 0,
	recorded_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_entity_outcomes_run_id ON entity_outcomes(run_id);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, run model.Run) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, status, window_start, window_end, entities_total, entities_collected, started_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		run.ID, string(run.Status), run.WindowStart.UTC(), run.WindowEnd.UTC(),
		run.EntitiesTotal, run.EntitiesCollected, run.StartedAt.UTC(),
	)
	return eris.Wrap(err, "postgres: insert run")
}

func (s *PostgresStore) FinishRun(ctx context.Context, runID string, status model.RunStatus, collected int, errMsg string) error {
	var errVal *string
	if errMsg != "" {
		errVal = &errMsg
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, entities_collected = $2, error = $3, finished_at = $4 WHERE id = $5`,
		string(status), collected, errVal, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) RecordOutcome(ctx context.Context, outcome model.EntityOutcome) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO entity_outcomes (run_id, entity, batches, batches_failed, days, recorded_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		outcome.RunID, outcome.Entity, outcome.Batches, outcome.BatchesFailed,
		outcome.Days, outcome.RecordedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: insert outcome for %s", outcome.Entity)
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	var r model.Run
	var errMsg *string
	var finishedAt *time.Time

	err := s.pool.QueryRow(ctx,
		`SELECT id, status, window_start, window_end, entities_total, entities_collected, error, started_at, finished_at FROM runs WHERE id = $1`,
		runID,
	).Scan(&r.ID, &r.Status, &r.WindowStart, &r.WindowEnd,
		&r.EntitiesTotal, &r.EntitiesCollected, &errMsg, &r.StartedAt, &finishedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	if errMsg != nil {
		r.Error = *errMsg
	}
	r.FinishedAt = finishedAt

	rows, err := s.pool.Query(ctx,
		`SELECT run_id, entity, batches, batches_failed, days, recorded_at FROM entity_outcomes WHERE run_id = $1 ORDER BY recorded_at`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list outcomes")
	}
	defer rows.Close()

	for rows.Next() {
		var o model.EntityOutcome
		if err := rows.Scan(&o.RunID, &o.Entity, &o.Batches, &o.BatchesFailed, &o.Days, &o.RecordedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan outcome")
		}
		r.Outcomes = append(r.Outcomes, o)
	}
	return &r, eris.Wrap(rows.Err(), "postgres: outcomes iterate")
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, status, window_start, window_end, entities_total, entities_collected, error, started_at, finished_at FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += ` AND status = $1`
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(` LIMIT $%d`, len(args))

	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var r model.Run
		var errMsg *string
		var finishedAt *time.Time
		if err := rows.Scan(&r.ID, &r.Status, &r.WindowStart, &r.WindowEnd,
			&r.EntitiesTotal, &r.EntitiesCollected, &errMsg, &r.StartedAt, &finishedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		if errMsg != nil {
			r.Error = *errMsg
		}
		r.FinishedAt = finishedAt
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}
