package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/trendwatch/internal/model"
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
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id                 TEXT PRIMARY KEY,
	status             TEXT NOT NULL DEFAULT 'running',
	window_start       DATETIME,
	window_end         DATETIME,
	entities_total     INTEGER NOT NULL DEFAULT 0,
	entities_collected INTEGER NOT NULL DEFAULT 0,
	error              TEXT,
	started_at         DATETIME NOT NULL DEFAULT (datetime('now')),
	finished_at        DATETIME
);

CREATE TABLE IF NOT EXISTS entity_outcomes (
	run_id         TEXT NOT NULL REFERENCES runs(id),
	entity         TEXT NOT NULL,
	batches        INTEGER NOT NULL DEFAULT 0,
	batches_failed INTEGER NOT NULL DEFAULT 0,
	days           INTEGER NOT NULL DEFAULT 0,
	recorded_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_entity_outcomes_run_id ON entity_outcomes(run_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, run model.Run) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, status, window_start, window_end, entities_total, entities_collected, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, string(run.Status), run.WindowStart.UTC(), run.WindowEnd.UTC(),
		run.EntitiesTotal, run.EntitiesCollected, run.StartedAt.UTC(),
	)
	return eris.Wrap(err, "sqlite: insert run")
}

func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, status model.RunStatus, collected int, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, entities_collected = ?, error = ?, finished_at = ? WHERE id = ?`,
		string(status), collected, nullString(errMsg), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) RecordOutcome(ctx context.Context, outcome model.EntityOutcome) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO entity_outcomes (run_id, entity, batches, batches_failed, days, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		outcome.RunID, outcome.Entity, outcome.Batches, outcome.BatchesFailed,
		outcome.Days, outcome.RecordedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: insert outcome for %s", outcome.Entity)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, status, window_start, window_end, entities_total, entities_collected, error, started_at, finished_at
		 FROM runs WHERE id = ?`,
		runID,
	)
	r, err := scanRun(row)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, entity, batches, batches_failed, days, recorded_at
		 FROM entity_outcomes WHERE run_id = ? ORDER BY recorded_at`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list outcomes")
	}
	defer rows.Close()

	for rows.Next() {
		var o model.EntityOutcome
		if err := rows.Scan(&o.RunID, &o.Entity, &o.Batches, &o.BatchesFailed, &o.Days, &o.RecordedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan outcome")
		}
		r.Outcomes = append(r.Outcomes, o)
	}
	return r, eris.Wrap(rows.Err(), "sqlite: outcomes iterate")
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, status, window_start, window_end, entities_total, entities_collected, error, started_at, finished_at
		 FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var errMsg sql.NullString
	var finishedAt sql.NullTime

	err := row.Scan(&r.ID, &r.Status, &r.WindowStart, &r.WindowEnd,
		&r.EntitiesTotal, &r.EntitiesCollected, &errMsg, &r.StartedAt, &finishedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("run not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	if errMsg.Valid {
		r.Error = errMsg.String
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		r.FinishedAt = &t
	}
	return &r, nil
}
