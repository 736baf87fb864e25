package tracking

import (
	"context"
	"database/sql"
	"io"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/YuminosukeSato/tabflow/pkg/errors"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS experiments (
		name TEXT PRIMARY KEY,
		created_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		experiment TEXT NOT NULL,
		name TEXT NOT NULL,
		status TEXT NOT NULL,
		start_time INTEGER NOT NULL,
		end_time INTEGER NOT NULL,
		FOREIGN KEY (experiment) REFERENCES experiments(name)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_experiment ON runs(experiment)`,
	`CREATE TABLE IF NOT EXISTS params (
		run_id TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		PRIMARY KEY (run_id, key),
		FOREIGN KEY (run_id) REFERENCES runs(id)
	)`,
	`CREATE TABLE IF NOT EXISTS metrics (
		run_id TEXT NOT NULL,
		key TEXT NOT NULL,
		value REAL NOT NULL,
		PRIMARY KEY (run_id, key),
		FOREIGN KEY (run_id) REFERENCES runs(id)
	)`,
	`CREATE TABLE IF NOT EXISTS artifacts (
		run_id TEXT NOT NULL,
		path TEXT NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(id)
	)`,
}

// SQLiteStore keeps runs in a SQLite database and copies artifacts to
// <artifactRoot>/<experiment>/<run id>/.
type SQLiteStore struct {
	db           *sql.DB
	dbPath       string
	artifactRoot string
}

// NewSQLiteStore opens (and migrates) the database at dbPath.
func NewSQLiteStore(dbPath, artifactRoot string) (*SQLiteStore, error) {
	if dbPath == "" {
		return nil, errors.NewValidationError("tracking.dsn", "must not be empty", dbPath)
	}
	if artifactRoot == "" {
		artifactRoot = filepath.Join(filepath.Dir(dbPath), "artifacts")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
		return nil, errors.Wrap(err, "failed to create database directory")
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}
	for _, q := range schema {
		if _, err := db.Exec(q); err != nil {
			_ = db.Close()
			return nil, errors.Wrap(err, "failed to migrate tracking schema")
		}
	}
	return &SQLiteStore{db: db, dbPath: dbPath, artifactRoot: artifactRoot}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ArtifactDir returns where the artifacts of a run are copied.
func (s *SQLiteStore) ArtifactDir(experiment, runID string) string {
	return filepath.Join(s.artifactRoot, experiment, runID)
}

// SaveRun copies the artifacts and writes the run in a single transaction.
func (s *SQLiteStore) SaveRun(ctx context.Context, rec *Record) error {
	stored := make([]string, 0, len(rec.Artifacts))
	if len(rec.Artifacts) > 0 {
		dir := s.ArtifactDir(rec.Experiment, rec.ID)
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return errors.Wrap(err, "failed to create artifact directory")
		}
		for _, src := range rec.Artifacts {
			dst := filepath.Join(dir, filepath.Base(src))
			if err := copyFile(src, dst); err != nil {
				return errors.Wrapf(err, "failed to copy artifact %s", src)
			}
			stored = append(stored, dst)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO experiments (name, created_at) VALUES (?, ?)`,
		rec.Experiment, rec.StartTime.UnixMilli()); err != nil {
		return errors.Wrap(err, "failed to insert experiment")
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (id, experiment, name, status, start_time, end_time) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Experiment, rec.Name, string(rec.Status), rec.StartTime.UnixMilli(), rec.EndTime.UnixMilli()); err != nil {
		return errors.Wrap(err, "failed to insert run")
	}
	for _, k := range rec.ParamKeys() {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO params (run_id, key, value) VALUES (?, ?, ?)`, rec.ID, k, rec.Params[k]); err != nil {
			return errors.Wrapf(err, "failed to insert param %s", k)
		}
	}
	for _, k := range rec.MetricKeys() {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO metrics (run_id, key, value) VALUES (?, ?, ?)`, rec.ID, k, rec.Metrics[k]); err != nil {
			return errors.Wrapf(err, "failed to insert metric %s", k)
		}
	}
	for _, p := range stored {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO artifacts (run_id, path) VALUES (?, ?)`, rec.ID, p); err != nil {
			return errors.Wrap(err, "failed to insert artifact")
		}
	}
	return tx.Commit()
}

// GetRun loads one run by id.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Record, error) {
	rec := &Record{
		Params:  make(map[string]string),
		Metrics: make(map[string]float64),
	}
	var (
		status     string
		start, end int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, experiment, name, status, start_time, end_time FROM runs WHERE id = ?`, id).
		Scan(&rec.ID, &rec.Experiment, &rec.Name, &status, &start, &end)
	if err == sql.ErrNoRows {
		return nil, errors.Newf("run %s not found", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to query run")
	}
	rec.Status = Status(status)
	rec.StartTime = time.UnixMilli(start)
	rec.EndTime = time.UnixMilli(end)

	if err := s.scanPairs(ctx, `SELECT key, value FROM params WHERE run_id = ?`, id, func(rows *sql.Rows) error {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return err
		}
		rec.Params[k] = v
		return nil
	}); err != nil {
		return nil, err
	}
	if err := s.scanPairs(ctx, `SELECT key, value FROM metrics WHERE run_id = ?`, id, func(rows *sql.Rows) error {
		var k string
		var v float64
		if err := rows.Scan(&k, &v); err != nil {
			return err
		}
		rec.Metrics[k] = v
		return nil
	}); err != nil {
		return nil, err
	}
	if err := s.scanPairs(ctx, `SELECT path FROM artifacts WHERE run_id = ? ORDER BY rowid`, id, func(rows *sql.Rows) error {
		var p string
		if err := rows.Scan(&p); err != nil {
			return err
		}
		rec.Artifacts = append(rec.Artifacts, p)
		return nil
	}); err != nil {
		return nil, err
	}
	return rec, nil
}

// ListRuns returns the runs of experiment, most recent first.
// An empty experiment lists every run.
func (s *SQLiteStore) ListRuns(ctx context.Context, experiment string) ([]*Record, error) {
	query := `SELECT id FROM runs ORDER BY start_time DESC, id`
	args := []any{}
	if experiment != "" {
		query = `SELECT id FROM runs WHERE experiment = ? ORDER BY start_time DESC, id`
		args = append(args, experiment)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list runs")
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return nil, errors.Wrap(err, "failed to scan run id")
		}
		ids = append(ids, id)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]*Record, 0, len(ids))
	for _, id := range ids {
		rec, err := s.GetRun(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *SQLiteStore) scanPairs(ctx context.Context, query, id string, fn func(*sql.Rows) error) error {
	rows, err := s.db.QueryContext(ctx, query, id)
	if err != nil {
		return errors.Wrap(err, "failed to query run details")
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		if err := fn(rows); err != nil {
			return errors.Wrap(err, "failed to scan run details")
		}
	}
	return rows.Err()
}

func copyFile(src, dst string) error {
	in, err := os.Open(src) // nolint:gosec // paths are produced by the pipeline
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst) // nolint:gosec // dst is under the artifact root
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
