package store

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrRunNotFound is returned when a run ID has no row.
var ErrRunNotFound = errors.New("run not found")

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS sweep_runs (
	run_id        TEXT PRIMARY KEY,
	config_file   TEXT NOT NULL,
	output_dir    TEXT NOT NULL,
	world_size    INTEGER NOT NULL,
	status        TEXT NOT NULL,
	started_at    TEXT NOT NULL,
	finished_at   TEXT
);

CREATE TABLE IF NOT EXISTS checkpoint_results (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id        TEXT NOT NULL,
	path          TEXT NOT NULL,
	step          REAL NOT NULL,
	ap            REAL,
	metrics_json  TEXT,
	expected_ok   INTEGER NOT NULL,
	evaluated_at  TEXT NOT NULL,
	FOREIGN KEY (run_id) REFERENCES sweep_runs(run_id)
);

CREATE TABLE IF NOT EXISTS sweep_events (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id        TEXT NOT NULL,
	kind          TEXT NOT NULL,
	detail        TEXT,
	created_at    TEXT NOT NULL,
	FOREIGN KEY (run_id) REFERENCES sweep_runs(run_id)
);
`

// #endregion schema

// #region store-struct
// Store keeps the history of sweeps in SQLite.
type Store struct {
	db *sql.DB
}

// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// pragmas are per connection
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// #endregion constructor

// #region close
// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use by other packages (e.g. logging).
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion close

// #region runs
// StartRun inserts a running sweep and returns it with a fresh ID.
func (s *Store) StartRun(configFile, outputDir string, worldSize int) (RunRecord, error) {
	rec := RunRecord{
		RunID:      uuid.New().String(),
		ConfigFile: configFile,
		OutputDir:  outputDir,
		WorldSize:  worldSize,
		Status:     StatusRunning,
		StartedAt:  time.Now().UTC(),
	}
	_, err := s.db.Exec(
		`INSERT INTO sweep_runs (run_id, config_file, output_dir, world_size, status, started_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.ConfigFile, rec.OutputDir, rec.WorldSize, rec.Status,
		rec.StartedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return RunRecord{}, fmt.Errorf("insert run: %w", err)
	}
	return rec, nil
}

// FinishRun stamps the run with a terminal status.
func (s *Store) FinishRun(runID, status string) error {
	res, err := s.db.Exec(
		`UPDATE sweep_runs SET status = ?, finished_at = ? WHERE run_id = ?`,
		status, time.Now().UTC().Format(time.RFC3339Nano), runID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

// GetRun retrieves one run by ID.
func (s *Store) GetRun(runID string) (RunRecord, error) {
	row := s.db.QueryRow(
		`SELECT run_id, config_file, output_dir, world_size, status, started_at, finished_at
		 FROM sweep_runs WHERE run_id = ?`, runID,
	)
	rec, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return RunRecord{}, fmt.Errorf("get run %s: %w", runID, err)
	}
	return rec, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(limit int) ([]RunRecord, error) {
	rows, err := s.db.Query(
		`SELECT run_id, config_file, output_dir, world_size, status, started_at, finished_at
		 FROM sweep_runs ORDER BY rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// #endregion runs

// #region results
// RecordResult inserts one evaluated checkpoint and returns its row ID.
func (s *Store) RecordResult(rec ResultRecord) (int64, error) {
	if rec.EvaluatedAt.IsZero() {
		rec.EvaluatedAt = time.Now().UTC()
	}
	var metrics interface{}
	if rec.MetricsJSON != "" {
		metrics = rec.MetricsJSON
	}
	res, err := s.db.Exec(
		`INSERT INTO checkpoint_results (run_id, path, step, ap, metrics_json, expected_ok, evaluated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.Path, rec.Step, nullIfNonFinite(rec.AP), metrics, boolToInt(rec.ExpectedOK),
		rec.EvaluatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("insert result: %w", err)
	}
	return res.LastInsertId()
}

// ListResults returns a run's checkpoints in evaluation order.
func (s *Store) ListResults(runID string) ([]ResultRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, run_id, path, step, ap, metrics_json, expected_ok, evaluated_at
		 FROM checkpoint_results WHERE run_id = ? ORDER BY id ASC`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	var records []ResultRecord
	for rows.Next() {
		rec, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// BestResult returns the run's highest-AP checkpoint. Ties go to the earlier evaluation.
// A NULL (non-finite) AP sorts last.
func (s *Store) BestResult(runID string) (ResultRecord, error) {
	row := s.db.QueryRow(
		`SELECT id, run_id, path, step, ap, metrics_json, expected_ok, evaluated_at
		 FROM checkpoint_results WHERE run_id = ? ORDER BY ap DESC, id ASC LIMIT 1`, runID,
	)
	rec, err := scanResult(row)
	if err != nil {
		return ResultRecord{}, fmt.Errorf("best result %s: %w", runID, err)
	}
	return rec, nil
}

// #endregion results

// #region scanning
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (RunRecord, error) {
	var rec RunRecord
	var startedStr string
	var finishedStr sql.NullString
	if err := sc.Scan(&rec.RunID, &rec.ConfigFile, &rec.OutputDir, &rec.WorldSize,
		&rec.Status, &startedStr, &finishedStr); err != nil {
		return RunRecord{}, err
	}
	rec.StartedAt, _ = time.Parse(time.RFC3339Nano, startedStr)
	if finishedStr.Valid {
		rec.FinishedAt, _ = time.Parse(time.RFC3339Nano, finishedStr.String)
	}
	return rec, nil
}

func scanResult(sc scanner) (ResultRecord, error) {
	var rec ResultRecord
	var ap sql.NullFloat64
	var metrics sql.NullString
	var expectedOK int
	var evaluatedStr string
	if err := sc.Scan(&rec.ID, &rec.RunID, &rec.Path, &rec.Step, &ap,
		&metrics, &expectedOK, &evaluatedStr); err != nil {
		return ResultRecord{}, err
	}
	rec.AP = math.NaN()
	if ap.Valid {
		rec.AP = ap.Float64
	}
	if metrics.Valid {
		rec.MetricsJSON = metrics.String
	}
	rec.ExpectedOK = expectedOK != 0
	rec.EvaluatedAt, _ = time.Parse(time.RFC3339Nano, evaluatedStr)
	return rec, nil
}

// nullIfNonFinite stores NaN and ±Inf as NULL; SQLite has no NaN.
func nullIfNonFinite(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// #endregion scanning
