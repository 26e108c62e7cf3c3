package store

import "time"

// Run status values.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// #region run-record
// RunRecord is one sweep invocation.
type RunRecord struct {
	RunID      string
	ConfigFile string
	OutputDir  string
	WorldSize  int
	Status     string
	StartedAt  time.Time
	FinishedAt time.Time // zero while running
}

// #endregion run-record

// #region result-record
// ResultRecord is one evaluated checkpoint within a run.
type ResultRecord struct {
	ID          int64
	RunID       string
	Path        string
	Step        float64
	AP          float64
	MetricsJSON string
	ExpectedOK  bool
	EvaluatedAt time.Time
}

// #endregion result-record
