package logging

import "time"

// Event kinds written to sweep_events.
const (
	EventCheckpointSkipped = "checkpoint_skipped"
	EventEvaluated         = "evaluated"
	EventExpectedFailed    = "expected_failed"
	EventNonFiniteAP       = "ap_not_finite"
	EventRunFailed         = "run_failed"
)

// #region event-entry
// EventEntry is a single row in the sweep_events table.
type EventEntry struct {
	RunID     string
	Kind      string
	Detail    string
	CreatedAt time.Time
}

// #endregion event-entry
