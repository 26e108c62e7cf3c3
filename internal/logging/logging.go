package logging

import (
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
)

// #region setup
// Setup returns the sweep logger. Only rank 0 writes; other ranks get a discarding logger
// so multi-process runs print one copy of every line.
func Setup(w io.Writer, rank int, level slog.Level) *slog.Logger {
	if rank > 0 {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})).With("rank", rank)
}

// ParseLevel maps debug|info|warn|error to a slog level. Anything else is info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// #endregion setup

// #region log-event
// LogEvent writes an event entry to the sweep_events table.
func LogEvent(db *sql.DB, entry EventEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := db.Exec(
		`INSERT INTO sweep_events (run_id, kind, detail, created_at)
		 VALUES (?, ?, ?, ?)`,
		entry.RunID,
		entry.Kind,
		nullIfEmpty(entry.Detail),
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log event: %w", err)
	}
	return nil
}

// #endregion log-event

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
