package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/danielpatrickdp/detsweep/internal/report"
	"github.com/danielpatrickdp/detsweep/internal/store"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to sweep.db")
	last := flag.Int("last", 20, "show N most recent sweeps")
	runID := flag.String("run", "", "show one sweep's checkpoints")
	archive := flag.String("archive", "", "print an AP archive (check_maps.npz) instead of the db")
	jsonOut := flag.Bool("json", false, "output as JSON instead of table")
	flag.Parse()

	if *archive != "" {
		if err := runArchiveMode(os.Stdout, *archive, *jsonOut); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect --db path/to/sweep.db [--last N] [--run id] [--json]")
		fmt.Fprintln(os.Stderr, "       inspect --archive path/to/check_maps.npz [--json]")
		os.Exit(2)
	}

	st, err := store.NewStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	if *runID != "" {
		err = runDetailMode(os.Stdout, st, *runID, *jsonOut)
	} else {
		err = runListMode(os.Stdout, st, *last, *jsonOut)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region list-mode

type listRow struct {
	RunID       string   `json:"run_id"`
	Status      string   `json:"status"`
	WorldSize   int      `json:"world_size"`
	Checkpoints int      `json:"checkpoints"`
	BestStep    *float64 `json:"best_step,omitempty"`
	BestAP      *float64 `json:"best_ap,omitempty"`
	OutputDir   string   `json:"output_dir"`
	StartedAt   string   `json:"started_at"`
}

func runListMode(w io.Writer, st *store.Store, last int, jsonOut bool) error {
	runs, err := st.ListRuns(last)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(os.Stderr, "no sweeps found")
		return nil
	}

	rows := make([]listRow, len(runs))
	for i, r := range runs {
		results, err := st.ListResults(r.RunID)
		if err != nil {
			return err
		}
		row := listRow{
			RunID:       r.RunID,
			Status:      r.Status,
			WorldSize:   r.WorldSize,
			Checkpoints: len(results),
			OutputDir:   r.OutputDir,
			StartedAt:   r.StartedAt.Format("2006-01-02T15:04:05Z"),
		}
		if len(results) > 0 {
			best, err := st.BestResult(r.RunID)
			if err != nil {
				return err
			}
			row.BestStep, row.BestAP = &best.Step, finiteAP(best.AP)
		}
		rows[i] = row
	}

	if jsonOut {
		return printJSON(w, rows)
	}

	fmt.Fprintf(w, "%-10s  %-10s  %5s  %5s  %10s  %8s  %-20s  %s\n",
		"Run", "Status", "Procs", "Ckpts", "Best Step", "Best AP", "Started", "Output")
	for _, r := range rows {
		step, ap := "—", "—"
		if r.BestStep != nil {
			step = fmt.Sprintf("%.0f", *r.BestStep)
			ap = formatAP(r.BestAP)
		}
		fmt.Fprintf(w, "%-10s  %-10s  %5d  %5d  %10s  %8s  %-20s  %s\n",
			shortID(r.RunID), r.Status, r.WorldSize, r.Checkpoints, step, ap, r.StartedAt, r.OutputDir)
	}
	return nil
}

// #endregion list-mode

// #region detail-mode

type detailOutput struct {
	RunID      string         `json:"run_id"`
	Status     string         `json:"status"`
	ConfigFile string         `json:"config_file"`
	OutputDir  string         `json:"output_dir"`
	StartedAt  string         `json:"started_at"`
	FinishedAt string         `json:"finished_at,omitempty"`
	Results    []resultDetail `json:"results"`
}

type resultDetail struct {
	Step       float64         `json:"step"`
	AP         *float64        `json:"ap"` // null when not finite
	ExpectedOK bool            `json:"expected_ok"`
	Best       bool            `json:"best"`
	Path       string          `json:"path"`
	Metrics    json.RawMessage `json:"metrics,omitempty"`
}

func runDetailMode(w io.Writer, st *store.Store, runID string, jsonOut bool) error {
	run, err := st.GetRun(runID)
	if err != nil {
		return err
	}
	results, err := st.ListResults(runID)
	if err != nil {
		return err
	}

	out := detailOutput{
		RunID:      run.RunID,
		Status:     run.Status,
		ConfigFile: run.ConfigFile,
		OutputDir:  run.OutputDir,
		StartedAt:  run.StartedAt.Format("2006-01-02T15:04:05Z"),
	}
	if !run.FinishedAt.IsZero() {
		out.FinishedAt = run.FinishedAt.Format("2006-01-02T15:04:05Z")
	}

	var bestID int64 = -1
	if len(results) > 0 {
		best, err := st.BestResult(runID)
		if err != nil {
			return err
		}
		bestID = best.ID
	}
	for _, r := range results {
		d := resultDetail{
			Step:       r.Step,
			AP:         finiteAP(r.AP),
			ExpectedOK: r.ExpectedOK,
			Best:       r.ID == bestID,
			Path:       r.Path,
		}
		if r.MetricsJSON != "" {
			d.Metrics = json.RawMessage(r.MetricsJSON)
		}
		out.Results = append(out.Results, d)
	}

	if jsonOut {
		return printJSON(w, out)
	}

	fmt.Fprintf(w, "Run:      %s\n", out.RunID)
	fmt.Fprintf(w, "Status:   %s\n", out.Status)
	fmt.Fprintf(w, "Config:   %s\n", out.ConfigFile)
	fmt.Fprintf(w, "Output:   %s\n", out.OutputDir)
	fmt.Fprintf(w, "Started:  %s\n", out.StartedAt)
	if out.FinishedAt != "" {
		fmt.Fprintf(w, "Finished: %s\n", out.FinishedAt)
	}
	fmt.Fprintln(w)

	if len(out.Results) == 0 {
		fmt.Fprintln(w, "no checkpoints evaluated")
		return nil
	}
	fmt.Fprintf(w, "  %10s  %8s  %-8s  %s\n", "Step", "AP", "Expected", "Checkpoint")
	for _, r := range out.Results {
		mark := " "
		if r.Best {
			mark = "*"
		}
		exp := "ok"
		if !r.ExpectedOK {
			exp = "FAIL"
		}
		fmt.Fprintf(w, "%s %10.0f  %8s  %-8s  %s\n", mark, r.Step, formatAP(r.AP), exp, r.Path)
	}
	return nil
}

// #endregion detail-mode

// #region archive-mode

type archivePoint struct {
	Step float64  `json:"step"`
	AP   *float64 `json:"ap"`
}

func runArchiveMode(w io.Writer, path string, jsonOut bool) error {
	s, err := report.ReadArchive(path)
	if err != nil {
		return err
	}
	if len(s.Steps) != len(s.AP) {
		return fmt.Errorf("archive %s: %d steps but %d AP values", path, len(s.Steps), len(s.AP))
	}

	points := make([]archivePoint, s.Len())
	for i := range points {
		points[i] = archivePoint{Step: s.Steps[i], AP: finiteAP(s.AP[i])}
	}
	if jsonOut {
		return printJSON(w, points)
	}

	best := s.Best()
	fmt.Fprintf(w, "  %10s  %8s\n", "Step", "AP")
	for i, p := range points {
		mark := " "
		if i == best {
			mark = "*"
		}
		fmt.Fprintf(w, "%s %10.0f  %8s\n", mark, p.Step, formatAP(p.AP))
	}
	return nil
}

// #endregion archive-mode

// #region output

func printJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// #endregion output

// #region format

// finiteAP returns nil for NaN or infinite values, which JSON cannot encode.
func finiteAP(v float64) *float64 {
	if !report.Finite(v) {
		return nil
	}
	return &v
}

func formatAP(v *float64) string {
	if v == nil {
		return "nan"
	}
	return fmt.Sprintf("%.4f", *v)
}

// #endregion format
