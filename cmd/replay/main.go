package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/danielpatrickdp/detsweep/internal/config"
	"github.com/danielpatrickdp/detsweep/internal/eval"
	"github.com/danielpatrickdp/detsweep/internal/replay"
	"github.com/danielpatrickdp/detsweep/internal/report"
	"github.com/danielpatrickdp/detsweep/internal/store"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to sweep.db (DB mode)")
	runID := flag.String("run", "", "sweep to replay (default: most recent)")
	configFile := flag.String("config-file", "", "config whose TEST.EXPECTED_RESULTS are re-checked (DB mode)")
	outDir := flag.String("out", "", "re-render the chart and archive into this directory (DB mode)")
	fixturePath := flag.String("fixture", "", "path to fixture JSON (fixture mode)")
	flag.Parse()

	if (*dbPath == "" && *fixturePath == "") || (*dbPath != "" && *fixturePath != "") {
		fmt.Fprintln(os.Stderr, "usage: replay --db path/to/sweep.db [--run id] [--config-file cfg.json] [--out dir] [KEY VALUE ...]")
		fmt.Fprintln(os.Stderr, "       replay --fixture path/to/fixture.json")
		os.Exit(2)
	}

	var exitCode int
	if *fixturePath != "" {
		exitCode = runFixtureMode(os.Stdout, *fixturePath)
	} else {
		exitCode = runDBMode(os.Stdout, dbOptions{
			DBPath:     *dbPath,
			RunID:      *runID,
			ConfigFile: *configFile,
			Opts:       flag.Args(),
			OutDir:     *outDir,
		})
	}
	os.Exit(exitCode)
}

// #endregion main

// #region db-mode

type dbOptions struct {
	DBPath     string
	RunID      string
	ConfigFile string
	Opts       []string
	OutDir     string
}

var errNoRuns = errors.New("no sweeps found")

func runDBMode(w io.Writer, o dbOptions) int {
	cfg, err := config.Load(o.ConfigFile, o.Opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 2
	}

	st, err := store.NewStore(o.DBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		return 2
	}
	defer st.Close()

	runID, err := resolveRun(st, o.RunID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "resolve run: %v\n", err)
		return 2
	}

	recs, err := st.ListResults(runID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "list results: %v\n", err)
		return 2
	}
	if len(recs) == 0 {
		fmt.Fprintf(os.Stderr, "sweep %s has no evaluated checkpoints\n", runID)
		return 2
	}

	evals, err := replay.FromRecords(recs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "decode results: %v\n", err)
		return 2
	}

	rc := replay.ReplayConfig{
		EvalConfig: eval.ConfigFromExpected(cfg.Test.ExpectedResults, cfg.Test.ExpectedResultsSigmaTol),
	}
	results := replay.Replay(evals, rc)

	stored := make([]string, len(evals))
	for i, ev := range evals {
		stored[i] = verdict(ev.StoredOK)
	}
	code := printComparison(w, results, stored)

	if o.OutDir != "" {
		summary := replay.Summarize(results)
		if err := rerender(o.OutDir, cfg.Sweep, summary.Series); err != nil {
			fmt.Fprintf(os.Stderr, "render: %v\n", err)
			return 2
		}
		fmt.Fprintf(w, "Rendered %d points into %s\n", summary.Series.Len(), o.OutDir)
	}
	return code
}

// resolveRun returns runID, or the most recent sweep when it is empty.
func resolveRun(st *store.Store, runID string) (string, error) {
	if runID != "" {
		if _, err := st.GetRun(runID); err != nil {
			return "", err
		}
		return runID, nil
	}
	runs, err := st.ListRuns(1)
	if err != nil {
		return "", err
	}
	if len(runs) == 0 {
		return "", errNoRuns
	}
	return runs[0].RunID, nil
}

func rerender(dir string, sc config.SweepConfig, s report.Series) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return report.WriteAll(filepath.Join(dir, sc.PlotFile), filepath.Join(dir, sc.ArchiveFile), s)
}

func verdict(ok bool) string {
	if ok {
		return replay.ActionPass
	}
	return replay.ActionFail
}

// #endregion db-mode

// #region fixture-mode

func runFixtureMode(w io.Writer, path string) int {
	f, err := replay.LoadFixture(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load fixture: %v\n", err)
		return 2
	}

	evals := make([]replay.Evaluation, len(f.Evaluations))
	for i := range f.Evaluations {
		evals[i] = f.Evaluations[i].ToEvaluation()
	}

	results := replay.Replay(evals, f.Config.ToReplayConfig())

	expected := make([]string, len(f.ExpectedResults))
	for i, e := range f.ExpectedResults {
		expected[i] = e.Action
	}

	return printComparison(w, results, expected)
}

// #endregion fixture-mode

// #region output

// printComparison outputs a comparison table and returns the exit code.
// expected holds the reference verdicts (stored or from a fixture).
func printComparison(w io.Writer, results []replay.ReplayResult, expected []string) int {
	fmt.Fprintf(w, "%-12s| %-10s| %-9s| %-9s| %s\n", "Step", "AP", "Expected", "Replayed", "Match")
	fmt.Fprintf(w, "%-12s+%-11s+%-10s+%-10s+%s\n",
		"------------", "-----------", "----------", "----------", "------")

	matches := 0
	total := len(results)
	if len(expected) < total {
		total = len(expected)
	}

	for i := 0; i < total; i++ {
		r := results[i]
		match := "DIFF"
		if expected[i] == r.Action {
			match = "OK"
			matches++
		}
		fmt.Fprintf(w, "%-12g| %-10.4f| %-9s| %-9s| %s\n", r.Step, r.AP, expected[i], r.Action, match)
	}

	diverge := total - matches
	fmt.Fprintf(w, "\nSummary: %d total, %d match, %d diverge\n", total, matches, diverge)

	if s := replay.Summarize(results); s.Best != nil {
		fmt.Fprintf(w, "Best: step %g AP %.4f (%s)\n", s.Best.Step, s.Best.AP, s.Best.Path)
	}

	if diverge > 0 || len(expected) != len(results) {
		return 1
	}
	return 0
}

// #endregion output
