package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/danielpatrickdp/detsweep/internal/config"
	"github.com/danielpatrickdp/detsweep/internal/replay"
	"github.com/danielpatrickdp/detsweep/internal/store"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to sweep.db")
	runID := flag.String("run", "", "sweep to export")
	last := flag.Int("last", 0, "export only the N most recently evaluated checkpoints (0 = all)")
	configFile := flag.String("config-file", "", "config whose TEST.EXPECTED_RESULTS go into the fixture")
	outPath := flag.String("out", "", "output fixture JSON path")
	flag.Parse()

	if *dbPath == "" || *runID == "" || *outPath == "" {
		fmt.Fprintln(os.Stderr, "usage: fixture-export --db path/to/db --run id --out path/to/fixture.json [--last N] [--config-file cfg.json]")
		os.Exit(2)
	}

	cfg, err := config.Load(*configFile, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if err := run(os.Stdout, *dbPath, *runID, *last, cfg.Test, *outPath); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region extract

func run(w io.Writer, dbPath, runID string, last int, tc config.TestConfig, outPath string) error {
	st, err := store.NewStore(dbPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer st.Close()

	if _, err := st.GetRun(runID); err != nil {
		return err
	}

	recs, err := st.ListResults(runID)
	if err != nil {
		return fmt.Errorf("list results: %w", err)
	}
	if last > 0 && len(recs) > last {
		recs = recs[len(recs)-last:]
	}
	if len(recs) == 0 {
		return fmt.Errorf("sweep %s has no evaluated checkpoints", runID)
	}

	evals, err := replay.FromRecords(recs)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Found %d evaluated checkpoints\n", len(evals))

	fixture := buildFixture(runID, evals, tc)
	if err := replay.WriteFixture(outPath, &fixture); err != nil {
		return err
	}
	fmt.Fprintf(w, "Wrote fixture to %s (%d evaluations)\n", outPath, len(fixture.Evaluations))
	return nil
}

// #endregion extract

// #region output

// buildFixture pins the verdicts the given expectations produce today so a
// later replay can detect drift.
func buildFixture(runID string, evals []replay.Evaluation, tc config.TestConfig) replay.Fixture {
	fc := replay.FixtureConfig{
		ExpectedResults: tc.ExpectedResults,
		SigmaTol:        tc.ExpectedResultsSigmaTol,
	}
	if fc.ExpectedResults == nil {
		fc.ExpectedResults = []config.ExpectedResult{}
	}
	results := replay.Replay(evals, fc.ToReplayConfig())

	fe := make([]replay.FixtureEvaluation, len(evals))
	expected := make([]replay.FixtureExpectedResult, len(results))
	for i, ev := range evals {
		fe[i] = replay.FromEvaluation(ev)
		expected[i] = replay.FixtureExpectedResult{
			Path:   results[i].Path,
			Action: results[i].Action,
		}
	}

	return replay.Fixture{
		Description:     fmt.Sprintf("Sweep export: %d checkpoints from run %s", len(evals), runID),
		Config:          fc,
		Evaluations:     fe,
		ExpectedResults: expected,
	}
}

// #endregion output
