package replay

import (
	"encoding/json"
	"fmt"

	"github.com/danielpatrickdp/detsweep/internal/eval"
	"github.com/danielpatrickdp/detsweep/internal/report"
	"github.com/danielpatrickdp/detsweep/internal/store"
)

// Replay actions.
const (
	ActionPass = "pass"
	ActionFail = "fail"
)

// #region types
// Evaluation is one recorded checkpoint result to replay.
type Evaluation struct {
	Path     string
	Step     float64
	AP       float64
	Metrics  map[string]map[string]float64
	StoredOK bool
}

// ReplayConfig holds the expectations stored results are re-checked against.
type ReplayConfig struct {
	EvalConfig eval.EvalConfig
}

// DefaultReplayConfig returns a config with no expectations.
func DefaultReplayConfig() ReplayConfig {
	return ReplayConfig{EvalConfig: eval.DefaultEvalConfig()}
}

// ReplayResult captures the outcome of re-checking one checkpoint.
type ReplayResult struct {
	Path    string
	Step    float64
	AP      float64
	Action  string // "pass" | "fail"
	Reason  string
	Changed bool // verdict differs from the stored one

	EvalResult eval.EvalResult
}

// ReplaySummary provides aggregate stats from a replay run.
type ReplaySummary struct {
	Total   int
	Passed  int
	Failed  int
	Changed int
	Best    *ReplayResult
	Series  report.Series
}

// #endregion types

// #region replay
// Replay re-checks each evaluation in order. Operates entirely in-memory.
func Replay(evals []Evaluation, config ReplayConfig) []ReplayResult {
	harness := eval.NewEvalHarness(config.EvalConfig)
	results := make([]ReplayResult, 0, len(evals))

	for _, ev := range evals {
		res := harness.Run(ev.Metrics)
		action := ActionPass
		if !res.Passed {
			action = ActionFail
		}
		results = append(results, ReplayResult{
			Path:       ev.Path,
			Step:       ev.Step,
			AP:         ev.AP,
			Action:     action,
			Reason:     res.Reason,
			Changed:    res.Passed != ev.StoredOK,
			EvalResult: res,
		})
	}
	return results
}

// Summarize computes aggregate stats and rebuilds the AP series from replay results.
func Summarize(results []ReplayResult) ReplaySummary {
	s := ReplaySummary{Total: len(results)}
	for _, r := range results {
		switch r.Action {
		case ActionPass:
			s.Passed++
		case ActionFail:
			s.Failed++
		}
		if r.Changed {
			s.Changed++
		}
		s.Series.Append(r.Step, r.AP)
	}
	if i := s.Series.Best(); i >= 0 {
		best := results[i]
		s.Best = &best
	}
	return s
}

// #endregion replay

// #region records
// FromRecords converts stored results into evaluations, decoding their metrics.
func FromRecords(recs []store.ResultRecord) ([]Evaluation, error) {
	evals := make([]Evaluation, 0, len(recs))
	for _, r := range recs {
		ev := Evaluation{
			Path:     r.Path,
			Step:     r.Step,
			AP:       r.AP,
			StoredOK: r.ExpectedOK,
		}
		if r.MetricsJSON != "" {
			if err := json.Unmarshal([]byte(r.MetricsJSON), &ev.Metrics); err != nil {
				return nil, fmt.Errorf("decode metrics for %s: %w", r.Path, err)
			}
		}
		evals = append(evals, ev)
	}
	return evals, nil
}

// #endregion records
