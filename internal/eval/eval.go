package eval

import (
	"fmt"
)

// #region eval-harness
// EvalHarness checks inference metrics against expected results.
type EvalHarness struct {
	config EvalConfig
}

// NewEvalHarness creates an eval harness with the given configuration.
func NewEvalHarness(config EvalConfig) *EvalHarness {
	return &EvalHarness{config: config}
}

// Run checks results (iou type → metric → value) against every expectation.
// A missing task or metric fails that expectation.
func (h *EvalHarness) Run(results map[string]map[string]float64) EvalResult {
	if len(h.config.Expected) == 0 {
		return EvalResult{Passed: true, Reason: "no expected results"}
	}

	var metrics []EvalMetric
	passed := true
	var failReasons []string

	for _, e := range h.config.Expected {
		name := fmt.Sprintf("%s/%s", e.Task, e.Metric)
		lo, hi := band(e, h.config.SigmaTol)
		m := EvalMetric{Name: name, Low: lo, High: hi}

		actual, ok := results[e.Task][e.Metric]
		if !ok {
			passed = false
			failReasons = append(failReasons, fmt.Sprintf("%s missing from results", name))
			metrics = append(metrics, m)
			continue
		}

		m.Value = actual
		m.Pass = lo < actual && actual < hi
		metrics = append(metrics, m)
		if !m.Pass {
			passed = false
			failReasons = append(failReasons, fmt.Sprintf("%s %.4f outside (%.4f, %.4f)", name, actual, lo, hi))
		}
	}

	reason := "all checks passed"
	if !passed {
		reason = fmt.Sprintf("eval failed: %s", failReasons[0])
		if len(failReasons) > 1 {
			reason = fmt.Sprintf("eval failed: %d checks: %s", len(failReasons), failReasons[0])
		}
	}

	return EvalResult{
		Passed:  passed,
		Metrics: metrics,
		Reason:  reason,
	}
}

// #endregion eval-harness

// #region helpers
func band(e Expectation, sigmaTol float64) (float64, float64) {
	return e.Mean - sigmaTol*e.Std, e.Mean + sigmaTol*e.Std
}

// #endregion helpers
