package sweep

import (
	"github.com/danielpatrickdp/detsweep/internal/config"
	"github.com/danielpatrickdp/detsweep/internal/evaluator"
	"github.com/danielpatrickdp/detsweep/internal/report"
)

func expectedResults(in []config.ExpectedResult) []evaluator.ExpectedResult {
	out := make([]evaluator.ExpectedResult, len(in))
	for i, e := range in {
		out[i] = evaluator.ExpectedResult{Task: e.Task, Metric: e.Metric, Mean: e.Mean, Std: e.Std}
	}
	return out
}

// finiteMetrics drops NaN and infinite values, which JSON cannot carry.
func finiteMetrics(in map[string]map[string]float64) map[string]map[string]float64 {
	out := make(map[string]map[string]float64, len(in))
	for iouType, metrics := range in {
		m := make(map[string]float64, len(metrics))
		for name, v := range metrics {
			if report.Finite(v) {
				m[name] = v
			}
		}
		out[iouType] = m
	}
	return out
}
