package eval

import "github.com/danielpatrickdp/detsweep/internal/config"

// #region eval-config
// Expectation is one metric the checkpoint is expected to reach, as mean and std.
type Expectation struct {
	Task   string
	Metric string
	Mean   float64
	Std    float64
}

// EvalConfig holds the expectations and the tolerance in standard deviations.
type EvalConfig struct {
	Expected []Expectation
	SigmaTol float64 // accepted band is mean ± SigmaTol*std, exclusive
}

// DefaultEvalConfig returns an empty expectation set with the framework's default tolerance.
func DefaultEvalConfig() EvalConfig {
	return EvalConfig{SigmaTol: 4}
}

// ConfigFromExpected builds an EvalConfig from the TEST.EXPECTED_RESULTS entries.
func ConfigFromExpected(expected []config.ExpectedResult, sigmaTol float64) EvalConfig {
	c := EvalConfig{SigmaTol: sigmaTol}
	for _, e := range expected {
		c.Expected = append(c.Expected, Expectation{Task: e.Task, Metric: e.Metric, Mean: e.Mean, Std: e.Std})
	}
	return c
}

// #endregion eval-config

// #region eval-metric
// EvalMetric captures a single expectation check.
type EvalMetric struct {
	Name  string // "<task>/<metric>"
	Value float64
	Low   float64
	High  float64
	Pass  bool
}

// #endregion eval-metric

// #region eval-result
// EvalResult is the outcome of checking one inference result against expectations.
type EvalResult struct {
	Passed  bool
	Metrics []EvalMetric
	Reason  string
}

// #endregion eval-result
