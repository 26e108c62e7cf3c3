package eval

import (
	"math"
	"strings"
	"testing"

	"github.com/danielpatrickdp/detsweep/internal/config"
)

func bboxResults(ap float64) map[string]map[string]float64 {
	return map[string]map[string]float64{"bbox": {"AP": ap, "AP50": 0.58}}
}

func TestEvalPassesWithoutExpectations(t *testing.T) {
	h := NewEvalHarness(DefaultEvalConfig())

	result := h.Run(bboxResults(0.1))

	if !result.Passed {
		t.Fatalf("expected pass with no expectations, got fail: %s", result.Reason)
	}
	if result.Reason != "no expected results" {
		t.Errorf("unexpected reason %q", result.Reason)
	}
}

func TestEvalPassesInsideBand(t *testing.T) {
	config := DefaultEvalConfig()
	config.Expected = []Expectation{{Task: "bbox", Metric: "AP", Mean: 0.37, Std: 0.01}}
	h := NewEvalHarness(config)

	// band is (0.33, 0.41)
	result := h.Run(bboxResults(0.40))

	if !result.Passed {
		t.Fatalf("expected pass, got fail: %s", result.Reason)
	}
	if len(result.Metrics) != 1 {
		t.Fatalf("expected 1 metric, got %d", len(result.Metrics))
	}
	m := result.Metrics[0]
	if m.Name != "bbox/AP" || !m.Pass {
		t.Errorf("unexpected metric %+v", m)
	}
}

func TestEvalFailsOutsideBand(t *testing.T) {
	config := DefaultEvalConfig()
	config.Expected = []Expectation{{Task: "bbox", Metric: "AP", Mean: 0.37, Std: 0.01}}
	h := NewEvalHarness(config)

	result := h.Run(bboxResults(0.20))

	if result.Passed {
		t.Fatal("expected fail for AP far below expectation")
	}
	if !strings.Contains(result.Reason, "bbox/AP") {
		t.Errorf("expected reason to name the metric, got %q", result.Reason)
	}
}

func TestEvalBandIsExclusive(t *testing.T) {
	config := EvalConfig{
		Expected: []Expectation{{Task: "bbox", Metric: "AP", Mean: 0.5, Std: 0}},
		SigmaTol: 4,
	}
	h := NewEvalHarness(config)

	// zero std collapses the band to an empty open interval
	result := h.Run(bboxResults(0.5))

	if result.Passed {
		t.Fatal("expected fail on empty open interval")
	}
}

func TestEvalMissingMetric(t *testing.T) {
	config := DefaultEvalConfig()
	config.Expected = []Expectation{
		{Task: "segm", Metric: "AP", Mean: 0.3, Std: 0.1},
		{Task: "bbox", Metric: "AR", Mean: 0.5, Std: 0.1},
	}
	h := NewEvalHarness(config)

	result := h.Run(bboxResults(0.37))

	if result.Passed {
		t.Fatal("expected fail on missing metrics")
	}
	if !strings.HasPrefix(result.Reason, "eval failed: 2 checks") {
		t.Errorf("expected both failures counted, got %q", result.Reason)
	}
	for _, m := range result.Metrics {
		if m.Pass {
			t.Errorf("missing metric %s should not pass", m.Name)
		}
	}
}

func TestConfigFromExpected(t *testing.T) {
	c := ConfigFromExpected([]config.ExpectedResult{
		{Task: "bbox", Metric: "AP", Mean: 0.37, Std: 0.01},
		{Task: "segm", Metric: "AP", Mean: 0.34, Std: 0.02},
	}, 3)

	if c.SigmaTol != 3 || len(c.Expected) != 2 {
		t.Fatalf("unexpected config: %+v", c)
	}
	if c.Expected[1] != (Expectation{Task: "segm", Metric: "AP", Mean: 0.34, Std: 0.02}) {
		t.Errorf("unexpected expectation: %+v", c.Expected[1])
	}
	if got := ConfigFromExpected(nil, 4); len(got.Expected) != 0 {
		t.Errorf("expected no expectations, got %+v", got.Expected)
	}
}

func TestEvalNaNFails(t *testing.T) {
	h := NewEvalHarness(ConfigFromExpected([]config.ExpectedResult{{Task: "bbox", Metric: "AP", Mean: 0.37, Std: 0.01}}, 4))

	if h.Run(bboxResults(math.NaN())).Passed {
		t.Fatal("NaN must not pass an expectation")
	}
}
