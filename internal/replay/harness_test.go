package replay

import (
	"testing"

	"github.com/danielpatrickdp/detsweep/internal/eval"
	"github.com/danielpatrickdp/detsweep/internal/store"
)

func bboxAP(v float64) map[string]map[string]float64 {
	return map[string]map[string]float64{"bbox": {"AP": v}}
}

func apConfig() ReplayConfig {
	return ReplayConfig{EvalConfig: eval.EvalConfig{
		Expected: []eval.Expectation{{Task: "bbox", Metric: "AP", Mean: 0.35, Std: 0.01}},
		SigmaTol: 2,
	}}
}

func TestReplay_Verdicts(t *testing.T) {
	evals := []Evaluation{
		{Path: "a.pth", Step: 7500, AP: 0.36, Metrics: bboxAP(0.36), StoredOK: true},
		{Path: "b.pth", Step: 5000, AP: 0.30, Metrics: bboxAP(0.30), StoredOK: true},
		{Path: "c.pth", Step: 2500, AP: 0.34, Metrics: bboxAP(0.34), StoredOK: false},
	}

	results := Replay(evals, apConfig())
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}

	want := []struct {
		action  string
		changed bool
	}{
		{ActionPass, false},
		{ActionFail, true},
		{ActionPass, true},
	}
	for i, w := range want {
		if results[i].Action != w.action {
			t.Errorf("result %d: expected %s, got %s", i, w.action, results[i].Action)
		}
		if results[i].Changed != w.changed {
			t.Errorf("result %d: expected changed=%v, got %v", i, w.changed, results[i].Changed)
		}
	}
}

func TestReplay_MissingMetricsFail(t *testing.T) {
	results := Replay([]Evaluation{{Path: "a.pth", Step: 1, AP: 0.35}}, apConfig())
	if results[0].Action != ActionFail {
		t.Fatalf("expected fail without metrics, got %s", results[0].Action)
	}
}

func TestReplay_NoExpectationsPass(t *testing.T) {
	results := Replay([]Evaluation{{Path: "a.pth", Step: 1, AP: 0.1}}, DefaultReplayConfig())
	if results[0].Action != ActionPass {
		t.Fatalf("expected pass, got %s", results[0].Action)
	}
	if results[0].Reason != "no expected results" {
		t.Errorf("unexpected reason %q", results[0].Reason)
	}
}

func TestSummarize(t *testing.T) {
	results := []ReplayResult{
		{Path: "a.pth", Step: 7500, AP: 0.34, Action: ActionPass},
		{Path: "b.pth", Step: 5000, AP: 0.36, Action: ActionFail, Changed: true},
		{Path: "c.pth", Step: 2500, AP: 0.30, Action: ActionPass},
	}

	s := Summarize(results)
	if s.Total != 3 || s.Passed != 2 || s.Failed != 1 || s.Changed != 1 {
		t.Fatalf("unexpected counts: %+v", s)
	}
	if s.Best == nil || s.Best.Path != "b.pth" {
		t.Fatalf("expected best b.pth, got %+v", s.Best)
	}
	if s.Series.Len() != 3 || s.Series.Steps[0] != 7500 {
		t.Errorf("series not in evaluation order: %+v", s.Series)
	}
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil)
	if s.Total != 0 || s.Best != nil {
		t.Fatalf("expected empty summary, got %+v", s)
	}
}

func TestFromRecords(t *testing.T) {
	evals, err := FromRecords([]store.ResultRecord{
		{Path: "a.pth", Step: 10, AP: 0.2, MetricsJSON: `{"bbox":{"AP":0.2,"AP50":0.4}}`, ExpectedOK: true},
		{Path: "b.pth", Step: 20, AP: 0.3},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if evals[0].Metrics["bbox"]["AP50"] != 0.4 {
		t.Errorf("metrics not decoded: %+v", evals[0].Metrics)
	}
	if !evals[0].StoredOK || evals[1].StoredOK {
		t.Errorf("stored verdicts not carried: %+v", evals)
	}
	if evals[1].Metrics != nil {
		t.Errorf("expected nil metrics for empty JSON, got %+v", evals[1].Metrics)
	}
}

func TestFromRecords_BadJSON(t *testing.T) {
	if _, err := FromRecords([]store.ResultRecord{{Path: "a.pth", MetricsJSON: "{"}}); err == nil {
		t.Fatal("expected decode error")
	}
}
