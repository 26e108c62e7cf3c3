package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/danielpatrickdp/detsweep/internal/config"
	"github.com/danielpatrickdp/detsweep/internal/replay"
	"github.com/danielpatrickdp/detsweep/internal/store"
)

func seedDB(t *testing.T) (string, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "sweep.db")
	st, err := store.NewStore(dbPath)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer st.Close()

	run, err := st.StartRun("cfg.json", "/out", 1)
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	for _, r := range []store.ResultRecord{
		{RunID: run.RunID, Path: "/out/model_0007500.pth", Step: 7500, AP: 0.36, MetricsJSON: `{"bbox":{"AP":0.36}}`},
		{RunID: run.RunID, Path: "/out/model_0005000.pth", Step: 5000, AP: 0.35, MetricsJSON: `{"bbox":{"AP":0.35}}`},
		{RunID: run.RunID, Path: "/out/model_0002500.pth", Step: 2500, AP: 0.20, MetricsJSON: `{"bbox":{"AP":0.20}}`},
	} {
		if _, err := st.RecordResult(r); err != nil {
			t.Fatalf("RecordResult: %v", err)
		}
	}
	return dbPath, run.RunID
}

func TestRun_ExportsAndReplays(t *testing.T) {
	dbPath, runID := seedDB(t)
	out := filepath.Join(t.TempDir(), "fixture.json")
	tc := config.TestConfig{
		ExpectedResults:         []config.ExpectedResult{{Task: "bbox", Metric: "AP", Mean: 0.35, Std: 0.01}},
		ExpectedResultsSigmaTol: 4,
	}
	var buf bytes.Buffer

	if err := run(&buf, dbPath, runID, 0, tc, out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	f, err := replay.LoadFixture(out)
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}
	if len(f.Evaluations) != 3 {
		t.Fatalf("expected 3 evaluations, got %d", len(f.Evaluations))
	}
	want := []string{replay.ActionPass, replay.ActionPass, replay.ActionFail}
	for i, w := range want {
		if f.ExpectedResults[i].Action != w {
			t.Errorf("row %d: expected %s, got %s", i, w, f.ExpectedResults[i].Action)
		}
	}
}

func TestRun_Last(t *testing.T) {
	dbPath, runID := seedDB(t)
	out := filepath.Join(t.TempDir(), "fixture.json")
	var buf bytes.Buffer

	if err := run(&buf, dbPath, runID, 1, config.Default().Test, out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f, err := replay.LoadFixture(out)
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}
	if len(f.Evaluations) != 1 || f.Evaluations[0].Step != 2500 {
		t.Fatalf("expected only the last evaluated checkpoint, got %+v", f.Evaluations)
	}
}

func TestRun_UnknownRun(t *testing.T) {
	dbPath, _ := seedDB(t)
	var buf bytes.Buffer
	if err := run(&buf, dbPath, "missing", 0, config.Default().Test, filepath.Join(t.TempDir(), "f.json")); err == nil {
		t.Fatal("expected error for unknown run")
	}
}
