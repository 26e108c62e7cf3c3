package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/danielpatrickdp/detsweep/internal/config"
	"github.com/danielpatrickdp/detsweep/internal/sweep"
)

func execute(t *testing.T, args []string, runFn runFunc) error {
	t.Helper()
	cmd := newRootCmd(runFn)
	cmd.SetArgs(args)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	return cmd.ExecuteContext(context.Background())
}

func TestRootCmd_FlagsAndOverrides(t *testing.T) {
	var gotFlags flags
	var gotOpts []string
	err := execute(t, []string{
		"--config-file", "cfg.json",
		"--local_rank=2",
		"--ckpt", "/out/model_0001000.pth",
		"MODEL.DEVICE", "cpu",
		"--looks-like-a-flag", "value",
	}, func(_ context.Context, f flags, opts []string) error {
		gotFlags, gotOpts = f, opts
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotFlags.configFile != "cfg.json" || gotFlags.localRank != 2 || gotFlags.ckpt != "/out/model_0001000.pth" {
		t.Errorf("unexpected flags %+v", gotFlags)
	}
	want := []string{"MODEL.DEVICE", "cpu", "--looks-like-a-flag", "value"}
	if strings.Join(gotOpts, " ") != strings.Join(want, " ") {
		t.Errorf("expected remainder %v, got %v", want, gotOpts)
	}
}

func TestRootCmd_Defaults(t *testing.T) {
	var gotFlags flags
	err := execute(t, []string{}, func(_ context.Context, f flags, _ []string) error {
		gotFlags = f
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotFlags.configFile != defaultConfigFile || gotFlags.localRank != 0 || gotFlags.ckpt != "" {
		t.Errorf("unexpected defaults %+v", gotFlags)
	}
}

func TestRootCmd_BadFlagIsUsageError(t *testing.T) {
	err := execute(t, []string{"--local_rank", "zero"}, func(context.Context, flags, []string) error {
		t.Fatal("run must not be called")
		return nil
	})
	var uerr *usageError
	if !errors.As(err, &uerr) {
		t.Fatalf("expected usage error, got %v", err)
	}
}

func TestRootCmd_OddOverridesIsUsageError(t *testing.T) {
	err := execute(t, []string{"MODEL.DEVICE"}, func(_ context.Context, _ flags, opts []string) error {
		_, err := config.MergeFromList(config.Default(), opts)
		return err
	})
	var uerr *usageError
	if !errors.As(err, &uerr) {
		t.Fatalf("expected usage error, got %v", err)
	}
	if !errors.Is(err, config.ErrOddOverrides) {
		t.Errorf("expected ErrOddOverrides in chain, got %v", err)
	}
}

func TestRootCmd_BadOverrideValueIsUsageError(t *testing.T) {
	for _, args := range [][]string{
		{"MODEL.MASK_ON", "maybe"},
		{"DATALOADER.NUM_WORKERS", "2.5"},
		{"MODEL.DEV*", "cpu"},
	} {
		err := execute(t, args, func(_ context.Context, _ flags, opts []string) error {
			_, err := config.MergeFromList(config.Default(), opts)
			return err
		})
		var uerr *usageError
		if !errors.As(err, &uerr) {
			t.Errorf("%v: expected usage error, got %v", args, err)
		}
	}
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	best := sweep.Point{Path: "/out/model_0005000.pth", Step: 5000, AP: 0.36, ExpectedOK: true}
	printSummary(&buf, sweep.Summary{
		RunID: "run-1",
		Points: []sweep.Point{
			{Path: "/out/model_0007500.pth", Step: 7500, AP: 0.34, ExpectedOK: false},
			best,
		},
		Best:    &best,
		Skipped: []string{"/out/model_final.pth"},
	})

	out := buf.String()
	for _, want := range []string{"7500", "0.3400", "FAIL", "best: step 5000", "skipped 1", "run: run-1"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestPrintSummary_Empty(t *testing.T) {
	var buf bytes.Buffer
	printSummary(&buf, sweep.Summary{})
	if !strings.Contains(buf.String(), "no checkpoints evaluated") {
		t.Errorf("unexpected output %q", buf.String())
	}
}
