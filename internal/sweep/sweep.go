package sweep

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/danielpatrickdp/detsweep/internal/checkpoint"
	"github.com/danielpatrickdp/detsweep/internal/eval"
	"github.com/danielpatrickdp/detsweep/internal/evaluator"
	"github.com/danielpatrickdp/detsweep/internal/logging"
	"github.com/danielpatrickdp/detsweep/internal/report"
	"github.com/danielpatrickdp/detsweep/internal/store"
)

// #region errors
var (
	// ErrMixedPrecisionUnavailable aborts the sweep when the backend lacks mixed-precision support.
	ErrMixedPrecisionUnavailable = errors.New("mixed precision support unavailable on evaluator")
	// ErrLoaderCount is returned when the backend does not build exactly one validation loader.
	ErrLoaderCount = errors.New("expected exactly one validation data loader")
	// ErrMetricMissing is returned when inference results lack the tracked metric.
	ErrMetricMissing = errors.New("tracked metric missing from inference results")
	// ErrNoTestDataset is returned when the config names no test dataset.
	ErrNoTestDataset = errors.New("no test dataset configured")
	// ErrNoEvaluator is returned when Options carries no evaluator.
	ErrNoEvaluator = errors.New("no evaluator")
	// ErrDatasetMismatch is returned when the backend built loaders for other datasets than DATASETS.TEST.
	ErrDatasetMismatch = errors.New("data loader dataset does not match DATASETS.TEST")
)

// #endregion errors

const tracerName = "github.com/danielpatrickdp/detsweep/internal/sweep"

// #region run
// Run evaluates every checkpoint and records the AP trend.
// All ranks make the same evaluator calls so barriers line up; only rank 0 records.
func Run(ctx context.Context, opts Options) (Summary, error) {
	if opts.Evaluator == nil {
		return Summary{}, ErrNoEvaluator
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer(tracerName)
	}
	r := &runner{
		opts:    opts,
		ev:      opts.Evaluator,
		log:     opts.Logger,
		tracer:  opts.Tracer,
		primary: opts.LocalRank == 0,
		harness: eval.NewEvalHarness(eval.ConfigFromExpected(
			opts.Config.Test.ExpectedResults, opts.Config.Test.ExpectedResultsSigmaTol,
		)),
	}

	if r.primary && opts.Store != nil {
		rec, err := opts.Store.StartRun(opts.ConfigFile, opts.Config.OutputDir, opts.WorldSize)
		if err != nil {
			return Summary{}, err
		}
		r.summary.RunID = rec.RunID
	}

	ctx, span := r.tracer.Start(ctx, "sweep.Run", trace.WithAttributes(
		attribute.String("sweep.run_id", r.summary.RunID),
		attribute.Int("sweep.local_rank", opts.LocalRank),
		attribute.Int("sweep.world_size", opts.WorldSize),
	))

	err := r.run(ctx)
	r.finish(err)
	endSpan(span, err)
	return r.summary, err
}

// #endregion run

// #region runner
type runner struct {
	opts    Options
	ev      Evaluator
	log     *slog.Logger
	tracer  trace.Tracer
	primary bool
	harness *eval.EvalHarness

	series  report.Series
	summary Summary
}

func (r *runner) run(ctx context.Context) error {
	cfg := r.opts.Config

	caps, err := r.ev.Capabilities(ctx, evaluator.Runtime{
		StartMethod:     cfg.DataLoader.StartMethod,
		SharingStrategy: cfg.DataLoader.SharingStrategy,
	})
	if err != nil {
		return err
	}
	if !caps.MixedPrecision {
		return ErrMixedPrecisionUnavailable
	}

	if r.opts.Distributed() {
		err := r.ev.InitProcessGroup(ctx, evaluator.ProcessGroup{
			Backend:    "nccl",
			InitMethod: "env://",
			LocalRank:  r.opts.LocalRank,
			WorldSize:  r.opts.WorldSize,
		})
		if err != nil {
			return err
		}
		if err := r.ev.Synchronize(ctx); err != nil {
			return err
		}
	}

	r.log.Info(fmt.Sprintf("Using %d GPUs", r.opts.WorldSize), "devices", caps.DeviceCount)
	if caps.DeviceCount > 0 && r.opts.WorldSize > caps.DeviceCount {
		r.log.Warn("more processes than visible devices", "world_size", r.opts.WorldSize, "devices", caps.DeviceCount)
	}
	r.log.Info("config", "tree", cfg.String())
	r.log.Info("Collecting env info (might take some time)")
	r.log.Info("env\n" + caps.EnvInfo)

	if len(cfg.Datasets.Test) == 0 {
		return ErrNoTestDataset
	}

	tree, err := cfg.Map()
	if err != nil {
		return err
	}
	if err := r.ev.BuildModel(ctx, tree, cfg.Model.Device); err != nil {
		return err
	}
	if err := r.ev.InitMixedPrecision(ctx, cfg.MixedPrecision(), cfg.AMPVerbose); err != nil {
		return err
	}

	planned, err := r.plan()
	if err != nil {
		return err
	}

	for _, ck := range planned {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.evaluate(ctx, ck); err != nil {
			return fmt.Errorf("checkpoint %s: %w", ck.Path, err)
		}
	}

	if best := r.series.Best(); best >= 0 && r.primary {
		p := r.summary.Points[best]
		r.summary.Best = &p
		r.log.Info("best checkpoint", "path", p.Path, "step", p.Step, "ap", p.AP)
	}
	return nil
}

// plan lists the checkpoints to evaluate, newest-named first.
func (r *runner) plan() ([]checkpoint.Checkpoint, error) {
	cfg := r.opts.Config
	var paths []string
	if r.opts.Checkpoint != "" {
		paths = []string{r.opts.Checkpoint}
	} else {
		var err error
		paths, err = checkpoint.Discover(cfg.OutputDir, cfg.Sweep.Pattern)
		if err != nil {
			return nil, err
		}
	}

	planned, skipped := checkpoint.Plan(paths, cfg.Sweep.StepPrefix)
	for _, p := range skipped {
		r.log.Warn("skipping checkpoint without step number", "path", p)
		r.event(logging.EventCheckpointSkipped, p)
	}
	r.summary.Skipped = skipped
	if len(planned) == 0 {
		r.log.Warn("no checkpoints to evaluate", "dir", cfg.OutputDir, "pattern", cfg.Sweep.Pattern)
	}
	return planned, nil
}

// evaluate runs one checkpoint through every test dataset.
func (r *runner) evaluate(ctx context.Context, ck checkpoint.Checkpoint) (err error) {
	ctx, span := r.tracer.Start(ctx, "sweep.checkpoint", trace.WithAttributes(
		attribute.String("checkpoint.path", ck.Path),
		attribute.Float64("checkpoint.step", ck.Step),
	))
	defer func() { endSpan(span, err) }()

	cfg := r.opts.Config
	r.log.Info("checkpoint file", "path", ck.Path, "step", ck.Step)

	if err := r.ev.LoadCheckpoint(ctx, ck.Path); err != nil {
		return err
	}

	datasets := cfg.Datasets.Test
	folders := make([]string, len(datasets))
	if cfg.OutputDir != "" {
		for i, name := range datasets {
			folders[i] = filepath.Join(cfg.OutputDir, "inference", name)
			if err := os.MkdirAll(folders[i], 0o755); err != nil {
				return fmt.Errorf("mkdir %s: %w", folders[i], err)
			}
		}
	}

	loaders, err := r.ev.MakeDataLoaders(ctx, r.opts.Distributed())
	if err != nil {
		return err
	}
	if loaders.Count != 1 {
		return fmt.Errorf("%w: got %d", ErrLoaderCount, loaders.Count)
	}

	// names are optional; when reported they pair positionally with DATASETS.TEST
	for i, name := range loaders.DatasetNames {
		if i < len(datasets) && name != datasets[i] {
			return fmt.Errorf("%w: loader %d is %q, want %q", ErrDatasetMismatch, i, name, datasets[i])
		}
	}

	var last evaluator.InferenceResult
	for i := 0; i < len(datasets) && i < loaders.Count; i++ {
		res, err := r.ev.Inference(ctx, evaluator.InferenceRequest{
			DatasetName:             datasets[i],
			IOUTypes:                cfg.IOUTypes(),
			BoxOnly:                 cfg.BoxOnly(),
			Device:                  cfg.Model.Device,
			ExpectedResults:         expectedResults(cfg.Test.ExpectedResults),
			ExpectedResultsSigmaTol: cfg.Test.ExpectedResultsSigmaTol,
			OutputFolder:            folders[i],
		})
		if err != nil {
			return err
		}
		if err := r.ev.Synchronize(ctx); err != nil {
			return err
		}
		last = res
	}

	if !r.primary {
		return nil
	}
	return r.record(span, ck, last)
}

// record appends the point and rewrites the chart, archive and history row.
func (r *runner) record(span trace.Span, ck checkpoint.Checkpoint, res evaluator.InferenceResult) error {
	cfg := r.opts.Config
	ap, ok := res.Metric(cfg.Sweep.IOUType, cfg.Sweep.Metric)
	if !ok {
		return fmt.Errorf("%w: %s/%s", ErrMetricMissing, cfg.Sweep.IOUType, cfg.Sweep.Metric)
	}

	span.SetAttributes(attribute.Float64("checkpoint.ap", ap))
	if !report.Finite(ap) {
		r.log.Warn("non-finite metric", "path", ck.Path, cfg.Sweep.Metric, ap)
		r.event(logging.EventNonFiniteAP, fmt.Sprintf("%s: %s/%s = %v", ck.Path, cfg.Sweep.IOUType, cfg.Sweep.Metric, ap))
	}

	check := r.harness.Run(res.Results)
	if !check.Passed {
		r.log.Warn("expected results check failed", "path", ck.Path, "reason", check.Reason)
		r.event(logging.EventExpectedFailed, fmt.Sprintf("%s: %s", ck.Path, check.Reason))
	}

	point := Point{Path: ck.Path, Step: ck.Step, AP: ap, ExpectedOK: check.Passed, Reason: check.Reason}
	r.summary.Points = append(r.summary.Points, point)
	r.series.Append(ck.Step, ap)
	r.log.Info("evaluated", "step", ck.Step, cfg.Sweep.Metric, ap)

	err := report.WriteAll(
		filepath.Join(cfg.OutputDir, cfg.Sweep.PlotFile),
		filepath.Join(cfg.OutputDir, cfg.Sweep.ArchiveFile),
		r.series,
	)
	if err != nil {
		return err
	}

	if r.opts.Store == nil {
		return nil
	}
	metrics, err := json.Marshal(finiteMetrics(res.Results))
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}
	_, err = r.opts.Store.RecordResult(store.ResultRecord{
		RunID:       r.summary.RunID,
		Path:        ck.Path,
		Step:        ck.Step,
		AP:          ap,
		MetricsJSON: string(metrics),
		ExpectedOK:  check.Passed,
	})
	if err != nil {
		return err
	}
	r.event(logging.EventEvaluated, ck.Path)
	return nil
}

// finish stamps the stored run with its terminal status.
func (r *runner) finish(runErr error) {
	if !r.primary || r.opts.Store == nil || r.summary.RunID == "" {
		return
	}
	status := store.StatusCompleted
	switch {
	case errors.Is(runErr, context.Canceled), errors.Is(runErr, context.DeadlineExceeded):
		status = store.StatusCancelled
	case runErr != nil:
		status = store.StatusFailed
		r.event(logging.EventRunFailed, runErr.Error())
	}
	if err := r.opts.Store.FinishRun(r.summary.RunID, status); err != nil {
		r.log.Error("finish run", "err", err)
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// event persists a sweep event; failures are logged, never fatal.
func (r *runner) event(kind, detail string) {
	if !r.primary || r.opts.Store == nil || r.summary.RunID == "" {
		return
	}
	err := logging.LogEvent(r.opts.Store.DB(), logging.EventEntry{
		RunID:  r.summary.RunID,
		Kind:   kind,
		Detail: detail,
	})
	if err != nil {
		r.log.Error("log event", "kind", kind, "err", err)
	}
}

// #endregion runner
