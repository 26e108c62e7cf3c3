package sweep

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/danielpatrickdp/detsweep/internal/config"
	"github.com/danielpatrickdp/detsweep/internal/evaluator"
	"github.com/danielpatrickdp/detsweep/internal/store"
)

// #region evaluator
// Evaluator is the detection framework as seen from the sweep.
// *evaluator.Client satisfies it.
type Evaluator interface {
	Capabilities(ctx context.Context, rt evaluator.Runtime) (evaluator.Capabilities, error)
	InitProcessGroup(ctx context.Context, pg evaluator.ProcessGroup) error
	Synchronize(ctx context.Context) error
	BuildModel(ctx context.Context, cfg map[string]any, device string) error
	InitMixedPrecision(ctx context.Context, enabled, verbose bool) error
	LoadCheckpoint(ctx context.Context, path string) error
	MakeDataLoaders(ctx context.Context, distributed bool) (evaluator.DataLoaders, error)
	Inference(ctx context.Context, in evaluator.InferenceRequest) (evaluator.InferenceResult, error)
}

// #endregion evaluator

// #region options
// Options configures one sweep.
type Options struct {
	Config     config.Config
	ConfigFile string
	Checkpoint string // evaluate only this file when set
	LocalRank  int
	WorldSize  int

	Evaluator Evaluator
	Store     *store.Store // optional; only rank 0 writes
	Logger    *slog.Logger
	Tracer    trace.Tracer // defaults to the global provider
}

// Distributed reports whether more than one process takes part.
func (o Options) Distributed() bool {
	return o.WorldSize > 1
}

// #endregion options

// #region summary
// Point is one evaluated checkpoint.
type Point struct {
	Path       string
	Step       float64
	AP         float64
	ExpectedOK bool
	Reason     string
}

// Summary is the outcome of a sweep. Points is empty on non-zero ranks.
type Summary struct {
	RunID   string
	Points  []Point
	Skipped []string
	Best    *Point
}

// #endregion summary
