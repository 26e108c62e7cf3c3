package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/detsweep/internal/config"
	"github.com/danielpatrickdp/detsweep/internal/evaluator"
	"github.com/danielpatrickdp/detsweep/internal/logging"
	"github.com/danielpatrickdp/detsweep/internal/store"
	"github.com/danielpatrickdp/detsweep/internal/sweep"
	"github.com/danielpatrickdp/detsweep/internal/tracing"
)

const defaultConfigFile = "configs/e2e_faster_rcnn_R_50_C4_1x_caffe2.json"

// #region main
func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := newRootCmd(func(ctx context.Context, f flags, opts []string) error {
		return run(ctx, os.Stdout, os.Stderr, f, opts)
	})
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		var uerr *usageError
		if errors.As(err, &uerr) {
			fmt.Fprintln(os.Stderr, cmd.UsageString())
			os.Exit(2)
		}
		os.Exit(1)
	}
}

// #endregion main

// #region command
type flags struct {
	configFile    string
	localRank     int
	ckpt          string
	evaluatorAddr string
	dbPath        string
}

type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

type runFunc func(ctx context.Context, f flags, opts []string) error

func newRootCmd(runFn runFunc) *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:   "sweep [flags] [KEY VALUE]...",
		Short: "Evaluate every saved checkpoint and plot the AP trend",
		Long: "sweep loads each checkpoint in OUTPUT_DIR through the detection framework's evaluator " +
			"service, collects bbox AP per training step, and writes check_maps.png and check_maps.npz.",
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := runFn(cmd.Context(), f, args)
			if errors.Is(err, config.ErrOddOverrides) || errors.Is(err, config.ErrUnknownKey) || errors.Is(err, config.ErrTypeMismatch) {
				return &usageError{err: err}
			}
			return err
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err: err}
	})

	fs := cmd.Flags()
	// everything after the first positional is a config override
	fs.SetInterspersed(false)
	fs.StringVar(&f.configFile, "config-file", defaultConfigFile, "path to config file")
	fs.IntVar(&f.localRank, "local_rank", 0, "device index of this process")
	fs.StringVar(&f.ckpt, "ckpt", "", "checkpoint to test; default is every checkpoint in OUTPUT_DIR")
	fs.StringVar(&f.evaluatorAddr, "evaluator", "", "evaluator service address (default $EVALUATOR_ADDR)")
	fs.StringVar(&f.dbPath, "db", "", "sweep history database (default $SWEEP_DB, then OUTPUT_DIR/sweep.db)")
	return cmd
}

// #endregion command

// #region run
func run(ctx context.Context, out, errW io.Writer, f flags, opts []string) error {
	env, err := config.ParseEnv()
	if err != nil {
		return err
	}
	cfg, err := config.Load(f.configFile, opts)
	if err != nil {
		return err
	}

	logger := logging.Setup(errW, f.localRank, logging.ParseLevel(env.LogLevel))

	shutdown, err := tracing.Setup(ctx, "detsweep", env.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Warn("trace shutdown", "err", err)
		}
	}()

	addr := f.evaluatorAddr
	if addr == "" {
		addr = env.EvaluatorAddr
	}
	client, err := evaluator.New(addr)
	if err != nil {
		return err
	}
	defer client.Close()

	var st *store.Store
	if f.localRank == 0 {
		st, err = openStore(f.dbPath, env.DBPath, cfg.OutputDir)
		if err != nil {
			return err
		}
		defer st.Close()
	}

	sum, err := sweep.Run(ctx, sweep.Options{
		Config:     cfg,
		ConfigFile: f.configFile,
		Checkpoint: f.ckpt,
		LocalRank:  f.localRank,
		WorldSize:  env.WorldSize,
		Evaluator:  client,
		Store:      st,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	if f.localRank == 0 {
		printSummary(out, sum)
	}
	return nil
}

func openStore(flagPath, envPath, outputDir string) (*store.Store, error) {
	path := flagPath
	if path == "" {
		path = envPath
	}
	if path == "" {
		if err := os.MkdirAll(outputDir, 0o755); err != nil {
			return nil, fmt.Errorf("mkdir %s: %w", outputDir, err)
		}
		path = filepath.Join(outputDir, "sweep.db")
	}
	return store.NewStore(path)
}

// #endregion run

// #region summary
func printSummary(w io.Writer, sum sweep.Summary) {
	if len(sum.Points) == 0 {
		fmt.Fprintln(w, "no checkpoints evaluated")
		return
	}
	fmt.Fprintf(w, "%10s  %8s  %-8s  %s\n", "Step", "AP", "Expected", "Checkpoint")
	for _, p := range sum.Points {
		mark := "ok"
		if !p.ExpectedOK {
			mark = "FAIL"
		}
		fmt.Fprintf(w, "%10.0f  %8.4f  %-8s  %s\n", p.Step, p.AP, mark, p.Path)
	}
	if sum.Best != nil {
		fmt.Fprintf(w, "\nbest: step %.0f AP %.4f (%s)\n", sum.Best.Step, sum.Best.AP, sum.Best.Path)
	}
	if len(sum.Skipped) > 0 {
		fmt.Fprintf(w, "skipped %d checkpoint(s) without a step number\n", len(sum.Skipped))
	}
	if sum.RunID != "" {
		fmt.Fprintf(w, "run: %s\n", sum.RunID)
	}
}

// #endregion summary
