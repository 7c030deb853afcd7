package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/cwbudde/optexplore/internal/bench"
	"github.com/cwbudde/optexplore/internal/opt"
	"github.com/cwbudde/optexplore/internal/store"
	"github.com/spf13/cobra"
)

var (
	runMethod      string
	runSave        bool
	runMaximize    bool
	runTraceParams bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a single optimization method",
	Long: `Runs one method on the configured problem and prints the result.
With --save the result and its iteration trace are stored as a report.`,
	RunE: runSingle,
}

func init() {
	addObjectiveFlags(runCmd.Flags())
	addDriverFlags(runCmd.Flags())
	runCmd.Flags().StringVar(&runMethod, "method", "lbfgs", "Method name (see 'optexplore methods')")
	runCmd.Flags().BoolVar(&runSave, "save", false, "Save a report and trace under --data-dir")
	runCmd.Flags().BoolVar(&runMaximize, "maximize", false, "Search for the maximum inside the bounds")
	runCmd.Flags().BoolVar(&runTraceParams, "trace-params", true, "Store parameter vectors in the trace")
	rootCmd.AddCommand(runCmd)
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

func runSingle(cmd *cobra.Command, args []string) error {
	info, ok := opt.Lookup(runMethod)
	if !ok {
		return fmt.Errorf("%w: %q (known: %v)", opt.ErrUnknownMethod, runMethod, opt.MethodNames())
	}

	p, r, err := newProblem(cfg, runMaximize)
	if err != nil {
		return err
	}
	optimizer, err := opt.New(info.Name, cfg.Options())
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	settings := opt.Settings{MaxIters: cfg.Iterations, LogEvery: cfg.LogEvery}

	var (
		report *store.Report
		trace  *store.TraceWriter
	)
	if runSave {
		report = store.NewReport(objectiveInfo(r, runMaximize), cfg.Init, cfg.Iterations, nil)
		trace, err = store.NewTraceWriter(cfg.DataDir, report.ID, info.Name, false)
		if err != nil {
			return fmt.Errorf("failed to open trace: %w", err)
		}
		defer trace.Close()
		if !runTraceParams {
			trace.OmitParams()
		}
		settings.Recorder = trace
	}

	slog.Info("Starting optimization",
		"method", info.Name,
		"family", info.Family,
		"objective", r.String(),
		"maximize", runMaximize,
		"iterations", cfg.Iterations,
	)

	res, err := optimizer.Run(ctx, p, settings)
	if err != nil {
		if trace != nil {
			// No report will reference the partial trace.
			trace.Close()
			if derr := store.DeleteTrace(cfg.DataDir, report.ID, info.Name); derr != nil {
				slog.Warn("Failed to remove trace", "error", derr)
			}
		}
		return fmt.Errorf("%s failed: %w", info.Name, err)
	}

	slog.Info("Optimization complete",
		"method", res.Method,
		"best_cost", res.BestCost,
		"iterations", res.Iterations,
		"evaluations", res.Evaluations,
		"elapsed", res.Elapsed,
		"status", res.Status,
	)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: cost %.6g at %v after %d iterations (%s, %s)\n",
		res.Method, res.BestCost, res.BestParams, res.Iterations, res.Status, res.Elapsed)
	if runMaximize {
		fmt.Fprintf(out, "maximum value %.6g\n", -res.BestCost)
	}

	if report == nil {
		return nil
	}
	if err := trace.Flush(); err != nil {
		return err
	}

	row := bench.Row{
		Family:      info.Family,
		Method:      res.Method,
		BestCost:    res.BestCost,
		BestParams:  res.BestParams,
		Time:        res.Elapsed,
		Iterations:  res.Iterations,
		Evaluations: res.Evaluations,
		Termination: res.Status,
	}
	report.Rows = toStoreRows([]bench.Row{row})
	if err := saveReport(report); err != nil {
		return err
	}
	fmt.Fprintf(out, "Saved report %s\n", report.ID)
	return nil
}

func saveReport(report *store.Report) error {
	fsStore, err := store.NewFSStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to create report store: %w", err)
	}
	if err := fsStore.SaveReport(report); err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}
	slog.Info("Report saved", "id", report.ID, "dir", fsStore.RunDir(report.ID))
	return nil
}
