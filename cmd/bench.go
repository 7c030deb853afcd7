package main

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/cwbudde/optexplore/internal/bench"
	"github.com/cwbudde/optexplore/internal/opt"
	"github.com/cwbudde/optexplore/internal/store"
	"github.com/spf13/cobra"
)

var (
	benchMethods     []string
	benchSave        bool
	benchMaximize    bool
	benchTraceParams bool
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Compare every method on the configured problem",
	Long: `Runs the method suite against the same problem and starting point and
prints a table of best cost, time, iterations and termination reason.`,
	RunE: runBench,
}

func init() {
	addObjectiveFlags(benchCmd.Flags())
	addDriverFlags(benchCmd.Flags())
	benchCmd.Flags().Int("workers", 4, "Methods run concurrently (0 = all)")
	benchCmd.Flags().StringSliceVar(&benchMethods, "methods", nil, "Only run these methods")
	benchCmd.Flags().BoolVar(&benchSave, "save", false, "Save a report and traces under --data-dir")
	benchCmd.Flags().BoolVar(&benchMaximize, "maximize", false, "Search for the maximum inside the bounds")
	benchCmd.Flags().BoolVar(&benchTraceParams, "trace-params", true, "Store parameter vectors in the traces")
	rootCmd.AddCommand(benchCmd)
}

// traceSet opens one trace writer per method and closes them together.
type traceSet struct {
	mu         sync.Mutex
	baseDir    string
	runID      string
	withParams bool
	writers    map[string]*store.TraceWriter
}

func newTraceSet(baseDir, runID string, withParams bool) *traceSet {
	return &traceSet{
		baseDir:    baseDir,
		runID:      runID,
		withParams: withParams,
		writers:    make(map[string]*store.TraceWriter),
	}
}

func (ts *traceSet) open(method string) (opt.Recorder, error) {
	w, err := store.NewTraceWriter(ts.baseDir, ts.runID, method, false)
	if err != nil {
		return nil, err
	}
	if !ts.withParams {
		w.OmitParams()
	}
	ts.mu.Lock()
	ts.writers[method] = w
	ts.mu.Unlock()
	return w, nil
}

func (ts *traceSet) Close() error {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	var first error
	for _, w := range ts.writers {
		if err := w.Close(); err != nil && first == nil {
			first = err
		}
	}
	clear(ts.writers)
	return first
}

// Discard closes and removes every trace opened so far.
func (ts *traceSet) Discard() error {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	var first error
	for method, w := range ts.writers {
		w.Close()
		if err := store.DeleteTrace(ts.baseDir, ts.runID, method); err != nil && first == nil {
			first = err
		}
	}
	clear(ts.writers)
	return first
}

func runBench(cmd *cobra.Command, args []string) error {
	p, r, err := newProblem(cfg, benchMaximize)
	if err != nil {
		return err
	}
	entries, err := bench.Suite(cfg.Options(), benchMethods...)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	runCfg := bench.Config{
		Settings: opt.Settings{MaxIters: cfg.Iterations, LogEvery: cfg.LogEvery},
		Workers:  cfg.Workers,
	}

	var (
		report *store.Report
		traces *traceSet
	)
	if benchSave {
		report = store.NewReport(objectiveInfo(r, benchMaximize), cfg.Init, cfg.Iterations, nil)
		traces = newTraceSet(cfg.DataDir, report.ID, benchTraceParams)
		defer traces.Close()
		runCfg.Recorders = traces.open
	}

	rows, err := bench.Run(ctx, p, entries, runCfg)
	if err != nil {
		if traces != nil {
			// No report will reference the partial traces.
			if derr := traces.Discard(); derr != nil {
				slog.Warn("Failed to remove traces", "error", derr)
			}
		}
		return err
	}
	if traces != nil {
		if err := traces.Close(); err != nil {
			return fmt.Errorf("failed to close traces: %w", err)
		}
	}

	out := cmd.OutOrStdout()
	goal := "minimizing"
	if benchMaximize {
		goal = "maximizing"
	}
	fmt.Fprintf(out, "%s %s from %v, %d iterations\n\n", goal, r, cfg.Init, cfg.Iterations)
	if err := bench.Render(out, rows); err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}

	if report == nil {
		return nil
	}
	report.Rows = toStoreRows(rows)
	if err := saveReport(report); err != nil {
		return err
	}
	fmt.Fprintf(out, "\nSaved report %s\n", report.ID)
	return nil
}
