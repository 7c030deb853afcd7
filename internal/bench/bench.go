// Package bench runs a suite of optimization methods against one problem
// and renders the comparison table.
package bench

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/cwbudde/optexplore/internal/opt"
	"golang.org/x/sync/errgroup"
)

// Entry is one method of a suite.
type Entry struct {
	Family    string
	Optimizer opt.Optimizer
}

// Row is the outcome of one entry.
type Row struct {
	Family      string
	Method      string
	BestCost    float64
	BestParams  []float64
	Time        time.Duration
	Iterations  int
	Evaluations int
	Termination string
	Err         error
}

// Suite builds one entry per registered method. Methods whose options are
// invalid are reported as an error.
func Suite(o opt.Options, names ...string) ([]Entry, error) {
	infos := opt.Methods()
	if len(names) > 0 {
		infos = infos[:0:0]
		for _, name := range names {
			info, ok := opt.Lookup(name)
			if !ok {
				return nil, fmt.Errorf("%w: %q", opt.ErrUnknownMethod, name)
			}
			infos = append(infos, info)
		}
	}

	entries := make([]Entry, 0, len(infos))
	for _, info := range infos {
		optimizer, err := opt.New(info.Name, o)
		if err != nil {
			return nil, fmt.Errorf("failed to build %s: %w", info.Name, err)
		}
		entries = append(entries, Entry{Family: info.Family, Optimizer: optimizer})
	}
	return entries, nil
}

// RecorderFactory returns the recorder for a method, or nil.
type RecorderFactory func(method string) (opt.Recorder, error)

// Config controls a suite run.
type Config struct {
	Settings opt.Settings

	// Workers limits how many methods run at once (<= 0 means one per method).
	Workers int

	// Recorders, when set, gives each method its own trace sink.
	Recorders RecorderFactory
}

// Run executes every entry against p. A failing method is reported in its
// row; only context cancellation aborts the suite. Rows keep entry order.
func Run(ctx context.Context, p opt.Problem, entries []Entry, cfg Config) ([]Row, error) {
	rows := make([]Row, len(entries))

	g, ctx := errgroup.WithContext(ctx)
	if cfg.Workers > 0 {
		g.SetLimit(cfg.Workers)
	}

	for i, e := range entries {
		i, e := i, e
		g.Go(func() error {
			rows[i] = runEntry(ctx, p, e, cfg)
			return ctx.Err()
		})
	}

	if err := g.Wait(); err != nil {
		return rows, fmt.Errorf("benchmark aborted: %w", err)
	}
	return rows, nil
}

func runEntry(ctx context.Context, p opt.Problem, e Entry, cfg Config) Row {
	row := Row{Family: e.Family, Method: e.Optimizer.Name()}

	settings := cfg.Settings
	if cfg.Recorders != nil {
		rec, err := cfg.Recorders(row.Method)
		if err != nil {
			row.Err = err
			return row
		}
		settings.Recorder = rec
	}

	slog.Info("Running method", "family", row.Family, "method", row.Method)
	res, err := e.Optimizer.Run(ctx, p, settings)
	if err != nil {
		slog.Error("Method failed", "method", row.Method, "error", err)
		row.Err = err
		return row
	}

	row.BestCost = res.BestCost
	row.BestParams = res.BestParams
	row.Time = res.Elapsed
	row.Iterations = res.Iterations
	row.Evaluations = res.Evaluations
	row.Termination = res.Status
	slog.Info("Method complete",
		"method", row.Method,
		"best_cost", row.BestCost,
		"iterations", row.Iterations,
		"elapsed", row.Time,
		"termination", row.Termination,
	)
	return row
}

// Render writes rows as an aligned table.
func Render(w io.Writer, rows []Row) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FAMILY\tMETHOD\tBEST COST\tTIME\tITERATIONS\tTERMINATION")
	fmt.Fprintln(tw, "------\t------\t---------\t----\t----------\t-----------")

	for _, r := range rows {
		if r.Err != nil {
			fmt.Fprintf(tw, "%s\t%s\t-\t-\t-\terror: %v\n", r.Family, r.Method, r.Err)
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%.6g\t%s\t%d\t%s\n",
			r.Family,
			r.Method,
			r.BestCost,
			r.Time.Round(time.Microsecond),
			r.Iterations,
			r.Termination,
		)
	}

	return tw.Flush()
}
