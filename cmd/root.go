package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/cwbudde/optexplore/internal/config"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	logLevel   string
	logFormat  string
	configFile string
	logger     *slog.Logger

	// cfg is loaded before every subcommand runs.
	cfg *config.Config
)

// logOutput keeps logs off stdout, which carries tables.
var logOutput io.Writer = os.Stderr

var rootCmd = &cobra.Command{
	Use:   "optexplore",
	Short: "Explore numerical optimizers on the Rosenbrock surface",
	Long: `optexplore evaluates the Rosenbrock objective in several representations
and compares line search, Newton, quasi-Newton, derivative-free, annealing
and population optimizers on it.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := newLogger(logOutput, logFormat, logLevel)
		if err != nil {
			return err
		}
		logger = l
		slog.SetDefault(logger)

		v := config.New()
		if err := config.BindFlags(v, cmd.Flags(), flagKeys); err != nil {
			return err
		}
		loaded, err := config.Load(v, configFile)
		if config.IsValidation(err) {
			return fmt.Errorf("%w (check --config and command-line flags)", err)
		}
		if err != nil {
			return err
		}
		cfg = loaded
		if from := cfg.LoadedFrom(); from != "" {
			slog.Debug("Loaded config file", "path", from)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "json", "Log format (json, text)")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (yaml, json or toml)")
	rootCmd.PersistentFlags().String("data-dir", "./data", "Base directory for saved reports")
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}

func newLogger(w io.Writer, format, level string) (*slog.Logger, error) {
	lvl, err := parseLevel(level)
	if err != nil {
		return nil, err
	}

	switch format {
	case "json", "":
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})), nil
	case "text":
		handler := tint.NewHandler(w, &tint.Options{
			Level:      lvl,
			TimeFormat: "15:04:05.000",
			NoColor:    !isTerminal(w),
			ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
				if a.Value.Kind() == slog.KindAny {
					if _, ok := a.Value.Any().(error); ok {
						return tint.Attr(9, a)
					}
				}
				return a
			},
		})
		return slog.New(handler), nil
	}
	return nil, fmt.Errorf("unknown log format %q", format)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}

// flagKeys maps flag names to config keys.
var flagKeys = map[string]string{
	"data-dir":    "data_dir",
	"a":           "objective.a",
	"b":           "objective.b",
	"dim":         "objective.dim",
	"init":        "init",
	"lower":       "bounds.lower",
	"upper":       "bounds.upper",
	"iterations":  "iterations",
	"log-every":   "log_every",
	"seed":        "seed",
	"pop-size":    "pop_size",
	"workers":     "workers",
	"temperature": "anneal.temperature",
	"schedule":    "anneal.schedule",
	"chains":      "anneal.chains",
	"patience":    "anneal.patience",
	"armijo":      "linesearch.armijo",
	"lbfgs-store": "lbfgs.store",
}

func addObjectiveFlags(fs *pflag.FlagSet) {
	fs.Float64("a", 1, "Rosenbrock parameter a")
	fs.Float64("b", 100, "Rosenbrock parameter b")
	fs.Int("dim", 2, "Problem dimension (even)")
}

func addDriverFlags(fs *pflag.FlagSet) {
	fs.StringSlice("init", []string{"10.2", "-20"}, "Initial point")
	fs.StringSlice("lower", []string{"-5", "-5"}, "Lower bounds")
	fs.StringSlice("upper", []string{"5", "5"}, "Upper bounds")
	fs.Int("iterations", 100, "Max iterations per method")
	fs.Int("log-every", 10, "Log progress every N iterations (0 = off)")
	fs.Int64("seed", 42, "Random seed")
	fs.Int("pop-size", 30, "Population size of the mayfly driver")
	fs.Float64("temperature", 15, "Initial annealing temperature")
	fs.String("schedule", "fast", "Annealing schedule (fast, exponential)")
	fs.Int("chains", 1, "Concurrent annealing chains")
	fs.Int("patience", 0, "Stop annealing after N stale iterations (0 = off)")
	fs.Float64("armijo", 1e-4, "Sufficient-decrease constant of the backtracking line search")
	fs.Int("lbfgs-store", 5, "Correction pairs kept by L-BFGS")
}
