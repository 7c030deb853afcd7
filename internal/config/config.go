// Package config loads run settings from defaults, an optional config
// file, OPTEXPLORE_* environment variables and command-line flags, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/cwbudde/optexplore/internal/objective"
	"github.com/cwbudde/optexplore/internal/opt"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. OPTEXPLORE_OBJECTIVE_B.
const EnvPrefix = "OPTEXPLORE"

type ObjectiveConfig struct {
	A   float64 `mapstructure:"a"`
	B   float64 `mapstructure:"b"`
	Dim int     `mapstructure:"dim"`
}

type BoundsConfig struct {
	Lower []float64 `mapstructure:"lower"`
	Upper []float64 `mapstructure:"upper"`
}

type AnnealConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	Schedule    string  `mapstructure:"schedule"`
	Alpha       float64 `mapstructure:"alpha"`
	Chains      int     `mapstructure:"chains"`

	// Patience enables stall detection when positive.
	Patience  int     `mapstructure:"patience"`
	Threshold float64 `mapstructure:"threshold"`
}

type LineSearchConfig struct {
	Armijo float64 `mapstructure:"armijo"`
}

type LBFGSConfig struct {
	Store int `mapstructure:"store"`
}

// Config holds every tunable of a run.
type Config struct {
	Objective  ObjectiveConfig  `mapstructure:"objective"`
	Bounds     BoundsConfig     `mapstructure:"bounds"`
	Init       []float64        `mapstructure:"init"`
	Iterations int              `mapstructure:"iterations"`
	LogEvery   int              `mapstructure:"log_every"`
	Seed       int64            `mapstructure:"seed"`
	PopSize    int              `mapstructure:"pop_size"`
	Workers    int              `mapstructure:"workers"`
	DataDir    string           `mapstructure:"data_dir"`
	Anneal     AnnealConfig     `mapstructure:"anneal"`
	LineSearch LineSearchConfig `mapstructure:"linesearch"`
	LBFGS      LBFGSConfig      `mapstructure:"lbfgs"`

	loadedFrom string
}

// SetDefaults registers the default of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("objective.a", 1.0)
	v.SetDefault("objective.b", 100.0)
	v.SetDefault("objective.dim", 2)

	v.SetDefault("bounds.lower", []float64{-5, -5})
	v.SetDefault("bounds.upper", []float64{5, 5})
	v.SetDefault("init", []float64{10.2, -20})

	v.SetDefault("iterations", 100)
	v.SetDefault("log_every", 10)
	v.SetDefault("seed", 42)
	v.SetDefault("pop_size", 30)
	v.SetDefault("workers", 4)
	v.SetDefault("data_dir", "./data")

	v.SetDefault("anneal.temperature", 15.0)
	v.SetDefault("anneal.schedule", "fast")
	v.SetDefault("anneal.alpha", 0.95)
	v.SetDefault("anneal.chains", 1)
	v.SetDefault("anneal.patience", 0)
	v.SetDefault("anneal.threshold", 1e-6)

	v.SetDefault("linesearch.armijo", 1e-4)
	v.SetDefault("lbfgs.store", 5)
}

// New returns a viper instance with defaults and environment overrides.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// BindFlags binds each flag in keys (flag name -> config key) that exists
// in fs. Flags only override the config when they are set explicitly.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet, keys map[string]string) error {
	for name, key := range keys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("failed to bind flag --%s: %w", name, err)
		}
	}
	return nil
}

// Load reads file (if non-empty), decodes v into a Config, expands
// two-element vectors to the objective dimension and validates the result.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.loadedFrom = v.ConfigFileUsed()

	cfg.Expand()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadedFrom returns the config file used, or "".
func (c *Config) LoadedFrom() string {
	return c.loadedFrom
}

// Expand tiles two-element init and bounds vectors to the objective
// dimension, so the 2D defaults work for any even dimension.
func (c *Config) Expand() {
	c.Init = tile(c.Init, c.Objective.Dim)
	c.Bounds.Lower = tile(c.Bounds.Lower, c.Objective.Dim)
	c.Bounds.Upper = tile(c.Bounds.Upper, c.Objective.Dim)
}

func tile(v []float64, dim int) []float64 {
	if len(v) != 2 || dim <= 2 || dim%2 != 0 {
		return v
	}
	out := make([]float64, 0, dim)
	for len(out) < dim {
		out = append(out, v...)
	}
	return out
}

// Validate checks every field and returns the first *ValidationError.
func (c *Config) Validate() error {
	if !positiveFinite(c.Objective.A) {
		return &ValidationError{Field: "objective.a", Reason: "must be positive and finite"}
	}
	if !positiveFinite(c.Objective.B) {
		return &ValidationError{Field: "objective.b", Reason: "must be positive and finite"}
	}
	if c.Objective.Dim < 2 || c.Objective.Dim%2 != 0 {
		return &ValidationError{Field: "objective.dim", Reason: "must be even and at least 2"}
	}

	dim := c.Objective.Dim
	if len(c.Init) != dim {
		return &ValidationError{Field: "init", Reason: fmt.Sprintf("must have %d components, got %d", dim, len(c.Init))}
	}
	if len(c.Bounds.Lower) != dim {
		return &ValidationError{Field: "bounds.lower", Reason: fmt.Sprintf("must have %d components, got %d", dim, len(c.Bounds.Lower))}
	}
	if len(c.Bounds.Upper) != dim {
		return &ValidationError{Field: "bounds.upper", Reason: fmt.Sprintf("must have %d components, got %d", dim, len(c.Bounds.Upper))}
	}
	for i := range c.Bounds.Lower {
		if c.Bounds.Lower[i] > c.Bounds.Upper[i] {
			return &ValidationError{Field: "bounds", Reason: fmt.Sprintf("lower exceeds upper in component %d", i)}
		}
	}

	switch {
	case c.Iterations <= 0:
		return &ValidationError{Field: "iterations", Reason: "must be positive"}
	case c.LogEvery < 0:
		return &ValidationError{Field: "log_every", Reason: "cannot be negative"}
	case c.PopSize < opt.MinMayflyPopulation:
		return &ValidationError{Field: "pop_size", Reason: fmt.Sprintf("must be at least %d", opt.MinMayflyPopulation)}
	case c.Workers < 0:
		return &ValidationError{Field: "workers", Reason: "cannot be negative"}
	case c.DataDir == "":
		return &ValidationError{Field: "data_dir", Reason: "cannot be empty"}
	case !positiveFinite(c.Anneal.Temperature):
		return &ValidationError{Field: "anneal.temperature", Reason: "must be positive and finite"}
	case c.Anneal.Temperature > objective.MaxTemperature:
		return &ValidationError{Field: "anneal.temperature", Reason: fmt.Sprintf("cannot exceed %v", objective.MaxTemperature)}
	case c.Anneal.Chains < 1:
		return &ValidationError{Field: "anneal.chains", Reason: "must be at least 1"}
	case c.Anneal.Patience < 0:
		return &ValidationError{Field: "anneal.patience", Reason: "cannot be negative"}
	case !(c.LineSearch.Armijo > 0 && c.LineSearch.Armijo < 1):
		return &ValidationError{Field: "linesearch.armijo", Reason: "must be in (0, 1)"}
	case c.LBFGS.Store < 1:
		return &ValidationError{Field: "lbfgs.store", Reason: "must be at least 1"}
	}
	return nil
}

// Options converts the driver settings for opt.New.
func (c *Config) Options() opt.Options {
	o := opt.DefaultOptions()
	o.Armijo = c.LineSearch.Armijo
	o.LBFGSStore = c.LBFGS.Store
	o.PopSize = c.PopSize
	o.Seed = c.Seed

	o.Anneal.Temperature = c.Anneal.Temperature
	o.Anneal.Schedule = c.Anneal.Schedule
	o.Anneal.Alpha = c.Anneal.Alpha
	o.Anneal.Chains = c.Anneal.Chains
	o.Anneal.Seed = c.Seed
	if c.Anneal.Patience > 0 {
		conv := opt.DefaultConvergenceConfig()
		conv.Patience = c.Anneal.Patience
		if c.Anneal.Threshold > 0 {
			conv.Threshold = c.Anneal.Threshold
		}
		o.Anneal.Convergence = conv
	}
	return o
}

// ValidationError reports an invalid config key.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid config: " + e.Field + " " + e.Reason
}

// IsValidation reports whether err is a config validation error.
func IsValidation(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}

func positiveFinite(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}
