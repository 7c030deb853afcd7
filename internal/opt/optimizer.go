package opt

import (
	"context"
	"time"
)

// Optimizer drives an objective to a minimum. Implementations own the
// iteration loop, convergence checks and termination reporting; the
// objective only answers evaluation calls.
type Optimizer interface {
	// Name identifies the method in logs and result tables.
	Name() string

	// Run optimizes p. Drivers check that p carries the capabilities their
	// algorithm family needs and return ErrMissingCapability otherwise.
	Run(ctx context.Context, p Problem, s Settings) (*Result, error)
}

// Settings controls a single run.
type Settings struct {
	// MaxIters limits the number of major iterations (generations for
	// population methods).
	MaxIters int

	// LogEvery logs progress every N iterations (0 disables progress logs).
	LogEvery int

	// Recorder receives the same progress points as the log, optional.
	Recorder Recorder
}

// Iteration is one progress point reported to a Recorder.
type Iteration struct {
	Iter   int
	Cost   float64
	Params []float64
}

// Recorder consumes progress points, e.g. to persist a trace.
type Recorder interface {
	Record(it Iteration) error
}

// RecorderFunc adapts a function to the Recorder interface.
type RecorderFunc func(it Iteration) error

func (f RecorderFunc) Record(it Iteration) error { return f(it) }

// Result summarizes a finished run.
type Result struct {
	Method      string        `json:"method"`
	BestParams  []float64     `json:"bestParams"`
	BestCost    float64       `json:"bestCost"`
	Iterations  int           `json:"iterations"`
	Evaluations int           `json:"evaluations"`
	Elapsed     time.Duration `json:"elapsed"`
	Status      string        `json:"status"`
}

// Termination reasons reported by the drivers implemented in this package.
// The gonum driver reports gonum's own status names.
const (
	StatusIterationLimit = "IterationLimit"
	StatusStalled        = "Stalled"
)
