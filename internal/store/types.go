package store

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ObjectiveInfo describes the surface a report was produced on.
type ObjectiveInfo struct {
	Name string  `json:"name"`
	A    float64 `json:"a"`
	B    float64 `json:"b"`
	Dim  int     `json:"dim"`
	// Maximize marks runs on the negated surface.
	Maximize bool `json:"maximize,omitempty"`
}

// Row is the persisted outcome of one method.
type Row struct {
	Family      string    `json:"family"`
	Method      string    `json:"method"`
	BestCost    float64   `json:"bestCost"`
	BestParams  []float64 `json:"bestParams,omitempty"`
	ElapsedMS   float64   `json:"elapsedMs"`
	Iterations  int       `json:"iterations"`
	Evaluations int       `json:"evaluations"`
	Termination string    `json:"termination,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// Report is a saved benchmark or single-method run.
type Report struct {
	ID         string        `json:"id"`
	Timestamp  time.Time     `json:"timestamp"`
	Objective  ObjectiveInfo `json:"objective"`
	Init       []float64     `json:"init"`
	Iterations int           `json:"iterations"`
	Rows       []Row         `json:"rows"`
}

// ReportInfo is the listing view of a report.
type ReportInfo struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Objective string    `json:"objective"`
	Methods   int       `json:"methods"`
	Best      string    `json:"best"`
	BestCost  float64   `json:"bestCost"`
}

// NewReport creates a report with a fresh ID.
func NewReport(objective ObjectiveInfo, init []float64, iterations int, rows []Row) *Report {
	return &Report{
		ID:         uuid.NewString(),
		Timestamp:  time.Now(),
		Objective:  objective,
		Init:       append([]float64(nil), init...),
		Iterations: iterations,
		Rows:       rows,
	}
}

// Best returns the successful row with the lowest cost.
func (r *Report) Best() (Row, bool) {
	var (
		best  Row
		found bool
	)
	for _, row := range r.Rows {
		if row.Error != "" || math.IsNaN(row.BestCost) {
			continue
		}
		if !found || row.BestCost < best.BestCost {
			best, found = row, true
		}
	}
	return best, found
}

// ToInfo converts a full report to its listing view.
func (r *Report) ToInfo() ReportInfo {
	info := ReportInfo{
		ID:        r.ID,
		Timestamp: r.Timestamp,
		Objective: fmt.Sprintf("%s(a=%g, b=%g, n=%d)", r.Objective.Name, r.Objective.A, r.Objective.B, r.Objective.Dim),
		Methods:   len(r.Rows),
		BestCost:  math.NaN(),
	}
	if r.Objective.Maximize {
		info.Objective = "max " + info.Objective
	}
	if best, ok := r.Best(); ok {
		info.Best = best.Method
		info.BestCost = best.BestCost
	}
	return info
}

// Validate checks that the report can be persisted and read back.
func (r *Report) Validate() error {
	if r.ID == "" {
		return &ValidationError{Field: "ID", Reason: "cannot be empty"}
	}
	if _, err := uuid.Parse(r.ID); err != nil {
		return &ValidationError{Field: "ID", Reason: "must be a UUID"}
	}
	if r.Timestamp.IsZero() {
		return &ValidationError{Field: "Timestamp", Reason: "cannot be zero"}
	}
	if r.Objective.Dim < 2 || r.Objective.Dim%2 != 0 {
		return &ValidationError{Field: "Objective.Dim", Reason: "must be even and at least 2"}
	}
	if len(r.Init) != r.Objective.Dim {
		return &ValidationError{
			Field:  "Init",
			Reason: fmt.Sprintf("length mismatch: expected %d, got %d", r.Objective.Dim, len(r.Init)),
		}
	}
	if r.Iterations <= 0 {
		return &ValidationError{Field: "Iterations", Reason: "must be positive"}
	}
	if len(r.Rows) == 0 {
		return &ValidationError{Field: "Rows", Reason: "cannot be empty"}
	}
	for i, row := range r.Rows {
		field := fmt.Sprintf("Rows[%d]", i)
		if err := validateMethodName(row.Method); err != nil {
			return &ValidationError{Field: field + ".Method", Reason: err.Error()}
		}
		if row.Error != "" {
			continue
		}
		if math.IsNaN(row.BestCost) || math.IsInf(row.BestCost, 0) {
			return &ValidationError{Field: field + ".BestCost", Reason: "must be finite"}
		}
		if len(row.BestParams) != 0 && len(row.BestParams) != r.Objective.Dim {
			return &ValidationError{Field: field + ".BestParams", Reason: "length does not match objective dimension"}
		}
	}
	return nil
}

// ValidationError represents a report validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}

func validateMethodName(name string) error {
	switch {
	case name == "":
		return errors.New("cannot be empty")
	case name == "." || name == "..", strings.ContainsAny(name, `/\`):
		return fmt.Errorf("%q is not a valid file name", name)
	}
	return nil
}
