package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/cwbudde/optexplore/internal/config"
	"github.com/cwbudde/optexplore/internal/opt"
	"github.com/cwbudde/optexplore/internal/store"
	"github.com/spf13/cobra"
)

// useTestConfig installs the default config with a temporary data dir.
func useTestConfig(t *testing.T) *config.Config {
	t.Helper()

	c, err := config.Load(config.New(), "")
	if err != nil {
		t.Fatalf("Failed to load default config: %v", err)
	}
	c.DataDir = t.TempDir()
	c.LogEvery = 0

	original := cfg
	cfg = c
	t.Cleanup(func() { cfg = original })
	return c
}

func testCommand() (*cobra.Command, *bytes.Buffer) {
	out := &bytes.Buffer{}
	cmd := &cobra.Command{}
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	return cmd, out
}

func testReport() *store.Report {
	return store.NewReport(
		store.ObjectiveInfo{Name: "rosenbrock", A: 1, B: 100, Dim: 2},
		[]float64{10.2, -20},
		100,
		[]store.Row{{Family: "Quasi-Newton methods", Method: "bfgs", BestCost: 1e-10, Iterations: 42, Termination: "GradientThreshold"}},
	)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	l, err := newLogger(&buf, "json", "warn")
	if err != nil {
		t.Fatalf("newLogger failed: %v", err)
	}
	l.Info("hidden")
	l.Warn("shown", "cost", 1.5)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Expected one JSON line, got %q: %v", buf.String(), err)
	}
	if entry["msg"] != "shown" || entry["cost"] != 1.5 {
		t.Errorf("Unexpected entry: %v", entry)
	}

	buf.Reset()
	l, err = newLogger(&buf, "text", "debug")
	if err != nil {
		t.Fatalf("newLogger failed: %v", err)
	}
	l.Debug("Iteration", "iter", 10)
	if !strings.Contains(buf.String(), "Iteration") || !strings.Contains(buf.String(), "iter=10") {
		t.Errorf("Unexpected text output: %q", buf.String())
	}

	if _, err := newLogger(&buf, "xml", "info"); err == nil {
		t.Error("Expected error for unknown format")
	}
	if _, err := newLogger(&buf, "json", "loud"); err == nil {
		t.Error("Expected error for unknown level")
	}
}

func TestParsePoint(t *testing.T) {
	x, err := parsePoint("10.2, -20")
	if err != nil {
		t.Fatalf("parsePoint failed: %v", err)
	}
	if len(x) != 2 || x[0] != 10.2 || x[1] != -20 {
		t.Errorf("Expected [10.2 -20], got %v", x)
	}

	if _, err := parsePoint("1,abc"); err == nil {
		t.Error("Expected error for malformed point")
	}
}

func TestEvalCommand(t *testing.T) {
	useTestConfig(t)
	evalMaximize = true
	defer func() { evalMaximize = false }()

	cmd, out := testCommand()
	if err := runEval(cmd, []string{"10,5", "1,1"}); err != nil {
		t.Fatalf("runEval failed: %v", err)
	}

	s := out.String()
	for _, want := range []string{"x = [10 5]", "cost=902581", "cost=-902581", "x = [1 1]", "cost=0", "dense"} {
		if !strings.Contains(s, want) {
			t.Errorf("Output missing %q:\n%s", want, s)
		}
	}
}

func TestEvalCommand_WrongDimension(t *testing.T) {
	useTestConfig(t)

	cmd, _ := testCommand()
	err := runEval(cmd, []string{"1,2,3"})
	if err == nil {
		t.Fatal("Expected error for a 3-component point")
	}
}

func TestEvalCommand_TilesPoints(t *testing.T) {
	c := useTestConfig(t)
	c.Objective.Dim = 4

	cmd, out := testCommand()
	if err := runEval(cmd, []string{"1,1"}); err != nil {
		t.Fatalf("runEval failed: %v", err)
	}
	if !strings.Contains(out.String(), "x = [1 1 1 1]") {
		t.Errorf("Expected tiled point:\n%s", out.String())
	}
}

func TestRunCommand_Save(t *testing.T) {
	c := useTestConfig(t)
	c.Iterations = 50
	c.LogEvery = 5

	runMethod, runSave = "simulated-annealing", true
	defer func() { runMethod, runSave = "lbfgs", false }()

	cmd, out := testCommand()
	if err := runSingle(cmd, nil); err != nil {
		t.Fatalf("runSingle failed: %v", err)
	}
	if !strings.Contains(out.String(), "Saved report") {
		t.Fatalf("Expected report to be saved:\n%s", out.String())
	}

	fsStore, _ := store.NewFSStore(c.DataDir)
	infos, err := fsStore.ListReports()
	if err != nil || len(infos) != 1 {
		t.Fatalf("Expected 1 report, got %d (%v)", len(infos), err)
	}

	reader, err := store.NewTraceReader(c.DataDir, infos[0].ID, "simulated-annealing")
	if err != nil {
		t.Fatalf("Expected a trace: %v", err)
	}
	defer reader.Close()
	entries, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(entries) != 10 {
		t.Errorf("Expected 10 trace entries, got %d", len(entries))
	}
}

func TestRunCommand_UnknownMethod(t *testing.T) {
	useTestConfig(t)
	runMethod = "gradient-magic"
	defer func() { runMethod = "lbfgs" }()

	cmd, _ := testCommand()
	if err := runSingle(cmd, nil); !errors.Is(err, opt.ErrUnknownMethod) {
		t.Errorf("Expected ErrUnknownMethod, got %v", err)
	}
}

func TestBenchCommand(t *testing.T) {
	c := useTestConfig(t)
	c.Iterations = 30
	c.Workers = 2

	benchMethods = []string{"bfgs", "nelder-mead", "newton"}
	benchSave = true
	defer func() { benchMethods, benchSave = nil, false }()

	cmd, out := testCommand()
	if err := runBench(cmd, nil); err != nil {
		t.Fatalf("runBench failed: %v", err)
	}

	s := out.String()
	for _, want := range []string{"FAMILY", "bfgs", "nelder-mead", "newton", "Saved report"} {
		if !strings.Contains(s, want) {
			t.Errorf("Output missing %q:\n%s", want, s)
		}
	}

	fsStore, _ := store.NewFSStore(c.DataDir)
	infos, _ := fsStore.ListReports()
	if len(infos) != 1 {
		t.Fatalf("Expected 1 report, got %d", len(infos))
	}
	report, err := fsStore.LoadReport(infos[0].ID)
	if err != nil {
		t.Fatalf("LoadReport failed: %v", err)
	}
	if len(report.Rows) != 3 || report.Rows[0].Method != "bfgs" {
		t.Errorf("Unexpected rows: %+v", report.Rows)
	}
}

func TestBenchCommand_UnknownMethod(t *testing.T) {
	useTestConfig(t)
	benchMethods = []string{"nope"}
	defer func() { benchMethods = nil }()

	cmd, _ := testCommand()
	if err := runBench(cmd, nil); !errors.Is(err, opt.ErrUnknownMethod) {
		t.Errorf("Expected ErrUnknownMethod, got %v", err)
	}
}

func TestRootCommand(t *testing.T) {
	original := logOutput
	logOutput = io.Discard
	defer func() { logOutput = original }()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"methods", "--data-dir", t.TempDir()})
	defer rootCmd.SetArgs(nil)

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	for _, name := range opt.MethodNames() {
		if !strings.Contains(out.String(), name) {
			t.Errorf("methods output missing %s", name)
		}
	}
	if cfg == nil || cfg.Iterations != 100 {
		t.Errorf("Expected default config to be loaded, got %+v", cfg)
	}
}

func TestRunCommand_Maximize(t *testing.T) {
	c := useTestConfig(t)
	c.Init = []float64{0, 0}
	c.Iterations = 2000
	c.LogEvery = 200

	runMethod, runSave, runMaximize, runTraceParams = "simulated-annealing", true, true, false
	defer func() { runMethod, runSave, runMaximize, runTraceParams = "lbfgs", false, false, true }()

	cmd, out := testCommand()
	if err := runSingle(cmd, nil); err != nil {
		t.Fatalf("runSingle failed: %v", err)
	}
	if !strings.Contains(out.String(), "maximum value") {
		t.Errorf("Expected maximum to be reported:\n%s", out.String())
	}

	fsStore, _ := store.NewFSStore(c.DataDir)
	infos, err := fsStore.ListReports()
	if err != nil || len(infos) != 1 {
		t.Fatalf("Expected 1 report, got %d (%v)", len(infos), err)
	}
	report, err := fsStore.LoadReport(infos[0].ID)
	if err != nil {
		t.Fatalf("LoadReport failed: %v", err)
	}
	if !report.Objective.Maximize {
		t.Error("Expected report to be marked as maximized")
	}

	// f(0, 0) = 1 and every interior point is dominated by the boundary,
	// so the ascent has to end up pressed against the box.
	row := report.Rows[0]
	if row.BestCost > -1000 {
		t.Errorf("Expected negated cost below -1000, got %v", row.BestCost)
	}
	atBound := false
	for _, v := range row.BestParams {
		if v < -4.5 || v > 4.5 {
			atBound = true
		}
	}
	if !atBound {
		t.Errorf("Expected the best point near the box boundary, got %v", row.BestParams)
	}

	reader, err := store.NewTraceReader(c.DataDir, report.ID, "simulated-annealing")
	if err != nil {
		t.Fatalf("Expected a trace: %v", err)
	}
	defer reader.Close()
	entries, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("Expected trace entries")
	}
	for _, e := range entries {
		if len(e.Params) != 0 {
			t.Fatalf("Expected params to be omitted, got %v", e.Params)
		}
	}
}

func TestNewProblem_Maximize(t *testing.T) {
	c := useTestConfig(t)

	p, _, err := newProblem(c, true)
	if err != nil {
		t.Fatalf("newProblem failed: %v", err)
	}
	cost, err := p.Plain.Cost([]float64{10, 5})
	if err != nil {
		t.Fatalf("Cost failed: %v", err)
	}
	if cost != -902581 {
		t.Errorf("Expected -902581, got %v", cost)
	}
}

func TestBenchCommand_Maximize(t *testing.T) {
	c := useTestConfig(t)
	c.Iterations = 30
	c.LogEvery = 5

	benchMethods = []string{"nelder-mead"}
	benchSave, benchMaximize, benchTraceParams = true, true, false
	defer func() { benchMethods, benchSave, benchMaximize, benchTraceParams = nil, false, false, true }()

	cmd, out := testCommand()
	if err := runBench(cmd, nil); err != nil {
		t.Fatalf("runBench failed: %v", err)
	}
	if !strings.Contains(out.String(), "maximizing") {
		t.Errorf("Expected maximizing header:\n%s", out.String())
	}

	fsStore, _ := store.NewFSStore(c.DataDir)
	infos, _ := fsStore.ListReports()
	if len(infos) != 1 {
		t.Fatalf("Expected 1 report, got %d", len(infos))
	}
	if !strings.HasPrefix(infos[0].Objective, "max ") {
		t.Errorf("Expected max objective in listing, got %q", infos[0].Objective)
	}

	reader, err := store.NewTraceReader(c.DataDir, infos[0].ID, "nelder-mead")
	if err != nil {
		t.Fatalf("Expected a trace: %v", err)
	}
	defer reader.Close()
	entries, _ := reader.ReadAll()
	for _, e := range entries {
		if len(e.Params) != 0 {
			t.Fatalf("Expected params to be omitted, got %v", e.Params)
		}
	}
}

func TestTraceSetDiscard(t *testing.T) {
	dir := t.TempDir()
	ts := newTraceSet(dir, "run-1", true)

	for _, method := range []string{"bfgs", "newton"} {
		rec, err := ts.open(method)
		if err != nil {
			t.Fatalf("open failed: %v", err)
		}
		if err := rec.Record(opt.Iteration{Iter: 1, Cost: 2, Params: []float64{1, 1}}); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	if err := ts.Discard(); err != nil {
		t.Fatalf("Discard failed: %v", err)
	}
	methods, err := store.ListTraces(dir, "run-1")
	if err != nil {
		t.Fatalf("ListTraces failed: %v", err)
	}
	if len(methods) != 0 {
		t.Errorf("Expected no traces after discard, got %v", methods)
	}
	if err := ts.Close(); err != nil {
		t.Errorf("Close after discard failed: %v", err)
	}
}

func TestRootCommand_InvalidConfig(t *testing.T) {
	original := logOutput
	logOutput = io.Discard
	defer func() { logOutput = original }()

	rootCmd.SetOut(io.Discard)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs([]string{"run", "--data-dir", t.TempDir(), "--pop-size", "10"})
	defer func() {
		rootCmd.SetArgs(nil)
		runCmd.Flags().Set("pop-size", "30")
	}()

	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("Expected error for a population below the mayfly minimum")
	}
	if !config.IsValidation(err) {
		t.Errorf("Expected a validation error, got %v", err)
	}
	if !strings.Contains(err.Error(), "pop_size") || !strings.Contains(err.Error(), "check --config") {
		t.Errorf("Unexpected message: %v", err)
	}
}
