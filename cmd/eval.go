package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/cwbudde/optexplore/internal/objective"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"
)

var evalMaximize bool

// defaultEvalPoints are the starting points of the shipped demos and the
// minimizer of the default surface.
var defaultEvalPoints = [][]float64{
	{-1.2, 1},
	{10.2, -20},
	{1, 1},
}

var evalCmd = &cobra.Command{
	Use:   "eval [x1,x2,... ...]",
	Short: "Evaluate cost, gradient and Hessian at points",
	Long: `Evaluates the objective in its slice and matrix representations at each
comma-separated point. Without points the demo starting points are used;
with --dim > 2 two-component points are tiled to the full dimension.`,
	RunE: runEval,
}

func init() {
	addObjectiveFlags(evalCmd.Flags())
	evalCmd.Flags().BoolVar(&evalMaximize, "maximize", false, "Also evaluate the negated (maximization) view")
	rootCmd.AddCommand(evalCmd)
}

func runEval(cmd *cobra.Command, args []string) error {
	r, err := newSurface(cfg)
	if err != nil {
		return err
	}

	points := defaultEvalPoints
	if len(args) > 0 {
		points = make([][]float64, len(args))
		for i, arg := range args {
			if points[i], err = parsePoint(arg); err != nil {
				return err
			}
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s\n", r)
	for _, p := range points {
		if len(p) == 2 && r.Dim() > 2 {
			p = tilePoint(p, r.Dim())
		}
		if err := evalPoint(out, r, p); err != nil {
			return err
		}
	}
	return nil
}

type evalView struct {
	label string
	vec   objective.Vec
}

func evalPoint(w io.Writer, r objective.Rosenbrock, x []float64) error {
	fmt.Fprintf(w, "\nx = %v\n", x)

	views := []evalView{{"vec", objective.NewVec(r)}}
	if evalMaximize {
		views = append(views, evalView{"maximize", objective.NewVec(objective.Maximize(r))})
	}

	for _, view := range views {
		cost, err := view.vec.Cost(x)
		if err != nil {
			return fmt.Errorf("failed to evaluate %s cost: %w", view.label, err)
		}
		grad, err := view.vec.Gradient(x)
		if err != nil {
			return fmt.Errorf("failed to evaluate %s gradient: %w", view.label, err)
		}
		hess, err := view.vec.Hessian(x)
		if err != nil {
			return fmt.Errorf("failed to evaluate %s hessian: %w", view.label, err)
		}
		fmt.Fprintf(w, "  %-9s cost=%.10g\n", view.label, cost)
		fmt.Fprintf(w, "  %-9s grad=%v\n", "", grad)
		fmt.Fprintf(w, "  %-9s hess=%v\n", "", hess)
	}

	dense := objective.NewDense(r)
	xv := mat.NewVecDense(len(x), append([]float64(nil), x...))
	cost, err := dense.Cost(xv)
	if err != nil {
		return fmt.Errorf("failed to evaluate dense cost: %w", err)
	}
	grad, err := dense.Gradient(xv)
	if err != nil {
		return fmt.Errorf("failed to evaluate dense gradient: %w", err)
	}
	hess, err := dense.Hessian(xv)
	if err != nil {
		return fmt.Errorf("failed to evaluate dense hessian: %w", err)
	}
	fmt.Fprintf(w, "  %-9s cost=%.10g\n", "dense", cost)
	fmt.Fprintf(w, "  %-9s grad=%v\n", "", mat.Formatted(grad.T(), mat.Squeeze()))
	fmt.Fprintf(w, "  %-9s hess=%v\n", "", mat.Formatted(hess, mat.Prefix("                 "), mat.Squeeze()))
	return nil
}

func parsePoint(s string) ([]float64, error) {
	fields := strings.Split(s, ",")
	x := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid point %q: %w", s, err)
		}
		x = append(x, v)
	}
	return x, nil
}

func tilePoint(p []float64, dim int) []float64 {
	out := make([]float64, 0, dim)
	for len(out) < dim {
		out = append(out, p...)
	}
	return out
}
