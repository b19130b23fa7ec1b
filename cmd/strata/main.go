package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/copyleftdev/STRATA/internal/config"
	"github.com/copyleftdev/STRATA/internal/integrand"
	"github.com/copyleftdev/STRATA/internal/integrate"
	"github.com/copyleftdev/STRATA/internal/integrate/plain"
	"github.com/copyleftdev/STRATA/internal/integrate/vegas"
	"github.com/copyleftdev/STRATA/internal/logging"
)

var (
	calls       int
	workers     int
	seed        int64
	name        string
	pCoeff      float64
	qCoeff      float64
	lower       []float64
	upper       []float64
	combine     string
	engine      string
	iterations  int
	bins        int
	alpha       float64
	problemFile string
	verbose     bool
	// study parameters
	minCalls int
	factor   int
	steps    int
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "strata",
		Short: "parallel adaptive Monte Carlo integration",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "estimate the integral and print the result",
		RunE:  runIntegration,
	}
	addProblemFlags(runCmd)
	runCmd.Flags().IntVar(&calls, "calls", 10000000, "total sample budget")
	runCmd.Flags().StringVar(&problemFile, "problem", "", "problem file path (yaml, overrides the other flags)")
	runCmd.Flags().BoolVar(&verbose, "verbose", false, "log progress to stderr")

	studyCmd := &cobra.Command{
		Use:   "study",
		Short: "sweep the sample budget and chart the error scaling",
		RunE:  runStudy,
	}
	addProblemFlags(studyCmd)
	studyCmd.Flags().IntVar(&minCalls, "min-calls", 10000, "budget of the first step")
	studyCmd.Flags().IntVar(&factor, "factor", 4, "budget multiplier per step")
	studyCmd.Flags().IntVar(&steps, "steps", 6, "number of steps")

	rootCmd.AddCommand(runCmd, studyCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// addProblemFlags registers the flags shared by run and study.
func addProblemFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&workers, "workers", 0, "parallel workers (0 = all CPUs)")
	cmd.Flags().Int64Var(&seed, "seed", 0, "base seed (0 = wall clock)")
	cmd.Flags().StringVar(&name, "integrand", "polynomial", "integrand name")
	cmd.Flags().Float64Var(&pCoeff, "p", 0.1, "linear coefficient")
	cmd.Flags().Float64Var(&qCoeff, "q", 0.1, "quadratic coefficient")
	cmd.Flags().Float64SliceVar(&lower, "lower", []float64{0, 0, 0}, "lower bounds")
	cmd.Flags().Float64SliceVar(&upper, "upper", []float64{1, 1, 1}, "upper bounds")
	cmd.Flags().StringVar(&combine, "combine", "mean", "combination mode (mean, invvar)")
	cmd.Flags().StringVar(&engine, "engine", "vegas", "integration engine (vegas, plain)")
	cmd.Flags().IntVar(&iterations, "iterations", 0, "vegas iterations (0 = engine default)")
	cmd.Flags().IntVar(&bins, "bins", 0, "vegas bins per axis (0 = engine default)")
	cmd.Flags().Float64Var(&alpha, "alpha", 0, "vegas refinement damping (0 = engine default)")
}

// buildProblem assembles the problem from the flags, or loads it from
// the problem file when one is given.
func buildProblem() (*config.Problem, error) {
	if problemFile != "" {
		return config.LoadProblem(problemFile)
	}
	p := config.DefaultProblem()
	p.Integrand = name
	p.Params = integrand.Params{P: pCoeff, Q: qCoeff}
	p.Lower = lower
	p.Upper = upper
	p.Calls = calls
	p.Workers = workers
	p.Seed = seed
	p.Combine = combine
	p.Engine.Name = engine
	p.Engine.Iterations = iterations
	p.Engine.Bins = bins
	p.Engine.Alpha = alpha
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// newParallel builds the coordinator for a problem.
func newParallel(prob *config.Problem, logger *zap.Logger) (*integrate.Parallel, error) {
	mode, err := integrate.ParseCombineMode(prob.Combine)
	if err != nil {
		return nil, err
	}

	var factory func() integrate.Integrator
	switch prob.Engine.Name {
	case "", "vegas":
		opts := vegas.Options{
			Iterations: prob.Engine.Iterations,
			Bins:       prob.Engine.Bins,
			Alpha:      prob.Engine.Alpha,
		}
		factory = func() integrate.Integrator { return vegas.New(opts) }
	case "plain":
		factory = func() integrate.Integrator { return plain.New() }
	default:
		return nil, integrate.NewConfigErrorf("engine", "unknown engine %q, have vegas or plain", prob.Engine.Name)
	}

	return integrate.NewParallel(integrate.Options{
		Workers:       prob.Workers,
		BaseSeed:      prob.Seed,
		Mode:          mode,
		NewIntegrator: factory,
		Logger:        logger,
	})
}

func runIntegration(cmd *cobra.Command, args []string) error {
	prob, err := buildProblem()
	if err != nil {
		return err
	}

	logger := zap.NewNop()
	if verbose {
		logger, err = logging.New(logging.Config{Level: "debug", Format: "console", Output: "stderr"})
		if err != nil {
			return err
		}
	}

	def, err := integrand.Lookup(prob.Integrand)
	if err != nil {
		return err
	}
	par, err := newParallel(prob, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	region := prob.Region()
	start := time.Now()
	result, err := par.Integrate(ctx, def.Build(prob.Params), region, prob.Calls)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	if expected, ok := def.Expected(prob.Params, region); ok {
		fmt.Printf("Expected Result: %.6g\n", expected)
	} else {
		fmt.Println("Expected Result: n/a")
	}
	fmt.Printf("Result: %.6g\n", result.Value)
	fmt.Printf("Error:  %.6g\n", result.StdErr)
	fmt.Printf("Time taken: %.3f s\n", elapsed.Seconds())

	if result.NonFinite {
		fmt.Fprintln(os.Stderr, "warning: non-finite partial estimates entered the combination")
	}
	return nil
}

func runStudy(cmd *cobra.Command, args []string) error {
	if minCalls < 1 || factor < 2 || steps < 1 {
		return integrate.NewConfigErrorf("study", "need min-calls >= 1, factor >= 2 and steps >= 1")
	}

	calls = minCalls
	prob, err := buildProblem()
	if err != nil {
		return err
	}

	def, err := integrand.Lookup(prob.Integrand)
	if err != nil {
		return err
	}
	par, err := newParallel(prob, zap.NewNop())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	region := prob.Region()
	f := def.Build(prob.Params)

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "calls\tresult\tstd error\ttime")

	series := make([]float64, 0, steps)
	budget := minCalls
	for i := 0; i < steps; i++ {
		start := time.Now()
		result, err := par.Integrate(ctx, f, region, budget)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%d\t%.8g\t%.3g\t%s\n",
			budget, result.Value, result.StdErr, time.Since(start).Round(time.Millisecond))
		if result.StdErr > 0 {
			series = append(series, math.Log10(result.StdErr))
		}
		budget *= factor
	}
	w.Flush()

	if len(series) > 1 {
		fmt.Println()
		fmt.Println(asciigraph.Plot(series,
			asciigraph.Height(10),
			asciigraph.Width(70),
			asciigraph.Caption("log10 standard error per step"),
		))
	}
	return nil
}
