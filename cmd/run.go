package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/cwbudde/levmarfit/internal/fit"
	"github.com/cwbudde/levmarfit/internal/opt"
	"github.com/spf13/cobra"
)

var (
	dataPath   string
	outPath    string
	model      string
	degree     int
	batchSize  int
	iters      int
	tau        float64
	epsilon1   float64
	epsilon2   float64
	freq       int
	seedSearch bool
	popSize    int
	seed       int64
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a single-shot fit",
	Long:  `Fits the chosen model to a CSV point set and writes the fitted parameters as JSON.`,
	RunE:  runFit,
}

func init() {
	runCmd.Flags().StringVar(&dataPath, "data", "", "Input CSV path (required)")
	runCmd.Flags().StringVar(&outPath, "out", "", "Output JSON path (default: stdout)")
	runCmd.Flags().StringVar(&model, "model", "circle", "Model: circle, exp, poly")
	runCmd.Flags().IntVar(&degree, "degree", 0, "Polynomial degree (poly model only)")
	runCmd.Flags().IntVar(&batchSize, "batch", 0, "Residual batch size (0 = automatic)")
	runCmd.Flags().IntVar(&iters, "iters", 100, "Max iterations")
	runCmd.Flags().Float64Var(&tau, "tau", 0, "Initial damping scale (0 = default)")
	runCmd.Flags().Float64Var(&epsilon1, "eps1", 0, "Gradient stopping threshold (0 = default)")
	runCmd.Flags().Float64Var(&epsilon2, "eps2", 0, "Step-size stopping threshold (0 = default)")
	runCmd.Flags().IntVar(&freq, "freq", 10, "Progress report frequency in iterations")
	runCmd.Flags().BoolVar(&seedSearch, "seed-search", false, "Run a mayfly search before refining")
	runCmd.Flags().IntVar(&popSize, "pop", 30, "Seed-search population size")
	runCmd.Flags().Int64Var(&seed, "seed", 42, "Seed-search random seed")

	runCmd.MarkFlagRequired("data")
	rootCmd.AddCommand(runCmd)
}

func runFit(cmd *cobra.Command, args []string) error {
	slog.Info("Starting fit", "data", dataPath, "model", model, "iters", iters)

	points, err := fit.LoadPoints(dataPath)
	if err != nil {
		return fmt.Errorf("failed to load data: %w", err)
	}

	kernel, err := fit.BuildKernel(model, degree, batchSize, points)
	if err != nil {
		return fmt.Errorf("failed to build kernel: %w", err)
	}

	slog.Info("Loaded data", "points", len(points), "variables", kernel.NumVariables())

	m := opt.NewLevMar[opt.Kernel]()
	m.MaxIterations = iters
	m.ProgressFrequency = freq
	if tau > 0 {
		m.Tau = tau
	}
	if epsilon1 > 0 {
		m.Epsilon1 = epsilon1
	}
	if epsilon2 > 0 {
		m.Epsilon2 = epsilon2
	}
	m.Progress = func(k opt.Kernel, residualSq float64, final bool) {
		slog.Info("Progress", "iteration", m.Stats().Iterations, "residual", residualSq, "final", final)
	}

	start := time.Now()
	var result *fit.Result
	if seedSearch {
		optimizer := opt.NewMayfly(iters, popSize, seed)
		result, err = fit.Seeded(kernel, optimizer, m)
	} else {
		result, err = fit.Refine(kernel, m)
	}
	if err != nil {
		return fmt.Errorf("fit failed: %w", err)
	}
	elapsed := time.Since(start)

	slog.Info("Fit complete",
		"elapsed", elapsed,
		"initial_residual", result.InitialResidualSq,
		"final_residual", result.ResidualSq,
		"iterations", result.Iterations,
		"reason", result.Reason,
	)

	encoded, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	encoded = append(encoded, '\n')

	if outPath == "" {
		os.Stdout.Write(encoded)
		return nil
	}

	if err := os.WriteFile(outPath, encoded, 0o644); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}

	fmt.Printf("Wrote %s (residual: %.6g -> %.6g, %d iterations)\n", outPath, result.InitialResidualSq, result.ResidualSq, result.Iterations)
	return nil
}
