package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/cwbudde/levmarfit/internal/fit"
	"github.com/cwbudde/levmarfit/internal/opt"
	"github.com/cwbudde/levmarfit/internal/store"
	"github.com/spf13/cobra"
)

var (
	resumeDataDir string
	resumeData    string
	resumeModel   string
	resumeDegree  int
	resumeIters   int
	resumeOut     string
)

var resumeCmd = &cobra.Command{
	Use:   "resume [job-id]",
	Short: "Resume a fit from its checkpoint",
	Long: `Loads the checkpoint for a job and continues refinement from the
saved parameters. A resumed fit must use the same dataset and model; the
iteration budget can be changed.`,
	Args: cobra.ExactArgs(1),
	RunE: runResume,
}

func init() {
	resumeCmd.Flags().StringVar(&resumeDataDir, "data-dir", "./data", "Directory for checkpoints and traces")
	resumeCmd.Flags().StringVar(&resumeData, "data", "", "Dataset path (must match the checkpoint)")
	resumeCmd.Flags().StringVar(&resumeModel, "model", "", "Model (must match the checkpoint)")
	resumeCmd.Flags().IntVar(&resumeDegree, "degree", 0, "Polynomial degree (must match the checkpoint)")
	resumeCmd.Flags().IntVar(&resumeIters, "iters", 0, "Max iterations for the resumed run (0 = checkpoint value)")
	resumeCmd.Flags().StringVar(&resumeOut, "out", "", "Output JSON path (default: stdout)")
	rootCmd.AddCommand(resumeCmd)
}

func runResume(cmd *cobra.Command, args []string) error {
	jobID := args[0]

	checkpointStore, err := store.NewFSStore(resumeDataDir)
	if err != nil {
		return fmt.Errorf("failed to open checkpoint store: %w", err)
	}

	checkpoint, err := checkpointStore.LoadCheckpoint(jobID)
	if err != nil {
		return fmt.Errorf("failed to load checkpoint: %w", err)
	}

	if err := checkpoint.Validate(); err != nil {
		return fmt.Errorf("checkpoint is not usable: %w", err)
	}

	// Reject attempts to resume against a different dataset or model
	requested := checkpoint.Config
	if resumeData != "" {
		requested.DataPath = resumeData
	}
	if resumeModel != "" {
		requested.Model = resumeModel
	}
	if resumeDegree > 0 {
		requested.Degree = resumeDegree
	}
	if err := checkpoint.IsCompatible(requested); err != nil {
		return fmt.Errorf("cannot resume: %w", err)
	}

	config := checkpoint.Config
	if resumeIters > 0 {
		config.MaxIterations = resumeIters
	}

	slog.Info("Resuming fit",
		"job_id", jobID,
		"model", config.Model,
		"iteration", checkpoint.Iteration,
		"best_residual", checkpoint.BestResidual,
	)

	points, err := fit.LoadPoints(config.DataPath)
	if err != nil {
		return fmt.Errorf("failed to load data: %w", err)
	}

	kernel, err := fit.BuildKernel(config.Model, config.Degree, config.BatchSize, points)
	if err != nil {
		return fmt.Errorf("failed to build kernel: %w", err)
	}

	if len(checkpoint.BestParams) != kernel.NumVariables() {
		return fmt.Errorf("checkpoint has %d params, model needs %d", len(checkpoint.BestParams), kernel.NumVariables())
	}
	kernel.SetState(checkpoint.BestParams)

	m := opt.NewLevMar[opt.Kernel]()
	m.MaxIterations = config.MaxIterations
	if config.Tau > 0 {
		m.Tau = config.Tau
	}
	if config.Epsilon1 > 0 {
		m.Epsilon1 = config.Epsilon1
	}
	if config.Epsilon2 > 0 {
		m.Epsilon2 = config.Epsilon2
	}
	if config.ProgressFrequency > 0 {
		m.ProgressFrequency = config.ProgressFrequency
	}

	start := time.Now()
	result, err := fit.Refine(kernel, m)
	if err != nil {
		return fmt.Errorf("resumed fit failed: %w", err)
	}

	// Save the improved state back under the same job ID
	totalIterations := checkpoint.Iteration + result.Iterations
	updated := store.NewCheckpoint(jobID, result.Params, result.ResidualSq, checkpoint.InitialResidual, totalIterations, config)
	if err := checkpointStore.SaveCheckpoint(jobID, updated); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}

	slog.Info("Resume complete",
		"job_id", jobID,
		"elapsed", time.Since(start),
		"residual", result.ResidualSq,
		"total_iterations", totalIterations,
		"reason", result.Reason,
	)

	encoded, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	encoded = append(encoded, '\n')

	if resumeOut == "" {
		os.Stdout.Write(encoded)
		return nil
	}
	if err := os.WriteFile(resumeOut, encoded, 0o644); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}
	fmt.Printf("Wrote %s (residual %.6g after %d total iterations)\n", resumeOut, result.ResidualSq, totalIterations)
	return nil
}
