package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cwbudde/levmarfit/internal/fit"
	"github.com/cwbudde/levmarfit/internal/opt"
	"github.com/cwbudde/levmarfit/internal/store"
)

// runJob executes a fitting job in the background. Progress flows out of
// the minimizer's callback: it updates the job record, appends to the
// residual trace, and broadcasts an SSE event per report. If
// checkpointStore is not nil and the job has CheckpointInterval > 0,
// periodic checkpoints are saved; if dataDir is non-empty a trace.jsonl is
// written under it.
func runJob(ctx context.Context, jm *JobManager, checkpointStore store.Store, dataDir, jobID string) error {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}

	err := jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateRunning
	})
	if err != nil {
		return err
	}

	slog.Info("Starting job", "job_id", jobID, "data", job.Config.DataPath, "model", job.Config.Model)

	points, err := fit.LoadPoints(job.Config.DataPath)
	if err != nil {
		markJobFailed(jm, jobID, fmt.Errorf("failed to load dataset: %w", err))
		return err
	}

	kernel, err := fit.BuildKernel(job.Config.Model, job.Config.Degree, job.Config.BatchSize, points)
	if err != nil {
		markJobFailed(jm, jobID, fmt.Errorf("failed to build kernel: %w", err))
		return err
	}

	slog.Info("Loaded dataset", "job_id", jobID, "points", len(points), "variables", kernel.NumVariables())

	initialResidual := fit.ResidualSq(kernel)
	jm.UpdateJob(jobID, func(j *Job) {
		j.InitialResidual = initialResidual
	})

	var traceWriter *store.TraceWriter
	if dataDir != "" {
		traceWriter, err = store.NewTraceWriter(dataDir, jobID, false)
		if err != nil {
			slog.Warn("Failed to create trace writer", "job_id", jobID, "error", err)
			traceWriter = nil
		} else {
			defer traceWriter.Close()
		}
	}

	m := newMinimizer(job.Config)
	m.Progress = func(k opt.Kernel, residualSq float64, final bool) {
		iter := m.Stats().Iterations
		params := k.State()

		jm.UpdateJob(jobID, func(j *Job) {
			j.Iterations = iter
			j.BestResidual = residualSq
			j.BestParams = params
		})

		if traceWriter != nil {
			entry := store.TraceEntry{
				Iteration:  iter,
				ResidualSq: residualSq,
				Timestamp:  time.Now(),
			}
			if final {
				entry.Params = params
			}
			if err := traceWriter.Write(entry); err != nil {
				slog.Warn("Failed to write trace entry", "job_id", jobID, "error", err)
			}
		}

		jm.broadcaster.Broadcast(ProgressEvent{
			JobID:      jobID,
			State:      StateRunning,
			Iterations: iter,
			ResidualSq: residualSq,
			Timestamp:  time.Now(),
		})
	}

	// Check for cancellation before starting the expensive part
	select {
	case <-ctx.Done():
		markJobCancelled(jm, jobID)
		return ctx.Err()
	default:
	}

	checkpointDone := make(chan struct{})
	if checkpointStore != nil && job.Config.CheckpointInterval > 0 {
		go monitorCheckpoints(ctx, jm, checkpointStore, jobID, checkpointDone)
	}

	start := time.Now()
	var result *fit.Result
	if job.Config.SeedSearch {
		optimizer := opt.NewMayfly(job.Config.MaxIterations, job.Config.PopSize, job.Config.Seed)
		result, err = fit.Seeded(kernel, optimizer, m)
	} else {
		result, err = fit.Refine(kernel, m)
	}
	close(checkpointDone)

	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}
	elapsed := time.Since(start)

	if traceWriter != nil {
		if err := traceWriter.Flush(); err != nil {
			slog.Warn("Failed to flush trace", "job_id", jobID, "error", err)
		}
	}

	select {
	case <-ctx.Done():
		markJobCancelled(jm, jobID)
		return ctx.Err()
	default:
	}

	endTime := time.Now()
	err = jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCompleted
		j.BestParams = result.Params
		j.BestResidual = result.ResidualSq
		j.InitialResidual = result.InitialResidualSq
		j.Iterations = result.Iterations
		j.EndTime = &endTime
	})
	if err != nil {
		return err
	}

	// Persist a final checkpoint so completed jobs can be inspected later
	if checkpointStore != nil {
		if err := saveCheckpoint(jm, checkpointStore, jobID); err != nil {
			slog.Warn("Failed to save final checkpoint", "job_id", jobID, "error", err)
		}
	}

	slog.Info("Job completed",
		"job_id", jobID,
		"elapsed", elapsed,
		"initial_residual", result.InitialResidualSq,
		"best_residual", result.ResidualSq,
		"iterations", result.Iterations,
		"reason", result.Reason,
	)

	jm.broadcaster.Broadcast(ProgressEvent{
		JobID:      jobID,
		State:      StateCompleted,
		Iterations: result.Iterations,
		ResidualSq: result.ResidualSq,
		Timestamp:  time.Now(),
	})

	return nil
}

// newMinimizer builds a LevMar instance from job config, falling back to
// defaults for unset tuning fields.
func newMinimizer(config JobConfig) *opt.LevMar[opt.Kernel] {
	m := opt.NewLevMar[opt.Kernel]()
	if config.MaxIterations > 0 {
		m.MaxIterations = config.MaxIterations
	}
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
	return m
}

// markJobFailed marks a job as failed with an error message
func markJobFailed(jm *JobManager, jobID string, err error) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateFailed
		j.Error = err.Error()
		j.EndTime = &endTime
	})
	slog.Error("Job failed", "job_id", jobID, "error", err)
}

// markJobCancelled marks a job as cancelled
func markJobCancelled(jm *JobManager, jobID string) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCancelled
		j.EndTime = &endTime
	})
	slog.Info("Job cancelled", "job_id", jobID)
}

// monitorCheckpoints periodically saves checkpoints while the job runs
func monitorCheckpoints(ctx context.Context, jm *JobManager, checkpointStore store.Store, jobID string, done chan struct{}) {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return
	}

	interval := time.Duration(job.Config.CheckpointInterval) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := saveCheckpoint(jm, checkpointStore, jobID); err != nil {
				slog.Error("Failed to save checkpoint", "job_id", jobID, "error", err)
			}
		}
	}
}

// saveCheckpoint saves the job's current best state to the store
func saveCheckpoint(jm *JobManager, checkpointStore store.Store, jobID string) error {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}

	if len(job.BestParams) == 0 {
		slog.Debug("Skipping checkpoint, no parameters yet", "job_id", jobID)
		return nil
	}

	checkpoint := store.NewCheckpoint(
		jobID,
		job.BestParams,
		job.BestResidual,
		job.InitialResidual,
		job.Iterations,
		job.Config,
	)

	if err := checkpointStore.SaveCheckpoint(jobID, checkpoint); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}

	slog.Info("Checkpoint saved",
		"job_id", jobID,
		"iteration", job.Iterations,
		"best_residual", job.BestResidual,
	)
	return nil
}
