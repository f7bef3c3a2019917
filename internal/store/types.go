package store

import (
	"fmt"
	"time"
)

// JobConfig holds configuration for a fitting job (checkpoint copy).
// This avoids import cycles with the server package.
type JobConfig struct {
	DataPath           string  `json:"dataPath"`
	Model              string  `json:"model"` // circle, exp, poly
	Degree             int     `json:"degree,omitempty"`
	BatchSize          int     `json:"batchSize,omitempty"` // 0 = choose automatically
	MaxIterations      int     `json:"maxIterations"`
	Tau                float64 `json:"tau,omitempty"`
	Epsilon1           float64 `json:"epsilon1,omitempty"`
	Epsilon2           float64 `json:"epsilon2,omitempty"`
	ProgressFrequency  int     `json:"progressFrequency,omitempty"`
	SeedSearch         bool    `json:"seedSearch,omitempty"` // run a mayfly search before refining
	PopSize            int     `json:"popSize,omitempty"`    // seed-search population
	Seed               int64   `json:"seed,omitempty"`       // seed-search RNG seed
	CheckpointInterval int     `json:"checkpointInterval,omitempty"` // checkpoint every N seconds (0 = disabled)
}

// Checkpoint represents a saved fit state that can be resumed later.
// All fields are serialized to JSON for persistence.
//
// A checkpoint stores the best parameters found so far, not the minimizer's
// damping state. Resuming restarts the refinement from those parameters, so
// the damping schedule begins fresh; the residual can only improve from the
// saved value, but iteration-for-iteration behavior will differ from an
// uninterrupted run.
type Checkpoint struct {
	// JobID is the unique identifier for this fitting job
	JobID string `json:"jobId"`

	// BestParams contains the model parameters that produced the lowest
	// sum of squared residuals so far
	BestParams []float64 `json:"bestParams"`

	// BestResidual is the sum of squared residuals achieved by BestParams
	BestResidual float64 `json:"bestResidual"`

	// InitialResidual is the starting sum of squares, kept for improvement
	// tracking
	InitialResidual float64 `json:"initialResidual"`

	// Iteration is the minimizer iteration count when this checkpoint was
	// created
	Iteration int `json:"iteration"`

	// Timestamp records when this checkpoint was created
	Timestamp time.Time `json:"timestamp"`

	// Config holds the job configuration, needed for validation during
	// resume: a resumed job must use the same dataset and model.
	Config JobConfig `json:"config"`
}

// CheckpointInfo contains metadata about a checkpoint without the full
// parameter data. Used for listing checkpoints efficiently.
type CheckpointInfo struct {
	JobID        string    `json:"jobId"`
	BestResidual float64   `json:"bestResidual"`
	Iteration    int       `json:"iteration"`
	Timestamp    time.Time `json:"timestamp"`
	Model        string    `json:"model"`
	DataPath     string    `json:"dataPath"`
}

// NewCheckpoint creates a checkpoint from job state.
func NewCheckpoint(jobID string, bestParams []float64, bestResidual, initialResidual float64, iteration int, config JobConfig) *Checkpoint {
	return &Checkpoint{
		JobID:           jobID,
		BestParams:      bestParams,
		BestResidual:    bestResidual,
		InitialResidual: initialResidual,
		Iteration:       iteration,
		Timestamp:       time.Now(),
		Config:          config,
	}
}

// ToInfo converts a full Checkpoint to CheckpointInfo (metadata only).
func (c *Checkpoint) ToInfo() CheckpointInfo {
	return CheckpointInfo{
		JobID:        c.JobID,
		BestResidual: c.BestResidual,
		Iteration:    c.Iteration,
		Timestamp:    c.Timestamp,
		Model:        c.Config.Model,
		DataPath:     c.Config.DataPath,
	}
}

// Validate checks if the checkpoint has valid data.
// Returns an error if any required field is missing or invalid.
func (c *Checkpoint) Validate() error {
	if c.JobID == "" {
		return &ValidationError{Field: "JobID", Reason: "cannot be empty"}
	}
	if len(c.BestParams) == 0 {
		return &ValidationError{Field: "BestParams", Reason: "cannot be empty"}
	}
	if c.BestResidual < 0 {
		return &ValidationError{Field: "BestResidual", Reason: "cannot be negative"}
	}
	if c.InitialResidual < 0 {
		return &ValidationError{Field: "InitialResidual", Reason: "cannot be negative"}
	}
	if c.Iteration < 0 {
		return &ValidationError{Field: "Iteration", Reason: "cannot be negative"}
	}
	if c.Timestamp.IsZero() {
		return &ValidationError{Field: "Timestamp", Reason: "cannot be zero"}
	}
	if c.Config.DataPath == "" {
		return &ValidationError{Field: "Config.DataPath", Reason: "cannot be empty"}
	}
	if c.Config.Model == "" {
		return &ValidationError{Field: "Config.Model", Reason: "cannot be empty"}
	}
	if c.Config.MaxIterations <= 0 {
		return &ValidationError{Field: "Config.MaxIterations", Reason: "must be positive"}
	}
	return nil
}

// ValidationError represents a checkpoint validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}

// IsCompatible checks if this checkpoint can be resumed with the given
// config. Returns an error if the configs are incompatible.
func (c *Checkpoint) IsCompatible(config JobConfig) error {
	if c.Config.DataPath != config.DataPath {
		return &CompatibilityError{
			Field:    "DataPath",
			Expected: c.Config.DataPath,
			Actual:   config.DataPath,
		}
	}
	if c.Config.Model != config.Model {
		return &CompatibilityError{
			Field:    "Model",
			Expected: c.Config.Model,
			Actual:   config.Model,
		}
	}
	if c.Config.Degree != config.Degree {
		return &CompatibilityError{
			Field:    "Degree",
			Expected: fmt.Sprintf("%d", c.Config.Degree),
			Actual:   fmt.Sprintf("%d", config.Degree),
		}
	}
	return nil
}

// CompatibilityError represents a checkpoint compatibility error.
type CompatibilityError struct {
	Field    string
	Expected string
	Actual   string
}

func (e *CompatibilityError) Error() string {
	return "compatibility error: " + e.Field + " mismatch (expected " + e.Expected + ", got " + e.Actual + ")"
}
