package fit

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/cwbudde/levmarfit/internal/opt"
)

func TestRefineCircle(t *testing.T) {
	kernel, err := NewCircleKernel(circlePoints(1, 2, 4, 16), 4)
	if err != nil {
		t.Fatalf("NewCircleKernel failed: %v", err)
	}

	result, err := Refine(kernel, opt.NewLevMar[opt.Kernel]())
	if err != nil {
		t.Fatalf("Refine failed: %v", err)
	}

	if result.ResidualSq > 1e-12 {
		t.Errorf("Expected near-exact fit, residual %g", result.ResidualSq)
	}
	if result.InitialResidualSq < result.ResidualSq {
		t.Error("Initial residual should not be below the fitted residual")
	}
	if result.Iterations == 0 {
		t.Error("Expected a nonzero iteration count")
	}
	if len(result.Params) != 3 {
		t.Fatalf("Expected 3 parameters, got %d", len(result.Params))
	}
	if math.Abs(result.Params[0]-1) > 1e-6 || math.Abs(result.Params[1]-2) > 1e-6 || math.Abs(result.Params[2]-4) > 1e-6 {
		t.Errorf("Expected circle (1, 2, 4), got %v", result.Params)
	}
}

// midpointOptimizer is a stub seed search that returns the center of the
// box, keeping the pipeline test independent of the stochastic engine.
type midpointOptimizer struct{}

func (midpointOptimizer) Run(eval func([]float64) float64, lower, upper []float64, dim int) ([]float64, float64) {
	best := make([]float64, dim)
	for i := range best {
		best[i] = (lower[i] + upper[i]) / 2
	}
	return best, eval(best)
}

func TestSeededUsesOptimizerResult(t *testing.T) {
	kernel, err := NewCircleKernel(circlePoints(0, 0, 2, 8), 2)
	if err != nil {
		t.Fatalf("NewCircleKernel failed: %v", err)
	}

	result, err := Seeded(kernel, midpointOptimizer{}, opt.NewLevMar[opt.Kernel]())
	if err != nil {
		t.Fatalf("Seeded failed: %v", err)
	}
	if result.ResidualSq > 1e-10 {
		t.Errorf("Expected convergence from seeded start, residual %g", result.ResidualSq)
	}
}

func TestBuildKernel(t *testing.T) {
	points := circlePoints(0, 0, 1, 12)

	tests := []struct {
		model     string
		degree    int
		variables int
	}{
		{ModelCircle, 0, 3},
		{ModelExpDecay, 0, 3},
		{ModelPolynomial, 2, 3},
	}
	for _, tc := range tests {
		kernel, err := BuildKernel(tc.model, tc.degree, 0, points)
		if err != nil {
			t.Fatalf("BuildKernel(%s) failed: %v", tc.model, err)
		}
		if kernel.NumVariables() != tc.variables {
			t.Errorf("BuildKernel(%s): %d variables, want %d", tc.model, kernel.NumVariables(), tc.variables)
		}
		total := kernel.NumBatches() * kernel.NumFunctionsPerBatch()
		if total != len(points) {
			t.Errorf("BuildKernel(%s): covers %d functions, want %d", tc.model, total, len(points))
		}
	}

	if _, err := BuildKernel("spline", 0, 0, points); err == nil {
		t.Error("Expected error for unknown model")
	}
}

func TestChooseBatchSize(t *testing.T) {
	tests := []struct {
		n, want int
	}{
		{0, 1},
		{1, 1},
		{7, 7},
		{12, 12},
		{100, 50},
		{97, 1}, // prime above 64
		{128, 64},
	}
	for _, tc := range tests {
		if got := ChooseBatchSize(tc.n); got != tc.want {
			t.Errorf("ChooseBatchSize(%d) = %d, want %d", tc.n, got, tc.want)
		}
	}
}

func TestLoadPoints(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.csv")

	content := "t,y\n0,1.5\n1,0.75\n2,0.375\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	points, err := LoadPoints(path)
	if err != nil {
		t.Fatalf("LoadPoints failed: %v", err)
	}
	if len(points) != 3 {
		t.Fatalf("Expected 3 points, got %d", len(points))
	}
	if points[1].X != 1 || points[1].Y != 0.75 {
		t.Errorf("Unexpected second point: %+v", points[1])
	}
}

func TestLoadPointsErrors(t *testing.T) {
	if _, err := LoadPoints(filepath.Join(t.TempDir(), "missing.csv")); err == nil {
		t.Error("Expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.csv")
	if err := os.WriteFile(path, []byte("t,y\n0,1\nnope,nan?\n"), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}
	if _, err := LoadPoints(path); err == nil {
		t.Error("Expected error for malformed record")
	}
}
