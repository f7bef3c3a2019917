package fit

import (
	"fmt"
	"log/slog"

	"github.com/cwbudde/levmarfit/internal/opt"
)

// Supported model names for BuildKernel.
const (
	ModelCircle     = "circle"
	ModelExpDecay   = "exp"
	ModelPolynomial = "poly"
)

// Result holds the output of a fit.
type Result struct {
	Params            []float64      `json:"params"`
	ResidualSq        float64        `json:"residualSq"`
	InitialResidualSq float64        `json:"initialResidualSq"`
	Iterations        int            `json:"iterations"`
	Reason            opt.StopReason `json:"reason"`
}

// BuildKernel constructs the kernel for a model name. degree is only used
// by the polynomial model. batchSize <= 0 selects one automatically.
func BuildKernel(model string, degree, batchSize int, points []Point) (Bounded, error) {
	if batchSize <= 0 {
		batchSize = ChooseBatchSize(len(points))
	}
	switch model {
	case ModelCircle:
		return NewCircleKernel(points, batchSize)
	case ModelExpDecay:
		return NewExpDecayKernel(points, batchSize)
	case ModelPolynomial:
		return NewPolynomialKernel(points, degree, batchSize)
	default:
		return nil, fmt.Errorf("unknown model: %s", model)
	}
}

// ResidualSq evaluates the sum of squared residuals at the kernel's current
// state without touching derivatives.
func ResidualSq(kernel opt.Kernel) float64 {
	values := make([]float64, kernel.NumFunctionsPerBatch())
	var sum float64
	for b := 0; b < kernel.NumBatches(); b++ {
		kernel.ValueBatch(b, values)
		for _, v := range values {
			sum += v * v
		}
	}
	return sum
}

// Refine runs the Levenberg-Marquardt refinement from the kernel's current
// state and returns the fitted result.
func Refine(kernel opt.Kernel, m *opt.LevMar[opt.Kernel]) (*Result, error) {
	initial := ResidualSq(kernel)
	slog.Info("Starting refinement",
		"variables", kernel.NumVariables(),
		"functions", kernel.NumBatches()*kernel.NumFunctionsPerBatch(),
		"initial_residual", initial,
	)

	residualSq, err := m.Minimize(kernel)
	if err != nil {
		return nil, fmt.Errorf("refinement failed: %w", err)
	}

	stats := m.Stats()
	slog.Info("Refinement complete",
		"residual", residualSq,
		"iterations", stats.Iterations,
		"accepted", stats.Accepted,
		"rejected", stats.Rejected,
		"reason", stats.Reason,
	)

	return &Result{
		Params:            kernel.State(),
		ResidualSq:        residualSq,
		InitialResidualSq: initial,
		Iterations:        stats.Iterations,
		Reason:            stats.Reason,
	}, nil
}

// Seeded runs a derivative-free global search over the kernel's bounds to
// choose a starting state, then refines it with the minimizer.
func Seeded(kernel Bounded, optimizer opt.Optimizer, m *opt.LevMar[opt.Kernel]) (*Result, error) {
	lower, upper := kernel.Bounds()
	dim := kernel.NumVariables()

	eval := func(params []float64) float64 {
		kernel.SetState(params)
		return ResidualSq(kernel)
	}

	slog.Info("Starting seed search", "dim", dim)
	best, cost := optimizer.Run(eval, lower, upper, dim)
	slog.Info("Seed search complete", "residual", cost)

	kernel.SetState(best)
	return Refine(kernel, m)
}
