package fit

import (
	"fmt"
	"math"
)

// PolynomialKernel fits polynomial coefficients to (t, y) samples:
//
//	f_i = sum_j p_j * t_i^j - y_i
//
// The problem is linear in the parameters, so the refinement converges in a
// single accepted step. It doubles as a sanity check for the minimizer on
// real datasets.
type PolynomialKernel struct {
	paramState
	samples   []Point
	batchSize int
}

// NewPolynomialKernel creates a polynomial kernel of the given degree
// (degree+1 coefficients, all starting at zero). batchSize must divide the
// number of samples.
func NewPolynomialKernel(samples []Point, degree, batchSize int) (*PolynomialKernel, error) {
	if degree < 0 {
		return nil, fmt.Errorf("degree must be non-negative, got %d", degree)
	}
	if len(samples) < degree+1 {
		return nil, fmt.Errorf("degree-%d fit needs at least %d samples, got %d", degree, degree+1, len(samples))
	}
	if batchSize <= 0 || len(samples)%batchSize != 0 {
		return nil, fmt.Errorf("batch size %d does not divide %d samples", batchSize, len(samples))
	}

	return &PolynomialKernel{
		paramState: paramState{state: make([]float64, degree+1)},
		samples:    samples,
		batchSize:  batchSize,
	}, nil
}

func (k *PolynomialKernel) NumFunctionsPerBatch() int { return k.batchSize }
func (k *PolynomialKernel) NumBatches() int           { return len(k.samples) / k.batchSize }

func (k *PolynomialKernel) ValueBatch(batch int, values []float64) {
	base := batch * k.batchSize
	for f := 0; f < k.batchSize; f++ {
		s := k.samples[base+f]
		// Horner evaluation of the model at t_i.
		v := 0.0
		for j := len(k.state) - 1; j >= 0; j-- {
			v = v*s.X + k.state[j]
		}
		values[f] = v - s.Y
	}
}

func (k *PolynomialKernel) DerivativeBatch(batch int, derivs [][]float64) {
	base := batch * k.batchSize
	for f := 0; f < k.batchSize; f++ {
		s := k.samples[base+f]
		tj := 1.0
		for j := 0; j < len(k.state); j++ {
			derivs[f][j] = tj
			tj *= s.X
		}
	}
}

// Bounds scales with the observed value range; adequate for the seed
// search on normalized data.
func (k *PolynomialKernel) Bounds() (lower, upper []float64) {
	maxAbs := 0.0
	for _, s := range k.samples {
		maxAbs = math.Max(maxAbs, math.Abs(s.Y))
	}
	if maxAbs == 0 {
		maxAbs = 1
	}
	n := len(k.state)
	lower = make([]float64, n)
	upper = make([]float64, n)
	for j := 0; j < n; j++ {
		lower[j] = -2 * maxAbs
		upper[j] = 2 * maxAbs
	}
	return lower, upper
}
