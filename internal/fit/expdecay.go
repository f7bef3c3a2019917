package fit

import (
	"fmt"
	"math"
)

// ExpDecayKernel fits an exponential decay with offset to (t, y) samples:
//
//	model(t) = a*exp(-b*t) + c
//	f_i = model(t_i) - y_i
//
// Parameters are [a, b, c].
type ExpDecayKernel struct {
	paramState
	samples   []Point
	batchSize int
}

// NewExpDecayKernel creates an exponential-decay kernel. batchSize must
// divide the number of samples. The initial state assumes the tail of the
// data approximates the offset and the first sample the amplitude.
func NewExpDecayKernel(samples []Point, batchSize int) (*ExpDecayKernel, error) {
	if len(samples) < 3 {
		return nil, fmt.Errorf("exponential fit needs at least 3 samples, got %d", len(samples))
	}
	if batchSize <= 0 || len(samples)%batchSize != 0 {
		return nil, fmt.Errorf("batch size %d does not divide %d samples", batchSize, len(samples))
	}

	c := samples[len(samples)-1].Y
	a := samples[0].Y - c
	if a == 0 {
		a = 1
	}

	return &ExpDecayKernel{
		paramState: paramState{state: []float64{a, 1, c}},
		samples:    samples,
		batchSize:  batchSize,
	}, nil
}

func (k *ExpDecayKernel) NumFunctionsPerBatch() int { return k.batchSize }
func (k *ExpDecayKernel) NumBatches() int           { return len(k.samples) / k.batchSize }

func (k *ExpDecayKernel) ValueBatch(batch int, values []float64) {
	a, b, c := k.state[0], k.state[1], k.state[2]
	base := batch * k.batchSize
	for f := 0; f < k.batchSize; f++ {
		s := k.samples[base+f]
		values[f] = a*math.Exp(-b*s.X) + c - s.Y
	}
}

func (k *ExpDecayKernel) DerivativeBatch(batch int, derivs [][]float64) {
	a, b := k.state[0], k.state[1]
	base := batch * k.batchSize
	for f := 0; f < k.batchSize; f++ {
		s := k.samples[base+f]
		e := math.Exp(-b * s.X)
		derivs[f][0] = e
		derivs[f][1] = -a * s.X * e
		derivs[f][2] = 1
	}
}

// Bounds derives a search box from the observed value range and time span.
func (k *ExpDecayKernel) Bounds() (lower, upper []float64) {
	minY, maxY := math.Inf(1), math.Inf(-1)
	maxT := 0.0
	for _, s := range k.samples {
		minY = math.Min(minY, s.Y)
		maxY = math.Max(maxY, s.Y)
		maxT = math.Max(maxT, math.Abs(s.X))
	}
	span := maxY - minY
	if span == 0 {
		span = 1
	}
	if maxT == 0 {
		maxT = 1
	}
	// Rates faster than ~10 decades over the time span are
	// indistinguishable from a step in the data.
	maxRate := 10 / maxT
	lower = []float64{-2 * span, 0, minY - span}
	upper = []float64{2 * span, maxRate, maxY + span}
	return lower, upper
}
