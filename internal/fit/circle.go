package fit

import (
	"fmt"
	"math"
)

// CircleKernel fits a circle (cx, cy, r) to 2-D points. Each residual is
// the signed geometric distance of one point to the circle:
//
//	f_i = sqrt((x_i-cx)^2 + (y_i-cy)^2) - r
type CircleKernel struct {
	paramState
	points    []Point
	batchSize int
}

// NewCircleKernel creates a circle kernel over the given points. batchSize
// must divide the number of points. The initial state is the centroid and
// the mean distance from it, which is close enough for the refinement to
// converge on well-formed data.
func NewCircleKernel(points []Point, batchSize int) (*CircleKernel, error) {
	if len(points) < 3 {
		return nil, fmt.Errorf("circle fit needs at least 3 points, got %d", len(points))
	}
	if batchSize <= 0 || len(points)%batchSize != 0 {
		return nil, fmt.Errorf("batch size %d does not divide %d points", batchSize, len(points))
	}

	var cx, cy float64
	for _, p := range points {
		cx += p.X
		cy += p.Y
	}
	cx /= float64(len(points))
	cy /= float64(len(points))

	var r float64
	for _, p := range points {
		r += math.Hypot(p.X-cx, p.Y-cy)
	}
	r /= float64(len(points))

	return &CircleKernel{
		paramState: paramState{state: []float64{cx, cy, r}},
		points:     points,
		batchSize:  batchSize,
	}, nil
}

func (k *CircleKernel) NumFunctionsPerBatch() int { return k.batchSize }
func (k *CircleKernel) NumBatches() int           { return len(k.points) / k.batchSize }

func (k *CircleKernel) ValueBatch(batch int, values []float64) {
	cx, cy, r := k.state[0], k.state[1], k.state[2]
	base := batch * k.batchSize
	for f := 0; f < k.batchSize; f++ {
		p := k.points[base+f]
		values[f] = math.Hypot(p.X-cx, p.Y-cy) - r
	}
}

func (k *CircleKernel) DerivativeBatch(batch int, derivs [][]float64) {
	cx, cy := k.state[0], k.state[1]
	base := batch * k.batchSize
	for f := 0; f < k.batchSize; f++ {
		p := k.points[base+f]
		dist := math.Hypot(p.X-cx, p.Y-cy)
		if dist == 0 {
			// Point at the current center: distance is not differentiable
			// there, pick the zero subgradient for the center terms.
			derivs[f][0] = 0
			derivs[f][1] = 0
		} else {
			derivs[f][0] = (cx - p.X) / dist
			derivs[f][1] = (cy - p.Y) / dist
		}
		derivs[f][2] = -1
	}
}

// Bounds encloses the data's bounding box, padded by its diagonal, with the
// radius limited to the diagonal.
func (k *CircleKernel) Bounds() (lower, upper []float64) {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range k.points {
		minX = math.Min(minX, p.X)
		minY = math.Min(minY, p.Y)
		maxX = math.Max(maxX, p.X)
		maxY = math.Max(maxY, p.Y)
	}
	diag := math.Hypot(maxX-minX, maxY-minY)
	if diag == 0 {
		diag = 1
	}
	lower = []float64{minX - diag, minY - diag, 0}
	upper = []float64{maxX + diag, maxY + diag, diag}
	return lower, upper
}
