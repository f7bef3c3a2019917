package opt

import "math"

// csum is a compensated accumulator (Kahan with Neumaier's correction).
// Summing many small residual contributions into a plain float64 loses low
// bits; the running compensation term recovers them, standing in for the
// wider accumulator type the algorithm calls for.
type csum struct {
	s float64 // running sum
	c float64 // running compensation
}

func (a *csum) add(v float64) {
	t := a.s + v
	if math.Abs(a.s) >= math.Abs(v) {
		a.c += (a.s - t) + v
	} else {
		a.c += (v - t) + a.s
	}
	a.s = t
}

func (a *csum) value() float64 {
	return a.s + a.c
}

func (a *csum) reset() {
	a.s = 0
	a.c = 0
}

// resetAll zeroes a slice of accumulators in place.
func resetAll(as []csum) {
	for i := range as {
		as[i].reset()
	}
}

// valuesOf extracts the compensated sums into out.
func valuesOf(as []csum, out []float64) []float64 {
	for i := range as {
		out[i] = as[i].value()
	}
	return out
}
