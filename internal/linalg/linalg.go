// Package linalg wraps the dense linear-algebra operations the minimizer
// needs behind a small, replaceable surface.
package linalg

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ErrSingular is returned when a system is singular to working precision.
// Use errors.Is(err, ErrSingular) to check for it.
var ErrSingular = errors.New("matrix is singular to working precision")

// SolveDamped solves (A + mu*I) x = b for a dense n×n matrix A given in
// row-major order, and returns the solution vector. The damping term mu is
// added to the diagonal only; a is not modified.
//
// The solve is delegated to gonum's pivoted LU factorization. Any solve
// failure, including near-singularity reported through the condition
// number, is returned wrapping ErrSingular.
func SolveDamped(n int, a, b []float64, mu float64) ([]float64, error) {
	if len(a) != n*n {
		return nil, fmt.Errorf("matrix has %d entries, want %d", len(a), n*n)
	}
	if len(b) != n {
		return nil, fmt.Errorf("vector has %d entries, want %d", len(b), n)
	}

	lhs := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			v := a[i*n+j]
			if i == j {
				v += mu
			}
			lhs.Set(i, j, v)
		}
	}

	rhs := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		rhs.SetVec(i, b[i])
	}

	var x mat.VecDense
	if err := x.SolveVec(lhs, rhs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSingular, err)
	}

	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = x.AtVec(i)
	}
	return out, nil
}
