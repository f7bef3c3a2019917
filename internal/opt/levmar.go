package opt

import (
	"fmt"
	"math"

	"github.com/cwbudde/levmarfit/internal/linalg"
)

// ProgressFunc receives periodic reports during minimization. The kernel is
// passed for read access only; callbacks must not mutate it. final is true
// exactly once, after the loop has exited.
type ProgressFunc[K Kernel] func(kernel K, residualSq float64, final bool)

// StopReason records why a minimization run exited the iteration loop.
type StopReason string

const (
	// StopGradient: every component of JTr fell within Epsilon1.
	StopGradient StopReason = "gradient"
	// StopSmallStep: the proposed step was negligible relative to the
	// current state magnitude.
	StopSmallStep StopReason = "small-step"
	// StopMaxIterations: the iteration cap was exhausted.
	StopMaxIterations StopReason = "max-iterations"
	// StopSingular: the damped system could not be solved.
	StopSingular StopReason = "singular"
)

// Stats summarizes a completed minimization run.
type Stats struct {
	Iterations int
	Accepted   int
	Rejected   int
	Reason     StopReason
}

// LevMar is a damped Gauss-Newton (Levenberg-Marquardt) minimizer with
// Marquardt's adaptive damping update. One instance drives one kernel at a
// time; fields are read-only during Minimize.
//
// The three exit conditions (gradient below Epsilon1, negligible step,
// iteration cap) are all normal returns. Callers that need to distinguish
// them can read Stats() after the call.
type LevMar[K Kernel] struct {
	// Tau scales the initial damping factor, applied to the maximum
	// diagonal entry of the initial JTJ.
	Tau float64
	// Epsilon1 is the absolute convergence threshold on the infinity-norm
	// of JTr.
	Epsilon1 float64
	// Epsilon2 is the relative convergence threshold on step magnitude
	// versus state magnitude.
	Epsilon2 float64
	// MaxIterations caps the iteration loop.
	MaxIterations int
	// ProgressFrequency is the number of iterations between Progress
	// reports. Ignored if Progress is nil or the frequency is not positive.
	ProgressFrequency int
	// Progress, if set, is invoked every ProgressFrequency iterations and
	// once more after the loop exits regardless of cause.
	Progress ProgressFunc[K]

	// Damping state for the run in progress. mu is added to the JTJ
	// diagonal before each solve; nu is the growth rate applied to mu on
	// rejected steps.
	mu, nu float64

	stats Stats
}

// NewLevMar returns a minimizer with conventional defaults.
func NewLevMar[K Kernel]() *LevMar[K] {
	return &LevMar[K]{
		Tau:               1e-3,
		Epsilon1:          1e-8,
		Epsilon2:          1e-8,
		MaxIterations:     100,
		ProgressFrequency: 10,
	}
}

// Stats returns the statistics of the most recent Minimize call. During a
// run it reflects the iterations so far, which makes it safe to read from a
// progress callback; the minimizer is not reentrant.
func (m *LevMar[K]) Stats() Stats {
	return m.stats
}

// Minimize fits the kernel's parameters to minimize the sum of squared
// residuals and returns the final sum of squares. The kernel is left in its
// best accepted state; callers read the fitted parameters from it.
//
// A singular damped system is fatal for the call and is returned wrapping
// linalg.ErrSingular, with the kernel left at its last accepted state.
func (m *LevMar[K]) Minimize(kernel K) (float64, error) {
	n := kernel.NumVariables()
	width := kernel.NumFunctionsPerBatch()

	// Reusable evaluation buffers sized by the batch width.
	values := make([]float64, width)
	derivs := make([][]float64, width)
	for i := range derivs {
		derivs[i] = make([]float64, n)
	}

	jtj := make([]csum, n*n)
	jtr := make([]csum, n)
	jtjScratch := make([]float64, n*n)
	jtrScratch := make([]float64, n)

	m.stats = Stats{}

	residualSq := m.assemble(kernel, jtj, jtr, values, derivs)

	maxDiag := jtj[0].value()
	for i := 1; i < n; i++ {
		if d := jtj[i*n+i].value(); d > maxDiag {
			maxDiag = d
		}
	}
	m.mu = m.Tau * maxDiag
	m.nu = 2.0

	found := m.gradientSmall(jtr)
	if found {
		// Already at a stationary point.
		m.stats.Reason = StopGradient
		m.report(kernel, residualSq, true)
		return residualSq, nil
	}

	nextReport := m.ProgressFrequency
	var reason StopReason

	for iter := 1; iter <= m.MaxIterations; iter++ {
		m.stats.Iterations = iter

		valuesOf(jtj, jtjScratch)
		valuesOf(jtr, jtrScratch)
		x, err := linalg.SolveDamped(n, jtjScratch, jtrScratch, m.mu)
		if err != nil {
			m.stats.Reason = StopSingular
			m.report(kernel, residualSq, true)
			return residualSq, fmt.Errorf("iteration %d: damped system: %w", iter, err)
		}

		snapshot := kernel.State()

		stepMag := sumSquares(x)
		stateMag := sumSquares(snapshot)
		if math.Sqrt(stepMag) <= m.Epsilon2*(math.Sqrt(stateMag)+m.Epsilon2) {
			reason = StopSmallStep
			break
		}

		// x solves (JTJ + mu*I) x = JTr, so it is the negative of the true
		// step. Apply it by subtraction.
		kernel.NegStep(x)
		newResidualSq := m.residualOnly(kernel, values)

		var denom float64
		for i := 0; i < n; i++ {
			denom += x[i] * (m.mu*x[i] + jtrScratch[i])
		}
		rho := (residualSq - newResidualSq) / denom

		if rho > 0 {
			// Step accepted: the new state becomes authoritative.
			resetAll(jtj)
			resetAll(jtr)
			m.assemble(kernel, jtj, jtr, values, derivs)
			residualSq = newResidualSq
			found = m.gradientSmall(jtr)

			rhof := 2*rho - 1
			factor := 1 - rhof*rhof*rhof
			if factor < 1.0/3.0 {
				factor = 1.0 / 3.0
			}
			m.mu *= factor
			m.nu = 2
			m.stats.Accepted++
		} else {
			kernel.SetState(snapshot)
			m.mu *= m.nu
			m.nu *= 2
			m.stats.Rejected++
		}

		if m.Progress != nil && m.ProgressFrequency > 0 && iter == nextReport {
			m.Progress(kernel, residualSq, false)
			nextReport += m.ProgressFrequency
		}

		if found {
			reason = StopGradient
			break
		}
	}

	if reason == "" {
		reason = StopMaxIterations
	}
	m.stats.Reason = reason
	m.report(kernel, residualSq, true)
	return residualSq, nil
}

// assemble rebuilds JTJ and JTr from scratch at the kernel's current state
// and returns the sum of squared residuals there. jtj and jtr must be
// zeroed by the caller.
func (m *LevMar[K]) assemble(kernel K, jtj, jtr []csum, values []float64, derivs [][]float64) float64 {
	n := kernel.NumVariables()
	width := kernel.NumFunctionsPerBatch()
	batches := kernel.NumBatches()

	var residualSq csum
	for b := 0; b < batches; b++ {
		kernel.ValueBatch(b, values)
		kernel.DerivativeBatch(b, derivs)
		for f := 0; f < width; f++ {
			v := values[f]
			residualSq.add(v * v)
			d := derivs[f]
			for i := 0; i < n; i++ {
				jtr[i].add(d[i] * v)
				row := jtj[i*n:]
				for j := 0; j < n; j++ {
					row[j].add(d[i] * d[j])
				}
			}
		}
	}
	return residualSq.value()
}

// residualOnly recomputes the sum of squared residuals at the current state
// without touching derivatives.
func (m *LevMar[K]) residualOnly(kernel K, values []float64) float64 {
	width := kernel.NumFunctionsPerBatch()
	batches := kernel.NumBatches()

	var residualSq csum
	for b := 0; b < batches; b++ {
		kernel.ValueBatch(b, values)
		for f := 0; f < width; f++ {
			residualSq.add(values[f] * values[f])
		}
	}
	return residualSq.value()
}

func (m *LevMar[K]) gradientSmall(jtr []csum) bool {
	for i := range jtr {
		if math.Abs(jtr[i].value()) > m.Epsilon1 {
			return false
		}
	}
	return true
}

func (m *LevMar[K]) report(kernel K, residualSq float64, final bool) {
	if m.Progress != nil {
		m.Progress(kernel, residualSq, final)
	}
}

func sumSquares(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x * x
	}
	return sum
}
