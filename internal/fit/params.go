package fit

import "github.com/cwbudde/levmarfit/internal/opt"

// paramState holds a kernel's parameter vector and implements the state
// side of the kernel contract. Snapshots are fresh copies and SetState
// copies values back verbatim, which keeps rejected-step restoration exact.
type paramState struct {
	state []float64
}

func (p *paramState) NumVariables() int { return len(p.state) }

func (p *paramState) State() []float64 {
	snapshot := make([]float64, len(p.state))
	copy(snapshot, p.state)
	return snapshot
}

func (p *paramState) SetState(state []float64) {
	copy(p.state, state)
}

func (p *paramState) NegStep(step []float64) {
	for i := range p.state {
		p.state[i] -= step[i]
	}
}

// Bounded is a kernel that can describe a box for the global seed search.
type Bounded interface {
	opt.Kernel
	// Bounds returns per-parameter lower and upper limits enclosing all
	// plausible fits for the kernel's dataset.
	Bounds() (lower, upper []float64)
}
