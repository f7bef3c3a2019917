package opt

// Kernel defines a nonlinear least-squares problem for the LevMar minimizer.
//
// A kernel owns the current parameter state (a vector of NumVariables
// scalars) and partitions its residual functions into batches of fixed
// width. The total number of residual functions is
// NumBatches() * NumFunctionsPerBatch(). The minimizer drives all state
// mutation through NegStep and SetState; it never touches the state
// directly.
//
// Implementations must be deterministic from the minimizer's point of view:
// evaluating the same batch twice at the same state yields the same values
// and derivatives. SetState must restore parameters verbatim, because the
// minimizer relies on derivatives at a restored state being identical to
// derivatives computed there before a rejected step.
type Kernel interface {
	// NumVariables returns the number of parameters being fit.
	NumVariables() int

	// NumFunctionsPerBatch returns the fixed number of residual functions
	// evaluated together per batch.
	NumFunctionsPerBatch() int

	// NumBatches returns the number of batches comprising the residual set.
	NumBatches() int

	// ValueBatch fills values (length NumFunctionsPerBatch) with the
	// residuals of one batch at the current state.
	ValueBatch(batch int, values []float64)

	// DerivativeBatch fills derivs (NumFunctionsPerBatch rows of
	// NumVariables columns) with the partial derivatives of each residual
	// in the batch with respect to each parameter, at the current state.
	DerivativeBatch(batch int, derivs [][]float64)

	// State returns a snapshot copy of the current parameters. Callers may
	// retain the slice; it must not alias internal storage.
	State() []float64

	// SetState overwrites the current parameters with an exact copy of
	// state.
	SetState(state []float64)

	// NegStep subtracts step element-wise from the current parameters, so
	// the applied delta is -step.
	NegStep(step []float64)
}
