package opt

// Optimizer is a derivative-free global optimizer, used to pick a starting
// state for the LevMar refinement when no good initial guess is available.
type Optimizer interface {
	// Run minimizes eval over the box [lower, upper] in dim dimensions and
	// returns the best parameters found and their cost.
	Run(eval func([]float64) float64, lower, upper []float64, dim int) ([]float64, float64)
}
