// Package optimize assembles and solves the per-sweep nonlinear least-squares problem: a prior
// cost anchoring knot 0 to the previous sweep's motion extrapolation, a constant-velocity GP
// cost between every adjacent knot pair, and a bisquare-robustified residual block per matched
// feature. It iterates a dense Gauss-Newton solve, updates the trajectory's operating point, and
// optionally remaps the solution to suppress updates along degenerate directions.
package optimize

import "github.com/pkg/errors"

// Config holds the solver's tunable parameters (spec.md §6, "Solver").
type Config struct {
	OptIters          int
	MaxInnerIters     int
	FTol              float64
	PTol              float64
	DiffTol           float64
	MinResiduals      int
	MaxResidualVal    float64
	RobustParam       float64
	LockFirst         bool
	SolutionRemapping bool
	MinEigen          float64
	SolverThreads     int
}

// Validate checks that every parameter is in a usable range.
func (c Config) Validate() error {
	if c.OptIters <= 0 {
		return errors.New("opt_iters must be positive")
	}
	if c.MaxInnerIters <= 0 {
		return errors.New("max_inner_iters must be positive")
	}
	if c.DiffTol <= 0 {
		return errors.New("diff_tol must be positive")
	}
	if c.MinResiduals < 0 {
		return errors.New("min_residuals cannot be negative")
	}
	if c.MaxResidualVal <= 0 {
		return errors.New("max_residual_val must be positive")
	}
	if c.RobustParam <= 0 {
		return errors.New("robust_param must be positive")
	}
	if c.SolverThreads <= 0 {
		return errors.New("solver_threads must be positive")
	}
	if c.SolutionRemapping && c.MinEigen <= 0 {
		return errors.New("min_eigen must be positive when solution_remapping is enabled")
	}
	return nil
}
