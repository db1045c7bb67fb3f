package optimize

import (
	"context"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/mat"
)

// ErrInsufficientConstraints is returned when a sweep's residual blocks don't clear
// min_residuals; the caller's trajectory has already been reset to identity (spec §4.G's
// "Insufficient constraints" path).
var ErrInsufficientConstraints = errors.New("insufficient constraints to solve trajectory")

// Result reports the outcome of one Solve call.
type Result struct {
	Converged  bool
	OuterIters int
	Residuals  int
}

// normalEquations builds A = J^T*J and b = J^T*(-r) from a stacked, already-whitened residual
// block.
func normalEquations(j *mat.Dense, r *mat.VecDense) (*mat.SymDense, *mat.VecDense) {
	_, cols := j.Dims()
	var jtj mat.Dense
	jtj.Mul(j.T(), j)

	sym := mat.NewSymDense(cols, nil)
	for i := 0; i < cols; i++ {
		for k := i; k < cols; k++ {
			sym.SetSym(i, k, jtj.At(i, k))
		}
	}

	var negR mat.VecDense
	negR.ScaleVec(-1, r)
	var rhs mat.VecDense
	rhs.MulVec(j.T(), &negR)
	return sym, &rhs
}

// solveNormalEquations solves A*delta = b by eigendecomposing A and inverting along each
// eigendirection whose eigenvalue clears threshold, zeroing the rest. When remap is false,
// threshold is a numerical floor only, just large enough to keep a near-singular direction from
// blowing up the step; when remap is true it is min_eigen, and this is exactly spec §4.G step 6's
// solution remapping: projecting the correction into the eigenspace with sufficient information
// and dropping the rest.
func solveNormalEquations(a *mat.SymDense, b *mat.VecDense, remap bool, minEigen float64) (*mat.VecDense, error) {
	var eig mat.EigenSym
	if ok := eig.Factorize(a, true); !ok {
		return nil, errors.New("normal equations eigendecomposition failed")
	}
	values := eig.Values(nil)
	var vectors mat.Dense
	eig.VectorsTo(&vectors)

	threshold := 1e-12
	if remap {
		threshold = minEigen
	}

	n := len(values)
	var vtB mat.VecDense
	vtB.MulVec(vectors.T(), b)

	scaled := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		if values[i] >= threshold {
			scaled.SetVec(i, vtB.AtVec(i)/values[i])
		}
	}

	delta := mat.NewVecDense(n, nil)
	delta.MulVec(&vectors, scaled)
	return delta, nil
}

// Solve runs up to opt_iters outer Gauss-Newton iterations: each assembles the normal equations
// from the current trial correction, solves for a step, and accumulates it; after max_inner_iters
// (or early ptol convergence) the accumulated correction is applied to the trajectory's operating
// point and the differences are recomputed. The outer loop stops once the last knot's pose moves
// by less than diff_tol, matching spec §4.G steps 2-7.
func (p *Problem) Solve(ctx context.Context) (Result, error) {
	numKnots := len(p.Traj.Knots)
	deltas := make([]*mat.VecDense, numKnots)
	for i := range deltas {
		deltas[i] = mat.NewVecDense(12, nil)
	}

	var result Result
	for outer := 0; outer < p.Config.OptIters; outer++ {
		result.OuterIters = outer + 1
		lastPoseBefore := p.Traj.Knots[numKnots-1].Pose

		var kept int
		prevCost := -1.0
		for inner := 0; inner < p.Config.MaxInnerIters; inner++ {
			select {
			case <-ctx.Done():
				return result, ctx.Err()
			default:
			}

			j, r, n, err := p.assembleNormalEquations(deltas)
			if err != nil {
				if outer == 0 && inner == 0 {
					p.Traj.ResetToIdentity()
					return Result{}, ErrInsufficientConstraints
				}
				break
			}
			kept = n
			if kept < p.Config.MinResiduals {
				p.Traj.ResetToIdentity()
				return Result{}, ErrInsufficientConstraints
			}

			cost := 0.5 * vecDenseNorm(r) * vecDenseNorm(r)
			if prevCost >= 0 && prevCost > 0 && cost <= prevCost && scalar.EqualWithinRel(cost, prevCost, p.Config.FTol) {
				break
			}
			prevCost = cost

			sym, rhs := normalEquations(j, r)
			step, err := solveNormalEquations(sym, rhs, p.Config.SolutionRemapping, p.Config.MinEigen)
			if err != nil {
				break
			}

			for k := 0; k < numKnots; k++ {
				if p.Config.LockFirst && k == 0 {
					continue
				}
				block := step.SliceVec(k*12, k*12+12).(*mat.VecDense)
				deltas[k].AddVec(deltas[k], block)
			}

			if scalar.EqualWithinAbs(vecDenseNorm(step), 0, p.Config.PTol) {
				break
			}
		}
		result.Residuals = kept

		for k := 0; k < numKnots; k++ {
			if p.Config.LockFirst && k == 0 {
				deltas[k] = mat.NewVecDense(12, nil)
				continue
			}
			p.Traj.ApplyCorrection(k, deltas[k])
			deltas[k] = mat.NewVecDense(12, nil)
		}
		p.Traj.RecomputeDifferences()

		diff := p.Traj.Knots[numKnots-1].Pose.ManifoldMinus(lastPoseBefore)
		if scalar.EqualWithinAbs(vecDenseNorm(diff), 0, p.Config.DiffTol) {
			result.Converged = true
			break
		}
	}

	return result, nil
}
