package trajectory

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"github.com/wave-robotics/laserodom/spatialmath"
)

// PointResidualLinearization is everything a residual cost function needs to turn a sensor-frame
// query point bracketed by knots (k, k+1) into a map-frame point, plus the derivative of that
// map-frame point's tangent-space perturbation with respect to a further correction on top of
// each knot's current operating point. This is the "chain rule through the interpolation
// matrices" referred to by spec.md's residual description.
type PointResidualLinearization struct {
	// BasePose is pose_k boxplus the base interpolation delta: the trajectory's interpolated
	// pose at tau, evaluated at the current operating point (zero correction).
	BasePose spatialmath.Pose
	// JPoseK, JPoseKp1 are 6x12: the derivative of BasePose's tangent-space perturbation with
	// respect to an additional correction (epsilon_k, epsilon_kp1) applied on top of knots k and
	// k+1 respectively.
	JPoseK, JPoseKp1 *mat.Dense
}

// knotPerturbationJacobians returns the three 12x12 matrices relating an additional correction
// (epsilon_k, epsilon_kp1) on top of the segment k operating point to the resulting shift in the
// hat and candle multipliers: Delta(hat) = elower*epsilon_k, Delta(candle) = ck*epsilon_k +
// ckp1*epsilon_kp1. hat_multiplier's pose block is always zero, so only its twist block moves,
// selected by elower's lower-right identity block. candle_multiplier's xi block shifts by
// -epsilon_k's pose part and +epsilon_kp1's pose part to first order (the relative log map is
// antisymmetric in its two poses near identity); its twist block passes epsilon_kp1's twist part
// through, the angular component via the inverse left Jacobian and the linear component
// unchanged, matching the same simplification used by ComputeKnotDifference.
func (t *Trajectory) knotPerturbationJacobians(k int) (elower, ck, ckp1 *mat.Dense) {
	elower = mat.NewDense(12, 12, nil)
	for i := 6; i < 12; i++ {
		elower.Set(i, i, 1)
	}

	relative := spatialmath.Compose(t.Knots[k].Pose.Invert(), t.Knots[k+1].Pose)
	xi := relative.ManifoldMinus(spatialmath.NewZeroPose())
	rotPart := r3.Vector{X: xi.AtVec(0), Y: xi.AtVec(1), Z: xi.AtVec(2)}
	jInv := spatialmath.InvLeftJacobianSO3(rotPart)

	ck = mat.NewDense(12, 12, nil)
	for i := 0; i < 6; i++ {
		ck.Set(i, i, -1)
	}

	ckp1 = mat.NewDense(12, 12, nil)
	for i := 0; i < 6; i++ {
		ckp1.Set(i, i, 1)
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			ckp1.Set(6+i, 6+j, jInv.At(i, j))
		}
	}
	for i := 0; i < 3; i++ {
		ckp1.Set(9+i, 9+i, 1)
	}

	return elower, ck, ckp1
}

// Linearize builds the residual linearization record for a query bracketed by segment k at
// in-segment time tau.
func (t *Trajectory) Linearize(k int, tau float64) PointResidualLinearization {
	seg := t.Segments[k]
	phi, psi := seg.Interpolate(tau)
	diff := t.Differences[k]

	delta := mat.NewVecDense(12, nil)
	var a, b mat.VecDense
	a.MulVec(phi, diff.HatMultiplier)
	b.MulVec(psi, diff.CandleMultiplier)
	delta.AddVec(&a, &b)

	basePose := t.Knots[k].Pose
	basePose.ManifoldPlus(delta.SliceVec(0, 6).(*mat.VecDense))

	elower, ck, ckp1 := t.knotPerturbationJacobians(k)

	var phiElower, psiCk, psiCkp1, sumK mat.Dense
	phiElower.Mul(phi, elower)
	psiCk.Mul(psi, ck)
	sumK.Add(&phiElower, &psiCk)
	psiCkp1.Mul(psi, ckp1)

	jPoseK := mat.DenseCopyOf(sumK.Slice(0, 6, 0, 12))
	// BasePose is pose_k boxplus delta, so a correction on knot k's own pose also moves it
	// directly (identity to first order), on top of its effect through delta.
	for i := 0; i < 6; i++ {
		jPoseK.Set(i, i, jPoseK.At(i, i)+1)
	}
	jPoseKp1 := mat.DenseCopyOf(psiCkp1.Slice(0, 6, 0, 12))

	return PointResidualLinearization{BasePose: basePose, JPoseK: jPoseK, JPoseKp1: jPoseKp1}
}

// PriorResidual returns the raw (unwhitened) motion-prior error for segment k, e = Phi(dt)^-1 *
// candle_multiplier - hat_multiplier, following the standard GP-STEAM formulation of the
// constant-velocity prior error, together with its Jacobians with respect to a further
// correction (epsilon_k, epsilon_kp1).
func (t *Trajectory) PriorResidual(k int) (e *mat.VecDense, dK, dKp1 *mat.Dense) {
	seg := t.Segments[k]
	diff := t.Differences[k]
	dt := seg.TKp1 - seg.TK
	phiInv := transitionInverse(dt)

	var transported mat.VecDense
	transported.MulVec(phiInv, diff.CandleMultiplier)

	e = mat.NewVecDense(12, nil)
	e.SubVec(&transported, diff.HatMultiplier)

	elower, ck, ckp1 := t.knotPerturbationJacobians(k)

	var phiInvCk, phiInvCkp1 mat.Dense
	phiInvCk.Mul(phiInv, ck)
	phiInvCkp1.Mul(phiInv, ckp1)

	dK = new(mat.Dense)
	dK.Sub(&phiInvCk, elower)
	dKp1 = mat.DenseCopyOf(&phiInvCkp1)

	return e, dK, dKp1
}
