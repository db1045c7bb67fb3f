// Package residual implements the point-to-line and point-to-plane cost functions evaluated in
// the tangent space of the interpolated trajectory, each linearized around the current operating
// point via the Jacobian blocks trajectory.Linearize produces.
package residual

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"github.com/wave-robotics/laserodom/spatialmath"
)

// Vec12 is a parameter-block correction for one trajectory knot: a 6-vector tangent-space pose
// increment followed by a 6-vector twist increment.
type Vec12 = *mat.VecDense

// CostFunction is the small capability interface shared by every residual kind: given the
// current trial correction for the two knots it depends on, it returns the whitened residual,
// the Jacobian of that residual with respect to each correction, and the residual's internal
// weight (used for the max_residual_val gating check applied while the normal equations are
// assembled).
type CostFunction interface {
	Evaluate(params []Vec12) (residual []float64, jacobians [2]*mat.Dense, weight float64, ok bool)
}

// linearPoint evaluates the map-frame point shift produced by trial corrections epsilonK,
// epsilonKp1 on top of the base operating point, using the precomputed chain-rule Jacobians.
func linearPoint(basePose spatialmath.Pose, query r3.Vector, jPoseK, jPoseKp1 *mat.Dense, epsilonK, epsilonKp1 Vec12) r3.Vector {
	pointJac := spatialmath.PointJacobian(basePose, query)

	var dK, dKp1, shiftK, shiftKp1 mat.VecDense
	dK.MulVec(jPoseK, epsilonK)
	dKp1.MulVec(jPoseKp1, epsilonKp1)
	shiftK.MulVec(pointJac, &dK)
	shiftKp1.MulVec(pointJac, &dKp1)

	base := basePose.Transform(query)
	return base.Add(r3.Vector{X: shiftK.AtVec(0), Y: shiftK.AtVec(1), Z: shiftK.AtVec(2)}).
		Add(r3.Vector{X: shiftKp1.AtVec(0), Y: shiftKp1.AtVec(1), Z: shiftKp1.AtVec(2)})
}

// pointJacobianChain returns the 3x12 Jacobians of the map-frame point with respect to epsilonK
// and epsilonKp1, i.e. pointJac * jPose for each knot.
func pointJacobianChain(basePose spatialmath.Pose, query r3.Vector, jPoseK, jPoseKp1 *mat.Dense) (jk, jkp1 *mat.Dense) {
	pointJac := spatialmath.PointJacobian(basePose, query)
	jk = new(mat.Dense)
	jk.Mul(pointJac, jPoseK)
	jkp1 = new(mat.Dense)
	jkp1.Mul(pointJac, jPoseKp1)
	return jk, jkp1
}
