package trajectory

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"github.com/wave-robotics/laserodom/spatialmath"
)

// StartResidual returns the raw motion-prior error anchoring knot 0 to the pose/twist
// extrapolated at the last Rollover, together with its Jacobian with respect to a further
// correction on knot 0. This is the segment-(-1,0) counterpart of PriorResidual, spanning the
// gap between sweeps rather than between two knots of the same sweep (spec §4.G step 1).
func (t *Trajectory) StartResidual() (e *mat.VecDense, d0 *mat.Dense) {
	prevKnot := Knot{Pose: t.invPriorPose.Invert(), Twist: t.priorTwist}
	diff := ComputeKnotDifference(prevKnot, t.Knots[0])
	phiInv := transitionInverse(t.ScanPeriod)

	var transported mat.VecDense
	transported.MulVec(phiInv, diff.CandleMultiplier)
	e = mat.NewVecDense(12, nil)
	e.SubVec(&transported, diff.HatMultiplier)

	relative := spatialmath.Compose(prevKnot.Pose.Invert(), t.Knots[0].Pose)
	xi := relative.ManifoldMinus(spatialmath.NewZeroPose())
	rotPart := r3.Vector{X: xi.AtVec(0), Y: xi.AtVec(1), Z: xi.AtVec(2)}
	jInv := spatialmath.InvLeftJacobianSO3(rotPart)

	ckp1 := mat.NewDense(12, 12, nil)
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

	d0 = new(mat.Dense)
	d0.Mul(phiInv, ckp1)
	return e, d0
}

// StartSqrtInformation returns the Cholesky whitening factor for the start-prior residual,
// using the same process noise as segment 0 but over the full scan period rather than segment
// 0's own duration, since the start prior spans the inter-sweep gap.
func (t *Trajectory) StartSqrtInformation() (*mat.Dense, error) {
	synthetic, err := NewGPSegment(0, t.ScanPeriod, t.Segments[0].Qc)
	if err != nil {
		return nil, err
	}
	return synthetic.SqrtInformation()
}
