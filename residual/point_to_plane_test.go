package residual

import (
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"

	"github.com/wave-robotics/laserodom/spatialmath"
)

func identityPoseJacobians() (jPoseK, jPoseKp1 *mat.Dense) {
	jPoseK = mat.NewDense(6, 12, nil)
	for i := 0; i < 6; i++ {
		jPoseK.Set(i, i, 1)
	}
	jPoseKp1 = mat.NewDense(6, 12, nil)
	return jPoseK, jPoseKp1
}

func TestPointToPlaneResidualAtOperatingPoint(t *testing.T) {
	pose := spatialmath.NewZeroPose()
	jPoseK, jPoseKp1 := identityPoseJacobians()

	c := &PointToPlane{
		BasePose: pose,
		Query:    r3.Vector{X: 1},
		Anchor:   r3.Vector{},
		Normal:   r3.Vector{X: 1},
		InvSigma: 1,
		JPoseK:   jPoseK,
		JPoseKp1: jPoseKp1,
		Weight:   1,
	}

	zero := mat.NewVecDense(12, nil)
	res, jacs, weight, ok := c.Evaluate([]Vec12{zero, zero})
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, weight, test.ShouldAlmostEqual, 1.0, 1e-9)
	test.That(t, res[0], test.ShouldAlmostEqual, 1.0, 1e-9) // query at (1,0,0), plane through origin normal x
	test.That(t, jacs[0].At(0, 3), test.ShouldAlmostEqual, 1.0, 1e-9)
}

func TestPointToPlaneResidualRespondsToCorrection(t *testing.T) {
	pose := spatialmath.NewZeroPose()
	jPoseK, jPoseKp1 := identityPoseJacobians()

	c := &PointToPlane{
		BasePose: pose,
		Query:    r3.Vector{X: 1},
		Anchor:   r3.Vector{},
		Normal:   r3.Vector{X: 1},
		InvSigma: 1,
		JPoseK:   jPoseK,
		JPoseKp1: jPoseKp1,
		Weight:   1,
	}

	epsilonK := mat.NewVecDense(12, nil)
	epsilonK.SetVec(3, 1) // +1 translation along x on knot k
	zero := mat.NewVecDense(12, nil)

	res, _, _, ok := c.Evaluate([]Vec12{epsilonK, zero})
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, res[0], test.ShouldAlmostEqual, 2.0, 1e-9)
}

func TestPlaneFromThreePointsRejectsCollinear(t *testing.T) {
	_, ok := PlaneFromThreePoints(r3.Vector{}, r3.Vector{X: 1}, r3.Vector{X: 2})
	test.That(t, ok, test.ShouldBeFalse)
}

func TestPlaneFromThreePointsUnitNormal(t *testing.T) {
	n, ok := PlaneFromThreePoints(r3.Vector{}, r3.Vector{X: 1}, r3.Vector{Y: 1})
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, n.Norm(), test.ShouldAlmostEqual, 1.0, 1e-9)
}
