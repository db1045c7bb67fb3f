package trajectory

import (
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"

	"github.com/wave-robotics/laserodom/spatialmath"
)

func TestComputeKnotDifferenceZeroMotionIsZero(t *testing.T) {
	k := NewKnot()
	kp1 := NewKnot()

	diff := ComputeKnotDifference(k, kp1)
	for i := 0; i < 12; i++ {
		test.That(t, diff.HatMultiplier.AtVec(i), test.ShouldAlmostEqual, 0.0, 1e-9)
		test.That(t, diff.CandleMultiplier.AtVec(i), test.ShouldAlmostEqual, 0.0, 1e-9)
	}
}

// Testable property 6: candle_multiplier[0:6] = log(pose_{k+1} * pose_k^-1).
func TestCandleMultiplierMatchesRelativeLog(t *testing.T) {
	k := NewKnot()
	k.Pose = spatialmath.NewPose(r3.Vector{X: 1, Y: 0, Z: 0}, quat.Number{Real: 1})

	kp1 := NewKnot()
	kp1.Pose = spatialmath.NewPose(r3.Vector{X: 1, Y: 2, Z: 0}, quat.Number{Real: 1})

	diff := ComputeKnotDifference(k, kp1)

	relative := spatialmath.Compose(k.Pose.Invert(), kp1.Pose)
	wantXi := relative.ManifoldMinus(spatialmath.NewZeroPose())

	for i := 0; i < 6; i++ {
		test.That(t, diff.CandleMultiplier.AtVec(i), test.ShouldAlmostEqual, wantXi.AtVec(i), 1e-9)
	}
}

func TestHatMultiplierCarriesKnotKTwist(t *testing.T) {
	k := NewKnot()
	k.Twist = mat.NewVecDense(6, []float64{0.1, 0.2, 0.3, 1, 2, 3})
	kp1 := NewKnot()

	diff := ComputeKnotDifference(k, kp1)
	for i := 0; i < 6; i++ {
		test.That(t, diff.HatMultiplier.AtVec(i), test.ShouldAlmostEqual, 0.0, 1e-9)
	}
	for i := 0; i < 6; i++ {
		test.That(t, diff.HatMultiplier.AtVec(6+i), test.ShouldAlmostEqual, k.Twist.AtVec(i), 1e-9)
	}
}
