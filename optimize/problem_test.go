package optimize

import (
	"testing"

	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"

	"github.com/wave-robotics/laserodom/trajectory"
)

func testQc() *mat.SymDense {
	data := make([]float64, 36)
	for i := 0; i < 6; i++ {
		data[i*6+i] = 0.1
	}
	return mat.NewSymDense(6, data)
}

func TestBisquareWeightDropsBeyondRobustParam(t *testing.T) {
	test.That(t, bisquareWeight(0, 1), test.ShouldAlmostEqual, 1.0, 1e-9)
	test.That(t, bisquareWeight(1, 1), test.ShouldAlmostEqual, 0.0, 1e-9)
	test.That(t, bisquareWeight(2, 1), test.ShouldAlmostEqual, 0.0, 1e-9)
	test.That(t, bisquareWeight(0.5, 1), test.ShouldBeGreaterThan, 0)
}

func TestAddMotionPriorsPopulatesStartAndSegmentBlocks(t *testing.T) {
	traj, err := trajectory.New(3, 1.0, testQc())
	test.That(t, err, test.ShouldBeNil)

	p := NewProblem(traj, validConfig())
	test.That(t, p.AddMotionPriors(), test.ShouldBeNil)

	// one start prior + (numStates-1) segment priors
	test.That(t, len(p.Blocks), test.ShouldEqual, 1+len(traj.Segments))
}

func TestAssembleNormalEquationsZeroMotionGivesZeroResidual(t *testing.T) {
	traj, err := trajectory.New(2, 1.0, testQc())
	test.That(t, err, test.ShouldBeNil)

	p := NewProblem(traj, validConfig())
	test.That(t, p.AddMotionPriors(), test.ShouldBeNil)

	deltas := make([]*mat.VecDense, len(traj.Knots))
	for i := range deltas {
		deltas[i] = mat.NewVecDense(12, nil)
	}

	j, r, kept, err := p.assembleNormalEquations(deltas)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, kept, test.ShouldEqual, len(p.Blocks))
	rows, _ := j.Dims()
	test.That(t, rows, test.ShouldEqual, r.Len())
	for i := 0; i < r.Len(); i++ {
		test.That(t, r.AtVec(i), test.ShouldAlmostEqual, 0.0, 1e-9)
	}
}
