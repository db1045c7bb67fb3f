package trajectory

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/wave-robotics/laserodom/spatialmath"
)

// Trajectory owns the fixed-size set of knots and GP segments covering one sweep. It is the sole
// owner of knot state; the optimizer borrows it read-only during residual assembly and mutably
// only during the operating-point update (spec §3's ownership rule).
type Trajectory struct {
	Knots       []Knot
	Segments    []*GPSegment
	Differences []KnotDifference
	Stamps      []float64
	ScanPeriod  float64

	priorTwist   *mat.VecDense
	invPriorPose spatialmath.Pose
}

// New builds a trajectory with numStates knots evenly spaced over [0, scanPeriod], sharing one
// process noise Qc across every segment. num_trajectory_states < 2 is a fatal configuration
// error (spec §7).
func New(numStates int, scanPeriod float64, qc *mat.SymDense) (*Trajectory, error) {
	if numStates < 2 {
		return nil, errors.New("number of trajectory states must be at least 2")
	}

	knots := make([]Knot, numStates)
	stamps := make([]float64, numStates)
	step := scanPeriod / float64(numStates-1)
	for i := range knots {
		knots[i] = NewKnot()
		stamps[i] = float64(i) * step
	}

	segments := make([]*GPSegment, numStates-1)
	for i := 0; i < numStates-1; i++ {
		seg, err := NewGPSegment(stamps[i], stamps[i+1], qc)
		if err != nil {
			return nil, err
		}
		segments[i] = seg
	}

	t := &Trajectory{
		Knots:        knots,
		Segments:     segments,
		Stamps:       stamps,
		ScanPeriod:   scanPeriod,
		priorTwist:   mat.NewVecDense(6, nil),
		invPriorPose: spatialmath.NewZeroPose(),
	}
	t.RecomputeDifferences()
	return t, nil
}

// RecomputeDifferences rebuilds every knot pair's hat/candle multipliers from the current
// operating point. Called after every operating-point update (spec §4.G step 5).
func (t *Trajectory) RecomputeDifferences() {
	t.Differences = make([]KnotDifference, len(t.Segments))
	for i := range t.Segments {
		t.Differences[i] = ComputeKnotDifference(t.Knots[i], t.Knots[i+1])
	}
}

// TransformIndices returns the bracketing knot pair (k, k+1) and the query time tau, in seconds
// from the start of the sweep, for a point acquired at the given tick, matching the original's getTransformIndices.
func (t *Trajectory) TransformIndices(tick, maxTicks, nWindow uint32, scanPeriod float64) (k, kp1 int, tau float64) {
	numStates := len(t.Knots)
	k = int((uint64(tick) * uint64(numStates-1)) / uint64(maxTicks) / uint64(nWindow))
	if k > numStates-2 {
		k = numStates - 2
	}
	kp1 = k + 1
	tau = (float64(tick) * scanPeriod) / (float64(maxTicks) * float64(nWindow))
	return k, kp1, tau
}

// TransformToMap maps a sensor-frame point acquired at tick to the map frame, using the
// operating point and cached knot differences of bracket k, per spec §4.D's interpolation
// formula.
func (t *Trajectory) TransformToMap(pt r3.Vector, k, kp1 int, tau float64) r3.Vector {
	phi, psi := t.Segments[k].Interpolate(tau)
	diff := t.Differences[k]

	delta := mat.NewVecDense(12, nil)
	var a, b mat.VecDense
	a.MulVec(phi, diff.HatMultiplier)
	b.MulVec(psi, diff.CandleMultiplier)
	delta.AddVec(&a, &b)

	pose := t.Knots[k].Pose
	pose.ManifoldPlus(delta.SliceVec(0, 6).(*mat.VecDense))
	return pose.Transform(pt)
}

// ApplyCorrection applies a Vec12 parameter-block correction to knot k's operating point (spec
// §4.G step 5): pose_k <- pose_k boxplus delta[0:6], twist_k <- twist_k + delta[6:12].
func (t *Trajectory) ApplyCorrection(k int, delta *mat.VecDense) {
	poseDelta := delta.SliceVec(0, 6).(*mat.VecDense)
	t.Knots[k].Pose.ManifoldPlus(poseDelta)
	for i := 0; i < 6; i++ {
		t.Knots[k].Twist.SetVec(i, t.Knots[k].Twist.AtVec(i)+delta.AtVec(6+i))
	}
}

// Rollover performs the sweep-boundary motion-extrapolation reset (spec §4.D): the new first
// knot equals the old last knot's pose; each subsequent knot is the previous one composed with
// dt*twist_last on the manifold; the last twist is carried forward as the prior twist, and the
// inverse of the prior pose is cached.
func (t *Trajectory) Rollover() {
	last := t.Knots[len(t.Knots)-1]
	t.priorTwist = cloneVec(last.Twist)
	t.invPriorPose = last.Pose.Invert()

	t.Knots[0] = Knot{Pose: last.Pose, Twist: cloneVec(last.Twist)}
	for i := 1; i < len(t.Knots); i++ {
		dt := t.Stamps[i] - t.Stamps[i-1]
		step := mat.NewVecDense(6, nil)
		step.ScaleVec(dt, last.Twist)

		pose := t.Knots[i-1].Pose
		pose.ManifoldPlus(step)
		t.Knots[i] = Knot{Pose: pose, Twist: cloneVec(last.Twist)}
	}
	t.RecomputeDifferences()
}

// PriorTwist and InvPriorPose expose the state cached at the last rollover, the same state
// StartResidual reads to linearize the prior cost at knot 0 (spec §4.G step 1).
func (t *Trajectory) PriorTwist() *mat.VecDense      { return t.priorTwist }
func (t *Trajectory) InvPriorPose() spatialmath.Pose { return t.invPriorPose }

// ResetToIdentity resets every knot to the identity pose and zero twist, used when the optimizer
// reports insufficient constraints (spec §4.G "Insufficient constraints").
func (t *Trajectory) ResetToIdentity() {
	for i := range t.Knots {
		t.Knots[i] = NewKnot()
	}
	t.priorTwist = mat.NewVecDense(6, nil)
	t.invPriorPose = spatialmath.NewZeroPose()
	t.RecomputeDifferences()
}

func cloneVec(v *mat.VecDense) *mat.VecDense {
	n := v.Len()
	out := mat.NewVecDense(n, nil)
	out.CopyVec(v)
	return out
}
