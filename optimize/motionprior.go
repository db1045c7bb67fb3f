package optimize

import (
	"gonum.org/v1/gonum/mat"

	"github.com/wave-robotics/laserodom/residual"
)

// MotionPrior wraps a trajectory segment's constant-velocity GP error as a residual.CostFunction:
// e(epsilonK, epsilonKp1) = sqrtInfo * (e0 + dK*epsilonK + dKp1*epsilonKp1), linear in the trial
// correction since e0/dK/dKp1 are all evaluated once at the current operating point.
type MotionPrior struct {
	E0       *mat.VecDense // raw error at zero correction
	DK, DKp1 *mat.Dense    // 12x12 Jacobians
	SqrtInfo *mat.Dense    // 12x12 whitening (Cholesky factor of the prior inverse covariance)
}

// Evaluate implements residual.CostFunction.
func (m *MotionPrior) Evaluate(params []residual.Vec12) ([]float64, [2]*mat.Dense, float64, bool) {
	var shiftK, shiftKp1, raw mat.VecDense
	shiftK.MulVec(m.DK, params[0])
	shiftKp1.MulVec(m.DKp1, params[1])
	raw.AddVec(m.E0, &shiftK)
	raw.AddVec(&raw, &shiftKp1)

	var whitened mat.VecDense
	whitened.MulVec(m.SqrtInfo, &raw)

	var jacK, jacKp1 mat.Dense
	jacK.Mul(m.SqrtInfo, m.DK)
	jacKp1.Mul(m.SqrtInfo, m.DKp1)

	out := make([]float64, 12)
	for i := 0; i < 12; i++ {
		out[i] = whitened.AtVec(i)
	}
	return out, [2]*mat.Dense{&jacK, &jacKp1}, 1, true
}

// StartPrior wraps the inter-sweep motion-prior error anchoring knot 0 to the previous sweep's
// extrapolated pose/twist. It depends only on knot 0's correction; the second slot of the
// CostFunction interface is filled with a zero Jacobian against the same knot so the block
// assembler can treat it uniformly with two-knot blocks.
type StartPrior struct {
	E0       *mat.VecDense
	D0       *mat.Dense
	SqrtInfo *mat.Dense
}

// Evaluate implements residual.CostFunction. params[0] and params[1] are both knot 0's trial
// correction; only params[0] is used.
func (s *StartPrior) Evaluate(params []residual.Vec12) ([]float64, [2]*mat.Dense, float64, bool) {
	var shift, raw mat.VecDense
	shift.MulVec(s.D0, params[0])
	raw.AddVec(s.E0, &shift)

	var whitened mat.VecDense
	whitened.MulVec(s.SqrtInfo, &raw)

	var jac0 mat.Dense
	jac0.Mul(s.SqrtInfo, s.D0)
	zero := mat.NewDense(12, 12, nil)

	out := make([]float64, 12)
	for i := 0; i < 12; i++ {
		out[i] = whitened.AtVec(i)
	}
	return out, [2]*mat.Dense{&jac0, zero}, 1, true
}
