package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
)

// Pose is a rigid transform in SE(3): a translation and a rotation, composed as
// p_world = R*p_local + T. It is the representation carried at every trajectory knot.
type Pose struct {
	T r3.Vector
	R quat.Number
}

// NewZeroPose returns the identity transform.
func NewZeroPose() Pose {
	return Pose{T: r3.Vector{}, R: quat.Number{Real: 1}}
}

// NewPose builds a pose from a translation and an orientation quaternion. The quaternion need not
// be normalized; the caller is expected to pass a normalized one, as renormalizing on every
// construction would mask drift that should surface elsewhere.
func NewPose(t r3.Vector, r quat.Number) Pose {
	return Pose{T: t, R: r}
}

// Point returns the pose's translation component.
func (p Pose) Point() r3.Vector {
	return p.T
}

// Orientation returns the pose's rotation component.
func (p Pose) Orientation() quat.Number {
	return p.R
}

// rotate applies the rotation quaternion q to the vector v, via the standard q*v*conj(q)
// sandwich product. The gonum quat package deliberately omits this helper (see its own
// quat_example_test.go), so callers are expected to compose it from Mul and Conj.
func rotate(q, v quat.Number) quat.Number {
	return quat.Mul(quat.Mul(q, v), quat.Conj(q))
}

// Transform applies the pose to a point expressed in the pose's local frame, returning the point
// in the parent frame.
func (p Pose) Transform(pt r3.Vector) r3.Vector {
	rotated := rotate(p.R, quat.Number{Imag: pt.X, Jmag: pt.Y, Kmag: pt.Z})
	return r3.Vector{X: rotated.Imag, Y: rotated.Jmag, Z: rotated.Kmag}.Add(p.T)
}

// Compose returns p, followed by q: the pose that first applies p's transform and then q's, i.e.
// q * p in matrix terms.
func Compose(p, q Pose) Pose {
	rotated := rotate(q.R, quat.Number{Imag: p.T.X, Jmag: p.T.Y, Kmag: p.T.Z})
	return Pose{
		T: r3.Vector{X: rotated.Imag, Y: rotated.Jmag, Z: rotated.Kmag}.Add(q.T),
		R: quat.Mul(q.R, p.R),
	}
}

// Invert returns the pose such that Compose(p, p.Invert()) is the identity.
func (p Pose) Invert() Pose {
	rInv := quat.Conj(p.R)
	negT := rotate(rInv, quat.Number{Imag: -p.T.X, Jmag: -p.T.Y, Kmag: -p.T.Z})
	return Pose{T: r3.Vector{X: negT.Imag, Y: negT.Jmag, Z: negT.Kmag}, R: rInv}
}

// ManifoldPlus applies the tangent-space increment xi = [rotation; translation] (the ⊞ operator)
// to p in place, following the SE(3) retraction used throughout the trajectory solve: the rotation
// increment is applied via the exponential map and the translation increment is rotated into the
// parent frame before being added.
func (p *Pose) ManifoldPlus(xi *mat.VecDense) {
	rotVec := r3.Vector{X: xi.AtVec(0), Y: xi.AtVec(1), Z: xi.AtVec(2)}
	transVec := r3.Vector{X: xi.AtVec(3), Y: xi.AtVec(4), Z: xi.AtVec(5)}

	dQ := ExpMapSO3(rotVec)
	newR := quat.Mul(p.R, dQ)

	rotatedTrans := rotate(p.R, quat.Number{Imag: transVec.X, Jmag: transVec.Y, Kmag: transVec.Z})
	newT := p.T.Add(r3.Vector{X: rotatedTrans.Imag, Y: rotatedTrans.Jmag, Z: rotatedTrans.Kmag})

	p.R = newR
	p.T = newT
}

// ManifoldMinus returns the tangent-space difference (p ⊟ other): the six-vector xi such that
// other.ManifoldPlus(xi) reproduces p. This is the inverse of ManifoldPlus and is used both to
// seed GP knot differences and to compute the prior residual between consecutive poses.
func (p Pose) ManifoldMinus(other Pose) *mat.VecDense {
	dR := quat.Mul(quat.Conj(other.R), p.R)
	rotVec := LogMapSO3(dR)

	dT := p.T.Sub(other.T)
	localT := rotate(quat.Conj(other.R), quat.Number{Imag: dT.X, Jmag: dT.Y, Kmag: dT.Z})

	xi := mat.NewVecDense(6, nil)
	xi.SetVec(0, rotVec.X)
	xi.SetVec(1, rotVec.Y)
	xi.SetVec(2, rotVec.Z)
	xi.SetVec(3, localT.Imag)
	xi.SetVec(4, localT.Jmag)
	xi.SetVec(5, localT.Kmag)
	return xi
}

// ExpMapSO3 is the SO(3) exponential map: it sends a rotation vector (axis scaled by angle) to
// its corresponding unit quaternion.
func ExpMapSO3(rotVec r3.Vector) quat.Number {
	r4 := R3ToR4(rotVec)
	return r4.ToQuat()
}

// LogMapSO3 is the SO(3) logarithm map: the inverse of ExpMapSO3, returning the rotation vector
// corresponding to a unit quaternion.
func LogMapSO3(q quat.Number) r3.Vector {
	// Guard the double-cover: a quaternion and its negation represent the same rotation, but only
	// one of the two yields a rotation vector with theta in [0, pi].
	if q.Real < 0 {
		q = quat.Scale(-1, q)
	}
	normImag := math.Sqrt(q.Imag*q.Imag + q.Jmag*q.Jmag + q.Kmag*q.Kmag)
	if normImag < 1e-12 {
		return r3.Vector{}
	}
	theta := 2 * math.Atan2(normImag, q.Real)
	scale := theta / normImag
	return r3.Vector{X: q.Imag * scale, Y: q.Jmag * scale, Z: q.Kmag * scale}
}

// skewSymmetric returns the 3x3 cross-product matrix of v, such that skewSymmetric(v)*x == v.Cross(x).
func skewSymmetric(v r3.Vector) *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		0, -v.Z, v.Y,
		v.Z, 0, -v.X,
		-v.Y, v.X, 0,
	})
}

// LeftJacobianSO3 returns the left Jacobian of SO(3) at rotation vector phi, used to build the GP
// knot-difference multipliers relating a pose increment to its corresponding velocity increment.
func LeftJacobianSO3(phi r3.Vector) *mat.Dense {
	theta := phi.Norm()
	skew := skewSymmetric(phi)

	jac := mat.NewDense(3, 3, nil)
	jac.Add(eye3(), jac) // jac = I

	if theta < 1e-8 {
		var skewSq mat.Dense
		skewSq.Mul(skew, skew)
		jac.Add(jac, scaled(skew, 0.5))
		jac.Add(jac, scaled(&skewSq, 1.0/6.0))
		return jac
	}

	var skewSq mat.Dense
	skewSq.Mul(skew, skew)

	a := (1 - math.Cos(theta)) / (theta * theta)
	b := (theta - math.Sin(theta)) / (theta * theta * theta)

	jac.Add(jac, scaled(skew, a))
	jac.Add(jac, scaled(&skewSq, b))
	return jac
}

// InvLeftJacobianSO3 returns the inverse of LeftJacobianSO3, used when converting a pose
// difference into the velocity term of a GP knot's candle multiplier
// (SE3ApproxInvLeftJacobian in the original solver).
func InvLeftJacobianSO3(phi r3.Vector) *mat.Dense {
	theta := phi.Norm()
	skew := skewSymmetric(phi)

	jacInv := mat.NewDense(3, 3, nil)
	jacInv.Add(eye3(), jacInv)

	if theta < 1e-8 {
		jacInv.Add(jacInv, scaled(skew, -0.5))
		return jacInv
	}

	var skewSq mat.Dense
	skewSq.Mul(skew, skew)

	coeff := 1.0/(theta*theta) - (1+math.Cos(theta))/(2*theta*math.Sin(theta))

	jacInv.Add(jacInv, scaled(skew, -0.5))
	jacInv.Add(jacInv, scaled(&skewSq, coeff))
	return jacInv
}

func eye3() *mat.Dense {
	m := mat.NewDense(3, 3, nil)
	m.Set(0, 0, 1)
	m.Set(1, 1, 1)
	m.Set(2, 2, 1)
	return m
}

func scaled(m *mat.Dense, s float64) *mat.Dense {
	var out mat.Dense
	out.Scale(s, m)
	return &out
}

// PoseAlmostEqual reports whether two poses are within tol of each other in both translation and
// orientation.
func PoseAlmostEqual(p, q Pose, tol float64) bool {
	if p.T.Sub(q.T).Norm() > tol {
		return false
	}
	return QuaternionAlmostEqual(p.R, q.R, tol)
}

// QuaternionAlmostEqual reports whether two unit quaternions represent the same rotation within
// tol, accounting for the double cover (q and -q are the same rotation).
func QuaternionAlmostEqual(q1, q2 quat.Number, tol float64) bool {
	diff := quat.Abs(quat.Sub(q1, q2))
	diffNeg := quat.Abs(quat.Add(q1, q2))
	return diff < tol || diffNeg < tol
}

// RotationMatrix returns the 3x3 rotation matrix equivalent to q, built by rotating each
// standard basis vector.
func RotationMatrix(q quat.Number) *mat.Dense {
	basis := []r3.Vector{{X: 1}, {Y: 1}, {Z: 1}}
	m := mat.NewDense(3, 3, nil)
	for col, b := range basis {
		rotated := rotate(q, quat.Number{Imag: b.X, Jmag: b.Y, Kmag: b.Z})
		m.Set(0, col, rotated.Imag)
		m.Set(1, col, rotated.Jmag)
		m.Set(2, col, rotated.Kmag)
	}
	return m
}

// PointJacobian returns the 3x6 derivative of pose.Transform(pLocal) with respect to a further
// tangent-space correction applied to pose via ManifoldPlus, evaluated at zero correction: the
// first three columns are -R*skew(pLocal) (the rotation block) and the last three are R (the
// translation block), matching ManifoldPlus's right/body-frame perturbation convention.
func PointJacobian(pose Pose, pLocal r3.Vector) *mat.Dense {
	r := RotationMatrix(pose.R)
	skew := skewSymmetric(pLocal)

	var rotBlock mat.Dense
	rotBlock.Mul(r, skew)
	rotBlock.Scale(-1, &rotBlock)

	j := mat.NewDense(3, 6, nil)
	for i := 0; i < 3; i++ {
		for k := 0; k < 3; k++ {
			j.Set(i, k, rotBlock.At(i, k))
			j.Set(i, 3+k, r.At(i, k))
		}
	}
	return j
}
