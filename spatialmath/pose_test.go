package spatialmath

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
)

func TestManifoldPlusMinusRoundTrip(t *testing.T) {
	for _, c := range []struct {
		TestName string
		Pose     Pose
		Xi       []float64
	}{
		{"identity, zero increment", NewZeroPose(), []float64{0, 0, 0, 0, 0, 0}},
		{"pure translation", NewPose(r3.Vector{X: 1, Y: 2, Z: 3}, quat.Number{Real: 1}), []float64{0, 0, 0, 0.1, -0.2, 0.3}},
		{"pure rotation", NewZeroPose(), []float64{0.1, 0, 0, 0, 0, 0}},
		{"combined", NewPose(r3.Vector{X: 0.5, Y: -0.5, Z: 1}, R3ToR4(r3.Vector{X: 0, Y: 0.2, Z: 0}).ToQuat()), []float64{0.05, -0.1, 0.2, 0.3, 0.1, -0.2}},
	} {
		t.Run(c.TestName, func(t *testing.T) {
			xi := mat.NewVecDense(6, c.Xi)
			p := c.Pose
			p.ManifoldPlus(xi)

			recovered := p.ManifoldMinus(c.Pose)
			for i := 0; i < 6; i++ {
				test.That(t, recovered.AtVec(i), test.ShouldAlmostEqual, c.Xi[i], 1e-6)
			}
		})
	}
}

func TestComposeInvertIsIdentity(t *testing.T) {
	p := NewPose(r3.Vector{X: 1, Y: -2, Z: 0.5}, R3ToR4(r3.Vector{X: 0.3, Y: -0.1, Z: 0.2}).ToQuat())
	identity := Compose(p, p.Invert())

	test.That(t, identity.T.Norm(), test.ShouldAlmostEqual, 0, 1e-9)
	test.That(t, QuaternionAlmostEqual(identity.R, quat.Number{Real: 1}, 1e-9), test.ShouldBeTrue)
}

func TestLogExpMapRoundTrip(t *testing.T) {
	for _, v := range []r3.Vector{
		{X: 0, Y: 0, Z: 0},
		{X: 0.1, Y: 0, Z: 0},
		{X: 0, Y: 0.2, Z: 0.3},
		{X: math.Pi/2 - 0.01, Y: 0, Z: 0},
	} {
		q := ExpMapSO3(v)
		recovered := LogMapSO3(q)
		test.That(t, recovered.X, test.ShouldAlmostEqual, v.X, 1e-6)
		test.That(t, recovered.Y, test.ShouldAlmostEqual, v.Y, 1e-6)
		test.That(t, recovered.Z, test.ShouldAlmostEqual, v.Z, 1e-6)
	}
}

func TestLeftJacobianInverseIsInverse(t *testing.T) {
	phi := r3.Vector{X: 0.2, Y: -0.1, Z: 0.05}
	jac := LeftJacobianSO3(phi)
	jacInv := InvLeftJacobianSO3(phi)

	var product mat.Dense
	product.Mul(jac, jacInv)

	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			expected := 0.0
			if i == j {
				expected = 1.0
			}
			test.That(t, product.At(i, j), test.ShouldAlmostEqual, expected, 1e-6)
		}
	}
}

func TestPoseTransformRotatesThenTranslates(t *testing.T) {
	p := NewPose(r3.Vector{X: 1, Y: 0, Z: 0}, R3ToR4(r3.Vector{X: 0, Y: 0, Z: math.Pi / 2}).ToQuat())
	pt := r3.Vector{X: 1, Y: 0, Z: 0}

	transformed := p.Transform(pt)
	test.That(t, transformed.X, test.ShouldAlmostEqual, 1, 1e-6)
	test.That(t, transformed.Y, test.ShouldAlmostEqual, 1, 1e-6)
	test.That(t, transformed.Z, test.ShouldAlmostEqual, 0, 1e-6)
}
