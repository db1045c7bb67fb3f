package residual

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"github.com/wave-robotics/laserodom/spatialmath"
)

// PointToLine is the SE3PointToLineGP cost: a query point is matched against a line defined by
// two map-frame neighbors A, B, with the residual taken in the plane perpendicular to the line
// direction.
type PointToLine struct {
	BasePose         spatialmath.Pose
	Query            r3.Vector
	A, B             r3.Vector
	JPoseK, JPoseKp1 *mat.Dense
	Whiten           *mat.Dense // 3x3 whitening matrix (sqrt inverse noise covariance)
	Weight           float64
}

// Evaluate implements CostFunction.
func (c *PointToLine) Evaluate(params []Vec12) ([]float64, [2]*mat.Dense, float64, bool) {
	dir := c.B.Sub(c.A)
	lineLen := dir.Norm()
	if lineLen < 1e-9 {
		return nil, [2]*mat.Dense{}, 0, false
	}
	u := dir.Normalize()

	p := linearPoint(c.BasePose, c.Query, c.JPoseK, c.JPoseKp1, params[0], params[1])
	d := p.Sub(c.A)
	perp := d.Sub(u.Mul(d.Dot(u)))

	whitened := whitenVec3(c.Whiten, perp)

	proj := projectionOntoPerp(u)
	jacK3, jacKp13 := pointJacobianChain(c.BasePose, c.Query, c.JPoseK, c.JPoseKp1)

	var projJacK, projJacKp1, whitenedJacK, whitenedJacKp1 mat.Dense
	projJacK.Mul(proj, jacK3)
	projJacKp1.Mul(proj, jacKp13)
	whitenedJacK.Mul(c.Whiten, &projJacK)
	whitenedJacKp1.Mul(c.Whiten, &projJacKp1)

	return []float64{whitened.AtVec(0), whitened.AtVec(1), whitened.AtVec(2)},
		[2]*mat.Dense{&whitenedJacK, &whitenedJacKp1}, c.Weight, true
}

// projectionOntoPerp returns I - u*u^T for a unit vector u: the projector onto the plane
// perpendicular to the line direction.
func projectionOntoPerp(u r3.Vector) *mat.Dense {
	m := mat.NewDense(3, 3, nil)
	uv := []float64{u.X, u.Y, u.Z}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			v := -uv[i] * uv[j]
			if i == j {
				v += 1
			}
			m.Set(i, j, v)
		}
	}
	return m
}

func whitenVec3(whiten *mat.Dense, v r3.Vector) *mat.VecDense {
	in := mat.NewVecDense(3, []float64{v.X, v.Y, v.Z})
	out := mat.NewVecDense(3, nil)
	out.MulVec(whiten, in)
	return out
}
