package residual

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"github.com/wave-robotics/laserodom/spatialmath"
)

// PointToPlane is the SE3PointToPlaneGP cost: a query point is matched against a plane defined by
// its unit normal and one anchor point on the plane.
type PointToPlane struct {
	BasePose         spatialmath.Pose
	Query            r3.Vector
	Anchor           r3.Vector
	Normal           r3.Vector // must be unit length
	InvSigma         float64   // 1/sigma scale applied to the residual and its Jacobians, supplied by the caller
	JPoseK, JPoseKp1 *mat.Dense
	Weight           float64
}

// Evaluate implements CostFunction.
func (c *PointToPlane) Evaluate(params []Vec12) ([]float64, [2]*mat.Dense, float64, bool) {
	p := linearPoint(c.BasePose, c.Query, c.JPoseK, c.JPoseKp1, params[0], params[1])
	r := c.Normal.Dot(p.Sub(c.Anchor)) * c.InvSigma

	jacK3, jacKp13 := pointJacobianChain(c.BasePose, c.Query, c.JPoseK, c.JPoseKp1)
	nRow := mat.NewDense(1, 3, []float64{c.Normal.X, c.Normal.Y, c.Normal.Z})

	var jacK, jacKp1 mat.Dense
	jacK.Mul(nRow, jacK3)
	jacK.Scale(c.InvSigma, &jacK)
	jacKp1.Mul(nRow, jacKp13)
	jacKp1.Scale(c.InvSigma, &jacKp1)

	return []float64{r}, [2]*mat.Dense{&jacK, &jacKp1}, c.Weight, true
}

// PlaneFromThreePoints returns the unit normal of the plane through a, b, c, and false if the
// three points are (near-)collinear and no plane normal can be extracted.
func PlaneFromThreePoints(a, b, c r3.Vector) (r3.Vector, bool) {
	n := b.Sub(a).Cross(c.Sub(a))
	norm := n.Norm()
	if norm < 1e-9 {
		return r3.Vector{}, false
	}
	return n.Mul(1 / norm), true
}

// DegenerateLineToPlane builds a PointToPlane in place of a PointToLine when treat_lines_as_planes
// is set: the two line neighbors plus the sensor origin (in map frame) serve as the plane's three
// anchor points, stabilizing tracking in long straight corridors where a line constraint alone is
// under-determined.
func DegenerateLineToPlane(basePose spatialmath.Pose, query, a, b, sensorOriginMap r3.Vector, invSigma float64, jPoseK, jPoseKp1 *mat.Dense, weight float64) (*PointToPlane, bool) {
	normal, ok := PlaneFromThreePoints(a, b, sensorOriginMap)
	if !ok {
		return nil, false
	}
	return &PointToPlane{
		BasePose: basePose,
		Query:    query,
		Anchor:   a,
		Normal:   normal,
		InvSigma: invSigma,
		JPoseK:   jPoseK,
		JPoseKp1: jPoseKp1,
		Weight:   weight,
	}, true
}
