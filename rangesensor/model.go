package rangesensor

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Model converts a measured range and ring index into the 3x3 Euclidean covariance of that
// measurement, following the original's RangeSensor::getEuclideanCovariance: range noise and
// per-ring angular noise are propagated through the spherical-to-Cartesian Jacobian rather than
// treated as isotropic, since a rotating LiDAR's azimuthal and elevation uncertainty differ.
type Model struct {
	rangeSigma   float64
	azimuthSigma float64
	elevations   []float64 // per-ring elevation angle, radians
	elevSigma    float64
}

// NewModel builds a range-sensor noise model. elevations gives the fixed elevation angle (radians)
// of each ring, indexed by ring number.
func NewModel(rangeSigma, azimuthSigma, elevationSigma float64, elevations []float64) (*Model, error) {
	if rangeSigma <= 0 || azimuthSigma <= 0 || elevationSigma <= 0 {
		return nil, errors.New("range sensor noise parameters must be positive")
	}
	if len(elevations) == 0 {
		return nil, errors.New("range sensor model requires at least one ring elevation")
	}
	return &Model{
		rangeSigma:   rangeSigma,
		azimuthSigma: azimuthSigma,
		elevations:   elevations,
		elevSigma:    elevationSigma,
	}, nil
}

// EuclideanCovariance returns the 3x3 covariance of a point measured at the given range on the
// given ring, propagating independent range/azimuth/elevation noise through the spherical frame's
// Jacobian evaluated at that range and ring elevation. azimuth is the point's azimuth in radians.
func (m *Model) EuclideanCovariance(rangeM, azimuth float64, ring int) (*mat.SymDense, error) {
	if ring < 0 || ring >= len(m.elevations) {
		return nil, errors.Errorf("ring %d out of bounds for range sensor model with %d rings", ring, len(m.elevations))
	}
	elev := m.elevations[ring]

	cosEl, sinEl := math.Cos(elev), math.Sin(elev)
	cosAz, sinAz := math.Cos(azimuth), math.Sin(azimuth)

	// Jacobian of (x,y,z) = r*cos(el)*cos(az), r*cos(el)*sin(az), r*sin(el) with respect to
	// (range, azimuth, elevation).
	jac := mat.NewDense(3, 3, []float64{
		cosEl * cosAz, -rangeM * cosEl * sinAz, -rangeM * sinEl * cosAz,
		cosEl * sinAz, rangeM * cosEl * cosAz, -rangeM * sinEl * sinAz,
		sinEl, 0, rangeM * cosEl,
	})

	sphericalCov := mat.NewDiagDense(3, []float64{
		m.rangeSigma * m.rangeSigma,
		m.azimuthSigma * m.azimuthSigma,
		m.elevSigma * m.elevSigma,
	})

	var tmp mat.Dense
	tmp.Mul(jac, sphericalCov)
	var cov mat.Dense
	cov.Mul(&tmp, jac.T())

	sym := mat.NewSymDense(3, nil)
	for i := 0; i < 3; i++ {
		for j := i; j < 3; j++ {
			sym.SetSym(i, j, cov.At(i, j))
		}
	}
	return sym, nil
}
