package correspondence

import (
	"math"

	"github.com/golang/geo/r3"
)

// ResidualKind selects the number of neighbors a correspondence query must admit: two points
// define a line, three define a plane.
type ResidualKind int

const (
	LineResidual ResidualKind = iota
	PlaneResidual
)

// KNN returns the number of neighbors required for this residual kind.
func (k ResidualKind) KNN() int {
	if k == PlaneResidual {
		return 3
	}
	return 2
}

// SearchParams configures a single correspondence query.
type SearchParams struct {
	MaxCorrespondenceDist float64
	AzimuthTol            float64
	MaxExtrapolation      float64
	NoExtrapolation       bool
}

// Correspondence is a successful neighbor match: the admitted points, in admission order, and
// their local-map entry indices (needed by the caller to mark them corresponded).
type Correspondence struct {
	Points  []r3.Vector
	indices []int
}

// FindCorrespondingPoints runs a radius search for query against this map's spatial index,
// admits the nearest neighbor unconditionally, and admits further neighbors only once the
// admitted set spans at least two azimuthal bins (bin width azimuth_tol, measured around the
// query point) — this prevents a correspondence from being built entirely out of points lying
// along the same scan line. Fails if fewer than knn neighbors are ultimately admitted, or if a
// point-to-line match fails the extrapolation gate.
func (m *LocalMap) FindCorrespondingPoints(query r3.Vector, kind ResidualKind, params SearchParams) (*Correspondence, bool) {
	if m.index == nil {
		return nil, false
	}
	knn := kind.KNN()
	neighbors := m.index.RadiusSearch(query, params.MaxCorrespondenceDist)
	if len(neighbors) < knn {
		return nil, false
	}

	admittedIdx := []int{0}
	bins := map[int]bool{azimuthBin(query, neighbors[0].Point, params.AzimuthTol): true}
	for i := 1; i < len(neighbors) && len(admittedIdx) < knn; i++ {
		bin := azimuthBin(query, neighbors[i].Point, params.AzimuthTol)
		trial := map[int]bool{}
		for b := range bins {
			trial[b] = true
		}
		trial[bin] = true
		if len(trial) < 2 {
			continue
		}
		bins[bin] = true
		admittedIdx = append(admittedIdx, i)
	}
	if len(admittedIdx) < knn {
		return nil, false
	}

	points := make([]r3.Vector, knn)
	mapIndices := make([]int, knn)
	for j, ni := range admittedIdx {
		points[j] = neighbors[ni].Point
		mapIndices[j] = neighbors[ni].Data
	}

	if kind == LineResidual && !params.NoExtrapolation {
		if outOfBounds(query, points[0], points[1], params.MaxExtrapolation) {
			return nil, false
		}
	}

	m.markCorresponded(mapIndices)
	return &Correspondence{Points: points, indices: mapIndices}, true
}

// azimuthBin buckets a neighbor point into an azimuth bin relative to the query, at the given
// bin width in radians.
func azimuthBin(query, point r3.Vector, azimuthTol float64) int {
	if azimuthTol <= 0 {
		return 0
	}
	d := point.Sub(query)
	az := math.Atan2(d.Y, d.X)
	return int(math.Floor(az / azimuthTol))
}

// outOfBounds implements the extrapolation gate for point-to-line correspondences: with A, B the
// two line-defining neighbors and q the query, eta = (q-A).(B-A) / |B-A|^2 measures how far past
// the segment's endpoints the query's projection falls.
func outOfBounds(q, a, b r3.Vector, maxExtrapolation float64) bool {
	ab := b.Sub(a)
	denom := ab.Dot(ab)
	if denom < 1e-12 {
		return true
	}
	eta := q.Sub(a).Dot(ab) / denom
	return eta < -maxExtrapolation || eta > 1+maxExtrapolation
}
