package laserodom

import (
	"context"
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"github.com/wave-robotics/laserodom/correspondence"
	"github.com/wave-robotics/laserodom/feature"
	"github.com/wave-robotics/laserodom/residual"
	"github.com/wave-robotics/laserodom/trajectory"
)

// runOptimizer assembles one sweep's residual problem — the motion priors plus one block per
// matched feature correspondence — and runs the solver, recording the matched correspondences for
// output_correspondences as it goes (spec §4.G step 1, "Assemble problem").
func (e *Engine) runOptimizer(ctx context.Context, result *feature.Result) error {
	e.problem.Reset()
	e.lastCorrespondences = make(map[string][]matchedPair)

	if e.cfg.MotionPrior {
		if err := e.problem.AddMotionPriors(); err != nil {
			return err
		}
	}

	for fi, fcfg := range e.cfg.Features {
		lm := e.corrMgr.Map(fcfg.Name)
		kind := correspondence.LineResidual
		if fcfg.Residual == ResidualPointToPlane {
			kind = correspondence.PlaneResidual
		}
		params := correspondence.SearchParams{
			MaxCorrespondenceDist: e.cfg.MaxCorrespondenceDist,
			AzimuthTol:            e.cfg.AzimuthTol,
			MaxExtrapolation:      e.cfg.MaxExtrapolation,
			NoExtrapolation:       e.cfg.NoExtrapolation,
		}

		for ring, indices := range result.Indices[fi] {
			ir := e.rings[ring]
			for _, idx := range indices {
				e.addFeatureBlock(ir, ring, idx, fcfg, kind, lm, params)
			}
		}
	}

	_, err := e.problem.Solve(ctx)
	return err
}

func (e *Engine) addFeatureBlock(ir *ingestRing, ring, idx int, fcfg FeatureKindConfig, kind correspondence.ResidualKind, lm *correspondence.LocalMap, params correspondence.SearchParams) {
	pt := ir.point(idx)
	k, kp1, tau := e.traj.TransformIndices(ir.globalTick(idx, e.cfg.MaxTicks), e.cfg.MaxTicks, e.cfg.NWindow, e.cfg.ScanPeriod)
	lin := e.traj.Linearize(k, tau)
	mapPt := lin.BasePose.Transform(pt)

	corr, ok := lm.FindCorrespondingPoints(mapPt, kind, params)
	if !ok {
		return
	}

	weight := e.residualWeight(ring, float64(ir.buf.RangeM[idx]), float64(ir.buf.Azimuth[idx]))
	cost, ok := e.buildCost(fcfg.Residual, lin, pt, corr.Points, weight)
	if !ok {
		return
	}
	e.problem.AddBlock(cost, k, kp1)
	e.lastCorrespondences[fcfg.Name] = append(e.lastCorrespondences[fcfg.Name], matchedPair{
		Query:   toArray(mapPt),
		Matches: toArrays(corr.Points),
	})
}

// buildCost constructs the cost function for one admitted correspondence. A line correspondence
// is rebuilt as a degenerate plane through the sensor origin when treat_lines_as_planes is set,
// stabilizing tracking along long straight corridors (spec §4.F).
func (e *Engine) buildCost(kind ResidualKind, lin trajectory.PointResidualLinearization, query r3.Vector, neighbors []r3.Vector, invSigma float64) (residual.CostFunction, bool) {
	switch kind {
	case ResidualPointToLine:
		if e.cfg.TreatLinesAsPlanes {
			origin := lin.BasePose.Transform(r3.Vector{})
			return residual.DegenerateLineToPlane(lin.BasePose, query, neighbors[0], neighbors[1], origin, invSigma, lin.JPoseK, lin.JPoseKp1, 1)
		}
		return &residual.PointToLine{
			BasePose: lin.BasePose,
			Query:    query,
			A:        neighbors[0],
			B:        neighbors[1],
			JPoseK:   lin.JPoseK,
			JPoseKp1: lin.JPoseKp1,
			Whiten:   isotropicWhiten(invSigma),
			Weight:   1,
		}, true
	case ResidualPointToPlane:
		normal, ok := residual.PlaneFromThreePoints(neighbors[0], neighbors[1], neighbors[2])
		if !ok {
			return nil, false
		}
		return &residual.PointToPlane{
			BasePose: lin.BasePose,
			Query:    query,
			Anchor:   neighbors[0],
			Normal:   normal,
			InvSigma: invSigma,
			JPoseK:   lin.JPoseK,
			JPoseKp1: lin.JPoseKp1,
			Weight:   1,
		}, true
	}
	return nil, false
}

// residualWeight derives the scalar 1/sigma used to whiten a residual from the range sensor's
// per-point Euclidean covariance, collapsing its 3x3 to a single scale via the trace (the original
// applies full anisotropic whitening only to point-to-plane residuals; point-to-line's own
// perpendicular-plane projection already does most of the directional work, so an isotropic scale
// here keeps the two residual kinds on the same weighting convention). use_weighting=false skips
// the sensor model entirely and weights every residual equally.
func (e *Engine) residualWeight(ring int, rangeM, azimuth float64) float64 {
	if !e.cfg.UseWeighting {
		return 1
	}
	cov, err := e.rangeModel.EuclideanCovariance(rangeM, azimuth, ring)
	if err != nil {
		return 1
	}
	trace := cov.At(0, 0) + cov.At(1, 1) + cov.At(2, 2)
	sigma := math.Sqrt(trace / 3)
	if sigma < 1e-9 {
		return 1
	}
	return 1 / sigma
}

func isotropicWhiten(scale float64) *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		scale, 0, 0,
		0, scale, 0,
		0, 0, scale,
	})
}

func toArray(v r3.Vector) [3]float64 {
	return [3]float64{v.X, v.Y, v.Z}
}

func toArrays(vs []r3.Vector) [][3]float64 {
	out := make([][3]float64, len(vs))
	for i, v := range vs {
		out[i] = toArray(v)
	}
	return out
}
