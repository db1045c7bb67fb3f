package correspondence

import (
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func buildMap(t *testing.T, points []r3.Vector) *LocalMap {
	lm, err := NewLocalMap(5, 100)
	test.That(t, err, test.ShouldBeNil)
	for _, p := range points {
		lm.Promote(p)
	}
	test.That(t, lm.BuildTrees(), test.ShouldBeNil)
	return lm
}

func TestFindCorrespondingPointsFailsWithTooFewNeighbors(t *testing.T) {
	lm := buildMap(t, []r3.Vector{{X: 1}})
	_, ok := lm.FindCorrespondingPoints(r3.Vector{}, LineResidual, SearchParams{MaxCorrespondenceDist: 10, AzimuthTol: 0.1})
	test.That(t, ok, test.ShouldBeFalse)
}

func TestFindCorrespondingPointsRequiresAzimuthDiversity(t *testing.T) {
	// Two points along the same ray from the query: same azimuthal bin, so a line match must fail.
	lm := buildMap(t, []r3.Vector{{X: 1}, {X: 2}})
	_, ok := lm.FindCorrespondingPoints(r3.Vector{}, LineResidual, SearchParams{
		MaxCorrespondenceDist: 10,
		AzimuthTol:            1.0,
		NoExtrapolation:       true,
	})
	test.That(t, ok, test.ShouldBeFalse)
}

func TestFindCorrespondingPointsSucceedsAcrossBins(t *testing.T) {
	lm := buildMap(t, []r3.Vector{{X: 1, Y: 0}, {X: 0, Y: 1}})
	corr, ok := lm.FindCorrespondingPoints(r3.Vector{}, LineResidual, SearchParams{
		MaxCorrespondenceDist: 10,
		AzimuthTol:            0.1,
		NoExtrapolation:       true,
	})
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, len(corr.Points), test.ShouldEqual, 2)

	for _, e := range lm.Entries() {
		test.That(t, e.Status, test.ShouldEqual, Corresponded)
	}
}

func TestFindCorrespondingPointsPlaneRequiresThree(t *testing.T) {
	lm := buildMap(t, []r3.Vector{{X: 1, Y: 0}, {X: 0, Y: 1}, {X: -1, Y: 0}})
	corr, ok := lm.FindCorrespondingPoints(r3.Vector{}, PlaneResidual, SearchParams{
		MaxCorrespondenceDist: 10,
		AzimuthTol:            0.1,
	})
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, len(corr.Points), test.ShouldEqual, 3)
}

func TestOutOfBoundsExtrapolationGate(t *testing.T) {
	a := r3.Vector{X: 0}
	b := r3.Vector{X: 1}
	test.That(t, outOfBounds(r3.Vector{X: 0.5}, a, b, 0.1), test.ShouldBeFalse)
	test.That(t, outOfBounds(r3.Vector{X: 5}, a, b, 0.1), test.ShouldBeTrue)
}

func TestFindCorrespondingPointsRejectsExtrapolation(t *testing.T) {
	// A and B lie on the same line but the query sits far past B's end of the segment, so the
	// line match must fail the extrapolation gate even though the neighbors span distinct bins.
	lm := buildMap(t, []r3.Vector{{X: 0, Y: 0}, {X: 0, Y: 10}})
	_, ok := lm.FindCorrespondingPoints(r3.Vector{X: 5, Y: 20}, LineResidual, SearchParams{
		MaxCorrespondenceDist: 30,
		AzimuthTol:            0.1,
		MaxExtrapolation:      0.1,
	})
	test.That(t, ok, test.ShouldBeFalse)
}
