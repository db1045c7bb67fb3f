package correspondence

import (
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func TestNewLocalMapValidation(t *testing.T) {
	_, err := NewLocalMap(0, 10)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = NewLocalMap(5, 0)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestBuildTreesEvictsBeyondRange(t *testing.T) {
	lm, err := NewLocalMap(3, 10)
	test.That(t, err, test.ShouldBeNil)

	lm.Promote(r3.Vector{X: 1})
	lm.Promote(r3.Vector{X: 100})

	test.That(t, lm.BuildTrees(), test.ShouldBeNil)
	test.That(t, lm.Size(), test.ShouldEqual, 1)
	test.That(t, lm.Entries()[0].Position.X, test.ShouldAlmostEqual, 1.0, 1e-9)
}

func TestBuildTreesSingleDecrementEvictsAfterTTLSweeps(t *testing.T) {
	lm, err := NewLocalMap(2, 10)
	test.That(t, err, test.ShouldBeNil)
	lm.Promote(r3.Vector{X: 1})

	test.That(t, lm.BuildTrees(), test.ShouldBeNil) // TTL 2 -> 1, survives
	test.That(t, lm.Size(), test.ShouldEqual, 1)

	test.That(t, lm.BuildTrees(), test.ShouldBeNil) // TTL 1 -> 0, survives this pass
	test.That(t, lm.Size(), test.ShouldEqual, 1)

	test.That(t, lm.BuildTrees(), test.ShouldBeNil) // evicted at the start of this pass
	test.That(t, lm.Size(), test.ShouldEqual, 0)
}

func TestBuildTreesResetsCorrespondedStatus(t *testing.T) {
	lm, err := NewLocalMap(3, 10)
	test.That(t, err, test.ShouldBeNil)
	lm.Promote(r3.Vector{X: 1})
	lm.entries[0].TTL = 1
	lm.entries[0].Status = Corresponded

	test.That(t, lm.BuildTrees(), test.ShouldBeNil)
	test.That(t, lm.Entries()[0].Status, test.ShouldEqual, Uncorresponded)
	test.That(t, lm.Entries()[0].TTL, test.ShouldEqual, int32(2)) // reset to 3, then decremented once
}
