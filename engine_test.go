package laserodom

import (
	"testing"
	"time"

	"go.viam.com/test"

	"github.com/wave-robotics/laserodom/feature"
	"github.com/wave-robotics/laserodom/rangesensor"
)

func TestNewEngineConstructsFromValidConfig(t *testing.T) {
	logger, _ := newObservedLogger(t)
	e, err := NewEngine(minimalConfig(), logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, e, test.ShouldNotBeNil)
	defer e.Stop()

	test.That(t, e.Initialized(), test.ShouldBeFalse)
	test.That(t, len(e.rings), test.ShouldEqual, 1)
}

func TestNewEngineRejectsInvalidConfig(t *testing.T) {
	logger, _ := newObservedLogger(t)
	cfg := minimalConfig()
	cfg.NRing = 0
	_, err := NewEngine(cfg, logger)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestGetParamsAndUpdateParamsRoundTrip(t *testing.T) {
	logger, _ := newObservedLogger(t)
	e, err := NewEngine(minimalConfig(), logger)
	test.That(t, err, test.ShouldBeNil)
	defer e.Stop()

	updated := e.GetParams()
	updated.OptIters = 9
	test.That(t, e.UpdateParams(updated), test.ShouldBeNil)
	test.That(t, e.GetParams().OptIters, test.ShouldEqual, 9)
}

func TestUpdateParamsRejectsInvalidConfig(t *testing.T) {
	logger, _ := newObservedLogger(t)
	e, err := NewEngine(minimalConfig(), logger)
	test.That(t, err, test.ShouldBeNil)
	defer e.Stop()

	bad := e.GetParams()
	bad.OptIters = 0
	test.That(t, e.UpdateParams(bad), test.ShouldNotBeNil)
	test.That(t, e.GetParams().OptIters, test.ShouldEqual, 5)
}

func TestAddPointsRejectsOutOfRangeRing(t *testing.T) {
	logger, _ := newObservedLogger(t)
	e, err := NewEngine(minimalConfig(), logger)
	test.That(t, err, test.ShouldBeNil)
	defer e.Stop()

	err = e.AddPoints([]rangesensor.PointXYZIR{{Ring: 5}}, 0, time.Time{})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestAddPointsDetectsWrapAndTriggersSweep(t *testing.T) {
	logger, _ := newObservedLogger(t)
	cfg := minimalConfig()
	cfg.NWindow = 1
	e, err := NewEngine(cfg, logger)
	test.That(t, err, test.ShouldBeNil)
	defer e.Stop()

	pt := []rangesensor.PointXYZIR{{X: 1, Y: 0, Z: -1, Ring: 0}}
	test.That(t, e.AddPoints(pt, 100, time.Time{}), test.ShouldBeNil)
	test.That(t, e.AddPoints(pt, 50, time.Time{}), test.ShouldBeNil) // decrease of 50, not a wrap
	test.That(t, e.AddPoints(pt, 10, time.Time{}), test.ShouldBeNil) // 10 < 50-200? no: decrease of 40, not a wrap
	test.That(t, e.AddPoints(pt, 300, time.Time{}), test.ShouldBeNil)
	test.That(t, e.AddPoints(pt, 50, time.Time{}), test.ShouldBeNil) // decrease of 250 > 200: wrap, triggers sweep

	test.That(t, e.sweepBatch, test.ShouldEqual, uint64(1))
}

func TestDensityCapSelectsConfiguredResidualKind(t *testing.T) {
	cfg := minimalConfig()
	cfg.EdgeMapDensity = 7
	cfg.FlatMapDensity = 3
	e := &Engine{cfg: cfg}

	test.That(t, e.densityCap(ResidualPointToLine), test.ShouldEqual, 7)
	test.That(t, e.densityCap(ResidualPointToPlane), test.ShouldEqual, 3)
}

func TestPromoteFeaturesAddsAdmittedPointsToLocalMap(t *testing.T) {
	logger, _ := newObservedLogger(t)
	e, err := NewEngine(minimalConfig(), logger)
	test.That(t, err, test.ShouldBeNil)
	defer e.Stop()

	test.That(t, e.rings[0].append(1, 0, 0, 1, 10, 36000, 0), test.ShouldBeNil)
	test.That(t, e.rings[0].append(2, 0, 0, 1, 20, 36000, 0), test.ShouldBeNil)

	result := &feature.Result{Indices: [][][]int{{{0, 1}}}}
	e.promoteFeatures(result)

	test.That(t, e.totalLocalMapEntries(), test.ShouldEqual, 2)
}

func TestPromoteFeaturesRespectsDensityCap(t *testing.T) {
	logger, _ := newObservedLogger(t)
	cfg := minimalConfig()
	cfg.EdgeMapDensity = 1
	e, err := NewEngine(cfg, logger)
	test.That(t, err, test.ShouldBeNil)
	defer e.Stop()

	test.That(t, e.rings[0].append(1, 0, 0, 1, 10, 36000, 0), test.ShouldBeNil)
	test.That(t, e.rings[0].append(2, 0, 0, 1, 20, 36000, 0), test.ShouldBeNil)

	result := &feature.Result{Indices: [][][]int{{{0, 1}}}}
	e.promoteFeatures(result)

	test.That(t, e.totalLocalMapEntries(), test.ShouldEqual, 1)
}
