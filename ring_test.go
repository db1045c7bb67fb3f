package laserodom

import (
	"testing"

	"go.viam.com/test"
)

func TestIngestRingAppendRecordsPointAndTick(t *testing.T) {
	r := newIngestRing(4)
	test.That(t, r.append(1, 2, 3, 0.5, 17, 1000, 0), test.ShouldBeNil)
	test.That(t, r.buf.Count(), test.ShouldEqual, 1)
	test.That(t, r.ticks[0], test.ShouldEqual, uint32(17))
	test.That(t, r.globalTick(0, 1000), test.ShouldEqual, uint32(17))

	pt := r.point(0)
	test.That(t, pt.X, test.ShouldEqual, 1.0)
	test.That(t, pt.Y, test.ShouldEqual, 2.0)
	test.That(t, pt.Z, test.ShouldEqual, 3.0)
}

func TestIngestRingAppendOverflowErrors(t *testing.T) {
	r := newIngestRing(1)
	test.That(t, r.append(0, 0, 0, 0, 0, 1000, 0), test.ShouldBeNil)
	test.That(t, r.append(0, 0, 0, 0, 0, 1000, 0), test.ShouldNotBeNil)
}

func TestIngestRingResetClearsBufferAndTicks(t *testing.T) {
	r := newIngestRing(4)
	test.That(t, r.append(1, 1, 1, 0, 0, 1000, 0), test.ShouldBeNil)
	r.reset()
	test.That(t, r.buf.Count(), test.ShouldEqual, 0)
	test.That(t, len(r.ticks), test.ShouldEqual, 0)
}
