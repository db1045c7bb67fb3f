package feature

import (
	"testing"

	"go.viam.com/test"
)

// A synthetic ring with a 5m range step at index 100 and an azimuth step below occlusion_tol must
// invalidate the five samples 94..98 preceding the jump and leave distant samples valid.
func TestOcclusionExclusion(t *testing.T) {
	rb := NewRingBuffer(200)
	for i := 0; i < 200; i++ {
		rangeM := float32(10.0)
		if i >= 100 {
			rangeM = 15.0
		}
		azimuth := float32(i) * 0.001 // tiny step, well below occlusion_tol
		test.That(t, rb.Append(rangeM, 0, 0, float32(i)/200, azimuth, rangeM, 1.0), test.ShouldBeNil)
	}

	valid := computeValidity(rb, ValidityParams{OcclusionTol: 0.01, OcclusionTol2: 1.0, ParallelTol: 1e9})
	test.That(t, valid, test.ShouldNotBeNil)

	// The step rises once, at the 99->100 sample pair, so only the occlusion-forward rule fires:
	// it invalidates the five samples immediately preceding the jump.
	for i := 94; i < 99; i++ {
		test.That(t, valid[i], test.ShouldBeFalse)
	}
	test.That(t, valid[50], test.ShouldBeTrue)
	test.That(t, valid[150], test.ShouldBeTrue)
}

func TestValidityShortRingIsNil(t *testing.T) {
	rb := NewRingBuffer(20)
	for i := 0; i < 5; i++ {
		test.That(t, rb.Append(1, 0, 0, 0, 0, 1, 1), test.ShouldBeNil)
	}
	valid := computeValidity(rb, ValidityParams{OcclusionTol: 0.01, OcclusionTol2: 1.0, ParallelTol: 0.01})
	test.That(t, valid, test.ShouldBeNil)
}

func TestGrazingSurfaceInvalidatesCenter(t *testing.T) {
	rb := NewRingBuffer(20)
	// A surface nearly parallel to the beam: consecutive points displace mostly laterally, not
	// radially, so the squared 3-D displacement to each neighbor is large relative to range^2.
	for i := 0; i < 15; i++ {
		x := float32(10.0)
		y := float32(i) * 5.0
		test.That(t, rb.Append(x, y, 0, float32(i)/15, float32(i)*0.1, 10, 1.0), test.ShouldBeNil)
	}
	valid := computeValidity(rb, ValidityParams{OcclusionTol: -1, OcclusionTol2: 1e9, ParallelTol: 0.01})
	test.That(t, valid, test.ShouldNotBeNil)
	for i := 1; i < 14; i++ {
		test.That(t, valid[i], test.ShouldBeFalse)
	}
}
