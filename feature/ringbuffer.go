package feature

import (
	"github.com/pkg/errors"
)

// RingBuffer holds one ring's accumulated samples for the current sweep as dense columnar slices,
// mirroring the teacher's tensor-of-rows layout: scan columns are {x,y,z,tickFrac,azimuth} and
// signal columns are {rangeM,intensity}. Bounded by MaxPoints; appending past that bound is a
// fatal configuration error (spec §4.C/§7), not a silently dropped sample.
type RingBuffer struct {
	MaxPoints int

	X, Y, Z      []float32
	TickFrac     []float32
	Azimuth      []float32 // caller-populated per-point azimuth; compared between neighbors by the occlusion tests
	RangeM       []float32
	Intensity    []float32
}

// NewRingBuffer preallocates a ring buffer with capacity for maxPoints samples.
func NewRingBuffer(maxPoints int) *RingBuffer {
	return &RingBuffer{
		MaxPoints: maxPoints,
		X:         make([]float32, 0, maxPoints),
		Y:         make([]float32, 0, maxPoints),
		Z:         make([]float32, 0, maxPoints),
		TickFrac:  make([]float32, 0, maxPoints),
		Azimuth:   make([]float32, 0, maxPoints),
		RangeM:    make([]float32, 0, maxPoints),
		Intensity: make([]float32, 0, maxPoints),
	}
}

// Count returns the number of samples currently held.
func (rb *RingBuffer) Count() int {
	return len(rb.X)
}

// Reset empties the buffer for the next sweep without releasing its backing arrays.
func (rb *RingBuffer) Reset() {
	rb.X = rb.X[:0]
	rb.Y = rb.Y[:0]
	rb.Z = rb.Z[:0]
	rb.TickFrac = rb.TickFrac[:0]
	rb.Azimuth = rb.Azimuth[:0]
	rb.RangeM = rb.RangeM[:0]
	rb.Intensity = rb.Intensity[:0]
}

// Append adds one sample to the ring buffer. rangeM and azimuth are supplied by the caller and
// stored as given; the buffer does not derive them from x/y/z.
func (rb *RingBuffer) Append(x, y, z, tickFrac, azimuth, rangeM, intensity float32) error {
	if rb.Count() >= rb.MaxPoints {
		return errors.Errorf("ring buffer overflow: exceeded configured capacity of %d points", rb.MaxPoints)
	}
	rb.X = append(rb.X, x)
	rb.Y = append(rb.Y, y)
	rb.Z = append(rb.Z, z)
	rb.TickFrac = append(rb.TickFrac, tickFrac)
	rb.Azimuth = append(rb.Azimuth, azimuth)
	rb.RangeM = append(rb.RangeM, rangeM)
	rb.Intensity = append(rb.Intensity, intensity)
	return nil
}

func (rb *RingBuffer) signal(s Signal) []float32 {
	if s == SignalIntensity {
		return rb.Intensity
	}
	return rb.RangeM
}
