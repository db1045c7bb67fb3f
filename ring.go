package laserodom

import (
	"math"

	"github.com/golang/geo/r3"

	"github.com/wave-robotics/laserodom/feature"
)

// ingestRing pairs one ring's feature.RingBuffer (which only needs tick_frac for bucketed
// selection) with the raw ticks and revolution indices of its samples, needed by the trajectory
// model to bracket a point's acquisition time against the current knot pair.
type ingestRing struct {
	buf   *feature.RingBuffer
	ticks []uint32
	revs  []uint32
}

func newIngestRing(maxPoints int) *ingestRing {
	return &ingestRing{
		buf:   feature.NewRingBuffer(maxPoints),
		ticks: make([]uint32, 0, maxPoints),
		revs:  make([]uint32, 0, maxPoints),
	}
}

func (r *ingestRing) reset() {
	r.buf.Reset()
	r.ticks = r.ticks[:0]
	r.revs = r.revs[:0]
}

// append records one accepted sample: range/azimuth are derived from the Cartesian point, since
// the driver-level azimuth encoder value isn't part of rangesensor.PointXYZIR. revolution is the
// number of wraps already completed in the sweep currently being accumulated (always 0 when
// n_window is 1, otherwise in 0..n_window-1), used by globalTick to place the sample within
// the full sweep's time span rather than just its own revolution.
func (r *ingestRing) append(x, y, z, intensity float32, tick, maxTicks, revolution uint32) error {
	rangeM := float32(math.Sqrt(float64(x)*float64(x) + float64(y)*float64(y) + float64(z)*float64(z)))
	azimuth := float32(math.Atan2(float64(y), float64(x)))
	tickFrac := float32(tick) / float32(maxTicks)
	if err := r.buf.Append(x, y, z, tickFrac, azimuth, rangeM, intensity); err != nil {
		return err
	}
	r.ticks = append(r.ticks, tick)
	r.revs = append(r.revs, revolution)
	return nil
}

// globalTick returns the sample's tick offset from the start of the whole sweep, rather than from
// the start of just its own revolution, so TransformIndices can bracket it against the full
// n_window-revolution time span instead of collapsing every revolution onto the first 1/n_window
// of it.
func (r *ingestRing) globalTick(idx int, maxTicks uint32) uint32 {
	return r.revs[idx]*maxTicks + r.ticks[idx]
}

func (r *ingestRing) point(idx int) r3.Vector {
	return r3.Vector{X: float64(r.buf.X[idx]), Y: float64(r.buf.Y[idx]), Z: float64(r.buf.Z[idx])}
}
