package feature

import "github.com/golang/geo/r3"

// ValidityParams configures the three exclusion rules applied before scoring.
type ValidityParams struct {
	OcclusionTol  float32 // max azimuth step (radians) admitted as "same surface" across an occlusion edge
	OcclusionTol2 float32 // min range jump (meters) treated as a possible occlusion edge
	ParallelTol   float32 // squared-displacement-to-range-squared ratio threshold for grazing surfaces
}

// computeValidity returns, per ring, a boolean mask over that ring's samples: true where the
// sample is usable as a feature candidate. Rings with fewer than 11 samples yield a nil mask
// (their indices are never consulted, since the caller also treats them as empty).
func computeValidity(rb *RingBuffer, p ValidityParams) []bool {
	n := rb.Count()
	if n < 11 {
		return nil
	}
	valid := make([]bool, n)
	for i := range valid {
		valid[i] = true
	}

	for j := 1; j < n-1; j++ {
		rangeDiff := rb.RangeM[j+1] - rb.RangeM[j]
		azimuthDiff := rb.Azimuth[j+1] - rb.Azimuth[j]
		if azimuthDiff < 0 {
			azimuthDiff = -azimuthDiff
		}

		if absF32(rangeDiff) > p.OcclusionTol2 && azimuthDiff < p.OcclusionTol {
			if rangeDiff > 0 {
				// Occlusion forward: the near surface at j+1 occludes what lies behind it;
				// the five points leading up to j sit behind that edge.
				start := j - 5
				if start < 0 {
					start = 0
				}
				for k := start; k < j; k++ {
					valid[k] = false
				}
			} else {
				// Occlusion backward: symmetric, invalidate the five points following j.
				end := j + 5
				if end >= n {
					end = n - 1
				}
				for k := j + 1; k <= end; k++ {
					valid[k] = false
				}
			}
		}
	}

	for j := 1; j < n-1; j++ {
		center := r3.Vector{X: float64(rb.X[j]), Y: float64(rb.Y[j]), Z: float64(rb.Z[j])}
		prev := r3.Vector{X: float64(rb.X[j-1]), Y: float64(rb.Y[j-1]), Z: float64(rb.Z[j-1])}
		next := r3.Vector{X: float64(rb.X[j+1]), Y: float64(rb.Y[j+1]), Z: float64(rb.Z[j+1])}

		sqrRange := float64(rb.RangeM[j]) * float64(rb.RangeM[j])
		threshold := float64(p.ParallelTol) * sqrRange

		sqrDistPrev := center.Sub(prev).Norm2()
		sqrDistNext := center.Sub(next).Norm2()

		if sqrDistPrev > threshold && sqrDistNext > threshold {
			valid[j] = false
		}
	}

	return valid
}

func absF32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
