package feature

import "math"

// loamKernel is the symmetric 11-tap curvature kernel: the center sample is compared against the
// sum of its ten neighbors, so a flat run of range values scores near zero while a convex or
// concave edge produces a large-magnitude score of the corresponding sign.
var loamKernel = [11]float32{1, 1, 1, 1, 1, -10, 1, 1, 1, 1, 1}

// logKernel is an 11-tap discrete Laplacian-of-Gaussian, generated from the standard continuous
// LoG formula sampled at integer offsets and zero-mean normalized so a constant signal scores
// zero regardless of kernel sigma.
var logKernel = buildLoGKernel(11, 1.4)

func buildLoGKernel(taps int, sigma float64) [11]float32 {
	if taps != 11 {
		panic("buildLoGKernel is only defined for an 11-tap kernel")
	}
	var k [11]float32
	half := taps / 2
	sigma2 := sigma * sigma
	var sum float64
	for i := -half; i <= half; i++ {
		x := float64(i)
		v := ((x*x)/sigma2 - 1) / (sigma2 * sigma2) * math.Exp(-(x*x)/(2*sigma2))
		k[i+half] = float32(v)
		sum += v
	}
	// Zero-mean the kernel so it does not respond to a DC offset in the range signal.
	mean := float32(sum / float64(taps))
	for i := range k {
		k[i] -= mean
	}
	return k
}

// convolve11 applies an 11-tap kernel to signal, producing len(signal)-10 outputs (valid-mode
// convolution), matching the original's slicing of max-10 output samples per ring.
func convolve11(signal []float32, kernel [11]float32) []float32 {
	if len(signal) < 11 {
		return nil
	}
	out := make([]float32, len(signal)-10)
	for i := range out {
		var sum float32
		for k := 0; k < 11; k++ {
			sum += signal[i+k] * kernel[k]
		}
		out[i] = sum
	}
	return out
}
