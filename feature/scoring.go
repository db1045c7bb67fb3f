package feature

import "gonum.org/v1/gonum/floats"

// scoreEnergy returns the Euclidean norm of a ring's score column, used as a coarse diagnostic
// of how much edge/planar signal a ring is carrying this sweep.
func scoreEnergy(scores []float32) float64 {
	if len(scores) == 0 {
		return 0
	}
	f64 := make([]float64, len(scores))
	for i, v := range scores {
		f64[i] = float64(v)
	}
	return floats.Norm(f64, 2)
}

// computeScore produces one score column for a ring's signal according to spec. All three score
// kinds yield one score per interior sample, trimmed to exactly len(signal)-10 entries so that
// every score column for a ring lines up with the same index range regardless of which kind
// produced it (matching computeScores's uniform scores.at(i) tensor width).
func computeScore(rb *RingBuffer, spec ScoreSpec, varianceWindow int) []float32 {
	signal := rb.signal(spec.Signal)
	if len(signal) < 11 {
		return nil
	}
	outLen := len(signal) - 10

	switch spec.Kind {
	case ScoreLoamCurvature:
		return convolve11(signal, loamKernel)
	case ScoreLaplacianOfGaussian:
		return convolve11(signal, logKernel)
	case ScoreWindowedVariance:
		return windowedVariance(signal, varianceWindow, outLen)
	default:
		return nil
	}
}

// windowedVariance computes the one-pass sample variance (E[X^2] - E[X]^2) * N/(N-1) over a
// sliding window of the given size, producing exactly outLen values.
func windowedVariance(signal []float32, window, outLen int) []float32 {
	if window < 2 {
		window = 2
	}
	out := make([]float32, outLen)
	for i := 0; i < outLen; i++ {
		end := i + window
		if end > len(signal) {
			end = len(signal)
		}
		n := end - i
		if n < 2 {
			out[i] = 0
			continue
		}
		var sum, sumSq float64
		for _, v := range signal[i:end] {
			fv := float64(v)
			sum += fv
			sumSq += fv * fv
		}
		mean := sum / float64(n)
		meanSq := sumSq / float64(n)
		out[i] = float32((meanSq - mean*mean) * float64(n) / float64(n-1))
	}
	return out
}
