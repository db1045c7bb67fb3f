// Package feature implements the per-sweep, per-ring feature extraction pipeline: validity
// masking, convolutional/statistical scoring, criteria-based filtering, and bucketed selection.
package feature

import "github.com/golang/geo/r3"

// Signal selects which column of a ring's signal rows a score is computed from.
type Signal int

// Recognized signal columns.
const (
	SignalRange Signal = iota
	SignalIntensity
)

// ScoreKind selects which scoring function produces a given score index.
type ScoreKind int

// Recognized score kinds.
const (
	// ScoreLoamCurvature convolves the signal with an 11-tap symmetric curvature kernel,
	// producing high-magnitude positive scores at convex edges and negative at concave ones.
	ScoreLoamCurvature ScoreKind = iota
	// ScoreLaplacianOfGaussian convolves the signal with an 11-tap LoG kernel.
	ScoreLaplacianOfGaussian
	// ScoreWindowedVariance computes a one-pass windowed sample variance of the signal.
	ScoreWindowedVariance
)

// SelectionPolicy determines which side of a threshold admits a candidate.
type SelectionPolicy int

// Recognized selection policies.
const (
	NearZero SelectionPolicy = iota
	HighPos
	HighNeg
)

// Criterion is one threshold test a candidate sample must pass for a feature kind.
type Criterion struct {
	ScoreIndex int
	Policy     SelectionPolicy
	Threshold  float64
}

// Definition describes one feature kind: its ordered criteria, its cardinality bound, and which
// residual kind it ultimately feeds.
type Definition struct {
	Name     string
	Criteria []Criterion
	NLimit   int
}

// ScoreSpec describes how to compute one score column: its kind and its source signal.
type ScoreSpec struct {
	Kind   ScoreKind
	Signal Signal
}

// Point is a feature candidate at acquisition time, in sensor frame.
type Point struct {
	Position r3.Vector
	Tick     uint32
}

// candidate is an admitted-or-not scored sample awaiting bucketed selection.
type candidate struct {
	index int
	score float64
}
