package feature

import (
	"context"

	"github.com/pkg/errors"

	"github.com/wave-robotics/laserodom/concurrency"
)

// kernelOffset is how many leading/trailing raw samples an 11-tap convolution excludes from its
// output, matching the original's fixed k_offsets of 5 for every score kind.
const kernelOffset = 5

// Config configures the feature extractor: the score columns to compute, the feature kinds to
// select, and the scoring/selection/validity parameters from spec §6.
type Config struct {
	Scores      []ScoreSpec
	Definitions []Definition

	VarianceWindow int
	AngularBins    int
	KeyRadius      int
	EigenThreads   int

	Validity ValidityParams
}

// Validate checks the configuration is usable, per spec §4.C's "setParams not called before use
// is fatal" and "ring-count mismatch... is fatal."
func (c Config) Validate() error {
	if len(c.Scores) == 0 {
		return errors.New("feature extractor requires at least one score")
	}
	if len(c.Definitions) == 0 {
		return errors.New("feature extractor requires at least one feature definition")
	}
	if c.AngularBins <= 0 {
		return errors.New("angular_bins must be positive")
	}
	if c.VarianceWindow < 2 {
		return errors.New("variance_window must be at least 2")
	}
	for _, def := range c.Definitions {
		if def.NLimit <= 0 {
			return errors.Errorf("feature %q: n_limit must be positive", def.Name)
		}
		if len(def.Criteria) == 0 {
			return errors.Errorf("feature %q: at least one criterion is required", def.Name)
		}
		for _, c2 := range def.Criteria {
			if c2.ScoreIndex < 0 || c2.ScoreIndex >= len(c.Scores) {
				return errors.Errorf("feature %q: criterion references out-of-range score index %d", def.Name, c2.ScoreIndex)
			}
		}
	}
	return nil
}

// Extractor runs the per-sweep feature extraction pipeline over a fixed number of rings.
type Extractor struct {
	cfg    Config
	nRing  int
	ready  bool
}

// NewExtractor constructs an extractor for nRing rings. Matches FeatureExtractor::setParams:
// configuration must be supplied before Extract is called.
func NewExtractor(cfg Config, nRing int) (*Extractor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if nRing <= 0 {
		return nil, errors.New("feature extractor requires at least one ring")
	}
	return &Extractor{cfg: cfg, nRing: nRing, ready: true}, nil
}

// Result holds, for each feature definition, the admitted sample indices per ring.
type Result struct {
	// Indices[featureIdx][ring] is the admitted index list for that feature kind on that ring.
	Indices [][][]int
	// ScoreEnergy[ring] is the sum of the Euclidean norms of that ring's score columns, a
	// coarse per-ring diagnostic of how much edge/planar signal was available this sweep.
	ScoreEnergy []float64
}

// Extract runs the full pipeline (scoring, validity masking, criteria filtering, bucketed
// selection) over the given per-ring buffers, matching FeatureExtractor::getFeatures.
func (e *Extractor) Extract(ctx context.Context, rings []*RingBuffer) (*Result, error) {
	if !e.ready {
		return nil, errors.New("feature extractor must be configured before use")
	}
	if len(rings) != e.nRing {
		return nil, errors.Errorf("ring count mismatch: extractor configured for %d rings, got %d", e.nRing, len(rings))
	}

	perRingScores := make([][][]float32, e.nRing)
	perRingValid := make([][]bool, e.nRing)
	scoreEnergyByRing := make([]float64, e.nRing)

	concurrency.GroupWorkParallel(ctx, e.nRing, e.cfg.EigenThreads,
		nil,
		func(groupNum, groupSize, from, to int) (concurrency.MemberWorkFunc, func()) {
			return func(memberNum, ring int) {
				rb := rings[ring]
				if rb.Count() < 11 {
					return
				}
				scores := make([][]float32, len(e.cfg.Scores))
				energy := 0.0
				for i, spec := range e.cfg.Scores {
					scores[i] = computeScore(rb, spec, e.cfg.VarianceWindow)
					energy += scoreEnergy(scores[i])
				}
				perRingScores[ring] = scores
				perRingValid[ring] = computeValidity(rb, e.cfg.Validity)
				scoreEnergyByRing[ring] = energy
			}, nil
		})

	indices := make([][][]int, len(e.cfg.Definitions))
	for fi, def := range e.cfg.Definitions {
		indices[fi] = make([][]int, e.nRing)
		ascending := def.Criteria[0].Policy != HighPos
		for ring := 0; ring < e.nRing; ring++ {
			valid := perRingValid[ring]
			scores := perRingScores[ring]
			if valid == nil || scores == nil {
				continue
			}
			cands := filterCandidates(valid, scores, def, kernelOffset)
			indices[fi][ring] = selectBucketed(cands, valid, rings[ring].TickFrac, e.cfg.AngularBins, e.cfg.KeyRadius, def.NLimit, ascending)
		}
	}

	return &Result{Indices: indices, ScoreEnergy: scoreEnergyByRing}, nil
}
