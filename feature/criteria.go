package feature

// passesCriterion reports whether the score at idx satisfies one criterion.
func passesCriterion(score float64, c Criterion) bool {
	switch c.Policy {
	case NearZero:
		return absF64(score) < c.Threshold
	case HighPos:
		return score > c.Threshold
	case HighNeg:
		return score < -c.Threshold
	default:
		return false
	}
}

func absF64(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// filterCandidates evaluates one feature definition against a ring's validity mask and score
// columns, returning the surviving (index, primaryScore) candidates. scores is indexed
// [scoreIndex][sample], already trimmed to the common offset-10 window; offset is how many
// leading/trailing raw samples the score columns exclude.
func filterCandidates(valid []bool, scores [][]float32, def Definition, offset int) []candidate {
	if len(valid) < 2*offset {
		return nil
	}
	var out []candidate
	for j := offset; j+offset < len(valid); j++ {
		if !valid[j] {
			continue
		}
		scoreRow := j - offset
		ok := true
		var primary float64
		for i, c := range def.Criteria {
			col := scores[c.ScoreIndex]
			if scoreRow >= len(col) {
				ok = false
				break
			}
			v := float64(col[scoreRow])
			if !passesCriterion(v, c) {
				ok = false
				break
			}
			if i == 0 {
				primary = v
			}
		}
		if ok {
			out = append(out, candidate{index: j, score: primary})
		}
	}
	return out
}
