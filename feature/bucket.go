package feature

import "sort"

// flagNearby invalidates a window of keyRadius samples on either side of p in a working copy of
// the validity mask, so a second candidate cannot be admitted immediately next to one already
// chosen.
func flagNearby(valid []bool, p, keyRadius int) {
	for j := 1; j <= keyRadius; j++ {
		if p+j < len(valid) {
			valid[p+j] = false
		}
	}
	for j := 1; j <= keyRadius; j++ {
		if p-j >= 0 {
			valid[p-j] = false
		}
	}
}

// selectBucketed performs the greedy bucketed admission described in spec §4.C: candidates are
// sorted by primary score (descending for HighPos, ascending otherwise), then walked in that
// order, admitting each iff it is still valid in a working copy of the mask, its angular bin has
// capacity, and it has not been invalidated by an earlier admission's key-radius exclusion zone.
func selectBucketed(candidates []candidate, valid []bool, tickFrac []float32, angularBins, keyRadius, nLimit int, ascending bool) []int {
	sorted := make([]candidate, len(candidates))
	copy(sorted, candidates)
	if ascending {
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].score < sorted[j].score })
	} else {
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].score > sorted[j].score })
	}

	workingValid := make([]bool, len(valid))
	copy(workingValid, valid)

	maxPerBin := nLimit / angularBins
	if maxPerBin < 1 {
		maxPerBin = 1
	}
	countInBin := make([]int, angularBins)

	var admitted []int
	for _, c := range sorted {
		if len(admitted) >= nLimit {
			break
		}
		bin := int(tickFrac[c.index] * float32(angularBins))
		if bin < 0 {
			bin = 0
		}
		if bin >= angularBins {
			bin = angularBins - 1
		}
		if countInBin[bin] >= maxPerBin {
			continue
		}
		if !workingValid[c.index] {
			continue
		}
		admitted = append(admitted, c.index)
		countInBin[bin]++
		flagNearby(workingValid, c.index, keyRadius)
	}
	return admitted
}
