package risk

import "sort"

// sortedCopy returns the values ascending. Equal values keep their original
// run order (stable sort on run index), which pins down every percentile
// and tail computation for a fixed seed.
func sortedCopy(values []float64) []float64 {
	idx := make([]int, len(values))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		if values[idx[a]] == values[idx[b]] {
			return idx[a] < idx[b]
		}
		return values[idx[a]] < values[idx[b]]
	})
	out := make([]float64, len(values))
	for i, j := range idx {
		out[i] = values[j]
	}
	return out
}

// percentileSorted computes the p-th percentile (0-100) of an ascending
// slice using linear interpolation between order statistics.
func percentileSorted(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[n-1]
	}
	pos := p / 100 * float64(n-1)
	lo := int(pos)
	frac := pos - float64(lo)
	if lo+1 >= n {
		return sorted[n-1]
	}
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}

// Percentile computes the p-th percentile of unsorted values.
func Percentile(values []float64, p float64) float64 {
	return percentileSorted(sortedCopy(values), p)
}
