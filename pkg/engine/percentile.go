// Package engine implements the window selection core: percentile
// classification, progressive charge/discharge selection, spread economics,
// state resolution, and result caching.
package engine

import (
	"math"
	"sort"

	"github.com/spreadpilot/spreadpilot/pkg/types"
)

// percentile returns the p-th percentile (0-100) of values using linear
// interpolation between closest ranks. This matches the numpy default:
// rank = p/100*(n-1), cutoff = xs[lo] + frac*(xs[hi]-xs[lo]).
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	xs := make([]float64, len(values))
	copy(xs, values)
	sort.Float64s(xs)

	if p <= 0 {
		return xs[0]
	}
	if p >= 100 {
		return xs[len(xs)-1]
	}
	rank := p / 100 * float64(len(xs)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return xs[lo]
	}
	frac := rank - float64(lo)
	return xs[lo] + frac*(xs[hi]-xs[lo])
}

func prices(windows []types.PriceWindow) []float64 {
	out := make([]float64, len(windows))
	for i, w := range windows {
		out[i] = w.Price
	}
	return out
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// cheapCandidates returns the windows at or below the cheap percentile
// cutoff, sorted ascending by price with chronological tie-break.
func cheapCandidates(windows []types.PriceWindow, cheapPercentile float64) []types.PriceWindow {
	cutoff := percentile(prices(windows), cheapPercentile)
	var out []types.PriceWindow
	for _, w := range windows {
		if w.Price <= cutoff {
			out = append(out, w)
		}
	}
	sortByPrice(out, false)
	return out
}

// expensiveCandidates returns the windows at or above the expensive cutoff
// (the top tail: the cutoff sits at 100-expensivePercentile), sorted
// descending by price with chronological tie-break.
func expensiveCandidates(windows []types.PriceWindow, expensivePercentile float64) []types.PriceWindow {
	cutoff := percentile(prices(windows), 100-expensivePercentile)
	var out []types.PriceWindow
	for _, w := range windows {
		if w.Price >= cutoff {
			out = append(out, w)
		}
	}
	sortByPrice(out, true)
	return out
}

// sortByPrice sorts windows by price (descending when desc), breaking price
// ties by earliest start so selection is deterministic.
func sortByPrice(ws []types.PriceWindow, desc bool) {
	sort.SliceStable(ws, func(i, j int) bool {
		if ws[i].Price != ws[j].Price {
			if desc {
				return ws[i].Price > ws[j].Price
			}
			return ws[i].Price < ws[j].Price
		}
		return ws[i].Start.Before(ws[j].Start)
	})
}

// meanAbove averages the prices strictly above the p-th percentile cutoff,
// falling back to the overall mean when nothing is above it (flat days).
func meanAbove(values []float64, p float64) float64 {
	cutoff := percentile(values, p)
	var above []float64
	for _, v := range values {
		if v > cutoff {
			above = append(above, v)
		}
	}
	if len(above) == 0 {
		return mean(values)
	}
	return mean(above)
}

// meanBelow averages the prices strictly below the p-th percentile cutoff,
// falling back to the overall mean when nothing is below it.
func meanBelow(values []float64, p float64) float64 {
	cutoff := percentile(values, p)
	var below []float64
	for _, v := range values {
		if v < cutoff {
			below = append(below, v)
		}
	}
	if len(below) == 0 {
		return mean(values)
	}
	return mean(below)
}
