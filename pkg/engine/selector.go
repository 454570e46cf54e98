package engine

import (
	"sort"
	"time"

	"github.com/spreadpilot/spreadpilot/pkg/types"
)

// selection holds the chosen window sets for one day. The aggressive set is
// a partition of the discharge set, never an addition to it.
type selection struct {
	charge     []types.PriceWindow
	discharge  []types.PriceWindow
	aggressive []types.PriceWindow
}

// selectWindows grows the charge and discharge sets from the most extreme
// prices inward, enforcing the spread gates. Selection is monotonically
// progressive: a rejected candidate is skipped and never revisited.
//
// rtePct is the round-trip efficiency in percent; the spread gates inflate
// the effective charge price by 1/(rtePct/100) so the energy delivered after
// round-trip losses still clears the configured spread.
func selectWindows(windows []types.PriceWindow, day types.DaySettings, rtePct float64) selection {
	var sel selection
	if len(windows) == 0 {
		return sel
	}
	rteFrac := rtePct / 100

	all := prices(windows)

	// Charge set: cheapest candidates first, gated against the expensive
	// tail of the full day.
	if day.ChargeWindowCount > 0 {
		candidates := cheapCandidates(windows, day.CheapPercentile)
		expensiveRef := meanAbove(all, 100-day.CheapPercentile)

		for _, cand := range candidates {
			if len(sel.charge) >= day.ChargeWindowCount {
				break
			}
			tentative := append(prices(sel.charge), cand.Price)
			effCheap := mean(tentative) / rteFrac
			if effCheap <= 0 {
				continue
			}
			spread := (expensiveRef - effCheap) / effCheap * 100
			diff := expensiveRef - effCheap
			if spread >= day.MinSpreadPct && diff >= day.MinPriceDifference {
				sel.charge = append(sel.charge, cand)
			}
		}
	}

	// Discharge set: most expensive candidates first, drawn from the windows
	// not already claimed for charging.
	if day.ExpensiveWindowCount > 0 {
		pool := excludeWindows(windows, sel.charge)
		if len(pool) > 0 {
			candidates := expensiveCandidates(pool, day.ExpensivePercentile)

			// With no charge side at all there is no spread to protect:
			// discharge windows are chosen purely by price up to the cap.
			gate := day.ChargeWindowCount > 0
			var effCheap float64
			if gate {
				cheapRef := mean(prices(sel.charge))
				if len(sel.charge) == 0 {
					cheapRef = meanBelow(prices(pool), day.ExpensivePercentile)
				}
				effCheap = cheapRef / rteFrac
			}

			for _, cand := range candidates {
				if len(sel.discharge) >= day.ExpensiveWindowCount {
					break
				}
				if !gate {
					sel.discharge = append(sel.discharge, cand)
					continue
				}
				if effCheap <= 0 {
					continue
				}
				tentative := append(prices(sel.discharge), cand.Price)
				expAvg := mean(tentative)
				spread := (expAvg - effCheap) / effCheap * 100
				diff := expAvg - effCheap
				if spread >= day.DischargeSpreadPct && diff >= day.MinPriceDifference {
					sel.discharge = append(sel.discharge, cand)
				}
			}

			// Aggressive discharge re-classifies members of the discharge set
			// whose individual price clears the stricter spread.
			var aggRef float64
			if len(sel.charge) > 0 {
				aggRef = mean(prices(sel.charge)) / rteFrac
			} else {
				aggRef = meanBelow(prices(pool), day.ExpensivePercentile) / rteFrac
			}
			if aggRef > 0 {
				for _, w := range sel.discharge {
					spread := (w.Price - aggRef) / aggRef * 100
					diff := w.Price - aggRef
					if spread >= day.AggressiveSpreadPct && diff >= day.MinPriceDifference {
						sel.aggressive = append(sel.aggressive, w)
					}
				}
			}
		}
	}

	sortByStart(sel.charge)
	sortByStart(sel.discharge)
	sortByStart(sel.aggressive)
	return sel
}

func sortByStart(ws []types.PriceWindow) {
	sort.Slice(ws, func(i, j int) bool {
		return ws[i].Start.Before(ws[j].Start)
	})
}

// excludeWindows returns the windows whose start is not in the exclude set.
func excludeWindows(windows, exclude []types.PriceWindow) []types.PriceWindow {
	if len(exclude) == 0 {
		return windows
	}
	out := make([]types.PriceWindow, 0, len(windows))
	for _, w := range windows {
		excluded := false
		for _, e := range exclude {
			if w.Start.Equal(e.Start) {
				excluded = true
				break
			}
		}
		if !excluded {
			out = append(out, w)
		}
	}
	return out
}

// memberAt returns the window containing t, if any.
func memberAt(ws []types.PriceWindow, t time.Time) (types.PriceWindow, bool) {
	for _, w := range ws {
		if w.Contains(t) {
			return w, true
		}
	}
	return types.PriceWindow{}, false
}
