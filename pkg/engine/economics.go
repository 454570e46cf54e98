package engine

import (
	"math"
	"time"

	"github.com/spreadpilot/spreadpilot/pkg/types"
)

// economics aggregates the price statistics and completed-window accounting
// for a selection.
type economics struct {
	avgCheap     *float64
	avgExpensive *float64
	spreadPct    *float64

	spreadMet           bool
	dischargeSpreadMet  bool
	aggressiveSpreadMet bool

	completedCharge    int
	completedDischarge int
	chargeCost         float64
	dischargeRevenue   float64
	chargedKWH         float64
	dischargedKWH      float64
	netKWH             float64
	netCost            float64
	netPricePerKWH     float64
}

// actualWindows projects the calculated sets onto the override-adjusted
// timeline: a time override re-assigns its whole range, the price override
// turns periods at or below the threshold into charge periods, and the
// calculated windows fill in the rest. Overrides take effect whether or not
// the affected period was selected, so completion accounting over the actual
// sets reflects what the battery actually does. With no override configured
// the calculated sets are returned unchanged.
func actualWindows(windows []types.PriceWindow, sel selection, day types.DaySettings) (charge, discharge []types.PriceWindow) {
	if !day.PriceOverrideEnabled && len(day.TimeOverrides) == 0 {
		return sel.charge, sel.discharge
	}

	for _, w := range windows {
		state := types.StateIdle
		overridden := false
		for _, o := range day.TimeOverrides {
			// Settings are validated at the acceptance boundary; a range
			// that fails to parse simply does not match.
			if ok, err := o.Contains(w.Start); err == nil && ok {
				state = o.Mode
				overridden = true
				break
			}
		}
		if !overridden {
			if day.PriceOverrideEnabled && w.Price <= day.PriceOverrideThreshold {
				state = types.StateCharge
			} else if _, ok := memberAt(sel.aggressive, w.Start); ok {
				state = types.StateDischargeAggressive
			} else if _, ok := memberAt(sel.discharge, w.Start); ok {
				state = types.StateDischarge
			} else if _, ok := memberAt(sel.charge, w.Start); ok {
				state = types.StateCharge
			}
		}
		switch state {
		case types.StateCharge:
			charge = append(charge, w)
		case types.StateDischarge, types.StateDischargeAggressive:
			discharge = append(discharge, w)
		}
	}
	return charge, discharge
}

// evaluateEconomics computes averages, the realized spread, and the net
// energy/cost accounting over completed windows. Averages and spread are
// over the calculated sets; completion accounting runs over the actual
// (override-adjusted) sets. Pass a zero now to skip completion accounting
// (tomorrow's result has no elapsed windows).
func evaluateEconomics(sel selection, actualCharge, actualDischarge []types.PriceWindow, day types.DaySettings, s types.Settings, now time.Time) economics {
	var eco economics

	if len(sel.charge) > 0 {
		v := mean(prices(sel.charge))
		eco.avgCheap = &v
	}
	if len(sel.discharge) > 0 {
		v := mean(prices(sel.discharge))
		eco.avgExpensive = &v
	}

	if eco.avgCheap != nil && eco.avgExpensive != nil && *eco.avgCheap != 0 {
		v := (*eco.avgExpensive - *eco.avgCheap) / *eco.avgCheap * 100
		eco.spreadPct = &v
	}

	// With no charge side there is no spread constraint to violate: the
	// spread is reported as not applicable and treated as met. The same
	// holds with no discharge side.
	if day.ChargeWindowCount == 0 || day.ExpensiveWindowCount == 0 {
		eco.spreadMet = true
		eco.dischargeSpreadMet = true
		eco.aggressiveSpreadMet = true
	} else if eco.spreadPct != nil {
		eco.spreadMet = *eco.spreadPct >= day.MinSpreadPct
		eco.dischargeSpreadMet = *eco.spreadPct >= day.DischargeSpreadPct
		eco.aggressiveSpreadMet = *eco.spreadPct >= day.AggressiveSpreadPct
	}

	if !now.IsZero() {
		chargeKW := s.ChargePowerW / 1000
		dischargeKW := s.DischargePowerW / 1000
		for _, w := range actualCharge {
			if !w.Completed(now) {
				continue
			}
			kwh := chargeKW * w.Duration.Hours()
			eco.completedCharge++
			eco.chargedKWH += kwh
			eco.chargeCost += w.Price * kwh
		}
		for _, w := range actualDischarge {
			if !w.Completed(now) {
				continue
			}
			kwh := dischargeKW * w.Duration.Hours()
			eco.completedDischarge++
			eco.dischargedKWH += kwh
			eco.dischargeRevenue += w.Price * kwh
		}
	}

	// Net values are deliberately unclamped: discharging more than was
	// charged today draws on pre-existing battery capacity and shows up as
	// negative net energy with (usually) negative net cost, i.e. profit.
	eco.netKWH = eco.chargedKWH - eco.dischargedKWH
	eco.netCost = eco.chargeCost - eco.dischargeRevenue

	switch {
	case eco.netKWH != 0:
		// The absolute denominator keeps the numerator's sign as the
		// profit/cost direction instead of canceling it.
		eco.netPricePerKWH = eco.netCost / math.Abs(eco.netKWH)
	case eco.avgCheap != nil && eco.avgExpensive != nil:
		// Theoretical effective rate before any window completed.
		eco.netPricePerKWH = *eco.avgExpensive - *eco.avgCheap
	}

	return eco
}
