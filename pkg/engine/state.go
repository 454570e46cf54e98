package engine

import (
	"time"

	"github.com/spreadpilot/spreadpilot/pkg/types"
)

// resolveState maps the current instant onto one discrete operating state.
// Precedence, highest first: automation off, active time override, active
// price override, aggressive discharge, discharge, charge, idle. The state
// is recomputed fresh on every evaluation; no transitions are stored.
func resolveState(
	windows []types.PriceWindow,
	sel selection,
	eco economics,
	day types.DaySettings,
	s types.Settings,
	now time.Time,
) (state types.State, priceOverrideActive, timeOverrideActive bool) {
	if !s.AutomationEnabled {
		return types.StateOff, false, false
	}

	// Time overrides beat all price-based logic; the first matching range
	// wins. Settings are validated at the acceptance boundary, so a parse
	// error here cannot happen and a failed range simply does not match.
	for _, o := range day.TimeOverrides {
		if ok, err := o.Contains(now); err == nil && ok {
			return o.Mode, false, true
		}
	}

	var currentPrice *float64
	if w, ok := memberAt(windows, now); ok {
		currentPrice = &w.Price
	}

	if day.PriceOverrideEnabled && currentPrice != nil && *currentPrice <= day.PriceOverrideThreshold {
		return types.StateCharge, true, false
	}

	if _, ok := memberAt(sel.aggressive, now); ok && eco.spreadMet {
		return types.StateDischargeAggressive, false, false
	}
	if _, ok := memberAt(sel.discharge, now); ok && eco.spreadMet {
		return types.StateDischarge, false, false
	}
	if _, ok := memberAt(sel.charge, now); ok && eco.spreadMet {
		return types.StateCharge, false, false
	}

	return types.StateIdle, false, false
}
