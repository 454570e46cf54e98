package types

import "time"

// RawPrice is a single entry of the upstream day-ahead price series at its
// native granularity, before VAT, tax, and additional costs are applied.
type RawPrice struct {
	Start time.Time `json:"start"`
	// Value is the bare market price in currency per kWh.
	Value float64 `json:"value"`
}

// PriceWindow is one fixed-duration slot of the day with its final
// all-in price. Windows are immutable once produced by the normalizer and
// form a contiguous, non-overlapping sequence covering exactly one day.
type PriceWindow struct {
	Start    time.Time     `json:"start"`
	Price    float64       `json:"price"`
	Duration time.Duration `json:"duration"`
}

// End returns the exclusive end of the window.
func (w PriceWindow) End() time.Time {
	return w.Start.Add(w.Duration)
}

// Contains reports whether t falls inside the window (start inclusive,
// end exclusive).
func (w PriceWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End())
}

// Completed reports whether the window has fully elapsed at time now.
func (w PriceWindow) Completed(now time.Time) bool {
	return !w.End().After(now)
}

// State is the discrete operating state of the battery automation.
type State string

const (
	StateOff                 State = "off"
	StateCharge              State = "charge"
	StateDischarge           State = "discharge"
	StateDischargeAggressive State = "discharge_aggressive"
	StateIdle                State = "idle"
)

// WindowDuration selects the slot length the day is divided into.
type WindowDuration string

const (
	WindowDuration15Min WindowDuration = "15_minutes"
	WindowDuration1Hour WindowDuration = "1_hour"
)

// Duration returns the time.Duration of one window slot.
func (d WindowDuration) Duration() time.Duration {
	if d == WindowDuration1Hour {
		return time.Hour
	}
	return 15 * time.Minute
}

// WindowsPerDay returns how many slots one day has in this mode.
func (d WindowDuration) WindowsPerDay() int {
	if d == WindowDuration1Hour {
		return 24
	}
	return 96
}
