package types

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CurrentSettingsVersion is the current version of the settings struct.
// Increment this value when adding new fields that require default values.
const CurrentSettingsVersion = 5

// ErrInvalidSettings is wrapped by every validation failure returned from
// Settings.Validate. Invalid settings are rejected at the acceptance
// boundary and never reach the selection engine.
var ErrInvalidSettings = errors.New("invalid settings")

// TimeOverride forces a fixed operating mode during a daily time range.
// Start and End are local wall-clock times in "HH:MM:SS" form; a range whose
// End is before its Start wraps past midnight.
type TimeOverride struct {
	Mode  State  `json:"mode"`
	Start string `json:"start"`
	End   string `json:"end"`
}

// Contains reports whether the wall-clock time of t falls inside the
// override range.
func (o TimeOverride) Contains(t time.Time) (bool, error) {
	ok, err := wallClockInRange(t, o.Start, o.End)
	if err != nil {
		return false, fmt.Errorf("failed to parse override range (%s-%s): %w", o.Start, o.End, err)
	}
	return ok, nil
}

// wallClockInRange reports whether the wall-clock time of t falls inside
// [start, end). A range whose end is before its start wraps past midnight.
func wallClockInRange(t time.Time, startStr, endStr string) (bool, error) {
	start, err := parseDayMinutes(startStr)
	if err != nil {
		return false, err
	}
	end, err := parseDayMinutes(endStr)
	if err != nil {
		return false, err
	}
	cur := t.Hour()*60 + t.Minute()
	if end < start {
		// overnight range
		return cur >= start || cur < end, nil
	}
	return cur >= start && cur < end, nil
}

// parseDayMinutes converts "HH:MM:SS" (seconds optional) to minutes since
// midnight.
func parseDayMinutes(s string) (int, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 {
		return 0, fmt.Errorf("expected HH:MM or HH:MM:SS, got %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, err
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, err
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("time out of range: %q", s)
	}
	return h*60 + m, nil
}

// DaySettings are the selection knobs that can differ between today and
// tomorrow. The midnight rotation copies the tomorrow set into the today
// slot wholesale.
type DaySettings struct {
	// How many windows to select for charging and discharging.
	ChargeWindowCount    int `json:"chargeWindowCount"`
	ExpensiveWindowCount int `json:"expensiveWindowCount"`

	// Percentile cutoffs for candidate generation (0-100). The cheap
	// percentile selects the bottom tail, the expensive percentile the top.
	CheapPercentile     float64 `json:"cheapPercentile"`
	ExpensivePercentile float64 `json:"expensivePercentile"`

	// Required relative spread between average discharge and average charge
	// price, in percent.
	MinSpreadPct        float64 `json:"minSpreadPct"`
	DischargeSpreadPct  float64 `json:"dischargeSpreadPct"`
	AggressiveSpreadPct float64 `json:"aggressiveSpreadPct"`

	// Absolute floor on the price difference, in currency per kWh. Guards
	// against tiny spreads on near-zero prices passing the percentage gate.
	MinPriceDifference float64 `json:"minPriceDifference"`

	// Force charging whenever the current price drops to or below the
	// threshold, regardless of window membership.
	PriceOverrideEnabled   bool    `json:"priceOverrideEnabled"`
	PriceOverrideThreshold float64 `json:"priceOverrideThreshold"`

	// Forced modes for fixed daily time ranges, evaluated in order.
	TimeOverrides []TimeOverride `json:"timeOverrides,omitempty"`
}

// Settings represents the full dynamic configuration for the planner.
// It is treated as an immutable value per evaluation.
type Settings struct {
	AutomationEnabled bool           `json:"automationEnabled"`
	WindowDuration    WindowDuration `json:"windowDuration"`

	// Cost model applied to raw market prices.
	VATPct               float64 `json:"vatPct"`
	TaxPerKWH            float64 `json:"taxPerKWH"`
	AdditionalCostPerKWH float64 `json:"additionalCostPerKWH"`

	// Battery characteristics.
	// RoundTripEfficiencyPct is the fraction of charged energy recoverable
	// on discharge, in percent (0, 100].
	RoundTripEfficiencyPct float64 `json:"roundTripEfficiencyPct"`
	ChargePowerW           float64 `json:"chargePowerW"`
	DischargePowerW        float64 `json:"dischargePowerW"`

	// Restrict selection to a daily wall-clock range (e.g. "06:00:00" to
	// "22:00:00"). Windows outside the range are dropped before selection,
	// so nothing is planned outside of it. An end before the start wraps
	// past midnight.
	CalculationWindowEnabled bool   `json:"calculationWindowEnabled"`
	CalculationWindowStart   string `json:"calculationWindowStart"`
	CalculationWindowEnd     string `json:"calculationWindowEnd"`

	Today DaySettings `json:"today"`

	// When TomorrowEnabled is set, tomorrow's series is classified with the
	// Tomorrow knobs instead of today's.
	TomorrowEnabled bool        `json:"tomorrowEnabled"`
	Tomorrow        DaySettings `json:"tomorrow"`
}

// InCalculationWindow reports whether the wall-clock time of t falls inside
// the calculation window. It is always true when the window is disabled.
func (s Settings) InCalculationWindow(t time.Time) (bool, error) {
	if !s.CalculationWindowEnabled {
		return true, nil
	}
	ok, err := wallClockInRange(t, s.CalculationWindowStart, s.CalculationWindowEnd)
	if err != nil {
		return false, fmt.Errorf("failed to parse calculation window: %w", err)
	}
	return ok, nil
}

// DayFor returns the DaySettings to use for a given day.
func (s Settings) DayFor(tomorrow bool) DaySettings {
	if tomorrow && s.TomorrowEnabled {
		return s.Tomorrow
	}
	return s.Today
}

// Rotate returns a copy of the settings with the tomorrow knobs promoted
// into the today slot. The copy is a plain value, so a caller persisting it
// atomically guarantees no evaluation sees a half-rotated object.
func (s Settings) Rotate() Settings {
	s.Today = s.Tomorrow
	return s
}

// Fingerprint returns a content hash of the settings. Any field change
// produces a different fingerprint, which invalidates cached evaluations.
func (s Settings) Fingerprint() string {
	b, err := json.Marshal(s)
	if err != nil {
		// Settings contain only plain serializable fields.
		panic(fmt.Errorf("failed to marshal settings: %w", err))
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Validate checks every field is in range. All failures wrap
// ErrInvalidSettings.
func (s Settings) Validate() error {
	switch s.WindowDuration {
	case WindowDuration15Min, WindowDuration1Hour:
	default:
		return fmt.Errorf("%w: unknown window duration %q", ErrInvalidSettings, s.WindowDuration)
	}
	if s.VATPct < 0 {
		return fmt.Errorf("%w: vat percent must not be negative", ErrInvalidSettings)
	}
	if s.RoundTripEfficiencyPct <= 0 || s.RoundTripEfficiencyPct > 100 {
		return fmt.Errorf("%w: round-trip efficiency must be in (0, 100], got %v", ErrInvalidSettings, s.RoundTripEfficiencyPct)
	}
	if s.ChargePowerW < 0 || s.DischargePowerW < 0 {
		return fmt.Errorf("%w: charge/discharge power must not be negative", ErrInvalidSettings)
	}
	if s.CalculationWindowEnabled {
		if _, err := parseDayMinutes(s.CalculationWindowStart); err != nil {
			return fmt.Errorf("%w: calculation window start: %v", ErrInvalidSettings, err)
		}
		if _, err := parseDayMinutes(s.CalculationWindowEnd); err != nil {
			return fmt.Errorf("%w: calculation window end: %v", ErrInvalidSettings, err)
		}
	}
	if err := s.Today.validate(); err != nil {
		return fmt.Errorf("today: %w", err)
	}
	if err := s.Tomorrow.validate(); err != nil {
		return fmt.Errorf("tomorrow: %w", err)
	}
	return nil
}

func (d DaySettings) validate() error {
	if d.ChargeWindowCount < 0 {
		return fmt.Errorf("%w: charge window count must not be negative", ErrInvalidSettings)
	}
	if d.ExpensiveWindowCount < 0 {
		return fmt.Errorf("%w: expensive window count must not be negative", ErrInvalidSettings)
	}
	if d.CheapPercentile < 0 || d.CheapPercentile > 100 {
		return fmt.Errorf("%w: cheap percentile must be in [0, 100], got %v", ErrInvalidSettings, d.CheapPercentile)
	}
	if d.ExpensivePercentile < 0 || d.ExpensivePercentile > 100 {
		return fmt.Errorf("%w: expensive percentile must be in [0, 100], got %v", ErrInvalidSettings, d.ExpensivePercentile)
	}
	if d.MinSpreadPct < 0 || d.DischargeSpreadPct < 0 || d.AggressiveSpreadPct < 0 {
		return fmt.Errorf("%w: spread percentages must not be negative", ErrInvalidSettings)
	}
	if d.MinPriceDifference < 0 {
		return fmt.Errorf("%w: minimum price difference must not be negative", ErrInvalidSettings)
	}
	for i, o := range d.TimeOverrides {
		switch o.Mode {
		case StateIdle, StateCharge, StateDischarge, StateDischargeAggressive:
		default:
			return fmt.Errorf("%w: time override %d has unknown mode %q", ErrInvalidSettings, i, o.Mode)
		}
		if _, err := parseDayMinutes(o.Start); err != nil {
			return fmt.Errorf("%w: time override %d: %v", ErrInvalidSettings, i, err)
		}
		if _, err := parseDayMinutes(o.End); err != nil {
			return fmt.Errorf("%w: time override %d: %v", ErrInvalidSettings, i, err)
		}
	}
	return nil
}

// MigrateSettings migrates the settings to the current version.
// It returns the migrated settings, a boolean indicating if changes were
// made, and an error if migration failed.
func MigrateSettings(s Settings, currentVersion int) (Settings, bool, error) {
	if currentVersion >= CurrentSettingsVersion {
		return s, false, nil
	}

	migrated := false
	// Loop through versions to apply migrations sequentially
	for version := currentVersion + 1; version <= CurrentSettingsVersion; version++ {
		switch version {
		case 1:
			// version 1: initial selection defaults
			if s.Today.ChargeWindowCount == 0 {
				s.Today.ChargeWindowCount = 6
				migrated = true
			}
			if s.Today.ExpensiveWindowCount == 0 {
				s.Today.ExpensiveWindowCount = 3
				migrated = true
			}
			if s.Today.CheapPercentile == 0 {
				s.Today.CheapPercentile = 25
				migrated = true
			}
			if s.Today.ExpensivePercentile == 0 {
				s.Today.ExpensivePercentile = 25
				migrated = true
			}
			if s.Today.MinSpreadPct == 0 {
				s.Today.MinSpreadPct = 30
				migrated = true
			}
			if s.Today.DischargeSpreadPct == 0 {
				s.Today.DischargeSpreadPct = 30
				migrated = true
			}
			if s.Today.AggressiveSpreadPct == 0 {
				s.Today.AggressiveSpreadPct = 60
				migrated = true
			}
			if s.Today.MinPriceDifference == 0 {
				s.Today.MinPriceDifference = 0.05
				migrated = true
			}
		case 2:
			// version 2: battery defaults
			if s.RoundTripEfficiencyPct == 0 {
				s.RoundTripEfficiencyPct = 85
				migrated = true
			}
			if s.ChargePowerW == 0 {
				s.ChargePowerW = 800
				migrated = true
			}
			if s.DischargePowerW == 0 {
				s.DischargePowerW = 800
				migrated = true
			}
		case 3:
			// version 3: price override threshold and tomorrow defaults
			if s.Today.PriceOverrideThreshold == 0 {
				s.Today.PriceOverrideThreshold = 0.15
				migrated = true
			}
			if isZeroDay(s.Tomorrow) {
				s.Tomorrow = s.Today
				migrated = true
			}
		case 4:
			// version 4: window duration default
			if s.WindowDuration == "" {
				s.WindowDuration = WindowDuration15Min
				migrated = true
			}
		case 5:
			// version 5: calculation window defaults (full day, disabled)
			if s.CalculationWindowStart == "" {
				s.CalculationWindowStart = "00:00:00"
				migrated = true
			}
			if s.CalculationWindowEnd == "" {
				s.CalculationWindowEnd = "23:59:59"
				migrated = true
			}
		default:
			return s, false, fmt.Errorf("unknown settings version: %d", version)
		}
	}

	return s, migrated, nil
}

func isZeroDay(d DaySettings) bool {
	return d.ChargeWindowCount == 0 && d.ExpensiveWindowCount == 0 &&
		d.CheapPercentile == 0 && d.ExpensivePercentile == 0 &&
		d.MinSpreadPct == 0 && d.DischargeSpreadPct == 0 &&
		d.AggressiveSpreadPct == 0 && d.MinPriceDifference == 0 &&
		!d.PriceOverrideEnabled && d.PriceOverrideThreshold == 0 &&
		len(d.TimeOverrides) == 0
}
