// Package pricing converts heterogeneous raw day-ahead price series into the
// uniform window sequence the selection engine consumes.
package pricing

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/spreadpilot/spreadpilot/pkg/types"
)

// ErrMalformedSeries is wrapped by every contiguity/coverage validation
// failure. An absent series is not malformed: Normalize returns an empty
// sequence for empty input.
var ErrMalformedSeries = errors.New("malformed price series")

// Normalize converts a raw price series into an ordered sequence of windows
// at the configured duration, applying VAT, tax, and additional costs to
// each price. The input order does not matter; the output is always sorted
// chronologically.
//
// An empty input yields a nil sequence and no error: missing tomorrow data
// is a valid state, and downstream treats zero windows as zero candidates.
func Normalize(raw []types.RawPrice, settings types.Settings) ([]types.PriceWindow, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	entries := make([]types.RawPrice, len(raw))
	copy(entries, raw)
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Start.Before(entries[j].Start)
	})

	step, err := nativeStep(entries)
	if err != nil {
		return nil, err
	}

	if err := validateCoverage(entries, step); err != nil {
		return nil, err
	}

	windows := make([]types.PriceWindow, 0, len(entries))
	for _, e := range entries {
		windows = append(windows, types.PriceWindow{
			Start:    e.Start,
			Price:    totalPrice(e.Value, settings),
			Duration: step,
		})
	}

	target := settings.WindowDuration.Duration()
	switch {
	case step == target:
		return windows, nil
	case step == 15*time.Minute && target == time.Hour:
		return aggregateHourly(windows), nil
	default:
		return nil, fmt.Errorf("%w: cannot derive %s windows from %s granularity", ErrMalformedSeries, target, step)
	}
}

// totalPrice applies the cost model to a bare market price.
func totalPrice(value float64, s types.Settings) float64 {
	return value*(1+s.VATPct/100) + s.TaxPerKWH + s.AdditionalCostPerKWH
}

// nativeStep determines the granularity of the series from the gap between
// the first two entries. Single-entry series are only valid in hourly mode
// terms, so they are rejected by the coverage check anyway.
func nativeStep(entries []types.RawPrice) (time.Duration, error) {
	if len(entries) < 2 {
		return 0, fmt.Errorf("%w: series has only %d entries", ErrMalformedSeries, len(entries))
	}
	step := entries[1].Start.Sub(entries[0].Start)
	switch step {
	case 15 * time.Minute, time.Hour:
		return step, nil
	default:
		return 0, fmt.Errorf("%w: unsupported granularity %s between first entries", ErrMalformedSeries, step)
	}
}

// validateCoverage checks the sorted entries are contiguous at step and
// cover exactly one calendar day starting at local midnight.
func validateCoverage(entries []types.RawPrice, step time.Duration) error {
	first := entries[0].Start
	midnight := time.Date(first.Year(), first.Month(), first.Day(), 0, 0, 0, 0, first.Location())
	if !first.Equal(midnight) {
		return fmt.Errorf("%w: series starts at %s, not local midnight", ErrMalformedSeries, first.Format(time.RFC3339))
	}

	want := int(24 * time.Hour / step)
	if len(entries) != want {
		return fmt.Errorf("%w: expected %d entries at %s granularity, got %d", ErrMalformedSeries, want, step, len(entries))
	}

	for i := 1; i < len(entries); i++ {
		gap := entries[i].Start.Sub(entries[i-1].Start)
		if gap == 0 {
			return fmt.Errorf("%w: duplicate entry at %s", ErrMalformedSeries, entries[i].Start.Format(time.RFC3339))
		}
		if gap != step {
			return fmt.Errorf("%w: gap of %s after %s, expected %s", ErrMalformedSeries, gap, entries[i-1].Start.Format(time.RFC3339), step)
		}
	}
	return nil
}

// aggregateHourly folds each group of 4 consecutive quarter-hours into one
// hourly window priced at their arithmetic mean. The hourly window keeps the
// first quarter's start.
func aggregateHourly(quarters []types.PriceWindow) []types.PriceWindow {
	hours := make([]types.PriceWindow, 0, len(quarters)/4)
	for i := 0; i+3 < len(quarters); i += 4 {
		sum := 0.0
		for j := 0; j < 4; j++ {
			sum += quarters[i+j].Price
		}
		hours = append(hours, types.PriceWindow{
			Start:    quarters[i].Start,
			Price:    sum / 4,
			Duration: time.Hour,
		})
	}
	return hours
}
