package pricing

import (
	"math/rand"
	"testing"
	"time"

	"github.com/spreadpilot/spreadpilot/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quarterSeries(day time.Time, value func(i int) float64) []types.RawPrice {
	midnight := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	series := make([]types.RawPrice, 0, 96)
	for i := 0; i < 96; i++ {
		series = append(series, types.RawPrice{
			Start: midnight.Add(time.Duration(i) * 15 * time.Minute),
			Value: value(i),
		})
	}
	return series
}

func hourSeries(day time.Time, value func(i int) float64) []types.RawPrice {
	midnight := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	series := make([]types.RawPrice, 0, 24)
	for i := 0; i < 24; i++ {
		series = append(series, types.RawPrice{
			Start: midnight.Add(time.Duration(i) * time.Hour),
			Value: value(i),
		})
	}
	return series
}

func quarterSettings() types.Settings {
	return types.Settings{
		WindowDuration:         types.WindowDuration15Min,
		RoundTripEfficiencyPct: 85,
	}
}

func TestNormalize(t *testing.T) {
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	t.Run("Empty Input", func(t *testing.T) {
		windows, err := Normalize(nil, quarterSettings())
		require.NoError(t, err)
		assert.Nil(t, windows)
	})

	t.Run("Quarter Hour Passthrough", func(t *testing.T) {
		raw := quarterSeries(day, func(i int) float64 { return float64(i) / 100 })
		windows, err := Normalize(raw, quarterSettings())
		require.NoError(t, err)
		require.Len(t, windows, 96)

		assert.Equal(t, day, windows[0].Start)
		assert.Equal(t, 15*time.Minute, windows[0].Duration)
		assert.Equal(t, 0.95, windows[95].Price)

		// contiguous
		for i := 1; i < len(windows); i++ {
			assert.Equal(t, windows[i-1].End(), windows[i].Start)
		}
	})

	t.Run("Sorts Shuffled Input", func(t *testing.T) {
		raw := quarterSeries(day, func(i int) float64 { return float64(i) })
		rand.New(rand.NewSource(42)).Shuffle(len(raw), func(i, j int) {
			raw[i], raw[j] = raw[j], raw[i]
		})

		windows, err := Normalize(raw, quarterSettings())
		require.NoError(t, err)
		require.Len(t, windows, 96)
		for i, w := range windows {
			assert.Equal(t, float64(i), w.Price)
		}
	})

	t.Run("Cost Model", func(t *testing.T) {
		s := quarterSettings()
		s.VATPct = 21
		s.TaxPerKWH = 0.12286
		s.AdditionalCostPerKWH = 0.02398

		raw := quarterSeries(day, func(i int) float64 { return 0.10 })
		windows, err := Normalize(raw, s)
		require.NoError(t, err)
		// 0.10*1.21 + 0.12286 + 0.02398
		assert.InDelta(t, 0.26784, windows[0].Price, 1e-9)
	})

	t.Run("Cost Model Negative Price", func(t *testing.T) {
		s := quarterSettings()
		s.VATPct = 21
		s.TaxPerKWH = 0.12286
		s.AdditionalCostPerKWH = 0.02398

		raw := quarterSeries(day, func(i int) float64 { return -0.05 })
		windows, err := Normalize(raw, s)
		require.NoError(t, err)
		// VAT scales the negative value, taxes still add on top
		assert.InDelta(t, -0.05*1.21+0.12286+0.02398, windows[0].Price, 1e-9)
	})

	t.Run("Quarter To Hourly Aggregation", func(t *testing.T) {
		s := quarterSettings()
		s.WindowDuration = types.WindowDuration1Hour

		// each hour's quarters are i, i+1, i+2, i+3 -> mean i+1.5
		raw := quarterSeries(day, func(i int) float64 { return float64(i % 4) })
		windows, err := Normalize(raw, s)
		require.NoError(t, err)
		require.Len(t, windows, 24)

		for i, w := range windows {
			assert.Equal(t, day.Add(time.Duration(i)*time.Hour), w.Start)
			assert.Equal(t, time.Hour, w.Duration)
			assert.InDelta(t, 1.5, w.Price, 1e-9)
		}
	})

	t.Run("Hourly Passthrough", func(t *testing.T) {
		s := quarterSettings()
		s.WindowDuration = types.WindowDuration1Hour

		raw := hourSeries(day, func(i int) float64 { return float64(i) })
		windows, err := Normalize(raw, s)
		require.NoError(t, err)
		require.Len(t, windows, 24)
		assert.Equal(t, time.Hour, windows[0].Duration)
	})

	t.Run("Hourly To Quarter Is Malformed", func(t *testing.T) {
		// 15-minute windows cannot be derived from hourly data
		raw := hourSeries(day, func(i int) float64 { return float64(i) })
		_, err := Normalize(raw, quarterSettings())
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMalformedSeries)
	})

	t.Run("Not Starting At Midnight", func(t *testing.T) {
		raw := quarterSeries(day, func(i int) float64 { return float64(i) })
		for i := range raw {
			raw[i].Start = raw[i].Start.Add(30 * time.Minute)
		}
		_, err := Normalize(raw, quarterSettings())
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMalformedSeries)
		assert.Contains(t, err.Error(), "midnight")
	})

	t.Run("Missing Entry", func(t *testing.T) {
		raw := quarterSeries(day, func(i int) float64 { return float64(i) })
		raw = append(raw[:40], raw[41:]...)
		_, err := Normalize(raw, quarterSettings())
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMalformedSeries)
	})

	t.Run("Duplicate Entry", func(t *testing.T) {
		raw := quarterSeries(day, func(i int) float64 { return float64(i) })
		raw[41].Start = raw[40].Start
		_, err := Normalize(raw, quarterSettings())
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMalformedSeries)
	})

	t.Run("Unsupported Granularity", func(t *testing.T) {
		midnight := day
		raw := []types.RawPrice{
			{Start: midnight, Value: 1},
			{Start: midnight.Add(30 * time.Minute), Value: 2},
			{Start: midnight.Add(time.Hour), Value: 3},
		}
		_, err := Normalize(raw, quarterSettings())
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMalformedSeries)
	})

	t.Run("Single Entry", func(t *testing.T) {
		raw := []types.RawPrice{{Start: day, Value: 1}}
		_, err := Normalize(raw, quarterSettings())
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMalformedSeries)
	})
}
