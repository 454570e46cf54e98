package engine

import (
	"testing"
	"time"

	"github.com/spreadpilot/spreadpilot/pkg/types"
	"github.com/stretchr/testify/assert"
)

func TestResolveState(t *testing.T) {
	// hours 0-1 charge, 5-6 discharge, 6 aggressive
	ws := hourlyWindows(0.05, 0.06, 0.12, 0.14, 0.16, 0.28, 0.35, 0.20)
	sel := selection{
		charge:     ws[:2],
		discharge:  ws[5:7],
		aggressive: ws[6:7],
	}
	metEco := economics{spreadMet: true, dischargeSpreadMet: true, aggressiveSpreadMet: true}

	at := func(hour int) time.Time {
		return testDay.Add(time.Duration(hour)*time.Hour + 30*time.Minute)
	}

	t.Run("Automation Off Wins", func(t *testing.T) {
		s := testEngineSettings()
		s.AutomationEnabled = false
		state, price, timeOv := resolveState(ws, sel, metEco, s.Today, s, at(5))
		assert.Equal(t, types.StateOff, state)
		assert.False(t, price)
		assert.False(t, timeOv)
	})

	t.Run("Time Override Beats Everything Else", func(t *testing.T) {
		s := testEngineSettings()
		day := s.Today
		day.TimeOverrides = []types.TimeOverride{
			{Mode: types.StateIdle, Start: "05:00", End: "07:00"},
		}
		day.PriceOverrideEnabled = true
		day.PriceOverrideThreshold = 1 // would match every price

		state, price, timeOv := resolveState(ws, sel, metEco, day, s, at(5))
		assert.Equal(t, types.StateIdle, state)
		assert.False(t, price)
		assert.True(t, timeOv)
	})

	t.Run("First Matching Override Wins", func(t *testing.T) {
		s := testEngineSettings()
		day := s.Today
		day.TimeOverrides = []types.TimeOverride{
			{Mode: types.StateCharge, Start: "05:00", End: "07:00"},
			{Mode: types.StateDischarge, Start: "05:00", End: "06:00"},
		}
		state, _, timeOv := resolveState(ws, sel, metEco, day, s, at(5))
		assert.Equal(t, types.StateCharge, state)
		assert.True(t, timeOv)
	})

	t.Run("Price Override Forces Charge", func(t *testing.T) {
		s := testEngineSettings()
		day := s.Today
		day.PriceOverrideEnabled = true
		day.PriceOverrideThreshold = 0.30

		// hour 5 is a discharge window, but 0.28 <= 0.30
		state, price, timeOv := resolveState(ws, sel, metEco, day, s, at(5))
		assert.Equal(t, types.StateCharge, state)
		assert.True(t, price)
		assert.False(t, timeOv)

		// hour 6 costs 0.35, above the threshold
		state, price, _ = resolveState(ws, sel, metEco, day, s, at(6))
		assert.Equal(t, types.StateDischargeAggressive, state)
		assert.False(t, price)
	})

	t.Run("Price Override Disabled Is Ignored", func(t *testing.T) {
		s := testEngineSettings()
		day := s.Today
		day.PriceOverrideThreshold = 1

		state, price, _ := resolveState(ws, sel, metEco, day, s, at(5))
		assert.Equal(t, types.StateDischarge, state)
		assert.False(t, price)
	})

	t.Run("Aggressive Beats Discharge", func(t *testing.T) {
		s := testEngineSettings()
		state, _, _ := resolveState(ws, sel, metEco, s.Today, s, at(6))
		assert.Equal(t, types.StateDischargeAggressive, state)

		state, _, _ = resolveState(ws, sel, metEco, s.Today, s, at(5))
		assert.Equal(t, types.StateDischarge, state)
	})

	t.Run("Charge Window", func(t *testing.T) {
		s := testEngineSettings()
		state, _, _ := resolveState(ws, sel, metEco, s.Today, s, at(0))
		assert.Equal(t, types.StateCharge, state)
	})

	t.Run("Unmet Spread Means Idle", func(t *testing.T) {
		s := testEngineSettings()
		unmet := economics{}
		for _, hour := range []int{0, 5, 6} {
			state, _, _ := resolveState(ws, sel, unmet, s.Today, s, at(hour))
			assert.Equal(t, types.StateIdle, state, "hour %d", hour)
		}
	})

	t.Run("Outside All Windows Is Idle", func(t *testing.T) {
		s := testEngineSettings()
		state, _, _ := resolveState(ws, sel, metEco, s.Today, s, at(3))
		assert.Equal(t, types.StateIdle, state)
	})
}
