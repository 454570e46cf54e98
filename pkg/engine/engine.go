package engine

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"io"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/spreadpilot/spreadpilot/pkg/log"
	"github.com/spreadpilot/spreadpilot/pkg/pricing"
	"github.com/spreadpilot/spreadpilot/pkg/types"
)

// Engine evaluates a day's price curve into charge/discharge window sets
// and a current operating state. Evaluation is pure and synchronous; the
// wrapped cache is the only mutable state.
type Engine struct {
	cache *Cache
	now   func() time.Time
}

// New creates an Engine whose results stay cached for ttl. A nil clock
// defaults to time.Now; tests inject a fake one.
func New(ttl time.Duration, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{
		cache: NewCache(ttl, now),
		now:   now,
	}
}

// EvaluateRequest carries the already-resolved inputs for one evaluation.
// The core performs no I/O: prices and settings are passed in by the host.
type EvaluateRequest struct {
	Today    []types.RawPrice `json:"today"`
	Tomorrow []types.RawPrice `json:"tomorrow,omitempty"`
	Settings types.Settings   `json:"settings"`
	// Now is the evaluation instant; the zero value means the engine clock.
	Now time.Time `json:"now,omitempty"`
}

// Evaluate classifies today's and tomorrow's series, resolving the current
// state against req.Now. Identical inputs within the cache TTL return the
// cached result without recomputation.
func (e *Engine) Evaluate(ctx context.Context, req EvaluateRequest) (types.EvaluationResult, error) {
	if req.Now.IsZero() {
		req.Now = e.now()
	}
	if err := req.Settings.Validate(); err != nil {
		return types.EvaluationResult{}, err
	}

	key := req.fingerprint()
	result, hit, err := e.cache.Get(key, func() (types.EvaluationResult, error) {
		return e.compute(ctx, req)
	})
	if err != nil {
		return types.EvaluationResult{}, err
	}
	log.Ctx(ctx).DebugContext(ctx, "evaluated windows",
		slog.Bool("cacheHit", hit),
		slog.String("state", string(result.Today.State)),
		slog.Int("chargeWindows", len(result.Today.ChargeWindows)),
		slog.Int("dischargeWindows", len(result.Today.DischargeWindows)),
	)
	return result, nil
}

// Latest returns the most recent unexpired result, used as a fallback when
// a fresh evaluation aborts on malformed input.
func (e *Engine) Latest() (types.EvaluationResult, bool) {
	return e.cache.Latest()
}

func (e *Engine) compute(ctx context.Context, req EvaluateRequest) (types.EvaluationResult, error) {
	todayWindows, err := pricing.Normalize(req.Today, req.Settings)
	if err != nil {
		return types.EvaluationResult{}, err
	}
	tomorrowWindows, err := pricing.Normalize(req.Tomorrow, req.Settings)
	if err != nil {
		return types.EvaluationResult{}, err
	}

	result := types.EvaluationResult{
		Today:      classifyDay(todayWindows, req.Settings.DayFor(false), req.Settings, req.Now),
		Tomorrow:   classifyDay(tomorrowWindows, req.Settings.DayFor(true), req.Settings, time.Time{}),
		ComputedAt: e.now(),
	}
	log.Ctx(ctx).DebugContext(ctx, "computed classification",
		slog.Int("todayWindows", len(todayWindows)),
		slog.Int("tomorrowWindows", len(tomorrowWindows)),
	)
	return result, nil
}

// classifyDay runs the selector, economics, and state resolution for one
// day's normalized windows. A zero now skips the state and completion
// accounting; tomorrow has no current instant.
func classifyDay(windows []types.PriceWindow, day types.DaySettings, s types.Settings, now time.Time) types.ClassificationResult {
	windows = filterCalculationWindow(windows, s)
	if len(windows) == 0 {
		// No usable data: nothing published, or the calculation window
		// excluded the whole day. Nothing can run, which is off.
		return types.ClassificationResult{State: types.StateOff}
	}

	sel := selectWindows(windows, day, s.RoundTripEfficiencyPct)
	actualCharge, actualDischarge := actualWindows(windows, sel, day)
	eco := evaluateEconomics(sel, actualCharge, actualDischarge, day, s, now)

	res := types.ClassificationResult{
		State:                     types.StateIdle,
		ChargeWindows:             sel.charge,
		DischargeWindows:          sel.discharge,
		AggressiveWindows:         sel.aggressive,
		ActualChargeWindows:       actualCharge,
		ActualDischargeWindows:    actualDischarge,
		AvgCheapPrice:             eco.avgCheap,
		AvgExpensivePrice:         eco.avgExpensive,
		SpreadPct:                 eco.spreadPct,
		SpreadMet:                 eco.spreadMet,
		DischargeSpreadMet:        eco.dischargeSpreadMet,
		AggressiveSpreadMet:       eco.aggressiveSpreadMet,
		CompletedChargeWindows:    eco.completedCharge,
		CompletedDischargeWindows: eco.completedDischarge,
		CompletedChargeCost:       eco.chargeCost,
		CompletedDischargeRevenue: eco.dischargeRevenue,
		NetKWH:                    eco.netKWH,
		NetCost:                   eco.netCost,
		NetPricePerKWH:            eco.netPricePerKWH,
	}

	if !now.IsZero() {
		if w, ok := memberAt(windows, now); ok {
			res.CurrentPrice = &w.Price
		}
		res.State, res.PriceOverrideActive, res.TimeOverrideActive = resolveState(windows, sel, eco, day, s, now)
	}
	return res
}

// filterCalculationWindow drops windows outside the configured daily
// wall-clock range so selection only considers the allowed hours. Settings
// are validated at the acceptance boundary; a parse failure leaves the
// series unfiltered.
func filterCalculationWindow(windows []types.PriceWindow, s types.Settings) []types.PriceWindow {
	if !s.CalculationWindowEnabled {
		return windows
	}
	out := make([]types.PriceWindow, 0, len(windows))
	for _, w := range windows {
		ok, err := s.InCalculationWindow(w.Start)
		if err != nil {
			return windows
		}
		if ok {
			out = append(out, w)
		}
	}
	return out
}

// fingerprint hashes everything that can change the result: both price
// series (order-independent), the settings, and the evaluation day. The
// sub-day part of Now is excluded so polls within the TTL share a key.
func (r EvaluateRequest) fingerprint() string {
	h := sha256.New()
	h.Write([]byte(r.Settings.Fingerprint()))
	h.Write([]byte(r.Now.Format("2006-01-02")))
	hashSeries(h, r.Today)
	hashSeries(h, r.Tomorrow)
	return hex.EncodeToString(h.Sum(nil))
}

func hashSeries(h io.Writer, raw []types.RawPrice) {
	entries := make([]types.RawPrice, len(raw))
	copy(entries, raw)
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Start.Before(entries[j].Start)
	})
	var buf [16]byte
	for _, e := range entries {
		binary.BigEndian.PutUint64(buf[:8], uint64(e.Start.UnixNano()))
		binary.BigEndian.PutUint64(buf[8:], math.Float64bits(e.Value))
		h.Write(buf[:])
	}
}
