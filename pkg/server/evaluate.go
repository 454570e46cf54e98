package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/spreadpilot/spreadpilot/pkg/engine"
	"github.com/spreadpilot/spreadpilot/pkg/log"
	"github.com/spreadpilot/spreadpilot/pkg/pricing"
	"github.com/spreadpilot/spreadpilot/pkg/storage"
	"github.com/spreadpilot/spreadpilot/pkg/types"
)

// evaluateReq is the request body for POST /api/evaluate. Both series are
// optional; missing ones fall back to the stored snapshot and then to the
// price source.
type evaluateReq struct {
	Today    []types.RawPrice `json:"today,omitempty"`
	Tomorrow []types.RawPrice `json:"tomorrow,omitempty"`
	Now      time.Time        `json:"now,omitempty"`
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req evaluateReq
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			log.Ctx(ctx).WarnContext(ctx, "failed to decode evaluate request", slog.Any("error", err))
			writeJSONError(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}

	settings, err := s.getSettingsWithMigration(ctx)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to get settings", slog.Any("error", err))
		writeJSONError(w, "failed to get settings", http.StatusInternalServerError)
		return
	}

	now := req.Now
	if now.IsZero() {
		now = time.Now().In(s.location)
	}

	today := req.Today
	if len(today) == 0 {
		today, err = s.loadPrices(ctx, now)
		if err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to load today's prices", slog.Any("error", err))
			writeJSONError(w, "failed to load prices", http.StatusInternalServerError)
			return
		}
	}
	tomorrow := req.Tomorrow
	if len(tomorrow) == 0 {
		// tomorrow is classified whenever data exists; absent data is fine,
		// the result just comes back off with zero windows
		tomorrow, err = s.loadPrices(ctx, now.AddDate(0, 0, 1))
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			log.Ctx(ctx).WarnContext(ctx, "failed to load tomorrow's prices", slog.Any("error", err))
		}
	}

	result, err := s.engine.Evaluate(ctx, engine.EvaluateRequest{
		Today:    today,
		Tomorrow: tomorrow,
		Settings: settings.Settings,
		Now:      now,
	})
	if err != nil {
		if errors.Is(err, pricing.ErrMalformedSeries) || errors.Is(err, types.ErrInvalidSettings) {
			writeJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		log.Ctx(ctx).ErrorContext(ctx, "evaluation failed", slog.Any("error", err))
		writeJSONError(w, "evaluation failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, result)
}

// loadPrices returns the raw series for the day containing t, preferring
// the stored snapshot over a fresh fetch from the price source.
func (s *Server) loadPrices(ctx context.Context, t time.Time) ([]types.RawPrice, error) {
	day := s.dayKey(t)
	prices, err := s.storage.GetPriceSnapshot(ctx, day)
	if err == nil && len(prices) > 0 {
		return prices, nil
	}
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	prices, err = s.source.GetDayAheadPrices(ctx, t)
	if err != nil {
		return nil, err
	}
	if len(prices) > 0 {
		if err := s.storage.UpsertPriceSnapshot(ctx, day, prices); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to store price snapshot", slog.String("day", day), slog.Any("error", err))
		}
	}
	return prices, nil
}

// handleUpdate is the scheduled control cycle: refresh prices from the
// source, evaluate, and persist the result.
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// 1. Get settings
	settings, err := s.getSettingsWithMigration(ctx)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to get settings", slog.Any("error", err))
		writeJSONError(w, "failed to get settings", http.StatusInternalServerError)
		return
	}

	now := time.Now().In(s.location)

	// 2. Refresh today's prices from the source
	today, err := s.source.GetDayAheadPrices(ctx, now)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to fetch today's prices", slog.Any("error", err))
		writeJSONError(w, "failed to fetch prices", http.StatusBadGateway)
		return
	}
	if len(today) == 0 {
		// fall back to the stored snapshot when the feed is down
		today, err = s.storage.GetPriceSnapshot(ctx, s.dayKey(now))
		if err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "no prices available for today", slog.Any("error", err))
			writeJSONError(w, "no prices available", http.StatusServiceUnavailable)
			return
		}
	} else if err := s.storage.UpsertPriceSnapshot(ctx, s.dayKey(now), today); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to store today's snapshot", slog.Any("error", err))
	}

	log.Ctx(ctx).DebugContext(ctx, "update: today's prices refreshed", slog.Int("count", len(today)))

	// 3. Refresh tomorrow's prices; the auction may not have cleared yet.
	// Tomorrow is always fetched: the TomorrowEnabled flag only selects
	// which per-day settings classify it, never whether it is classified.
	tomorrowT := now.AddDate(0, 0, 1)
	tomorrow, err := s.source.GetDayAheadPrices(ctx, tomorrowT)
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to fetch tomorrow's prices", slog.Any("error", err))
		// Continue with empty tomorrow prices
	} else if len(tomorrow) > 0 {
		if err := s.storage.UpsertPriceSnapshot(ctx, s.dayKey(tomorrowT), tomorrow); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to store tomorrow's snapshot", slog.Any("error", err))
		}
	}

	// 4. Evaluate
	result, err := s.engine.Evaluate(ctx, engine.EvaluateRequest{
		Today:    today,
		Tomorrow: tomorrow,
		Settings: settings.Settings,
		Now:      now,
	})
	if err != nil {
		// keep serving the previous result if the fresh series is malformed
		if prev, ok := s.engine.Latest(); ok && errors.Is(err, pricing.ErrMalformedSeries) {
			log.Ctx(ctx).WarnContext(ctx, "evaluation failed, serving cached result", slog.Any("error", err))
			writeJSON(w, map[string]interface{}{
				"status": "stale",
				"result": prev,
			})
			return
		}
		log.Ctx(ctx).ErrorContext(ctx, "evaluation failed", slog.Any("error", err))
		writeJSONError(w, "evaluation failed", http.StatusInternalServerError)
		return
	}

	log.Ctx(ctx).InfoContext(
		ctx,
		"update: evaluated",
		slog.String("state", string(result.Today.State)),
		slog.Int("chargeWindows", len(result.Today.ChargeWindows)),
		slog.Int("dischargeWindows", len(result.Today.DischargeWindows)),
		slog.Bool("spreadMet", result.Today.SpreadMet),
	)

	// 5. Persist the latest result for dashboards and restarts
	if err := s.storage.SetLatestEvaluation(ctx, result); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to store evaluation", slog.Any("error", err))
	}

	// 6. Prune old snapshots
	if s.retentionDays > 0 {
		cutoff := s.dayKey(now.AddDate(0, 0, -s.retentionDays))
		pruned, err := s.storage.PrunePriceSnapshots(ctx, cutoff)
		if err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to prune snapshots", slog.Any("error", err))
		} else if pruned > 0 {
			log.Ctx(ctx).DebugContext(ctx, "pruned snapshots", slog.Int("count", pruned), slog.String("before", cutoff))
		}
	}

	writeJSON(w, map[string]interface{}{
		"status": "success",
		"result": result,
	})
}

// handleLatest serves the most recent evaluation without recomputing,
// preferring the engine cache and falling back to the stored result when
// the cache is cold after a restart.
func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if result, ok := s.engine.Latest(); ok {
		writeJSON(w, result)
		return
	}

	result, err := s.storage.GetLatestEvaluation(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeJSONError(w, "no evaluation available", http.StatusNotFound)
			return
		}
		log.Ctx(ctx).ErrorContext(ctx, "failed to load latest evaluation", slog.Any("error", err))
		writeJSONError(w, "failed to load latest evaluation", http.StatusInternalServerError)
		return
	}
	writeJSON(w, result)
}
