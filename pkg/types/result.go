package types

import "time"

// ClassificationResult is the full derived output for one day's price
// series. It is recomputed wholesale on every cache miss and never partially
// mutated.
type ClassificationResult struct {
	State State `json:"state"`

	ChargeWindows    []PriceWindow `json:"chargeWindows"`
	DischargeWindows []PriceWindow `json:"dischargeWindows"`
	// AggressiveWindows is always a subset of DischargeWindows: aggressive
	// status re-classifies selected discharge windows, it never adds any.
	AggressiveWindows []PriceWindow `json:"aggressiveWindows"`

	// Actual windows are the calculated sets projected onto the
	// override-adjusted timeline: a time override re-assigns its range and
	// the price override turns cheap periods into charge periods. Completion
	// accounting runs over these, so it reflects what the battery actually
	// does. Without any override they equal the calculated sets.
	ActualChargeWindows    []PriceWindow `json:"actualChargeWindows"`
	ActualDischargeWindows []PriceWindow `json:"actualDischargeWindows"`

	// Averages are nil when the corresponding set is empty.
	AvgCheapPrice     *float64 `json:"avgCheapPrice"`
	AvgExpensivePrice *float64 `json:"avgExpensivePrice"`

	// SpreadPct is nil in discharge-only mode (no charge set to spread
	// against).
	SpreadPct           *float64 `json:"spreadPct"`
	SpreadMet           bool     `json:"spreadMet"`
	DischargeSpreadMet  bool     `json:"dischargeSpreadMet"`
	AggressiveSpreadMet bool     `json:"aggressiveSpreadMet"`

	// CurrentPrice is the price of the window containing "now", nil when now
	// is outside the series (e.g. tomorrow's result).
	CurrentPrice *float64 `json:"currentPrice"`

	CompletedChargeWindows    int     `json:"completedChargeWindows"`
	CompletedDischargeWindows int     `json:"completedDischargeWindows"`
	CompletedChargeCost       float64 `json:"completedChargeCost"`
	CompletedDischargeRevenue float64 `json:"completedDischargeRevenue"`

	// NetKWH is charged minus discharged energy over completed windows.
	// It goes negative when discharge exceeds what was charged today, which
	// is drawn from pre-existing battery capacity and usually profit.
	NetKWH float64 `json:"netKWH"`
	// NetCost is completed charge cost minus discharge revenue; negative
	// means net profit.
	NetCost float64 `json:"netCost"`
	// NetPricePerKWH is NetCost / |NetKWH|, falling back to the theoretical
	// avg spread when no energy moved. The absolute denominator keeps the
	// numerator's sign as the profit/cost indicator.
	NetPricePerKWH float64 `json:"netPricePerKWH"`

	PriceOverrideActive bool `json:"priceOverrideActive"`
	TimeOverrideActive  bool `json:"timeOverrideActive"`
}

// EvaluationResult bundles the classification of today's and tomorrow's
// series. Tomorrow is zero-valued (with State off) when no tomorrow data
// has been published yet: no data means nothing can run, which is off
// rather than a misleading idle.
type EvaluationResult struct {
	Today      ClassificationResult `json:"today"`
	Tomorrow   ClassificationResult `json:"tomorrow"`
	ComputedAt time.Time            `json:"computedAt"`
}
