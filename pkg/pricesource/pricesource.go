// Package pricesource fetches raw day-ahead electricity prices from an
// external market feed.
package pricesource

import (
	"context"
	"time"

	"github.com/spreadpilot/spreadpilot/pkg/types"
)

// Provider defines the interface for fetching day-ahead energy prices.
type Provider interface {
	// GetDayAheadPrices returns the raw price series for the local day
	// containing day, at the feed's native granularity. An empty slice with
	// no error means the feed has not published that day yet.
	GetDayAheadPrices(ctx context.Context, day time.Time) ([]types.RawPrice, error)
}

// Configured sets up the price source based on flags.
func Configured() Provider {
	return configuredDayAhead()
}
