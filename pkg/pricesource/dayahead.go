package pricesource

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/spreadpilot/spreadpilot/pkg/common"
	"github.com/spreadpilot/spreadpilot/pkg/log"
	"github.com/spreadpilot/spreadpilot/pkg/types"
)

// DayAhead implements the Provider interface against a Nordpool-style
// day-ahead market API that publishes one JSON document per delivery day.
type DayAhead struct {
	apiURL string
	area   string
	client *http.Client

	mu         sync.Mutex
	cachedDay  string
	cachedAt   time.Time
	cachedRaw  []types.RawPrice
	fetchedLoc *time.Location
}

// configuredDayAhead sets up flags for the day-ahead feed and returns the
// instance. It uses lflag to register command-line flags for configuration.
func configuredDayAhead() *DayAhead {
	d := &DayAhead{
		client:     common.HTTPClient(10 * time.Second),
		fetchedLoc: time.Local,
	}
	apiURL := lflag.String("dayahead-api-url", "", "URL for the day-ahead price API")
	area := lflag.String("dayahead-area", "NL", "Bidding area to request day-ahead prices for")

	lflag.Do(func() {
		d.apiURL = *apiURL
		d.area = *area
	})

	return d
}

// Validate ensures the configuration is valid.
func (d *DayAhead) Validate() error {
	if d.apiURL == "" {
		return fmt.Errorf("dayahead-api-url is required")
	}
	if _, err := url.Parse(d.apiURL); err != nil {
		return fmt.Errorf("failed to parse day-ahead url (%s): %w", d.apiURL, err)
	}
	return nil
}

// dayAheadEntry represents one interval in the JSON returned by the feed.
type dayAheadEntry struct {
	Start time.Time `json:"start"`
	Value float64   `json:"value"`
}

// GetDayAheadPrices returns the raw series for the local day containing day.
// Results are cached until the next 5-minute block so repeated evaluations
// within one control cycle hit the feed at most once per day key.
func (d *DayAhead) GetDayAheadPrices(ctx context.Context, day time.Time) ([]types.RawPrice, error) {
	key := day.In(d.fetchedLoc).Format("2006-01-02")
	now := time.Now()

	d.mu.Lock()
	if d.cachedDay == key && !d.cachedAt.IsZero() && !now.Truncate(5*time.Minute).After(d.cachedAt) {
		prices := d.cachedRaw
		d.mu.Unlock()
		return prices, nil
	}
	d.mu.Unlock()

	prices, err := d.fetchDay(ctx, key)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.cachedDay = key
	d.cachedAt = now
	d.cachedRaw = prices
	d.mu.Unlock()

	return prices, nil
}

// fetchDay retrieves and decodes the feed document for one day key.
func (d *DayAhead) fetchDay(ctx context.Context, dayKey string) ([]types.RawPrice, error) {
	u, err := url.Parse(d.apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid api url: %w", err)
	}

	params := url.Values{}
	params.Set("date", dayKey)
	params.Set("area", d.area)
	params.Set("format", "json")
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	log.Ctx(ctx).DebugContext(ctx, "fetching day-ahead prices", slog.String("url", u.String()))

	resp, err := d.client.Do(req)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to fetch day-ahead prices", slog.Any("error", err))
		return nil, fmt.Errorf("failed to fetch prices: %w", err)
	}
	defer resp.Body.Close()

	// the feed 404s until the auction for that day has cleared
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("day-ahead api returned status: %d", resp.StatusCode)
	}

	var data []dayAheadEntry
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to decode day-ahead response", slog.Any("error", err))
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	prices := make([]types.RawPrice, 0, len(data))
	for _, item := range data {
		prices = append(prices, types.RawPrice{
			Start: item.Start,
			Value: item.Value,
		})
	}
	sort.Slice(prices, func(i, j int) bool {
		return prices[i].Start.Before(prices[j].Start)
	})

	log.Ctx(ctx).DebugContext(
		ctx,
		"fetched day-ahead prices",
		slog.String("day", dayKey),
		slog.String("area", d.area),
		slog.Int("count", len(prices)),
	)
	return prices, nil
}
