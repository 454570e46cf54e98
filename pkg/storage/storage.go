// Package storage persists the planner's settings, daily price snapshots,
// and the latest evaluation.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/levenlabs/go-lflag"
	"github.com/spreadpilot/spreadpilot/pkg/types"
)

// ErrNotFound is returned when a requested snapshot or evaluation does not
// exist yet.
var ErrNotFound = errors.New("not found")

// Database defines the interface for persisting data and retrieving
// settings.
type Database interface {
	// Settings
	GetSettings(ctx context.Context) (types.Settings, int, error)
	SetSettings(ctx context.Context, settings types.Settings, version int) error

	// Price snapshots, one per local day keyed "YYYY-MM-DD".
	UpsertPriceSnapshot(ctx context.Context, day string, prices []types.RawPrice) error
	GetPriceSnapshot(ctx context.Context, day string) ([]types.RawPrice, error)
	// PrunePriceSnapshots deletes snapshots older than the given day key.
	PrunePriceSnapshots(ctx context.Context, beforeDay string) (int, error)

	// Latest evaluation, for dashboards and as a restart fallback.
	SetLatestEvaluation(ctx context.Context, result types.EvaluationResult) error
	GetLatestEvaluation(ctx context.Context) (types.EvaluationResult, error)

	// Lifecycle
	Close() error
}

// Configured sets up the storage provider based on flags.
func Configured() Database {
	provider := lflag.String("storage-provider", "firestore", "Storage provider to use (available: firestore)")

	var p struct{ Database }

	fs := configuredFirestore()

	lflag.Do(func() {
		switch *provider {
		case "firestore":
			if err := fs.Validate(); err != nil {
				panic(fmt.Sprintf("firestore validation failed: %v", err))
			}
			p.Database = fs
			if err := fs.Init(context.Background()); err != nil {
				panic(fmt.Sprintf("firestore init failed: %v", err))
			}
		default:
			panic(fmt.Sprintf("unknown storage provider: %s", *provider))
		}
	})

	return &p
}
