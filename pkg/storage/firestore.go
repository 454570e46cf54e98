package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/levenlabs/go-lflag"
	"github.com/spreadpilot/spreadpilot/pkg/log"
	"github.com/spreadpilot/spreadpilot/pkg/types"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreProvider implements the Database interface using Google Cloud
// Firestore. Records are stored as JSON blobs for portability: settings in
// "config/settings", one price snapshot document per day in "prices", and
// the latest evaluation in "evaluations/latest".
type FirestoreProvider struct {
	client    *firestore.Client
	projectID string
	database  string
}

// configuredFirestore sets up the Firestore provider.
// It registers flags for configuration.
func configuredFirestore() *FirestoreProvider {
	projectID := lflag.String("firestore-project-id", "", "Google Cloud Project ID for Firestore")
	database := lflag.String("firestore-database", "", "Google Cloud Firestore Database")
	emulator := lflag.String("firestore-emulator", "", "Use Firestore emulator")

	f := &FirestoreProvider{}

	lflag.Do(func() {
		f.projectID = *projectID
		f.database = *database

		// set this because that's how firestore client expects it
		if *emulator != "" {
			os.Setenv("FIRESTORE_EMULATOR_HOST", *emulator)
		}
	})

	return f
}

// Validate checks if the provider is properly configured.
func (f *FirestoreProvider) Validate() error {
	// Project ID verification could be here, but we allow empty if inferred.
	return nil
}

// Init initializes the Firestore client.
// This must be called before using the provider methods.
func (f *FirestoreProvider) Init(ctx context.Context) error {
	projectID := f.projectID
	if projectID == "" {
		projectID = firestore.DetectProjectID
	}
	database := f.database
	if database == "" {
		database = firestore.DefaultDatabaseID
	}
	client, err := firestore.NewClientWithDatabase(ctx, projectID, database)
	if err != nil {
		return fmt.Errorf("failed to create firestore client (project=%s, database=%s): %w", projectID, database, err)
	}
	f.client = client
	return nil
}

// Close closes the Firestore client connection.
func (f *FirestoreProvider) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}

// GetSettings retrieves the dynamic configuration from the
// "config/settings" document. A missing document yields zero settings at
// version 0, which the migration path fills with defaults.
func (f *FirestoreProvider) GetSettings(ctx context.Context) (types.Settings, int, error) {
	doc, err := f.client.Collection("config").Doc("settings").Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return types.Settings{}, 0, nil
		}
		return types.Settings{}, 0, fmt.Errorf("failed to fetch settings doc: %w", err)
	}

	var version int
	if v, err := doc.DataAt("version"); err == nil {
		if vInt, ok := v.(int64); ok {
			version = int(vInt)
		}
	}

	var s types.Settings
	if err := unmarshalDoc(doc, &s); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to read settings doc", slog.Any("err", err))
		return types.Settings{}, 0, err
	}
	return s, version, nil
}

// SetSettings saves the dynamic configuration to the "config/settings"
// document. The whole document is replaced in one write, so readers never
// observe a partially updated settings object.
func (f *FirestoreProvider) SetSettings(ctx context.Context, settings types.Settings, version int) error {
	jsonBytes, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	_, err = f.client.Collection("config").Doc("settings").Set(ctx, map[string]interface{}{
		"json":    string(jsonBytes),
		"version": version,
	})
	if err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

// UpsertPriceSnapshot stores the raw series for one day. The document ID is
// the "YYYY-MM-DD" day key for lexicographic range queries.
func (f *FirestoreProvider) UpsertPriceSnapshot(ctx context.Context, day string, prices []types.RawPrice) error {
	if day == "" {
		return fmt.Errorf("day key cannot be empty")
	}
	jsonBytes, err := json.Marshal(prices)
	if err != nil {
		return fmt.Errorf("failed to marshal prices: %w", err)
	}

	_, err = f.client.Collection("prices").Doc(day).Set(ctx, map[string]interface{}{
		"json":      string(jsonBytes),
		"updatedAt": time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to upsert price snapshot (day=%s): %w", day, err)
	}
	return nil
}

// GetPriceSnapshot retrieves the raw series stored for one day.
func (f *FirestoreProvider) GetPriceSnapshot(ctx context.Context, day string) ([]types.RawPrice, error) {
	doc, err := f.client.Collection("prices").Doc(day).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, fmt.Errorf("price snapshot (day=%s): %w", day, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to fetch price snapshot (day=%s): %w", day, err)
	}

	var prices []types.RawPrice
	if err := unmarshalDoc(doc, &prices); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to read price snapshot", slog.String("day", day), slog.Any("err", err))
		return nil, err
	}
	return prices, nil
}

// PrunePriceSnapshots deletes snapshot documents with a day key before
// beforeDay and returns how many were removed.
func (f *FirestoreProvider) PrunePriceSnapshots(ctx context.Context, beforeDay string) (int, error) {
	coll := f.client.Collection("prices")
	iter := coll.
		Where(firestore.DocumentID, "<", coll.Doc(beforeDay)).
		Documents(ctx)
	defer iter.Stop()

	deleted := 0
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return deleted, fmt.Errorf("error iterating price snapshots: %w", err)
		}
		if _, err := doc.Ref.Delete(ctx); err != nil {
			return deleted, fmt.Errorf("failed to delete price snapshot %s: %w", doc.Ref.ID, err)
		}
		deleted++
	}
	return deleted, nil
}

// SetLatestEvaluation stores the most recent evaluation result.
func (f *FirestoreProvider) SetLatestEvaluation(ctx context.Context, result types.EvaluationResult) error {
	jsonBytes, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal evaluation: %w", err)
	}

	_, err = f.client.Collection("evaluations").Doc("latest").Set(ctx, map[string]interface{}{
		"json":       string(jsonBytes),
		"computedAt": result.ComputedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to save evaluation: %w", err)
	}
	return nil
}

// GetLatestEvaluation retrieves the most recent stored evaluation result.
func (f *FirestoreProvider) GetLatestEvaluation(ctx context.Context) (types.EvaluationResult, error) {
	doc, err := f.client.Collection("evaluations").Doc("latest").Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return types.EvaluationResult{}, ErrNotFound
		}
		return types.EvaluationResult{}, fmt.Errorf("failed to fetch evaluation doc: %w", err)
	}

	var r types.EvaluationResult
	if err := unmarshalDoc(doc, &r); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to read evaluation doc", slog.Any("err", err))
		return types.EvaluationResult{}, err
	}
	return r, nil
}

// unmarshalDoc decodes the "json" field shared by every document shape.
func unmarshalDoc(doc *firestore.DocumentSnapshot, v interface{}) error {
	val, err := doc.DataAt("json")
	if err != nil {
		return fmt.Errorf("document %s missing 'json' field: %w", doc.Ref.ID, err)
	}
	jsonStr, ok := val.(string)
	if !ok {
		return fmt.Errorf("document %s 'json' field is not a string", doc.Ref.ID)
	}
	if err := json.Unmarshal([]byte(jsonStr), v); err != nil {
		return fmt.Errorf("failed to unmarshal document %s: %w", doc.Ref.ID, err)
	}
	return nil
}
