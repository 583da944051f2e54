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
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/batplan/batplan/pkg/log"
	"github.com/batplan/batplan/pkg/types"
)

// FirestoreStore implements the Store interface using Google Cloud
// Firestore. Fixtures and reports are stored as JSON strings so the on-disk
// and remote formats round-trip identically.
type FirestoreStore struct {
	client    *firestore.Client
	projectID string
	database  string
}

// configuredFirestore sets up the Firestore provider.
// It registers flags for configuration.
func configuredFirestore() *FirestoreStore {
	projectID := lflag.String("firestore-project-id", "", "Google Cloud Project ID for Firestore")
	database := lflag.String("firestore-database", "", "Google Cloud Firestore Database")
	emulator := lflag.String("firestore-emulator", "", "Use Firestore emulator")

	f := &FirestoreStore{}

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
func (f *FirestoreStore) Validate() error {
	// Project ID verification could be here, but we allow empty if inferred.
	return nil
}

// Init initializes the Firestore client.
// This must be called before using the provider methods.
func (f *FirestoreStore) Init(ctx context.Context) error {
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
func (f *FirestoreStore) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}

// ListFixtures returns the stored fixture names in document order.
func (f *FirestoreStore) ListFixtures(ctx context.Context) ([]string, error) {
	iter := f.client.Collection("fixtures").
		OrderBy(firestore.DocumentID, firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	var names []string
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list fixtures: %w", err)
		}
		names = append(names, doc.Ref.ID)
	}
	return names, nil
}

// GetFixture loads one fixture by name, migrating older versions in memory.
func (f *FirestoreStore) GetFixture(ctx context.Context, name string) (types.Fixture, error) {
	doc, err := f.client.Collection("fixtures").Doc(name).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return types.Fixture{}, ErrFixtureNotFound
		}
		return types.Fixture{}, fmt.Errorf("failed to fetch fixture %s: %w", name, err)
	}

	jsonStr, err := docJSON(doc)
	if err != nil {
		log.Ctx(ctx).Warn("fixture doc malformed", slog.String("name", name), slog.Any("err", err))
		return types.Fixture{}, fmt.Errorf("fixture %s: %w", name, err)
	}

	var fx types.Fixture
	if err := json.Unmarshal([]byte(jsonStr), &fx); err != nil {
		return types.Fixture{}, fmt.Errorf("failed to unmarshal fixture %s: %w", name, err)
	}
	fx, migrated, err := types.MigrateFixture(fx)
	if err != nil {
		return types.Fixture{}, fmt.Errorf("failed to migrate fixture %s: %w", name, err)
	}
	if migrated {
		log.Ctx(ctx).Info("migrated fixture", slog.String("name", name), slog.Int("version", fx.Version))
	}
	return fx, nil
}

// PutFixture writes one fixture, replacing any existing one with the same
// name. It stores the fixture as a JSON string for portability.
func (f *FirestoreStore) PutFixture(ctx context.Context, fixture types.Fixture) error {
	if fixture.Name == "" {
		return fmt.Errorf("fixture name cannot be empty")
	}
	jsonBytes, err := json.Marshal(fixture)
	if err != nil {
		return fmt.Errorf("failed to marshal fixture %s: %w", fixture.Name, err)
	}
	_, err = f.client.Collection("fixtures").Doc(fixture.Name).Set(ctx, map[string]interface{}{
		"json":    string(jsonBytes),
		"version": fixture.Version,
	})
	if err != nil {
		return fmt.Errorf("failed to save fixture %s: %w", fixture.Name, err)
	}
	return nil
}

// PutReport appends one benchmark report.
// The document ID is the RFC3339 timestamp for efficient range queries.
func (f *FirestoreStore) PutReport(ctx context.Context, report types.BenchReport) error {
	jsonBytes, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	docID := report.Timestamp.UTC().Format(time.RFC3339)
	_, err = f.client.Collection("reports").Doc(docID).Set(ctx, map[string]interface{}{
		"json":      string(jsonBytes),
		"timestamp": report.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("failed to insert report: %w", err)
	}
	return nil
}

// GetLatestReport returns the most recent stored report.
func (f *FirestoreStore) GetLatestReport(ctx context.Context) (types.BenchReport, error) {
	iter := f.client.Collection("reports").
		OrderBy(firestore.DocumentID, firestore.Desc).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	doc, err := iter.Next()
	if err == iterator.Done {
		return types.BenchReport{}, ErrReportNotFound
	}
	if err != nil {
		return types.BenchReport{}, fmt.Errorf("failed to fetch latest report: %w", err)
	}

	jsonStr, err := docJSON(doc)
	if err != nil {
		return types.BenchReport{}, fmt.Errorf("report %s: %w", doc.Ref.ID, err)
	}
	var r types.BenchReport
	if err := json.Unmarshal([]byte(jsonStr), &r); err != nil {
		return types.BenchReport{}, fmt.Errorf("failed to unmarshal report %s: %w", doc.Ref.ID, err)
	}
	return r, nil
}

func docJSON(doc *firestore.DocumentSnapshot) (string, error) {
	val, err := doc.DataAt("json")
	if err != nil {
		return "", fmt.Errorf("document missing 'json' field: %w", err)
	}
	jsonStr, ok := val.(string)
	if !ok {
		return "", fmt.Errorf("'json' field is not a string")
	}
	return jsonStr, nil
}

var _ Store = (*FirestoreStore)(nil)
