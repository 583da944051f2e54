package storage

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/batplan/batplan/pkg/types"
)

func TestFirestoreStore(t *testing.T) {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("set FIRESTORE_EMULATOR_HOST to run firestore tests")
	}

	// Use a random database for isolation
	randDB := fmt.Sprintf("test-db-%d", time.Now().UnixNano())
	f := &FirestoreStore{
		projectID: "test-project-id",
		database:  randDB,
	}

	ctx := context.Background()
	require.NoError(t, f.Init(ctx))
	defer f.Close()

	t.Run("Validate", func(t *testing.T) {
		require.NoError(t, f.Validate())
	})

	t.Run("Fixtures", func(t *testing.T) {
		_, err := f.GetFixture(ctx, "missing")
		require.ErrorIs(t, err, ErrFixtureNotFound)

		want := testFixture("emulator-fixture")
		require.NoError(t, f.PutFixture(ctx, want))

		got, err := f.GetFixture(ctx, "emulator-fixture")
		require.NoError(t, err)
		assert.Equal(t, want, got)

		names, err := f.ListFixtures(ctx)
		require.NoError(t, err)
		assert.Contains(t, names, "emulator-fixture")
	})

	t.Run("Reports", func(t *testing.T) {
		_, err := f.GetLatestReport(ctx)
		require.ErrorIs(t, err, ErrReportNotFound)

		older := types.BenchReport{
			Timestamp: time.Date(2026, 8, 1, 3, 0, 0, 0, time.UTC),
			Mode:      "fast",
		}
		newer := types.BenchReport{
			Timestamp: time.Date(2026, 8, 2, 3, 0, 0, 0, time.UTC),
			Mode:      "statistical",
		}
		require.NoError(t, f.PutReport(ctx, older))
		require.NoError(t, f.PutReport(ctx, newer))

		got, err := f.GetLatestReport(ctx)
		require.NoError(t, err)
		assert.Equal(t, newer, got)
	})
}
