package storage

import (
	"context"
	"errors"

	"github.com/batplan/batplan/pkg/types"
)

var (
	ErrFixtureNotFound = errors.New("fixture not found")
	ErrReportNotFound  = errors.New("report not found")
)

// Store defines the interface for persisting benchmark fixtures and reports.
type Store interface {
	// Fixtures
	ListFixtures(ctx context.Context) ([]string, error)
	GetFixture(ctx context.Context, name string) (types.Fixture, error)
	PutFixture(ctx context.Context, fixture types.Fixture) error

	// Reports
	PutReport(ctx context.Context, report types.BenchReport) error
	GetLatestReport(ctx context.Context) (types.BenchReport, error)

	// Lifecycle
	Close() error
}
