// Package storagemock provides a testify mock of the storage.Store
// interface.
package storagemock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/batplan/batplan/pkg/storage"
	"github.com/batplan/batplan/pkg/types"
)

type MockStore struct {
	mock.Mock
}

var _ storage.Store = (*MockStore)(nil)

func (m *MockStore) ListFixtures(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	names, _ := args.Get(0).([]string)
	return names, args.Error(1)
}

func (m *MockStore) GetFixture(ctx context.Context, name string) (types.Fixture, error) {
	args := m.Called(ctx, name)
	f, _ := args.Get(0).(types.Fixture)
	return f, args.Error(1)
}

func (m *MockStore) PutFixture(ctx context.Context, fixture types.Fixture) error {
	args := m.Called(ctx, fixture)
	return args.Error(0)
}

func (m *MockStore) PutReport(ctx context.Context, report types.BenchReport) error {
	args := m.Called(ctx, report)
	return args.Error(0)
}

func (m *MockStore) GetLatestReport(ctx context.Context) (types.BenchReport, error) {
	args := m.Called(ctx)
	r, _ := args.Get(0).(types.BenchReport)
	return r, args.Error(1)
}

func (m *MockStore) Close() error {
	args := m.Called()
	return args.Error(0)
}
