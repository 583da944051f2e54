package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/levenlabs/go-lflag"

	"github.com/batplan/batplan/pkg/log"
	"github.com/batplan/batplan/pkg/types"
)

// DiskStore persists fixtures and reports as JSON files under a root
// directory. Fixtures live in fixtures/<name>.json and reports in
// reports/<timestamp>.json, where the timestamp is RFC3339 UTC so
// lexicographic order is chronological order.
type DiskStore struct {
	root string
}

// configuredDisk sets up the disk provider. It registers flags for
// configuration.
func configuredDisk() *DiskStore {
	root := lflag.String("disk-root", "bench-data", "Root directory for the disk storage provider")

	d := &DiskStore{}

	lflag.Do(func() {
		d.root = *root
	})

	return d
}

// NewDiskStore returns a store rooted at the given directory, creating it if
// necessary.
func NewDiskStore(root string) (*DiskStore, error) {
	d := &DiskStore{root: root}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// Validate checks the root directory and creates the layout.
func (d *DiskStore) Validate() error {
	if d.root == "" {
		return fmt.Errorf("disk root cannot be empty")
	}
	for _, dir := range []string{d.fixturesDir(), d.reportsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

func (d *DiskStore) fixturesDir() string { return filepath.Join(d.root, "fixtures") }
func (d *DiskStore) reportsDir() string  { return filepath.Join(d.root, "reports") }

func fixtureFileName(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name != filepath.Base(name) {
		return "", fmt.Errorf("invalid fixture name %q", name)
	}
	return name + ".json", nil
}

// ListFixtures returns the stored fixture names in lexicographic order.
func (d *DiskStore) ListFixtures(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(d.fixturesDir())
	if err != nil {
		return nil, fmt.Errorf("failed to read fixtures dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".json"))
	}
	sort.Strings(names)
	return names, nil
}

// GetFixture loads one fixture by name, migrating older versions in memory.
func (d *DiskStore) GetFixture(ctx context.Context, name string) (types.Fixture, error) {
	file, err := fixtureFileName(name)
	if err != nil {
		return types.Fixture{}, err
	}
	b, err := os.ReadFile(filepath.Join(d.fixturesDir(), file))
	if err != nil {
		if os.IsNotExist(err) {
			return types.Fixture{}, ErrFixtureNotFound
		}
		return types.Fixture{}, fmt.Errorf("failed to read fixture %s: %w", name, err)
	}
	var f types.Fixture
	if err := json.Unmarshal(b, &f); err != nil {
		return types.Fixture{}, fmt.Errorf("failed to unmarshal fixture %s: %w", name, err)
	}
	f, migrated, err := types.MigrateFixture(f)
	if err != nil {
		return types.Fixture{}, fmt.Errorf("failed to migrate fixture %s: %w", name, err)
	}
	if migrated {
		log.Ctx(ctx).Info("migrated fixture", "name", name, "version", f.Version)
	}
	return f, nil
}

// PutFixture writes one fixture, replacing any existing one with the same
// name. The write is atomic via a temp file rename.
func (d *DiskStore) PutFixture(_ context.Context, fixture types.Fixture) error {
	file, err := fixtureFileName(fixture.Name)
	if err != nil {
		return err
	}
	b, err := json.MarshalIndent(fixture, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal fixture %s: %w", fixture.Name, err)
	}
	return writeAtomic(filepath.Join(d.fixturesDir(), file), b)
}

// PutReport appends one benchmark report.
func (d *DiskStore) PutReport(_ context.Context, report types.BenchReport) error {
	b, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	name := report.Timestamp.UTC().Format(time.RFC3339) + ".json"
	return writeAtomic(filepath.Join(d.reportsDir(), name), b)
}

// GetLatestReport returns the most recent stored report.
func (d *DiskStore) GetLatestReport(_ context.Context) (types.BenchReport, error) {
	entries, err := os.ReadDir(d.reportsDir())
	if err != nil {
		return types.BenchReport{}, fmt.Errorf("failed to read reports dir: %w", err)
	}
	latest := ""
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		if e.Name() > latest {
			latest = e.Name()
		}
	}
	if latest == "" {
		return types.BenchReport{}, ErrReportNotFound
	}
	b, err := os.ReadFile(filepath.Join(d.reportsDir(), latest))
	if err != nil {
		return types.BenchReport{}, fmt.Errorf("failed to read report %s: %w", latest, err)
	}
	var r types.BenchReport
	if err := json.Unmarshal(b, &r); err != nil {
		return types.BenchReport{}, fmt.Errorf("failed to unmarshal report %s: %w", latest, err)
	}
	return r, nil
}

// Close is a no-op for the disk provider.
func (d *DiskStore) Close() error { return nil }

func writeAtomic(path string, b []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to rename %s: %w", tmp, err)
	}
	return nil
}

var _ Store = (*DiskStore)(nil)
