package types

import (
	"fmt"
	"time"
)

// CurrentFixtureVersion is the current version of the fixture format.
// Increment this value when adding new fields that need default values.
const CurrentFixtureVersion = 2

// Fixture is a persisted snapshot of optimizer inputs used by the benchmark
// harness. Fixtures are never live planning state.
type Fixture struct {
	Version int    `json:"version"`
	Name    string `json:"name"`
	Inputs  Inputs `json:"inputs"`
}

// MigrateFixture migrates a fixture to the current version. It returns the
// migrated fixture, whether anything changed, and an error if the version is
// unknown.
func MigrateFixture(f Fixture) (Fixture, bool, error) {
	if f.Version >= CurrentFixtureVersion {
		return f, false, nil
	}

	migrated := false
	for version := f.Version + 1; version <= CurrentFixtureVersion; version++ {
		switch version {
		case 1:
			// version 1: initial format
		case 2:
			// version 2: limits became mandatory, default to inaction
			if f.Inputs.ChargeLimits == nil && len(f.Inputs.ChargeWindows) > 0 {
				f.Inputs.ChargeLimits = make([]float64, len(f.Inputs.ChargeWindows))
				migrated = true
			}
			if f.Inputs.ExportLimits == nil && len(f.Inputs.ExportWindows) > 0 {
				f.Inputs.ExportLimits = make([]float64, len(f.Inputs.ExportWindows))
				for i := range f.Inputs.ExportLimits {
					f.Inputs.ExportLimits[i] = 100
				}
				migrated = true
			}
		default:
			return f, false, fmt.Errorf("unknown fixture version: %d", version)
		}
	}
	f.Version = CurrentFixtureVersion

	return f, migrated, nil
}

// StrategyRun is the harness outcome for one strategy against one fixture.
type StrategyRun struct {
	Strategy  string  `json:"strategy"`
	Fixture   string  `json:"fixture"`
	MeanSecs  float64 `json:"meanSecs"`
	Speedup   float64 `json:"speedup"`
	Valid     bool    `json:"valid"`
	Delta     float64 `json:"delta"`
	Tolerance float64 `json:"tolerance"`
	Result    Result  `json:"result"`
}

// BenchReport is one full harness run across every strategy and fixture.
type BenchReport struct {
	Timestamp  time.Time     `json:"timestamp"`
	Mode       string        `json:"mode"`
	Iterations int           `json:"iterations"`
	Runs       []StrategyRun `json:"runs"`
}
