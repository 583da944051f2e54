package bench

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/batplan/batplan/pkg/optimizer"
)

// Suite is a benchmark run description loaded from YAML. An empty fixture
// list means every fixture in the store.
type Suite struct {
	Mode       string         `yaml:"mode"`
	Iterations int            `yaml:"iterations"`
	Fixtures   []string       `yaml:"fixtures"`
	Optimizer  SuiteOptimizer `yaml:"optimizer"`
}

// SuiteOptimizer is the optimizer tuning block of a suite file.
type SuiteOptimizer struct {
	QuantStep  float64 `yaml:"quantStep"`
	CoarseStep float64 `yaml:"coarseStep"`
	FinePass   bool    `yaml:"finePass"`
	FineStep   float64 `yaml:"fineStep"`
	Workers    int     `yaml:"workers"`
}

// LoadSuite reads and validates a suite file.
func LoadSuite(path string) (Suite, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Suite{}, fmt.Errorf("failed to read suite %s: %w", path, err)
	}
	var s Suite
	if err := yaml.Unmarshal(b, &s); err != nil {
		return Suite{}, fmt.Errorf("failed to parse suite %s: %w", path, err)
	}
	switch s.Mode {
	case "", ModeFast, ModeStatistical:
	default:
		return Suite{}, fmt.Errorf("suite %s: unknown mode %q", path, s.Mode)
	}
	return s, nil
}

// OptimizerConfig returns the optimizer tuning for this suite.
func (s Suite) OptimizerConfig() optimizer.Config {
	return optimizer.Config{
		QuantStep:  s.Optimizer.QuantStep,
		CoarseStep: s.Optimizer.CoarseStep,
		FinePass:   s.Optimizer.FinePass,
		FineStep:   s.Optimizer.FineStep,
		Workers:    s.Optimizer.Workers,
	}
}

// HarnessConfig returns a harness config running the full strategy registry
// under this suite's tuning.
func (s Suite) HarnessConfig() Config {
	return Config{
		Mode:       s.Mode,
		Iterations: s.Iterations,
		Strategies: optimizer.Registry(s.OptimizerConfig()),
	}
}
