// Package bench is the benchmark and validation harness. It runs every
// registered strategy against stored fixtures, times them against the
// baseline, and checks the correctness tolerance that keeps the fast
// strategies honest.
package bench

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/batplan/batplan/pkg/log"
	"github.com/batplan/batplan/pkg/optimizer"
	"github.com/batplan/batplan/pkg/storage"
	"github.com/batplan/batplan/pkg/types"
)

const (
	// ModeFast runs few iterations and is the correctness gate for
	// continuous testing.
	ModeFast = "fast"
	// ModeStatistical runs many iterations for performance reporting; it
	// never gates correctness.
	ModeStatistical = "statistical"

	fastIterations        = 3
	statisticalIterations = 25
)

// OracleFactory builds the prediction oracle for one fixture.
type OracleFactory func(fixture types.Fixture) (optimizer.Oracle, error)

// Config tunes one harness run.
type Config struct {
	// Mode is ModeFast or ModeStatistical.
	Mode string
	// Iterations overrides the mode's default per-strategy iteration count.
	Iterations int
	// Strategies are the algorithms under test. The first entry is the
	// correctness and timing baseline.
	Strategies []optimizer.Strategy
	// Oracle builds the prediction oracle per fixture. Defaults to
	// SimOracle.
	Oracle OracleFactory
}

// Harness runs strategies against fixtures from a store.
type Harness struct {
	cfg   Config
	store storage.Store
}

// New validates the config and returns a harness.
func New(cfg Config, store storage.Store) (*Harness, error) {
	switch cfg.Mode {
	case "":
		cfg.Mode = ModeFast
	case ModeFast, ModeStatistical:
	default:
		return nil, fmt.Errorf("unknown mode %q", cfg.Mode)
	}
	if cfg.Iterations <= 0 {
		if cfg.Mode == ModeStatistical {
			cfg.Iterations = statisticalIterations
		} else {
			cfg.Iterations = fastIterations
		}
	}
	if len(cfg.Strategies) == 0 {
		return nil, fmt.Errorf("at least one strategy is required")
	}
	if cfg.Oracle == nil {
		cfg.Oracle = SimOracle
	}
	return &Harness{cfg: cfg, store: store}, nil
}

// Tolerance returns the allowed metric drift from the baseline metric.
func Tolerance(baselineMetric float64) float64 {
	return math.Max(0.01*math.Abs(baselineMetric), 0.1)
}

// Run benchmarks every strategy against the named fixtures. An empty
// fixture list runs everything in the store. Tolerance failures mark the
// run invalid but never abort the rest of the benchmark.
func (h *Harness) Run(ctx context.Context, fixtures []string) (types.BenchReport, error) {
	if len(fixtures) == 0 {
		var err error
		fixtures, err = h.store.ListFixtures(ctx)
		if err != nil {
			return types.BenchReport{}, fmt.Errorf("failed to list fixtures: %w", err)
		}
	}
	if len(fixtures) == 0 {
		return types.BenchReport{}, fmt.Errorf("no fixtures to run")
	}

	report := types.BenchReport{
		Timestamp:  time.Now().UTC(),
		Mode:       h.cfg.Mode,
		Iterations: h.cfg.Iterations,
	}

	for _, name := range fixtures {
		fixture, err := h.store.GetFixture(ctx, name)
		if err != nil {
			return types.BenchReport{}, fmt.Errorf("failed to load fixture %s: %w", name, err)
		}
		oracle, err := h.cfg.Oracle(fixture)
		if err != nil {
			return types.BenchReport{}, fmt.Errorf("failed to build oracle for %s: %w", name, err)
		}

		var baseline types.StrategyRun
		for i, strat := range h.cfg.Strategies {
			run, err := h.runOne(ctx, strat, fixture, oracle)
			if err != nil {
				return types.BenchReport{}, fmt.Errorf("strategy %s on fixture %s: %w", strat.Name(), name, err)
			}

			if i == 0 {
				// the baseline defines correctness and is its own yardstick
				run.Speedup = 1.0
				run.Valid = true
				baseline = run
			} else {
				run.Speedup = baseline.MeanSecs / run.MeanSecs
				run.Delta = math.Abs(run.Result.BestMetric - baseline.Result.BestMetric)
				run.Tolerance = Tolerance(baseline.Result.BestMetric)
				run.Valid = run.Delta <= run.Tolerance
				if !run.Valid {
					log.Ctx(ctx).Warn("strategy outside tolerance",
						"strategy", strat.Name(), "fixture", name,
						"delta", run.Delta, "tolerance", run.Tolerance)
				}
			}
			report.Runs = append(report.Runs, run)
		}
	}
	return report, nil
}

func (h *Harness) runOne(ctx context.Context, strat optimizer.Strategy, fixture types.Fixture, oracle optimizer.Oracle) (types.StrategyRun, error) {
	// one-time compilation cost stays outside the timed loop
	if w, ok := strat.(optimizer.Warmer); ok {
		if err := w.Warmup(ctx, fixture.Inputs); err != nil {
			return types.StrategyRun{}, err
		}
	}

	var total time.Duration
	var result types.Result
	for i := 0; i < h.cfg.Iterations; i++ {
		start := time.Now()
		res, err := strat.Optimize(ctx, fixture.Inputs, oracle)
		total += time.Since(start)
		if err != nil {
			return types.StrategyRun{}, err
		}
		result = res
	}

	return types.StrategyRun{
		Strategy: strat.Name(),
		Fixture:  fixture.Name,
		MeanSecs: total.Seconds() / float64(h.cfg.Iterations),
		Result:   result,
	}, nil
}
