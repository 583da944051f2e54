// Package sim is the minute-stepped battery simulator used as the
// prediction oracle. A Sim is immutable after construction: Predict is a
// pure function of the limit slices, which makes it safe to call from many
// workers at once.
package sim

import (
	"fmt"
	"math"

	"github.com/batplan/batplan/pkg/curve"
	"github.com/batplan/batplan/pkg/metric"
	"github.com/batplan/batplan/pkg/types"
)

// Config describes the plant and forecast data for one planning horizon.
// Forecast slices are indexed per step; missing steps reuse the last value.
type Config struct {
	// StepMinutes is the simulation step size (default 5).
	StepMinutes int
	// HorizonMinutes is the simulated span from the planning epoch.
	HorizonMinutes int

	// PackCapacityKWh is the usable battery capacity.
	PackCapacityKWh float64
	// InitialSOCKWh is the battery energy at the planning epoch.
	InitialSOCKWh float64
	// ChargeRateKW and DischargeRateKW bound battery power.
	ChargeRateKW    float64
	DischargeRateKW float64

	// LoadKWh, PVKWh and PV10KWh are per-step energies. PV10 is the
	// pessimistic (10% confidence) solar scenario.
	LoadKWh  []float64
	PVKWh    []float64
	PV10KWh  []float64
	// ImportRate and ExportRate are per-step prices.
	ImportRate []float64
	ExportRate []float64
	// CarbonIntensity is per-step grid carbon in g/kWh.
	CarbonIntensity []float64

	ChargeWindows []types.Window
	ExportWindows []types.Window

	// ChargeCurve derates the charge rate by SOC percent. An empty table
	// means no derating.
	ChargeCurve curve.Table
	// TemperatureC and TemperatureCurve derate the charge rate by ambient
	// temperature.
	TemperatureC     float64
	TemperatureCurve curve.Table

	// KeepSOCKWh is the reserve level under which metricKeep accrues.
	KeepSOCKWh float64
	// KeepWeight scales the metricKeep penalty.
	KeepWeight float64

	// IBoostEnabled diverts surplus solar to the hot-water boost once the
	// battery is full, up to IBoostMaxKWh at IBoostRateKW.
	IBoostEnabled bool
	IBoostMaxKWh  float64
	IBoostRateKW  float64

	Losses types.LossModel
	Metric metric.Config
}

// Sim evaluates candidate limit assignments. Construct once per planning
// cycle and share freely across workers.
type Sim struct {
	cfg Config
}

// New validates the config and returns a simulator.
func New(cfg Config) (*Sim, error) {
	if cfg.StepMinutes <= 0 {
		cfg.StepMinutes = 5
	}
	if cfg.HorizonMinutes <= 0 {
		return nil, fmt.Errorf("horizon must be positive, got %d", cfg.HorizonMinutes)
	}
	if cfg.PackCapacityKWh <= 0 {
		return nil, fmt.Errorf("pack capacity must be positive, got %f", cfg.PackCapacityKWh)
	}
	for i, w := range cfg.ChargeWindows {
		if err := w.Validate(); err != nil {
			return nil, fmt.Errorf("charge window %d: %w", i, err)
		}
	}
	for i, w := range cfg.ExportWindows {
		if err := w.Validate(); err != nil {
			return nil, fmt.Errorf("export window %d: %w", i, err)
		}
	}
	cfg.Losses = cfg.Losses.Normalized()
	// clone forecast slices so later caller mutation cannot leak in
	cfg.LoadKWh = types.CloneLimits(cfg.LoadKWh)
	cfg.PVKWh = types.CloneLimits(cfg.PVKWh)
	cfg.PV10KWh = types.CloneLimits(cfg.PV10KWh)
	cfg.ImportRate = types.CloneLimits(cfg.ImportRate)
	cfg.ExportRate = types.CloneLimits(cfg.ExportRate)
	cfg.CarbonIntensity = types.CloneLimits(cfg.CarbonIntensity)
	cfg.ChargeWindows = append([]types.Window(nil), cfg.ChargeWindows...)
	cfg.ExportWindows = append([]types.Window(nil), cfg.ExportWindows...)
	return &Sim{cfg: cfg}, nil
}

func at(vals []float64, i int) float64 {
	if len(vals) == 0 {
		return 0
	}
	if i >= len(vals) {
		return vals[len(vals)-1]
	}
	return vals[i]
}

type passResult struct {
	cost     float64
	soc      float64
	cycle    float64
	keep     float64
	carbonG  float64
	iboost   float64
}

// Predict scores one candidate limit assignment. The limit slices are never
// mutated or retained.
func (s *Sim) Predict(chargeLimits, exportLimits []float64) (types.Prediction, error) {
	if len(chargeLimits) != len(s.cfg.ChargeWindows) {
		return types.Prediction{}, fmt.Errorf("charge limits length %d != windows length %d", len(chargeLimits), len(s.cfg.ChargeWindows))
	}
	if len(exportLimits) != len(s.cfg.ExportWindows) {
		return types.Prediction{}, fmt.Errorf("export limits length %d != windows length %d", len(exportLimits), len(s.cfg.ExportWindows))
	}

	normal := s.run(chargeLimits, exportLimits, s.cfg.PVKWh)
	pv10 := s.cfg.PV10KWh
	if len(pv10) == 0 {
		pv10 = s.cfg.PVKWh
	}
	worst := s.run(chargeLimits, exportLimits, pv10)

	p := types.Prediction{
		Cost:          normal.cost,
		Cost10:        worst.cost,
		SOC:           normal.soc,
		SOC10:         worst.soc,
		BatteryCycle:  normal.cycle,
		MetricKeep:    normal.keep,
		FinalCarbonG:  normal.carbonG,
		FinalIBoost:   normal.iboost,
		FinalIBoost10: worst.iboost,
	}
	p.Metric, _ = s.cfg.Metric.Compute(p)
	return p, nil
}

// PredictBatch scores many candidates in one call, in order.
func (s *Sim) PredictBatch(chargeLimits, exportLimits [][]float64) ([]types.Prediction, error) {
	if len(chargeLimits) != len(exportLimits) {
		return nil, fmt.Errorf("batch lengths differ: %d != %d", len(chargeLimits), len(exportLimits))
	}
	out := make([]types.Prediction, len(chargeLimits))
	for i := range chargeLimits {
		p, err := s.Predict(chargeLimits[i], exportLimits[i])
		if err != nil {
			return nil, err
		}
		out[i] = p
	}
	return out, nil
}

// chargeRateKW returns the charge rate available at the given SOC after the
// power-curve and temperature derates.
func (s *Sim) chargeRateKW(soc float64) float64 {
	pct := 0
	if s.cfg.PackCapacityKWh > 0 {
		pct = int(math.Round(soc / s.cfg.PackCapacityKWh * 100))
	}
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	mult := math.Min(s.cfg.ChargeCurve.Multiplier(pct), s.cfg.TemperatureCurve.TemperatureMultiplier(s.cfg.TemperatureC))
	return s.cfg.ChargeRateKW * mult
}

// activeWindow returns the index of the first window containing the minute,
// or -1.
func activeWindow(windows []types.Window, minute int) int {
	for i, w := range windows {
		if w.Contains(minute) {
			return i
		}
	}
	return -1
}

func (s *Sim) run(chargeLimits, exportLimits []float64, pv []float64) passResult {
	cfg := s.cfg
	stepH := float64(cfg.StepMinutes) / 60

	soc := cfg.InitialSOCKWh
	var r passResult

	for minute, step := 0, 0; minute < cfg.HorizonMinutes; minute, step = minute+cfg.StepMinutes, step+1 {
		load := at(cfg.LoadKWh, step)
		solar := at(pv, step)
		importRate := at(cfg.ImportRate, step)
		exportRate := at(cfg.ExportRate, step)
		carbon := at(cfg.CarbonIntensity, step)

		gridKWh := load - solar // positive imports, negative exports

		// battery dispatch in priority order: commanded charge, commanded
		// export, then default self-use
		chargeIdx := activeWindow(cfg.ChargeWindows, minute)
		exportIdx := activeWindow(cfg.ExportWindows, minute)

		switch {
		case chargeIdx >= 0 && chargeLimits[chargeIdx] > 0:
			target := chargeLimits[chargeIdx] / 100 * cfg.PackCapacityKWh
			if soc < target {
				add := min(s.chargeRateKW(soc)*stepH, target-soc)
				soc += add
				r.cycle += add
				// grid supplies the charge energy plus conversion losses
				gridKWh += add / cfg.Losses.ChargeLoss / cfg.Losses.InverterEfficiency
			}
		case exportIdx >= 0 && exportLimits[exportIdx] < 100:
			floor := exportLimits[exportIdx] / 100 * cfg.PackCapacityKWh
			if soc > floor {
				draw := min(cfg.DischargeRateKW*stepH, soc-floor)
				soc -= draw
				r.cycle += draw
				gridKWh -= draw * cfg.Losses.DischargeLoss * cfg.Losses.InverterEfficiency
			}
		case gridKWh > 0:
			// cover load from the battery
			draw := min(cfg.DischargeRateKW*stepH, soc, gridKWh/(cfg.Losses.DischargeLoss*cfg.Losses.InverterEfficiency))
			soc -= draw
			r.cycle += draw
			gridKWh -= draw * cfg.Losses.DischargeLoss * cfg.Losses.InverterEfficiency
		case gridKWh < 0:
			// store surplus solar
			surplus := -gridKWh
			add := min(s.chargeRateKW(soc)*stepH, cfg.PackCapacityKWh-soc, surplus*cfg.Losses.ChargeLoss*cfg.Losses.InverterEfficiency)
			if add > 0 {
				soc += add
				r.cycle += add
				gridKWh += add / (cfg.Losses.ChargeLoss * cfg.Losses.InverterEfficiency)
			}
			if cfg.IBoostEnabled && gridKWh < 0 && r.iboost < cfg.IBoostMaxKWh {
				divert := min(-gridKWh, cfg.IBoostRateKW*stepH, cfg.IBoostMaxKWh-r.iboost)
				r.iboost += divert
				gridKWh += divert
			}
		}

		if gridKWh > 0 {
			r.cost += gridKWh * importRate
			r.carbonG += gridKWh * carbon
		} else if gridKWh < 0 {
			r.cost += gridKWh * exportRate
		}

		if soc < cfg.KeepSOCKWh {
			// penalize dipping into the reserve at the going import rate
			r.keep += (cfg.KeepSOCKWh - soc) * importRate * cfg.KeepWeight * stepH
		}
	}

	r.soc = soc
	return r
}
