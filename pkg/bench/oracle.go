package bench

import (
	"github.com/batplan/batplan/pkg/metric"
	"github.com/batplan/batplan/pkg/optimizer"
	"github.com/batplan/batplan/pkg/sim"
	"github.com/batplan/batplan/pkg/types"
)

// Plant parameters for the synthetic benchmark oracle. Fixtures only carry
// optimizer inputs, so every fixture is scored against the same reference
// plant to keep runs comparable over time.
const (
	oraclePackKWh      = 10.0
	oracleInitialKWh   = 2.0
	oracleChargeKW     = 3.0
	oracleDischargeKW  = 3.0
	oracleLoadKWhStep  = 0.05
	oracleImportRate   = 0.30
	oracleExportRate   = 0.10
	oracleMinHorizon   = 60
	oracleValuationMin = 0.10
)

// SimOracle is the default OracleFactory: a battery simulator over the
// fixture's own windows, with import and export rates taken from the window
// prices (pence converted to currency) and flat defaults elsewhere.
func SimOracle(fixture types.Fixture) (optimizer.Oracle, error) {
	in := fixture.Inputs
	horizon := oracleMinHorizon
	for _, w := range append(append([]types.Window(nil), in.ChargeWindows...), in.ExportWindows...) {
		if w.EndMinute > horizon {
			horizon = w.EndMinute
		}
	}

	const step = 5
	steps := horizon / step
	importRate := make([]float64, steps)
	exportRate := make([]float64, steps)
	for i := 0; i < steps; i++ {
		minute := i * step
		importRate[i] = oracleImportRate
		exportRate[i] = oracleExportRate
		for _, w := range in.ChargeWindows {
			if w.Contains(minute) {
				importRate[i] = w.AveragePrice / 100
			}
		}
		for _, w := range in.ExportWindows {
			if w.Contains(minute) {
				exportRate[i] = w.AveragePrice / 100
			}
		}
	}

	return sim.New(sim.Config{
		StepMinutes:     step,
		HorizonMinutes:  horizon,
		PackCapacityKWh: oraclePackKWh,
		InitialSOCKWh:   oracleInitialKWh,
		ChargeRateKW:    oracleChargeKW,
		DischargeRateKW: oracleDischargeKW,
		LoadKWh:         []float64{oracleLoadKWhStep},
		ImportRate:      importRate,
		ExportRate:      exportRate,
		ChargeWindows:   in.ChargeWindows,
		ExportWindows:   in.ExportWindows,
		Metric: metric.Config{
			BatteryValueScaling: 1,
			InverterEfficiency:  1,
			ChargeLoss:          1,
			DischargeLoss:       1,
			RateMin:             oracleValuationMin,
			RateMax:             oracleValuationMin,
		},
	})
}
