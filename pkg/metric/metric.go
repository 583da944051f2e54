// Package metric turns one simulated plan's raw outputs into the single
// scalar objective that every search strategy minimizes.
package metric

import "github.com/batplan/batplan/pkg/types"

// Config holds the valuation coefficients for the cost metric. The zero
// value scores raw cost only.
type Config struct {
	// BatteryValueScaling scales the residual value credited for energy left
	// in the battery at the end of the plan.
	BatteryValueScaling float64 `json:"batteryValueScaling"`
	// RateExportMin is the floor export rate used when valuing residual SOC.
	RateExportMin float64 `json:"rateExportMin"`
	// IBoostValueScaling scales the value credited for diverted hot-water energy.
	IBoostValueScaling float64 `json:"iboostValueScaling"`

	InverterEfficiency float64 `json:"inverterEfficiency"`
	ChargeLoss         float64 `json:"chargeLoss"`
	DischargeLoss      float64 `json:"dischargeLoss"`
	CycleWearCost      float64 `json:"cycleWearCost"`

	// PV10Weight hedges toward the pessimistic (10% confidence) PV scenario.
	PV10Weight float64 `json:"pv10Weight"`

	CarbonEnabled bool    `json:"carbonEnabled"`
	CarbonPrice   float64 `json:"carbonPrice"`

	// RateMin and RateMax bound the rate used to value residual battery energy.
	RateMin float64 `json:"rateMin"`
	RateMax float64 `json:"rateMax"`
}

// Compute scores one prediction. It is a pure function: identical inputs
// always produce identical outputs, because strategies compare results
// across thousands of invocations.
func (c Config) Compute(p types.Prediction) (metric, batteryValue float64) {
	valuationRate := min(c.RateMin, c.RateMax*c.InverterEfficiency*c.ChargeLoss-c.CycleWearCost)
	valuationRate = max(valuationRate, c.RateExportMin, 0)

	batteryValue = p.SOC * c.BatteryValueScaling * valuationRate

	metric = p.Cost - batteryValue
	metric -= p.FinalIBoost * c.IBoostValueScaling
	metric += p.MetricKeep
	metric += (p.Cost10 - p.Cost) * c.PV10Weight
	if c.CarbonEnabled {
		metric += (p.FinalCarbonG / 1000) * c.CarbonPrice
	}
	metric += p.BatteryCycle * c.CycleWearCost
	return metric, batteryValue
}
