package curve

import (
	"context"
	"log/slog"
	"math"

	"github.com/batplan/batplan/pkg/log"
	"github.com/batplan/batplan/pkg/types"
)

const (
	// rateStepW is the granularity of candidate charge-rate settings.
	rateStepW = 100.0
	// simStepMinutes is the trajectory simulation time increment.
	simStepMinutes = 5
)

// Request describes one charge-rate solve for a currently active charge
// window. SOC values are in kWh, rates in watts.
type Request struct {
	NowMinute  int
	CurrentSOC float64
	Window     types.Window
	TargetSOC  float64

	MaxRateW        float64
	PackCapacityKWh float64
	ChargeCurve     Table

	LowPowerMode      bool
	LowPowerMarginMin int
	MinRateW          float64
	RateScaling       float64
	ChargeLoss        float64

	TemperatureC     float64
	TemperatureCurve Table

	// ActiveRateW is the charge rate currently commanded, for the stability
	// rule.
	ActiveRateW float64
}

func (r Request) normalized() Request {
	if r.RateScaling == 0 {
		r.RateScaling = 1
	}
	if r.ChargeLoss == 0 {
		r.ChargeLoss = 1
	}
	return r
}

// achieved returns the rate (W) the battery actually accepts at the given
// SOC when the inverter is set to rateW.
func (r Request) achieved(rateW, socKWh float64) float64 {
	pct := 0
	if r.PackCapacityKWh > 0 {
		pct = int(math.Round(socKWh / r.PackCapacityKWh * 100))
	}
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	mult := math.Min(r.ChargeCurve.Multiplier(pct), r.TemperatureCurve.TemperatureMultiplier(r.TemperatureC))
	return math.Min(rateW*r.RateScaling, r.MaxRateW*mult)
}

// reaches simulates SOC growth at the given rate setting in fixed time
// increments, applying the charge curve and temperature derating at every
// step, and reports whether the target is hit by the deadline.
func (r Request) reaches(rateW float64, deadlineMin int) bool {
	soc := r.CurrentSOC
	for m := r.NowMinute; m < deadlineMin; m += simStepMinutes {
		step := simStepMinutes
		if deadlineMin-m < step {
			step = deadlineMin - m
		}
		soc += r.achieved(rateW, soc) / 1000 * (float64(step) / 60) * r.ChargeLoss
		if soc > r.PackCapacityKWh {
			soc = r.PackCapacityKWh
		}
		if soc >= r.TargetSOC {
			return true
		}
	}
	return soc >= r.TargetSOC
}

// FindChargeRate picks the lowest safe charge power that still meets the
// window deadline. It returns the selected rate setting and the
// curve-limited rate that setting achieves at the current SOC.
func FindChargeRate(ctx context.Context, req Request) (selectedW, achievableW float64) {
	req = req.normalized()
	maxAch := req.achieved(req.MaxRateW, req.CurrentSOC)

	if !req.LowPowerMode {
		return req.MaxRateW, maxAch
	}
	if req.CurrentSOC >= req.TargetSOC || req.NowMinute >= req.Window.EndMinute {
		return req.stabilized(req.MaxRateW, maxAch)
	}

	deadline := req.Window.EndMinute - req.LowPowerMarginMin
	if deadline <= req.NowMinute || !req.reaches(req.MaxRateW, deadline) {
		// even flat out we miss the target, throttling only makes it worse
		return req.stabilized(req.MaxRateW, maxAch)
	}

	// theoretical minimum constant rate to hit the target in time
	remainHours := float64(deadline-req.NowMinute) / 60
	minRateW := (req.TargetSOC - req.CurrentSOC) / remainHours / req.ChargeLoss * 1000
	if minRateW < req.MinRateW {
		minRateW = req.MinRateW
	}

	best := req.MaxRateW
	for cand := req.MaxRateW - rateStepW; cand >= minRateW; cand -= rateStepW {
		if !req.reaches(cand, deadline) {
			// charging is monotone in the rate setting, lower candidates
			// also miss
			break
		}
		best = cand
	}

	log.Ctx(ctx).DebugContext(ctx, "low power charge rate selected",
		slog.Float64("selectedW", best),
		slog.Float64("minRateW", minRateW),
		slog.Float64("achievableW", req.achieved(best, req.CurrentSOC)),
	)
	return req.stabilized(best, req.achieved(best, req.CurrentSOC))
}

// stabilized applies the flip-flop guard: when both the new selection and
// the presently active rate already sit at the curve's achievable ceiling
// for the current SOC, switching has no physical benefit, so the active rate
// is kept.
func (r Request) stabilized(selectedW, achievableW float64) (float64, float64) {
	if r.ActiveRateW <= 0 || r.ActiveRateW == selectedW {
		return selectedW, achievableW
	}
	ceiling := r.achieved(r.MaxRateW, r.CurrentSOC)
	if r.achieved(selectedW, r.CurrentSOC) >= ceiling && r.achieved(r.ActiveRateW, r.CurrentSOC) >= ceiling {
		return r.ActiveRateW, ceiling
	}
	return selectedW, achievableW
}
