package types

import "fmt"

// Inputs is one planning cycle's optimization problem: the ordered price
// ladder plus the windows and their starting limit assignments. Inputs are
// read-only for the duration of a cycle and round-trip losslessly through
// JSON for fixture-based testing.
type Inputs struct {
	// PriceSet is the ascending list of distinct comparison prices.
	PriceSet []float64 `json:"priceSet"`
	// Levels groups the ordered variants by comparison price, ascending.
	Levels []PriceLevel `json:"levels"`
	// Index maps VariantRef.Key() to the full variant record.
	Index map[string]Variant `json:"index"`

	ChargeWindows []Window `json:"chargeWindows"`
	ExportWindows []Window `json:"exportWindows"`

	// ChargeLimits holds one target SOC percent per charge window
	// (0 = take no action).
	ChargeLimits []float64 `json:"chargeLimits"`
	// ExportLimits holds one floor SOC percent per export window
	// (100 = take no action).
	ExportLimits []float64 `json:"exportLimits"`
}

// Validate checks the structural invariants that every strategy relies on.
func (in Inputs) Validate() error {
	if len(in.ChargeLimits) != len(in.ChargeWindows) {
		return fmt.Errorf("charge limits length %d != charge windows length %d", len(in.ChargeLimits), len(in.ChargeWindows))
	}
	if len(in.ExportLimits) != len(in.ExportWindows) {
		return fmt.Errorf("export limits length %d != export windows length %d", len(in.ExportLimits), len(in.ExportWindows))
	}
	for i, w := range in.ChargeWindows {
		if err := w.Validate(); err != nil {
			return fmt.Errorf("charge window %d: %w", i, err)
		}
	}
	for i, w := range in.ExportWindows {
		if err := w.Validate(); err != nil {
			return fmt.Errorf("export window %d: %w", i, err)
		}
	}
	return nil
}

// Result is the outcome of one optimization run. The limit slices are always
// the same length as the corresponding input slices and are freshly
// allocated, never aliases of the inputs.
type Result struct {
	BestMetric   float64   `json:"bestMetric"`
	Iterations   int       `json:"iterations"`
	ChargeLimits []float64 `json:"chargeLimits"`
	ExportLimits []float64 `json:"exportLimits"`
}

// Prediction is the raw output of the prediction oracle for one candidate
// limit assignment.
type Prediction struct {
	Metric        float64 `json:"metric"`
	Cost          float64 `json:"cost"`
	Cost10        float64 `json:"cost10"`
	SOC           float64 `json:"soc"`
	SOC10         float64 `json:"soc10"`
	BatteryCycle  float64 `json:"batteryCycle"`
	MetricKeep    float64 `json:"metricKeep"`
	FinalCarbonG  float64 `json:"finalCarbonG"`
	FinalIBoost   float64 `json:"finalIBoost"`
	FinalIBoost10 float64 `json:"finalIBoost10"`
}

// CloneLimits returns a fresh copy of a limit slice, preserving nil-ness so
// round trips stay value-identical.
func CloneLimits(limits []float64) []float64 {
	if limits == nil {
		return nil
	}
	out := make([]float64, len(limits))
	copy(out, limits)
	return out
}
