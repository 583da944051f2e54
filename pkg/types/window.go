package types

import (
	"errors"
	"fmt"
)

// ErrInvalidWindow is returned when a time window fails validation.
var ErrInvalidWindow = errors.New("invalid window")

// Window is one charge or export time window. Minute offsets are relative to
// the planning epoch and may be negative (yesterday) or exceed one day.
type Window struct {
	StartMinute  int     `json:"startMinute"`
	EndMinute    int     `json:"endMinute"`
	AveragePrice float64 `json:"averagePrice"`
}

// Validate ensures the window spans a positive duration.
func (w Window) Validate() error {
	if w.StartMinute >= w.EndMinute {
		return fmt.Errorf("%w: start %d >= end %d", ErrInvalidWindow, w.StartMinute, w.EndMinute)
	}
	return nil
}

// DurationMinutes returns the length of the window in minutes.
func (w Window) DurationMinutes() int {
	return w.EndMinute - w.StartMinute
}

// Contains reports whether the given minute offset falls inside the window.
func (w Window) Contains(minute int) bool {
	return minute >= w.StartMinute && minute < w.EndMinute
}

// VariantKind identifies the action a window variant represents.
type VariantKind string

const (
	VariantChargeFull   VariantKind = "chargeFull"
	VariantChargeFreeze VariantKind = "chargeFreeze"
	VariantExportFull   VariantKind = "exportFull"
	VariantExportFreeze VariantKind = "exportFreeze"
)

// Precedence returns the fixed kind ordering used to break ties between
// variants sharing a comparison price and a window slot.
func (k VariantKind) Precedence() int {
	switch k {
	case VariantChargeFull:
		return 0
	case VariantChargeFreeze:
		return 1
	case VariantExportFull:
		return 2
	case VariantExportFreeze:
		return 3
	default:
		return 4
	}
}

// IsCharge reports whether the kind refers to a charge window.
func (k VariantKind) IsCharge() bool {
	return k == VariantChargeFull || k == VariantChargeFreeze
}

// IsFull reports whether the kind commits the window to full action.
func (k VariantKind) IsFull() bool {
	return k == VariantChargeFull || k == VariantExportFull
}

// VariantRef names one variant: a kind plus the index of its window within
// the charge or export window list.
type VariantRef struct {
	Kind     VariantKind `json:"kind"`
	WindowID int         `json:"windowID"`
}

// Key returns the string form used to index variants in fixtures.
func (r VariantRef) Key() string {
	return fmt.Sprintf("%s:%d", r.Kind, r.WindowID)
}

// Variant is one ranked window action candidate.
type Variant struct {
	Kind            VariantKind `json:"kind"`
	WindowID        int         `json:"windowID"`
	RawPrice        float64     `json:"rawPrice"`
	ComparisonPrice float64     `json:"comparisonPrice"`
}

// Ref returns the reference naming this variant.
func (v Variant) Ref() VariantRef {
	return VariantRef{Kind: v.Kind, WindowID: v.WindowID}
}

// PriceLevel is one distinct comparison price and the ordered variants that
// share it.
type PriceLevel struct {
	Price    float64      `json:"price"`
	Variants []VariantRef `json:"variants"`
}

// LossModel holds the conversion-loss coefficients applied when ranking
// windows by their true cost to use.
type LossModel struct {
	// InverterEfficiency is the AC<->DC conversion efficiency (0..1].
	InverterEfficiency float64 `json:"inverterEfficiency"`
	// ChargeLoss is the round-trip loss on the charge path (0..1].
	ChargeLoss float64 `json:"chargeLoss"`
	// DischargeLoss is the round-trip loss on the discharge path (0..1].
	DischargeLoss float64 `json:"dischargeLoss"`
	// CycleWearCost is the per-kWh battery wear cost.
	CycleWearCost float64 `json:"cycleWearCost"`
}

// Normalized returns the model with zero coefficients replaced by the
// lossless defaults so callers can leave them unset.
func (l LossModel) Normalized() LossModel {
	if l.InverterEfficiency == 0 {
		l.InverterEfficiency = 1.0
	}
	if l.ChargeLoss == 0 {
		l.ChargeLoss = 1.0
	}
	if l.DischargeLoss == 0 {
		l.DischargeLoss = 1.0
	}
	return l
}
