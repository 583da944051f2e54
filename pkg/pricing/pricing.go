// Package pricing converts raw charge/export time windows into the
// loss-adjusted, deterministically ordered price ladder consumed by the
// optimizer. Grid price alone does not rank windows correctly once
// conversion losses and wear are accounted for: a nominally cheap window can
// be more expensive to actually use than a nominally pricier one.
package pricing

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/batplan/batplan/pkg/log"
	"github.com/batplan/batplan/pkg/types"
)

// ComparisonPrices returns the full-action and freeze comparison prices for
// one charge window. Charging costs more than the sticker price because
// conversion and charge-path losses mean more grid energy per stored kWh,
// and every stored kWh carries wear cost.
func ComparisonPrices(kind types.VariantKind, avg float64, losses types.LossModel) (full, freeze float64) {
	l := losses.Normalized()
	switch {
	case kind.IsCharge():
		full = avg/l.InverterEfficiency/l.ChargeLoss + l.CycleWearCost
	default:
		full = avg*l.InverterEfficiency*l.DischargeLoss - l.CycleWearCost
	}
	return full, avg
}

// Build turns the charge/export windows and their starting limits into a
// complete optimizer input set. Windows are validated up front: silently
// dropping a malformed window would corrupt every later threshold's
// accounting.
func Build(ctx context.Context, chargeWindows, exportWindows []types.Window, chargeLimits, exportLimits []float64, losses types.LossModel) (types.Inputs, error) {
	for i, w := range chargeWindows {
		if err := w.Validate(); err != nil {
			return types.Inputs{}, fmt.Errorf("charge window %d: %w", i, err)
		}
	}
	for i, w := range exportWindows {
		if err := w.Validate(); err != nil {
			return types.Inputs{}, fmt.Errorf("export window %d: %w", i, err)
		}
	}
	if chargeLimits == nil {
		chargeLimits = make([]float64, len(chargeWindows))
	}
	if exportLimits == nil {
		exportLimits = make([]float64, len(exportWindows))
		for i := range exportLimits {
			exportLimits[i] = 100
		}
	}
	if len(chargeLimits) != len(chargeWindows) {
		return types.Inputs{}, fmt.Errorf("charge limits length %d != windows length %d", len(chargeLimits), len(chargeWindows))
	}
	if len(exportLimits) != len(exportWindows) {
		return types.Inputs{}, fmt.Errorf("export limits length %d != windows length %d", len(exportLimits), len(exportWindows))
	}

	variants := make([]types.Variant, 0, 2*(len(chargeWindows)+len(exportWindows)))
	addWindow := func(fullKind, freezeKind types.VariantKind, id int, avg float64) {
		full, freeze := ComparisonPrices(fullKind, avg, losses)
		variants = append(variants,
			types.Variant{Kind: fullKind, WindowID: id, RawPrice: avg, ComparisonPrice: full},
			types.Variant{Kind: freezeKind, WindowID: id, RawPrice: avg, ComparisonPrice: freeze},
		)
	}
	for i, w := range chargeWindows {
		addWindow(types.VariantChargeFull, types.VariantChargeFreeze, i, w.AveragePrice)
	}
	for i, w := range exportWindows {
		addWindow(types.VariantExportFull, types.VariantExportFreeze, i, w.AveragePrice)
	}

	windowStart := func(v types.Variant) int {
		if v.Kind.IsCharge() {
			return chargeWindows[v.WindowID].StartMinute
		}
		return exportWindows[v.WindowID].StartMinute
	}

	// Deterministic ordering: comparison price ascending, then chronological
	// window order, then kind precedence. Downstream code caches and diffs
	// plans so repeated runs on identical inputs must be byte-identical.
	sort.SliceStable(variants, func(i, j int) bool {
		a, b := variants[i], variants[j]
		if a.ComparisonPrice != b.ComparisonPrice {
			return a.ComparisonPrice < b.ComparisonPrice
		}
		sa, sb := windowStart(a), windowStart(b)
		if sa != sb {
			return sa < sb
		}
		if a.Kind.Precedence() != b.Kind.Precedence() {
			return a.Kind.Precedence() < b.Kind.Precedence()
		}
		return a.WindowID < b.WindowID
	})

	inputs := types.Inputs{
		ChargeWindows: append([]types.Window(nil), chargeWindows...),
		ExportWindows: append([]types.Window(nil), exportWindows...),
		ChargeLimits:  types.CloneLimits(chargeLimits),
		ExportLimits:  types.CloneLimits(exportLimits),
		Index:         make(map[string]types.Variant, len(variants)),
	}
	for _, v := range variants {
		inputs.Index[v.Ref().Key()] = v

		n := len(inputs.Levels)
		if n == 0 || inputs.Levels[n-1].Price != v.ComparisonPrice {
			inputs.PriceSet = append(inputs.PriceSet, v.ComparisonPrice)
			inputs.Levels = append(inputs.Levels, types.PriceLevel{Price: v.ComparisonPrice})
			n++
		}
		inputs.Levels[n-1].Variants = append(inputs.Levels[n-1].Variants, v.Ref())
	}

	log.Ctx(ctx).DebugContext(ctx, "built price ladder",
		slog.Int("chargeWindows", len(chargeWindows)),
		slog.Int("exportWindows", len(exportWindows)),
		slog.Int("priceLevels", len(inputs.PriceSet)),
	)
	return inputs, nil
}
