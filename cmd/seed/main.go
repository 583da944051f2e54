// Command seed populates the fixture store with synthetic day-shaped price
// fixtures for benchmarking.
package main

import (
	"context"
	"log/slog"
	"math/rand"
	"os"
	"strconv"

	"github.com/levenlabs/go-lflag"

	"github.com/batplan/batplan/pkg/log"
	"github.com/batplan/batplan/pkg/pricing"
	"github.com/batplan/batplan/pkg/storage"
	"github.com/batplan/batplan/pkg/types"
)

func main() {
	s := storage.Configured()
	seed := lflag.String("seed", "1", "RNG seed for price jitter")
	lflag.Configure()

	level, err := log.LevelFromLlog()
	if err != nil {
		panic(err)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})))

	ctx := context.Background()
	defer func() {
		if err := s.Close(); err != nil {
			log.Ctx(ctx).Error("failed to close storage", slog.Any("error", err))
		}
	}()

	log.Ctx(ctx).Info("seeding fixtures")

	seedVal, err := strconv.ParseInt(*seed, 10, 64)
	if err != nil {
		log.Ctx(ctx).Error("invalid seed", slog.String("value", *seed))
		os.Exit(1)
	}
	rng := rand.New(rand.NewSource(seedVal))
	losses := types.LossModel{InverterEfficiency: 0.96, ChargeLoss: 0.97, DischargeLoss: 0.97, CycleWearCost: 0.5}

	for _, day := range []struct {
		name   string
		jitter float64
	}{
		{name: "typical-day", jitter: 0},
		{name: "jittery-day", jitter: 1.0},
		{name: "volatile-day", jitter: 4.0},
	} {
		charge, export := dayWindows(rng, day.jitter)
		in, err := pricing.Build(ctx, charge, export, nil, nil, losses)
		if err != nil {
			log.Ctx(ctx).Error("failed to build inputs", slog.String("fixture", day.name), slog.Any("error", err))
			os.Exit(1)
		}
		fixture := types.Fixture{
			Version: types.CurrentFixtureVersion,
			Name:    day.name,
			Inputs:  in,
		}
		if err := s.PutFixture(ctx, fixture); err != nil {
			log.Ctx(ctx).Error("failed to store fixture", slog.String("fixture", day.name), slog.Any("error", err))
			os.Exit(1)
		}
		log.Ctx(ctx).Info("stored fixture",
			slog.String("fixture", day.name),
			slog.Int("levels", len(in.Levels)),
			slog.Int("chargeWindows", len(charge)),
			slog.Int("exportWindows", len(export)))
	}
}

// dayWindows builds hourly charge and export windows over one day using a
// typical tariff shape: cheap overnight and mid-day, expensive morning and
// evening peaks. Prices are in p/kWh.
func dayWindows(rng *rand.Rand, jitter float64) (charge, export []types.Window) {
	for hour := 0; hour < 24; hour++ {
		price := 8.0
		switch {
		case hour >= 6 && hour < 9:
			price = 22.0 // morning peak
		case hour >= 10 && hour < 15:
			price = 5.0 // mid-day lull
		case hour >= 17 && hour < 21:
			price = 35.0 // evening peak
		case hour >= 21:
			price = 10.0 // night
		}
		price += (rng.Float64()*2 - 1) * jitter

		w := types.Window{
			StartMinute:  hour * 60,
			EndMinute:    (hour + 1) * 60,
			AveragePrice: price,
		}
		if price <= 12 {
			charge = append(charge, w)
		} else {
			export = append(export, w)
		}
	}
	return charge, export
}
