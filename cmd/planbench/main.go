package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/levenlabs/go-lflag"

	"github.com/batplan/batplan/pkg/bench"
	"github.com/batplan/batplan/pkg/log"
	"github.com/batplan/batplan/pkg/report"
	"github.com/batplan/batplan/pkg/storage"
)

func main() {
	// init packages
	s := storage.Configured()
	srv := report.Configured(s)

	suitePath := lflag.String("suite", "", "Path to a YAML benchmark suite file")
	mode := lflag.String("mode", "", "Benchmark mode (fast or statistical), overrides the suite")
	iterations := lflag.String("iterations", "", "Per-strategy iteration count, overrides the suite")
	serve := lflag.Bool("serve", false, "Serve reports over HTTP after the run")

	// parse flags
	lflag.Configure()

	level, err := log.LevelFromLlog()
	if err != nil {
		panic(err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	defer func() {
		if err := s.Close(); err != nil {
			log.Ctx(ctx).Error("failed to close storage", slog.Any("error", err))
		}
	}()

	suite := bench.Suite{}
	if *suitePath != "" {
		suite, err = bench.LoadSuite(*suitePath)
		if err != nil {
			log.Ctx(ctx).Error("failed to load suite", slog.Any("error", err))
			os.Exit(1)
		}
	}
	if *mode != "" {
		suite.Mode = *mode
	}
	if *iterations != "" {
		n, err := strconv.Atoi(*iterations)
		if err != nil || n <= 0 {
			log.Ctx(ctx).Error("invalid iterations", slog.String("value", *iterations))
			os.Exit(1)
		}
		suite.Iterations = n
	}

	h, err := bench.New(suite.HarnessConfig(), s)
	if err != nil {
		log.Ctx(ctx).Error("failed to build harness", slog.Any("error", err))
		os.Exit(1)
	}

	rep, err := h.Run(ctx, suite.Fixtures)
	if err != nil {
		log.Ctx(ctx).Error("benchmark failed", slog.Any("error", err))
		os.Exit(1)
	}
	if err := s.PutReport(ctx, rep); err != nil {
		log.Ctx(ctx).Error("failed to store report", slog.Any("error", err))
		os.Exit(1)
	}

	failures := 0
	for _, run := range rep.Runs {
		if !run.Valid {
			failures++
		}
		log.Ctx(ctx).Info("strategy run",
			slog.String("strategy", run.Strategy),
			slog.String("fixture", run.Fixture),
			slog.Float64("meanSecs", run.MeanSecs),
			slog.Float64("speedup", run.Speedup),
			slog.Bool("valid", run.Valid))
	}
	if failures > 0 {
		log.Ctx(ctx).Warn("strategies outside tolerance", slog.Int("count", failures))
	}

	if *serve {
		if err := srv.Run(ctx); err != nil {
			log.Ctx(ctx).Error("report server failed", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}
	if failures > 0 && rep.Mode == bench.ModeFast {
		os.Exit(1)
	}
}
