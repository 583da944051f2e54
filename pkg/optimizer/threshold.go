package optimizer

import (
	"context"

	"github.com/batplan/batplan/pkg/log"
	"github.com/batplan/batplan/pkg/types"
)

// Threshold is the baseline strategy: a single sequential pass up the price
// ladder, optionally followed by a fine neighborhood pass. Its results define
// correctness for every other strategy.
type Threshold struct {
	cfg Config
}

func NewThreshold(cfg Config) *Threshold {
	return &Threshold{cfg: cfg.normalized()}
}

func (s *Threshold) Name() string { return "threshold" }

func (s *Threshold) Optimize(ctx context.Context, in types.Inputs, oracle Oracle) (types.Result, error) {
	if err := in.Validate(); err != nil {
		return types.Result{}, err
	}
	st, err := s.cfg.searchLadder(ctx, in, oracle, s.cfg.QuantStep, sequentialEval)
	if err != nil {
		return types.Result{}, err
	}
	if s.cfg.FinePass {
		st, err = s.cfg.refine(ctx, in, oracle, st, s.cfg.FineStep, s.cfg.QuantStep, sequentialEval)
		if err != nil {
			return types.Result{}, err
		}
	}
	log.Ctx(ctx).Debug("threshold search done",
		"metric", st.bestMetric, "iterations", st.iterations)
	return st.result(), nil
}
