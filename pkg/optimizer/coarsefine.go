package optimizer

import (
	"context"

	"github.com/batplan/batplan/pkg/types"
)

// CoarseFine searches the ladder at a coarse quantization first, then
// re-runs the ladder at the normal step with candidates restricted to the
// neighborhood of the coarse optimum. The second pass keeps the joint
// cross-product over each tied set so a coarse result one basin over can
// still reach the baseline optimum.
type CoarseFine struct {
	cfg Config
}

func NewCoarseFine(cfg Config) *CoarseFine {
	return &CoarseFine{cfg: cfg.normalized()}
}

func (s *CoarseFine) Name() string { return "coarse-fine" }

func (s *CoarseFine) Optimize(ctx context.Context, in types.Inputs, oracle Oracle) (types.Result, error) {
	if err := in.Validate(); err != nil {
		return types.Result{}, err
	}
	st, err := s.cfg.searchLadder(ctx, in, oracle, s.cfg.CoarseStep, sequentialEval)
	if err != nil {
		return types.Result{}, err
	}
	st, err = s.cfg.refineLadder(ctx, in, oracle, st, s.cfg.QuantStep, s.cfg.CoarseStep, sequentialEval)
	if err != nil {
		return types.Result{}, err
	}
	if s.cfg.FinePass {
		st, err = s.cfg.refine(ctx, in, oracle, st, s.cfg.FineStep, s.cfg.QuantStep, sequentialEval)
		if err != nil {
			return types.Result{}, err
		}
	}
	return st.result(), nil
}
