package optimizer

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/batplan/batplan/pkg/types"
)

// Batched evaluates each threshold's candidate cross-product concurrently.
// When the oracle supports batch prediction the whole level goes through one
// call; otherwise a bounded worker pool fans the candidates out. Winner
// selection still happens in combination-index order, so results match the
// baseline exactly.
type Batched struct {
	cfg Config
}

func NewBatched(cfg Config) *Batched {
	return &Batched{cfg: cfg.normalized()}
}

func (s *Batched) Name() string { return "batched" }

func (s *Batched) eval(ctx context.Context, oracle Oracle, combos []assignment) ([]types.Prediction, error) {
	if bo, ok := oracle.(BatchOracle); ok {
		charge := make([][]float64, len(combos))
		export := make([][]float64, len(combos))
		for i, a := range combos {
			charge[i] = a.charge
			export[i] = a.export
		}
		return bo.PredictBatch(charge, export)
	}

	preds := make([]types.Prediction, len(combos))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for i, a := range combos {
		i, a := i, a
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			p, err := oracle.Predict(a.charge, a.export)
			if err != nil {
				return err
			}
			preds[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return preds, nil
}

func (s *Batched) Optimize(ctx context.Context, in types.Inputs, oracle Oracle) (types.Result, error) {
	if err := in.Validate(); err != nil {
		return types.Result{}, err
	}
	st, err := s.cfg.searchLadder(ctx, in, oracle, s.cfg.QuantStep, s.eval)
	if err != nil {
		return types.Result{}, err
	}
	if s.cfg.FinePass {
		st, err = s.cfg.refine(ctx, in, oracle, st, s.cfg.FineStep, s.cfg.QuantStep, s.eval)
		if err != nil {
			return types.Result{}, err
		}
	}
	return st.result(), nil
}
