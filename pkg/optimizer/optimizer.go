// Package optimizer solves the discrete charge/export limit assignment
// problem over a price ladder. All strategies implement the same contract
// and must agree with the baseline within the harness tolerance.
package optimizer

import (
	"context"
	"fmt"

	"github.com/batplan/batplan/pkg/types"
)

// Oracle evaluates one candidate limit assignment. Implementations must be
// deterministic and safe to call concurrently with no hidden shared state:
// every strategy and the harness call it many times, sometimes in parallel.
type Oracle interface {
	Predict(chargeLimits, exportLimits []float64) (types.Prediction, error)
}

// BatchOracle is an Oracle that can evaluate many candidates in one call.
type BatchOracle interface {
	Oracle
	PredictBatch(chargeLimits, exportLimits [][]float64) ([]types.Prediction, error)
}

// Strategy is one interchangeable search algorithm.
type Strategy interface {
	Name() string
	Optimize(ctx context.Context, inputs types.Inputs, oracle Oracle) (types.Result, error)
}

// Warmer is implemented by strategies with a one-time setup cost that should
// be excluded from timed benchmarks.
type Warmer interface {
	Warmup(ctx context.Context, inputs types.Inputs) error
}

// Config tunes the search. The zero value gets sensible defaults.
type Config struct {
	// QuantStep is the candidate limit granularity in SOC percent.
	QuantStep float64
	// CoarseStep is the first-pass granularity of the coarse-to-fine
	// strategy.
	CoarseStep float64

	// FinePass enables a second pass re-searching a narrow neighborhood of
	// the first-pass optimum at FineStep granularity.
	FinePass bool
	FineStep float64

	// ActiveCharging biases the search toward the currently commanded
	// assignment to avoid flip-flopping between near-tied candidates.
	ActiveCharging     bool
	ActiveChargeLimits []float64
	ActiveExportLimits []float64
	HysteresisBias     float64

	// Workers bounds the parallel strategy's worker pool.
	Workers int
}

func (c Config) normalized() Config {
	if c.QuantStep <= 0 {
		c.QuantStep = 10
	}
	if c.CoarseStep <= 0 {
		c.CoarseStep = 25
	}
	if c.FineStep <= 0 {
		c.FineStep = 5
	}
	if c.HysteresisBias <= 0 {
		c.HysteresisBias = 0.05
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	return c
}

// quantLevels returns the candidate SOC percents at the given step,
// descending from 100 and always including 0.
func quantLevels(step float64) []float64 {
	vals := make([]float64, 0, int(100/step)+2)
	for v := 100.0; v > 0; v -= step {
		vals = append(vals, v)
	}
	return append(vals, 0)
}

// assignment is one candidate plan: a limit per charge and export window.
type assignment struct {
	charge []float64
	export []float64
}

func newAssignment(in types.Inputs) assignment {
	return assignment{
		charge: types.CloneLimits(in.ChargeLimits),
		export: types.CloneLimits(in.ExportLimits),
	}
}

func (a assignment) clone() assignment {
	return assignment{
		charge: types.CloneLimits(a.charge),
		export: types.CloneLimits(a.export),
	}
}

func equalLimits(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// score applies the hysteresis bias: when charging is already physically
// underway, the currently-active assignment gets a small fixed advantage.
func (c Config) score(metric float64, a assignment) float64 {
	if c.ActiveCharging &&
		equalLimits(a.charge, c.ActiveChargeLimits) &&
		equalLimits(a.export, c.ActiveExportLimits) {
		return metric - c.HysteresisBias
	}
	return metric
}

// evaluator scores a slice of candidate assignments, in order. The
// sequential and parallel strategies differ only here.
type evaluator func(ctx context.Context, oracle Oracle, combos []assignment) ([]types.Prediction, error)

func sequentialEval(_ context.Context, oracle Oracle, combos []assignment) ([]types.Prediction, error) {
	preds := make([]types.Prediction, len(combos))
	for i, a := range combos {
		p, err := oracle.Predict(a.charge, a.export)
		if err != nil {
			return nil, err
		}
		preds[i] = p
	}
	return preds, nil
}

// searchState carries the running optimum through the ladder and refinement
// passes.
type searchState struct {
	best       assignment
	bestScore  float64 // biased, used for comparisons
	bestMetric float64 // raw oracle metric of the winner
	iterations int
}

// fullValues returns a full variant's quantized candidate limits in
// enumeration order.
func fullValues(kind types.VariantKind, levels []float64) []float64 {
	if kind.IsCharge() {
		// descending: most aggressive charge first
		return levels
	}
	// export limits ascend from full export toward inaction
	out := make([]float64, len(levels))
	for i := range levels {
		out[i] = levels[len(levels)-1-i]
	}
	return out
}

// slot is one window-side pair in question at a threshold. A window's Full
// and Freeze variants tied at the same price collapse into one slot whose
// candidates are the quantized ladder plus the committed inaction value.
type slot struct {
	windowID int
	isCharge bool
	values   []float64
}

func appendUnique(vals []float64, v float64) []float64 {
	for _, x := range vals {
		if x == v {
			return vals
		}
	}
	return append(vals, v)
}

// levelSlots resolves a price level's variants into candidate slots. Slot
// order follows first appearance in the level's variant order.
func levelSlots(in types.Inputs, level types.PriceLevel, committed assignment, levels []float64) ([]slot, error) {
	var slots []slot
	find := func(windowID int, isCharge bool) int {
		for i := range slots {
			if slots[i].windowID == windowID && slots[i].isCharge == isCharge {
				return i
			}
		}
		slots = append(slots, slot{windowID: windowID, isCharge: isCharge})
		return len(slots) - 1
	}
	for _, ref := range level.Variants {
		v, ok := in.Index[ref.Key()]
		if !ok {
			return nil, fmt.Errorf("price level %v references unknown variant %s", level.Price, ref.Key())
		}
		i := find(v.WindowID, v.Kind.IsCharge())
		if v.Kind.IsFull() {
			for _, val := range fullValues(v.Kind, levels) {
				slots[i].values = appendUnique(slots[i].values, val)
			}
		} else {
			held := committed.charge[v.WindowID]
			if !v.Kind.IsCharge() {
				held = committed.export[v.WindowID]
			}
			slots[i].values = appendUnique(slots[i].values, held)
		}
	}
	return slots, nil
}

// slotCombos enumerates the discrete cross-product of the slots' candidate
// limits. Combination index ascends with the last slot varying fastest.
func slotCombos(slots []slot, committed assignment) []assignment {
	total := 1
	for _, s := range slots {
		total *= len(s.values)
	}
	combos := make([]assignment, 0, total)
	idx := make([]int, len(slots))
	for {
		a := committed.clone()
		for i, s := range slots {
			if s.isCharge {
				a.charge[s.windowID] = s.values[idx[i]]
			} else {
				a.export[s.windowID] = s.values[idx[i]]
			}
		}
		combos = append(combos, a)

		pos := len(idx) - 1
		for pos >= 0 {
			idx[pos]++
			if idx[pos] < len(slots[pos].values) {
				break
			}
			idx[pos] = 0
			pos--
		}
		if pos < 0 {
			break
		}
	}
	return combos
}

// searchLadder runs the threshold search: at each ascending price level only
// the tied windows are in question, every candidate cross-product entry is
// scored, and the lowest metric wins with earlier-threshold then
// smaller-combination-index tie-breaks.
func (c Config) searchLadder(ctx context.Context, in types.Inputs, oracle Oracle, step float64, eval evaluator) (searchState, error) {
	levels := quantLevels(step)
	cur := newAssignment(in)

	// the starting assignment is always a candidate so the search can
	// choose total inaction
	preds, err := eval(ctx, oracle, []assignment{cur})
	if err != nil {
		return searchState{}, err
	}
	st := searchState{
		best:       cur.clone(),
		bestScore:  c.score(preds[0].Metric, cur),
		bestMetric: preds[0].Metric,
		iterations: 1,
	}

	for _, level := range in.Levels {
		slots, err := levelSlots(in, level, cur, levels)
		if err != nil {
			return searchState{}, err
		}
		combos := slotCombos(slots, cur)
		preds, err := eval(ctx, oracle, combos)
		if err != nil {
			return searchState{}, err
		}
		st.iterations += len(combos)

		// winners are chosen in combination-index order even when the
		// evaluator ran out of order
		for i, p := range preds {
			if s := c.score(p.Metric, combos[i]); s < st.bestScore {
				st.bestScore = s
				st.bestMetric = p.Metric
				st.best = combos[i]
			}
		}
		// cheaper windows keep what was accepted here
		cur = st.best.clone()
	}
	return st, nil
}

// refine re-searches a narrow neighborhood of the current optimum at finer
// quantization to correct discretization error, one window at a time.
func (c Config) refine(ctx context.Context, in types.Inputs, oracle Oracle, st searchState, step, radius float64, eval evaluator) (searchState, error) {
	levels := quantLevels(step)
	inRadius := func(v, center float64) bool {
		d := v - center
		if d < 0 {
			d = -d
		}
		return d <= radius && v != center
	}

	scan := func(limits []float64, i int, setter func(a assignment, v float64)) error {
		center := limits[i]
		var combos []assignment
		// ascending candidate order within the neighborhood
		for j := len(levels) - 1; j >= 0; j-- {
			if !inRadius(levels[j], center) {
				continue
			}
			a := st.best.clone()
			setter(a, levels[j])
			combos = append(combos, a)
		}
		if len(combos) == 0 {
			return nil
		}
		preds, err := eval(ctx, oracle, combos)
		if err != nil {
			return err
		}
		st.iterations += len(combos)
		for j, p := range preds {
			if s := c.score(p.Metric, combos[j]); s < st.bestScore {
				st.bestScore = s
				st.bestMetric = p.Metric
				st.best = combos[j]
			}
		}
		return nil
	}

	for i := range st.best.charge {
		i := i
		if err := scan(st.best.charge, i, func(a assignment, v float64) { a.charge[i] = v }); err != nil {
			return searchState{}, err
		}
	}
	for i := range st.best.export {
		i := i
		if err := scan(st.best.export, i, func(a assignment, v float64) { a.export[i] = v }); err != nil {
			return searchState{}, err
		}
	}
	return st, nil
}

// refineLadder re-runs the full threshold ladder at finer quantization with
// every window's candidates restricted to the neighborhood of a prior
// optimum, then keeps the better of the two passes. Unlike the one-window
// refine scan this replays the baseline's own enumeration, commitment
// context included, over the joint cross-product of each tied set: whenever
// the true optimum sits within the radius per window, the restricted pass
// walks the exact path the unrestricted ladder would and lands on it.
func (c Config) refineLadder(ctx context.Context, in types.Inputs, oracle Oracle, prior searchState, step, radius float64, eval evaluator) (searchState, error) {
	levels := quantLevels(step)
	near := func(v, center float64) bool {
		d := v - center
		if d < 0 {
			d = -d
		}
		return d <= radius
	}

	cur := newAssignment(in)
	preds, err := eval(ctx, oracle, []assignment{cur})
	if err != nil {
		return searchState{}, err
	}
	st := searchState{
		best:       cur.clone(),
		bestScore:  c.score(preds[0].Metric, cur),
		bestMetric: preds[0].Metric,
		iterations: prior.iterations + 1,
	}

	for _, level := range in.Levels {
		slots, err := levelSlots(in, level, cur, levels)
		if err != nil {
			return searchState{}, err
		}
		for i := range slots {
			// the neighborhood stays centered on the prior optimum even as
			// cheaper levels commit new values
			center := prior.best.charge[slots[i].windowID]
			held := cur.charge[slots[i].windowID]
			if !slots[i].isCharge {
				center = prior.best.export[slots[i].windowID]
				held = cur.export[slots[i].windowID]
			}
			vals := slots[i].values[:0]
			for _, v := range slots[i].values {
				if near(v, center) {
					vals = append(vals, v)
				}
			}
			if len(vals) == 0 {
				// a freeze-only slot whose held value sits outside the
				// neighborhood still holds, never moves
				vals = append(vals, held)
			}
			slots[i].values = vals
		}
		combos := slotCombos(slots, cur)
		preds, err := eval(ctx, oracle, combos)
		if err != nil {
			return searchState{}, err
		}
		st.iterations += len(combos)
		for i, p := range preds {
			if s := c.score(p.Metric, combos[i]); s < st.bestScore {
				st.bestScore = s
				st.bestMetric = p.Metric
				st.best = combos[i]
			}
		}
		cur = st.best.clone()
	}

	// the coarse result stands unless the restricted pass strictly beat it
	if st.bestScore >= prior.bestScore {
		st.best = prior.best.clone()
		st.bestScore = prior.bestScore
		st.bestMetric = prior.bestMetric
	}
	return st, nil
}

func (st searchState) result() types.Result {
	return types.Result{
		BestMetric:   st.bestMetric,
		Iterations:   st.iterations,
		ChargeLimits: types.CloneLimits(st.best.charge),
		ExportLimits: types.CloneLimits(st.best.export),
	}
}
