package optimizer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/verte-zerg/kbopt/internal/generator"
	"github.com/verte-zerg/kbopt/internal/keyboard"
	"github.com/verte-zerg/kbopt/internal/metrics"
	"github.com/verte-zerg/kbopt/internal/telemetry"
	"github.com/verte-zerg/kbopt/internal/ttable"
)

// Climb repeatedly applies the single swap that lowers the objective most,
// until no swap improves it by more than Epsilon. It returns the final
// objective.
func (o *Optimizer) Climb() (float64, error) {
	if !o.ready {
		return 0, ErrNotSetup
	}
	start := time.Now()
	cur := o.score()
	for {
		best, bestIdx := cur, -1
		for i, s := range o.pairs {
			v, err := o.evaluate(s)
			if err != nil {
				return cur, err
			}
			if v < best-Epsilon {
				best, bestIdx = v, i
			}
		}
		if bestIdx < 0 {
			break
		}
		if err := o.apply(o.pairs[bestIdx]); err != nil {
			return cur, err
		}
		cur = o.score()
	}
	o.opts.Recorder.ObserveClimb(time.Since(start))
	return cur, nil
}

// Lookahead searches every sequence of up to depth swaps, applies the
// best improving sequence and repeats until no sequence improves the
// objective. Deeper levels cannot be undone with one level of shadow state,
// so each explored swap is reverted by applying it again. Cancellation is
// checked before every subtree; a cancelled round leaves the layout as it
// was when the round began.
func (o *Optimizer) Lookahead(ctx context.Context, depth int) (float64, error) {
	if !o.ready {
		return 0, ErrNotSetup
	}
	if depth < 1 {
		depth = 1
	}
	cur := o.score()
	for round := 1; ; round++ {
		if err := ctx.Err(); err != nil {
			return cur, err
		}
		v, path, err := o.search(ctx, depth)
		if err != nil {
			return cur, err
		}
		if len(path) == 0 || v >= cur-Epsilon {
			break
		}
		for _, s := range path {
			if err := o.apply(s); err != nil {
				return cur, err
			}
		}
		cur = o.score()
		o.logger.Debug("lookahead round", "round", round, "swaps", len(path), "score", cur)
		o.progress(Progress{Phase: StrategyLookahead, Step: round, Current: cur, Best: cur, Improved: true})
	}
	return cur, nil
}

// search returns the best objective reachable within depth swaps and the
// path to it. The working state is unchanged on return, including when ctx
// is done.
func (o *Optimizer) search(ctx context.Context, depth int) (float64, []keyboard.Swap, error) {
	best := o.score()
	var path []keyboard.Swap
	for _, s := range o.pairs {
		if depth == 1 {
			v, err := o.evaluate(s)
			if err != nil {
				return best, nil, err
			}
			if v < best-Epsilon {
				best, path = v, []keyboard.Swap{s}
			}
			continue
		}
		if err := ctx.Err(); err != nil {
			return best, nil, err
		}
		v, sub, err := o.searchAfter(ctx, s, depth-1)
		if err != nil {
			return best, nil, err
		}
		if v < best-Epsilon {
			best = v
			path = append([]keyboard.Swap{s}, sub...)
		}
	}
	return best, path, nil
}

func (o *Optimizer) searchAfter(ctx context.Context, s keyboard.Swap, depth int) (v float64, path []keyboard.Swap, err error) {
	if err := o.apply(s); err != nil {
		return 0, nil, err
	}
	defer func() {
		if rerr := o.apply(s); rerr != nil && err == nil {
			err = rerr
		}
	}()
	v = o.score()
	best, sub, err := o.search(ctx, depth)
	if err != nil {
		return v, nil, err
	}
	if len(sub) > 0 && best < v-Epsilon {
		return best, sub, nil
	}
	return v, nil, nil
}

// codes returns the working layout as a code grid.
func (o *Optimizer) codes() ttable.Codes {
	return ttable.Codes(o.engine.Codes().Keys)
}

// moveTo swaps keys until the working layout equals target.
func (o *Optimizer) moveTo(target *ttable.Codes) error {
	cur := &o.engine.Codes().Keys
	for i := 0; i < keyboard.KeyCount; i++ {
		if cur[i] == target[i] {
			continue
		}
		for j := i + 1; j < keyboard.KeyCount; j++ {
			if cur[j] == target[i] {
				if err := o.apply(keyboard.Swap{A: keyboard.PosAt(i), B: keyboard.PosAt(j)}); err != nil {
					return err
				}
				break
			}
		}
		if cur[i] != target[i] {
			return fmt.Errorf("target layout has no matching key for %s", keyboard.PosAt(i))
		}
	}
	return nil
}

// signature distinguishes layouts that share a fingerprint slot.
func (o *Optimizer) signature() uint64 {
	tf := o.engine.TwoFinger()
	return tf.SFB*0x9e3779b1 ^ tf.SFS
}

// climbFromHere climbs from the working layout, consulting the cache when
// enabled.
func (o *Optimizer) climbFromHere() (float64, error) {
	if o.cache == nil {
		return o.Climb()
	}
	start := o.codes()
	hash := ttable.Fingerprint(&start)
	sig := o.signature()
	before := o.cache.Stats()
	if cached, ok := o.cache.Lookup(hash, sig); ok {
		o.opts.Recorder.CacheLookup(telemetry.CacheHit)
		if err := o.moveTo(&cached); err != nil {
			return 0, err
		}
		return o.score(), nil
	}
	if o.cache.Stats().Collisions > before.Collisions {
		o.opts.Recorder.CacheLookup(telemetry.CacheCollision)
	} else {
		o.opts.Recorder.CacheLookup(telemetry.CacheMiss)
	}
	v, err := o.Climb()
	if err != nil {
		return v, err
	}
	end := o.codes()
	o.cache.Store(hash, &end, sig)
	return v, nil
}

// MultiStart climbs to a local optimum, then restarts from the best layout
// found so far, perturbed by a decreasing number of random swaps whose
// first key is drawn in proportion to its lag. The working layout ends on
// the best layout. Cancellation is checked between restarts; a cancelled
// run keeps its best layout and returns the context error.
func (o *Optimizer) MultiStart(ctx context.Context, restarts int) (float64, error) {
	if !o.ready {
		return 0, ErrNotSetup
	}
	bestScore, err := o.Climb()
	if err != nil {
		return bestScore, err
	}
	best := o.codes()
	o.opts.Recorder.Best(bestScore)

	for i := 0; i < restarts; i++ {
		if err := ctx.Err(); err != nil {
			if merr := o.moveTo(&best); merr != nil {
				return bestScore, errors.Join(err, merr)
			}
			return bestScore, err
		}
		if err := o.moveTo(&best); err != nil {
			return bestScore, err
		}
		n := generator.PerturbCount(i, restarts, o.opts.MaxPerturb, o.opts.MinPerturb)
		for _, s := range o.gen.Perturbation(o.free, &o.engine.KeyLag().PerKey, n) {
			if err := o.apply(s); err != nil {
				return bestScore, err
			}
		}
		v, err := o.climbFromHere()
		if err != nil {
			return bestScore, err
		}
		o.scores = append(o.scores, v)
		o.restarts++
		improved := v < bestScore-Epsilon
		if improved {
			bestScore = v
			best = o.codes()
			o.opts.Recorder.Best(v)
			o.logger.Debug("new best layout", "restart", i, "score", v, "worker", o.worker)
		}
		o.opts.Recorder.Restart()
		o.progress(Progress{
			Phase:    StrategyMultiStart,
			Step:     i + 1,
			Steps:    restarts,
			Current:  v,
			Best:     bestScore,
			Improved: improved,
		})
	}
	if err := o.moveTo(&best); err != nil {
		return bestScore, err
	}
	return bestScore, nil
}

type workerResult struct {
	codes    ttable.Codes
	score    float64
	scores   []float64
	restarts int
	swaps    uint64
	ok       bool
}

// MultiStartParallel splits restarts across workers. Each worker owns a
// copy of the session, a graph and a generator seeded from the base seed;
// the best layout of all workers becomes the working layout.
func (o *Optimizer) MultiStartParallel(ctx context.Context, restarts, workers int) (float64, error) {
	if !o.ready {
		return 0, ErrNotSetup
	}
	if workers <= 1 {
		return o.MultiStart(ctx, restarts)
	}
	startLayout, err := o.engine.CurrentLayout()
	if err != nil {
		return 0, err
	}

	results := make([]workerResult, workers)
	var mu sync.Mutex
	bestSoFar := o.score()
	onProgress := o.opts.OnProgress

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		share := restarts / workers
		if w < restarts%workers {
			share++
		}
		g.Go(func() error {
			session := *o.engine.Session
			session.Layout = startLayout
			engine, err := metrics.NewEngine(&session)
			if err != nil {
				return err
			}
			opts := o.opts
			opts.Seed = generator.DeriveSeed(o.opts.Seed, w)
			opts.OnCommit = nil
			opts.OnProgress = func(p Progress) {
				if onProgress == nil {
					return
				}
				mu.Lock()
				if p.Best < bestSoFar {
					bestSoFar = p.Best
				}
				p.Best = bestSoFar
				mu.Unlock()
				onProgress(p)
			}
			worker := New(engine, opts)
			worker.worker = w
			if err := worker.Setup(); err != nil {
				return err
			}
			score, err := worker.MultiStart(gctx, share)
			results[w] = workerResult{
				codes:    worker.codes(),
				score:    score,
				scores:   worker.scores,
				restarts: worker.restarts,
				swaps:    engine.Graph.Swaps(),
				ok:       true,
			}
			return err
		})
	}
	runErr := g.Wait()

	best := -1
	for w, r := range results {
		if !r.ok {
			continue
		}
		o.scores = append(o.scores, r.scores...)
		o.restarts += r.restarts
		o.workerSwaps += r.swaps
		if best < 0 || r.score < results[best].score {
			best = w
		}
	}
	if best >= 0 && results[best].score < o.score()-Epsilon {
		if err := o.moveTo(&results[best].codes); err != nil {
			return o.score(), errors.Join(runErr, err)
		}
	}
	return o.score(), runErr
}

// Optimize sets up, runs the sanity gate, runs the strategy and commits.
// A cancelled multi-start still commits its best layout and returns the
// context error with the result.
func (o *Optimizer) Optimize(ctx context.Context, strategy Strategy) (Result, error) {
	if err := o.Setup(); err != nil {
		return Result{}, err
	}
	if err := o.TestSwaps(o.opts.SanityTrials); err != nil {
		return Result{}, err
	}
	var runErr error
	switch strategy {
	case StrategyClimb:
		_, runErr = o.Climb()
	case StrategyLookahead:
		_, runErr = o.Lookahead(ctx, o.opts.Depth)
	case StrategyMultiStart, "":
		_, runErr = o.MultiStartParallel(ctx, o.opts.Restarts, o.opts.Workers)
	default:
		return Result{}, fmt.Errorf("unknown strategy %q", strategy)
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) && !errors.Is(runErr, context.DeadlineExceeded) {
		return Result{}, runErr
	}
	res, err := o.Commit()
	if err != nil {
		return Result{}, err
	}
	return res, runErr
}

// OptimizeLayout runs the lookahead search to depth and commits the result.
func (o *Optimizer) OptimizeLayout(ctx context.Context, depth int) (Result, error) {
	if depth > 0 {
		o.opts.Depth = depth
	}
	return o.Optimize(ctx, StrategyLookahead)
}

// GenerateBetterLayout runs the multi-start search and commits the result.
func (o *Optimizer) GenerateBetterLayout(ctx context.Context) (Result, error) {
	return o.Optimize(ctx, StrategyMultiStart)
}
