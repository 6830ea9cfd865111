// Package optimizer searches for layouts with a lower objective by applying
// swaps to a metric graph: a best-swap hill climb, a depth-limited lookahead
// and a randomized multi-start around the best layout found so far.
package optimizer

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/verte-zerg/kbopt/internal/generator"
	"github.com/verte-zerg/kbopt/internal/graph"
	"github.com/verte-zerg/kbopt/internal/keyboard"
	"github.com/verte-zerg/kbopt/internal/metrics"
	"github.com/verte-zerg/kbopt/internal/telemetry"
	"github.com/verte-zerg/kbopt/internal/ttable"
)

// Defaults.
const (
	DefaultRestarts     = 2500
	DefaultDepth        = 2
	DefaultSanityTrials = 5000
	DefaultCacheBits    = 20
	DefaultCachePool    = 1 << 16

	// Epsilon is the smallest objective decrease accepted as an improvement.
	Epsilon = 1e-6
)

var (
	ErrSanityCheck  = errors.New("sanity check failed")
	ErrNoCandidates = errors.New("no swappable key pairs")
	ErrNotSetup     = errors.New("optimizer is not set up")
)

// Objective selects the node the search minimizes.
type Objective string

const (
	ObjectiveKeyLag Objective = "keylag"
	ObjectiveScore  Objective = "score"
)

// Strategy selects the search run by Optimize.
type Strategy string

const (
	StrategyClimb      Strategy = "climb"
	StrategyLookahead  Strategy = "lookahead"
	StrategyMultiStart Strategy = "multistart"
)

// ParseStrategy validates a strategy name.
func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(strings.ToLower(s)); st {
	case StrategyClimb, StrategyLookahead, StrategyMultiStart:
		return st, nil
	default:
		return "", fmt.Errorf("unknown strategy %q (want climb, lookahead or multistart)", s)
	}
}

// Progress is reported after every restart and lookahead round.
type Progress struct {
	Phase    Strategy
	Worker   int
	Step     int
	Steps    int
	Current  float64
	Best     float64
	Swaps    uint64
	Improved bool
}

// Options configures a search. Zero values select the defaults; a negative
// SanityTrials skips the swap sanity gate.
type Options struct {
	Objective    Objective `validate:"omitempty,oneof=keylag score"`
	Locks        keyboard.Locks
	Seed         int64
	Restarts     int `validate:"gte=0"`
	Workers      int `validate:"gte=0,lte=256"`
	Depth        int `validate:"gte=0,lte=6"`
	SanityTrials int
	MaxPerturb   int `validate:"gte=0"`
	MinPerturb   int `validate:"gte=0"`
	UseCache     bool
	CacheBits    int `validate:"omitempty,min=1,max=30"`
	CachePool    int `validate:"gte=0"`

	Logger *slog.Logger
	// OnProgress may be called from several goroutines by MultiStartParallel.
	OnProgress func(Progress)
	OnCommit   func(Result)
	Recorder   *telemetry.Recorder
}

var validate = validator.New()

func (o Options) withDefaults() Options {
	if o.Objective == "" {
		o.Objective = ObjectiveKeyLag
	}
	if o.Restarts == 0 {
		o.Restarts = DefaultRestarts
	}
	if o.Workers == 0 {
		o.Workers = 1
	}
	if o.Depth == 0 {
		o.Depth = DefaultDepth
	}
	if o.SanityTrials == 0 {
		o.SanityTrials = DefaultSanityTrials
	}
	if o.MaxPerturb == 0 {
		o.MaxPerturb = generator.DefaultMaxSwaps
	}
	if o.MinPerturb == 0 {
		o.MinPerturb = generator.DefaultMinSwaps
	}
	if o.CacheBits == 0 {
		o.CacheBits = DefaultCacheBits
	}
	if o.CachePool == 0 {
		o.CachePool = DefaultCachePool
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Result describes a finished search.
type Result struct {
	Layout    keyboard.Layout
	Objective Objective
	Initial   float64
	Score     float64
	Restarts  int
	Swaps     uint64
	Scores    []float64
	Elapsed   time.Duration
	Cache     ttable.Stats
}

// Improvement returns Initial minus Score.
func (r Result) Improvement() float64 {
	return r.Initial - r.Score
}

// Optimizer runs searches on one engine. It is not safe for concurrent use.
type Optimizer struct {
	engine *metrics.Engine
	opts   Options
	logger *slog.Logger

	objective graph.NodeID
	free      []int
	pairs     []keyboard.Swap
	gen       *generator.Generator
	cache     *ttable.Table
	worker    int

	ready       bool
	initial     float64
	started     time.Time
	swapsBase   uint64
	reported    uint64
	workerSwaps uint64
	scores      []float64
	restarts    int
}

// New returns an optimizer for engine. Options are validated by Setup.
func New(engine *metrics.Engine, opts Options) *Optimizer {
	opts = opts.withDefaults()
	return &Optimizer{
		engine: engine,
		opts:   opts,
		logger: opts.Logger,
		gen:    generator.New(opts.Seed),
	}
}

// Engine returns the engine the optimizer works on.
func (o *Optimizer) Engine() *metrics.Engine {
	return o.engine
}

// Setup installs the objective, resolves the graph, prepares the swap
// order and enumerates the candidate pairs of unlocked keys.
func (o *Optimizer) Setup() error {
	if err := validate.Struct(o.opts); err != nil {
		return fmt.Errorf("invalid optimizer options: %w", err)
	}
	switch o.opts.Objective {
	case ObjectiveKeyLag:
		o.objective = metrics.KeyLag
	case ObjectiveScore:
		o.objective = metrics.LayoutScore
	}
	if err := o.engine.Install(metrics.KeyLag, o.objective); err != nil {
		return fmt.Errorf("failed to install objective: %w", err)
	}
	if err := o.engine.Resolve(); err != nil {
		return fmt.Errorf("failed to resolve graph: %w", err)
	}
	if err := o.engine.Graph.PreprocessSwapOrder(); err != nil {
		return fmt.Errorf("failed to prepare swap order: %w", err)
	}

	o.free = o.free[:0]
	for idx := 0; idx < keyboard.KeyCount; idx++ {
		if !o.opts.Locks.Locked(keyboard.PosAt(idx)) {
			o.free = append(o.free, idx)
		}
	}
	o.pairs = o.pairs[:0]
	for i, a := range o.free {
		for _, b := range o.free[i+1:] {
			o.pairs = append(o.pairs, keyboard.Swap{A: keyboard.PosAt(a), B: keyboard.PosAt(b)})
		}
	}
	if len(o.pairs) == 0 {
		return ErrNoCandidates
	}

	if o.opts.UseCache && o.cache == nil {
		cache, err := ttable.New(o.opts.CacheBits, o.opts.CachePool)
		if err != nil {
			return fmt.Errorf("failed to create transposition cache: %w", err)
		}
		o.cache = cache
	}

	o.ready = true
	o.initial = o.score()
	o.started = time.Now()
	o.swapsBase = o.engine.Graph.Swaps()
	o.reported = o.swapsBase
	o.workerSwaps = 0
	o.scores = o.scores[:0]
	o.restarts = 0
	o.logger.Debug("optimizer ready",
		"objective", o.opts.Objective,
		"pairs", len(o.pairs),
		"locked", o.opts.Locks.Count(),
		"score", o.initial,
	)
	return nil
}

// Pairs returns the candidate swaps.
func (o *Optimizer) Pairs() []keyboard.Swap {
	return o.pairs
}

// Score returns the objective of the working layout.
func (o *Optimizer) Score() float64 {
	return o.score()
}

func (o *Optimizer) score() float64 {
	if o.objective == metrics.LayoutScore {
		return o.engine.Score().Total
	}
	return o.engine.KeyLag().Total
}

func (o *Optimizer) apply(s keyboard.Swap) error {
	return o.engine.Graph.ApplySwap(s)
}

func (o *Optimizer) undo() error {
	return o.engine.Graph.UndoSwap()
}

// evaluate returns the objective after s without keeping the swap.
func (o *Optimizer) evaluate(s keyboard.Swap) (float64, error) {
	if err := o.apply(s); err != nil {
		return 0, err
	}
	v := o.score()
	if err := o.undo(); err != nil {
		return 0, err
	}
	return v, nil
}

// TestSwaps verifies that swaps are reversible and that the incremental
// path matches saved state: random swap/swap-back and apply/undo pairs,
// then a forward sequence of trials swaps reconciled in reverse order. On
// failure the working state is rebuilt from the live layout and an error
// wrapping ErrSanityCheck names the drifting nodes.
func (o *Optimizer) TestSwaps(trials int) (err error) {
	if !o.ready {
		return ErrNotSetup
	}
	if trials <= 0 {
		return nil
	}
	g := o.engine.Graph
	violations := g.Violations()
	snap := g.Snapshot()
	defer func() {
		if err != nil {
			if rerr := o.engine.Resolve(); rerr != nil {
				err = errors.Join(err, rerr)
			}
		}
	}()

	check := func(step string) error {
		drift := g.Diff(snap)
		if len(drift) == 0 && g.Violations() == violations {
			return nil
		}
		names := make([]string, len(drift))
		for i, id := range drift {
			names[i] = g.Name(id)
		}
		o.logger.Error("swap sanity check failed", "step", step, "nodes", names)
		return fmt.Errorf("%w: %s drifted after %s", ErrSanityCheck, strings.Join(names, ", "), step)
	}

	for i := 0; i < trials; i++ {
		s := o.pairs[o.gen.Intn(len(o.pairs))]
		if err := o.apply(s); err != nil {
			return err
		}
		if err := o.apply(s); err != nil {
			return err
		}
		if err := check("double swap " + s.String()); err != nil {
			return err
		}
		if err := o.apply(s); err != nil {
			return err
		}
		if err := o.undo(); err != nil {
			return err
		}
		if err := check("apply/undo " + s.String()); err != nil {
			return err
		}
	}

	path := make([]keyboard.Swap, trials)
	for i := range path {
		path[i] = o.pairs[o.gen.Intn(len(o.pairs))]
		if err := o.apply(path[i]); err != nil {
			return err
		}
	}
	for i := len(path) - 1; i >= 0; i-- {
		if err := o.apply(path[i]); err != nil {
			return err
		}
	}
	if err := check(fmt.Sprintf("%d forward swaps", trials)); err != nil {
		return err
	}
	return nil
}

// Commit writes the working layout into the session, resolves every node
// and reports the result through OnCommit.
func (o *Optimizer) Commit() (Result, error) {
	if !o.ready {
		return Result{}, ErrNotSetup
	}
	if err := o.engine.Commit(); err != nil {
		return Result{}, fmt.Errorf("failed to commit layout: %w", err)
	}
	res := o.result()
	if o.opts.OnCommit != nil {
		o.opts.OnCommit(res)
	}
	o.logger.Info("layout committed",
		"score", res.Score,
		"initial", res.Initial,
		"restarts", res.Restarts,
		"swaps", res.Swaps,
		"elapsed", res.Elapsed,
	)
	return res, nil
}

func (o *Optimizer) result() Result {
	layout, _ := o.engine.CurrentLayout()
	res := Result{
		Layout:    layout,
		Objective: o.opts.Objective,
		Initial:   o.initial,
		Score:     o.score(),
		Restarts:  o.restarts,
		Swaps:     o.engine.Graph.Swaps() - o.swapsBase + o.workerSwaps,
		Scores:    append([]float64(nil), o.scores...),
		Elapsed:   time.Since(o.started),
	}
	if o.cache != nil {
		res.Cache = o.cache.Stats()
	}
	return res
}

func (o *Optimizer) progress(p Progress) {
	swaps := o.engine.Graph.Swaps()
	o.opts.Recorder.AddSwaps(swaps - o.reported)
	o.reported = swaps
	p.Worker = o.worker
	p.Swaps = swaps - o.swapsBase
	if o.opts.OnProgress != nil {
		o.opts.OnProgress(p)
	}
}
