package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/cheggaaa/pb/v3"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/verte-zerg/kbopt/internal/config"
	"github.com/verte-zerg/kbopt/internal/corpus"
	"github.com/verte-zerg/kbopt/internal/graph"
	"github.com/verte-zerg/kbopt/internal/metrics"
	"github.com/verte-zerg/kbopt/internal/model"
	"github.com/verte-zerg/kbopt/internal/optimizer"
	"github.com/verte-zerg/kbopt/internal/report"
	"github.com/verte-zerg/kbopt/internal/store"
	"github.com/verte-zerg/kbopt/internal/telemetry"
	"github.com/verte-zerg/kbopt/internal/tui"
)

const progressTemplate = `{{ string . "best" }} {{ bar . "[" "=" ">" " " "]" }} {{ counters . }} {{ etime . }}`

type optimizeFlags struct {
	board        boardFlags
	strategy     string
	objective    string
	depth        int
	restarts     int
	workers      int
	seed         int64
	sanityTrials int
	useCache     bool
	useTUI       bool
	noStore      bool
	metricsAddr  string
}

func newOptimizeCmd() *cobra.Command {
	var flags optimizeFlags

	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Search for a layout with a lower key lag",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fileCfg, err := loadFileConfig()
			if err != nil {
				return err
			}
			flags.apply(cmd, fileCfg)
			return runOptimize(cmd, flags)
		},
	}

	flags.board.register(cmd, true)
	cmd.Flags().StringVar(&flags.strategy, "strategy", defaultStrategy, "search strategy: climb, lookahead or multistart")
	cmd.Flags().StringVar(&flags.objective, "objective", defaultObjective, "objective to minimize: keylag or score")
	cmd.Flags().IntVar(&flags.depth, "depth", optimizer.DefaultDepth, "lookahead depth")
	cmd.Flags().IntVar(&flags.restarts, "restarts", optimizer.DefaultRestarts, "multi-start restarts")
	cmd.Flags().IntVar(&flags.workers, "workers", defaultWorkers, "parallel multi-start workers")
	cmd.Flags().Int64Var(&flags.seed, "seed", 0, "random seed (default: time based)")
	cmd.Flags().IntVar(&flags.sanityTrials, "sanity-trials", optimizer.DefaultSanityTrials, "swap sanity checks before searching (0 disables)")
	cmd.Flags().BoolVar(&flags.useCache, "cache", false, "cache climb results by starting layout")
	cmd.Flags().BoolVar(&flags.useTUI, "tui", false, "show an interactive progress view")
	cmd.Flags().BoolVar(&flags.noStore, "no-store", false, "do not record the run")
	cmd.Flags().StringVar(&flags.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on host:port while optimizing")
	return cmd
}

func (f *optimizeFlags) apply(cmd *cobra.Command, fc config.FileConfig) {
	f.board.apply(cmd, fc)
	applyStringConfig(cmd, "strategy", &f.strategy, fc.Optimizer.Strategy)
	applyStringConfig(cmd, "objective", &f.objective, fc.Optimizer.Objective)
	applyIntConfig(cmd, "depth", &f.depth, fc.Optimizer.Depth)
	applyIntConfig(cmd, "restarts", &f.restarts, fc.Optimizer.Restarts)
	applyIntConfig(cmd, "workers", &f.workers, fc.Optimizer.Workers)
	applyInt64Config(cmd, "seed", &f.seed, fc.Optimizer.Seed)
	applyIntConfig(cmd, "sanity-trials", &f.sanityTrials, fc.Optimizer.SanityTrials)
	applyBoolConfig(cmd, "cache", &f.useCache, fc.Optimizer.Cache)
	applyStringConfig(cmd, "metrics-addr", &f.metricsAddr, fc.Telemetry.Addr)
	if !cmd.Flags().Changed("seed") && fc.Optimizer.Seed == nil {
		f.seed = time.Now().UnixNano()
	}
}

func (f *optimizeFlags) config() model.OptimizeConfig {
	return model.OptimizeConfig{
		Strategy:     f.strategy,
		Objective:    f.objective,
		Depth:        f.depth,
		Restarts:     f.restarts,
		Workers:      f.workers,
		Seed:         f.seed,
		SanityTrials: f.sanityTrials,
		Cache:        f.useCache,
		CorpusPath:   f.board.corpus,
		TrigramDepth: f.board.trigramDepth,
	}
}

func runOptimize(cmd *cobra.Command, flags optimizeFlags) error {
	cfg := flags.config()
	strategy, err := optimizer.ParseStrategy(cfg.Strategy)
	if err != nil {
		return err
	}
	if cfg.Restarts < 0 {
		return fmt.Errorf("--restarts must be >= 0")
	}
	if cfg.Workers < 1 {
		return fmt.Errorf("--workers must be >= 1")
	}
	b, err := flags.board.parse()
	if err != nil {
		return err
	}

	var st *store.Store
	if !flags.noStore || !flags.board.noCache {
		st, err = openStore()
		if err != nil {
			return err
		}
		defer closeStore(st)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tables, err := loadTables(ctx, st, cfg.CorpusPath, corpus.AlphabetOf(b.layout), !flags.board.noCache)
	if err != nil {
		return err
	}
	logger := newLogger()
	engine, err := metrics.NewEngine(newSession(b, tables, cfg.TrigramDepth), graph.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to build metrics: %w", err)
	}

	rec := telemetry.NewRecorder()
	if flags.metricsAddr != "" {
		go func() {
			if err := telemetry.Serve(ctx, flags.metricsAddr, rec); err != nil {
				logErrf("metrics server stopped: %v\n", err)
			}
		}()
	}

	trials := cfg.SanityTrials
	if trials == 0 {
		trials = -1
	}
	opts := optimizer.Options{
		Objective:    optimizer.Objective(cfg.Objective),
		Locks:        b.locks,
		Seed:         cfg.Seed,
		Restarts:     cfg.Restarts,
		Workers:      cfg.Workers,
		Depth:        cfg.Depth,
		SanityTrials: trials,
		UseCache:     cfg.Cache,
		Logger:       logger,
		Recorder:     rec,
	}
	run := func(ctx context.Context, send func(optimizer.Progress)) (optimizer.Result, error) {
		var finished atomic.Int64
		opts.OnProgress = func(p optimizer.Progress) {
			if p.Phase == optimizer.StrategyMultiStart {
				p.Step = int(finished.Add(1))
				p.Steps = cfg.Restarts
			}
			send(p)
		}
		return optimizer.New(engine, opts).Optimize(ctx, strategy)
	}

	startedAt := time.Now()
	var res optimizer.Result
	var runErr error
	if flags.useTUI {
		res, runErr = runOptimizeTUI(ctx, strategy, b.layout.RowStrings(), run)
	} else {
		res, runErr = runOptimizePlain(ctx, strategy, cfg.Restarts, run)
	}
	if runErr != nil && !isCancel(runErr) {
		return runErr
	}
	cancelled := runErr != nil

	out := cmd.OutOrStdout()
	if _, err := fmt.Fprintln(out, formatResult(b.layout.RowStrings(), res, cancelled)); err != nil {
		return err
	}

	if !flags.noStore {
		record := model.RunRecord{
			StartedAt:    startedAt,
			EndedAt:      time.Now(),
			Strategy:     string(strategy),
			Objective:    string(res.Objective),
			Seed:         cfg.Seed,
			Restarts:     res.Restarts,
			Workers:      cfg.Workers,
			Depth:        cfg.Depth,
			CorpusPath:   cfg.CorpusPath,
			Initial:      strings.Join(b.layout.RowStrings(), "\n"),
			Final:        strings.Join(res.Layout.RowStrings(), "\n"),
			InitialScore: res.Initial,
			Score:        res.Score,
			Swaps:        res.Swaps,
			DurationMs:   res.Elapsed.Milliseconds(),
			Cancelled:    cancelled,
		}
		// The run is recorded even when the search was interrupted.
		id, err := st.InsertRun(context.Background(), record, res.Scores)
		if err != nil {
			return fmt.Errorf("failed to save run: %w", err)
		}
		if _, err := fmt.Fprintf(out, "Saved run %s\n", report.ShortID(id)); err != nil {
			return err
		}
	}
	return nil
}

func runOptimizeTUI(ctx context.Context, strategy optimizer.Strategy, initial []string, run tui.RunFunc) (optimizer.Result, error) {
	m := tui.NewOptimizeModel("kbopt "+string(strategy), initial)
	p := tea.NewProgram(m, tea.WithAltScreen())
	m.Start(ctx, p, run)
	if _, err := p.Run(); err != nil {
		return optimizer.Result{}, fmt.Errorf("failed to run tui: %w", err)
	}
	if !m.Done() {
		return optimizer.Result{}, errors.New("optimizer view closed before the search finished")
	}
	return m.Result()
}

func runOptimizePlain(ctx context.Context, strategy optimizer.Strategy, restarts int, run tui.RunFunc) (optimizer.Result, error) {
	if strategy != optimizer.StrategyMultiStart {
		return run(ctx, func(p optimizer.Progress) {
			logErrf("round %d: %.4f\n", p.Step, p.Current)
		})
	}
	bar := pb.ProgressBarTemplate(progressTemplate).New(restarts)
	bar.SetWriter(os.Stderr)
	bar.Set("best", "best -")
	bar.Start()
	res, err := run(ctx, func(p optimizer.Progress) {
		bar.SetCurrent(int64(p.Step))
		bar.Set("best", fmt.Sprintf("best %.4f", p.Best))
	})
	bar.Finish()
	return res, err
}

func formatResult(initial []string, res optimizer.Result, cancelled bool) string {
	var b strings.Builder
	if cancelled {
		b.WriteString("Search interrupted; best layout so far:\n")
	}
	final := res.Layout.RowStrings()
	for i := range final {
		left := ""
		if i < len(initial) {
			left = initial[i]
		}
		fmt.Fprintf(&b, "  %s  ->  %s\n", left, final[i])
	}
	gain := 0.0
	if res.Initial != 0 {
		gain = res.Improvement() / res.Initial * 100
	}
	fmt.Fprintf(&b, "%s %.4f -> %.4f (%.2f%%)  restarts %d  swaps %d  %s",
		res.Objective, res.Initial, res.Score, gain, res.Restarts, res.Swaps, res.Elapsed.Round(time.Millisecond))
	return b.String()
}
