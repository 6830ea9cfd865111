package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/verte-zerg/kbopt/internal/config"
	"github.com/verte-zerg/kbopt/internal/keyboard"
	"github.com/verte-zerg/kbopt/internal/optimizer"
)

func TestDefaultConfigTemplateLoads(t *testing.T) {
	var lines []string
	for _, line := range strings.Split(defaultConfigTemplate(), "\n") {
		if strings.HasPrefix(line, "# ") && strings.Contains(line, " = ") {
			line = strings.TrimPrefix(line, "# ")
		}
		lines = append(lines, line)
	}
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := config.LoadConfig(path)
	if err != nil {
		t.Fatalf("load uncommented template: %v", err)
	}
	if got := strings.Join(cfg.Layout.Rows, " "); got != defaultQWERTY {
		t.Fatalf("unexpected rows %q", got)
	}
	if cfg.Optimizer.Strategy == nil || *cfg.Optimizer.Strategy != defaultStrategy {
		t.Fatalf("unexpected strategy %v", cfg.Optimizer.Strategy)
	}
	if cfg.Optimizer.Depth == nil || *cfg.Optimizer.Depth != optimizer.DefaultDepth {
		t.Fatalf("unexpected depth %v", cfg.Optimizer.Depth)
	}
	if cfg.Telemetry.Addr == nil || *cfg.Telemetry.Addr != "localhost:9090" {
		t.Fatalf("unexpected metrics addr %v", cfg.Telemetry.Addr)
	}
}

func TestRootCommands(t *testing.T) {
	root := newRootCmd()
	want := map[string]bool{"analyze": false, "optimize": false, "runs": false, "config": false, "cache": false}
	for _, c := range root.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Fatalf("missing subcommand %s", name)
		}
	}
}

func TestConfigOverlayRespectsFlags(t *testing.T) {
	var flags optimizeFlags
	cmd := &cobra.Command{Use: "optimize"}
	flags.board.register(cmd, true)
	cmd.Flags().StringVar(&flags.strategy, "strategy", defaultStrategy, "")
	cmd.Flags().StringVar(&flags.objective, "objective", defaultObjective, "")
	cmd.Flags().IntVar(&flags.depth, "depth", optimizer.DefaultDepth, "")
	cmd.Flags().IntVar(&flags.restarts, "restarts", optimizer.DefaultRestarts, "")
	cmd.Flags().IntVar(&flags.workers, "workers", defaultWorkers, "")
	cmd.Flags().Int64Var(&flags.seed, "seed", 0, "")
	cmd.Flags().IntVar(&flags.sanityTrials, "sanity-trials", optimizer.DefaultSanityTrials, "")
	cmd.Flags().BoolVar(&flags.useCache, "cache", false, "")
	cmd.Flags().StringVar(&flags.metricsAddr, "metrics-addr", "", "")
	if err := cmd.ParseFlags([]string{"--restarts", "7", "--seed", "3"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	restarts, depth, seed := 100, 5, int64(9)
	strategy, corpusPath := "climb", "/tmp/corpus.txt"
	fc := config.FileConfig{
		Layout: config.LayoutConfig{Locks: []string{"x.........", "..........", ".........."}},
		Corpus: config.CorpusConfig{Path: &corpusPath},
		Optimizer: config.OptimizerConfig{
			Strategy: &strategy,
			Restarts: &restarts,
			Depth:    &depth,
			Seed:     &seed,
		},
	}
	flags.apply(cmd, fc)

	if flags.restarts != 7 || flags.seed != 3 {
		t.Fatalf("flags overridden by config: restarts=%d seed=%d", flags.restarts, flags.seed)
	}
	if flags.depth != 5 || flags.strategy != "climb" || flags.board.corpus != corpusPath {
		t.Fatalf("config not applied: %+v", flags)
	}
	b, err := flags.board.parse()
	if err != nil {
		t.Fatalf("parse board: %v", err)
	}
	if !b.locks.Locked(keyboard.Pos{Row: 0, Col: 0}) || b.locks.Count() != 1 {
		t.Fatalf("unexpected locks %v", b.locks)
	}
	if b.layout.At(keyboard.Pos{Row: 1, Col: 9}) != ';' {
		t.Fatalf("unexpected layout %s", b.layout.String())
	}
}

func TestBoardParseErrors(t *testing.T) {
	cases := []boardFlags{
		{layout: "qwertyuiop asdfghjkl;", corpus: "c.txt"},
		{layout: defaultQWERTY, fingers: "0123 0123 0123", corpus: "c.txt"},
		{layout: defaultQWERTY},
	}
	for i, tc := range cases {
		if _, err := tc.parse(); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}

func TestRunsConfig(t *testing.T) {
	cfg, err := runsConfig("climb", "2024-03-01", 5)
	if err != nil {
		t.Fatalf("runsConfig: %v", err)
	}
	if cfg.Since == nil || cfg.Since.Month() != time.March || cfg.Last != 5 || cfg.Strategy != "climb" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if _, err := runsConfig("", "03/01/2024", 0); err == nil {
		t.Fatalf("expected invalid date error")
	}
}

func TestFormatResult(t *testing.T) {
	layout := keyboard.QWERTY()
	res := optimizer.Result{
		Layout:    layout,
		Objective: optimizer.ObjectiveKeyLag,
		Initial:   10,
		Score:     8,
		Restarts:  4,
		Swaps:     1200,
		Elapsed:   1500 * time.Millisecond,
	}
	out := formatResult(layout.RowStrings(), res, true)
	for _, want := range []string{"interrupted", "qwertyuiop  ->  qwertyuiop", "keylag 10.0000 -> 8.0000 (20.00%)", "restarts 4", "1.5s"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
}
