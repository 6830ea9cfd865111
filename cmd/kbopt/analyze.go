package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/verte-zerg/kbopt/internal/corpus"
	"github.com/verte-zerg/kbopt/internal/graph"
	"github.com/verte-zerg/kbopt/internal/metrics"
	"github.com/verte-zerg/kbopt/internal/report"
	"github.com/verte-zerg/kbopt/internal/store"
)

const watchDebounce = 200 * time.Millisecond

func newAnalyzeCmd() *cobra.Command {
	var (
		flags    boardFlags
		asYAML   bool
		asJSON   bool
		watch    bool
		strictly bool
	)

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Evaluate a layout against a corpus",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fileCfg, err := loadFileConfig()
			if err != nil {
				return err
			}
			flags.apply(cmd, fileCfg)
			if asYAML && asJSON {
				return fmt.Errorf("--yaml and --json are mutually exclusive")
			}
			b, err := flags.parse()
			if err != nil {
				return err
			}

			var st *store.Store
			if !flags.noCache {
				st, err = openStore()
				if err != nil {
					return err
				}
				defer closeStore(st)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			alphabet := corpus.AlphabetOf(b.layout)
			tables, err := loadTables(ctx, st, flags.corpus, alphabet, !flags.noCache)
			if err != nil {
				return err
			}
			opts := []graph.Option{graph.WithLogger(newLogger())}
			if strictly {
				opts = append(opts, graph.WithStrictAssertions())
			}
			engine, err := metrics.NewEngine(newSession(b, tables, flags.trigramDepth), opts...)
			if err != nil {
				return fmt.Errorf("failed to build metrics: %w", err)
			}

			out := cmd.OutOrStdout()
			render := func() error {
				a, err := report.Analyze(engine)
				if err != nil {
					return err
				}
				switch {
				case asYAML:
					return report.WriteYAML(out, a)
				case asJSON:
					return report.WriteJSON(out, a)
				default:
					return report.RenderAnalysis(out, a)
				}
			}
			if err := render(); err != nil {
				return err
			}
			if !watch {
				return nil
			}
			reload := func() error {
				tables, err := loadTables(ctx, st, flags.corpus, alphabet, !flags.noCache)
				if err != nil {
					return err
				}
				if err := engine.SetTables(tables); err != nil {
					return fmt.Errorf("failed to update tables: %w", err)
				}
				if _, err := fmt.Fprintf(out, "\n-- %s reloaded at %s --\n\n", flags.corpus, time.Now().Format(time.TimeOnly)); err != nil {
					return err
				}
				return render()
			}
			return watchCorpus(ctx, flags.corpus, cmd.ErrOrStderr(), reload)
		},
	}

	flags.register(cmd, false)
	cmd.Flags().BoolVar(&asYAML, "yaml", false, "write the analysis as YAML")
	cmd.Flags().BoolVar(&asJSON, "json", false, "write the analysis as JSON")
	cmd.Flags().BoolVar(&watch, "watch", false, "re-analyze when the corpus file changes")
	cmd.Flags().BoolVar(&strictly, "strict", false, "fail on graph assertion violations")
	return cmd
}

// watchCorpus calls reload after path changes until ctx is done. The parent
// directory is watched so editors that replace the file are still seen.
func watchCorpus(ctx context.Context, path string, errOut io.Writer, reload func() error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() {
		if cerr := watcher.Close(); cerr != nil {
			// Best-effort close to avoid masking the original error.
			_ = cerr
		}
	}()
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs || !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			pending = time.After(watchDebounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			if _, werr := fmt.Fprintf(errOut, "watch error: %v\n", err); werr != nil {
				_ = werr
			}
		case <-pending:
			pending = nil
			if err := reload(); err != nil {
				if _, werr := fmt.Fprintf(errOut, "reload failed: %v\n", err); werr != nil {
					_ = werr
				}
			}
		}
	}
}
