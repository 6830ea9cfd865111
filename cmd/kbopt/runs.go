package main

import (
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/verte-zerg/kbopt/internal/model"
	"github.com/verte-zerg/kbopt/internal/optimizer"
	"github.com/verte-zerg/kbopt/internal/report"
	"github.com/verte-zerg/kbopt/internal/store"
	"github.com/verte-zerg/kbopt/internal/tui"
)

func newRunsCmd() *cobra.Command {
	var (
		last       int
		strategy   string
		since      string
		useTUI     bool
		forceColor bool
	)

	cmd := &cobra.Command{
		Use:   "runs [ID]",
		Short: "Show recorded optimize runs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if last < 0 {
				return fmt.Errorf("--last must be >= 0")
			}
			if strategy != "" {
				if _, err := optimizer.ParseStrategy(strategy); err != nil {
					return err
				}
			}
			cfg, err := runsConfig(strategy, since, last)
			if err != nil {
				return err
			}

			st, err := openStore()
			if err != nil {
				return err
			}
			defer closeStore(st)

			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			if len(args) == 1 {
				run, err := st.GetRun(ctx, args[0])
				if err != nil {
					if errors.Is(err, store.ErrRunNotFound) {
						return fmt.Errorf("no run matches %q", args[0])
					}
					return err
				}
				scores, err := st.ListRunScores(ctx, run.ID)
				if err != nil {
					return err
				}
				return report.RenderRun(out, run, scores, outputWidth(), forceColor)
			}

			if useTUI {
				p := tea.NewProgram(tui.NewRunsModel(st, cfg), tea.WithAltScreen())
				if _, err := p.Run(); err != nil {
					return fmt.Errorf("failed to run tui: %w", err)
				}
				return nil
			}
			runs, err := st.ListRuns(ctx, cfg)
			if err != nil {
				return err
			}
			return report.RenderRuns(out, runs)
		},
	}

	cmd.Flags().IntVar(&last, "last", 20, "show the last N runs (0 for all)")
	cmd.Flags().StringVar(&strategy, "strategy", "", "only runs of this strategy")
	cmd.Flags().StringVar(&since, "since", "", "start date (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&useTUI, "tui", false, "browse runs interactively")
	cmd.Flags().BoolVar(&forceColor, "color", false, "force colored plots")
	return cmd
}

func runsConfig(strategy, since string, last int) (model.RunsConfig, error) {
	var sinceTime *time.Time
	if since != "" {
		parsed, err := time.ParseInLocation("2006-01-02", since, time.Local)
		if err != nil {
			return model.RunsConfig{}, fmt.Errorf("invalid --since value: %w", err)
		}
		sinceTime = &parsed
	}
	return model.RunsConfig{
		Strategy: strategy,
		Since:    sinceTime,
		Last:     last,
	}, nil
}

func outputWidth() int {
	width, _, err := term.GetSize(1)
	if err != nil || width <= 0 {
		return 80
	}
	return width
}

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage cached corpus tables",
	}
	var olderThan time.Duration
	prune := &cobra.Command{
		Use:   "prune",
		Short: "Delete cached tables older than a duration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if olderThan < 0 {
				return fmt.Errorf("--older-than must be >= 0")
			}
			st, err := openStore()
			if err != nil {
				return err
			}
			defer closeStore(st)
			n, err := st.PruneTables(cmd.Context(), time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Removed %d cached table(s)\n", n)
			return err
		},
	}
	prune.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "age of tables to remove")
	cmd.AddCommand(prune)
	return cmd
}
