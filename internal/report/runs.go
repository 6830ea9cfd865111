package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/text/message"

	"github.com/verte-zerg/kbopt/internal/model"
	"github.com/verte-zerg/kbopt/internal/optimizer"
)

// ShortID returns the first eight characters of a run ID.
func ShortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// RunRows returns one table row per run for the runs table.
func RunRows(runs []model.RunRecord) [][]string {
	p := message.NewPrinter(lang)
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		status := ""
		if r.Cancelled {
			status = "cancelled"
		}
		rows = append(rows, []string{
			ShortID(r.ID),
			r.EndedAt.Local().Format("2006-01-02 15:04"),
			r.Strategy,
			r.Objective,
			fmt.Sprintf("%.4f", r.InitialScore),
			fmt.Sprintf("%.4f", r.Score),
			fmt.Sprintf("%.2f%%", improvementPct(r)),
			p.Sprintf("%d", r.Swaps),
			(time.Duration(r.DurationMs) * time.Millisecond).Round(time.Second).String(),
			status,
		})
	}
	return rows
}

// RunHeaders are the column titles matching RunRows.
var RunHeaders = []string{"ID", "Ended", "Strategy", "Objective", "Initial", "Score", "Gain", "Swaps", "Time", ""}

func improvementPct(r model.RunRecord) float64 {
	if r.InitialScore == 0 {
		return 0
	}
	return r.Improvement() / r.InitialScore * 100
}

// RenderRuns prints a table of stored runs.
func RenderRuns(w io.Writer, runs []model.RunRecord) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "No runs found.")
		return err
	}
	right := map[int]bool{4: true, 5: true, 6: true, 7: true, 8: true}
	for _, line := range formatTable(RunHeaders, RunRows(runs), right) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// RenderRun prints one run: its layouts, the restart score summary and
// a convergence plot.
func RenderRun(w io.Writer, run model.RunRecord, scores []model.RunScore, width int, forceColor bool) error {
	p := message.NewPrinter(lang)
	var b strings.Builder
	fmt.Fprintf(&b, "Run %s (%s, %s)\n", run.ID, run.Strategy, run.Objective)
	fmt.Fprintf(&b, "Corpus: %s\n", run.CorpusPath)
	b.WriteString(p.Sprintf("Seed: %d  Restarts: %d  Workers: %d  Swaps: %d\n", run.Seed, run.Restarts, run.Workers, run.Swaps))
	fmt.Fprintf(&b, "Score: %.4f -> %.4f (%.2f%%)\n\n", run.InitialScore, run.Score, improvementPct(run))
	b.WriteString(sideBySide("Initial", run.Initial, "Final", run.Final))
	b.WriteByte('\n')
	if _, err := io.WriteString(w, b.String()); err != nil {
		return err
	}
	if len(scores) == 0 {
		return nil
	}

	values := make([]float64, len(scores))
	for i, s := range scores {
		values[i] = s.Score
	}
	sum := optimizer.Summarize(values)
	rows := [][]string{{
		fmt.Sprintf("%d", sum.Count),
		fmt.Sprintf("%.4f", sum.Min),
		fmt.Sprintf("%.4f", sum.Median),
		fmt.Sprintf("%.4f", sum.P90),
		fmt.Sprintf("%.4f", sum.Max),
		fmt.Sprintf("%.4f", sum.Mean),
		fmt.Sprintf("%.4f", sum.StdDev),
	}}
	headers := []string{"Restarts", "Min", "Median", "P90", "Max", "Mean", "StdDev"}
	right := map[int]bool{0: true, 1: true, 2: true, 3: true, 4: true, 5: true, 6: true}
	for _, line := range formatTable(headers, rows, right) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "Trend: %s\n\n", Sparkline(MovingAverage(values, 10))); err != nil {
		return err
	}
	return PlotSeries(w, "Convergence", []Series{
		{Name: "restart score", Values: values},
		{Name: "best so far", Values: BestSoFar(values)},
	}, width, 0, forceColor)
}

func sideBySide(leftTitle, left, rightTitle, right string) string {
	l := strings.Split(left, "\n")
	r := strings.Split(right, "\n")
	var b strings.Builder
	fmt.Fprintf(&b, "%-22s%s\n", leftTitle, rightTitle)
	for i := 0; i < max(len(l), len(r)); i++ {
		var a, c string
		if i < len(l) {
			a = spaced(l[i])
		}
		if i < len(r) {
			c = spaced(r[i])
		}
		fmt.Fprintf(&b, "%-22s%s\n", a, c)
	}
	return b.String()
}

func spaced(row string) string {
	return strings.Join(strings.Split(row, ""), " ")
}
