package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/verte-zerg/kbopt/internal/optimizer"
	"github.com/verte-zerg/kbopt/internal/report"
)

const historyLimit = 512

// ProgressMsg carries a progress report from a running search.
type ProgressMsg optimizer.Progress

// DoneMsg reports the end of a search.
type DoneMsg struct {
	Result optimizer.Result
	Err    error
}

// RunFunc runs a search. It must report progress through send and return
// when ctx is cancelled.
type RunFunc func(ctx context.Context, send func(optimizer.Progress)) (optimizer.Result, error)

// OptimizeModel shows a running search: progress, best score and the
// trend of restart scores. Ctrl+C cancels the search; the view stays
// until the committed result arrives.
type OptimizeModel struct {
	title   string
	initial []string
	start   time.Time

	cancel  context.CancelFunc
	bar     progress.Model
	spinner spinner.Model

	width  int
	height int

	last      optimizer.Progress
	history   []float64
	improved  int
	canceling bool

	done   bool
	result optimizer.Result
	err    error
}

// NewOptimizeModel returns a model titled title showing the initial layout rows.
func NewOptimizeModel(title string, initial []string) *OptimizeModel {
	return &OptimizeModel{
		title:   title,
		initial: initial,
		start:   time.Now(),
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot)),
	}
}

// Start runs fn in a goroutine bound to p and returns immediately.
// Progress and completion are delivered as messages.
func (m *OptimizeModel) Start(ctx context.Context, p *tea.Program, fn RunFunc) {
	ctx, m.cancel = context.WithCancel(ctx)
	go func() {
		res, err := fn(ctx, func(pr optimizer.Progress) { p.Send(ProgressMsg(pr)) })
		p.Send(DoneMsg{Result: res, Err: err})
	}()
}

// Done reports whether the search has returned.
func (m *OptimizeModel) Done() bool {
	return m.done
}

// Result returns the committed result and the search error.
func (m *OptimizeModel) Result() (optimizer.Result, error) {
	return m.result, m.err
}

// Init implements tea.Model.
func (m *OptimizeModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update implements tea.Model.
func (m *OptimizeModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.bar.Width = max(10, min(60, msg.Width-20))
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			if m.done {
				return m, tea.Quit
			}
			if m.cancel != nil && !m.canceling {
				m.canceling = true
				m.cancel()
			}
			return m, nil
		}
		return m, nil
	case ProgressMsg:
		m.observe(optimizer.Progress(msg))
		return m, nil
	case DoneMsg:
		m.done = true
		m.result = msg.Result
		m.err = msg.Err
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *OptimizeModel) observe(p optimizer.Progress) {
	if p.Improved {
		m.improved++
	}
	m.last = p
	m.history = append(m.history, p.Current)
	if len(m.history) > historyLimit {
		m.history = m.history[len(m.history)-historyLimit:]
	}
}

func (m *OptimizeModel) percent() float64 {
	if m.last.Steps <= 0 {
		return 0
	}
	return min(1, float64(m.last.Step)/float64(m.last.Steps))
}

// View implements tea.Model.
func (m *OptimizeModel) View() string {
	var b strings.Builder
	status := m.spinner.View() + " " + m.title
	switch {
	case m.done && m.err != nil:
		status = errorStyle.Render("stopped: " + m.err.Error())
	case m.done:
		status = "done: " + m.title
	case m.canceling:
		status = m.spinner.View() + " cancelling, committing best layout..."
	}
	b.WriteString(status + "\n\n")
	b.WriteString(m.bar.ViewAs(m.percent()) + "\n\n")

	cards := lipgloss.JoinHorizontal(lipgloss.Top,
		metricCard("Step", fmt.Sprintf("%d/%d", m.last.Step, m.last.Steps)),
		metricCard("Best", fmt.Sprintf("%.4f", m.last.Best)),
		metricCard("Current", fmt.Sprintf("%.4f", m.last.Current)),
		metricCard("Improved", fmt.Sprintf("%d", m.improved)),
	)
	b.WriteString(cards + "\n")
	if len(m.history) > 0 {
		b.WriteString(headerStyle.Render("Trend "+report.Sparkline(report.MovingAverage(m.history, 8))) + "\n")
	}
	b.WriteString("\n" + headerStyle.Render("Initial layout") + "\n")
	b.WriteString(renderKeys(m.initial) + "\n")
	if m.done && m.err == nil {
		b.WriteString("\n" + headerStyle.Render("Best layout") + "\n")
		b.WriteString(renderKeys(m.result.Layout.RowStrings()) + "\n")
	}
	body := b.String()
	if m.width == 0 || m.height < 3 {
		return body + "\n" + m.renderFooter(0)
	}
	return fitLines(body, m.width, m.height-1) + "\n" + padLine(m.renderFooter(m.width), m.width)
}

func (m *OptimizeModel) renderFooter(width int) string {
	segments := []string{
		fmt.Sprintf("Progress %d%%", int(m.percent()*100)),
		fmt.Sprintf("Swaps %d", m.last.Swaps),
		fmt.Sprintf("Elapsed %s", time.Since(m.start).Round(time.Second)),
	}
	if m.last.Phase != "" {
		segments = append(segments, fmt.Sprintf("Phase %s", m.last.Phase))
	}
	segments = append(segments, "Stop: ctrl+c")
	return footerStyle.Render(truncateLine(strings.Join(segments, "  "), width))
}
