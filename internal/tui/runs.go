package tui

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/verte-zerg/kbopt/internal/model"
	"github.com/verte-zerg/kbopt/internal/report"
)

const (
	tabRuns = iota
	tabDetail
)

var strategyFilters = []string{"", "climb", "lookahead", "multistart"}

// RunSource lists stored runs.
type RunSource interface {
	ListRuns(ctx context.Context, cfg model.RunsConfig) ([]model.RunRecord, error)
	ListRunScores(ctx context.Context, runID string) ([]model.RunScore, error)
}

// RunsModel implements the Bubble Tea run browser: a table of runs and a
// detail tab with the selected run's layouts and convergence plot.
type RunsModel struct {
	source RunSource
	cfg    model.RunsConfig

	runs     []model.RunRecord
	selected int
	errMsg   string

	tabs      []string
	activeTab int
	runTable  table.Model
	detail    viewport.Model

	width  int
	height int
}

// NewRunsModel constructs the run browser and loads the runs.
func NewRunsModel(source RunSource, cfg model.RunsConfig) *RunsModel {
	m := &RunsModel{
		source:   source,
		cfg:      cfg,
		tabs:     []string{"Runs", "Detail"},
		detail:   viewport.New(0, 0),
		selected: -1,
	}
	m.runTable = table.New(table.WithFocused(true), table.WithHeight(1))
	m.runTable.SetStyles(runTableStyles())
	m.refresh()
	return m
}

// Init implements tea.Model.
func (m *RunsModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m *RunsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateLayout()
		m.renderDetail()
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "left", "h":
			m.moveTab(-1)
			return m, tea.ClearScreen
		case "right", "l":
			m.moveTab(1)
			return m, tea.ClearScreen
		case "s":
			m.cfg.Strategy = nextStrategy(m.cfg.Strategy)
			m.refresh()
			return m, nil
		case "r":
			m.refresh()
			return m, nil
		case "enter":
			if m.activeTab == tabRuns && len(m.runs) > 0 {
				m.selected = m.runTable.Cursor()
				m.renderDetail()
				m.activeTab = tabDetail
				m.runTable.Blur()
				return m, tea.ClearScreen
			}
			return m, nil
		case "g", "home":
			if m.activeTab == tabRuns {
				m.runTable.GotoTop()
			} else {
				m.detail.GotoTop()
			}
			return m, nil
		case "G", "end":
			if m.activeTab == tabRuns {
				m.runTable.GotoBottom()
			} else {
				m.detail.GotoBottom()
			}
			return m, nil
		}
		var cmd tea.Cmd
		if m.activeTab == tabRuns {
			m.runTable, cmd = m.runTable.Update(msg)
		} else {
			m.detail, cmd = m.detail.Update(msg)
		}
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model.
func (m *RunsModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}
	headerHeight, bodyHeight, footerHeight := m.layoutHeights()
	header := fitLines(m.renderTabs()+"\n"+m.renderFilterSummary(), m.width, headerHeight)
	body := fitLines(m.renderBody(), m.width, bodyHeight)
	footer := fitLines(m.renderFooter(), m.width, footerHeight)
	return strings.Join([]string{header, body, footer}, "\n")
}

// Selected returns the run shown in the detail tab.
func (m *RunsModel) Selected() (model.RunRecord, bool) {
	if m.selected < 0 || m.selected >= len(m.runs) {
		return model.RunRecord{}, false
	}
	return m.runs[m.selected], true
}

func (m *RunsModel) layoutHeights() (headerHeight, bodyHeight, footerHeight int) {
	headerHeight = max(1, lipgloss.Height(activeNavStyle.Render("X"))) + 1
	footerHeight = 1
	if m.errMsg != "" {
		footerHeight++
	}
	bodyHeight = max(1, m.height-headerHeight-footerHeight)
	return headerHeight, bodyHeight, footerHeight
}

func (m *RunsModel) updateLayout() {
	if m.width <= 0 || m.height <= 0 {
		return
	}
	_, bodyHeight, _ := m.layoutHeights()
	m.detail.Width = m.width
	m.detail.Height = bodyHeight
	m.runTable.SetWidth(m.width)
	m.runTable.SetHeight(max(1, bodyHeight-1))
}

func (m *RunsModel) moveTab(delta int) {
	m.activeTab = (m.activeTab + delta + len(m.tabs)) % len(m.tabs)
	if m.activeTab == tabRuns {
		m.runTable.Focus()
	} else {
		m.runTable.Blur()
	}
}

func (m *RunsModel) refresh() {
	runs, err := m.source.ListRuns(context.Background(), m.cfg)
	if err != nil {
		m.errMsg = err.Error()
		return
	}
	m.errMsg = ""
	m.runs = runs
	m.selected = -1
	columns, rows := buildRunTableData(runs)
	m.runTable.SetRows(nil)
	m.runTable.SetColumns(columns)
	m.runTable.SetRows(rows)
	m.runTable.GotoBottom()
	m.detail.SetContent("Select a run and press enter.")
}

func (m *RunsModel) renderDetail() {
	run, ok := m.Selected()
	if !ok {
		return
	}
	scores, err := m.source.ListRunScores(context.Background(), run.ID)
	if err != nil {
		m.errMsg = err.Error()
		m.detail.SetContent("Failed to load run scores.")
		return
	}
	width := m.width
	if width <= 0 {
		width = 80
	}
	var buf bytes.Buffer
	if err := report.RenderRun(&buf, run, scores, report.PlotWidthFor(width), true); err != nil {
		m.detail.SetContent(fmt.Sprintf("Failed to render run: %v", err))
		return
	}
	m.detail.SetContent(strings.TrimRight(buf.String(), "\n"))
	m.detail.GotoTop()
}

func (m *RunsModel) renderTabs() string {
	parts := make([]string, 0, len(m.tabs))
	for i, tab := range m.tabs {
		if i == m.activeTab {
			parts = append(parts, activeNavStyle.Render(tab))
		} else {
			parts = append(parts, inactiveNavStyle.Render(tab))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func (m *RunsModel) renderFilterSummary() string {
	strategy := m.cfg.Strategy
	if strategy == "" {
		strategy = "any"
	}
	last := "all"
	if m.cfg.Last > 0 {
		last = strconv.Itoa(m.cfg.Last)
	}
	summary := fmt.Sprintf("Filters: strategy=%s  last=%s  runs=%d", strategy, last, len(m.runs))
	return headerStyle.Render(truncateLine(summary, m.width))
}

func (m *RunsModel) renderBody() string {
	if m.activeTab == tabDetail {
		return m.detail.View()
	}
	if len(m.runs) == 0 {
		return "No runs found."
	}
	return m.runTable.View()
}

func (m *RunsModel) renderFooter() string {
	help := "Nav: left/right  Open: enter  Strategy: s  Reload: r  Quit: q"
	if m.activeTab == tabDetail {
		help = "Nav: left/right  Scroll: up/down/pgup/pgdn  Quit: q"
	}
	help = headerStyle.Render(truncateLine(help, m.width))
	if m.errMsg != "" {
		return help + "\n" + errorStyle.Render(truncateLine(m.errMsg, m.width))
	}
	return help
}

func buildRunTableData(runs []model.RunRecord) ([]table.Column, []table.Row) {
	rows := report.RunRows(runs)
	columns := make([]table.Column, len(report.RunHeaders))
	for i, title := range report.RunHeaders {
		columns[i] = table.Column{Title: title, Width: lipgloss.Width(title)}
	}
	out := make([]table.Row, len(rows))
	for i, row := range rows {
		for c, cell := range row {
			columns[c].Width = max(columns[c].Width, lipgloss.Width(cell))
		}
		out[i] = table.Row(row)
	}
	return columns, out
}

func runTableStyles() table.Styles {
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(lipgloss.Color("#4A4A4A")).
		Foreground(lipgloss.Color("#C0C0C0")).
		Bold(true).
		Padding(0, 1).
		PaddingLeft(0)
	styles.Cell = styles.Cell.
		Padding(0, 1).
		PaddingLeft(0)
	styles.Selected = styles.Cell.
		Foreground(lipgloss.Color("#F0F0F0")).
		Bold(true)
	return styles
}

func nextStrategy(current string) string {
	for i, s := range strategyFilters {
		if s == current {
			return strategyFilters[(i+1)%len(strategyFilters)]
		}
	}
	return ""
}
