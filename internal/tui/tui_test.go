package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/verte-zerg/kbopt/internal/keyboard"
	"github.com/verte-zerg/kbopt/internal/model"
	"github.com/verte-zerg/kbopt/internal/optimizer"
)

func TestRenderFooterFormats(t *testing.T) {
	m := NewOptimizeModel("optimizing", keyboard.QWERTY().RowStrings())
	m.Update(ProgressMsg{Phase: optimizer.StrategyMultiStart, Step: 5, Steps: 10, Current: 3.5, Best: 3.25, Swaps: 4200, Improved: true})
	out := m.renderFooter(0)
	if !containsAll(out, []string{"Progress 50%", "Swaps 4200", "Phase multistart", "Stop: ctrl+c"}) {
		t.Fatalf("footer missing expected segments: %s", out)
	}
	if m.improved != 1 || len(m.history) != 1 {
		t.Fatalf("expected progress to be recorded, got improved=%d history=%d", m.improved, len(m.history))
	}
	if got := m.renderFooter(12); len([]rune(got)) > 12 {
		t.Fatalf("expected footer truncated to 12 runes, got %q", got)
	}
}

func TestOptimizeModelCancelAndDone(t *testing.T) {
	m := NewOptimizeModel("optimizing", keyboard.QWERTY().RowStrings())
	cancelled := false
	m.cancel = func() { cancelled = true }

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if !cancelled || !m.canceling || cmd != nil {
		t.Fatalf("expected ctrl+c to cancel without quitting")
	}
	if !strings.Contains(m.View(), "cancelling") {
		t.Fatalf("expected cancelling status in view")
	}

	res := optimizer.Result{Layout: keyboard.QWERTY(), Score: 1.5}
	_, cmd = m.Update(DoneMsg{Result: res, Err: context.Canceled})
	if cmd == nil || !m.Done() {
		t.Fatalf("expected done message to quit")
	}
	got, err := m.Result()
	if !errors.Is(err, context.Canceled) || got.Score != 1.5 {
		t.Fatalf("unexpected result %v %v", got.Score, err)
	}
}

func TestOptimizeModelViewFits(t *testing.T) {
	m := NewOptimizeModel("optimizing", keyboard.QWERTY().RowStrings())
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	m.Update(DoneMsg{Result: optimizer.Result{Layout: keyboard.QWERTY()}})
	view := m.View()
	if lines := strings.Split(view, "\n"); len(lines) != 30 {
		t.Fatalf("expected 30 lines, got %d", len(lines))
	}
	if !containsAll(view, []string{"done: optimizing", "Best layout", "q w e r t y u i o p"}) {
		t.Fatalf("unexpected view:\n%s", view)
	}
}

type fakeRuns struct {
	runs   []model.RunRecord
	scores map[string][]model.RunScore
	last   model.RunsConfig
}

func (f *fakeRuns) ListRuns(_ context.Context, cfg model.RunsConfig) ([]model.RunRecord, error) {
	f.last = cfg
	var out []model.RunRecord
	for _, r := range f.runs {
		if cfg.Strategy == "" || r.Strategy == cfg.Strategy {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRuns) ListRunScores(_ context.Context, id string) ([]model.RunScore, error) {
	return f.scores[id], nil
}

func newFakeRuns() *fakeRuns {
	layout := strings.Join(keyboard.QWERTY().RowStrings(), "\n")
	run := func(id, strategy string, score float64) model.RunRecord {
		return model.RunRecord{
			ID: id, EndedAt: time.Now(), Strategy: strategy, Objective: "keylag",
			Initial: layout, Final: layout, InitialScore: 10, Score: score,
		}
	}
	return &fakeRuns{
		runs: []model.RunRecord{
			run("aaaaaaaa-1111", "climb", 9),
			run("bbbbbbbb-2222", "multistart", 7),
		},
		scores: map[string][]model.RunScore{
			"bbbbbbbb-2222": {{Restart: 0, Score: 8}, {Restart: 1, Score: 7.5}, {Restart: 2, Score: 7}},
		},
	}
}

func TestRunsModelOpensDetail(t *testing.T) {
	src := newFakeRuns()
	m := NewRunsModel(src, model.RunsConfig{})
	m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	view := m.View()
	if !containsAll(view, []string{"Runs", "aaaaaaaa", "bbbbbbbb", "runs=2"}) {
		t.Fatalf("unexpected runs view:\n%s", view)
	}

	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	run, ok := m.Selected()
	if !ok || run.ID != "bbbbbbbb-2222" {
		t.Fatalf("expected the latest run selected, got %+v", run)
	}
	if m.activeTab != tabDetail {
		t.Fatalf("expected detail tab")
	}
	if !containsAll(m.View(), []string{"Run bbbbbbbb-2222", "Restarts"}) {
		t.Fatalf("unexpected detail view:\n%s", m.View())
	}
}

func TestRunsModelStrategyFilter(t *testing.T) {
	src := newFakeRuns()
	m := NewRunsModel(src, model.RunsConfig{})
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("s")})
	if src.last.Strategy != "climb" || len(m.runs) != 1 {
		t.Fatalf("expected climb filter, got %q with %d runs", src.last.Strategy, len(m.runs))
	}
	for i := 0; i < 3; i++ {
		m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("s")})
	}
	if src.last.Strategy != "" || len(m.runs) != 2 {
		t.Fatalf("expected filter to cycle back to any")
	}
	if _, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")}); cmd == nil {
		t.Fatalf("expected quit command")
	}
}

func containsAll(haystack string, needles []string) bool {
	for _, needle := range needles {
		if !strings.Contains(haystack, needle) {
			return false
		}
	}
	return true
}
