package metrics

import (
	"errors"
	"math"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/kbopt/internal/corpus"
	"github.com/verte-zerg/kbopt/internal/freq"
	"github.com/verte-zerg/kbopt/internal/graph"
	"github.com/verte-zerg/kbopt/internal/keyboard"
)

const sampleText = `The quick brown fox jumps over the lazy dog. Pack my box with five dozen
liquor jugs; the jay, pig, fox, zebra and my wolves quack. Sphinx of black quartz,
judge my vow. How vexingly quick daft zebras jump! Where is the path/to/the/file?
She said: "keyboards are tools, and tools should fit the hand that uses them."`

func sampleTables(t testing.TB, layout keyboard.Layout) *freq.Tables {
	t.Helper()
	alphabet := corpus.AlphabetOf(layout)
	var b strings.Builder
	for i := 0; i < 8; i++ {
		b.WriteString(sampleText)
		b.WriteByte('\n')
	}
	rng := rand.New(rand.NewPCG(7, 11))
	for i := 0; i < 4000; i++ {
		b.WriteRune(alphabet[rng.IntN(len(alphabet))])
	}
	tables, err := corpus.Count(strings.NewReader(b.String()), alphabet)
	require.NoError(t, err)
	return tables
}

func newTestEngine(t testing.TB, layout keyboard.Layout, tables *freq.Tables) *Engine {
	t.Helper()
	engine, err := NewEngine(NewSession(layout, tables), graph.WithStrictAssertions())
	require.NoError(t, err)
	require.NoError(t, engine.Install(KeyLag, LayoutScore))
	require.NoError(t, engine.InstallMeasures())
	require.NoError(t, engine.Resolve())
	require.NoError(t, engine.Graph.PreprocessSwapOrder())
	return engine
}

func randomSwap(rng *rand.Rand) keyboard.Swap {
	a := rng.IntN(keyboard.KeyCount)
	b := rng.IntN(keyboard.KeyCount - 1)
	if b >= a {
		b++
	}
	return keyboard.Swap{A: keyboard.PosAt(a), B: keyboard.PosAt(b)}
}

func TestSwapOrder(t *testing.T) {
	layout := keyboard.QWERTY()
	engine := newTestEngine(t, layout, sampleTables(t, layout))

	order := engine.Graph.SwapOrder()
	require.NotEmpty(t, order)
	assert.Equal(t, LayoutCodes, order[0])
	for _, id := range order {
		assert.Equal(t, Inputs, id.Family(), "%s in swap order", Name(id))
		assert.NotEqual(t, KeyToFinger, id)
		assert.NotEqual(t, SameFingerMap, id)
	}
	pos := make(map[graph.NodeID]int, len(order))
	for i, id := range order {
		pos[id] = i
	}
	assert.Less(t, pos[CharToFinger], pos[BigramClassification])
	assert.Less(t, pos[BigramClassification], pos[TwoFingerStats])
	assert.Less(t, pos[TwoFingerStats], pos[KeyLag])
	assert.Less(t, pos[KeyLag], pos[LayoutScore])
}

func TestApplyUndoRestoresEveryResult(t *testing.T) {
	layout := keyboard.QWERTY()
	engine := newTestEngine(t, layout, sampleTables(t, layout))
	snap := engine.Graph.Snapshot()
	rng := rand.New(rand.NewPCG(1, 2))

	for i := 0; i < 500; i++ {
		s := randomSwap(rng)
		require.NoError(t, engine.Graph.ApplySwap(s))
		require.NoError(t, engine.Graph.UndoSwap())
		require.Empty(t, engine.Graph.Diff(snap), "after apply/undo of %s", s)
	}
	assert.Zero(t, engine.Graph.Violations())
}

func TestDoubleSwapRestoresEveryResult(t *testing.T) {
	layout := keyboard.QWERTY()
	engine := newTestEngine(t, layout, sampleTables(t, layout))
	snap := engine.Graph.Snapshot()
	rng := rand.New(rand.NewPCG(3, 4))

	for i := 0; i < 500; i++ {
		s := randomSwap(rng)
		require.NoError(t, engine.Graph.ApplySwap(s))
		require.NoError(t, engine.Graph.ApplySwap(s))
		require.Empty(t, engine.Graph.Diff(snap), "after double swap of %s", s)
	}
}

func TestIncrementalMatchesFullResolve(t *testing.T) {
	layout := keyboard.QWERTY()
	tables := sampleTables(t, layout)
	engine := newTestEngine(t, layout, tables)
	rng := rand.New(rand.NewPCG(5, 6))

	want := layout
	for i := 0; i < 300; i++ {
		s := randomSwap(rng)
		require.NoError(t, engine.Graph.ApplySwap(s))
		want.Apply(s)
	}

	got, err := engine.CurrentLayout()
	require.NoError(t, err)
	require.Equal(t, want, got)

	fresh := newTestEngine(t, want, tables)
	for _, id := range engine.Graph.SwapOrder() {
		assert.True(t, fresh.Graph.Result(id).Equal(engine.Graph.Result(id)), "%s differs from a full resolve", Name(id))
	}
	assert.Equal(t, fresh.KeyLag().Total, engine.KeyLag().Total)
	assert.Equal(t, fresh.Score().Total, engine.Score().Total)
}

func TestSameFingerBigramMovesAway(t *testing.T) {
	layout := keyboard.QWERTY()
	alphabet := corpus.AlphabetOf(layout)
	tables, err := corpus.Count(strings.NewReader(strings.Repeat("az ", 1000)), alphabet)
	require.NoError(t, err)
	engine := newTestEngine(t, layout, tables)

	// a at (1,0) and z at (2,0) share the left pinkie.
	require.Equal(t, uint64(1000), engine.TwoFinger().SFB)
	require.Equal(t, uint64(1000), engine.TwoFinger().SFBPerFinger[keyboard.LeftPinkie])
	before := *engine.TwoFinger()
	lagBefore := engine.KeyLag().Total

	s := keyboard.Swap{A: keyboard.Pos{Row: 1, Col: 0}, B: keyboard.Pos{Row: 1, Col: 1}}
	require.NoError(t, engine.Graph.ApplySwap(s))
	assert.Zero(t, engine.TwoFinger().SFB)
	assert.Less(t, engine.KeyLag().Total, lagBefore)

	require.NoError(t, engine.Graph.UndoSwap())
	assert.Equal(t, before, *engine.TwoFinger())
	assert.Equal(t, lagBefore, engine.KeyLag().Total)
}

func TestApplySwapErrors(t *testing.T) {
	layout := keyboard.QWERTY()
	tables := sampleTables(t, layout)
	engine, err := NewEngine(NewSession(layout, tables))
	require.NoError(t, err)
	require.NoError(t, engine.Install(KeyLag))
	require.NoError(t, engine.Resolve())

	s := keyboard.Swap{A: keyboard.Pos{Row: 0, Col: 0}, B: keyboard.Pos{Row: 0, Col: 1}}
	assert.ErrorIs(t, engine.Graph.ApplySwap(s), graph.ErrNotPrepared)

	require.NoError(t, engine.Graph.PreprocessSwapOrder())
	assert.ErrorIs(t, engine.Graph.UndoSwap(), graph.ErrNoPendingSwap)

	same := keyboard.Swap{A: s.A, B: s.A}
	assert.ErrorIs(t, engine.Graph.ApplySwap(same), graph.ErrInvalidSwap)
	space := keyboard.Swap{A: s.A, B: keyboard.SpacePos}
	assert.ErrorIs(t, engine.Graph.ApplySwap(space), graph.ErrInvalidSwap)
	assert.Equal(t, 2, engine.Graph.Violations())
}

func TestSessionValidate(t *testing.T) {
	layout := keyboard.QWERTY()
	tables := sampleTables(t, layout)

	_, err := NewEngine(NewSession(layout, nil))
	assert.ErrorIs(t, err, ErrNoTables)

	other := layout
	other.Set(keyboard.Pos{Row: 0, Col: 0}, '!')
	_, err = NewEngine(NewSession(other, tables))
	assert.ErrorIs(t, err, ErrUnknownRune)

	dup := layout
	dup.Set(keyboard.Pos{Row: 0, Col: 0}, 'w')
	_, err = NewEngine(NewSession(dup, tables))
	assert.ErrorIs(t, err, ErrDuplicateKey)

	bad := NewSession(layout, tables)
	bad.TrigramDepth = -1
	assert.Error(t, bad.Validate())
}

func TestSetTablesInvalidates(t *testing.T) {
	layout := keyboard.QWERTY()
	engine := newTestEngine(t, layout, sampleTables(t, layout))
	require.NotNil(t, engine.KeyLag())

	small, err := freq.New([]rune("abc"))
	require.NoError(t, err)
	err = engine.SetTables(small)
	assert.True(t, errors.Is(err, ErrUnknownRune))
	assert.NotNil(t, engine.KeyLag(), "rejected tables keep results")

	tables, err := corpus.Count(strings.NewReader(strings.Repeat("hello world ", 50)), corpus.AlphabetOf(layout))
	require.NoError(t, err)
	require.NoError(t, engine.SetTables(tables))
	assert.Nil(t, engine.KeyLag())
	require.NoError(t, engine.Resolve())
	assert.NotNil(t, engine.KeyLag())
}

func TestZeroDenominatorsContributeZero(t *testing.T) {
	layout := keyboard.QWERTY()
	tables, err := corpus.Count(strings.NewReader("e"), corpus.AlphabetOf(layout))
	require.NoError(t, err)
	require.Zero(t, tables.BigramHits())
	engine := newTestEngine(t, layout, tables)

	lag := engine.KeyLag()
	assert.False(t, math.IsNaN(lag.Total))
	assert.Greater(t, lag.Total, 0.0)
	for _, m := range engine.Measures() {
		assert.False(t, math.IsNaN(m.Total), m.Name)
	}
	assert.Zero(t, engine.Measure(MeasureSFB).Total)
	assert.Zero(t, engine.Measure(MeasureRolls).Total)
}

func TestMeasures(t *testing.T) {
	layout := keyboard.QWERTY()
	engine := newTestEngine(t, layout, sampleTables(t, layout))

	measures := engine.Measures()
	require.Len(t, measures, len(AllMeasures))
	assert.Equal(t, "Key lag", measures[0].Name)

	balance := engine.Measure(MeasureFingerBalance)
	assert.InDelta(t, 100, balance.PerHand[keyboard.LeftHand]+balance.PerHand[keyboard.RightHand], 1e-9)
	sum := 0.0
	for _, v := range balance.PerFinger {
		sum += v
	}
	assert.InDelta(t, 100, sum, 1e-9)

	rolls := engine.Measure(MeasureRolls)
	in, ok := rolls.Part("in-roll")
	require.True(t, ok)
	out, ok := rolls.Part("out-roll")
	require.True(t, ok)
	assert.InDelta(t, rolls.Total, in+out, 1e-9)

	score := engine.Measure(MeasureLayoutScore)
	assert.InDelta(t, engine.Score().KeyLag+engine.Score().Trigram, score.Total, 1e-9)
	assert.Equal(t, engine.KeyLag().Total, engine.Measure(MeasureKeyLag).Total)

	fingerLag := engine.Measure(MeasureFingerLag)
	assert.InDelta(t, fingerLag.Total, fingerLag.PerHand[keyboard.LeftHand]+fingerLag.PerHand[keyboard.RightHand], 1e-6)

	home := engine.Measure(MeasureHomeRow)
	assert.Greater(t, home.Total, 0.0)
	assert.Less(t, home.Total, 100.0)

	clone := score.Clone()
	assert.True(t, clone.Equal(score))
}

func TestMeasuresAreNotSwapAware(t *testing.T) {
	layout := keyboard.QWERTY()
	engine := newTestEngine(t, layout, sampleTables(t, layout))
	sfb := *engine.Measure(MeasureSFB)

	s := keyboard.Swap{A: keyboard.Pos{Row: 1, Col: 0}, B: keyboard.Pos{Row: 1, Col: 5}}
	require.NoError(t, engine.Graph.ApplySwap(s))
	assert.Equal(t, sfb, *engine.Measure(MeasureSFB))

	require.NoError(t, engine.Commit())
	assert.Equal(t, 'h', engine.Session.Layout.At(keyboard.Pos{Row: 1, Col: 0}))
	assert.Equal(t, 'a', engine.Session.Layout.At(keyboard.Pos{Row: 1, Col: 5}))
}

func TestCommitMatchesWorkingState(t *testing.T) {
	layout := keyboard.QWERTY()
	engine := newTestEngine(t, layout, sampleTables(t, layout))
	rng := rand.New(rand.NewPCG(8, 9))
	for i := 0; i < 20; i++ {
		require.NoError(t, engine.Graph.ApplySwap(randomSwap(rng)))
	}
	snap := engine.Graph.Snapshot()
	require.NoError(t, engine.Commit())
	assert.Empty(t, engine.Graph.Diff(snap))
	assert.ErrorIs(t, engine.Graph.UndoSwap(), graph.ErrNoPendingSwap)
}

func TestClassifyFingers(t *testing.T) {
	cases := []struct {
		f1, f2 keyboard.Finger
		want   BigramClass
	}{
		{keyboard.LeftPinkie, keyboard.LeftIndex, BigramInRoll},
		{keyboard.LeftIndex, keyboard.LeftPinkie, BigramOutRoll},
		{keyboard.RightPinkie, keyboard.RightIndex, BigramInRoll},
		{keyboard.RightIndex, keyboard.RightRing, BigramOutRoll},
		{keyboard.LeftMiddle, keyboard.LeftMiddle, BigramSFB},
		{keyboard.LeftRing, keyboard.RightRing, BigramAlternation},
		{keyboard.NoFinger, keyboard.LeftRing, BigramUnclassified},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ClassifyFingers(tc.f1, tc.f2), "%s -> %s", tc.f1, tc.f2)
	}
}

func TestClassifyTrigram(t *testing.T) {
	lp, lr, lm, li := keyboard.LeftPinkie, keyboard.LeftRing, keyboard.LeftMiddle, keyboard.LeftIndex
	ri, rm := keyboard.RightIndex, keyboard.RightMiddle
	cases := []struct {
		f    [3]keyboard.Finger
		want TrigramClass
	}{
		{[3]keyboard.Finger{lm, lm, lm}, TrigramSameFinger},
		{[3]keyboard.Finger{lm, ri, lr}, TrigramAlternation},
		{[3]keyboard.Finger{lp, lr, rm}, TrigramInRoll},
		{[3]keyboard.Finger{rm, li, lp}, TrigramOutRoll},
		{[3]keyboard.Finger{lp, lm, li}, TrigramOneHand},
		{[3]keyboard.Finger{lr, li, lm}, TrigramRedirect},
		{[3]keyboard.Finger{lm, lp, lr}, TrigramBadRedirect},
		{[3]keyboard.Finger{lm, lm, ri}, TrigramUnclassified},
		{[3]keyboard.Finger{lm, keyboard.NoFinger, ri}, TrigramUnclassified},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ClassifyTrigram(tc.f[0], tc.f[1], tc.f[2]), "%v", tc.f)
	}
}

func TestTopTrigramsFollowSwaps(t *testing.T) {
	layout := keyboard.QWERTY()
	engine := newTestEngine(t, layout, sampleTables(t, layout))

	counts := func() [TrigramClassCount]uint64 {
		var out [TrigramClassCount]uint64
		for _, tg := range engine.TopTrigrams() {
			out[tg.Class] += tg.Count
		}
		return out
	}
	assert.Equal(t, engine.Trigrams().Counts, counts())

	s := keyboard.Swap{A: keyboard.Pos{Row: 0, Col: 2}, B: keyboard.Pos{Row: 2, Col: 7}}
	require.NoError(t, engine.Graph.ApplySwap(s))
	assert.Equal(t, engine.Trigrams().Counts, counts())
}
