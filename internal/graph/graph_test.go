package graph

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/kbopt/internal/keyboard"
)

const testFamily Family = 1

var (
	idCells   = MakeID(testFamily, 0)
	idWeights = MakeID(testFamily, 1)
	idSum     = MakeID(testFamily, 2)
	idReport  = MakeID(testFamily, 3)
	idTainted = MakeID(testFamily, 4)
	idLoopA   = MakeID(testFamily, 5)
	idLoopB   = MakeID(testFamily, 6)
	idBroken  = MakeID(testFamily, 7)
)

type intResult struct{ v int }

func (r *intResult) Clone() Result { c := *r; return &c }
func (r *intResult) Equal(o Result) bool {
	other, ok := o.(*intResult)
	return ok && *other == *r
}

type cellsResult struct{ v [keyboard.Cols]int }

func (r *cellsResult) Clone() Result { c := *r; return &c }
func (r *cellsResult) Equal(o Result) bool {
	other, ok := o.(*cellsResult)
	return ok && *other == *r
}

type cellsNode struct {
	Base
	res     cellsResult
	last    keyboard.Swap
	compute int
}

func (n *cellsNode) Compute(*Graph) {
	n.compute++
	for i := range n.res.v {
		n.res.v[i] = i + 1
	}
}
func (n *cellsNode) ApplySwap(s keyboard.Swap) {
	n.last = s
	n.res.v[s.A.Col], n.res.v[s.B.Col] = n.res.v[s.B.Col], n.res.v[s.A.Col]
}
func (n *cellsNode) UndoSwap() {
	s := n.last
	n.res.v[s.A.Col], n.res.v[s.B.Col] = n.res.v[s.B.Col], n.res.v[s.A.Col]
}
func (n *cellsNode) Result() Result { return &n.res }

type weightsNode struct {
	Base
	res     cellsResult
	compute int
}

func (n *weightsNode) Compute(*Graph) {
	n.compute++
	for i := range n.res.v {
		n.res.v[i] = i * i
	}
}
func (n *weightsNode) Result() Result { return &n.res }

type sumNode struct {
	Base
	cells   *cellsResult
	weights *cellsResult
	res     intResult
	prev    intResult
	compute int
}

func (n *sumNode) Compute(g *Graph) {
	n.compute++
	n.cells = g.Result(idCells).(*cellsResult)
	n.weights = g.Result(idWeights).(*cellsResult)
	n.res.v = 0
	for i, v := range n.cells.v {
		n.res.v += v * n.weights.v[i]
	}
}
func (n *sumNode) ApplySwap(s keyboard.Swap) {
	n.prev = n.res
	a, b := s.A.Col, s.B.Col
	// cells already swapped upstream
	n.res.v += (n.cells.v[a]-n.cells.v[b])*n.weights.v[a] + (n.cells.v[b]-n.cells.v[a])*n.weights.v[b]
}
func (n *sumNode) UndoSwap() { n.res = n.prev }
func (n *sumNode) Result() Result { return &n.res }

type reportNode struct {
	Base
	res intResult
}

func (n *reportNode) Compute(g *Graph) {
	n.res.v = 2 * g.Result(idSum).(*intResult).v
}
func (n *reportNode) Result() Result { return &n.res }

type plainNode struct {
	Base
	res intResult
}

func (n *plainNode) Compute(*Graph) {}
func (n *plainNode) Result() Result { return &n.res }

type fixture struct {
	cells   *cellsNode
	weights *weightsNode
	sum     *sumNode
}

func newTestGraph(t *testing.T, opts ...Option) (*Graph, *fixture) {
	t.Helper()
	f := &fixture{}
	registry := Registry{
		testFamily: func(id NodeID) (Node, bool) {
			switch id {
			case idCells:
				f.cells = &cellsNode{Base: Base{NodeID: id, NodeMode: Swap}}
				return f.cells, true
			case idWeights:
				f.weights = &weightsNode{Base: Base{NodeID: id, NodeMode: Static}}
				return f.weights, true
			case idSum:
				f.sum = &sumNode{Base: Base{NodeID: id, Deps: []NodeID{idCells, idWeights}, NodeMode: Swap}}
				return f.sum, true
			case idReport:
				return &reportNode{Base: Base{NodeID: id, Deps: []NodeID{idSum}, NodeMode: Full}}, true
			case idTainted:
				return &plainNode{Base: Base{NodeID: id, Deps: []NodeID{idReport}, NodeMode: Swap}}, true
			case idLoopA:
				return &plainNode{Base: Base{NodeID: id, Deps: []NodeID{idLoopB}, NodeMode: Swap}}, true
			case idLoopB:
				return &plainNode{Base: Base{NodeID: id, Deps: []NodeID{idLoopA}, NodeMode: Swap}}, true
			case idBroken:
				return &plainNode{Base: Base{NodeID: id, Deps: []NodeID{MakeID(9, 0)}, NodeMode: Swap}}, true
			}
			return nil, false
		},
	}
	return New(registry, opts...), f
}

func swapCols(a, b int) keyboard.Swap {
	return keyboard.Swap{A: keyboard.Pos{Row: 0, Col: a}, B: keyboard.Pos{Row: 0, Col: b}}
}

func TestInstallIsIdempotentAndRecursive(t *testing.T) {
	g, f := newTestGraph(t, WithStrictAssertions())
	require.NoError(t, g.Install(idSum))
	first := f.sum
	require.NoError(t, g.Install(idSum))
	assert.Same(t, first, f.sum)
	assert.True(t, g.Installed(idCells))
	assert.True(t, g.Installed(idWeights))
	assert.Nil(t, g.Result(idSum), "result must not exist before resolve")
}

func TestInstallUnknownNode(t *testing.T) {
	var logs bytes.Buffer
	g, _ := newTestGraph(t, WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	err := g.Install(MakeID(3, 0))
	require.ErrorIs(t, err, ErrUnknownNode)
	err = g.Install(MakeID(testFamily, 99))
	require.ErrorIs(t, err, ErrUnknownNode)
	err = g.Install(idBroken)
	require.ErrorIs(t, err, ErrUnknownNode)
	assert.False(t, g.Installed(idBroken), "failed install must not leave the node behind")
	assert.Equal(t, 3, g.Violations())
	assert.Contains(t, logs.String(), "assertion failed")
}

func TestStrictAssertionPanics(t *testing.T) {
	g, _ := newTestGraph(t, WithStrictAssertions())
	assert.Panics(t, func() { _ = g.Install(MakeID(3, 0)) })
}

func TestResolveAllComputesOncePerCall(t *testing.T) {
	g, f := newTestGraph(t)
	require.NoError(t, g.Install(idReport))
	require.NoError(t, g.Install(idSum))
	require.NoError(t, g.ResolveAll())
	assert.Equal(t, 1, f.cells.compute)
	assert.Equal(t, 1, f.sum.compute)

	want := 0
	for i := 0; i < keyboard.Cols; i++ {
		want += (i + 1) * i * i
	}
	assert.Equal(t, want, g.Result(idSum).(*intResult).v)
	assert.Equal(t, 2*want, g.Result(idReport).(*intResult).v)

	require.NoError(t, g.ResolveAll())
	assert.Equal(t, 2, f.sum.compute)
}

func TestResolveAllDetectsCycle(t *testing.T) {
	g, _ := newTestGraph(t)
	require.NoError(t, g.Install(idLoopA))
	require.ErrorIs(t, g.ResolveAll(), ErrCycle)
	require.ErrorIs(t, g.PreprocessSwapOrder(), ErrCycle)
}

func TestSwapOrderExcludesNodesBehindFullNodes(t *testing.T) {
	g, _ := newTestGraph(t)
	require.NoError(t, g.Install(idTainted))
	require.NoError(t, g.PreprocessSwapOrder())
	assert.Equal(t, []NodeID{idCells, idSum}, g.SwapOrder())
}

func TestApplyUndoSwap(t *testing.T) {
	g, _ := newTestGraph(t, WithStrictAssertions())
	require.NoError(t, g.Install(idSum))

	require.ErrorIs(t, g.ApplySwap(swapCols(1, 2)), ErrNotPrepared)
	require.NoError(t, g.PreprocessSwapOrder())
	require.ErrorIs(t, g.ApplySwap(swapCols(1, 2)), ErrNotResolved)
	require.NoError(t, g.ResolveAll())

	before := g.Snapshot()
	require.NoError(t, g.ApplySwap(swapCols(1, 7)))
	assert.Equal(t, []NodeID{idCells, idSum}, g.Diff(before))
	require.NoError(t, g.UndoSwap())
	assert.Empty(t, g.Diff(before))
	require.ErrorIs(t, g.UndoSwap(), ErrNoPendingSwap)

	// applying the same swap twice restores everything
	require.NoError(t, g.ApplySwap(swapCols(0, 9)))
	require.NoError(t, g.ApplySwap(swapCols(0, 9)))
	assert.Empty(t, g.Diff(before))
	assert.Equal(t, uint64(3), g.Swaps())
}

func TestApplySwapMatchesResolve(t *testing.T) {
	g, f := newTestGraph(t, WithStrictAssertions())
	require.NoError(t, g.Install(idSum))
	require.NoError(t, g.ResolveAll())
	require.NoError(t, g.PreprocessSwapOrder())

	swaps := []keyboard.Swap{swapCols(0, 3), swapCols(3, 9), swapCols(2, 5), swapCols(9, 1)}
	for _, s := range swaps {
		require.NoError(t, g.ApplySwap(s))
	}
	got := g.Result(idSum).(*intResult).v

	want := 0
	for i, v := range f.cells.res.v {
		want += v * i * i
	}
	assert.Equal(t, want, got)
}

func TestInvalidSwapRejected(t *testing.T) {
	var logs bytes.Buffer
	g, _ := newTestGraph(t, WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	require.NoError(t, g.Install(idSum))
	require.NoError(t, g.ResolveAll())
	require.NoError(t, g.PreprocessSwapOrder())
	err := g.ApplySwap(swapCols(4, 4))
	require.True(t, errors.Is(err, ErrInvalidSwap))
	assert.Equal(t, 1, g.Violations())
}

func TestInvalidateDropsResults(t *testing.T) {
	g, _ := newTestGraph(t)
	require.NoError(t, g.Install(idSum))
	require.NoError(t, g.ResolveAll())
	require.True(t, g.Resolved(idSum))
	g.Invalidate()
	assert.False(t, g.Resolved(idSum))
	assert.Nil(t, g.Result(idSum))
}
