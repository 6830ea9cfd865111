package metrics

import (
	"github.com/verte-zerg/kbopt/internal/graph"
	"github.com/verte-zerg/kbopt/internal/keyboard"
)

// Key lag weights.
const (
	WeightSFB     = 1000.0
	WeightSFS     = 500.0
	WeightScissor = 1700.0
	WeightEffort  = 100.0
)

// Layout score weights, applied to trigram percentages. Negative weights reward.
const (
	ScoreRoll        = -10.0
	ScoreAlternation = -5.0
	ScoreOneHand     = 2.0
	ScoreRedirect    = 25.0
	ScoreBadRedirect = 80.0
)

// ratio returns n/d, or zero when d is zero.
func ratio(n, d uint64) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}

// KeyLagResult is the composite cost of every board key and their sum. The
// optimizer minimizes Total. The space slot carries no lag.
type KeyLagResult struct {
	PerKey [keyboard.KeyCount]float64
	Total  float64
}

func (r *KeyLagResult) Clone() graph.Result { c := *r; return &c }

func (r *KeyLagResult) Equal(o graph.Result) bool {
	other, ok := o.(*KeyLagResult)
	return ok && *other == *r
}

// Worst returns the index of the key with the highest lag.
func (r *KeyLagResult) Worst() int {
	worst := 0
	for i, v := range r.PerKey {
		if v > r.PerKey[worst] {
			worst = i
		}
	}
	return worst
}

type keyLagNode struct {
	graph.Base
	s        *Session
	codes    *CodesResult
	fingers  *FingersResult
	two      *TwoFingerResult
	scissors *ScissorResult
	res      KeyLagResult
	prev     KeyLagResult
}

func newKeyLagNode(s *Session) *keyLagNode {
	return &keyLagNode{
		Base: graph.Base{
			NodeID:   KeyLag,
			Deps:     []graph.NodeID{LayoutCodes, KeyToFinger, TwoFingerStats, ScissorStats},
			NodeMode: graph.Swap,
		},
		s: s,
	}
}

func (n *keyLagNode) Compute(g *graph.Graph) {
	n.codes = resultOf[*CodesResult](g, LayoutCodes)
	n.fingers = resultOf[*FingersResult](g, KeyToFinger)
	n.two = resultOf[*TwoFingerResult](g, TwoFingerStats)
	n.scissors = resultOf[*ScissorResult](g, ScissorStats)
	n.recompute()
}

// recompute derives every float from integer upstream state in a fixed
// order, so the swap path and a full resolve produce identical bits.
func (n *keyLagNode) recompute() {
	t := n.s.Tables
	bgHits, sgHits, charHits := t.BigramHits(), t.SkipgramHits(), t.CharHits()
	total := 0.0
	for i := 0; i < keyboard.KeyCount; i++ {
		penalty := keyboard.LocationPenalty(keyboard.PosAt(i))
		weight := n.s.Weights.Weight(n.fingers.Keys[i])
		sfb := ratio(n.two.SFBDistance[i], bgHits) / 1000
		sfs := ratio(n.two.SFSDistance[i], sgHits) / 1000
		sc := ratio(n.scissors.PerKey[i], bgHits)
		effort := ratio(t.Char(n.codes.Keys[i]), charHits)
		lag := (sfb*WeightSFB+sfs*WeightSFS+sc*WeightScissor)*weight*penalty + effort*penalty*WeightEffort
		n.res.PerKey[i] = lag
		total += lag
	}
	n.res.Total = total
}

func (n *keyLagNode) ApplySwap(keyboard.Swap) {
	n.prev = n.res
	n.recompute()
}

func (n *keyLagNode) UndoSwap() {
	n.res = n.prev
}

func (n *keyLagNode) Result() graph.Result { return &n.res }

// ScoreResult combines key lag with trigram flow. Lower is better.
type ScoreResult struct {
	KeyLag  float64
	Trigram float64
	Total   float64
}

func (r *ScoreResult) Clone() graph.Result { c := *r; return &c }

func (r *ScoreResult) Equal(o graph.Result) bool {
	other, ok := o.(*ScoreResult)
	return ok && *other == *r
}

type layoutScoreNode struct {
	graph.Base
	lag  *KeyLagResult
	tri  *TrigramResult
	res  ScoreResult
	prev ScoreResult
}

func newLayoutScoreNode() *layoutScoreNode {
	return &layoutScoreNode{
		Base: graph.Base{
			NodeID:   LayoutScore,
			Deps:     []graph.NodeID{KeyLag, TrigramStats},
			NodeMode: graph.Swap,
		},
	}
}

func (n *layoutScoreNode) Compute(g *graph.Graph) {
	n.lag = resultOf[*KeyLagResult](g, KeyLag)
	n.tri = resultOf[*TrigramResult](g, TrigramStats)
	n.recompute()
}

func (n *layoutScoreNode) recompute() {
	pct := func(c TrigramClass) float64 {
		return ratio(n.tri.Counts[c], n.tri.Total) * 100
	}
	tri := pct(TrigramInRoll)*ScoreRoll +
		pct(TrigramOutRoll)*ScoreRoll +
		pct(TrigramAlternation)*ScoreAlternation +
		pct(TrigramOneHand)*ScoreOneHand +
		pct(TrigramRedirect)*ScoreRedirect +
		pct(TrigramBadRedirect)*ScoreBadRedirect
	n.res = ScoreResult{KeyLag: n.lag.Total, Trigram: tri, Total: n.lag.Total + tri}
}

func (n *layoutScoreNode) ApplySwap(keyboard.Swap) {
	n.prev = n.res
	n.recompute()
}

func (n *layoutScoreNode) UndoSwap() {
	n.res = n.prev
}

func (n *layoutScoreNode) Result() graph.Result { return &n.res }
