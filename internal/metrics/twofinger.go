package metrics

import (
	"github.com/verte-zerg/kbopt/internal/graph"
	"github.com/verte-zerg/kbopt/internal/keyboard"
)

// TwoFingerResult aggregates same-finger bigrams (SFB) and same-finger
// skipgrams (SFS). Distance sums are count times travel distance in
// thousandths of a key, credited to the key the motion starts from.
type TwoFingerResult struct {
	SFB uint64
	SFS uint64

	SFBPerFinger [keyboard.FingerCount]uint64
	SFSPerFinger [keyboard.FingerCount]uint64
	SFBPerHand   [keyboard.HandCount]uint64
	SFSPerHand   [keyboard.HandCount]uint64

	SFBDistance [keyboard.KeyCount]uint64
	SFSDistance [keyboard.KeyCount]uint64
}

func (r *TwoFingerResult) Clone() graph.Result { c := *r; return &c }

func (r *TwoFingerResult) Equal(o graph.Result) bool {
	other, ok := o.(*TwoFingerResult)
	return ok && *other == *r
}

type twoFingerNode struct {
	graph.Base
	s        *Session
	codes    *CodesResult
	fingers  *FingersResult
	same     *SameFingerResult
	distance [keyboard.KeyCount][keyboard.KeyCount]uint64
	res      TwoFingerResult
	prev     TwoFingerResult
}

func newTwoFingerNode(s *Session) *twoFingerNode {
	n := &twoFingerNode{
		Base: graph.Base{
			NodeID:   TwoFingerStats,
			Deps:     []graph.NodeID{LayoutCodes, KeyToFinger, SameFingerMap, BigramClassification},
			NodeMode: graph.Swap,
		},
		s: s,
	}
	for i := 0; i < keyboard.KeyCount; i++ {
		for j := 0; j < keyboard.KeyCount; j++ {
			n.distance[i][j] = uint64(keyboard.DistanceMilli(keyboard.PosAt(i), keyboard.PosAt(j)))
		}
	}
	return n
}

func (n *twoFingerNode) Compute(g *graph.Graph) {
	n.codes = resultOf[*CodesResult](g, LayoutCodes)
	n.fingers = resultOf[*FingersResult](g, KeyToFinger)
	n.same = resultOf[*SameFingerResult](g, SameFingerMap)
	classes := resultOf[*BigramClassResult](g, BigramClassification)

	n.res = TwoFingerResult{}
	for p := 0; p < keyboard.KeyCount; p++ {
		for _, q := range n.same.Keys[p] {
			a, b := n.codes.Keys[p], n.codes.Keys[q]
			g.Assertf(n.fingers.Keys[p] == n.fingers.Keys[q] && classes.At(a, b) == BigramSFB,
				"same-finger pair %s %s classified as %s", keyboard.PosAt(p), keyboard.PosAt(q), classes.At(a, b))
			n.add(p, q, a, b)
		}
	}
}

// add and sub apply the contribution of the ordered key pair p,q holding codes a,b.
// Unsigned wrap-around keeps sub exact as long as it mirrors an earlier add.
func (n *twoFingerNode) add(p, q, a, b int) {
	t := n.s.Tables
	bg, sg := t.Bigram(a, b), t.Skipgram(a, b)
	if bg == 0 && sg == 0 {
		return
	}
	f := n.fingers.Keys[p]
	h := f.Hand()
	d := n.distance[p][q]
	n.res.SFB += bg
	n.res.SFS += sg
	n.res.SFBPerFinger[f] += bg
	n.res.SFSPerFinger[f] += sg
	n.res.SFBPerHand[h] += bg
	n.res.SFSPerHand[h] += sg
	n.res.SFBDistance[p] += bg * d
	n.res.SFSDistance[p] += sg * d
}

func (n *twoFingerNode) sub(p, q, a, b int) {
	t := n.s.Tables
	bg, sg := t.Bigram(a, b), t.Skipgram(a, b)
	if bg == 0 && sg == 0 {
		return
	}
	f := n.fingers.Keys[p]
	h := f.Hand()
	d := n.distance[p][q]
	n.res.SFB -= bg
	n.res.SFS -= sg
	n.res.SFBPerFinger[f] -= bg
	n.res.SFSPerFinger[f] -= sg
	n.res.SFBPerHand[h] -= bg
	n.res.SFSPerHand[h] -= sg
	n.res.SFBDistance[p] -= bg * d
	n.res.SFSDistance[p] -= sg * d
}

// ApplySwap revisits only the same-finger pairs touching the two swapped keys.
func (n *twoFingerNode) ApplySwap(s keyboard.Swap) {
	n.prev = n.res
	ka, kb := s.A.Index(), s.B.Index()
	codes := &n.codes.Keys
	old := func(k int) int {
		switch k {
		case ka:
			return codes[kb]
		case kb:
			return codes[ka]
		default:
			return codes[k]
		}
	}
	for _, p := range [2]int{ka, kb} {
		for _, q := range n.same.Keys[p] {
			if p == kb && q == ka {
				continue
			}
			n.sub(p, q, old(p), old(q))
			n.sub(q, p, old(q), old(p))
			n.add(p, q, codes[p], codes[q])
			n.add(q, p, codes[q], codes[p])
		}
	}
}

func (n *twoFingerNode) UndoSwap() {
	n.res = n.prev
}

func (n *twoFingerNode) Result() graph.Result { return &n.res }
