package metrics

import (
	"github.com/verte-zerg/kbopt/internal/graph"
	"github.com/verte-zerg/kbopt/internal/keyboard"
)

// ScissorResult counts bigrams typed across a scissor pair. Each key is
// credited with the bigrams that end on it.
type ScissorResult struct {
	Total     uint64
	PerFinger [keyboard.FingerCount]uint64
	PerHand   [keyboard.HandCount]uint64
	PerKey    [keyboard.KeyCount]uint64
}

func (r *ScissorResult) Clone() graph.Result { c := *r; return &c }

func (r *ScissorResult) Equal(o graph.Result) bool {
	other, ok := o.(*ScissorResult)
	return ok && *other == *r
}

type scissorNode struct {
	graph.Base
	s       *Session
	codes   *CodesResult
	fingers *FingersResult
	res     ScissorResult
	prev    ScissorResult
}

func newScissorNode(s *Session) *scissorNode {
	return &scissorNode{
		Base: graph.Base{
			NodeID:   ScissorStats,
			Deps:     []graph.NodeID{LayoutCodes, KeyToFinger},
			NodeMode: graph.Swap,
		},
		s: s,
	}
}

func (n *scissorNode) Compute(g *graph.Graph) {
	n.codes = resultOf[*CodesResult](g, LayoutCodes)
	n.fingers = resultOf[*FingersResult](g, KeyToFinger)
	n.res = ScissorResult{}
	for _, pair := range n.s.Scissors.Pairs() {
		p, q := pair[0], pair[1]
		n.credit(q, p, n.codes.Keys[q], n.codes.Keys[p], true)
		n.credit(p, q, n.codes.Keys[p], n.codes.Keys[q], true)
	}
}

// credit adds (or removes) the bigram from key p holding a to key q holding b.
func (n *scissorNode) credit(p, q, a, b int, add bool) {
	v := n.s.Tables.Bigram(a, b)
	if v == 0 {
		return
	}
	f := n.fingers.Keys[q]
	if !add {
		v = -v
	}
	n.res.Total += v
	n.res.PerKey[q] += v
	if f.Valid() {
		n.res.PerFinger[f] += v
		n.res.PerHand[f.Hand()] += v
	}
}

func (n *scissorNode) ApplySwap(s keyboard.Swap) {
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
		for _, q := range n.s.Scissors.Neighbors(p) {
			if p == kb && q == ka {
				continue
			}
			n.credit(p, q, old(p), old(q), false)
			n.credit(q, p, old(q), old(p), false)
			n.credit(p, q, codes[p], codes[q], true)
			n.credit(q, p, codes[q], codes[p], true)
		}
	}
}

func (n *scissorNode) UndoSwap() {
	n.res = n.prev
}

func (n *scissorNode) Result() graph.Result { return &n.res }
