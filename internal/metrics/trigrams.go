package metrics

import (
	"github.com/verte-zerg/kbopt/internal/freq"
	"github.com/verte-zerg/kbopt/internal/graph"
	"github.com/verte-zerg/kbopt/internal/keyboard"
)

// TrigramClass classifies three consecutive characters by their fingers.
type TrigramClass uint8

const (
	TrigramUnclassified TrigramClass = iota
	TrigramSameFinger
	TrigramAlternation
	TrigramInRoll
	TrigramOutRoll
	TrigramOneHand
	TrigramRedirect
	TrigramBadRedirect
	TrigramClassCount
)

func (c TrigramClass) String() string {
	switch c {
	case TrigramSameFinger:
		return "same-finger"
	case TrigramAlternation:
		return "alternation"
	case TrigramInRoll:
		return "in-roll"
	case TrigramOutRoll:
		return "out-roll"
	case TrigramOneHand:
		return "one-hand"
	case TrigramRedirect:
		return "redirect"
	case TrigramBadRedirect:
		return "bad-redirect"
	default:
		return "unclassified"
	}
}

const fingerSlots = int(keyboard.NoFinger) + 1

var trigramTable = buildTrigramTable()

func buildTrigramTable() *[fingerSlots][fingerSlots][fingerSlots]TrigramClass {
	var t [fingerSlots][fingerSlots][fingerSlots]TrigramClass
	for f1 := 0; f1 < fingerSlots; f1++ {
		for f2 := 0; f2 < fingerSlots; f2++ {
			for f3 := 0; f3 < fingerSlots; f3++ {
				t[f1][f2][f3] = classifyTrigram(keyboard.Finger(f1), keyboard.Finger(f2), keyboard.Finger(f3))
			}
		}
	}
	return &t
}

// ClassifyTrigram classifies a trigram typed by fingers f1, f2, f3.
func ClassifyTrigram(f1, f2, f3 keyboard.Finger) TrigramClass {
	if int(f1) >= fingerSlots || int(f2) >= fingerSlots || int(f3) >= fingerSlots {
		return TrigramUnclassified
	}
	return trigramTable[f1][f2][f3]
}

func classifyTrigram(f1, f2, f3 keyboard.Finger) TrigramClass {
	if !f1.Valid() || !f2.Valid() || !f3.Valid() {
		return TrigramUnclassified
	}
	if f1 == f2 && f2 == f3 {
		return TrigramSameFinger
	}
	if f1 == f2 || f2 == f3 {
		return TrigramUnclassified
	}
	h1, h2, h3 := f1.Hand(), f2.Hand(), f3.Hand()
	if h1 != h2 && h2 != h3 {
		return TrigramAlternation
	}
	if h1 == h2 && h2 == h3 {
		if (f1 < f2 && f2 < f3) || (f1 > f2 && f2 > f3) {
			return TrigramOneHand
		}
		if f1.IsIndex() || f2.IsIndex() || f3.IsIndex() {
			return TrigramRedirect
		}
		return TrigramBadRedirect
	}
	// exactly one hand change: the same-hand pair decides the direction
	var roll BigramClass
	if h1 == h2 {
		roll = ClassifyFingers(f1, f2)
	} else {
		roll = ClassifyFingers(f2, f3)
	}
	if roll == BigramInRoll {
		return TrigramInRoll
	}
	return TrigramOutRoll
}

// TrigramResult counts the most frequent trigrams by class.
type TrigramResult struct {
	Counts [TrigramClassCount]uint64
	// Total is the summed count of every classified trigram.
	Total uint64
}

func (r *TrigramResult) Clone() graph.Result { c := *r; return &c }

func (r *TrigramResult) Equal(o graph.Result) bool {
	other, ok := o.(*TrigramResult)
	return ok && *other == *r
}

// Rolls returns in-rolls plus out-rolls.
func (r *TrigramResult) Rolls() uint64 {
	return r.Counts[TrigramInRoll] + r.Counts[TrigramOutRoll]
}

type trigramNode struct {
	graph.Base
	s       *Session
	codes   *CodesResult
	fingers *CharFingersResult

	top    []freq.Trigram
	byChar [][]int32

	res  TrigramResult
	prev TrigramResult
}

func newTrigramNode(s *Session) *trigramNode {
	return &trigramNode{
		Base: graph.Base{
			NodeID:   TrigramStats,
			Deps:     []graph.NodeID{LayoutCodes, CharToFinger},
			NodeMode: graph.Swap,
		},
		s: s,
	}
}

func (n *trigramNode) Compute(g *graph.Graph) {
	n.codes = resultOf[*CodesResult](g, LayoutCodes)
	n.fingers = resultOf[*CharFingersResult](g, CharToFinger)
	n.top = n.s.Tables.TopTrigrams(n.s.TrigramDepth)
	n.byChar = make([][]int32, n.s.Tables.Size())
	for i, tg := range n.top {
		idx := int32(i)
		n.byChar[tg.A] = append(n.byChar[tg.A], idx)
		if tg.B != tg.A {
			n.byChar[tg.B] = append(n.byChar[tg.B], idx)
		}
		if tg.C != tg.A && tg.C != tg.B {
			n.byChar[tg.C] = append(n.byChar[tg.C], idx)
		}
	}

	n.res = TrigramResult{}
	f := n.fingers.Fingers
	for _, tg := range n.top {
		n.res.Counts[ClassifyTrigram(f[tg.A], f[tg.B], f[tg.C])] += tg.Count
		n.res.Total += tg.Count
	}
}

// ApplySwap reclassifies only the trigrams containing one of the two
// swapped characters. Their previous fingers are the fingers of the other
// swapped character.
func (n *trigramNode) ApplySwap(s keyboard.Swap) {
	n.prev = n.res
	ca, cb := n.codes.Keys[s.A.Index()], n.codes.Keys[s.B.Index()]
	f := n.fingers.Fingers
	prevFinger := func(c int) keyboard.Finger {
		switch c {
		case ca:
			return f[cb]
		case cb:
			return f[ca]
		default:
			return f[c]
		}
	}
	reclassify := func(idx int32) {
		tg := n.top[idx]
		before := ClassifyTrigram(prevFinger(tg.A), prevFinger(tg.B), prevFinger(tg.C))
		after := ClassifyTrigram(f[tg.A], f[tg.B], f[tg.C])
		if before != after {
			n.res.Counts[before] -= tg.Count
			n.res.Counts[after] += tg.Count
		}
	}
	for _, idx := range n.byChar[ca] {
		reclassify(idx)
	}
	for _, idx := range n.byChar[cb] {
		tg := n.top[idx]
		if tg.A == ca || tg.B == ca || tg.C == ca {
			continue
		}
		reclassify(idx)
	}
}

func (n *trigramNode) UndoSwap() {
	n.res = n.prev
}

func (n *trigramNode) Result() graph.Result { return &n.res }

// TopTrigrams returns the classified trigram set with the current class of each.
func (e *Engine) TopTrigrams() []ClassifiedTrigram {
	node, ok := e.Graph.Node(TrigramStats).(*trigramNode)
	if !ok || !e.Graph.Resolved(TrigramStats) {
		return nil
	}
	f := node.fingers.Fingers
	out := make([]ClassifiedTrigram, len(node.top))
	for i, tg := range node.top {
		out[i] = ClassifiedTrigram{Trigram: tg, Class: ClassifyTrigram(f[tg.A], f[tg.B], f[tg.C])}
	}
	return out
}

// ClassifiedTrigram is a trigram with its class under the current layout.
type ClassifiedTrigram struct {
	freq.Trigram
	Class TrigramClass
}
