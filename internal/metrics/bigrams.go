package metrics

import (
	"slices"

	"github.com/verte-zerg/kbopt/internal/graph"
	"github.com/verte-zerg/kbopt/internal/keyboard"
)

// BigramClass classifies a character pair by the fingers that type it.
type BigramClass uint8

const (
	BigramUnclassified BigramClass = iota
	BigramRepeat
	BigramSFB
	BigramAlternation
	BigramInRoll
	BigramOutRoll
	bigramClassCount
)

func (c BigramClass) String() string {
	switch c {
	case BigramRepeat:
		return "repeat"
	case BigramSFB:
		return "sfb"
	case BigramAlternation:
		return "alternation"
	case BigramInRoll:
		return "in-roll"
	case BigramOutRoll:
		return "out-roll"
	default:
		return "unclassified"
	}
}

// ClassifyFingers classifies a move from finger f1 to finger f2. Moving
// toward the index finger is an in-roll on both hands.
func ClassifyFingers(f1, f2 keyboard.Finger) BigramClass {
	if !f1.Valid() || !f2.Valid() {
		return BigramUnclassified
	}
	if f1.Hand() != f2.Hand() {
		return BigramAlternation
	}
	if f1 == f2 {
		return BigramSFB
	}
	outward := f1 > f2
	if f1.Hand() == keyboard.RightHand {
		outward = !outward
	}
	if outward {
		return BigramOutRoll
	}
	return BigramInRoll
}

// BigramClassResult holds the class of every ordered code pair, row-major.
type BigramClassResult struct {
	Size    int
	Classes []BigramClass
}

func (r *BigramClassResult) Clone() graph.Result {
	return &BigramClassResult{Size: r.Size, Classes: slices.Clone(r.Classes)}
}

func (r *BigramClassResult) Equal(o graph.Result) bool {
	other, ok := o.(*BigramClassResult)
	return ok && r.Size == other.Size && slices.Equal(r.Classes, other.Classes)
}

// At returns the class of a followed by b.
func (r *BigramClassResult) At(a, b int) BigramClass {
	return r.Classes[a*r.Size+b]
}

type bigramClassNode struct {
	graph.Base
	s       *Session
	codes   *CodesResult
	fingers *CharFingersResult
	res     BigramClassResult

	// rows and columns of the two swapped codes before the swap
	shadowCodes [2]int
	shadowRows  [2][]BigramClass
	shadowCols  [2][]BigramClass
}

func newBigramClassNode(s *Session) *bigramClassNode {
	return &bigramClassNode{
		Base: graph.Base{
			NodeID:   BigramClassification,
			Deps:     []graph.NodeID{LayoutCodes, CharToFinger},
			NodeMode: graph.Swap,
		},
		s: s,
	}
}

func (n *bigramClassNode) classify(a, b int) BigramClass {
	if a == b {
		return BigramRepeat
	}
	return ClassifyFingers(n.fingers.Fingers[a], n.fingers.Fingers[b])
}

func (n *bigramClassNode) Compute(g *graph.Graph) {
	n.codes = resultOf[*CodesResult](g, LayoutCodes)
	n.fingers = resultOf[*CharFingersResult](g, CharToFinger)
	size := n.s.Tables.Size()
	n.res.Size = size
	if cap(n.res.Classes) < size*size {
		n.res.Classes = make([]BigramClass, size*size)
	}
	n.res.Classes = n.res.Classes[:size*size]
	for a := 0; a < size; a++ {
		for b := 0; b < size; b++ {
			n.res.Classes[a*size+b] = n.classify(a, b)
		}
	}
	for i := range n.shadowRows {
		n.shadowRows[i] = make([]BigramClass, size)
		n.shadowCols[i] = make([]BigramClass, size)
	}
}

func (n *bigramClassNode) ApplySwap(s keyboard.Swap) {
	size := n.res.Size
	n.shadowCodes = [2]int{n.codes.Keys[s.A.Index()], n.codes.Keys[s.B.Index()]}
	for i, c := range n.shadowCodes {
		copy(n.shadowRows[i], n.res.Classes[c*size:(c+1)*size])
		for x := 0; x < size; x++ {
			n.shadowCols[i][x] = n.res.Classes[x*size+c]
		}
	}
	for _, c := range n.shadowCodes {
		for x := 0; x < size; x++ {
			n.res.Classes[c*size+x] = n.classify(c, x)
			n.res.Classes[x*size+c] = n.classify(x, c)
		}
	}
}

func (n *bigramClassNode) UndoSwap() {
	size := n.res.Size
	for i, c := range n.shadowCodes {
		copy(n.res.Classes[c*size:(c+1)*size], n.shadowRows[i])
		for x := 0; x < size; x++ {
			n.res.Classes[x*size+c] = n.shadowCols[i][x]
		}
	}
}

func (n *bigramClassNode) Result() graph.Result { return &n.res }
