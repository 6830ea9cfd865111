package metrics

import (
	"slices"

	"github.com/verte-zerg/kbopt/internal/freq"
	"github.com/verte-zerg/kbopt/internal/graph"
	"github.com/verte-zerg/kbopt/internal/keyboard"
)

// noKey marks a character that is not on the board.
const noKey = -1

// CodesResult is the layout expressed as character codes, indexed by
// keyboard.Pos.Index.
type CodesResult struct {
	Keys [keyboard.PosCount]int
}

func (r *CodesResult) Clone() graph.Result { c := *r; return &c }

func (r *CodesResult) Equal(o graph.Result) bool {
	other, ok := o.(*CodesResult)
	return ok && *other == *r
}

// At returns the code at p.
func (r *CodesResult) At(p keyboard.Pos) int {
	return r.Keys[p.Index()]
}

// Layout converts the codes back into runes.
func (r *CodesResult) Layout(tables *freq.Tables) keyboard.Layout {
	var l keyboard.Layout
	for idx, code := range r.Keys {
		l.Set(keyboard.PosAt(idx), tables.Rune(code))
	}
	return l
}

type layoutCodesNode struct {
	graph.Base
	s    *Session
	res  CodesResult
	last keyboard.Swap
}

func newLayoutCodesNode(s *Session) *layoutCodesNode {
	return &layoutCodesNode{
		Base: graph.Base{NodeID: LayoutCodes, NodeMode: graph.Swap},
		s:    s,
	}
}

func (n *layoutCodesNode) Compute(*graph.Graph) {
	for idx := range n.res.Keys {
		n.res.Keys[idx] = n.s.code(keyboard.PosAt(idx))
	}
}

func (n *layoutCodesNode) ApplySwap(s keyboard.Swap) {
	n.last = s
	a, b := s.A.Index(), s.B.Index()
	n.res.Keys[a], n.res.Keys[b] = n.res.Keys[b], n.res.Keys[a]
}

func (n *layoutCodesNode) UndoSwap() {
	a, b := n.last.A.Index(), n.last.B.Index()
	n.res.Keys[a], n.res.Keys[b] = n.res.Keys[b], n.res.Keys[a]
}

func (n *layoutCodesNode) Result() graph.Result { return &n.res }

// FingersResult is the finger of every position, indexed by keyboard.Pos.Index.
type FingersResult struct {
	Keys [keyboard.PosCount]keyboard.Finger
}

func (r *FingersResult) Clone() graph.Result { c := *r; return &c }

func (r *FingersResult) Equal(o graph.Result) bool {
	other, ok := o.(*FingersResult)
	return ok && *other == *r
}

type keyToFingerNode struct {
	graph.Base
	s   *Session
	res FingersResult
}

func newKeyToFingerNode(s *Session) *keyToFingerNode {
	return &keyToFingerNode{
		Base: graph.Base{NodeID: KeyToFinger, NodeMode: graph.Static},
		s:    s,
	}
}

func (n *keyToFingerNode) Compute(*graph.Graph) {
	for idx := range n.res.Keys {
		n.res.Keys[idx] = n.s.Fingers.At(keyboard.PosAt(idx))
	}
}

func (n *keyToFingerNode) Result() graph.Result { return &n.res }

// SameFingerResult lists, for every board key, the other board keys typed by
// the same finger.
type SameFingerResult struct {
	Keys [keyboard.KeyCount][]int
}

func (r *SameFingerResult) Clone() graph.Result {
	c := &SameFingerResult{}
	for i, keys := range r.Keys {
		c.Keys[i] = slices.Clone(keys)
	}
	return c
}

func (r *SameFingerResult) Equal(o graph.Result) bool {
	other, ok := o.(*SameFingerResult)
	if !ok {
		return false
	}
	for i := range r.Keys {
		if !slices.Equal(r.Keys[i], other.Keys[i]) {
			return false
		}
	}
	return true
}

type sameFingerNode struct {
	graph.Base
	res SameFingerResult
}

func newSameFingerNode() *sameFingerNode {
	return &sameFingerNode{
		Base: graph.Base{NodeID: SameFingerMap, Deps: []graph.NodeID{KeyToFinger}, NodeMode: graph.Static},
	}
}

func (n *sameFingerNode) Compute(g *graph.Graph) {
	fingers := resultOf[*FingersResult](g, KeyToFinger)
	for i := 0; i < keyboard.KeyCount; i++ {
		n.res.Keys[i] = n.res.Keys[i][:0]
		fi := fingers.Keys[i]
		if !fi.Valid() {
			continue
		}
		for j := 0; j < keyboard.KeyCount; j++ {
			if j != i && fingers.Keys[j] == fi {
				n.res.Keys[i] = append(n.res.Keys[i], j)
			}
		}
	}
}

func (n *sameFingerNode) Result() graph.Result { return &n.res }

// CharKeysResult maps every character code to its position index, or -1
// when the character is not on the board.
type CharKeysResult struct {
	Keys []int
}

func (r *CharKeysResult) Clone() graph.Result {
	return &CharKeysResult{Keys: slices.Clone(r.Keys)}
}

func (r *CharKeysResult) Equal(o graph.Result) bool {
	other, ok := o.(*CharKeysResult)
	return ok && slices.Equal(r.Keys, other.Keys)
}

type charToKeyNode struct {
	graph.Base
	s     *Session
	codes *CodesResult
	res   CharKeysResult

	shadowCodes [2]int
	shadowKeys  [2]int
}

func newCharToKeyNode(s *Session) *charToKeyNode {
	return &charToKeyNode{
		Base: graph.Base{NodeID: CharToKey, Deps: []graph.NodeID{LayoutCodes}, NodeMode: graph.Swap},
		s:    s,
	}
}

func (n *charToKeyNode) Compute(g *graph.Graph) {
	n.codes = resultOf[*CodesResult](g, LayoutCodes)
	size := n.s.Tables.Size()
	if cap(n.res.Keys) < size {
		n.res.Keys = make([]int, size)
	}
	n.res.Keys = n.res.Keys[:size]
	for i := range n.res.Keys {
		n.res.Keys[i] = noKey
	}
	for idx, code := range n.codes.Keys {
		n.res.Keys[code] = idx
	}
}

func (n *charToKeyNode) ApplySwap(s keyboard.Swap) {
	a, b := s.A.Index(), s.B.Index()
	ca, cb := n.codes.Keys[a], n.codes.Keys[b]
	n.shadowCodes = [2]int{ca, cb}
	n.shadowKeys = [2]int{n.res.Keys[ca], n.res.Keys[cb]}
	n.res.Keys[ca] = a
	n.res.Keys[cb] = b
}

func (n *charToKeyNode) UndoSwap() {
	n.res.Keys[n.shadowCodes[0]] = n.shadowKeys[0]
	n.res.Keys[n.shadowCodes[1]] = n.shadowKeys[1]
}

func (n *charToKeyNode) Result() graph.Result { return &n.res }

// CharFingersResult maps every character code to the finger typing it.
type CharFingersResult struct {
	Fingers []keyboard.Finger
}

func (r *CharFingersResult) Clone() graph.Result {
	return &CharFingersResult{Fingers: slices.Clone(r.Fingers)}
}

func (r *CharFingersResult) Equal(o graph.Result) bool {
	other, ok := o.(*CharFingersResult)
	return ok && slices.Equal(r.Fingers, other.Fingers)
}

type charToFingerNode struct {
	graph.Base
	codes   *CodesResult
	keys    *CharKeysResult
	fingers *FingersResult
	res     CharFingersResult

	shadowCodes   [2]int
	shadowFingers [2]keyboard.Finger
}

func newCharToFingerNode() *charToFingerNode {
	return &charToFingerNode{
		Base: graph.Base{
			NodeID:   CharToFinger,
			Deps:     []graph.NodeID{LayoutCodes, CharToKey, KeyToFinger},
			NodeMode: graph.Swap,
		},
	}
}

func (n *charToFingerNode) Compute(g *graph.Graph) {
	n.codes = resultOf[*CodesResult](g, LayoutCodes)
	n.keys = resultOf[*CharKeysResult](g, CharToKey)
	n.fingers = resultOf[*FingersResult](g, KeyToFinger)
	size := len(n.keys.Keys)
	if cap(n.res.Fingers) < size {
		n.res.Fingers = make([]keyboard.Finger, size)
	}
	n.res.Fingers = n.res.Fingers[:size]
	for code := range n.res.Fingers {
		n.res.Fingers[code] = n.fingerOf(code)
	}
}

func (n *charToFingerNode) fingerOf(code int) keyboard.Finger {
	idx := n.keys.Keys[code]
	if idx == noKey {
		return keyboard.NoFinger
	}
	return n.fingers.Keys[idx]
}

func (n *charToFingerNode) ApplySwap(s keyboard.Swap) {
	ca, cb := n.codes.Keys[s.A.Index()], n.codes.Keys[s.B.Index()]
	n.shadowCodes = [2]int{ca, cb}
	n.shadowFingers = [2]keyboard.Finger{n.res.Fingers[ca], n.res.Fingers[cb]}
	n.res.Fingers[ca] = n.fingerOf(ca)
	n.res.Fingers[cb] = n.fingerOf(cb)
}

func (n *charToFingerNode) UndoSwap() {
	n.res.Fingers[n.shadowCodes[0]] = n.shadowFingers[0]
	n.res.Fingers[n.shadowCodes[1]] = n.shadowFingers[1]
}

func (n *charToFingerNode) Result() graph.Result { return &n.res }
