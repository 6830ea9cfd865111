// Package metrics implements the layout metric nodes evaluated by the graph:
// layout transforms, finger maps, same-finger statistics, scissors, trigram
// classification, key lag and the measurements shown to users.
package metrics

import (
	"github.com/verte-zerg/kbopt/internal/graph"
)

// Node families.
const (
	Inputs graph.Family = iota
	Measures
)

// Input and intermediate nodes.
const (
	LayoutCodes graph.NodeID = graph.NodeID(Inputs)<<8 + iota
	KeyToFinger
	SameFingerMap
	CharToKey
	CharToFinger
	BigramClassification
	TwoFingerStats
	ScissorStats
	TrigramStats
	KeyLag
	LayoutScore
)

// Measurement nodes. They are recomputed by a full resolve only.
const (
	MeasureSFB graph.NodeID = graph.NodeID(Measures)<<8 + iota
	MeasureSFS
	MeasureScissors
	MeasureBigrams
	MeasureRolls
	MeasureAlternation
	MeasureRedirects
	MeasureOneHand
	MeasureSameFingerTrigrams
	MeasureFingerBalance
	MeasureHomeRow
	MeasureFingerLag
	MeasureKeyLag
	MeasureLayoutScore
)

var nodeNames = map[graph.NodeID]string{
	LayoutCodes:          "layout-codes",
	KeyToFinger:          "key-to-finger",
	SameFingerMap:        "same-finger-map",
	CharToKey:            "char-to-key",
	CharToFinger:         "char-to-finger",
	BigramClassification: "bigram-classification",
	TwoFingerStats:       "two-finger-stats",
	ScissorStats:         "scissor-stats",
	TrigramStats:         "trigram-stats",
	KeyLag:               "key-lag",
	LayoutScore:          "layout-score",

	MeasureSFB:                "SFB",
	MeasureSFS:                "SFS",
	MeasureScissors:           "Scissors",
	MeasureBigrams:            "Bigram rolls",
	MeasureRolls:              "Rolls",
	MeasureAlternation:        "Alternation",
	MeasureRedirects:          "Redirects",
	MeasureOneHand:            "One hand",
	MeasureSameFingerTrigrams: "Same finger trigrams",
	MeasureFingerBalance:      "Finger balance",
	MeasureHomeRow:            "Home row",
	MeasureFingerLag:          "Finger lag",
	MeasureKeyLag:             "Key lag",
	MeasureLayoutScore:        "Layout score",
}

// AllMeasures lists every measurement in display order.
var AllMeasures = []graph.NodeID{
	MeasureKeyLag,
	MeasureLayoutScore,
	MeasureSFB,
	MeasureSFS,
	MeasureScissors,
	MeasureBigrams,
	MeasureRolls,
	MeasureAlternation,
	MeasureRedirects,
	MeasureOneHand,
	MeasureSameFingerTrigrams,
	MeasureFingerBalance,
	MeasureHomeRow,
	MeasureFingerLag,
}

// Name returns the display name of a metric node.
func Name(id graph.NodeID) string {
	if name, ok := nodeNames[id]; ok {
		return name
	}
	return id.String()
}

// Registry returns the node factories bound to the session.
func Registry(s *Session) graph.Registry {
	return graph.Registry{
		Inputs: func(id graph.NodeID) (graph.Node, bool) {
			return newInputNode(s, id)
		},
		Measures: func(id graph.NodeID) (graph.Node, bool) {
			return newMeasureNode(s, id)
		},
	}
}

func newInputNode(s *Session, id graph.NodeID) (graph.Node, bool) {
	switch id {
	case LayoutCodes:
		return newLayoutCodesNode(s), true
	case KeyToFinger:
		return newKeyToFingerNode(s), true
	case SameFingerMap:
		return newSameFingerNode(), true
	case CharToKey:
		return newCharToKeyNode(s), true
	case CharToFinger:
		return newCharToFingerNode(), true
	case BigramClassification:
		return newBigramClassNode(s), true
	case TwoFingerStats:
		return newTwoFingerNode(s), true
	case ScissorStats:
		return newScissorNode(s), true
	case TrigramStats:
		return newTrigramNode(s), true
	case KeyLag:
		return newKeyLagNode(s), true
	case LayoutScore:
		return newLayoutScoreNode(), true
	default:
		return nil, false
	}
}

// resultOf returns the resolved result of id as T, or the zero T.
func resultOf[T graph.Result](g *graph.Graph, id graph.NodeID) T {
	r, _ := g.Result(id).(T)
	return r
}
