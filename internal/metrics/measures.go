package metrics

import (
	"slices"

	"github.com/verte-zerg/kbopt/internal/graph"
	"github.com/verte-zerg/kbopt/internal/keyboard"
)

// Part is a named component of a measurement.
type Part struct {
	Name  string
	Value float64
}

// Measure is a measurement shown to users. Percentages use Unit "%".
type Measure struct {
	Name         string
	Unit         string
	Total        float64
	HasBreakdown bool
	PerHand      [keyboard.HandCount]float64
	PerFinger    [keyboard.FingerCount]float64
	Parts        []Part
}

func (m *Measure) Clone() graph.Result {
	c := *m
	c.Parts = slices.Clone(m.Parts)
	return &c
}

func (m *Measure) Equal(o graph.Result) bool {
	other, ok := o.(*Measure)
	if !ok {
		return false
	}
	return m.Name == other.Name &&
		m.Unit == other.Unit &&
		m.Total == other.Total &&
		m.HasBreakdown == other.HasBreakdown &&
		m.PerHand == other.PerHand &&
		m.PerFinger == other.PerFinger &&
		slices.Equal(m.Parts, other.Parts)
}

// Part returns the value of the named part and whether it exists.
func (m *Measure) Part(name string) (float64, bool) {
	for _, p := range m.Parts {
		if p.Name == name {
			return p.Value, true
		}
	}
	return 0, false
}

func pct(n, d uint64) float64 {
	return ratio(n, d) * 100
}

type measureCalc func(g *graph.Graph, s *Session, m *Measure)

type measureDef struct {
	unit string
	deps []graph.NodeID
	calc measureCalc
}

var measureDefs = map[graph.NodeID]measureDef{
	MeasureSFB:                {"%", []graph.NodeID{TwoFingerStats}, calcSFB},
	MeasureSFS:                {"%", []graph.NodeID{TwoFingerStats}, calcSFS},
	MeasureScissors:           {"%", []graph.NodeID{ScissorStats}, calcScissors},
	MeasureBigrams:            {"%", []graph.NodeID{BigramClassification}, calcBigrams},
	MeasureRolls:              {"%", []graph.NodeID{TrigramStats}, calcRolls},
	MeasureAlternation:        {"%", []graph.NodeID{TrigramStats}, calcAlternation},
	MeasureRedirects:          {"%", []graph.NodeID{TrigramStats}, calcRedirects},
	MeasureOneHand:            {"%", []graph.NodeID{TrigramStats}, calcOneHand},
	MeasureSameFingerTrigrams: {"%", []graph.NodeID{TrigramStats}, calcSameFingerTrigrams},
	MeasureFingerBalance:      {"%", []graph.NodeID{CharToFinger}, calcFingerBalance},
	MeasureHomeRow:            {"%", []graph.NodeID{CharToKey, KeyToFinger}, calcHomeRow},
	MeasureFingerLag:          {"", []graph.NodeID{KeyLag, KeyToFinger}, calcFingerLag},
	MeasureKeyLag:             {"", []graph.NodeID{KeyLag}, calcKeyLag},
	MeasureLayoutScore:        {"", []graph.NodeID{LayoutScore}, calcLayoutScore},
}

type measureNode struct {
	graph.Base
	s    *Session
	def  measureDef
	name string
	res  Measure
}

func newMeasureNode(s *Session, id graph.NodeID) (graph.Node, bool) {
	def, ok := measureDefs[id]
	if !ok {
		return nil, false
	}
	return &measureNode{
		Base: graph.Base{NodeID: id, Deps: def.deps, NodeMode: graph.Full},
		s:    s,
		def:  def,
		name: Name(id),
	}, true
}

func (n *measureNode) Compute(g *graph.Graph) {
	n.res = Measure{Name: n.name, Unit: n.def.unit}
	n.def.calc(g, n.s, &n.res)
}

func (n *measureNode) Result() graph.Result { return &n.res }

func calcSFB(g *graph.Graph, s *Session, m *Measure) {
	r := resultOf[*TwoFingerResult](g, TwoFingerStats)
	hits := s.Tables.BigramHits()
	m.Total = pct(r.SFB, hits)
	m.HasBreakdown = true
	for f, v := range r.SFBPerFinger {
		m.PerFinger[f] = pct(v, hits)
	}
	for h, v := range r.SFBPerHand {
		m.PerHand[h] = pct(v, hits)
	}
}

func calcSFS(g *graph.Graph, s *Session, m *Measure) {
	r := resultOf[*TwoFingerResult](g, TwoFingerStats)
	hits := s.Tables.SkipgramHits()
	m.Total = pct(r.SFS, hits)
	m.HasBreakdown = true
	for f, v := range r.SFSPerFinger {
		m.PerFinger[f] = pct(v, hits)
	}
	for h, v := range r.SFSPerHand {
		m.PerHand[h] = pct(v, hits)
	}
}

func calcScissors(g *graph.Graph, s *Session, m *Measure) {
	r := resultOf[*ScissorResult](g, ScissorStats)
	hits := s.Tables.BigramHits()
	m.Total = pct(r.Total, hits)
	m.HasBreakdown = true
	for f, v := range r.PerFinger {
		m.PerFinger[f] = pct(v, hits)
	}
	for h, v := range r.PerHand {
		m.PerHand[h] = pct(v, hits)
	}
}

func calcBigrams(g *graph.Graph, s *Session, m *Measure) {
	r := resultOf[*BigramClassResult](g, BigramClassification)
	var counts [bigramClassCount]uint64
	for a := 0; a < r.Size; a++ {
		for b := 0; b < r.Size; b++ {
			counts[r.At(a, b)] += s.Tables.Bigram(a, b)
		}
	}
	hits := s.Tables.BigramHits()
	m.Total = pct(counts[BigramInRoll]+counts[BigramOutRoll], hits)
	m.Parts = []Part{
		{"in-roll", pct(counts[BigramInRoll], hits)},
		{"out-roll", pct(counts[BigramOutRoll], hits)},
		{"alternation", pct(counts[BigramAlternation], hits)},
		{"same-finger", pct(counts[BigramSFB], hits)},
		{"repeat", pct(counts[BigramRepeat], hits)},
	}
}

func calcRolls(g *graph.Graph, _ *Session, m *Measure) {
	r := resultOf[*TrigramResult](g, TrigramStats)
	m.Total = pct(r.Rolls(), r.Total)
	m.Parts = []Part{
		{"in-roll", pct(r.Counts[TrigramInRoll], r.Total)},
		{"out-roll", pct(r.Counts[TrigramOutRoll], r.Total)},
	}
}

func calcAlternation(g *graph.Graph, _ *Session, m *Measure) {
	r := resultOf[*TrigramResult](g, TrigramStats)
	m.Total = pct(r.Counts[TrigramAlternation], r.Total)
}

func calcRedirects(g *graph.Graph, _ *Session, m *Measure) {
	r := resultOf[*TrigramResult](g, TrigramStats)
	m.Total = pct(r.Counts[TrigramRedirect]+r.Counts[TrigramBadRedirect], r.Total)
	m.Parts = []Part{
		{"redirect", pct(r.Counts[TrigramRedirect], r.Total)},
		{"bad", pct(r.Counts[TrigramBadRedirect], r.Total)},
	}
}

func calcOneHand(g *graph.Graph, _ *Session, m *Measure) {
	r := resultOf[*TrigramResult](g, TrigramStats)
	m.Total = pct(r.Counts[TrigramOneHand], r.Total)
	node, ok := g.Node(TrigramStats).(*trigramNode)
	if !ok {
		return
	}
	var perHand [keyboard.HandCount]uint64
	f := node.fingers.Fingers
	for _, tg := range node.top {
		if ClassifyTrigram(f[tg.A], f[tg.B], f[tg.C]) == TrigramOneHand {
			perHand[f[tg.A].Hand()] += tg.Count
		}
	}
	m.HasBreakdown = true
	for h, v := range perHand {
		m.PerHand[h] = pct(v, r.Total)
	}
}

func calcSameFingerTrigrams(g *graph.Graph, _ *Session, m *Measure) {
	r := resultOf[*TrigramResult](g, TrigramStats)
	m.Total = pct(r.Counts[TrigramSameFinger], r.Total)
}

func calcFingerBalance(g *graph.Graph, s *Session, m *Measure) {
	fingers := resultOf[*CharFingersResult](g, CharToFinger)
	var perFinger [keyboard.FingerCount]uint64
	var onBoard uint64
	for code, f := range fingers.Fingers {
		if !f.Valid() {
			continue
		}
		v := s.Tables.Char(code)
		perFinger[f] += v
		onBoard += v
	}
	m.HasBreakdown = true
	var perHand [keyboard.HandCount]uint64
	for f, v := range perFinger {
		m.PerFinger[f] = pct(v, onBoard)
		if h := keyboard.Finger(f).Hand(); h != keyboard.NoHand {
			perHand[h] += v
		}
	}
	for h, v := range perHand {
		m.PerHand[h] = pct(v, onBoard)
	}
	// Total is the gap between the busier and the quieter hand.
	m.Total = m.PerHand[keyboard.LeftHand] - m.PerHand[keyboard.RightHand]
	if m.Total < 0 {
		m.Total = -m.Total
	}
}

func calcHomeRow(g *graph.Graph, s *Session, m *Measure) {
	keys := resultOf[*CharKeysResult](g, CharToKey)
	fingers := resultOf[*FingersResult](g, KeyToFinger)
	var home, hits uint64
	for code, idx := range keys.Keys {
		if idx == noKey {
			continue
		}
		v := s.Tables.Char(code)
		hits += v
		if keyboard.PosAt(idx).Row == fingers.Keys[idx].HomeRow() {
			home += v
		}
	}
	m.Total = pct(home, hits)
}

func calcFingerLag(g *graph.Graph, _ *Session, m *Measure) {
	lag := resultOf[*KeyLagResult](g, KeyLag)
	fingers := resultOf[*FingersResult](g, KeyToFinger)
	m.HasBreakdown = true
	for idx, v := range lag.PerKey {
		f := fingers.Keys[idx]
		if !f.Valid() {
			continue
		}
		m.PerFinger[f] += v
		m.PerHand[f.Hand()] += v
	}
	m.Total = lag.Total
}

func calcKeyLag(g *graph.Graph, _ *Session, m *Measure) {
	lag := resultOf[*KeyLagResult](g, KeyLag)
	m.Total = lag.Total
	for row := 0; row < keyboard.Rows; row++ {
		sum := 0.0
		for col := 0; col < keyboard.Cols; col++ {
			sum += lag.PerKey[keyboard.Pos{Row: row, Col: col}.Index()]
		}
		m.Parts = append(m.Parts, Part{Name: rowNames[row], Value: sum})
	}
}

var rowNames = [keyboard.Rows]string{"top", "home", "bottom"}

func calcLayoutScore(g *graph.Graph, _ *Session, m *Measure) {
	score := resultOf[*ScoreResult](g, LayoutScore)
	m.Total = score.Total
	m.Parts = []Part{
		{"key lag", score.KeyLag},
		{"trigram", score.Trigram},
	}
}
