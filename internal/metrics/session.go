package metrics

import (
	"errors"
	"fmt"

	"github.com/verte-zerg/kbopt/internal/freq"
	"github.com/verte-zerg/kbopt/internal/graph"
	"github.com/verte-zerg/kbopt/internal/keyboard"
)

// DefaultTrigramDepth is the number of most frequent trigrams classified.
const DefaultTrigramDepth = 2500

var (
	ErrNoTables     = errors.New("frequency tables are not loaded")
	ErrUnknownRune  = errors.New("layout rune is not in the alphabet")
	ErrDuplicateKey = errors.New("layout rune appears more than once")
)

// Session is the arena shared by every node: the live layout, the finger
// assignment and the frequency tables. Nodes read it and never write it;
// only Engine.Commit updates the live layout.
type Session struct {
	Layout       keyboard.Layout
	Fingers      keyboard.FingerMap
	Weights      keyboard.FingerWeights
	Scissors     keyboard.ScissorMap
	Tables       *freq.Tables
	TrigramDepth int
}

// NewSession returns a session with the default finger map, weights and
// scissor map.
func NewSession(layout keyboard.Layout, tables *freq.Tables) *Session {
	return &Session{
		Layout:       layout,
		Fingers:      keyboard.DefaultFingerMap(),
		Weights:      keyboard.DefaultFingerWeights(),
		Scissors:     keyboard.DefaultScissorMap(),
		Tables:       tables,
		TrigramDepth: DefaultTrigramDepth,
	}
}

// Validate checks that every key of the layout is a distinct rune of the alphabet.
func (s *Session) Validate() error {
	if s.Tables == nil {
		return ErrNoTables
	}
	if s.TrigramDepth < 0 {
		return fmt.Errorf("trigram depth must be >= 0, got %d", s.TrigramDepth)
	}
	seen := make(map[rune]keyboard.Pos, keyboard.PosCount)
	for idx := 0; idx < keyboard.PosCount; idx++ {
		p := keyboard.PosAt(idx)
		r := s.Layout.At(p)
		if _, ok := s.Tables.Code(r); !ok {
			return fmt.Errorf("%w: %q at %s", ErrUnknownRune, r, p)
		}
		if prev, ok := seen[r]; ok {
			return fmt.Errorf("%w: %q at %s and %s", ErrDuplicateKey, r, prev, p)
		}
		seen[r] = p
	}
	return nil
}

func (s *Session) code(p keyboard.Pos) int {
	c, _ := s.Tables.Code(s.Layout.At(p))
	return c
}

// Engine binds a session to its graph and exposes typed, read-only access to
// resolved results.
type Engine struct {
	Session *Session
	Graph   *graph.Graph
}

// NewEngine validates the session and creates an empty graph for it.
func NewEngine(s *Session, opts ...graph.Option) (*Engine, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	opts = append([]graph.Option{graph.WithNames(Name)}, opts...)
	return &Engine{
		Session: s,
		Graph:   graph.New(Registry(s), opts...),
	}, nil
}

// Install installs the nodes and their dependencies.
func (e *Engine) Install(ids ...graph.NodeID) error {
	for _, id := range ids {
		if err := e.Graph.Install(id); err != nil {
			return err
		}
	}
	return nil
}

// InstallMeasures installs every measurement node.
func (e *Engine) InstallMeasures() error {
	return e.Install(AllMeasures...)
}

// Resolve recomputes every installed node from the live layout.
func (e *Engine) Resolve() error {
	return e.Graph.ResolveAll()
}

// SetTables replaces the frequency tables and drops every cached result.
func (e *Engine) SetTables(tables *freq.Tables) error {
	prev := e.Session.Tables
	e.Session.Tables = tables
	if err := e.Session.Validate(); err != nil {
		e.Session.Tables = prev
		return err
	}
	e.Graph.Invalidate()
	return nil
}

// Codes returns the layout transform result, or nil before resolve.
func (e *Engine) Codes() *CodesResult {
	return resultOf[*CodesResult](e.Graph, LayoutCodes)
}

// TwoFinger returns the same-finger statistics, or nil before resolve.
func (e *Engine) TwoFinger() *TwoFingerResult {
	return resultOf[*TwoFingerResult](e.Graph, TwoFingerStats)
}

// Scissors returns the scissor statistics, or nil before resolve.
func (e *Engine) Scissors() *ScissorResult {
	return resultOf[*ScissorResult](e.Graph, ScissorStats)
}

// Trigrams returns the trigram statistics, or nil before resolve.
func (e *Engine) Trigrams() *TrigramResult {
	return resultOf[*TrigramResult](e.Graph, TrigramStats)
}

// KeyLag returns the key lag result, or nil before resolve.
func (e *Engine) KeyLag() *KeyLagResult {
	return resultOf[*KeyLagResult](e.Graph, KeyLag)
}

// Score returns the composite layout score, or nil before resolve.
func (e *Engine) Score() *ScoreResult {
	return resultOf[*ScoreResult](e.Graph, LayoutScore)
}

// Measure returns a resolved measurement, or nil.
func (e *Engine) Measure(id graph.NodeID) *Measure {
	return resultOf[*Measure](e.Graph, id)
}

// Measures returns every resolved measurement in display order.
func (e *Engine) Measures() []Measure {
	out := make([]Measure, 0, len(AllMeasures))
	for _, id := range AllMeasures {
		if m := e.Measure(id); m != nil {
			out = append(out, *m)
		}
	}
	return out
}

// CurrentLayout converts the working codes, including swaps not yet
// committed, back into a layout.
func (e *Engine) CurrentLayout() (keyboard.Layout, error) {
	codes := e.Codes()
	if codes == nil {
		return keyboard.Layout{}, graph.ErrNotResolved
	}
	return codes.Layout(e.Session.Tables), nil
}

// Commit writes the working codes into the live layout and resolves every
// node again.
func (e *Engine) Commit() error {
	layout, err := e.CurrentLayout()
	if err != nil {
		return err
	}
	e.Session.Layout = layout
	return e.Graph.ResolveAll()
}
