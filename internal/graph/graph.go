package graph

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/verte-zerg/kbopt/internal/keyboard"
)

var (
	ErrUnknownNode        = errors.New("no factory for node")
	ErrMissingDependency  = errors.New("dependency not installed")
	ErrCycle              = errors.New("dependency cycle")
	ErrInvalidSwap        = errors.New("invalid swap")
	ErrNotPrepared        = errors.New("swap order not prepared")
	ErrNotResolved        = errors.New("graph not resolved")
	ErrNoPendingSwap      = errors.New("no swap to undo")
	ErrAssertionViolation = errors.New("assertion violated")
)

// Factory builds the node for id, or reports false when the id is unknown.
type Factory func(id NodeID) (Node, bool)

// Registry maps each node family to its factory.
type Registry map[Family]Factory

// Option configures a Graph.
type Option func(*Graph)

// WithLogger sets the logger used for assertion failures and diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Graph) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithStrictAssertions makes a failed assertion panic instead of logging.
func WithStrictAssertions() Option {
	return func(g *Graph) {
		g.strict = true
	}
}

// WithNames sets the function used to name nodes in logs and errors.
func WithNames(names func(NodeID) string) Option {
	return func(g *Graph) {
		if names != nil {
			g.names = names
		}
	}
}

const (
	unvisited uint8 = iota
	visiting
	visited
)

// Graph owns installed nodes and their resolved results. It is not safe for
// concurrent use; independent graphs may run in parallel.
type Graph struct {
	registry Registry
	logger   *slog.Logger
	strict   bool
	names    func(NodeID) string

	nodes    map[NodeID]Node
	order    []NodeID
	resolved map[NodeID]bool
	fresh    bool

	swapOrder []Node
	prepared  bool
	pending   bool

	swaps      uint64
	violations int
}

// New returns an empty graph backed by the registry.
func New(registry Registry, opts ...Option) *Graph {
	g := &Graph{
		registry: registry,
		logger:   slog.Default(),
		names:    NodeID.String,
		nodes:    make(map[NodeID]Node),
		resolved: make(map[NodeID]bool),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Name returns the display name of id.
func (g *Graph) Name(id NodeID) string {
	return g.names(id)
}

// Install creates the node for id and, recursively, its dependencies.
// Installing an id twice is a no-op.
func (g *Graph) Install(id NodeID) error {
	if _, ok := g.nodes[id]; ok {
		return nil
	}
	factory, ok := g.registry[id.Family()]
	if !ok {
		g.Assertf(false, "no factory for family of %s", g.Name(id))
		return fmt.Errorf("%w: %s", ErrUnknownNode, g.Name(id))
	}
	node, ok := factory(id)
	if !ok {
		g.Assertf(false, "factory declined %s", g.Name(id))
		return fmt.Errorf("%w: %s", ErrUnknownNode, g.Name(id))
	}
	g.nodes[id] = node
	g.order = append(g.order, id)
	g.fresh = false
	g.prepared = false
	for _, dep := range node.Inputs() {
		if err := g.Install(dep); err != nil {
			g.remove(id)
			return fmt.Errorf("install %s: %w", g.Name(id), err)
		}
	}
	return nil
}

func (g *Graph) remove(id NodeID) {
	delete(g.nodes, id)
	for i, v := range g.order {
		if v == id {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
}

// Installed reports whether id is installed.
func (g *Graph) Installed(id NodeID) bool {
	_, ok := g.nodes[id]
	return ok
}

// Node returns the installed node for id, or nil.
func (g *Graph) Node(id NodeID) Node {
	return g.nodes[id]
}

// ResolveAll recomputes every installed node from scratch, dependencies first.
// Each node computes once per call.
func (g *Graph) ResolveAll() error {
	clear(g.resolved)
	g.fresh = false
	g.pending = false
	state := make(map[NodeID]uint8, len(g.nodes))
	for _, id := range g.order {
		if err := g.resolve(id, state); err != nil {
			return err
		}
	}
	g.fresh = true
	return nil
}

func (g *Graph) resolve(id NodeID, state map[NodeID]uint8) error {
	switch state[id] {
	case visited:
		return nil
	case visiting:
		return fmt.Errorf("%w at %s", ErrCycle, g.Name(id))
	}
	node, ok := g.nodes[id]
	if !ok {
		g.Assertf(false, "resolving %s which is not installed", g.Name(id))
		return fmt.Errorf("%w: %s", ErrMissingDependency, g.Name(id))
	}
	state[id] = visiting
	for _, dep := range node.Inputs() {
		if err := g.resolve(dep, state); err != nil {
			return err
		}
	}
	node.Compute(g)
	g.resolved[id] = true
	state[id] = visited
	return nil
}

// Resolved reports whether id has a result from the last ResolveAll.
func (g *Graph) Resolved(id NodeID) bool {
	return g.resolved[id]
}

// Result returns the latest result of id, or nil when it has not been
// resolved. It never triggers computation.
func (g *Graph) Result(id NodeID) Result {
	if !g.resolved[id] {
		return nil
	}
	return g.nodes[id].Result()
}

// Invalidate drops every resolved result, for example after the frequency
// tables were replaced.
func (g *Graph) Invalidate() {
	clear(g.resolved)
	g.fresh = false
	g.pending = false
}

// PreprocessSwapOrder computes the order in which swap-aware nodes are
// updated: every node after all of its swap-aware dependencies. A swap-aware
// node that depends on a full-recompute node is left out.
func (g *Graph) PreprocessSwapOrder() error {
	g.swapOrder = g.swapOrder[:0]
	g.prepared = false
	state := make(map[NodeID]uint8, len(g.nodes))
	tainted := make(map[NodeID]bool, len(g.nodes))

	var visit func(id NodeID) error
	visit = func(id NodeID) error {
		switch state[id] {
		case visited:
			return nil
		case visiting:
			return fmt.Errorf("%w at %s", ErrCycle, g.Name(id))
		}
		node, ok := g.nodes[id]
		if !ok {
			return fmt.Errorf("%w: %s", ErrMissingDependency, g.Name(id))
		}
		state[id] = visiting
		for _, dep := range node.Inputs() {
			if err := visit(dep); err != nil {
				return err
			}
			if tainted[dep] || g.nodes[dep].Mode() == Full {
				tainted[id] = true
			}
		}
		state[id] = visited
		if node.Mode() != Swap {
			return nil
		}
		if tainted[id] {
			g.logger.Debug("node excluded from swap order", "node", g.Name(id))
			return nil
		}
		g.swapOrder = append(g.swapOrder, node)
		return nil
	}

	for _, id := range g.order {
		if err := visit(id); err != nil {
			return err
		}
	}
	g.prepared = true
	return nil
}

// SwapOrder returns the ids of the swap-aware nodes in update order.
func (g *Graph) SwapOrder() []NodeID {
	out := make([]NodeID, len(g.swapOrder))
	for i, n := range g.swapOrder {
		out[i] = n.ID()
	}
	return out
}

// ApplySwap propagates the exchange of two board keys through the swap order.
// The first node in the order exchanges the layout cells.
func (g *Graph) ApplySwap(s keyboard.Swap) error {
	if !g.Assertf(s.Valid(), "invalid swap %s", s) {
		return fmt.Errorf("%w: %s", ErrInvalidSwap, s)
	}
	if !g.prepared {
		return ErrNotPrepared
	}
	if !g.fresh {
		return ErrNotResolved
	}
	for _, node := range g.swapOrder {
		node.ApplySwap(s)
	}
	g.pending = true
	g.swaps++
	return nil
}

// UndoSwap reverts the most recent ApplySwap. Only one level is kept.
func (g *Graph) UndoSwap() error {
	if !g.pending {
		return ErrNoPendingSwap
	}
	for _, node := range g.swapOrder {
		node.UndoSwap()
	}
	g.pending = false
	return nil
}

// Swaps returns the number of swaps applied since the graph was created.
func (g *Graph) Swaps() uint64 {
	return g.swaps
}

// Snapshot holds cloned results of the swap-aware nodes.
type Snapshot map[NodeID]Result

// Snapshot clones the current result of every swap-aware node.
func (g *Graph) Snapshot() Snapshot {
	snap := make(Snapshot, len(g.swapOrder))
	for _, node := range g.swapOrder {
		snap[node.ID()] = node.Result().Clone()
	}
	return snap
}

// Diff returns the swap-aware nodes whose result differs from snap.
func (g *Graph) Diff(snap Snapshot) []NodeID {
	var out []NodeID
	for _, node := range g.swapOrder {
		saved, ok := snap[node.ID()]
		if !ok || !node.Result().Equal(saved) {
			out = append(out, node.ID())
		}
	}
	return out
}

// Assertf checks an invariant. A failure is logged and counted; in strict
// mode it panics. The return value is cond.
func (g *Graph) Assertf(cond bool, format string, args ...any) bool {
	if cond {
		return true
	}
	g.violations++
	msg := fmt.Sprintf(format, args...)
	if g.strict {
		panic(fmt.Errorf("%w: %s", ErrAssertionViolation, msg))
	}
	g.logger.Error("assertion failed", "detail", msg)
	return false
}

// Violations returns the number of failed assertions.
func (g *Graph) Violations() int {
	return g.violations
}
