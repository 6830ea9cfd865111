// Package graph evaluates a registry of computation nodes in dependency order
// and propagates two-key swaps through the nodes that support local updates.
package graph

import (
	"fmt"

	"github.com/verte-zerg/kbopt/internal/keyboard"
)

// NodeID identifies a node. The high byte is the node's family, which
// selects the factory that builds it.
type NodeID uint16

// Family groups node ids that share a factory.
type Family uint8

// MakeID builds the id of the n-th node of family f.
func MakeID(f Family, n uint8) NodeID {
	return NodeID(f)<<8 | NodeID(n)
}

// Family returns the family encoded in id.
func (id NodeID) Family() Family {
	return Family(id >> 8)
}

func (id NodeID) String() string {
	return fmt.Sprintf("node(%d:%d)", id.Family(), uint8(id))
}

// Mode declares how a node reacts to swaps.
type Mode uint8

const (
	// Static nodes depend only on session settings and never change during a swap.
	Static Mode = iota
	// Swap nodes update their result locally on every swap.
	Swap
	// Full nodes are only refreshed by ResolveAll.
	Full
)

func (m Mode) String() string {
	switch m {
	case Static:
		return "static"
	case Swap:
		return "swap"
	case Full:
		return "full"
	default:
		return "unknown"
	}
}

// Result is the aggregate a node produces. Results are cloned and compared
// when the swap path is verified against saved state.
type Result interface {
	Clone() Result
	Equal(other Result) bool
}

// Node is one computation in the graph.
type Node interface {
	ID() NodeID
	Inputs() []NodeID
	Mode() Mode
	// Compute rebuilds the result from scratch. Inputs are already resolved.
	Compute(g *Graph)
	// ApplySwap updates the result after the two keys of s were exchanged.
	// It keeps one level of shadow state for UndoSwap.
	ApplySwap(s keyboard.Swap)
	// UndoSwap restores the state saved by the last ApplySwap.
	UndoSwap()
	Result() Result
}

// Base carries the bookkeeping shared by every node. Nodes that do not
// take part in swaps inherit its no-op swap methods.
type Base struct {
	NodeID   NodeID
	Deps     []NodeID
	NodeMode Mode
}

// ID implements Node.
func (b *Base) ID() NodeID { return b.NodeID }

// Inputs implements Node.
func (b *Base) Inputs() []NodeID { return b.Deps }

// Mode implements Node.
func (b *Base) Mode() Mode { return b.NodeMode }

// ApplySwap implements Node.
func (b *Base) ApplySwap(keyboard.Swap) {}

// UndoSwap implements Node.
func (b *Base) UndoSwap() {}
