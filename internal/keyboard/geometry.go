package keyboard

import (
	"fmt"
	"math"
)

// rowOffset is the horizontal stagger of each row, in key widths.
var rowOffset = [Rows]float64{0, 0.25, 0.75}

// locationPenalty is the relative effort of reaching each key.
var locationPenalty = [Rows][Cols]float64{
	{1.7, 1.25, 1.2, 1.1, 1.05, 1.05, 1.1, 1.2, 1.25, 1.7},
	{1.4, 1.2, 1.05, 1.0, 1.2, 1.2, 1.0, 1.05, 1.2, 1.4},
	{1.7, 1.45, 1.25, 1.1, 1.3, 1.3, 1.1, 1.25, 1.45, 1.7},
}

// LocationPenalty returns the effort multiplier for a board key and 1 for the space slot.
func LocationPenalty(p Pos) float64 {
	if !p.OnBoard() {
		return 1
	}
	return locationPenalty[p.Row][p.Col]
}

// DistanceMilli returns the travel distance between two board keys in
// thousandths of a key width, rounded. Integer distances keep metric sums exact.
func DistanceMilli(a, b Pos) int64 {
	if !a.OnBoard() || !b.OnBoard() {
		return 0
	}
	dx := (float64(a.Col) + rowOffset[a.Row]) - (float64(b.Col) + rowOffset[b.Row])
	dy := float64(a.Row - b.Row)
	return int64(math.Round(math.Hypot(dx, dy) * 1000))
}

// ScissorMap lists, for every board key, the keys it forms a scissor with.
// The relation is symmetric.
type ScissorMap struct {
	neighbors [KeyCount][]int
}

var defaultScissorPairs = [][2]Pos{
	{{0, 0}, {2, 1}},
	{{0, 1}, {2, 0}}, {{0, 1}, {2, 2}},
	{{0, 2}, {2, 1}}, {{0, 2}, {2, 4}},
	{{0, 3}, {2, 2}},
	{{0, 4}, {2, 2}},
	{{0, 5}, {2, 7}},
	{{0, 6}, {2, 7}},
	{{0, 7}, {2, 8}},
	{{0, 8}, {2, 7}}, {{0, 8}, {2, 9}},
	{{0, 9}, {2, 8}},
}

// DefaultScissorMap pairs top-row keys with the bottom-row keys two rows
// down on neighbouring fingers.
func DefaultScissorMap() ScissorMap {
	m, err := NewScissorMap(defaultScissorPairs)
	if err != nil {
		panic(err)
	}
	return m
}

// NewScissorMap builds a symmetric scissor map from key pairs. Duplicates are ignored.
func NewScissorMap(pairs [][2]Pos) (ScissorMap, error) {
	var m ScissorMap
	for _, pair := range pairs {
		a, b := pair[0], pair[1]
		if !a.OnBoard() || !b.OnBoard() || a == b {
			return ScissorMap{}, fmt.Errorf("invalid scissor pair %s %s", a, b)
		}
		m.add(a.Index(), b.Index())
		m.add(b.Index(), a.Index())
	}
	return m, nil
}

func (m *ScissorMap) add(from, to int) {
	for _, n := range m.neighbors[from] {
		if n == to {
			return
		}
	}
	m.neighbors[from] = append(m.neighbors[from], to)
}

// Neighbors returns the flattened indices that form a scissor with key idx.
func (m *ScissorMap) Neighbors(idx int) []int {
	if idx < 0 || idx >= KeyCount {
		return nil
	}
	return m.neighbors[idx]
}

// Pairs returns every unordered pair once, lower index first.
func (m *ScissorMap) Pairs() [][2]int {
	var out [][2]int
	for i := 0; i < KeyCount; i++ {
		for _, j := range m.neighbors[i] {
			if i < j {
				out = append(out, [2]int{i, j})
			}
		}
	}
	return out
}
