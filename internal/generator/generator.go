// Package generator produces the random swaps used to perturb layouts
// between optimizer restarts.
package generator

import (
	"math/rand"
	"time"

	"github.com/verte-zerg/kbopt/internal/keyboard"
)

// Default perturbation bounds, in swaps per restart.
const (
	DefaultMaxSwaps = 12
	DefaultMinSwaps = 2
)

// Generator produces seeded random swaps.
type Generator struct {
	rnd *rand.Rand
}

// New returns a Generator with a fixed seed. Equal seeds give equal sequences.
func New(seed int64) *Generator {
	return &Generator{rnd: rand.New(rand.NewSource(seed))}
}

// NewFromTime returns a Generator seeded with the current time.
func NewFromTime() *Generator {
	return New(time.Now().UnixNano())
}

// DeriveSeed returns an independent seed for the n-th worker of a run.
func DeriveSeed(base int64, n int) int64 {
	z := uint64(base) + uint64(n+1)*0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return int64(z ^ (z >> 31))
}

// Intn returns a uniform int in [0, n).
func (g *Generator) Intn(n int) int {
	return g.rnd.Intn(n)
}

// Shuffle permutes the first n elements through swap.
func (g *Generator) Shuffle(n int, swap func(i, j int)) {
	g.rnd.Shuffle(n, swap)
}

// Weighted returns an index drawn in proportion to weights. Negative weights
// count as zero; when every weight is zero the draw is uniform.
func (g *Generator) Weighted(weights []float64) int {
	total := 0.0
	for _, w := range weights {
		if w > 0 {
			total += w
		}
	}
	if total == 0 {
		return g.rnd.Intn(len(weights))
	}
	r := g.rnd.Float64() * total
	acc := 0.0
	last := 0
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		acc += w
		last = i
		if r <= acc {
			return i
		}
	}
	return last
}

// Perturbation returns count swaps between free keys (position indices).
// The first key of each swap is drawn in proportion to its lag, the second
// uniformly from the other free keys. Fewer than two free keys yield no swaps.
func (g *Generator) Perturbation(free []int, lag *[keyboard.KeyCount]float64, count int) []keyboard.Swap {
	if len(free) < 2 || count <= 0 {
		return nil
	}
	weights := make([]float64, len(free))
	for i, idx := range free {
		weights[i] = lag[idx]
	}
	out := make([]keyboard.Swap, 0, count)
	for i := 0; i < count; i++ {
		a := g.Weighted(weights)
		b := g.rnd.Intn(len(free) - 1)
		if b >= a {
			b++
		}
		out = append(out, keyboard.Swap{A: keyboard.PosAt(free[a]), B: keyboard.PosAt(free[b])})
	}
	return out
}

// PerturbCount is the number of swaps applied before restart i of n. It
// decreases linearly from maxSwaps to minSwaps, so early restarts explore
// and late restarts refine.
func PerturbCount(i, n, maxSwaps, minSwaps int) int {
	if minSwaps > maxSwaps {
		minSwaps = maxSwaps
	}
	if n <= 1 {
		return maxSwaps
	}
	if i >= n {
		i = n - 1
	}
	return maxSwaps - (maxSwaps-minSwaps)*i/(n-1)
}
