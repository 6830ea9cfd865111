// Package freq holds character, bigram, trigram and skipgram frequency tables.
package freq

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrEmptyAlphabet     = errors.New("alphabet is empty")
	ErrDuplicateAlphabet = errors.New("alphabet contains a duplicate rune")
)

// Tables stores n-gram counts indexed by character code. A code is the
// position of a rune in the alphabet. Skipgrams and hit counts are derived
// by Finalize.
type Tables struct {
	alphabet []rune
	index    map[rune]int

	chars     []uint64
	bigrams   []uint64
	trigrams  []uint64
	skipgrams []uint64

	charHits     uint64
	bigramHits   uint64
	trigramHits  uint64
	skipgramHits uint64
}

// Trigram is one entry of a ranked trigram list.
type Trigram struct {
	A, B, C int
	Count   uint64
}

// New returns empty tables for the alphabet.
func New(alphabet []rune) (*Tables, error) {
	if len(alphabet) == 0 {
		return nil, ErrEmptyAlphabet
	}
	index := make(map[rune]int, len(alphabet))
	for i, r := range alphabet {
		if _, ok := index[r]; ok {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateAlphabet, r)
		}
		index[r] = i
	}
	n := len(alphabet)
	return &Tables{
		alphabet:  append([]rune(nil), alphabet...),
		index:     index,
		chars:     make([]uint64, n),
		bigrams:   make([]uint64, n*n),
		trigrams:  make([]uint64, n*n*n),
		skipgrams: make([]uint64, n*n),
	}, nil
}

// Size returns the alphabet size.
func (t *Tables) Size() int {
	return len(t.alphabet)
}

// Alphabet returns a copy of the alphabet.
func (t *Tables) Alphabet() []rune {
	return append([]rune(nil), t.alphabet...)
}

// Code returns the code of r.
func (t *Tables) Code(r rune) (int, bool) {
	c, ok := t.index[r]
	return c, ok
}

// Rune returns the rune for code c.
func (t *Tables) Rune(c int) rune {
	return t.alphabet[c]
}

// AddChar adds n occurrences of code a.
func (t *Tables) AddChar(a int, n uint64) {
	t.chars[a] += n
}

// AddBigram adds n occurrences of the pair a,b.
func (t *Tables) AddBigram(a, b int, n uint64) {
	t.bigrams[a*len(t.alphabet)+b] += n
}

// AddTrigram adds n occurrences of the triple a,b,c.
func (t *Tables) AddTrigram(a, b, c int, n uint64) {
	size := len(t.alphabet)
	t.trigrams[(a*size+b)*size+c] += n
}

// Finalize derives skipgrams from the trigram cube and recomputes hit counts.
// It must be called after the last Add.
func (t *Tables) Finalize() {
	n := len(t.alphabet)
	for i := range t.skipgrams {
		t.skipgrams[i] = 0
	}
	t.charHits, t.bigramHits, t.trigramHits, t.skipgramHits = 0, 0, 0, 0
	for _, v := range t.chars {
		t.charHits += v
	}
	for _, v := range t.bigrams {
		t.bigramHits += v
	}
	for a := 0; a < n; a++ {
		for b := 0; b < n; b++ {
			base := (a*n + b) * n
			for c := 0; c < n; c++ {
				v := t.trigrams[base+c]
				if v == 0 {
					continue
				}
				t.trigramHits += v
				t.skipgrams[a*n+c] += v
			}
		}
	}
	t.skipgramHits = t.trigramHits
}

// Char returns the count of code a.
func (t *Tables) Char(a int) uint64 {
	return t.chars[a]
}

// Bigram returns the count of a followed by b.
func (t *Tables) Bigram(a, b int) uint64 {
	return t.bigrams[a*len(t.alphabet)+b]
}

// Trigram returns the count of a, b, c in sequence.
func (t *Tables) Trigram(a, b, c int) uint64 {
	size := len(t.alphabet)
	return t.trigrams[(a*size+b)*size+c]
}

// Skipgram returns the count of a and c separated by any one character.
func (t *Tables) Skipgram(a, c int) uint64 {
	return t.skipgrams[a*len(t.alphabet)+c]
}

func (t *Tables) CharHits() uint64     { return t.charHits }
func (t *Tables) BigramHits() uint64   { return t.bigramHits }
func (t *Tables) TrigramHits() uint64  { return t.trigramHits }
func (t *Tables) SkipgramHits() uint64 { return t.skipgramHits }

// TopTrigrams returns up to depth nonzero trigrams, most frequent first.
// Ties are broken by code order so the result is stable.
func (t *Tables) TopTrigrams(depth int) []Trigram {
	if depth <= 0 {
		return nil
	}
	n := len(t.alphabet)
	var all []Trigram
	for a := 0; a < n; a++ {
		for b := 0; b < n; b++ {
			base := (a*n + b) * n
			for c := 0; c < n; c++ {
				if v := t.trigrams[base+c]; v > 0 {
					all = append(all, Trigram{A: a, B: b, C: c, Count: v})
				}
			}
		}
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Count > all[j].Count
	})
	if len(all) > depth {
		all = all[:depth]
	}
	return all
}
