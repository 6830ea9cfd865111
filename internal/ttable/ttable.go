// Package ttable caches the local optimum reached from a layout so that
// repeated starting points skip the climb.
package ttable

import (
	"encoding/binary"
	"errors"

	"github.com/cespare/xxhash/v2"

	"github.com/verte-zerg/kbopt/internal/keyboard"
)

// Codes is a layout as character codes, indexed by keyboard.Pos.Index.
type Codes [keyboard.PosCount]int

var (
	ErrBits     = errors.New("table bits must be between 1 and 30")
	ErrPoolSize = errors.New("pool size must be positive")
)

// Fingerprint hashes a code grid.
func Fingerprint(codes *Codes) uint64 {
	var buf [keyboard.PosCount * 2]byte
	for i, c := range codes {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(c))
	}
	return xxhash.Sum64(buf[:])
}

type entry struct {
	hash      uint64
	signature uint64
	slot      int32
	used      bool
}

type poolSlot struct {
	owner  uint64
	layout Codes
}

// Stats counts lookups.
type Stats struct {
	Hits       uint64
	Misses     uint64
	Collisions uint64
	Stores     uint64
}

// Table maps layout fingerprints to stored layouts. Entries live in a fixed
// hash-indexed array; layouts live in a ring-buffer pool whose slots are
// reused once it wraps. A Table is not safe for concurrent use.
type Table struct {
	mask    uint64
	entries []entry
	pool    []poolSlot
	next    int
	stats   Stats
}

// New returns a table with 2^bits entries and poolSize stored layouts.
func New(bits, poolSize int) (*Table, error) {
	if bits < 1 || bits > 30 {
		return nil, ErrBits
	}
	if poolSize <= 0 {
		return nil, ErrPoolSize
	}
	size := 1 << bits
	return &Table{
		mask:    uint64(size - 1),
		entries: make([]entry, size),
		pool:    make([]poolSlot, poolSize),
	}, nil
}

// Lookup returns the layout stored for hash. The signature must match the
// one given to Store, and the pool slot must still belong to hash;
// otherwise the lookup counts as a collision and fails.
func (t *Table) Lookup(hash, signature uint64) (Codes, bool) {
	e := &t.entries[hash&t.mask]
	if !e.used {
		t.stats.Misses++
		return Codes{}, false
	}
	if e.hash != hash || e.signature != signature {
		t.stats.Collisions++
		return Codes{}, false
	}
	slot := &t.pool[e.slot]
	if slot.owner != hash {
		// the pool wrapped and the slot now holds another layout
		t.stats.Collisions++
		return Codes{}, false
	}
	t.stats.Hits++
	return slot.layout, true
}

// Store records layout under hash, overwriting whatever the entry held.
func (t *Table) Store(hash uint64, layout *Codes, signature uint64) {
	idx := t.next
	t.next = (t.next + 1) % len(t.pool)
	t.pool[idx] = poolSlot{owner: hash, layout: *layout}
	t.entries[hash&t.mask] = entry{hash: hash, signature: signature, slot: int32(idx), used: true}
	t.stats.Stores++
}

// Stats returns the lookup counters.
func (t *Table) Stats() Stats {
	return t.stats
}

// Len returns the number of entry slots.
func (t *Table) Len() int {
	return len(t.entries)
}
