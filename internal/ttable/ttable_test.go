package ttable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func codes(seed int) Codes {
	var c Codes
	for i := range c {
		c[i] = (i + seed) % len(c)
	}
	return c
}

func TestNewValidates(t *testing.T) {
	_, err := New(0, 4)
	assert.ErrorIs(t, err, ErrBits)
	_, err = New(31, 4)
	assert.ErrorIs(t, err, ErrBits)
	_, err = New(4, 0)
	assert.ErrorIs(t, err, ErrPoolSize)

	table, err := New(4, 2)
	require.NoError(t, err)
	assert.Equal(t, 16, table.Len())
}

func TestFingerprint(t *testing.T) {
	a, b := codes(0), codes(1)
	assert.Equal(t, Fingerprint(&a), Fingerprint(&a))
	assert.NotEqual(t, Fingerprint(&a), Fingerprint(&b))

	c := a
	c[0], c[1] = c[1], c[0]
	assert.NotEqual(t, Fingerprint(&a), Fingerprint(&c))
}

func TestStoreLookup(t *testing.T) {
	table, err := New(8, 4)
	require.NoError(t, err)
	start, best := codes(0), codes(5)
	hash := Fingerprint(&start)

	_, ok := table.Lookup(hash, 42)
	assert.False(t, ok)

	table.Store(hash, &best, 42)
	got, ok := table.Lookup(hash, 42)
	require.True(t, ok)
	assert.Equal(t, best, got)

	assert.Equal(t, Stats{Hits: 1, Misses: 1, Stores: 1}, table.Stats())
}

func TestSignatureMismatchIsCollision(t *testing.T) {
	table, err := New(8, 4)
	require.NoError(t, err)
	layout := codes(3)
	table.Store(7, &layout, 1)

	_, ok := table.Lookup(7, 2)
	assert.False(t, ok)
	assert.Equal(t, uint64(1), table.Stats().Collisions)
}

func TestSharedIndexIsCollision(t *testing.T) {
	table, err := New(4, 4)
	require.NoError(t, err)
	layout := codes(3)
	table.Store(0x01, &layout, 9)

	// same low bits, different hash
	_, ok := table.Lookup(0x11, 9)
	assert.False(t, ok)
	assert.Equal(t, uint64(1), table.Stats().Collisions)

	// a store always overwrites
	other := codes(4)
	table.Store(0x11, &other, 9)
	_, ok = table.Lookup(0x01, 9)
	assert.False(t, ok)
	got, ok := table.Lookup(0x11, 9)
	require.True(t, ok)
	assert.Equal(t, other, got)
}

func TestRecycledPoolSlotIsRejected(t *testing.T) {
	table, err := New(8, 2)
	require.NoError(t, err)
	first, second, third := codes(1), codes(2), codes(3)

	table.Store(1, &first, 0)
	table.Store(2, &second, 0)
	// wraps around and reuses the slot of hash 1
	table.Store(3, &third, 0)

	_, ok := table.Lookup(1, 0)
	assert.False(t, ok)
	got, ok := table.Lookup(2, 0)
	require.True(t, ok)
	assert.Equal(t, second, got)
	got, ok = table.Lookup(3, 0)
	require.True(t, ok)
	assert.Equal(t, third, got)
	assert.Equal(t, uint64(1), table.Stats().Collisions)
}
