package keyboard

import (
	"errors"
	"fmt"
)

var (
	ErrFingerDigit = errors.New("finger map entries must be digits 0-9 or '-'")
	ErrLockRune    = errors.New("lock rows may only contain '.', 'x' or '#'")
)

// FingerMap assigns a finger to every key.
type FingerMap struct {
	Keys  [Rows][Cols]Finger
	Space Finger
}

// DefaultFingerMap is the standard touch-typing assignment for a row-staggered board.
func DefaultFingerMap() FingerMap {
	cols := [Cols]Finger{
		LeftPinkie, LeftRing, LeftMiddle, LeftIndex, LeftIndex,
		RightIndex, RightIndex, RightMiddle, RightRing, RightPinkie,
	}
	var m FingerMap
	for i := 0; i < Rows; i++ {
		m.Keys[i] = cols
	}
	m.Space = RightThumb
	return m
}

// ParseFingerMap reads three rows of finger ids ("0".."9", "-" for none).
// The space slot keeps the right thumb.
func ParseFingerMap(rows []string) (FingerMap, error) {
	m := DefaultFingerMap()
	if len(rows) != Rows {
		return m, fmt.Errorf("%w: got %d", ErrRowCount, len(rows))
	}
	for i, row := range rows {
		if len(row) != Cols {
			return m, fmt.Errorf("%w: finger row %d has %d", ErrRowWidth, i, len(row))
		}
		for j := 0; j < Cols; j++ {
			switch ch := row[j]; {
			case ch == '-':
				m.Keys[i][j] = NoFinger
			case ch >= '0' && ch <= '9':
				m.Keys[i][j] = Finger(ch - '0')
			default:
				return m, fmt.Errorf("%w: %q", ErrFingerDigit, ch)
			}
		}
	}
	return m, nil
}

// At returns the finger at p.
func (m *FingerMap) At(p Pos) Finger {
	if p == SpacePos {
		return m.Space
	}
	if !p.OnBoard() {
		return NoFinger
	}
	return m.Keys[p.Row][p.Col]
}

// Locks marks keys the optimizer must not move.
type Locks [Rows][Cols]bool

// ParseLocks reads three rows where 'x' or '#' locks a key and '.' leaves it free.
func ParseLocks(rows []string) (Locks, error) {
	var l Locks
	if len(rows) == 0 {
		return l, nil
	}
	if len(rows) != Rows {
		return l, fmt.Errorf("%w: got %d", ErrRowCount, len(rows))
	}
	for i, row := range rows {
		if len(row) != Cols {
			return l, fmt.Errorf("%w: lock row %d has %d", ErrRowWidth, i, len(row))
		}
		for j := 0; j < Cols; j++ {
			switch row[j] {
			case '.':
			case 'x', '#':
				l[i][j] = true
			default:
				return l, fmt.Errorf("%w: %q", ErrLockRune, row[j])
			}
		}
	}
	return l, nil
}

// Locked reports whether p is locked. The space slot is always locked.
func (l *Locks) Locked(p Pos) bool {
	if !p.OnBoard() {
		return true
	}
	return l[p.Row][p.Col]
}

// Count returns the number of locked board keys.
func (l *Locks) Count() int {
	n := 0
	for i := 0; i < Rows; i++ {
		for j := 0; j < Cols; j++ {
			if l[i][j] {
				n++
			}
		}
	}
	return n
}
