package keyboard

import (
	"errors"
	"fmt"
	"strings"
)

// Board geometry. The space key sits below the grid and is typed by a thumb.
const (
	Rows     = 3
	Cols     = 10
	KeyCount = Rows * Cols
	SpaceRow = Rows
	SpaceCol = 0
	// PosCount covers every board key plus the space slot.
	PosCount = KeyCount + 1
)

var (
	ErrRowCount     = errors.New("layout must have exactly 3 rows")
	ErrRowWidth     = errors.New("layout row must have exactly 10 keys")
	ErrDuplicateKey = errors.New("layout key appears more than once")
)

// Pos addresses a key on the board. The space slot is SpacePos.
type Pos struct {
	Row int
	Col int
}

// SpacePos is the auxiliary space slot.
var SpacePos = Pos{Row: SpaceRow, Col: SpaceCol}

// OnBoard reports whether p is inside the 3x10 grid.
func (p Pos) OnBoard() bool {
	return p.Row >= 0 && p.Row < Rows && p.Col >= 0 && p.Col < Cols
}

// Valid reports whether p is a board key or the space slot.
func (p Pos) Valid() bool {
	return p.OnBoard() || p == SpacePos
}

// Index flattens p into [0, PosCount). The space slot maps to KeyCount.
func (p Pos) Index() int {
	if p == SpacePos {
		return KeyCount
	}
	return p.Row*Cols + p.Col
}

func (p Pos) String() string {
	return fmt.Sprintf("(%d,%d)", p.Row, p.Col)
}

// PosAt is the inverse of Pos.Index.
func PosAt(idx int) Pos {
	if idx == KeyCount {
		return SpacePos
	}
	return Pos{Row: idx / Cols, Col: idx % Cols}
}

// Swap exchanges the characters on two board keys.
type Swap struct {
	A Pos
	B Pos
}

// Valid reports whether both keys are on the board and distinct.
func (s Swap) Valid() bool {
	return s.A.OnBoard() && s.B.OnBoard() && s.A != s.B
}

func (s Swap) String() string {
	return s.A.String() + "<->" + s.B.String()
}

// Layout assigns a character to every key.
type Layout struct {
	Keys  [Rows][Cols]rune
	Space rune
}

// ParseLayout builds a layout from three rows of ten characters each.
func ParseLayout(rows []string, space rune) (Layout, error) {
	var l Layout
	if len(rows) != Rows {
		return l, fmt.Errorf("%w: got %d", ErrRowCount, len(rows))
	}
	seen := make(map[rune]Pos, PosCount)
	for i, row := range rows {
		runes := []rune(row)
		if len(runes) != Cols {
			return l, fmt.Errorf("%w: row %d has %d", ErrRowWidth, i, len(runes))
		}
		for j, r := range runes {
			if prev, ok := seen[r]; ok {
				return l, fmt.Errorf("%w: %q at %s and %s", ErrDuplicateKey, r, prev, Pos{i, j})
			}
			seen[r] = Pos{i, j}
			l.Keys[i][j] = r
		}
	}
	if prev, ok := seen[space]; ok {
		return l, fmt.Errorf("%w: space %q also at %s", ErrDuplicateKey, space, prev)
	}
	l.Space = space
	return l, nil
}

// QWERTY returns the ANSI QWERTY letter block.
func QWERTY() Layout {
	l, err := ParseLayout([]string{"qwertyuiop", "asdfghjkl;", "zxcvbnm,./"}, ' ')
	if err != nil {
		panic(err)
	}
	return l
}

// At returns the character at p.
func (l *Layout) At(p Pos) rune {
	if p == SpacePos {
		return l.Space
	}
	return l.Keys[p.Row][p.Col]
}

// Set assigns r to p.
func (l *Layout) Set(p Pos, r rune) {
	if p == SpacePos {
		l.Space = r
		return
	}
	l.Keys[p.Row][p.Col] = r
}

// Apply exchanges the two keys of s.
func (l *Layout) Apply(s Swap) {
	a, b := l.At(s.A), l.At(s.B)
	l.Set(s.A, b)
	l.Set(s.B, a)
}

// RowStrings returns the grid as one string per row.
func (l Layout) RowStrings() []string {
	out := make([]string, Rows)
	for i := 0; i < Rows; i++ {
		out[i] = string(l.Keys[i][:])
	}
	return out
}

func (l Layout) String() string {
	return strings.Join(l.RowStrings(), "\n")
}
