// Package corpus counts text into frequency tables.
package corpus

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"unicode"

	"github.com/verte-zerg/kbopt/internal/freq"
	"github.com/verte-zerg/kbopt/internal/keyboard"
)

// shifted maps shifted punctuation to the unshifted key it is typed on.
var shifted = map[rune]rune{
	':': ';',
	'"': '\'',
	'<': ',',
	'>': '.',
	'?': '/',
}

// Normalize folds r onto the key that produces it: lowercase letters and
// unshifted punctuation. Whitespace becomes a single space.
func Normalize(r rune) rune {
	if unicode.IsSpace(r) {
		return ' '
	}
	if u, ok := shifted[r]; ok {
		return u
	}
	return unicode.ToLower(r)
}

// Counter accumulates n-grams over a normalized character stream. Characters
// outside the alphabet break the n-gram window.
type Counter struct {
	tables *freq.Tables
	prev   [2]int
	filled int
}

// NewCounter returns a counter writing into tables.
func NewCounter(tables *freq.Tables) *Counter {
	return &Counter{tables: tables}
}

// Add counts one rune.
func (c *Counter) Add(r rune) {
	code, ok := c.tables.Code(Normalize(r))
	if !ok {
		c.filled = 0
		return
	}
	c.tables.AddChar(code, 1)
	if c.filled >= 1 {
		c.tables.AddBigram(c.prev[1], code, 1)
	}
	if c.filled >= 2 {
		c.tables.AddTrigram(c.prev[0], c.prev[1], code, 1)
	}
	c.prev[0], c.prev[1] = c.prev[1], code
	if c.filled < 2 {
		c.filled++
	}
}

// AddString counts every rune of s.
func (c *Counter) AddString(s string) {
	for _, r := range s {
		c.Add(r)
	}
}

// Count reads r to the end and returns finalized tables for the alphabet.
func Count(r io.Reader, alphabet []rune) (*freq.Tables, error) {
	tables, err := freq.New(alphabet)
	if err != nil {
		return nil, err
	}
	counter := NewCounter(tables)
	br := bufio.NewReader(r)
	for {
		ch, _, err := br.ReadRune()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		counter.Add(ch)
	}
	tables.Finalize()
	if tables.CharHits() == 0 {
		return nil, fmt.Errorf("corpus contains no characters from the alphabet")
	}
	return tables, nil
}

// LoadFile counts the text file at path.
func LoadFile(path string, alphabet []rune) (*freq.Tables, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := file.Close(); cerr != nil {
			// Best-effort close for read-only corpus.
			_ = cerr
		}
	}()
	return Count(file, alphabet)
}

// AlphabetOf returns the runes of a layout in row-major order, space last.
func AlphabetOf(l keyboard.Layout) []rune {
	out := make([]rune, 0, keyboard.PosCount)
	for i := 0; i < keyboard.Rows; i++ {
		out = append(out, l.Keys[i][:]...)
	}
	return append(out, l.Space)
}

// CacheKey identifies a corpus file and alphabet for table caching. The key
// changes when the file is modified.
func CacheKey(path string, alphabet []rune) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s|%d|%d|%s", path, info.Size(), info.ModTime().UnixNano(), string(alphabet)), nil
}
