package corpus

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/verte-zerg/kbopt/internal/keyboard"
)

func TestNormalizeFoldsShiftedKeys(t *testing.T) {
	cases := map[rune]rune{
		'A':  'a',
		':':  ';',
		'"':  '\'',
		'?':  '/',
		'\n': ' ',
		'\t': ' ',
		'x':  'x',
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Fatalf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCountNgrams(t *testing.T) {
	tables, err := Count(strings.NewReader("Abc ab!c"), []rune("abc "))
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	a, _ := tables.Code('a')
	b, _ := tables.Code('b')
	c, _ := tables.Code('c')
	sp, _ := tables.Code(' ')

	if tables.Char(a) != 2 || tables.Char(c) != 2 || tables.Char(sp) != 1 {
		t.Fatalf("unexpected unigram counts")
	}
	if tables.Bigram(a, b) != 2 {
		t.Fatalf("expected ab twice, got %d", tables.Bigram(a, b))
	}
	// '!' is outside the alphabet and breaks the window
	if tables.Bigram(b, c) != 1 {
		t.Fatalf("expected bc once, got %d", tables.Bigram(b, c))
	}
	if tables.Trigram(a, b, c) != 1 || tables.Trigram(c, sp, a) != 1 {
		t.Fatalf("unexpected trigram counts")
	}
	if tables.Skipgram(a, c) != 1 {
		t.Fatalf("expected skipgram a_c once, got %d", tables.Skipgram(a, c))
	}
}

func TestCountRejectsEmptyCorpus(t *testing.T) {
	if _, err := Count(strings.NewReader("!!!"), []rune("abc")); err == nil {
		t.Fatalf("expected error for corpus without alphabet characters")
	}
}

func TestLoadFileAndCacheKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "corpus.txt")
	if err := os.WriteFile(path, []byte("the quick brown fox"), 0o644); err != nil {
		t.Fatalf("write corpus: %v", err)
	}
	alphabet := AlphabetOf(keyboard.QWERTY())
	if len(alphabet) != keyboard.PosCount || alphabet[len(alphabet)-1] != ' ' {
		t.Fatalf("unexpected alphabet %q", string(alphabet))
	}
	tables, err := LoadFile(path, alphabet)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tables.CharHits() != 19 {
		t.Fatalf("expected 19 chars, got %d", tables.CharHits())
	}
	key, err := CacheKey(path, alphabet)
	if err != nil {
		t.Fatalf("cache key: %v", err)
	}
	if !strings.HasPrefix(key, path+"|19|") {
		t.Fatalf("unexpected cache key %q", key)
	}
}
