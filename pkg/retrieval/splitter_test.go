package retrieval

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitter_ShortText(t *testing.T) {
	s := NewSplitter(100, 20)
	assert.Equal(t, []string{"hello world"}, s.Split("  hello world \n"))
	assert.Empty(t, s.Split("   "))
}

func TestSplitter_Paragraphs(t *testing.T) {
	s := NewSplitter(30, 0)
	text := "first paragraph here\n\nsecond paragraph here\n\nthird"
	got := s.Split(text)
	assert.Equal(t, []string{"first paragraph here", "second paragraph here\n\nthird"}, got)
}

func TestSplitter_Overlap(t *testing.T) {
	s := NewSplitter(20, 10)
	got := s.Split("one two three four five six seven eight")
	assert.Greater(t, len(got), 1)
	for i := 1; i < len(got); i++ {
		prevWords := strings.Fields(got[i-1])
		first := strings.Fields(got[i])[0]
		assert.Contains(t, prevWords, first, "chunk %d should start with overlap from chunk %d", i, i-1)
	}
}

func TestSplitter_LongWordFallsBackToRunes(t *testing.T) {
	s := NewSplitter(10, 0)
	got := s.Split(strings.Repeat("x", 25))
	assert.Equal(t, []string{"xxxxxxxxxx", "xxxxxxxxxx", "xxxxx"}, got)
}

func TestSplitter_CustomLength(t *testing.T) {
	s := NewSplitter(3, 0)
	s.Length = func(text string) int { return len(strings.Fields(text)) }
	got := s.Split("a b c d e f g")
	for _, c := range got {
		assert.LessOrEqual(t, len(strings.Fields(c)), 3)
	}
	assert.Equal(t, "a b c d e f g", strings.Join(got, " "))
}
