package retrieval

import (
	"strings"
	"unicode/utf8"
)

// Chunk sizes for the two collections.
const (
	DocChunkSize         = 2000
	DocChunkOverlap      = 200
	SnapshotChunkSize    = 1000
	SnapshotChunkOverlap = 200
)

// DefaultSeparators are tried in order: paragraphs, lines, words, runes.
var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

// Splitter is a recursive character splitter. It splits on the coarsest
// separator that yields pieces under ChunkSize, then greedily merges pieces
// back into chunks that overlap by up to Overlap.
type Splitter struct {
	ChunkSize  int
	Overlap    int
	Separators []string

	// Length measures a piece. Nil counts runes.
	Length func(string) int
}

// NewSplitter returns a splitter with the default separators.
func NewSplitter(size, overlap int) *Splitter {
	return &Splitter{ChunkSize: size, Overlap: overlap, Separators: DefaultSeparators}
}

// Split breaks text into chunks. Chunks are whitespace-trimmed and never empty.
func (s *Splitter) Split(text string) []string {
	seps := s.Separators
	if len(seps) == 0 {
		seps = DefaultSeparators
	}
	return s.split(text, seps)
}

func (s *Splitter) length(text string) int {
	if s.Length != nil {
		return s.Length(text)
	}
	return utf8.RuneCountInString(text)
}

func (s *Splitter) split(text string, seps []string) []string {
	sep := seps[len(seps)-1]
	var rest []string
	for i, candidate := range seps {
		if candidate == "" || strings.Contains(text, candidate) {
			sep = candidate
			rest = seps[i+1:]
			break
		}
	}

	var final, good []string
	for _, piece := range splitKeep(text, sep) {
		if s.length(piece) < s.ChunkSize {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			final = append(final, s.merge(good)...)
			good = nil
		}
		if len(rest) == 0 {
			if p := strings.TrimSpace(piece); p != "" {
				final = append(final, p)
			}
		} else {
			final = append(final, s.split(piece, rest)...)
		}
	}
	if len(good) > 0 {
		final = append(final, s.merge(good)...)
	}
	return final
}

// splitKeep splits text on sep, keeping sep at the start of each following
// piece so that merging with "" restores the original text.
func splitKeep(text, sep string) []string {
	if sep == "" {
		out := make([]string, 0, len(text))
		for _, r := range text {
			out = append(out, string(r))
		}
		return out
	}
	parts := strings.Split(text, sep)
	out := make([]string, 0, len(parts))
	for i, p := range parts {
		if i > 0 {
			p = sep + p
		}
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// merge packs pieces into chunks of at most ChunkSize, carrying up to
// Overlap worth of trailing pieces into the next chunk.
func (s *Splitter) merge(pieces []string) []string {
	var chunks []string
	var current []string
	total := 0

	emit := func() {
		if c := strings.TrimSpace(strings.Join(current, "")); c != "" {
			chunks = append(chunks, c)
		}
	}

	for _, p := range pieces {
		n := s.length(p)
		if total+n > s.ChunkSize && len(current) > 0 {
			emit()
			for total > s.Overlap || (total+n > s.ChunkSize && total > 0) {
				total -= s.length(current[0])
				current = current[1:]
			}
		}
		current = append(current, p)
		total += n
	}
	if len(current) > 0 {
		emit()
	}
	return chunks
}
