package rag

import (
	"strings"
	"unicode/utf8"
)

// Default chunking geometry, matching the reference deployment.
const (
	DefaultChunkSize    = 800
	DefaultChunkOverlap = 100
)

// defaultSeparators is the split priority: paragraph breaks first, then line
// breaks, then word boundaries, then raw rune boundaries as a last resort.
var defaultSeparators = []string{"\n\n", "\n", " ", ""}

// Chunk is a bounded passage of a document. Text includes the overlap window
// carried from the previous chunk; Overlap is that prefix's rune length, so
// Text minus its first Overlap runes is the chunk's own content.
type Chunk struct {
	Seq     int
	Text    string
	Overlap int
}

// Splitter splits document text into bounded, overlapping chunks.
// Splitting is deterministic: identical (text, size, overlap) always produce
// the identical chunk sequence. Sizes are measured in runes so multi-byte
// text never splits mid-character.
type Splitter struct {
	chunkSize int
	overlap   int
}

// SplitterOption configures a Splitter.
type SplitterOption func(*Splitter)

// WithChunkSize sets the maximum chunk size in runes, overlap included.
func WithChunkSize(size int) SplitterOption {
	return func(s *Splitter) {
		if size > 0 {
			s.chunkSize = size
		}
	}
}

// WithChunkOverlap sets the overlap carried between consecutive chunks.
func WithChunkOverlap(overlap int) SplitterOption {
	return func(s *Splitter) {
		if overlap >= 0 {
			s.overlap = overlap
		}
	}
}

// NewSplitter creates a splitter with the given options.
func NewSplitter(opts ...SplitterOption) *Splitter {
	s := &Splitter{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
	}
	for _, opt := range opts {
		opt(s)
	}

	// Overlap must leave room for new content in every chunk.
	if s.overlap >= s.chunkSize {
		s.overlap = s.chunkSize / 4
	}
	return s
}

// Split chunks text. A document that fits in one chunk is returned whole
// with no overlap; empty or whitespace-only text yields no chunks.
// Concatenating the chunks' content (Text with the Overlap prefix removed)
// reconstructs the input exactly.
func (s *Splitter) Split(text string) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if utf8.RuneCountInString(text) <= s.chunkSize {
		return []Chunk{{Seq: 0, Text: text}}
	}

	// Bodies are capped at chunkSize-overlap so that prepending the overlap
	// window never pushes a chunk past chunkSize.
	budget := s.chunkSize - s.overlap
	bodies := s.pieces(text, defaultSeparators, budget)

	chunks := make([]Chunk, len(bodies))
	for i, body := range bodies {
		if i == 0 {
			chunks[0] = Chunk{Seq: 0, Text: body}
			continue
		}
		window := tailRunes(chunks[i-1].Text, s.overlap)
		chunks[i] = Chunk{
			Seq:     i,
			Text:    window + body,
			Overlap: utf8.RuneCountInString(window),
		}
	}
	return chunks
}

// pieces recursively splits text into bodies of at most budget runes,
// preserving every rune. Separators are kept attached to the preceding
// piece so concatenation reconstructs the input.
func (s *Splitter) pieces(text string, separators []string, budget int) []string {
	if utf8.RuneCountInString(text) <= budget {
		return []string{text}
	}
	if len(separators) == 0 || separators[0] == "" {
		return hardSplit(text, budget)
	}

	parts := strings.SplitAfter(text, separators[0])
	if len(parts) == 1 {
		// Separator absent at this level, try the next one.
		return s.pieces(text, separators[1:], budget)
	}

	var out []string
	var cur strings.Builder
	curLen := 0
	flush := func() {
		if curLen > 0 {
			out = append(out, cur.String())
			cur.Reset()
			curLen = 0
		}
	}

	for _, part := range parts {
		partLen := utf8.RuneCountInString(part)
		if partLen > budget {
			flush()
			out = append(out, s.pieces(part, separators[1:], budget)...)
			continue
		}
		if curLen+partLen > budget {
			flush()
		}
		cur.WriteString(part)
		curLen += partLen
	}
	flush()
	return out
}

// hardSplit cuts text into fixed rune windows of at most budget runes.
func hardSplit(text string, budget int) []string {
	runes := []rune(text)
	out := make([]string, 0, (len(runes)+budget-1)/budget)
	for start := 0; start < len(runes); start += budget {
		end := min(start+budget, len(runes))
		out = append(out, string(runes[start:end]))
	}
	return out
}

// tailRunes returns the final n runes of text, or all of it when shorter.
func tailRunes(text string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[len(runes)-n:])
}
