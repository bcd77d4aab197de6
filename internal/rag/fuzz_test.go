package rag

import (
	"strings"
	"testing"
	"unicode/utf8"
)

// FuzzSplit checks the chunking invariants over arbitrary inputs: chunks
// never exceed the configured size, overlaps never exceed the configured
// overlap, and removing the overlap prefixes reconstructs the input.
func FuzzSplit(f *testing.F) {
	f.Add("hello world", 10, 2)
	f.Add(strings.Repeat("a", 1000), 800, 100)
	f.Add("line one\nline two\n\npara two", 16, 4)
	f.Add("日本語のテキストを分割する", 5, 1)
	f.Add("", 100, 10)

	f.Fuzz(func(t *testing.T, text string, chunkSize, overlap int) {
		if !utf8.ValidString(text) {
			t.Skip("only valid UTF-8 is ingested")
		}
		if chunkSize < 1 || chunkSize > 4096 {
			t.Skip()
		}
		if overlap < 0 || overlap > chunkSize {
			t.Skip()
		}

		s := NewSplitter(WithChunkSize(chunkSize), WithChunkOverlap(overlap))
		chunks := s.Split(text)

		if strings.TrimSpace(text) == "" {
			if chunks != nil {
				t.Fatalf("blank input produced %d chunks", len(chunks))
			}
			return
		}

		var content strings.Builder
		for i, c := range chunks {
			if n := utf8.RuneCountInString(c.Text); n > chunkSize {
				t.Errorf("chunk %d has %d runes, max %d", i, n, chunkSize)
			}
			if c.Overlap > s.overlap {
				t.Errorf("chunk %d overlap %d exceeds %d", i, c.Overlap, s.overlap)
			}
			runes := []rune(c.Text)
			if c.Overlap > len(runes) {
				t.Fatalf("chunk %d overlap %d longer than text", i, c.Overlap)
			}
			content.WriteString(string(runes[c.Overlap:]))
		}

		if content.String() != text {
			t.Error("chunks without overlap do not reconstruct the input")
		}
	})
}
