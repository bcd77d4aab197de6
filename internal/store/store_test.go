package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/lorekb/lore/internal/log"
)

const testModel = "test-embedder"

func openTestStore(t *testing.T, dir string) *Store {
	t.Helper()
	s, err := Open(dir, testModel, log.NewNop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

func rec(id string, embedding []float32, metadata map[string]string) Record {
	return Record{ID: id, Text: "text for " + id, Embedding: embedding, Metadata: metadata}
}

func TestOpen_MissingDirectoryIsDormant(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "store")

	s := openTestStore(t, dir)

	if s.Exists() {
		t.Error("store should not exist before first upsert")
	}
	if s.Count() != 0 {
		t.Errorf("expected count 0, got %d", s.Count())
	}
	if err := s.Persist(); err != nil {
		t.Errorf("Persist on dormant store: %v", err)
	}
	if _, err := os.Stat(dir); !errors.Is(err, os.ErrNotExist) {
		t.Error("Open must not create the store directory")
	}
}

func TestSearch_EmptyStore(t *testing.T) {
	s := openTestStore(t, filepath.Join(t.TempDir(), "store"))

	_, err := s.Search(context.Background(), []float32{1, 0, 0}, 3)
	if !errors.Is(err, ErrEmptyStore) {
		t.Errorf("expected ErrEmptyStore, got %v", err)
	}
}

func TestUpsert_CreatesStoreLazily(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "store")
	s := openTestStore(t, dir)

	err := s.Upsert(context.Background(), []Record{
		rec("a", []float32{1, 0, 0}, map[string]string{"source": "doc.txt"}),
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	if !s.Exists() {
		t.Error("store should exist after first upsert")
	}
	if s.Count() != 1 {
		t.Errorf("expected count 1, got %d", s.Count())
	}
	if _, err := os.Stat(manifestPath(dir)); err != nil {
		t.Errorf("manifest not written: %v", err)
	}
	if err := s.Persist(); err != nil {
		t.Errorf("Persist: %v", err)
	}

	m := s.Manifest()
	if m.EmbedderModel != testModel {
		t.Errorf("manifest model = %q, want %q", m.EmbedderModel, testModel)
	}
	if m.Dimension != 3 {
		t.Errorf("manifest dimension = %d, want 3", m.Dimension)
	}
}

func TestUpsert_EmptyBatchIsNoop(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "store")
	s := openTestStore(t, dir)

	if err := s.Upsert(context.Background(), nil); err != nil {
		t.Fatalf("Upsert(nil): %v", err)
	}
	if s.Exists() {
		t.Error("empty batch must not create the store")
	}
}

func TestUpsert_DimensionValidation(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, filepath.Join(t.TempDir(), "store"))

	t.Run("mixed dimensions in batch", func(t *testing.T) {
		err := s.Upsert(ctx, []Record{
			rec("a", []float32{1, 0, 0}, nil),
			rec("b", []float32{1, 0}, nil),
		})
		if !errors.Is(err, ErrDimensionMismatch) {
			t.Errorf("expected ErrDimensionMismatch, got %v", err)
		}
	})

	t.Run("missing embedding", func(t *testing.T) {
		err := s.Upsert(ctx, []Record{rec("a", nil, nil)})
		if !errors.Is(err, ErrDimensionMismatch) {
			t.Errorf("expected ErrDimensionMismatch, got %v", err)
		}
	})

	t.Run("dimension change across batches", func(t *testing.T) {
		if err := s.Upsert(ctx, []Record{rec("a", []float32{1, 0, 0}, nil)}); err != nil {
			t.Fatalf("first upsert: %v", err)
		}
		err := s.Upsert(ctx, []Record{rec("b", []float32{1, 0, 0, 0}, nil)})
		if !errors.Is(err, ErrDimensionMismatch) {
			t.Errorf("expected ErrDimensionMismatch, got %v", err)
		}
	})
}

func TestSearch_RankingAndClamping(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, filepath.Join(t.TempDir(), "store"))

	err := s.Upsert(ctx, []Record{
		rec("east", []float32{1, 0, 0}, nil),
		rec("north", []float32{0, 1, 0}, nil),
		rec("northeast", []float32{1, 1, 0}, nil),
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	matches, err := s.Search(ctx, []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].Record.ID != "east" {
		t.Errorf("expected east first, got %q", matches[0].Record.ID)
	}
	if matches[1].Record.ID != "northeast" {
		t.Errorf("expected northeast second, got %q", matches[1].Record.ID)
	}
	if matches[0].Similarity < matches[1].Similarity {
		t.Error("matches must be ordered by descending similarity")
	}

	// k larger than record count returns everything, ranked.
	matches, err = s.Search(ctx, []float32{1, 0, 0}, 10)
	if err != nil {
		t.Fatalf("Search with large k: %v", err)
	}
	if len(matches) != 3 {
		t.Errorf("expected all 3 records, got %d", len(matches))
	}
}

func TestSearch_TieBrokenByInsertionOrder(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, filepath.Join(t.TempDir(), "store"))

	// Identical embeddings produce identical similarity; the earlier record
	// must win.
	err := s.Upsert(ctx, []Record{
		rec("first", []float32{0, 1, 0}, nil),
		rec("second", []float32{0, 1, 0}, nil),
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	matches, err := s.Search(ctx, []float32{0, 1, 0}, 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if matches[0].Record.ID != "first" || matches[1].Record.ID != "second" {
		t.Errorf("expected insertion-order tie break, got %q then %q",
			matches[0].Record.ID, matches[1].Record.ID)
	}
}

func TestSearch_TieAtResultBoundary(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, filepath.Join(t.TempDir(), "store"))

	// Two exact ties compete for a single slot; the earlier record must take
	// it regardless of which one the index happens to surface first.
	err := s.Upsert(ctx, []Record{
		rec("first", []float32{0, 1, 0}, nil),
		rec("second", []float32{0, 1, 0}, nil),
		rec("off-axis", []float32{1, 0, 0}, nil),
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	matches, err := s.Search(ctx, []float32{0, 1, 0}, 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	if matches[0].Record.ID != "first" {
		t.Errorf("expected first at the boundary, got %q", matches[0].Record.ID)
	}

	matches, err = s.Search(ctx, []float32{0, 1, 0}, 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if matches[0].Record.ID != "first" || matches[1].Record.ID != "second" {
		t.Errorf("expected both ties in insertion order, got %q then %q",
			matches[0].Record.ID, matches[1].Record.ID)
	}
}

func TestSearch_QueryDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, filepath.Join(t.TempDir(), "store"))

	if err := s.Upsert(ctx, []Record{rec("a", []float32{1, 0, 0}, nil)}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	_, err := s.Search(ctx, []float32{1, 0}, 1)
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestSearch_MetadataRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, filepath.Join(t.TempDir(), "store"))

	err := s.Upsert(ctx, []Record{
		rec("a", []float32{1, 0, 0}, map[string]string{"source": "user_feedback"}),
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	matches, err := s.Search(ctx, []float32{1, 0, 0}, 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	metadata := matches[0].Record.Metadata
	if metadata["source"] != "user_feedback" {
		t.Errorf("expected source metadata to round-trip, got %v", metadata)
	}
	if _, ok := metadata[seqKey]; ok {
		t.Error("internal sequence key must not leak into results")
	}
}

func TestOpen_ReloadsPersistedRecords(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "store")

	s := openTestStore(t, dir)
	err := s.Upsert(ctx, []Record{
		rec("a", []float32{1, 0, 0}, nil),
		rec("b", []float32{0, 1, 0}, nil),
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// A fresh process observing the same directory sees the records.
	reopened := openTestStore(t, dir)
	if !reopened.Exists() {
		t.Fatal("reopened store should exist")
	}
	if reopened.Count() != 2 {
		t.Errorf("expected 2 records after reopen, got %d", reopened.Count())
	}

	matches, err := reopened.Search(ctx, []float32{1, 0, 0}, 1)
	if err != nil {
		t.Fatalf("Search after reopen: %v", err)
	}
	if matches[0].Record.ID != "a" {
		t.Errorf("expected record a, got %q", matches[0].Record.ID)
	}
}

func TestOpen_ProviderMismatch(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "store")

	s := openTestStore(t, dir)
	if err := s.Upsert(ctx, []Record{rec("a", []float32{1, 0, 0}, nil)}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	_, err := Open(dir, "a-different-model", log.NewNop())
	if !errors.Is(err, ErrProviderMismatch) {
		t.Errorf("expected ErrProviderMismatch, got %v", err)
	}
}

func TestUpsert_DuplicateTextGetsDistinctRecords(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, filepath.Join(t.TempDir(), "store"))

	// Same text, different ids: both survive (no content dedup).
	err := s.Upsert(ctx, []Record{
		{ID: "one", Text: "same text", Embedding: []float32{1, 0, 0}},
		{ID: "two", Text: "same text", Embedding: []float32{1, 0, 0}},
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if s.Count() != 2 {
		t.Errorf("expected 2 records, got %d", s.Count())
	}
}
