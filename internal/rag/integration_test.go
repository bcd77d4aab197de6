package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/lorekb/lore/internal/store"
)

// newDiskSystem assembles a full system over a real on-disk store, with only
// the model provider faked.
func newDiskSystem(t *testing.T, provider Provider) (*System, *store.Store) {
	t.Helper()

	st, err := store.Open(t.TempDir(), "test-embedder", nil)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	s, err := NewSystem(context.Background(), provider, st, Options{ChunkSize: 120, ChunkOverlap: 20}, nil)
	if err != nil {
		t.Fatalf("NewSystem: %v", err)
	}
	t.Cleanup(s.Close)
	return s, st
}

func TestSystem_RoundTripOnDisk(t *testing.T) {
	t.Parallel()

	provider := newFakeProvider("Burrows, mostly.")
	s, st := newDiskSystem(t, provider)

	docs := map[string]string{
		"animals.txt": "Gophers dig extensive burrows underground.\n\nThey hoard food in their cheek pouches.",
		"markets.txt": "The stock market closed higher today after a volatile session.",
		"lang.txt":    "Compilers translate source code into machine code for the target platform.",
	}
	for name, text := range docs {
		if _, err := s.Ingest(context.Background(), text, map[string]string{"source": name}); err != nil {
			t.Fatalf("Ingest %s: %v", name, err)
		}
	}

	if state, _ := s.State(); state != StateReady {
		t.Fatalf("state = %v, want %v", state, StateReady)
	}
	if st.Count() < 3 {
		t.Fatalf("store holds %d records, want at least one per document", st.Count())
	}

	answer, err := s.Query(context.Background(), "where do gophers dig burrows")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	top := answer.Sources[0]
	if !strings.Contains(top.Text, "burrows") {
		t.Errorf("top source = %q, want the burrows passage", top.Text)
	}
	if got := top.Metadata["source"]; got != "animals.txt" {
		t.Errorf("top source metadata = %q, want animals.txt", got)
	}
	if _, seqLeaked := top.Metadata["_seq"]; seqLeaked {
		t.Error("internal sequence metadata leaked into sources")
	}
}

func TestSystem_FeedbackLoopOnDisk(t *testing.T) {
	t.Parallel()

	provider := newFakeProvider("Learned it.")
	s, _ := newDiskSystem(t, provider)

	if _, err := s.Ingest(context.Background(), "Background knowledge about unrelated topics.", nil); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if _, err := s.Learn(context.Background(), "How deep are gopher burrows?", "Up to six feet."); err != nil {
		t.Fatalf("Learn: %v", err)
	}

	answer, err := s.Query(context.Background(), "How deep are gopher burrows?")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	top := answer.Sources[0]
	if top.Metadata["source"] != FeedbackSource {
		t.Errorf("top source = %q, want %q", top.Metadata["source"], FeedbackSource)
	}
	if !strings.Contains(top.Text, "Up to six feet.") {
		t.Errorf("top source text = %q, want the learned answer", top.Text)
	}
}

func TestSystem_EmptyStoreOnDiskIsRefused(t *testing.T) {
	t.Parallel()

	s, st := newDiskSystem(t, newFakeProvider("ok"))

	if st.Exists() {
		t.Fatal("store exists before first ingest")
	}
	_, err := s.Query(context.Background(), "anything?")
	if !errors.Is(err, store.ErrEmptyStore) {
		t.Fatalf("Query error = %v, want ErrEmptyStore", err)
	}
}
