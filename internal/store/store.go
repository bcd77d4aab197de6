// Package store implements the persistent vector store for lore.
//
// Records (passage text + embedding + metadata) live in an embedded
// chromem-go database persisted under a single directory. The store is
// created lazily: the directory does not exist until the first successful
// Upsert, and its absence beforehand is not an error. A manifest written at
// creation time records the embedding model identity and vector dimension so
// a provider mismatch is detected as a configuration error instead of
// silently corrupting similarity semantics.
//
// Concurrency: writes are serialized behind a single writer lock (an
// in-process mutex plus an advisory flock on the store directory); reads may
// proceed concurrently with each other.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/gofrs/flock"
	chromem "github.com/philippgille/chromem-go"
)

var (
	// ErrEmptyStore indicates a search against a store that does not exist
	// or holds no records. Distinct from "no relevant match", which is not
	// an error.
	ErrEmptyStore = errors.New("knowledge store is empty or does not exist")

	// ErrPersistence indicates an underlying storage write failure.
	ErrPersistence = errors.New("knowledge store write failed")

	// ErrDimensionMismatch indicates an embedding whose dimension differs
	// from the dimension recorded at store creation.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrProviderMismatch indicates the active embedding provider differs
	// from the one the store was created with.
	ErrProviderMismatch = errors.New("embedding provider mismatch")
)

// collectionName is the single chromem collection holding all passages.
const collectionName = "passages"

// seqKey is the reserved metadata key carrying the insertion sequence used
// for deterministic tie-breaking. It is stripped from returned records.
const seqKey = "_seq"

// Record is a persisted retrievable unit: one embedded passage.
type Record struct {
	ID        string
	Text      string
	Embedding []float32
	Metadata  map[string]string
}

// Match pairs a record with its similarity to a query embedding.
type Match struct {
	Record     Record
	Similarity float32
}

// Store is a directory-persisted vector store. Safe for concurrent use.
type Store struct {
	dir           string
	embedderModel string
	logger        *slog.Logger

	mu       sync.RWMutex
	db       *chromem.DB
	col      *chromem.Collection
	manifest Manifest
	lock     *flock.Flock
	nextSeq  int64
}

// Open prepares a store rooted at dir for the given embedding model.
// If the directory already holds a store, it is loaded and its manifest
// validated against embedderModel; otherwise the store stays dormant until
// the first Upsert creates it.
func Open(dir, embedderModel string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Store{
		dir:           dir,
		embedderModel: embedderModel,
		logger:        logger,
		lock:          flock.New(filepath.Join(dir, ".lock")),
	}

	manifest, err := readManifest(dir)
	if errors.Is(err, os.ErrNotExist) {
		// Not created yet. First Upsert will create it.
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading store manifest: %w", err)
	}

	if manifest.EmbedderModel != embedderModel {
		return nil, fmt.Errorf("%w: store was created with %q, active provider is %q",
			ErrProviderMismatch, manifest.EmbedderModel, embedderModel)
	}

	if err := s.load(manifest); err != nil {
		return nil, err
	}

	logger.Debug("knowledge store loaded",
		"dir", dir, "records", s.col.Count(), "dimension", manifest.Dimension)
	return s, nil
}

// load opens the chromem database for an existing store.
func (s *Store) load(manifest Manifest) error {
	db, err := chromem.NewPersistentDB(s.recordsDir(), false)
	if err != nil {
		return fmt.Errorf("opening vector database: %w", err)
	}

	col, err := db.GetOrCreateCollection(collectionName, nil, noEmbedding)
	if err != nil {
		return fmt.Errorf("opening collection: %w", err)
	}

	s.db = db
	s.col = col
	s.manifest = manifest
	s.nextSeq = int64(col.Count())
	return nil
}

func (s *Store) recordsDir() string {
	return filepath.Join(s.dir, "records")
}

// noEmbedding is the collection embedding function. All embeddings are
// computed by the ingestion pipeline before records reach the store, so this
// must never be invoked.
func noEmbedding(context.Context, string) ([]float32, error) {
	return nil, errors.New("store does not compute embeddings")
}

// Exists reports whether the store has been created on disk.
func (s *Store) Exists() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.col != nil
}

// Count returns the number of persisted records, zero when the store does
// not exist yet.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.col == nil {
		return 0
	}
	return s.col.Count()
}

// Manifest returns a copy of the creation-time manifest. The zero value is
// returned while the store does not exist.
func (s *Store) Manifest() Manifest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.manifest
}

// Upsert writes a batch of records. The first successful call creates the
// store directory and its manifest. Records are validated as a whole before
// anything is written; a storage failure mid-batch is reported as
// ErrPersistence with prior records left intact.
func (s *Store) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dim := len(records[0].Embedding)
	if dim == 0 {
		return fmt.Errorf("%w: record %q has no embedding", ErrDimensionMismatch, records[0].ID)
	}
	for _, rec := range records {
		if len(rec.Embedding) != dim {
			return fmt.Errorf("%w: record %q has dimension %d, batch has %d",
				ErrDimensionMismatch, rec.ID, len(rec.Embedding), dim)
		}
	}
	if s.manifest.Dimension != 0 && dim != s.manifest.Dimension {
		return fmt.Errorf("%w: store dimension is %d, batch has %d",
			ErrDimensionMismatch, s.manifest.Dimension, dim)
	}

	if s.col == nil {
		if err := s.create(dim); err != nil {
			return err
		}
	}

	// Advisory lock on the store directory for the duration of the write.
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("%w: acquiring writer lock: %w", ErrPersistence, err)
	}
	defer func() {
		if err := s.lock.Unlock(); err != nil {
			s.logger.Warn("failed to release writer lock", "error", err)
		}
	}()

	docs := make([]chromem.Document, len(records))
	for i, rec := range records {
		metadata := make(map[string]string, len(rec.Metadata)+1)
		for k, v := range rec.Metadata {
			metadata[k] = v
		}
		metadata[seqKey] = strconv.FormatInt(s.nextSeq+int64(i), 10)

		docs[i] = chromem.Document{
			ID:        rec.ID,
			Content:   rec.Text,
			Embedding: rec.Embedding,
			Metadata:  metadata,
		}
	}

	if err := s.col.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	s.nextSeq += int64(len(records))

	s.logger.Debug("records upserted", "count", len(records), "total", s.col.Count())
	return nil
}

// create builds the on-disk layout on first write: directory, manifest and
// the backing database.
func (s *Store) create(dim int) error {
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return fmt.Errorf("%w: creating store directory: %w", ErrPersistence, err)
	}

	manifest := NewManifest(s.embedderModel, dim)
	if err := writeManifest(s.dir, manifest); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	if err := s.load(manifest); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	s.logger.Info("knowledge store created",
		"dir", s.dir, "embedder_model", s.embedderModel, "dimension", dim)
	return nil
}

// Search returns the k records most similar to the query embedding, ordered
// by similarity with ties broken by insertion order (earlier record wins).
// If the store holds fewer than k records, all of them are returned ranked.
// Searching a nonexistent or empty store fails with ErrEmptyStore.
func (s *Store) Search(ctx context.Context, embedding []float32, k int) ([]Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.col == nil || s.col.Count() == 0 {
		return nil, ErrEmptyStore
	}
	if k < 1 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	if len(embedding) != s.manifest.Dimension {
		return nil, fmt.Errorf("%w: query has dimension %d, store has %d",
			ErrDimensionMismatch, len(embedding), s.manifest.Dimension)
	}

	count := s.col.Count()
	if k > count {
		k = count
	}

	// Rank every record, not just the top k: records tying exactly at the
	// k boundary must be picked by insertion order, which the underlying
	// index knows nothing about. The index scores all records anyway.
	results, err := s.col.QueryEmbedding(ctx, embedding, count, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("similarity search failed: %w", err)
	}

	matches := make([]Match, 0, len(results))
	for _, res := range results {
		matches = append(matches, Match{
			Record: Record{
				ID:        res.ID,
				Text:      res.Content,
				Embedding: res.Embedding,
				Metadata:  stripSeq(res.Metadata),
			},
			Similarity: res.Similarity,
		})
	}

	// chromem orders by similarity; re-sort stably so exact ties resolve by
	// insertion sequence, earliest first.
	seqOf := func(m Match) int64 {
		return seqFromMetadata(results, m.Record.ID)
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return seqOf(matches[i]) < seqOf(matches[j])
	})

	return matches[:k], nil
}

func seqFromMetadata(results []chromem.Result, id string) int64 {
	for _, res := range results {
		if res.ID == id {
			if raw, ok := res.Metadata[seqKey]; ok {
				if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
					return n
				}
			}
		}
	}
	return 0
}

func stripSeq(metadata map[string]string) map[string]string {
	out := make(map[string]string, len(metadata))
	for k, v := range metadata {
		if k == seqKey {
			continue
		}
		out[k] = v
	}
	return out
}

// Persist verifies the store's durable location is intact and writable.
// The backing database persists every write synchronously, so this is a
// consistency check rather than a flush. A dormant store persists nothing
// and returns nil.
func (s *Store) Persist() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.col == nil {
		return nil
	}

	if _, err := os.Stat(manifestPath(s.dir)); err != nil {
		return fmt.Errorf("%w: manifest missing: %w", ErrPersistence, err)
	}
	info, err := os.Stat(s.recordsDir())
	if err != nil {
		return fmt.Errorf("%w: records directory unavailable: %w", ErrPersistence, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: records path is not a directory", ErrPersistence)
	}
	return nil
}

// Close releases store resources. The database itself needs no teardown;
// per-write locks are already released.
func (s *Store) Close() error {
	s.logger.Debug("knowledge store closed", "dir", s.dir)
	return nil
}
