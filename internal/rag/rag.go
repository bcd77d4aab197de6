package rag

import (
	"context"
	"errors"

	"github.com/lorekb/lore/internal/store"
)

var (
	// ErrConnectivity indicates an embedding or language-model provider is
	// unreachable or timed out. The underlying cause is preserved through
	// error wrapping for diagnostics.
	ErrConnectivity = errors.New("model provider unreachable")

	// ErrIngestion indicates a chunking or embedding failure during ingest.
	// Previously stored records are unaffected.
	ErrIngestion = errors.New("ingestion failed")

	// ErrEmptyQuery indicates a blank query, rejected before any provider
	// call is made.
	ErrEmptyQuery = errors.New("query text is empty")

	// ErrLearn indicates a feedback composition or ingestion failure.
	// Existing records are unaffected.
	ErrLearn = errors.New("feedback learning failed")

	// ErrNotReady indicates a query or learn attempt against a system that
	// is uninitialized or degraded. It wraps the underlying reason
	// (ErrConnectivity or store.ErrEmptyStore).
	ErrNotReady = errors.New("system not ready")
)

// Embedder maps text to fixed-dimension vectors. The same provider/model
// must serve both ingestion and queries; the store's manifest enforces it.
type Embedder interface {
	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedOne returns the vector for a single text.
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// Generator produces text from a prompt at a given sampling temperature.
type Generator interface {
	Generate(ctx context.Context, prompt string, temperature float32) (string, error)
}

// HealthChecker reports whether the model provider is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// VectorIndex is the slice of the vector store the pipeline and engine
// depend on.
type VectorIndex interface {
	// Upsert writes a batch of records; the first successful call creates
	// the store.
	Upsert(ctx context.Context, records []store.Record) error

	// Search returns the k most similar records, ranked.
	Search(ctx context.Context, embedding []float32, k int) ([]store.Match, error)

	// Exists reports whether the store has been created.
	Exists() bool

	// Count returns the number of stored records.
	Count() int
}
