package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/lorekb/lore/internal/store"
)

const (
	// embedBatchSize is the number of chunk texts sent to the embedding
	// provider per request.
	embedBatchSize = 16

	// embedWorkers bounds concurrent embedding requests so one large
	// document cannot monopolize the provider.
	embedWorkers = 4
)

// Pipeline turns raw document text into persisted, retrievable records:
// split into chunks, embed, upsert as a single batch.
type Pipeline struct {
	splitter *Splitter
	embedder Embedder
	index    VectorIndex
	pool     *ants.Pool
	logger   *slog.Logger
}

// NewPipeline creates an ingestion pipeline. Close must be called to release
// the embedding worker pool.
func NewPipeline(splitter *Splitter, embedder Embedder, index VectorIndex, logger *slog.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := ants.NewPool(embedWorkers)
	if err != nil {
		return nil, fmt.Errorf("creating embedding worker pool: %w", err)
	}

	return &Pipeline{
		splitter: splitter,
		embedder: embedder,
		index:    index,
		pool:     pool,
		logger:   logger,
	}, nil
}

// Close releases the worker pool.
func (p *Pipeline) Close() {
	p.pool.Release()
}

// Ingest chunks text, embeds every chunk and writes all resulting records in
// one batch. It returns the number of chunks written. An empty document is a
// successful no-op, not an error. The caller's metadata is attached to every
// chunk of the document.
func (p *Pipeline) Ingest(ctx context.Context, text string, metadata map[string]string) (int, error) {
	chunks := p.splitter.Split(text)
	if len(chunks) == 0 {
		p.logger.Debug("empty document, nothing ingested")
		return 0, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	embeddings, err := p.embedAll(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("%w: embedding %d chunks: %w", ErrIngestion, len(chunks), err)
	}

	ingestedAt := time.Now().UTC().Format(time.RFC3339)
	records := make([]store.Record, len(chunks))
	for i, chunk := range chunks {
		md := make(map[string]string, len(metadata)+2)
		for k, v := range metadata {
			md[k] = v
		}
		md["chunk_seq"] = strconv.Itoa(chunk.Seq)
		md["ingested_at"] = ingestedAt

		records[i] = store.Record{
			ID:        uuid.NewString(),
			Text:      chunk.Text,
			Embedding: embeddings[i],
			Metadata:  md,
		}
	}

	// One batch: either every chunk of the document lands or the store
	// reports the failure. Store error kinds pass through unchanged.
	if err := p.index.Upsert(ctx, records); err != nil {
		return 0, err
	}

	p.logger.Info("document ingested", "chunks", len(chunks), "total_records", p.index.Count())
	return len(chunks), nil
}

// embedAll embeds texts in batches through the worker pool, preserving input
// order. The first error wins; remaining batches are abandoned.
func (p *Pipeline) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) <= embedBatchSize {
		return p.embedBatch(ctx, texts)
	}

	out := make([][]float32, len(texts))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
	}
	failed := func() bool {
		mu.Lock()
		defer mu.Unlock()
		return firstErr != nil
	}

	for start := 0; start < len(texts); start += embedBatchSize {
		end := min(start+embedBatchSize, len(texts))
		if failed() {
			break
		}

		wg.Add(1)
		err := p.pool.Submit(func() {
			defer wg.Done()
			if failed() || ctx.Err() != nil {
				return
			}
			vecs, err := p.embedBatch(ctx, texts[start:end])
			if err != nil {
				fail(err)
				return
			}
			copy(out[start:end], vecs)
		})
		if err != nil {
			wg.Done()
			fail(fmt.Errorf("submitting embedding batch: %w", err))
			break
		}
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Pipeline) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("provider returned %d embeddings for %d texts", len(vecs), len(texts))
	}
	return vecs, nil
}
