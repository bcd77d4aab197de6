package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/lorekb/lore/internal/store"
)

const tracerName = "github.com/lorekb/lore/internal/rag"

// State is the lifecycle state of the assembled system.
type State int

const (
	// StateUninitialized means the knowledge store holds no records yet.
	// Ingesting a document is the way out.
	StateUninitialized State = iota

	// StateDegraded means the model provider is unreachable. Queries and
	// learning are refused until a probe succeeds.
	StateDegraded

	// StateReady means the provider answered a probe and the store holds
	// at least one record.
	StateReady
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateDegraded:
		return "degraded"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Provider is the full model-provider surface the system needs: embeddings
// for ingestion and retrieval, generation for answers, and a health probe.
type Provider interface {
	Embedder
	Generator
	HealthChecker
}

// Options tunes the assembled system. Zero values fall back to the
// component defaults.
type Options struct {
	ChunkSize       int
	ChunkOverlap    int
	TopK            int
	Temperature     float32
	MaxContextChars int
}

// System wires the splitter, ingestion pipeline, retrieval engine and
// feedback learner behind a single lifecycle. It is safe for concurrent
// use; the lifecycle state is guarded, provider calls are not serialized.
type System struct {
	provider Provider
	index    VectorIndex
	pipeline *Pipeline
	engine   *Engine
	learner  *Learner
	logger   *slog.Logger
	tracer   trace.Tracer

	mu     sync.Mutex
	state  State
	reason error
}

// NewSystem assembles the components and probes the provider and the store
// to establish the initial state. A failed probe is not an error here; it
// leaves the system degraded and queries will say so.
func NewSystem(ctx context.Context, provider Provider, index VectorIndex, opts Options, logger *slog.Logger) (*System, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var splitterOpts []SplitterOption
	if opts.ChunkSize > 0 {
		splitterOpts = append(splitterOpts, WithChunkSize(opts.ChunkSize))
	}
	if opts.ChunkOverlap > 0 {
		splitterOpts = append(splitterOpts, WithChunkOverlap(opts.ChunkOverlap))
	}
	splitter := NewSplitter(splitterOpts...)

	pipeline, err := NewPipeline(splitter, provider, index, logger)
	if err != nil {
		return nil, fmt.Errorf("creating pipeline: %w", err)
	}

	engine := NewEngine(provider, provider, index, EngineOptions{
		TopK:            opts.TopK,
		Temperature:     opts.Temperature,
		MaxContextChars: opts.MaxContextChars,
	}, logger)

	s := &System{
		provider: provider,
		index:    index,
		pipeline: pipeline,
		engine:   engine,
		learner:  NewLearner(pipeline, logger),
		logger:   logger,
		tracer:   otel.Tracer(tracerName),
	}
	s.refresh(ctx)
	return s, nil
}

// Close releases the ingestion pipeline's worker pool. The system must not
// be used afterwards.
func (s *System) Close() {
	s.pipeline.Close()
}

// State returns the current lifecycle state and, when not ready, the
// reason. The reason wraps ErrConnectivity or store.ErrEmptyStore.
func (s *System) State() (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.reason
}

// Count returns the number of stored records.
func (s *System) Count() int {
	return s.index.Count()
}

// refresh re-probes the provider and the store and updates the state.
func (s *System) refresh(ctx context.Context) State {
	var (
		state  State
		reason error
	)
	switch err := s.provider.Ping(ctx); {
	case err != nil:
		state = StateDegraded
		reason = fmt.Errorf("%w: %w", ErrConnectivity, err)
	case !s.index.Exists() || s.index.Count() == 0:
		state = StateUninitialized
		reason = store.ErrEmptyStore
	default:
		state = StateReady
	}

	s.mu.Lock()
	if state != s.state {
		s.logger.Info("state changed", "from", s.state.String(), "to", state.String())
	}
	s.state = state
	s.reason = reason
	s.mu.Unlock()
	return state
}

// ensureReady returns nil when the system is ready, re-probing once if it
// was not the last time anyone looked.
func (s *System) ensureReady(ctx context.Context) error {
	s.mu.Lock()
	state, reason := s.state, s.reason
	s.mu.Unlock()

	if state == StateReady {
		return nil
	}
	if s.refresh(ctx) == StateReady {
		return nil
	}
	s.mu.Lock()
	reason = s.reason
	s.mu.Unlock()
	return fmt.Errorf("%w: %w", ErrNotReady, reason)
}

// Ingest adds a document to the knowledge store. It is allowed in every
// state: it is the designated path out of an uninitialized system. A
// successful ingest of a non-blank document makes the system ready.
func (s *System) Ingest(ctx context.Context, text string, metadata map[string]string) (int, error) {
	ctx, span := s.tracer.Start(ctx, "rag.ingest")
	defer span.End()

	chunks, err := s.pipeline.Ingest(ctx, text, metadata)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "ingest failed")
		return 0, err
	}
	span.SetAttributes(attribute.Int("rag.chunks", chunks))

	if chunks > 0 {
		// Embedding succeeded, so the provider is reachable and the
		// store is no longer empty.
		s.mu.Lock()
		if s.state != StateReady {
			s.logger.Info("state changed", "from", s.state.String(), "to", StateReady.String())
		}
		s.state = StateReady
		s.reason = nil
		s.mu.Unlock()
	}
	return chunks, nil
}

// Query answers a question from the stored knowledge. The system must be
// ready; if it is not, one re-probe is attempted before refusing. A blank
// query is rejected outright, before even the readiness probe.
func (s *System) Query(ctx context.Context, text string) (*Answer, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyQuery
	}
	if err := s.ensureReady(ctx); err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "rag.query")
	defer span.End()

	answer, err := s.engine.Query(ctx, text)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		s.demote(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("rag.sources", len(answer.Sources)))
	return answer, nil
}

// Learn stores a verified question/answer pair. The system must be ready.
func (s *System) Learn(ctx context.Context, query, answer string) (string, error) {
	if err := s.ensureReady(ctx); err != nil {
		return "", err
	}

	ctx, span := s.tracer.Start(ctx, "rag.learn")
	defer span.End()

	msg, err := s.learner.Learn(ctx, query, answer)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "learn failed")
		s.demote(err)
		return "", err
	}
	return msg, nil
}

// demote downgrades the state when an operation surfaced a condition the
// lifecycle tracks. Other failures leave the state alone.
func (s *System) demote(err error) {
	var state State
	switch {
	case errors.Is(err, ErrConnectivity):
		state = StateDegraded
	case errors.Is(err, store.ErrEmptyStore):
		state = StateUninitialized
	default:
		return
	}
	s.mu.Lock()
	if s.state != state {
		s.logger.Info("state changed", "from", s.state.String(), "to", state.String())
	}
	s.state = state
	s.reason = err
	s.mu.Unlock()
}
