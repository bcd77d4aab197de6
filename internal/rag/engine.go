package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/lorekb/lore/internal/store"
)

// Retrieval and generation defaults, matching the reference deployment.
const (
	DefaultTopK            = 3
	DefaultTemperature     = 0.3
	DefaultMaxContextChars = 6000
)

// answerPromptFormat stuffs the retrieved passages and the question into a
// single prompt. The instruction to admit ignorance keeps the model from
// inventing answers when retrieval misses.
const answerPromptFormat = `Use the following pieces of context to answer the question at the end. If you don't know the answer, just say that you don't know, don't try to make up an answer.

%s

Question: %s
Helpful Answer:`

// Source is one retrieved passage that conditioned an answer.
type Source struct {
	Text       string
	Metadata   map[string]string
	Similarity float32
}

// Answer is a generated response paired with the passages used to build its
// prompt, in rank order.
type Answer struct {
	Text    string
	Sources []Source
}

// EngineOptions tune retrieval and generation.
type EngineOptions struct {
	// TopK is the number of passages retrieved per query.
	TopK int

	// Temperature is the fixed sampling temperature, favoring determinism
	// over creativity at the default 0.3.
	Temperature float32

	// MaxContextChars bounds the stuffed context block, in runes. When the
	// retrieved passages would overflow it, the lowest-ranked passages are
	// dropped first.
	MaxContextChars int
}

func (o EngineOptions) withDefaults() EngineOptions {
	if o.TopK < 1 {
		o.TopK = DefaultTopK
	}
	if o.Temperature == 0 {
		o.Temperature = DefaultTemperature
	}
	if o.MaxContextChars < 1 {
		o.MaxContextChars = DefaultMaxContextChars
	}
	return o
}

// Engine answers queries by retrieving the most similar stored passages and
// conditioning the language model on them.
type Engine struct {
	embedder  Embedder
	generator Generator
	index     VectorIndex
	opts      EngineOptions
	logger    *slog.Logger
}

// NewEngine creates a retrieval-QA engine.
func NewEngine(embedder Embedder, generator Generator, index VectorIndex, opts EngineOptions, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		embedder:  embedder,
		generator: generator,
		index:     index,
		opts:      opts.withDefaults(),
		logger:    logger,
	}
}

// Query answers a question from the knowledge store.
//
// Blank queries and empty stores are rejected before any provider call.
// Provider failures surface as ErrConnectivity with the cause preserved.
func (e *Engine) Query(ctx context.Context, text string) (*Answer, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyQuery
	}
	if !e.index.Exists() || e.index.Count() == 0 {
		return nil, store.ErrEmptyStore
	}

	queryEmbedding, err := e.embedder.EmbedOne(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: embedding query: %w", ErrConnectivity, err)
	}

	matches, err := e.index.Search(ctx, queryEmbedding, e.opts.TopK)
	if err != nil {
		return nil, fmt.Errorf("retrieving passages: %w", err)
	}

	sources := e.stuff(matches)
	prompt := buildPrompt(sources, text)

	answer, err := e.generator.Generate(ctx, prompt, e.opts.Temperature)
	if err != nil {
		return nil, fmt.Errorf("%w: generating answer: %w", ErrConnectivity, err)
	}

	e.logger.Debug("query answered",
		"retrieved", len(matches), "stuffed", len(sources), "prompt_runes", utf8.RuneCountInString(prompt))

	return &Answer{
		Text:    strings.TrimSpace(answer),
		Sources: sources,
	}, nil
}

// stuff selects the passages that fit the context budget, in rank order.
// A passage is either fully in or dropped, lowest rank first; only the
// top-ranked passage is ever truncated, and only when it alone exceeds the
// whole budget.
func (e *Engine) stuff(matches []store.Match) []Source {
	budget := e.opts.MaxContextChars
	sources := make([]Source, 0, len(matches))

	for rank, m := range matches {
		n := utf8.RuneCountInString(m.Record.Text)
		if n > budget {
			if rank == 0 {
				sources = append(sources, Source{
					Text:       string([]rune(m.Record.Text)[:budget]),
					Metadata:   m.Record.Metadata,
					Similarity: m.Similarity,
				})
				budget = 0
			}
			break
		}
		sources = append(sources, Source{
			Text:       m.Record.Text,
			Metadata:   m.Record.Metadata,
			Similarity: m.Similarity,
		})
		budget -= n
	}
	return sources
}

func buildPrompt(sources []Source, question string) string {
	passages := make([]string, len(sources))
	for i, s := range sources {
		passages[i] = s.Text
	}
	return fmt.Sprintf(answerPromptFormat, strings.Join(passages, "\n\n"), question)
}
