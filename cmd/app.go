package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lorekb/lore/internal/config"
	"github.com/lorekb/lore/internal/log"
	"github.com/lorekb/lore/internal/observability"
	"github.com/lorekb/lore/internal/provider/ollama"
	"github.com/lorekb/lore/internal/rag"
	"github.com/lorekb/lore/internal/store"
)

// app bundles the wired components every subcommand needs.
type app struct {
	cfg      *config.Config
	logger   log.Logger
	client   *ollama.Client
	store    *store.Store
	system   *rag.System
	shutdown func(context.Context) error
}

// newApp loads configuration and wires logger, tracing, provider client,
// knowledge store and the system on top of them.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	logger := log.New(log.Config{Level: parseLevel(cfg.LogLevel), JSON: cfg.LogJSON})
	slog.SetDefault(logger)

	shutdown, err := observability.Setup(ctx, observability.Config{
		Enabled:     cfg.Otel.Enabled,
		Endpoint:    cfg.Otel.Endpoint,
		ServiceName: cfg.Otel.ServiceName,
		Environment: cfg.Otel.Environment,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("setting up tracing: %w", err)
	}

	client := ollama.New(ollama.Options{
		BaseURL:    cfg.OllamaHost,
		ChatModel:  cfg.ChatModel,
		EmbedModel: cfg.EmbedderModel,
		KeepAlive:  cfg.KeepAlive,
		Timeout:    cfg.ProviderTimeout,
		MaxRetries: cfg.MaxRetries,
	})

	st, err := store.Open(cfg.DataDir, cfg.EmbedderModel, logger)
	if err != nil {
		_ = shutdown(ctx)
		return nil, fmt.Errorf("opening knowledge store: %w", err)
	}

	system, err := rag.NewSystem(ctx, client, st, rag.Options{
		ChunkSize:       cfg.ChunkSize,
		ChunkOverlap:    cfg.ChunkOverlap,
		TopK:            cfg.TopK,
		Temperature:     cfg.Temperature,
		MaxContextChars: cfg.MaxContextChars,
	}, logger)
	if err != nil {
		_ = st.Close()
		_ = shutdown(ctx)
		return nil, err
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		client:   client,
		store:    st,
		system:   system,
		shutdown: shutdown,
	}, nil
}

// close releases the system's worker pool, the store lock and flushes
// pending trace spans.
func (a *app) close(ctx context.Context) {
	a.system.Close()
	if err := a.store.Close(); err != nil {
		a.logger.Warn("closing knowledge store", "error", err)
	}
	if err := a.shutdown(ctx); err != nil {
		a.logger.Warn("flushing traces", "error", err)
	}
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// friendly appends an actionable hint to errors the user can fix
// themselves. The original error stays visible for diagnostics.
func friendly(err error) error {
	switch {
	case errors.Is(err, rag.ErrConnectivity):
		return fmt.Errorf("%w\n\nCannot reach the Ollama server. Start it with:\n  ollama serve", err)
	case errors.Is(err, store.ErrEmptyStore):
		return fmt.Errorf("%w\n\nThe knowledge base is empty. Add a document first:\n  lore ingest notes.txt", err)
	case errors.Is(err, store.ErrProviderMismatch):
		return fmt.Errorf("%w\n\nThe store was built with a different embedding model. Either restore\nembedder_model in ~/.lore/config.yaml or remove the store directory\nand re-ingest your documents", err)
	case errors.Is(err, rag.ErrEmptyQuery):
		return errors.New("the question is empty")
	default:
		return err
	}
}
