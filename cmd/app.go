package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"

	"golang.org/x/time/rate"

	"github.com/replymate/replymate/db"
	"github.com/replymate/replymate/internal/backoff"
	"github.com/replymate/replymate/internal/config"
	"github.com/replymate/replymate/internal/genai"
	"github.com/replymate/replymate/internal/knowledge"
	"github.com/replymate/replymate/internal/log"
	"github.com/replymate/replymate/internal/mailstore"
	"github.com/replymate/replymate/internal/rag"
	"github.com/replymate/replymate/internal/respond"
	"github.com/replymate/replymate/internal/vector"
)

// app holds the wired components shared by the CLI commands.
type app struct {
	cfg       *config.Config
	logger    log.Logger
	db        *sql.DB
	store     *knowledge.Store
	retriever *rag.Retriever
	responder *respond.Responder
	mails     *mailstore.Store
}

// newApp loads configuration, opens the database, and wires the retrieval
// and generation stack. The vector index is rebuilt from stored embeddings
// so retrieval works immediately.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger := log.New(log.Config{Level: cfg.SlogLevel(), JSON: cfg.LogJSON})

	sqlDB, err := db.Open(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	embedder, generator, err := buildProvider(ctx, cfg, logger)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	retry := backoff.Policy{
		MaxAttempts:     cfg.RetryMaxAttempts,
		InitialInterval: cfg.RetryInitialInterval,
		MaxInterval:     cfg.RetryMaxInterval,
	}

	index, err := buildIndex(ctx, cfg, embedder, logger)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	store := knowledge.New(knowledge.NewSQLiteQuerier(sqlDB), embedder, index,
		cfg.Categories, retry, logger)
	if _, err := store.Rebuild(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("rebuilding vector index: %w", err)
	}

	retriever := rag.NewRetriever(embedder, index, store, retry, logger)
	responder := respond.New(retriever, generator, respond.Options{
		TopK:          cfg.RetrievalTopK,
		MinScore:      cfg.MinScore,
		ContextBudget: cfg.ContextBudget,
		Retry:         retry,
		Circuit:       respond.DefaultCircuitConfig(),
		RateLimit:     parseRateLimit(),
	}, logger)

	return &app{
		cfg:       cfg,
		logger:    logger,
		db:        sqlDB,
		store:     store,
		retriever: retriever,
		responder: responder,
		mails:     mailstore.New(sqlDB, logger),
	}, nil
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		a.logger.Warn("closing database", "error", err)
	}
}

// buildProvider selects the embedding and generation backend.
func buildProvider(ctx context.Context, cfg *config.Config, logger log.Logger) (genai.Embedder, genai.Generator, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		gemini, err := genai.NewGemini(ctx, cfg, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("initializing gemini provider: %w", err)
		}
		return genai.NewCachedEmbedder(gemini), gemini, nil
	case config.ProviderMock:
		offline := genai.NewOffline()
		return genai.NewCachedEmbedder(offline), offline, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", config.ErrInvalidProvider, cfg.Provider)
	}
}

// buildIndex picks the vector index backend: pgvector when a Postgres URL is
// configured, otherwise the in-memory index rebuilt from SQLite rows.
func buildIndex(ctx context.Context, cfg *config.Config, embedder genai.Embedder, logger log.Logger) (vector.Index, error) {
	if cfg.PostgresURL == "" {
		return vector.NewMemory(), nil
	}

	// The pgvector column needs a fixed dimensionality; probe the embedder
	// for it rather than hardcoding a per-model table.
	probe, err := embedder.Embed(ctx, "dimension probe")
	if err != nil {
		return nil, fmt.Errorf("probing embedder dimensionality: %w", err)
	}

	pool, err := vector.NewPostgresPool(ctx, cfg.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres index: %w", err)
	}
	logger.Info("using pgvector index", "dimension", len(probe))
	return vector.NewPostgres(ctx, pool, len(probe), logger)
}

// parseRateLimit reads REPLYMATE_RATE_LIMIT from the environment.
// Returns 0 (no limit) if unset or invalid.
func parseRateLimit() rate.Limit {
	v := os.Getenv("REPLYMATE_RATE_LIMIT")
	if v == "" {
		return 0
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil || n <= 0 {
		return 0
	}
	return rate.Limit(n)
}
