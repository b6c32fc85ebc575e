package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docchat/internal/config"
	dbRedis "github.com/kailas-cloud/docchat/internal/db/redis"
	"github.com/kailas-cloud/docchat/internal/db/sqlite"
	"github.com/kailas-cloud/docchat/internal/domain"
	domconv "github.com/kailas-cloud/docchat/internal/domain/conversation"
	domdoc "github.com/kailas-cloud/docchat/internal/domain/document"
	"github.com/kailas-cloud/docchat/internal/domain/language"
	"github.com/kailas-cloud/docchat/internal/metrics"
	conversationrepo "github.com/kailas-cloud/docchat/internal/repository/conversation"
	documentrepo "github.com/kailas-cloud/docchat/internal/repository/document"
	"github.com/kailas-cloud/docchat/internal/repository/embcache"
	openaiTransport "github.com/kailas-cloud/docchat/internal/transport/openai"
	healthuc "github.com/kailas-cloud/docchat/internal/usecase/health"
)

// documentStore is what the commands need from either document repository.
type documentStore interface {
	FindOwned(ctx context.Context, id, userID string) (domdoc.Document, error)
	Put(ctx context.Context, doc *domdoc.Document) error
}

// conversationStore is what the chat service needs from either conversation repository.
type conversationStore interface {
	Append(ctx context.Context, t *domconv.Turn) error
	Recent(ctx context.Context, documentID string, limit int) ([]domconv.Turn, error)
}

// backends holds the opened storage. Redis is always present because the chunk
// index lives there; documents and conversations may move to SQLite.
type backends struct {
	redis     *dbRedis.Store
	sqlite    *sqlite.Store
	documents documentStore
	turns     conversationStore
}

func openBackends(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*backends, error) {
	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("create redis store: %w", err)
	}
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		store.Close()
		return nil, fmt.Errorf("redis not ready: %w", err)
	}
	logger.Info("Connected to redis", zap.Strings("addrs", cfg.Database.Addrs))

	b := &backends{redis: store}
	switch cfg.Storage.Driver {
	case "sqlite":
		sq, err := sqlite.Open(cfg.Storage.SQLitePath)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		logger.Info("Opened sqlite", zap.String("path", cfg.Storage.SQLitePath))
		b.sqlite = sq
		b.documents = documentrepo.NewSQL(sq)
		b.turns = conversationrepo.NewSQL(sq)
	default:
		b.documents = documentrepo.New(store)
		b.turns = conversationrepo.New(store)
	}
	return b, nil
}

// pingers lists the databases the health check must reach.
func (b *backends) pingers() map[string]healthuc.DBPinger {
	out := map[string]healthuc.DBPinger{"database": b.redis}
	if b.sqlite != nil {
		out["sqlite"] = b.sqlite
	}
	return out
}

func (b *backends) Close() {
	if b.sqlite != nil {
		_ = b.sqlite.Close()
	}
	b.redis.Close()
}

// buildEmbedder assembles the query embedder chain: OpenAI -> Cached -> Instruction.
// The instruction wraps the cache so the key covers the text actually embedded.
func buildEmbedder(
	cfg *config.EmbeddingConfig, store *dbRedis.Store, logger *zap.Logger,
) (domain.Embedder, *openaiTransport.Embedder) {
	base := openaiTransport.NewEmbedder(&openaiTransport.EmbedderConfig{
		APIKey:     cfg.APIKey,
		BaseURL:    cfg.BaseURL,
		Model:      cfg.Model,
		Dimensions: cfg.Dimensions,
		Provider:   cfg.Provider,
		Logger:     logger,
	})

	var embedder domain.Embedder = embcache.New(
		base, store, cfg.Model, time.Duration(cfg.CacheTTLSec)*time.Second,
		metrics.EmbeddingCacheTotal, logger,
	)
	if cfg.QueryInstruction != "" {
		embedder = domain.NewInstructionEmbedder(embedder, cfg.QueryInstruction)
	}
	return embedder, base
}

func buildChatModel(cfg *config.ModelConfig, logger *zap.Logger) *openaiTransport.Chat {
	return openaiTransport.NewChat(&openaiTransport.ChatConfig{
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		Model:       cfg.Name,
		Temperature: cfg.Temperature,
		MaxRetries:  cfg.MaxRetries,
		Logger:      logger,
	})
}

// parseLanguages converts configured names, falling back to the built-in list when empty.
func parseLanguages(names []string) ([]language.Language, error) {
	if len(names) == 0 {
		return nil, nil
	}
	out := make([]language.Language, 0, len(names))
	for _, n := range names {
		l, err := language.Parse(n, language.Supported)
		if err != nil {
			return nil, fmt.Errorf("chat.languages: %w", err)
		}
		out = append(out, l)
	}
	return out, nil
}
