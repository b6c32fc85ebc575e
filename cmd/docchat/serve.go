package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docchat/internal/config"
	"github.com/kailas-cloud/docchat/internal/domain/language"
	logpkg "github.com/kailas-cloud/docchat/internal/logger"
	"github.com/kailas-cloud/docchat/internal/metrics"
	passagerepo "github.com/kailas-cloud/docchat/internal/repository/passage"
	ratelimitrepo "github.com/kailas-cloud/docchat/internal/repository/ratelimit"
	chiTransport "github.com/kailas-cloud/docchat/internal/transport/chi"
	chatuc "github.com/kailas-cloud/docchat/internal/usecase/chat"
	healthuc "github.com/kailas-cloud/docchat/internal/usecase/health"
	retrievaluc "github.com/kailas-cloud/docchat/internal/usecase/retrieval"
	textopuc "github.com/kailas-cloud/docchat/internal/usecase/textop"
	"github.com/kailas-cloud/docchat/internal/version"
)

func newServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runServe(configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "config file (default: config/$ENV.yaml)")
	return cmd
}

// loadConfig reads an explicit file, or the file matching $ENV.
func loadConfig(path string) (config.Config, string, error) {
	env := config.GetEnv()
	var (
		cfg config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load(env)
	}
	if err != nil {
		return config.Config{}, "", fmt.Errorf("load config: %w", err)
	}
	return cfg, env, nil
}

func runServe(configPath string) error {
	cfg, env, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting docchat API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("storage_driver", cfg.Storage.Driver),
		zap.String("model", cfg.Model.Name),
	)

	ctx := context.Background()
	stores, err := openBackends(ctx, &cfg, logger)
	if err != nil {
		return err
	}
	defer stores.Close()

	// Register metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterPipelineMetrics()

	passages := passagerepo.New(stores.redis)
	if err := passages.EnsureIndex(ctx, cfg.Embedding.Dimensions); err != nil {
		return fmt.Errorf("ensure chunk index: %w", err)
	}

	embedder, embeddingProvider := buildEmbedder(&cfg.Embedding, stores.redis, logger)
	model := buildChatModel(&cfg.Model, logger)
	logger.Info("Model providers created",
		zap.String("embedding_provider", cfg.Embedding.Provider),
		zap.String("embedding_model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
	)

	languages, err := parseLanguages(cfg.Chat.Languages)
	if err != nil {
		return err
	}

	// Pass a nil interface (not a typed nil pointer) when rate limiting is off.
	var limiter chatuc.RateLimiter
	if cfg.RateLimit.Requests > 0 {
		limiter = ratelimitrepo.New(stores.redis, cfg.RateLimit.Requests,
			time.Duration(cfg.RateLimit.WindowSec)*time.Second)
	}

	requestTimeout := time.Duration(cfg.Chat.RequestTimeoutSec) * time.Second
	chatSvc := chatuc.New(
		stores.documents,
		stores.turns,
		retrievaluc.New(passages, embedder),
		model,
		limiter,
		chatuc.Config{
			TopK:            cfg.Chat.TopK,
			HistoryLimit:    cfg.Chat.HistoryLimit,
			DefaultLanguage: language.Language(cfg.Chat.DefaultLanguage),
			Languages:       languages,
			RequestTimeout:  requestTimeout,
			PersistTimeout:  time.Duration(cfg.Chat.PersistTimeoutSec) * time.Second,
		},
	)
	textopSvc := textopuc.New(model, requestTimeout)
	healthSvc := healthuc.New(stores.pingers(), map[string]healthuc.ProviderChecker{
		"model":     model,
		"embedding": embeddingProvider,
	})

	server := chiTransport.NewServer(chatSvc, textopSvc, healthSvc)

	r := chi.NewRouter()
	r.Use(chiTransport.JSONRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(chiTransport.WideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.Tokens))
	r.Use(metrics.Middleware())
	server.Register(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	case <-quit:
		logger.Info("Received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
	return nil
}
