package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gorm.io/gorm"

	"ragchat/config"
	"ragchat/llm"
	"ragchat/llm/providers"
	"ragchat/llm/vector"
	"ragchat/logger"
	"ragchat/pubsub"
	"ragchat/rag"
	"ragchat/server"
	"ragchat/store"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx := context.Background()

	db, err := store.Open(cfg.DBDriver, cfg.DBDSN, log)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	docs := store.NewDocumentStore(db)
	logs := store.NewQueryLogStore(db)

	vectors, err := buildVectorStore(ctx, cfg, db, docs, log)
	if err != nil {
		return fmt.Errorf("vector backend %s: %w", cfg.VectorBackend, err)
	}
	defer vectors.Close()

	embedder, err := buildEmbeddingService(ctx, cfg)
	if err != nil {
		return fmt.Errorf("embedding models: %w", err)
	}

	registry, err := providers.BuildRegistry(ctx, providers.RegistryConfig{
		ModelIDs:      cfg.ChatModels,
		DefaultModel:  cfg.DefaultModel,
		GeminiAPIKey:  cfg.GeminiAPIKey,
		OpenAIAPIKey:  cfg.OpenAIAPIKey,
		OpenAIBaseURL: cfg.OpenAIBaseURL,
	})
	if err != nil {
		return fmt.Errorf("chat models: %w", err)
	}

	broker := pubsub.NewBroker[llm.QueryOutcome]()
	defer broker.Shutdown()

	recorderCtx, stopRecorder := context.WithCancel(ctx)
	defer stopRecorder()
	go store.NewRecorder(logs, broker, log).Run(recorderCtx)

	policy := rag.NewPolicy(embedder, vectors, docs, cfg.TopK, cfg.SimilarityThreshold, log)
	generator := rag.NewGenerator(registry, cfg.MaxOutputTokens, log)
	svc := rag.NewService(policy, generator, broker, log)

	srv := server.New(cfg.HTTPAddr, server.Dependencies{
		RAG:       svc,
		Models:    registry,
		Documents: docs,
		QueryLogs: logs,
		Vectors:   vectors,
		Logger:    log,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	log.Info("server listening", "addr", cfg.HTTPAddr, "vector_backend", cfg.VectorBackend)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		log.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func buildEmbeddingService(ctx context.Context, cfg config.Config) (*vector.EmbeddingService, error) {
	docEmb, err := providers.NewEmbedder(ctx, &providers.EmbeddingConfig{
		APIKey:  cfg.EmbeddingAPIKey,
		BaseURL: cfg.EmbeddingBaseURL,
		Model:   cfg.DocEmbeddingModel,
	})
	if err != nil {
		return nil, err
	}

	queryEmb := docEmb
	if cfg.QueryEmbeddingModel != cfg.DocEmbeddingModel {
		queryEmb, err = providers.NewEmbedder(ctx, &providers.EmbeddingConfig{
			APIKey:  cfg.EmbeddingAPIKey,
			BaseURL: cfg.EmbeddingBaseURL,
			Model:   cfg.QueryEmbeddingModel,
		})
		if err != nil {
			return nil, err
		}
	}

	return vector.NewEmbeddingService(docEmb, queryEmb, cfg.EmbeddingDim), nil
}

func buildVectorStore(ctx context.Context, cfg config.Config, db *gorm.DB, docs *store.DocumentStore, log *slog.Logger) (vector.VectorStore, error) {
	storeCfg := vector.StoreConfig{
		Dim:       cfg.EmbeddingDim,
		IndexName: cfg.Redis.IndexName,
		KeyPrefix: "doc:",
	}

	switch cfg.VectorBackend {
	case "pgvector":
		if cfg.DBDriver != "postgres" {
			return nil, fmt.Errorf("pgvector backend requires the postgres db driver")
		}
		return vector.NewPGStore(db, storeCfg), nil

	case "redis":
		return vector.NewRedisStore(ctx, storeCfg, vector.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})

	case "memory":
		ms := vector.NewMemoryStore(storeCfg)
		if err := hydrateMemoryStore(ctx, ms, docs); err != nil {
			return nil, fmt.Errorf("hydrate memory index: %w", err)
		}
		if n, err := ms.Count(ctx); err == nil {
			log.Info("memory vector index hydrated", "documents", n)
		}
		return ms, nil

	default:
		return nil, fmt.Errorf("unknown vector backend %q", cfg.VectorBackend)
	}
}

// hydrateMemoryStore loads every persisted embedding into the in-process
// index at boot.
func hydrateMemoryStore(ctx context.Context, ms *vector.MemoryStore, docs *store.DocumentStore) error {
	const pageSize = 200
	for offset := 0; ; offset += pageSize {
		page, err := docs.List(ctx, pageSize, offset)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			return nil
		}

		indexed := page[:0]
		for _, d := range page {
			if d.Embedding != nil {
				indexed = append(indexed, d)
			}
		}
		if len(indexed) > 0 {
			if err := ms.Upsert(ctx, indexed); err != nil {
				return err
			}
		}
		if len(page) < pageSize {
			return nil
		}
	}
}
