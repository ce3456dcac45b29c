// ragsync synchronizes a directory of text documents into the store:
// new and changed files are embedded and upserted, rows whose source file
// disappeared are pruned.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gorm.io/gorm"

	"ragchat/config"
	"ragchat/llm"
	"ragchat/llm/providers"
	"ragchat/llm/vector"
	"ragchat/logger"
	"ragchat/store"
)

var textExtensions = map[string]bool{
	".md":  true,
	".txt": true,
}

func main() {
	dir := flag.String("dir", "./documents", "directory of source documents")
	prune := flag.Bool("prune", true, "remove stored documents whose source file disappeared")
	flag.Parse()

	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(log)

	if err := run(cfg, *dir, *prune, log); err != nil {
		log.Error("sync failed", "error", err)
		os.Exit(1)
	}
}

type summary struct {
	created   int
	updated   int
	unchanged int
	pruned    int
}

func run(cfg config.Config, dir string, prune bool, log *slog.Logger) error {
	ctx := context.Background()

	db, err := store.Open(cfg.DBDriver, cfg.DBDSN, log)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	docs := store.NewDocumentStore(db)

	vectors, err := openVectorIndex(ctx, cfg, db)
	if err != nil {
		return fmt.Errorf("vector backend: %w", err)
	}
	if vectors != nil {
		defer vectors.Close()
	}

	docEmb, err := providers.NewEmbedder(ctx, &providers.EmbeddingConfig{
		APIKey:  cfg.EmbeddingAPIKey,
		BaseURL: cfg.EmbeddingBaseURL,
		Model:   cfg.DocEmbeddingModel,
	})
	if err != nil {
		return fmt.Errorf("embedding model: %w", err)
	}
	embedder := vector.NewEmbeddingService(docEmb, nil, cfg.EmbeddingDim)

	sources, err := readSources(dir)
	if err != nil {
		return err
	}
	log.Info("scanning complete", "dir", dir, "files", len(sources))

	var sum summary
	for name, content := range sources {
		changed, existed, err := syncOne(ctx, docs, vectors, embedder, name, content)
		if err != nil {
			return fmt.Errorf("sync %s: %w", name, err)
		}
		switch {
		case !existed:
			sum.created++
			log.Info("indexed new document", "file", name)
		case changed:
			sum.updated++
			log.Info("re-indexed changed document", "file", name)
		default:
			sum.unchanged++
		}
	}

	if prune {
		pruned, err := pruneMissing(ctx, docs, vectors, sources)
		if err != nil {
			return fmt.Errorf("prune: %w", err)
		}
		sum.pruned = pruned
	}

	fmt.Printf("sync done: %d new, %d updated, %d unchanged, %d pruned\n",
		sum.created, sum.updated, sum.unchanged, sum.pruned)
	return nil
}

// readSources collects the text files under dir, keyed by path relative to
// dir.
func readSources(dir string) (map[string]string, error) {
	sources := make(map[string]string)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !textExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		sources[filepath.ToSlash(rel)] = string(content)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	return sources, nil
}

func syncOne(ctx context.Context, docs *store.DocumentStore, vectors vector.VectorStore, embedder *vector.EmbeddingService, name, content string) (changed, existed bool, err error) {
	existing, err := docs.GetByFileName(ctx, name)
	switch {
	case errors.Is(err, store.ErrNotFound):
		existed = false
	case err != nil:
		return false, false, err
	default:
		existed = true
		if existing.Content == content {
			return false, true, nil
		}
	}

	emb, err := embedder.EmbedDocument(ctx, content)
	if err != nil {
		return false, existed, fmt.Errorf("embed: %w", err)
	}

	doc := llm.Document{
		ID:          name,
		DisplayName: displayName(name),
		Content:     content,
		Embedding:   emb,
	}
	if err := docs.CreateOrUpdate(ctx, doc); err != nil {
		return false, existed, err
	}
	if vectors != nil {
		if err := vectors.Upsert(ctx, []llm.Document{doc}); err != nil {
			return false, existed, fmt.Errorf("index: %w", err)
		}
	}
	return true, existed, nil
}

func pruneMissing(ctx context.Context, docs *store.DocumentStore, vectors vector.VectorStore, sources map[string]string) (int, error) {
	const pageSize = 200
	var stale []string
	for offset := 0; ; offset += pageSize {
		page, err := docs.List(ctx, pageSize, offset)
		if err != nil {
			return 0, err
		}
		for _, d := range page {
			if _, ok := sources[d.ID]; !ok {
				stale = append(stale, d.ID)
			}
		}
		if len(page) < pageSize {
			break
		}
	}

	for _, id := range stale {
		if err := docs.Delete(ctx, id); err != nil {
			return 0, err
		}
		if vectors != nil {
			if err := vectors.Delete(ctx, id); err != nil {
				return 0, err
			}
		}
	}
	return len(stale), nil
}

func displayName(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// openVectorIndex returns the external vector index to keep in sync, or nil
// for the memory backend, which the server rebuilds from the database at
// boot.
func openVectorIndex(ctx context.Context, cfg config.Config, db *gorm.DB) (vector.VectorStore, error) {
	storeCfg := vector.StoreConfig{
		Dim:       cfg.EmbeddingDim,
		IndexName: cfg.Redis.IndexName,
		KeyPrefix: "doc:",
	}

	switch cfg.VectorBackend {
	case "pgvector":
		// pgvector reads the documents table directly, nothing extra to sync
		return nil, nil
	case "redis":
		return vector.NewRedisStore(ctx, storeCfg, vector.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
	case "memory":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown vector backend %q", cfg.VectorBackend)
	}
}
