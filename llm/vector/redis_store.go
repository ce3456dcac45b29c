package vector

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"ragchat/llm"
)

const (
	defaultEFConstruction = 200
	defaultM              = 16

	// Field names in the redis hash
	fieldContent     = "content"
	fieldVector      = "vector"
	fieldDisplayName = "display_name"
	fieldScore       = "score"
)

// RedisStore implements VectorStore on Redis with a RediSearch HNSW index.
type RedisStore struct {
	client *redis.Client
	cfg    StoreConfig

	efConstruction int
	m              int
}

// RedisOptions holds redis connection configuration.
type RedisOptions struct {
	Addr           string
	Password       string
	DB             int
	PoolSize       int
	EFConstruction int
	M              int
}

// NewRedisStore connects to redis and ensures the vector index exists.
func NewRedisStore(ctx context.Context, cfg StoreConfig, opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
		PoolSize: opts.PoolSize,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	store := &RedisStore{
		client:         client,
		cfg:            cfg,
		efConstruction: opts.EFConstruction,
		m:              opts.M,
	}
	if store.efConstruction <= 0 {
		store.efConstruction = defaultEFConstruction
	}
	if store.m <= 0 {
		store.m = defaultM
	}

	if err := store.ensureIndex(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return store, nil
}

// ensureIndex creates the HNSW vector index if it does not exist.
func (s *RedisStore) ensureIndex(ctx context.Context) error {
	if _, err := s.client.Do(ctx, "FT.INFO", s.cfg.IndexName).Result(); err == nil {
		return nil
	}

	// FT.CREATE ragchat-docs ON HASH PREFIX 1 "doc:"
	//   SCHEMA vector VECTOR HNSW 6 TYPE FLOAT32 DIM 768 DISTANCE_METRIC COSINE
	//          content TEXT display_name TEXT
	_, err := s.client.Do(ctx, "FT.CREATE", s.cfg.IndexName,
		"ON", "HASH",
		"PREFIX", "1", s.cfg.KeyPrefix,
		"SCHEMA",
		fieldVector, "VECTOR", "HNSW", "10",
		"TYPE", "FLOAT32",
		"DIM", strconv.Itoa(s.cfg.Dim),
		"DISTANCE_METRIC", "COSINE",
		"EF_CONSTRUCTION", strconv.Itoa(s.efConstruction),
		"M", strconv.Itoa(s.m),
		fieldContent, "TEXT",
		fieldDisplayName, "TEXT",
	).Result()
	if err != nil {
		return fmt.Errorf("%w: failed to create index: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Upsert writes documents and their vectors in one pipeline.
func (s *RedisStore) Upsert(ctx context.Context, docs []llm.Document) error {
	if len(docs) == 0 {
		return nil
	}

	pipe := s.client.Pipeline()
	for _, doc := range docs {
		if doc.ID == "" || doc.Embedding == nil {
			continue
		}
		pipe.HSet(ctx, s.cfg.KeyPrefix+doc.ID,
			fieldContent, doc.Content,
			fieldVector, encodeVector(doc.Embedding),
			fieldDisplayName, doc.DisplayName,
		)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Search runs a KNN query and filters by the similarity threshold on the
// client side; RediSearch reports cosine distance, similarity = 1 - dist.
func (s *RedisStore) Search(ctx context.Context, queryVector []float32, topK int, threshold float64) ([]llm.RetrievalResult, error) {
	k := topK
	if k <= 0 {
		// KNN requires a bound; unlimited means everything indexed.
		count, err := s.Count(ctx)
		if err != nil {
			return nil, err
		}
		if count == 0 {
			return []llm.RetrievalResult{}, nil
		}
		k = int(count)
	}

	queryStr := fmt.Sprintf("*=>[KNN %d @%s $query_vector AS %s]", k, fieldVector, fieldScore)
	result, err := s.client.Do(ctx, "FT.SEARCH", s.cfg.IndexName, queryStr,
		"PARAMS", "2", "query_vector", encodeVector(queryVector),
		"RETURN", "2", fieldDisplayName, fieldScore,
		"SORTBY", fieldScore,
		"LIMIT", "0", strconv.Itoa(k),
		"DIALECT", "2",
	).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return s.parseSearchResults(result, topK, threshold)
}

// parseSearchResults walks the FT.SEARCH reply: a count followed by
// (key, fields) pairs.
func (s *RedisStore) parseSearchResults(result interface{}, topK int, threshold float64) ([]llm.RetrievalResult, error) {
	values, ok := result.([]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: unexpected result format", ErrStoreUnavailable)
	}
	if len(values) < 2 {
		return []llm.RetrievalResult{}, nil
	}

	results := make([]llm.RetrievalResult, 0, (len(values)-1)/2)
	for i := 1; i+1 < len(values); i += 2 {
		key, ok := values[i].(string)
		if !ok {
			continue
		}
		fields, ok := values[i+1].([]interface{})
		if !ok {
			continue
		}

		var displayName string
		score := -1.0
		for j := 0; j+1 < len(fields); j += 2 {
			name, _ := fields[j].(string)
			val, _ := fields[j+1].(string)
			switch name {
			case fieldDisplayName:
				displayName = val
			case fieldScore:
				if dist, err := strconv.ParseFloat(val, 64); err == nil {
					score = 1 - dist
				}
			}
		}
		if score < threshold {
			continue
		}
		if score > 1 {
			score = 1
		}

		results = append(results, llm.RetrievalResult{
			DocumentID:  strings.TrimPrefix(key, s.cfg.KeyPrefix),
			DisplayName: displayName,
			Score:       score,
		})
	}
	return sortResults(results, topK), nil
}

// Delete removes a document by its ID.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.cfg.KeyPrefix+id).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Count returns the number of indexed documents.
func (s *RedisStore) Count(ctx context.Context) (int64, error) {
	info, err := s.client.Do(ctx, "FT.INFO", s.cfg.IndexName).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	values, ok := info.([]interface{})
	if !ok {
		return 0, fmt.Errorf("%w: unexpected info format", ErrStoreUnavailable)
	}
	for i := 0; i+1 < len(values); i += 2 {
		if key, ok := values[i].(string); ok && key == "num_docs" {
			switch v := values[i+1].(type) {
			case int64:
				return v, nil
			case string:
				if n, err := strconv.ParseInt(v, 10, 64); err == nil {
					return n, nil
				}
			}
		}
	}
	return 0, nil
}

// Close closes the redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// encodeVector encodes a float32 vector as little-endian bytes, the layout
// RediSearch expects for FLOAT32 vector fields.
func encodeVector(vector []float32) []byte {
	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.LittleEndian, vector)
	return buf.Bytes()
}
