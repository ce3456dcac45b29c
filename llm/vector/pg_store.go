package vector

import (
	"context"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"ragchat/llm"
)

// PGStore implements VectorStore on the documents table using the pgvector
// extension. Ranking happens in SQL via the cosine distance operator, so
// the similarity-search index is used when present.
type PGStore struct {
	db  *gorm.DB
	cfg StoreConfig
}

// NewPGStore wraps an open gorm connection. The documents table and vector
// extension are expected to exist (see store.Open).
func NewPGStore(db *gorm.DB, cfg StoreConfig) *PGStore {
	return &PGStore{db: db, cfg: cfg}
}

// Upsert refreshes the embedding column for the given documents. Rows not
// yet present are inserted.
func (s *PGStore) Upsert(ctx context.Context, docs []llm.Document) error {
	for _, doc := range docs {
		if doc.ID == "" || doc.Embedding == nil {
			continue
		}
		vec := pgvector.NewVector(doc.Embedding)
		res := s.db.WithContext(ctx).Exec(
			`UPDATE documents SET embedding = ?, updated_at = ? WHERE file_name = ?`,
			vec, time.Now(), doc.ID,
		)
		if res.Error != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, res.Error)
		}
		if res.RowsAffected == 0 {
			err := s.db.WithContext(ctx).Exec(
				`INSERT INTO documents (file_name, display_name, content, embedding, byte_size, created_at, updated_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				doc.ID, doc.DisplayName, doc.Content, vec, doc.ByteSize, time.Now(), time.Now(),
			).Error
			if err != nil {
				return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
			}
		}
	}
	return nil
}

// Search ranks all indexed rows by cosine similarity in SQL.
func (s *PGStore) Search(ctx context.Context, queryVector []float32, topK int, threshold float64) ([]llm.RetrievalResult, error) {
	vec := pgvector.NewVector(queryVector)

	query := `SELECT file_name, display_name, 1 - (embedding <=> ?) AS similarity
		FROM documents
		WHERE embedding IS NOT NULL AND 1 - (embedding <=> ?) >= ?
		ORDER BY similarity DESC, file_name ASC`
	args := []any{vec, vec, threshold}
	if topK > 0 {
		query += ` LIMIT ?`
		args = append(args, topK)
	}

	var rows []struct {
		FileName    string
		DisplayName string
		Similarity  float64
	}
	if err := s.db.WithContext(ctx).Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	results := make([]llm.RetrievalResult, 0, len(rows))
	for _, row := range rows {
		score := row.Similarity
		if score < 0 {
			score = 0
		}
		if score > 1 {
			score = 1
		}
		results = append(results, llm.RetrievalResult{
			DocumentID:  row.FileName,
			DisplayName: row.DisplayName,
			Score:       score,
		})
	}
	return results, nil
}

// Delete removes a document from the index by clearing its embedding; the
// row itself belongs to the document store.
func (s *PGStore) Delete(ctx context.Context, id string) error {
	err := s.db.WithContext(ctx).Exec(
		`UPDATE documents SET embedding = NULL WHERE file_name = ?`, id,
	).Error
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Count returns the number of indexed rows.
func (s *PGStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Raw(`SELECT count(*) FROM documents WHERE embedding IS NOT NULL`).
		Scan(&count).Error
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return count, nil
}

// Close is a no-op; the gorm connection is owned by the caller.
func (s *PGStore) Close() error { return nil }
