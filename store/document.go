package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"ragchat/llm"
)

// ErrNotFound reports that no row matched the lookup.
var ErrNotFound = errors.New("not found")

// Document is the persisted form of an indexed document. FileName is the
// unique external file identifier.
type Document struct {
	ID          uint             `gorm:"primarykey"`
	FileName    string           `gorm:"size:255;uniqueIndex;not null"`
	DisplayName string           `gorm:"size:255;not null"`
	Content     string           `gorm:"not null"`
	Embedding   *pgvector.Vector `gorm:"type:vector(768)"`
	ByteSize    int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// DocumentStore persists documents and their embeddings.
type DocumentStore struct {
	db *gorm.DB
}

// NewDocumentStore wraps an open gorm connection.
func NewDocumentStore(db *gorm.DB) *DocumentStore {
	return &DocumentStore{db: db}
}

// CreateOrUpdate inserts a document or, when a row with the same file name
// exists, refreshes its content, embedding and updated_at.
func (s *DocumentStore) CreateOrUpdate(ctx context.Context, doc llm.Document) error {
	if doc.ID == "" {
		return fmt.Errorf("document id is required")
	}

	row := toRow(doc)
	var existing Document
	err := s.db.WithContext(ctx).Where("file_name = ?", doc.ID).First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return s.db.WithContext(ctx).Create(&row).Error
	case err != nil:
		return err
	}

	existing.DisplayName = row.DisplayName
	existing.Content = row.Content
	existing.Embedding = row.Embedding
	existing.ByteSize = row.ByteSize
	return s.db.WithContext(ctx).Save(&existing).Error
}

// GetByFileName returns one document by its external file name.
func (s *DocumentStore) GetByFileName(ctx context.Context, fileName string) (llm.Document, error) {
	var row Document
	err := s.db.WithContext(ctx).Where("file_name = ?", fileName).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return llm.Document{}, ErrNotFound
	}
	if err != nil {
		return llm.Document{}, err
	}
	return fromRow(row), nil
}

// GetByFileNames resolves documents for an explicit selection, preserving
// the order of the requested names. Names without a matching row are
// skipped.
func (s *DocumentStore) GetByFileNames(ctx context.Context, fileNames []string) ([]llm.Document, error) {
	if len(fileNames) == 0 {
		return nil, nil
	}

	var rows []Document
	if err := s.db.WithContext(ctx).Where("file_name IN ?", fileNames).Find(&rows).Error; err != nil {
		return nil, err
	}

	byName := make(map[string]Document, len(rows))
	for _, row := range rows {
		byName[row.FileName] = row
	}

	docs := make([]llm.Document, 0, len(fileNames))
	for _, name := range fileNames {
		if row, ok := byName[name]; ok {
			docs = append(docs, fromRow(row))
		}
	}
	return docs, nil
}

// List returns documents with pagination, newest first.
func (s *DocumentStore) List(ctx context.Context, limit, offset int) ([]llm.Document, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []Document
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	docs := make([]llm.Document, len(rows))
	for i, row := range rows {
		docs[i] = fromRow(row)
	}
	return docs, nil
}

// Delete removes a document by its external file name.
func (s *DocumentStore) Delete(ctx context.Context, fileName string) error {
	return s.db.WithContext(ctx).Where("file_name = ?", fileName).Delete(&Document{}).Error
}

// Count returns the total number of documents.
func (s *DocumentStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&Document{}).Count(&count).Error
	return count, err
}

func toRow(doc llm.Document) Document {
	row := Document{
		FileName:    doc.ID,
		DisplayName: doc.DisplayName,
		Content:     doc.Content,
		ByteSize:    doc.ByteSize,
	}
	if row.ByteSize == 0 {
		row.ByteSize = int64(len(doc.Content))
	}
	if doc.Embedding != nil {
		vec := pgvector.NewVector(doc.Embedding)
		row.Embedding = &vec
	}
	return row
}

func fromRow(row Document) llm.Document {
	doc := llm.Document{
		ID:          row.FileName,
		DisplayName: row.DisplayName,
		Content:     row.Content,
		ByteSize:    row.ByteSize,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
	if row.Embedding != nil {
		doc.Embedding = row.Embedding.Slice()
	}
	return doc
}
