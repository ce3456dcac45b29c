package store

import (
	"fmt"
	"log/slog"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Open connects to the configured database and migrates the schema.
// driver is "postgres" or "sqlite"; sqlite serves local single-node setups
// and tests, postgres is required for the pgvector search backend.
func Open(driver, dsn string, logger *slog.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported db driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if driver == "postgres" {
		// vector type must exist before AutoMigrate creates the column
		if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS vector`).Error; err != nil {
			return nil, fmt.Errorf("enable pgvector extension: %w", err)
		}
	}

	if err := db.AutoMigrate(&Document{}, &QueryLog{}); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	if driver == "postgres" {
		err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_documents_embedding
			ON documents USING hnsw (embedding vector_cosine_ops)`).Error
		if err != nil && logger != nil {
			logger.Warn("could not create hnsw index, searches fall back to seq scan", "error", err)
		}
	}

	return db, nil
}
