package store

import (
	"context"
	"time"

	"gorm.io/gorm"

	"ragchat/llm"
)

// QueryLog is one immutable record of a handled query.
type QueryLog struct {
	ID               uint      `gorm:"primarykey" json:"id"`
	QueryText        string    `gorm:"not null" json:"query_text"`
	ModelUsed        string    `gorm:"size:100;index" json:"model_used"`
	FilesUsed        int       `json:"files_used"`
	SelectedFiles    []string  `gorm:"serializer:json" json:"selected_files"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	TotalTokens      int       `json:"total_tokens"`
	ResponseLength   int       `json:"response_length"`
	Success          bool      `json:"success"`
	ErrorMessage     string    `json:"error_message,omitempty"`
	CreatedAt        time.Time `gorm:"index" json:"created_at"`
}

// QueryStats aggregates the query log for the stats endpoint.
type QueryStats struct {
	TotalQueries      int64            `json:"total_queries"`
	SuccessfulQueries int64            `json:"successful_queries"`
	SuccessRate       float64          `json:"success_rate"`
	ModelUsage        map[string]int64 `json:"model_usage"`
	AvgFilesUsed      float64          `json:"avg_files_used"`
	TotalTokens       int64            `json:"total_tokens"`
}

// QueryLogStore appends and reads query log records. Records are never
// updated after insertion.
type QueryLogStore struct {
	db *gorm.DB
}

// NewQueryLogStore wraps an open gorm connection.
func NewQueryLogStore(db *gorm.DB) *QueryLogStore {
	return &QueryLogStore{db: db}
}

// Append writes one outcome to the log.
func (s *QueryLogStore) Append(ctx context.Context, outcome llm.QueryOutcome) error {
	row := QueryLog{
		QueryText:        outcome.Query,
		ModelUsed:        outcome.Model,
		FilesUsed:        outcome.FilesUsed,
		SelectedFiles:    outcome.SelectedFiles,
		PromptTokens:     outcome.PromptTokens,
		CompletionTokens: outcome.CompletionTokens,
		TotalTokens:      outcome.TotalTokens,
		ResponseLength:   outcome.ResponseLength,
		Success:          outcome.Success,
		ErrorMessage:     outcome.ErrorMessage,
		CreatedAt:        outcome.CreatedAt,
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now()
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

// ListRecent returns log records newest first.
func (s *QueryLogStore) ListRecent(ctx context.Context, limit, offset int) ([]QueryLog, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []QueryLog
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&rows).Error
	return rows, err
}

// Stats computes usage aggregates over the whole log.
func (s *QueryLogStore) Stats(ctx context.Context) (QueryStats, error) {
	stats := QueryStats{ModelUsage: make(map[string]int64)}
	db := s.db.WithContext(ctx).Model(&QueryLog{})

	if err := db.Count(&stats.TotalQueries).Error; err != nil {
		return stats, err
	}
	if stats.TotalQueries == 0 {
		return stats, nil
	}

	err := s.db.WithContext(ctx).Model(&QueryLog{}).
		Where("success = ?", true).
		Count(&stats.SuccessfulQueries).Error
	if err != nil {
		return stats, err
	}
	stats.SuccessRate = float64(stats.SuccessfulQueries) / float64(stats.TotalQueries)

	type usageRow struct {
		ModelUsed string
		N         int64
	}
	var usage []usageRow
	err = s.db.WithContext(ctx).Model(&QueryLog{}).
		Select("model_used, COUNT(*) AS n").
		Group("model_used").
		Scan(&usage).Error
	if err != nil {
		return stats, err
	}
	for _, u := range usage {
		stats.ModelUsage[u.ModelUsed] = u.N
	}

	type sums struct {
		AvgFiles float64
		TokenSum int64
	}
	var agg sums
	err = s.db.WithContext(ctx).Model(&QueryLog{}).
		Select("AVG(files_used) AS avg_files, COALESCE(SUM(total_tokens), 0) AS token_sum").
		Scan(&agg).Error
	if err != nil {
		return stats, err
	}
	stats.AvgFilesUsed = agg.AvgFiles
	stats.TotalTokens = agg.TokenSum

	return stats, nil
}
