package repository

import (
	"context"
	"time"

	"rugviz-be/internal/domain"
)

// GenerationRepository defines the interface for the generation audit log
type GenerationRepository interface {
	// Create inserts a new generation record
	Create(ctx context.Context, record *domain.GenerationRecord) error

	// GetStats returns aggregate counts for the admin dashboard
	GetStats(ctx context.Context, since time.Time) (*domain.GenerationStats, error)

	// DeleteOldRecords removes records older than the retention period
	DeleteOldRecords(ctx context.Context, retentionDays int) (int64, error)
}
