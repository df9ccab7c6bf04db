package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"rugviz-be/internal/domain"
	"rugviz-be/pkg/database"
)

// generationRepository persists generation audit records in PostgreSQL
type generationRepository struct {
	db *database.PostgresDB
}

// NewGenerationRepository creates a new generation repository
func NewGenerationRepository(db *database.PostgresDB) GenerationRepository {
	return &generationRepository{
		db: db,
	}
}

// Create inserts a new generation record
func (r *generationRepository) Create(ctx context.Context, record *domain.GenerationRecord) error {
	query := `
		INSERT INTO generation_records (identity_key, room_file, rug_file, prompt_chars, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	err := r.db.Pool.QueryRow(ctx, query,
		record.IdentityKey,
		record.RoomFile,
		record.RugFile,
		record.PromptChars,
		record.DurationMS,
		record.CreatedAt,
	).Scan(&record.ID)

	if err != nil {
		return fmt.Errorf("failed to create generation record: %w", err)
	}

	return nil
}

// GetStats returns aggregate counts for the admin dashboard
func (r *generationRepository) GetStats(ctx context.Context, since time.Time) (*domain.GenerationStats, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE created_at >= $1),
			COALESCE(MAX(created_at), 'epoch'::timestamptz)
		FROM generation_records
	`

	stats := &domain.GenerationStats{}
	err := r.db.Pool.QueryRow(ctx, query, since).Scan(
		&stats.TotalGenerations,
		&stats.DailyGenerations,
		&stats.LastGeneratedAt,
	)

	if err != nil {
		if err == pgx.ErrNoRows {
			return &domain.GenerationStats{}, nil
		}
		return nil, fmt.Errorf("failed to get generation stats: %w", err)
	}

	return stats, nil
}

// DeleteOldRecords removes records older than the retention period
func (r *generationRepository) DeleteOldRecords(ctx context.Context, retentionDays int) (int64, error) {
	query := `
		DELETE FROM generation_records
		WHERE created_at < NOW() - ($1 || ' days')::INTERVAL
	`

	tag, err := r.db.Pool.Exec(ctx, query, retentionDays)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old generation records: %w", err)
	}

	return tag.RowsAffected(), nil
}
