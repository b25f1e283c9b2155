package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veloapi/metering/internal/domain"
)

// UsageRepository implements usecase.UsageRepository.
type UsageRepository struct {
	pool *pgxpool.Pool
}

// NewUsageRepository creates a new UsageRepository.
func NewUsageRepository(pool *pgxpool.Pool) *UsageRepository {
	return &UsageRepository{pool: pool}
}

// Create persists one usage record.
func (r *UsageRepository) Create(ctx context.Context, record *domain.UsageRecord) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO usage_records (
			id, api_key_id, resource_id, endpoint, method, status_code, success,
			response_time_ms, request_size, response_size, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		record.ID,
		record.APIKeyID,
		record.ResourceID,
		record.Endpoint,
		record.Method,
		record.StatusCode,
		record.Success,
		record.ResponseTimeMs,
		record.RequestSize,
		record.ResponseSize,
		timeToPgTimestamptz(record.CreatedAt),
	)

	return err
}

// CountSuccessful counts successful requests for a key in [from, to).
func (r *UsageRepository) CountSuccessful(ctx context.Context, apiKeyID string, from, to time.Time) (int64, error) {
	var count int64

	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM usage_records
		WHERE api_key_id = $1 AND success AND created_at >= $2 AND created_at < $3`,
		apiKeyID, timeToPgTimestamptz(from), timeToPgTimestamptz(to)).Scan(&count)

	return count, err
}
