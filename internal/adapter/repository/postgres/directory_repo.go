package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veloapi/metering/internal/domain"
)

// DirectoryRepository implements usecase.KeyDirectory and
// usecase.SubscriptionDirectory over the thin api_keys and subscriptions
// collaborator tables. Key and subscription CRUD lives in the marketplace
// service; the metering core only reads and deactivates.
type DirectoryRepository struct {
	pool *pgxpool.Pool
}

// NewDirectoryRepository creates a new DirectoryRepository.
func NewDirectoryRepository(pool *pgxpool.Pool) *DirectoryRepository {
	return &DirectoryRepository{pool: pool}
}

const apiKeyColumns = `id, key_value, subscription_id, resource_id, is_active`

// FindKeyByValue resolves an API key by its opaque value.
func (r *DirectoryRepository) FindKeyByValue(ctx context.Context, value string) (*domain.APIKey, error) {
	return scanAPIKey(r.pool.QueryRow(ctx, `
		SELECT `+apiKeyColumns+` FROM api_keys WHERE key_value = $1`, value))
}

// FindKeyByID resolves an API key by ID.
func (r *DirectoryRepository) FindKeyByID(ctx context.Context, id string) (*domain.APIKey, error) {
	return scanAPIKey(r.pool.QueryRow(ctx, `
		SELECT `+apiKeyColumns+` FROM api_keys WHERE id = $1`, id))
}

// FindKeysByUser lists a user's keys via their subscriptions.
func (r *DirectoryRepository) FindKeysByUser(ctx context.Context, userID string) ([]*domain.APIKey, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT k.id, k.key_value, k.subscription_id, k.resource_id, k.is_active
		FROM api_keys k
		JOIN subscriptions s ON s.id = k.subscription_id
		WHERE s.user_id = $1
		ORDER BY k.id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []*domain.APIKey

	for rows.Next() {
		key, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}

		keys = append(keys, key)
	}

	return keys, rows.Err()
}

// DeactivateKey flips the key off.
func (r *DirectoryRepository) DeactivateKey(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE api_keys SET is_active = false WHERE id = $1`, id)
	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return domain.ErrKeyNotFound
	}

	return nil
}

// FindSubscriptionByID resolves a subscription and its enforcement
// configuration. Rate limits are stored as a JSONB array.
func (r *DirectoryRepository) FindSubscriptionByID(ctx context.Context, id string) (*domain.Subscription, error) {
	var (
		sub         domain.Subscription
		rateLimits  []byte
		quotaPeriod string
	)

	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, resource_id, status, rate_limits, quota_limit, quota_period, requests_used
		FROM subscriptions WHERE id = $1`, id).Scan(
		&sub.ID,
		&sub.UserID,
		&sub.ResourceID,
		&sub.Status,
		&rateLimits,
		&sub.QuotaLimit,
		&quotaPeriod,
		&sub.RequestsUsed,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSubscriptionNotFound
		}

		return nil, err
	}

	sub.QuotaPeriod = domain.QuotaPeriod(quotaPeriod)

	if len(rateLimits) > 0 {
		if err := json.Unmarshal(rateLimits, &sub.RateLimits); err != nil {
			return nil, err
		}
	}

	return &sub, nil
}

// IncrementUsage bumps the denormalized per-subscription request counter.
func (r *DirectoryRepository) IncrementUsage(ctx context.Context, id string, n int64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE subscriptions SET requests_used = requests_used + $2 WHERE id = $1`, id, n)
	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return domain.ErrSubscriptionNotFound
	}

	return nil
}

func scanAPIKey(row pgx.Row) (*domain.APIKey, error) {
	var key domain.APIKey

	err := row.Scan(
		&key.ID,
		&key.KeyValue,
		&key.SubscriptionID,
		&key.ResourceID,
		&key.IsActive,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrKeyNotFound
		}

		return nil, err
	}

	return &key, nil
}
