package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"

	"github.com/shenikar/sos_broadcasting_system/internal/models"
)

// RateLimitRepository - хранилище счетчиков лимитера в Postgres.
// Реализует ratelimit.Store.
type RateLimitRepository struct {
	db    *pgxpool.Pool
	clock clockwork.Clock
}

func NewRateLimitRepository(db *pgxpool.Pool, clock clockwork.Clock) *RateLimitRepository {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &RateLimitRepository{db: db, clock: clock}
}

// Increment - одна инструкция upsert: новое окно, если старое истекло, иначе +1.
// Блокировка строки в ON CONFLICT исключает потерю инкрементов.
func (r *RateLimitRepository) Increment(ctx context.Context, key string, window time.Duration) (models.RateLimitRecord, error) {
	now := r.clock.Now().UTC()
	query := `
		INSERT INTO rate_limits (key, count, window_reset_at)
		VALUES ($1, 1, $2)
		ON CONFLICT (key) DO UPDATE SET
			count = CASE WHEN rate_limits.window_reset_at < $3 THEN 1 ELSE rate_limits.count + 1 END,
			window_reset_at = CASE WHEN rate_limits.window_reset_at < $3 THEN $2 ELSE rate_limits.window_reset_at END
		RETURNING key, count, window_reset_at;
	`
	var record models.RateLimitRecord
	err := r.db.QueryRow(ctx, query, key, now.Add(window), now).Scan(&record.Key, &record.Count, &record.WindowResetAt)
	if err != nil {
		return models.RateLimitRecord{}, fmt.Errorf("failed to increment rate limit: %w", err)
	}
	return record, nil
}

// Get возвращает текущую запись или nil
func (r *RateLimitRepository) Get(ctx context.Context, key string) (*models.RateLimitRecord, error) {
	query := `SELECT key, count, window_reset_at FROM rate_limits WHERE key = $1;`

	var record models.RateLimitRecord
	err := r.db.QueryRow(ctx, query, key).Scan(&record.Key, &record.Count, &record.WindowResetAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get rate limit: %w", err)
	}
	return &record, nil
}

// DeleteExpired удаляет истекшие окна
func (r *RateLimitRepository) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM rate_limits WHERE window_reset_at < $1;`, r.clock.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired rate limits: %w", err)
	}
	return tag.RowsAffected(), nil
}
