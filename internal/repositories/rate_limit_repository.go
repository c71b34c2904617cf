package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/WmBreck/2nd-opinion-construction/internal/utils"
)

// RateLimitRepository keeps fixed-window counters for code sends, keyed by
// scope ("email:ip:1.2.3.4", "email:global", ...).
type RateLimitRepository interface {
	// IncrementAndCheck counts one attempt against key and reports whether
	// the total for the current window is still at most limit. A window
	// that has lapsed starts over at one.
	IncrementAndCheck(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	CleanupExpired(ctx context.Context) error
}

type rateLimitRepository struct {
	db DB
}

func NewRateLimitRepository(db DB) RateLimitRepository {
	return &rateLimitRepository{db: db}
}

const incrementAttemptSQL = `
INSERT INTO rate_limit_attempts AS r (key, attempt_count, expires_at)
VALUES ($1, 1, NOW() + make_interval(secs => $2))
ON CONFLICT (key) DO UPDATE SET
    attempt_count = CASE WHEN r.expires_at < NOW() THEN 1 ELSE r.attempt_count + 1 END,
    expires_at    = CASE WHEN r.expires_at < NOW() THEN EXCLUDED.expires_at ELSE r.expires_at END
RETURNING attempt_count`

func (r *rateLimitRepository) IncrementAndCheck(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	var count int
	if err := r.db.QueryRow(ctx, incrementAttemptSQL, key, window.Seconds()).Scan(&count); err != nil {
		return false, fmt.Errorf("increment %q: %w", key, err)
	}
	return count <= limit, nil
}

func (r *rateLimitRepository) CleanupExpired(ctx context.Context) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM rate_limit_attempts WHERE expires_at < NOW()`)
	if err != nil {
		return err
	}
	if n := tag.RowsAffected(); n > 0 {
		utils.Logger.WithField("rows", n).Debug("Expired rate limit counters removed")
	}
	return nil
}
