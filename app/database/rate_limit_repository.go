package database

import (
	"fmt"
)

// RateLimitRepository keeps per-user, per-endpoint request counters keyed by window start (unix seconds)
type RateLimitRepository struct {
	db *DB
}

func NewRateLimitRepository(db *DB) *RateLimitRepository {
	return &RateLimitRepository{db: db}
}

// Increment bumps the window counter and returns the new count in a single statement
func (r *RateLimitRepository) Increment(userID int64, endpoint string, windowStart int64) (int, error) {
	var count int
	err := r.db.QueryRow(`
		INSERT INTO rate_limits (user_id, endpoint, window_start, request_count)
		VALUES (?, ?, ?, 1)
		ON CONFLICT (user_id, endpoint, window_start) DO UPDATE SET request_count = request_count + 1
		RETURNING request_count
	`, userID, endpoint, windowStart).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to increment rate limit counter: %w", err)
	}
	return count, nil
}

// Count reads the counter without changing it
func (r *RateLimitRepository) Count(userID int64, endpoint string, windowStart int64) (int, error) {
	var count int
	err := r.db.QueryRow(`
		SELECT COALESCE(SUM(request_count), 0) FROM rate_limits
		WHERE user_id = ? AND endpoint = ? AND window_start = ?
	`, userID, endpoint, windowStart).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to read rate limit counter: %w", err)
	}
	return count, nil
}

// DeleteBefore removes counters for windows that started before the cutoff
func (r *RateLimitRepository) DeleteBefore(windowStart int64) (int64, error) {
	res, err := r.db.Exec(`DELETE FROM rate_limits WHERE window_start < ?`, windowStart)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up rate limits: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
