package database

import (
	"fmt"
	"time"
)

// CostLogRepository is the append-only spend ledger. It deliberately exposes no update or delete.
type CostLogRepository struct {
	db *DB
}

func NewCostLogRepository(db *DB) *CostLogRepository {
	return &CostLogRepository{db: db}
}

func (r *CostLogRepository) Append(e *CostLogEntry) (int64, error) {
	return appendCost(r.db, e)
}

func appendCost(q queryer, e *CostLogEntry) (int64, error) {
	var id int64
	err := q.QueryRow(`
		INSERT INTO cost_log (user_id, podcast_id, job_id, action_type, platform, api_provider,
			cost_usd, success, logged_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`, e.UserID, e.PodcastID, e.JobID, e.ActionType, e.Platform, e.APIProvider, e.CostUSD,
		e.Success, UTC(e.LoggedAt)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to append cost log entry: %w", err)
	}
	return id, nil
}

// SpentSince sums every logged cost at or after since
func (r *CostLogRepository) SpentSince(since time.Time) (float64, error) {
	var total float64
	err := r.db.QueryRow(`SELECT COALESCE(SUM(cost_usd), 0) FROM cost_log WHERE logged_at >= ?`,
		UTC(since)).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum cost log: %w", err)
	}
	return total, nil
}

func (r *CostLogRepository) ListSince(since time.Time, limit int) ([]CostLogEntry, error) {
	rows, err := r.db.Query(`
		SELECT id, user_id, podcast_id, job_id, action_type, platform, api_provider, cost_usd, success, logged_at
		FROM cost_log WHERE logged_at >= ? ORDER BY logged_at DESC, id DESC LIMIT ?
	`, UTC(since), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query cost log: %w", err)
	}
	defer rows.Close()

	var entries []CostLogEntry
	for rows.Next() {
		var e CostLogEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.PodcastID, &e.JobID, &e.ActionType, &e.Platform,
			&e.APIProvider, &e.CostUSD, &e.Success, &e.LoggedAt); err != nil {
			return nil, fmt.Errorf("failed to scan cost log entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
