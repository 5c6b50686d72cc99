package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// JobRepository is the priority-ordered enrichment job queue
type JobRepository struct {
	db *DB
}

func NewJobRepository(db *DB) *JobRepository {
	return &JobRepository{db: db}
}

const jobColumns = `id, podcast_id, job_type, platforms_to_fetch, status, priority, attempts, max_attempts,
	estimated_cost_usd, actual_cost_usd, error_message, created_at, started_at, completed_at`

func scanJob(row interface{ Scan(...any) error }) (*Job, error) {
	var j Job
	var platforms string
	var actual sql.NullFloat64
	var started, completed sql.NullTime
	err := row.Scan(&j.ID, &j.PodcastID, &j.JobType, &platforms, &j.Status, &j.Priority, &j.Attempts,
		&j.MaxAttempts, &j.EstimatedCostUSD, &actual, &j.ErrorMessage, &j.CreatedAt, &started, &completed)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(platforms), &j.Platforms); err != nil {
		return nil, fmt.Errorf("failed to decode job platforms: %w", err)
	}
	if actual.Valid {
		j.ActualCostUSD = &actual.Float64
	}
	j.StartedAt = timePtr(started)
	j.CompletedAt = timePtr(completed)
	return &j, nil
}

func encodePlatforms(platforms []Platform) (string, error) {
	if platforms == nil {
		platforms = []Platform{}
	}
	b, err := json.Marshal(platforms)
	if err != nil {
		return "", fmt.Errorf("failed to encode job platforms: %w", err)
	}
	return string(b), nil
}

// Enqueue inserts a queued job and flags an untracked podcast as queued
func (r *JobRepository) Enqueue(job *Job, now time.Time) (int64, error) {
	platforms, err := encodePlatforms(job.Platforms)
	if err != nil {
		return 0, err
	}

	tx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRow(`
		INSERT INTO jobs (podcast_id, job_type, platforms_to_fetch, status, priority, attempts,
			max_attempts, estimated_cost_usd, created_at)
		VALUES (?, ?, ?, 'queued', ?, 0, ?, ?, ?)
		RETURNING id
	`, job.PodcastID, job.JobType, platforms, job.Priority, job.MaxAttempts, job.EstimatedCostUSD, UTC(now)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue job: %w", err)
	}

	if err := markPodcastQueued(tx, job.PodcastID, now); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit job: %w", err)
	}
	return id, nil
}

// EnqueueWithinBudget inserts the job only if ledger spend since periodStart plus
// pendingCost plus the job's estimate stays strictly under limit. The check and the insert
// are one statement, so no other writer can slip in between them.
func (r *JobRepository) EnqueueWithinBudget(job *Job, periodStart time.Time, pendingCost, limit float64, now time.Time) (int64, bool, error) {
	platforms, err := encodePlatforms(job.Platforms)
	if err != nil {
		return 0, false, err
	}

	tx, err := r.db.Begin()
	if err != nil {
		return 0, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRow(`
		INSERT INTO jobs (podcast_id, job_type, platforms_to_fetch, status, priority, attempts,
			max_attempts, estimated_cost_usd, created_at)
		SELECT ?, ?, ?, 'queued', ?, 0, ?, ?, ?
		WHERE (SELECT COALESCE(SUM(cost_usd), 0) FROM cost_log WHERE logged_at >= ?) + ? < ?
		RETURNING id
	`, job.PodcastID, job.JobType, platforms, job.Priority, job.MaxAttempts, job.EstimatedCostUSD, UTC(now),
		UTC(periodStart), pendingCost+job.EstimatedCostUSD, limit).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to enqueue job: %w", err)
	}

	if err := markPodcastQueued(tx, job.PodcastID, now); err != nil {
		return 0, false, err
	}

	if err := tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("failed to commit job: %w", err)
	}
	return id, true, nil
}

func markPodcastQueued(tx *sql.Tx, podcastID int64, now time.Time) error {
	_, err := tx.Exec(`
		UPDATE podcasts SET tracking_status = 'queued', updated_at = ?
		WHERE id = ? AND tracking_status IN ('not_tracked', 'failed')
	`, UTC(now), podcastID)
	if err != nil {
		return fmt.Errorf("failed to mark podcast queued: %w", err)
	}
	return nil
}

// ClaimNext moves the highest-priority, oldest queued job to processing.
// Returns nil when the queue is empty.
func (r *JobRepository) ClaimNext(now time.Time) (*Job, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	job, err := scanJob(tx.QueryRow(`
		UPDATE jobs SET status = 'processing', attempts = attempts + 1, started_at = ?
		WHERE id = (
			SELECT id FROM jobs
			WHERE status = 'queued' AND attempts < max_attempts
			ORDER BY priority DESC, created_at ASC, id ASC
			LIMIT 1
		)
		RETURNING `+jobColumns, UTC(now)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	_, err = tx.Exec(`
		UPDATE podcasts SET tracking_status = 'processing', updated_at = ?
		WHERE id = ? AND tracking_status = 'queued'
	`, UTC(now), job.PodcastID)
	if err != nil {
		return nil, fmt.Errorf("failed to mark podcast processing: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit claim: %w", err)
	}
	return job, nil
}

// ErrJobNotProcessing is returned when a job is settled or failed after it
// already left the processing state.
var ErrJobNotProcessing = errors.New("job is not processing")

// ErrJobNotFailed is returned when requeueing a job that has not permanently failed.
var ErrJobNotFailed = errors.New("job is not failed")

// JobOutcome is what a consumer reports for a claimed job. A non-empty
// FailReason fails the job instead of completing it.
type JobOutcome struct {
	Costs      []CostLogEntry
	Metrics    []Metric
	ActualCost float64
	FailReason string
}

// Settle moves a processing job to its final state and writes its ledger and
// metric rows in the same transaction. The job transition runs first, so a
// job that was already settled writes nothing and returns ErrJobNotProcessing.
func (r *JobRepository) Settle(id int64, out JobOutcome, now time.Time) (JobStatus, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var status JobStatus
	if out.FailReason != "" {
		status, err = failJob(tx, id, out.FailReason, now)
	} else {
		status, err = completeJob(tx, id, out.ActualCost, now)
	}
	if err != nil {
		return "", err
	}

	for i := range out.Costs {
		if _, err := appendCost(tx, &out.Costs[i]); err != nil {
			return "", err
		}
	}
	for i := range out.Metrics {
		if _, err := insertMetric(tx, &out.Metrics[i]); err != nil {
			return "", err
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit job outcome: %w", err)
	}
	return status, nil
}

func completeJob(tx *sql.Tx, id int64, actualCost float64, now time.Time) (JobStatus, error) {
	var podcastID int64
	err := tx.QueryRow(`
		UPDATE jobs SET status = 'completed', actual_cost_usd = ?, completed_at = ?, error_message = ''
		WHERE id = ? AND status = 'processing'
		RETURNING podcast_id
	`, actualCost, UTC(now), id).Scan(&podcastID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("job %d: %w", id, ErrJobNotProcessing)
		}
		return "", fmt.Errorf("failed to complete job: %w", err)
	}

	_, err = tx.Exec(`
		UPDATE podcasts SET tracking_status = 'tracked', last_enriched_at = ?, updated_at = ?
		WHERE id = ?
	`, UTC(now), UTC(now), podcastID)
	if err != nil {
		return "", fmt.Errorf("failed to mark podcast enriched: %w", err)
	}
	return JobCompleted, nil
}

// Fail requeues a processing job while attempts remain, otherwise marks it
// permanently failed. Returns the resulting status.
func (r *JobRepository) Fail(id int64, reason string, now time.Time) (JobStatus, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	status, err := failJob(tx, id, reason, now)
	if err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit job failure: %w", err)
	}
	return status, nil
}

func failJob(tx *sql.Tx, id int64, reason string, now time.Time) (JobStatus, error) {
	var status JobStatus
	var podcastID int64
	err := tx.QueryRow(`
		UPDATE jobs SET
			status = CASE WHEN attempts < max_attempts THEN 'queued' ELSE 'failed' END,
			completed_at = CASE WHEN attempts < max_attempts THEN NULL ELSE ? END,
			error_message = ?
		WHERE id = ? AND status = 'processing'
		RETURNING status, podcast_id
	`, UTC(now), reason, id).Scan(&status, &podcastID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("job %d: %w", id, ErrJobNotProcessing)
		}
		return "", fmt.Errorf("failed to fail job: %w", err)
	}

	next := TrackingQueued
	if status == JobFailed {
		next = TrackingFailed
	}
	_, err = tx.Exec(`
		UPDATE podcasts SET tracking_status = ?, updated_at = ?
		WHERE id = ? AND tracking_status IN ('queued', 'processing')
	`, next, UTC(now), podcastID)
	if err != nil {
		return "", fmt.Errorf("failed to update podcast status: %w", err)
	}
	return status, nil
}

// Requeue resets a permanently failed job back to queued with zero attempts
func (r *JobRepository) Requeue(id int64) error {
	res, err := r.db.Exec(`
		UPDATE jobs SET status = 'queued', attempts = 0, error_message = '', started_at = NULL, completed_at = NULL
		WHERE id = ? AND status = 'failed'
	`, id)
	if err != nil {
		return fmt.Errorf("failed to requeue job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("job %d: %w", id, ErrJobNotFailed)
	}
	return nil
}

func (r *JobRepository) GetByID(id int64) (*Job, error) {
	job, err := scanJob(r.db.QueryRow(`SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

func (r *JobRepository) ListByPodcast(podcastID int64) ([]Job, error) {
	rows, err := r.db.Query(`SELECT `+jobColumns+` FROM jobs WHERE podcast_id = ? ORDER BY id`, podcastID)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

func (r *JobRepository) HasActiveJob(podcastID int64) (bool, error) {
	var n int
	err := r.db.QueryRow(`
		SELECT COUNT(*) FROM jobs WHERE podcast_id = ? AND status IN ('queued', 'processing')
	`, podcastID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check active jobs: %w", err)
	}
	return n > 0, nil
}

// Stats returns job counts keyed by status
func (r *JobRepository) Stats() (map[JobStatus]int, error) {
	rows, err := r.db.Query(`SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to query job stats: %w", err)
	}
	defer rows.Close()

	stats := map[JobStatus]int{JobQueued: 0, JobProcessing: 0, JobCompleted: 0, JobFailed: 0}
	for rows.Next() {
		var status JobStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan job stats: %w", err)
		}
		stats[status] = n
	}
	return stats, rows.Err()
}
