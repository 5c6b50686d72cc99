package database

import (
	"fmt"
	"time"
)

// MetricRepository stores the append-only history of fetched social metrics
type MetricRepository struct {
	db *DB
}

func NewMetricRepository(db *DB) *MetricRepository {
	return &MetricRepository{db: db}
}

const metricColumns = `m.id, m.social_link_id, m.podcast_id, m.platform, m.followers_count,
	m.subscriber_count, m.view_count, m.fetched_at, m.expires_at`

// latestMetric restricts m to the newest row of its (podcast, platform).
const latestMetric = `m.id = (
	SELECT m2.id FROM metrics m2
	WHERE m2.podcast_id = m.podcast_id AND m2.platform = m.platform
	ORDER BY m2.fetched_at DESC, m2.id DESC
	LIMIT 1
)`

const noActiveJob = `NOT EXISTS (
	SELECT 1 FROM jobs j WHERE j.podcast_id = %s AND j.status IN ('queued', 'processing')
)`

func (r *MetricRepository) Insert(m *Metric) (int64, error) {
	return insertMetric(r.db, m)
}

func insertMetric(q queryer, m *Metric) (int64, error) {
	var id int64
	err := q.QueryRow(`
		INSERT INTO metrics (social_link_id, podcast_id, platform, followers_count, subscriber_count,
			view_count, fetched_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`, m.SocialLinkID, m.PodcastID, m.Platform, m.FollowersCount, m.SubscriberCount, m.ViewCount,
		UTC(m.FetchedAt), UTC(m.ExpiresAt)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert metric: %w", err)
	}
	return id, nil
}

func (r *MetricRepository) queryMetrics(query string, args ...any) ([]Metric, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query metrics: %w", err)
	}
	defer rows.Close()

	var metrics []Metric
	for rows.Next() {
		var m Metric
		if err := rows.Scan(&m.ID, &m.SocialLinkID, &m.PodcastID, &m.Platform, &m.FollowersCount,
			&m.SubscriberCount, &m.ViewCount, &m.FetchedAt, &m.ExpiresAt); err != nil {
			return nil, fmt.Errorf("failed to scan metric: %w", err)
		}
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}

// Latest returns the newest metric per platform for a podcast
func (r *MetricRepository) Latest(podcastID int64) ([]Metric, error) {
	return r.queryMetrics(`
		SELECT `+metricColumns+` FROM metrics m
		WHERE m.podcast_id = ? AND `+latestMetric+`
		ORDER BY m.platform
	`, podcastID)
}

// Expired returns latest metrics whose expiry has passed, oldest expiry first,
// skipping podcasts that already have a queued or processing job.
func (r *MetricRepository) Expired(now time.Time, limit int) ([]Metric, error) {
	return r.queryMetrics(`
		SELECT `+metricColumns+` FROM metrics m
		WHERE `+latestMetric+`
			AND m.expires_at <= ?
			AND `+fmt.Sprintf(noActiveJob, "m.podcast_id")+`
		ORDER BY m.expires_at ASC, m.id ASC
		LIMIT ?
	`, UTC(now), limit)
}

// NeverEnriched returns social links with no recorded metrics whose podcast has no active job
func (r *MetricRepository) NeverEnriched(limit int) ([]SocialLink, error) {
	rows, err := r.db.Query(`
		SELECT l.id, l.podcast_id, l.platform, l.profile_url, l.handle, l.discovered_at
		FROM social_links l
		WHERE NOT EXISTS (SELECT 1 FROM metrics m WHERE m.social_link_id = l.id)
			AND `+fmt.Sprintf(noActiveJob, "l.podcast_id")+`
		ORDER BY l.discovered_at ASC, l.id ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query unenriched links: %w", err)
	}
	defer rows.Close()

	var links []SocialLink
	for rows.Next() {
		var l SocialLink
		if err := rows.Scan(&l.ID, &l.PodcastID, &l.Platform, &l.ProfileURL, &l.Handle, &l.DiscoveredAt); err != nil {
			return nil, fmt.Errorf("failed to scan social link: %w", err)
		}
		links = append(links, l)
	}
	return links, rows.Err()
}
