package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PodcastRepository handles database operations for podcasts and their social links
type PodcastRepository struct {
	db *DB
}

// NewPodcastRepository creates a new podcast repository
func NewPodcastRepository(db *DB) *PodcastRepository {
	return &PodcastRepository{db: db}
}

const podcastColumns = `id, title, description, author, rss_feed_url, website_url, image_url,
	tracking_status, last_enriched_at, created_at, updated_at`

func scanPodcast(row interface{ Scan(...any) error }) (*Podcast, error) {
	var p Podcast
	var lastEnriched sql.NullTime
	err := row.Scan(&p.ID, &p.Title, &p.Description, &p.Author, &p.RSSFeedURL, &p.WebsiteURL,
		&p.ImageURL, &p.TrackingStatus, &lastEnriched, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.LastEnrichedAt = timePtr(lastEnriched)
	return &p, nil
}

// UpsertByFeedURL inserts a podcast or refreshes its descriptive fields, keyed on the RSS URL.
// Tracking state is never touched by an upsert.
func (r *PodcastRepository) UpsertByFeedURL(p *Podcast, now time.Time) (int64, error) {
	now = UTC(now)
	var id int64
	err := r.db.QueryRow(`
		INSERT INTO podcasts (title, description, author, rss_feed_url, website_url, image_url,
			tracking_status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 'not_tracked', ?, ?)
		ON CONFLICT (rss_feed_url) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			author = excluded.author,
			website_url = excluded.website_url,
			image_url = excluded.image_url,
			updated_at = excluded.updated_at
		RETURNING id
	`, p.Title, p.Description, p.Author, p.RSSFeedURL, p.WebsiteURL, p.ImageURL, now, now).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert podcast: %w", err)
	}
	return id, nil
}

// GetByID returns nil when the podcast does not exist
func (r *PodcastRepository) GetByID(id int64) (*Podcast, error) {
	p, err := scanPodcast(r.db.QueryRow(`SELECT `+podcastColumns+` FROM podcasts WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get podcast: %w", err)
	}
	return p, nil
}

func (r *PodcastRepository) GetByFeedURL(feedURL string) (*Podcast, error) {
	p, err := scanPodcast(r.db.QueryRow(`SELECT `+podcastColumns+` FROM podcasts WHERE rss_feed_url = ?`, feedURL))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get podcast by feed url: %w", err)
	}
	return p, nil
}

func (r *PodcastRepository) UpdateTrackingStatus(id int64, status TrackingStatus, now time.Time) error {
	_, err := r.db.Exec(`UPDATE podcasts SET tracking_status = ?, updated_at = ? WHERE id = ?`,
		status, UTC(now), id)
	if err != nil {
		return fmt.Errorf("failed to update tracking status: %w", err)
	}
	return nil
}

// UpsertSocialLink keeps at most one link per (podcast, platform); a later discovery replaces the URL.
func (r *PodcastRepository) UpsertSocialLink(link *SocialLink, now time.Time) (int64, error) {
	var id int64
	err := r.db.QueryRow(`
		INSERT INTO social_links (podcast_id, platform, profile_url, handle, discovered_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (podcast_id, platform) DO UPDATE SET
			profile_url = excluded.profile_url,
			handle = excluded.handle
		RETURNING id
	`, link.PodcastID, link.Platform, link.ProfileURL, link.Handle, UTC(now)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert social link: %w", err)
	}
	return id, nil
}

func (r *PodcastRepository) GetSocialLinks(podcastID int64) ([]SocialLink, error) {
	rows, err := r.db.Query(`
		SELECT id, podcast_id, platform, profile_url, handle, discovered_at
		FROM social_links WHERE podcast_id = ? ORDER BY id
	`, podcastID)
	if err != nil {
		return nil, fmt.Errorf("failed to query social links: %w", err)
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

func (r *PodcastRepository) GetPodcastCount() (int, error) {
	var count int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM podcasts`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count podcasts: %w", err)
	}
	return count, nil
}
