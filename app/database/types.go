package database

import (
	"time"
)

type TrackingStatus string

const (
	TrackingNotTracked TrackingStatus = "not_tracked"
	TrackingQueued     TrackingStatus = "queued"
	TrackingProcessing TrackingStatus = "processing"
	TrackingTracked    TrackingStatus = "tracked"
	TrackingFailed     TrackingStatus = "failed"
)

type Platform string

const (
	PlatformYouTube       Platform = "youtube"
	PlatformTwitter       Platform = "twitter"
	PlatformInstagram     Platform = "instagram"
	PlatformFacebook      Platform = "facebook"
	PlatformLinkedIn      Platform = "linkedin"
	PlatformTikTok        Platform = "tiktok"
	PlatformSpotify       Platform = "spotify"
	PlatformApplePodcasts Platform = "apple_podcasts"
)

// Platforms lists every supported social platform in display order.
var Platforms = []Platform{
	PlatformYouTube,
	PlatformTwitter,
	PlatformInstagram,
	PlatformFacebook,
	PlatformLinkedIn,
	PlatformTikTok,
	PlatformSpotify,
	PlatformApplePodcasts,
}

func ParsePlatform(s string) (Platform, bool) {
	for _, p := range Platforms {
		if string(p) == s {
			return p, true
		}
	}
	return "", false
}

type JobType string

const (
	JobInitialTracking   JobType = "initial_tracking"
	JobBackgroundRefresh JobType = "background_refresh"
	JobManualRefresh     JobType = "manual_refresh"
	JobAutoEnrich        JobType = "auto_enrich"
)

type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

type Podcast struct {
	ID             int64
	Title          string
	Description    string
	Author         string
	RSSFeedURL     string
	WebsiteURL     string
	ImageURL       string
	TrackingStatus TrackingStatus
	LastEnrichedAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type SocialLink struct {
	ID           int64
	PodcastID    int64
	Platform     Platform
	ProfileURL   string
	Handle       string
	DiscoveredAt time.Time
}

type Metric struct {
	ID              int64
	SocialLinkID    int64
	PodcastID       int64
	Platform        Platform
	FollowersCount  int64
	SubscriberCount int64
	ViewCount       int64
	FetchedAt       time.Time
	ExpiresAt       time.Time
}

// Audience is the count used for tiering: followers or subscribers, whichever the platform reports.
func (m Metric) Audience() int64 {
	return max(m.FollowersCount, m.SubscriberCount)
}

type Job struct {
	ID               int64
	PodcastID        int64
	JobType          JobType
	Platforms        []Platform
	Status           JobStatus
	Priority         int
	Attempts         int
	MaxAttempts      int
	EstimatedCostUSD float64
	ActualCostUSD    *float64
	ErrorMessage     string
	CreatedAt        time.Time
	StartedAt        *time.Time
	CompletedAt      *time.Time
}

// CostLogEntry is one priced provider call. Entries are never updated.
type CostLogEntry struct {
	ID          int64
	UserID      *int64
	PodcastID   *int64
	JobID       *int64
	ActionType  string
	Platform    string
	APIProvider string
	CostUSD     float64
	Success     bool
	LoggedAt    time.Time
}
