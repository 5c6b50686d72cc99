package enrichment

import (
	"time"

	"github.com/lysyi3m/podcast-influence-tracker/app/database"
)

type PodcastStore interface {
	GetByID(id int64) (*database.Podcast, error)
	GetSocialLinks(podcastID int64) ([]database.SocialLink, error)
}

type MetricStore interface {
	Latest(podcastID int64) ([]database.Metric, error)
	Expired(now time.Time, limit int) ([]database.Metric, error)
	NeverEnriched(limit int) ([]database.SocialLink, error)
}

type JobQueue interface {
	Enqueue(job *database.Job, now time.Time) (int64, error)
	EnqueueWithinBudget(job *database.Job, periodStart time.Time, pendingCost, limit float64, now time.Time) (int64, bool, error)
	ClaimNext(now time.Time) (*database.Job, error)
	GetByID(id int64) (*database.Job, error)
	Settle(id int64, out database.JobOutcome, now time.Time) (database.JobStatus, error)
	Fail(id int64, reason string, now time.Time) (database.JobStatus, error)
	Requeue(id int64) error
	HasActiveJob(podcastID int64) (bool, error)
	Stats() (map[database.JobStatus]int, error)
}

type CostLedger interface {
	ListSince(since time.Time, limit int) ([]database.CostLogEntry, error)
	SpentSince(since time.Time) (float64, error)
}

var _ PodcastStore = (*database.PodcastRepository)(nil)
var _ MetricStore = (*database.MetricRepository)(nil)
var _ JobQueue = (*database.JobRepository)(nil)
var _ CostLedger = (*database.CostLogRepository)(nil)
