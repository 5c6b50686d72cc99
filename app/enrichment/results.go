package enrichment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/podcast-influence-tracker/app/database"
)

// FetchResult is what a job consumer reports for one platform of a claimed job.
type FetchResult struct {
	Platform        database.Platform `json:"platform"`
	FollowersCount  int64             `json:"followers_count"`
	SubscriberCount int64             `json:"subscriber_count"`
	ViewCount       int64             `json:"view_count"`
	Provider        string            `json:"provider"`
	CostUSD         float64           `json:"cost_usd"`
	Success         bool              `json:"success"`
	Error           string            `json:"error,omitempty"`
}

// ClaimNext hands the next queued job to a consumer. Returns nil when the queue is empty.
func (r *Refresher) ClaimNext(ctx context.Context) (*database.Job, error) {
	return r.jobs.ClaimNext(r.now())
}

// RecordResults stores what a consumer fetched for a claimed job: every result is
// priced into the cost ledger, successful ones become metric rows whose expiry follows
// the follower tier. A job with at least one success completes; otherwise it fails and
// the queue decides whether it is retried. Ledger and metric rows are written only by
// the call that moves the job out of processing, so a repeated post charges nothing.
func (r *Refresher) RecordResults(ctx context.Context, jobID int64, results []FetchResult) (*database.Job, error) {
	job, err := r.jobs.GetByID(jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, ErrJobNotFound
	}
	if job.Status != database.JobProcessing {
		return nil, ErrJobNotClaimed
	}

	links, err := r.podcasts.GetSocialLinks(job.PodcastID)
	if err != nil {
		return nil, err
	}
	linkIDs := make(map[database.Platform]int64, len(links))
	for _, l := range links {
		linkIDs[l.Platform] = l.ID
	}

	now := r.now()
	out := database.JobOutcome{}
	for _, res := range results {
		podcastID, id := job.PodcastID, job.ID
		out.Costs = append(out.Costs, database.CostLogEntry{
			PodcastID:   &podcastID,
			JobID:       &id,
			ActionType:  string(job.JobType),
			Platform:    string(res.Platform),
			APIProvider: res.Provider,
			CostUSD:     res.CostUSD,
			Success:     res.Success,
			LoggedAt:    now,
		})
		out.ActualCost += res.CostUSD

		if !res.Success {
			slog.Warn("Platform fetch failed", "job", job.ID, "podcast", job.PodcastID, "platform", res.Platform, "error", res.Error)
			continue
		}

		linkID, ok := linkIDs[res.Platform]
		if !ok {
			slog.Warn("Result for unlinked platform ignored", "job", job.ID, "platform", res.Platform)
			continue
		}

		m := database.Metric{
			SocialLinkID:    linkID,
			PodcastID:       job.PodcastID,
			Platform:        res.Platform,
			FollowersCount:  res.FollowersCount,
			SubscriberCount: res.SubscriberCount,
			ViewCount:       res.ViewCount,
			FetchedAt:       now,
		}
		m.ExpiresAt = ExpiresAt(m.Audience(), now)
		out.Metrics = append(out.Metrics, m)
	}
	if len(out.Metrics) == 0 {
		out.FailReason = "no platform fetch succeeded"
	}

	status, err := r.jobs.Settle(job.ID, out, now)
	if err != nil {
		if errors.Is(err, database.ErrJobNotProcessing) {
			return nil, ErrJobNotClaimed
		}
		return nil, err
	}
	if status == database.JobCompleted {
		slog.Info("Job completed", "job", job.ID, "podcast", job.PodcastID, "platforms", len(out.Metrics), "cost", out.ActualCost)
	} else {
		slog.Warn("Job failed", "job", job.ID, "podcast", job.PodcastID, "status", status, "attempts", job.Attempts)
	}

	return r.jobs.GetByID(job.ID)
}

// FailJob lets a consumer give up on a claimed job without results.
func (r *Refresher) FailJob(ctx context.Context, jobID int64, reason string) (database.JobStatus, error) {
	job, err := r.jobs.GetByID(jobID)
	if err != nil {
		return "", err
	}
	if job == nil {
		return "", ErrJobNotFound
	}
	if job.Status != database.JobProcessing {
		return "", ErrJobNotClaimed
	}
	status, err := r.jobs.Fail(jobID, reason, r.now())
	if errors.Is(err, database.ErrJobNotProcessing) {
		return "", ErrJobNotClaimed
	}
	return status, err
}

func (r *Refresher) RequeueJob(ctx context.Context, jobID int64) error {
	job, err := r.jobs.GetByID(jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return ErrJobNotFound
	}
	if err := r.jobs.Requeue(jobID); err != nil {
		if errors.Is(err, database.ErrJobNotFailed) {
			return ErrJobNotFailed
		}
		return fmt.Errorf("failed to requeue job %d: %w", jobID, err)
	}
	return nil
}

// QueueStats reports job counts per status
func (r *Refresher) QueueStats(ctx context.Context) (map[database.JobStatus]int, error) {
	return r.jobs.Stats()
}

// LatestMetrics returns the newest metric per platform with its remaining freshness.
func (r *Refresher) LatestMetrics(ctx context.Context, podcastID int64) ([]database.Metric, error) {
	return r.metrics.Latest(podcastID)
}
