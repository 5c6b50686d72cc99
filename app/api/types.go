package api

import (
	"context"
	"time"

	"github.com/lysyi3m/podcast-influence-tracker/app/crm"
	"github.com/lysyi3m/podcast-influence-tracker/app/database"
	"github.com/lysyi3m/podcast-influence-tracker/app/enrichment"
	"github.com/lysyi3m/podcast-influence-tracker/app/guests"
	"github.com/lysyi3m/podcast-influence-tracker/app/ratelimit"
	"github.com/lysyi3m/podcast-influence-tracker/app/settings"
	"github.com/lysyi3m/podcast-influence-tracker/app/tasks"
)

type MergeEngine interface {
	FindDuplicates(ctx context.Context) ([]guests.DuplicateGroup, error)
	ExecuteMerge(ctx context.Context, masterID, duplicateID int64, dryRun bool) (guests.MergeResult, error)
	AutoMergeObviousDuplicates(ctx context.Context, dryRun bool) (guests.AutoMergeReport, error)
}

type ClaimWorkflow interface {
	RequestClaim(ctx context.Context, guestID, userID int64, verifiedEmail string) (*database.ClaimRequest, error)
	Approve(ctx context.Context, claimID, reviewerID int64) (*database.ClaimRequest, error)
	Reject(ctx context.Context, claimID, reviewerID int64, reason string) (*database.ClaimRequest, error)
}

var (
	_ MergeEngine   = (*guests.Engine)(nil)
	_ ClaimWorkflow = (*guests.Claims)(nil)
)

type Deps struct {
	Settings  settings.Store
	Podcasts  *database.PodcastRepository
	Refresher *enrichment.Refresher
	Ledger    *enrichment.Ledger
	Guests    MergeEngine
	Claims    ClaimWorkflow
	CRM       *crm.Service
	Limiter   *ratelimit.Limiter
	Importer  tasks.FeedImporter
	Scheduler tasks.TaskSchedulerInterface
	Version   string
}

type Handler struct {
	settings  settings.Store
	podcasts  *database.PodcastRepository
	refresher *enrichment.Refresher
	ledger    *enrichment.Ledger
	guests    MergeEngine
	claims    ClaimWorkflow
	crm       *crm.Service
	limiter   *ratelimit.Limiter
	importer  tasks.FeedImporter
	scheduler tasks.TaskSchedulerInterface
	version   string
}

type importRequest struct {
	FeedURL string `json:"feed_url" binding:"required"`
	Track   bool   `json:"track"`
	Async   bool   `json:"async"`
}

type refreshRequest struct {
	Platforms []string `json:"platforms"`
}

type jobResultsRequest struct {
	Results []enrichment.FetchResult `json:"results" binding:"required"`
}

type failJobRequest struct {
	Reason string `json:"reason"`
}

type mergeRequest struct {
	MasterID    int64 `json:"master_id" binding:"required"`
	DuplicateID int64 `json:"duplicate_id" binding:"required"`
	DryRun      bool  `json:"dry_run"`
}

type autoMergeRequest struct {
	DryRun bool `json:"dry_run"`
}

type claimRequest struct {
	VerifiedEmail string `json:"verified_email"`
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

type opportunityRequest struct {
	GuestID   int64  `json:"guest_id" binding:"required"`
	PodcastID *int64 `json:"podcast_id"`
	Priority  string `json:"priority"`
	Notes     string `json:"notes"`
}

type noteRequest struct {
	Body string `json:"body" binding:"required"`
}

type appearanceRequest struct {
	GuestID       int64      `json:"guest_id" binding:"required"`
	PodcastID     *int64     `json:"podcast_id"`
	OpportunityID *int64     `json:"opportunity_id"`
	EpisodeTitle  string     `json:"episode_title"`
	InterviewAt   *time.Time `json:"interview_at"`
}

type taskRequest struct {
	Title      string     `json:"title" binding:"required"`
	DueAt      *time.Time `json:"due_at"`
	ReminderAt *time.Time `json:"reminder_at"`
}

type budgetResponse struct {
	enrichment.BudgetStatus
	Recent []map[string]any `json:"recent"`
}

type moveRequest struct {
	Status string `json:"status" binding:"required"`
	Note   string `json:"note"`
}

func jobJSON(j *database.Job) map[string]any {
	out := map[string]any{
		"id":                 j.ID,
		"podcast_id":         j.PodcastID,
		"job_type":           j.JobType,
		"platforms":          j.Platforms,
		"status":             j.Status,
		"priority":           j.Priority,
		"attempts":           j.Attempts,
		"max_attempts":       j.MaxAttempts,
		"estimated_cost_usd": j.EstimatedCostUSD,
		"created_at":         j.CreatedAt,
	}
	if j.ActualCostUSD != nil {
		out["actual_cost_usd"] = *j.ActualCostUSD
	}
	if j.ErrorMessage != "" {
		out["error_message"] = j.ErrorMessage
	}
	if j.StartedAt != nil {
		out["started_at"] = j.StartedAt
	}
	if j.CompletedAt != nil {
		out["completed_at"] = j.CompletedAt
	}
	return out
}

func costEntryJSON(e database.CostLogEntry) map[string]any {
	out := map[string]any{
		"id":          e.ID,
		"action_type": e.ActionType,
		"platform":    e.Platform,
		"provider":    e.APIProvider,
		"cost_usd":    e.CostUSD,
		"success":     e.Success,
		"logged_at":   e.LoggedAt,
	}
	if e.PodcastID != nil {
		out["podcast_id"] = *e.PodcastID
	}
	if e.JobID != nil {
		out["job_id"] = *e.JobID
	}
	return out
}

func metricJSON(m database.Metric) map[string]any {
	return map[string]any{
		"platform":         m.Platform,
		"followers_count":  m.FollowersCount,
		"subscriber_count": m.SubscriberCount,
		"view_count":       m.ViewCount,
		"fetched_at":       m.FetchedAt,
		"expires_at":       m.ExpiresAt,
		"refresh_interval": enrichment.RefreshInterval(m.Audience()).String(),
	}
}
