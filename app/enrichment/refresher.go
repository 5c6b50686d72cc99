package enrichment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/lysyi3m/podcast-influence-tracker/app/database"
	"github.com/lysyi3m/podcast-influence-tracker/app/metrics"
	"github.com/lysyi3m/podcast-influence-tracker/app/settings"
)

const (
	PriorityManualRefresh     = 80
	PriorityInitialTracking   = 60
	PriorityAutoEnrich        = 50
	PriorityBackgroundRefresh = 30
)

var (
	ErrPodcastNotFound = errors.New("podcast not found")
	ErrNoPlatforms     = errors.New("podcast has no social platforms")
	ErrUnknownPlatform = errors.New("platform is not linked to podcast")
	ErrJobNotFound     = errors.New("job not found")
	ErrJobNotClaimed   = errors.New("job is not processing")
	ErrJobNotFailed    = errors.New("job has not failed")
)

// RunReport summarises one scheduler run.
type RunReport struct {
	Kind            string  `json:"kind"`
	BudgetExhausted bool    `json:"budget_exhausted"`
	Candidates      int     `json:"candidates"`
	Queued          int     `json:"queued"`
	Skipped         int     `json:"skipped"`
	QueuedCost      float64 `json:"queued_cost_usd"`
	Spent           float64 `json:"spent_usd"`
	Limit           float64 `json:"limit_usd"`
	JobIDs          []int64 `json:"job_ids,omitempty"`
}

type candidate struct {
	podcastID int64
	platforms []database.Platform
}

// Refresher turns stale or missing metrics into budget-gated enrichment jobs.
type Refresher struct {
	podcasts PodcastStore
	metrics  MetricStore
	jobs     JobQueue
	ledger   CostLedger
	now      func() time.Time

	// serialises runs so two overlapping runs cannot both spend the same headroom
	mu sync.Mutex
}

func NewRefresher(podcasts PodcastStore, metricStore MetricStore, jobs JobQueue, ledger CostLedger) *Refresher {
	return &Refresher{
		podcasts: podcasts,
		metrics:  metricStore,
		jobs:     jobs,
		ledger:   ledger,
		now:      time.Now,
	}
}

// RunRefresh queues background refreshes for podcasts whose latest metrics have expired.
func (r *Refresher) RunRefresh(ctx context.Context, s settings.Settings) (RunReport, error) {
	return r.run(ctx, s, "refresh", database.JobBackgroundRefresh, PriorityBackgroundRefresh,
		func(now time.Time) ([]candidate, error) {
			expired, err := r.metrics.Expired(now, s.RefreshBatchSize)
			if err != nil {
				return nil, err
			}
			return groupExpired(expired), nil
		})
}

// RunAutoEnrich queues first fetches for social links that have never been enriched.
func (r *Refresher) RunAutoEnrich(ctx context.Context, s settings.Settings) (RunReport, error) {
	return r.run(ctx, s, "auto_enrich", database.JobAutoEnrich, PriorityAutoEnrich,
		func(now time.Time) ([]candidate, error) {
			links, err := r.metrics.NeverEnriched(s.AutoEnrichBatchSize)
			if err != nil {
				return nil, err
			}
			return groupLinks(links), nil
		})
}

func (r *Refresher) run(ctx context.Context, s settings.Settings, kind string, jobType database.JobType, priority int,
	find func(now time.Time) ([]candidate, error)) (RunReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	periodStart := WeekStart(now)
	report := RunReport{Kind: kind, Limit: s.WeeklyBudgetUSD}

	spent, err := r.ledger.SpentSince(periodStart)
	if err != nil {
		return report, fmt.Errorf("failed to read weekly spend: %w", err)
	}
	report.Spent = spent
	metrics.WeeklySpendUSD.Set(spent)

	if spent >= s.WeeklyBudgetUSD {
		report.BudgetExhausted = true
		metrics.RecordRefreshRun(kind, "budget_exhausted")
		slog.Info("Weekly budget exhausted, skipping run", "kind", kind, "spent", spent, "limit", s.WeeklyBudgetUSD)
		return report, nil
	}

	candidates, err := find(now)
	if err != nil {
		return report, fmt.Errorf("failed to find %s candidates: %w", kind, err)
	}
	report.Candidates = len(candidates)

	if len(candidates) == 0 {
		metrics.RecordRefreshRun(kind, "idle")
		slog.Debug("Nothing to queue", "kind", kind)
		return report, nil
	}

	// A started batch runs to its end; cancelling ctx does not leave it half queued.
	batchCtx := context.WithoutCancel(ctx)
	pacer := newPacer(s.QueueDelay)
	for i, c := range candidates {
		if err := pacer.Wait(batchCtx); err != nil {
			return report, err
		}

		cost := EstimateCost(c.platforms, s.PlatformCosts)
		job := &database.Job{
			PodcastID:        c.podcastID,
			JobType:          jobType,
			Platforms:        c.platforms,
			Priority:         priority,
			MaxAttempts:      s.MaxAttempts,
			EstimatedCostUSD: cost,
		}

		id, ok, err := r.jobs.EnqueueWithinBudget(job, periodStart, report.QueuedCost, s.WeeklyBudgetUSD, r.now())
		if err != nil {
			return report, err
		}
		if !ok {
			report.Skipped = len(candidates) - i
			slog.Info("Budget limit reached, stopped queueing", "kind", kind, "queued", report.Queued,
				"remaining", report.Skipped, "spent", spent, "queued_cost", report.QueuedCost, "limit", s.WeeklyBudgetUSD)
			break
		}

		report.Queued++
		report.QueuedCost += cost
		report.JobIDs = append(report.JobIDs, id)
		metrics.RecordJobQueued(string(jobType), cost)
	}

	metrics.RecordRefreshRun(kind, "queued")
	slog.Info("Run completed", "kind", kind, "candidates", report.Candidates, "queued", report.Queued,
		"queued_cost", report.QueuedCost, "spent", spent)
	return report, nil
}

// ManualRefresh queues an immediate refresh outside the tier and budget logic.
// With no platforms given, every linked platform of the podcast is fetched.
func (r *Refresher) ManualRefresh(ctx context.Context, s settings.Settings, podcastID int64, platforms []database.Platform) (int64, error) {
	linked, err := r.linkedPlatforms(podcastID)
	if err != nil {
		return 0, err
	}

	if len(platforms) == 0 {
		platforms = linked
	} else {
		for _, p := range platforms {
			if !slices.Contains(linked, p) {
				return 0, fmt.Errorf("%w: %s", ErrUnknownPlatform, p)
			}
		}
		platforms = dedupePlatforms(platforms)
	}
	if len(platforms) == 0 {
		return 0, ErrNoPlatforms
	}

	cost := EstimateCost(platforms, s.PlatformCosts)
	id, err := r.jobs.Enqueue(&database.Job{
		PodcastID:        podcastID,
		JobType:          database.JobManualRefresh,
		Platforms:        platforms,
		Priority:         PriorityManualRefresh,
		MaxAttempts:      s.MaxAttempts,
		EstimatedCostUSD: cost,
	}, r.now())
	if err != nil {
		return 0, err
	}

	metrics.RecordJobQueued(string(database.JobManualRefresh), cost)
	slog.Info("Manual refresh queued", "podcast", podcastID, "platforms", platforms, "job", id)
	return id, nil
}

// QueueInitialTracking queues the first fetch of a newly imported podcast,
// subject to the weekly budget. It returns false when nothing was queued.
func (r *Refresher) QueueInitialTracking(ctx context.Context, s settings.Settings, podcastID int64) (int64, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	platforms, err := r.linkedPlatforms(podcastID)
	if err != nil {
		return 0, false, err
	}
	if len(platforms) == 0 {
		return 0, false, nil
	}

	active, err := r.jobs.HasActiveJob(podcastID)
	if err != nil {
		return 0, false, err
	}
	if active {
		return 0, false, nil
	}

	now := r.now()
	cost := EstimateCost(platforms, s.PlatformCosts)
	id, ok, err := r.jobs.EnqueueWithinBudget(&database.Job{
		PodcastID:        podcastID,
		JobType:          database.JobInitialTracking,
		Platforms:        platforms,
		Priority:         PriorityInitialTracking,
		MaxAttempts:      s.MaxAttempts,
		EstimatedCostUSD: cost,
	}, WeekStart(now), 0, s.WeeklyBudgetUSD, now)
	if err != nil {
		return 0, false, err
	}
	if !ok {
		slog.Info("Weekly budget exhausted, initial tracking not queued", "podcast", podcastID, "estimate", cost)
		return 0, false, nil
	}

	metrics.RecordJobQueued(string(database.JobInitialTracking), cost)
	return id, true, nil
}

func (r *Refresher) linkedPlatforms(podcastID int64) ([]database.Platform, error) {
	podcast, err := r.podcasts.GetByID(podcastID)
	if err != nil {
		return nil, err
	}
	if podcast == nil {
		return nil, ErrPodcastNotFound
	}

	links, err := r.podcasts.GetSocialLinks(podcastID)
	if err != nil {
		return nil, err
	}
	platforms := make([]database.Platform, 0, len(links))
	for _, l := range links {
		platforms = append(platforms, l.Platform)
	}
	return platforms, nil
}

// groupExpired keeps the first-seen podcast order so the oldest expiry is queued first.
func groupExpired(expired []database.Metric) []candidate {
	var out []candidate
	index := make(map[int64]int)
	for _, m := range expired {
		i, ok := index[m.PodcastID]
		if !ok {
			i = len(out)
			index[m.PodcastID] = i
			out = append(out, candidate{podcastID: m.PodcastID})
		}
		if !slices.Contains(out[i].platforms, m.Platform) {
			out[i].platforms = append(out[i].platforms, m.Platform)
		}
	}
	return out
}

func groupLinks(links []database.SocialLink) []candidate {
	metricsLike := make([]database.Metric, len(links))
	for i, l := range links {
		metricsLike[i] = database.Metric{PodcastID: l.PodcastID, Platform: l.Platform}
	}
	return groupExpired(metricsLike)
}

func dedupePlatforms(platforms []database.Platform) []database.Platform {
	out := make([]database.Platform, 0, len(platforms))
	for _, p := range platforms {
		if !slices.Contains(out, p) {
			out = append(out, p)
		}
	}
	return out
}

// newPacer spaces successive queue insertions by delay. The first insertion is immediate.
func newPacer(delay time.Duration) *rate.Limiter {
	if delay <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(delay), 1)
}
