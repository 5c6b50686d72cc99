package tasks

import (
	"context"

	"github.com/lysyi3m/podcast-influence-tracker/app/discovery"
	"github.com/lysyi3m/podcast-influence-tracker/app/enrichment"
	"github.com/lysyi3m/podcast-influence-tracker/app/guests"
	"github.com/lysyi3m/podcast-influence-tracker/app/notify"
	"github.com/lysyi3m/podcast-influence-tracker/app/ratelimit"
	"github.com/lysyi3m/podcast-influence-tracker/app/settings"
)

// TaskSchedulerInterface is what the application needs from the background scheduler.
//
//	scheduler := NewScheduler(deps, schedules, workerCount)
//	if err := scheduler.Start(); err != nil { ... }
//	defer scheduler.Stop()
//	scheduler.EnqueueTask(NewImportPodcastTask(...))
type TaskSchedulerInterface interface {
	Start() error
	Stop()
	EnqueueTask(task TaskInterface) error
}

type MetricsRefresher interface {
	RunRefresh(ctx context.Context, s settings.Settings) (enrichment.RunReport, error)
	RunAutoEnrich(ctx context.Context, s settings.Settings) (enrichment.RunReport, error)
}

type NotificationProcessor interface {
	Process(ctx context.Context, s settings.Settings) (notify.Report, error)
}

type RateLimitCleaner interface {
	Cleanup(ctx context.Context) (int64, error)
}

type GuestMerger interface {
	AutoMergeObviousDuplicates(ctx context.Context, dryRun bool) (guests.AutoMergeReport, error)
}

type FeedImporter interface {
	ImportFeed(ctx context.Context, s settings.Settings, feedURL string, track bool) (*discovery.ImportResult, error)
}

var (
	_ MetricsRefresher      = (*enrichment.Refresher)(nil)
	_ NotificationProcessor = (*notify.Processor)(nil)
	_ RateLimitCleaner      = (*ratelimit.Limiter)(nil)
	_ GuestMerger           = (*guests.Engine)(nil)
	_ FeedImporter          = (*discovery.Importer)(nil)
)
