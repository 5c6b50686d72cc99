package tasks

import (
	"context"
	"fmt"

	"github.com/lysyi3m/podcast-influence-tracker/app/settings"
)

// ImportPodcastTask imports one RSS feed in the background.
type ImportPodcastTask struct {
	Task
	settings settings.Store
	importer FeedImporter
	track    bool
}

func NewImportPodcastTask(feedURL string, track bool, store settings.Store, importer FeedImporter) *ImportPodcastTask {
	return &ImportPodcastTask{
		Task:     NewTask(TaskTypeImportPodcast, feedURL),
		settings: store,
		importer: importer,
		track:    track,
	}
}

func (t *ImportPodcastTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	s, err := settings.Load(t.settings)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	if _, err := t.importer.ImportFeed(ctx, s, t.Subject, t.track); err != nil {
		return fmt.Errorf("failed to import feed: %w", err)
	}
	return nil
}
