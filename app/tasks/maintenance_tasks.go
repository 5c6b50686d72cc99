package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/podcast-influence-tracker/app/settings"
)

type ProcessNotificationsTask struct {
	Task
	settings  settings.Store
	processor NotificationProcessor
}

func NewProcessNotificationsTask(store settings.Store, processor NotificationProcessor) *ProcessNotificationsTask {
	return &ProcessNotificationsTask{
		Task:      NewTask(TaskTypeProcessNotifications, ""),
		settings:  store,
		processor: processor,
	}
}

func (t *ProcessNotificationsTask) Execute(ctx context.Context) error {
	s, err := settings.Load(t.settings)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	report, err := t.processor.Process(ctx, s)
	if err != nil {
		return fmt.Errorf("failed to process notifications: %w", err)
	}

	slog.Debug("Task completed",
		"type", string(t.Type),
		"duration", t.Elapsed(),
		"created", report.Created,
		"emailed", report.Emailed)
	return nil
}

type CleanupRateLimitsTask struct {
	Task
	cleaner RateLimitCleaner
}

func NewCleanupRateLimitsTask(cleaner RateLimitCleaner) *CleanupRateLimitsTask {
	return &CleanupRateLimitsTask{
		Task:    NewTask(TaskTypeCleanupRateLimits, ""),
		cleaner: cleaner,
	}
}

func (t *CleanupRateLimitsTask) Execute(ctx context.Context) error {
	deleted, err := t.cleaner.Cleanup(ctx)
	if err != nil {
		return fmt.Errorf("failed to clean up rate limits: %w", err)
	}
	slog.Debug("Task completed", "type", string(t.Type), "duration", t.Elapsed(), "deleted", deleted)
	return nil
}

// AutoMergeTask folds guests that share both email and LinkedIn hashes.
type AutoMergeTask struct {
	Task
	merger GuestMerger
}

func NewAutoMergeTask(merger GuestMerger) *AutoMergeTask {
	return &AutoMergeTask{
		Task:   NewTask(TaskTypeAutoMerge, ""),
		merger: merger,
	}
}

func (t *AutoMergeTask) Execute(ctx context.Context) error {
	report, err := t.merger.AutoMergeObviousDuplicates(ctx, false)
	if err != nil {
		return fmt.Errorf("failed to auto-merge guests: %w", err)
	}
	slog.Debug("Task completed",
		"type", string(t.Type),
		"duration", t.Elapsed(),
		"groups", report.Groups,
		"merged", report.Merged,
		"failed", report.Failed)
	return nil
}
