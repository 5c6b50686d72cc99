package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/podcast-influence-tracker/app/settings"
)

// RefreshMetricsTask queues re-fetch jobs for expired metrics. A run that stopped
// at the budget must not be replayed, so it never retries.
type RefreshMetricsTask struct {
	Task
	settings  settings.Store
	refresher MetricsRefresher
}

func NewRefreshMetricsTask(store settings.Store, refresher MetricsRefresher) *RefreshMetricsTask {
	t := &RefreshMetricsTask{
		Task:      NewTask(TaskTypeRefreshMetrics, ""),
		settings:  store,
		refresher: refresher,
	}
	t.MaxRetries = 0
	return t
}

func (t *RefreshMetricsTask) Execute(ctx context.Context) error {
	s, err := settings.Load(t.settings)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	report, err := t.refresher.RunRefresh(ctx, s)
	if err != nil {
		return fmt.Errorf("failed to run refresh: %w", err)
	}

	slog.Debug("Task completed",
		"type", string(t.Type),
		"duration", t.Elapsed(),
		"candidates", report.Candidates,
		"queued", report.Queued,
		"budget_exhausted", report.BudgetExhausted)
	return nil
}

// AutoEnrichTask queues first-time jobs for podcasts that were never enriched.
type AutoEnrichTask struct {
	Task
	settings  settings.Store
	refresher MetricsRefresher
}

func NewAutoEnrichTask(store settings.Store, refresher MetricsRefresher) *AutoEnrichTask {
	t := &AutoEnrichTask{
		Task:      NewTask(TaskTypeAutoEnrich, ""),
		settings:  store,
		refresher: refresher,
	}
	t.MaxRetries = 0
	return t
}

func (t *AutoEnrichTask) Execute(ctx context.Context) error {
	s, err := settings.Load(t.settings)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	report, err := t.refresher.RunAutoEnrich(ctx, s)
	if err != nil {
		return fmt.Errorf("failed to run auto-enrich: %w", err)
	}

	slog.Debug("Task completed",
		"type", string(t.Type),
		"duration", t.Elapsed(),
		"candidates", report.Candidates,
		"queued", report.Queued,
		"budget_exhausted", report.BudgetExhausted)
	return nil
}
