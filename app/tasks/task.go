package tasks

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type TaskType string

const (
	TaskTypeRefreshMetrics       TaskType = "refresh_metrics"
	TaskTypeAutoEnrich           TaskType = "auto_enrich"
	TaskTypeProcessNotifications TaskType = "process_notifications"
	TaskTypeCleanupRateLimits    TaskType = "cleanup_rate_limits"
	TaskTypeAutoMerge            TaskType = "auto_merge"
	TaskTypeImportPodcast        TaskType = "import_podcast"
)

const DefaultMaxRetries = 3

// TaskInterface is one unit of work for the worker pool. Concrete tasks embed
// Task and only implement Execute.
type TaskInterface interface {
	Execute(ctx context.Context) error
	Info() *Task
}

// Task is the bookkeeping the scheduler keeps per queued unit of work.
type Task struct {
	ID         string
	Type       TaskType
	Subject    string // feed url for imports, empty for periodic runs
	Retries    int
	MaxRetries int
	startedAt  time.Time
}

func NewTask(taskType TaskType, subject string) Task {
	return Task{
		ID:         uuid.NewString(),
		Type:       taskType,
		Subject:    subject,
		MaxRetries: DefaultMaxRetries,
	}
}

func (t *Task) Info() *Task { return t }

// Elapsed is the time spent in the current attempt; zero until one starts.
func (t *Task) Elapsed() time.Duration {
	if t.startedAt.IsZero() {
		return 0
	}
	return time.Since(t.startedAt)
}

func (t *Task) retryable() bool {
	return t.Retries < t.MaxRetries
}
