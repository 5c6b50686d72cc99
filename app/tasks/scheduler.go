package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/lysyi3m/podcast-influence-tracker/app/metrics"
	"github.com/lysyi3m/podcast-influence-tracker/app/settings"
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

const (
	queueSize   = 300
	taskTimeout = 5 * time.Minute
)

type Deps struct {
	Settings      settings.Store
	Refresher     MetricsRefresher
	Notifications NotificationProcessor
	RateLimits    RateLimitCleaner
	Guests        GuestMerger
}

// Schedules holds cron specs. An empty spec disables that entry.
type Schedules struct {
	Refresh       string
	AutoEnrich    string
	Notifications string
	Cleanup       string
	AutoMerge     string
}

type Scheduler struct {
	deps        Deps
	schedules   Schedules
	cron        *cron.Cron
	workerCount int
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	taskQueue   chan TaskInterface

	mu     sync.Mutex
	active map[TaskType]bool
}

func NewScheduler(deps Deps, schedules Schedules, workerCount int) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		deps:        deps,
		schedules:   schedules,
		cron:        cron.New(cron.WithLocation(time.UTC)),
		workerCount: max(workerCount, 1),
		ctx:         ctx,
		cancel:      cancel,
		taskQueue:   make(chan TaskInterface, queueSize),
		active:      make(map[TaskType]bool),
	}
}

// Start launches the workers and registers the periodic entries.
func (s *Scheduler) Start() error {
	entries := []struct {
		spec string
		make func() TaskInterface
	}{
		{s.schedules.Refresh, func() TaskInterface { return NewRefreshMetricsTask(s.deps.Settings, s.deps.Refresher) }},
		{s.schedules.AutoEnrich, func() TaskInterface { return NewAutoEnrichTask(s.deps.Settings, s.deps.Refresher) }},
		{s.schedules.Notifications, func() TaskInterface {
			return NewProcessNotificationsTask(s.deps.Settings, s.deps.Notifications)
		}},
		{s.schedules.Cleanup, func() TaskInterface { return NewCleanupRateLimitsTask(s.deps.RateLimits) }},
		{s.schedules.AutoMerge, func() TaskInterface { return NewAutoMergeTask(s.deps.Guests) }},
	}

	for _, e := range entries {
		if e.spec == "" {
			continue
		}
		newTask := e.make
		if _, err := s.cron.AddFunc(e.spec, func() { s.enqueuePeriodic(newTask()) }); err != nil {
			return fmt.Errorf("failed to schedule %q: %w", e.spec, err)
		}
	}

	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.cron.Start()
	slog.Info("Task scheduler started", "workers", s.workerCount, "entries", len(s.cron.Entries()))
	return nil
}

func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	if err := s.ctx.Err(); err != nil {
		return err
	}

	select {
	case s.taskQueue <- task:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
		return fmt.Errorf("task queue is full")
	}
}

// enqueuePeriodic skips a tick while the previous run of the same type is
// still queued or running, so periodic runs never overlap.
func (s *Scheduler) enqueuePeriodic(task TaskInterface) {
	taskType := task.Info().Type

	s.mu.Lock()
	if s.active[taskType] {
		s.mu.Unlock()
		slog.Debug("Previous run still in progress, skipping", "type", string(taskType))
		return
	}
	s.active[taskType] = true
	s.mu.Unlock()

	if err := s.EnqueueTask(task); err != nil {
		s.release(taskType)
		slog.Warn("Failed to enqueue task", "type", string(taskType), "error", err)
	}
}

func (s *Scheduler) release(t TaskType) {
	s.mu.Lock()
	delete(s.active, t)
	s.mu.Unlock()
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case task, ok := <-s.taskQueue:
			if !ok {
				return
			}
			s.executeTask(id, task)

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) executeTask(workerID int, task TaskInterface) {
	info := task.Info()
	info.startedAt = time.Now()

	taskCtx, cancel := context.WithTimeout(s.ctx, taskTimeout)
	defer cancel()

	err := task.Execute(taskCtx)
	metrics.RecordTask(string(info.Type), info.Elapsed(), err)

	if err == nil {
		s.release(info.Type)
		return
	}

	slog.Error("Worker task execution failed", "worker_id", workerID, "type", string(info.Type), "id", info.ID, "retries", info.Retries, "error", err)

	if !info.retryable() {
		s.release(info.Type)
		if info.MaxRetries > 0 {
			slog.Error("Task failed after maximum retries", "type", string(info.Type), "id", info.ID, "max_retries", info.MaxRetries, "last_error", err)
		}
		return
	}

	info.Retries++
	retryDelay := min(time.Duration(1<<uint(info.Retries-1))*time.Second, 30*time.Second)

	slog.Warn("Task retry scheduled", "type", string(info.Type), "subject", info.Subject, "retries", info.Retries, "max_retries", info.MaxRetries, "delay", retryDelay.String())

	go func() {
		select {
		case <-time.After(retryDelay):
		case <-s.ctx.Done():
			slog.Debug("Scheduler stopped, skipping task retry", "type", string(info.Type), "id", info.ID)
			return
		}
		if retryErr := s.EnqueueTask(task); retryErr != nil {
			s.release(info.Type)
			slog.Error("Failed to re-enqueue task for retry", "type", string(info.Type), "id", info.ID, "retries", info.Retries, "error", retryErr)
		}
	}()
}
