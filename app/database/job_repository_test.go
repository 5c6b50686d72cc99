package database_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lysyi3m/podcast-influence-tracker/app/database"
	"github.com/lysyi3m/podcast-influence-tracker/app/database/dbtest"
)

func TestClaimNextOrdering(t *testing.T) {
	db := dbtest.New(t)
	jobs := database.NewJobRepository(db)
	podcast := dbtest.Podcast(t, db, "https://feeds.example/a", database.PlatformYouTube)

	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	enqueue := func(jobType database.JobType, priority int, at time.Time) int64 {
		id, err := jobs.Enqueue(&database.Job{
			PodcastID: podcast, JobType: jobType, Priority: priority, MaxAttempts: 3,
			Platforms: []database.Platform{database.PlatformYouTube},
		}, at)
		if err != nil {
			t.Fatal(err)
		}
		return id
	}

	background := enqueue(database.JobBackgroundRefresh, 30, base)
	olderAuto := enqueue(database.JobAutoEnrich, 50, base.Add(time.Minute))
	newerAuto := enqueue(database.JobAutoEnrich, 50, base.Add(2*time.Minute))
	manual := enqueue(database.JobManualRefresh, 80, base.Add(3*time.Minute))

	want := []int64{manual, olderAuto, newerAuto, background}
	for i, id := range want {
		job, err := jobs.ClaimNext(base.Add(time.Hour))
		if err != nil {
			t.Fatal(err)
		}
		if job == nil {
			t.Fatalf("claim %d: expected job %d, queue was empty", i, id)
		}
		if job.ID != id {
			t.Errorf("claim %d: expected job %d, got %d", i, id, job.ID)
		}
		if job.Status != database.JobProcessing || job.Attempts != 1 {
			t.Errorf("claim %d: expected processing with 1 attempt, got %s/%d", i, job.Status, job.Attempts)
		}
	}

	job, err := jobs.ClaimNext(base.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if job != nil {
		t.Errorf("expected empty queue, got job %d", job.ID)
	}
}

func TestFailRequeuesUntilMaxAttempts(t *testing.T) {
	db := dbtest.New(t)
	jobs := database.NewJobRepository(db)
	podcasts := database.NewPodcastRepository(db)
	podcast := dbtest.Podcast(t, db, "https://feeds.example/b", database.PlatformTwitter)
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	id, err := jobs.Enqueue(&database.Job{PodcastID: podcast, JobType: database.JobAutoEnrich, Priority: 50, MaxAttempts: 2}, now)
	if err != nil {
		t.Fatal(err)
	}

	expected := []database.JobStatus{database.JobQueued, database.JobFailed}
	for i, want := range expected {
		job, err := jobs.ClaimNext(now)
		if err != nil {
			t.Fatal(err)
		}
		if job == nil || job.ID != id {
			t.Fatalf("attempt %d: expected to claim job %d", i+1, id)
		}
		status, err := jobs.Fail(id, "provider timeout", now)
		if err != nil {
			t.Fatal(err)
		}
		if status != want {
			t.Errorf("attempt %d: expected status %s, got %s", i+1, want, status)
		}
	}

	job, err := jobs.GetByID(id)
	if err != nil {
		t.Fatal(err)
	}
	if job.Attempts != job.MaxAttempts {
		t.Errorf("expected attempts to stop at %d, got %d", job.MaxAttempts, job.Attempts)
	}
	if next, _ := jobs.ClaimNext(now); next != nil {
		t.Error("permanently failed job must not be claimed again")
	}

	p, err := podcasts.GetByID(podcast)
	if err != nil {
		t.Fatal(err)
	}
	if p.TrackingStatus != database.TrackingFailed {
		t.Errorf("expected podcast tracking status failed, got %s", p.TrackingStatus)
	}

	if err := jobs.Requeue(id); err != nil {
		t.Fatal(err)
	}
	job, _ = jobs.GetByID(id)
	if job.Status != database.JobQueued || job.Attempts != 0 {
		t.Errorf("expected requeued job with 0 attempts, got %s/%d", job.Status, job.Attempts)
	}
	if err := jobs.Requeue(id); !errors.Is(err, database.ErrJobNotFailed) {
		t.Errorf("expected ErrJobNotFailed for a queued job, got %v", err)
	}
}

func TestEnqueueWithinBudget(t *testing.T) {
	db := dbtest.New(t)
	jobs := database.NewJobRepository(db)
	ledger := database.NewCostLogRepository(db)
	podcast := dbtest.Podcast(t, db, "https://feeds.example/c", database.PlatformInstagram)

	weekStart := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	now := weekStart.Add(48 * time.Hour)
	if _, err := ledger.Append(&database.CostLogEntry{ActionType: "fetch", CostUSD: 48, Success: true, LoggedAt: now}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		estimate float64
		pending  float64
		want     bool
	}{
		{"fits under", 1.5, 0, true},
		{"fits with pending", 1, 0.5, true},
		{"reaches limit", 2, 0, false},
		{"exceeds", 5, 0, false},
		{"pending pushes over", 1, 1.5, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := &database.Job{PodcastID: podcast, JobType: database.JobBackgroundRefresh, Priority: 30, MaxAttempts: 3, EstimatedCostUSD: tt.estimate}
			_, ok, err := jobs.EnqueueWithinBudget(job, weekStart, tt.pending, 50, now)
			if err != nil {
				t.Fatal(err)
			}
			if ok != tt.want {
				t.Errorf("expected queued=%v, got %v", tt.want, ok)
			}
		})
	}
}

func TestEnqueueWithinBudgetLimitIsExclusive(t *testing.T) {
	db := dbtest.New(t)
	jobs := database.NewJobRepository(db)
	ledger := database.NewCostLogRepository(db)
	podcast := dbtest.Podcast(t, db, "https://feeds.example/edge", database.PlatformTwitter)

	weekStart := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	now := weekStart.Add(time.Hour)
	if _, err := ledger.Append(&database.CostLogEntry{ActionType: "fetch", CostUSD: 49, Success: true, LoggedAt: now}); err != nil {
		t.Fatal(err)
	}

	job := &database.Job{PodcastID: podcast, JobType: database.JobBackgroundRefresh, Priority: 30, MaxAttempts: 3, EstimatedCostUSD: 1}
	_, ok, err := jobs.EnqueueWithinBudget(job, weekStart, 0, 50, now)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("Expected a job landing exactly on the limit to be refused")
	}
}

func TestJobStats(t *testing.T) {
	db := dbtest.New(t)
	jobs := database.NewJobRepository(db)
	podcast := dbtest.Podcast(t, db, "https://feeds.example/d")
	now := time.Now()

	for range 3 {
		if _, err := jobs.Enqueue(&database.Job{PodcastID: podcast, JobType: database.JobManualRefresh, Priority: 80, MaxAttempts: 3}, now); err != nil {
			t.Fatal(err)
		}
	}
	job, err := jobs.ClaimNext(now)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := jobs.Settle(job.ID, database.JobOutcome{ActualCost: 0.01}, now); err != nil {
		t.Fatal(err)
	}

	stats, err := jobs.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if stats[database.JobQueued] != 2 || stats[database.JobCompleted] != 1 || stats[database.JobFailed] != 0 {
		t.Errorf("unexpected stats: %v", stats)
	}

	active, err := jobs.HasActiveJob(podcast)
	if err != nil {
		t.Fatal(err)
	}
	if !active {
		t.Error("expected podcast to have active jobs")
	}
}

func TestSettleWritesOutcomeOnce(t *testing.T) {
	db := dbtest.New(t)
	jobs := database.NewJobRepository(db)
	ledger := database.NewCostLogRepository(db)
	metrics := database.NewMetricRepository(db)
	podcasts := database.NewPodcastRepository(db)
	podcast := dbtest.Podcast(t, db, "https://feeds.example/settle", database.PlatformTwitter)
	now := time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC)

	links, err := podcasts.GetSocialLinks(podcast)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := jobs.Enqueue(&database.Job{PodcastID: podcast, JobType: database.JobManualRefresh, Priority: 80, MaxAttempts: 3}, now); err != nil {
		t.Fatal(err)
	}
	job, err := jobs.ClaimNext(now)
	if err != nil {
		t.Fatal(err)
	}

	outcome := func() database.JobOutcome {
		return database.JobOutcome{
			Costs: []database.CostLogEntry{{PodcastID: &podcast, JobID: &job.ID, ActionType: "manual_refresh",
				Platform: "twitter", APIProvider: "scraper", CostUSD: 0.003, Success: true, LoggedAt: now}},
			Metrics: []database.Metric{{SocialLinkID: links[0].ID, PodcastID: podcast, Platform: database.PlatformTwitter,
				FollowersCount: 900, FetchedAt: now, ExpiresAt: now.Add(90 * 24 * time.Hour)}},
			ActualCost: 0.003,
		}
	}

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = jobs.Settle(job.ID, outcome(), now)
		}()
	}
	wg.Wait()

	settled := 0
	for _, err := range errs {
		switch {
		case err == nil:
			settled++
		case !errors.Is(err, database.ErrJobNotProcessing):
			t.Errorf("unexpected error: %v", err)
		}
	}
	if settled != 1 {
		t.Errorf("expected exactly one settle to succeed, got %d", settled)
	}

	if _, err := jobs.Settle(job.ID, outcome(), now); !errors.Is(err, database.ErrJobNotProcessing) {
		t.Errorf("expected ErrJobNotProcessing on a repeated settle, got %v", err)
	}

	entries, err := ledger.ListSince(now.Add(-time.Hour), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected one ledger entry, got %d", len(entries))
	}
	spent, _ := ledger.SpentSince(now.Add(-time.Hour))
	if spent != 0.003 {
		t.Errorf("expected spend 0.003, got %v", spent)
	}

	var metricRows int
	if err := db.QueryRow(`SELECT COUNT(*) FROM metrics WHERE podcast_id = ?`, podcast).Scan(&metricRows); err != nil {
		t.Fatal(err)
	}
	if metricRows != 1 {
		t.Errorf("expected one metric row, got %d", metricRows)
	}
	if latest, _ := metrics.Latest(podcast); len(latest) != 1 || latest[0].FollowersCount != 900 {
		t.Errorf("unexpected latest metrics: %+v", latest)
	}

	p, _ := podcasts.GetByID(podcast)
	if p.TrackingStatus != database.TrackingTracked || p.LastEnrichedAt == nil {
		t.Errorf("expected podcast tracked with enrichment time, got %+v", p)
	}
}

func TestSettleFailureRequeuesAndCharges(t *testing.T) {
	db := dbtest.New(t)
	jobs := database.NewJobRepository(db)
	ledger := database.NewCostLogRepository(db)
	podcast := dbtest.Podcast(t, db, "https://feeds.example/settle-fail", database.PlatformInstagram)
	now := time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC)

	if _, err := jobs.Enqueue(&database.Job{PodcastID: podcast, JobType: database.JobAutoEnrich, Priority: 50, MaxAttempts: 3}, now); err != nil {
		t.Fatal(err)
	}
	job, err := jobs.ClaimNext(now)
	if err != nil {
		t.Fatal(err)
	}

	status, err := jobs.Settle(job.ID, database.JobOutcome{
		Costs:      []database.CostLogEntry{{ActionType: "auto_enrich", Platform: "instagram", CostUSD: 0.005, LoggedAt: now}},
		ActualCost: 0.005,
		FailReason: "no platform fetch succeeded",
	}, now)
	if err != nil {
		t.Fatal(err)
	}
	if status != database.JobQueued {
		t.Errorf("expected requeued job, got %s", status)
	}
	if spent, _ := ledger.SpentSince(now.Add(-time.Hour)); spent != 0.005 {
		t.Errorf("expected failed attempt to be charged 0.005, got %v", spent)
	}
}
