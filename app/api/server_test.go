package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lysyi3m/podcast-influence-tracker/app/crm"
	"github.com/lysyi3m/podcast-influence-tracker/app/database"
	"github.com/lysyi3m/podcast-influence-tracker/app/database/dbtest"
	"github.com/lysyi3m/podcast-influence-tracker/app/discovery"
	"github.com/lysyi3m/podcast-influence-tracker/app/enrichment"
	"github.com/lysyi3m/podcast-influence-tracker/app/guests"
	"github.com/lysyi3m/podcast-influence-tracker/app/ratelimit"
	"github.com/lysyi3m/podcast-influence-tracker/app/settings"
	"github.com/lysyi3m/podcast-influence-tracker/app/tasks"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type fakeImporter struct {
	err error
}

func (f *fakeImporter) ImportFeed(_ context.Context, _ settings.Settings, feedURL string, track bool) (*discovery.ImportResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &discovery.ImportResult{PodcastID: 7, Title: feedURL, TrackingQueued: track}, nil
}

type fakeScheduler struct {
	enqueued []tasks.TaskInterface
	err      error
}

func (f *fakeScheduler) Start() error { return nil }
func (f *fakeScheduler) Stop()        {}
func (f *fakeScheduler) EnqueueTask(task tasks.TaskInterface) error {
	if f.err != nil {
		return f.err
	}
	f.enqueued = append(f.enqueued, task)
	return nil
}

type testServer struct {
	db        *database.DB
	engine    *gin.Engine
	guests    *guests.Service
	importer  *fakeImporter
	scheduler *fakeScheduler
}

func newTestServer(t *testing.T, rules ratelimit.Rules) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := dbtest.New(t)
	podcasts := database.NewPodcastRepository(db)
	costs := database.NewCostLogRepository(db)
	guestRepo := database.NewGuestRepository(db)
	hasher := guests.NewHasher("test-salt")

	ts := &testServer{
		db:        db,
		guests:    guests.NewService(guestRepo, hasher),
		importer:  &fakeImporter{},
		scheduler: &fakeScheduler{},
	}

	handler := NewHandler(Deps{
		Settings:  database.NewSettingsRepository(db),
		Podcasts:  podcasts,
		Refresher: enrichment.NewRefresher(podcasts, database.NewMetricRepository(db), database.NewJobRepository(db), costs),
		Ledger:    enrichment.NewLedger(costs),
		Guests:    guests.NewEngine(db, guestRepo),
		Claims:    guests.NewClaims(db, guestRepo, database.NewClaimRepository(db), hasher),
		CRM:       crm.NewService(db, database.NewCRMRepository(db), guestRepo),
		Limiter:   ratelimit.New(ratelimit.NewSQLStore(database.NewRateLimitRepository(db)), rules),
		Importer:  ts.importer,
		Scheduler: ts.scheduler,
		Version:   "test",
	})
	ts.engine = NewServer(handler, testSecret)
	return ts
}

func token(t *testing.T, userID int64, role string) string {
	t.Helper()
	tok, err := IssueToken(testSecret, userID, role, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func (ts *testServer) do(t *testing.T, method, path, tok string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	w := httptest.NewRecorder()
	ts.engine.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), dst); err != nil {
		t.Fatalf("failed to decode %q: %v", w.Body.String(), err)
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, ratelimit.Rules{})

	w := ts.do(t, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var body map[string]any
	decode(t, w, &body)
	if body["status"] != "ok" || body["version"] != "test" {
		t.Errorf("unexpected health body: %v", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, ratelimit.Rules{})

	w := ts.do(t, http.MethodGet, "/metrics", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestAuthentication(t *testing.T) {
	ts := newTestServer(t, ratelimit.Rules{})

	expired, err := IssueToken(testSecret, 1, RoleUser, -time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	foreign, err := IssueToken("another-secret-another-secret-xx", 1, RoleUser, time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		token string
		path  string
		want  int
	}{
		{"missing token", "", "/api/budget", http.StatusUnauthorized},
		{"expired token", expired, "/api/budget", http.StatusUnauthorized},
		{"wrong secret", foreign, "/api/budget", http.StatusUnauthorized},
		{"user token", token(t, 1, RoleUser), "/api/budget", http.StatusOK},
		{"user on admin route", token(t, 1, RoleUser), "/api/guests/duplicates", http.StatusForbidden},
		{"admin on admin route", token(t, 2, RoleAdmin), "/api/guests/duplicates", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, http.MethodGet, tt.path, tt.token, nil)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	rules := ratelimit.Rules{RateLimits: map[string]ratelimit.Rule{
		"budget": {Requests: 2, WindowSeconds: 3600},
	}}
	ts := newTestServer(t, rules)
	user := token(t, 1, RoleUser)

	for i := 0; i < 2; i++ {
		w := ts.do(t, http.MethodGet, "/api/budget", user, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i+1, w.Code)
		}
		if got := w.Header().Get("X-RateLimit-Remaining"); got != strconv.Itoa(1-i) {
			t.Errorf("request %d: remaining = %q", i+1, got)
		}
	}

	w := ts.do(t, http.MethodGet, "/api/budget", user, nil)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("third request status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}

	// another user has their own window
	if w := ts.do(t, http.MethodGet, "/api/budget", token(t, 2, RoleUser), nil); w.Code != http.StatusOK {
		t.Errorf("other user status = %d", w.Code)
	}

	// admins bypass without headers
	admin := ts.do(t, http.MethodGet, "/api/budget", token(t, 3, RoleAdmin), nil)
	if admin.Code != http.StatusOK || admin.Header().Get("X-RateLimit-Limit") != "" {
		t.Errorf("admin status = %d, limit header = %q", admin.Code, admin.Header().Get("X-RateLimit-Limit"))
	}

	status := ts.do(t, http.MethodGet, "/api/rate-limit?endpoint=budget", user, nil)
	var body struct {
		Limit ratelimit.Decision `json:"limit"`
	}
	decode(t, status, &body)
	if body.Limit.Allowed || body.Limit.Remaining != 0 || body.Limit.Limit != 2 {
		t.Errorf("rate limit status = %+v", body.Limit)
	}
}

func TestImportPodcast(t *testing.T) {
	ts := newTestServer(t, ratelimit.Rules{})
	user := token(t, 1, RoleUser)

	w := ts.do(t, http.MethodPost, "/api/podcasts/import", user, importRequest{FeedURL: "https://example.com/feed.xml", Track: true})
	if w.Code != http.StatusCreated {
		t.Fatalf("sync import status = %d (%s)", w.Code, w.Body.String())
	}
	var result discovery.ImportResult
	decode(t, w, &result)
	if result.PodcastID != 7 || !result.TrackingQueued {
		t.Errorf("result = %+v", result)
	}

	w = ts.do(t, http.MethodPost, "/api/podcasts/import", user, importRequest{FeedURL: "https://example.com/feed.xml", Async: true})
	if w.Code != http.StatusAccepted {
		t.Fatalf("async import status = %d", w.Code)
	}
	if len(ts.scheduler.enqueued) != 1 || ts.scheduler.enqueued[0].Info().Type != tasks.TaskTypeImportPodcast {
		t.Errorf("enqueued = %v", ts.scheduler.enqueued)
	}

	if w := ts.do(t, http.MethodPost, "/api/podcasts/import", user, map[string]any{}); w.Code != http.StatusBadRequest {
		t.Errorf("missing feed_url status = %d", w.Code)
	}

	ts.importer.err = discovery.ErrInvalidFeedURL
	if w := ts.do(t, http.MethodPost, "/api/podcasts/import", user, importRequest{FeedURL: "ftp://x"}); w.Code != http.StatusBadRequest {
		t.Errorf("invalid url status = %d", w.Code)
	}

	ts.importer.err = errors.New("connection refused")
	if w := ts.do(t, http.MethodPost, "/api/podcasts/import", user, importRequest{FeedURL: "https://down.example/feed"}); w.Code != http.StatusBadGateway {
		t.Errorf("fetch failure status = %d", w.Code)
	}
}

func TestRefreshAndJobLifecycle(t *testing.T) {
	ts := newTestServer(t, ratelimit.Rules{})
	user := token(t, 1, RoleUser)
	admin := token(t, 2, RoleAdmin)

	id := dbtest.Podcast(t, ts.db, "https://example.com/show.xml", database.PlatformYouTube, database.PlatformTwitter)
	path := "/api/podcasts/" + strconv.FormatInt(id, 10)

	tests := []struct {
		name string
		path string
		body any
		want int
	}{
		{"unknown podcast", "/api/podcasts/9999/refresh", nil, http.StatusNotFound},
		{"bad id", "/api/podcasts/abc/refresh", nil, http.StatusBadRequest},
		{"unknown platform name", path + "/refresh", refreshRequest{Platforms: []string{"myspace"}}, http.StatusBadRequest},
		{"platform not linked", path + "/refresh", refreshRequest{Platforms: []string{"tiktok"}}, http.StatusUnprocessableEntity},
		{"all platforms", path + "/refresh", nil, http.StatusAccepted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, http.MethodPost, tt.path, user, tt.body)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", w.Code, tt.want, w.Body.String())
			}
		})
	}

	w := ts.do(t, http.MethodPost, "/api/jobs/claim", admin, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("claim status = %d", w.Code)
	}
	var job struct {
		ID     int64              `json:"id"`
		Status database.JobStatus `json:"status"`
	}
	decode(t, w, &job)
	if job.Status != database.JobProcessing {
		t.Fatalf("claimed job status = %s", job.Status)
	}

	results := jobResultsRequest{Results: []enrichment.FetchResult{
		{Platform: database.PlatformYouTube, SubscriberCount: 120000, Provider: "test", CostUSD: 0.05, Success: true},
		{Platform: database.PlatformTwitter, Provider: "test", CostUSD: 0.05, Error: "timeout"},
	}}
	jobPath := "/api/jobs/" + strconv.FormatInt(job.ID, 10)
	if w := ts.do(t, http.MethodPost, jobPath+"/results", admin, results); w.Code != http.StatusOK {
		t.Fatalf("results status = %d (%s)", w.Code, w.Body.String())
	}
	if w := ts.do(t, http.MethodPost, jobPath+"/results", admin, results); w.Code != http.StatusConflict {
		t.Errorf("second results status = %d, want 409", w.Code)
	}
	if w := ts.do(t, http.MethodPost, "/api/jobs/9999/fail", admin, failJobRequest{Reason: "x"}); w.Code != http.StatusNotFound {
		t.Errorf("fail unknown job status = %d", w.Code)
	}
	if w := ts.do(t, http.MethodPost, "/api/jobs/claim", admin, nil); w.Code != http.StatusNoContent {
		t.Errorf("empty queue claim status = %d", w.Code)
	}

	w = ts.do(t, http.MethodGet, path+"/metrics", user, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", w.Code)
	}
	var metrics struct {
		Metrics []map[string]any `json:"metrics"`
	}
	decode(t, w, &metrics)
	if len(metrics.Metrics) != 1 || metrics.Metrics[0]["platform"] != "youtube" {
		t.Errorf("metrics = %v", metrics.Metrics)
	}

	w = ts.do(t, http.MethodGet, "/api/budget", user, nil)
	var budget struct {
		enrichment.BudgetStatus
		Recent []map[string]any `json:"recent"`
	}
	decode(t, w, &budget)
	if budget.WeeklySpent < 0.0999 || budget.WeeklySpent > 0.1001 {
		t.Errorf("weekly spent = %v, want 0.10", budget.WeeklySpent)
	}
	if len(budget.Recent) != 2 {
		t.Fatalf("recent entries = %v, want 2", budget.Recent)
	}
	if budget.Recent[0]["job_id"] != float64(job.ID) {
		t.Errorf("recent entry job = %v, want %d", budget.Recent[0]["job_id"], job.ID)
	}

	w = ts.do(t, http.MethodGet, "/api/budget?recent=1", user, nil)
	decode(t, w, &budget)
	if len(budget.Recent) != 1 {
		t.Errorf("recent=1 returned %d entries", len(budget.Recent))
	}
	if w := ts.do(t, http.MethodGet, "/api/budget?recent=-1", user, nil); w.Code != http.StatusBadRequest {
		t.Errorf("negative recent status = %d", w.Code)
	}
}

func TestRequeueJob(t *testing.T) {
	ts := newTestServer(t, ratelimit.Rules{})
	admin := token(t, 2, RoleAdmin)
	jobs := database.NewJobRepository(ts.db)
	now := time.Now()

	podcast := dbtest.Podcast(t, ts.db, "https://example.com/requeue.xml", database.PlatformTwitter)
	id, err := jobs.Enqueue(&database.Job{PodcastID: podcast, JobType: database.JobManualRefresh, Priority: 80, MaxAttempts: 1}, now)
	if err != nil {
		t.Fatal(err)
	}
	jobPath := "/api/jobs/" + strconv.FormatInt(id, 10) + "/requeue"

	if w := ts.do(t, http.MethodPost, jobPath, admin, nil); w.Code != http.StatusConflict {
		t.Errorf("requeue of a queued job status = %d, want 409", w.Code)
	}

	if _, err := jobs.ClaimNext(now); err != nil {
		t.Fatal(err)
	}
	if status, err := jobs.Fail(id, "provider down", now); err != nil || status != database.JobFailed {
		t.Fatalf("Fail() = %s, %v", status, err)
	}

	tests := []struct {
		name  string
		token string
		path  string
		want  int
	}{
		{"user forbidden", token(t, 1, RoleUser), jobPath, http.StatusForbidden},
		{"unknown job", admin, "/api/jobs/9999/requeue", http.StatusNotFound},
		{"failed job", admin, jobPath, http.StatusOK},
		{"already requeued", admin, jobPath, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, http.MethodPost, tt.path, tt.token, nil)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", w.Code, tt.want, w.Body.String())
			}
		})
	}

	job, err := jobs.GetByID(id)
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != database.JobQueued || job.Attempts != 0 {
		t.Errorf("requeued job = %s/%d, want queued/0", job.Status, job.Attempts)
	}
}

func TestMergeEndpoints(t *testing.T) {
	ts := newTestServer(t, ratelimit.Rules{})
	admin := token(t, 2, RoleAdmin)
	ctx := context.Background()

	master := &database.Guest{CreatedByUserID: 1, FullName: "Ada Lovelace", Email: "ada@example.com", LinkedInURL: "https://linkedin.com/in/ada"}
	dup := &database.Guest{CreatedByUserID: 1, FullName: "Ada L.", Email: "ADA@example.com", LinkedInURL: "https://www.linkedin.com/in/ada/"}
	for _, g := range []*database.Guest{master, dup} {
		if err := ts.guests.Create(ctx, g); err != nil {
			t.Fatal(err)
		}
	}

	w := ts.do(t, http.MethodGet, "/api/guests/duplicates", admin, nil)
	var groups struct {
		Total int `json:"total"`
	}
	decode(t, w, &groups)
	if groups.Total != 1 {
		t.Fatalf("duplicate groups = %d, want 1", groups.Total)
	}

	w = ts.do(t, http.MethodPost, "/api/guests/merge", admin, mergeRequest{MasterID: master.ID, DuplicateID: dup.ID, DryRun: true})
	if w.Code != http.StatusOK {
		t.Fatalf("dry run status = %d (%s)", w.Code, w.Body.String())
	}

	w = ts.do(t, http.MethodPost, "/api/guests/merge", admin, mergeRequest{MasterID: master.ID, DuplicateID: dup.ID})
	if w.Code != http.StatusOK {
		t.Fatalf("merge status = %d (%s)", w.Code, w.Body.String())
	}

	w = ts.do(t, http.MethodPost, "/api/guests/merge", admin, mergeRequest{MasterID: master.ID, DuplicateID: dup.ID})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("repeat merge status = %d", w.Code)
	}
	var refused guests.MergeResult
	decode(t, w, &refused)
	if refused.Success || refused.Error != guests.ReasonAlreadyMerged {
		t.Errorf("repeat merge result = %+v", refused)
	}

	w = ts.do(t, http.MethodPost, "/api/guests/auto-merge", admin, nil)
	var report guests.AutoMergeReport
	decode(t, w, &report)
	if w.Code != http.StatusOK || report.Groups != 0 {
		t.Errorf("auto-merge status = %d report = %+v", w.Code, report)
	}
}

func TestClaimEndpoints(t *testing.T) {
	ts := newTestServer(t, ratelimit.Rules{})
	ctx := context.Background()
	user := token(t, 5, RoleUser)
	admin := token(t, 2, RoleAdmin)

	g := &database.Guest{CreatedByUserID: 1, FullName: "Grace Hopper", Email: "grace@example.com"}
	if err := ts.guests.Create(ctx, g); err != nil {
		t.Fatal(err)
	}
	guestPath := "/api/guests/" + strconv.FormatInt(g.ID, 10) + "/claims"

	w := ts.do(t, http.MethodPost, guestPath, user, claimRequest{VerifiedEmail: "someone@else.com"})
	if w.Code != http.StatusCreated {
		t.Fatalf("claim status = %d (%s)", w.Code, w.Body.String())
	}
	var claim database.ClaimRequest
	decode(t, w, &claim)
	if claim.Status != database.ClaimPending {
		t.Fatalf("claim status = %s, want pending", claim.Status)
	}

	if w := ts.do(t, http.MethodPost, guestPath, user, nil); w.Code != http.StatusConflict {
		t.Errorf("duplicate pending claim status = %d", w.Code)
	}

	claimPath := "/api/claims/" + strconv.FormatInt(claim.ID, 10)
	if w := ts.do(t, http.MethodPost, claimPath+"/approve", user, nil); w.Code != http.StatusForbidden {
		t.Errorf("user approve status = %d", w.Code)
	}
	if w := ts.do(t, http.MethodPost, claimPath+"/approve", admin, nil); w.Code != http.StatusOK {
		t.Fatalf("approve status = %d (%s)", w.Code, w.Body.String())
	}
	if w := ts.do(t, http.MethodPost, claimPath+"/reject", admin, rejectRequest{Reason: "late"}); w.Code != http.StatusConflict {
		t.Errorf("reject after approve status = %d", w.Code)
	}
	if w := ts.do(t, http.MethodPost, "/api/claims/9999/approve", admin, nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown claim status = %d", w.Code)
	}
	if w := ts.do(t, http.MethodPost, "/api/guests/9999/claims", user, nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown guest status = %d", w.Code)
	}
}

func TestOpportunityEndpoints(t *testing.T) {
	ts := newTestServer(t, ratelimit.Rules{})
	owner := token(t, 1, RoleUser)
	other := token(t, 9, RoleUser)

	g := &database.Guest{CreatedByUserID: 1, FullName: "Katherine Johnson"}
	if err := ts.guests.Create(context.Background(), g); err != nil {
		t.Fatal(err)
	}

	w := ts.do(t, http.MethodPost, "/api/opportunities", owner, opportunityRequest{GuestID: g.ID, Priority: "high"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d (%s)", w.Code, w.Body.String())
	}
	var opp database.Opportunity
	decode(t, w, &opp)
	movePath := "/api/opportunities/" + strconv.FormatInt(opp.ID, 10) + "/move"

	tests := []struct {
		name  string
		token string
		path  string
		body  any
		want  int
	}{
		{"unknown guest", owner, "/api/opportunities", opportunityRequest{GuestID: 9999}, http.StatusNotFound},
		{"bad priority", owner, "/api/opportunities", opportunityRequest{GuestID: g.ID, Priority: "urgent"}, http.StatusBadRequest},
		{"skip ahead", owner, movePath, moveRequest{Status: "aired"}, http.StatusConflict},
		{"unknown status", owner, movePath, moveRequest{Status: "booked"}, http.StatusBadRequest},
		{"other user", other, movePath, moveRequest{Status: "pitched"}, http.StatusNotFound},
		{"next step", owner, movePath, moveRequest{Status: "pitched", Note: "sent email"}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, http.MethodPost, tt.path, tt.token, tt.body)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", w.Code, tt.want, w.Body.String())
			}
		})
	}

	w = ts.do(t, http.MethodGet, "/api/opportunities?status=pitched", owner, nil)
	var list struct {
		Total int `json:"total"`
	}
	decode(t, w, &list)
	if list.Total != 1 {
		t.Errorf("pitched opportunities = %d, want 1", list.Total)
	}

	w = ts.do(t, http.MethodGet, "/api/opportunities", other, nil)
	decode(t, w, &list)
	if list.Total != 0 {
		t.Errorf("other user sees %d opportunities", list.Total)
	}
}

func TestGuestNoteEndpoints(t *testing.T) {
	ts := newTestServer(t, ratelimit.Rules{})
	user := token(t, 4, RoleUser)

	g := &database.Guest{CreatedByUserID: 1, FullName: "Hedy Lamarr"}
	if err := ts.guests.Create(context.Background(), g); err != nil {
		t.Fatal(err)
	}
	notesPath := "/api/guests/" + strconv.FormatInt(g.ID, 10) + "/notes"

	tests := []struct {
		name string
		path string
		body any
		want int
	}{
		{"missing body", notesPath, nil, http.StatusBadRequest},
		{"blank body", notesPath, noteRequest{Body: "  "}, http.StatusBadRequest},
		{"unknown guest", "/api/guests/9999/notes", noteRequest{Body: "hi"}, http.StatusNotFound},
		{"note", notesPath, noteRequest{Body: "Great storyteller"}, http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, http.MethodPost, tt.path, user, tt.body)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", w.Code, tt.want, w.Body.String())
			}
		})
	}

	w := ts.do(t, http.MethodGet, notesPath, user, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	var list struct {
		Notes []database.GuestNote `json:"notes"`
		Total int                  `json:"total"`
	}
	decode(t, w, &list)
	if list.Total != 1 || list.Notes[0].Body != "Great storyteller" || list.Notes[0].UserID != 4 {
		t.Errorf("notes = %+v", list)
	}
}

func TestAppearanceEndpoints(t *testing.T) {
	ts := newTestServer(t, ratelimit.Rules{})
	owner := token(t, 1, RoleUser)
	other := token(t, 9, RoleUser)

	g := &database.Guest{CreatedByUserID: 1, FullName: "Mary Jackson"}
	if err := ts.guests.Create(context.Background(), g); err != nil {
		t.Fatal(err)
	}

	w := ts.do(t, http.MethodPost, "/api/appearances", owner, appearanceRequest{GuestID: g.ID, EpisodeTitle: "Episode 40"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d (%s)", w.Code, w.Body.String())
	}
	var appearance database.Appearance
	decode(t, w, &appearance)
	tasksPath := "/api/appearances/" + strconv.FormatInt(appearance.ID, 10) + "/tasks"

	w = ts.do(t, http.MethodPost, tasksPath, owner, taskRequest{Title: "Book studio\r\nBcc: attacker@evil.test"})
	if w.Code != http.StatusCreated {
		t.Fatalf("task status = %d (%s)", w.Code, w.Body.String())
	}
	var task database.AppearanceTask
	decode(t, w, &task)
	if task.Title != "Book studio Bcc: attacker@evil.test" {
		t.Errorf("task title = %q", task.Title)
	}
	completePath := "/api/tasks/" + strconv.FormatInt(task.ID, 10) + "/complete"

	tests := []struct {
		name  string
		token string
		path  string
		body  any
		want  int
	}{
		{"unknown guest", owner, "/api/appearances", appearanceRequest{GuestID: 9999}, http.StatusNotFound},
		{"blank task", owner, tasksPath, taskRequest{Title: " "}, http.StatusBadRequest},
		{"other user's appearance", other, tasksPath, taskRequest{Title: "Prep"}, http.StatusNotFound},
		{"other user's task", other, completePath, nil, http.StatusNotFound},
		{"complete", owner, completePath, nil, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, http.MethodPost, tt.path, tt.token, tt.body)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}
