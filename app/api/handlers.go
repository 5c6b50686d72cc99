package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lysyi3m/podcast-influence-tracker/app/database"
	"github.com/lysyi3m/podcast-influence-tracker/app/discovery"
	"github.com/lysyi3m/podcast-influence-tracker/app/enrichment"
	"github.com/lysyi3m/podcast-influence-tracker/app/guests"
	"github.com/lysyi3m/podcast-influence-tracker/app/settings"
	"github.com/lysyi3m/podcast-influence-tracker/app/tasks"
)

func NewHandler(deps Deps) *Handler {
	return &Handler{
		settings:  deps.Settings,
		podcasts:  deps.Podcasts,
		refresher: deps.Refresher,
		ledger:    deps.Ledger,
		guests:    deps.Guests,
		claims:    deps.Claims,
		crm:       deps.CRM,
		limiter:   deps.Limiter,
		importer:  deps.Importer,
		scheduler: deps.Scheduler,
		version:   deps.Version,
	}
}

func idParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid id parameter"})
		return 0, false
	}
	return id, true
}

// bindOptional decodes a JSON body when one was sent.
func bindOptional(c *gin.Context, dst any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return false
	}
	return true
}

func (h *Handler) loadSettings(c *gin.Context) (settings.Settings, bool) {
	s, err := settings.Load(h.settings)
	if err != nil {
		slog.Error("Failed to load settings", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load settings"})
		return settings.Settings{}, false
	}
	return s, true
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]any{
		"status":    "ok",
		"version":   h.version,
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
	}

	if count, err := h.podcasts.GetPodcastCount(); err == nil {
		health["podcasts"] = count
	}
	if stats, err := h.refresher.QueueStats(c.Request.Context()); err == nil {
		health["jobs"] = stats
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) ImportPodcast(c *gin.Context) {
	var req importRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	if req.Async {
		task := tasks.NewImportPodcastTask(req.FeedURL, req.Track, h.settings, h.importer)
		if err := h.scheduler.EnqueueTask(task); err != nil {
			slog.Error("Error enqueueing import task", "feed_url", req.FeedURL, "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Failed to enqueue import task", "details": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{
			"task": gin.H{"id": task.ID, "type": task.Type},
		})
		return
	}

	s, ok := h.loadSettings(c)
	if !ok {
		return
	}

	result, err := h.importer.ImportFeed(c.Request.Context(), s, req.FeedURL, req.Track)
	if err != nil {
		if errors.Is(err, discovery.ErrInvalidFeedURL) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		slog.Error("Podcast import failed", "feed_url", req.FeedURL, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to import feed", "details": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, result)
}

func (h *Handler) RefreshPodcast(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	var req refreshRequest
	if !bindOptional(c, &req) {
		return
	}

	platforms := make([]database.Platform, 0, len(req.Platforms))
	for _, name := range req.Platforms {
		p, ok := database.ParsePlatform(name)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown platform", "platform": name})
			return
		}
		platforms = append(platforms, p)
	}

	s, ok := h.loadSettings(c)
	if !ok {
		return
	}

	jobID, err := h.refresher.ManualRefresh(c.Request.Context(), s, id, platforms)
	switch {
	case errors.Is(err, enrichment.ErrPodcastNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	case errors.Is(err, enrichment.ErrNoPlatforms), errors.Is(err, enrichment.ErrUnknownPlatform):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	case err != nil:
		slog.Error("Manual refresh failed", "podcast", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to queue refresh"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"job_id": jobID, "podcast_id": id})
}

func (h *Handler) GetPodcastMetrics(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	podcast, err := h.podcasts.GetByID(id)
	if err != nil {
		slog.Error("Database error", "operation", "get_podcast", "podcast", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if podcast == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Podcast not found"})
		return
	}

	latest, err := h.refresher.LatestMetrics(c.Request.Context(), id)
	if err != nil {
		slog.Error("Database error", "operation", "latest_metrics", "podcast", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	out := make([]map[string]any, 0, len(latest))
	for _, m := range latest {
		out = append(out, metricJSON(m))
	}

	c.JSON(http.StatusOK, gin.H{
		"podcast_id":       podcast.ID,
		"title":            podcast.Title,
		"tracking_status":  podcast.TrackingStatus,
		"last_enriched_at": podcast.LastEnrichedAt,
		"metrics":          out,
	})
}

const (
	defaultRecentEntries = 20
	maxRecentEntries     = 100
)

func (h *Handler) GetBudget(c *gin.Context) {
	s, ok := h.loadSettings(c)
	if !ok {
		return
	}

	limit := defaultRecentEntries
	if v := c.Query("recent"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > maxRecentEntries {
			c.JSON(http.StatusBadRequest, gin.H{"error": "recent must be between 0 and " + strconv.Itoa(maxRecentEntries)})
			return
		}
		limit = n
	}

	now := time.Now()
	status, err := h.ledger.Status(s.WeeklyBudgetUSD, s.MonthlyBudgetUSD, now)
	if err != nil {
		slog.Error("Database error", "operation", "budget_status", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	entries, err := h.ledger.Recent(now, limit)
	if err != nil {
		slog.Error("Database error", "operation", "budget_recent", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	recent := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		recent = append(recent, costEntryJSON(e))
	}
	c.JSON(http.StatusOK, budgetResponse{BudgetStatus: status, Recent: recent})
}

func (h *Handler) GetRateLimit(c *gin.Context) {
	endpoint := c.Query("endpoint")
	if endpoint == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing endpoint query parameter"})
		return
	}

	d, err := h.limiter.Status(c.Request.Context(), userID(c), endpoint)
	if err != nil {
		slog.Error("Rate limit status failed", "endpoint", endpoint, "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Rate limit store unavailable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"endpoint": endpoint, "limit": d})
}

func (h *Handler) GetDuplicates(c *gin.Context) {
	groups, err := h.guests.FindDuplicates(c.Request.Context())
	if err != nil {
		slog.Error("Duplicate scan failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to scan for duplicates"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"groups": groups, "total": len(groups)})
}

func (h *Handler) MergeGuests(c *gin.Context) {
	var req mergeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	result, err := h.guests.ExecuteMerge(c.Request.Context(), req.MasterID, req.DuplicateID, req.DryRun)
	if err != nil {
		slog.Error("Guest merge failed", "master", req.MasterID, "duplicate", req.DuplicateID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to merge guests"})
		return
	}
	if !result.Success {
		c.JSON(http.StatusUnprocessableEntity, result)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) AutoMergeGuests(c *gin.Context) {
	var req autoMergeRequest
	if !bindOptional(c, &req) {
		return
	}

	report, err := h.guests.AutoMergeObviousDuplicates(c.Request.Context(), req.DryRun)
	if err != nil {
		slog.Error("Auto-merge failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to auto-merge guests"})
		return
	}

	c.JSON(http.StatusOK, report)
}

func claimErrorStatus(err error) int {
	switch {
	case errors.Is(err, guests.ErrGuestNotFound), errors.Is(err, guests.ErrClaimNotFound):
		return http.StatusNotFound
	case errors.Is(err, guests.ErrGuestMerged),
		errors.Is(err, guests.ErrAlreadyClaimed),
		errors.Is(err, guests.ErrClaimPending),
		errors.Is(err, guests.ErrClaimNotPending):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (h *Handler) claimFailed(c *gin.Context, op string, id int64, err error) {
	status := claimErrorStatus(err)
	if status == http.StatusInternalServerError {
		slog.Error("Claim operation failed", "operation", op, "id", id, "error", err)
		c.JSON(status, gin.H{"error": "Claim operation failed"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (h *Handler) RequestClaim(c *gin.Context) {
	guestID, ok := idParam(c)
	if !ok {
		return
	}

	var req claimRequest
	if !bindOptional(c, &req) {
		return
	}

	claim, err := h.claims.RequestClaim(c.Request.Context(), guestID, userID(c), req.VerifiedEmail)
	if err != nil {
		h.claimFailed(c, "request", guestID, err)
		return
	}

	c.JSON(http.StatusCreated, claim)
}

func (h *Handler) ApproveClaim(c *gin.Context) {
	claimID, ok := idParam(c)
	if !ok {
		return
	}

	claim, err := h.claims.Approve(c.Request.Context(), claimID, userID(c))
	if err != nil {
		h.claimFailed(c, "approve", claimID, err)
		return
	}

	c.JSON(http.StatusOK, claim)
}

func (h *Handler) RejectClaim(c *gin.Context) {
	claimID, ok := idParam(c)
	if !ok {
		return
	}

	var req rejectRequest
	if !bindOptional(c, &req) {
		return
	}

	claim, err := h.claims.Reject(c.Request.Context(), claimID, userID(c), req.Reason)
	if err != nil {
		h.claimFailed(c, "reject", claimID, err)
		return
	}

	c.JSON(http.StatusOK, claim)
}

func jobErrorStatus(err error) int {
	switch {
	case errors.Is(err, enrichment.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, enrichment.ErrJobNotClaimed), errors.Is(err, enrichment.ErrJobNotFailed):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (h *Handler) ClaimJob(c *gin.Context) {
	job, err := h.refresher.ClaimNext(c.Request.Context())
	if err != nil {
		slog.Error("Database error", "operation", "claim_job", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if job == nil {
		c.Status(http.StatusNoContent)
		return
	}

	c.JSON(http.StatusOK, jobJSON(job))
}

func (h *Handler) RecordJobResults(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	var req jobResultsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	job, err := h.refresher.RecordResults(c.Request.Context(), id, req.Results)
	if err != nil {
		status := jobErrorStatus(err)
		if status == http.StatusInternalServerError {
			slog.Error("Recording job results failed", "job", id, "error", err)
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, jobJSON(job))
}

func (h *Handler) FailJob(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	var req failJobRequest
	if !bindOptional(c, &req) {
		return
	}

	status, err := h.refresher.FailJob(c.Request.Context(), id, req.Reason)
	if err != nil {
		code := jobErrorStatus(err)
		if code == http.StatusInternalServerError {
			slog.Error("Failing job failed", "job", id, "error", err)
		}
		c.JSON(code, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"job_id": id, "status": status})
}

// RequeueJob gives a permanently failed job a fresh set of attempts.
func (h *Handler) RequeueJob(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	if err := h.refresher.RequeueJob(c.Request.Context(), id); err != nil {
		code := jobErrorStatus(err)
		if code == http.StatusInternalServerError {
			slog.Error("Requeueing job failed", "job", id, "error", err)
		}
		c.JSON(code, gin.H{"error": err.Error()})
		return
	}

	slog.Info("Job requeued", "job", id, "admin", userID(c))
	c.JSON(http.StatusOK, gin.H{"job_id": id, "status": database.JobQueued})
}
