package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lysyi3m/podcast-influence-tracker/app/ratelimit"
)

// NewServer creates the HTTP engine with all routes configured
func NewServer(handler *Handler, jwtSecret string) *gin.Engine {
	r := gin.New()

	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
		SkipPaths: []string{"/health", "/metrics"},
	}))
	r.Use(gin.Recovery())

	setupRoutes(r, handler, jwtSecret)

	return r
}

func setupRoutes(r *gin.Engine, h *Handler, jwtSecret string) {
	r.GET("/health", h.GetHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.Use(authMiddleware(jwtSecret))
	{
		api.POST("/podcasts/import", h.limit("podcast_import"), h.ImportPodcast)
		api.POST("/podcasts/:id/refresh", h.limit("podcast_refresh"), h.RefreshPodcast)
		api.GET("/podcasts/:id/metrics", h.limit("podcast_metrics"), h.GetPodcastMetrics)
		api.GET("/budget", h.limit("budget"), h.GetBudget)
		api.GET("/rate-limit", h.GetRateLimit)

		api.POST("/guests/:id/claims", h.limit("guest_claim"), h.RequestClaim)
		api.GET("/guests/:id/notes", h.limit("guest_notes"), h.ListGuestNotes)
		api.POST("/guests/:id/notes", h.limit("guest_notes"), h.AddGuestNote)

		api.GET("/opportunities", h.limit("opportunities"), h.ListOpportunities)
		api.POST("/opportunities", h.limit("opportunities"), h.CreateOpportunity)
		api.POST("/opportunities/:id/move", h.limit("opportunities"), h.MoveOpportunity)

		api.POST("/appearances", h.limit("appearances"), h.CreateAppearance)
		api.POST("/appearances/:id/tasks", h.limit("appearances"), h.AddAppearanceTask)
		api.POST("/tasks/:id/complete", h.limit("appearances"), h.CompleteTask)

		admin := api.Group("", requireAdmin())
		admin.GET("/guests/duplicates", h.GetDuplicates)
		admin.POST("/guests/merge", h.MergeGuests)
		admin.POST("/guests/auto-merge", h.AutoMergeGuests)
		admin.POST("/claims/:id/approve", h.ApproveClaim)
		admin.POST("/claims/:id/reject", h.RejectClaim)

		admin.POST("/jobs/claim", h.ClaimJob)
		admin.POST("/jobs/:id/results", h.RecordJobResults)
		admin.POST("/jobs/:id/fail", h.FailJob)
		admin.POST("/jobs/:id/requeue", h.RequeueJob)
	}
}

// limit counts the request against the caller's window for endpoint.
// A failing counter store lets the request through.
func (h *Handler) limit(endpoint string) gin.HandlerFunc {
	return func(c *gin.Context) {
		d, err := h.limiter.Check(c.Request.Context(), userID(c), endpoint, isAdmin(c))
		if err != nil {
			slog.Warn("Rate limit check failed, allowing request", "endpoint", endpoint, "error", err)
			c.Next()
			return
		}

		setRateLimitHeaders(c, d)
		if !d.Allowed {
			c.Header("Retry-After", strconv.Itoa(max(int(time.Until(d.Reset).Seconds()), 1)))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":    "Rate limit exceeded",
				"endpoint": endpoint,
				"reset":    d.Reset,
			})
			return
		}
		c.Next()
	}
}

func setRateLimitHeaders(c *gin.Context, d ratelimit.Decision) {
	if d.Bypass {
		return
	}
	c.Header("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(d.Reset.Unix(), 10))
}
