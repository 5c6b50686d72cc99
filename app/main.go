package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lysyi3m/podcast-influence-tracker/app/api"
	"github.com/lysyi3m/podcast-influence-tracker/app/cfg"
	"github.com/lysyi3m/podcast-influence-tracker/app/crm"
	"github.com/lysyi3m/podcast-influence-tracker/app/database"
	"github.com/lysyi3m/podcast-influence-tracker/app/discovery"
	"github.com/lysyi3m/podcast-influence-tracker/app/enrichment"
	"github.com/lysyi3m/podcast-influence-tracker/app/guests"
	"github.com/lysyi3m/podcast-influence-tracker/app/notify"
	"github.com/lysyi3m/podcast-influence-tracker/app/ratelimit"
	"github.com/lysyi3m/podcast-influence-tracker/app/settings"
	"github.com/lysyi3m/podcast-influence-tracker/app/tasks"
)

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if appCfg == nil {
		// help was shown
		return
	}

	setupLogging(appCfg.Debug)

	if err := run(appCfg); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func setupLogging(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func run(appCfg *cfg.Cfg) error {
	slog.Info("Starting Podcast Influence Tracker", "version", appCfg.Version)

	db, err := database.Open(appCfg.DBPath, appCfg.Debug)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Info("Database ready", "path", appCfg.DBPath, "schema_version", version, "dirty", dirty)

	settingsRepo := database.NewSettingsRepository(db)
	seeded, err := settings.Seed(settingsRepo, appCfg.SettingsFile, time.Now())
	if err != nil {
		return fmt.Errorf("failed to seed settings: %w", err)
	}
	current, err := settings.Load(settingsRepo)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}
	if err := current.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	slog.Info("Settings loaded", "seeded", seeded, "weekly_budget", current.WeeklyBudgetUSD, "monthly_budget", current.MonthlyBudgetUSD)

	podcastRepo := database.NewPodcastRepository(db)
	costRepo := database.NewCostLogRepository(db)
	guestRepo := database.NewGuestRepository(db)
	crmRepo := database.NewCRMRepository(db)

	refresher := enrichment.NewRefresher(podcastRepo, database.NewMetricRepository(db), database.NewJobRepository(db), costRepo)
	hasher := guests.NewHasher(appCfg.HashSalt)
	mergeEngine := guests.NewEngine(db, guestRepo)
	importer := discovery.NewImporter(podcastRepo, refresher, &http.Client{}, appCfg.UserAgent, appCfg.HTTPTimeout)

	limiter, closeStore, err := newLimiter(appCfg, db)
	if err != nil {
		return err
	}
	defer closeStore()

	var email notify.Channel
	if appCfg.MailEnabled() {
		email = notify.NewEmailChannel(notify.EmailConfig{
			Host:     appCfg.SMTPHost,
			Port:     appCfg.SMTPPort,
			Username: appCfg.SMTPUsername,
			Password: appCfg.SMTPPassword,
			From:     appCfg.SMTPFrom,
			Timeout:  appCfg.HTTPTimeout,
		})
		slog.Info("Email notifications enabled", "host", appCfg.SMTPHost)
	}
	processor := notify.NewProcessor(crmRepo, database.NewNotificationRepository(db), email)

	schedules := tasks.Schedules{
		Refresh:       appCfg.RefreshSchedule,
		AutoEnrich:    appCfg.AutoEnrichSchedule,
		Notifications: appCfg.NotificationsSchedule,
		Cleanup:       appCfg.CleanupSchedule,
	}
	if appCfg.AutoMergeEnabled {
		schedules.AutoMerge = appCfg.AutoMergeSchedule
	}

	scheduler := tasks.NewScheduler(tasks.Deps{
		Settings:      settingsRepo,
		Refresher:     refresher,
		Notifications: processor,
		RateLimits:    limiter,
		Guests:        mergeEngine,
	}, schedules, appCfg.WorkerCount)
	if err := scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer scheduler.Stop()

	handler := api.NewHandler(api.Deps{
		Settings:  settingsRepo,
		Podcasts:  podcastRepo,
		Refresher: refresher,
		Ledger:    enrichment.NewLedger(costRepo),
		Guests:    mergeEngine,
		Claims:    guests.NewClaims(db, guestRepo, database.NewClaimRepository(db), hasher),
		CRM:       crm.NewService(db, crmRepo, guestRepo),
		Limiter:   limiter,
		Importer:  importer,
		Scheduler: scheduler,
		Version:   appCfg.Version,
	})

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      api.NewServer(handler, appCfg.JWTSecret),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "port", appCfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case runErr = <-serverErrChan:
	}

	slog.Info("Shutting down server gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	return runErr
}

// newLimiter counts in Redis when a URL is configured so several instances share
// windows, and in the database otherwise.
func newLimiter(appCfg *cfg.Cfg, db *database.DB) (*ratelimit.Limiter, func(), error) {
	rules, err := ratelimit.LoadRulesFile(appCfg.RateLimitsFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load rate limit rules: %w", err)
	}

	if appCfg.RedisURL == "" {
		return ratelimit.New(ratelimit.NewSQLStore(database.NewRateLimitRepository(db)), rules), func() {}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store, err := ratelimit.NewRedisStore(ctx, appCfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	slog.Info("Rate limit counters stored in Redis")

	return ratelimit.New(store, rules), func() {
		if err := store.Close(); err != nil {
			slog.Warn("Failed to close redis client", "error", err)
		}
	}, nil
}
