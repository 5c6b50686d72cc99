package cfg

import (
	"cmp"
	"errors"
	"fmt"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Database configuration
	DBPath string `long:"db-path" env:"DB_PATH" default:"./data/pit.db" description:"SQLite database file"`

	// Application configuration
	Port             string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	WorkerCount      int    `long:"worker-count" env:"WORKER_COUNT" default:"4" description:"Number of background workers"`
	RateLimitsFile   string `long:"rate-limits" env:"RATE_LIMITS_FILE" default:"./config/rate_limits.yml" description:"YAML file with per-endpoint rate limits"`
	SettingsFile     string `long:"settings-seed" env:"SETTINGS_FILE" default:"./config/settings.yml" description:"YAML file seeding missing settings on boot"`
	RedisURL         string `long:"redis-url" env:"REDIS_URL" description:"Redis URL for shared rate-limit counters (optional)"`
	JWTSecret        string `long:"jwt-secret" env:"JWT_SECRET" description:"HS256 secret for API bearer tokens (required)" required:"true"`
	HashSalt         string `long:"hash-salt" env:"HASH_SALT" description:"Salt for guest identity hashes (required)" required:"true"`
	AutoMergeEnabled bool   `long:"auto-merge" env:"AUTO_MERGE" description:"Merge obvious duplicate guests on a schedule"`

	// Schedules
	RefreshSchedule       string `long:"refresh-schedule" env:"REFRESH_SCHEDULE" default:"@daily" description:"Cron spec for the background metrics refresh"`
	AutoEnrichSchedule    string `long:"auto-enrich-schedule" env:"AUTO_ENRICH_SCHEDULE" default:"@hourly" description:"Cron spec for auto-enrichment of new links"`
	NotificationsSchedule string `long:"notifications-schedule" env:"NOTIFICATIONS_SCHEDULE" default:"@every 15m" description:"Cron spec for the notification processor"`
	CleanupSchedule       string `long:"cleanup-schedule" env:"CLEANUP_SCHEDULE" default:"@hourly" description:"Cron spec for rate-limit window cleanup"`
	AutoMergeSchedule     string `long:"auto-merge-schedule" env:"AUTO_MERGE_SCHEDULE" default:"@daily" description:"Cron spec for obvious duplicate merging"`

	// Outgoing mail
	SMTPHost     string `long:"smtp-host" env:"SMTP_HOST" description:"SMTP server host (email disabled when empty)"`
	SMTPPort     int    `long:"smtp-port" env:"SMTP_PORT" default:"587" description:"SMTP server port"`
	SMTPUsername string `long:"smtp-username" env:"SMTP_USERNAME" description:"SMTP username"`
	SMTPPassword string `long:"smtp-password" env:"SMTP_PASSWORD" description:"SMTP password"`
	SMTPFrom     string `long:"smtp-from" env:"SMTP_FROM" description:"Sender address for notification email"`

	// Application metadata
	UserAgent   string `long:"user-agent" env:"USER_AGENT" default:"PodcastInfluenceTracker/1.0" description:"User agent string for HTTP requests"`
	HTTPTimeout int    `long:"http-timeout" env:"HTTP_TIMEOUT" default:"30" description:"Timeout in seconds for outgoing HTTP requests"`
	Timezone    string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	Debug       bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

// Load parses flags and environment variables. It returns (nil, nil) when help was requested.
func Load() (*Cfg, error) {
	return parse(nil)
}

func parse(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	var err error
	if args == nil {
		_, err = parser.Parse()
	} else {
		_, err = parser.ParseArgs(args)
	}
	if err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		DBPath:                raw.DBPath,
		Port:                  raw.Port,
		WorkerCount:           raw.WorkerCount,
		RateLimitsFile:        raw.RateLimitsFile,
		SettingsFile:          raw.SettingsFile,
		RedisURL:              raw.RedisURL,
		JWTSecret:             raw.JWTSecret,
		HashSalt:              raw.HashSalt,
		AutoMergeEnabled:      raw.AutoMergeEnabled,
		RefreshSchedule:       raw.RefreshSchedule,
		AutoEnrichSchedule:    raw.AutoEnrichSchedule,
		NotificationsSchedule: raw.NotificationsSchedule,
		CleanupSchedule:       raw.CleanupSchedule,
		AutoMergeSchedule:     raw.AutoMergeSchedule,
		SMTPHost:              raw.SMTPHost,
		SMTPPort:              raw.SMTPPort,
		SMTPUsername:          raw.SMTPUsername,
		SMTPPassword:          raw.SMTPPassword,
		SMTPFrom:              raw.SMTPFrom,
		UserAgent:             raw.UserAgent,
		HTTPTimeout:           time.Duration(raw.HTTPTimeout) * time.Second,
		Timezone:              raw.Timezone,
		Debug:                 raw.Debug,
		Version:               GetVersion(),
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	return cfg, nil
}

func validate(cfg *Cfg) error {
	if len(cfg.JWTSecret) < 32 {
		return fmt.Errorf("jwt secret must be at least 32 characters")
	}
	if cfg.WorkerCount <= 0 {
		return fmt.Errorf("worker count must be positive")
	}
	if cfg.HTTPTimeout <= 0 {
		return fmt.Errorf("http timeout must be positive")
	}
	return nil
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
		}
	}
	return nil
}
