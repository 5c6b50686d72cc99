package cfg

import "time"

type Cfg struct {
	// Database configuration
	DBPath string

	// Application configuration
	Port             string
	WorkerCount      int
	RateLimitsFile   string
	SettingsFile     string
	RedisURL         string
	JWTSecret        string
	HashSalt         string
	AutoMergeEnabled bool

	// Schedules (cron specs)
	RefreshSchedule       string
	AutoEnrichSchedule    string
	NotificationsSchedule string
	CleanupSchedule       string
	AutoMergeSchedule     string

	// Outgoing mail
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	// Application metadata
	UserAgent   string
	HTTPTimeout time.Duration
	Timezone    string
	Debug       bool
	Version     string
}

// MailEnabled reports whether enough SMTP settings are present to send email.
func (c *Cfg) MailEnabled() bool {
	return c.SMTPHost != "" && c.SMTPFrom != ""
}
