// Package settings turns the persisted key/value settings table into an explicit
// Settings value. Services receive a Settings at call time; nothing here is global.
package settings

import (
	"encoding/json"
	"fmt"
	"maps"
	"strconv"
	"time"

	"github.com/lysyi3m/podcast-influence-tracker/app/database"
)

type Settings struct {
	WeeklyBudgetUSD     float64
	MonthlyBudgetUSD    float64
	RefreshBatchSize    int
	AutoEnrichBatchSize int
	QueueDelay          time.Duration
	MaxAttempts         int
	PlatformCosts       map[database.Platform]float64
	ProviderAPIKey      string
	InterviewLeadTime   time.Duration
}

// DefaultPlatformCosts is the per-platform price of one metrics fetch in USD.
func DefaultPlatformCosts() map[database.Platform]float64 {
	return map[database.Platform]float64{
		database.PlatformYouTube:       0.000,
		database.PlatformSpotify:       0.000,
		database.PlatformApplePodcasts: 0.000,
		database.PlatformTwitter:       0.003,
		database.PlatformTikTok:        0.003,
		database.PlatformInstagram:     0.005,
		database.PlatformFacebook:      0.005,
		database.PlatformLinkedIn:      0.004,
	}
}

func Defaults() Settings {
	return Settings{
		WeeklyBudgetUSD:     50,
		MonthlyBudgetUSD:    200,
		RefreshBatchSize:    50,
		AutoEnrichBatchSize: 50,
		QueueDelay:          100 * time.Millisecond,
		MaxAttempts:         3,
		PlatformCosts:       DefaultPlatformCosts(),
		InterviewLeadTime:   24 * time.Hour,
	}
}

// Store is the persistence the settings package needs
type Store interface {
	Get(key string) (string, bool, error)
	Set(key, value string, now time.Time) error
	SetIfMissing(key, value string, now time.Time) (bool, error)
}

var _ Store = (*database.SettingsRepository)(nil)

const (
	KeyWeeklyBudget      = "weekly_budget_usd"
	KeyMonthlyBudget     = "monthly_budget_usd"
	KeyRefreshBatchSize  = "refresh_batch_size"
	KeyAutoEnrichBatch   = "auto_enrich_batch_size"
	KeyQueueDelay        = "queue_delay_ms"
	KeyMaxAttempts       = "max_attempts"
	KeyPlatformCosts     = "platform_costs"
	KeyProviderAPIKey    = "provider_api_key"
	KeyInterviewLeadTime = "interview_lead_time_minutes"
)

type field struct {
	key    string
	encode func(s *Settings) string
	decode func(s *Settings, v string) error
}

var fields = []field{
	{KeyWeeklyBudget,
		func(s *Settings) string { return formatFloat(s.WeeklyBudgetUSD) },
		func(s *Settings, v string) (err error) { s.WeeklyBudgetUSD, err = parseAmount(v); return }},
	{KeyMonthlyBudget,
		func(s *Settings) string { return formatFloat(s.MonthlyBudgetUSD) },
		func(s *Settings, v string) (err error) { s.MonthlyBudgetUSD, err = parseAmount(v); return }},
	{KeyRefreshBatchSize,
		func(s *Settings) string { return strconv.Itoa(s.RefreshBatchSize) },
		func(s *Settings, v string) (err error) { s.RefreshBatchSize, err = parsePositive(v); return }},
	{KeyAutoEnrichBatch,
		func(s *Settings) string { return strconv.Itoa(s.AutoEnrichBatchSize) },
		func(s *Settings, v string) (err error) { s.AutoEnrichBatchSize, err = parsePositive(v); return }},
	{KeyQueueDelay,
		func(s *Settings) string { return strconv.FormatInt(s.QueueDelay.Milliseconds(), 10) },
		func(s *Settings, v string) error {
			ms, err := strconv.ParseInt(v, 10, 64)
			if err != nil || ms < 0 {
				return fmt.Errorf("must be a non-negative number of milliseconds")
			}
			s.QueueDelay = time.Duration(ms) * time.Millisecond
			return nil
		}},
	{KeyMaxAttempts,
		func(s *Settings) string { return strconv.Itoa(s.MaxAttempts) },
		func(s *Settings, v string) (err error) { s.MaxAttempts, err = parsePositive(v); return }},
	{KeyPlatformCosts,
		func(s *Settings) string {
			b, _ := json.Marshal(s.PlatformCosts)
			return string(b)
		},
		func(s *Settings, v string) error {
			var raw map[string]float64
			if err := json.Unmarshal([]byte(v), &raw); err != nil {
				return fmt.Errorf("must be a JSON object of platform prices: %w", err)
			}
			costs := DefaultPlatformCosts()
			for name, price := range raw {
				p, ok := database.ParsePlatform(name)
				if !ok {
					return fmt.Errorf("unknown platform %q", name)
				}
				if price < 0 {
					return fmt.Errorf("price for %s must not be negative", name)
				}
				costs[p] = price
			}
			s.PlatformCosts = costs
			return nil
		}},
	{KeyProviderAPIKey,
		func(s *Settings) string { return s.ProviderAPIKey },
		func(s *Settings, v string) error { s.ProviderAPIKey = v; return nil }},
	{KeyInterviewLeadTime,
		func(s *Settings) string { return strconv.FormatInt(int64(s.InterviewLeadTime/time.Minute), 10) },
		func(s *Settings, v string) error {
			m, err := parsePositive(v)
			if err != nil {
				return err
			}
			s.InterviewLeadTime = time.Duration(m) * time.Minute
			return nil
		}},
}

func lookup(key string) (field, bool) {
	for _, f := range fields {
		if f.key == key {
			return f, true
		}
	}
	return field{}, false
}

// Load reads every known key, falling back to defaults for keys never stored
func Load(store Store) (Settings, error) {
	s := Defaults()
	for _, f := range fields {
		v, ok, err := store.Get(f.key)
		if err != nil {
			return Settings{}, err
		}
		if !ok {
			continue
		}
		if err := f.decode(&s, v); err != nil {
			return Settings{}, fmt.Errorf("invalid setting %s: %w", f.key, err)
		}
	}
	return s, nil
}

// Save writes every key
func Save(store Store, s Settings, now time.Time) error {
	if err := s.Validate(); err != nil {
		return err
	}
	for _, f := range fields {
		if err := store.Set(f.key, f.encode(&s), now); err != nil {
			return err
		}
	}
	return nil
}

// Set validates and stores a single key
func Set(store Store, key, value string, now time.Time) error {
	f, ok := lookup(key)
	if !ok {
		return fmt.Errorf("unknown setting %q", key)
	}
	scratch := Defaults()
	if err := f.decode(&scratch, value); err != nil {
		return fmt.Errorf("invalid setting %s: %w", key, err)
	}
	return store.Set(key, f.encode(&scratch), now)
}

func (s Settings) Validate() error {
	if s.WeeklyBudgetUSD < 0 || s.MonthlyBudgetUSD < 0 {
		return fmt.Errorf("budgets must not be negative")
	}
	if s.RefreshBatchSize <= 0 || s.AutoEnrichBatchSize <= 0 {
		return fmt.Errorf("batch sizes must be positive")
	}
	if s.MaxAttempts <= 0 {
		return fmt.Errorf("max attempts must be positive")
	}
	if s.QueueDelay < 0 {
		return fmt.Errorf("queue delay must not be negative")
	}
	return nil
}

// Clone returns a copy whose price table can be modified independently
func (s Settings) Clone() Settings {
	c := s
	c.PlatformCosts = maps.Clone(s.PlatformCosts)
	return c
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func parseAmount(v string) (float64, error) {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		return 0, fmt.Errorf("must be a non-negative amount")
	}
	return f, nil
}

func parsePositive(v string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("must be a positive integer")
	}
	return n, nil
}
