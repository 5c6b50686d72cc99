package ratelimit

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lysyi3m/podcast-influence-tracker/app/database"
	"github.com/lysyi3m/podcast-influence-tracker/app/database/dbtest"
)

func newTestLimiter(t *testing.T, rules Rules, now *time.Time) (*Limiter, *database.RateLimitRepository) {
	t.Helper()
	repo := database.NewRateLimitRepository(dbtest.New(t))
	l := New(NewSQLStore(repo), rules)
	l.now = func() time.Time { return *now }
	return l, repo
}

func TestCheckWindow(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 4, 12, 0, 5, 0, time.UTC)
	rules := Rules{RateLimits: map[string]Rule{"guests.merge": {Requests: 100, WindowSeconds: 60}}}
	l, _ := newTestLimiter(t, rules, &now)

	for i := 1; i <= 100; i++ {
		d, err := l.Check(ctx, 7, "guests.merge", false)
		if err != nil {
			t.Fatalf("Check() error = %v", err)
		}
		if !d.Allowed {
			t.Fatalf("Expected call %d to be allowed", i)
		}
		if d.Remaining != 100-i {
			t.Fatalf("Expected %d remaining after call %d, got %d", 100-i, i, d.Remaining)
		}
	}

	d, err := l.Check(ctx, 7, "guests.merge", false)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if d.Allowed || d.Remaining != 0 {
		t.Errorf("Expected 101st call rejected with 0 remaining, got %+v", d)
	}
	if want := time.Date(2026, 3, 4, 12, 1, 0, 0, time.UTC); !d.Reset.Equal(want) {
		t.Errorf("Expected reset at %v, got %v", want, d.Reset)
	}

	other, err := l.Check(ctx, 8, "guests.merge", false)
	if err != nil || !other.Allowed {
		t.Errorf("Expected another user to have a separate counter, got %+v %v", other, err)
	}

	now = now.Add(time.Minute)
	status, err := l.Status(ctx, 7, "guests.merge")
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if status.Remaining != 100 || !status.Allowed {
		t.Errorf("Expected fresh window in the next minute, got %+v", status)
	}
	if d, _ := l.Check(ctx, 7, "guests.merge", false); !d.Allowed || d.Remaining != 99 {
		t.Errorf("Expected first call of new window allowed, got %+v", d)
	}
}

func TestCheckAdminBypass(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	rules := Rules{RateLimits: map[string]Rule{"budget": {Requests: 1, WindowSeconds: 60}}}
	l, repo := newTestLimiter(t, rules, &now)

	for range 5 {
		d, err := l.Check(ctx, 1, "budget", true)
		if err != nil {
			t.Fatalf("Check() error = %v", err)
		}
		if !d.Allowed || !d.Bypass {
			t.Fatalf("Expected admin bypass, got %+v", d)
		}
	}

	count, err := repo.Count(1, "budget", now.Unix())
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 0 {
		t.Errorf("Expected admin calls not to be counted, got %d", count)
	}
}

func TestCleanup(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	l, repo := newTestLimiter(t, Rules{}, &now)

	if _, err := l.Check(ctx, 1, "x", false); err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	now = now.Add(2 * time.Hour)
	if _, err := l.Check(ctx, 1, "x", false); err != nil {
		t.Fatalf("Check() error = %v", err)
	}

	n, err := l.Cleanup(ctx)
	if err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 stale window removed, got %d", n)
	}
	if c, _ := repo.Count(1, "x", now.Unix()); c != 1 {
		t.Errorf("Expected current window kept, got %d", c)
	}
}

func TestLoadRules(t *testing.T) {
	data := []byte(`
rate_limits:
  guests.merge:
    requests: 10
    window_seconds: 3600
  podcasts.import:
    requests: 5
`)
	rules, err := LoadRules(data)
	if err != nil {
		t.Fatalf("LoadRules() error = %v", err)
	}

	tests := []struct {
		endpoint string
		want     Rule
	}{
		{"guests.merge", Rule{Requests: 10, WindowSeconds: 3600}},
		{"podcasts.import", Rule{Requests: 5, WindowSeconds: DefaultWindowSeconds}},
		{"unknown", DefaultRule()},
	}
	for _, tt := range tests {
		t.Run(tt.endpoint, func(t *testing.T) {
			if got := rules.Get(tt.endpoint); got != tt.want {
				t.Errorf("Get(%q) = %+v, want %+v", tt.endpoint, got, tt.want)
			}
		})
	}

	if rules.longestWindow() != time.Hour {
		t.Errorf("Expected longest window of 1h, got %v", rules.longestWindow())
	}

	if _, err := LoadRules([]byte("rate_limits: [")); err == nil {
		t.Error("Expected error for malformed YAML")
	}
}

func TestLoadRulesFile(t *testing.T) {
	rules, err := LoadRulesFile(filepath.Join(t.TempDir(), "missing.yml"))
	if err != nil {
		t.Fatalf("Expected missing file to be ignored, got %v", err)
	}
	if len(rules.RateLimits) != 0 {
		t.Errorf("Expected no rules, got %v", rules.RateLimits)
	}

	path := filepath.Join(t.TempDir(), "rate_limits.yml")
	if err := os.WriteFile(path, []byte("rate_limits:\n  budget:\n    requests: 3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	rules, err = LoadRulesFile(path)
	if err != nil {
		t.Fatalf("LoadRulesFile() error = %v", err)
	}
	if rules.Get("budget").Requests != 3 {
		t.Errorf("Expected 3 requests for budget, got %d", rules.Get("budget").Requests)
	}
}

func TestRedisKey(t *testing.T) {
	if got := redisKey(7, "guests.merge", 1700000000); got != "ratelimit:7:guests.merge:1700000000" {
		t.Errorf("Unexpected redis key %q", got)
	}
}
