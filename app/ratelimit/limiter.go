// Package ratelimit enforces per-user, per-endpoint request caps over fixed windows.
package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/lysyi3m/podcast-influence-tracker/app/metrics"
)

// Decision is the outcome of one check. Callers turn it into a response; it is never an error.
type Decision struct {
	Allowed   bool      `json:"allowed"`
	Bypass    bool      `json:"bypass,omitempty"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	Reset     time.Time `json:"reset"`
}

type Limiter struct {
	store Store
	rules Rules
	now   func() time.Time
}

func New(store Store, rules Rules) *Limiter {
	return &Limiter{store: store, rules: rules, now: time.Now}
}

func windowStart(now time.Time, r Rule) int64 {
	ts := now.Unix()
	return ts - ts%int64(r.WindowSeconds)
}

// Check counts one request and reports whether it fits in the current window.
// Admins bypass without touching the counter.
func (l *Limiter) Check(ctx context.Context, userID int64, endpoint string, isAdmin bool) (Decision, error) {
	rule := l.rules.Get(endpoint)
	start := windowStart(l.now(), rule)
	d := Decision{Limit: rule.Requests, Reset: time.Unix(start+int64(rule.WindowSeconds), 0).UTC()}

	if isAdmin {
		d.Allowed, d.Bypass, d.Remaining = true, true, rule.Requests
		metrics.RateLimitDecisions.WithLabelValues(endpoint, "bypass").Inc()
		return d, nil
	}

	count, err := l.store.Increment(ctx, userID, endpoint, start, rule.Window())
	if err != nil {
		return d, err
	}

	d.Allowed = count <= rule.Requests
	d.Remaining = max(rule.Requests-count, 0)
	if d.Allowed {
		metrics.RateLimitDecisions.WithLabelValues(endpoint, "allowed").Inc()
	} else {
		metrics.RateLimitDecisions.WithLabelValues(endpoint, "rejected").Inc()
		slog.Debug("Rate limit exceeded", "user", userID, "endpoint", endpoint, "count", count, "limit", rule.Requests)
	}
	return d, nil
}

// Status reports the current window without counting a request.
func (l *Limiter) Status(ctx context.Context, userID int64, endpoint string) (Decision, error) {
	rule := l.rules.Get(endpoint)
	start := windowStart(l.now(), rule)
	d := Decision{Limit: rule.Requests, Reset: time.Unix(start+int64(rule.WindowSeconds), 0).UTC()}

	count, err := l.store.Count(ctx, userID, endpoint, start)
	if err != nil {
		return d, err
	}
	d.Allowed = count < rule.Requests
	d.Remaining = max(rule.Requests-count, 0)
	return d, nil
}

// Cleanup drops counters older than the longest configured window.
func (l *Limiter) Cleanup(ctx context.Context) (int64, error) {
	before := l.now().Add(-l.rules.longestWindow())
	n, err := l.store.Cleanup(ctx, before)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		slog.Info("Rate limit counters cleaned up", "deleted", n)
	}
	return n, nil
}
