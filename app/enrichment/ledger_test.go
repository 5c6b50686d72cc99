package enrichment

import (
	"testing"
	"time"

	"github.com/lysyi3m/podcast-influence-tracker/app/database"
)

type memLedger struct {
	entries []database.CostLogEntry
}

func (m *memLedger) Append(e *database.CostLogEntry) (int64, error) {
	m.entries = append(m.entries, *e)
	return int64(len(m.entries)), nil
}

func (m *memLedger) SpentSince(since time.Time) (float64, error) {
	var total float64
	for _, e := range m.entries {
		if !e.LoggedAt.Before(since) {
			total += e.CostUSD
		}
	}
	return total, nil
}

func (m *memLedger) ListSince(since time.Time, limit int) ([]database.CostLogEntry, error) {
	var out []database.CostLogEntry
	for i := len(m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if !m.entries[i].LoggedAt.Before(since) {
			out = append(out, m.entries[i])
		}
	}
	return out, nil
}

func TestPeriodStarts(t *testing.T) {
	tests := []struct {
		name      string
		at        time.Time
		wantWeek  time.Time
		wantMonth time.Time
	}{
		{"wednesday", time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC), time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)},
		{"monday midnight", time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)},
		{"sunday night", time.Date(2026, 3, 8, 23, 59, 0, 0, time.UTC), time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)},
		{"week spans months", time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC), time.Date(2026, 3, 30, 0, 0, 0, 0, time.UTC), time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)},
		{"non-utc input", time.Date(2026, 3, 2, 1, 0, 0, 0, time.FixedZone("CET", 3600)), time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := WeekStart(tt.at); !got.Equal(tt.wantWeek) {
				t.Errorf("WeekStart() = %v, want %v", got, tt.wantWeek)
			}
			if got := MonthStart(tt.at); !got.Equal(tt.wantMonth) {
				t.Errorf("MonthStart() = %v, want %v", got, tt.wantMonth)
			}
		})
	}
}

func TestLedgerStatus(t *testing.T) {
	store := &memLedger{}
	for _, e := range []database.CostLogEntry{
		{CostUSD: 4, LoggedAt: time.Date(2026, 2, 27, 10, 0, 0, 0, time.UTC)}, // previous month
		{CostUSD: 3, LoggedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)},  // this month, previous week
		{CostUSD: 2, LoggedAt: time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC)},
		{CostUSD: 5, LoggedAt: time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)},
	} {
		if _, err := store.Append(&e); err != nil {
			t.Fatal(err)
		}
	}

	status, err := NewLedger(store).Status(6, 100, testNow)
	if err != nil {
		t.Fatal(err)
	}

	if status.WeeklySpent != 7 || status.WeeklyRemaining != 0 {
		t.Errorf("weekly spent/remaining = %v/%v, want 7/0", status.WeeklySpent, status.WeeklyRemaining)
	}
	if status.MonthlySpent != 10 || status.MonthlyRemaining != 90 {
		t.Errorf("monthly spent/remaining = %v/%v, want 10/90", status.MonthlySpent, status.MonthlyRemaining)
	}
}

func TestLedgerRecent(t *testing.T) {
	store := &memLedger{}
	for _, e := range []database.CostLogEntry{
		{Platform: "twitter", CostUSD: 0.003, LoggedAt: WeekStart(testNow).Add(-time.Minute)},
		{Platform: "instagram", CostUSD: 0.005, LoggedAt: WeekStart(testNow).Add(time.Hour)},
		{Platform: "linkedin", CostUSD: 0.004, LoggedAt: testNow.Add(-time.Hour)},
		{Platform: "tiktok", CostUSD: 0.003, LoggedAt: testNow},
	} {
		if _, err := store.Append(&e); err != nil {
			t.Fatal(err)
		}
	}

	recent, err := NewLedger(store).Recent(testNow, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 2 || recent[0].Platform != "tiktok" || recent[1].Platform != "linkedin" {
		t.Errorf("Expected the two newest entries of this week, got %+v", recent)
	}

	all, _ := NewLedger(store).Recent(testNow, 10)
	if len(all) != 3 {
		t.Errorf("Expected last week's entry excluded, got %d entries", len(all))
	}
}
