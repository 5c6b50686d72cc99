package enrichment

import (
	"time"

	"github.com/lysyi3m/podcast-influence-tracker/app/database"
)

// WeekStart is Monday 00:00 UTC of the week containing t.
func WeekStart(t time.Time) time.Time {
	t = t.UTC()
	offset := (int(t.Weekday()) + 6) % 7
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return d.AddDate(0, 0, -offset)
}

// MonthStart is the first of the month 00:00 UTC.
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

type BudgetStatus struct {
	WeekStart        time.Time `json:"week_start"`
	WeeklySpent      float64   `json:"weekly_spent_usd"`
	WeeklyLimit      float64   `json:"weekly_limit_usd"`
	WeeklyRemaining  float64   `json:"weekly_remaining_usd"`
	MonthStart       time.Time `json:"month_start"`
	MonthlySpent     float64   `json:"monthly_spent_usd"`
	MonthlyLimit     float64   `json:"monthly_limit_usd"`
	MonthlyRemaining float64   `json:"monthly_remaining_usd"`
}

// Ledger aggregates the append-only cost log into period spend
type Ledger struct {
	store CostLedger
}

func NewLedger(store CostLedger) *Ledger {
	return &Ledger{store: store}
}

func (l *Ledger) WeeklySpend(now time.Time) (float64, error) {
	return l.store.SpentSince(WeekStart(now))
}

func (l *Ledger) MonthlySpend(now time.Time) (float64, error) {
	return l.store.SpentSince(MonthStart(now))
}

// Recent lists this week's ledger entries, newest first.
func (l *Ledger) Recent(now time.Time, limit int) ([]database.CostLogEntry, error) {
	return l.store.ListSince(WeekStart(now), limit)
}

func (l *Ledger) Status(weeklyLimit, monthlyLimit float64, now time.Time) (BudgetStatus, error) {
	weekly, err := l.WeeklySpend(now)
	if err != nil {
		return BudgetStatus{}, err
	}
	monthly, err := l.MonthlySpend(now)
	if err != nil {
		return BudgetStatus{}, err
	}
	return BudgetStatus{
		WeekStart:        WeekStart(now),
		WeeklySpent:      weekly,
		WeeklyLimit:      weeklyLimit,
		WeeklyRemaining:  max(0, weeklyLimit-weekly),
		MonthStart:       MonthStart(now),
		MonthlySpent:     monthly,
		MonthlyLimit:     monthlyLimit,
		MonthlyRemaining: max(0, monthlyLimit-monthly),
	}, nil
}
