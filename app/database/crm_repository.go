package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CRMRepository stores the user-scoped pipeline: opportunities, appearances and their tasks.
// Every read is filtered by owner so one user never sees another's CRM rows.
type CRMRepository struct {
	db *DB
}

func NewCRMRepository(db *DB) *CRMRepository {
	return &CRMRepository{db: db}
}

func (r *CRMRepository) CreateOpportunity(ctx context.Context, o *Opportunity) error {
	now := UTC(time.Now())
	o.CreatedAt, o.UpdatedAt = now, now
	if _, err := r.db.Bun.NewInsert().Model(o).Exec(ctx); err != nil {
		return fmt.Errorf("failed to create opportunity: %w", err)
	}
	return nil
}

func (r *CRMRepository) GetOpportunity(ctx context.Context, userID, id int64) (*Opportunity, error) {
	o := new(Opportunity)
	err := r.db.Bun.NewSelect().Model(o).Where("o.id = ?", id).Where("o.user_id = ?", userID).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get opportunity: %w", err)
	}
	return o, nil
}

// SaveOpportunityStatus writes status and history only if the row still has the expected status
func (r *CRMRepository) SaveOpportunityStatus(ctx context.Context, o *Opportunity, expected string) error {
	o.UpdatedAt = UTC(time.Now())
	res, err := r.db.Bun.NewUpdate().Model(o).
		Column("status", "status_history", "updated_at").
		WherePK().
		Where("user_id = ?", o.UserID).
		Where("status = ?", expected).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update opportunity status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("opportunity %d changed concurrently", o.ID)
	}
	return nil
}

func (r *CRMRepository) ListOpportunities(ctx context.Context, userID int64, status string) ([]Opportunity, error) {
	var opps []Opportunity
	q := r.db.Bun.NewSelect().Model(&opps).Where("o.user_id = ?", userID)
	if status != "" {
		q = q.Where("o.status = ?", status)
	}
	if err := q.OrderExpr("o.updated_at DESC, o.id DESC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to list opportunities: %w", err)
	}
	return opps, nil
}

func (r *CRMRepository) CreateAppearance(ctx context.Context, a *Appearance) error {
	now := UTC(time.Now())
	a.CreatedAt, a.UpdatedAt = now, now
	if a.InterviewAt != nil {
		t := UTC(*a.InterviewAt)
		a.InterviewAt = &t
	}
	if _, err := r.db.Bun.NewInsert().Model(a).Exec(ctx); err != nil {
		return fmt.Errorf("failed to create appearance: %w", err)
	}
	return nil
}

func (r *CRMRepository) GetAppearance(ctx context.Context, userID, id int64) (*Appearance, error) {
	a := new(Appearance)
	err := r.db.Bun.NewSelect().Model(a).Where("a.id = ?", id).Where("a.user_id = ?", userID).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get appearance: %w", err)
	}
	return a, nil
}

func (r *CRMRepository) CreateTask(ctx context.Context, t *AppearanceTask) error {
	now := UTC(time.Now())
	t.CreatedAt, t.UpdatedAt = now, now
	for _, p := range []**time.Time{&t.DueAt, &t.ReminderAt} {
		if *p != nil {
			v := UTC(**p)
			*p = &v
		}
	}
	if _, err := r.db.Bun.NewInsert().Model(t).Exec(ctx); err != nil {
		return fmt.Errorf("failed to create appearance task: %w", err)
	}
	return nil
}

func (r *CRMRepository) CompleteTask(ctx context.Context, userID, id int64) error {
	res, err := r.db.Bun.NewUpdate().Model((*AppearanceTask)(nil)).
		Set("is_done = ?", true).
		Set("updated_at = ?", UTC(time.Now())).
		Where("id = ?", id).
		Where("user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to complete task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("task %d: %w", id, sql.ErrNoRows)
	}
	return nil
}

// TasksWithReminderDue returns open tasks whose reminder time has passed
func (r *CRMRepository) TasksWithReminderDue(ctx context.Context, now time.Time, limit int) ([]AppearanceTask, error) {
	var tasks []AppearanceTask
	err := r.db.Bun.NewSelect().Model(&tasks).
		Where("t.is_done = ?", false).
		Where("t.reminder_at IS NOT NULL").
		Where("t.reminder_at <= ?", UTC(now)).
		OrderExpr("t.reminder_at ASC, t.id ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query due reminders: %w", err)
	}
	return tasks, nil
}

// OverdueTasks returns open tasks past their due time
func (r *CRMRepository) OverdueTasks(ctx context.Context, now time.Time, limit int) ([]AppearanceTask, error) {
	var tasks []AppearanceTask
	err := r.db.Bun.NewSelect().Model(&tasks).
		Where("t.is_done = ?", false).
		Where("t.due_at IS NOT NULL").
		Where("t.due_at < ?", UTC(now)).
		OrderExpr("t.due_at ASC, t.id ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query overdue tasks: %w", err)
	}
	return tasks, nil
}

// InterviewsBetween returns appearances with an interview in [from, to]
func (r *CRMRepository) InterviewsBetween(ctx context.Context, from, to time.Time, limit int) ([]Appearance, error) {
	var apps []Appearance
	err := r.db.Bun.NewSelect().Model(&apps).
		Where("a.interview_at IS NOT NULL").
		Where("a.interview_at >= ?", UTC(from)).
		Where("a.interview_at <= ?", UTC(to)).
		OrderExpr("a.interview_at ASC, a.id ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query upcoming interviews: %w", err)
	}
	return apps, nil
}
