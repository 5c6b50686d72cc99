package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type NotificationRepository struct {
	db *DB
}

func NewNotificationRepository(db *DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// InsertIfAbsent stores n unless a notification with the same (source, source_id, type) exists.
// It reports whether a row was written.
func (r *NotificationRepository) InsertIfAbsent(ctx context.Context, n *Notification) (bool, error) {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = UTC(time.Now())
	}
	res, err := r.db.Bun.NewInsert().Model(n).Ignore().Returning("NULL").Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to insert notification: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return false, nil
	}

	err = r.db.Bun.NewSelect().Model((*Notification)(nil)).Column("id").
		Where("source = ?", n.Source).
		Where("source_id = ?", n.SourceID).
		Where("type = ?", n.Type).
		Scan(ctx, &n.ID)
	if err != nil {
		return false, fmt.Errorf("failed to load notification id: %w", err)
	}
	return true, nil
}

func (r *NotificationRepository) MarkEmailSent(ctx context.Context, id int64, at time.Time) error {
	_, err := r.db.Bun.NewUpdate().Model((*Notification)(nil)).
		Set("email_sent_at = ?", UTC(at)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to mark notification emailed: %w", err)
	}
	return nil
}

func (r *NotificationRepository) MarkPushSent(ctx context.Context, id int64, at time.Time) error {
	_, err := r.db.Bun.NewUpdate().Model((*Notification)(nil)).
		Set("push_sent_at = ?", UTC(at)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to mark notification pushed: %w", err)
	}
	return nil
}

func (r *NotificationRepository) ListForUser(ctx context.Context, userID int64, unreadOnly bool, limit int) ([]Notification, error) {
	var ns []Notification
	q := r.db.Bun.NewSelect().Model(&ns).Where("n.user_id = ?", userID)
	if unreadOnly {
		q = q.Where("n.is_read = ?", false)
	}
	if err := q.OrderExpr("n.created_at DESC, n.id DESC").Limit(limit).Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return ns, nil
}

// GetPreference returns nil when the user never saved preferences
func (r *NotificationRepository) GetPreference(ctx context.Context, userID int64) (*NotificationPreference, error) {
	p := new(NotificationPreference)
	err := r.db.Bun.NewSelect().Model(p).Where("np.user_id = ?", userID).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get notification preference: %w", err)
	}
	return p, nil
}

func (r *NotificationRepository) SavePreference(ctx context.Context, p *NotificationPreference) error {
	p.UpdatedAt = UTC(time.Now())
	_, err := r.db.Bun.NewInsert().Model(p).
		On("CONFLICT (user_id) DO UPDATE").
		Set("email = EXCLUDED.email").
		Set("email_enabled = EXCLUDED.email_enabled").
		Set("push_enabled = EXCLUDED.push_enabled").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to save notification preference: %w", err)
	}
	return nil
}
