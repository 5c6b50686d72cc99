package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

// GuestRepository handles the global guest directory. Standard lookups never return merged guests.
type GuestRepository struct {
	db *DB
}

func NewGuestRepository(db *DB) *GuestRepository {
	return &GuestRepository{db: db}
}

func (r *GuestRepository) Create(ctx context.Context, g *Guest) error {
	now := UTC(time.Now())
	if g.CreatedAt.IsZero() {
		g.CreatedAt = now
	}
	g.UpdatedAt = now
	if _, err := r.db.Bun.NewInsert().Model(g).Exec(ctx); err != nil {
		return fmt.Errorf("failed to create guest: %w", err)
	}
	return nil
}

// Update writes every column of a non-merged guest
func (r *GuestRepository) Update(ctx context.Context, g *Guest) error {
	g.UpdatedAt = UTC(time.Now())
	res, err := r.db.Bun.NewUpdate().Model(g).WherePK().Where("is_merged = ?", false).Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update guest: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("guest %d not found or merged", g.ID)
	}
	return nil
}

// GetByID returns nil for missing or merged guests
func (r *GuestRepository) GetByID(ctx context.Context, id int64) (*Guest, error) {
	g := new(Guest)
	err := r.db.Bun.NewSelect().Model(g).Where("g.id = ?", id).Where("g.is_merged = ?", false).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get guest: %w", err)
	}
	return g, nil
}

// GetIncludingMerged is for the merge engine and audit views only
func (r *GuestRepository) GetIncludingMerged(ctx context.Context, db bun.IDB, id int64) (*Guest, error) {
	g := new(Guest)
	err := db.NewSelect().Model(g).Where("g.id = ?", id).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get guest: %w", err)
	}
	return g, nil
}

func (r *GuestRepository) List(ctx context.Context, limit, offset int) ([]Guest, error) {
	var guests []Guest
	err := r.db.Bun.NewSelect().Model(&guests).
		Where("g.is_merged = ?", false).
		OrderExpr("g.full_name ASC, g.id ASC").
		Limit(limit).Offset(offset).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list guests: %w", err)
	}
	return guests, nil
}

// FindByEmailHash returns non-merged guests sharing the hash
func (r *GuestRepository) FindByEmailHash(ctx context.Context, hash string) ([]Guest, error) {
	var guests []Guest
	if hash == "" {
		return guests, nil
	}
	err := r.db.Bun.NewSelect().Model(&guests).
		Where("g.email_hash = ?", hash).
		Where("g.is_merged = ?", false).
		OrderExpr("g.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to find guests by email hash: %w", err)
	}
	return guests, nil
}

// ListHashed returns every non-merged guest carrying at least one dedup hash,
// best quality first with ties broken by lower id.
func (r *GuestRepository) ListHashed(ctx context.Context) ([]Guest, error) {
	var guests []Guest
	err := r.db.Bun.NewSelect().Model(&guests).
		Column("id", "email_hash", "linkedin_url_hash", "data_quality_score", "full_name").
		Where("g.is_merged = ?", false).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("g.email_hash != ''").WhereOr("g.linkedin_url_hash != ''")
		}).
		OrderExpr("g.data_quality_score DESC, g.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list hashed guests: %w", err)
	}
	return guests, nil
}

// SetClaimedBy records the user who owns the guest identity
func (r *GuestRepository) SetClaimedBy(ctx context.Context, db bun.IDB, guestID, userID int64) error {
	res, err := db.NewUpdate().Model((*Guest)(nil)).
		Set("claimed_by_user_id = ?", userID).
		Set("updated_at = ?", UTC(time.Now())).
		Where("id = ?", guestID).
		Where("is_merged = ?", false).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to set guest claim: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("guest %d not found or merged", guestID)
	}
	return nil
}

func (r *GuestRepository) AddNote(ctx context.Context, n *GuestNote) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = UTC(time.Now())
	}
	if _, err := r.db.Bun.NewInsert().Model(n).Exec(ctx); err != nil {
		return fmt.Errorf("failed to add guest note: %w", err)
	}
	return nil
}

func (r *GuestRepository) ListNotes(ctx context.Context, guestID int64) ([]GuestNote, error) {
	var notes []GuestNote
	err := r.db.Bun.NewSelect().Model(&notes).Where("guest_id = ?", guestID).OrderExpr("id ASC").Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list guest notes: %w", err)
	}
	return notes, nil
}
