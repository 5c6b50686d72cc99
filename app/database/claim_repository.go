package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"
)

type ClaimRepository struct {
	db *DB
}

func NewClaimRepository(db *DB) *ClaimRepository {
	return &ClaimRepository{db: db}
}

func (r *ClaimRepository) Create(ctx context.Context, db bun.IDB, c *ClaimRequest) error {
	if _, err := db.NewInsert().Model(c).Exec(ctx); err != nil {
		return fmt.Errorf("failed to create claim request: %w", err)
	}
	return nil
}

func (r *ClaimRepository) GetByID(ctx context.Context, db bun.IDB, id int64) (*ClaimRequest, error) {
	c := new(ClaimRequest)
	if err := db.NewSelect().Model(c).Where("cr.id = ?", id).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get claim request: %w", err)
	}
	return c, nil
}

// Review moves a pending claim to its final status
func (r *ClaimRepository) Review(ctx context.Context, db bun.IDB, c *ClaimRequest) error {
	res, err := db.NewUpdate().Model(c).
		Column("status", "reviewed_by_user_id", "review_notes", "reviewed_at").
		WherePK().
		Where("status = ?", ClaimPending).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to review claim request: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("claim request %d is not pending", c.ID)
	}
	return nil
}

func (r *ClaimRepository) HasPending(ctx context.Context, db bun.IDB, guestID, userID int64) (bool, error) {
	exists, err := db.NewSelect().Model((*ClaimRequest)(nil)).
		Where("guest_id = ?", guestID).
		Where("user_id = ?", userID).
		Where("status = ?", ClaimPending).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to check pending claims: %w", err)
	}
	return exists, nil
}

func (r *ClaimRepository) ListPending(ctx context.Context, limit int) ([]ClaimRequest, error) {
	var claims []ClaimRequest
	err := r.db.Bun.NewSelect().Model(&claims).
		Where("status = ?", ClaimPending).
		OrderExpr("created_at ASC, id ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending claims: %w", err)
	}
	return claims, nil
}
