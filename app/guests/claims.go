package guests

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/lysyi3m/podcast-influence-tracker/app/database"
)

var (
	ErrClaimNotFound   = errors.New("claim request not found")
	ErrClaimNotPending = errors.New("claim request is not pending")
	ErrAlreadyClaimed  = errors.New("guest is already claimed")
	ErrClaimPending    = errors.New("a claim for this guest is already pending")
)

const (
	VerificationEmailMatch   = "email_match"
	VerificationManualReview = "manual_review"
)

// Claims runs the workflow by which a user asserts they are a guest.
type Claims struct {
	db     *database.DB
	guests *database.GuestRepository
	claims *database.ClaimRepository
	hasher *Hasher
	now    func() time.Time
}

func NewClaims(db *database.DB, guests *database.GuestRepository, claims *database.ClaimRepository, hasher *Hasher) *Claims {
	return &Claims{db: db, guests: guests, claims: claims, hasher: hasher, now: time.Now}
}

// RequestClaim auto-approves when the requester's verified email hashes to the
// guest's email hash, otherwise files a pending request for review.
func (c *Claims) RequestClaim(ctx context.Context, guestID, userID int64, verifiedEmail string) (*database.ClaimRequest, error) {
	var claim *database.ClaimRequest
	err := c.db.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		guest, err := c.claimable(ctx, tx, guestID)
		if err != nil {
			return err
		}

		pending, err := c.claims.HasPending(ctx, tx, guestID, userID)
		if err != nil {
			return err
		}
		if pending {
			return ErrClaimPending
		}

		now := database.UTC(c.now())
		claim = &database.ClaimRequest{
			GuestID:            guestID,
			UserID:             userID,
			Status:             database.ClaimPending,
			VerificationMethod: VerificationManualReview,
			VerificationToken:  uuid.NewString(),
			CreatedAt:          now,
		}

		if guest.EmailHash != "" && c.hasher.Email(verifiedEmail) == guest.EmailHash {
			claim.Status = database.ClaimAutoApproved
			claim.VerificationMethod = VerificationEmailMatch
			claim.ReviewedAt = &now
		}

		if err := c.claims.Create(ctx, tx, claim); err != nil {
			return err
		}
		if claim.Status == database.ClaimAutoApproved {
			return c.guests.SetClaimedBy(ctx, tx, guestID, userID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Guest claim requested", "guest", guestID, "user", userID, "status", claim.Status)
	return claim, nil
}

func (c *Claims) Approve(ctx context.Context, claimID, reviewerID int64) (*database.ClaimRequest, error) {
	return c.review(ctx, claimID, reviewerID, database.ClaimApproved, "")
}

func (c *Claims) Reject(ctx context.Context, claimID, reviewerID int64, reason string) (*database.ClaimRequest, error) {
	return c.review(ctx, claimID, reviewerID, database.ClaimRejected, reason)
}

func (c *Claims) review(ctx context.Context, claimID, reviewerID int64, status database.ClaimStatus, notes string) (*database.ClaimRequest, error) {
	var claim *database.ClaimRequest
	err := c.db.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		claim, err = c.claims.GetByID(ctx, tx, claimID)
		if err != nil {
			return err
		}
		if claim == nil {
			return ErrClaimNotFound
		}
		if claim.Status != database.ClaimPending {
			return ErrClaimNotPending
		}

		if status == database.ClaimApproved {
			if _, err := c.claimable(ctx, tx, claim.GuestID); err != nil {
				return err
			}
		}

		now := database.UTC(c.now())
		claim.Status = status
		claim.ReviewedByUserID = &reviewerID
		claim.ReviewNotes = notes
		claim.ReviewedAt = &now
		if err := c.claims.Review(ctx, tx, claim); err != nil {
			return err
		}

		if status == database.ClaimApproved {
			return c.guests.SetClaimedBy(ctx, tx, claim.GuestID, claim.UserID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Guest claim reviewed", "claim", claimID, "reviewer", reviewerID, "status", status)
	return claim, nil
}

func (c *Claims) ListPending(ctx context.Context, limit int) ([]database.ClaimRequest, error) {
	return c.claims.ListPending(ctx, limit)
}

func (c *Claims) claimable(ctx context.Context, tx bun.Tx, guestID int64) (*database.Guest, error) {
	guest, err := c.guests.GetIncludingMerged(ctx, tx, guestID)
	if err != nil {
		return nil, err
	}
	switch {
	case guest == nil:
		return nil, ErrGuestNotFound
	case guest.IsMerged:
		return nil, ErrGuestMerged
	case guest.ClaimedByUserID != nil:
		return nil, ErrAlreadyClaimed
	}
	return guest, nil
}
