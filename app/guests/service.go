package guests

import (
	"context"
	"errors"

	"github.com/lysyi3m/podcast-influence-tracker/app/database"
)

var (
	ErrGuestNotFound = errors.New("guest not found")
	ErrGuestMerged   = errors.New("guest has been merged")
)

// Service is the write path for guests. It owns the derived columns: dedup hashes
// follow the plaintext and the quality score is recomputed on every write.
type Service struct {
	repo   *database.GuestRepository
	hasher *Hasher
}

func NewService(repo *database.GuestRepository, hasher *Hasher) *Service {
	return &Service{repo: repo, hasher: hasher}
}

func (s *Service) derive(g *database.Guest) {
	g.EmailHash = s.hasher.Email(g.Email)
	g.LinkedInURLHash = s.hasher.LinkedIn(g.LinkedInURL)
	g.DataQualityScore = CalculateQualityScore(g)
}

func (s *Service) Create(ctx context.Context, g *database.Guest) error {
	g.ID = 0
	g.IsMerged = false
	g.MergedIntoGuestID = nil
	g.MergeHistory = nil
	s.derive(g)
	return s.repo.Create(ctx, g)
}

// Update saves caller edits. Merge bookkeeping columns are carried over from the stored row.
func (s *Service) Update(ctx context.Context, g *database.Guest) error {
	current, err := s.repo.GetByID(ctx, g.ID)
	if err != nil {
		return err
	}
	if current == nil {
		return ErrGuestNotFound
	}
	g.MergeHistory = current.MergeHistory
	g.IsMerged = false
	g.MergedIntoGuestID = nil
	g.CreatedAt = current.CreatedAt
	s.derive(g)
	return s.repo.Update(ctx, g)
}

func (s *Service) Get(ctx context.Context, id int64) (*database.Guest, error) {
	g, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, ErrGuestNotFound
	}
	return g, nil
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]database.Guest, error) {
	return s.repo.List(ctx, limit, offset)
}

// FindByEmail looks a guest up through the email hash
func (s *Service) FindByEmail(ctx context.Context, email string) ([]database.Guest, error) {
	return s.repo.FindByEmailHash(ctx, s.hasher.Email(email))
}
