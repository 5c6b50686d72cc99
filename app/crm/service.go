package crm

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lysyi3m/podcast-influence-tracker/app/database"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrGuestNotFound       = errors.New("guest not found")
	ErrGuestMerged         = errors.New("guest has been merged")
	ErrForbiddenTransition = errors.New("status transition not allowed")
	ErrInvalidTask         = errors.New("task needs a title")
	ErrInvalidValue        = errors.New("invalid value")
)

// Service owns the pipeline rules. Every call is scoped to the acting user.
type Service struct {
	db     *database.DB
	repo   *database.CRMRepository
	guests *database.GuestRepository
	now    func() time.Time
}

func NewService(db *database.DB, repo *database.CRMRepository, guests *database.GuestRepository) *Service {
	return &Service{db: db, repo: repo, guests: guests, now: time.Now}
}

type NewOpportunity struct {
	GuestID   int64
	PodcastID *int64
	Priority  string
	Notes     string
}

// CreateOpportunity starts a lead for a live guest.
func (s *Service) CreateOpportunity(ctx context.Context, userID int64, in NewOpportunity) (*database.Opportunity, error) {
	if err := s.checkGuest(ctx, in.GuestID); err != nil {
		return nil, err
	}
	priority, err := ParsePriority(in.Priority)
	if err != nil {
		return nil, err
	}

	o := &database.Opportunity{
		UserID:    userID,
		GuestID:   in.GuestID,
		PodcastID: in.PodcastID,
		Status:    string(StatusLead),
		Priority:  string(priority),
		Notes:     in.Notes,
		StatusHistory: database.StatusHistory{
			{To: string(StatusLead), ChangedAt: database.UTC(s.now())},
		},
	}
	if err := s.repo.CreateOpportunity(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// MoveOpportunity applies one pipeline step and appends it to the status history.
func (s *Service) MoveOpportunity(ctx context.Context, userID, id int64, to, note string) (*database.Opportunity, error) {
	target, err := ParseStatus(to)
	if err != nil {
		return nil, err
	}

	o, err := s.repo.GetOpportunity(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, ErrNotFound
	}

	from := Status(o.Status)
	if !IsTransitionAllowed(from, target) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrForbiddenTransition, from, target)
	}

	o.Status = string(target)
	o.StatusHistory = append(o.StatusHistory, database.StatusChange{
		From:      string(from),
		To:        string(target),
		ChangedAt: database.UTC(s.now()),
		Note:      note,
	})
	if err := s.repo.SaveOpportunityStatus(ctx, o, string(from)); err != nil {
		return nil, err
	}

	slog.Debug("Opportunity moved", "id", id, "user", userID, "from", from, "to", target)
	return o, nil
}

func (s *Service) ListOpportunities(ctx context.Context, userID int64, status string) ([]database.Opportunity, error) {
	if status != "" {
		if _, err := ParseStatus(status); err != nil {
			return nil, err
		}
	}
	return s.repo.ListOpportunities(ctx, userID, status)
}

type NewAppearance struct {
	GuestID       int64
	PodcastID     *int64
	OpportunityID *int64
	EpisodeTitle  string
	InterviewAt   *time.Time
}

// CreateAppearance records a booked or aired episode. A linked opportunity must belong to the user.
func (s *Service) CreateAppearance(ctx context.Context, userID int64, in NewAppearance) (*database.Appearance, error) {
	if err := s.checkGuest(ctx, in.GuestID); err != nil {
		return nil, err
	}
	if in.OpportunityID != nil {
		o, err := s.repo.GetOpportunity(ctx, userID, *in.OpportunityID)
		if err != nil {
			return nil, err
		}
		if o == nil {
			return nil, ErrNotFound
		}
	}

	a := &database.Appearance{
		UserID:        userID,
		GuestID:       in.GuestID,
		PodcastID:     in.PodcastID,
		OpportunityID: in.OpportunityID,
		EpisodeTitle:  singleLine(in.EpisodeTitle),
		InterviewAt:   in.InterviewAt,
	}
	if err := s.repo.CreateAppearance(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// singleLine collapses whitespace runs, line breaks included, into single spaces.
// Titles end up in reminder subjects, which must stay on one header line.
func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

type NewTask struct {
	Title      string
	DueAt      *time.Time
	ReminderAt *time.Time
}

func (s *Service) AddTask(ctx context.Context, userID, appearanceID int64, in NewTask) (*database.AppearanceTask, error) {
	title := singleLine(in.Title)
	if title == "" {
		return nil, ErrInvalidTask
	}
	a, err := s.repo.GetAppearance(ctx, userID, appearanceID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, ErrNotFound
	}

	t := &database.AppearanceTask{
		AppearanceID: appearanceID,
		UserID:       userID,
		Title:        title,
		DueAt:        in.DueAt,
		ReminderAt:   in.ReminderAt,
	}
	if err := s.repo.CreateTask(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) CompleteTask(ctx context.Context, userID, taskID int64) error {
	err := s.repo.CompleteTask(ctx, userID, taskID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// AddGuestNote attaches a free-text note to a live guest. Notes follow the
// guest through merges.
func (s *Service) AddGuestNote(ctx context.Context, userID, guestID int64, body string) (*database.GuestNote, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, fmt.Errorf("%w: note body is empty", ErrInvalidValue)
	}
	if err := s.checkGuest(ctx, guestID); err != nil {
		return nil, err
	}

	n := &database.GuestNote{GuestID: guestID, UserID: userID, Body: body, CreatedAt: database.UTC(s.now())}
	if err := s.guests.AddNote(ctx, n); err != nil {
		return nil, err
	}
	return n, nil
}

func (s *Service) GuestNotes(ctx context.Context, guestID int64) ([]database.GuestNote, error) {
	if err := s.checkGuest(ctx, guestID); err != nil {
		return nil, err
	}
	return s.guests.ListNotes(ctx, guestID)
}

func (s *Service) checkGuest(ctx context.Context, guestID int64) error {
	g, err := s.guests.GetIncludingMerged(ctx, s.db.Bun, guestID)
	if err != nil {
		return err
	}
	switch {
	case g == nil:
		return ErrGuestNotFound
	case g.IsMerged:
		return ErrGuestMerged
	}
	return nil
}
