package crm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lysyi3m/podcast-influence-tracker/app/database"
	"github.com/lysyi3m/podcast-influence-tracker/app/database/dbtest"
)

func newTestService(t *testing.T) (*Service, *database.DB, *database.GuestRepository) {
	t.Helper()
	db := dbtest.New(t)
	guests := database.NewGuestRepository(db)
	return NewService(db, database.NewCRMRepository(db), guests), db, guests
}

func createGuest(t *testing.T, repo *database.GuestRepository, name string) *database.Guest {
	t.Helper()
	g := &database.Guest{FullName: name}
	if err := repo.Create(context.Background(), g); err != nil {
		t.Fatalf("Failed to create guest: %v", err)
	}
	return g
}

func TestOpportunityPipeline(t *testing.T) {
	ctx := context.Background()
	svc, _, guests := newTestService(t)
	g := createGuest(t, guests, "Jane")

	o, err := svc.CreateOpportunity(ctx, 1, NewOpportunity{GuestID: g.ID})
	if err != nil {
		t.Fatalf("CreateOpportunity() error = %v", err)
	}
	if o.Status != string(StatusLead) || o.Priority != string(PriorityMedium) {
		t.Errorf("Expected new lead at medium priority, got %s/%s", o.Status, o.Priority)
	}

	for _, to := range []Status{StatusPitched, StatusNegotiating, StatusScheduled} {
		if o, err = svc.MoveOpportunity(ctx, 1, o.ID, string(to), ""); err != nil {
			t.Fatalf("MoveOpportunity(%s) error = %v", to, err)
		}
	}

	if _, err := svc.MoveOpportunity(ctx, 1, o.ID, string(StatusAired), ""); !errors.Is(err, ErrForbiddenTransition) {
		t.Errorf("Expected ErrForbiddenTransition skipping recorded, got %v", err)
	}

	list, err := svc.ListOpportunities(ctx, 1, string(StatusScheduled))
	if err != nil {
		t.Fatalf("ListOpportunities() error = %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("Expected 1 scheduled opportunity, got %d", len(list))
	}
	history := list[0].StatusHistory
	if len(history) != 4 {
		t.Fatalf("Expected 4 history entries, got %d", len(history))
	}
	if last := history[3]; last.From != string(StatusNegotiating) || last.To != string(StatusScheduled) {
		t.Errorf("Unexpected last history entry %+v", last)
	}
}

func TestOpportunityUserScope(t *testing.T) {
	ctx := context.Background()
	svc, _, guests := newTestService(t)
	g := createGuest(t, guests, "Jane")

	o, err := svc.CreateOpportunity(ctx, 1, NewOpportunity{GuestID: g.ID, Priority: "high"})
	if err != nil {
		t.Fatalf("CreateOpportunity() error = %v", err)
	}

	if _, err := svc.MoveOpportunity(ctx, 2, o.ID, string(StatusPitched), ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for another user, got %v", err)
	}
	list, err := svc.ListOpportunities(ctx, 2, "")
	if err != nil {
		t.Fatalf("ListOpportunities() error = %v", err)
	}
	if len(list) != 0 {
		t.Errorf("Expected other user to see nothing, got %d", len(list))
	}
}

func TestCreateOpportunityRejectsUnavailableGuest(t *testing.T) {
	ctx := context.Background()
	svc, db, guests := newTestService(t)
	g := createGuest(t, guests, "Jane")

	if _, err := db.Bun.NewUpdate().Model((*database.Guest)(nil)).
		Set("is_merged = ?", true).Where("id = ?", g.ID).Exec(ctx); err != nil {
		t.Fatalf("Failed to mark guest merged: %v", err)
	}

	tests := []struct {
		name    string
		guestID int64
		want    error
	}{
		{"merged", g.ID, ErrGuestMerged},
		{"missing", 9999, ErrGuestNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.CreateOpportunity(ctx, 1, NewOpportunity{GuestID: tt.guestID}); !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestAppearanceTasks(t *testing.T) {
	ctx := context.Background()
	svc, _, guests := newTestService(t)
	g := createGuest(t, guests, "Jane")

	interview := time.Date(2026, 5, 1, 15, 0, 0, 0, time.UTC)
	a, err := svc.CreateAppearance(ctx, 1, NewAppearance{GuestID: g.ID, EpisodeTitle: " Ep 12 ", InterviewAt: &interview})
	if err != nil {
		t.Fatalf("CreateAppearance() error = %v", err)
	}
	if a.EpisodeTitle != "Ep 12" {
		t.Errorf("Expected trimmed title, got %q", a.EpisodeTitle)
	}

	missing := int64(4242)
	if _, err := svc.CreateAppearance(ctx, 1, NewAppearance{GuestID: g.ID, OpportunityID: &missing}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for foreign opportunity, got %v", err)
	}

	if _, err := svc.AddTask(ctx, 1, a.ID, NewTask{Title: "  "}); !errors.Is(err, ErrInvalidTask) {
		t.Errorf("Expected ErrInvalidTask, got %v", err)
	}
	if _, err := svc.AddTask(ctx, 2, a.ID, NewTask{Title: "Prep"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for another user's appearance, got %v", err)
	}

	due := interview.Add(-time.Hour)
	task, err := svc.AddTask(ctx, 1, a.ID, NewTask{Title: "Prep notes", DueAt: &due})
	if err != nil {
		t.Fatalf("AddTask() error = %v", err)
	}
	multiline, err := svc.AddTask(ctx, 1, a.ID, NewTask{Title: "Send brief\r\nBcc: attacker@evil.test"})
	if err != nil {
		t.Fatalf("AddTask() error = %v", err)
	}
	if multiline.Title != "Send brief Bcc: attacker@evil.test" {
		t.Errorf("Expected title folded onto one line, got %q", multiline.Title)
	}

	if err := svc.CompleteTask(ctx, 1, task.ID); err != nil {
		t.Fatalf("CompleteTask() error = %v", err)
	}
	if err := svc.CompleteTask(ctx, 2, task.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for another user's task, got %v", err)
	}
}

func TestGuestNotes(t *testing.T) {
	ctx := context.Background()
	svc, _, guests := newTestService(t)
	g := createGuest(t, guests, "Jane")

	if _, err := svc.AddGuestNote(ctx, 1, g.ID, "   "); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("Expected ErrInvalidValue for an empty note, got %v", err)
	}
	if _, err := svc.AddGuestNote(ctx, 1, 9999, "hello"); !errors.Is(err, ErrGuestNotFound) {
		t.Errorf("Expected ErrGuestNotFound, got %v", err)
	}

	for _, body := range []string{"Met at the conference", " Prefers morning slots "} {
		if _, err := svc.AddGuestNote(ctx, 1, g.ID, body); err != nil {
			t.Fatalf("AddGuestNote() error = %v", err)
		}
	}

	notes, err := svc.GuestNotes(ctx, g.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(notes) != 2 {
		t.Fatalf("Expected 2 notes, got %d", len(notes))
	}
	if notes[1].Body != "Prefers morning slots" || notes[1].UserID != 1 {
		t.Errorf("Unexpected note: %+v", notes[1])
	}
}
