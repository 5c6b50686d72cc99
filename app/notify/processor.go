package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lysyi3m/podcast-influence-tracker/app/database"
	"github.com/lysyi3m/podcast-influence-tracker/app/metrics"
	"github.com/lysyi3m/podcast-influence-tracker/app/settings"
)

const defaultBatchSize = 200

type Report struct {
	Created          int `json:"created"`
	Existing         int `json:"existing"`
	Emailed          int `json:"emailed"`
	DeliveryFailures int `json:"delivery_failures"`
}

// Processor scans CRM deadlines and raises one notification per
// (source, source id, type). Repeated runs never duplicate a notification.
type Processor struct {
	crm           *database.CRMRepository
	notifications *database.NotificationRepository
	email         Channel
	push          Channel
	batchSize     int
	now           func() time.Time
}

// NewProcessor builds a processor. A nil email channel disables mail delivery.
func NewProcessor(crm *database.CRMRepository, notifications *database.NotificationRepository, email Channel) *Processor {
	return &Processor{
		crm:           crm,
		notifications: notifications,
		email:         email,
		push:          PushChannel{},
		batchSize:     defaultBatchSize,
		now:           time.Now,
	}
}

func (p *Processor) Process(ctx context.Context, s settings.Settings) (Report, error) {
	var report Report
	now := database.UTC(p.now())

	candidates, err := p.collect(ctx, now, s.InterviewLeadTime)
	if err != nil {
		return report, err
	}

	for i := range candidates {
		n := &candidates[i]
		created, err := p.notifications.InsertIfAbsent(ctx, n)
		if err != nil {
			return report, err
		}
		if !created {
			report.Existing++
			continue
		}
		report.Created++
		metrics.NotificationsCreated.WithLabelValues(string(n.Type)).Inc()

		sent, failed := p.deliver(ctx, n, now)
		report.Emailed += sent
		report.DeliveryFailures += failed
	}

	if report.Created > 0 {
		slog.Info("Notifications processed", "created", report.Created, "existing", report.Existing,
			"emailed", report.Emailed, "delivery_failures", report.DeliveryFailures)
	} else {
		slog.Debug("No new notifications", "existing", report.Existing)
	}
	return report, nil
}

func (p *Processor) collect(ctx context.Context, now time.Time, lead time.Duration) ([]database.Notification, error) {
	var out []database.Notification

	reminders, err := p.crm.TasksWithReminderDue(ctx, now, p.batchSize)
	if err != nil {
		return nil, err
	}
	for _, t := range reminders {
		out = append(out, database.Notification{
			UserID:   t.UserID,
			Type:     database.NotificationTaskReminder,
			Source:   database.SourceAppearanceTask,
			SourceID: t.ID,
			Title:    "Reminder: " + t.Title,
			Message:  dueMessage(t.DueAt),
		})
	}

	overdue, err := p.crm.OverdueTasks(ctx, now, p.batchSize)
	if err != nil {
		return nil, err
	}
	for _, t := range overdue {
		out = append(out, database.Notification{
			UserID:   t.UserID,
			Type:     database.NotificationTaskOverdue,
			Source:   database.SourceAppearanceTask,
			SourceID: t.ID,
			Title:    "Overdue: " + t.Title,
			Message:  dueMessage(t.DueAt),
		})
	}

	interviews, err := p.crm.InterviewsBetween(ctx, now, now.Add(lead), p.batchSize)
	if err != nil {
		return nil, err
	}
	for _, a := range interviews {
		title := "Upcoming interview"
		if a.EpisodeTitle != "" {
			title += ": " + a.EpisodeTitle
		}
		out = append(out, database.Notification{
			UserID:   a.UserID,
			Type:     database.NotificationInterviewSoon,
			Source:   database.SourceAppearance,
			SourceID: a.ID,
			Title:    title,
			Message:  fmt.Sprintf("Interview scheduled for %s", a.InterviewAt.UTC().Format(time.RFC1123)),
		})
	}
	return out, nil
}

// deliver sends n on every channel the user enabled. Failures are logged and counted.
func (p *Processor) deliver(ctx context.Context, n *database.Notification, now time.Time) (sent, failed int) {
	pref, err := p.notifications.GetPreference(ctx, n.UserID)
	if err != nil {
		slog.Warn("Failed to load notification preference", "user", n.UserID, "error", err)
		return 0, 1
	}
	if pref == nil {
		return 0, 0
	}

	msg := Message{To: pref.Email, Subject: n.Title, Body: n.Message}

	if pref.EmailEnabled && pref.Email != "" && p.email != nil {
		err := p.email.Send(ctx, msg)
		metrics.RecordDelivery(ChannelEmail, err)
		if err != nil {
			slog.Warn("Email delivery failed", "notification", n.ID, "user", n.UserID, "error", err)
			failed++
		} else if err := p.notifications.MarkEmailSent(ctx, n.ID, now); err != nil {
			slog.Warn("Failed to record email delivery", "notification", n.ID, "error", err)
		} else {
			sent++
		}
	}

	if pref.PushEnabled {
		err := p.push.Send(ctx, msg)
		metrics.RecordDelivery(ChannelPush, err)
		if err != nil {
			slog.Debug("Push delivery skipped", "notification", n.ID, "user", n.UserID, "error", err)
			failed++
		} else if err := p.notifications.MarkPushSent(ctx, n.ID, now); err != nil {
			slog.Warn("Failed to record push delivery", "notification", n.ID, "error", err)
		}
	}
	return sent, failed
}

func dueMessage(due *time.Time) string {
	if due == nil {
		return ""
	}
	return "Due " + due.UTC().Format(time.RFC1123)
}
