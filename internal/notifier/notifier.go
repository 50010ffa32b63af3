package notifier

import (
	"context"
	"fmt"
	"time"

	"github.com/Dan9191/reminder-service/internal/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Store persists the reminder outbox
type Store interface {
	CancelPendingReminders(ctx context.Context) (int64, error)
	InsertReminder(ctx context.Context, reminder *models.OutboxReminder) error
	DueReminders(ctx context.Context, now time.Time, limit int) ([]models.OutboxReminder, error)
	MarkRemindersSent(ctx context.Context, ids []string) error
}

// Mailer delivers a single reminder
type Mailer interface {
	SendReminder(to, title, body string) error
}

// Outbox schedules reminders by writing them to the store. A dispatcher
// picks them up once their trigger time has passed.
type Outbox struct {
	store     Store
	recipient string
	log       *logrus.Logger
	newID     func() string
}

// NewOutbox initializes a new outbox notifier
func NewOutbox(store Store, recipient string, log *logrus.Logger) *Outbox {
	return &Outbox{
		store:     store,
		recipient: recipient,
		log:       log,
		newID:     func() string { return uuid.New().String() },
	}
}

// RequestPermission reports whether there is anyone to deliver to
func (o *Outbox) RequestPermission(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if o.recipient == "" {
		o.log.Warn("REMINDER_EMAIL is not set, reminders cannot be delivered")
		return false, nil
	}
	return true, nil
}

// CancelAll cancels every reminder not yet delivered
func (o *Outbox) CancelAll(ctx context.Context) error {
	n, err := o.store.CancelPendingReminders(ctx)
	if err != nil {
		return err
	}
	o.log.Infof("Cancelled %d pending reminders", n)
	return nil
}

// ScheduleAt stores a reminder and returns its handle
func (o *Outbox) ScheduleAt(ctx context.Context, at time.Time, content models.ReminderContent) (string, error) {
	reminder := &models.OutboxReminder{
		ID:        o.newID(),
		TriggerAt: at,
		Title:     content.Title,
		Body:      content.Body,
	}
	if err := o.store.InsertReminder(ctx, reminder); err != nil {
		return "", fmt.Errorf("failed to store reminder: %w", err)
	}
	return reminder.ID, nil
}

// Dispatcher sends reminders whose trigger time has passed
type Dispatcher struct {
	store     Store
	mailer    Mailer
	recipient string
	batch     int
	log       *logrus.Logger
	now       func() time.Time
}

// NewDispatcher initializes a new dispatcher
func NewDispatcher(store Store, mailer Mailer, recipient string, batch int, log *logrus.Logger) *Dispatcher {
	if batch <= 0 {
		batch = 100
	}
	return &Dispatcher{
		store:     store,
		mailer:    mailer,
		recipient: recipient,
		batch:     batch,
		log:       log,
		now:       time.Now,
	}
}

// DispatchDue delivers one batch of due reminders and returns how many were
// sent. Failed sends stay pending and are retried on the next run.
func (d *Dispatcher) DispatchDue(ctx context.Context) (int, error) {
	if d.recipient == "" {
		return 0, nil
	}
	due, err := d.store.DueReminders(ctx, d.now(), d.batch)
	if err != nil {
		return 0, fmt.Errorf("failed to load due reminders: %w", err)
	}
	if len(due) == 0 {
		return 0, nil
	}

	sent := make([]string, 0, len(due))
	for _, r := range due {
		if err := ctx.Err(); err != nil {
			break
		}
		if err := d.mailer.SendReminder(d.recipient, r.Title, r.Body); err != nil {
			d.log.WithError(err).WithField("reminder_id", r.ID).Warn("Failed to deliver reminder, will retry")
			continue
		}
		sent = append(sent, r.ID)
	}

	if err := d.store.MarkRemindersSent(ctx, sent); err != nil {
		return 0, fmt.Errorf("failed to mark reminders sent: %w", err)
	}
	if len(sent) > 0 {
		d.log.Infof("Dispatched %d of %d due reminders", len(sent), len(due))
	}
	return len(sent), nil
}
