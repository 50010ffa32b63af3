package reminder

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Dan9191/reminder-service/internal/installment"
	"github.com/Dan9191/reminder-service/internal/models"
	"github.com/Dan9191/reminder-service/internal/recurrence"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultHorizonDays bounds how far ahead reminders are projected
	DefaultHorizonDays = 45
	// DefaultCallTimeout bounds every call to the notifier
	DefaultCallTimeout = 10 * time.Second
)

// Notifier is the delivery side of reminders. The scheduler only ever
// cancels everything and schedules afresh, so an implementation needs no
// notion of individual updates.
type Notifier interface {
	RequestPermission(ctx context.Context) (bool, error)
	CancelAll(ctx context.Context) error
	ScheduleAt(ctx context.Context, at time.Time, content models.ReminderContent) (string, error)
}

// Result describes what a rebuild did
type Result struct {
	Enabled          bool `json:"enabled"`
	PermissionDenied bool `json:"permission_denied"`
	Scheduled        int  `json:"scheduled"`
}

// Scheduler rebuilds the full set of reminders from a data snapshot
type Scheduler struct {
	notifier    Notifier
	log         *logrus.Logger
	now         func() time.Time
	loc         *time.Location
	horizonDays int
	callTimeout time.Duration
	lang        Language
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithClock overrides the scheduler's notion of now
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithLocation sets the zone reminder times are expressed in
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithHorizonDays sets how many days ahead reminders are projected
func WithHorizonDays(days int) Option {
	return func(s *Scheduler) {
		if days > 0 {
			s.horizonDays = days
		}
	}
}

// WithCallTimeout bounds each notifier call
func WithCallTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.callTimeout = d
		}
	}
}

// WithLanguage selects the message templates
func WithLanguage(lang Language) Option {
	return func(s *Scheduler) { s.lang = lang }
}

// NewScheduler initializes a new scheduler
func NewScheduler(notifier Notifier, log *logrus.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		notifier:    notifier,
		log:         log,
		now:         time.Now,
		loc:         time.UTC,
		horizonDays: DefaultHorizonDays,
		callTimeout: DefaultCallTimeout,
		lang:        LanguageEnglish,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Horizon returns today (midnight) and the end of the last projected day.
func (s *Scheduler) Horizon() (today, horizonEnd time.Time) {
	return s.horizon(s.now().In(s.loc))
}

func (s *Scheduler) horizon(now time.Time) (today, horizonEnd time.Time) {
	today = recurrence.DateOf(now)
	return today, recurrence.EndOfDay(today.AddDate(0, 0, s.horizonDays))
}

// Plan computes the reminders a rebuild would schedule, without side
// effects. The result is deduplicated and ordered by trigger time.
func (s *Scheduler) Plan(txs []models.Transaction, subs []models.Subscription, settings models.ReminderSettings) []models.ScheduledReminder {
	settings = Normalize(&settings)
	hour, minute := ParseTime(settings.Time)

	now := s.now().In(s.loc)
	today, horizonEnd := s.horizon(now)

	seen := make(map[string]bool)
	var reminders []models.ScheduledReminder

	add := func(sourceID string, due time.Time, content func(daysBefore int) (string, string)) {
		for _, daysBefore := range settings.DaysBefore {
			y, m, d := due.Date()
			triggerAt := time.Date(y, m, d-daysBefore, hour, minute, 0, 0, s.loc)
			if !triggerAt.After(now) || triggerAt.After(horizonEnd) {
				continue
			}
			key := fmt.Sprintf("%s-%d-%s", sourceID, daysBefore, triggerAt.Format(recurrence.DateLayout))
			if seen[key] {
				continue
			}
			seen[key] = true

			title, body := content(daysBefore)
			reminders = append(reminders, models.ScheduledReminder{
				DedupKey:        key,
				TriggerAt:       triggerAt,
				ReminderContent: models.ReminderContent{Title: title, Body: body},
			})
		}
	}

	for _, tx := range txs {
		meta, ok := installment.Match(tx.Description)
		if !ok || tx.Date.IsZero() {
			continue
		}
		due := recurrence.CalendarDay(tx.Date, s.loc)
		if due.Before(today) || due.After(horizonEnd) {
			continue
		}
		add(tx.ID, due, func(daysBefore int) (string, string) {
			return installmentContent(s.lang, meta.Base, meta.Index, meta.Total, daysBefore, tx.Amount, tx.Currency)
		})
	}

	for _, sub := range subs {
		if !sub.Active {
			continue
		}
		for _, occ := range recurrence.Project(sub, today, horizonEnd) {
			add("sub-"+sub.ID, occ.DueDate, func(daysBefore int) (string, string) {
				return subscriptionContent(s.lang, sub.Description, daysBefore, occ.Amount, occ.Currency)
			})
		}
	}

	sort.SliceStable(reminders, func(i, j int) bool {
		return reminders[i].TriggerAt.Before(reminders[j].TriggerAt)
	})
	return reminders
}

// Schedule replaces every scheduled reminder with the set computed from
// the snapshot. Disabled settings only cancel. Otherwise the existing
// reminders are cancelled before the permission check, so a revoked
// permission never leaves stale reminders behind. A failure while
// scheduling cancels everything scheduled so far: the notifier ends up
// with the full set or with nothing.
func (s *Scheduler) Schedule(ctx context.Context, txs []models.Transaction, subs []models.Subscription, settings models.ReminderSettings) (Result, error) {
	if !settings.Enabled {
		if err := s.call(ctx, s.notifier.CancelAll); err != nil {
			return Result{}, fmt.Errorf("failed to cancel reminders: %w", err)
		}
		s.log.Info("Reminders disabled, cancelled all scheduled reminders")
		return Result{}, nil
	}

	result := Result{Enabled: true}
	if err := s.call(ctx, s.notifier.CancelAll); err != nil {
		return result, fmt.Errorf("failed to cancel reminders: %w", err)
	}

	var granted bool
	err := s.call(ctx, func(ctx context.Context) error {
		var err error
		granted, err = s.notifier.RequestPermission(ctx)
		return err
	})
	if err != nil {
		return result, fmt.Errorf("failed to request notification permission: %w", err)
	}
	if !granted {
		s.log.Warn("Notification permission denied, no reminders scheduled")
		result.PermissionDenied = true
		return result, nil
	}

	reminders := s.Plan(txs, subs, settings)
	for _, r := range reminders {
		if err := ctx.Err(); err != nil {
			return s.rollback(result, fmt.Errorf("rebuild interrupted after %d reminders: %w", result.Scheduled, err))
		}
		var handle string
		err := s.call(ctx, func(ctx context.Context) error {
			var err error
			handle, err = s.notifier.ScheduleAt(ctx, r.TriggerAt, r.ReminderContent)
			return err
		})
		if err != nil {
			s.log.WithError(err).WithField("dedup_key", r.DedupKey).Error("Failed to schedule reminder, aborting rebuild")
			return s.rollback(result, fmt.Errorf("failed to schedule reminder %s: %w", r.DedupKey, err))
		}
		result.Scheduled++
		s.log.WithFields(logrus.Fields{
			"dedup_key":  r.DedupKey,
			"trigger_at": r.TriggerAt.Format(time.RFC3339),
			"handle":     handle,
		}).Debug("Reminder scheduled")
	}

	s.log.Infof("Scheduled %d reminders", result.Scheduled)
	return result, nil
}

// rollback cancels a partially scheduled set. It runs on a fresh context
// so an expired parent does not prevent the cleanup.
func (s *Scheduler) rollback(result Result, cause error) (Result, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.callTimeout)
	defer cancel()
	if err := s.notifier.CancelAll(ctx); err != nil {
		s.log.WithError(err).Errorf("Failed to cancel %d partially scheduled reminders", result.Scheduled)
		return result, fmt.Errorf("%w; rollback failed: %w", cause, err)
	}
	if result.Scheduled > 0 {
		s.log.Warnf("Cancelled %d reminders of an incomplete rebuild", result.Scheduled)
	}
	result.Scheduled = 0
	return result, cause
}

// call runs a single notifier step under the per-call timeout.
func (s *Scheduler) call(ctx context.Context, fn func(context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	return fn(callCtx)
}
