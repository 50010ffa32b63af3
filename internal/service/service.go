package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Dan9191/reminder-service/internal/config"
	"github.com/Dan9191/reminder-service/internal/forecast"
	"github.com/Dan9191/reminder-service/internal/installment"
	"github.com/Dan9191/reminder-service/internal/models"
	"github.com/Dan9191/reminder-service/internal/recurrence"
	"github.com/Dan9191/reminder-service/internal/reminder"
	"github.com/Dan9191/reminder-service/internal/repository"
	"github.com/sirupsen/logrus"
)

// ErrSnapshotUnavailable is returned when transactions or subscriptions cannot be loaded
var ErrSnapshotUnavailable = errors.New("data snapshot unavailable")

// DataSource is the persistent state the service reads and updates
type DataSource interface {
	ListTransactions(ctx context.Context) ([]models.Transaction, error)
	ListSubscriptions(ctx context.Context) ([]models.Subscription, error)
	GetSubscription(ctx context.Context, id string) (*models.Subscription, error)
	ListBudgets(ctx context.Context) ([]models.Budget, error)
	GetReminderSettings(ctx context.Context, key string) (*models.ReminderSettings, error)
	PutReminderSettings(ctx context.Context, key string, settings models.ReminderSettings) error
}

// Service handles business logic
type Service struct {
	repo      DataSource
	conv      forecast.Converter
	scheduler *reminder.Scheduler
	log       *logrus.Logger
	loc       *time.Location
	now       func() time.Time

	rebuildMu sync.Mutex
}

// NewService initializes a new service
func NewService(repo DataSource, conv forecast.Converter, scheduler *reminder.Scheduler, log *logrus.Logger, cfg *config.Config) *Service {
	loc := cfg.Timezone
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		repo:      repo,
		conv:      conv,
		scheduler: scheduler,
		log:       log,
		loc:       loc,
		now:       time.Now,
	}
}

// snapshot loads the transactions and subscriptions every computation starts from
func (s *Service) snapshot(ctx context.Context) ([]models.Transaction, []models.Subscription, error) {
	txs, err := s.repo.ListTransactions(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrSnapshotUnavailable, err)
	}
	subs, err := s.repo.ListSubscriptions(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrSnapshotUnavailable, err)
	}
	return txs, subs, nil
}

// RebuildReminders cancels every scheduled reminder and schedules the set
// derived from the current data. Rebuilds never overlap.
func (s *Service) RebuildReminders(ctx context.Context) (reminder.Result, error) {
	s.rebuildMu.Lock()
	defer s.rebuildMu.Unlock()

	txs, subs, err := s.snapshot(ctx)
	if err != nil {
		s.log.WithError(err).Error("Skipping reminder rebuild")
		return reminder.Result{}, err
	}
	settings, err := s.ReminderSettings(ctx)
	if err != nil {
		return reminder.Result{}, err
	}

	result, err := s.scheduler.Schedule(ctx, txs, subs, settings)
	if err != nil {
		return result, fmt.Errorf("failed to rebuild reminders: %w", err)
	}
	return result, nil
}

// Forecast returns the current month's spending figures in the base currency
func (s *Service) Forecast(ctx context.Context) (models.Forecast, error) {
	txs, subs, err := s.snapshot(ctx)
	if err != nil {
		return models.Forecast{}, err
	}
	budgets, err := s.repo.ListBudgets(ctx)
	if err != nil {
		s.log.WithError(err).Warn("Budgets unavailable, forecasting without them")
		budgets = nil
	}
	return forecast.Compute(ctx, s.now().In(s.loc), txs, subs, budgets, s.conv)
}

// Outlook returns projected obligations for the next months
func (s *Service) Outlook(ctx context.Context, months int) ([]models.MonthOutlook, error) {
	txs, subs, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return forecast.Outlook(ctx, s.now().In(s.loc), months, txs, subs, s.conv)
}

// InstallmentPlans groups installment transactions into plans
func (s *Service) InstallmentPlans(ctx context.Context) ([]models.InstallmentPlan, error) {
	txs, err := s.repo.ListTransactions(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSnapshotUnavailable, err)
	}
	return installment.Group(txs), nil
}

// TransactionPlan returns the installment plan a transaction belongs to,
// with its next due member and how many members are still due
func (s *Service) TransactionPlan(ctx context.Context, transactionID string) (models.PlanProgress, error) {
	plans, err := s.InstallmentPlans(ctx)
	if err != nil {
		return models.PlanProgress{}, err
	}
	plan, ok := installment.Find(transactionID, plans)
	if !ok {
		return models.PlanProgress{}, fmt.Errorf("installment plan for transaction %s: %w", transactionID, repository.ErrNotFound)
	}

	today, _ := s.scheduler.Horizon()
	progress := models.PlanProgress{Plan: plan, Remaining: len(plan.Remaining(today))}
	if next, ok := plan.NextDue(today); ok {
		progress.NextDue = &next
	}
	return progress, nil
}

// Occurrences projects a subscription's due dates over the reminder horizon
func (s *Service) Occurrences(ctx context.Context, subscriptionID string) ([]models.Occurrence, error) {
	sub, err := s.repo.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	today, horizonEnd := s.scheduler.Horizon()
	return recurrence.Project(*sub, today, horizonEnd), nil
}

// ReminderSettings returns the stored settings, or the defaults when none were saved
func (s *Service) ReminderSettings(ctx context.Context) (models.ReminderSettings, error) {
	stored, err := s.repo.GetReminderSettings(ctx, reminder.SettingsKey)
	if err != nil {
		return models.ReminderSettings{}, fmt.Errorf("failed to load reminder settings: %w", err)
	}
	return reminder.Normalize(stored), nil
}

// UpdateReminderSettings stores the settings and rebuilds reminders with them.
// The settings stay saved even if the rebuild fails.
func (s *Service) UpdateReminderSettings(ctx context.Context, settings models.ReminderSettings) (models.ReminderSettings, reminder.Result, error) {
	normalized := reminder.Normalize(&settings)
	if err := s.repo.PutReminderSettings(ctx, reminder.SettingsKey, normalized); err != nil {
		return models.ReminderSettings{}, reminder.Result{}, fmt.Errorf("failed to save reminder settings: %w", err)
	}
	s.log.WithFields(logrus.Fields{
		"enabled":     normalized.Enabled,
		"time":        normalized.Time,
		"days_before": normalized.DaysBefore,
	}).Info("Reminder settings updated")

	result, err := s.RebuildReminders(ctx)
	return normalized, result, err
}

// PreviewReminders returns what a rebuild would schedule right now
func (s *Service) PreviewReminders(ctx context.Context) ([]models.ScheduledReminder, error) {
	txs, subs, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	settings, err := s.ReminderSettings(ctx)
	if err != nil {
		return nil, err
	}
	if !settings.Enabled {
		return []models.ScheduledReminder{}, nil
	}
	return s.scheduler.Plan(txs, subs, settings), nil
}
