package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Dan9191/reminder-service/internal/models"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = errors.New("not found")

// Repository provides database operations
type Repository struct {
	db  *sql.DB
	log *logrus.Logger
}

// NewRepository initializes a new repository
func NewRepository(db *sql.DB, log *logrus.Logger) *Repository {
	return &Repository{db: db, log: log}
}

// ListTransactions returns every recorded expense
func (r *Repository) ListTransactions(ctx context.Context) ([]models.Transaction, error) {
	query := `
		SELECT id, description, amount, currency, date, COALESCE(category, ''), COALESCE(group_id, '')
		FROM reminders.transactions
		ORDER BY date, id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var txs []models.Transaction
	for rows.Next() {
		var tx models.Transaction
		if err := rows.Scan(&tx.ID, &tx.Description, &tx.Amount, &tx.Currency, &tx.Date, &tx.Category, &tx.GroupID); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}
	return txs, nil
}

// ListSubscriptions returns every subscription, active or not
func (r *Repository) ListSubscriptions(ctx context.Context) ([]models.Subscription, error) {
	query := `
		SELECT id, description, amount, currency, category, frequency, day_of_month, active, next_due_date
		FROM reminders.subscriptions
		ORDER BY next_due_date, id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []models.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		subs = append(subs, *sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate subscriptions: %w", err)
	}
	return subs, nil
}

// GetSubscription returns a single subscription by id
func (r *Repository) GetSubscription(ctx context.Context, id string) (*models.Subscription, error) {
	query := `
		SELECT id, description, amount, currency, category, frequency, day_of_month, active, next_due_date
		FROM reminders.subscriptions
		WHERE id = $1`
	sub, err := scanSubscription(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("subscription %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return sub, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row rowScanner) (*models.Subscription, error) {
	var (
		sub        models.Subscription
		frequency  string
		dayOfMonth sql.NullInt64
	)
	if err := row.Scan(&sub.ID, &sub.Description, &sub.Amount, &sub.Currency, &sub.Category,
		&frequency, &dayOfMonth, &sub.Active, &sub.NextDueDate); err != nil {
		return nil, err
	}
	sub.Frequency = models.Frequency(frequency)
	if dayOfMonth.Valid {
		day := int(dayOfMonth.Int64)
		sub.DayOfMonth = &day
	}
	return &sub, nil
}

// ListBudgets returns the per-category monthly ceilings
func (r *Repository) ListBudgets(ctx context.Context) ([]models.Budget, error) {
	query := `
		SELECT category, monthly_limit, currency
		FROM reminders.budgets
		ORDER BY category`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code.Name() == "undefined_table" {
			return nil, fmt.Errorf("budgets table missing: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to list budgets: %w", err)
	}
	defer rows.Close()

	var budgets []models.Budget
	for rows.Next() {
		var b models.Budget
		if err := rows.Scan(&b.Category, &b.MonthlyLimit, &b.Currency); err != nil {
			return nil, fmt.Errorf("failed to scan budget: %w", err)
		}
		budgets = append(budgets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate budgets: %w", err)
	}
	return budgets, nil
}

// GetSetting loads a raw JSON setting. It returns nil when the key is absent.
func (r *Repository) GetSetting(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := r.db.QueryRowContext(ctx, `SELECT value FROM reminders.settings WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get setting %s: %w", key, err)
	}
	return value, nil
}

// PutSetting stores a raw JSON setting, replacing any previous value
func (r *Repository) PutSetting(ctx context.Context, key string, value []byte) error {
	query := `
		INSERT INTO reminders.settings (key, value, updated_at)
		VALUES ($1, $2, CURRENT_TIMESTAMP)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("failed to put setting %s: %w", key, err)
	}
	return nil
}

// GetReminderSettings returns the stored reminder settings, or nil if none were saved
func (r *Repository) GetReminderSettings(ctx context.Context, key string) (*models.ReminderSettings, error) {
	raw, err := r.GetSetting(ctx, key)
	if err != nil || raw == nil {
		return nil, err
	}
	var settings models.ReminderSettings
	if err := json.Unmarshal(raw, &settings); err != nil {
		r.log.WithError(err).Warnf("Stored setting %s is not valid JSON, ignoring it", key)
		return nil, nil
	}
	return &settings, nil
}

// PutReminderSettings stores the reminder settings
func (r *Repository) PutReminderSettings(ctx context.Context, key string, settings models.ReminderSettings) error {
	raw, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to encode reminder settings: %w", err)
	}
	return r.PutSetting(ctx, key, raw)
}

// CancelPendingReminders cancels every reminder that was not delivered yet
func (r *Repository) CancelPendingReminders(ctx context.Context) (int64, error) {
	query := `
		UPDATE reminders.scheduled_reminders
		SET cancelled_at = CURRENT_TIMESTAMP
		WHERE sent_at IS NULL AND cancelled_at IS NULL`
	res, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel reminders: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count cancelled reminders: %w", err)
	}
	return n, nil
}

// InsertReminder stores a reminder to be delivered at its trigger time
func (r *Repository) InsertReminder(ctx context.Context, reminder *models.OutboxReminder) error {
	query := `
		INSERT INTO reminders.scheduled_reminders (id, trigger_at, title, body, created_at)
		VALUES ($1, $2, $3, $4, CURRENT_TIMESTAMP)
		RETURNING created_at`
	err := r.db.QueryRowContext(ctx, query, reminder.ID, reminder.TriggerAt, reminder.Title, reminder.Body).
		Scan(&reminder.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert reminder: %w", err)
	}
	return nil
}

// DueReminders returns pending reminders whose trigger time has passed
func (r *Repository) DueReminders(ctx context.Context, now time.Time, limit int) ([]models.OutboxReminder, error) {
	query := `
		SELECT id, trigger_at, title, body, created_at
		FROM reminders.scheduled_reminders
		WHERE sent_at IS NULL AND cancelled_at IS NULL AND trigger_at <= $1
		ORDER BY trigger_at
		LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list due reminders: %w", err)
	}
	defer rows.Close()

	var due []models.OutboxReminder
	for rows.Next() {
		var rem models.OutboxReminder
		if err := rows.Scan(&rem.ID, &rem.TriggerAt, &rem.Title, &rem.Body, &rem.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan reminder: %w", err)
		}
		due = append(due, rem)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate reminders: %w", err)
	}
	return due, nil
}

// MarkRemindersSent records delivery of the given reminders
func (r *Repository) MarkRemindersSent(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	query := `
		UPDATE reminders.scheduled_reminders
		SET sent_at = CURRENT_TIMESTAMP
		WHERE id = ANY($1)`
	if _, err := r.db.ExecContext(ctx, query, pq.Array(ids)); err != nil {
		return fmt.Errorf("failed to mark reminders sent: %w", err)
	}
	return nil
}
