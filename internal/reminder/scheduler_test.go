package reminder

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/Dan9191/reminder-service/internal/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

// fakeNotifier records every call in order
type fakeNotifier struct {
	calls       []string
	scheduled   []time.Time
	contents    []models.ReminderContent
	granted     bool
	permErr     error
	cancelErr   error
	rollbackErr error // returned by every CancelAll after the first
	failAfter   int   // fail ScheduleAt once this many reminders were accepted; -1 disables
	blockOnSch  bool
	live        int // reminders scheduled since the last successful cancel
	cancels     int
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{granted: true, failAfter: -1}
}

func (f *fakeNotifier) RequestPermission(ctx context.Context) (bool, error) {
	f.calls = append(f.calls, "permission")
	return f.granted, f.permErr
}

func (f *fakeNotifier) CancelAll(ctx context.Context) error {
	f.calls = append(f.calls, "cancel")
	f.cancels++
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.cancels > 1 && f.rollbackErr != nil {
		return f.rollbackErr
	}
	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.live = 0
	return nil
}

func (f *fakeNotifier) ScheduleAt(ctx context.Context, at time.Time, content models.ReminderContent) (string, error) {
	f.calls = append(f.calls, "schedule")
	if f.blockOnSch {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if f.failAfter >= 0 && len(f.scheduled) >= f.failAfter {
		return "", errors.New("notifier unavailable")
	}
	f.scheduled = append(f.scheduled, at)
	f.contents = append(f.contents, content)
	f.live++
	return "handle", nil
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func at(value string) time.Time {
	t, err := time.ParseInLocation("2006-01-02 15:04", value, time.UTC)
	if err != nil {
		panic(err)
	}
	return t
}

func day(value string) time.Time {
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		panic(err)
	}
	return t
}

func newTestScheduler(n Notifier, now time.Time, opts ...Option) *Scheduler {
	opts = append([]Option{WithClock(func() time.Time { return now })}, opts...)
	return NewScheduler(n, quietLogger(), opts...)
}

func enabled(daysBefore ...int) models.ReminderSettings {
	return models.ReminderSettings{Enabled: true, Time: "09:00", DaysBefore: daysBefore}
}

func installmentTx(id, description, date string) models.Transaction {
	return models.Transaction{
		ID:          id,
		Description: description,
		Amount:      decimal.RequireFromString("99.9"),
		Currency:    "EUR",
		Date:        day(date),
	}
}

func TestSchedule_DisabledOnlyCancels(t *testing.T) {
	n := newFakeNotifier()
	s := newTestScheduler(n, at("2024-06-09 08:00"))

	txs := []models.Transaction{installmentTx("1", "Laptop (1/3)", "2024-06-10")}
	settings := models.ReminderSettings{Enabled: false, Time: "09:00", DaysBefore: []int{0, 1, 2}}

	res, err := s.Schedule(context.Background(), txs, nil, settings)
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	if len(n.calls) != 1 || n.calls[0] != "cancel" {
		t.Errorf("calls = %v, want [cancel]", n.calls)
	}
	if res.Enabled || res.Scheduled != 0 {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestSchedule_CancelsBeforeAnything(t *testing.T) {
	n := newFakeNotifier()
	s := newTestScheduler(n, at("2024-06-09 08:00"))

	txs := []models.Transaction{installmentTx("1", "Laptop (1/3)", "2024-06-10")}
	if _, err := s.Schedule(context.Background(), txs, nil, enabled(0, 1, 2)); err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	if len(n.calls) < 2 || n.calls[0] != "cancel" || n.calls[1] != "permission" {
		t.Fatalf("calls = %v, want cancel then permission first", n.calls)
	}
	for _, c := range n.calls[2:] {
		if c != "schedule" {
			t.Errorf("unexpected call %q after scheduling started", c)
		}
	}
}

func TestSchedule_DueTomorrowSkipsPastTriggers(t *testing.T) {
	n := newFakeNotifier()
	s := newTestScheduler(n, at("2024-06-09 08:00"))

	txs := []models.Transaction{installmentTx("1", "Laptop (2/3)", "2024-06-10")}
	res, err := s.Schedule(context.Background(), txs, nil, enabled(0, 1, 2))
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	if res.Scheduled != 2 {
		t.Fatalf("Scheduled = %d, want 2", res.Scheduled)
	}
	want := []time.Time{at("2024-06-09 09:00"), at("2024-06-10 09:00")}
	for i, w := range want {
		if !n.scheduled[i].Equal(w) {
			t.Errorf("trigger %d = %v, want %v", i, n.scheduled[i], w)
		}
	}
}

func TestSchedule_TodayTriggerAlreadyPassed(t *testing.T) {
	n := newFakeNotifier()
	s := newTestScheduler(n, at("2024-06-09 10:00"))

	txs := []models.Transaction{installmentTx("1", "Laptop (2/3)", "2024-06-10")}
	res, err := s.Schedule(context.Background(), txs, nil, enabled(0, 1, 2))
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	if res.Scheduled != 1 || !n.scheduled[0].Equal(at("2024-06-10 09:00")) {
		t.Errorf("scheduled = %v, want only 2024-06-10 09:00", n.scheduled)
	}
}

func TestSchedule_PermissionDenied(t *testing.T) {
	n := newFakeNotifier()
	n.granted = false
	s := newTestScheduler(n, at("2024-06-09 08:00"))

	txs := []models.Transaction{installmentTx("1", "Laptop (1/3)", "2024-06-10")}
	res, err := s.Schedule(context.Background(), txs, nil, enabled(0))
	if err != nil {
		t.Fatalf("permission denial must not be an error: %v", err)
	}
	if !res.PermissionDenied || res.Scheduled != 0 {
		t.Errorf("unexpected result %+v", res)
	}
	if strings.Join(n.calls, ",") != "cancel,permission" {
		t.Errorf("calls = %v, want [cancel permission]", n.calls)
	}
}

func TestSchedule_PermissionError(t *testing.T) {
	n := newFakeNotifier()
	n.permErr = errors.New("host unavailable")
	s := newTestScheduler(n, at("2024-06-09 08:00"))

	if _, err := s.Schedule(context.Background(), nil, nil, enabled(0)); err == nil {
		t.Fatal("expected error")
	}
}

func TestSchedule_CancelFailureStopsRebuild(t *testing.T) {
	n := newFakeNotifier()
	n.cancelErr = errors.New("table locked")
	s := newTestScheduler(n, at("2024-06-09 08:00"))

	txs := []models.Transaction{installmentTx("1", "Laptop (1/3)", "2024-06-10")}
	if _, err := s.Schedule(context.Background(), txs, nil, enabled(0)); err == nil {
		t.Fatal("expected error")
	}
	if len(n.calls) != 1 {
		t.Errorf("calls = %v, nothing may follow a failed cancel", n.calls)
	}
}

func TestSchedule_NotifierFailureCancelsPartialSet(t *testing.T) {
	n := newFakeNotifier()
	n.failAfter = 1
	s := newTestScheduler(n, at("2024-06-01 08:00"))

	txs := []models.Transaction{
		installmentTx("1", "Laptop (1/3)", "2024-06-10"),
		installmentTx("2", "Laptop (2/3)", "2024-07-10"),
	}
	res, err := s.Schedule(context.Background(), txs, nil, enabled(0))
	if err == nil {
		t.Fatal("expected error")
	}
	want := []string{"cancel", "permission", "schedule", "schedule", "cancel"}
	if strings.Join(n.calls, ",") != strings.Join(want, ",") {
		t.Errorf("calls = %v, want %v", n.calls, want)
	}
	if n.live != 0 {
		t.Errorf("%d reminders still live after a failed rebuild", n.live)
	}
	if res.Scheduled != 0 {
		t.Errorf("Scheduled = %d, want 0 after rollback", res.Scheduled)
	}
}

func TestSchedule_RollbackFailureIsReported(t *testing.T) {
	n := newFakeNotifier()
	n.failAfter = 1
	n.rollbackErr = errors.New("table locked")
	log, hook := test.NewNullLogger()
	s := NewScheduler(n, log, WithClock(func() time.Time { return at("2024-06-01 08:00") }))

	txs := []models.Transaction{
		installmentTx("1", "Laptop (1/3)", "2024-06-10"),
		installmentTx("2", "Laptop (2/3)", "2024-07-10"),
	}
	res, err := s.Schedule(context.Background(), txs, nil, enabled(0))
	if !errors.Is(err, n.rollbackErr) {
		t.Fatalf("err = %v, want it to wrap the rollback failure", err)
	}
	if !strings.Contains(err.Error(), "notifier unavailable") {
		t.Errorf("err = %v, want it to keep the scheduling failure", err)
	}
	if res.Scheduled != 1 {
		t.Errorf("Scheduled = %d, want 1 left live", res.Scheduled)
	}
	entry := hook.LastEntry()
	if entry == nil || entry.Level != logrus.ErrorLevel {
		t.Errorf("expected the rollback failure to be logged, got %+v", entry)
	}
}

func TestSchedule_CallTimeout(t *testing.T) {
	n := newFakeNotifier()
	n.blockOnSch = true
	s := newTestScheduler(n, at("2024-06-01 08:00"), WithCallTimeout(10*time.Millisecond))

	txs := []models.Transaction{installmentTx("1", "Laptop (1/3)", "2024-06-10")}
	_, err := s.Schedule(context.Background(), txs, nil, enabled(0))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
	if last := n.calls[len(n.calls)-1]; last != "cancel" {
		t.Errorf("last call = %q, want cancel", last)
	}
}

func TestSchedule_RollbackSurvivesExpiredParent(t *testing.T) {
	n := newFakeNotifier()
	n.blockOnSch = true
	s := newTestScheduler(n, at("2024-06-01 08:00"), WithCallTimeout(time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	txs := []models.Transaction{installmentTx("1", "Laptop (1/3)", "2024-06-10")}
	_, err := s.Schedule(ctx, txs, nil, enabled(0))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if strings.Contains(err.Error(), "rollback failed") {
		t.Errorf("rollback should run on its own context, got %v", err)
	}
	if n.cancels != 2 {
		t.Errorf("cancels = %d, want 2", n.cancels)
	}
}

func TestSchedule_LogsFailure(t *testing.T) {
	n := newFakeNotifier()
	n.failAfter = 0
	log, hook := test.NewNullLogger()
	s := NewScheduler(n, log, WithClock(func() time.Time { return at("2024-06-01 08:00") }))

	txs := []models.Transaction{installmentTx("1", "Laptop (1/3)", "2024-06-10")}
	if _, err := s.Schedule(context.Background(), txs, nil, enabled(0)); err == nil {
		t.Fatal("expected error")
	}
	var found bool
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.ErrorLevel && entry.Data["dedup_key"] == "1-0-2024-06-10" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected an error entry carrying the dedup key, got %d entries", len(hook.AllEntries()))
	}
}

func TestPlan_HorizonBounds(t *testing.T) {
	s := newTestScheduler(newFakeNotifier(), at("2024-06-01 08:00"))

	txs := []models.Transaction{
		installmentTx("past", "Phone (1/2)", "2024-05-31"),
		installmentTx("edge", "Phone (2/2)", "2024-07-16"),
		installmentTx("beyond", "TV (3/3)", "2024-07-17"),
		installmentTx("plain", "Groceries", "2024-06-05"),
	}
	plan := s.Plan(txs, nil, enabled(0))
	if len(plan) != 1 || plan[0].DedupKey != "edge-0-2024-07-16" {
		t.Errorf("plan = %+v, want only the installment on the horizon edge", plan)
	}
}

func TestPlan_ShortHorizon(t *testing.T) {
	s := newTestScheduler(newFakeNotifier(), at("2024-06-01 08:00"), WithHorizonDays(10))

	subs := []models.Subscription{{
		ID:          "s1",
		Description: "Gym",
		Amount:      decimal.NewFromInt(30),
		Currency:    "EUR",
		Frequency:   models.FrequencyWeekly,
		Active:      true,
		NextDueDate: day("2024-06-03"),
	}}
	plan := s.Plan(nil, subs, enabled(0, 3))
	for _, r := range plan {
		if r.TriggerAt.After(at("2024-06-11 23:59")) {
			t.Errorf("reminder %s past horizon", r.DedupKey)
		}
	}
	// 06-03 (day-of) and 06-10 (day-of and 06-07 three days before); 05-31 is past
	if len(plan) != 3 {
		t.Errorf("len(plan) = %d, want 3: %+v", len(plan), plan)
	}
}

func TestPlan_DedupKeysAreUnique(t *testing.T) {
	s := newTestScheduler(newFakeNotifier(), at("2024-06-01 08:00"))

	dom := 31
	txs := []models.Transaction{
		installmentTx("1", "Laptop (1/3)", "2024-06-10"),
		installmentTx("1", "Laptop (1/3)", "2024-06-10"),
		installmentTx("2", "Laptop (2/3)", "2024-07-10"),
	}
	subs := []models.Subscription{
		{ID: "1", Description: "Cloud", Amount: decimal.NewFromInt(5), Currency: "USD", Frequency: models.FrequencyMonthly, DayOfMonth: &dom, Active: true, NextDueDate: day("2024-05-31")},
		{ID: "2", Description: "News", Amount: decimal.NewFromInt(3), Currency: "EUR", Frequency: models.FrequencyWeekly, Active: true, NextDueDate: day("2024-06-02")},
		{ID: "3", Description: "Old", Amount: decimal.NewFromInt(3), Currency: "EUR", Frequency: models.FrequencyWeekly, Active: false, NextDueDate: day("2024-06-02")},
	}

	plan := s.Plan(txs, subs, models.ReminderSettings{Enabled: true, Time: "09:00", DaysBefore: []int{2, 0, 1, 1}})
	seen := make(map[string]bool)
	for _, r := range plan {
		if seen[r.DedupKey] {
			t.Errorf("duplicate dedup key %s", r.DedupKey)
		}
		seen[r.DedupKey] = true
		if strings.HasPrefix(r.DedupKey, "sub-3-") {
			t.Errorf("inactive subscription scheduled: %s", r.DedupKey)
		}
	}
	if !seen["1-0-2024-06-10"] || !seen["sub-1-0-2024-06-30"] {
		t.Errorf("expected installment and clamped subscription reminders, got %v", seen)
	}
	for i := 1; i < len(plan); i++ {
		if plan[i].TriggerAt.Before(plan[i-1].TriggerAt) {
			t.Errorf("plan not ordered by trigger time")
		}
	}
}

func TestPlan_Content(t *testing.T) {
	s := newTestScheduler(newFakeNotifier(), at("2024-06-01 08:00"))

	txs := []models.Transaction{installmentTx("1", "Laptop (2/3)", "2024-06-10")}
	subs := []models.Subscription{{
		ID: "9", Description: "Music", Amount: decimal.RequireFromString("9.99"), Currency: "USD",
		Frequency: models.FrequencyMonthly, Active: true, NextDueDate: day("2024-06-03"),
	}}
	plan := s.Plan(txs, subs, enabled(0, 3))

	byKey := make(map[string]models.ScheduledReminder)
	for _, r := range plan {
		byKey[r.DedupKey] = r
	}
	if r := byKey["1-0-2024-06-10"]; r.Title != "Installment due today" || r.Body != "Laptop (2/3) · €99.90" {
		t.Errorf("installment content = %+v", r.ReminderContent)
	}
	if r := byKey["1-3-2024-06-07"]; r.Title != "Installment due in 3 days" {
		t.Errorf("installment title = %q", r.Title)
	}
	if r := byKey["sub-9-0-2024-06-03"]; r.Title != "Subscription due today" || r.Body != "Music · $9.99" {
		t.Errorf("subscription content = %+v", r.ReminderContent)
	}
}

func TestPlan_Portuguese(t *testing.T) {
	s := newTestScheduler(newFakeNotifier(), at("2024-06-01 08:00"), WithLanguage(LanguagePortuguese))

	txs := []models.Transaction{installmentTx("1", "Sofá (1/10)", "2024-06-10")}
	plan := s.Plan(txs, nil, enabled(1))
	if len(plan) != 1 || plan[0].Title != "Parcela vence amanhã" {
		t.Errorf("plan = %+v", plan)
	}
}

func TestPlan_Location(t *testing.T) {
	loc := time.FixedZone("BRT", -3*60*60)
	now := time.Date(2024, 6, 9, 23, 0, 0, 0, time.UTC) // 20:00 in BRT
	s := newTestScheduler(newFakeNotifier(), now, WithLocation(loc))

	txs := []models.Transaction{installmentTx("1", "Laptop (1/3)", "2024-06-10")}
	plan := s.Plan(txs, nil, enabled(0))
	if len(plan) != 1 {
		t.Fatalf("len(plan) = %d, want 1", len(plan))
	}
	want := time.Date(2024, 6, 10, 9, 0, 0, 0, loc)
	if !plan[0].TriggerAt.Equal(want) {
		t.Errorf("TriggerAt = %v, want %v", plan[0].TriggerAt, want)
	}
}
