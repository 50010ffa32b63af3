package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/Dan9191/reminder-service/internal/middleware"
	"github.com/Dan9191/reminder-service/internal/models"
	"github.com/Dan9191/reminder-service/internal/reminder"
	"github.com/Dan9191/reminder-service/internal/repository"
	"github.com/Dan9191/reminder-service/internal/service"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

const (
	defaultOutlookMonths = 3
	maxOutlookMonths     = 12
)

// Service is the set of use cases exposed over HTTP
type Service interface {
	RebuildReminders(ctx context.Context) (reminder.Result, error)
	Forecast(ctx context.Context) (models.Forecast, error)
	Outlook(ctx context.Context, months int) ([]models.MonthOutlook, error)
	InstallmentPlans(ctx context.Context) ([]models.InstallmentPlan, error)
	TransactionPlan(ctx context.Context, transactionID string) (models.PlanProgress, error)
	Occurrences(ctx context.Context, subscriptionID string) ([]models.Occurrence, error)
	ReminderSettings(ctx context.Context) (models.ReminderSettings, error)
	UpdateReminderSettings(ctx context.Context, settings models.ReminderSettings) (models.ReminderSettings, reminder.Result, error)
	PreviewReminders(ctx context.Context) ([]models.ScheduledReminder, error)
}

type Handler struct {
	svc Service
	log *logrus.Logger
}

func NewHandler(svc Service, log *logrus.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

// RegisterRoutes mounts the protected endpoints
func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/forecast", h.GetForecast).Methods("GET")
	router.HandleFunc("/forecast/outlook", h.GetOutlook).Methods("GET")
	router.HandleFunc("/installments", h.ListInstallments).Methods("GET")
	router.HandleFunc("/transactions/{id}/plan", h.GetTransactionPlan).Methods("GET")
	router.HandleFunc("/subscriptions/{id}/occurrences", h.ListOccurrences).Methods("GET")
	router.HandleFunc("/settings/reminders", h.GetReminderSettings).Methods("GET")
	router.HandleFunc("/settings/reminders", h.UpdateReminderSettings).Methods("PUT")
	router.HandleFunc("/reminders/rebuild", h.RebuildReminders).Methods("POST")
	router.HandleFunc("/reminders/preview", h.PreviewReminders).Methods("GET")
}

// Health reports that the process is up
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetForecast returns the current month's spending figures
func (h *Handler) GetForecast(w http.ResponseWriter, r *http.Request) {
	forecast, err := h.svc.Forecast(r.Context())
	if err != nil {
		h.writeError(w, r, err, "Failed to compute forecast")
		return
	}
	h.writeJSON(w, http.StatusOK, forecast)
}

// GetOutlook returns projected obligations per month
func (h *Handler) GetOutlook(w http.ResponseWriter, r *http.Request) {
	months := defaultOutlookMonths
	if raw := r.URL.Query().Get("months"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxOutlookMonths {
			http.Error(w, "months must be between 1 and 12", http.StatusBadRequest)
			return
		}
		months = n
	}

	outlook, err := h.svc.Outlook(r.Context(), months)
	if err != nil {
		h.writeError(w, r, err, "Failed to compute outlook")
		return
	}
	h.writeJSON(w, http.StatusOK, outlook)
}

// ListInstallments returns installment plans grouped from transactions
func (h *Handler) ListInstallments(w http.ResponseWriter, r *http.Request) {
	plans, err := h.svc.InstallmentPlans(r.Context())
	if err != nil {
		h.writeError(w, r, err, "Failed to load installment plans")
		return
	}
	if plans == nil {
		plans = []models.InstallmentPlan{}
	}
	h.writeJSON(w, http.StatusOK, plans)
}

// GetTransactionPlan returns the installment plan a transaction belongs to
func (h *Handler) GetTransactionPlan(w http.ResponseWriter, r *http.Request) {
	progress, err := h.svc.TransactionPlan(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err, "Failed to load installment plan")
		return
	}
	h.writeJSON(w, http.StatusOK, progress)
}

// ListOccurrences returns a subscription's upcoming due dates
func (h *Handler) ListOccurrences(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	occurrences, err := h.svc.Occurrences(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err, "Failed to project subscription")
		return
	}
	if occurrences == nil {
		occurrences = []models.Occurrence{}
	}
	h.writeJSON(w, http.StatusOK, occurrences)
}

// GetReminderSettings returns the effective reminder settings
func (h *Handler) GetReminderSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.svc.ReminderSettings(r.Context())
	if err != nil {
		h.writeError(w, r, err, "Failed to load reminder settings")
		return
	}
	h.writeJSON(w, http.StatusOK, settings)
}

// UpdateReminderSettings stores new settings and rebuilds reminders
func (h *Handler) UpdateReminderSettings(w http.ResponseWriter, r *http.Request) {
	var req models.ReminderSettings
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logEntry(r).WithError(err).Warn("Invalid reminder settings payload")
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	settings, result, err := h.svc.UpdateReminderSettings(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err, "Failed to update reminder settings")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"settings": settings,
		"result":   result,
	})
}

// RebuildReminders replaces every scheduled reminder
func (h *Handler) RebuildReminders(w http.ResponseWriter, r *http.Request) {
	h.logEntry(r).Info("Reminder rebuild requested")
	result, err := h.svc.RebuildReminders(r.Context())
	if err != nil {
		h.writeError(w, r, err, "Failed to rebuild reminders")
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// PreviewReminders returns what a rebuild would schedule
func (h *Handler) PreviewReminders(w http.ResponseWriter, r *http.Request) {
	reminders, err := h.svc.PreviewReminders(r.Context())
	if err != nil {
		h.writeError(w, r, err, "Failed to preview reminders")
		return
	}
	if reminders == nil {
		reminders = []models.ScheduledReminder{}
	}
	h.writeJSON(w, http.StatusOK, reminders)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.WithError(err).Error("Failed to encode response")
	}
}

// logEntry tags log lines with the authenticated caller
func (h *Handler) logEntry(r *http.Request) *logrus.Entry {
	entry := logrus.NewEntry(h.log).WithField("path", r.URL.Path)
	if subject, ok := middleware.Subject(r.Context()); ok {
		entry = entry.WithField("subject", subject)
	}
	return entry
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		http.Error(w, "Not found", http.StatusNotFound)
	case errors.Is(err, service.ErrSnapshotUnavailable):
		h.logEntry(r).WithError(err).Error(msg)
		http.Error(w, "Data temporarily unavailable", http.StatusServiceUnavailable)
	default:
		h.logEntry(r).WithError(err).Error(msg)
		http.Error(w, msg, http.StatusInternalServerError)
	}
}
