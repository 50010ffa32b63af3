package models

import "time"

// ReminderSettings holds the user's reminder preferences
type ReminderSettings struct {
	Enabled    bool   `json:"enabled"`
	Time       string `json:"time"`        // Format: HH:MM
	DaysBefore []int  `json:"days_before"` // ordered, non-negative, unique
}

// ReminderContent is what a notification shows
type ReminderContent struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// ScheduledReminder represents a reminder computed during a rebuild
type ScheduledReminder struct {
	DedupKey  string    `json:"dedup_key"`
	TriggerAt time.Time `json:"trigger_at"`
	ReminderContent
}

// OutboxReminder is a reminder row stored by the notifier
type OutboxReminder struct {
	ID          string     `json:"id"`
	TriggerAt   time.Time  `json:"trigger_at"`
	Title       string     `json:"title"`
	Body        string     `json:"body"`
	CreatedAt   time.Time  `json:"created_at"`
	SentAt      *time.Time `json:"sent_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
}
