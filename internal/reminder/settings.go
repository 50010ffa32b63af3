package reminder

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/Dan9191/reminder-service/internal/models"
)

// SettingsKey is the settings-store key under which reminder preferences live
const SettingsKey = "reminderSettings"

const (
	defaultHour   = 9
	defaultMinute = 0
)

// DefaultSettings returns reminders disabled at 09:00, zero to two days before.
func DefaultSettings() models.ReminderSettings {
	return models.ReminderSettings{
		Enabled:    false,
		Time:       "09:00",
		DaysBefore: []int{0, 1, 2},
	}
}

// Normalize fills in defaults and turns DaysBefore into an ordered set of
// non-negative offsets. A nil settings value yields the defaults.
func Normalize(s *models.ReminderSettings) models.ReminderSettings {
	if s == nil {
		return DefaultSettings()
	}
	out := models.ReminderSettings{Enabled: s.Enabled}

	hour, minute := ParseTime(s.Time)
	out.Time = formatTime(hour, minute)

	if s.DaysBefore == nil {
		out.DaysBefore = DefaultSettings().DaysBefore
		return out
	}
	seen := make(map[int]bool, len(s.DaysBefore))
	out.DaysBefore = make([]int, 0, len(s.DaysBefore))
	for _, d := range s.DaysBefore {
		if d < 0 || seen[d] {
			continue
		}
		seen[d] = true
		out.DaysBefore = append(out.DaysBefore, d)
	}
	sort.Ints(out.DaysBefore)
	return out
}

// ParseTime reads "HH:MM". Unparseable or out-of-range parts fall back to 09:00.
func ParseTime(value string) (hour, minute int) {
	hour, minute = defaultHour, defaultMinute
	parts := strings.SplitN(strings.TrimSpace(value), ":", 2)
	if len(parts) != 2 {
		return hour, minute
	}
	h, errH := strconv.Atoi(parts[0])
	m, errM := strconv.Atoi(parts[1])
	if errH != nil || errM != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return hour, minute
	}
	return h, m
}

func formatTime(hour, minute int) string {
	return fmt.Sprintf("%02d:%02d", hour, minute)
}
