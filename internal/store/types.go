package store

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"regexp"
	"time"
)

// ProviderGoogleCalendar is the provider tag of Google Calendar integrations.
const ProviderGoogleCalendar = "google_calendar"

// SettingCalendarID is the settings key holding the dedicated calendar id.
const SettingCalendarID = "calendarId"

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// Settings holds provider specific integration settings.
type Settings map[string]any

// CalendarID returns the dedicated calendar id, or "" if unset.
func (s Settings) CalendarID() string {
	v, _ := s[SettingCalendarID].(string)
	return v
}

// Merge returns a copy of s with every key of patch applied on top.
func (s Settings) Merge(patch Settings) Settings {
	out := make(Settings, len(s)+len(patch))
	maps.Copy(out, s)
	maps.Copy(out, patch)
	return out
}

// Value stores settings as a JSON document.
func (s Settings) Value() (driver.Value, error) {
	if s == nil {
		return "{}", nil
	}
	b, err := json.Marshal(map[string]any(s))
	if err != nil {
		return nil, fmt.Errorf("failed to encode settings: %w", err)
	}
	return string(b), nil
}

// Scan decodes settings from a JSON column.
func (s *Settings) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*s = Settings{}
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("cannot scan %T into settings", src)
	}
	out := Settings{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return fmt.Errorf("failed to decode settings: %w", err)
		}
	}
	*s = out
	return nil
}

// GormDataType is the column type used by migrations.
func (Settings) GormDataType() string {
	return "text"
}

// Integration is a user's link to an external calendar provider.
type Integration struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	Provider     string    `json:"provider"`
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	ExpiresAt    time.Time `json:"expiresAt"`
	Settings     Settings  `json:"settings,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// CalendarID returns the dedicated calendar id from the settings.
func (i *Integration) CalendarID() string {
	return i.Settings.CalendarID()
}

// Clone returns a deep copy of i.
func (i *Integration) Clone() *Integration {
	if i == nil {
		return nil
	}
	c := *i
	c.Settings = Settings{}.Merge(i.Settings)
	return &c
}

// TaskStatus is the workflow status of a task.
type TaskStatus string

// Task statuses.
const (
	StatusTodo       TaskStatus = "todo"
	StatusInProgress TaskStatus = "in_progress"
	StatusDone       TaskStatus = "done"
	StatusCanceled   TaskStatus = "canceled"
)

// Priority is the priority of a task.
type Priority string

// Task priorities.
const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Task is a user's to-do item. CalendarEventID is set exactly when a remote
// calendar event exists for the task.
type Task struct {
	ID              string     `json:"id"`
	UserID          string     `json:"userId"`
	Title           string     `json:"title"`
	Description     string     `json:"description,omitempty"`
	Status          TaskStatus `json:"status"`
	Priority        Priority   `json:"priority"`
	DueDate         string     `json:"dueDate,omitempty"`
	StartTime       string     `json:"startTime,omitempty"`
	EndTime         string     `json:"endTime,omitempty"`
	CalendarEventID string     `json:"calendarEventId,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// HasDueDate reports whether the task carries a due date.
func (t *Task) HasDueDate() bool {
	return t.DueDate != ""
}

// Clone returns a copy of t.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// Layouts of the task date and time fields.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

var (
	dateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	timeRe = regexp.MustCompile(`^\d{2}:\d{2}$`)
)

// Validate checks required fields, formats and that the due date and times
// exist on the calendar, so a stored task can always be mapped to an event.
func (t *Task) Validate() error {
	if t.UserID == "" {
		return fmt.Errorf("task user id cannot be empty")
	}
	if t.Title == "" {
		return fmt.Errorf("task title cannot be empty")
	}
	switch t.Status {
	case "", StatusTodo, StatusInProgress, StatusDone, StatusCanceled:
	default:
		return fmt.Errorf("invalid task status %q", t.Status)
	}
	switch t.Priority {
	case "", PriorityLow, PriorityMedium, PriorityHigh:
	default:
		return fmt.Errorf("invalid task priority %q", t.Priority)
	}
	if t.DueDate != "" {
		if !dateRe.MatchString(t.DueDate) {
			return fmt.Errorf("due date %q must be YYYY-MM-DD", t.DueDate)
		}
		if _, err := time.Parse(DateLayout, t.DueDate); err != nil {
			return fmt.Errorf("due date %q is not a calendar date", t.DueDate)
		}
	}
	for _, v := range []string{t.StartTime, t.EndTime} {
		if v == "" {
			continue
		}
		if !timeRe.MatchString(v) {
			return fmt.Errorf("time %q must be HH:MM", v)
		}
		if _, err := time.Parse(TimeLayout, v); err != nil {
			return fmt.Errorf("time %q is not a time of day", v)
		}
	}
	return nil
}

// applyDefaults fills the status and priority of a new task.
func (t *Task) applyDefaults() {
	if t.Status == "" {
		t.Status = StatusTodo
	}
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
}
