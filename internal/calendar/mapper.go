package calendar

import (
	"errors"
	"fmt"
	"time"

	calendar "google.golang.org/api/calendar/v3"

	"github.com/breezapp/breez/internal/store"
)

// DefaultEventDuration is used when a task has no usable end time.
const DefaultEventDuration = time.Hour

const (
	dateLayout  = store.DateLayout
	clockLayout = store.TimeLayout
)

// ErrMissingDueDate is returned when a task without a due date is mapped.
var ErrMissingDueDate = errors.New("task has no due date")

// InvalidTimeError reports a malformed date or clock field on a task.
type InvalidTimeError struct {
	Field string
	Value string
	Err   error
}

func (e *InvalidTimeError) Error() string {
	return fmt.Sprintf("invalid %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *InvalidTimeError) Unwrap() error {
	return e.Err
}

// Linkage identifies the remote event created for a task.
type Linkage struct {
	EventID  string
	HTMLLink string
}

// TaskToEvent builds the event payload for task in loc.
//
// The event starts at DueDate+StartTime, or at local midnight of the due date
// when no start time is set. It ends at DueDate+EndTime when that is after
// the start, otherwise one hour after the start.
func TaskToEvent(task *store.Task, loc *time.Location) (*calendar.Event, error) {
	if task == nil || !task.HasDueDate() {
		return nil, ErrMissingDueDate
	}
	if loc == nil {
		loc = time.UTC
	}

	day, err := time.ParseInLocation(dateLayout, task.DueDate, loc)
	if err != nil {
		return nil, &InvalidTimeError{Field: "dueDate", Value: task.DueDate, Err: err}
	}

	start := day
	if task.StartTime != "" {
		start, err = atClock(day, task.StartTime)
		if err != nil {
			return nil, &InvalidTimeError{Field: "startTime", Value: task.StartTime, Err: err}
		}
	}

	end := start.Add(DefaultEventDuration)
	if task.EndTime != "" {
		e, err := atClock(day, task.EndTime)
		if err != nil {
			return nil, &InvalidTimeError{Field: "endTime", Value: task.EndTime, Err: err}
		}
		if e.After(start) {
			end = e
		}
	}

	return &calendar.Event{
		Summary:     task.Title,
		Description: task.Description,
		Start:       eventDateTime(start, loc),
		End:         eventDateTime(end, loc),
	}, nil
}

// EventToLinkage extracts the linkage from a created event.
func EventToLinkage(ev *calendar.Event) (Linkage, error) {
	if ev == nil || ev.Id == "" {
		return Linkage{}, errors.New("calendar event has no id")
	}
	return Linkage{EventID: ev.Id, HTMLLink: ev.HtmlLink}, nil
}

func atClock(day time.Time, clock string) (time.Time, error) {
	t, err := time.Parse(clockLayout, clock)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, day.Location()), nil
}

func eventDateTime(t time.Time, loc *time.Location) *calendar.EventDateTime {
	return &calendar.EventDateTime{
		DateTime: t.Format(time.RFC3339),
		TimeZone: loc.String(),
	}
}
