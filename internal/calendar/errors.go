package calendar

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"

	"github.com/breezapp/breez/internal/google"
)

// MissingCalendarIDError is returned when an integration has a usable token
// but no target calendar recorded in its settings.
type MissingCalendarIDError struct {
	IntegrationID string
}

func (e *MissingCalendarIDError) Error() string {
	if e.IntegrationID != "" {
		return fmt.Sprintf("integration %s has no calendarId configured", e.IntegrationID)
	}
	return "no calendarId configured"
}

// CalendarAPIError is a non-2xx response from the Calendar API.
type CalendarAPIError struct {
	Op      string
	Status  int
	Message string
}

func (e *CalendarAPIError) Error() string {
	return fmt.Sprintf("calendar %s failed with status %d: %s", e.Op, e.Status, e.Message)
}

// NotFound reports whether the target calendar or event does not exist.
func (e *CalendarAPIError) NotFound() bool {
	return e.Status == http.StatusNotFound || e.Status == http.StatusGone
}

// classifyError maps a Calendar API client error to the package's error types.
func classifyError(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		msg := gerr.Message
		if msg == "" {
			msg = strings.TrimSpace(gerr.Body)
		}
		if msg == "" {
			msg = http.StatusText(gerr.Code)
		}
		return &CalendarAPIError{Op: op, Status: gerr.Code, Message: msg}
	}
	if google.IsTransport(err) {
		return &google.TransportError{Op: "calendar " + op, Err: err}
	}
	return fmt.Errorf("calendar %s: %w", op, err)
}
