package tasksync

import (
	"errors"

	"github.com/breezapp/breez/internal/calendar"
	"github.com/breezapp/breez/internal/google"
)

// Action is the task mutation that triggered a sync.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// State is a sync state. Creating, Updating and Deleting are transient;
// a Result always carries one of the terminal states.
type State string

const (
	StateNoOp            State = "noop"
	StateCreating        State = "creating"
	StateUpdating        State = "updating"
	StateDeleting        State = "deleting"
	StateLinked          State = "linked"
	StateUnlinked        State = "unlinked"
	StatePartiallyFailed State = "partially_failed"
)

// Failure reasons reported with StatePartiallyFailed.
const (
	ReasonReauthorizationRequired = "reauthorization_required"
	ReasonTokenRefreshFailed      = "token_refresh_failed"
	ReasonMissingCalendarID       = "missing_calendar_id"
	ReasonCalendarAPIError        = "calendar_api_error"
	ReasonTransportError          = "transport_error"
	ReasonLinkPersistFailed       = "link_persist_failed"
	ReasonInvalidTask             = "invalid_task"
	ReasonUnknown                 = "unknown"
)

// Result is the outcome of one sync run.
type Result struct {
	Action    Action `json:"action"`
	State     State  `json:"state"`
	EventID   string `json:"eventId,omitempty"`
	EventLink string `json:"eventLink,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Warning   string `json:"warning,omitempty"`
	Err       error  `json:"-"`
}

// Failed reports whether the task was saved but the calendar was not
// brought in line with it.
func (r Result) Failed() bool {
	return r.State == StatePartiallyFailed
}

// errLinkPersist marks a remote event that was created but whose id could
// not be stored on the task.
var errLinkPersist = errors.New("failed to persist calendar event id")

// classify maps a sync error to its reason.
func classify(err error) string {
	var (
		reauth      *google.ReauthorizationRequiredError
		refreshErr  *google.TokenRefreshError
		missingCal  *calendar.MissingCalendarIDError
		apiErr      *calendar.CalendarAPIError
		transport   *google.TransportError
		invalidTime *calendar.InvalidTimeError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, errLinkPersist):
		return ReasonLinkPersistFailed
	case errors.As(err, &reauth):
		return ReasonReauthorizationRequired
	case errors.As(err, &refreshErr):
		if refreshErr.RequiresReauthorization() {
			return ReasonReauthorizationRequired
		}
		return ReasonTokenRefreshFailed
	case errors.As(err, &missingCal):
		return ReasonMissingCalendarID
	case errors.As(err, &apiErr):
		return ReasonCalendarAPIError
	case errors.As(err, &transport), google.IsTransport(err):
		return ReasonTransportError
	case errors.As(err, &invalidTime), errors.Is(err, calendar.ErrMissingDueDate):
		return ReasonInvalidTask
	default:
		return ReasonUnknown
	}
}
