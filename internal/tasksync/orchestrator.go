package tasksync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	calendarapi "google.golang.org/api/calendar/v3"

	"github.com/breezapp/breez/internal/calendar"
	"github.com/breezapp/breez/internal/google"
	"github.com/breezapp/breez/internal/instrumentation"
	"github.com/breezapp/breez/internal/logging"
	"github.com/breezapp/breez/internal/store"
)

// CalendarAPI is the subset of calendar.Client the orchestrator drives.
type CalendarAPI interface {
	CreateEvent(ctx context.Context, calendarID string, ev *calendarapi.Event) (calendar.Linkage, error)
	UpdateEvent(ctx context.Context, calendarID, eventID string, ev *calendarapi.Event) error
	DeleteEvent(ctx context.Context, calendarID, eventID string) error
}

// ClientFactory builds a CalendarAPI bound to an access token.
type ClientFactory func(ctx context.Context, accessToken string) (CalendarAPI, error)

// CalendarClientFactory returns a ClientFactory backed by calendar.NewClient.
func CalendarClientFactory(opts ...calendar.ClientOption) ClientFactory {
	return func(ctx context.Context, accessToken string) (CalendarAPI, error) {
		return calendar.NewClient(ctx, accessToken, opts...)
	}
}

// Config controls the orchestrator.
type Config struct {
	// Enabled turns calendar sync on. When false every run is a no-op.
	Enabled bool

	// Location is the time zone task dates and times are read in
	// (default: UTC).
	Location *time.Location

	// Provider selects the integration (default: store.ProviderGoogleCalendar).
	Provider string
}

// Deps are the orchestrator's collaborators.
type Deps struct {
	Integrations store.IntegrationStore
	Tasks        store.TaskStore
	Tokens       google.TokenProvider
	Calendars    ClientFactory
	Metrics      *instrumentation.Metrics
	Logger       *slog.Logger
}

// Orchestrator runs the calendar side of task mutations.
type Orchestrator struct {
	cfg  Config
	deps Deps
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(cfg Config, deps Deps) *Orchestrator {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Provider == "" {
		cfg.Provider = store.ProviderGoogleCalendar
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	deps.Logger = logging.WithOperation(deps.Logger, "task_sync")
	return &Orchestrator{cfg: cfg, deps: deps}
}

// Enabled reports whether calendar sync is turned on. A nil Orchestrator
// never syncs.
func (o *Orchestrator) Enabled() bool {
	return o != nil && o.cfg.Enabled
}

// Sync brings the calendar in line with a task mutation that has already
// been committed. It never returns an error; failures are reported in the
// Result. On a successful create the task's CalendarEventID is set.
func (o *Orchestrator) Sync(ctx context.Context, action Action, task *store.Task) Result {
	start := time.Now()
	ctx, span := instrumentation.StartSyncSpan(ctx, string(action), task.ID)
	defer span.End()

	res := o.run(ctx, action, task)
	res.Action = action
	if res.Err != nil {
		res.State = StatePartiallyFailed
		res.Reason = classify(res.Err)
		res.Warning = "task saved, calendar sync failed: " + res.Err.Error()
	}

	o.report(ctx, span, task, res, time.Since(start))
	return res
}

func (o *Orchestrator) run(ctx context.Context, action Action, task *store.Task) Result {
	if !o.cfg.Enabled {
		return Result{State: StateNoOp}
	}

	linked := task.CalendarEventID != ""
	switch action {
	case ActionCreate:
		if !task.HasDueDate() {
			return Result{State: StateNoOp}
		}
	case ActionUpdate:
		if !linked && !task.HasDueDate() {
			return Result{State: StateNoOp}
		}
	case ActionDelete:
		if !linked {
			return Result{State: StateNoOp}
		}
	default:
		return Result{State: StateNoOp, Err: fmt.Errorf("unknown sync action %q", action)}
	}

	in, err := o.deps.Integrations.GetIntegration(ctx, task.UserID, o.cfg.Provider)
	if errors.Is(err, store.ErrNotFound) {
		res := Result{State: StateNoOp}
		if linked {
			res.Warning = "calendar integration is not connected; linked event left in place"
		}
		return res
	}
	if err != nil {
		return Result{Err: fmt.Errorf("failed to load integration: %w", err)}
	}

	token, err := o.deps.Tokens.AccessToken(ctx, in)
	if err != nil {
		return Result{Err: err}
	}

	calendarID := in.CalendarID()
	if calendarID == "" {
		return Result{Err: &calendar.MissingCalendarIDError{IntegrationID: in.ID}}
	}

	client, err := o.deps.Calendars(ctx, token)
	if err != nil {
		return Result{Err: err}
	}

	switch {
	case action == ActionDelete:
		return o.deleteEvent(ctx, client, calendarID, task)
	case action == ActionUpdate && linked && !task.HasDueDate():
		// The due date was removed, so the event no longer has a place.
		res := o.deleteEvent(ctx, client, calendarID, task)
		if res.Err == nil {
			if err := o.deps.Tasks.SetCalendarEventID(ctx, task.ID, ""); err != nil {
				return Result{Err: fmt.Errorf("failed to clear calendar event id: %w", err)}
			}
			task.CalendarEventID = ""
		}
		return res
	case action == ActionUpdate && linked:
		return o.updateEvent(ctx, client, calendarID, task)
	default:
		return o.createEvent(ctx, client, calendarID, task)
	}
}

func (o *Orchestrator) createEvent(ctx context.Context, client CalendarAPI, calendarID string, task *store.Task) Result {
	o.transition(task, StateCreating)

	ev, err := calendar.TaskToEvent(task, o.cfg.Location)
	if err != nil {
		return Result{Err: err}
	}

	link, err := client.CreateEvent(ctx, calendarID, ev)
	if err != nil {
		return Result{Err: err}
	}

	if err := o.deps.Tasks.SetCalendarEventID(ctx, task.ID, link.EventID); err != nil {
		// Without the linkage the event would be orphaned, so take it back out.
		if derr := client.DeleteEvent(ctx, calendarID, link.EventID); derr != nil {
			o.deps.Logger.Warn("Failed to remove unlinked calendar event",
				logging.TaskID(task.ID),
				logging.EventID(link.EventID),
				logging.Err(derr))
		}
		return Result{Err: fmt.Errorf("%w: %w", errLinkPersist, err)}
	}

	task.CalendarEventID = link.EventID
	return Result{State: StateLinked, EventID: link.EventID, EventLink: link.HTMLLink}
}

func (o *Orchestrator) updateEvent(ctx context.Context, client CalendarAPI, calendarID string, task *store.Task) Result {
	o.transition(task, StateUpdating)

	ev, err := calendar.TaskToEvent(task, o.cfg.Location)
	if err != nil {
		return Result{Err: err}
	}

	err = client.UpdateEvent(ctx, calendarID, task.CalendarEventID, ev)
	var apiErr *calendar.CalendarAPIError
	if errors.As(err, &apiErr) && apiErr.NotFound() {
		// Deleted out of band; recreate and relink.
		o.deps.Logger.Info("Linked calendar event is gone, recreating",
			logging.TaskID(task.ID),
			logging.EventID(task.CalendarEventID))
		return o.createEvent(ctx, client, calendarID, task)
	}
	if err != nil {
		return Result{Err: err}
	}
	return Result{State: StateLinked, EventID: task.CalendarEventID}
}

func (o *Orchestrator) deleteEvent(ctx context.Context, client CalendarAPI, calendarID string, task *store.Task) Result {
	o.transition(task, StateDeleting)

	if err := client.DeleteEvent(ctx, calendarID, task.CalendarEventID); err != nil {
		return Result{Err: err}
	}
	return Result{State: StateUnlinked, EventID: task.CalendarEventID}
}

func (o *Orchestrator) transition(task *store.Task, state State) {
	o.deps.Logger.Debug("Sync state", logging.TaskID(task.ID), slog.String("state", string(state)))
}

// report is the single place sync outcomes are logged and recorded.
func (o *Orchestrator) report(ctx context.Context, span trace.Span, task *store.Task, res Result, duration time.Duration) {
	span.SetAttributes(
		attribute.String(instrumentation.SpanAttrSyncState, string(res.State)),
		attribute.String(instrumentation.SpanAttrSyncReason, res.Reason),
	)
	o.deps.Metrics.RecordTaskSync(ctx, string(res.Action), string(res.State), res.Reason, duration)

	attrs := []any{
		slog.String("action", string(res.Action)),
		slog.String("state", string(res.State)),
		logging.TaskID(task.ID),
		logging.UserHash(task.UserID),
		slog.Duration(logging.KeyDuration, duration),
	}
	if res.EventID != "" {
		attrs = append(attrs, logging.EventID(res.EventID))
	}

	if res.Failed() {
		instrumentation.SetSpanError(span, res.Err)
		attrs = append(attrs, slog.String("reason", res.Reason), logging.Err(res.Err))
		o.deps.Logger.Warn("Calendar sync failed, task change kept", attrs...)
		return
	}
	instrumentation.SetSpanSuccess(span)
	if res.Warning != "" {
		attrs = append(attrs, slog.String("warning", res.Warning))
	}
	o.deps.Logger.Debug("Calendar sync finished", attrs...)
}
