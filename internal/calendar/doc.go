// Package calendar mirrors breez tasks into a Google Calendar.
//
// It has two halves. The mapper (TaskToEvent, EventToLinkage) turns a task
// with a due date into a timed event and is pure. The Client performs the
// remote event operations against the Calendar API with a bearer token
// obtained from the token guard:
//
//	client, err := calendar.NewClient(ctx, accessToken,
//	    calendar.WithMetrics(metrics),
//	    calendar.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//
//	ev, err := calendar.TaskToEvent(task, loc)
//	if err != nil {
//	    return err
//	}
//	link, err := client.CreateEvent(ctx, integration.CalendarID(), ev)
//
// Failures are typed: *MissingCalendarIDError when no target calendar is
// configured, *CalendarAPIError for non-2xx responses and
// *google.TransportError for network failures.
package calendar
