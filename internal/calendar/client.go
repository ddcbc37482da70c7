package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"
	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/breezapp/breez/internal/instrumentation"
	"github.com/breezapp/breez/internal/logging"
)

const (
	// DefaultCalendarSummary names the dedicated calendar created on link.
	DefaultCalendarSummary = "breez"

	// DefaultCalendarDescription is set on calendars created by EnsureCalendar.
	DefaultCalendarDescription = "Calendar created by breez application"

	// DefaultTimeout bounds each Calendar API call.
	DefaultTimeout = 30 * time.Second
)

// Client performs event operations against one user's Google Calendar.
type Client struct {
	svc     *calendar.Service
	metrics *instrumentation.Metrics
	logger  *slog.Logger
}

type clientOptions struct {
	endpoint   string
	httpClient *http.Client
	metrics    *instrumentation.Metrics
	logger     *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*clientOptions)

// WithEndpoint overrides the Calendar API base URL.
func WithEndpoint(endpoint string) ClientOption {
	return func(o *clientOptions) {
		o.endpoint = endpoint
	}
}

// WithHTTPClient sets the base HTTP client. The bearer token is layered on
// top of its transport.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(o *clientOptions) {
		o.httpClient = c
	}
}

// WithMetrics records Calendar API call outcomes.
func WithMetrics(m *instrumentation.Metrics) ClientOption {
	return func(o *clientOptions) {
		o.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(o *clientOptions) {
		o.logger = logger
	}
}

// NewClient creates a Calendar client that authenticates with accessToken.
// The token is used as is; callers obtain it from the token guard.
func NewClient(ctx context.Context, accessToken string, opts ...ClientOption) (*Client, error) {
	if accessToken == "" {
		return nil, fmt.Errorf("access token cannot be empty")
	}

	o := clientOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	base := o.httpClient
	if base == nil {
		base = &http.Client{Timeout: DefaultTimeout}
	}
	httpClient := &http.Client{
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}),
			Base:   base.Transport,
		},
		Timeout: base.Timeout,
	}

	svcOpts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if o.endpoint != "" {
		svcOpts = append(svcOpts, option.WithEndpoint(o.endpoint))
	}
	svc, err := calendar.NewService(ctx, svcOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Calendar service: %w", err)
	}

	return &Client{
		svc:     svc,
		metrics: o.metrics,
		logger:  logging.WithService(o.logger, instrumentation.ServiceCalendar),
	}, nil
}

// finish classifies err and records the call on span and metrics.
func (c *Client) finish(ctx context.Context, span trace.Span, op string, start time.Time, err error) error {
	status := instrumentation.StatusSuccess
	if err != nil {
		err = classifyError(op, err)
		status = instrumentation.StatusError
		instrumentation.SetSpanError(span, err)
	} else {
		instrumentation.SetSpanSuccess(span)
	}
	c.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceCalendar, op, status, time.Since(start))
	return err
}

// CreateEvent inserts ev into calendarID.
func (c *Client) CreateEvent(ctx context.Context, calendarID string, ev *calendar.Event) (Linkage, error) {
	if calendarID == "" {
		return Linkage{}, &MissingCalendarIDError{}
	}

	op := instrumentation.OperationCreate
	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceCalendar, op,
		instrumentation.NewSpanAttributeBuilder().WithCalendar(calendarID).Build()...)
	defer span.End()
	start := time.Now()

	created, err := c.svc.Events.Insert(calendarID, ev).Context(ctx).Do()
	if err = c.finish(ctx, span, op, start, err); err != nil {
		return Linkage{}, err
	}

	link, err := EventToLinkage(created)
	if err != nil {
		return Linkage{}, err
	}
	c.logger.Debug("Created calendar event", logging.CalendarID(calendarID), logging.EventID(link.EventID))
	return link, nil
}

// UpdateEvent replaces the content of an existing event.
func (c *Client) UpdateEvent(ctx context.Context, calendarID, eventID string, ev *calendar.Event) error {
	if calendarID == "" {
		return &MissingCalendarIDError{}
	}

	op := instrumentation.OperationUpdate
	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceCalendar, op,
		instrumentation.NewSpanAttributeBuilder().WithCalendar(calendarID).WithEvent(eventID).Build()...)
	defer span.End()
	start := time.Now()

	_, err := c.svc.Events.Update(calendarID, eventID, ev).Context(ctx).Do()
	if err = c.finish(ctx, span, op, start, err); err != nil {
		return err
	}
	c.logger.Debug("Updated calendar event", logging.CalendarID(calendarID), logging.EventID(eventID))
	return nil
}

// DeleteEvent removes an event. An event that is already gone counts as
// deleted.
func (c *Client) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	if calendarID == "" {
		return &MissingCalendarIDError{}
	}

	op := instrumentation.OperationDelete
	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceCalendar, op,
		instrumentation.NewSpanAttributeBuilder().WithCalendar(calendarID).WithEvent(eventID).Build()...)
	defer span.End()
	start := time.Now()

	err := c.svc.Events.Delete(calendarID, eventID).Context(ctx).Do()
	err = c.finish(ctx, span, op, start, err)
	var apiErr *CalendarAPIError
	if errors.As(err, &apiErr) && apiErr.NotFound() {
		c.logger.Debug("Calendar event already deleted", logging.CalendarID(calendarID), logging.EventID(eventID))
		return nil
	}
	return err
}

// ListUpcomingEvents returns up to maxResults single events starting at or after
// from, ordered by start time.
func (c *Client) ListUpcomingEvents(ctx context.Context, calendarID string, from time.Time, maxResults int64) ([]EventSummary, error) {
	if calendarID == "" {
		return nil, &MissingCalendarIDError{}
	}

	op := instrumentation.OperationList
	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceCalendar, op,
		instrumentation.NewSpanAttributeBuilder().WithCalendar(calendarID).Build()...)
	defer span.End()
	start := time.Now()

	call := c.svc.Events.List(calendarID).
		TimeMin(from.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime")
	if maxResults > 0 {
		call = call.MaxResults(maxResults)
	}

	events, err := call.Context(ctx).Do()
	if err = c.finish(ctx, span, op, start, err); err != nil {
		return nil, err
	}

	summaries := make([]EventSummary, 0, len(events.Items))
	for _, event := range events.Items {
		summaries = append(summaries, toEventSummary(event))
	}
	return summaries, nil
}

// EnsureCalendar returns the id of the user's owned calendar named summary,
// creating it in timeZone when none exists.
func (c *Client) EnsureCalendar(ctx context.Context, summary, timeZone string) (string, error) {
	if summary == "" {
		summary = DefaultCalendarSummary
	}

	op := instrumentation.OperationEnsure
	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceCalendar, op)
	defer span.End()
	start := time.Now()

	var found string
	err := c.svc.CalendarList.List().MinAccessRole("owner").Pages(ctx, func(list *calendar.CalendarList) error {
		for _, entry := range list.Items {
			if found == "" && entry.Summary == summary {
				found = entry.Id
			}
		}
		return nil
	})
	if err != nil {
		return "", c.finish(ctx, span, op, start, err)
	}
	if found != "" {
		c.logger.Debug("Using existing calendar", logging.CalendarID(found))
		return found, c.finish(ctx, span, op, start, nil)
	}

	created, err := c.svc.Calendars.Insert(&calendar.Calendar{
		Summary:     summary,
		Description: DefaultCalendarDescription,
		TimeZone:    timeZone,
	}).Context(ctx).Do()
	if err = c.finish(ctx, span, op, start, err); err != nil {
		return "", err
	}
	c.logger.Info("Created dedicated calendar", logging.CalendarID(created.Id))
	return created.Id, nil
}
