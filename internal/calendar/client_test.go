package calendar

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	calendar "google.golang.org/api/calendar/v3"

	"github.com/breezapp/breez/internal/google"
)

// fakeCalendarAPI is a Calendar API double that records requests.
type fakeCalendarAPI struct {
	*httptest.Server

	mu        sync.Mutex
	requests  []string
	auth      string
	lastQuery map[string]string
	lastBody  map[string]any

	deleteStatus int
	insertStatus int
	calendars    []*calendar.CalendarListEntry
}

func newFakeCalendarAPI(t *testing.T) *fakeCalendarAPI {
	t.Helper()
	f := &fakeCalendarAPI{deleteStatus: http.StatusNoContent, insertStatus: http.StatusOK}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /calendars/{calendarId}/events", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		if status := f.status(&f.insertStatus); status != http.StatusOK {
			writeAPIError(w, status, "Insufficient Permission")
			return
		}
		writeJSON(w, &calendar.Event{Id: "evt_1", HtmlLink: "https://calendar.google.com/event?eid=evt_1"})
	})
	mux.HandleFunc("PUT /calendars/{calendarId}/events/{eventId}", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		writeJSON(w, &calendar.Event{Id: r.PathValue("eventId")})
	})
	mux.HandleFunc("DELETE /calendars/{calendarId}/events/{eventId}", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		status := f.status(&f.deleteStatus)
		if status >= 300 {
			writeAPIError(w, status, http.StatusText(status))
			return
		}
		w.WriteHeader(status)
	})
	mux.HandleFunc("GET /calendars/{calendarId}/events", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		writeJSON(w, &calendar.Events{Items: []*calendar.Event{
			{Id: "a", Summary: "First", Start: &calendar.EventDateTime{DateTime: "2026-03-10T09:00:00Z"}, End: &calendar.EventDateTime{DateTime: "2026-03-10T10:00:00Z"}},
			{Id: "b", Summary: "Second", Start: &calendar.EventDateTime{DateTime: "2026-03-11T09:00:00Z"}, End: &calendar.EventDateTime{DateTime: "2026-03-11T10:00:00Z"}},
		}})
	})
	mux.HandleFunc("GET /users/me/calendarList", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		f.mu.Lock()
		items := f.calendars
		f.mu.Unlock()
		writeJSON(w, &calendar.CalendarList{Items: items})
	})
	mux.HandleFunc("POST /calendars", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		writeJSON(w, &calendar.Calendar{Id: "cal_new"})
	})

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func (f *fakeCalendarAPI) record(r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)
	f.auth = r.Header.Get("Authorization")
	f.lastQuery = map[string]string{}
	for k := range r.URL.Query() {
		f.lastQuery[k] = r.URL.Query().Get(k)
	}
	f.lastBody = nil
	if r.Body != nil && r.ContentLength != 0 {
		_ = json.NewDecoder(r.Body).Decode(&f.lastBody)
	}
}

func (f *fakeCalendarAPI) status(p *int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *p
}

func (f *fakeCalendarAPI) set(p *int, v int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	*p = v
}

func (f *fakeCalendarAPI) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

func (f *fakeCalendarAPI) last() (auth string, query map[string]string, body map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.auth, f.lastQuery, f.lastBody
}

func (f *fakeCalendarAPI) setCalendars(items ...*calendar.CalendarListEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calendars = items
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeAPIError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"code": status, "message": message},
	})
}

func newTestClient(t *testing.T, f *fakeCalendarAPI) *Client {
	t.Helper()
	c, err := NewClient(context.Background(), "access-token",
		WithEndpoint(f.URL+"/"),
		WithHTTPClient(f.Client()))
	require.NoError(t, err)
	return c
}

func testEvent() *calendar.Event {
	return &calendar.Event{
		Summary: "Dentist",
		Start:   &calendar.EventDateTime{DateTime: "2026-03-10T14:00:00Z", TimeZone: "UTC"},
		End:     &calendar.EventDateTime{DateTime: "2026-03-10T15:00:00Z", TimeZone: "UTC"},
	}
}

func TestNewClient_RequiresToken(t *testing.T) {
	_, err := NewClient(context.Background(), "")
	assert.Error(t, err)
}

func TestCreateEvent(t *testing.T) {
	f := newFakeCalendarAPI(t)
	c := newTestClient(t, f)

	link, err := c.CreateEvent(context.Background(), "cal_123", testEvent())
	require.NoError(t, err)
	assert.Equal(t, "evt_1", link.EventID)
	assert.Equal(t, "https://calendar.google.com/event?eid=evt_1", link.HTMLLink)

	assert.Equal(t, []string{"POST /calendars/cal_123/events"}, f.calls())
	auth, _, body := f.last()
	assert.Equal(t, "Bearer access-token", auth)
	assert.Equal(t, "Dentist", body["summary"])
}

func TestCreateEvent_APIError(t *testing.T) {
	f := newFakeCalendarAPI(t)
	f.set(&f.insertStatus, http.StatusForbidden)
	c := newTestClient(t, f)

	_, err := c.CreateEvent(context.Background(), "cal_123", testEvent())
	var apiErr *CalendarAPIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.Equal(t, "Insufficient Permission", apiErr.Message)
	assert.False(t, apiErr.NotFound())
}

func TestMissingCalendarIDMakesNoRequest(t *testing.T) {
	f := newFakeCalendarAPI(t)
	c := newTestClient(t, f)
	ctx := context.Background()

	var missing *MissingCalendarIDError
	_, err := c.CreateEvent(ctx, "", testEvent())
	assert.ErrorAs(t, err, &missing)
	assert.ErrorAs(t, c.UpdateEvent(ctx, "", "evt_1", testEvent()), &missing)
	assert.ErrorAs(t, c.DeleteEvent(ctx, "", "evt_1"), &missing)
	_, err = c.ListUpcomingEvents(ctx, "", time.Now(), 10)
	assert.ErrorAs(t, err, &missing)

	assert.Empty(t, f.calls())
}

func TestUpdateEvent(t *testing.T) {
	f := newFakeCalendarAPI(t)
	c := newTestClient(t, f)

	require.NoError(t, c.UpdateEvent(context.Background(), "cal_123", "evt_9", testEvent()))
	assert.Equal(t, []string{"PUT /calendars/cal_123/events/evt_9"}, f.calls())
}

func TestDeleteEvent(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{"deleted", http.StatusNoContent, false},
		{"not found is success", http.StatusNotFound, false},
		{"gone is success", http.StatusGone, false},
		{"server error", http.StatusInternalServerError, true},
		{"forbidden", http.StatusForbidden, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeCalendarAPI(t)
			f.set(&f.deleteStatus, tt.status)
			c := newTestClient(t, f)

			err := c.DeleteEvent(context.Background(), "cal_123", "evt_1")
			if tt.wantErr {
				var apiErr *CalendarAPIError
				require.ErrorAs(t, err, &apiErr)
				assert.Equal(t, tt.status, apiErr.Status)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestTransportError(t *testing.T) {
	f := newFakeCalendarAPI(t)
	c := newTestClient(t, f)
	f.Close()

	_, err := c.CreateEvent(context.Background(), "cal_123", testEvent())
	var transportErr *google.TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.True(t, google.IsTransport(err))
}

func TestListUpcomingEvents(t *testing.T) {
	f := newFakeCalendarAPI(t)
	c := newTestClient(t, f)
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	events, err := c.ListUpcomingEvents(context.Background(), "cal_123", from, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "First", events[0].Summary)
	assert.Equal(t, 9, events[0].Start.Hour())

	_, query, _ := f.last()
	assert.Equal(t, "2026-03-01T00:00:00Z", query["timeMin"])
	assert.Equal(t, "10", query["maxResults"])
	assert.Equal(t, "true", query["singleEvents"])
	assert.Equal(t, "startTime", query["orderBy"])
}

func TestEnsureCalendar_Existing(t *testing.T) {
	f := newFakeCalendarAPI(t)
	f.setCalendars(
		&calendar.CalendarListEntry{Id: "primary@example.com", Summary: "Alex"},
		&calendar.CalendarListEntry{Id: "cal_breez", Summary: "breez"},
	)
	c := newTestClient(t, f)

	id, err := c.EnsureCalendar(context.Background(), "", "Europe/Berlin")
	require.NoError(t, err)
	assert.Equal(t, "cal_breez", id)
	assert.Equal(t, []string{"GET /users/me/calendarList"}, f.calls())
}

func TestEnsureCalendar_Creates(t *testing.T) {
	f := newFakeCalendarAPI(t)
	c := newTestClient(t, f)

	id, err := c.EnsureCalendar(context.Background(), "Tasks", "Europe/Berlin")
	require.NoError(t, err)
	assert.Equal(t, "cal_new", id)
	assert.Equal(t, []string{"GET /users/me/calendarList", "POST /calendars"}, f.calls())
	_, _, body := f.last()
	assert.Equal(t, "Tasks", body["summary"])
	assert.Equal(t, DefaultCalendarDescription, body["description"])
	assert.Equal(t, "Europe/Berlin", body["timeZone"])
}
