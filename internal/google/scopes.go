package google

import calendar "google.golang.org/api/calendar/v3"

// DefaultOAuthScopes are the Google OAuth scopes requested on the consent screen.
//
// The scopes provide access to:
//   - Google Calendar events: create, update, delete
//   - Google Calendar: read-only listing of the user's calendars
//   - Google Calendar: full access, needed to create the dedicated calendar
var DefaultOAuthScopes = []string{
	calendar.CalendarReadonlyScope,
	calendar.CalendarEventsScope,
	calendar.CalendarScope,
}
