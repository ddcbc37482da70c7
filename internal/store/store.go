package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// IntegrationStore persists integration records.
type IntegrationStore interface {
	// GetIntegration returns the integration of userID for provider, or ErrNotFound.
	GetIntegration(ctx context.Context, userID, provider string) (*Integration, error)

	// GetIntegrationByID returns the integration with the given id, or ErrNotFound.
	GetIntegrationByID(ctx context.Context, id string) (*Integration, error)

	// LinkIntegration inserts or relinks the integration keyed by
	// (UserID, Provider). On relink the tokens and expiry are replaced, the
	// refresh token only when in carries one, and settings are merged.
	LinkIntegration(ctx context.Context, in *Integration) (*Integration, error)

	// UpdateToken replaces only the access token and expiry.
	UpdateToken(ctx context.Context, id, accessToken string, expiresAt time.Time) error

	// UpdateTokenIfExpiresBefore replaces the access token and expiry only if
	// the stored expiry is before the given time. It reports whether a write
	// happened.
	UpdateTokenIfExpiresBefore(ctx context.Context, id, accessToken string, expiresAt, before time.Time) (bool, error)

	// UpdateSettings merges patch into the stored settings.
	UpdateSettings(ctx context.Context, id string, patch Settings) error

	// DeleteIntegration removes the integration of userID for provider.
	DeleteIntegration(ctx context.Context, userID, provider string) error
}

// TaskStore persists tasks.
type TaskStore interface {
	CreateTask(ctx context.Context, task *Task) (*Task, error)
	GetTask(ctx context.Context, id string) (*Task, error)

	// UpdateTask writes the user editable fields of task. The calendar
	// linkage is only changed through SetCalendarEventID.
	UpdateTask(ctx context.Context, task *Task) (*Task, error)
	DeleteTask(ctx context.Context, id string) error
	ListTasks(ctx context.Context, userID string) ([]*Task, error)

	// SetCalendarEventID records the remote event linkage. "" clears it.
	SetCalendarEventID(ctx context.Context, taskID, eventID string) error
}

// Store combines both stores.
type Store interface {
	IntegrationStore
	TaskStore
	Close() error
}

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// New opens the store for backend. dsn and opts are ignored for the memory
// backend.
func New(backend, dsn string, logger *slog.Logger, opts ...SQLOption) (Store, error) {
	switch backend {
	case BackendMemory:
		s := NewMemoryStore()
		if logger != nil {
			s.SetLogger(logger)
		}
		return s, nil
	case BackendSQLite, BackendPostgres:
		return OpenSQL(backend, dsn, logger, opts...)
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", backend)
	}
}
