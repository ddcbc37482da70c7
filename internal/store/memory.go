package store

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/breezapp/breez/internal/logging"
)

// MemoryStore is an in-memory Store. It is safe for concurrent use and
// returns copies, never its own records.
type MemoryStore struct {
	mu           sync.RWMutex
	integrations map[string]*Integration // id -> integration
	byOwner      map[string]string       // user|provider -> id
	tasks        map[string]*Task
	now          func() time.Time
	logger       *slog.Logger
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		integrations: make(map[string]*Integration),
		byOwner:      make(map[string]string),
		tasks:        make(map[string]*Task),
		now:          func() time.Time { return time.Now().UTC() },
		logger:       slog.Default(),
	}
}

// SetLogger sets a custom logger for the store.
func (s *MemoryStore) SetLogger(logger *slog.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger = logger
}

func ownerKey(userID, provider string) string {
	return userID + "|" + provider
}

// GetIntegration implements IntegrationStore.
func (s *MemoryStore) GetIntegration(_ context.Context, userID, provider string) (*Integration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byOwner[ownerKey(userID, provider)]
	if !ok {
		return nil, ErrNotFound
	}
	return s.integrations[id].Clone(), nil
}

// GetIntegrationByID implements IntegrationStore.
func (s *MemoryStore) GetIntegrationByID(_ context.Context, id string) (*Integration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	in, ok := s.integrations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return in.Clone(), nil
}

// LinkIntegration implements IntegrationStore.
func (s *MemoryStore) LinkIntegration(_ context.Context, in *Integration) (*Integration, error) {
	if in.UserID == "" || in.Provider == "" {
		return nil, fmt.Errorf("integration user id and provider cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if id, ok := s.byOwner[ownerKey(in.UserID, in.Provider)]; ok {
		existing := s.integrations[id]
		existing.AccessToken = in.AccessToken
		existing.ExpiresAt = in.ExpiresAt.UTC()
		if in.RefreshToken != "" {
			existing.RefreshToken = in.RefreshToken
		}
		existing.Settings = existing.Settings.Merge(in.Settings)
		existing.UpdatedAt = now

		s.logger.Debug("Relinked integration", logging.UserHash(in.UserID), logging.IntegrationID(id))
		return existing.Clone(), nil
	}

	stored := in.Clone()
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	stored.ExpiresAt = stored.ExpiresAt.UTC()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	s.integrations[stored.ID] = stored
	s.byOwner[ownerKey(stored.UserID, stored.Provider)] = stored.ID

	s.logger.Debug("Linked integration", logging.UserHash(in.UserID), logging.IntegrationID(stored.ID))
	return stored.Clone(), nil
}

// UpdateToken implements IntegrationStore.
func (s *MemoryStore) UpdateToken(_ context.Context, id, accessToken string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	in, ok := s.integrations[id]
	if !ok {
		return ErrNotFound
	}
	in.AccessToken = accessToken
	in.ExpiresAt = expiresAt.UTC()
	in.UpdatedAt = s.now()
	return nil
}

// UpdateTokenIfExpiresBefore implements IntegrationStore.
func (s *MemoryStore) UpdateTokenIfExpiresBefore(_ context.Context, id, accessToken string, expiresAt, before time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	in, ok := s.integrations[id]
	if !ok {
		return false, ErrNotFound
	}
	if !in.ExpiresAt.Before(before) {
		return false, nil
	}
	in.AccessToken = accessToken
	in.ExpiresAt = expiresAt.UTC()
	in.UpdatedAt = s.now()
	return true, nil
}

// UpdateSettings implements IntegrationStore.
func (s *MemoryStore) UpdateSettings(_ context.Context, id string, patch Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	in, ok := s.integrations[id]
	if !ok {
		return ErrNotFound
	}
	in.Settings = in.Settings.Merge(patch)
	in.UpdatedAt = s.now()
	return nil
}

// DeleteIntegration implements IntegrationStore.
func (s *MemoryStore) DeleteIntegration(_ context.Context, userID, provider string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := ownerKey(userID, provider)
	id, ok := s.byOwner[key]
	if !ok {
		return ErrNotFound
	}
	delete(s.byOwner, key)
	delete(s.integrations, id)
	return nil
}

// CreateTask implements TaskStore.
func (s *MemoryStore) CreateTask(_ context.Context, task *Task) (*Task, error) {
	if err := task.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := task.Clone()
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if _, exists := s.tasks[stored.ID]; exists {
		return nil, fmt.Errorf("task %s already exists", stored.ID)
	}
	stored.applyDefaults()
	stored.CreatedAt = s.now()
	stored.UpdatedAt = stored.CreatedAt
	s.tasks[stored.ID] = stored
	return stored.Clone(), nil
}

// GetTask implements TaskStore.
func (s *MemoryStore) GetTask(_ context.Context, id string) (*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return t.Clone(), nil
}

// UpdateTask implements TaskStore.
func (s *MemoryStore) UpdateTask(_ context.Context, task *Task) (*Task, error) {
	if err := task.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.tasks[task.ID]
	if !ok {
		return nil, ErrNotFound
	}
	existing.Title = task.Title
	existing.Description = task.Description
	existing.Status = task.Status
	existing.Priority = task.Priority
	existing.DueDate = task.DueDate
	existing.StartTime = task.StartTime
	existing.EndTime = task.EndTime
	existing.applyDefaults()
	existing.UpdatedAt = s.now()
	return existing.Clone(), nil
}

// DeleteTask implements TaskStore.
func (s *MemoryStore) DeleteTask(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[id]; !ok {
		return ErrNotFound
	}
	delete(s.tasks, id)
	return nil
}

// ListTasks implements TaskStore. Tasks are ordered by creation time.
func (s *MemoryStore) ListTasks(_ context.Context, userID string) ([]*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Task
	for _, t := range s.tasks {
		if t.UserID == userID {
			out = append(out, t.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// SetCalendarEventID implements TaskStore.
func (s *MemoryStore) SetCalendarEventID(_ context.Context, taskID, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[taskID]
	if !ok {
		return ErrNotFound
	}
	t.CalendarEventID = eventID
	t.UpdatedAt = s.now()
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	return nil
}
