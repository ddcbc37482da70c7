package tasksync

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/breezapp/breez/internal/logging"
	"github.com/breezapp/breez/internal/store"
)

// Service commits task mutations and then syncs them to the calendar.
// Only a failed task write is returned as an error; calendar failures are
// reported in the Result.
type Service struct {
	tasks  store.TaskStore
	sync   *Orchestrator
	logger *slog.Logger
}

// NewService creates a Service.
func NewService(tasks store.TaskStore, sync *Orchestrator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		tasks:  tasks,
		sync:   sync,
		logger: logging.WithOperation(logger, "tasks"),
	}
}

// SyncEnabled reports whether task mutations are mirrored to the calendar.
func (s *Service) SyncEnabled() bool {
	return s.sync.Enabled()
}

// CreateTask stores task for its owner and creates the calendar event.
func (s *Service) CreateTask(ctx context.Context, task *store.Task) (*store.Task, Result, error) {
	if task.UserID == "" {
		return nil, Result{}, fmt.Errorf("task owner cannot be empty")
	}
	t := task.Clone()
	t.ID = ""
	t.CalendarEventID = ""

	created, err := s.tasks.CreateTask(ctx, t)
	if err != nil {
		return nil, Result{}, fmt.Errorf("failed to create task: %w", err)
	}
	s.logger.Debug("Created task", logging.TaskID(created.ID), logging.UserHash(created.UserID))

	res := s.sync.Sync(ctx, ActionCreate, created)
	return created, res, nil
}

// UpdateTask writes task's editable fields and updates, creates or removes
// the calendar event to match. The task must belong to task.UserID.
func (s *Service) UpdateTask(ctx context.Context, task *store.Task) (*store.Task, Result, error) {
	if _, err := s.GetTask(ctx, task.UserID, task.ID); err != nil {
		return nil, Result{}, err
	}

	updated, err := s.tasks.UpdateTask(ctx, task)
	if err != nil {
		return nil, Result{}, fmt.Errorf("failed to update task: %w", err)
	}

	res := s.sync.Sync(ctx, ActionUpdate, updated)
	return updated, res, nil
}

// DeleteTask removes the calendar event, then the task. A failed event
// deletion is reported but does not keep the task.
func (s *Service) DeleteTask(ctx context.Context, userID, id string) (Result, error) {
	task, err := s.GetTask(ctx, userID, id)
	if err != nil {
		return Result{}, err
	}

	res := s.sync.Sync(ctx, ActionDelete, task)

	if err := s.tasks.DeleteTask(ctx, id); err != nil {
		return res, fmt.Errorf("failed to delete task: %w", err)
	}
	s.logger.Debug("Deleted task", logging.TaskID(id), logging.UserHash(userID))
	return res, nil
}

// GetTask returns the task if it belongs to userID, otherwise
// store.ErrNotFound.
func (s *Service) GetTask(ctx context.Context, userID, id string) (*store.Task, error) {
	task, err := s.tasks.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if task.UserID != userID {
		return nil, store.ErrNotFound
	}
	return task, nil
}

// ListTasks returns the tasks of userID.
func (s *Service) ListTasks(ctx context.Context, userID string) ([]*store.Task, error) {
	return s.tasks.ListTasks(ctx, userID)
}
