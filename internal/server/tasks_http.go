package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/breezapp/breez/internal/logging"
	"github.com/breezapp/breez/internal/store"
	"github.com/breezapp/breez/internal/tasksync"
)

const maxTaskBody = 1 << 16

// taskResponse is returned by task mutations: the saved task plus the
// calendar sync outcome.
type taskResponse struct {
	Task *store.Task     `json:"task"`
	Sync tasksync.Result `json:"sync"`
}

// createTaskRequest is the POST /tasks body.
type createTaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
	Priority    string `json:"priority"`
	DueDate     string `json:"dueDate"`
	StartTime   string `json:"startTime"`
	EndTime     string `json:"endTime"`
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserFromContext(r.Context())

	tasks, err := s.tasks.ListTasks(r.Context(), userID)
	if err != nil {
		s.logger.Error("Failed to list tasks", logging.UserHash(userID), logging.Err(err))
		s.writeError(w, "server_error", "failed to list tasks", http.StatusInternalServerError)
		return
	}
	if tasks == nil {
		tasks = []*store.Task{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserFromContext(r.Context())

	task, err := s.tasks.GetTask(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		s.writeTaskError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"task": task})
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserFromContext(r.Context())

	var req createTaskRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxTaskBody)).Decode(&req); err != nil {
		s.writeError(w, "invalid_request", "request body must be JSON", http.StatusBadRequest)
		return
	}

	task := &store.Task{
		UserID:      userID,
		Title:       req.Title,
		Description: req.Description,
		Status:      store.TaskStatus(req.Status),
		Priority:    store.Priority(req.Priority),
		DueDate:     req.DueDate,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
	}
	if err := task.Validate(); err != nil {
		s.writeError(w, "invalid_request", err.Error(), http.StatusBadRequest)
		return
	}

	created, res, err := s.tasks.CreateTask(r.Context(), task)
	if err != nil {
		s.writeTaskError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, taskResponse{Task: created, Sync: res})
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, _ := UserFromContext(ctx)

	var patch tasksync.Patch
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxTaskBody)).Decode(&patch); err != nil {
		s.writeError(w, "invalid_request", "request body must be JSON", http.StatusBadRequest)
		return
	}

	current, err := s.tasks.GetTask(ctx, userID, r.PathValue("id"))
	if err != nil {
		s.writeTaskError(w, err)
		return
	}
	task := patch.Apply(current)
	if err := task.Validate(); err != nil {
		s.writeError(w, "invalid_request", err.Error(), http.StatusBadRequest)
		return
	}

	updated, res, err := s.tasks.UpdateTask(ctx, task)
	if err != nil {
		s.writeTaskError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, taskResponse{Task: updated, Sync: res})
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserFromContext(r.Context())

	res, err := s.tasks.DeleteTask(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		s.writeTaskError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"success": true, "sync": res})
}

func (s *Server) writeTaskError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, "not_found", "task not found", http.StatusNotFound)
		return
	}
	s.logger.Error("Task request failed", logging.Err(err))
	s.writeError(w, "server_error", "task request failed", http.StatusInternalServerError)
}
