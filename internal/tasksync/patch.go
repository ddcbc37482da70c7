package tasksync

import "github.com/breezapp/breez/internal/store"

// Patch is a partial task update. Nil fields are left unchanged; an empty
// string clears an optional field.
type Patch struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Status      *string `json:"status,omitempty"`
	Priority    *string `json:"priority,omitempty"`
	DueDate     *string `json:"dueDate,omitempty"`
	StartTime   *string `json:"startTime,omitempty"`
	EndTime     *string `json:"endTime,omitempty"`
}

// Apply returns a copy of task with the patch applied.
func (p Patch) Apply(task *store.Task) *store.Task {
	t := task.Clone()
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Status != nil {
		t.Status = store.TaskStatus(*p.Status)
	}
	if p.Priority != nil {
		t.Priority = store.Priority(*p.Priority)
	}
	if p.DueDate != nil {
		t.DueDate = *p.DueDate
	}
	if p.StartTime != nil {
		t.StartTime = *p.StartTime
	}
	if p.EndTime != nil {
		t.EndTime = *p.EndTime
	}
	return t
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Status == nil && p.Priority == nil &&
		p.DueDate == nil && p.StartTime == nil && p.EndTime == nil
}
