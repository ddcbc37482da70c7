package store

import "time"

// integrationRow is the GORM model of an Integration.
type integrationRow struct {
	ID           string    `gorm:"primaryKey;size:36"`
	UserID       string    `gorm:"not null;uniqueIndex:idx_integrations_owner"`
	Provider     string    `gorm:"not null;uniqueIndex:idx_integrations_owner"`
	AccessToken  string    `gorm:"not null"`
	RefreshToken string
	ExpiresAt    time.Time `gorm:"not null"`
	Settings     Settings
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (integrationRow) TableName() string {
	return "integrations"
}

func integrationRowFrom(in *Integration) integrationRow {
	return integrationRow{
		ID:           in.ID,
		UserID:       in.UserID,
		Provider:     in.Provider,
		AccessToken:  in.AccessToken,
		RefreshToken: in.RefreshToken,
		ExpiresAt:    in.ExpiresAt.UTC(),
		Settings:     in.Settings,
		CreatedAt:    in.CreatedAt,
		UpdatedAt:    in.UpdatedAt,
	}
}

func (r *integrationRow) toIntegration() *Integration {
	settings := r.Settings
	if settings == nil {
		settings = Settings{}
	}
	return &Integration{
		ID:           r.ID,
		UserID:       r.UserID,
		Provider:     r.Provider,
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		ExpiresAt:    r.ExpiresAt.UTC(),
		Settings:     settings,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

// taskRow is the GORM model of a Task.
type taskRow struct {
	ID              string    `gorm:"primaryKey;size:36"`
	UserID          string    `gorm:"not null;index"`
	Title           string    `gorm:"not null"`
	Description     string
	Status          string    `gorm:"not null;size:16"`
	Priority        string    `gorm:"not null;size:16"`
	DueDate         string    `gorm:"size:10"`
	StartTime       string    `gorm:"size:5"`
	EndTime         string    `gorm:"size:5"`
	CalendarEventID string    `gorm:"size:1024"`
	CreatedAt       time.Time `gorm:"index"`
	UpdatedAt       time.Time
}

func (taskRow) TableName() string {
	return "tasks"
}

func taskRowFrom(t *Task) taskRow {
	return taskRow{
		ID:              t.ID,
		UserID:          t.UserID,
		Title:           t.Title,
		Description:     t.Description,
		Status:          string(t.Status),
		Priority:        string(t.Priority),
		DueDate:         t.DueDate,
		StartTime:       t.StartTime,
		EndTime:         t.EndTime,
		CalendarEventID: t.CalendarEventID,
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
	}
}

func (r *taskRow) toTask() *Task {
	return &Task{
		ID:              r.ID,
		UserID:          r.UserID,
		Title:           r.Title,
		Description:     r.Description,
		Status:          TaskStatus(r.Status),
		Priority:        Priority(r.Priority),
		DueDate:         r.DueDate,
		StartTime:       r.StartTime,
		EndTime:         r.EndTime,
		CalendarEventID: r.CalendarEventID,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}
