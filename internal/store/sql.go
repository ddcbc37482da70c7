package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	driver "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/breezapp/breez/internal/logging"
)

// SQLStore is a Store backed by GORM over SQLite or PostgreSQL.
type SQLStore struct {
	db     *gorm.DB
	cipher *TokenCipher
	logger *slog.Logger
}

// SQLOption configures a SQLStore.
type SQLOption func(*SQLStore)

// WithTokenCipher encrypts access and refresh tokens at rest.
func WithTokenCipher(c *TokenCipher) SQLOption {
	return func(s *SQLStore) {
		s.cipher = c
	}
}

var _ Store = (*SQLStore)(nil)

// OpenSQL opens a SQLStore and migrates its schema. backend is BackendSQLite
// (dsn is a file path or ":memory:") or BackendPostgres (dsn is a libpq
// connection string or URL).
func OpenSQL(backend, dsn string, logger *slog.Logger, opts ...SQLOption) (*SQLStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dsn == "" {
		return nil, fmt.Errorf("database dsn cannot be empty")
	}

	var dialector gorm.Dialector
	switch backend {
	case BackendSQLite:
		dialector = driver.Open(dsn)
	case BackendPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported sql backend %q", backend)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:  logging.NewGormAdapter(logger),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", backend, err)
	}

	if backend == BackendSQLite {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to access sqlite pool: %w", err)
		}
		// SQLite allows one writer; a single connection also keeps a
		// ":memory:" database alive and shared.
		sqlDB.SetMaxOpenConns(1)
	}

	s := &SQLStore{db: db, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.AutoMigrate(context.Background()); err != nil {
		_ = s.Close()
		return nil, err
	}

	logger.Debug("Opened database", slog.String("backend", backend), slog.Bool("token_encryption", s.cipher != nil))
	return s, nil
}

// AutoMigrate creates or updates the schema.
func (s *SQLStore) AutoMigrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&integrationRow{}, &taskRow{}); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks database connectivity.
func (s *SQLStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// openRow decrypts the row's tokens.
func (s *SQLStore) openRow(row *integrationRow) (*Integration, error) {
	in := row.toIntegration()
	var err error
	if in.AccessToken, err = s.cipher.Open(row.AccessToken); err != nil {
		return nil, fmt.Errorf("integration %s: %w", row.ID, err)
	}
	if in.RefreshToken, err = s.cipher.Open(row.RefreshToken); err != nil {
		return nil, fmt.Errorf("integration %s: %w", row.ID, err)
	}
	return in, nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// GetIntegration implements IntegrationStore.
func (s *SQLStore) GetIntegration(ctx context.Context, userID, provider string) (*Integration, error) {
	var row integrationRow
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND provider = ?", userID, provider).
		First(&row).Error
	if err != nil {
		return nil, notFound(err)
	}
	return s.openRow(&row)
}

// GetIntegrationByID implements IntegrationStore.
func (s *SQLStore) GetIntegrationByID(ctx context.Context, id string) (*Integration, error) {
	var row integrationRow
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, notFound(err)
	}
	return s.openRow(&row)
}

// LinkIntegration implements IntegrationStore. The insert is an
// ON CONFLICT DO NOTHING on (user_id, provider); a conflicting row is then
// merged under a row lock.
func (s *SQLStore) LinkIntegration(ctx context.Context, in *Integration) (*Integration, error) {
	if in.UserID == "" || in.Provider == "" {
		return nil, fmt.Errorf("integration user id and provider cannot be empty")
	}

	accessToken, err := s.cipher.Seal(in.AccessToken)
	if err != nil {
		return nil, err
	}
	refreshToken, err := s.cipher.Seal(in.RefreshToken)
	if err != nil {
		return nil, err
	}

	var linked *Integration
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := integrationRowFrom(in)
		row.AccessToken = accessToken
		row.RefreshToken = refreshToken
		if row.ID == "" {
			row.ID = uuid.NewString()
		}
		if row.Settings == nil {
			row.Settings = Settings{}
		}

		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "provider"}},
			DoNothing: true,
		}).Create(&row)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 1 {
			var err error
			linked, err = s.openRow(&row)
			return err
		}

		var existing integrationRow
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND provider = ?", in.UserID, in.Provider).
			First(&existing).Error; err != nil {
			return err
		}

		existing.AccessToken = accessToken
		existing.ExpiresAt = in.ExpiresAt.UTC()
		if refreshToken != "" {
			existing.RefreshToken = refreshToken
		}
		existing.Settings = existing.Settings.Merge(in.Settings)

		if err := tx.Model(&integrationRow{}).Where("id = ?", existing.ID).Updates(map[string]any{
			"access_token":  existing.AccessToken,
			"refresh_token": existing.RefreshToken,
			"expires_at":    existing.ExpiresAt,
			"settings":      existing.Settings,
			"updated_at":    s.db.NowFunc(),
		}).Error; err != nil {
			return err
		}

		existing.UpdatedAt = s.db.NowFunc()
		var err error
		linked, err = s.openRow(&existing)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to link integration: %w", err)
	}

	s.logger.Debug("Linked integration", logging.UserHash(in.UserID), logging.IntegrationID(linked.ID))
	return linked, nil
}

// UpdateToken implements IntegrationStore.
func (s *SQLStore) UpdateToken(ctx context.Context, id, accessToken string, expiresAt time.Time) error {
	sealed, err := s.cipher.Seal(accessToken)
	if err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Model(&integrationRow{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"access_token": sealed,
			"expires_at":   expiresAt.UTC(),
			"updated_at":   s.db.NowFunc(),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update token: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateTokenIfExpiresBefore implements IntegrationStore.
func (s *SQLStore) UpdateTokenIfExpiresBefore(ctx context.Context, id, accessToken string, expiresAt, before time.Time) (bool, error) {
	sealed, err := s.cipher.Seal(accessToken)
	if err != nil {
		return false, err
	}
	res := s.db.WithContext(ctx).Model(&integrationRow{}).
		Where("id = ? AND expires_at < ?", id, before.UTC()).
		Updates(map[string]any{
			"access_token": sealed,
			"expires_at":   expiresAt.UTC(),
			"updated_at":   s.db.NowFunc(),
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to update token: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return true, nil
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&integrationRow{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, err
	}
	if count == 0 {
		return false, ErrNotFound
	}
	return false, nil
}

// UpdateSettings implements IntegrationStore.
func (s *SQLStore) UpdateSettings(ctx context.Context, id string, patch Settings) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row integrationRow
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&row).Error; err != nil {
			return notFound(err)
		}
		return tx.Model(&integrationRow{}).Where("id = ?", id).Updates(map[string]any{
			"settings":   row.Settings.Merge(patch),
			"updated_at": s.db.NowFunc(),
		}).Error
	})
}

// DeleteIntegration implements IntegrationStore.
func (s *SQLStore) DeleteIntegration(ctx context.Context, userID, provider string) error {
	res := s.db.WithContext(ctx).
		Where("user_id = ? AND provider = ?", userID, provider).
		Delete(&integrationRow{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete integration: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateTask implements TaskStore.
func (s *SQLStore) CreateTask(ctx context.Context, task *Task) (*Task, error) {
	if err := task.Validate(); err != nil {
		return nil, err
	}

	t := task.Clone()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.applyDefaults()

	row := taskRowFrom(t)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}
	return row.toTask(), nil
}

// GetTask implements TaskStore.
func (s *SQLStore) GetTask(ctx context.Context, id string) (*Task, error) {
	var row taskRow
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, notFound(err)
	}
	return row.toTask(), nil
}

// UpdateTask implements TaskStore.
func (s *SQLStore) UpdateTask(ctx context.Context, task *Task) (*Task, error) {
	if err := task.Validate(); err != nil {
		return nil, err
	}

	t := task.Clone()
	t.applyDefaults()

	// A map keeps zero values (cleared description, due date) in the UPDATE.
	res := s.db.WithContext(ctx).Model(&taskRow{}).Where("id = ?", t.ID).Updates(map[string]any{
		"title":       t.Title,
		"description": t.Description,
		"status":      string(t.Status),
		"priority":    string(t.Priority),
		"due_date":    t.DueDate,
		"start_time":  t.StartTime,
		"end_time":    t.EndTime,
		"updated_at":  s.db.NowFunc(),
	})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to update task: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return s.GetTask(ctx, t.ID)
}

// DeleteTask implements TaskStore.
func (s *SQLStore) DeleteTask(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&taskRow{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete task: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListTasks implements TaskStore. Tasks are ordered by creation time.
func (s *SQLStore) ListTasks(ctx context.Context, userID string) ([]*Task, error) {
	var rows []taskRow
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	out := make([]*Task, len(rows))
	for i := range rows {
		out[i] = rows[i].toTask()
	}
	return out, nil
}

// SetCalendarEventID implements TaskStore.
func (s *SQLStore) SetCalendarEventID(ctx context.Context, taskID, eventID string) error {
	res := s.db.WithContext(ctx).Model(&taskRow{}).Where("id = ?", taskID).Updates(map[string]any{
		"calendar_event_id": eventID,
		"updated_at":        s.db.NowFunc(),
	})
	if res.Error != nil {
		return fmt.Errorf("failed to set calendar event id: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
