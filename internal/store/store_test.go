package store

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeFactories runs every contract test against each backend.
func storeFactories(t *testing.T) map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store {
			return NewMemoryStore()
		},
		"sqlite": func(t *testing.T) Store {
			s, err := OpenSQL(BackendSQLite, filepath.Join(t.TempDir(), "breez.db"), nil)
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
		"sqlite-encrypted": func(t *testing.T) Store {
			c, err := NewTokenCipher(testKey(7))
			require.NoError(t, err)
			s, err := OpenSQL(BackendSQLite, filepath.Join(t.TempDir(), "breez.db"), nil, WithTokenCipher(c))
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

func forEachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			fn(t, factory(t))
		})
	}
}

func newIntegration(userID string, expiresAt time.Time) *Integration {
	return &Integration{
		UserID:       userID,
		Provider:     ProviderGoogleCalendar,
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ExpiresAt:    expiresAt,
		Settings:     Settings{SettingCalendarID: "cal-1"},
	}
}

func TestLinkIntegration_InsertAndGet(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		expires := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

		linked, err := s.LinkIntegration(ctx, newIntegration("user-1", expires))
		require.NoError(t, err)
		assert.NotEmpty(t, linked.ID)
		assert.Equal(t, "cal-1", linked.CalendarID())

		got, err := s.GetIntegration(ctx, "user-1", ProviderGoogleCalendar)
		require.NoError(t, err)
		assert.Equal(t, linked.ID, got.ID)
		assert.Equal(t, "access-1", got.AccessToken)
		assert.Equal(t, "refresh-1", got.RefreshToken)
		assert.True(t, expires.Equal(got.ExpiresAt), "expiry round trip: %v", got.ExpiresAt)

		byID, err := s.GetIntegrationByID(ctx, linked.ID)
		require.NoError(t, err)
		assert.Equal(t, "user-1", byID.UserID)

		_, err = s.GetIntegration(ctx, "user-2", ProviderGoogleCalendar)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestLinkIntegration_RelinkMergeRule(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		first, err := s.LinkIntegration(ctx, newIntegration("user-1", time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)))
		require.NoError(t, err)
		require.NoError(t, s.UpdateSettings(ctx, first.ID, Settings{"color": "blue"}))

		// Re-consent without a refresh token and with a new calendar id.
		relinked, err := s.LinkIntegration(ctx, &Integration{
			UserID:      "user-1",
			Provider:    ProviderGoogleCalendar,
			AccessToken: "access-2",
			ExpiresAt:   time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
			Settings:    Settings{SettingCalendarID: "cal-2"},
		})
		require.NoError(t, err)

		assert.Equal(t, first.ID, relinked.ID, "relink keeps the record")
		assert.Equal(t, "access-2", relinked.AccessToken)
		assert.Equal(t, "refresh-1", relinked.RefreshToken, "empty refresh token must not erase the stored one")
		assert.Equal(t, "cal-2", relinked.CalendarID())
		assert.Equal(t, "blue", relinked.Settings["color"], "settings are merged")

		got, err := s.GetIntegration(ctx, "user-1", ProviderGoogleCalendar)
		require.NoError(t, err)
		assert.Equal(t, relinked.AccessToken, got.AccessToken)
		assert.Equal(t, "refresh-1", got.RefreshToken)
		assert.Equal(t, "blue", got.Settings["color"])
	})
}

func TestLinkIntegration_Validation(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		_, err := s.LinkIntegration(context.Background(), &Integration{Provider: ProviderGoogleCalendar})
		assert.Error(t, err)
	})
}

func TestUpdateToken_IsTargeted(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		linked, err := s.LinkIntegration(ctx, newIntegration("user-1", time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)))
		require.NoError(t, err)

		newExpiry := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
		require.NoError(t, s.UpdateToken(ctx, linked.ID, "access-2", newExpiry))

		got, err := s.GetIntegrationByID(ctx, linked.ID)
		require.NoError(t, err)
		assert.Equal(t, "access-2", got.AccessToken)
		assert.True(t, newExpiry.Equal(got.ExpiresAt))
		assert.Equal(t, "refresh-1", got.RefreshToken)
		assert.Equal(t, "cal-1", got.CalendarID())

		assert.ErrorIs(t, s.UpdateToken(ctx, "missing", "x", newExpiry), ErrNotFound)
	})
}

func TestUpdateTokenIfExpiresBefore(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		stored := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
		linked, err := s.LinkIntegration(ctx, newIntegration("user-1", stored))
		require.NoError(t, err)

		later := stored.Add(time.Hour)
		updated, err := s.UpdateTokenIfExpiresBefore(ctx, linked.ID, "access-2", later, later)
		require.NoError(t, err)
		assert.True(t, updated)

		// A stale refresh result with an earlier expiry must not win.
		stale := stored.Add(30 * time.Minute)
		updated, err = s.UpdateTokenIfExpiresBefore(ctx, linked.ID, "access-stale", stale, stale)
		require.NoError(t, err)
		assert.False(t, updated)

		got, err := s.GetIntegrationByID(ctx, linked.ID)
		require.NoError(t, err)
		assert.Equal(t, "access-2", got.AccessToken)
		assert.True(t, later.Equal(got.ExpiresAt))

		_, err = s.UpdateTokenIfExpiresBefore(ctx, "missing", "x", later, later)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestDeleteIntegration(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		_, err := s.LinkIntegration(ctx, newIntegration("user-1", time.Now()))
		require.NoError(t, err)

		require.NoError(t, s.DeleteIntegration(ctx, "user-1", ProviderGoogleCalendar))
		_, err = s.GetIntegration(ctx, "user-1", ProviderGoogleCalendar)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, s.DeleteIntegration(ctx, "user-1", ProviderGoogleCalendar), ErrNotFound)
	})
}

func TestTaskLifecycle(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		created, err := s.CreateTask(ctx, &Task{UserID: "user-1", Title: "Write report", DueDate: "2026-03-01"})
		require.NoError(t, err)
		assert.NotEmpty(t, created.ID)
		assert.Equal(t, StatusTodo, created.Status)
		assert.Equal(t, PriorityMedium, created.Priority)

		require.NoError(t, s.SetCalendarEventID(ctx, created.ID, "evt-1"))

		created.Title = "Write final report"
		created.DueDate = ""
		created.CalendarEventID = "" // linkage is not part of a task update
		updated, err := s.UpdateTask(ctx, created)
		require.NoError(t, err)
		assert.Equal(t, "Write final report", updated.Title)
		assert.Empty(t, updated.DueDate)
		assert.Equal(t, "evt-1", updated.CalendarEventID)

		require.NoError(t, s.SetCalendarEventID(ctx, created.ID, ""))
		got, err := s.GetTask(ctx, created.ID)
		require.NoError(t, err)
		assert.Empty(t, got.CalendarEventID)

		require.NoError(t, s.DeleteTask(ctx, created.ID))
		_, err = s.GetTask(ctx, created.ID)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, s.DeleteTask(ctx, created.ID), ErrNotFound)
		assert.ErrorIs(t, s.SetCalendarEventID(ctx, created.ID, "evt-2"), ErrNotFound)

		_, err = s.UpdateTask(ctx, created)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestListTasks(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		for _, title := range []string{"a", "b"} {
			_, err := s.CreateTask(ctx, &Task{UserID: "user-1", Title: title})
			require.NoError(t, err)
		}
		_, err := s.CreateTask(ctx, &Task{UserID: "user-2", Title: "c"})
		require.NoError(t, err)

		tasks, err := s.ListTasks(ctx, "user-1")
		require.NoError(t, err)
		assert.Len(t, tasks, 2)
		for _, task := range tasks {
			assert.Equal(t, "user-1", task.UserID)
		}
	})
}

func TestCreateTask_Validation(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		tests := []struct {
			name string
			task Task
		}{
			{"missing title", Task{UserID: "user-1"}},
			{"missing user", Task{Title: "x"}},
			{"bad due date", Task{UserID: "user-1", Title: "x", DueDate: "01/03/2026"}},
			{"bad start time", Task{UserID: "user-1", Title: "x", StartTime: "9am"}},
			{"impossible due date", Task{UserID: "user-1", Title: "x", DueDate: "2024-02-30"}},
			{"month out of range", Task{UserID: "user-1", Title: "x", DueDate: "2024-13-01"}},
			{"impossible start time", Task{UserID: "user-1", Title: "x", DueDate: "2024-06-01", StartTime: "25:99"}},
			{"impossible end time", Task{UserID: "user-1", Title: "x", DueDate: "2024-06-01", StartTime: "09:00", EndTime: "09:60"}},
			{"bad status", Task{UserID: "user-1", Title: "x", Status: "blocked"}},
			{"bad priority", Task{UserID: "user-1", Title: "x", Priority: "urgent"}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := s.CreateTask(ctx, &tt.task)
				assert.Error(t, err)
			})
		}
	})
}

func TestTaskValidate_AcceptsRealDates(t *testing.T) {
	valid := []Task{
		{UserID: "user-1", Title: "leap day", DueDate: "2024-02-29"},
		{UserID: "user-1", Title: "midnight", DueDate: "2024-06-01", StartTime: "00:00", EndTime: "23:59"},
	}
	for _, task := range valid {
		assert.NoError(t, task.Validate(), task.Title)
	}
	assert.Error(t, (&Task{UserID: "user-1", Title: "x", DueDate: "2023-02-29"}).Validate(), "not a leap year")
}

func TestMemoryStore_ConcurrentTokenUpdates(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	linked, err := s.LinkIntegration(ctx, newIntegration("user-1", base))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 1; i <= 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			exp := base.Add(time.Duration(i) * time.Minute)
			_, _ = s.UpdateTokenIfExpiresBefore(ctx, linked.ID, "access", exp, exp)
		}(i)
	}
	wg.Wait()

	got, err := s.GetIntegrationByID(ctx, linked.ID)
	require.NoError(t, err)
	assert.True(t, base.Add(20*time.Minute).Equal(got.ExpiresAt), "latest expiry wins regardless of order")
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	linked, err := s.LinkIntegration(ctx, newIntegration("user-1", time.Now()))
	require.NoError(t, err)

	linked.Settings[SettingCalendarID] = "mutated"
	got, err := s.GetIntegrationByID(ctx, linked.ID)
	require.NoError(t, err)
	assert.Equal(t, "cal-1", got.CalendarID())
}

func TestNew(t *testing.T) {
	s, err := New(BackendMemory, "", nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	_, err = New("mongo", "", nil)
	assert.Error(t, err)

	_, err = New(BackendSQLite, "", nil)
	assert.Error(t, err)
}

func TestSettings_Scan(t *testing.T) {
	var s Settings
	require.NoError(t, s.Scan(`{"calendarId":"cal-9"}`))
	assert.Equal(t, "cal-9", s.CalendarID())

	require.NoError(t, s.Scan(nil))
	assert.Empty(t, s)

	assert.Error(t, s.Scan(42))
}

func TestSQLStore_EncryptsTokensAtRest(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "breez.db")
	c, err := NewTokenCipher(testKey(9))
	require.NoError(t, err)

	s, err := OpenSQL(BackendSQLite, path, nil, WithTokenCipher(c))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	linked, err := s.LinkIntegration(ctx, newIntegration("user-1", time.Now().Add(time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, "access-1", linked.AccessToken)
	require.NoError(t, s.UpdateToken(ctx, linked.ID, "access-2", time.Now().Add(2*time.Hour)))

	var row integrationRow
	require.NoError(t, s.db.Where("id = ?", linked.ID).First(&row).Error)
	assert.True(t, strings.HasPrefix(row.AccessToken, sealedPrefix))
	assert.True(t, strings.HasPrefix(row.RefreshToken, sealedPrefix))
	assert.NotContains(t, row.AccessToken, "access-2")

	got, err := s.GetIntegrationByID(ctx, linked.ID)
	require.NoError(t, err)
	assert.Equal(t, "access-2", got.AccessToken)
	assert.Equal(t, "refresh-1", got.RefreshToken)

	t.Run("plaintext store cannot read sealed rows", func(t *testing.T) {
		plain := &SQLStore{db: s.db, logger: s.logger}
		_, err := plain.GetIntegrationByID(ctx, linked.ID)
		assert.ErrorContains(t, err, "no encryption key")
	})
}

func TestSQLStore_ReadsPlaintextRowsWithCipher(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "breez.db")

	plain, err := OpenSQL(BackendSQLite, path, nil)
	require.NoError(t, err)
	linked, err := plain.LinkIntegration(ctx, newIntegration("user-1", time.Now().Add(time.Hour)))
	require.NoError(t, err)

	c, err := NewTokenCipher(testKey(9))
	require.NoError(t, err)
	encrypted := &SQLStore{db: plain.db, cipher: c, logger: plain.logger}
	t.Cleanup(func() { _ = plain.Close() })

	got, err := encrypted.GetIntegrationByID(ctx, linked.ID)
	require.NoError(t, err)
	assert.Equal(t, "access-1", got.AccessToken)
	assert.Equal(t, "refresh-1", got.RefreshToken)
}
