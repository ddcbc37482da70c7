package cmd

import (
	"bytes"
	"context"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breezapp/breez/internal/config"
)

var breezEnv = []string{
	"GOOGLE_CLIENT_ID", "GOOGLE_CLIENT_SECRET",
	"BREEZ_BASE_URL", "BREEZ_HTTP_ADDR", "BREEZ_STATUS_URL", "BREEZ_LOGIN_URL",
	"BREEZ_USER_HEADER", "BREEZ_STORAGE", "BREEZ_DATABASE_URL", "BREEZ_STATE_SECRET",
	"BREEZ_TIME_ZONE", "BREEZ_CALENDAR_NAME", "BREEZ_TOKEN_SKEW", "BREEZ_SYNC_ENABLED",
	"BREEZ_TRANSPORT", "BREEZ_ALLOW_WRITES", "METRICS_ENABLED", "METRICS_ADDR",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range breezEnv {
		t.Setenv(key, "")
	}
}

func TestApplyServeFlags(t *testing.T) {
	base := config.Config{
		HTTPAddr:       ":8080",
		Storage:        "postgres",
		DatabaseURL:    "postgres://env",
		Transport:      config.TransportStreamableHTTP,
		SyncEnabled:    true,
		MetricsEnabled: true,
		TimeZone:       "Europe/Berlin",
	}

	tests := []struct {
		name  string
		args  []string
		check func(t *testing.T, cfg config.Config)
	}{
		{
			name: "unset flags keep environment values",
			args: nil,
			check: func(t *testing.T, cfg config.Config) {
				assert.Equal(t, base, cfg)
			},
		},
		{
			name: "explicit flags win",
			args: []string{"--http-addr=:9999", "--storage=memory", "--transport=stdio", "--allow-writes", "--time-zone=UTC"},
			check: func(t *testing.T, cfg config.Config) {
				assert.Equal(t, ":9999", cfg.HTTPAddr)
				assert.Equal(t, "memory", cfg.Storage)
				assert.Equal(t, config.TransportStdio, cfg.Transport)
				assert.True(t, cfg.AllowWrites)
				assert.Equal(t, "UTC", cfg.TimeZone)
				assert.Equal(t, "postgres://env", cfg.DatabaseURL)
			},
		},
		{
			name: "boolean flags can be switched off",
			args: []string{"--sync-enabled=false", "--metrics-enabled=false"},
			check: func(t *testing.T, cfg config.Config) {
				assert.False(t, cfg.SyncEnabled)
				assert.False(t, cfg.MetricsEnabled)
			},
		},
		{
			name: "credentials",
			args: []string{"--google-client-id=id", "--google-client-secret=secret", "--base-url=https://breez.example.com"},
			check: func(t *testing.T, cfg config.Config) {
				assert.Equal(t, "id", cfg.GoogleClientID)
				assert.Equal(t, "secret", cfg.GoogleClientSecret)
				assert.Equal(t, "https://breez.example.com", cfg.BaseURL)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := &cobra.Command{Use: "serve"}
			var flags serveFlags
			addServeFlags(cmd, &flags)
			require.NoError(t, cmd.ParseFlags(tt.args))

			cfg := base
			applyServeFlags(cmd, flags, &cfg)
			tt.check(t, cfg)
		})
	}
}

func TestRunServe_InvalidConfig(t *testing.T) {
	err := runServe(context.Background(), config.Config{Storage: "memory", TimeZone: "UTC"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
	assert.Contains(t, err.Error(), "GOOGLE_CLIENT_ID is required")
}

func TestGenerateDocs(t *testing.T) {
	markdown, err := generateDocs()
	require.NoError(t, err)

	for _, name := range []string{"task_list", "task_get", "task_create", "task_update", "task_complete", "task_delete", "calendar_status"} {
		assert.Contains(t, markdown, "### "+name+"\n", "missing tool %s", name)
	}
	assert.Contains(t, markdown, "- [Calendar Tools](#calendar-tools)")
	assert.Contains(t, markdown, "- [Task Tools](#task-tools)")
	assert.Contains(t, markdown, "`title` (required)")
	assert.Contains(t, markdown, "*Write tool, requires `--allow-writes`*")
	assert.NotContains(t, markdown, "## Other")
}

func TestGetCategoryFromToolName(t *testing.T) {
	assert.Equal(t, "Task Tools", getCategoryFromToolName("task_create"))
	assert.Equal(t, "Calendar Tools", getCategoryFromToolName("calendar_status"))
	assert.Equal(t, "Other", getCategoryFromToolName("gmail_list"))
	assert.Equal(t, "Other", getCategoryFromToolName(""))
}

func TestAuthorizationURL(t *testing.T) {
	cfg := config.Config{
		GoogleClientID:     "client-id",
		GoogleClientSecret: "client-secret",
		BaseURL:            "https://breez.example.com",
		StateSecret:        strings.Repeat("s", 32),
	}

	t.Run("signed state for the user", func(t *testing.T) {
		raw, err := authorizationURL(cfg, "user-1")
		require.NoError(t, err)

		u, err := url.Parse(raw)
		require.NoError(t, err)
		q := u.Query()
		assert.Equal(t, "client-id", q.Get("client_id"))
		assert.Equal(t, "https://breez.example.com/callback", q.Get("redirect_uri"))
		assert.Equal(t, "offline", q.Get("access_type"))
		assert.NotEmpty(t, q.Get("state"))
	})

	t.Run("user required", func(t *testing.T) {
		_, err := authorizationURL(cfg, "")
		assert.Error(t, err)
	})

	t.Run("short state secret", func(t *testing.T) {
		bad := cfg
		bad.StateSecret = "short"
		_, err := authorizationURL(bad, "user-1")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "BREEZ_STATE_SECRET")
	})

	t.Run("missing client", func(t *testing.T) {
		bad := cfg
		bad.GoogleClientID = ""
		_, err := authorizationURL(bad, "user-1")
		assert.Error(t, err)
	})
}

func TestMigrateCmd(t *testing.T) {
	t.Run("sqlite", func(t *testing.T) {
		clearEnv(t)
		path := filepath.Join(t.TempDir(), "breez.db")

		cmd := newMigrateCmd()
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetArgs([]string{"--storage=sqlite", "--database-url=" + path})
		require.NoError(t, cmd.ExecuteContext(context.Background()))
		assert.Contains(t, out.String(), "Schema is up to date (sqlite)")
	})

	t.Run("memory is rejected", func(t *testing.T) {
		clearEnv(t)

		cmd := newMigrateCmd()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{"--storage=memory"})
		err := cmd.ExecuteContext(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "requires sqlite or postgres")
	})
}

func TestVersionCmd(t *testing.T) {
	cmd := newVersionCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.Run(cmd, nil)
	assert.Equal(t, "breez version "+version+"\n", out.String())
}
