package instrumentation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
)

func decodeAudit(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid JSON log line %q: %v", buf.String(), err)
	}
	return entry
}

func TestAuditLogger_HashesUserByDefault(t *testing.T) {
	var buf bytes.Buffer
	audit := NewAuditLogger(slog.New(slog.NewJSONHandler(&buf, nil)), AuditConfig{Enabled: true})

	audit.Log(context.Background(), AuditRecord{
		Event:         EventIntegrationLinked,
		UserID:        "user-123",
		Provider:      "google_calendar",
		IntegrationID: "int_1",
	})

	entry := decodeAudit(t, &buf)
	if entry["event"] != string(EventIntegrationLinked) {
		t.Errorf("event = %v, want %s", entry["event"], EventIntegrationLinked)
	}
	if _, ok := entry["user_id"]; ok {
		t.Error("raw user id must not be logged by default")
	}
	if entry["user_hash"] == nil {
		t.Error("expected user_hash attribute")
	}
	if entry["log_type"] != "audit" {
		t.Errorf("log_type = %v, want audit", entry["log_type"])
	}
}

func TestAuditLogger_IncludeUserID(t *testing.T) {
	var buf bytes.Buffer
	audit := NewAuditLogger(slog.New(slog.NewJSONHandler(&buf, nil)), AuditConfig{Enabled: true, IncludeUserID: true})

	audit.Log(context.Background(), AuditRecord{
		Event:    EventReauthorizationRequired,
		UserID:   "user-123",
		Provider: "google_calendar",
		Err:      errors.New("refresh token revoked"),
	})

	entry := decodeAudit(t, &buf)
	if entry["user_id"] != "user-123" {
		t.Errorf("user_id = %v, want user-123", entry["user_id"])
	}
	if entry["level"] != "WARN" {
		t.Errorf("level = %v, want WARN for records with errors", entry["level"])
	}
}

func TestAuditLogger_Disabled(t *testing.T) {
	var buf bytes.Buffer
	audit := NewAuditLogger(slog.New(slog.NewJSONHandler(&buf, nil)), AuditConfig{Enabled: false})
	audit.Log(context.Background(), AuditRecord{Event: EventTokenRefreshed})
	if buf.Len() != 0 {
		t.Errorf("expected no output, got %q", buf.String())
	}

	var nilAudit *AuditLogger
	nilAudit.Log(context.Background(), AuditRecord{Event: EventTokenRefreshed})
}
