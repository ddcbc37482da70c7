package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	gormlogger "gorm.io/gorm/logger"
)

func newBufferedAdapter(buf *bytes.Buffer) *GormAdapter {
	return NewGormAdapter(slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
}

func TestNewGormAdapter_WithNil(t *testing.T) {
	adapter := NewGormAdapter(nil)
	if adapter == nil {
		t.Fatal("NewGormAdapter returned nil")
	}
	if adapter.logger == nil {
		t.Error("adapter.logger should not be nil when created with nil")
	}
	if adapter.level != gormlogger.Warn {
		t.Errorf("default level = %v, want Warn", adapter.level)
	}
}

func TestGormAdapter_LogModeCopies(t *testing.T) {
	adapter := NewGormAdapter(nil)
	silent := adapter.LogMode(gormlogger.Silent).(*GormAdapter)
	if silent.level != gormlogger.Silent {
		t.Errorf("LogMode level = %v, want Silent", silent.level)
	}
	if adapter.level != gormlogger.Warn {
		t.Error("LogMode should not mutate the receiver")
	}
}

func TestGormAdapter_Trace(t *testing.T) {
	ctx := context.Background()
	stmt := func() (string, int64) { return "SELECT 1", 1 }

	tests := []struct {
		name    string
		begin   time.Time
		err     error
		want    string
		wantErr bool
	}{
		{"failed statement", time.Now(), errors.New("disk I/O error"), "SQL statement failed", true},
		{"record not found is quiet", time.Now(), gormlogger.ErrRecordNotFound, "SQL statement", false},
		{"slow statement", time.Now().Add(-time.Second), nil, "Slow SQL statement", false},
		{"normal statement", time.Now(), nil, "SQL statement", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			adapter := newBufferedAdapter(&buf)
			adapter.Trace(ctx, tt.begin, stmt, tt.err)

			out := buf.String()
			if !strings.Contains(out, tt.want) {
				t.Errorf("output %q does not contain %q", out, tt.want)
			}
			if strings.Contains(out, "level=ERROR") != tt.wantErr {
				t.Errorf("error level mismatch in %q", out)
			}
		})
	}
}

func TestGormAdapter_SilentDropsEverything(t *testing.T) {
	var buf bytes.Buffer
	adapter := newBufferedAdapter(&buf).LogMode(gormlogger.Silent)
	adapter.Trace(context.Background(), time.Now(), func() (string, int64) { return "SELECT 1", 0 }, errors.New("boom"))
	adapter.Error(context.Background(), "boom %d", 1)
	if buf.Len() != 0 {
		t.Errorf("expected no output, got %q", buf.String())
	}
}

func TestGormAdapter_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	adapter := newBufferedAdapter(&buf)
	adapter.Info(context.Background(), "hidden %s", "info")
	adapter.Warn(context.Background(), "shown %s", "warn")

	out := buf.String()
	if strings.Contains(out, "hidden info") {
		t.Errorf("info should be filtered at Warn level, got %q", out)
	}
	if !strings.Contains(out, "shown warn") {
		t.Errorf("warn should be logged, got %q", out)
	}
}

func TestGormAdapterInterface(t *testing.T) {
	var _ gormlogger.Interface = (*GormAdapter)(nil)
}
