package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"err", LevelError, false},
		{"off", LevelOff, false},
		{"loud", LevelInfo, true},
	}

	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLogger_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{DefaultLevel: LevelDebug, Output: &buf})

	ctx := WithRequestID(context.Background(), "req-1")
	l.Query().Ctx(ctx).Info("window fetched", "rows", 5000, "begin", 1)

	line := buf.String()
	for _, want := range []string{"INFO ", "[query]", "window fetched", "request_id=req-1", "begin=1 rows=5000"} {
		if !strings.Contains(line, want) {
			t.Errorf("expected %q in %q", want, line)
		}
	}
}

func TestLogger_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{DefaultLevel: LevelInfo, Output: &buf, Format: FormatJSON})

	l.Library().Error("save failed", errors.New("disk full"), "file", "a.sql")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid JSON line %q: %v", buf.String(), err)
	}
	if entry["level"] != "ERROR" || entry["category"] != "library" || entry["error"] != "disk full" {
		t.Errorf("unexpected entry %v", entry)
	}
	fields := entry["fields"].(map[string]interface{})
	if fields["file"] != "a.sql" {
		t.Errorf("unexpected fields %v", fields)
	}
}

func TestLogger_CategoryLevels(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{
		DefaultLevel:   LevelInfo,
		CategoryLevels: map[Category]Level{CategoryPerformance: LevelOff},
		Output:         &buf,
	})

	l.Performance().Info("dropped")
	l.Request().Debug("dropped")
	if buf.Len() != 0 {
		t.Fatalf("expected nothing logged, got %q", buf.String())
	}

	l.SetLevel(CategoryRequest, LevelDebug)
	l.Request().Debug("kept")
	if !strings.Contains(buf.String(), "kept") {
		t.Errorf("expected debug entry after SetLevel, got %q", buf.String())
	}
}

func TestCategoryLogger_WithFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{DefaultLevel: LevelInfo, Output: &buf})

	base := l.Document().WithFields("session", "s1")
	base.Info("submitted", "format", "pdf")
	base.Info("rendered")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], "format=pdf session=s1") {
		t.Errorf("unexpected first line %q", lines[0])
	}
	if strings.Contains(lines[1], "format=") {
		t.Errorf("fields leaked between calls: %q", lines[1])
	}
}

func TestLogger_Async(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{DefaultLevel: LevelInfo, Output: &buf, AsyncBuffer: 16})

	for i := 0; i < 3; i++ {
		l.System().Info("tick")
	}
	l.Close()

	if got := strings.Count(buf.String(), "tick"); got != 3 {
		t.Errorf("expected 3 entries after Close, got %d", got)
	}
	logged, dropped := l.Stats()
	if logged != 3 || dropped != 0 {
		t.Errorf("unexpected stats logged=%d dropped=%d", logged, dropped)
	}
}
