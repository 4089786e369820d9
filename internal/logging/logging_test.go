package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{in: "", want: slog.LevelInfo},
		{in: "debug", want: slog.LevelDebug},
		{in: "INFO", want: slog.LevelInfo},
		{in: " warn ", want: slog.LevelWarn},
		{in: "warning", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "verbose", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseLevel() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNew_WritesDeliveryLog(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "logs")
	stamp := time.Date(2024, 3, 5, 10, 15, 0, 0, time.UTC)

	l, err := New(Config{Dir: dir, Level: "info", Now: func() time.Time { return stamp }})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	wantPath := filepath.Join(dir, "mailshot_20240305_101500.log")
	if l.Path() != wantPath {
		t.Errorf("Path() = %q, want %q", l.Path(), wantPath)
	}

	l.Info("delivery accepted", "recipient", "ana@example.com")
	l.Debug("hidden")
	if err := l.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("second Close() error: %v", err)
	}

	data, err := os.ReadFile(wantPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %s", len(lines), data)
	}

	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if rec["msg"] != "delivery accepted" || rec["recipient"] != "ana@example.com" {
		t.Errorf("unexpected record: %v", rec)
	}
}

func TestNew_FileKeepsInfoWhenConsoleIsQuiet(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	var console bytes.Buffer

	l, err := New(Config{Dir: dir, Level: "error", Console: &console})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	l.Info("delivery accepted")
	l.Error("delivery failed")
	if err := l.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	if strings.Contains(console.String(), "delivery accepted") {
		t.Errorf("console should not show info at error level: %q", console.String())
	}
	if !strings.Contains(console.String(), "delivery failed") {
		t.Errorf("console missing error line: %q", console.String())
	}

	data, err := os.ReadFile(l.Path())
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "delivery accepted") || !strings.Contains(string(data), "delivery failed") {
		t.Errorf("file log incomplete: %s", data)
	}
}

func TestNew_NoSinks(t *testing.T) {
	t.Parallel()

	l, err := New(Config{})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	l.Error("nowhere")
	if l.Path() != "" {
		t.Errorf("Path() = %q, want empty", l.Path())
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
}

func TestNew_InvalidLevel(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{Level: "loud"}); err == nil {
		t.Fatal("expected error for invalid level")
	}
}

type failingHandler struct{ slog.Handler }

func (failingHandler) Handle(context.Context, slog.Record) error { return errors.New("disk full") }

func TestFanout(t *testing.T) {
	t.Parallel()

	var a, b bytes.Buffer
	h := combine(
		slog.NewJSONHandler(&a, nil),
		failingHandler{slog.NewTextHandler(&bytes.Buffer{}, nil)},
		slog.NewTextHandler(&b, &slog.HandlerOptions{Level: slog.LevelWarn}),
	)
	logger := slog.New(h).With("run", "r1").WithGroup("g")

	logger.Info("first", "k", "v")
	logger.Warn("second")

	if strings.Count(a.String(), "\n") != 2 {
		t.Errorf("json handler got %q", a.String())
	}
	if !strings.Contains(a.String(), `"run":"r1"`) || !strings.Contains(a.String(), `"g":{"k":"v"}`) {
		t.Errorf("attrs or group lost: %q", a.String())
	}
	if strings.Contains(b.String(), "first") || !strings.Contains(b.String(), "second") {
		t.Errorf("level filtering broken: %q", b.String())
	}

	err := h.Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelInfo, "x", 0))
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Errorf("Handle() error = %v, want disk full", err)
	}
}

// retainingHandler keeps every record it is given, as the Sentry sink does.
type retainingHandler struct {
	slog.Handler
	kept *[]slog.Record
}

func (h retainingHandler) Handle(_ context.Context, r slog.Record) error {
	r.AddAttrs(slog.String("sink", "retained"))
	*h.kept = append(*h.kept, r)
	return nil
}

func TestFanout_SinksGetOwnRecord(t *testing.T) {
	t.Parallel()

	var kept []slog.Record
	var buf bytes.Buffer
	logger := slog.New(combine(
		retainingHandler{Handler: slog.NewTextHandler(&bytes.Buffer{}, nil), kept: &kept},
		slog.NewJSONHandler(&buf, nil),
	))

	logger.Info("delivery failed", "a", 1, "b", 2, "c", 3, "d", 4, "e", 5, "f", 6)
	logger.Info("delivery accepted", "g", 7)

	if strings.Contains(buf.String(), "retained") {
		t.Errorf("attr added by one sink leaked into another: %s", buf.String())
	}
	if len(kept) != 2 || kept[0].Message != "delivery failed" || kept[0].NumAttrs() != 7 {
		t.Fatalf("retained records: %+v", kept)
	}
	var keys []string
	kept[0].Attrs(func(a slog.Attr) bool {
		keys = append(keys, a.Key)
		return true
	})
	if strings.Join(keys, ",") != "a,b,c,d,e,f,sink" {
		t.Errorf("retained attrs = %v", keys)
	}
}

func TestCombine(t *testing.T) {
	t.Parallel()

	if combine() != slog.DiscardHandler {
		t.Error("no sinks should discard")
	}
	single := slog.NewTextHandler(&bytes.Buffer{}, nil)
	if combine(single) != slog.Handler(single) {
		t.Error("single sink should be returned unwrapped")
	}
}
