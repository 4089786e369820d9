// Package logging builds the campaign logger: a JSON delivery log on disk,
// a human-readable console stream and, optionally, Sentry.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	charmlog "github.com/charmbracelet/log"
	"github.com/getsentry/sentry-go"
	sentryslog "github.com/getsentry/sentry-go/slog"
)

// fileTimeLayout names delivery log files, e.g. mailshot_20240305_101500.log.
const fileTimeLayout = "20060102_150405"

// sentryFlushTimeout bounds how long Close waits for queued Sentry events.
const sentryFlushTimeout = 2 * time.Second

// Config controls where logs go.
type Config struct {
	// Dir receives the delivery log file. Empty disables the file.
	Dir   string
	Level string
	// Console receives human-readable output. Nil disables it.
	Console io.Writer

	SentryDSN         string
	SentryEnvironment string

	// Now stamps the log file name. Defaults to time.Now.
	Now func() time.Time
}

// Logger is a slog.Logger that owns its log file and Sentry client.
type Logger struct {
	*slog.Logger

	path   string
	file   *os.File
	sentry bool
}

// ParseLevel maps debug, info, warn or error to a slog level.
// Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// New creates a Logger. The caller must Close it to flush the file and
// any pending Sentry events.
func New(cfg Config) (*Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	l := &Logger{}
	var handlers []slog.Handler

	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		l.path = filepath.Join(cfg.Dir, "mailshot_"+now().Format(fileTimeLayout)+".log")
		f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		l.file = f
		// The delivery log always records info and above.
		handlers = append(handlers, slog.NewJSONHandler(f, &slog.HandlerOptions{
			Level: min(level, slog.LevelInfo),
		}))
	}

	if cfg.Console != nil {
		handlers = append(handlers, charmlog.NewWithOptions(cfg.Console, charmlog.Options{
			Level:           charmlog.Level(level),
			ReportTimestamp: true,
			TimeFormat:      time.TimeOnly,
		}))
	}

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.SentryDSN,
			Environment: cfg.SentryEnvironment,
			EnableLogs:  true,
		}); err != nil {
			l.closeFile()
			return nil, fmt.Errorf("failed to initialize Sentry: %w", err)
		}
		l.sentry = true
		handlers = append(handlers, sentryslog.Option{
			EventLevel: []slog.Level{slog.LevelError},
			LogLevel:   []slog.Level{slog.LevelWarn, slog.LevelError},
		}.NewSentryHandler(context.Background()))
	}

	l.Logger = slog.New(combine(handlers...))
	return l, nil
}

// Path returns the delivery log file path, or "" when file logging is off.
func (l *Logger) Path() string {
	return l.path
}

// Close flushes Sentry and closes the log file.
func (l *Logger) Close() error {
	if l.sentry {
		sentry.Flush(sentryFlushTimeout)
	}
	return l.closeFile()
}

func (l *Logger) closeFile() error {
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
