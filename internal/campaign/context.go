package campaign

import (
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/shineum/mailshot-lite/internal/config"
	"github.com/shineum/mailshot-lite/internal/logging"
)

// RunContext carries the per-process state a campaign needs: the logger
// and the loaded configuration. It replaces package-level globals.
type RunContext struct {
	Logger *slog.Logger
	Config *config.Config
	RunID  string

	log *logging.Logger
}

// Open builds the logger described by cfg.Logging, tags it with a fresh
// run id and reports ignored settings. console may be nil.
func Open(cfg *config.Config, console io.Writer) (*RunContext, error) {
	l, err := logging.New(logging.Config{
		Dir:               cfg.Logging.Dir,
		Level:             cfg.Logging.Level,
		Console:           console,
		SentryDSN:         cfg.Logging.SentryDSN,
		SentryEnvironment: cfg.Logging.SentryEnvironment,
	})
	if err != nil {
		return nil, err
	}

	rc := &RunContext{
		Config: cfg,
		RunID:  uuid.NewString(),
		log:    l,
	}
	rc.Logger = l.With("run_id", rc.RunID)

	for _, w := range cfg.Warnings() {
		rc.Logger.Warn(w)
	}
	return rc, nil
}

// LogPath returns the delivery log file, or "" when file logging is off.
func (rc *RunContext) LogPath() string {
	if rc.log == nil {
		return ""
	}
	return rc.log.Path()
}

// Close flushes the delivery log and any pending Sentry events.
func (rc *RunContext) Close() error {
	if rc.log == nil {
		return nil
	}
	return rc.log.Close()
}
