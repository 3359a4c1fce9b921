package logger

import (
	"site-mass-upload/internal/config"

	"github.com/sirupsen/logrus"
)

// Logger wraps logrus.Logger with additional functionality
type Logger struct {
	*logrus.Logger
}

// NewLogger creates a new structured logger instance
func NewLogger(cfg *config.Config) *Logger {
	log := logrus.New()

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if cfg.Logging.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return &Logger{Logger: log}
}

// WithEntity adds the importable entity to log entries
func (l *Logger) WithEntity(entity string) *logrus.Entry {
	return l.WithField("entity", entity)
}

// WithSite adds site context to log entries
func (l *Logger) WithSite(siteID string) *logrus.Entry {
	return l.WithField("site_id", siteID)
}

// WithCaller adds the calling user to log entries
func (l *Logger) WithCaller(callerID string) *logrus.Entry {
	return l.WithField("caller_id", callerID)
}

// WithImportRun adds import run context to log entries
func (l *Logger) WithImportRun(runID string) *logrus.Entry {
	return l.WithField("import_run_id", runID)
}
