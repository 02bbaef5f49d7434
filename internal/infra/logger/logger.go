// internal/infra/logger/logger.go
package logger

import (
	"os"
	"strings"

	"sendtime_notifier/internal/infra/config"

	"github.com/sirupsen/logrus"
)

// Log is the process-wide logger. Configure it once with Init.
var Log = logrus.New()

// Init applies the configured level and picks JSON output for production
// and staging, human-readable text elsewhere.
func Init(cfg *config.AppConfig) {
	Log.SetOutput(os.Stdout)
	Log.SetFormatter(newFormatter(cfg.Environment))

	level, ok := parseLevel(cfg.LogLevel)
	if !ok {
		Log.WithField("log_level", cfg.LogLevel).Warn("Invalid log level, defaulting to info")
	}
	Log.SetLevel(level)
	Log.WithFields(logrus.Fields{
		"level":       level.String(),
		"environment": cfg.Environment,
	}).Debug("Logger configured")
}

func parseLevel(raw string) (logrus.Level, bool) {
	level, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(raw)))
	if err != nil {
		return logrus.InfoLevel, false
	}
	return level, true
}

func newFormatter(env string) logrus.Formatter {
	if isStructured(env) {
		return &logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"}
	}
	return &logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02 15:04:05"}
}

func isStructured(env string) bool {
	env = strings.ToLower(env)
	return env == "production" || env == "staging"
}

// WithComponent returns an entry tagged with the component name. Services
// receive one of these instead of the global logger.
func WithComponent(name string) *logrus.Entry {
	return Log.WithField("component", name)
}
