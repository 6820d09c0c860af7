package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"

	"github.com/irfndi/funding-collector/internal/config"
)

// NewLogger builds the process logger from the logging section of the config.
// When a log file is configured, output is duplicated to a rotating file.
func NewLogger(cfg config.LoggingConfig) *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(ParseLogrusLevel(cfg.Level))
	logger.SetFormatter(NewFormatter(cfg.Format))

	var out io.Writer = os.Stdout
	if cfg.File != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		})
	}
	logger.SetOutput(out)

	return logger
}

// NewFormatter returns a text formatter for "text" and a JSON formatter otherwise.
func NewFormatter(format string) logrus.Formatter {
	if strings.EqualFold(format, "text") {
		return &logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		}
	}
	return &logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	}
}

// ParseLogrusLevel converts string level to logrus.Level
func ParseLogrusLevel(level string) logrus.Level {
	switch strings.ToLower(level) {
	case "trace":
		return logrus.TraceLevel
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// WithExchange scopes a logger to one exchange process.
func WithExchange(logger logrus.FieldLogger, exchange string) *logrus.Entry {
	return logger.WithField("exchange", exchange)
}

// NewDiscardLogger returns a logger that drops everything. Tests use it to keep output quiet.
func NewDiscardLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
