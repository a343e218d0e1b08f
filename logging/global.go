// Package logging provides the application's structured logger: console text
// output plus a JSON file that rotates weekly, and a chi request logger.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// LoggingService owns the process-wide logger and its rotating file
type LoggingService struct {
	Logger *slog.Logger
	file   *RotatingLogger
}

// Options configures InitLogger
type Options struct {
	// Dir receives the rotating JSON log files. Empty disables file output.
	Dir            string
	Level          string
	Env            string
	RetentionWeeks int
	MaxFileSize    int64
}

var DefaultLoggingService *LoggingService

// InitLogger installs the global logger and makes it the slog default
func InitLogger(opts Options) {
	DefaultLoggingService = newLoggingService(opts)
	slog.SetDefault(DefaultLoggingService.Logger)
}

// Close flushes and closes the rotating log file, if any
func Close() error {
	if DefaultLoggingService == nil || DefaultLoggingService.file == nil {
		return nil
	}
	return DefaultLoggingService.file.Close()
}

func newLoggingService(opts Options) *LoggingService {
	consoleHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: consoleLevel(opts.Env, opts.Level),
	})

	if opts.Dir == "" {
		return &LoggingService{Logger: slog.New(consoleHandler)}
	}

	file, err := OpenRotatingLogger(opts.Dir, opts.RetentionWeeks, opts.MaxFileSize)
	if err != nil {
		logger := slog.New(consoleHandler)
		logger.Error("Failed to open log directory, logging to console only", "dir", opts.Dir, "error", err)
		return &LoggingService{Logger: logger}
	}

	fileHandler := slog.NewJSONHandler(file, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})

	return &LoggingService{
		Logger: slog.New(&multiHandler{handlers: []slog.Handler{consoleHandler, fileHandler}}),
		file:   file,
	}
}

// parseLogLevel maps a LOG_LEVEL value to a slog level, defaulting to info
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// consoleLevel picks the console verbosity. An explicit level wins, except
// under test where the console stays quiet.
func consoleLevel(env, level string) slog.Level {
	switch {
	case env == "test":
		return slog.LevelError
	case level != "":
		return parseLogLevel(level)
	case env == "prod" || env == "staging":
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// Logger returns the configured logger, or a stderr text logger before InitLogger
func Logger() *slog.Logger {
	if DefaultLoggingService == nil || DefaultLoggingService.Logger == nil {
		// Fallback to console logger if not initialized
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return DefaultLoggingService.Logger
}

// Package-level functions for direct access

func Info(msg string, args ...any) {
	Logger().Info(msg, args...)
}

func Error(msg string, args ...any) {
	Logger().Error(msg, args...)
}

func Warn(msg string, args ...any) {
	Logger().Warn(msg, args...)
}

func Debug(msg string, args ...any) {
	Logger().Debug(msg, args...)
}
