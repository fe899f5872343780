package log

import (
	"io"
	"os"
	"strings"
	"sync"

	"aifiesta/internal/core"

	"github.com/sirupsen/logrus"
)

// AppLogger is the application logger implementation.
type AppLogger struct {
	logger     *logrus.Logger
	fileHandle *os.File
	mu         sync.RWMutex
}

func newLogrus(output io.Writer, level logrus.Level) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(output)
	l.SetLevel(level)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		DisableColors:   true,
		TimestampFormat: core.TimeFormatDateTime,
	})
	return l
}

// NewAppLoggerWithConfig creates a logger instance with configuration.
func NewAppLoggerWithConfig(output io.Writer, debugMode bool) *AppLogger {
	level := logrus.InfoLevel
	if debugMode {
		level = logrus.DebugLevel
	}
	return &AppLogger{
		logger:     newLogrus(output, level),
		fileHandle: nil,
	}
}

// Debug logs a message at DEBUG level.
func (l *AppLogger) Debug(format string, args ...any) {
	if l != nil {
		l.logger.Debugf(format, args...)
	}
}

// Info logs a message at INFO level.
func (l *AppLogger) Info(format string, args ...any) {
	if l != nil {
		l.logger.Infof(format, args...)
	}
}

// Warn logs a message at WARN level.
func (l *AppLogger) Warn(format string, args ...any) {
	if l != nil {
		l.logger.Warnf(format, args...)
	}
}

// Error logs a message at ERROR level.
func (l *AppLogger) Error(format string, args ...any) {
	if l != nil {
		l.logger.Errorf(format, args...)
	}
}

// Fatal logs a message at FATAL level and terminates the process.
func (l *AppLogger) Fatal(format string, args ...any) {
	if l != nil {
		l.logger.Fatalf(format, args...)
	} else {
		logrus.Fatalf(format, args...)
	}
}

// Logrus exposes the underlying logger.
func (l *AppLogger) Logrus() *logrus.Logger {
	return l.logger
}

// RequestLogWriter returns a writer whose lines are logged at INFO level,
// so access logs share the logger's output and DEBUG_FILE. Callers close it.
func (l *AppLogger) RequestLogWriter() io.WriteCloser {
	return l.logger.WriterLevel(logrus.InfoLevel)
}

// Close safely closes log file handle.
func (l *AppLogger) Close() error {
	if l == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.fileHandle != nil {
		err := l.fileHandle.Close()
		l.fileHandle = nil
		return err
	}
	return nil
}

// containsPathTraversal reports whether any path segment is "..".
func containsPathTraversal(path string) bool {
	segments := strings.FieldsFunc(path, func(r rune) bool { return r == '/' || r == '\\' })
	for _, seg := range segments {
		if seg == ".." {
			return true
		}
	}
	return false
}

// createDebugFileOutput creates debug file output, falls back gracefully on failure.
func createDebugFileOutput(fallback *logrus.Logger) (io.Writer, *os.File) {
	debugFile := os.Getenv("DEBUG_FILE")
	if debugFile == "" {
		return os.Stdout, nil
	}

	if len(debugFile) > core.MaxDebugFilePathLength {
		fallback.Warn("DEBUG_FILE path too long, falling back to stdout")
		return os.Stdout, nil
	}

	if containsPathTraversal(debugFile) {
		fallback.Warn("DEBUG_FILE contains path traversal characters, falling back to stdout")
		return os.Stdout, nil
	}

	//nolint:gosec // G304: debugFile from env var, validated by containsPathTraversal
	file, err := os.OpenFile(debugFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, core.FilePermissionReadWrite)
	if err != nil {
		fallback.Warnf("Failed to open DEBUG_FILE '%s': %v, falling back to stdout", debugFile, err)
		return os.Stdout, nil
	}

	return file, file
}

// IsDebug returns whether the app is running in debug mode.
func IsDebug() bool {
	return os.Getenv("GIN_MODE") == "debug"
}

// resolveLevel picks the level from LOG_LEVEL, then GIN_MODE.
func resolveLevel() logrus.Level {
	if raw := os.Getenv("LOG_LEVEL"); raw != "" {
		if level, err := logrus.ParseLevel(raw); err == nil {
			return level
		}
	}
	if IsDebug() {
		return logrus.DebugLevel
	}
	return logrus.InfoLevel
}

// CreateLogger creates a logger instance (for dependency injection).
func CreateLogger() core.Logger {
	level := resolveLevel()
	bootstrap := newLogrus(os.Stderr, logrus.WarnLevel)
	output, fileHandle := createDebugFileOutput(bootstrap)

	return &AppLogger{
		logger:     newLogrus(output, level),
		fileHandle: fileHandle,
	}
}
