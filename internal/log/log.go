// Package log provides structured logging for georefresh.
// Entries carry a level, a category and key=value fields, go to a file or
// stderr, and are fanned out on a pubsub broker for in-process listeners.
package log

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/zjrosen/georefresh/internal/pubsub"
)

// Level represents log severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a config string to a Level. Unknown values map to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Category groups related log messages.
type Category string

const (
	CatConfig   Category = "config"   // Configuration loading/saving
	CatFetch    Category = "fetch"    // Transformer runs and source downloads
	CatDetect   Category = "detect"   // Change detection
	CatPublish  Category = "publish"  // Stage/commit/push
	CatGit      Category = "git"      // Raw git subprocess calls
	CatDB       Category = "db"       // Run store operations
	CatWatcher  Category = "watcher"  // Trigger file events
	CatCache    Category = "cache"    // Previous-state cache
	CatSched    Category = "sched"    // Daemon scheduling
	CatPipeline Category = "pipeline" // Run state machine
)

// Logger provides structured logging.
type Logger struct {
	mu       sync.Mutex
	file     *os.File
	writer   io.Writer
	enabled  bool
	minLevel Level
	broker   *pubsub.Broker[string]
}

var (
	defaultMu     sync.RWMutex
	defaultLogger *Logger
)

// Init initializes the global logger. An empty path or "-" logs to stderr.
// Returns a cleanup function that closes the log file, if any.
func Init(path string, level Level) (func(), error) {
	l, err := newLogger(path)
	if err != nil {
		return nil, err
	}
	l.minLevel = level

	defaultMu.Lock()
	prev := defaultLogger
	defaultLogger = l
	defaultMu.Unlock()

	if prev != nil {
		prev.close()
	}

	return func() {
		defaultMu.Lock()
		if defaultLogger == l {
			defaultLogger = nil
		}
		defaultMu.Unlock()
		l.close()
	}, nil
}

// InitWriter installs a logger that writes to w. Used by tests and the CLI
// when the destination is already open.
func InitWriter(w io.Writer, level Level) func() {
	l := &Logger{
		writer:   w,
		enabled:  true,
		minLevel: level,
		broker:   pubsub.NewBroker[string](),
	}
	defaultMu.Lock()
	defaultLogger = l
	defaultMu.Unlock()
	return func() {
		defaultMu.Lock()
		if defaultLogger == l {
			defaultLogger = nil
		}
		defaultMu.Unlock()
		l.broker.Close()
	}
}

func newLogger(path string) (*Logger, error) {
	l := &Logger{
		enabled:  true,
		minLevel: LevelInfo,
		broker:   pubsub.NewBroker[string](),
	}
	if path == "" || path == "-" {
		l.writer = os.Stderr
		return l, nil
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) //nolint:gosec // G304: path is the user-configured log path
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	l.file = f
	l.writer = f
	return l, nil
}

func (l *Logger) close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.broker != nil {
		l.broker.Close()
	}
	if l.file != nil {
		_ = l.file.Close()
		l.file = nil
		l.writer = nil
	}
}

// SetEnabled toggles logging on/off.
func SetEnabled(enabled bool) {
	if l := current(); l != nil {
		l.mu.Lock()
		l.enabled = enabled
		l.mu.Unlock()
	}
}

// SetMinLevel sets the minimum log level.
func SetMinLevel(level Level) {
	if l := current(); l != nil {
		l.mu.Lock()
		l.minLevel = level
		l.mu.Unlock()
	}
}

// Debug logs at debug level.
func Debug(cat Category, msg string, fields ...any) {
	write(LevelDebug, cat, msg, fields...)
}

// Info logs at info level.
func Info(cat Category, msg string, fields ...any) {
	write(LevelInfo, cat, msg, fields...)
}

// Warn logs at warning level.
func Warn(cat Category, msg string, fields ...any) {
	write(LevelWarn, cat, msg, fields...)
}

// Error logs at error level.
func Error(cat Category, msg string, fields ...any) {
	write(LevelError, cat, msg, fields...)
}

// ErrorErr logs an error with the error value.
func ErrorErr(cat Category, msg string, err error, fields ...any) {
	if err != nil {
		fields = append(fields, "error", err.Error())
	} else {
		fields = append(fields, "error", "<nil>")
	}
	write(LevelError, cat, msg, fields...)
}

func current() *Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

func write(level Level, cat Category, msg string, fields ...any) {
	l := current()
	if l == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.enabled || level < l.minLevel {
		return
	}

	entry := format(time.Now(), level, cat, msg, fields...)

	if l.writer != nil {
		_, _ = io.WriteString(l.writer, entry)
	}
	if l.broker != nil {
		l.broker.Publish(pubsub.LogEvent, entry)
	}
}

// format renders: 2025-12-06T10:45:00 [ERROR] [publish] message key=value key2=value2
func format(ts time.Time, level Level, cat Category, msg string, fields ...any) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s] [%s] %s", ts.Format("2006-01-02T15:04:05"), level, cat, msg)
	for i := 0; i+1 < len(fields); i += 2 {
		fmt.Fprintf(&b, " %v=%v", fields[i], fields[i+1])
	}
	if len(fields)%2 != 0 {
		fmt.Fprintf(&b, " %v=<missing>", fields[len(fields)-1])
	}
	b.WriteByte('\n')
	return b.String()
}

// Subscribe returns a channel of formatted log entries, closed when ctx ends.
// Returns nil when no logger is installed.
func Subscribe(ctx context.Context) <-chan pubsub.Event[string] {
	l := current()
	if l == nil || l.broker == nil {
		return nil
	}
	return l.broker.Subscribe(ctx)
}
