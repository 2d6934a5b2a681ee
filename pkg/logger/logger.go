package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/killallgit/grapher/pkg/config"
)

// Level orders message severities
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = [...]string{
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARN",
	LevelError: "ERROR",
}

func (l Level) String() string {
	if l < 0 || int(l) >= len(levelNames) {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// ParseLevel reads a configured level name. Unknown names mean info.
func ParseLevel(name string) Level {
	name = strings.ToUpper(strings.TrimSpace(name))
	if name == "WARNING" {
		return LevelWarn
	}
	for lvl, known := range levelNames {
		if name == known {
			return Level(lvl)
		}
	}
	return LevelInfo
}

// Logger writes "[LEVEL] message" lines. A logger that owns a log file
// also echoes errors to stderr so they are not lost behind the prompt.
type Logger struct {
	min  Level
	out  *log.Logger
	file *os.File
}

var (
	mu  sync.RWMutex
	std *Logger
)

// Init installs the package logger described by the loaded settings.
// It is a no-op once a logger is installed.
func Init() error {
	mu.Lock()
	defer mu.Unlock()
	if std != nil {
		return nil
	}

	settings := config.Get().Logging
	l, err := New(ParseLevel(settings.Level), settings.LogFile, settings.Preserve)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	std = l
	return nil
}

// New opens logFile for writing. Relative names are placed in the settings
// directory. The file is truncated unless persist is set.
func New(level Level, logFile string, persist bool) (*Logger, error) {
	path := logFile
	if !filepath.IsAbs(path) {
		path = config.BuildSettingsPath(filepath.Base(path))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	mode := os.O_TRUNC
	if persist {
		mode = os.O_APPEND
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|mode, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	return &Logger{min: level, out: log.New(file, "", log.LstdFlags), file: file}, nil
}

// NewWithWriter creates a logger on w without timestamps or stderr echo
func NewWithWriter(level Level, w io.Writer) *Logger {
	return &Logger{min: level, out: log.New(w, "", 0)}
}

// SetDefault replaces the package logger; nil silences it
func SetDefault(l *Logger) {
	mu.Lock()
	defer mu.Unlock()
	std = l
}

// Logf writes one message at level. A nil logger discards it.
func (l *Logger) Logf(level Level, format string, args ...any) {
	if l == nil || level < l.min {
		return
	}
	msg := fmt.Sprintf(format, args...)
	l.out.Printf("[%s] %s", level, msg)
	if l.file != nil && level >= LevelError {
		fmt.Fprintf(os.Stderr, "[%s] %s\n", level, msg)
	}
}

func (l *Logger) Debug(format string, args ...any) { l.Logf(LevelDebug, format, args...) }
func (l *Logger) Info(format string, args ...any)  { l.Logf(LevelInfo, format, args...) }
func (l *Logger) Warn(format string, args ...any)  { l.Logf(LevelWarn, format, args...) }
func (l *Logger) Error(format string, args ...any) { l.Logf(LevelError, format, args...) }

func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}

func current() *Logger {
	mu.RLock()
	defer mu.RUnlock()
	return std
}

// Logf writes through the package logger
func Logf(level Level, format string, args ...any) {
	current().Logf(level, format, args...)
}

func Debug(format string, args ...any) { Logf(LevelDebug, format, args...) }
func Info(format string, args ...any)  { Logf(LevelInfo, format, args...) }
func Warn(format string, args ...any)  { Logf(LevelWarn, format, args...) }
func Error(format string, args ...any) { Logf(LevelError, format, args...) }

// Close closes and uninstalls the package logger
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	err := std.Close()
	std = nil
	return err
}
