package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

// Level represents log severity
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

// String returns the string representation of the log level
func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a string to a Level, defaulting to INFO
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return DEBUG
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

// Field represents a key-value pair for structured logging
type Field struct {
	Key   string
	Value interface{}
}

// F is a shorthand for creating a Field
func F(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// Err is a shorthand for an "error" field
func Err(err error) Field {
	return Field{Key: "error", Value: err}
}

// Config holds logger configuration
type Config struct {
	Level      Level     // Minimum log level
	FilePath   string    // Path to log file, empty disables the file sink
	MaxSize    int64     // Max size in bytes before rotation
	MaxAge     int       // Max age in days before rotation
	MaxBackups int       // Max number of rotated files kept
	Console    bool      // Also write to stderr
	Output     io.Writer // Extra sink, used by servers and tests
}

// DefaultConfig returns default logger configuration
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	logPath := ""
	if home != "" {
		logPath = filepath.Join(home, ".hearth", "logs", "hearth.log")
	}

	return Config{
		Level:      INFO,
		FilePath:   logPath,
		MaxSize:    10 * 1024 * 1024,
		MaxAge:     7,
		MaxBackups: 5,
		Console:    false, // the TUI owns the terminal
	}
}

// sink is the shared, lockable output of a logger and its children
type sink struct {
	mu      sync.Mutex
	config  Config
	file    *os.File
	writers []io.Writer
}

// Logger writes leveled, fielded lines. A nil *Logger discards everything,
// so library packages can take an optional logger.
type Logger struct {
	sink   *sink
	fields []Field
}

var (
	globalLogger *Logger
	once         sync.Once
)

// Init initializes the global logger
func Init(config Config) error {
	var err error
	once.Do(func() {
		globalLogger, err = New(config)
	})
	return err
}

// Default returns the global logger, nil before Init
func Default() *Logger {
	return globalLogger
}

// New creates a new logger instance
func New(config Config) (*Logger, error) {
	s := &sink{config: config}

	if config.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(config.FilePath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		if err := s.open(); err != nil {
			return nil, err
		}
		if err := s.rotateIfNeeded(); err != nil {
			return nil, err
		}
	}
	s.resetWriters()

	return &Logger{sink: s}, nil
}

// NewWriter creates a logger writing only to w
func NewWriter(w io.Writer, level Level) *Logger {
	l, _ := New(Config{Level: level, Output: w})
	return l
}

func (s *sink) open() error {
	file, err := os.OpenFile(s.config.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	s.file = file
	return nil
}

func (s *sink) resetWriters() {
	s.writers = s.writers[:0]
	if s.file != nil {
		s.writers = append(s.writers, s.file)
	}
	if s.config.Console {
		s.writers = append(s.writers, os.Stderr)
	}
	if s.config.Output != nil {
		s.writers = append(s.writers, s.config.Output)
	}
}

// rotateIfNeeded rotates the file by size or age. Caller holds mu or owns s.
func (s *sink) rotateIfNeeded() error {
	if s.file == nil {
		return nil
	}

	info, err := s.file.Stat()
	if err != nil {
		return err
	}

	tooBig := s.config.MaxSize > 0 && info.Size() >= s.config.MaxSize
	tooOld := s.config.MaxAge > 0 && time.Since(info.ModTime()) > time.Duration(s.config.MaxAge)*24*time.Hour
	if !tooBig && !tooOld {
		return nil
	}
	return s.rotate()
}

func (s *sink) rotate() error {
	if s.file != nil {
		s.file.Close()
		s.file = nil
	}

	path := s.config.FilePath
	for i := s.config.MaxBackups - 1; i >= 1; i-- {
		os.Rename(fmt.Sprintf("%s.%d", path, i), fmt.Sprintf("%s.%d", path, i+1))
	}
	if _, err := os.Stat(path); err == nil {
		if err := os.Rename(path, path+".1"); err != nil {
			return err
		}
	}

	if err := s.open(); err != nil {
		return err
	}
	s.resetWriters()
	return nil
}

func (l *Logger) log(level Level, msg string, fields []Field) {
	if l == nil || l.sink == nil {
		return
	}
	s := l.sink
	if level < s.config.Level {
		return
	}

	_, file, line, ok := runtime.Caller(2)
	caller := "???"
	if ok {
		caller = fmt.Sprintf("%s:%d", filepath.Base(file), line)
	}

	entry := format(time.Now(), level, caller, msg, l.fields, fields)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.rotateIfNeeded()
	for _, w := range s.writers {
		w.Write([]byte(entry))
	}
}

func format(ts time.Time, level Level, caller, msg string, preset, fields []Field) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s %s: %s", ts.Format("2006-01-02 15:04:05.000"), level, caller, msg)
	if len(preset)+len(fields) > 0 {
		b.WriteString(" |")
		for _, f := range preset {
			fmt.Fprintf(&b, " %s=%v", f.Key, f.Value)
		}
		for _, f := range fields {
			fmt.Fprintf(&b, " %s=%v", f.Key, f.Value)
		}
	}
	b.WriteByte('\n')
	return b.String()
}

// WithFields creates a child logger with preset fields
func (l *Logger) WithFields(fields ...Field) *Logger {
	if l == nil {
		return nil
	}
	preset := make([]Field, 0, len(l.fields)+len(fields))
	preset = append(preset, l.fields...)
	preset = append(preset, fields...)
	return &Logger{sink: l.sink, fields: preset}
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, fields ...Field) {
	l.log(DEBUG, msg, fields)
}

// Info logs an info message
func (l *Logger) Info(msg string, fields ...Field) {
	l.log(INFO, msg, fields)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string, fields ...Field) {
	l.log(WARN, msg, fields)
}

// Error logs an error message
func (l *Logger) Error(msg string, fields ...Field) {
	l.log(ERROR, msg, fields)
}

// Close closes the log file
func (l *Logger) Close() error {
	if l == nil || l.sink == nil {
		return nil
	}
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()

	if l.sink.file != nil {
		err := l.sink.file.Close()
		l.sink.file = nil
		l.sink.resetWriters()
		return err
	}
	return nil
}

// Global logger functions

// Debug logs a debug message using the global logger
func Debug(msg string, fields ...Field) {
	globalLogger.log(DEBUG, msg, fields)
}

// Info logs an info message using the global logger
func Info(msg string, fields ...Field) {
	globalLogger.log(INFO, msg, fields)
}

// Warn logs a warning message using the global logger
func Warn(msg string, fields ...Field) {
	globalLogger.log(WARN, msg, fields)
}

// Error logs an error message using the global logger
func Error(msg string, fields ...Field) {
	globalLogger.log(ERROR, msg, fields)
}

// WithFields creates a child of the global logger
func WithFields(fields ...Field) *Logger {
	return globalLogger.WithFields(fields...)
}

// Close closes the global logger
func Close() error {
	return globalLogger.Close()
}
