package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Fields type alias for logrus.Fields to maintain compatibility
type Fields map[string]interface{}

// Log wraps logrus.Logger with component helpers.
type Log struct {
	*logrus.Logger
}

// Entry wraps logrus.Entry so chained calls keep returning our type.
type Entry struct {
	*logrus.Entry
}

// Config selects level, format and output for a Log.
type Config struct {
	Level  string // debug|info|warn|error
	Format string // json|text
	File   string // empty = stdout
	// MaxSizeMB and MaxAgeDays apply to File rotation.
	MaxSizeMB  int
	MaxAgeDays int
}

var globalLogger = New(Config{})

func callerPrettyfier(f *runtime.Frame) (string, string) {
	return "", fmt.Sprintf("%s:%d", filepath.Base(f.File), f.Line)
}

// New builds a logger. Unknown levels fall back to info, unknown formats to json.
func New(cfg Config) *Log {
	l := logrus.New()
	l.SetReportCaller(true)

	level := cfg.Level
	if env := os.Getenv("LOG_LEVEL"); env != "" {
		level = env
	}
	if lvl, err := logrus.ParseLevel(strings.ToLower(level)); err == nil && level != "" {
		l.SetLevel(lvl)
	} else {
		l.SetLevel(logrus.InfoLevel)
	}

	switch strings.ToLower(cfg.Format) {
	case "text":
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:    true,
			TimestampFormat:  time.RFC3339,
			CallerPrettyfier: callerPrettyfier,
		})
	default:
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
			CallerPrettyfier: callerPrettyfier,
		})
	}

	l.SetOutput(output(cfg))
	return &Log{Logger: l}
}

func output(cfg Config) io.Writer {
	switch cfg.File {
	case "", "stdout":
		return os.Stdout
	case "stderr":
		return os.Stderr
	}
	maxSize := cfg.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 100
	}
	return &lumberjack.Logger{
		Filename: cfg.File,
		MaxSize:  maxSize,
		MaxAge:   cfg.MaxAgeDays,
		Compress: true,
	}
}

// Discard returns a logger that writes nowhere. Used by tests.
func Discard() *Log {
	l := New(Config{})
	l.SetOutput(io.Discard)
	return l
}

// GetLogger returns the process-wide logger.
func GetLogger() *Log {
	return globalLogger
}

// SetLogger replaces the process-wide logger.
func SetLogger(l *Log) {
	if l != nil {
		globalLogger = l
	}
}

func (l *Log) WithComponent(component string) *Entry {
	return &Entry{Entry: l.Logger.WithField("component", component)}
}

func (l *Log) WithFields(fields Fields) *Entry {
	return &Entry{Entry: l.Logger.WithFields(logrus.Fields(fields))}
}

func (l *Log) WithError(err error) *Entry {
	return &Entry{Entry: l.Logger.WithError(err)}
}

func (e *Entry) WithComponent(component string) *Entry {
	return &Entry{Entry: e.Entry.WithField("component", component)}
}

func (e *Entry) WithFields(fields Fields) *Entry {
	return &Entry{Entry: e.Entry.WithFields(logrus.Fields(fields))}
}

func (e *Entry) WithField(key string, value interface{}) *Entry {
	return &Entry{Entry: e.Entry.WithField(key, value)}
}

func (e *Entry) WithError(err error) *Entry {
	return &Entry{Entry: e.Entry.WithError(err)}
}

// Component returns a component entry from l, or from the global logger when l is nil.
func Component(l *Log, component string) *Entry {
	if l == nil {
		l = globalLogger
	}
	return l.WithComponent(component)
}
