// Package log is a minimal leveled logging shim matching the call
// shape the teacher codebase expects from its own internal logger:
// a Logger sink, a level Filter, and a Helper facade exposing
// Debug/Debugf, Warn/Warnf, Errorf.
package log

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"
)

// Level is a logging severity.
type Level int

// Severities, lowest to highest.
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

// Logger is the sink every log line is written to.
type Logger interface {
	Log(level Level, msg string) error
}

// stdLogger writes timestamped lines to an io.Writer.
type stdLogger struct {
	mu sync.Mutex
	w  io.Writer
}

// NewStdLogger returns a Logger that writes to w.
func NewStdLogger(w io.Writer) Logger {
	return &stdLogger{w: w}
}

func (s *stdLogger) Log(level Level, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintf(s.w, "%s %s %s\n", time.Now().Format(time.RFC3339), level, msg)
	return err
}

// jsonLogger writes one JSON object per line, the shape the CLI's
// probe command uses for its per-file log (matching the structured
// fields wannacri.py's probe_usm writes via pythonjsonlogger).
type jsonLogger struct {
	mu sync.Mutex
	w  io.Writer
}

// NewJSONLogger returns a Logger that writes newline-delimited JSON
// records to w.
func NewJSONLogger(w io.Writer) Logger {
	return &jsonLogger{w: w}
}

func (j *jsonLogger) Log(level Level, msg string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	rec := struct {
		Time    string `json:"asctime"`
		Level   string `json:"levelname"`
		Message string `json:"message"`
	}{
		Time:    time.Now().Format(time.RFC3339),
		Level:   level.String(),
		Message: msg,
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	_, err = j.w.Write(b)
	return err
}

// filterLogger drops records below a minimum level.
type filterLogger struct {
	next Logger
	min  Level
}

// FilterOption configures a filter Logger.
type FilterOption func(*filterLogger)

// FilterLevel sets the minimum level that passes through the filter.
func FilterLevel(level Level) FilterOption {
	return func(f *filterLogger) { f.min = level }
}

// NewFilter wraps next with a minimum-level gate.
func NewFilter(next Logger, opts ...FilterOption) Logger {
	f := &filterLogger{next: next, min: LevelDebug}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *filterLogger) Log(level Level, msg string) error {
	if level < f.min {
		return nil
	}
	return f.next.Log(level, msg)
}

// Helper is the call-site facade used throughout the package: it
// formats the message and routes it to the underlying Logger.
type Helper struct {
	logger Logger
}

// NewHelper wraps a Logger in a Helper.
func NewHelper(logger Logger) *Helper {
	if logger == nil {
		logger = NewStdLogger(io.Discard)
	}
	return &Helper{logger: logger}
}

// Debug logs at debug level.
func (h *Helper) Debug(args ...any) { h.logger.Log(LevelDebug, fmt.Sprint(args...)) }

// Debugf logs a formatted message at debug level.
func (h *Helper) Debugf(format string, args ...any) {
	h.logger.Log(LevelDebug, fmt.Sprintf(format, args...))
}

// Infof logs a formatted message at info level.
func (h *Helper) Infof(format string, args ...any) {
	h.logger.Log(LevelInfo, fmt.Sprintf(format, args...))
}

// Warn logs at warn level.
func (h *Helper) Warn(args ...any) { h.logger.Log(LevelWarn, fmt.Sprint(args...)) }

// Warnf logs a formatted message at warn level.
func (h *Helper) Warnf(format string, args ...any) {
	h.logger.Log(LevelWarn, fmt.Sprintf(format, args...))
}

// Errorf logs a formatted message at error level.
func (h *Helper) Errorf(format string, args ...any) {
	h.logger.Log(LevelError, fmt.Sprintf(format, args...))
}
