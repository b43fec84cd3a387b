// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package log is a small leveled-logging facade, carried over verbatim in
// shape from the helper saferwall/pe vendors internally: a Logger interface
// any backend can implement, a Helper that adds level-aware Printf-style
// convenience methods, and a Filter that drops messages below a level
// without touching call sites.
package log

import (
	"fmt"
	"io"
	"log"
	"sync"
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

// Logger is the minimal sink every backend must implement.
type Logger interface {
	Log(level Level, msg string)
}

// stdLogger writes to an io.Writer via the standard library logger.
type stdLogger struct {
	mu  sync.Mutex
	std *log.Logger
}

// NewStdLogger returns a Logger that writes "LEVEL msg" lines to w, each
// prefixed with the standard logger's date and time.
func NewStdLogger(w io.Writer) Logger {
	return &stdLogger{std: log.New(w, "", log.LstdFlags)}
}

func (s *stdLogger) Log(level Level, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.std.Printf("%s %s", level, msg)
}

// filter wraps a Logger and drops messages below a configured level.
type filter struct {
	next Logger
	min  Level
}

// Option configures a filter.
type Option func(*filter)

// FilterLevel sets the minimum level that passes through the filter.
func FilterLevel(min Level) Option {
	return func(f *filter) { f.min = min }
}

// NewFilter wraps next with level filtering, lowest-severity-kept = LevelDebug
// unless overridden by an Option.
func NewFilter(next Logger, opts ...Option) Logger {
	f := &filter{next: next, min: LevelDebug}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *filter) Log(level Level, msg string) {
	if level < f.min {
		return
	}
	f.next.Log(level, msg)
}

// Helper adds Printf-style convenience methods over a Logger. A nil *Helper
// is valid and silently discards every call, so components can hold an
// unconditional *Helper field without nil-checking every call site.
type Helper struct {
	logger Logger
}

// NewHelper wraps logger in a Helper.
func NewHelper(logger Logger) *Helper {
	return &Helper{logger: logger}
}

func (h *Helper) log(level Level, format string, args ...any) {
	if h == nil || h.logger == nil {
		return
	}
	if format == "" {
		h.logger.Log(level, fmt.Sprint(args...))
		return
	}
	h.logger.Log(level, fmt.Sprintf(format, args...))
}

// Debug logs at LevelDebug.
func (h *Helper) Debug(args ...any) { h.log(LevelDebug, "", args...) }

// Debugf logs at LevelDebug with a format string.
func (h *Helper) Debugf(format string, args ...any) { h.log(LevelDebug, format, args...) }

// Warn logs at LevelWarn.
func (h *Helper) Warn(args ...any) { h.log(LevelWarn, "", args...) }

// Warnf logs at LevelWarn with a format string.
func (h *Helper) Warnf(format string, args ...any) { h.log(LevelWarn, format, args...) }

// Errorf logs at LevelError with a format string.
func (h *Helper) Errorf(format string, args ...any) { h.log(LevelError, format, args...) }
