// Package logging configures structured logging for teamsyncd.
//
// Loggers are plain *slog.Logger values. Each subsystem derives its own
// logger with a "component" attribute, and the handler returned by New
// filters records against a per-component level taken from a Spec.
package logging

import (
	"fmt"
	"log/slog"
	"strings"
)

// Level is a log level. Debug, info, warn and error share their values
// with slog; trace sits below debug and notice between info and warn.
type Level int

const (
	LevelTrace  Level = -8
	LevelDebug  Level = -4
	LevelInfo   Level = 0
	LevelNotice Level = 2
	LevelWarn   Level = 4
	LevelError  Level = 8
)

var levelNames = map[Level]string{
	LevelTrace:  "trace",
	LevelDebug:  "debug",
	LevelInfo:   "info",
	LevelNotice: "notice",
	LevelWarn:   "warn",
	LevelError:  "error",
}

// ParseLevel parses a case-insensitive level name.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return LevelTrace, nil
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "notice":
		return LevelNotice, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error", "err":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level: %q", s)
	}
}

// ToSlog converts l to a slog.Level.
func (l Level) ToSlog() slog.Level {
	return slog.Level(l)
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("Level(%d)", int(l))
}

// replaceLevel renders the non-slog levels by name instead of as
// offsets such as "DEBUG-4".
func replaceLevel(groups []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey || len(groups) != 0 {
		return a
	}
	lvl, ok := a.Value.Any().(slog.Level)
	if !ok {
		return a
	}
	switch Level(lvl) {
	case LevelTrace, LevelNotice:
		a.Value = slog.StringValue(strings.ToUpper(Level(lvl).String()))
	}
	return a
}
