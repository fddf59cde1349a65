package log

import (
	"log/slog"
	"strings"
)

// Level is a diagnostic severity on slog's scale.
type Level slog.Level

const (
	LevelDebug = Level(slog.LevelDebug)
	LevelInfo  = Level(slog.LevelInfo)
	LevelWarn  = Level(slog.LevelWarn)
	LevelError = Level(slog.LevelError)
)

func (l Level) String() string { return slog.Level(l).String() }

func (l Level) slogLevel() slog.Level { return slog.Level(l) }

// ParseLevel parses a level name case-insensitively. Unknown names fall
// back to info.
func ParseLevel(s string) Level {
	if strings.EqualFold(s, "warning") {
		return LevelWarn
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return LevelInfo
	}
	return Level(l)
}
