package logging

import "log/slog"

// LevelVar wraps slog.LevelVar with a string-based setter, so the
// observability API's POST /api/config can accept plain level names
// ("debug", "info", "warn", "error") over JSON (§6 LOG_LEVEL, §4.9).
type LevelVar struct {
	slog.LevelVar
}

// Set parses name and applies it, returning an error for anything slog
// doesn't recognize.
func (v *LevelVar) Set(name string) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return err
	}
	v.LevelVar.Set(level)
	return nil
}
