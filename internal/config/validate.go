package config

import (
	"fmt"
	"log/slog"
	"strings"
)

var inhibitWhats = map[string]struct{}{
	"shutdown":             {},
	"sleep":                {},
	"idle":                 {},
	"handle-power-key":     {},
	"handle-suspend-key":   {},
	"handle-hibernate-key": {},
	"handle-lid-switch":    {},
}

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if cfg.Client.ReplyTimeout <= 0 {
		return nil, fmt.Errorf("client.reply_timeout must be > 0")
	}
	if cfg.Client.StartupTimeout <= 0 {
		return nil, fmt.Errorf("client.startup_timeout must be > 0")
	}

	what := strings.TrimSpace(cfg.Inhibit.What)
	if what == "" {
		return nil, fmt.Errorf("inhibit.what must not be empty")
	}
	for _, part := range strings.Split(what, ":") {
		if _, ok := inhibitWhats[part]; !ok {
			return nil, fmt.Errorf("inhibit.what has unknown lock type %q", part)
		}
	}
	if strings.TrimSpace(cfg.Inhibit.Who) == "" {
		return nil, fmt.Errorf("inhibit.who must not be empty")
	}
	if strings.TrimSpace(cfg.Inhibit.Why) == "" {
		return nil, fmt.Errorf("inhibit.why must not be empty")
	}

	switch cfg.Inhibit.Mode {
	case "block":
	case "delay":
		if !strings.Contains(what, "sleep") && !strings.Contains(what, "shutdown") {
			warnings = append(warnings, Warning{
				Message: "inhibit.mode=delay only applies to sleep and shutdown locks",
			})
		}
	default:
		return nil, fmt.Errorf("inhibit.mode must be one of: block, delay")
	}

	if _, err := cfg.Log.SlogLevel(); err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}

	return warnings, nil
}

// SlogLevel parses Level (debug, info, warn, error).
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(l.Level))); err != nil {
		return slog.LevelInfo, err
	}
	return level, nil
}
