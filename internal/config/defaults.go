package config

import "time"

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	return Config{
		Client: ClientConfig{
			ReplyTimeout:   3 * time.Second,
			StartupTimeout: time.Second,
		},
		Inhibit: InhibitConfig{
			What: "idle",
			Who:  "inhibitor",
			Why:  "User request",
			Mode: "block",
		},
		Notify: NotifyConfig{Enable: false},
		Log:    LogConfig{Level: "info"},
	}
}
