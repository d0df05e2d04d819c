// Package config resolves, parses, validates, and defaults inhibitor configuration.
package config

import "time"

// Config is the fully materialized runtime configuration.
type Config struct {
	Client  ClientConfig
	Inhibit InhibitConfig
	Notify  NotifyConfig
	Log     LogConfig
}

// ClientConfig bounds how long one CLI invocation waits on the daemon.
type ClientConfig struct {
	ReplyTimeout   time.Duration
	StartupTimeout time.Duration
}

// InhibitConfig holds the arguments passed to logind Manager.Inhibit.
type InhibitConfig struct {
	What string
	Who  string
	Why  string
	Mode string
}

// NotifyConfig controls desktop notifications on state change.
type NotifyConfig struct {
	Enable bool
}

// LogConfig controls the JSONL log level.
type LogConfig struct {
	Level string
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}
