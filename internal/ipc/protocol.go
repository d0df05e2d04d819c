// Package ipc implements the inhibitor daemon socket protocol: framed signals,
// socket ownership, and the one-exchange-per-connection server and client.
package ipc

import (
	"fmt"
	"strings"
)

// Signal is the request and response value exchanged with the daemon.
type Signal uint8

const (
	SignalQuery Signal = iota + 1
	SignalOn
	SignalOff
)

func (s Signal) String() string {
	switch s {
	case SignalQuery:
		return "query"
	case SignalOn:
		return "on"
	case SignalOff:
		return "off"
	default:
		return fmt.Sprintf("signal(%d)", uint8(s))
	}
}

// Valid reports whether s is one of the three defined signals.
func (s Signal) Valid() bool {
	return s >= SignalQuery && s <= SignalOff
}

// Status renders a state reply as the user-facing line.
func (s Signal) Status() string {
	return strings.ToUpper(s.String())
}

// ParseSignal maps a command name (query, on, off) to its Signal.
func ParseSignal(name string) (Signal, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "query":
		return SignalQuery, nil
	case "on":
		return SignalOn, nil
	case "off":
		return SignalOff, nil
	default:
		return 0, fmt.Errorf("unknown signal %q", name)
	}
}
