// Package doctor runs readiness diagnostics for the runtime dir, config, logind, and daemon.
package doctor

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rbright/inhibitor/internal/config"
	"github.com/rbright/inhibitor/internal/ipc"
	"github.com/rbright/inhibitor/internal/logind"
)

const checkTimeout = 2 * time.Second

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Pinger is a session manager connection that can be health-checked.
type Pinger interface {
	Ping(ctx context.Context) error
	io.Closer
}

// Probes supplies the environment lookups doctor depends on.
type Probes struct {
	SocketPath     func() (string, error)
	SessionManager func() (Pinger, error)
}

// DefaultProbes checks the real runtime dir and system bus.
func DefaultProbes() Probes {
	return Probes{
		SocketPath: ipc.RuntimeSocketPath,
		SessionManager: func() (Pinger, error) {
			return logind.Connect()
		},
	}
}

// Run executes environment/config/runtime checks for a loaded config.
func Run(ctx context.Context, cfg config.Loaded, probes Probes) Report {
	checks := []Check{checkConfig(cfg)}

	socketPath, err := probes.SocketPath()
	if err != nil {
		checks = append(checks, Check{Name: "runtime_dir", Pass: false, Message: err.Error()})
	} else {
		checks = append(checks, Check{Name: "runtime_dir", Pass: true, Message: fmt.Sprintf("socket path %q", socketPath)})
	}

	checks = append(checks, checkSessionManager(ctx, probes.SessionManager))

	if err == nil {
		checks = append(checks, checkDaemon(ctx, socketPath))
	}

	return Report{Checks: checks}
}

func checkConfig(cfg config.Loaded) Check {
	if !cfg.Exists {
		return Check{Name: "config", Pass: true, Message: fmt.Sprintf("%q not found; using defaults", cfg.Path)}
	}
	return Check{Name: "config", Pass: true, Message: fmt.Sprintf("loaded %q", cfg.Path)}
}

// checkSessionManager connects to logind and pings it.
func checkSessionManager(ctx context.Context, connect func() (Pinger, error)) Check {
	manager, err := connect()
	if err != nil {
		return Check{Name: "logind", Pass: false, Message: err.Error()}
	}
	defer func() { _ = manager.Close() }()

	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	if err := manager.Ping(ctx); err != nil {
		return Check{Name: "logind", Pass: false, Message: err.Error()}
	}
	return Check{Name: "logind", Pass: true, Message: "org.freedesktop.login1 reachable on the system bus"}
}

// checkDaemon reports whether a daemon answers on the socket. A missing
// daemon passes: the next client command starts one.
func checkDaemon(ctx context.Context, socketPath string) Check {
	alive, err := ipc.Probe(ctx, socketPath, checkTimeout)
	switch {
	case alive:
		return Check{Name: "daemon", Pass: true, Message: "listening"}
	case err != nil:
		return Check{Name: "daemon", Pass: false, Message: fmt.Sprintf("probe failed: %v", err)}
	default:
		return Check{Name: "daemon", Pass: true, Message: "not running; started on demand"}
	}
}
