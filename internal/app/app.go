// Package app wires the CLI grammar to the client, daemon, and doctor paths.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/rbright/inhibitor/internal/bootstrap"
	"github.com/rbright/inhibitor/internal/cli"
	"github.com/rbright/inhibitor/internal/config"
	"github.com/rbright/inhibitor/internal/daemon"
	"github.com/rbright/inhibitor/internal/doctor"
	"github.com/rbright/inhibitor/internal/inhibit"
	"github.com/rbright/inhibitor/internal/ipc"
	"github.com/rbright/inhibitor/internal/logging"
	"github.com/rbright/inhibitor/internal/logind"
	"github.com/rbright/inhibitor/internal/notify"
	"github.com/rbright/inhibitor/internal/version"
)

const binaryName = "inhibitor"

// SessionManager is a closable inhibit.SessionManager connection.
type SessionManager interface {
	inhibit.SessionManager
	io.Closer
}

type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger

	// Spawner starts a daemon for client commands. Nil re-executes this binary.
	Spawner bootstrap.Spawner
	// ConnectSessionManager opens the daemon's session manager. Nil uses logind.
	ConnectSessionManager func() (SessionManager, error)
	// Probes overrides the doctor environment lookups.
	Probes *doctor.Probes
}

func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

func (r Runner) Execute(ctx context.Context, args []string) int {
	parsed, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cli.HelpText(binaryName))
		return 2
	}

	if parsed.ShowHelp {
		fmt.Fprint(r.Stdout, cli.HelpText(binaryName))
		return 0
	}

	if parsed.Command == cli.CommandVersion {
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	}

	cfgLoaded, err := config.Load(parsed.ConfigPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	level, err := cfgLoaded.Config.Log.SlogLevel()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if parsed.Debug {
		level = slog.LevelDebug
	}

	role := "client"
	if parsed.Command == cli.CommandDaemon {
		role = "daemon"
	}
	logRuntime, err := logging.New(role, level)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
		return 1
	}
	defer func() { _ = logRuntime.Close() }()

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}

	for _, w := range cfgLoaded.Warnings {
		logger.Warn("config warning", "line", w.Line, "message", w.Message)
		if !cfgLoaded.Exists || parsed.Command == cli.CommandDaemon {
			continue
		}
		msg := w.Message
		if w.Line > 0 {
			msg = fmt.Sprintf("line %d: %s", w.Line, w.Message)
		}
		fmt.Fprintf(r.Stderr, "warning: %s\n", msg)
	}

	logger.Debug("command start",
		"command", parsed.Command,
		"config", cfgLoaded.Path,
		"log", logRuntime.Path,
	)

	switch parsed.Command {
	case cli.CommandQuery, cli.CommandOn, cli.CommandOff:
		return r.commandSignal(ctx, parsed, cfgLoaded.Config, logger)
	case cli.CommandDaemon:
		return r.commandDaemon(ctx, cfgLoaded.Config, logger)
	case cli.CommandDoctor:
		probes := doctor.DefaultProbes()
		if r.Probes != nil {
			probes = *r.Probes
		}
		report := doctor.Run(ctx, cfgLoaded, probes)
		fmt.Fprintln(r.Stdout, report.String())
		if report.OK() {
			return 0
		}
		return 1
	default:
		fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", parsed.Command)
		return 2
	}
}

// commandSignal sends one request to the daemon, starting it if needed, and
// prints the reported state.
func (r Runner) commandSignal(ctx context.Context, parsed cli.Parsed, cfg config.Config, logger *slog.Logger) int {
	sig, err := ipc.ParseSignal(string(parsed.Command))
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 2
	}

	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	spawner, err := r.spawner(parsed)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	conn, err := bootstrap.Connect(ctx, bootstrap.Options{
		SocketPath:     socketPath,
		Spawner:        spawner,
		StartupTimeout: cfg.Client.StartupTimeout,
		Logger:         logger,
	})
	if err != nil {
		logger.Error("connect daemon failed", "path", socketPath, "error", err.Error())
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	reply, err := ipc.Exchange(conn, sig, cfg.Client.ReplyTimeout)
	if err != nil {
		logger.Error("request failed", "signal", sig.String(), "error", err.Error())
		fmt.Fprintf(r.Stderr, "error: %s: %v\n", sig, err)
		return 1
	}

	logger.Info("request complete", "signal", sig.String(), "reply", reply.String())
	fmt.Fprintln(r.Stdout, reply.Status())
	return 0
}

func (r Runner) spawner(parsed cli.Parsed) (bootstrap.Spawner, error) {
	if r.Spawner != nil {
		return r.Spawner, nil
	}

	args := []string{string(cli.CommandDaemon)}
	if parsed.ConfigPath != "" {
		args = append(args, "--config", parsed.ConfigPath)
	}
	if parsed.Debug {
		args = append(args, "--debug")
	}
	return bootstrap.SelfSpawner(args...)
}

// commandDaemon runs the daemon until ctx is cancelled.
func (r Runner) commandDaemon(ctx context.Context, cfg config.Config, logger *slog.Logger) int {
	signal.Ignore(syscall.SIGHUP)

	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		logger.Error("daemon startup failed", "error", err.Error())
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	connect := r.ConnectSessionManager
	if connect == nil {
		connect = func() (SessionManager, error) { return logind.Connect() }
	}
	manager, err := connect()
	if err != nil {
		err = fmt.Errorf("%w: %w", daemon.ErrStartup, err)
		logger.Error("daemon startup failed", "error", err.Error())
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer func() { _ = manager.Close() }()

	var listener inhibit.StateListener
	if cfg.Notify.Enable {
		desktop, err := notify.ConnectDesktop(logger)
		if err != nil {
			logger.Warn("desktop notifications disabled", "error", err.Error())
		} else {
			defer func() { _ = desktop.Close() }()
			listener = desktop
		}
	}

	err = daemon.Run(ctx, daemon.Config{
		SocketPath: socketPath,
		Request: inhibit.Request{
			What: cfg.Inhibit.What,
			Who:  cfg.Inhibit.Who,
			Why:  cfg.Inhibit.Why,
			Mode: cfg.Inhibit.Mode,
		},
		Manager:  manager,
		Listener: listener,
		Logger:   logger,
	})
	if errors.Is(err, ipc.ErrAlreadyRunning) {
		logger.Info("daemon already running; exiting", "path", socketPath)
		return 0
	}
	if err != nil {
		logger.Error("daemon failed", "error", err.Error())
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}
