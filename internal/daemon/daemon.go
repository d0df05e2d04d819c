// Package daemon runs the long-lived process that owns the idle-inhibition
// lease and answers CLI requests on the runtime socket.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/rbright/inhibitor/internal/inhibit"
	"github.com/rbright/inhibitor/internal/ipc"
)

const (
	acquireProbeTimeout = 200 * time.Millisecond
	acquireRetries      = 3
)

// ErrStartup marks failures that stop the daemon before it serves requests.
var ErrStartup = errors.New("daemon startup failed")

// Config holds everything the daemon needs to start.
type Config struct {
	SocketPath string
	Request    inhibit.Request
	Manager    inhibit.SessionManager
	Listener   inhibit.StateListener
	Logger     *slog.Logger
}

// Run binds the socket, starts the inhibitor, and serves until ctx is done.
//
// ipc.ErrAlreadyRunning is returned unwrapped when another daemon already
// answers on the socket.
func Run(ctx context.Context, cfg Config) error {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Manager == nil {
		return fmt.Errorf("%w: no session manager", ErrStartup)
	}

	listener, err := ipc.Acquire(ctx, cfg.SocketPath, acquireProbeTimeout, acquireRetries, logger)
	if err != nil {
		if errors.Is(err, ipc.ErrAlreadyRunning) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrStartup, err)
	}

	opts := []inhibit.Option{inhibit.WithLogger(logger)}
	if cfg.Listener != nil {
		opts = append(opts, inhibit.WithStateListener(cfg.Listener))
	}
	inh := inhibit.New(cfg.Manager, cfg.Request, opts...)

	actorCtx, stopActor := context.WithCancel(ctx)
	actorDone := make(chan struct{})
	go func() {
		defer close(actorDone)
		inh.Run(actorCtx)
	}()

	logger.Info("daemon listening", "path", cfg.SocketPath)
	serveErr := ipc.Serve(ctx, listener, inh, logger)

	stopActor()
	<-actorDone
	logger.Info("daemon stopped", "path", cfg.SocketPath)

	return serveErr
}
