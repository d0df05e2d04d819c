// Package bootstrap makes a daemon reachable at the socket path, spawning a
// detached one when nothing is listening.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"
)

const (
	defaultPollInterval = 25 * time.Millisecond
	defaultDialTimeout  = 250 * time.Millisecond
)

// ErrDaemonStart is returned when no daemon is reachable after a spawn attempt.
var ErrDaemonStart = errors.New("daemon failed to start")

// Spawner starts a detached daemon process.
type Spawner interface {
	Spawn() error
}

// SpawnFunc adapts a function to the Spawner interface.
type SpawnFunc func() error

func (f SpawnFunc) Spawn() error {
	return f()
}

// Options configures Connect.
type Options struct {
	SocketPath     string
	Spawner        Spawner
	StartupTimeout time.Duration
	PollInterval   time.Duration
	DialTimeout    time.Duration
	Logger         *slog.Logger
}

// Connect returns a connection to the daemon at opts.SocketPath.
//
// When the first dial fails a daemon is spawned once and the socket is
// polled until StartupTimeout elapses. There is no second spawn.
func Connect(ctx context.Context, opts Options) (net.Conn, error) {
	opts = withDefaults(opts)

	conn, err := dial(ctx, opts.SocketPath, opts.DialTimeout)
	if err == nil {
		return conn, nil
	}
	opts.Logger.Info("daemon not reachable; spawning", "path", opts.SocketPath, "error", err.Error())

	if opts.Spawner == nil {
		return nil, fmt.Errorf("%w: no spawner configured", ErrDaemonStart)
	}
	if err := opts.Spawner.Spawn(); err != nil {
		return nil, fmt.Errorf("%w: spawn: %w", ErrDaemonStart, err)
	}

	deadline := time.NewTimer(opts.StartupTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(opts.PollInterval)
	defer ticker.Stop()

	lastErr := err
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, fmt.Errorf("%w: %s not reachable after %s: %w", ErrDaemonStart, opts.SocketPath, opts.StartupTimeout, lastErr)
		case <-ticker.C:
			conn, err := dial(ctx, opts.SocketPath, opts.DialTimeout)
			if err == nil {
				opts.Logger.Info("daemon reachable after spawn", "path", opts.SocketPath)
				return conn, nil
			}
			lastErr = err
		}
	}
}

func dial(ctx context.Context, path string, timeout time.Duration) (net.Conn, error) {
	dialer := net.Dialer{Timeout: timeout}
	return dialer.DialContext(ctx, "unix", path)
}

func withDefaults(opts Options) Options {
	if opts.StartupTimeout <= 0 {
		opts.StartupTimeout = time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = defaultDialTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return opts
}
