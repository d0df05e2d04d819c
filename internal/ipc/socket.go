package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

// SocketName is the daemon socket file name under the runtime directory.
const SocketName = "inhibitor.sock"

var ErrAlreadyRunning = errors.New("inhibitor daemon already running")

// RuntimeSocketPath returns $XDG_RUNTIME_DIR/inhibitor.sock.
func RuntimeSocketPath() (string, error) {
	runtimeDir := strings.TrimSpace(os.Getenv("XDG_RUNTIME_DIR"))
	if runtimeDir == "" {
		return "", errors.New("XDG_RUNTIME_DIR is not set")
	}
	return filepath.Join(runtimeDir, SocketName), nil
}

// Acquire takes the socket lock and binds the daemon socket at path.
//
// The lock file next to the socket is held for the listener's lifetime, so
// only its holder may unlink or bind path. Binding is attempted first; a
// stale socket file is only removed after a probe shows nothing is
// listening on it. A held lock or a live listener yields ErrAlreadyRunning
// and an inconclusive probe leaves the file in place.
func Acquire(
	ctx context.Context,
	path string,
	probeTimeout time.Duration,
	retries int,
	logger *slog.Logger,
) (net.Listener, error) {
	if logger == nil {
		logger = discardLogger()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("ensure runtime socket dir: %w", err)
	}

	lock, err := lockSocket(path)
	if err != nil {
		return nil, err
	}

	listener, err := bindSocket(ctx, path, probeTimeout, retries, logger)
	if err != nil {
		_ = lock.Close()
		return nil, err
	}
	return &ownedListener{Listener: listener, lock: lock}, nil
}

func bindSocket(
	ctx context.Context,
	path string,
	probeTimeout time.Duration,
	retries int,
	logger *slog.Logger,
) (net.Listener, error) {
	for attempt := 0; attempt <= retries; attempt++ {
		listener, err := net.Listen("unix", path)
		if err == nil {
			_ = os.Chmod(path, 0o600)
			return listener, nil
		}

		if !isAddrInUse(err) {
			return nil, fmt.Errorf("listen unix %s: %w", path, err)
		}

		alive, probeErr := Probe(ctx, path, probeTimeout)
		if alive {
			return nil, ErrAlreadyRunning
		}
		if probeErr != nil {
			return nil, fmt.Errorf("probe existing socket %s: %w", path, probeErr)
		}

		if removeErr := os.Remove(path); removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
			return nil, fmt.Errorf("remove stale socket %s: %w", path, removeErr)
		}
		logger.Info("removed stale socket", "path", path, "attempt", attempt)

		if attempt < retries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(25*(attempt+1)) * time.Millisecond):
			}
		}
	}

	return nil, fmt.Errorf("failed to acquire socket %s after %d retries", path, retries)
}

// Probe reports whether a listener currently accepts connections on path.
//
// A missing socket or a refused connection is a definite "no"; any other
// dial failure is returned as an error.
func Probe(ctx context.Context, path string, timeout time.Duration) (bool, error) {
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "unix", path)
	if err == nil {
		_ = conn.Close()
		return true, nil
	}
	if IsUnreachable(err) {
		return false, nil
	}
	return false, fmt.Errorf("probe socket: %w", err)
}

// IsUnreachable reports dial failures meaning no daemon is listening.
func IsUnreachable(err error) bool {
	return isSocketMissing(err) || isConnectionRefused(err)
}

// isSocketMissing reports absent-socket failures.
func isSocketMissing(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, os.ErrNotExist)
}

// isConnectionRefused reports no-listener failures.
func isConnectionRefused(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, syscall.ECONNREFUSED)
}

func isAddrInUse(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, syscall.EADDRINUSE) || strings.Contains(err.Error(), "address already in use")
}
