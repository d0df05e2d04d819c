package ipc

import (
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"syscall"
)

// LockPath returns the lock file guarding the socket at socketPath.
func LockPath(socketPath string) string {
	return socketPath + ".lock"
}

// lockSocket takes a non-blocking exclusive flock on the socket's lock file.
// The kernel drops the lock when the holder exits, even on SIGKILL.
func lockSocket(socketPath string) (*os.File, error) {
	path := LockPath(socketPath)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open socket lock %s: %w", path, err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = f.Close()
		if errors.Is(err, syscall.EWOULDBLOCK) {
			return nil, ErrAlreadyRunning
		}
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	return f, nil
}

// ownedListener releases the socket lock after the listener is closed.
type ownedListener struct {
	net.Listener
	lock *os.File
	once sync.Once
	err  error
}

func (l *ownedListener) Close() error {
	l.once.Do(func() {
		l.err = l.Listener.Close()
		_ = l.lock.Close()
	})
	return l.err
}
