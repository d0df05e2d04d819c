// Package logind grants idle-inhibition leases from systemd-logind over the
// system D-Bus.
package logind

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/godbus/dbus/v5"

	"github.com/rbright/inhibitor/internal/inhibit"
)

const (
	service       = "org.freedesktop.login1"
	objectPath    = dbus.ObjectPath("/org/freedesktop/login1")
	inhibitMethod = "org.freedesktop.login1.Manager.Inhibit"
	pingMethod    = "org.freedesktop.DBus.Peer.Ping"
)

// busObject is the subset of dbus.BusObject used here.
type busObject interface {
	CallWithContext(ctx context.Context, method string, flags dbus.Flags, args ...interface{}) *dbus.Call
}

// Manager is an inhibit.SessionManager backed by logind.
type Manager struct {
	conn *dbus.Conn
	obj  busObject
}

// Connect opens a private connection to the system bus.
func Connect() (*Manager, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect system bus: %w", err)
	}
	return &Manager{conn: conn, obj: conn.Object(service, objectPath)}, nil
}

// Inhibit calls Manager.Inhibit and returns the lease file descriptor.
// Closing the returned handle releases the lease.
func (m *Manager) Inhibit(ctx context.Context, req inhibit.Request) (inhibit.Handle, error) {
	var fd dbus.UnixFD
	call := m.obj.CallWithContext(ctx, inhibitMethod, 0, req.What, req.Who, req.Why, req.Mode)
	if err := call.Store(&fd); err != nil {
		return nil, fmt.Errorf("logind inhibit %s: %w", req.What, err)
	}
	if fd < 0 {
		return nil, errors.New("logind inhibit returned invalid fd")
	}
	return os.NewFile(uintptr(fd), "logind-inhibit"), nil
}

// Ping checks that logind answers on the bus.
func (m *Manager) Ping(ctx context.Context) error {
	if err := m.obj.CallWithContext(ctx, pingMethod, 0).Store(); err != nil {
		return fmt.Errorf("ping %s: %w", service, err)
	}
	return nil
}

// Close closes the bus connection. Leases already handed out stay valid.
func (m *Manager) Close() error {
	if m.conn == nil {
		return nil
	}
	return m.conn.Close()
}

var _ inhibit.SessionManager = (*Manager)(nil)
