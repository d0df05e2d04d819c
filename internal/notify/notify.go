// Package notify shows freedesktop desktop notifications when the idle
// inhibition state changes.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
)

const (
	service      = "org.freedesktop.Notifications"
	objectPath   = dbus.ObjectPath("/org/freedesktop/Notifications")
	notifyMethod = "org.freedesktop.Notifications.Notify"

	appName       = "inhibitor"
	expireTimeout = int32(3000)
	callTimeout   = 2 * time.Second
)

// busObject is the subset of dbus.BusObject used here.
type busObject interface {
	CallWithContext(ctx context.Context, method string, flags dbus.Flags, args ...interface{}) *dbus.Call
}

// Desktop sends one replaceable notification per state change.
type Desktop struct {
	logger *slog.Logger
	conn   *dbus.Conn
	obj    busObject

	mu             sync.Mutex
	notificationID uint32
}

// ConnectDesktop opens the session bus used for notifications.
func ConnectDesktop(logger *slog.Logger) (*Desktop, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}
	return &Desktop{logger: logger, conn: conn, obj: conn.Object(service, objectPath)}, nil
}

// StateChanged shows "Idle inhibition on/off". Failures are logged only.
func (d *Desktop) StateChanged(ctx context.Context, held bool) {
	summary := "Idle inhibition off"
	if held {
		summary = "Idle inhibition on"
	}

	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	if err := d.send(ctx, summary); err != nil && d.logger != nil {
		d.logger.Warn("desktop notification failed", "error", err.Error())
	}
}

// send replaces the previous notification so only one stays on screen.
func (d *Desktop) send(ctx context.Context, summary string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var id uint32
	call := d.obj.CallWithContext(ctx, notifyMethod, 0,
		appName,
		d.notificationID,
		"",
		summary,
		"",
		[]string{},
		map[string]dbus.Variant{},
		expireTimeout,
	)
	if err := call.Store(&id); err != nil {
		return fmt.Errorf("desktop notify: %w", err)
	}
	d.notificationID = id
	return nil
}

// Close closes the session bus connection.
func (d *Desktop) Close() error {
	if d.conn == nil {
		return nil
	}
	return d.conn.Close()
}
