package ipc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"
)

var (
	// ErrTimeout is returned when no reply arrives before the deadline.
	ErrTimeout = errors.New("timed out waiting for daemon reply")

	// ErrNoReply is returned when the daemon closes the connection without
	// sending a complete reply frame.
	ErrNoReply = errors.New("daemon closed connection without reply")
)

// Send dials path and performs one request/reply exchange with a deadline.
func Send(ctx context.Context, path string, sig Signal, timeout time.Duration) (Signal, error) {
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "unix", path)
	if err != nil {
		return 0, err
	}
	return Exchange(conn, sig, timeout)
}

// Exchange writes one request frame on conn and waits for one reply frame.
// Only SignalOn and SignalOff are accepted as replies.
// conn is closed before Exchange returns.
func Exchange(conn net.Conn, sig Signal, timeout time.Duration) (Signal, error) {
	defer conn.Close()

	deadline := time.Now().Add(timeout)
	if err := conn.SetDeadline(deadline); err != nil {
		return 0, fmt.Errorf("set deadline: %w", err)
	}

	if err := WriteSignal(conn, sig); err != nil {
		return 0, fmt.Errorf("send request: %w", classify(err))
	}

	reply, err := NewDecoder(conn).Decode()
	if err != nil {
		return 0, fmt.Errorf("read reply: %w", classify(err))
	}
	if reply != SignalOn && reply != SignalOff {
		return 0, fmt.Errorf("read reply: %w: %s is not a state", ErrProtocol, reply)
	}
	return reply, nil
}

// classify maps transport failures onto the package sentinels.
func classify(err error) error {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return ErrTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrNoReply
	}
	return err
}
