package ipc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"
)

const acceptBackoff = 50 * time.Millisecond

// Handler answers one decoded request signal.
//
// A returned error aborts the exchange: the connection is closed without a
// reply frame.
type Handler interface {
	Handle(context.Context, Signal) (Signal, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(context.Context, Signal) (Signal, error)

func (f HandlerFunc) Handle(ctx context.Context, sig Signal) (Signal, error) {
	return f(ctx, sig)
}

// Serve accepts unix-socket clients until context cancellation or listener close.
//
// Each connection carries exactly one request frame and at most one reply
// frame, and is handled on its own goroutine. Open connections are closed
// when ctx is done, and Serve returns once their handlers finish.
func Serve(ctx context.Context, listener net.Listener, handler Handler, logger *slog.Logger) error {
	if logger == nil {
		logger = discardLogger()
	}

	var wg sync.WaitGroup

	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				wg.Wait()
				return nil
			}
			logger.Error("accept IPC connection", "error", err.Error())
			select {
			case <-ctx.Done():
			case <-time.After(acceptBackoff):
			}
			continue
		}

		wg.Add(1)
		go func(c net.Conn) {
			defer wg.Done()
			defer c.Close()
			// Shutdown closes the conn so a stalled peer cannot block Serve.
			stop := context.AfterFunc(ctx, func() { _ = c.Close() })
			defer stop()
			defer func() {
				if r := recover(); r != nil {
					logger.Error("connection handler panic", "panic", fmt.Sprint(r))
				}
			}()

			if err := serveConn(ctx, c, handler); err != nil && ctx.Err() == nil {
				logger.Warn("connection dropped", "error", err.Error())
			}
		}(conn)
	}
}

// serveConn runs one request/reply exchange on c.
func serveConn(ctx context.Context, c net.Conn, handler Handler) error {
	req, err := NewDecoder(c).Decode()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("read request: %w", err)
	}

	reply, err := handler.Handle(ctx, req)
	if err != nil {
		return fmt.Errorf("handle %s: %w", req, err)
	}

	if err := WriteSignal(c, reply); err != nil {
		return fmt.Errorf("write reply: %w", err)
	}
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
