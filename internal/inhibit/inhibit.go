// Package inhibit owns the idle-inhibition lease and serializes every
// query, acquire, and release through one goroutine.
package inhibit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/rbright/inhibitor/internal/ipc"
)

var (
	// ErrSessionManager wraps failures of the external inhibit call.
	ErrSessionManager = errors.New("session manager inhibit failed")

	// ErrStopped is returned for operations issued after Run has returned.
	ErrStopped = errors.New("inhibitor stopped")
)

// Request carries the arguments of one session manager inhibit call.
type Request struct {
	What string
	Who  string
	Why  string
	Mode string
}

// Handle is an active lease. Its existence is the inhibition; Close drops it.
type Handle interface {
	io.Closer
}

// SessionManager grants idle-inhibition leases.
type SessionManager interface {
	Inhibit(ctx context.Context, req Request) (Handle, error)
}

// StateListener observes held/released transitions.
type StateListener interface {
	StateChanged(ctx context.Context, held bool)
}

type opKind int

const (
	opQuery opKind = iota + 1
	opAcquire
	opRelease
)

type command struct {
	kind  opKind
	reply chan result
}

type result struct {
	held bool
	err  error
}

// Inhibitor is the single owner of the inhibition handle.
type Inhibitor struct {
	manager  SessionManager
	request  Request
	logger   *slog.Logger
	listener StateListener

	commands chan command
	done     chan struct{}

	// notifying tracks listener calls still running.
	notifying sync.WaitGroup

	// handle is only touched by the Run goroutine.
	handle Handle
}

// Option customizes an Inhibitor.
type Option func(*Inhibitor)

// WithLogger sets the logger used for lease transitions.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Inhibitor) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// WithStateListener registers a listener notified after each transition.
func WithStateListener(listener StateListener) Option {
	return func(i *Inhibitor) {
		i.listener = listener
	}
}

// New constructs an Inhibitor. No command is processed until Run is called.
func New(manager SessionManager, req Request, opts ...Option) *Inhibitor {
	i := &Inhibitor{
		manager:  manager,
		request:  req,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		commands: make(chan command),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Run processes commands one at a time until ctx is cancelled. A held lease
// is dropped, and every pending listener call has returned, before Run
// returns.
func (i *Inhibitor) Run(ctx context.Context) {
	defer close(i.done)
	defer i.notifying.Wait()
	defer i.drop(context.WithoutCancel(ctx))

	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-i.commands:
			cmd.reply <- i.apply(ctx, cmd.kind)
		}
	}
}

// Query reports whether a lease is currently held.
func (i *Inhibitor) Query(ctx context.Context) (bool, error) {
	res, err := i.submit(ctx, opQuery)
	if err != nil {
		return false, err
	}
	return res.held, res.err
}

// Acquire obtains a lease unless one is already held.
func (i *Inhibitor) Acquire(ctx context.Context) error {
	res, err := i.submit(ctx, opAcquire)
	if err != nil {
		return err
	}
	return res.err
}

// Release drops the held lease, if any. It always succeeds while Run is active.
func (i *Inhibitor) Release(ctx context.Context) error {
	res, err := i.submit(ctx, opRelease)
	if err != nil {
		return err
	}
	return res.err
}

// Handle maps a request signal to its operation and returns the reply signal.
func (i *Inhibitor) Handle(ctx context.Context, sig ipc.Signal) (ipc.Signal, error) {
	switch sig {
	case ipc.SignalQuery:
		held, err := i.Query(ctx)
		if err != nil {
			return 0, err
		}
		if held {
			return ipc.SignalOn, nil
		}
		return ipc.SignalOff, nil
	case ipc.SignalOn:
		if err := i.Acquire(ctx); err != nil {
			return 0, err
		}
		return ipc.SignalOn, nil
	case ipc.SignalOff:
		if err := i.Release(ctx); err != nil {
			return 0, err
		}
		return ipc.SignalOff, nil
	default:
		return 0, fmt.Errorf("unsupported signal %s", sig)
	}
}

// submit hands one command to the Run goroutine and waits for its result.
func (i *Inhibitor) submit(ctx context.Context, kind opKind) (result, error) {
	cmd := command{kind: kind, reply: make(chan result, 1)}

	select {
	case i.commands <- cmd:
	case <-i.done:
		return result{}, ErrStopped
	case <-ctx.Done():
		return result{}, ctx.Err()
	}

	// Once accepted the command runs to completion.
	return <-cmd.reply, nil
}

func (i *Inhibitor) apply(ctx context.Context, kind opKind) result {
	switch kind {
	case opQuery:
		return result{held: i.handle != nil}
	case opAcquire:
		if i.handle != nil {
			return result{held: true}
		}
		handle, err := i.manager.Inhibit(ctx, i.request)
		if err != nil {
			i.logger.Error("inhibit failed", "what", i.request.What, "error", err.Error())
			return result{err: fmt.Errorf("%w: %w", ErrSessionManager, err)}
		}
		i.handle = handle
		i.logger.Info("inhibit acquired", "what", i.request.What, "mode", i.request.Mode)
		i.notify(ctx, true)
		return result{held: true}
	case opRelease:
		i.drop(ctx)
		return result{}
	default:
		return result{err: fmt.Errorf("unknown operation %d", kind)}
	}
}

// drop closes the held handle. A close error is logged; the lease is gone
// either way.
func (i *Inhibitor) drop(ctx context.Context) {
	if i.handle == nil {
		return
	}
	if err := i.handle.Close(); err != nil {
		i.logger.Warn("close inhibit handle", "error", err.Error())
	}
	i.handle = nil
	i.logger.Info("inhibit released", "what", i.request.What)
	i.notify(ctx, false)
}

// notify runs the listener off the command loop so a slow listener never
// delays the next command.
func (i *Inhibitor) notify(ctx context.Context, held bool) {
	if i.listener == nil {
		return
	}
	i.notifying.Add(1)
	go func() {
		defer i.notifying.Done()
		i.listener.StateChanged(context.WithoutCancel(ctx), held)
	}()
}
