package inhibit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// fakeManager records inhibit calls and can simulate failures or slow calls.
type fakeManager struct {
	mu       sync.Mutex
	calls    []Request
	handles  []*fakeHandle
	err      error
	delay    time.Duration
	inFlight atomic.Int32
	overlap  atomic.Bool
}

func (m *fakeManager) Inhibit(_ context.Context, req Request) (Handle, error) {
	if m.inFlight.Add(1) > 1 {
		m.overlap.Store(true)
	}
	defer m.inFlight.Add(-1)

	if m.delay > 0 {
		time.Sleep(m.delay)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, req)
	if m.err != nil {
		return nil, m.err
	}
	h := &fakeHandle{}
	m.handles = append(m.handles, h)
	return h, nil
}

func (m *fakeManager) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *fakeManager) setErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *fakeManager) handle(idx int) *fakeHandle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handles[idx]
}

type fakeHandle struct {
	closed atomic.Int32
	err    error
}

func (h *fakeHandle) Close() error {
	h.closed.Add(1)
	return h.err
}

type recordingListener struct {
	events chan bool
}

func (l *recordingListener) StateChanged(_ context.Context, held bool) {
	l.events <- held
}

type slowListener struct {
	delay time.Duration

	mu     sync.Mutex
	events []bool
}

func (l *slowListener) StateChanged(_ context.Context, held bool) {
	time.Sleep(l.delay)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, held)
}

func (l *slowListener) recorded() []bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]bool(nil), l.events...)
}
