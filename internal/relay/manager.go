package relay

import (
	"context"
	"errors"
	"sync"
)

var ErrShuttingDown = errors.New("relay is shutting down")

// Manager tracks running sessions so they can be cancelled together.
// Hijacked connections are invisible to http.Server.Shutdown.
type Manager struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	active int
	wg     sync.WaitGroup
}

func NewManager() *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{ctx: ctx, cancel: cancel}
}

// Run runs s to completion under the manager's lifetime.
func (m *Manager) Run(s *Session) (Termination, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return Termination{}, ErrShuttingDown
	}
	m.active++
	m.wg.Add(1)
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.active--
		m.mu.Unlock()
		m.wg.Done()
	}()

	return s.Run(m.ctx), nil
}

// Active returns the number of sessions currently running on this instance.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Shutdown stops accepting sessions, closes the running ones with 1001 and
// waits for them to finish or for ctx to expire.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
