package session

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/parcel-cli/internal/catalog"
	"github.com/sells-group/parcel-cli/internal/dispatch"
	"github.com/sells-group/parcel-cli/internal/model"
)

// ErrShuttingDown is returned by Start once Shutdown has been called.
var ErrShuttingDown = eris.New("session: manager is shutting down")

// Manager tracks the active session of each consumer. Starting a search for
// a consumer cancels whatever that consumer was already running.
type Manager struct {
	catalog    *catalog.Catalog
	dispatcher *dispatch.Dispatcher
	opts       []Option
	beforeRun  func(ctx context.Context, consumerID string, s *Session)

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
	wg       sync.WaitGroup
}

// NewManager creates a Manager. opts apply to every session it starts.
func NewManager(cat *catalog.Catalog, d *dispatch.Dispatcher, opts ...Option) *Manager {
	return &Manager{
		catalog:    cat,
		dispatcher: d,
		opts:       opts,
		sessions:   make(map[string]*Session),
	}
}

// Start validates criteria, cancels the consumer's previous session, and
// runs the new one in the background until ctx is done or it finishes. An
// invalid search leaves the previous session running.
func (m *Manager) Start(ctx context.Context, consumerID string, criteria model.SearchCriteria, sink Sink) (*Session, error) {
	s, err := New(criteria, m.catalog, m.dispatcher, sink, m.opts...)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrShuttingDown
	}
	if prev, ok := m.sessions[consumerID]; ok && prev.Cancel() {
		zap.L().Debug("superseded search",
			zap.String("consumer", consumerID),
			zap.String("session_id", prev.ID()),
		)
	}
	m.sessions[consumerID] = s
	m.wg.Add(1)
	hook := m.beforeRun
	m.mu.Unlock()

	if hook != nil {
		hook(ctx, consumerID, s)
	}

	go func() {
		defer m.wg.Done()
		_ = s.Run(ctx)

		m.mu.Lock()
		if m.sessions[consumerID] == s {
			delete(m.sessions, consumerID)
		}
		m.mu.Unlock()
	}()
	return s, nil
}

// BeforeRun registers fn to run synchronously after a session is created
// and before it is dispatched.
func (m *Manager) BeforeRun(fn func(ctx context.Context, consumerID string, s *Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.beforeRun = fn
}

// Active returns the consumer's running session, if any.
func (m *Manager) Active(consumerID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[consumerID]
	return s, ok
}

// Cancel cancels the consumer's running session.
func (m *Manager) Cancel(consumerID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[consumerID]; ok {
		return s.Cancel()
	}
	return false
}

// Len returns the number of consumers with a running session.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Shutdown rejects new searches, cancels every session and waits for them
// to deliver their terminal events or for ctx to expire.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	for _, s := range m.sessions {
		s.Cancel()
	}
	m.mu.Unlock()

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
