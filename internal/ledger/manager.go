package ledger

import (
	"context"
	"log/slog"
	"sync"

	"github.com/cyberlover-ai/cyberlover/internal/store"
)

// Manager hands out per-user ledger instances to the HTTP layer. One ledger
// exists per signed-in user at a time; concurrent requests for the same user
// share it.
type Manager struct {
	store store.DocumentStore

	mu      sync.Mutex
	ledgers map[string]*Ledger
}

// NewManager creates a ledger manager backed by the given store.
func NewManager(st store.DocumentStore) *Manager {
	return &Manager{
		store:   st,
		ledgers: make(map[string]*Ledger),
	}
}

// Acquire returns the ledger for userID, creating and loading it on first
// use. A load failure still yields a usable ledger (zero balance, nil
// metrics) so the session keeps working against an unreachable store; the
// load is retried on the next Acquire so the degraded state does not stick
// once the store recovers.
func (m *Manager) Acquire(ctx context.Context, userID string) (*Ledger, error) {
	m.mu.Lock()
	l, ok := m.ledgers[userID]
	if !ok {
		l = New(m.store)
		l.SetSession(userID)
		m.ledgers[userID] = l
	}
	m.mu.Unlock()

	if !l.Loaded() {
		if err := l.LoadUserRecord(ctx, userID); err != nil {
			return l, err
		}
	}
	return l, nil
}

// Peek returns the ledger for userID without creating one.
func (m *Manager) Peek(userID string) *Ledger {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ledgers[userID]
}

// Release tears down the ledger for userID: signs the session out, waits for
// in-flight reconciliations, and forgets the instance.
func (m *Manager) Release(userID string) {
	m.mu.Lock()
	l, ok := m.ledgers[userID]
	if ok {
		delete(m.ledgers, userID)
	}
	m.mu.Unlock()

	if !ok {
		return
	}
	l.SetSession("")
	l.Flush()
	slog.Info("Ledger session released", "user_id", userID)
}

// Close flushes every active ledger. Called during graceful shutdown.
func (m *Manager) Close() {
	m.mu.Lock()
	ledgers := make([]*Ledger, 0, len(m.ledgers))
	for _, l := range m.ledgers {
		ledgers = append(ledgers, l)
	}
	m.ledgers = make(map[string]*Ledger)
	m.mu.Unlock()

	for _, l := range ledgers {
		l.Flush()
	}
}
