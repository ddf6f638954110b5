// Package ledger owns credit balance and usage metrics for the current
// authenticated session. It is the single component allowed to mutate a
// user's remote document.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cyberlover-ai/cyberlover/internal/domain"
	"github.com/cyberlover-ai/cyberlover/internal/store"
)

const (
	// StarterCredits is the balance granted to a freshly created account.
	StarterCredits = 100
	// MessageCost is the per-message credit cost.
	MessageCost = 1

	remoteWriteTimeout = 10 * time.Second
)

// Ledger mirrors one user's remote document for the lifetime of their
// session. Local state is authoritative for responsiveness; every mutation
// applies locally first and reconciles with the store asynchronously
// (last-writer-wins, no rollback on remote failure).
type Ledger struct {
	store store.DocumentStore

	mu                  sync.Mutex
	userID              string
	email               string
	credits             int
	metrics             *domain.UsageMetrics
	selection           domain.CompanionSelection
	conversationCounted bool
	loaded              bool

	wg sync.WaitGroup
}

// New creates a ledger with no active session.
func New(st store.DocumentStore) *Ledger {
	return &Ledger{store: st, selection: domain.CompanionSelection{Gender: domain.GenderFemale}}
}

// SetSession sets the current user identity. Passing an empty ID signs the
// session out and clears session-scoped markers. Unchanged identity is a
// no-op.
func (l *Ledger) SetSession(userID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.userID == userID {
		return
	}

	l.userID = userID
	l.conversationCounted = false
	l.loaded = false
	l.email = ""
	if userID == "" {
		l.credits = 0
		l.metrics = nil
		l.selection = domain.CompanionSelection{Gender: domain.GenderFemale}
	}
}

// UserID returns the current session identity, or "" when signed out.
func (l *Ledger) UserID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.userID
}

// LoadUserRecord fetches the user's remote document into local state,
// creating it with starter credits when absent. On store failure the local
// balance falls back to zero and metrics stay nil ("not yet loaded"); the
// ledger stays unloaded so a later load can retry against a recovered store.
func (l *Ledger) LoadUserRecord(ctx context.Context, userID string) error {
	rec, err := l.store.GetUser(ctx, userID)
	if err != nil {
		l.mu.Lock()
		l.userID = userID
		l.credits = 0
		l.metrics = nil
		l.loaded = false
		l.mu.Unlock()
		return fmt.Errorf("load user record: %w", err)
	}

	if rec == nil {
		rec = &domain.UserRecord{UserID: userID, Credits: StarterCredits}
		if err := l.store.CreateUser(ctx, rec); err != nil {
			l.mu.Lock()
			l.userID = userID
			l.credits = 0
			l.metrics = nil
			l.loaded = false
			l.mu.Unlock()
			return fmt.Errorf("create user record: %w", err)
		}
	}

	rec.Metrics.Normalize()
	metrics := rec.Metrics

	l.mu.Lock()
	if l.userID != userID {
		l.conversationCounted = false
	}
	l.userID = userID
	l.email = rec.Email
	l.credits = rec.Credits
	l.metrics = &metrics
	l.loaded = true
	l.mu.Unlock()
	return nil
}

// Loaded reports whether the remote document has been read into local state.
// An unloaded ledger holds fallback values (zero balance, nil metrics) that
// must not be written back as absolute truth.
func (l *Ledger) Loaded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loaded
}

// Email returns the account email captured at load, or "" when unloaded.
func (l *Ledger) Email() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.email
}

// Credits returns the local credit balance.
func (l *Ledger) Credits() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.credits
}

// Metrics returns a copy of the local usage metrics, or nil when they have
// not been loaded yet.
func (l *Ledger) Metrics() *domain.UsageMetrics {
	l.mu.Lock()
	defer l.mu.Unlock()
	return copyMetrics(l.metrics)
}

// Selection returns the current companion selection.
func (l *Ledger) Selection() domain.CompanionSelection {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.selection
}

// CanSend reports whether the balance covers one message.
func (l *Ledger) CanSend() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.userID != "" && l.credits >= MessageCost
}

// SpendCredits decrements the balance by amount, clamping at zero, and
// reconciles balance plus creditsUsed with the store. Silent no-op when
// amount <= 0 or no session is active.
func (l *Ledger) SpendCredits(amount int) {
	if amount <= 0 {
		return
	}

	l.mu.Lock()
	if l.userID == "" {
		l.mu.Unlock()
		return
	}
	l.credits -= amount
	if l.credits < 0 {
		l.credits = 0
	}
	newBalance := l.credits
	if l.metrics != nil {
		l.metrics.CreditsUsed += amount
	}
	userID := l.userID
	l.mu.Unlock()

	l.reconcile(userID, "spend credits", func(ctx context.Context) error {
		if err := l.store.UpdateCredits(ctx, userID, newBalance); err != nil {
			return err
		}
		return l.store.ApplyMetricsDelta(ctx, userID, domain.MetricsDelta{CreditsUsed: amount})
	})
}

// GrantCredits increments the balance locally and remotely. Silent no-op
// when amount <= 0 or no session is active.
func (l *Ledger) GrantCredits(amount int) {
	if amount <= 0 {
		return
	}

	l.mu.Lock()
	if l.userID == "" {
		l.mu.Unlock()
		return
	}
	l.credits += amount
	newBalance := l.credits
	userID := l.userID
	l.mu.Unlock()

	l.reconcile(userID, "grant credits", func(ctx context.Context) error {
		return l.store.UpdateCredits(ctx, userID, newBalance)
	})
}

// SelectCompanion sets the companion selection and refreshes lastOnline.
// Switching to a different companion type from a previous non-empty one
// starts a new conversation; gender-only changes never do. Entering chat for
// the very first time is counted by RecordConversationStarted instead.
func (l *Ledger) SelectCompanion(companionType domain.CompanionType, gender domain.Gender) error {
	if !companionType.Valid() {
		return fmt.Errorf("invalid companion type %q", companionType)
	}
	if !gender.Valid() {
		return fmt.Errorf("invalid gender %q", gender)
	}

	l.mu.Lock()
	if l.userID == "" {
		l.mu.Unlock()
		return nil
	}

	previous := l.selection.Type
	switched := previous != "" && previous != companionType
	l.selection = domain.CompanionSelection{Type: companionType, Gender: gender}

	now := time.Now()
	if l.metrics != nil {
		l.metrics.LastOnline = &now
		if switched {
			l.metrics.TotalConversations++
		}
	}
	userID := l.userID
	l.mu.Unlock()

	delta := domain.MetricsDelta{TouchOnline: true}
	if switched {
		delta.Conversations = 1
	}
	l.reconcile(userID, "select companion", func(ctx context.Context) error {
		return l.store.ApplyMetricsDelta(ctx, userID, delta)
	})
	return nil
}

// RecordMessageExchanged increments messagesExchanged and the current
// companion's interaction counter, and refreshes lastOnline. Silent no-op
// without a session or companion selection.
func (l *Ledger) RecordMessageExchanged() {
	l.mu.Lock()
	if l.userID == "" || l.selection.Type == "" {
		l.mu.Unlock()
		return
	}

	companionType := l.selection.Type
	now := time.Now()
	if l.metrics != nil {
		l.metrics.MessagesExchanged++
		l.metrics.CompanionInteractions[companionType]++
		l.metrics.LastOnline = &now
	}
	userID := l.userID
	l.mu.Unlock()

	l.reconcile(userID, "record message", func(ctx context.Context) error {
		return l.store.ApplyMetricsDelta(ctx, userID, domain.MetricsDelta{
			Messages:    1,
			Interaction: companionType,
			TouchOnline: true,
		})
	})
}

// RecordConversationStarted increments totalConversations, at most once per
// session. Further conversation counting happens only on companion switches
// in SelectCompanion.
func (l *Ledger) RecordConversationStarted() {
	l.mu.Lock()
	if l.userID == "" || l.conversationCounted {
		l.mu.Unlock()
		return
	}
	l.conversationCounted = true
	if l.metrics != nil {
		l.metrics.TotalConversations++
	}
	userID := l.userID
	l.mu.Unlock()

	l.reconcile(userID, "record conversation", func(ctx context.Context) error {
		return l.store.ApplyMetricsDelta(ctx, userID, domain.MetricsDelta{Conversations: 1})
	})
}

// TouchLastOnline is a best-effort, fire-and-forget liveness ping.
func (l *Ledger) TouchLastOnline() {
	l.mu.Lock()
	if l.userID == "" {
		l.mu.Unlock()
		return
	}
	now := time.Now()
	if l.metrics != nil {
		l.metrics.LastOnline = &now
	}
	userID := l.userID
	l.mu.Unlock()

	l.reconcile(userID, "touch last online", func(ctx context.Context) error {
		return l.store.TouchLastOnline(ctx, userID, now)
	})
}

// Flush blocks until all in-flight remote reconciliations have finished.
func (l *Ledger) Flush() {
	l.wg.Wait()
}

// reconcile runs a remote write in the background. Failures are logged and
// never rolled back locally; the client stays responsive on a stale store.
func (l *Ledger) reconcile(userID, op string, fn func(ctx context.Context) error) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), remoteWriteTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			slog.Warn("Ledger remote reconcile failed", "op", op, "user_id", userID, "error", err)
		}
	}()
}

func copyMetrics(m *domain.UsageMetrics) *domain.UsageMetrics {
	if m == nil {
		return nil
	}
	out := *m
	out.CompanionInteractions = make(map[domain.CompanionType]int, len(m.CompanionInteractions))
	for k, v := range m.CompanionInteractions {
		out.CompanionInteractions[k] = v
	}
	return &out
}
