package domain

import (
	"time"
)

// UserRecord is the per-user document held in the document store.
// It is the system of record for credits and usage metrics across sessions.
type UserRecord struct {
	UserID       string       `json:"user_id"`
	Email        string       `json:"email,omitempty"`
	PasswordHash string       `json:"-"`
	Credits      int          `json:"credits"`
	Metrics      UsageMetrics `json:"metrics"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// UsageMetrics is the usage sub-record of a user document.
type UsageMetrics struct {
	TotalConversations    int                   `json:"totalConversations"`
	LastOnline            *time.Time            `json:"lastOnline"`
	CompanionInteractions map[CompanionType]int `json:"companionInteractions"`
	MessagesExchanged     int                   `json:"messagesExchanged"`
	CreditsUsed           int                   `json:"creditsUsed"`
	CreatedAt             *time.Time            `json:"createdAt"`
}

// NewUsageMetrics returns a zeroed metrics record with every companion
// interaction key present.
func NewUsageMetrics() UsageMetrics {
	return UsageMetrics{
		CompanionInteractions: map[CompanionType]int{
			CompanionFriendly:     0,
			CompanionCool:         0,
			CompanionNaughty:      0,
			CompanionRomantic:     0,
			CompanionIntellectual: 0,
		},
	}
}

// Normalize back-fills missing companion interaction keys so that all five
// are always present, matching the document shape the UI expects.
func (m *UsageMetrics) Normalize() {
	if m.CompanionInteractions == nil {
		m.CompanionInteractions = make(map[CompanionType]int, len(CompanionTypes))
	}
	for _, t := range CompanionTypes {
		if _, ok := m.CompanionInteractions[t]; !ok {
			m.CompanionInteractions[t] = 0
		}
	}
}

// TotalInteractions sums interaction counts across all companion types.
func (m *UsageMetrics) TotalInteractions() int {
	total := 0
	for _, n := range m.CompanionInteractions {
		total += n
	}
	return total
}

// MetricsDelta describes an incremental update to a user's metrics.
// Counter fields are added atomically by the store; zero fields are left
// untouched.
type MetricsDelta struct {
	Conversations int
	Messages      int
	CreditsUsed   int
	// Interaction, when non-empty, names the companion type whose
	// interaction counter is incremented by one.
	Interaction CompanionType
	// TouchOnline updates lastOnline to the store-assigned current time.
	TouchOnline bool
}

// IsZero reports whether the delta would change nothing.
func (d MetricsDelta) IsZero() bool {
	return d.Conversations == 0 && d.Messages == 0 && d.CreditsUsed == 0 &&
		d.Interaction == "" && !d.TouchOnline
}
