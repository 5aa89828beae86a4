package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// MaxMatchHistory caps the per-subscription match list; oldest entries are
// evicted first.
const MaxMatchHistory = 15

// Match records a subscription hit against a transcription. Append-only.
type Match struct {
	SubscriptionID  uuid.UUID `json:"subscriptionId"`
	TranscriptionID uuid.UUID `json:"transcriptionId"`
	Timestamp       time.Time `json:"timestamp"`
	Text            string    `json:"text"`
}

// Subscription is a user's standing pattern against the transcription stream.
// Owned by the store; the matching engine mutates Matches and LastNotifiedAt
// and writes back through the store.
type Subscription struct {
	ID                uuid.UUID `json:"id" db:"id"`
	OwnerID           uuid.UUID `json:"ownerId" db:"owner_id"`
	Pattern           string    `json:"pattern" db:"pattern"`
	IsRegex           bool      `json:"isRegex" db:"is_regex"`
	KeepHistory       bool      `json:"keepHistory" db:"keep_history"`
	EmailNotification bool      `json:"emailNotification" db:"email_notification"`
	Email             string    `json:"email" db:"email"`
	Matches           []Match   `json:"matches" db:"matches"`
	LastNotifiedAt    time.Time `json:"lastNotifiedAt" db:"last_notified_at"`
}

// AppendMatch adds m to the subscription history, evicting the oldest entries
// beyond MaxMatchHistory.
func (s *Subscription) AppendMatch(m Match) {
	s.Matches = append(s.Matches, m)
	if len(s.Matches) > MaxMatchHistory {
		s.Matches = s.Matches[len(s.Matches)-MaxMatchHistory:]
	}
}

// SubscriptionStore is the persistence collaborator for subscriptions.
type SubscriptionStore interface {
	FindAll(ctx context.Context) ([]Subscription, error)
	Save(ctx context.Context, sub *Subscription) error
}

// NotificationSender dispatches a best-effort match notification. A send
// failure is logged by the caller and never rolls back the history update.
type NotificationSender interface {
	Send(ctx context.Context, email string, match Match) error
}
