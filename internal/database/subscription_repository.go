package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/swiftraccoon/sdrTrunkTranscription/internal/domain"
)

// subscriptionColumns must match the Scan order in scanSubscription.
const subscriptionColumns = `id, owner_id, pattern, is_regex, keep_history, email_notification, email, matches, last_notified_at`

// SubscriptionRepo implements domain.SubscriptionStore backed by PostgreSQL.
// Match history lives in a JSONB column; the 15-entry cap is enforced by the
// matching engine before Save.
type SubscriptionRepo struct {
	pool *pgxpool.Pool
}

func NewSubscriptionRepo(pool *pgxpool.Pool) *SubscriptionRepo {
	return &SubscriptionRepo{pool: pool}
}

func (r *SubscriptionRepo) FindAll(ctx context.Context) ([]domain.Subscription, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions`)
	if err != nil {
		return nil, fmt.Errorf("failed to query subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []domain.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

func (r *SubscriptionRepo) Save(ctx context.Context, sub *domain.Subscription) error {
	matches, err := json.Marshal(sub.Matches)
	if err != nil {
		return fmt.Errorf("failed to marshal match history: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO subscriptions (id, owner_id, pattern, is_regex, keep_history, email_notification, email, matches, last_notified_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET
			pattern = EXCLUDED.pattern,
			is_regex = EXCLUDED.is_regex,
			keep_history = EXCLUDED.keep_history,
			email_notification = EXCLUDED.email_notification,
			email = EXCLUDED.email,
			matches = EXCLUDED.matches,
			last_notified_at = EXCLUDED.last_notified_at,
			updated_at = NOW()`,
		sub.ID, sub.OwnerID, sub.Pattern, sub.IsRegex, sub.KeepHistory, sub.EmailNotification, sub.Email, matches, sub.LastNotifiedAt)
	if err != nil {
		return fmt.Errorf("failed to save subscription: %w", err)
	}
	return nil
}

func scanSubscription(row pgx.Row) (domain.Subscription, error) {
	var sub domain.Subscription
	var matches []byte

	err := row.Scan(&sub.ID, &sub.OwnerID, &sub.Pattern, &sub.IsRegex, &sub.KeepHistory, &sub.EmailNotification, &sub.Email, &matches, &sub.LastNotifiedAt)
	if err != nil {
		return domain.Subscription{}, fmt.Errorf("failed to scan subscription: %w", err)
	}
	if len(matches) > 0 {
		if err := json.Unmarshal(matches, &sub.Matches); err != nil {
			return domain.Subscription{}, fmt.Errorf("failed to unmarshal match history: %w", err)
		}
	}
	return sub, nil
}
