package notify

import (
	"context"
	"fmt"

	"github.com/mrz1836/postmark"

	"github.com/swiftraccoon/sdrTrunkTranscription/internal/domain"
)

// Mailer implements domain.NotificationSender using Postmark's transactional
// API. Dispatch is best-effort; the caller logs failures and moves on.
type Mailer struct {
	client *postmark.Client
	sender string
}

// NewMailer creates a Postmark-backed mailer. All three values are required;
// leave them empty in config to disable email dispatch entirely.
func NewMailer(serverToken, accountToken, sender string) (*Mailer, error) {
	if serverToken == "" {
		return nil, fmt.Errorf("postmark server token is required")
	}
	if accountToken == "" {
		return nil, fmt.Errorf("postmark account token is required")
	}
	if sender == "" {
		return nil, fmt.Errorf("notification sender address is required")
	}

	return &Mailer{
		client: postmark.NewClient(serverToken, accountToken),
		sender: sender,
	}, nil
}

func (m *Mailer) Send(ctx context.Context, email string, match domain.Match) error {
	resp, err := m.client.SendEmail(ctx, postmark.Email{
		From:    m.sender,
		To:      email,
		Subject: "Subscription match on monitored radio traffic",
		TextBody: fmt.Sprintf(
			"A transcription matched one of your subscriptions at %s:\n\n%s\n",
			match.Timestamp.Format("2006-01-02 15:04:05 MST"),
			match.Text,
		),
		Tag: "subscription-match",
	})
	if err != nil {
		return fmt.Errorf("failed to send match notification: %w", err)
	}
	if resp.ErrorCode > 0 {
		return fmt.Errorf("postmark error: %d - %s", resp.ErrorCode, resp.Message)
	}
	return nil
}
