package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/swiftraccoon/sdrTrunkTranscription/internal/domain"
)

const (
	recentKey = "transcriptions:recent"
	// recentRingSize bounds the ring; connect-time reads ask for less.
	recentRingSize = 50
)

// RecentStore implements domain.RecentStore on a Redis list. Newest entries
// sit at the head; Latest returns oldest-first so clients can render in
// arrival order.
type RecentStore struct {
	rdb *redis.Client
}

func NewRecentStore(client *Client) *RecentStore {
	return &RecentStore{rdb: client.Underlying()}
}

func (s *RecentStore) Append(ctx context.Context, event domain.EnrichedTranscription) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal transcription: %w", err)
	}

	pipe := s.rdb.TxPipeline()
	pipe.LPush(ctx, recentKey, payload)
	pipe.LTrim(ctx, recentKey, 0, recentRingSize-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append to recent ring: %w", err)
	}
	return nil
}

func (s *RecentStore) Latest(ctx context.Context, n int) ([]domain.EnrichedTranscription, error) {
	if n <= 0 || n > recentRingSize {
		n = recentRingSize
	}

	raw, err := s.rdb.LRange(ctx, recentKey, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read recent ring: %w", err)
	}

	// LRange returns newest-first; reverse into arrival order.
	events := make([]domain.EnrichedTranscription, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var event domain.EnrichedTranscription
		if err := json.Unmarshal([]byte(raw[i]), &event); err != nil {
			return nil, fmt.Errorf("failed to unmarshal transcription: %w", err)
		}
		events = append(events, event)
	}
	return events, nil
}
