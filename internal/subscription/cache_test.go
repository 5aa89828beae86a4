package subscription

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swiftraccoon/sdrTrunkTranscription/internal/domain"
)

type stubStore struct {
	mu      sync.Mutex
	subs    []domain.Subscription
	findErr error
	saveErr error
	findN   int
	saved   []domain.Subscription
}

func (s *stubStore) FindAll(_ context.Context) ([]domain.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findN++
	if s.findErr != nil {
		return nil, s.findErr
	}
	out := make([]domain.Subscription, len(s.subs))
	copy(out, s.subs)
	return out, nil
}

func (s *stubStore) Save(_ context.Context, sub *domain.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = append(s.saved, *sub)
	return nil
}

func (s *stubStore) findCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findN
}

func (s *stubStore) setFindErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findErr = err
}

func TestCache_ServesSnapshotWithinTTL(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := &stubStore{subs: []domain.Subscription{{ID: uuid.New(), Pattern: "fire"}}}
	cache := NewCache(store, time.Minute, clock)

	first := cache.Get(context.Background())
	require.Len(t, first, 1)
	assert.Equal(t, 1, store.findCalls())

	clock.Advance(30 * time.Second)
	cache.Get(context.Background())
	assert.Equal(t, 1, store.findCalls(), "within TTL the store is not hit again")
}

func TestCache_RefreshesAfterTTL(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := &stubStore{subs: []domain.Subscription{{ID: uuid.New()}}}
	cache := NewCache(store, time.Minute, clock)

	cache.Get(context.Background())
	clock.Advance(61 * time.Second)
	cache.Get(context.Background())

	assert.Equal(t, 2, store.findCalls())
}

func TestCache_ServesStaleOnRefreshError(t *testing.T) {
	clock := clockwork.NewFakeClock()
	sub := domain.Subscription{ID: uuid.New(), Pattern: "fire"}
	store := &stubStore{subs: []domain.Subscription{sub}}
	cache := NewCache(store, time.Minute, clock)

	require.Len(t, cache.Get(context.Background()), 1)

	store.setFindErr(errors.New("connection refused"))
	clock.Advance(2 * time.Minute)

	stale := cache.Get(context.Background())
	require.Len(t, stale, 1)
	assert.Equal(t, sub.ID, stale[0].ID)
}

func TestCache_InvalidateForcesRefresh(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := &stubStore{subs: []domain.Subscription{{ID: uuid.New()}}}
	cache := NewCache(store, time.Minute, clock)

	cache.Get(context.Background())
	cache.Invalidate()
	cache.Get(context.Background())

	assert.Equal(t, 2, store.findCalls(), "invalidation bypasses the TTL")
}

func TestCache_NoSnapshotAndErrorReturnsNil(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := &stubStore{findErr: errors.New("connection refused")}
	cache := NewCache(store, time.Minute, clock)

	assert.Nil(t, cache.Get(context.Background()))
}
