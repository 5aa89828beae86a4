package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Registry tracks which connections belong to which user and coordinates the
// reconnect grace period. When a user's last connection drops, a cleanup timer
// starts; a reconnect before it fires cancels the timer and preserves the
// user's queue and preference state. When it fires with the set still empty,
// the teardown callback runs and the user session is removed.
//
// State is partitioned per user; no process-wide lock is held across teardown
// callbacks.
type Registry struct {
	mu         sync.Mutex
	users      map[uuid.UUID]*userSession
	clock      clockwork.Clock
	grace      time.Duration
	onTeardown func(userID uuid.UUID)
}

type userSession struct {
	conns   map[uuid.UUID]struct{}
	cleanup clockwork.Timer
}

// NewRegistry creates a registry. onTeardown is invoked after a user has had
// zero connections for the full grace period; it must clear that user's
// dependent state (audio queue, autoplay preferences).
func NewRegistry(clock clockwork.Clock, grace time.Duration, onTeardown func(userID uuid.UUID)) *Registry {
	return &Registry{
		users:      make(map[uuid.UUID]*userSession),
		clock:      clock,
		grace:      grace,
		onTeardown: onTeardown,
	}
}

// TryConnect admits a connection for a user, enforcing max as the per-user
// connection cap (non-positive disables the cap). The capacity check and the
// insert share one critical section, so concurrent upgrades for the same user
// cannot all slip under the cap. A successful admit cancels any pending
// cleanup timer; a refused one leaves it running.
func (r *Registry) TryConnect(userID, connID uuid.UUID, max int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	us, exists := r.users[userID]
	if exists && max > 0 && len(us.conns) >= max {
		return false
	}
	if !exists {
		us = &userSession{conns: make(map[uuid.UUID]struct{})}
		r.users[userID] = us
	}

	if us.cleanup != nil {
		us.cleanup.Stop()
		us.cleanup = nil
		slog.Debug("Cleanup timer cancelled by reconnect", "user_id", userID.String())
	}

	us.conns[connID] = struct{}{}
	return true
}

// OnDisconnect removes a connection. On the transition to zero connections the
// cleanup timer starts.
func (r *Registry) OnDisconnect(userID, connID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	us, exists := r.users[userID]
	if !exists {
		return
	}

	delete(us.conns, connID)
	if len(us.conns) > 0 {
		return
	}

	if us.cleanup != nil {
		us.cleanup.Stop()
	}
	us.cleanup = r.clock.AfterFunc(r.grace, func() { r.expire(userID) })
	slog.Debug("Last connection gone, cleanup timer started", "user_id", userID.String(), "grace", r.grace)
}

// expire fires when the grace period elapses. A connection may have arrived in
// the meantime, in which case the session survives.
func (r *Registry) expire(userID uuid.UUID) {
	r.mu.Lock()
	us, exists := r.users[userID]
	if !exists || len(us.conns) > 0 {
		r.mu.Unlock()
		return
	}
	delete(r.users, userID)
	r.mu.Unlock()

	slog.Info("User session expired, tearing down state", "user_id", userID.String())
	if r.onTeardown != nil {
		r.onTeardown(userID)
	}
}

// Count returns the number of active connections for a user.
func (r *Registry) Count(userID uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	us, exists := r.users[userID]
	if !exists {
		return 0
	}
	return len(us.conns)
}

// ConnectionsFor returns the set of active connection ids for a user.
func (r *Registry) ConnectionsFor(userID uuid.UUID) []uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()

	us, exists := r.users[userID]
	if !exists {
		return nil
	}
	ids := make([]uuid.UUID, 0, len(us.conns))
	for id := range us.conns {
		ids = append(ids, id)
	}
	return ids
}

// Users returns the number of tracked user sessions, including those inside
// their grace period.
func (r *Registry) Users() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users)
}
