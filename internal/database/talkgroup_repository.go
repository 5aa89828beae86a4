package database

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
)

// talkgroupCacheTTL bounds how long display metadata is served without a
// database round trip. Talkgroup rows change rarely.
const talkgroupCacheTTL = 5 * time.Minute

type talkgroupEntry struct {
	name      string
	groupName string
	found     bool
	fetchedAt time.Time
}

// TalkgroupRepo implements domain.GroupDirectory backed by PostgreSQL with a
// small per-tgid TTL cache. Lookups degrade to not-found on database errors;
// they never fail the broadcast pipeline.
type TalkgroupRepo struct {
	pool  *pgxpool.Pool
	clock clockwork.Clock

	mu    sync.Mutex
	cache map[int64]talkgroupEntry
}

func NewTalkgroupRepo(pool *pgxpool.Pool, clock clockwork.Clock) *TalkgroupRepo {
	return &TalkgroupRepo{
		pool:  pool,
		clock: clock,
		cache: make(map[int64]talkgroupEntry),
	}
}

func (r *TalkgroupRepo) GroupName(ctx context.Context, tgid int64) (string, bool) {
	entry := r.lookup(ctx, tgid)
	if !entry.found || entry.groupName == "" {
		return "", false
	}
	return entry.groupName, true
}

func (r *TalkgroupRepo) TalkgroupName(ctx context.Context, tgid int64) (string, bool) {
	entry := r.lookup(ctx, tgid)
	if !entry.found || entry.name == "" {
		return "", false
	}
	return entry.name, true
}

func (r *TalkgroupRepo) lookup(ctx context.Context, tgid int64) talkgroupEntry {
	r.mu.Lock()
	cached, ok := r.cache[tgid]
	r.mu.Unlock()
	if ok && r.clock.Since(cached.fetchedAt) < talkgroupCacheTTL {
		return cached
	}

	entry := talkgroupEntry{fetchedAt: r.clock.Now()}
	err := r.pool.QueryRow(ctx, `SELECT name, group_name FROM talkgroups WHERE tgid = $1`, tgid).
		Scan(&entry.name, &entry.groupName)
	switch {
	case err == nil:
		entry.found = true
	case errors.Is(err, pgx.ErrNoRows):
		// negative entries are cached too
	default:
		slog.Warn("Talkgroup lookup failed", "tgid", tgid, "error", err)
		if ok {
			// keep serving the stale entry rather than caching the failure
			return cached
		}
		return talkgroupEntry{}
	}

	r.mu.Lock()
	r.cache[tgid] = entry
	r.mu.Unlock()
	return entry
}
