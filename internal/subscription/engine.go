package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dlclark/regexp2"
	"github.com/jonboulle/clockwork"

	"github.com/swiftraccoon/sdrTrunkTranscription/internal/domain"
	"github.com/swiftraccoon/sdrTrunkTranscription/internal/metrics"
)

// Engine evaluates every subscription against each incoming transcription.
// Plain patterns use case-insensitive substring matching; regex patterns are
// checked by the safety guard and executed under a wall-clock budget. A
// pattern that cannot finish inside the budget is treated as non-matching.
type Engine struct {
	cache    *Cache
	store    domain.SubscriptionStore
	notifier domain.NotificationSender
	guard    *Guard
	clock    clockwork.Clock
	budget   time.Duration

	compiledMu sync.Mutex
	compiled   map[string]*regexp2.Regexp
}

// NewEngine creates a matching engine. notifier may be nil, which disables
// email dispatch.
func NewEngine(cache *Cache, store domain.SubscriptionStore, notifier domain.NotificationSender, guard *Guard, clock clockwork.Clock, budget time.Duration) *Engine {
	return &Engine{
		cache:    cache,
		store:    store,
		notifier: notifier,
		guard:    guard,
		clock:    clock,
		budget:   budget,
		compiled: make(map[string]*regexp2.Regexp),
	}
}

// Evaluate runs every cached subscription against the event. Safe to call
// concurrently; failures are per-subscription and never abort the sweep.
func (e *Engine) Evaluate(ctx context.Context, event domain.TranscriptionEvent) {
	for _, sub := range e.cache.Get(ctx) {
		e.evaluateOne(ctx, sub, event)
	}
}

func (e *Engine) evaluateOne(ctx context.Context, sub domain.Subscription, event domain.TranscriptionEvent) {
	metrics.SubscriptionEvaluations.Inc()

	matched, err := e.matches(sub, event.Text)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrEvaluationTimeout):
			slog.Debug("Pattern exceeded evaluation budget, treated as non-matching",
				"subscription_id", sub.ID.String(), "pattern", sub.Pattern)
		case errors.Is(err, domain.ErrPatternUnsafe):
			slog.Warn("Rejected unsafe subscription pattern",
				"subscription_id", sub.ID.String(), "error", err)
		default:
			slog.Warn("Pattern evaluation failed",
				"subscription_id", sub.ID.String(), "error", err)
		}
		return
	}
	if !matched {
		return
	}

	metrics.SubscriptionMatches.Inc()
	match := domain.Match{
		SubscriptionID:  sub.ID,
		TranscriptionID: event.ID,
		Timestamp:       e.clock.Now(),
		Text:            event.Text,
	}

	// Copy the history before mutating it: sub came out of a shared cache
	// snapshot and append must not write into its backing array.
	sub.Matches = append([]domain.Match(nil), sub.Matches...)
	if sub.KeepHistory {
		sub.AppendMatch(match)
	}

	if sub.EmailNotification && sub.Email != "" && e.notifier != nil {
		if err := e.notifier.Send(ctx, sub.Email, match); err != nil {
			metrics.NotificationFailures.Inc()
			slog.Warn("Match notification failed",
				"subscription_id", sub.ID.String(), "error", err)
		}
	}
	sub.LastNotifiedAt = e.clock.Now()

	if err := e.store.Save(ctx, &sub); err != nil {
		metrics.SubscriptionSaveFailures.Inc()
		slog.Error("Failed to persist subscription match",
			"subscription_id", sub.ID.String(), "error", err)
		return
	}
	e.cache.Invalidate()
}

func (e *Engine) matches(sub domain.Subscription, text string) (bool, error) {
	if !sub.IsRegex {
		return strings.Contains(strings.ToLower(text), strings.ToLower(sub.Pattern)), nil
	}

	if err := e.guard.Check(sub.Pattern); err != nil {
		metrics.PatternRejections.Inc()
		return false, err
	}

	re, err := e.compile(sub.Pattern)
	if err != nil {
		return false, fmt.Errorf("compile pattern: %w", err)
	}

	return e.matchWithBudget(func() (bool, error) {
		return re.MatchString(text)
	})
}

// matchWithBudget races the match function against the evaluation budget. The
// regex engine additionally carries its own MatchTimeout, so the goroutine is
// not leaked past the budget for long.
func (e *Engine) matchWithBudget(match func() (bool, error)) (bool, error) {
	type outcome struct {
		matched bool
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		matched, err := match()
		done <- outcome{matched: matched, err: err}
	}()

	timer := e.clock.NewTimer(e.budget)
	defer timer.Stop()

	select {
	case out := <-done:
		if out.err != nil {
			metrics.PatternTimeouts.Inc()
			return false, fmt.Errorf("%w: %v", domain.ErrEvaluationTimeout, out.err)
		}
		return out.matched, nil
	case <-timer.Chan():
		metrics.PatternTimeouts.Inc()
		return false, domain.ErrEvaluationTimeout
	}
}

func (e *Engine) compile(pattern string) (*regexp2.Regexp, error) {
	e.compiledMu.Lock()
	defer e.compiledMu.Unlock()

	if re, ok := e.compiled[pattern]; ok {
		return re, nil
	}
	re, err := regexp2.Compile(pattern, regexp2.IgnoreCase)
	if err != nil {
		return nil, err
	}
	re.MatchTimeout = e.budget
	e.compiled[pattern] = re
	return re, nil
}
