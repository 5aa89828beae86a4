package broadcast

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/swiftraccoon/sdrTrunkTranscription/internal/domain"
	"github.com/swiftraccoon/sdrTrunkTranscription/internal/metrics"
)

// Evaluator runs subscription matching for an event.
type Evaluator interface {
	Evaluate(ctx context.Context, event domain.TranscriptionEvent)
}

// Broadcaster fans a message out to every open connection.
type Broadcaster interface {
	Broadcast(v any)
}

// Message is the newTranscription payload pushed to clients.
type Message struct {
	Action string                       `json:"action"`
	Data   domain.EnrichedTranscription `json:"data"`
}

// Pipeline filters and enriches incoming transcriptions before fan-out.
// Subscription matching always runs, even for events that are later dropped
// from broadcast as stale or noise.
type Pipeline struct {
	evaluator Evaluator
	sink      Broadcaster
	groups    domain.GroupDirectory
	recent    domain.RecentStore
	clock     clockwork.Clock
	horizon   time.Duration
}

// NewPipeline creates a broadcast pipeline. recent may be nil, which disables
// the latest-transcriptions ring.
func NewPipeline(evaluator Evaluator, sink Broadcaster, groups domain.GroupDirectory, recent domain.RecentStore, clock clockwork.Clock, horizon time.Duration) *Pipeline {
	return &Pipeline{
		evaluator: evaluator,
		sink:      sink,
		groups:    groups,
		recent:    recent,
		clock:     clock,
		horizon:   horizon,
	}
}

// OnNewTranscription processes one event: dispatch matching, apply the
// staleness and noise filters, enrich, then fan out.
func (p *Pipeline) OnNewTranscription(ctx context.Context, event domain.TranscriptionEvent) {
	// Matching is independent of display filtering; dispatch it before any
	// drop decision so a slow pattern never delays the broadcast either.
	// Detached from the request context, which dies when the upload returns.
	go p.evaluator.Evaluate(context.WithoutCancel(ctx), event)

	if p.clock.Since(event.Timestamp) > p.horizon {
		metrics.BroadcastEventsTotal.WithLabelValues("stale").Inc()
		slog.Debug("Dropping stale transcription", "transcription_id", event.ID.String(), "age", p.clock.Since(event.Timestamp))
		return
	}

	if IsNoise(event.Text) {
		metrics.BroadcastEventsTotal.WithLabelValues("noise").Inc()
		slog.Debug("Dropping noise transcription", "transcription_id", event.ID.String())
		return
	}

	enriched := p.enrich(ctx, event)

	if p.recent != nil {
		if err := p.recent.Append(ctx, enriched); err != nil {
			slog.Warn("Failed to record transcription in recent ring", "error", err)
		}
	}

	p.sink.Broadcast(Message{Action: "newTranscription", Data: enriched})
	metrics.BroadcastEventsTotal.WithLabelValues("broadcast").Inc()
}

func (p *Pipeline) enrich(ctx context.Context, event domain.TranscriptionEvent) domain.EnrichedTranscription {
	enriched := domain.EnrichedTranscription{TranscriptionEvent: event}

	if name, ok := p.groups.GroupName(ctx, event.TalkgroupID); ok {
		enriched.GroupName = name
	}
	if name, ok := p.groups.TalkgroupName(ctx, event.TalkgroupID); ok {
		enriched.TalkgroupLabel = fmt.Sprintf("%d (%s)", event.TalkgroupID, name)
	} else {
		enriched.TalkgroupLabel = domain.FallbackTalkgroupLabel(event.TalkgroupID)
	}
	return enriched
}
