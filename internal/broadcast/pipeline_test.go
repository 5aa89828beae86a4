package broadcast

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swiftraccoon/sdrTrunkTranscription/internal/domain"
)

type recordingEvaluator struct {
	mu     sync.Mutex
	events []domain.TranscriptionEvent
	seen   chan struct{}
}

func newRecordingEvaluator() *recordingEvaluator {
	return &recordingEvaluator{seen: make(chan struct{}, 16)}
}

func (r *recordingEvaluator) Evaluate(_ context.Context, event domain.TranscriptionEvent) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
	r.seen <- struct{}{}
}

func (r *recordingEvaluator) waitForEvaluation(t *testing.T) {
	t.Helper()
	select {
	case <-r.seen:
	case <-time.After(2 * time.Second):
		t.Fatal("evaluator was never invoked")
	}
}

type recordingSink struct {
	mu       sync.Mutex
	messages []any
}

func (r *recordingSink) Broadcast(v any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, v)
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

type stubDirectory struct {
	groups     map[int64]string
	talkgroups map[int64]string
}

func (s *stubDirectory) GroupName(_ context.Context, tgid int64) (string, bool) {
	name, ok := s.groups[tgid]
	return name, ok
}

func (s *stubDirectory) TalkgroupName(_ context.Context, tgid int64) (string, bool) {
	name, ok := s.talkgroups[tgid]
	return name, ok
}

func testEvent(clock clockwork.Clock, text string) domain.TranscriptionEvent {
	return domain.TranscriptionEvent{
		ID:          uuid.New(),
		Text:        text,
		Timestamp:   clock.Now(),
		TalkgroupID: 52198,
		RadioID:     2499936,
		AudioPath:   "/audio/call.mp3",
	}
}

func TestPipeline_BroadcastsEnrichedEvent(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Now())
	evaluator := newRecordingEvaluator()
	sink := &recordingSink{}
	directory := &stubDirectory{
		groups:     map[int64]string{52198: "Cleveland County"},
		talkgroups: map[int64]string{52198: "BennsK Control"},
	}
	pipeline := NewPipeline(evaluator, sink, directory, nil, clock, 3*time.Hour)

	pipeline.OnNewTranscription(context.Background(), testEvent(clock, "fire on Main St"))
	evaluator.waitForEvaluation(t)

	require.Equal(t, 1, sink.count())
	msg, ok := sink.messages[0].(Message)
	require.True(t, ok)
	assert.Equal(t, "newTranscription", msg.Action)
	assert.Equal(t, "Cleveland County", msg.Data.GroupName)
	assert.Equal(t, "52198 (BennsK Control)", msg.Data.TalkgroupLabel)
}

func TestPipeline_UnknownTalkgroupGetsFallbackLabel(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Now())
	evaluator := newRecordingEvaluator()
	sink := &recordingSink{}
	pipeline := NewPipeline(evaluator, sink, &stubDirectory{}, nil, clock, 3*time.Hour)

	pipeline.OnNewTranscription(context.Background(), testEvent(clock, "fire on Main St"))
	evaluator.waitForEvaluation(t)

	require.Equal(t, 1, sink.count())
	msg := sink.messages[0].(Message)
	assert.Equal(t, "TGID 52198", msg.Data.TalkgroupLabel)
	assert.Empty(t, msg.Data.GroupName)
}

func TestPipeline_StaleEventEvaluatedButNotBroadcast(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Now())
	evaluator := newRecordingEvaluator()
	sink := &recordingSink{}
	pipeline := NewPipeline(evaluator, sink, &stubDirectory{}, nil, clock, 3*time.Hour)

	event := testEvent(clock, "fire on Main St")
	event.Timestamp = clock.Now().Add(-4 * time.Hour)

	pipeline.OnNewTranscription(context.Background(), event)
	evaluator.waitForEvaluation(t)

	assert.Equal(t, 0, sink.count())
	assert.Len(t, evaluator.events, 1, "stale events still reach the matching engine")
}

func TestPipeline_NoiseEventEvaluatedButNotBroadcast(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Now())
	evaluator := newRecordingEvaluator()
	sink := &recordingSink{}
	pipeline := NewPipeline(evaluator, sink, &stubDirectory{}, nil, clock, 3*time.Hour)

	pipeline.OnNewTranscription(context.Background(), testEvent(clock, "Thank you."))
	evaluator.waitForEvaluation(t)

	assert.Equal(t, 0, sink.count())
}
