package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TranscriptionEvent is a single transcribed radio call as persisted by the
// ingestion pipeline. Immutable after creation; enrichment derives copies.
type TranscriptionEvent struct {
	ID          uuid.UUID `json:"id" db:"id"`
	Text        string    `json:"text" db:"text"`
	Timestamp   time.Time `json:"timestamp" db:"timestamp"`
	TalkgroupID int64     `json:"talkgroupId" db:"talkgroup_id"`
	RadioID     int64     `json:"radioId" db:"radio_id"`
	AudioPath   string    `json:"audioPath" db:"audio_path"`
}

// EnrichedTranscription is a TranscriptionEvent with display metadata attached
// for clients. Derived, never stored back.
type EnrichedTranscription struct {
	TranscriptionEvent
	GroupName      string `json:"groupName"`
	TalkgroupLabel string `json:"talkgroupLabel"`
}

// FallbackTalkgroupLabel is the numeric label used when no talkgroup metadata
// is known.
func FallbackTalkgroupLabel(tgid int64) string {
	return fmt.Sprintf("TGID %d", tgid)
}

// TranscriptionStore persists transcription events.
type TranscriptionStore interface {
	Insert(ctx context.Context, event TranscriptionEvent) error
}

// RecentStore holds the short ring of recently broadcast transcriptions served
// to clients as latestTranscriptions on connect.
type RecentStore interface {
	Append(ctx context.Context, event EnrichedTranscription) error
	Latest(ctx context.Context, n int) ([]EnrichedTranscription, error)
}

// GroupDirectory resolves talkgroup metadata for display enrichment. Lookups
// never fail the broadcast pipeline; absence degrades to a numeric label.
type GroupDirectory interface {
	GroupName(ctx context.Context, tgid int64) (string, bool)
	TalkgroupName(ctx context.Context, tgid int64) (string, bool)
}
