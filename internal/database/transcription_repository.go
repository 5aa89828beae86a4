package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/swiftraccoon/sdrTrunkTranscription/internal/domain"
)

// TranscriptionRepo implements domain.TranscriptionStore backed by PostgreSQL.
type TranscriptionRepo struct {
	pool *pgxpool.Pool
}

func NewTranscriptionRepo(pool *pgxpool.Pool) *TranscriptionRepo {
	return &TranscriptionRepo{pool: pool}
}

func (r *TranscriptionRepo) Insert(ctx context.Context, event domain.TranscriptionEvent) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO transcriptions (id, text, timestamp, talkgroup_id, radio_id, audio_path)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		event.ID, event.Text, event.Timestamp, event.TalkgroupID, event.RadioID, event.AudioPath)
	if err != nil {
		return fmt.Errorf("failed to insert transcription: %w", err)
	}
	return nil
}
