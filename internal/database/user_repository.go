package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/swiftraccoon/sdrTrunkTranscription/internal/domain"
)

// UserRepo implements domain.IdentityResolver: a connection's stream token is
// exchanged for the owning user id.
type UserRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

func (r *UserRepo) Resolve(ctx context.Context, token string) (uuid.UUID, error) {
	if token == "" {
		return uuid.Nil, domain.ErrUnauthorized
	}

	var userID uuid.UUID
	err := r.pool.QueryRow(ctx, `SELECT id FROM users WHERE stream_token = $1`, token).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, domain.ErrUnauthorized
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to resolve stream token: %w", err)
	}
	return userID, nil
}
