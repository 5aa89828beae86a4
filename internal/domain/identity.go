package domain

import (
	"context"

	"github.com/google/uuid"
)

// IdentityResolver maps an opaque access token from the upgrade request to an
// authenticated user id. Session and cookie handling live outside this
// subsystem; the gateway only sees the resolved identity.
type IdentityResolver interface {
	Resolve(ctx context.Context, token string) (uuid.UUID, error)
}
