package profile

import (
	"context"
)

// Repository looks up user profiles. GetByUserID returns ErrProfileNotFound
// for unknown users.
type Repository interface {
	GetByUserID(ctx context.Context, userID string) (*Profile, error)
	// Upsert is used by seeding and tests; the pipeline itself only reads.
	Upsert(ctx context.Context, p *Profile) error
}
