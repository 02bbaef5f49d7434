package cohort

import "context"

// Repository stores cohort assignments.
type Repository interface {
	GetByUserID(ctx context.Context, userID string) (*Cohort, error)
	// CreateIfAbsent inserts c unless the user already has a row, and
	// returns whichever row is stored. Existing rows are never modified.
	CreateIfAbsent(ctx context.Context, c *Cohort) (*Cohort, error)
	// UpdateCounters overwrites the running counters only.
	UpdateCounters(ctx context.Context, c *Cohort) error
	List(ctx context.Context) ([]*Cohort, error)
}
