package app

import (
	"context"
	"fmt"
	"time"

	"sendtime_notifier/internal/domain/cohort"
	"sendtime_notifier/internal/domain/notification"
)

// CohortService assigns users to send-time test buckets.
type CohortService struct {
	repo     cohort.Repository
	channels map[notification.Channel]bool
}

// NewCohortService creates the service. channels lists the channels whose
// sends make a user cohort-eligible.
func NewCohortService(repo cohort.Repository, channels []notification.Channel) *CohortService {
	set := make(map[notification.Channel]bool, len(channels))
	for _, ch := range channels {
		set[ch] = true
	}
	return &CohortService{repo: repo, channels: set}
}

// Eligible reports whether a send over ch takes part in the experiment.
func (s *CohortService) Eligible(ch notification.Channel) bool {
	return s.channels[ch]
}

// Assign returns the user's cohort, creating it on first call. Repeated
// calls always return the original bucket.
func (s *CohortService) Assign(ctx context.Context, userID string, now time.Time) (*cohort.Cohort, error) {
	existing, err := s.repo.GetByUserID(ctx, userID)
	if err == nil {
		return existing, nil
	}
	if err != cohort.ErrCohortNotFound {
		return nil, fmt.Errorf("failed to look up cohort: %w", err)
	}
	c, err := s.repo.CreateIfAbsent(ctx, cohort.NewCohort(userID, now))
	if err != nil {
		return nil, fmt.Errorf("failed to assign cohort: %w", err)
	}
	return c, nil
}

// Lookup returns the user's cohort without assigning one.
func (s *CohortService) Lookup(ctx context.Context, userID string) (*cohort.Cohort, error) {
	return s.repo.GetByUserID(ctx, userID)
}
