// Package velocity provides token generation and scan rate tracking.
package velocity

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/shadowid-platform/saqr/internal/domain"
)

// Service tracks per-user generation and scan rates. Generation counts
// come from the repository (ground truth); scan rates use the cache's
// windowed counters for cheap per-node tracking.
type Service struct {
	repo  domain.Repository
	cache domain.Cache
	clock clockwork.Clock
}

// NewService creates a new velocity service. A nil clock means the
// real clock.
func NewService(repo domain.Repository, cache domain.Cache, clock clockwork.Clock) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{
		repo:  repo,
		cache: cache,
		clock: clock,
	}
}

// CountGenerations returns how many tokens a user generated at or
// after `since`. This is the GenerationCounter signature expected by
// the anomaly detector.
func (s *Service) CountGenerations(ctx context.Context, tenantID, nationalID string, since time.Time) (int64, error) {
	if tenantID == "" || nationalID == "" {
		return 0, fmt.Errorf("tenantID and nationalID are required")
	}

	if s.repo == nil {
		return 0, fmt.Errorf("no data source available")
	}

	return s.repo.CountGenerationsByUser(ctx, tenantID, nationalID, since)
}

// RecordScan increments the user's windowed scan counter and returns
// the count within the current window. Requires a cache; without one
// it is a no-op returning 0.
func (s *Service) RecordScan(ctx context.Context, tenantID, nationalID string, window time.Duration) (int64, error) {
	if tenantID == "" || nationalID == "" {
		return 0, fmt.Errorf("tenantID and nationalID are required")
	}

	if s.cache == nil {
		return 0, nil
	}

	return s.cache.IncrementCounter(ctx, tenantID, "scan:"+nationalID, window)
}

// GenerationCounter returns the counter function consumed by the
// anomaly detector.
func (s *Service) GenerationCounter() func(ctx context.Context, tenantID, nationalID string, since time.Time) (int64, error) {
	return s.CountGenerations
}
