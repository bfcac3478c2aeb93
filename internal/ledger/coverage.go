package ledger

import (
	"context"
	"time"

	"github.com/example/deutschbot/internal/clock"
	"github.com/example/deutschbot/pkg/models"
)

// CoverageRepository is the persistence the coverage map needs
type CoverageRepository interface {
	MarkSeen(ctx context.Context, userID int64, topicID string, level models.Level, now time.Time) error
	CoverageMap(ctx context.Context, userID int64, level models.Level) (map[string]int, error)
}

// Coverage counts how often each grammar topic was shown to a user
type Coverage struct {
	repo  CoverageRepository
	clock clock.Clock
}

func NewCoverage(repo CoverageRepository, c clock.Clock) *Coverage {
	return &Coverage{repo: repo, clock: c}
}

func (c *Coverage) MarkSeen(ctx context.Context, userID int64, topicID string, level models.Level) error {
	return c.repo.MarkSeen(ctx, userID, topicID, level, c.clock.Now())
}

// Map returns topic id -> seen count. Topics never shown are absent and read as zero.
func (c *Coverage) Map(ctx context.Context, userID int64, level models.Level) (map[string]int, error) {
	return c.repo.CoverageMap(ctx, userID, level)
}
