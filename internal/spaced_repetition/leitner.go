package spaced_repetition

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/example/deutschbot/internal/apperr"
	"github.com/example/deutschbot/internal/clock"
	"github.com/example/deutschbot/pkg/logger"
	"github.com/example/deutschbot/pkg/models"
)

// MaxBox is the last Leitner box
const MaxBox = 5

// Leitner holds the review interval of each box in days
type Leitner struct {
	// Intervals[b] is the wait after landing in box b; index 0 is unused
	Intervals [MaxBox + 1]int
}

// NewLeitner returns the five-box schedule 1, 3, 7, 14, 30 days
func NewLeitner() *Leitner {
	return &Leitner{Intervals: [MaxBox + 1]int{0, 1, 3, 7, 14, 30}}
}

// NextBox returns the box after an answer. A wrong answer always goes back to box 1.
func (l *Leitner) NextBox(box int, correct bool) int {
	if !correct {
		return 1
	}
	if box < 0 {
		box = 0
	}
	if box >= MaxBox {
		return MaxBox
	}
	return box + 1
}

// IntervalDays returns the review interval of a box
func (l *Leitner) IntervalDays(box int) int {
	if box < 1 {
		return l.Intervals[1]
	}
	if box > MaxBox {
		box = MaxBox
	}
	return l.Intervals[box]
}

// Apply updates rec for one answer given today's date and the wall clock
func (l *Leitner) Apply(rec *models.MasteryRecord, correct bool, today string, now time.Time) {
	rec.Box = l.NextBox(rec.Box, correct)
	rec.NextReview = clock.AddDays(today, l.IntervalDays(rec.Box))
	reviewed := now
	rec.LastReviewedAt = &reviewed
}

// Repository is the persistence the store needs
type Repository interface {
	Get(ctx context.Context, userID int64, itemID, module string) (*models.MasteryRecord, error)
	Upsert(ctx context.Context, rec *models.MasteryRecord) error
	Due(ctx context.Context, userID int64, today string, limit int) ([]models.MasteryRecord, error)
	CountDue(ctx context.Context, userID int64, today string) (int, error)
	SetSuspended(ctx context.Context, userID int64, itemID, module string, suspended bool) error
	BoxHistogram(ctx context.Context, userID int64) (map[int]int, error)
}

// Store schedules reviews of individual items per user
type Store struct {
	repo    Repository
	leitner *Leitner
	clock   clock.Clock
	log     *logger.Logger
}

func NewStore(repo Repository, c clock.Clock, log *logger.Logger) *Store {
	return &Store{repo: repo, leitner: NewLeitner(), clock: c, log: log}
}

// RecordOutcome moves an item between boxes and returns the stored record
func (s *Store) RecordOutcome(ctx context.Context, userID int64, itemID, module string, correct bool) (*models.MasteryRecord, error) {
	rec, err := s.repo.Get(ctx, userID, itemID, module)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		rec = &models.MasteryRecord{UserID: userID, ItemID: itemID, Module: module}
	}

	now := s.clock.Now()
	s.leitner.Apply(rec, correct, now.Format(clock.DateLayout), now)
	if err := s.repo.Upsert(ctx, rec); err != nil {
		return nil, err
	}
	s.log.Debug("mastery updated",
		"user_id", userID,
		"item_id", itemID,
		"module", module,
		"correct", correct,
		"box", rec.Box,
		"next_review", rec.NextReview,
	)
	return rec, nil
}

// DueItems returns up to limit items whose review date has come
func (s *Store) DueItems(ctx context.Context, userID int64, limit int) ([]models.MasteryRecord, error) {
	return s.repo.Due(ctx, userID, clock.Today(s.clock), limit)
}

// SetSuspended excludes an item from reviews, or brings it back. Items the
// user never reviewed give apperr.ErrNotFound.
func (s *Store) SetSuspended(ctx context.Context, userID int64, itemID, module string, suspended bool) error {
	err := s.repo.SetSuspended(ctx, userID, itemID, module, suspended)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: no %s review of item %s for user %d", apperr.ErrNotFound, module, itemID, userID)
	}
	if err != nil {
		return fmt.Errorf("failed to set suspension for %s/%s: %w", module, itemID, err)
	}
	return nil
}

// Summary is a snapshot of a user's review state
type Summary struct {
	Boxes map[int]int // Box number -> item count
	Due   int
}

// Summary returns the box histogram and today's due count
func (s *Store) Summary(ctx context.Context, userID int64) (*Summary, error) {
	boxes, err := s.repo.BoxHistogram(ctx, userID)
	if err != nil {
		return nil, err
	}
	due, err := s.repo.CountDue(ctx, userID, clock.Today(s.clock))
	if err != nil {
		return nil, err
	}
	return &Summary{Boxes: boxes, Due: due}, nil
}
