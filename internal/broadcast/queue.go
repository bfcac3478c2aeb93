// Package broadcast is the durable outbound message queue: enqueue with
// per-slot dedupe, claim with a lease, retry with backoff and recovery of
// jobs whose worker died.
package broadcast

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/example/deutschbot/internal/clock"
	"github.com/example/deutschbot/pkg/logger"
	"github.com/example/deutschbot/pkg/models"
)

const (
	BackoffBase = 15 * time.Second
	BackoffCap  = 900 * time.Second
	// MinStaleSeconds keeps recovery from stealing jobs of live workers
	MinStaleSeconds = 30
)

// Backoff returns the retry delay after attemptsDone failed attempts
func Backoff(attemptsDone int) time.Duration {
	if attemptsDone < 0 {
		attemptsDone = 0
	}
	if attemptsDone >= 16 {
		return BackoffCap
	}
	d := BackoffBase * time.Duration(1<<uint(attemptsDone))
	if d > BackoffCap {
		return BackoffCap
	}
	return d
}

// DedupeKey identifies one logical message per kind, slot and user
func DedupeKey(kind, slotKey string, userID int64) string {
	return kind + ":" + slotKey + ":" + strconv.FormatInt(userID, 10)
}

// Repository is the job storage the queue runs on
type Repository interface {
	SupportsSkipLocked() bool
	Insert(ctx context.Context, jobs []models.BroadcastJob, now time.Time) (int, error)
	ClaimSkipLocked(ctx context.Context, limit int, now time.Time) ([]models.BroadcastJob, error)
	ClaimCAS(ctx context.Context, limit int, now time.Time) ([]models.BroadcastJob, error)
	MarkSent(ctx context.Context, id int64, now time.Time) error
	Retry(ctx context.Context, id int64, attempts int, lastError string, availableAt, now time.Time) error
	Fail(ctx context.Context, id int64, attempts int, lastError string, now time.Time) error
	RecoverStale(ctx context.Context, cutoff, now time.Time) (int, error)
	Counts(ctx context.Context) (map[string]int, error)
}

type Queue struct {
	repo  Repository
	clock clock.Clock
	log   *logger.Logger
}

func NewQueue(repo Repository, c clock.Clock, log *logger.Logger) *Queue {
	return &Queue{repo: repo, clock: c, log: log}
}

// Enqueue adds one pending job per user. Users that already have a job
// for this kind and slot are skipped. It returns the number of new jobs.
func (q *Queue) Enqueue(ctx context.Context, userIDs []int64, kind string, payload []byte, slotKey string) (int, error) {
	now := q.clock.Now()
	jobs := make([]models.BroadcastJob, 0, len(userIDs))
	for _, userID := range userIDs {
		key := DedupeKey(kind, slotKey, userID)
		jobs = append(jobs, models.BroadcastJob{
			UserID:      userID,
			Kind:        kind,
			Payload:     payload,
			AvailableAt: now,
			DedupeKey:   &key,
		})
	}

	n, err := q.repo.Insert(ctx, jobs, now)
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue %s jobs: %w", kind, err)
	}
	q.log.Info("jobs enqueued",
		"event", "job_enqueued",
		"kind", kind,
		"slot", slotKey,
		"requested", len(userIDs),
		"inserted", n,
	)
	return n, nil
}

// Claim leases up to limit available jobs, oldest id first
func (q *Queue) Claim(ctx context.Context, limit int) ([]models.BroadcastJob, error) {
	if limit <= 0 {
		return nil, nil
	}
	now := q.clock.Now()
	if q.repo.SupportsSkipLocked() {
		return q.repo.ClaimSkipLocked(ctx, limit, now)
	}
	return q.repo.ClaimCAS(ctx, limit, now)
}

// MarkSent finishes a job
func (q *Queue) MarkSent(ctx context.Context, job models.BroadcastJob) error {
	if err := q.repo.MarkSent(ctx, job.ID, q.clock.Now()); err != nil {
		return err
	}
	q.log.Debug("job sent", "event", "job_sent", "job_id", job.ID, "user_id", job.UserID)
	return nil
}

// Reschedule records a failed attempt. The job goes back to pending after
// delay, or to failed once maxAttempts is reached. It reports whether the
// job is now failed.
func (q *Queue) Reschedule(ctx context.Context, job models.BroadcastJob, lastError string, delay time.Duration, maxAttempts int) (bool, error) {
	now := q.clock.Now()
	attempts := job.Attempts + 1
	if attempts >= maxAttempts {
		if err := q.repo.Fail(ctx, job.ID, attempts, lastError, now); err != nil {
			return false, err
		}
		q.log.Warn("job failed",
			"event", "job_failed",
			"job_id", job.ID,
			"user_id", job.UserID,
			"attempts", attempts,
			"error", lastError,
		)
		return true, nil
	}

	if err := q.repo.Retry(ctx, job.ID, attempts, lastError, now.Add(delay), now); err != nil {
		return false, err
	}
	q.log.Info("job rescheduled",
		"event", "job_rescheduled",
		"job_id", job.ID,
		"user_id", job.UserID,
		"attempts", attempts,
		"delay", delay.String(),
	)
	return false, nil
}

// Fail drops a job without further retries
func (q *Queue) Fail(ctx context.Context, job models.BroadcastJob, lastError string) error {
	attempts := job.Attempts + 1
	if err := q.repo.Fail(ctx, job.ID, attempts, lastError, q.clock.Now()); err != nil {
		return err
	}
	q.log.Warn("job failed permanently",
		"event", "job_failed",
		"job_id", job.ID,
		"user_id", job.UserID,
		"error", lastError,
	)
	return nil
}

// RecoverStale returns jobs leased more than staleSeconds ago to pending
func (q *Queue) RecoverStale(ctx context.Context, staleSeconds int) (int, error) {
	if staleSeconds < MinStaleSeconds {
		staleSeconds = MinStaleSeconds
	}
	now := q.clock.Now()
	n, err := q.repo.RecoverStale(ctx, now.Add(-time.Duration(staleSeconds)*time.Second), now)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		q.log.Warn("stale jobs recovered", "event", "job_recovered", "count", n, "stale_seconds", staleSeconds)
	}
	return n, nil
}

// Counts returns the number of jobs per status
func (q *Queue) Counts(ctx context.Context) (map[string]int, error) {
	return q.repo.Counts(ctx)
}
