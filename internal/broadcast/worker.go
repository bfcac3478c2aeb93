package broadcast

import (
	"context"
	"errors"
	"sync"

	"github.com/example/deutschbot/internal/apperr"
	"github.com/example/deutschbot/pkg/logger"
	"github.com/example/deutschbot/pkg/models"
	"golang.org/x/sync/semaphore"
)

// Sender delivers one job. Errors wrapping apperr.ErrPermanentTransport
// are not retried; anything else is treated as transient.
type Sender interface {
	Send(ctx context.Context, job models.BroadcastJob) error
}

// WorkerConfig tunes a drain pass
type WorkerConfig struct {
	BatchSize    int
	Concurrency  int
	MaxAttempts  int
	StaleSeconds int
}

// DrainStats summarises one drain pass
type DrainStats struct {
	Recovered int
	Claimed   int
	Sent      int
	Retried   int
	Failed    int
}

// Worker drains the queue through a Sender
type Worker struct {
	queue  *Queue
	sender Sender
	cfg    WorkerConfig
	sem    *semaphore.Weighted
	log    *logger.Logger
	// OnPermanent is called for a user whose chat rejected a message for good
	OnPermanent func(ctx context.Context, userID int64)
}

func NewWorker(queue *Queue, sender Sender, cfg WorkerConfig, log *logger.Logger) *Worker {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Worker{
		queue:  queue,
		sender: sender,
		cfg:    cfg,
		sem:    semaphore.NewWeighted(int64(cfg.Concurrency)),
		log:    log,
	}
}

// Drain recovers stale leases, claims one batch and sends it
func (w *Worker) Drain(ctx context.Context) (DrainStats, error) {
	var stats DrainStats

	recovered, err := w.queue.RecoverStale(ctx, w.cfg.StaleSeconds)
	if err != nil {
		return stats, err
	}
	stats.Recovered = recovered

	jobs, err := w.queue.Claim(ctx, w.cfg.BatchSize)
	if err != nil {
		return stats, err
	}
	stats.Claimed = len(jobs)
	if len(jobs) == 0 {
		return stats, nil
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, job := range jobs {
		// Jobs left unsent on cancellation stay leased until recovery
		if err := w.sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(job models.BroadcastJob) {
			defer wg.Done()
			defer w.sem.Release(1)

			outcome := w.process(ctx, job)
			mu.Lock()
			switch outcome {
			case outcomeSent:
				stats.Sent++
			case outcomeRetried:
				stats.Retried++
			case outcomeFailed:
				stats.Failed++
			}
			mu.Unlock()
		}(job)
	}
	wg.Wait()

	if stats.Claimed > 0 {
		w.log.Info("queue drained",
			"recovered", stats.Recovered,
			"claimed", stats.Claimed,
			"sent", stats.Sent,
			"retried", stats.Retried,
			"failed", stats.Failed,
		)
	}
	return stats, ctx.Err()
}

type outcome int

const (
	outcomeNone outcome = iota
	outcomeSent
	outcomeRetried
	outcomeFailed
)

func (w *Worker) process(ctx context.Context, job models.BroadcastJob) outcome {
	sendErr := w.sender.Send(ctx, job)
	if sendErr == nil {
		if err := w.queue.MarkSent(ctx, job); err != nil {
			// The lease will expire and the message goes out again
			w.log.Error("failed to mark job sent", "job_id", job.ID, "error", err)
			return outcomeNone
		}
		return outcomeSent
	}

	if errors.Is(sendErr, apperr.ErrPermanentTransport) {
		if err := w.queue.Fail(ctx, job, sendErr.Error()); err != nil {
			w.log.Error("failed to mark job failed", "job_id", job.ID, "error", err)
			return outcomeNone
		}
		if w.OnPermanent != nil {
			w.OnPermanent(ctx, job.UserID)
		}
		return outcomeFailed
	}

	delay := Backoff(job.Attempts)
	if wait := apperr.RetryAfter(sendErr); wait > delay {
		delay = wait
	}
	failed, err := w.queue.Reschedule(ctx, job, sendErr.Error(), delay, w.cfg.MaxAttempts)
	if err != nil {
		w.log.Error("failed to reschedule job", "job_id", job.ID, "error", err)
		return outcomeNone
	}
	if failed {
		return outcomeFailed
	}
	return outcomeRetried
}
