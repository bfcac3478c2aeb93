package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/example/deutschbot/pkg/models"
)

// BroadcastRepository stores outbound jobs
type BroadcastRepository struct {
	db *DB
}

// NewBroadcastRepository creates a new repository instance
func NewBroadcastRepository(db *DB) *BroadcastRepository {
	return &BroadcastRepository{db: db}
}

const jobColumns = `id, user_id, kind, payload, status, attempts, available_at, locked_at,
	dedupe_key, last_error, created_at, updated_at`

// SupportsSkipLocked reports whether claims can use row locks
func (r *BroadcastRepository) SupportsSkipLocked() bool {
	return r.db.IsPostgres()
}

// Insert adds pending jobs in one transaction. Jobs whose dedupe key already
// exists are skipped. It returns the number of rows inserted.
func (r *BroadcastRepository) Insert(ctx context.Context, jobs []models.BroadcastJob, now time.Time) (inserted int, err error) {
	if len(jobs) == 0 {
		return 0, nil
	}
	now = dbTime(now)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	stmt, err := tx.PreparexContext(ctx, tx.Rebind(`
		INSERT INTO broadcast_jobs (user_id, kind, payload, status, attempts, available_at, dedupe_key, created_at, updated_at)
		VALUES (?, ?, ?, ?, 0, ?, ?, ?, ?)
		ON CONFLICT (dedupe_key) DO NOTHING
	`))
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, job := range jobs {
		available := now
		if !job.AvailableAt.IsZero() {
			available = dbTime(job.AvailableAt)
		}
		result, err := stmt.ExecContext(ctx, job.UserID, job.Kind, job.Payload, models.JobPending, available, job.DedupeKey, now, now)
		if err != nil {
			return 0, fmt.Errorf("failed to insert job for user %d: %w", job.UserID, err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to get rows affected: %w", err)
		}
		inserted += int(rows)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return inserted, nil
}

// ClaimSkipLocked moves up to limit available jobs to processing in a single
// statement. Concurrent claimers skip each other's rows.
func (r *BroadcastRepository) ClaimSkipLocked(ctx context.Context, limit int, now time.Time) ([]models.BroadcastJob, error) {
	now = dbTime(now)
	var jobs []models.BroadcastJob
	query := r.db.Rebind(`
		UPDATE broadcast_jobs
		SET status = ?, locked_at = ?, updated_at = ?
		WHERE id IN (
			SELECT id FROM broadcast_jobs
			WHERE status = ? AND available_at <= ?
			ORDER BY id
			LIMIT ?
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + jobColumns)
	err := r.db.SelectContext(ctx, &jobs, query,
		models.JobProcessing, now, now, models.JobPending, now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to claim jobs: %w", err)
	}
	// RETURNING order is unspecified
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].ID < jobs[j].ID })
	return jobs, nil
}

// ClaimCAS claims jobs one row at a time with a conditional update on status
func (r *BroadcastRepository) ClaimCAS(ctx context.Context, limit int, now time.Time) ([]models.BroadcastJob, error) {
	now = dbTime(now)
	var candidates []int64
	query := r.db.Rebind(`
		SELECT id FROM broadcast_jobs
		WHERE status = ? AND available_at <= ?
		ORDER BY id
		LIMIT ?
	`)
	if err := r.db.SelectContext(ctx, &candidates, query, models.JobPending, now, limit); err != nil {
		return nil, fmt.Errorf("failed to select pending jobs: %w", err)
	}

	update := r.db.Rebind(`
		UPDATE broadcast_jobs SET status = ?, locked_at = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`)
	jobs := make([]models.BroadcastJob, 0, len(candidates))
	for _, id := range candidates {
		result, err := r.db.ExecContext(ctx, update, models.JobProcessing, now, now, id, models.JobPending)
		if err != nil {
			return jobs, fmt.Errorf("failed to claim job %d: %w", id, err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return jobs, fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows == 0 {
			continue // taken by another worker
		}
		job, err := r.Get(ctx, id)
		if err != nil {
			return jobs, err
		}
		if job != nil {
			jobs = append(jobs, *job)
		}
	}
	return jobs, nil
}

// Get returns a job, or nil
func (r *BroadcastRepository) Get(ctx context.Context, id int64) (*models.BroadcastJob, error) {
	var job models.BroadcastJob
	query := r.db.Rebind(`SELECT ` + jobColumns + ` FROM broadcast_jobs WHERE id = ?`)
	err := r.db.GetContext(ctx, &job, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

// MarkSent finishes a processing job
func (r *BroadcastRepository) MarkSent(ctx context.Context, id int64, now time.Time) error {
	query := r.db.Rebind(`
		UPDATE broadcast_jobs SET status = ?, locked_at = NULL, last_error = NULL, updated_at = ?
		WHERE id = ? AND status = ?
	`)
	if _, err := r.db.ExecContext(ctx, query, models.JobSent, dbTime(now), id, models.JobProcessing); err != nil {
		return fmt.Errorf("failed to mark job sent: %w", err)
	}
	return nil
}

// Retry puts a job back to pending with a new attempt count and availability
func (r *BroadcastRepository) Retry(ctx context.Context, id int64, attempts int, lastError string, availableAt, now time.Time) error {
	query := r.db.Rebind(`
		UPDATE broadcast_jobs
		SET status = ?, attempts = ?, available_at = ?, locked_at = NULL, last_error = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`)
	_, err := r.db.ExecContext(ctx, query,
		models.JobPending, attempts, dbTime(availableAt), lastError, dbTime(now), id, models.JobProcessing,
	)
	if err != nil {
		return fmt.Errorf("failed to reschedule job: %w", err)
	}
	return nil
}

// Fail moves a job to the terminal failed state
func (r *BroadcastRepository) Fail(ctx context.Context, id int64, attempts int, lastError string, now time.Time) error {
	query := r.db.Rebind(`
		UPDATE broadcast_jobs
		SET status = ?, attempts = ?, locked_at = NULL, last_error = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`)
	if _, err := r.db.ExecContext(ctx, query, models.JobFailed, attempts, lastError, dbTime(now), id, models.JobProcessing); err != nil {
		return fmt.Errorf("failed to mark job failed: %w", err)
	}
	return nil
}

// RecoverStale reverts processing jobs locked before cutoff to pending
func (r *BroadcastRepository) RecoverStale(ctx context.Context, cutoff, now time.Time) (int, error) {
	now = dbTime(now)
	query := r.db.Rebind(`
		UPDATE broadcast_jobs
		SET status = ?, locked_at = NULL, available_at = ?, updated_at = ?
		WHERE status = ? AND locked_at < ?
	`)
	result, err := r.db.ExecContext(ctx, query, models.JobPending, now, now, models.JobProcessing, dbTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to recover stale jobs: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(rows), nil
}

// Counts returns status -> number of jobs
func (r *BroadcastRepository) Counts(ctx context.Context) (map[string]int, error) {
	var rows []struct {
		Status string `db:"status"`
		Count  int    `db:"n"`
	}
	if err := r.db.SelectContext(ctx, &rows, `SELECT status, COUNT(*) AS n FROM broadcast_jobs GROUP BY status`); err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}
	counts := map[string]int{
		models.JobPending:    0,
		models.JobProcessing: 0,
		models.JobSent:       0,
		models.JobFailed:     0,
	}
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}
