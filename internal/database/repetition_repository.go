package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/example/deutschbot/pkg/models"
)

// RepetitionRepository handles database operations for Leitner mastery records
type RepetitionRepository struct {
	db *DB
}

// NewRepetitionRepository creates a new repository instance
func NewRepetitionRepository(db *DB) *RepetitionRepository {
	return &RepetitionRepository{db: db}
}

const masteryColumns = `user_id, item_id, module, box, next_review, last_reviewed_at, is_suspended`

// Get returns a mastery record, or nil if the item was never reviewed
func (r *RepetitionRepository) Get(ctx context.Context, userID int64, itemID, module string) (*models.MasteryRecord, error) {
	var rec models.MasteryRecord
	query := r.db.Rebind(`SELECT ` + masteryColumns + ` FROM mastery WHERE user_id = ? AND item_id = ? AND module = ?`)
	err := r.db.GetContext(ctx, &rec, query, userID, itemID, module)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get mastery record: %w", err)
	}
	return &rec, nil
}

// Upsert writes the schedule of one item in a single statement.
// Suspension is left untouched on update.
func (r *RepetitionRepository) Upsert(ctx context.Context, rec *models.MasteryRecord) error {
	var reviewed *time.Time
	if rec.LastReviewedAt != nil {
		t := dbTime(*rec.LastReviewedAt)
		reviewed = &t
	}
	query := r.db.Rebind(`
		INSERT INTO mastery (user_id, item_id, module, box, next_review, last_reviewed_at, is_suspended)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, item_id, module) DO UPDATE SET
			box = excluded.box,
			next_review = excluded.next_review,
			last_reviewed_at = excluded.last_reviewed_at
	`)
	_, err := r.db.ExecContext(ctx, query,
		rec.UserID,
		rec.ItemID,
		rec.Module,
		rec.Box,
		rec.NextReview,
		reviewed,
		rec.IsSuspended,
	)
	if err != nil {
		return fmt.Errorf("failed to save mastery record: %w", err)
	}
	return nil
}

// Due returns non-suspended records scheduled on or before today,
// hardest and oldest first
func (r *RepetitionRepository) Due(ctx context.Context, userID int64, today string, limit int) ([]models.MasteryRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	var recs []models.MasteryRecord
	query := r.db.Rebind(`
		SELECT ` + masteryColumns + ` FROM mastery
		WHERE user_id = ? AND is_suspended = ? AND next_review <= ?
		ORDER BY box ASC, next_review ASC, item_id ASC
		LIMIT ?
	`)
	if err := r.db.SelectContext(ctx, &recs, query, userID, false, today, limit); err != nil {
		return nil, fmt.Errorf("failed to get due items: %w", err)
	}
	return recs, nil
}

// CountDue returns how many records are due today
func (r *RepetitionRepository) CountDue(ctx context.Context, userID int64, today string) (int, error) {
	var n int
	query := r.db.Rebind(`SELECT COUNT(*) FROM mastery WHERE user_id = ? AND is_suspended = ? AND next_review <= ?`)
	if err := r.db.GetContext(ctx, &n, query, userID, false, today); err != nil {
		return 0, fmt.Errorf("failed to count due items: %w", err)
	}
	return n, nil
}

// SetSuspended toggles whether an item takes part in reviews
func (r *RepetitionRepository) SetSuspended(ctx context.Context, userID int64, itemID, module string, suspended bool) error {
	query := r.db.Rebind(`UPDATE mastery SET is_suspended = ? WHERE user_id = ? AND item_id = ? AND module = ?`)
	result, err := r.db.ExecContext(ctx, query, suspended, userID, itemID, module)
	if err != nil {
		return fmt.Errorf("failed to update suspension: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// BoxHistogram returns the number of records per box
func (r *RepetitionRepository) BoxHistogram(ctx context.Context, userID int64) (map[int]int, error) {
	var rows []struct {
		Box   int `db:"box"`
		Count int `db:"n"`
	}
	query := r.db.Rebind(`SELECT box, COUNT(*) AS n FROM mastery WHERE user_id = ? GROUP BY box`)
	if err := r.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, fmt.Errorf("failed to get box histogram: %w", err)
	}
	hist := make(map[int]int, len(rows))
	for _, row := range rows {
		hist[row.Box] = row.Count
	}
	return hist, nil
}
