package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/example/deutschbot/pkg/models"
)

// StatisticsRepository handles lesson completions and streaks
type StatisticsRepository struct {
	db *DB
}

// NewStatisticsRepository creates a new repository instance
func NewStatisticsRepository(db *DB) *StatisticsRepository {
	return &StatisticsRepository{db: db}
}

// GetStreak returns the user's streak; a user without completions has a zero streak
func (r *StatisticsRepository) GetStreak(ctx context.Context, userID int64) (*models.Streak, error) {
	return getStreak(ctx, r.db.Rebind, r.db, userID)
}

type getter interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

func getStreak(ctx context.Context, rebind func(string) string, q getter, userID int64) (*models.Streak, error) {
	streak := models.Streak{UserID: userID}
	query := rebind(`SELECT user_id, current_streak, best_streak, last_completed_date FROM streaks WHERE user_id = ?`)
	err := q.GetContext(ctx, &streak, query, userID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to get streak: %w", err)
	}
	return &streak, nil
}

// CompleteDay records a lesson completion for date and advances the streak
// with next. A second completion on the same date changes nothing and
// returns inserted=false.
func (r *StatisticsRepository) CompleteDay(
	ctx context.Context,
	userID int64,
	date string,
	results models.SessionResults,
	now time.Time,
	next func(prev models.Streak, date string) models.Streak,
) (streak *models.Streak, inserted bool, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	query := tx.Rebind(`
		INSERT INTO lesson_completions (user_id, completed_date, quiz_correct, quiz_total, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id, completed_date) DO NOTHING
	`)
	result, err := tx.ExecContext(ctx, query, userID, date, results.QuizCorrect, results.QuizTotal, dbTime(now))
	if err != nil {
		return nil, false, fmt.Errorf("failed to record completion: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	prev, err := getStreak(ctx, tx.Rebind, tx, userID)
	if err != nil {
		return nil, false, err
	}
	if rows == 0 {
		if err = tx.Commit(); err != nil {
			return nil, false, fmt.Errorf("failed to commit transaction: %w", err)
		}
		return prev, false, nil
	}

	updated := next(*prev, date)
	updated.UserID = userID
	upsert := tx.Rebind(`
		INSERT INTO streaks (user_id, current_streak, best_streak, last_completed_date, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			current_streak = excluded.current_streak,
			best_streak = excluded.best_streak,
			last_completed_date = excluded.last_completed_date,
			updated_at = excluded.updated_at
	`)
	if _, err = tx.ExecContext(ctx, upsert, userID, updated.CurrentStreak, updated.BestStreak, updated.LastCompletedDate, dbTime(now)); err != nil {
		return nil, false, fmt.Errorf("failed to save streak: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return &updated, true, nil
}

// CountCompletions returns the number of days with a finished lesson
func (r *StatisticsRepository) CountCompletions(ctx context.Context, userID int64) (int, error) {
	var n int
	query := r.db.Rebind(`SELECT COUNT(*) FROM lesson_completions WHERE user_id = ?`)
	if err := r.db.GetContext(ctx, &n, query, userID); err != nil {
		return 0, fmt.Errorf("failed to count completions: %w", err)
	}
	return n, nil
}

// HasCompleted reports whether the user finished a lesson on date
func (r *StatisticsRepository) HasCompleted(ctx context.Context, userID int64, date string) (bool, error) {
	var n int
	query := r.db.Rebind(`SELECT COUNT(*) FROM lesson_completions WHERE user_id = ? AND completed_date = ?`)
	if err := r.db.GetContext(ctx, &n, query, userID, date); err != nil {
		return false, fmt.Errorf("failed to check completion: %w", err)
	}
	return n > 0, nil
}
