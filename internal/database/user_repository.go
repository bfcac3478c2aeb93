package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/example/deutschbot/pkg/models"
)

// UserRepository handles database operations for learner profiles
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new repository instance
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `user_id, username, first_name, current_level, goal, daily_time_minutes,
	onboarding_completed, daily_word_enabled, daily_word_hour, is_blocked, created_at, updated_at`

// GetByID returns a user, or nil when the user has never talked to the bot
func (r *UserRepository) GetByID(ctx context.Context, userID int64) (*models.UserProfile, error) {
	var user models.UserProfile
	query := r.db.Rebind(`SELECT ` + userColumns + ` FROM users WHERE user_id = ?`)
	err := r.db.GetContext(ctx, &user, query, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by ID: %w", err)
	}
	return &user, nil
}

// EnsureProfile returns the user's profile, creating it with defaults on first touch
func (r *UserRepository) EnsureProfile(ctx context.Context, userID int64, now time.Time) (*models.UserProfile, error) {
	now = dbTime(now)
	query := r.db.Rebind(`
		INSERT INTO users (user_id, current_level, goal, daily_time_minutes, daily_word_hour, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO NOTHING
	`)
	_, err := r.db.ExecContext(ctx, query,
		userID,
		models.LevelA1,
		models.GoalGeneral,
		models.DefaultDailyTimeMinutes,
		models.DefaultDailyWordHour,
		now,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	user, err := r.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("user %d missing after insert", userID)
	}
	// Rows written by older tooling may carry an unknown level
	user.CurrentLevel = models.NormalizeLevel(string(user.CurrentLevel))
	return user, nil
}

// Update modifies user settings
func (r *UserRepository) Update(ctx context.Context, user *models.UserProfile, now time.Time) error {
	user.CurrentLevel = models.NormalizeLevel(string(user.CurrentLevel))
	if user.DailyTimeMinutes <= 0 {
		user.DailyTimeMinutes = models.DefaultDailyTimeMinutes
	}
	user.UpdatedAt = dbTime(now)

	query := r.db.Rebind(`
		UPDATE users SET
			username = ?,
			first_name = ?,
			current_level = ?,
			goal = ?,
			daily_time_minutes = ?,
			onboarding_completed = ?,
			daily_word_enabled = ?,
			daily_word_hour = ?,
			is_blocked = ?,
			updated_at = ?
		WHERE user_id = ?
	`)
	result, err := r.db.ExecContext(ctx, query,
		user.Username,
		user.FirstName,
		user.CurrentLevel,
		user.Goal,
		user.DailyTimeMinutes,
		user.OnboardingCompleted,
		user.DailyWordEnabled,
		user.DailyWordHour,
		user.IsBlocked,
		user.UpdatedAt,
		user.UserID,
	)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("user %d not found", user.UserID)
	}
	return nil
}

// SubscribedAt returns users who receive the daily word at the given hour
func (r *UserRepository) SubscribedAt(ctx context.Context, hour int) ([]int64, error) {
	var ids []int64
	query := r.db.Rebind(`
		SELECT user_id FROM users
		WHERE daily_word_enabled = ? AND is_blocked = ? AND daily_word_hour = ?
		ORDER BY user_id
	`)
	if err := r.db.SelectContext(ctx, &ids, query, true, false, hour); err != nil {
		return nil, fmt.Errorf("failed to get users for notification: %w", err)
	}
	return ids, nil
}

// MarkBlocked flags a user whose chat rejects our messages
func (r *UserRepository) MarkBlocked(ctx context.Context, userID int64, now time.Time) error {
	query := r.db.Rebind(`UPDATE users SET is_blocked = ?, updated_at = ? WHERE user_id = ?`)
	if _, err := r.db.ExecContext(ctx, query, true, dbTime(now), userID); err != nil {
		return fmt.Errorf("failed to mark user blocked: %w", err)
	}
	return nil
}

// Count returns the number of known users
func (r *UserRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM users`); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}
