package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/example/deutschbot/pkg/models"
)

// SessionRepository persists the active lesson session of each user
type SessionRepository struct {
	db *DB
}

// NewSessionRepository creates a new repository instance
func NewSessionRepository(db *DB) *SessionRepository {
	return &SessionRepository{db: db}
}

type sessionRow struct {
	UserID                int64          `db:"user_id"`
	PlanDate              string         `db:"plan_date"`
	Status                string         `db:"status"`
	Step                  int            `db:"step"`
	PlanJSON              string         `db:"plan_json"`
	QuizIndex             int            `db:"quiz_index"`
	LastAnsweredQuizIndex int            `db:"last_answered_quiz_index"`
	QuizCorrect           int            `db:"quiz_correct"`
	QuizTotal             int            `db:"quiz_total"`
	QuestionJSON          sql.NullString `db:"question_json"`
	UpdatedAt             time.Time      `db:"updated_at"`
}

// Get returns the user's session, or nil if none is stored
func (r *SessionRepository) Get(ctx context.Context, userID int64) (*models.LessonSession, error) {
	var row sessionRow
	query := r.db.Rebind(`
		SELECT user_id, plan_date, status, step, plan_json, quiz_index, last_answered_quiz_index,
			quiz_correct, quiz_total, question_json, updated_at
		FROM lesson_sessions WHERE user_id = ?
	`)
	err := r.db.GetContext(ctx, &row, query, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	sess := &models.LessonSession{
		UserID:                row.UserID,
		PlanDate:              row.PlanDate,
		Status:                models.SessionStatus(row.Status),
		Step:                  row.Step,
		QuizIndex:             row.QuizIndex,
		LastAnsweredQuizIndex: row.LastAnsweredQuizIndex,
		Results: models.SessionResults{
			QuizCorrect: row.QuizCorrect,
			QuizTotal:   row.QuizTotal,
		},
		UpdatedAt: row.UpdatedAt,
	}
	if err := json.Unmarshal([]byte(row.PlanJSON), &sess.Plan); err != nil {
		return nil, fmt.Errorf("failed to decode session plan: %w", err)
	}
	if row.QuestionJSON.Valid && row.QuestionJSON.String != "" {
		var q models.QuizQuestion
		if err := json.Unmarshal([]byte(row.QuestionJSON.String), &q); err != nil {
			return nil, fmt.Errorf("failed to decode quiz question: %w", err)
		}
		sess.Question = &q
	}
	return sess, nil
}

// Save stores the whole session
func (r *SessionRepository) Save(ctx context.Context, sess *models.LessonSession, now time.Time) error {
	planJSON, err := json.Marshal(sess.Plan)
	if err != nil {
		return fmt.Errorf("failed to encode session plan: %w", err)
	}
	var question sql.NullString
	if sess.Question != nil {
		raw, err := json.Marshal(sess.Question)
		if err != nil {
			return fmt.Errorf("failed to encode quiz question: %w", err)
		}
		question = sql.NullString{String: string(raw), Valid: true}
	}
	sess.UpdatedAt = dbTime(now)

	query := r.db.Rebind(`
		INSERT INTO lesson_sessions (
			user_id, plan_date, status, step, plan_json, quiz_index, last_answered_quiz_index,
			quiz_correct, quiz_total, question_json, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			plan_date = excluded.plan_date,
			status = excluded.status,
			step = excluded.step,
			plan_json = excluded.plan_json,
			quiz_index = excluded.quiz_index,
			last_answered_quiz_index = excluded.last_answered_quiz_index,
			quiz_correct = excluded.quiz_correct,
			quiz_total = excluded.quiz_total,
			question_json = excluded.question_json,
			updated_at = excluded.updated_at
	`)
	_, err = r.db.ExecContext(ctx, query,
		sess.UserID,
		sess.PlanDate,
		string(sess.Status),
		sess.Step,
		string(planJSON),
		sess.QuizIndex,
		sess.LastAnsweredQuizIndex,
		sess.Results.QuizCorrect,
		sess.Results.QuizTotal,
		question,
		sess.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// ClaimAnswer sets the idempotency marker for quiz index i. It reports false
// when the index is not the current question or was already answered. A
// marker for i last touched before expiredBefore is taken over.
func (r *SessionRepository) ClaimAnswer(ctx context.Context, userID int64, index int, now, expiredBefore time.Time) (bool, error) {
	query := r.db.Rebind(`
		UPDATE lesson_sessions
		SET last_answered_quiz_index = ?, updated_at = ?
		WHERE user_id = ? AND status = ? AND step = ? AND quiz_index = ?
			AND (last_answered_quiz_index <> ? OR updated_at < ?)
	`)
	result, err := r.db.ExecContext(ctx, query,
		index, dbTime(now), userID, string(models.SessionInProgress), models.StepQuiz, index, index, dbTime(expiredBefore),
	)
	if err != nil {
		return false, fmt.Errorf("failed to claim answer: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows == 1, nil
}

// ReleaseAnswer puts the marker back to prev when the claimed answer for
// index could not be stored
func (r *SessionRepository) ReleaseAnswer(ctx context.Context, userID int64, index, prev int) error {
	query := r.db.Rebind(`
		UPDATE lesson_sessions
		SET last_answered_quiz_index = ?
		WHERE user_id = ? AND quiz_index = ? AND last_answered_quiz_index = ?
	`)
	if _, err := r.db.ExecContext(ctx, query, prev, userID, index, index); err != nil {
		return fmt.Errorf("failed to release answer: %w", err)
	}
	return nil
}

// Delete removes the user's session
func (r *SessionRepository) Delete(ctx context.Context, userID int64) error {
	query := r.db.Rebind(`DELETE FROM lesson_sessions WHERE user_id = ?`)
	if _, err := r.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
