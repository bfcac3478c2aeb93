package database

import (
	"context"
	"fmt"
	"time"

	"github.com/example/deutschbot/pkg/models"
)

// MistakeRepository handles database operations for the mistake ledger
// and grammar coverage
type MistakeRepository struct {
	db *DB
}

// NewMistakeRepository creates a new repository instance
func NewMistakeRepository(db *DB) *MistakeRepository {
	return &MistakeRepository{db: db}
}

const mistakeColumns = `user_id, item_id, module, level, mistake_count, success_count, mastered, last_mistake_at, tags`

// RecordMistake counts one wrong answer. Tags are kept when the new call has none.
func (r *MistakeRepository) RecordMistake(ctx context.Context, userID int64, itemID, module string, level models.Level, tags models.MistakeTags, now time.Time) error {
	query := r.db.Rebind(`
		INSERT INTO mistakes (user_id, item_id, module, level, mistake_count, success_count, mastered, last_mistake_at, tags)
		VALUES (?, ?, ?, ?, 1, 0, ?, ?, ?)
		ON CONFLICT (user_id, item_id, module) DO UPDATE SET
			mistake_count = mistakes.mistake_count + 1,
			mastered = excluded.mastered,
			last_mistake_at = excluded.last_mistake_at,
			level = CASE WHEN excluded.level <> '' THEN excluded.level ELSE mistakes.level END,
			tags = COALESCE(excluded.tags, mistakes.tags)
	`)
	_, err := r.db.ExecContext(ctx, query, userID, itemID, module, level, false, dbTime(now), tags)
	if err != nil {
		return fmt.Errorf("failed to record mistake: %w", err)
	}
	return nil
}

// RecordSuccess counts one correct answer: the mistake count moves toward
// zero and the row becomes mastered after two successes with no open mistakes
func (r *MistakeRepository) RecordSuccess(ctx context.Context, userID int64, itemID, module string) error {
	query := r.db.Rebind(`
		INSERT INTO mistakes (user_id, item_id, module, level, mistake_count, success_count, mastered)
		VALUES (?, ?, ?, '', 0, 1, ?)
		ON CONFLICT (user_id, item_id, module) DO UPDATE SET
			mistake_count = CASE WHEN mistakes.mistake_count > 0 THEN mistakes.mistake_count - 1 ELSE 0 END,
			success_count = mistakes.success_count + 1,
			mastered = (mistakes.success_count + 1 >= 2 AND mistakes.mistake_count <= 1)
	`)
	if _, err := r.db.ExecContext(ctx, query, userID, itemID, module, false); err != nil {
		return fmt.Errorf("failed to record success: %w", err)
	}
	return nil
}

// Get returns one ledger row, or nil
func (r *MistakeRepository) Get(ctx context.Context, userID int64, itemID, module string) (*models.MistakeRecord, error) {
	var recs []models.MistakeRecord
	query := r.db.Rebind(`SELECT ` + mistakeColumns + ` FROM mistakes WHERE user_id = ? AND item_id = ? AND module = ?`)
	if err := r.db.SelectContext(ctx, &recs, query, userID, itemID, module); err != nil {
		return nil, fmt.Errorf("failed to get mistake: %w", err)
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return &recs[0], nil
}

// Active returns unmastered rows with open mistakes at a level
func (r *MistakeRepository) Active(ctx context.Context, userID int64, level models.Level) ([]models.MistakeRecord, error) {
	var recs []models.MistakeRecord
	query := r.db.Rebind(`
		SELECT ` + mistakeColumns + ` FROM mistakes
		WHERE user_id = ? AND level = ? AND mastered = ? AND mistake_count > 0
	`)
	if err := r.db.SelectContext(ctx, &recs, query, userID, level, false); err != nil {
		return nil, fmt.Errorf("failed to get mistakes: %w", err)
	}
	return recs, nil
}

// ActiveSince is Active restricted to mistakes made at or after since
func (r *MistakeRepository) ActiveSince(ctx context.Context, userID int64, level models.Level, since time.Time) ([]models.MistakeRecord, error) {
	var recs []models.MistakeRecord
	query := r.db.Rebind(`
		SELECT ` + mistakeColumns + ` FROM mistakes
		WHERE user_id = ? AND level = ? AND mastered = ? AND mistake_count > 0
			AND last_mistake_at >= ?
	`)
	if err := r.db.SelectContext(ctx, &recs, query, userID, level, false, dbTime(since)); err != nil {
		return nil, fmt.Errorf("failed to get recent mistakes: %w", err)
	}
	return recs, nil
}

// MarkSeen bumps the coverage counter of a grammar topic
func (r *MistakeRepository) MarkSeen(ctx context.Context, userID int64, topicID string, level models.Level, now time.Time) error {
	query := r.db.Rebind(`
		INSERT INTO grammar_coverage (user_id, topic_id, level, seen_count, last_seen_at)
		VALUES (?, ?, ?, 1, ?)
		ON CONFLICT (user_id, topic_id) DO UPDATE SET
			seen_count = grammar_coverage.seen_count + 1,
			level = excluded.level,
			last_seen_at = excluded.last_seen_at
	`)
	if _, err := r.db.ExecContext(ctx, query, userID, topicID, level, dbTime(now)); err != nil {
		return fmt.Errorf("failed to mark topic seen: %w", err)
	}
	return nil
}

// CoverageMap returns topic id -> seen count for a level
func (r *MistakeRepository) CoverageMap(ctx context.Context, userID int64, level models.Level) (map[string]int, error) {
	var rows []models.GrammarCoverage
	query := r.db.Rebind(`
		SELECT user_id, topic_id, level, seen_count, last_seen_at
		FROM grammar_coverage WHERE user_id = ? AND level = ?
	`)
	if err := r.db.SelectContext(ctx, &rows, query, userID, level); err != nil {
		return nil, fmt.Errorf("failed to get coverage: %w", err)
	}
	cov := make(map[string]int, len(rows))
	for _, row := range rows {
		cov[row.TopicID] = row.SeenCount
	}
	return cov, nil
}
