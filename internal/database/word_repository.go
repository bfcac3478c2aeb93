package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/example/deutschbot/pkg/models"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// WordRepository handles database operations for the vocabulary corpus
type WordRepository struct {
	db *DB
}

// NewWordRepository creates a new repository instance
func NewWordRepository(db *DB) *WordRepository {
	return &WordRepository{db: db}
}

const vocabColumns = `id, level, de, uz, pos, example_de, example_uz`

// articlePrefixes lets a letter filter see through the noun's article
var articlePrefixes = []string{"", "der ", "die ", "das "}

// letterFilter matches words whose first German word starts with letter.
// LOWER handles ASCII on SQLite and everything on Postgres; the upper-case
// variant catches capitalised umlauts that SQLite's LOWER leaves alone.
func letterFilter(letter string) (string, []interface{}) {
	lower := strings.ToLower(letter)
	upper := strings.ToUpper(letter)

	conds := make([]string, 0, len(articlePrefixes)*2)
	args := make([]interface{}, 0, len(articlePrefixes)*2)
	for _, prefix := range articlePrefixes {
		conds = append(conds, "LOWER(de) LIKE ?", "de LIKE ?")
		args = append(args, prefix+lower+"%", prefix+upper+"%")
	}
	return "(" + strings.Join(conds, " OR ") + ")", args
}

// CountByLevel returns the number of words at a level
func (r *WordRepository) CountByLevel(ctx context.Context, level models.Level) (int, error) {
	var n int
	query := r.db.Rebind(`SELECT COUNT(*) FROM vocab WHERE level = ?`)
	if err := r.db.GetContext(ctx, &n, query, level); err != nil {
		return 0, fmt.Errorf("failed to count words: %w", err)
	}
	return n, nil
}

// CountByLetter returns the number of words at a level starting with letter
func (r *WordRepository) CountByLetter(ctx context.Context, level models.Level, letter string) (int, error) {
	filter, args := letterFilter(letter)
	var n int
	query := r.db.Rebind(`SELECT COUNT(*) FROM vocab WHERE level = ? AND ` + filter)
	if err := r.db.GetContext(ctx, &n, query, append([]interface{}{level}, args...)...); err != nil {
		return 0, fmt.Errorf("failed to count words by letter: %w", err)
	}
	return n, nil
}

// ListByLevel returns all words at a level, optionally filtered by first letter.
// Rows come back in id order; callers apply their own display ordering.
func (r *WordRepository) ListByLevel(ctx context.Context, level models.Level, letter string) ([]models.VocabItem, error) {
	query := `SELECT ` + vocabColumns + ` FROM vocab WHERE level = ?`
	args := []interface{}{level}
	if letter != "" {
		filter, filterArgs := letterFilter(letter)
		query += ` AND ` + filter
		args = append(args, filterArgs...)
	}
	query += ` ORDER BY id`

	var words []models.VocabItem
	if err := r.db.SelectContext(ctx, &words, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to get words: %w", err)
	}
	return words, nil
}

// IDsByLevel returns the ids of every word at a level
func (r *WordRepository) IDsByLevel(ctx context.Context, level models.Level) ([]int64, error) {
	var ids []int64
	query := r.db.Rebind(`SELECT id FROM vocab WHERE level = ? ORDER BY id`)
	if err := r.db.SelectContext(ctx, &ids, query, level); err != nil {
		return nil, fmt.Errorf("failed to get word ids: %w", err)
	}
	return ids, nil
}

// GetByIDs returns the words with the given ids. Unknown ids are skipped.
func (r *WordRepository) GetByIDs(ctx context.Context, ids []int64) ([]models.VocabItem, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var words []models.VocabItem
	if r.db.IsPostgres() {
		query := `SELECT ` + vocabColumns + ` FROM vocab WHERE id = ANY($1)`
		if err := r.db.SelectContext(ctx, &words, query, pq.Array(ids)); err != nil {
			return nil, fmt.Errorf("failed to get words by ids: %w", err)
		}
		return words, nil
	}

	query, args, err := sqlx.In(`SELECT `+vocabColumns+` FROM vocab WHERE id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to build word query: %w", err)
	}
	if err := r.db.SelectContext(ctx, &words, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to get words by ids: %w", err)
	}
	return words, nil
}

// Upsert creates a word or updates the existing one with the same level and
// surface form. It reports whether a new row was created.
func (r *WordRepository) Upsert(ctx context.Context, word *models.VocabItem) (bool, error) {
	var existingID int64
	query := r.db.Rebind(`SELECT id FROM vocab WHERE level = ? AND de = ?`)
	err := r.db.GetContext(ctx, &existingID, query, word.Level, word.De)
	switch {
	case err == nil:
		word.ID = existingID
		update := r.db.Rebind(`
			UPDATE vocab SET uz = ?, pos = ?, example_de = ?, example_uz = ?
			WHERE id = ?
		`)
		if _, err := r.db.ExecContext(ctx, update, word.Uz, word.Pos, word.ExampleDe, word.ExampleUz, word.ID); err != nil {
			return false, fmt.Errorf("failed to update word: %w", err)
		}
		return false, nil
	case !errors.Is(err, sql.ErrNoRows):
		return false, fmt.Errorf("failed to look up word: %w", err)
	}

	insert := `INSERT INTO vocab (level, de, uz, pos, example_de, example_uz) VALUES (?, ?, ?, ?, ?, ?)`
	if r.db.IsPostgres() {
		// lib/pq does not implement LastInsertId
		err := r.db.QueryRowxContext(ctx, r.db.Rebind(insert+` RETURNING id`),
			word.Level, word.De, word.Uz, word.Pos, word.ExampleDe, word.ExampleUz,
		).Scan(&word.ID)
		if err != nil {
			return false, fmt.Errorf("failed to create word: %w", err)
		}
		return true, nil
	}

	result, err := r.db.ExecContext(ctx, r.db.Rebind(insert),
		word.Level, word.De, word.Uz, word.Pos, word.ExampleDe, word.ExampleUz,
	)
	if err != nil {
		return false, fmt.Errorf("failed to create word: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return false, fmt.Errorf("failed to get last insert ID: %w", err)
	}
	word.ID = id
	return true, nil
}
