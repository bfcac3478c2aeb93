package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/example/deutschbot/pkg/models"
)

// TopicRepository handles database operations for grammar topics
type TopicRepository struct {
	db *DB
}

// NewTopicRepository creates a new repository instance
func NewTopicRepository(db *DB) *TopicRepository {
	return &TopicRepository{db: db}
}

// GetByLevel returns the grammar topics of a level ordered by id
func (r *TopicRepository) GetByLevel(ctx context.Context, level models.Level) ([]models.GrammarTopic, error) {
	var topics []models.GrammarTopic
	query := r.db.Rebind(`SELECT id, level, title, content, example FROM grammar_topics WHERE level = ? ORDER BY id`)
	if err := r.db.SelectContext(ctx, &topics, query, level); err != nil {
		return nil, fmt.Errorf("failed to get topics: %w", err)
	}
	return topics, nil
}

// GetByID returns a topic, or nil if it does not exist
func (r *TopicRepository) GetByID(ctx context.Context, id string) (*models.GrammarTopic, error) {
	var topic models.GrammarTopic
	query := r.db.Rebind(`SELECT id, level, title, content, example FROM grammar_topics WHERE id = ?`)
	err := r.db.GetContext(ctx, &topic, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get topic: %w", err)
	}
	return &topic, nil
}

// Upsert creates or replaces a topic. It reports whether a new row was created.
func (r *TopicRepository) Upsert(ctx context.Context, topic *models.GrammarTopic) (bool, error) {
	existing, err := r.GetByID(ctx, topic.ID)
	if err != nil {
		return false, err
	}

	query := r.db.Rebind(`
		INSERT INTO grammar_topics (id, level, title, content, example)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			level = excluded.level,
			title = excluded.title,
			content = excluded.content,
			example = excluded.example
	`)
	if _, err := r.db.ExecContext(ctx, query, topic.ID, topic.Level, topic.Title, topic.Content, topic.Example); err != nil {
		return false, fmt.Errorf("failed to save topic: %w", err)
	}
	return existing == nil, nil
}
