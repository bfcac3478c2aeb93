// Package ledger keeps per-user learning history: wrong answers with their
// recency-weighted ranking, and how often each grammar topic was shown.
package ledger

import (
	"context"
	"sort"
	"time"

	"github.com/example/deutschbot/internal/clock"
	"github.com/example/deutschbot/pkg/logger"
	"github.com/example/deutschbot/pkg/models"
)

// MistakeRepository is the persistence the mistake ledger needs
type MistakeRepository interface {
	RecordMistake(ctx context.Context, userID int64, itemID, module string, level models.Level, tags models.MistakeTags, now time.Time) error
	RecordSuccess(ctx context.Context, userID int64, itemID, module string) error
	Active(ctx context.Context, userID int64, level models.Level) ([]models.MistakeRecord, error)
	ActiveSince(ctx context.Context, userID int64, level models.Level, since time.Time) ([]models.MistakeRecord, error)
}

// RecencyFactor weights a mistake by its age
func RecencyFactor(age time.Duration) float64 {
	switch {
	case age <= 48*time.Hour:
		return 1.5
	case age <= 7*24*time.Hour:
		return 1.2
	default:
		return 1.0
	}
}

// Score is mistake_count weighted by recency
func Score(rec models.MistakeRecord, now time.Time) float64 {
	factor := 1.0
	if rec.LastMistakeAt != nil {
		factor = RecencyFactor(now.Sub(*rec.LastMistakeAt))
	}
	return float64(rec.MistakeCount) * factor
}

// Mistakes records wrong and right answers and ranks what needs practice
type Mistakes struct {
	repo  MistakeRepository
	clock clock.Clock
	log   *logger.Logger
}

func NewMistakes(repo MistakeRepository, c clock.Clock, log *logger.Logger) *Mistakes {
	return &Mistakes{repo: repo, clock: c, log: log}
}

// RecordMistake counts a wrong answer and clears the mastered flag
func (m *Mistakes) RecordMistake(ctx context.Context, userID int64, itemID, module string, level models.Level, tags models.MistakeTags) error {
	if err := m.repo.RecordMistake(ctx, userID, itemID, module, level, tags, m.clock.Now()); err != nil {
		return err
	}
	m.log.Info("mistake recorded",
		"event", "mistake_recorded",
		"user_id", userID,
		"item_id", itemID,
		"module", module,
		"topic_id", tags.TopicID,
	)
	return nil
}

// RecordSuccess counts a right answer
func (m *Mistakes) RecordSuccess(ctx context.Context, userID int64, itemID, module string) error {
	return m.repo.RecordSuccess(ctx, userID, itemID, module)
}

type scored struct {
	rec   models.MistakeRecord
	score float64
}

func rank(recs []models.MistakeRecord, now time.Time) []scored {
	out := make([]scored, 0, len(recs))
	for _, rec := range recs {
		if rec.Mastered || rec.MistakeCount <= 0 {
			continue
		}
		out = append(out, scored{rec: rec, score: Score(rec, now)})
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.score != b.score {
			return a.score > b.score
		}
		at, bt := lastMistake(a.rec), lastMistake(b.rec)
		if !at.Equal(bt) {
			return at.After(bt)
		}
		if a.rec.MistakeCount != b.rec.MistakeCount {
			return a.rec.MistakeCount > b.rec.MistakeCount
		}
		return a.rec.ItemID < b.rec.ItemID
	})
	return out
}

func lastMistake(rec models.MistakeRecord) time.Time {
	if rec.LastMistakeAt == nil {
		return time.Time{}
	}
	return *rec.LastMistakeAt
}

// WeightedMistakeIDs returns open mistakes at a level, worst first
func (m *Mistakes) WeightedMistakeIDs(ctx context.Context, userID int64, level models.Level, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}
	recs, err := m.repo.Active(ctx, userID, level)
	if err != nil {
		return nil, err
	}
	ranked := rank(recs, m.clock.Now())
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	ids := make([]string, len(ranked))
	for i, r := range ranked {
		ids[i] = r.rec.ItemID
	}
	return ids, nil
}

// TopicScore is the summed mistake score of one grammar topic
type TopicScore struct {
	TopicID string
	Score   float64
}

// WeakTopicScores sums weighted mistakes per tagged topic over the last days
func (m *Mistakes) WeakTopicScores(ctx context.Context, userID int64, level models.Level, days, limit int) ([]TopicScore, error) {
	if limit <= 0 {
		return nil, nil
	}
	now := m.clock.Now()
	recs, err := m.repo.ActiveSince(ctx, userID, level, now.AddDate(0, 0, -days))
	if err != nil {
		return nil, err
	}

	sums := make(map[string]float64)
	for _, r := range rank(recs, now) {
		if r.rec.Tags.TopicID == "" {
			continue
		}
		sums[r.rec.Tags.TopicID] += r.score
	}

	out := make([]TopicScore, 0, len(sums))
	for id, score := range sums {
		out = append(out, TopicScore{TopicID: id, Score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].TopicID < out[j].TopicID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
