// Package lesson builds each learner's daily plan and drives them through
// the six-step lesson that consumes it.
package lesson

import (
	"context"
	"time"

	"github.com/example/deutschbot/internal/ledger"
	"github.com/example/deutschbot/internal/spaced_repetition"
	"github.com/example/deutschbot/pkg/models"
)

// Catalog is the content the planner draws from
type Catalog interface {
	VocabCount(ctx context.Context, level models.Level) (int, error)
	VocabRandom(ctx context.Context, level models.Level, n int) ([]models.VocabItem, error)
	VocabByIDs(ctx context.Context, ids []int64) ([]models.VocabItem, error)
	GrammarTopics(ctx context.Context, level models.Level) ([]models.GrammarTopic, error)
	GrammarByID(ctx context.Context, id string) (*models.GrammarTopic, error)
}

// MistakeLedger ranks and records wrong answers
type MistakeLedger interface {
	WeightedMistakeIDs(ctx context.Context, userID int64, level models.Level, limit int) ([]string, error)
	WeakTopicScores(ctx context.Context, userID int64, level models.Level, days, limit int) ([]ledger.TopicScore, error)
	RecordMistake(ctx context.Context, userID int64, itemID, module string, level models.Level, tags models.MistakeTags) error
	RecordSuccess(ctx context.Context, userID int64, itemID, module string) error
}

// CoverageMap counts grammar topic exposure
type CoverageMap interface {
	MarkSeen(ctx context.Context, userID int64, topicID string, level models.Level) error
	Map(ctx context.Context, userID int64, level models.Level) (map[string]int, error)
}

// MasteryStore schedules item reviews
type MasteryStore interface {
	RecordOutcome(ctx context.Context, userID int64, itemID, module string, correct bool) (*models.MasteryRecord, error)
	Summary(ctx context.Context, userID int64) (*spaced_repetition.Summary, error)
	DueItems(ctx context.Context, userID int64, limit int) ([]models.MasteryRecord, error)
}

// PlanCache keeps one plan per user and day
type PlanCache interface {
	Get(ctx context.Context, userID int64, date string) (*models.DailyPlan, error)
	LatestBefore(ctx context.Context, userID int64, date string) (*models.DailyPlan, error)
	Save(ctx context.Context, userID int64, date string, plan *models.DailyPlan, now time.Time) error
	Delete(ctx context.Context, userID int64, date string) error
	AppendAudit(ctx context.Context, userID int64, date, action string, now time.Time) error
}

// SessionStore persists the active session
type SessionStore interface {
	Get(ctx context.Context, userID int64) (*models.LessonSession, error)
	Save(ctx context.Context, sess *models.LessonSession, now time.Time) error
	ClaimAnswer(ctx context.Context, userID int64, index int, now, expiredBefore time.Time) (bool, error)
	ReleaseAnswer(ctx context.Context, userID int64, index, prev int) error
	Delete(ctx context.Context, userID int64) error
}

// CompletionStore records finished lessons and streaks
type CompletionStore interface {
	CompleteDay(ctx context.Context, userID int64, date string, results models.SessionResults, now time.Time,
		next func(prev models.Streak, date string) models.Streak) (*models.Streak, bool, error)
	GetStreak(ctx context.Context, userID int64) (*models.Streak, error)
	CountCompletions(ctx context.Context, userID int64) (int, error)
}

// Profiles resolves learner profiles
type Profiles interface {
	EnsureProfile(ctx context.Context, userID int64, now time.Time) (*models.UserProfile, error)
}
