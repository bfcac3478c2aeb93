package lesson

import (
	"context"
	"strconv"

	"github.com/example/deutschbot/internal/clock"
	"github.com/example/deutschbot/internal/ledger"
	"github.com/example/deutschbot/pkg/models"
)

const (
	weakTopicDays  = 30
	weakTopicLimit = 3
	dueWordsLimit  = 5
)

// Dashboard is the learner's progress overview
type Dashboard struct {
	Level            models.Level
	CurrentStreak    int
	BestStreak       int
	Boxes            map[int]int
	Due              int
	DueWords         []models.VocabItem // first words waiting for review
	WeakTopics       []ledger.TopicScore
	CompletedLessons int
	TodayStatus      models.SessionStatus
}

// Dashboard collects progress numbers. Parts that fail to load are left empty.
func (e *Engine) Dashboard(ctx context.Context, userID int64) (*Dashboard, error) {
	now := e.clock.Now()
	today := now.Format(clock.DateLayout)

	profile, err := e.profiles.EnsureProfile(ctx, userID, now)
	if err != nil {
		return nil, storeErr(err)
	}
	d := &Dashboard{Level: models.NormalizeLevel(string(profile.CurrentLevel)), TodayStatus: models.SessionIdle}

	streak, err := e.completions.GetStreak(ctx, userID)
	if err != nil {
		return nil, storeErr(err)
	}
	d.CurrentStreak = LiveStreak(*streak, today)
	d.BestStreak = streak.BestStreak

	if d.CompletedLessons, err = e.completions.CountCompletions(ctx, userID); err != nil {
		return nil, storeErr(err)
	}

	if summary, err := e.mastery.Summary(ctx, userID); err != nil {
		e.log.Warn("failed to load mastery summary", "user_id", userID, "error", err)
	} else {
		d.Boxes = summary.Boxes
		d.Due = summary.Due
	}
	if d.Due > 0 {
		d.DueWords = e.dueWords(ctx, userID)
	}

	if d.WeakTopics, err = e.mistakes.WeakTopicScores(ctx, userID, d.Level, weakTopicDays, weakTopicLimit); err != nil {
		e.log.Warn("failed to load weak topics", "user_id", userID, "error", err)
	}

	if sess, err := e.sessions.Get(ctx, userID); err == nil && sess != nil && sess.PlanDate == today {
		d.TodayStatus = sess.Status
	}
	return d, nil
}

// dueWords resolves the quiz and vocabulary items due for review
func (e *Engine) dueWords(ctx context.Context, userID int64) []models.VocabItem {
	recs, err := e.mastery.DueItems(ctx, userID, dueWordsLimit)
	if err != nil {
		e.log.Warn("failed to load due items", "user_id", userID, "error", err)
		return nil
	}
	seen := make(map[int64]bool, len(recs))
	ids := make([]int64, 0, len(recs))
	for _, rec := range recs {
		if rec.Module != models.ModuleQuiz && rec.Module != models.ModuleVocab {
			continue
		}
		id, err := strconv.ParseInt(rec.ItemID, 10, 64)
		if err != nil || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil
	}
	words, err := e.catalog.VocabByIDs(ctx, ids)
	if err != nil {
		e.log.Warn("failed to load due words", "user_id", userID, "error", err)
		return nil
	}
	return words
}
