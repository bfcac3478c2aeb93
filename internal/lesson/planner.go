package lesson

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/example/deutschbot/internal/apperr"
	"github.com/example/deutschbot/internal/clock"
	"github.com/example/deutschbot/internal/database"
	"github.com/example/deutschbot/pkg/logger"
	"github.com/example/deutschbot/pkg/models"
	"golang.org/x/text/cases"
)

const (
	// minCatalogSize is the smallest level that can carry a plan
	minCatalogSize = 4
	minVocab       = 3
	// mistakeCandidates is how many ranked mistakes are considered for the quiz
	mistakeCandidates = 10
	// poolFactor sizes the random pool words are picked from
	poolFactor = 10
)

// Planner builds daily plans
type Planner struct {
	catalog  Catalog
	mistakes MistakeLedger
	coverage CoverageMap
	plans    PlanCache
	clock    clock.Clock
	log      *logger.Logger
	// blend is the share of the quiz mistakes are expected to fill; only reported
	blend float64
}

func NewPlanner(catalog Catalog, mistakes MistakeLedger, coverage CoverageMap, plans PlanCache, c clock.Clock, log *logger.Logger, blend float64) *Planner {
	return &Planner{
		catalog:  catalog,
		mistakes: mistakes,
		coverage: coverage,
		plans:    plans,
		clock:    c,
		log:      log,
		blend:    blend,
	}
}

// Sizing returns how many new words and quiz questions fit the daily time
func Sizing(minutes int) (vocabN, quizN int) {
	switch {
	case minutes <= 10:
		return 3, 4
	case minutes >= 20:
		return 5, 5
	default:
		return 4, 4
	}
}

// ProductionModeFor picks writing or speaking. B1 and B2 alternate by day.
func ProductionModeFor(level models.Level, today string, userID int64) models.ProductionMode {
	switch level {
	case models.LevelA1, models.LevelA2:
		return models.ProductionWriting
	case models.LevelC1:
		return models.ProductionSpeaking
	}
	n := (clock.DayOrdinal(today) + userID) % 2
	if n < 0 {
		n = -n
	}
	if n == 0 {
		return models.ProductionWriting
	}
	return models.ProductionSpeaking
}

// PickGrammarTopic returns the least seen topic that is not avoid. When
// every candidate is avoid, the least seen one is returned anyway.
func PickGrammarTopic(topics []models.GrammarTopic, seen map[string]int, avoid string) *models.GrammarTopic {
	if len(topics) == 0 {
		return nil
	}
	sorted := make([]models.GrammarTopic, len(topics))
	copy(sorted, topics)
	sort.SliceStable(sorted, func(i, j int) bool {
		return seen[sorted[i].ID] < seen[sorted[j].ID]
	})
	for i := range sorted {
		if sorted[i].ID != avoid {
			return &sorted[i]
		}
	}
	return &sorted[0]
}

// PlanFor returns today's plan for the learner, reusing the cached one
func (p *Planner) PlanFor(ctx context.Context, profile *models.UserProfile) (*models.DailyPlan, error) {
	today := clock.Today(p.clock)
	level := models.NormalizeLevel(string(profile.CurrentLevel))

	cached, err := p.plans.Get(ctx, profile.UserID, today)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrStoreUnavailable, err)
	}
	if cached != nil && cached.Level == level {
		p.audit(ctx, profile.UserID, today, database.PlanReused)
		p.log.Info("plan reused", "event", "plan_reused", "user_id", profile.UserID, "date", today)
		return cached, nil
	}

	plan, err := p.BuildPlan(ctx, profile, today)
	if err != nil {
		return nil, err
	}
	if err := p.plans.Save(ctx, profile.UserID, today, plan, p.clock.Now()); err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrStoreUnavailable, err)
	}
	p.audit(ctx, profile.UserID, today, database.PlanGenerated)
	p.log.Info("plan generated",
		"event", "plan_generated",
		"user_id", profile.UserID,
		"date", today,
		"level", plan.Level,
		"topic", plan.GrammarTopicID,
		"vocab", len(plan.VocabIDs),
		"quiz", len(plan.PracticeQuizIDs),
	)
	return plan, nil
}

func (p *Planner) audit(ctx context.Context, userID int64, date, action string) {
	if err := p.plans.AppendAudit(ctx, userID, date, action, p.clock.Now()); err != nil {
		p.log.Warn("failed to write plan audit", "user_id", userID, "error", err)
	}
}

// BuildPlan selects the content of one day. It does not touch the cache.
func (p *Planner) BuildPlan(ctx context.Context, profile *models.UserProfile, today string) (*models.DailyPlan, error) {
	level := models.NormalizeLevel(string(profile.CurrentLevel))

	count, err := p.catalog.VocabCount(ctx, level)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrStoreUnavailable, err)
	}
	if count < minCatalogSize {
		return nil, fmt.Errorf("level %s has %d words: %w", level, count, apperr.ErrInsufficientContent)
	}

	vocabN, quizN := Sizing(profile.DailyTimeMinutes)
	// Leave room for at least a few quiz items on a small level
	if limit := count - 3; vocabN > limit {
		vocabN = limit
		if vocabN < minVocab {
			vocabN = minVocab
		}
	}

	avoid := ""
	prev, err := p.plans.LatestBefore(ctx, profile.UserID, today)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrStoreUnavailable, err)
	}
	if prev != nil {
		avoid = prev.GrammarTopicID
	}

	topics, err := p.catalog.GrammarTopics(ctx, level)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrStoreUnavailable, err)
	}
	seen, err := p.coverage.Map(ctx, profile.UserID, level)
	if err != nil {
		// rotation degrades to id order
		p.log.Warn("failed to read grammar coverage", "user_id", profile.UserID, "error", err)
		seen = map[string]int{}
	}
	topic := PickGrammarTopic(topics, seen, avoid)

	words, err := p.selectWordsForTopic(ctx, level, topic, vocabN)
	if err != nil {
		return nil, err
	}
	vocabIDs := make([]int64, len(words))
	for i, w := range words {
		vocabIDs[i] = w.ID
	}

	quizIDs, fromMistakes, err := p.practiceQuizIDs(ctx, profile.UserID, level, vocabIDs, quizN)
	if err != nil {
		return nil, err
	}

	plan := &models.DailyPlan{
		Level:           level,
		VocabIDs:        vocabIDs,
		PracticeQuizIDs: quizIDs,
		ProductionMode:  ProductionModeFor(level, today, profile.UserID),
	}
	if topic != nil {
		plan.GrammarTopicID = topic.ID
	}

	if len(quizIDs) > 0 {
		share := float64(fromMistakes) / float64(len(quizIDs))
		if share > p.blend {
			p.log.Debug("mistake share above blend", "user_id", profile.UserID, "share", share, "blend", p.blend)
		}
	}
	return plan, nil
}

// selectWordsForTopic prefers words that occur in the topic text
func (p *Planner) selectWordsForTopic(ctx context.Context, level models.Level, topic *models.GrammarTopic, n int) ([]models.VocabItem, error) {
	pool, err := p.catalog.VocabRandom(ctx, level, n*poolFactor)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrStoreUnavailable, err)
	}

	fold := cases.Fold()
	text := ""
	if topic != nil {
		text = fold.String(topic.Title + " " + topic.Content)
	}
	scores := make([]int, len(pool))
	for i, w := range pool {
		if text == "" {
			break
		}
		de := strings.TrimSpace(fold.String(w.De))
		uz := strings.TrimSpace(fold.String(w.Uz))
		if (de != "" && strings.Contains(text, de)) || (uz != "" && strings.Contains(text, uz)) {
			scores[i] = 1
		}
	}

	idx := make([]int, len(pool))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return scores[idx[a]] > scores[idx[b]] })
	if len(idx) > n {
		idx = idx[:n]
	}
	words := make([]models.VocabItem, len(idx))
	for i, k := range idx {
		words[i] = pool[k]
	}
	return words, nil
}

// practiceQuizIDs blends open mistakes with fresh words. It also returns
// how many ids came from the mistake ledger.
func (p *Planner) practiceQuizIDs(ctx context.Context, userID int64, level models.Level, vocabIDs []int64, quizN int) ([]int64, int, error) {
	taken := make(map[int64]bool, len(vocabIDs)+quizN)
	for _, id := range vocabIDs {
		taken[id] = true
	}

	var ids []int64
	mistakeIDs, err := p.mistakes.WeightedMistakeIDs(ctx, userID, level, mistakeCandidates)
	if err != nil {
		p.log.Warn("failed to rank mistakes", "user_id", userID, "error", err)
	}
	var candidates []int64
	for _, raw := range mistakeIDs {
		// ledger keys of other modules are not word ids
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || taken[id] {
			continue
		}
		taken[id] = true
		candidates = append(candidates, id)
	}
	if len(candidates) > 0 {
		resolved, err := p.catalog.VocabByIDs(ctx, candidates)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %v", apperr.ErrStoreUnavailable, err)
		}
		atLevel := make(map[int64]bool, len(resolved))
		for _, w := range resolved {
			if w.Level == level {
				atLevel[w.ID] = true
			}
		}
		for _, id := range candidates {
			if !atLevel[id] {
				delete(taken, id)
				continue
			}
			if len(ids) < quizN {
				ids = append(ids, id)
			} else {
				delete(taken, id)
			}
		}
	}
	fromMistakes := len(ids)

	if missing := quizN - len(ids); missing > 0 {
		fresh, err := p.catalog.VocabRandom(ctx, level, len(vocabIDs)+quizN)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %v", apperr.ErrStoreUnavailable, err)
		}
		for _, w := range fresh {
			if len(ids) >= quizN {
				break
			}
			if taken[w.ID] {
				continue
			}
			taken[w.ID] = true
			ids = append(ids, w.ID)
		}
	}
	return ids, fromMistakes, nil
}
