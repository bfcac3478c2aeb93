package lesson

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/example/deutschbot/internal/catalog"
	"github.com/example/deutschbot/internal/clock"
	"github.com/example/deutschbot/internal/database"
	"github.com/example/deutschbot/internal/ledger"
	"github.com/example/deutschbot/internal/rng"
	"github.com/example/deutschbot/internal/spaced_repetition"
	"github.com/example/deutschbot/pkg/logger"
	"github.com/example/deutschbot/pkg/models"
	"github.com/stretchr/testify/require"
)

var errInjected = errors.New("injected failure")

type countingMastery struct {
	inner    MasteryStore
	mu       sync.Mutex
	writes   map[string]int
	failures int // next calls to fail
}

func (m *countingMastery) RecordOutcome(ctx context.Context, userID int64, itemID, module string, correct bool) (*models.MasteryRecord, error) {
	m.mu.Lock()
	if m.failures > 0 {
		m.failures--
		m.mu.Unlock()
		return nil, errInjected
	}
	m.mu.Unlock()

	rec, err := m.inner.RecordOutcome(ctx, userID, itemID, module, correct)
	if err == nil {
		m.mu.Lock()
		m.writes[itemID]++
		m.mu.Unlock()
	}
	return rec, err
}

func (m *countingMastery) Summary(ctx context.Context, userID int64) (*spaced_repetition.Summary, error) {
	return m.inner.Summary(ctx, userID)
}

func (m *countingMastery) DueItems(ctx context.Context, userID int64, limit int) ([]models.MasteryRecord, error) {
	return m.inner.DueItems(ctx, userID, limit)
}

func (m *countingMastery) count(itemID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes[itemID]
}

type countingMistakes struct {
	*ledger.Mistakes
	mu        sync.Mutex
	mistakes  map[string]int
	successes map[string]int
	fail      bool
}

func (m *countingMistakes) RecordMistake(ctx context.Context, userID int64, itemID, module string, level models.Level, tags models.MistakeTags) error {
	if m.fail {
		return errInjected
	}
	if err := m.Mistakes.RecordMistake(ctx, userID, itemID, module, level, tags); err != nil {
		return err
	}
	m.mu.Lock()
	m.mistakes[itemID]++
	m.mu.Unlock()
	return nil
}

func (m *countingMistakes) RecordSuccess(ctx context.Context, userID int64, itemID, module string) error {
	if m.fail {
		return errInjected
	}
	if err := m.Mistakes.RecordSuccess(ctx, userID, itemID, module); err != nil {
		return err
	}
	m.mu.Lock()
	m.successes[itemID]++
	m.mu.Unlock()
	return nil
}

func (m *countingMistakes) mistakeCount(itemID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mistakes[itemID]
}

// flakySessions fails the next saveFailures calls to Save
type flakySessions struct {
	SessionStore
	mu           sync.Mutex
	saveFailures int
}

func (s *flakySessions) Save(ctx context.Context, sess *models.LessonSession, now time.Time) error {
	s.mu.Lock()
	if s.saveFailures > 0 {
		s.saveFailures--
		s.mu.Unlock()
		return errInjected
	}
	s.mu.Unlock()
	return s.SessionStore.Save(ctx, sess, now)
}

type harness struct {
	clock       *clock.Fixed
	rand        *rng.Rand
	log         *logger.Logger
	catalog     *catalog.Catalog
	words       *database.WordRepository
	topics      *database.TopicRepository
	mistakeRepo *database.MistakeRepository
	mastery     *countingMastery
	mistakes    *countingMistakes
	coverage    *ledger.Coverage
	plans       *database.PlanRepository
	sessions    *database.SessionRepository
	flaky       *flakySessions
	stats       *database.StatisticsRepository
	users       *database.UserRepository
	engine      *Engine
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := database.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	h := &harness{
		clock: clock.NewFixed(time.Date(2026, 2, 21, 10, 0, 0, 0, time.UTC)),
		rand:  rng.New(7),
		log:   logger.NewNop(),
	}
	h.words = database.NewWordRepository(db)
	h.topics = database.NewTopicRepository(db)
	h.catalog = catalog.New(h.words, h.topics, h.rand)
	h.mistakeRepo = database.NewMistakeRepository(db)
	h.mastery = &countingMastery{
		inner:  spaced_repetition.NewStore(database.NewRepetitionRepository(db), h.clock, h.log),
		writes: map[string]int{},
	}
	h.mistakes = &countingMistakes{
		Mistakes:  ledger.NewMistakes(h.mistakeRepo, h.clock, h.log),
		mistakes:  map[string]int{},
		successes: map[string]int{},
	}
	h.coverage = ledger.NewCoverage(h.mistakeRepo, h.clock)
	h.plans = database.NewPlanRepository(db)
	h.sessions = database.NewSessionRepository(db)
	h.flaky = &flakySessions{SessionStore: h.sessions}
	h.stats = database.NewStatisticsRepository(db)
	h.users = database.NewUserRepository(db)
	h.engine = h.newEngine()
	return h
}

// newEngine builds a fresh engine over the same stores, as after a restart
func (h *harness) newEngine() *Engine {
	return NewEngine(Deps{
		Profiles:     h.users,
		Catalog:      h.catalog,
		Mastery:      h.mastery,
		Mistakes:     h.mistakes,
		Coverage:     h.coverage,
		Plans:        h.plans,
		Sessions:     h.flaky,
		Completions:  h.stats,
		Clock:        h.clock,
		Rand:         h.rand,
		Log:          h.log,
		MistakeBlend: 0.5,
	})
}

// seedWords adds n words; ids run from 1 when called first
func (h *harness) seedWords(t *testing.T, level models.Level, n int) {
	t.Helper()
	for i := 1; i <= n; i++ {
		_, err := h.words.Upsert(context.Background(), &models.VocabItem{
			Level: level,
			De:    fmt.Sprintf("%s Wort%03d", level, i),
			Uz:    fmt.Sprintf("%s so'z%03d", level, i),
		})
		require.NoError(t, err)
	}
}

func (h *harness) seedTopics(t *testing.T, level models.Level, n int) {
	t.Helper()
	for i := 1; i <= n; i++ {
		_, err := h.topics.Upsert(context.Background(), &models.GrammarTopic{
			ID:    fmt.Sprintf("%s_t%d", level, i),
			Level: level,
			Title: fmt.Sprintf("Thema %d", i),
		})
		require.NoError(t, err)
	}
}

func (h *harness) profile(t *testing.T, userID int64, level models.Level, minutes int) *models.UserProfile {
	t.Helper()
	ctx := context.Background()
	p, err := h.users.EnsureProfile(ctx, userID, h.clock.Now())
	require.NoError(t, err)
	p.CurrentLevel = level
	p.DailyTimeMinutes = minutes
	require.NoError(t, h.users.Update(ctx, p, h.clock.Now()))
	return p
}

func (h *harness) setDay(date string) {
	d, err := time.Parse(clock.DateLayout, date)
	if err != nil {
		panic(err)
	}
	h.clock.Set(d.Add(10 * time.Hour))
}

// runLesson walks a full lesson answering every question correctly
func (h *harness) runLesson(t *testing.T, userID int64) *Result {
	t.Helper()
	ctx := context.Background()
	res, err := h.engine.Begin(ctx, userID)
	require.NoError(t, err)
	for res.Session.Step < models.StepQuiz {
		res, err = h.engine.Advance(ctx, userID)
		require.NoError(t, err)
	}
	for res.Session.Step == models.StepQuiz {
		q := res.Session.Question
		require.NotNil(t, q)
		res, err = h.engine.Answer(ctx, userID, q.Index, q.CorrectIndex)
		require.NoError(t, err)
	}
	for res.Session.Step < models.StepSummary {
		res, err = h.engine.Advance(ctx, userID)
		require.NoError(t, err)
	}
	res, err = h.engine.Finish(ctx, userID)
	require.NoError(t, err)
	return res
}
