package database

import (
	"context"
	"testing"
	"time"

	"github.com/example/deutschbot/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

var testNow = time.Date(2026, 2, 21, 9, 0, 0, 0, time.UTC)

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("mongo", "")
	assert.ErrorIs(t, err, ErrUnsupportedDB)
}

func TestUserRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(newTestDB(t))

	user, err := repo.GetByID(ctx, 42)
	require.NoError(t, err)
	assert.Nil(t, user)

	user, err = repo.EnsureProfile(ctx, 42, testNow)
	require.NoError(t, err)
	assert.Equal(t, models.LevelA1, user.CurrentLevel)
	assert.Equal(t, models.GoalGeneral, user.Goal)
	assert.Equal(t, 15, user.DailyTimeMinutes)
	assert.True(t, user.DailyWordEnabled)

	user.CurrentLevel = "Z9"
	user.DailyWordHour = 7
	require.NoError(t, repo.Update(ctx, user, testNow))

	again, err := repo.EnsureProfile(ctx, 42, testNow.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, models.LevelA1, again.CurrentLevel)
	assert.Equal(t, 7, again.DailyWordHour)

	_, err = repo.EnsureProfile(ctx, 43, testNow)
	require.NoError(t, err)

	ids, err := repo.SubscribedAt(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, []int64{43}, ids)

	require.NoError(t, repo.MarkBlocked(ctx, 43, testNow))
	ids, err = repo.SubscribedAt(ctx, 9)
	require.NoError(t, err)
	assert.Empty(t, ids)

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestWordRepositoryLetterFilterSeesThroughArticles(t *testing.T) {
	ctx := context.Background()
	repo := NewWordRepository(newTestDB(t))

	for _, de := range []string{"der Apfel", "die Ampel", "das Auto", "arbeiten", "Abend", "der Baum", "die Ärztin", "ändern"} {
		_, err := repo.Upsert(ctx, &models.VocabItem{Level: models.LevelA1, De: de, Uz: "uz " + de})
		require.NoError(t, err)
	}
	_, err := repo.Upsert(ctx, &models.VocabItem{Level: models.LevelA2, De: "der Anzug", Uz: "kostyum"})
	require.NoError(t, err)

	tests := []struct {
		letter string
		want   int
	}{
		{"a", 5},
		{"A", 5},
		{"b", 1},
		{"ä", 2},
		{"Ä", 2},
		{"z", 0},
	}
	for _, tt := range tests {
		n, err := repo.CountByLetter(ctx, models.LevelA1, tt.letter)
		require.NoError(t, err)
		assert.Equal(t, tt.want, n, "letter %q", tt.letter)
	}

	words, err := repo.ListByLevel(ctx, models.LevelA1, "b")
	require.NoError(t, err)
	require.Len(t, words, 1)
	assert.Equal(t, "der Baum", words[0].De)

	total, err := repo.CountByLevel(ctx, models.LevelA1)
	require.NoError(t, err)
	assert.Equal(t, 8, total)
}

func TestWordRepositoryUpsertAndLookup(t *testing.T) {
	ctx := context.Background()
	repo := NewWordRepository(newTestDB(t))

	w := &models.VocabItem{Level: models.LevelA1, De: "der Hund", Uz: "it"}
	created, err := repo.Upsert(ctx, w)
	require.NoError(t, err)
	assert.True(t, created)
	require.NotZero(t, w.ID)

	dup := &models.VocabItem{Level: models.LevelA1, De: "der Hund", Uz: "kuchuk", Pos: "noun"}
	created, err = repo.Upsert(ctx, dup)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, w.ID, dup.ID)

	got, err := repo.GetByIDs(ctx, []int64{w.ID, 9999})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "kuchuk", got[0].Uz)
	assert.Equal(t, "noun", got[0].Pos)

	got, err = repo.GetByIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, got)

	ids, err := repo.IDsByLevel(ctx, models.LevelA1)
	require.NoError(t, err)
	assert.Equal(t, []int64{w.ID}, ids)
}

func TestTopicRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewTopicRepository(newTestDB(t))

	for _, id := range []string{"a1_verbs", "a1_articles"} {
		created, err := repo.Upsert(ctx, &models.GrammarTopic{ID: id, Level: models.LevelA1, Title: id})
		require.NoError(t, err)
		assert.True(t, created)
	}
	created, err := repo.Upsert(ctx, &models.GrammarTopic{ID: "a1_verbs", Level: models.LevelA1, Title: "Verben"})
	require.NoError(t, err)
	assert.False(t, created)

	topics, err := repo.GetByLevel(ctx, models.LevelA1)
	require.NoError(t, err)
	require.Len(t, topics, 2)
	assert.Equal(t, "a1_articles", topics[0].ID)
	assert.Equal(t, "Verben", topics[1].Title)

	missing, err := repo.GetByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRepetitionRepositoryDueOrdering(t *testing.T) {
	ctx := context.Background()
	repo := NewRepetitionRepository(newTestDB(t))

	recs := []models.MasteryRecord{
		{UserID: 1, ItemID: "a", Module: models.ModuleVocab, Box: 3, NextReview: "2026-02-20"},
		{UserID: 1, ItemID: "b", Module: models.ModuleVocab, Box: 1, NextReview: "2026-02-21"},
		{UserID: 1, ItemID: "c", Module: models.ModuleVocab, Box: 1, NextReview: "2026-02-19"},
		{UserID: 1, ItemID: "d", Module: models.ModuleVocab, Box: 1, NextReview: "2026-02-22"},
		{UserID: 1, ItemID: "e", Module: models.ModuleVocab, Box: 2, NextReview: "2026-02-01"},
		{UserID: 2, ItemID: "a", Module: models.ModuleVocab, Box: 1, NextReview: "2026-02-01"},
	}
	for i := range recs {
		require.NoError(t, repo.Upsert(ctx, &recs[i]))
	}
	require.NoError(t, repo.SetSuspended(ctx, 1, "e", models.ModuleVocab, true))

	due, err := repo.Due(ctx, 1, "2026-02-21", 10)
	require.NoError(t, err)
	var ids []string
	for _, d := range due {
		ids = append(ids, d.ItemID)
	}
	assert.Equal(t, []string{"c", "b", "a"}, ids)

	due, err = repo.Due(ctx, 1, "2026-02-21", 1)
	require.NoError(t, err)
	require.Len(t, due, 1)

	n, err := repo.CountDue(ctx, 1, "2026-02-21")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// suspension survives a later schedule update
	reviewed := testNow
	require.NoError(t, repo.Upsert(ctx, &models.MasteryRecord{UserID: 1, ItemID: "e", Module: models.ModuleVocab, Box: 1, NextReview: "2026-02-10", LastReviewedAt: &reviewed}))
	got, err := repo.Get(ctx, 1, "e", models.ModuleVocab)
	require.NoError(t, err)
	assert.True(t, got.IsSuspended)
	require.NotNil(t, got.LastReviewedAt)
	assert.True(t, got.LastReviewedAt.Equal(testNow))

	hist, err := repo.BoxHistogram(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, map[int]int{1: 4, 3: 1}, hist)

	assert.Error(t, repo.SetSuspended(ctx, 1, "zzz", models.ModuleVocab, true))
}

func TestMistakeRepositoryMasteredCriterion(t *testing.T) {
	ctx := context.Background()
	repo := NewMistakeRepository(newTestDB(t))
	tags := models.MistakeTags{TopicID: "a1_verbs"}

	require.NoError(t, repo.RecordMistake(ctx, 1, "10", models.ModuleQuiz, models.LevelA1, tags, testNow))
	require.NoError(t, repo.RecordMistake(ctx, 1, "10", models.ModuleQuiz, models.LevelA1, models.MistakeTags{}, testNow))

	rec, err := repo.Get(ctx, 1, "10", models.ModuleQuiz)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.MistakeCount)
	assert.Equal(t, "a1_verbs", rec.Tags.TopicID)
	assert.False(t, rec.Mastered)

	steps := []struct {
		mistakes, successes int
		mastered            bool
	}{
		{1, 1, false},
		{0, 2, true},
		{0, 3, true},
	}
	for _, s := range steps {
		require.NoError(t, repo.RecordSuccess(ctx, 1, "10", models.ModuleQuiz))
		rec, err = repo.Get(ctx, 1, "10", models.ModuleQuiz)
		require.NoError(t, err)
		assert.Equal(t, s.mistakes, rec.MistakeCount)
		assert.Equal(t, s.successes, rec.SuccessCount)
		assert.Equal(t, s.mastered, rec.Mastered)
	}

	require.NoError(t, repo.RecordMistake(ctx, 1, "10", models.ModuleQuiz, models.LevelA1, tags, testNow))
	rec, err = repo.Get(ctx, 1, "10", models.ModuleQuiz)
	require.NoError(t, err)
	assert.False(t, rec.Mastered)
	assert.Equal(t, 1, rec.MistakeCount)

	// success on an untouched item creates a row with no mistakes
	require.NoError(t, repo.RecordSuccess(ctx, 1, "11", models.ModuleQuiz))
	rec, err = repo.Get(ctx, 1, "11", models.ModuleQuiz)
	require.NoError(t, err)
	assert.Equal(t, 0, rec.MistakeCount)
	assert.Equal(t, 1, rec.SuccessCount)
	assert.False(t, rec.Mastered)

	active, err := repo.Active(ctx, 1, models.LevelA1)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "10", active[0].ItemID)

	recent, err := repo.ActiveSince(ctx, 1, models.LevelA1, testNow.Add(time.Minute))
	require.NoError(t, err)
	assert.Empty(t, recent)
}

func TestCoverage(t *testing.T) {
	ctx := context.Background()
	repo := NewMistakeRepository(newTestDB(t))

	require.NoError(t, repo.MarkSeen(ctx, 1, "a1_verbs", models.LevelA1, testNow))
	require.NoError(t, repo.MarkSeen(ctx, 1, "a1_verbs", models.LevelA1, testNow))
	require.NoError(t, repo.MarkSeen(ctx, 1, "a2_perfekt", models.LevelA2, testNow))

	cov, err := repo.CoverageMap(ctx, 1, models.LevelA1)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"a1_verbs": 2}, cov)
}

func TestPlanRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewPlanRepository(newTestDB(t))

	plan, err := repo.Get(ctx, 1, "2026-02-21")
	require.NoError(t, err)
	assert.Nil(t, plan)

	p1 := &models.DailyPlan{Level: models.LevelA1, GrammarTopicID: "t1", VocabIDs: []int64{1, 2, 3}, PracticeQuizIDs: []int64{4, 5, 6}, ProductionMode: models.ProductionWriting}
	p2 := &models.DailyPlan{Level: models.LevelA1, GrammarTopicID: "t2", VocabIDs: []int64{7, 8, 9}, PracticeQuizIDs: []int64{4, 5, 6}, ProductionMode: models.ProductionWriting}
	require.NoError(t, repo.Save(ctx, 1, "2026-02-19", p1, testNow))
	require.NoError(t, repo.Save(ctx, 1, "2026-02-20", p2, testNow))

	got, err := repo.Get(ctx, 1, "2026-02-19")
	require.NoError(t, err)
	assert.Equal(t, p1, got)

	prev, err := repo.LatestBefore(ctx, 1, "2026-02-21")
	require.NoError(t, err)
	require.NotNil(t, prev)
	assert.Equal(t, "t2", prev.GrammarTopicID)

	require.NoError(t, repo.Delete(ctx, 1, "2026-02-20"))
	prev, err = repo.LatestBefore(ctx, 1, "2026-02-21")
	require.NoError(t, err)
	assert.Equal(t, "t1", prev.GrammarTopicID)

	require.NoError(t, repo.AppendAudit(ctx, 1, "2026-02-21", PlanGenerated, testNow))
	require.NoError(t, repo.AppendAudit(ctx, 1, "2026-02-21", PlanReused, testNow))
	require.NoError(t, repo.AppendAudit(ctx, 1, "2026-02-21", PlanReused, testNow))
	counts, err := repo.AuditCounts(ctx, 1, "2026-02-21")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{PlanGenerated: 1, PlanReused: 2}, counts)
}

func TestSessionRepositoryClaimAnswer(t *testing.T) {
	ctx := context.Background()
	repo := NewSessionRepository(newTestDB(t))

	sess := &models.LessonSession{
		UserID:                5,
		PlanDate:              "2026-02-21",
		Status:                models.SessionInProgress,
		Step:                  models.StepQuiz,
		Plan:                  models.DailyPlan{Level: models.LevelA1, PracticeQuizIDs: []int64{10, 20, 30}},
		QuizIndex:             1,
		LastAnsweredQuizIndex: 0,
		Question:              &models.QuizQuestion{Index: 1, ItemID: 20, Prompt: "der Hund", Options: []string{"it", "mushuk"}, CorrectIndex: 0},
	}
	require.NoError(t, repo.Save(ctx, sess, testNow))

	got, err := repo.Get(ctx, 5)
	require.NoError(t, err)
	require.NotNil(t, got.Question)
	assert.Equal(t, []string{"it", "mushuk"}, got.Question.Options)
	assert.Equal(t, []int64{10, 20, 30}, got.Plan.PracticeQuizIDs)

	expired := testNow.Add(-time.Minute)
	ok, err := repo.ClaimAnswer(ctx, 5, 0, testNow, expired)
	require.NoError(t, err)
	assert.False(t, ok, "not the current question")

	ok, err = repo.ClaimAnswer(ctx, 5, 1, testNow, expired)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.ClaimAnswer(ctx, 5, 1, testNow, expired)
	require.NoError(t, err)
	assert.False(t, ok, "already answered")

	got, err = repo.Get(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, got.LastAnsweredQuizIndex)

	require.NoError(t, repo.ReleaseAnswer(ctx, 5, 1, 0))
	got, err = repo.Get(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, 0, got.LastAnsweredQuizIndex)

	ok, err = repo.ClaimAnswer(ctx, 5, 1, testNow, expired)
	require.NoError(t, err)
	assert.True(t, ok, "released claim can be taken again")

	later := testNow.Add(2 * time.Minute)
	ok, err = repo.ClaimAnswer(ctx, 5, 1, later, later.Add(-30*time.Second))
	require.NoError(t, err)
	assert.True(t, ok, "expired claim is taken over")

	require.NoError(t, repo.Delete(ctx, 5))
	got, err = repo.Get(ctx, 5)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStatisticsCompleteDay(t *testing.T) {
	ctx := context.Background()
	repo := NewStatisticsRepository(newTestDB(t))

	calls := 0
	next := func(prev models.Streak, date string) models.Streak {
		calls++
		prev.CurrentStreak++
		if prev.CurrentStreak > prev.BestStreak {
			prev.BestStreak = prev.CurrentStreak
		}
		prev.LastCompletedDate = date
		return prev
	}

	streak, inserted, err := repo.CompleteDay(ctx, 1, "2026-02-20", models.SessionResults{QuizCorrect: 3, QuizTotal: 4}, testNow, next)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.Equal(t, 1, streak.CurrentStreak)

	streak, inserted, err = repo.CompleteDay(ctx, 1, "2026-02-20", models.SessionResults{}, testNow, next)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, 1, streak.CurrentStreak)
	assert.Equal(t, 1, calls)

	done, err := repo.HasCompleted(ctx, 1, "2026-02-20")
	require.NoError(t, err)
	assert.True(t, done)

	n, err := repo.CountCompletions(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	empty, err := repo.GetStreak(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.CurrentStreak)
}

func TestBroadcastRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewBroadcastRepository(newTestDB(t))
	assert.False(t, repo.SupportsSkipLocked())

	key := func(s string) *string { return &s }
	jobs := []models.BroadcastJob{
		{UserID: 1, Kind: models.JobKindDailyWord, Payload: []byte("a"), DedupeKey: key("k1")},
		{UserID: 2, Kind: models.JobKindDailyWord, Payload: []byte("b"), DedupeKey: key("k2")},
		{UserID: 3, Kind: models.JobKindDailyWord, Payload: []byte("c"), DedupeKey: key("k3")},
	}
	n, err := repo.Insert(ctx, jobs, testNow)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = repo.Insert(ctx, jobs, testNow)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	claimed, err := repo.ClaimCAS(ctx, 2, testNow)
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	assert.Equal(t, int64(1), claimed[0].UserID)
	assert.Equal(t, int64(2), claimed[1].UserID)
	assert.Equal(t, models.JobProcessing, claimed[0].Status)
	require.NotNil(t, claimed[0].LockedAt)
	assert.Equal(t, []byte("a"), claimed[0].Payload)

	require.NoError(t, repo.MarkSent(ctx, claimed[0].ID, testNow))
	require.NoError(t, repo.Retry(ctx, claimed[1].ID, 1, "timeout", testNow.Add(15*time.Second), testNow))

	// retried job is not yet available
	next, err := repo.ClaimCAS(ctx, 10, testNow)
	require.NoError(t, err)
	require.Len(t, next, 1)
	assert.Equal(t, int64(3), next[0].UserID)

	later, err := repo.ClaimCAS(ctx, 10, testNow.Add(15*time.Second))
	require.NoError(t, err)
	require.Len(t, later, 1)
	assert.Equal(t, 1, later[0].Attempts)
	require.NotNil(t, later[0].LastError)
	assert.Equal(t, "timeout", *later[0].LastError)

	require.NoError(t, repo.Fail(ctx, later[0].ID, 2, "blocked", testNow))

	recovered, err := repo.RecoverStale(ctx, testNow.Add(-time.Minute), testNow)
	require.NoError(t, err)
	assert.Equal(t, 0, recovered)
	recovered, err = repo.RecoverStale(ctx, testNow.Add(time.Minute), testNow.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)

	counts, err := repo.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{
		models.JobPending:    1,
		models.JobProcessing: 0,
		models.JobSent:       1,
		models.JobFailed:     1,
	}, counts)
}
