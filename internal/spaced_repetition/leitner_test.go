package spaced_repetition

import (
	"context"
	"testing"
	"time"

	"github.com/example/deutschbot/internal/clock"
	"github.com/example/deutschbot/internal/database"
	"github.com/example/deutschbot/pkg/logger"
	"github.com/example/deutschbot/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLeitnerCorrectSequence(t *testing.T) {
	l := NewLeitner()
	now := time.Date(2026, 2, 21, 10, 0, 0, 0, time.UTC)
	today := "2026-02-21"
	rec := &models.MasteryRecord{}

	wantBoxes := []int{1, 2, 3, 4, 5, 5}
	wantNext := []string{"2026-02-22", "2026-02-24", "2026-02-28", "2026-03-07", "2026-03-23", "2026-03-23"}
	for i := range wantBoxes {
		l.Apply(rec, true, today, now)
		assert.Equal(t, wantBoxes[i], rec.Box, "step %d", i)
		assert.Equal(t, wantNext[i], rec.NextReview, "step %d", i)
		require.NotNil(t, rec.LastReviewedAt)
		assert.True(t, rec.LastReviewedAt.Equal(now))
	}
}

func TestLeitnerWrongAnswerResets(t *testing.T) {
	l := NewLeitner()
	for box := 0; box <= MaxBox; box++ {
		rec := &models.MasteryRecord{Box: box}
		l.Apply(rec, false, "2026-02-21", time.Now())
		assert.Equal(t, 1, rec.Box)
		assert.Equal(t, "2026-02-22", rec.NextReview)
	}
}

func TestLeitnerMonotonic(t *testing.T) {
	l := NewLeitner()
	prev := 0
	box := 0
	for i := 0; i < 20; i++ {
		box = l.NextBox(box, true)
		assert.GreaterOrEqual(t, box, prev)
		assert.LessOrEqual(t, box, MaxBox)
		prev = box
	}
}

func TestIntervalDays(t *testing.T) {
	l := NewLeitner()
	tests := map[int]int{0: 1, 1: 1, 2: 3, 3: 7, 4: 14, 5: 30, 9: 30}
	for box, want := range tests {
		assert.Equal(t, want, l.IntervalDays(box), "box %d", box)
	}
}

func newTestStore(t *testing.T, c clock.Clock) *Store {
	t.Helper()
	db, err := database.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(database.NewRepetitionRepository(db), c, logger.NewNop())
}

func TestStoreRecordOutcomeAndDue(t *testing.T) {
	ctx := context.Background()
	c := clock.NewFixed(time.Date(2026, 2, 21, 10, 0, 0, 0, time.UTC))
	store := newTestStore(t, c)

	rec, err := store.RecordOutcome(ctx, 1, "10", models.ModuleQuiz, true)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Box)

	due, err := store.DueItems(ctx, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	c.Advance(24 * time.Hour)
	due, err = store.DueItems(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "10", due[0].ItemID)

	rec, err = store.RecordOutcome(ctx, 1, "10", models.ModuleQuiz, true)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Box)
	assert.Equal(t, "2026-02-25", rec.NextReview)

	rec, err = store.RecordOutcome(ctx, 1, "10", models.ModuleQuiz, false)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Box)
	assert.Equal(t, "2026-02-23", rec.NextReview)

	c.Advance(48 * time.Hour)
	require.NoError(t, store.SetSuspended(ctx, 1, "10", models.ModuleQuiz, true))
	due, err = store.DueItems(ctx, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	summary, err := store.Summary(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, map[int]int{1: 1}, summary.Boxes)
	assert.Equal(t, 0, summary.Due)
}
