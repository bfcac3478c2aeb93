package bot

import (
	"testing"

	"github.com/example/deutschbot/internal/ledger"
	"github.com/example/deutschbot/internal/lesson"
	"github.com/example/deutschbot/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLessonCallback(t *testing.T) {
	tests := []struct {
		data string
		ok   bool
		want lesson.Event
	}{
		{"lsn:begin", true, lesson.Event{Kind: lesson.EventBegin, UserID: 42}},
		{"lsn:next", true, lesson.Event{Kind: lesson.EventNext, UserID: 42}},
		{"lsn:fin", true, lesson.Event{Kind: lesson.EventFinish, UserID: 42}},
		{"lsn:cancel", true, lesson.Event{Kind: lesson.EventCancel, UserID: 42}},
		{"lsn:ans:2:3", true, lesson.Event{Kind: lesson.EventAnswer, UserID: 42, QuizIndex: 2, Option: 3}},
		{"lsn:ans:2", false, lesson.Event{}},
		{"lsn:ans:x:1", false, lesson.Event{}},
		{"lsn:ans:-1:1", false, lesson.Event{}},
		{"lsn:other", false, lesson.Event{}},
	}
	for _, tt := range tests {
		t.Run(tt.data, func(t *testing.T) {
			ev, ok := ParseLessonCallback(tt.data, 42)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, ev)
		})
	}
}

func TestVocabData(t *testing.T) {
	data := VocabData(models.LevelB1, "ä", 3)
	assert.Equal(t, "voc:B1:ä:3", data)
	level, letter, page, ok := ParseVocabData(data)
	require.True(t, ok)
	assert.Equal(t, models.LevelB1, level)
	assert.Equal(t, "ä", letter)
	assert.Equal(t, 3, page)

	level, letter, page, ok = ParseVocabData(VocabData(models.LevelA1, "", 0))
	require.True(t, ok)
	assert.Equal(t, models.LevelA1, level)
	assert.Empty(t, letter)
	assert.Zero(t, page)

	for _, bad := range []string{"voc:Z1:-:0", "voc:A1:-", "voc:A1:-:-2", "lvl:A1"} {
		_, _, _, ok := ParseVocabData(bad)
		assert.False(t, ok, bad)
	}
}

func TestRenderQuestion(t *testing.T) {
	q := &models.QuizQuestion{Index: 1, ItemID: 9, Prompt: "der <Apfel>", Options: []string{"olma", "nok", "uzum"}, CorrectIndex: 0}
	v := RenderQuestion(q, 5, models.LevelA1)

	assert.Contains(t, v.Text, "Savol 2/5")
	assert.Contains(t, v.Text, "der &lt;Apfel&gt;")
	require.Len(t, v.Buttons, 4)
	assert.Equal(t, "lsn:ans:1:0", v.Buttons[0][0].CallbackData)
	assert.Equal(t, "uzum", v.Buttons[2][0].Text)
	assert.Equal(t, "lsn:ans:1:2", v.Buttons[2][0].CallbackData)
	assert.Equal(t, cbLessonCancel, v.Buttons[3][0].CallbackData)
	assert.NotNil(t, v.Markup())
}

func TestRenderResult(t *testing.T) {
	sess := inProgress(models.StepQuiz)
	sess.Question = &models.QuizQuestion{Index: 1, Prompt: "das Buch", Options: []string{"kitob", "olma"}}
	res := &lesson.Result{
		Session:  sess,
		Answer:   &lesson.Answer{Correct: false, CorrectOption: "mushuk"},
		Warnings: []string{lesson.WarnProgressNotSaved},
	}

	v := RenderResult(res, StepContent{})
	assert.Contains(t, v.Text, "To'g'ri javob: <b>mushuk</b>")
	assert.Contains(t, v.Text, "das Buch")
	assert.Contains(t, v.Text, "Natija saqlanmadi")

	v = RenderResult(&lesson.Result{Session: inProgress(models.StepWarmup), Resumed: true}, StepContent{})
	assert.Contains(t, v.Text, "davom ettiramiz")
	assert.Equal(t, cbLessonNext, v.Buttons[0][0].CallbackData)

	v = RenderResult(&lesson.Result{Cancelled: true}, StepContent{})
	assert.Contains(t, v.Text, "bekor qilindi")

	v = RenderResult(&lesson.Result{Session: sess, Finished: true, Streak: &models.Streak{CurrentStreak: 3, BestStreak: 5}}, StepContent{})
	assert.Contains(t, v.Text, "3 kun (rekord: 5)")
}

func TestRenderStepSummary(t *testing.T) {
	sess := inProgress(models.StepSummary)
	sess.Results = models.SessionResults{QuizCorrect: 2, QuizTotal: 3}
	v := RenderStep(sess, StepContent{})
	assert.Contains(t, v.Text, "2/3")
	require.Len(t, v.Buttons, 1)
	assert.Equal(t, cbLessonFinish, v.Buttons[0][0].CallbackData)
}

func TestRenderStepProductionSpeaking(t *testing.T) {
	sess := inProgress(models.StepProduction)
	sess.Plan.ProductionMode = models.ProductionSpeaking
	v := RenderStep(sess, StepContent{Words: []models.VocabItem{{De: "der Apfel", Uz: "olma", ExampleDe: "hidden"}}})
	assert.Contains(t, v.Text, "ovoz chiqarib")
	assert.Contains(t, v.Text, "der Apfel")
	assert.NotContains(t, v.Text, "hidden")
}

func TestRenderVocabPage(t *testing.T) {
	words := []models.VocabItem{{De: "der Apfel", Uz: "olma"}, {De: "das Auto", Uz: "mashina"}}

	v := RenderVocabPage(models.LevelA1, "a", 0, 2, 3, words)
	assert.Contains(t, v.Text, "(1/2)")
	assert.Contains(t, v.Text, "· A")
	require.Len(t, v.Buttons, 2)
	require.Len(t, v.Buttons[0], 1)
	assert.Equal(t, "voc:A1:a:1", v.Buttons[0][0].CallbackData)

	v = RenderVocabPage(models.LevelA1, "", 1, 2, 3, words[:1])
	assert.Equal(t, "voc:A1:-:0", v.Buttons[0][0].CallbackData)

	v = RenderVocabPage(models.LevelA1, "", 0, 2, 0, nil)
	assert.Contains(t, v.Text, "Hech narsa topilmadi")
	require.Len(t, v.Buttons, 1)
}

func TestRenderDashboard(t *testing.T) {
	v := RenderDashboard(&lesson.Dashboard{
		Level:            models.LevelA2,
		CurrentStreak:    4,
		BestStreak:       9,
		Boxes:            map[int]int{3: 1, 0: 5},
		Due:              2,
		DueWords:         []models.VocabItem{{ID: 1, De: "der Apfel"}, {ID: 2, De: "das Buch"}},
		WeakTopics:       []ledger.TopicScore{{TopicID: "a2_perfekt", Score: 4.5}},
		CompletedLessons: 12,
		TodayStatus:      models.SessionFinished,
	})
	assert.Contains(t, v.Text, "<b>A2</b>")
	assert.Contains(t, v.Text, "4 kun (rekord: 9)")
	assert.Contains(t, v.Text, "0: 5 · 3: 1")
	assert.Contains(t, v.Text, "Navbatda: der Apfel, das Buch")
	assert.Contains(t, v.Text, "a2_perfekt (4.5)")
	assert.Contains(t, v.Text, "yakunlangan")
}

func TestRenderQueueCounts(t *testing.T) {
	text := RenderQueueCounts(map[string]int{models.JobPending: 2, models.JobFailed: 1})
	assert.Contains(t, text, "pending: 2")
	assert.Contains(t, text, "processing: 0")
	assert.Contains(t, text, "failed: 1")
}
