package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/example/deutschbot/internal/apperr"
	"github.com/example/deutschbot/internal/clock"
	"github.com/example/deutschbot/internal/lesson"
	"github.com/example/deutschbot/pkg/logger"
	"github.com/example/deutschbot/pkg/models"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type fakeAPI struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	sendErr  error
	updates  chan tgbotapi.Update
	stopped  bool
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{updates: make(chan tgbotapi.Update, 10)}
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return tgbotapi.Message{}, f.sendErr
	}
	f.sent = append(f.sent, c)
	return tgbotapi.Message{MessageID: len(f.sent)}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.updates
}

func (f *fakeAPI) StopReceivingUpdates() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

func (f *fakeAPI) lastText() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return ""
	}
	switch c := f.sent[len(f.sent)-1].(type) {
	case tgbotapi.MessageConfig:
		return c.Text
	case tgbotapi.EditMessageTextConfig:
		return c.Text
	}
	return ""
}

func (f *fakeAPI) callbackAnswers() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, r := range f.requests {
		if cb, ok := r.(tgbotapi.CallbackConfig); ok {
			out = append(out, cb.Text)
		}
	}
	return out
}

type fakeLessons struct {
	events []lesson.Event
	result *lesson.Result
	err    error
	dash   *lesson.Dashboard
}

func (f *fakeLessons) Handle(ctx context.Context, ev lesson.Event) (*lesson.Result, error) {
	f.events = append(f.events, ev)
	return f.result, f.err
}

func (f *fakeLessons) Dashboard(ctx context.Context, userID int64) (*lesson.Dashboard, error) {
	if f.dash == nil {
		return nil, apperr.ErrStoreUnavailable
	}
	return f.dash, nil
}

type fakeContent struct {
	words  []models.VocabItem
	topics map[string]*models.GrammarTopic
}

func (f *fakeContent) VocabByIDs(ctx context.Context, ids []int64) ([]models.VocabItem, error) {
	var out []models.VocabItem
	for _, id := range ids {
		for _, w := range f.words {
			if w.ID == id {
				out = append(out, w)
			}
		}
	}
	return out, nil
}

func (f *fakeContent) GrammarByID(ctx context.Context, id string) (*models.GrammarTopic, error) {
	if t, ok := f.topics[id]; ok {
		return t, nil
	}
	return nil, apperr.ErrNotFound
}

func (f *fakeContent) VocabPage(ctx context.Context, level models.Level, offset, limit int, letter string) ([]models.VocabItem, error) {
	if offset >= len(f.words) {
		return nil, nil
	}
	end := min(offset+limit, len(f.words))
	return f.words[offset:end], nil
}

func (f *fakeContent) VocabCount(ctx context.Context, level models.Level) (int, error) {
	return len(f.words), nil
}

func (f *fakeContent) VocabCountByLetter(ctx context.Context, level models.Level, letter string) (int, error) {
	return len(f.words), nil
}

type fakeProfiles struct {
	profiles map[int64]*models.UserProfile
	updates  int
}

func (f *fakeProfiles) EnsureProfile(ctx context.Context, userID int64, now time.Time) (*models.UserProfile, error) {
	if p, ok := f.profiles[userID]; ok {
		cp := *p
		return &cp, nil
	}
	p := &models.UserProfile{UserID: userID, CurrentLevel: models.LevelA1, Goal: models.GoalGeneral, DailyTimeMinutes: 15}
	f.profiles[userID] = p
	cp := *p
	return &cp, nil
}

func (f *fakeProfiles) Update(ctx context.Context, user *models.UserProfile, now time.Time) error {
	f.updates++
	cp := *user
	f.profiles[user.UserID] = &cp
	return nil
}

type fakeQueue struct{ counts map[string]int }

func (f *fakeQueue) Counts(ctx context.Context) (map[string]int, error) { return f.counts, nil }

type suspendCall struct {
	userID    int64
	itemID    string
	module    string
	suspended bool
}

// fakeReviews knows the items in known, keyed "user/module/item"
type fakeReviews struct {
	known map[string]bool
	calls []suspendCall
}

func (f *fakeReviews) SetSuspended(ctx context.Context, userID int64, itemID, module string, suspended bool) error {
	if !f.known[fmt.Sprintf("%d/%s/%s", userID, module, itemID)] {
		return apperr.ErrNotFound
	}
	f.calls = append(f.calls, suspendCall{userID, itemID, module, suspended})
	return nil
}

type fakeDailyWord struct{ calls int }

func (f *fakeDailyWord) EnqueueCurrentSlot(ctx context.Context) (int, error) {
	f.calls++
	return 7, nil
}

type harness struct {
	api       *fakeAPI
	lessons   *fakeLessons
	content   *fakeContent
	profiles  *fakeProfiles
	dailyWord *fakeDailyWord
	reviews   *fakeReviews
	bot       *Bot
}

const adminID = 1

func newHarness() *harness {
	h := &harness{
		api:     newFakeAPI(),
		lessons: &fakeLessons{},
		content: &fakeContent{
			words: []models.VocabItem{
				{ID: 1, Level: models.LevelA1, De: "der Apfel", Uz: "olma", ExampleDe: "Der Apfel ist rot."},
				{ID: 2, Level: models.LevelA1, De: "das Buch", Uz: "kitob"},
				{ID: 3, Level: models.LevelA1, De: "die Katze", Uz: "mushuk"},
			},
			topics: map[string]*models.GrammarTopic{
				"a1_articles": {ID: "a1_articles", Level: models.LevelA1, Title: "Artikel", Content: "der, die, das"},
			},
		},
		profiles:  &fakeProfiles{profiles: map[int64]*models.UserProfile{}},
		dailyWord: &fakeDailyWord{},
		reviews:   &fakeReviews{known: map[string]bool{"42/quiz/7": true}},
	}
	h.bot = New(h.api, Deps{
		Lessons:   h.lessons,
		Content:   h.content,
		Profiles:  h.profiles,
		Queue:     &fakeQueue{counts: map[string]int{models.JobPending: 3, models.JobSent: 10}},
		DailyWord: h.dailyWord,
		Reviews:   h.reviews,
		Clock:     clock.NewFixed(time.Date(2026, 2, 21, 9, 0, 0, 0, time.UTC)),
	}, Config{AdminUserID: adminID, PageSize: 2}, logger.NewNop())
	return h
}

func command(userID int64, text string) *tgbotapi.Message {
	cmd, _, _ := strings.Cut(text, " ")
	return &tgbotapi.Message{
		MessageID: 100,
		From:      &tgbotapi.User{ID: userID, FirstName: "Aziz", UserName: "aziz"},
		Chat:      &tgbotapi.Chat{ID: userID},
		Text:      text,
		Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}},
	}
}

func callback(userID int64, data string) *tgbotapi.CallbackQuery {
	return &tgbotapi.CallbackQuery{
		ID:      "cb1",
		From:    &tgbotapi.User{ID: userID},
		Message: &tgbotapi.Message{MessageID: 55, Chat: &tgbotapi.Chat{ID: userID}},
		Data:    data,
	}
}

func inProgress(step int) *models.LessonSession {
	return &models.LessonSession{
		UserID:                42,
		PlanDate:              "2026-02-21",
		Status:                models.SessionInProgress,
		Step:                  step,
		LastAnsweredQuizIndex: -1,
		Plan: models.DailyPlan{
			Level:           models.LevelA1,
			GrammarTopicID:  "a1_articles",
			VocabIDs:        []int64{1, 2, 3},
			PracticeQuizIDs: []int64{4, 5, 6},
			ProductionMode:  models.ProductionWriting,
		},
	}
}
