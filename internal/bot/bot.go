package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/example/deutschbot/internal/clock"
	"github.com/example/deutschbot/internal/lesson"
	"github.com/example/deutschbot/pkg/logger"
	"github.com/example/deutschbot/pkg/models"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/sync/semaphore"
)

// Lessons runs the daily lesson
type Lessons interface {
	Handle(ctx context.Context, ev lesson.Event) (*lesson.Result, error)
	Dashboard(ctx context.Context, userID int64) (*lesson.Dashboard, error)
}

// Content is the read side of the catalog
type Content interface {
	VocabByIDs(ctx context.Context, ids []int64) ([]models.VocabItem, error)
	GrammarByID(ctx context.Context, id string) (*models.GrammarTopic, error)
	VocabPage(ctx context.Context, level models.Level, offset, limit int, letter string) ([]models.VocabItem, error)
	VocabCount(ctx context.Context, level models.Level) (int, error)
	VocabCountByLetter(ctx context.Context, level models.Level, letter string) (int, error)
}

type Profiles interface {
	EnsureProfile(ctx context.Context, userID int64, now time.Time) (*models.UserProfile, error)
	Update(ctx context.Context, user *models.UserProfile, now time.Time) error
}

// QueueStats reports broadcast queue counters
type QueueStats interface {
	Counts(ctx context.Context) (map[string]int, error)
}

// Reviews lets the admin take items out of a learner's review cycle
type Reviews interface {
	SetSuspended(ctx context.Context, userID int64, itemID, module string, suspended bool) error
}

// DailyWord triggers the daily-word enqueue for the current slot
type DailyWord interface {
	EnqueueCurrentSlot(ctx context.Context) (int, error)
}

// Deps groups the collaborators of the bot
type Deps struct {
	Lessons   Lessons
	Content   Content
	Profiles  Profiles
	Queue     QueueStats
	DailyWord DailyWord
	Reviews   Reviews
	Clock     clock.Clock
}

// Config holds the chat surface settings
type Config struct {
	AdminUserID int64
	PageSize    int
	// MaxInFlight bounds how many chats are handled at once
	MaxInFlight int
}

// Bot represents the Telegram bot application
type Bot struct {
	api       telegramAPI
	transport *Transport
	lessons   Lessons
	content   Content
	profiles  Profiles
	queue     QueueStats
	dailyWord DailyWord
	reviews   Reviews
	clock     clock.Clock
	cfg       Config
	log       *logger.Logger

	// handle processes one update; updates of one user run in delivery order
	handle func(ctx context.Context, update tgbotapi.Update)
	sem    *semaphore.Weighted
	wg     sync.WaitGroup
	mu     sync.Mutex
	chats  map[int64][]tgbotapi.Update // pending updates of chats being handled
}

// New creates a new bot instance on top of an authorized API client
func New(api telegramAPI, d Deps, cfg Config, log *logger.Logger) *Bot {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 15
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 16
	}
	b := &Bot{
		api:       api,
		transport: NewTransport(api, log),
		lessons:   d.Lessons,
		content:   d.Content,
		profiles:  d.Profiles,
		queue:     d.Queue,
		dailyWord: d.DailyWord,
		reviews:   d.Reviews,
		clock:     d.Clock,
		cfg:       cfg,
		log:       log,
		sem:       semaphore.NewWeighted(int64(cfg.MaxInFlight)),
		chats:     make(map[int64][]tgbotapi.Update),
	}
	b.handle = b.handleUpdate
	return b
}

// NewAPI authorizes against the Bot API
func NewAPI(token string) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("unable to create bot: %w", err)
	}
	return api, nil
}

// Transport exposes the bot's outbound transport, e.g. as a queue sender
func (b *Bot) Transport() *Transport {
	return b.transport
}

// Start receives updates until ctx is cancelled
func (b *Bot) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)
	b.log.Info("receiving updates")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if err := b.dispatch(ctx, update); err != nil {
				return err
			}
		}
	}
}

// dispatch hands the update to the worker of its user, starting one when
// the user has none. Different users are handled concurrently.
func (b *Bot) dispatch(ctx context.Context, update tgbotapi.Update) error {
	key := updateKey(update)
	b.mu.Lock()
	if pending, busy := b.chats[key]; busy {
		b.chats[key] = append(pending, update)
		b.mu.Unlock()
		return nil
	}
	b.chats[key] = nil
	b.mu.Unlock()

	if err := b.sem.Acquire(ctx, 1); err != nil {
		b.mu.Lock()
		delete(b.chats, key)
		b.mu.Unlock()
		return err
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer b.sem.Release(1)
		b.drain(ctx, key, update)
	}()
	return nil
}

func (b *Bot) drain(ctx context.Context, key int64, update tgbotapi.Update) {
	for {
		b.handle(ctx, update)

		b.mu.Lock()
		pending := b.chats[key]
		if len(pending) == 0 {
			delete(b.chats, key)
			b.mu.Unlock()
			return
		}
		update = pending[0]
		b.chats[key] = pending[1:]
		b.mu.Unlock()
	}
}

// updateKey is the sender of the update, falling back to the chat
func updateKey(update tgbotapi.Update) int64 {
	switch {
	case update.CallbackQuery != nil && update.CallbackQuery.From != nil:
		return update.CallbackQuery.From.ID
	case update.Message != nil && update.Message.From != nil:
		return update.Message.From.ID
	case update.Message != nil && update.Message.Chat != nil:
		return update.Message.Chat.ID
	}
	return 0
}

// Stop stops polling and waits for in-flight handlers
func (b *Bot) Stop() {
	b.api.StopReceivingUpdates()
	b.wg.Wait()
	b.log.Info("bot stopped")
}

func (b *Bot) isAdmin(userID int64) bool {
	return b.cfg.AdminUserID != 0 && userID == b.cfg.AdminUserID
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("panic while handling update", "update_id", update.UpdateID, "panic", r)
		}
	}()

	var err error
	switch {
	case update.CallbackQuery != nil:
		err = b.HandleCallback(ctx, update.CallbackQuery)
	case update.Message != nil && update.Message.IsCommand():
		err = b.HandleCommand(ctx, update.Message)
	case update.Message != nil:
		err = b.handleText(ctx, update.Message)
	}
	if err != nil {
		b.log.Error("failed to handle update", "update_id", update.UpdateID, "error", err)
	}
}

func (b *Bot) send(ctx context.Context, chatID int64, v View) error {
	_, err := b.transport.SendMessage(ctx, chatID, v.Text, v.Markup())
	return err
}
