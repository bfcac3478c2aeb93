package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/example/deutschbot/internal/apperr"
	"github.com/example/deutschbot/internal/lesson"
	"github.com/example/deutschbot/pkg/models"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// User-facing error notices
const (
	textStale        = "Bu tugma eskirgan yoki allaqachon bosilgan."
	textNotFound     = "Ma'lumot topilmadi."
	textInsufficient = "Bu darajada dars uchun so'zlar yetarli emas. Boshqa darajani tanlang: /level"
	textRetry        = "Xatolik yuz berdi, birozdan so'ng qayta urinib ko'ring."
	textAdminOnly    = "Bu buyruq faqat admin uchun."
	textSuspendUsage = "Foydalanish: /suspend USER_ID SO'Z_ID [off]"
	textUnknown      = "Noma'lum buyruq. /help"
)

// errorText maps an error kind to the notice shown to the learner
func errorText(err error) string {
	switch {
	case errors.Is(err, apperr.ErrStaleInput):
		return textStale
	case errors.Is(err, apperr.ErrNotFound):
		return textNotFound
	case errors.Is(err, apperr.ErrInsufficientContent):
		return textInsufficient
	default:
		return textRetry
	}
}

// HandleCommand handles bot commands
func (b *Bot) HandleCommand(ctx context.Context, message *tgbotapi.Message) error {
	if message.From == nil || message.Chat == nil {
		return fmt.Errorf("invalid message: required fields are missing")
	}
	switch message.Command() {
	case "start":
		return b.handleStart(ctx, message)
	case "help":
		return b.send(ctx, message.Chat.ID, View{Text: Help()})
	case "lesson":
		return b.runLesson(ctx, message.Chat.ID, 0, lesson.Event{Kind: lesson.EventBegin, UserID: message.From.ID})
	case "cancel":
		return b.runLesson(ctx, message.Chat.ID, 0, lesson.Event{Kind: lesson.EventCancel, UserID: message.From.ID})
	case "progress":
		return b.showProgress(ctx, message.Chat.ID, 0, message.From.ID)
	case "vocab":
		return b.handleVocab(ctx, message)
	case "level":
		return b.handleLevel(ctx, message)
	case "dailyword":
		return b.handleDailyWord(ctx, message)
	case "queue":
		return b.handleQueue(ctx, message)
	case "broadcast_now":
		return b.handleBroadcastNow(ctx, message)
	case "suspend":
		return b.handleSuspend(ctx, message)
	default:
		return b.send(ctx, message.Chat.ID, View{Text: textUnknown})
	}
}

func (b *Bot) handleStart(ctx context.Context, message *tgbotapi.Message) error {
	now := b.clock.Now()
	profile, err := b.profiles.EnsureProfile(ctx, message.From.ID, now)
	if err != nil {
		_ = b.send(ctx, message.Chat.ID, View{Text: textRetry})
		return err
	}
	// a user writing to us has unblocked the bot
	if profile.Username != message.From.UserName || profile.FirstName != message.From.FirstName ||
		!profile.OnboardingCompleted || profile.IsBlocked {
		profile.Username = message.From.UserName
		profile.FirstName = message.From.FirstName
		profile.OnboardingCompleted = true
		profile.IsBlocked = false
		if err := b.profiles.Update(ctx, profile, now); err != nil {
			b.log.Warn("failed to update profile", "user_id", profile.UserID, "error", err)
		}
	}
	return b.send(ctx, message.Chat.ID, Welcome(profile))
}

func (b *Bot) handleText(ctx context.Context, message *tgbotapi.Message) error {
	if message.Chat == nil || message.From == nil {
		return nil
	}
	return b.send(ctx, message.Chat.ID, View{Text: Help()})
}

func (b *Bot) handleVocab(ctx context.Context, message *tgbotapi.Message) error {
	profile, err := b.profiles.EnsureProfile(ctx, message.From.ID, b.clock.Now())
	if err != nil {
		_ = b.send(ctx, message.Chat.ID, View{Text: textRetry})
		return err
	}
	letter := strings.TrimSpace(message.CommandArguments())
	return b.showVocab(ctx, message.Chat.ID, 0, profile.CurrentLevel, letter, 0)
}

func (b *Bot) handleLevel(ctx context.Context, message *tgbotapi.Message) error {
	arg := strings.TrimSpace(message.CommandArguments())
	if arg == "" {
		profile, err := b.profiles.EnsureProfile(ctx, message.From.ID, b.clock.Now())
		if err != nil {
			_ = b.send(ctx, message.Chat.ID, View{Text: textRetry})
			return err
		}
		return b.send(ctx, message.Chat.ID, LevelMenu(profile.CurrentLevel))
	}
	level, ok := models.ParseLevel(arg)
	if !ok {
		return b.send(ctx, message.Chat.ID, View{Text: "Daraja A1, A2, B1, B2 yoki C1 bo'lishi kerak."})
	}
	return b.setLevel(ctx, message.Chat.ID, 0, message.From.ID, level)
}

func (b *Bot) setLevel(ctx context.Context, chatID int64, messageID int, userID int64, level models.Level) error {
	now := b.clock.Now()
	profile, err := b.profiles.EnsureProfile(ctx, userID, now)
	if err != nil {
		_ = b.show(ctx, chatID, messageID, View{Text: textRetry})
		return err
	}
	profile.CurrentLevel = level
	if err := b.profiles.Update(ctx, profile, now); err != nil {
		_ = b.show(ctx, chatID, messageID, View{Text: textRetry})
		return err
	}
	b.log.Info("level changed", "user_id", userID, "level", level)
	v := MainMenu(level)
	v.Text = fmt.Sprintf("✅ Daraja o'zgartirildi: <b>%s</b>\nYangi daraja ertangi darsdan boshlab qo'llanadi.", level)
	return b.show(ctx, chatID, messageID, v)
}

// handleDailyWord toggles the daily word or sets its hour: /dailyword on|off|0-23
func (b *Bot) handleDailyWord(ctx context.Context, message *tgbotapi.Message) error {
	now := b.clock.Now()
	profile, err := b.profiles.EnsureProfile(ctx, message.From.ID, now)
	if err != nil {
		_ = b.send(ctx, message.Chat.ID, View{Text: textRetry})
		return err
	}

	arg := strings.ToLower(strings.TrimSpace(message.CommandArguments()))
	switch arg {
	case "":
		state := "o'chirilgan"
		if profile.DailyWordEnabled {
			state = fmt.Sprintf("yoqilgan, soat %02d:00", profile.DailyWordHour)
		}
		return b.send(ctx, message.Chat.ID, View{Text: "🌅 Kun so'zi: " + state + "\n/dailyword on|off|soat"})
	case "on":
		profile.DailyWordEnabled = true
	case "off":
		profile.DailyWordEnabled = false
	default:
		hour, err := strconv.Atoi(arg)
		if err != nil || hour < 0 || hour > 23 {
			return b.send(ctx, message.Chat.ID, View{Text: "Soat 0 dan 23 gacha bo'lishi kerak."})
		}
		profile.DailyWordEnabled = true
		profile.DailyWordHour = hour
	}

	if err := b.profiles.Update(ctx, profile, now); err != nil {
		_ = b.send(ctx, message.Chat.ID, View{Text: textRetry})
		return err
	}
	text := "🌅 Kun so'zi o'chirildi."
	if profile.DailyWordEnabled {
		text = fmt.Sprintf("🌅 Kun so'zi har kuni soat %02d:00 da keladi.", profile.DailyWordHour)
	}
	return b.send(ctx, message.Chat.ID, View{Text: text})
}

func (b *Bot) handleQueue(ctx context.Context, message *tgbotapi.Message) error {
	if !b.isAdmin(message.From.ID) {
		return b.send(ctx, message.Chat.ID, View{Text: textAdminOnly})
	}
	counts, err := b.queue.Counts(ctx)
	if err != nil {
		_ = b.send(ctx, message.Chat.ID, View{Text: textRetry})
		return err
	}
	return b.send(ctx, message.Chat.ID, View{Text: RenderQueueCounts(counts)})
}

func (b *Bot) handleBroadcastNow(ctx context.Context, message *tgbotapi.Message) error {
	if !b.isAdmin(message.From.ID) {
		return b.send(ctx, message.Chat.ID, View{Text: textAdminOnly})
	}
	n, err := b.dailyWord.EnqueueCurrentSlot(ctx)
	if err != nil {
		_ = b.send(ctx, message.Chat.ID, View{Text: textRetry})
		return err
	}
	b.log.Info("manual daily word broadcast", "admin_id", message.From.ID, "enqueued", n)
	return b.send(ctx, message.Chat.ID, View{Text: fmt.Sprintf("📬 Navbatga %d ta xabar qo'shildi.", n)})
}

// handleSuspend parses "/suspend <user_id> <item_id> [off]"
func (b *Bot) handleSuspend(ctx context.Context, message *tgbotapi.Message) error {
	if !b.isAdmin(message.From.ID) {
		return b.send(ctx, message.Chat.ID, View{Text: textAdminOnly})
	}
	args := strings.Fields(message.CommandArguments())
	if len(args) < 2 || len(args) > 3 || (len(args) == 3 && args[2] != "off") {
		return b.send(ctx, message.Chat.ID, View{Text: textSuspendUsage})
	}
	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return b.send(ctx, message.Chat.ID, View{Text: textSuspendUsage})
	}
	if _, err := strconv.ParseInt(args[1], 10, 64); err != nil {
		return b.send(ctx, message.Chat.ID, View{Text: textSuspendUsage})
	}
	suspended := len(args) == 2

	updated := 0
	for _, module := range []string{models.ModuleQuiz, models.ModuleVocab} {
		err := b.reviews.SetSuspended(ctx, userID, args[1], module, suspended)
		switch {
		case err == nil:
			updated++
		case errors.Is(err, apperr.ErrNotFound):
		default:
			_ = b.send(ctx, message.Chat.ID, View{Text: textRetry})
			return err
		}
	}
	if updated == 0 {
		return b.send(ctx, message.Chat.ID, View{Text: "Bu foydalanuvchida bunday so'z yo'q."})
	}
	b.log.Info("review suspension changed", "admin_id", message.From.ID, "user_id", userID, "item_id", args[1], "suspended", suspended)
	if suspended {
		return b.send(ctx, message.Chat.ID, View{Text: "⏸ So'z takrorlashdan olib tashlandi."})
	}
	return b.send(ctx, message.Chat.ID, View{Text: "▶️ So'z takrorlashga qaytarildi."})
}

// HandleCallback handles inline button presses
func (b *Bot) HandleCallback(ctx context.Context, callback *tgbotapi.CallbackQuery) error {
	if callback.From == nil || callback.Message == nil || callback.Message.Chat == nil {
		_ = b.transport.AnswerCallback(ctx, callback.ID, "")
		return nil
	}
	userID := callback.From.ID
	chatID := callback.Message.Chat.ID
	messageID := callback.Message.MessageID
	data := callback.Data

	var (
		toast string
		err   error
	)
	switch {
	case strings.HasPrefix(data, "lsn:"):
		ev, ok := ParseLessonCallback(data, userID)
		if !ok {
			toast = textStale
			break
		}
		toast, err = b.lessonCallback(ctx, chatID, messageID, ev)
	case strings.HasPrefix(data, cbVocabPrefix):
		level, letter, page, ok := ParseVocabData(data)
		if !ok {
			toast = textStale
			break
		}
		err = b.showVocab(ctx, chatID, messageID, level, letter, page)
	case strings.HasPrefix(data, cbLevelPrefix):
		level, ok := models.ParseLevel(strings.TrimPrefix(data, cbLevelPrefix))
		if !ok {
			toast = textStale
			break
		}
		err = b.setLevel(ctx, chatID, messageID, userID, level)
	case data == cbLevelMenu:
		var profile *models.UserProfile
		if profile, err = b.profiles.EnsureProfile(ctx, userID, b.clock.Now()); err == nil {
			err = b.show(ctx, chatID, messageID, LevelMenu(profile.CurrentLevel))
		}
	case data == cbProgress:
		err = b.showProgress(ctx, chatID, messageID, userID)
	case data == cbMenu:
		var profile *models.UserProfile
		if profile, err = b.profiles.EnsureProfile(ctx, userID, b.clock.Now()); err == nil {
			err = b.show(ctx, chatID, messageID, MainMenu(profile.CurrentLevel))
		}
	default:
		toast = textStale
	}

	if err != nil && toast == "" {
		toast = errorText(err)
	}
	if ackErr := b.transport.AnswerCallback(ctx, callback.ID, toast); ackErr != nil {
		b.log.Warn("failed to answer callback", "user_id", userID, "error", ackErr)
	}
	return err
}

// lessonCallback runs a lesson event and redraws the lesson message. A
// stale event only produces a toast.
func (b *Bot) lessonCallback(ctx context.Context, chatID int64, messageID int, ev lesson.Event) (string, error) {
	res, err := b.lessons.Handle(ctx, ev)
	if err != nil {
		if errors.Is(err, apperr.ErrStaleInput) {
			b.log.Debug("stale lesson event", "user_id", ev.UserID, "kind", ev.Kind, "error", err)
			return textStale, nil
		}
		_ = b.show(ctx, chatID, messageID, View{Text: errorText(err), Buttons: [][]MenuButton{{menuButton}}})
		return errorText(err), err
	}

	var toast string
	if res.Answer != nil {
		toast = "❌"
		if res.Answer.Correct {
			toast = "✅"
		}
	}
	return toast, b.show(ctx, chatID, messageID, RenderResult(res, b.stepContent(ctx, res.Session)))
}

// runLesson handles a lesson command typed as a message
func (b *Bot) runLesson(ctx context.Context, chatID int64, messageID int, ev lesson.Event) error {
	res, err := b.lessons.Handle(ctx, ev)
	if err != nil {
		_ = b.show(ctx, chatID, messageID, View{Text: errorText(err)})
		if errors.Is(err, apperr.ErrStaleInput) {
			return nil
		}
		return err
	}
	return b.show(ctx, chatID, messageID, RenderResult(res, b.stepContent(ctx, res.Session)))
}

// stepContent loads what the current step displays. Lookup failures
// degrade to an empty section.
func (b *Bot) stepContent(ctx context.Context, sess *models.LessonSession) StepContent {
	var content StepContent
	if sess == nil || sess.Status != models.SessionInProgress {
		return content
	}
	switch sess.Step {
	case models.StepVocabulary, models.StepProduction:
		words, err := b.content.VocabByIDs(ctx, sess.Plan.VocabIDs)
		if err != nil {
			b.log.Warn("failed to load lesson words", "user_id", sess.UserID, "error", err)
		}
		content.Words = words
	case models.StepGrammar:
		if sess.Plan.GrammarTopicID == "" {
			break
		}
		topic, err := b.content.GrammarByID(ctx, sess.Plan.GrammarTopicID)
		if err != nil {
			b.log.Warn("failed to load grammar topic", "user_id", sess.UserID, "topic", sess.Plan.GrammarTopicID, "error", err)
		}
		content.Topic = topic
	}
	return content
}

func (b *Bot) showProgress(ctx context.Context, chatID int64, messageID int, userID int64) error {
	d, err := b.lessons.Dashboard(ctx, userID)
	if err != nil {
		_ = b.show(ctx, chatID, messageID, View{Text: errorText(err)})
		return err
	}
	return b.show(ctx, chatID, messageID, RenderDashboard(d))
}

func (b *Bot) showVocab(ctx context.Context, chatID int64, messageID int, level models.Level, letter string, page int) error {
	var (
		total int
		err   error
	)
	if letter == "" {
		total, err = b.content.VocabCount(ctx, level)
	} else {
		total, err = b.content.VocabCountByLetter(ctx, level, letter)
	}
	if err != nil {
		_ = b.show(ctx, chatID, messageID, View{Text: textRetry})
		return err
	}
	words, err := b.content.VocabPage(ctx, level, page*b.cfg.PageSize, b.cfg.PageSize, letter)
	if err != nil {
		_ = b.show(ctx, chatID, messageID, View{Text: textRetry})
		return err
	}
	return b.show(ctx, chatID, messageID, RenderVocabPage(level, letter, page, b.cfg.PageSize, total, words))
}

// show edits messageID in place, or sends a new message when it is zero
func (b *Bot) show(ctx context.Context, chatID int64, messageID int, v View) error {
	if messageID == 0 {
		return b.send(ctx, chatID, v)
	}
	return b.transport.EditMessage(ctx, chatID, messageID, v.Text, v.Markup())
}
