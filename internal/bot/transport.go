package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/deutschbot/internal/apperr"
	"github.com/example/deutschbot/internal/broadcast"
	"github.com/example/deutschbot/pkg/logger"
	"github.com/example/deutschbot/pkg/models"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// telegramAPI is the part of *tgbotapi.BotAPI the bot uses
type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Transport sends, edits and deletes chat messages. Failures are classified
// as apperr.ErrTransientTransport or apperr.ErrPermanentTransport.
type Transport struct {
	api telegramAPI
	log *logger.Logger
}

func NewTransport(api telegramAPI, log *logger.Logger) *Transport {
	return &Transport{api: api, log: log}
}

// SendMessage sends an HTML message and returns its id
func (t *Transport) SendMessage(ctx context.Context, chatID int64, text string, markup *tgbotapi.InlineKeyboardMarkup) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if markup != nil {
		msg.ReplyMarkup = *markup
	}
	sent, err := t.api.Send(msg)
	if err != nil {
		return 0, ClassifySendError(err)
	}
	return sent.MessageID, nil
}

// EditMessage replaces the text and keyboard of a sent message
func (t *Transport) EditMessage(ctx context.Context, chatID int64, messageID int, text string, markup *tgbotapi.InlineKeyboardMarkup) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	edit.ParseMode = tgbotapi.ModeHTML
	edit.DisableWebPagePreview = true
	if markup != nil {
		edit.ReplyMarkup = markup
	}
	if _, err := t.api.Send(edit); err != nil {
		if isNotModified(err) {
			return nil
		}
		return ClassifySendError(err)
	}
	return nil
}

func (t *Transport) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := t.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		return ClassifySendError(err)
	}
	return nil
}

// AnswerCallback stops the button spinner, optionally showing a toast
func (t *Transport) AnswerCallback(ctx context.Context, callbackID, text string) error {
	if _, err := t.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		return ClassifySendError(err)
	}
	return nil
}

// Send delivers a queued broadcast job
func (t *Transport) Send(ctx context.Context, job models.BroadcastJob) error {
	p, err := broadcast.DecodePayload(job.Payload)
	if err != nil {
		// a payload that cannot be decoded will never succeed
		return fmt.Errorf("%w: %v", apperr.ErrPermanentTransport, err)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrTransientTransport, err)
	}

	msg := tgbotapi.NewMessage(job.UserID, p.Text)
	msg.ParseMode = p.ParseMode
	if _, err := t.api.Send(msg); err != nil {
		return ClassifySendError(err)
	}
	return nil
}

var permanentMarkers = []string{
	"chat not found",
	"deactivated",
	"bot was blocked",
	"bot was kicked",
	"not enough rights",
}

// ClassifySendError wraps a Telegram error with the transport error kind.
// Forbidden responses and vanished chats are permanent, everything else
// (rate limits, server errors, network failures) is transient.
func ClassifySendError(err error) error {
	if err == nil {
		return nil
	}
	var tgErr *tgbotapi.Error
	if errors.As(err, &tgErr) {
		msg := strings.ToLower(tgErr.Message)
		if tgErr.Code == 403 {
			return fmt.Errorf("%w: %s", apperr.ErrPermanentTransport, tgErr.Message)
		}
		if tgErr.Code == 400 {
			for _, marker := range permanentMarkers {
				if strings.Contains(msg, marker) {
					return fmt.Errorf("%w: %s", apperr.ErrPermanentTransport, tgErr.Message)
				}
			}
		}
		if tgErr.RetryAfter > 0 {
			return &apperr.RetryAfterError{
				Wait: time.Duration(tgErr.RetryAfter) * time.Second,
				Err:  fmt.Errorf("%w: %s", apperr.ErrTransientTransport, tgErr.Message),
			}
		}
		return fmt.Errorf("%w: %s", apperr.ErrTransientTransport, tgErr.Message)
	}
	return fmt.Errorf("%w: %v", apperr.ErrTransientTransport, err)
}

func isNotModified(err error) bool {
	var tgErr *tgbotapi.Error
	return errors.As(err, &tgErr) && strings.Contains(strings.ToLower(tgErr.Message), "message is not modified")
}
