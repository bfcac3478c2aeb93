package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/example/deutschbot/internal/apperr"
	"github.com/example/deutschbot/internal/broadcast"
	"github.com/example/deutschbot/pkg/logger"
	"github.com/example/deutschbot/pkg/models"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifySendError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"blocked", &tgbotapi.Error{Code: 403, Message: "Forbidden: bot was blocked by the user"}, apperr.ErrPermanentTransport},
		{"chat not found", &tgbotapi.Error{Code: 400, Message: "Bad Request: chat not found"}, apperr.ErrPermanentTransport},
		{"deactivated", &tgbotapi.Error{Code: 400, Message: "Bad Request: user is deactivated"}, apperr.ErrPermanentTransport},
		{"bad markup", &tgbotapi.Error{Code: 400, Message: "Bad Request: can't parse entities"}, apperr.ErrTransientTransport},
		{"rate limit", &tgbotapi.Error{Code: 429, Message: "Too Many Requests", ResponseParameters: tgbotapi.ResponseParameters{RetryAfter: 5}}, apperr.ErrTransientTransport},
		{"server", &tgbotapi.Error{Code: 502, Message: "Bad Gateway"}, apperr.ErrTransientTransport},
		{"network", errors.New("dial tcp: i/o timeout"), apperr.ErrTransientTransport},
		{"wrapped", fmt.Errorf("send: %w", &tgbotapi.Error{Code: 403, Message: "Forbidden"}), apperr.ErrPermanentTransport},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifySendError(tt.err)
			assert.ErrorIs(t, got, tt.want)
		})
	}
	assert.NoError(t, ClassifySendError(nil))
}

func TestClassifySendErrorKeepsRetryAfter(t *testing.T) {
	err := ClassifySendError(&tgbotapi.Error{
		Code:               429,
		Message:            "Too Many Requests: retry after 40",
		ResponseParameters: tgbotapi.ResponseParameters{RetryAfter: 40},
	})
	assert.ErrorIs(t, err, apperr.ErrTransientTransport)
	assert.Equal(t, 40*time.Second, apperr.RetryAfter(err))
	assert.Contains(t, err.Error(), "retry after 40s")

	assert.Zero(t, apperr.RetryAfter(ClassifySendError(&tgbotapi.Error{Code: 502, Message: "Bad Gateway"})))
}

func TestTransportSendJob(t *testing.T) {
	api := newFakeAPI()
	tr := NewTransport(api, logger.NewNop())

	payload, err := json.Marshal(broadcast.Payload{Text: "<b>Kun so'zi</b>", ParseMode: "HTML"})
	require.NoError(t, err)
	require.NoError(t, tr.Send(context.Background(), models.BroadcastJob{ID: 1, UserID: 42, Payload: payload}))

	require.Len(t, api.sent, 1)
	msg, ok := api.sent[0].(tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.Equal(t, int64(42), msg.ChatID)
	assert.Equal(t, "HTML", msg.ParseMode)
	assert.Equal(t, "<b>Kun so'zi</b>", msg.Text)
}

func TestTransportSendJobErrors(t *testing.T) {
	api := newFakeAPI()
	tr := NewTransport(api, logger.NewNop())

	err := tr.Send(context.Background(), models.BroadcastJob{ID: 1, UserID: 42, Payload: []byte("not json")})
	assert.ErrorIs(t, err, apperr.ErrPermanentTransport)
	assert.Empty(t, api.sent)

	payload, _ := json.Marshal(broadcast.Payload{Text: "hi"})
	api.sendErr = &tgbotapi.Error{Code: 403, Message: "Forbidden: bot was blocked by the user"}
	err = tr.Send(context.Background(), models.BroadcastJob{ID: 2, UserID: 42, Payload: payload})
	assert.ErrorIs(t, err, apperr.ErrPermanentTransport)

	api.sendErr = &tgbotapi.Error{Code: 500, Message: "Internal Server Error"}
	err = tr.Send(context.Background(), models.BroadcastJob{ID: 3, UserID: 42, Payload: payload})
	assert.ErrorIs(t, err, apperr.ErrTransientTransport)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = tr.Send(ctx, models.BroadcastJob{ID: 4, UserID: 42, Payload: payload})
	assert.ErrorIs(t, err, apperr.ErrTransientTransport)
}

func TestTransportEditIgnoresNotModified(t *testing.T) {
	api := newFakeAPI()
	tr := NewTransport(api, logger.NewNop())

	api.sendErr = &tgbotapi.Error{Code: 400, Message: "Bad Request: message is not modified"}
	assert.NoError(t, tr.EditMessage(context.Background(), 42, 7, "same", nil))

	api.sendErr = &tgbotapi.Error{Code: 400, Message: "Bad Request: message to edit not found"}
	assert.ErrorIs(t, tr.EditMessage(context.Background(), 42, 7, "x", nil), apperr.ErrTransientTransport)
}

func TestTransportDeleteAndAnswer(t *testing.T) {
	api := newFakeAPI()
	tr := NewTransport(api, logger.NewNop())

	require.NoError(t, tr.DeleteMessage(context.Background(), 42, 7))
	require.NoError(t, tr.AnswerCallback(context.Background(), "cb", "ok"))
	require.Len(t, api.requests, 2)
	del, ok := api.requests[0].(tgbotapi.DeleteMessageConfig)
	require.True(t, ok)
	assert.Equal(t, 7, del.MessageID)
	assert.Equal(t, []string{"ok"}, api.callbackAnswers())
}
