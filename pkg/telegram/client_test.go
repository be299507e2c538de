package telegram

import (
	"context"
	"errors"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	sent  chan tgbotapi.MessageConfig
	err   error
	delay time.Duration
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	time.Sleep(f.delay)
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent <- msg
	}
	return tgbotapi.Message{}, f.err
}

func TestClient_SendMessage(t *testing.T) {
	bot := &fakeSender{sent: make(chan tgbotapi.MessageConfig, 1)}
	c := &client{bot: bot, chatID: 42}

	require.NoError(t, c.SendMessage(context.Background(), "• `scrape`: success"))
	msg := <-bot.sent
	assert.Equal(t, int64(42), msg.ChatID)
	assert.Equal(t, tgbotapi.ModeMarkdown, msg.ParseMode)
	assert.True(t, msg.DisableWebPagePreview)
}

func TestClient_SendMessageError(t *testing.T) {
	bot := &fakeSender{sent: make(chan tgbotapi.MessageConfig, 1), err: errors.New("Bad Request: can't parse entities")}
	c := &client{bot: bot, chatID: 42}

	err := c.SendMessage(context.Background(), "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "can't parse entities")
}

func TestClient_SendMessageHonoursContext(t *testing.T) {
	bot := &fakeSender{sent: make(chan tgbotapi.MessageConfig, 1), delay: time.Second}
	c := &client{bot: bot, chatID: 42}

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, c.SendMessage(cancelled, "text"), context.Canceled)

	short, cancelShort := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancelShort()
	assert.ErrorIs(t, c.SendMessage(short, "text"), context.DeadlineExceeded)
}
