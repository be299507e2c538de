package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// SendTimeout bounds a single notification.
const SendTimeout = 10 * time.Second

// maxMessageRunes is Telegram's limit for a single text message.
const maxMessageRunes = 4096

// Notifier delivers Markdown formatted messages to an operator chat.
type Notifier interface {
	SendMessage(ctx context.Context, text string) error
}

// sender is the part of tgbotapi.BotAPI the client needs.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type client struct {
	bot    sender
	chatID int64
}

// NewClient creates a new Telegram notifier client.
func NewClient(botToken string, chatID int64) (Notifier, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return &client{
		bot:    bot,
		chatID: chatID,
	}, nil
}

// SendMessage sends text to the configured chat, giving up when ctx is done. The bot API call
// itself is not cancellable, so a late reply is discarded.
func (c *client) SendMessage(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(c.chatID, truncateMessage(text))
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.DisableWebPagePreview = true

	done := make(chan error, 1)
	go func() {
		_, err := c.bot.Send(msg)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to send telegram message: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// truncateMessage cuts text to the message limit without leaving a dangling escape.
func truncateMessage(text string) string {
	runes := []rune(text)
	if len(runes) <= maxMessageRunes {
		return text
	}
	cut := strings.TrimRight(string(runes[:maxMessageRunes-1]), `\`)
	return cut + "…"
}
