package alerts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramSender sends plain text messages through the Bot API.
type TelegramSender struct {
	api    *tgbotapi.BotAPI
	logger *slog.Logger
}

// NewTelegramSender authorizes the bot token against the Bot API.
func NewTelegramSender(token string, logger *slog.Logger) (*TelegramSender, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	logger.Info("telegram bot authorized", "username", api.Self.UserName)
	return &TelegramSender{api: api, logger: logger}, nil
}

// Send implements Sender.
func (s *TelegramSender) Send(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := s.api.Send(msg); err != nil {
		return fmt.Errorf("send to %d: %w", chatID, err)
	}
	return nil
}

// Notify implements Notifier by sending directly, one message per chat id.
func (s *TelegramSender) Notify(ctx context.Context, n Notification) error {
	return deliver(ctx, s, n)
}

// deliver sends n to every recipient, continuing past individual failures.
func deliver(ctx context.Context, s Sender, n Notification) error {
	var errs []error
	for _, chatID := range n.ChatIDs {
		if err := s.Send(ctx, chatID, n.Text); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogNotifier only logs notifications. Used when no bot token is configured.
type LogNotifier struct {
	Logger *slog.Logger
}

func (l LogNotifier) Notify(_ context.Context, n Notification) error {
	l.Logger.Info("[notify] dropped (no transport)",
		"event", n.Event, "domain", n.Domain, "request_id", n.RequestID, "recipients", len(n.ChatIDs))
	return nil
}
