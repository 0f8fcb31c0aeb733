package alerts

import (
	"context"
	"time"
)

// Task type constants
const (
	TaskTelegramNotify = "notify:telegram"
)

// Queue names
const (
	QueueNotifications = "notifications"
)

// Notification is one lifecycle event addressed to a set of chat ids.
type Notification struct {
	Event     string
	Domain    string
	RequestID string
	ChatIDs   []int64
	Text      string
}

// Notifier hands a notification to a delivery transport. Delivery is best
// effort: callers log a returned error and move on.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Sender delivers a single text message to a chat.
type Sender interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// Telegram notification payload (one task per recipient)
type TelegramPayload struct {
	ChatID    int64     `json:"chat_id"`
	Text      string    `json:"text"`
	Event     string    `json:"event"`
	Domain    string    `json:"domain"`
	RequestID string    `json:"request_id"`
	SentAt    time.Time `json:"sent_at"`
}
