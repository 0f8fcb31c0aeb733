package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// enqueuer is the part of *asynq.Client the queue notifier uses.
type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// QueueNotifier schedules one Telegram task per recipient on the
// notifications queue. Tasks are never retried.
type QueueNotifier struct {
	client enqueuer
}

// NewQueueNotifier wraps an asynq client.
func NewQueueNotifier(client *asynq.Client) *QueueNotifier {
	return &QueueNotifier{client: client}
}

// Notify implements Notifier.
func (q *QueueNotifier) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, chatID := range n.ChatIDs {
		task, err := NewTelegramTask(chatID, n)
		if err != nil {
			return err
		}
		_, err = q.client.EnqueueContext(ctx, task,
			asynq.Queue(QueueNotifications),
			asynq.MaxRetry(0),
			asynq.Timeout(30*time.Second),
		)
		if err != nil {
			errs = append(errs, fmt.Errorf("enqueue for %d: %w", chatID, err))
		}
	}
	return errors.Join(errs...)
}

// NewTelegramTask builds the task for one recipient of n.
func NewTelegramTask(chatID int64, n Notification) (*asynq.Task, error) {
	payload := TelegramPayload{
		ChatID:    chatID,
		Text:      n.Text,
		Event:     n.Event,
		Domain:    n.Domain,
		RequestID: n.RequestID,
		SentAt:    time.Now(),
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTelegramNotify, b), nil
}
