package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
)

// Worker consumes notification tasks and hands them to a Sender.
type Worker struct {
	server *asynq.Server
	sender Sender
	logger *slog.Logger
}

// NewWorker configures an asynq server for the notifications queue.
func NewWorker(redisAddr string, sender Sender, logger *slog.Logger) *Worker {
	server := asynq.NewServer(asynq.RedisClientOpt{Addr: redisAddr}, asynq.Config{
		Concurrency: 5,
		Queues: map[string]int{
			QueueNotifications: 10,
		},
	})
	return &Worker{server: server, sender: sender, logger: logger}
}

// Mux returns the handler mux with every task type registered.
func (w *Worker) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTelegramNotify, w.handleTelegram)
	return mux
}

// Run blocks processing tasks until Shutdown is called.
func (w *Worker) Run() error {
	w.logger.Info("notification worker started")
	return w.server.Run(w.Mux())
}

// Shutdown stops the server after in-flight tasks finish.
func (w *Worker) Shutdown() {
	w.server.Shutdown()
}

func (w *Worker) handleTelegram(ctx context.Context, t *asynq.Task) error {
	var p TelegramPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if err := w.sender.Send(ctx, p.ChatID, p.Text); err != nil {
		w.logger.Warn("[notify] telegram send failed",
			"event", p.Event, "request_id", p.RequestID, "chat_id", p.ChatID, "err", err)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	w.logger.Info("[notify] telegram sent", "event", p.Event, "request_id", p.RequestID, "chat_id", p.ChatID)
	return nil
}
