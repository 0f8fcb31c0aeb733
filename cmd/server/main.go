package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/sudo-init-do/errandhub/internal/admin"
	"github.com/sudo-init-do/errandhub/internal/alerts"
	"github.com/sudo-init-do/errandhub/internal/auth"
	"github.com/sudo-init-do/errandhub/internal/config"
	"github.com/sudo-init-do/errandhub/internal/eligibility"
	"github.com/sudo-init-do/errandhub/internal/events"
	"github.com/sudo-init-do/errandhub/internal/httpapi"
	"github.com/sudo-init-do/errandhub/internal/lifecycle"
	"github.com/sudo-init-do/errandhub/internal/realtime"
	"github.com/sudo-init-do/errandhub/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := store.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("open store", "store", cfg.Store, "err", err)
		os.Exit(1)
	}
	defer backend.Close()

	broker := realtime.NewBroker(logger)
	publishers := events.Multi{broker}
	if cfg.AMQPURL != "" {
		amqpPub, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger)
		if err != nil {
			logger.Error("connect amqp", "err", err)
			os.Exit(1)
		}
		defer amqpPub.Close()
		publishers = append(publishers, amqpPub)
	}

	notifier, closeNotifier := buildNotifier(cfg, logger)
	defer closeNotifier()

	gates := make(map[string]*eligibility.Gate)
	var (
		verticals []*httpapi.Vertical
		engines   []*lifecycle.Engine
	)
	for _, desc := range []lifecycle.Descriptor{lifecycle.Taxi(), lifecycle.Delivery()} {
		gate := eligibility.NewGate(desc.Name, desc.RequiresResource, backend, logger)
		eng := lifecycle.New(desc, backend, gate,
			lifecycle.WithPublisher(publishers),
			lifecycle.WithNotifier(notifier),
			lifecycle.WithLogger(logger.With("domain", desc.Name)),
		)
		gates[desc.Name] = gate
		engines = append(engines, eng)
		verticals = append(verticals, &httpapi.Vertical{
			Engine: eng,
			Gate:   gate,
			Users:  backend,
			Broker: broker,
			Logger: logger,
		})
	}

	tokens := auth.NewJWT(cfg.JWTSecret, 0)
	authn := auth.Chain{tokens}
	if cfg.BotToken != "" {
		authn = append(authn, auth.NewTelegram(cfg.BotToken, cfg.InitDataMaxAge, backend, cfg.AdminTgIDs))
	}

	e := httpapi.NewRouter(httpapi.Deps{
		Verticals: verticals,
		Admin: &admin.Handler{
			Gates:    gates,
			Requests: backend,
			Users:    backend,
			Broker:   broker,
			Logger:   logger,
		},
		AdminLogin: &auth.AdminLogin{PasswordHash: cfg.AdminPasswordHash, Tokens: tokens, Logger: logger},
		Users:      backend,
		Store:      backend,
		Authn:      authn,
		Logger:     logger,
	})

	go func() {
		logger.Info("api server listening", "port", cfg.Port, "store", cfg.Store)
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "err", err)
	}
	for _, eng := range engines {
		eng.Wait()
	}
}

// buildNotifier picks the queue when Redis is configured, direct Telegram
// delivery when only the bot token is, and logging otherwise.
func buildNotifier(cfg *config.Config, logger *slog.Logger) (alerts.Notifier, func()) {
	switch {
	case cfg.BotToken != "" && cfg.RedisAddr != "":
		client := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		logger.Info("notifications go through the queue", "redis", cfg.RedisAddr)
		return alerts.NewQueueNotifier(client), func() { client.Close() }
	case cfg.BotToken != "":
		sender, err := alerts.NewTelegramSender(cfg.BotToken, logger)
		if err != nil {
			logger.Error("telegram sender disabled", "err", err)
			break
		}
		return sender, func() {}
	}
	logger.Warn("no notification transport configured, notifications are only logged")
	return alerts.LogNotifier{Logger: logger}, func() {}
}
