package main

import (
	"log/slog"
	"os"

	"github.com/sudo-init-do/errandhub/internal/alerts"
	"github.com/sudo-init-do/errandhub/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	redisAddr := config.MustGet("REDIS_ADDR")
	botToken := config.MustGet("BOT_TOKEN")

	sender, err := alerts.NewTelegramSender(botToken, logger)
	if err != nil {
		logger.Error("telegram sender", "err", err)
		os.Exit(1)
	}

	// Run returns after SIGINT/SIGTERM once in-flight tasks finish.
	worker := alerts.NewWorker(redisAddr, sender, logger)
	if err := worker.Run(); err != nil {
		logger.Error("worker stopped", "err", err)
		os.Exit(1)
	}
}
