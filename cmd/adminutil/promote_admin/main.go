package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/sudo-init-do/errandhub/internal/config"
	"github.com/sudo-init-do/errandhub/internal/store"
	"github.com/sudo-init-do/errandhub/internal/user"
)

func main() {
	tgID := flag.Int64("tg-id", 0, "Telegram id of the user to promote to admin")
	demote := flag.Bool("demote", false, "Revoke the admin role instead")
	flag.Parse()

	if *tgID == 0 {
		log.Fatalf("usage: go run ./cmd/adminutil/promote_admin -tg-id 123456789 [-demote]")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	ctx := context.Background()
	backend, err := store.Open(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer backend.Close()

	role := user.RoleAdmin
	if *demote {
		role = user.RoleUser
	}
	if err := backend.SetRole(ctx, *tgID, role); err != nil {
		log.Fatalf("failed to set role for tg id %d: %v", *tgID, err)
	}

	fmt.Printf("User %d is now %s.\n", *tgID, role)
}
