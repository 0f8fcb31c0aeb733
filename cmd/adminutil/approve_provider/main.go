package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/sudo-init-do/errandhub/internal/config"
	"github.com/sudo-init-do/errandhub/internal/eligibility"
	"github.com/sudo-init-do/errandhub/internal/lifecycle"
	"github.com/sudo-init-do/errandhub/internal/store"
)

func main() {
	domain := flag.String("domain", "taxi", "Vertical: taxi or delivery")
	tgID := flag.Int64("tg-id", 0, "Telegram id of the provider to approve")
	flag.Parse()

	if *tgID == 0 {
		log.Fatalf("usage: go run ./cmd/adminutil/approve_provider -domain taxi -tg-id 123456789")
	}

	var desc lifecycle.Descriptor
	switch *domain {
	case "taxi":
		desc = lifecycle.Taxi()
	case "delivery":
		desc = lifecycle.Delivery()
	default:
		log.Fatalf("unknown domain %q", *domain)
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

	u, err := backend.GetUserByExternalID(ctx, *tgID)
	if err != nil {
		log.Fatalf("no user with tg id %d: %v", *tgID, err)
	}

	gate := eligibility.NewGate(desc.Name, desc.RequiresResource, backend, logger)
	st, err := gate.ApproveAll(ctx, u.ID)
	if err != nil {
		log.Fatalf("failed to approve provider: %v", err)
	}

	fmt.Printf("Provider %d approved for %s.\n", *tgID, desc.Name)
	if st.Reason != "" {
		fmt.Printf("Still blocked: %s\n", st.Reason)
	}
}
