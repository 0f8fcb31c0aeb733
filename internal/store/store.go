// Package store picks the persistence backend named by the configuration.
package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sudo-init-do/errandhub/internal/config"
	"github.com/sudo-init-do/errandhub/internal/eligibility"
	"github.com/sudo-init-do/errandhub/internal/lifecycle"
	"github.com/sudo-init-do/errandhub/internal/store/memory"
	"github.com/sudo-init-do/errandhub/internal/store/postgres"
	"github.com/sudo-init-do/errandhub/internal/store/sqlite"
	"github.com/sudo-init-do/errandhub/internal/user"
)

// Backend is everything the server persists.
type Backend interface {
	lifecycle.Store
	eligibility.Store
	user.Store

	Ping(ctx context.Context) error
	Close() error
}

var (
	_ Backend = (*memory.Store)(nil)
	_ Backend = (*postgres.Store)(nil)
	_ Backend = (*sqlite.DB)(nil)
)

// Open connects to the backend selected by cfg.Store.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Backend, error) {
	switch cfg.Store {
	case "memory":
		logger.Warn("using in-memory store, data is lost on restart")
		return memory.New(), nil
	case "sqlite":
		return sqlite.New(cfg.SQLitePath, logger)
	case "postgres":
		return postgres.Connect(ctx, cfg.PostgresDSN(), logger)
	}
	return nil, fmt.Errorf("store: unknown backend %q", cfg.Store)
}
