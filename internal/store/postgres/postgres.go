// Package postgres is the production store on pgx. Conditional writes rely on
// UPDATE ... WHERE status = ... and partial unique indexes.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sudo-init-do/errandhub/internal/eligibility"
	"github.com/sudo-init-do/errandhub/internal/lifecycle"
	"github.com/sudo-init-do/errandhub/internal/user"
)

// Compile-time interface checks.
var (
	_ lifecycle.Store   = (*Store)(nil)
	_ eligibility.Store = (*Store)(nil)
	_ user.Store        = (*Store)(nil)
)

// Store wraps a pgx pool.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// Connect opens the pool, pings the server and ensures the schema.
func Connect(ctx context.Context, dsn string, logger *slog.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	logger.Info("connected to postgres")

	s := &Store{pool: pool, logger: logger}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Pool exposes the pool to admin tooling.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

const (
	uniqueViolation     = "23505"
	activeRequestIndex  = "uniq_requests_active_requester"
	pendingBidIndex     = "uniq_bids_pending_provider"
	profilePerUserIndex = "uniq_provider_profiles_user"
)

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == constraint
}

func noRows(err error) bool { return errors.Is(err, pgx.ErrNoRows) }
